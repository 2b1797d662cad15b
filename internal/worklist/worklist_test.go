package worklist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/pointsto/internal/cs"
	"github.com/715d/pointsto/internal/pts"
	"github.com/715d/pointsto/pkg/ir"
)

func TestWorkList_Coalescing(t *testing.T) {
	w := New()
	first := pts.New[cs.CSObj](1)
	w.AddPointerEntry(10, first)
	w.AddPointerEntry(20, pts.New[cs.CSObj](7))
	w.AddPointerEntry(10, pts.New[cs.CSObj](2, 3))
	assert.Equal(t, 2, w.Len())
	assert.Equal(t, []cs.CSObj{1}, first.Slice(), "queued delta is a copy")

	e := w.Poll()
	require.IsType(t, &PointerEntry{}, e)
	pe := e.(*PointerEntry)
	assert.Equal(t, cs.Pointer(10), pe.Pointer, "merged entry keeps its position")
	assert.Equal(t, []cs.CSObj{1, 2, 3}, pe.PointsTo.Slice())

	pe = w.Poll().(*PointerEntry)
	assert.Equal(t, cs.Pointer(20), pe.Pointer)
	assert.True(t, w.IsEmpty())
	assert.Nil(t, w.Poll())

	w.AddPointerEntry(10, pts.New[cs.CSObj](4))
	pe = w.Poll().(*PointerEntry)
	assert.Equal(t, []cs.CSObj{4}, pe.PointsTo.Slice(), "drained entries are not merged again")
}

func TestWorkList_PointersFirst(t *testing.T) {
	w := New()
	edge := CallEdge{Kind: ir.CallStatic, CallSite: 1, Callee: 2}
	w.AddCallEdge(edge)
	w.AddPointerEntry(5, pts.New[cs.CSObj](1))

	var order []string
	for e := w.Poll(); e != nil; e = w.Poll() {
		switch e := e.(type) {
		case *PointerEntry:
			order = append(order, "pointer")
			if e.Pointer == 5 {
				w.AddPointerEntry(6, pts.New[cs.CSObj](1))
			}
		case *CallEdgeEntry:
			order = append(order, "call")
			assert.Equal(t, edge, e.Edge)
		}
	}
	assert.Equal(t, []string{"pointer", "pointer", "call"}, order)
	assert.True(t, w.IsEmpty())
}

func TestWorkList_PointerBetweenCallEdges(t *testing.T) {
	w := New()
	first := CallEdge{Kind: ir.CallStatic, CallSite: 1, Callee: 2}
	second := CallEdge{Kind: ir.CallStatic, CallSite: 3, Callee: 4}
	w.AddCallEdge(first)
	w.AddCallEdge(second)

	e, ok := w.Poll().(*CallEdgeEntry)
	require.True(t, ok)
	assert.Equal(t, first, e.Edge)

	// A pointer queued while processing the first edge runs before the second.
	w.AddPointerEntry(7, pts.New[cs.CSObj](1))
	p, ok := w.Poll().(*PointerEntry)
	require.True(t, ok)
	assert.Equal(t, cs.Pointer(7), p.Pointer)

	e, ok = w.Poll().(*CallEdgeEntry)
	require.True(t, ok)
	assert.Equal(t, second, e.Edge)
	assert.Nil(t, w.Poll())
}
