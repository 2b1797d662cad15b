package pta

import (
	"bytes"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/pointsto/internal/plugin"
	"github.com/715d/pointsto/internal/solver"
	"github.com/715d/pointsto/pkg/ir"
)

const idProgram = `
classes:
  - name: A
    methods:
      - sig: Object id(Object x)
        body:
          - return x
  - name: B
  - name: Main
    methods:
      - sig: static void main()
        locals: [A a, B b, Object r, Object s]
        body:
          - a = new A
          - b = new B
          - r = a.id(a)
          - s = a.id(b)
entries: [Main.main]
`

func parse(t *testing.T, src string) *ir.Program {
	t.Helper()
	prog, err := ir.Parse([]byte(src))
	require.NoError(t, err)
	return prog
}

func pointsTo(t *testing.T, r *solver.Result, name string) []string {
	t.Helper()
	for _, v := range r.Vars() {
		if v.String() == name {
			return objLabels(r.PointsTo(v))
		}
	}
	t.Fatalf("no variable %s", name)
	return nil
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name  string
		cs    string
		wantR []string
		wantS []string
	}{
		{
			name:  "insensitive",
			cs:    "ci",
			wantR: []string{"Main.main()/new A/0", "Main.main()/new B/1"},
			wantS: []string{"Main.main()/new A/0", "Main.main()/new B/1"},
		},
		{
			name:  "call-site sensitive",
			cs:    "1-call",
			wantR: []string{"Main.main()/new A/0"},
			wantS: []string{"Main.main()/new B/1"},
		},
		{
			name:  "object sensitive",
			cs:    "1-obj",
			wantR: []string{"Main.main()/new A/0", "Main.main()/new B/1"},
			wantS: []string{"Main.main()/new A/0", "Main.main()/new B/1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.CS = tt.cs
			r, err := Analyze(parse(t, idProgram), opts)
			require.NoError(t, err)

			assert.Equal(t, tt.cs, r.Selector())
			assert.Equal(t, tt.wantR, pointsTo(t, r, "Main.main()/r"))
			assert.Equal(t, tt.wantS, pointsTo(t, r, "Main.main()/s"))
		})
	}
}

func TestAnalyze_InvalidSelector(t *testing.T) {
	opts := DefaultOptions()
	opts.CS = "2-heap"
	_, err := Analyze(parse(t, idProgram), opts)
	require.Error(t, err)
}

// TestAnalyze_Profiler tests that the profiler counts the events fired by
// the entry points and class initializer while the analysis starts.
func TestAnalyze_Profiler(t *testing.T) {
	set := metrics.NewSet()
	_, err := Analyze(parse(t, idProgram), DefaultOptions(), plugin.NewProfiler(set, nil, 0))
	require.NoError(t, err)

	var out bytes.Buffer
	set.WritePrometheus(&out)
	assert.Contains(t, out.String(), `pta_new_methods_total{selector="ci"} 2`)
	assert.Regexp(t, `pta_initialized_classes_total\{selector="ci"\} [1-9]`, out.String())
}

type finishCounter struct {
	solver.BasePlugin
	n *atomic.Int32
}

func (p *finishCounter) OnFinish() {
	p.n.Add(1)
}

func TestAnalyzeAll(t *testing.T) {
	prog := parse(t, idProgram)
	var opts []Options
	for _, sel := range []string{"ci", "1-call", "2-call", "1-obj", "1-type"} {
		o := DefaultOptions()
		o.CS = sel
		opts = append(opts, o)
	}

	var finished atomic.Int32
	results, err := AnalyzeAll(t.Context(), prog, opts, func(Options) []solver.Plugin {
		return []solver.Plugin{&finishCounter{n: &finished}}
	})
	require.NoError(t, err)
	require.Len(t, results, len(opts))
	assert.Equal(t, int32(len(opts)), finished.Load())

	for i, r := range results {
		assert.Equal(t, opts[i].CS, r.Selector())
		assert.Len(t, r.ReachableMethods(), 2)
	}
	assert.Len(t, pointsTo(t, results[0], "Main.main()/r"), 2)
	assert.Len(t, pointsTo(t, results[1], "Main.main()/r"), 1)
}

func TestAnalyzeAll_Error(t *testing.T) {
	opts := []Options{DefaultOptions(), {CS: "bogus"}}
	_, err := AnalyzeAll(t.Context(), parse(t, idProgram), opts, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `analysis "bogus"`)
}

func TestNewReport(t *testing.T) {
	r, err := Analyze(parse(t, idProgram), DefaultOptions())
	require.NoError(t, err)

	summary := NewReport(r, false)
	assert.Empty(t, summary.Reachable)
	assert.Empty(t, summary.PointsTo)

	rep := NewReport(r, true)
	assert.Equal(t, Stats{
		Selector:           "ci",
		ReachableMethods:   2,
		ReachableCSMethods: 2,
		CallEdges:          2,
		CSCallEdges:        2,
		Pointers:           rep.Stats.Pointers,
		Objects:            2,
		CSObjects:          2,
		Contexts:           rep.Stats.Contexts,
	}, rep.Stats)
	assert.Equal(t, []string{"A.id(Object)", "Main.main()"}, rep.Reachable)

	vars := make([]string, len(rep.PointsTo))
	for i, p := range rep.PointsTo {
		vars[i] = p.Var
	}
	assert.True(t, slices.IsSorted(vars))
	assert.Contains(t, vars, "A.id(Object)/this")
	assert.Contains(t, vars, "Main.main()/s")
}
