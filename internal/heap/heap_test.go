package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/pointsto/pkg/ir"
)

func newStrings(t *testing.T) (*ir.Program, *ir.New, *ir.New) {
	t.Helper()
	prog, err := ir.Parse([]byte(`
classes:
  - name: A
    methods:
      - sig: static void main()
        locals: [String s, String u, A a]
        body:
          - a = new A
          - s = new String
          - u = new String
`))
	require.NoError(t, err)
	stmts := prog.LookupMethod("A", "main()").Stmts()
	return prog, stmts[1].(*ir.New), stmts[2].(*ir.New)
}

func TestModel_Obj(t *testing.T) {
	prog, s1, s2 := newStrings(t)

	h := NewModel(prog, Options{})
	o1 := h.Obj(s1)
	assert.Same(t, o1, h.Obj(s1))
	assert.NotSame(t, o1, h.Obj(s2))
	assert.Equal(t, Alloc, o1.Kind)
	assert.Equal(t, "A.main()/new String/1", o1.String())
	assert.Equal(t, ir.Type(prog.Class("A")), o1.ContainerType())
	assert.Equal(t, []*Obj{o1, h.Obj(s2)}, h.Objects())
	assert.Equal(t, 1, h.Obj(s2).ID)

	merged := NewModel(prog, Options{MergeStringObjects: true})
	assert.Same(t, merged.Obj(s1), merged.Obj(s2))
	assert.Equal(t, Merged, merged.Obj(s1).Kind)
}

func TestModel_ConstantObj(t *testing.T) {
	prog := ir.NewProgram()

	tests := []struct {
		name      string
		opts      Options
		a, b      ir.Literal
		wantSame  bool
		wantLabel string
	}{
		{
			name:      "equal strings",
			a:         prog.NewStringLiteral("x"),
			b:         prog.NewStringLiteral("x"),
			wantSame:  true,
			wantLabel: `"x"`,
		},
		{
			name:      "different strings",
			a:         prog.NewStringLiteral("x"),
			b:         prog.NewStringLiteral("y"),
			wantLabel: `"x"`,
		},
		{
			name:      "merged strings",
			opts:      Options{MergeStringConstants: true},
			a:         prog.NewStringLiteral("x"),
			b:         prog.NewStringLiteral("y"),
			wantSame:  true,
			wantLabel: "<merged string constants>",
		},
		{
			name:      "class literals",
			a:         prog.NewClassLiteral(prog.StringClass()),
			b:         prog.NewClassLiteral(prog.StringClass()),
			wantSame:  true,
			wantLabel: "String.class",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewModel(prog, tt.opts)
			a, b := h.ConstantObj(tt.a), h.ConstantObj(tt.b)
			assert.Equal(t, tt.wantSame, a == b)
			assert.Equal(t, tt.wantLabel, a.String())
		})
	}

	h := NewModel(prog, Options{})
	assert.Panics(t, func() { h.ConstantObj(ir.NullLiteral{}) })
}

func TestModel_MockObj(t *testing.T) {
	prog := ir.NewProgram()
	h := NewModel(prog, Options{})
	args := prog.ArrayOf(prog.StringClass())

	o := h.MockObj("MainArgs", nil, args, nil)
	assert.Same(t, o, h.MockObj("MainArgs", nil, args, nil))
	assert.NotSame(t, o, h.MockObj("MainArgs", "other", args, nil))
	assert.Equal(t, "MainArgs:String[]", o.String())
	assert.Equal(t, "MainArgs[other]:String[]", h.MockObj("MainArgs", "other", args, nil).String())
	assert.Equal(t, ir.Type(args), o.ContainerType())
}
