package dump

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/pointsto/internal/cs"
	"github.com/715d/pointsto/internal/heap"
	"github.com/715d/pointsto/internal/plugin"
	"github.com/715d/pointsto/internal/selector"
	"github.com/715d/pointsto/internal/solver"
	"github.com/715d/pointsto/pkg/ir"
)

const program = `
classes:
  - name: S
    fields: [static Object last]
  - name: A
    methods:
      - sig: Object id(Object x)
        body:
          - return x
  - name: B
    extends: A
  - name: Main
    methods:
      - sig: static void main()
        locals: [A a, A b, Object r, Object s, int n]
        body:
          - a = new A
          - b = new B
          - r = a.id(a)
          - s = a.id(b)
          - S.last = r
          - n = 1
entries: [Main.main]
`

func analyze(t *testing.T, sel string) *solver.Result {
	t.Helper()
	prog, err := ir.Parse([]byte(program))
	require.NoError(t, err)
	mgr := cs.NewManager()
	cssel, err := selector.New(mgr, sel)
	require.NoError(t, err)
	s := solver.New(prog, heap.NewModel(prog, heap.Options{}), mgr, cssel, solver.Options{
		Plugins: []solver.Plugin{plugin.NewEntryPoints(prog, false)},
	})
	return s.Solve()
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, analyze(t, "ci")))

	want := strings.Join([]string{
		"# reachable methods (2)",
		"A.id(Object)",
		"Main.main()",
		"",
		"# call edges (2)",
		"Main.main()[2] -> A.id(Object) (virtual)",
		"Main.main()[3] -> A.id(Object) (virtual)",
		"",
		"# points-to sets (6)",
		"A.id(Object)/this -> [Main.main()/new A/0]",
		"A.id(Object)/x -> [Main.main()/new A/0, Main.main()/new B/1]",
		"Main.main()/a -> [Main.main()/new A/0]",
		"Main.main()/b -> [Main.main()/new B/1]",
		"Main.main()/r -> [Main.main()/new A/0, Main.main()/new B/1]",
		"Main.main()/s -> [Main.main()/new A/0, Main.main()/new B/1]",
		"",
		"# static fields (1)",
		"S.last -> [Main.main()/new A/0, Main.main()/new B/1]",
		"",
		"",
	}, "\n")
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}
}

func TestDigest(t *testing.T) {
	ci, err := Digest(analyze(t, "ci"))
	require.NoError(t, err)
	again, err := Digest(analyze(t, "ci"))
	require.NoError(t, err)
	assert.Equal(t, ci, again)

	// Call-site sensitivity separates the two id calls.
	kcall, err := Digest(analyze(t, "1-call"))
	require.NoError(t, err)
	assert.NotEqual(t, ci, kcall)

	// Both calls share one receiver.
	kobj, err := Digest(analyze(t, "1-obj"))
	require.NoError(t, err)
	assert.Equal(t, ci, kobj)
}
