package plugin

import (
	"bytes"
	"strings"
	"testing"

	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/pointsto/internal/cs"
	"github.com/715d/pointsto/internal/heap"
	"github.com/715d/pointsto/internal/selector"
	"github.com/715d/pointsto/internal/solver"
	"github.com/715d/pointsto/pkg/ir"
)

// initRecorder records class initialization order.
type initRecorder struct {
	solver.BasePlugin
	classes []string
}

func (r *initRecorder) OnClassInitialized(c *ir.Class) {
	r.classes = append(r.classes, c.Name())
}

func solve(t *testing.T, src, sel string, plugins ...solver.Plugin) (*ir.Program, *solver.Result) {
	t.Helper()
	prog, err := ir.Parse([]byte(src))
	require.NoError(t, err)
	mgr := cs.NewManager()
	cssel, err := selector.New(mgr, sel)
	require.NoError(t, err)
	plugins = append([]solver.Plugin{NewEntryPoints(prog, true)}, plugins...)
	s := solver.New(prog, heap.NewModel(prog, heap.Options{}), mgr, cssel, solver.Options{Plugins: plugins})
	return prog, s.Solve()
}

func labels(objs []*heap.Obj) []string {
	out := []string{}
	for _, o := range objs {
		out = append(out, o.String())
	}
	return out
}

func methods(ms []*ir.Method) []string {
	out := []string{}
	for _, m := range ms {
		out = append(out, m.String())
	}
	return out
}

func TestEntryPoints(t *testing.T) {
	const src = `
classes:
  - name: Main
    fields: [static Object seen]
    methods:
      - sig: static void main(String[] args)
        locals: [String s]
        body:
          - s = args[0]
      - sig: static void hook()
        locals: [Object o]
        body:
          - o = new Object
          - Main.seen = o
entries: [Main.main]
implicit_entries: [Main.hook]
`
	tests := []struct {
		name      string
		implicit  bool
		reachable []string
		seen      []string
	}{
		{
			name:      "explicit only",
			reachable: []string{"Main.main(String[])"},
			seen:      []string{},
		},
		{
			name:      "with implicit entries",
			implicit:  true,
			reachable: []string{"Main.main(String[])", "Main.hook()"},
			seen:      []string{"Main.hook()/new Object/0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := ir.Parse([]byte(src))
			require.NoError(t, err)
			mgr := cs.NewManager()
			sel, err := selector.New(mgr, "ci")
			require.NoError(t, err)
			s := solver.New(prog, heap.NewModel(prog, heap.Options{}), mgr, sel, solver.Options{
				Plugins: []solver.Plugin{NewEntryPoints(prog, tt.implicit)},
			})
			r := s.Solve()

			assert.Equal(t, tt.reachable, methods(r.ReachableMethods()))
			assert.Equal(t, tt.seen, labels(r.StaticFieldPointsTo(prog.Class("Main").Field("seen"))))

			main := prog.LookupMethod("Main", "main(String[])")
			assert.Equal(t, []string{"MainArgs:String[]"}, labels(r.PointsTo(main.Var("args"))))
			assert.Equal(t, []string{"MainArgsElem:String"}, labels(r.PointsTo(main.Var("s"))))
			assert.Len(t, r.CSCallGraph().EntryMethods(), len(tt.reachable))
		})
	}
}

func TestClassInitializer(t *testing.T) {
	rec := &initRecorder{}
	prog, r := solve(t, `
classes:
  - name: Base
    fields: [static Object registry]
    methods:
      - sig: static void <clinit>()
        locals: [Object o]
        body:
          - o = new Object
          - Base.registry = o
  - name: Widget
    extends: Base
    methods:
      - sig: static void touch()
      - sig: static void <clinit>()
        locals: [Config c]
        body:
          - c = Config.load()
  - name: Config
    methods:
      - sig: static Config load()
        locals: [Config c]
        body:
          - c = new Config
          - return c
      - sig: static void <clinit>()
        body:
          - Widget.touch()
  - name: Holder
    fields: [static Object value]
    methods:
      - sig: static void <clinit>()
  - name: Lit
    methods:
      - sig: static void <clinit>()
  - name: Unused
    methods:
      - sig: static void <clinit>()
  - name: Main
    methods:
      - sig: static void main()
        locals: ['Widget[] ws', Object v, Class k]
        body:
          - ws = new Widget[1]
          - v = Holder.value
          - k = Lit.class
entries: [Main.main]
`, "ci", NewClassInitializer(), rec)

	assert.Equal(t, []string{
		"Main", "Object",
		"Widget", "Base",
		"Config",
		"Holder",
		"Class", "Lit",
	}, rec.classes)

	reachable := methods(r.ReachableMethods())
	for _, m := range []string{"Base.<clinit>()", "Widget.<clinit>()", "Config.<clinit>()", "Holder.<clinit>()", "Lit.<clinit>()"} {
		assert.Contains(t, reachable, m)
	}
	assert.NotContains(t, reachable, "Unused.<clinit>()")
	assert.Equal(t, []string{"Base.<clinit>()/new Object/0"}, labels(r.StaticFieldPointsTo(prog.Class("Base").Field("registry"))))
}

const threadProgram = `
classes:
  - name: Thread
    library: true
    methods:
      - sig: void start()
      - sig: void run()
      - sig: static Thread currentThread()
        locals: [Thread t]
        body:
          - return t
  - name: Worker
    extends: Thread
    fields: [Object out]
    methods:
      - sig: void run()
        locals: [Object o]
        body:
          - o = new Object
          - this.out = o
  - name: Idle
    extends: Thread
  - name: Main
    methods:
      - sig: static void main()
        locals: [Worker w, Idle i, Thread t, Thread cur, Object got]
        body:
          - w = new Worker
          - i = new Idle
          - t = w
          - t.start()
          - t = i
          - t.start()
          - cur = Thread.currentThread()
          - got = w.out
entries: [Main.main]
`

func TestThreadStart(t *testing.T) {
	for _, sel := range []string{"ci", "1-obj", "2-call"} {
		t.Run(sel, func(t *testing.T) {
			prog, r := solve(t, threadProgram, sel, NewThreadStart())

			start := prog.LookupMethod("Thread", "start()")
			workerRun := prog.LookupMethod("Worker", "run()")
			threadRun := prog.LookupMethod("Thread", "run()")

			cg := r.CallGraph()
			edges := cg.EdgesInto(workerRun)
			require.Len(t, edges, 1)
			assert.Equal(t, ir.CallOther, edges[0].Kind)
			assert.Equal(t, "Thread.start()[run]", edges[0].CallSite.Site())
			container, ok := cg.ContainerOf(edges[0].CallSite)
			require.True(t, ok)
			assert.Same(t, start, container)
			assert.Len(t, cg.EdgesInto(threadRun), 1, "Idle inherits run()")

			main := prog.LookupMethod("Main", "main()")
			assert.Equal(t, []string{"Main.main()/new Worker/0"}, labels(r.PointsTo(workerRun.Var("this"))))
			assert.Equal(t, []string{"Worker.run()/new Object/0"}, labels(r.PointsTo(main.Var("got"))))
			assert.Equal(t, []string{"Main.main()/new Worker/0", "Main.main()/new Idle/1"}, labels(r.PointsTo(main.Var("cur"))))
		})
	}
}

func TestThreadStart_NoThreadClass(t *testing.T) {
	_, r := solve(t, `
classes:
  - name: Main
    methods:
      - sig: static void main()
        locals: [Object o]
        body:
          - o = new Object
entries: [Main.main]
`, "ci", NewThreadStart())
	assert.Equal(t, 0, r.CallGraph().NumEdges())
}

func TestArrayCopy(t *testing.T) {
	prog, r := solve(t, `
classes:
  - name: System
    library: true
    methods:
      - sig: static native void arraycopy(Object src, int srcPos, Object dest, int destPos, int length)
  - name: A
  - name: B
  - name: Main
    methods:
      - sig: static void main()
        locals: ['Object[] src', 'A[] dst', 'Object[] other', A a, B b, int n, Object x, Object y]
        body:
          - src = new Object[2]
          - a = new A
          - b = new B
          - src[0] = a
          - src[1] = b
          - dst = new A[2]
          - other = new Object[2]
          - n = 0
          - System.arraycopy(src, n, dst, n, n)
          - System.arraycopy(src, n, other, n, n)
          - x = dst[0]
          - y = other[0]
entries: [Main.main]
`, "1-call", NewArrayCopy())

	main := prog.LookupMethod("Main", "main()")
	assert.Equal(t, []string{"Main.main()/new A/1"}, labels(r.PointsTo(main.Var("x"))), "dest element type filters B")
	assert.Equal(t, []string{"Main.main()/new A/1", "Main.main()/new B/2"}, labels(r.PointsTo(main.Var("y"))))
	assert.Empty(t, labels(r.PointsTo(main.Var("n"))))
}

func TestArrayCopy_Undeclared(t *testing.T) {
	p := NewArrayCopy()
	_, r := solve(t, `
classes:
  - name: Main
    methods:
      - sig: static void main()
        locals: ['Object[] a']
        body:
          - a = new Object[1]
entries: [Main.main]
`, "ci", p)
	assert.Nil(t, p.arraycopy)
	assert.Empty(t, p.temps)
	assert.Len(t, r.ReachableMethods(), 1)
}

func TestProfiler(t *testing.T) {
	set := metrics.NewSet()
	var report bytes.Buffer
	p := NewProfiler(set, &report, 2)
	solve(t, `
classes:
  - name: A
    methods:
      - sig: Object foo()
        locals: [Object r]
        body:
          - r = new Object
          - return r
  - name: Main
    methods:
      - sig: static void main()
        locals: [A a, Object b, Object o, A x]
        body:
          - a = new A
          - b = a
          - b = a.foo()
          - o = new Object
          - x = o
          - x.foo()
entries: [Main.main]
`, "1-call", p)

	var metricsOut bytes.Buffer
	set.WritePrometheus(&metricsOut)
	text := metricsOut.String()
	for _, line := range []string{
		`pta_new_methods_total{selector="1-call"} 2`,
		`pta_call_edges_total{selector="1-call"} 1`,
		`pta_unresolved_calls_total{selector="1-call"} 1`,
		`pta_reachable_cs_methods{selector="1-call"} 2`,
	} {
		assert.Contains(t, text, line)
	}

	// b is updated by the copy and again by the return of foo.
	want := "Top 2 frequently-visited variables:\n" +
		"2\tMain.main()/b\n" +
		"1\tA.foo()/r\n" +
		"\n"
	out := report.String()
	assert.True(t, strings.HasPrefix(out, want), out)
	assert.Contains(t, out, "Top 2 class containers (of frequently-visited variables):\n5\tMain\n2\tA\n")
	assert.Contains(t, out, "Top 2 points-to sets:\n2\t[]:Main.main()/b\n")
}

func TestTop(t *testing.T) {
	counts := map[string]int{"a": 1, "b": 3, "c": 3, "d": 2}
	got := top(counts, 3, func(s string) string { return s })
	assert.Equal(t, []topLine{{3, "b"}, {3, "c"}, {2, "d"}}, got)
	assert.Empty(t, top(map[string]int{}, 3, func(s string) string { return s }))
}

func TestConstraintChecker(t *testing.T) {
	checker := NewConstraintChecker()
	solve(t, virtualCalls, "2-obj", NewClassInitializer(), checker)
	assert.Empty(t, checker.Violations())

	prog, err := ir.Parse([]byte(virtualCalls))
	require.NoError(t, err)
	mgr := cs.NewManager()
	sel, err := selector.New(mgr, "ci")
	require.NoError(t, err)
	checker = NewConstraintChecker()
	solver.New(prog, heap.NewModel(prog, heap.Options{}), mgr, sel, solver.Options{Plugins: []solver.Plugin{checker}})

	main := prog.LookupMethod("Main", "main()")
	checker.OnNewCSMethod(mgr.CSMethod(mgr.EmptyContext(), main))
	c := mgr.MakeContext("c")
	checker.OnNewPointsToSet(mgr.CSVar(c, main.Var("a")), &cs.Set{})
	_, created := mgr.LookupCSMethod(c, main)
	assert.False(t, created, "checking a points-to set must not create its CS method")
	assert.Equal(t, []string{
		"hit []:Main.main() before processing Main.main()",
		"hit Main.main()/a before processing Main.main()",
		"hit [c]:Main.main()/a before processing [c]:Main.main()",
	}, checker.Violations())
}

const virtualCalls = `
classes:
  - name: A
    methods:
      - sig: Object id(Object x)
        body:
          - return x
  - name: B
    extends: A
    methods:
      - sig: Object id(Object x)
        locals: [Object y]
        body:
          - y = new Object
          - return y
  - name: Main
    methods:
      - sig: static void main()
        locals: [A a, Object r]
        body:
          - a = new A
          - r = a.id(a)
          - a = new B
          - r = a.id(r)
entries: [Main.main]
`
