package plugin

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/VictoriaMetrics/metrics"

	"github.com/715d/pointsto/internal/cs"
	"github.com/715d/pointsto/internal/solver"
	"github.com/715d/pointsto/pkg/ir"
)

// DefaultTopN is the number of entries per profile section.
const DefaultTopN = 100

// Profiler counts solver events in a metrics set and, when the analysis
// finishes, reports the most frequently updated variables and the largest
// points-to sets.
//
// Metric names carry the selector as a label so that the profiles of
// several analyses can share one set.
type Profiler struct {
	solver.BasePlugin

	set  *metrics.Set
	out  io.Writer
	topN int

	newMethods       *metrics.Counter
	newCSMethods     *metrics.Counter
	callEdges        *metrics.Counter
	unresolvedCalls  *metrics.Counter
	initializedClass *metrics.Counter
	ptsUpdates       *metrics.Counter
	deltaSizes       *metrics.Histogram

	csVarVisits map[cs.Pointer]int
	varVisits   map[*ir.Var]int
}

// NewProfiler creates a Profiler that records into set and writes its report
// to out. A nil out disables the report; topN <= 0 selects DefaultTopN.
func NewProfiler(set *metrics.Set, out io.Writer, topN int) *Profiler {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Profiler{
		set:         set,
		out:         out,
		topN:        topN,
		csVarVisits: make(map[cs.Pointer]int),
		varVisits:   make(map[*ir.Var]int),
	}
}

func (p *Profiler) name(metric string) string {
	return fmt.Sprintf(`%s{selector=%q}`, metric, p.Solver.Selector().Name())
}

// SetSolver creates the metrics of this analysis. Plugins registered before
// the Profiler may fire events from their OnStart.
func (p *Profiler) SetSolver(s *solver.Solver) {
	p.BasePlugin.SetSolver(s)
	p.newMethods = p.set.GetOrCreateCounter(p.name("pta_new_methods_total"))
	p.newCSMethods = p.set.GetOrCreateCounter(p.name("pta_new_cs_methods_total"))
	p.callEdges = p.set.GetOrCreateCounter(p.name("pta_call_edges_total"))
	p.unresolvedCalls = p.set.GetOrCreateCounter(p.name("pta_unresolved_calls_total"))
	p.initializedClass = p.set.GetOrCreateCounter(p.name("pta_initialized_classes_total"))
	p.ptsUpdates = p.set.GetOrCreateCounter(p.name("pta_points_to_updates_total"))
	p.deltaSizes = p.set.GetOrCreateHistogram(p.name("pta_points_to_delta_size"))
}

func (p *Profiler) OnNewMethod(*ir.Method) {
	p.newMethods.Inc()
}

func (p *Profiler) OnNewCSMethod(cs.CSMethod) {
	p.newCSMethods.Inc()
}

func (p *Profiler) OnNewCallEdge(solver.CallEdge) {
	p.callEdges.Inc()
}

func (p *Profiler) OnUnresolvedCall(cs.CSObj, cs.Context, *ir.Invoke) {
	p.unresolvedCalls.Inc()
}

func (p *Profiler) OnClassInitialized(*ir.Class) {
	p.initializedClass.Inc()
}

func (p *Profiler) OnNewPointsToSet(v cs.Pointer, diff *cs.Set) {
	p.ptsUpdates.Inc()
	p.deltaSizes.Update(float64(diff.Len()))
	p.csVarVisits[v]++
	p.varVisits[p.Solver.Manager().Info(v).Var]++
}

// OnFinish records the size of the analysis and writes the report.
func (p *Profiler) OnFinish() {
	mgr := p.Solver.Manager()
	p.set.GetOrCreateGauge(p.name("pta_pointers"), nil).Set(float64(mgr.NumPointers()))
	p.set.GetOrCreateGauge(p.name("pta_objects"), nil).Set(float64(mgr.NumObjects()))
	p.set.GetOrCreateGauge(p.name("pta_contexts"), nil).Set(float64(mgr.NumContexts()))
	p.set.GetOrCreateGauge(p.name("pta_pfg_edges"), nil).Set(float64(p.Solver.PFG().NumEdges()))
	p.set.GetOrCreateGauge(p.name("pta_reachable_cs_methods"), nil).Set(float64(p.Solver.CallGraph().NumReachableMethods()))

	if p.out == nil {
		return
	}
	if err := p.Report(p.out); err != nil {
		slog.Warn("failed to write analysis profile", "err", err)
	}
}

// Report writes the top-N sections of the profile to w.
func (p *Profiler) Report(w io.Writer) error {
	mgr := p.Solver.Manager()

	methodVisits := make(map[*ir.Method]int)
	classVisits := make(map[*ir.Class]int)
	for v, n := range p.varVisits {
		methodVisits[v.Method] += n
		classVisits[v.Method.Class] += n
	}
	csMethodVisits := make(map[cs.CSMethod]int)
	for v, n := range p.csVarVisits {
		info := mgr.Info(v)
		if m, ok := mgr.LookupCSMethod(info.Context, info.Var.Method); ok {
			csMethodVisits[m] += n
		}
	}
	ptsSizes := make(map[cs.Pointer]int)
	for ptr := range mgr.Pointers() {
		ptsSizes[ptr] = mgr.PointsTo(ptr).Len()
	}

	sections := []struct {
		desc  string
		lines []topLine
	}{
		{"frequently-visited variables", top(p.varVisits, p.topN, varString)},
		{"frequently-visited CS variables", top(p.csVarVisits, p.topN, mgr.PointerString)},
		{"method containers (of frequently-visited variables)", top(methodVisits, p.topN, (*ir.Method).String)},
		{"CS method containers (of frequently-visited CS variables)", top(csMethodVisits, p.topN, mgr.MethodString)},
		{"class containers (of frequently-visited variables)", top(classVisits, p.topN, (*ir.Class).Name)},
		{"points-to sets", top(ptsSizes, p.topN, mgr.PointerString)},
	}
	for _, s := range sections {
		if _, err := fmt.Fprintf(w, "Top %d %s:\n", p.topN, s.desc); err != nil {
			return fmt.Errorf("writing profile: %w", err)
		}
		for _, l := range s.lines {
			if _, err := fmt.Fprintf(w, "%d\t%s\n", l.count, l.label); err != nil {
				return fmt.Errorf("writing profile: %w", err)
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return fmt.Errorf("writing profile: %w", err)
		}
	}
	return nil
}

type topLine struct {
	count int
	label string
}

// top returns the n entries of counts with the highest count, largest
// first. Ties are ordered by label.
func top[K comparable](counts map[K]int, n int, label func(K) string) []topLine {
	lines := make([]topLine, 0, len(counts))
	for k, c := range counts {
		lines = append(lines, topLine{c, label(k)})
	}
	slices.SortFunc(lines, func(a, b topLine) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(a.label, b.label)
	})
	if len(lines) > n {
		lines = lines[:n]
	}
	return lines
}

func varString(v *ir.Var) string {
	return v.Method.String() + "/" + v.Name
}
