// Package dump writes analysis results in a canonical text form. Two results
// with the same points-to sets and call graph produce byte-identical dumps,
// whatever order the solver discovered them in.
package dump

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/715d/pointsto/internal/heap"
	"github.com/715d/pointsto/internal/solver"
	"github.com/715d/pointsto/pkg/ir"
)

// Write writes the reachable methods, call edges and the context-insensitive
// points-to sets of r to w. Variables with empty points-to sets are omitted.
func Write(w io.Writer, r *solver.Result) error {
	bw := bufio.NewWriter(w)

	reachable := make([]string, 0, len(r.ReachableMethods()))
	for _, m := range r.ReachableMethods() {
		reachable = append(reachable, m.String())
	}
	slices.Sort(reachable)
	writeSection(bw, "reachable methods", reachable)

	var edges []string
	for _, e := range r.CallGraph().Edges() {
		edges = append(edges, fmt.Sprintf("%s -> %s (%s)", e.CallSite.Site(), e.Callee, e.Kind))
	}
	slices.Sort(edges)
	edges = slices.Compact(edges)
	writeSection(bw, "call edges", edges)

	var vars []string
	for _, v := range r.Vars() {
		if objs := r.PointsTo(v); len(objs) > 0 {
			vars = append(vars, v.String()+" -> "+objList(objs))
		}
	}
	slices.Sort(vars)
	vars = slices.Compact(vars)
	writeSection(bw, "points-to sets", vars)

	var fields []string
	seen := make(map[*ir.Field]bool)
	for _, m := range r.ReachableMethods() {
		for _, stmt := range m.Stmts() {
			var f *ir.Field
			switch stmt := stmt.(type) {
			case *ir.LoadField:
				f = stmt.Field
			case *ir.StoreField:
				f = stmt.Field
			}
			if f == nil || !f.Static || seen[f] {
				continue
			}
			seen[f] = true
			if objs := r.StaticFieldPointsTo(f); len(objs) > 0 {
				fields = append(fields, f.String()+" -> "+objList(objs))
			}
		}
	}
	slices.Sort(fields)
	writeSection(bw, "static fields", fields)

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing dump: %w", err)
	}
	return nil
}

func writeSection(w *bufio.Writer, title string, lines []string) {
	fmt.Fprintf(w, "# %s (%d)\n", title, len(lines))
	for _, l := range lines {
		w.WriteString(l)
		w.WriteByte('\n')
	}
	w.WriteByte('\n')
}

func objList(objs []*heap.Obj) string {
	labels := make([]string, len(objs))
	for i, o := range objs {
		labels[i] = o.String()
	}
	slices.Sort(labels)
	return "[" + strings.Join(labels, ", ") + "]"
}

// Digest returns the xxhash of the dump of r.
func Digest(r *solver.Result) (uint64, error) {
	h := xxhash.New()
	if err := Write(h, r); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
