package pta

import (
	"slices"
	"strings"

	"github.com/715d/pointsto/internal/heap"
	"github.com/715d/pointsto/internal/solver"
)

// Stats summarizes the size of an analysis result.
type Stats struct {
	Selector           string `json:"selector"`
	ReachableMethods   int    `json:"reachable_methods"`
	ReachableCSMethods int    `json:"reachable_cs_methods"`
	CallEdges          int    `json:"call_edges"`
	CSCallEdges        int    `json:"cs_call_edges"`
	Pointers           int    `json:"pointers"`
	Objects            int    `json:"objects"`
	CSObjects          int    `json:"cs_objects"`
	Contexts           int    `json:"contexts"`
}

// VarPointsTo is the context-insensitive points-to set of one variable.
type VarPointsTo struct {
	Var     string   `json:"var"`
	Objects []string `json:"objects"`
}

// Report is the printable form of an analysis result.
type Report struct {
	Stats     Stats         `json:"stats"`
	Reachable []string      `json:"reachable,omitempty"`
	PointsTo  []VarPointsTo `json:"points_to,omitempty"`
}

// NewStats computes the stats of r.
func NewStats(r *solver.Result) Stats {
	return Stats{
		Selector:           r.Selector(),
		ReachableMethods:   len(r.ReachableMethods()),
		ReachableCSMethods: r.CSCallGraph().NumReachableMethods(),
		CallEdges:          r.CallGraph().NumEdges(),
		CSCallEdges:        r.CSCallGraph().NumEdges(),
		Pointers:           r.NumPointers(),
		Objects:            len(r.Objects()),
		CSObjects:          r.NumCSObjects(),
		Contexts:           r.NumContexts(),
	}
}

// NewReport builds the report of r. With detailed set it lists the reachable
// methods and the non-empty points-to sets of variables, sorted by name.
func NewReport(r *solver.Result, detailed bool) Report {
	rep := Report{Stats: NewStats(r)}
	if !detailed {
		return rep
	}
	for _, m := range r.ReachableMethods() {
		rep.Reachable = append(rep.Reachable, m.String())
	}
	slices.Sort(rep.Reachable)

	for _, v := range r.Vars() {
		objs := r.PointsTo(v)
		if len(objs) == 0 {
			continue
		}
		rep.PointsTo = append(rep.PointsTo, VarPointsTo{Var: v.String(), Objects: objLabels(objs)})
	}
	slices.SortFunc(rep.PointsTo, func(a, b VarPointsTo) int {
		return strings.Compare(a.Var, b.Var)
	})
	return rep
}

func objLabels(objs []*heap.Obj) []string {
	labels := make([]string, len(objs))
	for i, o := range objs {
		labels[i] = o.String()
	}
	slices.Sort(labels)
	return labels
}
