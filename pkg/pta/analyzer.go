package pta

import (
	"context"
	"fmt"
	"log/slog"
	goruntime "runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/715d/pointsto/internal/cs"
	"github.com/715d/pointsto/internal/heap"
	"github.com/715d/pointsto/internal/plugin"
	"github.com/715d/pointsto/internal/selector"
	"github.com/715d/pointsto/internal/solver"
	"github.com/715d/pointsto/pkg/ir"
)

// Analyze runs one pointer analysis of prog configured by opts. The extra
// plugins receive solver events after the built-in ones.
func Analyze(prog *ir.Program, opts Options, extra ...solver.Plugin) (*solver.Result, error) {
	mgr := cs.NewManager()
	sel, err := selector.New(mgr, opts.CS)
	if err != nil {
		return nil, fmt.Errorf("creating context selector: %w", err)
	}

	hm := heap.NewModel(prog, heap.Options{
		MergeStringConstants: opts.MergeStringConstants,
		MergeStringObjects:   opts.MergeStringObjects,
	})

	plugins := []solver.Plugin{plugin.NewEntryPoints(prog, opts.ImplicitEntries)}
	if opts.ClassInit {
		plugins = append(plugins, plugin.NewClassInitializer())
	}
	if opts.ThreadStart {
		plugins = append(plugins, plugin.NewThreadStart())
	}
	if opts.ArrayCopy {
		plugins = append(plugins, plugin.NewArrayCopy())
	}
	if opts.CheckConstraints {
		plugins = append(plugins, plugin.NewConstraintChecker())
	}
	plugins = append(plugins, extra...)

	s := solver.New(prog, hm, mgr, sel, solver.Options{
		OnlyApp: opts.OnlyApp,
		Plugins: plugins,
	})
	return s.Solve(), nil
}

// AnalyzeAll runs one analysis of prog per options value concurrently. The
// results are in the order of opts. When extra is non-nil it supplies the
// additional plugins of each run.
func AnalyzeAll(ctx context.Context, prog *ir.Program, opts []Options, extra func(Options) []solver.Plugin) ([]*solver.Result, error) {
	start := time.Now()
	results := make([]*solver.Result, len(opts))
	var reachable atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(goruntime.NumCPU())
	for idx, o := range opts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var plugins []solver.Plugin
			if extra != nil {
				plugins = extra(o)
			}
			r, err := Analyze(prog, o, plugins...)
			if err != nil {
				return fmt.Errorf("analysis %q: %w", o.CS, err)
			}
			results[idx] = r
			reachable.Add(int64(len(r.ReachableMethods())))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Debug("analyses completed",
		"runs", len(opts),
		"reachable_methods", reachable.Load(),
		"dur", time.Since(start))
	return results, nil
}
