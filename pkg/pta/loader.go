package pta

import (
	"context"
	"fmt"
	goruntime "runtime"

	"golang.org/x/sync/errgroup"

	"github.com/715d/pointsto/pkg/ir"
)

// LoaderOptions configures program loading.
type LoaderOptions struct {
	// Paths are the YAML program files to load.
	Paths []string
}

// LoadPrograms loads the programs in opts.Paths concurrently. The result has
// one program per path, in order.
func LoadPrograms(ctx context.Context, opts LoaderOptions) ([]*ir.Program, error) {
	if len(opts.Paths) == 0 {
		return nil, fmt.Errorf("no program files given")
	}

	progs := make([]*ir.Program, len(opts.Paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(goruntime.NumCPU())
	for idx, path := range opts.Paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			prog, err := ir.Load(path)
			if err != nil {
				return fmt.Errorf("loading program: %w", err)
			}
			progs[idx] = prog
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return progs, nil
}
