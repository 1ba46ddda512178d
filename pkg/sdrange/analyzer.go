package sdrange

import (
	"context"
	"fmt"
	"log/slog"
	goruntime "runtime"

	"golang.org/x/sync/errgroup"

	"github.com/715d/sdrange/internal/location"
	"github.com/715d/sdrange/pkg/cha"
	"github.com/715d/sdrange/pkg/demangle"
	"github.com/715d/sdrange/pkg/ir"
	"github.com/715d/sdrange/pkg/snapshot"
)

// AnalyzerOptions holds configuration options for the analyzer.
type AnalyzerOptions struct {
	Session Options // per-module settings; Demangler and Allocator are shared
	Jobs    int     // modules processed concurrently; NumCPU if zero
}

// Analyzer runs one session per module. Sessions share the pseudo-location
// allocator and the demangle cache, so synthesized locations stay unique
// across every module of a run.
type Analyzer struct {
	oracle cha.Oracle
	writer *snapshot.Writer
	opts   AnalyzerOptions
}

// NewAnalyzer creates an analyzer writing artifacts through w. A nil w skips
// persisting.
func NewAnalyzer(oracle cha.Oracle, w *snapshot.Writer, opts AnalyzerOptions) *Analyzer {
	if opts.Session.Demangler == nil {
		opts.Session.Demangler = demangle.NewItanium()
	}
	if opts.Session.Allocator == nil {
		opts.Session.Allocator = location.NewAllocator()
	}
	if opts.Session.Logger == nil {
		opts.Session.Logger = slog.Default()
	}
	if opts.Jobs <= 0 {
		opts.Jobs = goruntime.NumCPU()
	}
	return &Analyzer{oracle: oracle, writer: w, opts: opts}
}

// Analyze processes modules concurrently and returns their results in input
// order. The first failing module cancels the modules not yet started.
func (a *Analyzer) Analyze(ctx context.Context, modules []*ir.Module) ([]*Result, error) {
	if len(modules) == 0 {
		return nil, fmt.Errorf("no modules provided")
	}

	// Each goroutine writes only its own index.
	results := make([]*Result, len(modules))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Jobs)
	for idx, m := range modules {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := NewSession(m, a.oracle, a.opts.Session).Run(a.writer)
			if err != nil {
				return fmt.Errorf("module %s: %w", m.Name, err)
			}
			results[idx] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
