// Package llvmir loads textual LLVM IR (.ll) modules with
// github.com/llir/llvm and lowers them into the read-only pkg/ir model.
package llvmir

import (
	"context"
	"fmt"
	goruntime "runtime"

	"github.com/llir/llvm/asm"
	"golang.org/x/sync/errgroup"

	"github.com/715d/sdrange/pkg/ir"
)

// LoaderOptions configures module loading.
type LoaderOptions struct {
	// Files are the .ll files to load.
	Files []string

	// Jobs is the number of files parsed concurrently. NumCPU if zero.
	Jobs int
}

// LoadModules parses every file of opts concurrently and returns the modules
// in input order.
func LoadModules(ctx context.Context, opts LoaderOptions) ([]*ir.Module, error) {
	if len(opts.Files) == 0 {
		return nil, fmt.Errorf("no modules to load")
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = goruntime.NumCPU()
	}

	modules := make([]*ir.Module, len(opts.Files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for idx, file := range opts.Files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := LoadFile(file)
			if err != nil {
				return err
			}
			modules[idx] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return modules, nil
}

// LoadFile parses a single .ll file.
func LoadFile(path string) (*ir.Module, error) {
	m, err := asm.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return Lower(path, m), nil
}

// ParseString parses LLVM IR held in memory; name becomes the module name.
func ParseString(name, src string) (*ir.Module, error) {
	m, err := asm.ParseString(name, src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	return Lower(name, m), nil
}
