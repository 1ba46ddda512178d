// Package location resolves source locations of call instructions and
// synthesizes unique pseudo-locations for instructions that have none.
package location

import (
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/715d/sdrange/pkg/ir"
)

// columnsPerLine splits a pseudo-location number into (line, column).
const columnsPerLine = 65536

// Allocator hands out pseudo-location numbers. Numbers are strictly
// increasing and never reused by the same Allocator. An Allocator is safe for
// concurrent use, so one value may be shared by every session of a process.
type Allocator struct {
	next atomic.Uint64
}

// NewAllocator returns an allocator starting at zero.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Next allocates the next pseudo-location. The space holds 2^32 locations;
// running out of it panics.
func (a *Allocator) Next() (line, column uint32) {
	n := a.next.Add(1) - 1
	if n > math.MaxUint32 {
		panic("location: pseudo-location space exhausted")
	}
	return uint32(n / columnsPerLine), uint32(n % columnsPerLine)
}

// Allocated returns how many pseudo-locations have been handed out.
func (a *Allocator) Allocated() uint64 {
	return a.next.Load()
}

// Resolver returns the location of instructions within one module-processing
// session. Synthesized locations are kept in a side table keyed by
// instruction ID, so repeated queries agree without touching the IR.
type Resolver struct {
	alloc       *Allocator
	synthesized map[ir.InstID]ir.Location
	logger      *slog.Logger
}

// NewResolver creates a resolver drawing pseudo-locations from alloc. A nil
// alloc gets a private allocator.
func NewResolver(alloc *Allocator, logger *slog.Logger) *Resolver {
	if alloc == nil {
		alloc = NewAllocator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		alloc:       alloc,
		synthesized: make(map[ir.InstID]ir.Location),
		logger:      logger,
	}
}

// Resolve returns the compiler-provided location of inst, or a pseudo-location
// with an empty file and scope name when there is none.
func (r *Resolver) Resolve(inst *ir.Instruction) ir.Location {
	if inst.Loc != nil {
		return *inst.Loc
	}
	if loc, ok := r.synthesized[inst.ID]; ok {
		return loc
	}

	line, col := r.alloc.Next()
	loc := ir.Location{Line: line, Column: col}
	r.synthesized[inst.ID] = loc
	r.logger.Debug("synthesized pseudo-location", "inst", inst.ID, "loc", loc.String())
	return loc
}

// Synthesized returns how many pseudo-locations this resolver created.
func (r *Resolver) Synthesized() int {
	return len(r.synthesized)
}
