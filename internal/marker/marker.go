// Package marker finds checked virtual dispatches: calls to the marker
// intrinsic inserted by the instrumentation stage, the real call each marker
// annotates, and the class/method metadata the marker carries.
package marker

import (
	"log/slog"

	"github.com/715d/sdrange/pkg/ir"
)

const (
	// DefaultIntrinsic is the name of the checked-dispatch marker.
	DefaultIntrinsic = "llvm.sd.get.checked.vptr"

	// DefaultMaxHops bounds the consumer chain followed after the marker's
	// first consumer.
	DefaultMaxHops = 3
)

// Options configures Locate.
type Options struct {
	Intrinsic string // marker function name; DefaultIntrinsic if empty
	MaxHops   int    // DefaultMaxHops if zero
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Intrinsic == "" {
		o.Intrinsic = DefaultIntrinsic
	}
	if o.MaxHops <= 0 {
		o.MaxHops = DefaultMaxHops
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Site pairs a marker call with the call instruction it annotates.
type Site struct {
	Marker *ir.Instruction
	Call   *ir.Instruction
}

// Locate returns every marker use in m that resolves to a real call site, in
// program order. Markers whose consumer chain does not end in a call are
// reported as warnings and skipped; a module without the marker yields nothing.
func Locate(m *ir.Module, opts Options) []Site {
	opts = opts.withDefaults()

	if m.Function(opts.Intrinsic) == nil {
		opts.Logger.Warn("intrinsic not found", "module", m.Name, "intrinsic", opts.Intrinsic)
		return nil
	}

	var sites []Site
	for _, markerCall := range m.CallersOf(opts.Intrinsic) {
		call, ok := resolve(m, markerCall, opts.MaxHops)
		if !ok {
			attrs := []any{"module", m.Name, "marker", markerCall.ID}
			if blk := markerCall.Block; blk != nil {
				attrs = append(attrs, "function", blk.Parent.Name, "block", blk.Name)
			}
			opts.Logger.Warn("call site for intrinsic was not found", attrs...)
			continue
		}
		sites = append(sites, Site{Marker: markerCall, Call: call})
	}
	return sites
}

// resolve follows the first-consumer chain starting at the marker's result.
// The walk stops at an indirect call (the dispatch itself), at a value with no
// consumer, or after maxHops hops past the first consumer.
func resolve(m *ir.Module, markerCall *ir.Instruction, maxHops int) (*ir.Instruction, bool) {
	users := m.Users(markerCall.ID)
	if len(users) == 0 {
		return nil, false
	}

	cur := m.Inst(users[0])
	for range maxHops {
		if isIndirectCall(cur) {
			break
		}
		next := m.Users(cur.ID)
		if len(next) == 0 {
			break
		}
		cur = m.Inst(next[0])
	}

	if !cur.IsCall() {
		return nil, false
	}
	return cur, true
}

func isIndirectCall(inst *ir.Instruction) bool {
	if !inst.IsCall() {
		return false
	}
	_, direct := inst.CalledFunction()
	return !direct
}
