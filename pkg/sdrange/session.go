package sdrange

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/715d/sdrange/internal/hierarchy"
	"github.com/715d/sdrange/internal/location"
	"github.com/715d/sdrange/internal/marker"
	"github.com/715d/sdrange/pkg/cha"
	"github.com/715d/sdrange/pkg/demangle"
	"github.com/715d/sdrange/pkg/exclude"
	"github.com/715d/sdrange/pkg/ir"
	"github.com/715d/sdrange/pkg/snapshot"
)

// Options configures a Session. Zero values select the defaults.
type Options struct {
	Intrinsic string              // checked-dispatch marker name
	MaxHops   int                 // consumer-chain depth after the first consumer; marker.DefaultMaxHops if zero
	Exclude   *exclude.Filter     // static call exclusions
	Demangler demangle.Demangler  // vtable demangler
	Allocator *location.Allocator // pseudo-location source; share it across sessions of a process
	Logger    *slog.Logger
}

// Session is one module-processing pass. It is not safe for concurrent use;
// process different modules with different sessions.
type Session struct {
	module    *ir.Module
	opts      Options
	logger    *slog.Logger
	locations *location.Resolver
	hierarchy *hierarchy.Builder
	registry  *Registry
}

// NewSession prepares a pass over m using oracle for subclass queries.
func NewSession(m *ir.Module, oracle cha.Oracle, opts Options) *Session {
	if opts.Intrinsic == "" {
		opts.Intrinsic = marker.DefaultIntrinsic
	}
	if opts.Exclude == nil {
		opts.Exclude = exclude.Default()
	}
	if opts.Demangler == nil {
		opts.Demangler = demangle.NewItanium()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if oracle == nil {
		oracle = cha.Static{}
	}
	logger := opts.Logger.With("module", m.Name)
	return &Session{
		module:    m,
		opts:      opts,
		logger:    logger,
		locations: location.NewResolver(opts.Allocator, logger),
		hierarchy: hierarchy.New(oracle, opts.Demangler, logger),
		registry:  NewRegistry(),
	}
}

// Run discovers virtual and static call sites and, when w is not nil,
// persists the artifacts.
func (s *Session) Run(w *snapshot.Writer) (*Result, error) {
	s.logger.Info("started building return ranges")

	if err := s.LocateCallSites(); err != nil {
		return nil, err
	}
	s.LocateStaticCallSites()

	result := s.Result()
	if w != nil {
		saved, err := w.Persist(s.module.Name, s.Artifacts()...)
		result.Saved = saved
		if err != nil {
			return result, fmt.Errorf("storing artifacts: %w", err)
		}
	}

	s.logger.Info("finished building return ranges",
		"call_sites", len(result.CallSites),
		"static_call_sites", len(result.StaticCallSites),
		"distinct_callees", result.DistinctCallees,
		"hierarchies", len(result.Hierarchies),
		"pseudo_locations", result.PseudoLocations)
	return result, nil
}

// LocateCallSites records every checked virtual dispatch and builds the
// hierarchy of each declared class. Malformed marker metadata and unknown
// demangling output abort the pass.
func (s *Session) LocateCallSites() error {
	sites := marker.Locate(s.module, marker.Options{
		Intrinsic: s.opts.Intrinsic,
		MaxHops:   s.opts.MaxHops,
		Logger:    s.logger,
	})
	for _, site := range sites {
		triple, err := marker.DecodeMetadata(site.Marker)
		if err != nil {
			return fmt.Errorf("decoding marker metadata: %w", err)
		}

		loc := s.locations.Resolve(site.Call)
		s.registry.AddCallSite(CallSite{
			Location:      loc,
			DeclaredClass: triple.DeclaredClass,
			PreciseClass:  triple.PreciseClass,
			Method:        triple.Method,
		})
		s.logger.Debug("call site",
			"loc", loc.String(),
			"class", triple.DeclaredClass,
			"precise", triple.PreciseClass,
			"method", triple.Method)

		if _, _, err := s.hierarchy.HierarchyFor(triple.DeclaredClass); err != nil {
			return fmt.Errorf("building hierarchy of %s: %w", triple.DeclaredClass, err)
		}
	}
	return nil
}

// LocateStaticCallSites records every direct call to a named function that
// the exclusion filter lets through. Calls to the marker are never recorded.
func (s *Session) LocateStaticCallSites() {
	for _, fn := range s.module.Funcs {
		for _, blk := range fn.Blocks {
			for _, inst := range blk.Insts {
				callee, ok := inst.CalledFunction()
				if !ok || callee == s.opts.Intrinsic || s.opts.Exclude.Excluded(callee) {
					continue
				}
				loc := s.locations.Resolve(inst)
				s.registry.AddStaticCallSite(StaticCallSite{Location: loc, Callee: callee})
				s.logger.Debug("static call site",
					"function", fn.Name, "loc", loc.String(), "callee", callee)
			}
		}
	}
}

// Registry exposes the call sites gathered so far.
func (s *Session) Registry() *Registry {
	return s.registry
}

// Hierarchies returns the hierarchies built so far keyed by root vtable.
func (s *Session) Hierarchies() map[string][]string {
	return s.hierarchy.Hierarchies()
}

// Artifacts renders the three artifact streams.
func (s *Session) Artifacts() []snapshot.Artifact {
	hierarchies := s.hierarchy.Hierarchies()
	lines := make([]string, 0, len(hierarchies))
	for _, root := range slices.Sorted(maps.Keys(hierarchies)) {
		lines = append(lines, HierarchyLine(root, hierarchies[root]))
	}
	return []snapshot.Artifact{
		{Name: CallSitesFile, Lines: s.registry.Lines()},
		{Name: StaticCallSitesFile, Lines: s.registry.StaticLines()},
		{Name: ClassHierarchyFile, Lines: lines},
	}
}

// Result snapshots the current state of the session.
func (s *Session) Result() *Result {
	return &Result{
		Module:          s.module.Name,
		CallSites:       s.registry.CallSites(),
		StaticCallSites: s.registry.StaticCallSites(),
		Hierarchies:     maps.Clone(s.hierarchy.Hierarchies()),
		ClassNames:      maps.Clone(s.hierarchy.ClassNames()),
		DistinctCallees: s.registry.DistinctCallees(),
		PseudoLocations: s.locations.Synthesized(),
	}
}
