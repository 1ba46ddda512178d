// Package hierarchy expands a root vtable into the set of vtables of every
// subclass reachable through the class-hierarchy oracle.
package hierarchy

import (
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/715d/sdrange/pkg/cha"
	"github.com/715d/sdrange/pkg/demangle"
)

// Builder computes subclass sets, memoized per root for the lifetime of one
// module-processing session. It is not safe for concurrent use.
type Builder struct {
	oracle    cha.Oracle
	demangler demangle.Demangler
	logger    *slog.Logger

	// hierarchies maps a root vtable to its sorted subclass set (root included).
	hierarchies map[string][]string
	// rejected holds roots whose own class name could not be recovered.
	rejected map[string]struct{}
	// classNames maps demangled class names to the vtable that produced them.
	classNames map[string]string
}

// New creates a Builder.
func New(oracle cha.Oracle, d demangle.Demangler, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		oracle:      oracle,
		demangler:   d,
		logger:      logger,
		hierarchies: make(map[string][]string),
		rejected:    make(map[string]struct{}),
		classNames:  make(map[string]string),
	}
}

// HierarchyFor returns the vtables of root and of every subclass reachable
// from it, sorted. ok is false when root itself is not a class (demangling
// was rejected); no hierarchy is recorded then. The oracle is consulted at
// most once per root. The only error is demangle.ErrUnknownFormat.
func (b *Builder) HierarchyFor(root string) (set []string, ok bool, err error) {
	if cached, found := b.hierarchies[root]; found {
		return cached, true, nil
	}
	if _, found := b.rejected[root]; found {
		return nil, false, nil
	}

	rootClass, ok, err := demangle.ClassName(b.demangler, root, b.logger)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		b.logger.Debug("emitting hierarchy failed", "root", root)
		b.rejected[root] = struct{}{}
		return nil, false, nil
	}

	members := map[string]struct{}{root: {}}
	b.classNames[rootClass] = root
	if err := b.visit(root, members); err != nil {
		return nil, false, err
	}

	set = slices.Sorted(maps.Keys(members))
	b.hierarchies[root] = set
	b.logger.Debug("emitting hierarchy",
		"class", rootClass, "root", root, "members", strings.Join(set, ", "))
	return set, true, nil
}

// visit adds every accepted descendant of parent to members. A child whose
// demangling is rejected is skipped together with its subtree. members doubles
// as the visited set, so cyclic oracles terminate.
func (b *Builder) visit(parent string, members map[string]struct{}) error {
	for _, child := range b.oracle.Children(parent) {
		if _, seen := members[child]; seen {
			continue
		}
		className, ok, err := demangle.ClassName(b.demangler, child, b.logger)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		members[child] = struct{}{}
		b.classNames[className] = child
		if err := b.visit(child, members); err != nil {
			return err
		}
	}
	return nil
}

// Hierarchies returns every recorded hierarchy keyed by root vtable. The
// returned map must not be modified.
func (b *Builder) Hierarchies() map[string][]string {
	return b.hierarchies
}

// ClassNames returns the demangled class name -> vtable mapping gathered so
// far. Later entries overwrite earlier ones with the same class name.
func (b *Builder) ClassNames() map[string]string {
	return b.classNames
}
