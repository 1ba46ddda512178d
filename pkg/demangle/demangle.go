// Package demangle turns Itanium vtable symbols into class names.
package demangle

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ianlancetaylor/demangle"
	"github.com/puzpuzpuz/xsync/v4"
)

const (
	// VtablePrefix starts the demangled form of an ordinary vtable symbol.
	VtablePrefix = "vtable for "

	// ConstructionVtablePrefix starts the demangled form of a construction
	// vtable ("construction vtable for B-in-D"), a sub-object table of a larger
	// type rather than a class of its own.
	ConstructionVtablePrefix = "construction vtable for "

	vtableSymbolPrefix             = "_ZTV"
	constructionVtableSymbolPrefix = "_ZTC"
)

// ErrUnknownFormat is returned when a symbol demangles to something that is
// neither a vtable nor a construction vtable. The input violates the Itanium
// naming convention the pipeline relies on, so callers must not continue.
var ErrUnknownFormat = errors.New("demangle: unknown vtable format")

// Demangler converts a mangled symbol to its human-readable form.
type Demangler interface {
	Demangle(symbol string) (string, error)
}

// IsVtableName reports whether symbol has the shape of a vtable symbol.
func IsVtableName(symbol string) bool {
	return strings.HasPrefix(symbol, vtableSymbolPrefix) ||
		strings.HasPrefix(symbol, constructionVtableSymbolPrefix)
}

// ClassName demangles a vtable symbol and extracts its class name.
//
// It returns ok=false when the symbol does not denote a class on its own:
// either the demangler failed (logged as a warning) or the symbol is a
// construction vtable (not logged). Any other output shape yields
// ErrUnknownFormat.
func ClassName(d Demangler, symbol string, logger *slog.Logger) (string, bool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	demangled, err := d.Demangle(symbol)
	if err != nil {
		logger.Warn("demangle failed", "symbol", symbol, "err", err)
		return "", false, nil
	}

	if name, ok := strings.CutPrefix(demangled, VtablePrefix); ok {
		return name, true, nil
	}
	if strings.HasPrefix(demangled, ConstructionVtablePrefix) {
		return "", false, nil
	}

	logger.Error("demangle with unknown format", "symbol", symbol, "demangled", demangled)
	return "", false, fmt.Errorf("%w: %s demangles to %q", ErrUnknownFormat, symbol, demangled)
}

type entry struct {
	name string
	err  error
}

// Itanium is a Demangler backed by github.com/ianlancetaylor/demangle. Results
// are memoized; an Itanium value is safe for concurrent use and is meant to be
// shared by every module processed in one run.
type Itanium struct {
	cache *xsync.Map[string, entry]
}

// NewItanium creates an empty memoizing demangler.
func NewItanium() *Itanium {
	return &Itanium{cache: xsync.NewMap[string, entry]()}
}

// Demangle implements Demangler.
func (d *Itanium) Demangle(symbol string) (string, error) {
	if e, ok := d.cache.Load(symbol); ok {
		return e.name, e.err
	}
	name, err := demangle.ToString(symbol)
	if err != nil {
		err = fmt.Errorf("demangle %s: %w", symbol, err)
	}
	d.cache.Store(symbol, entry{name: name, err: err})
	return name, err
}

// Func adapts a plain function to the Demangler interface.
type Func func(symbol string) (string, error)

// Demangle implements Demangler.
func (f Func) Demangle(symbol string) (string, error) {
	return f(symbol)
}
