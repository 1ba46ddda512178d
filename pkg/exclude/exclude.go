// Package exclude decides which directly called functions are not worth
// recording as static call sites.
package exclude

import (
	"fmt"
	"regexp"
	"strings"
)

// Default exclusion rules: reserved "__" names, LLVM intrinsics and the
// default operator new (_Znwm).
var (
	DefaultPrefixes = []string{"__", "llvm."}
	DefaultNames    = []string{"_Znwm"}
)

// validName matches names a rule may carry; anything with whitespace or a
// comma could never appear in the comma-delimited artifacts.
var validName = regexp.MustCompile(`^[^\s,]+$`)

// Filter holds name-prefix and exact-name exclusion rules.
type Filter struct {
	prefixes []string
	names    map[string]struct{}
}

// NewFilter creates a filter from explicit rules.
func NewFilter(prefixes, names []string) (*Filter, error) {
	f := &Filter{names: make(map[string]struct{}, len(names))}
	for _, p := range prefixes {
		if !validName.MatchString(p) {
			return nil, fmt.Errorf("invalid exclusion prefix %q", p)
		}
		f.prefixes = append(f.prefixes, p)
	}
	for _, n := range names {
		if !validName.MatchString(n) {
			return nil, fmt.Errorf("invalid excluded name %q", n)
		}
		f.names[n] = struct{}{}
	}
	return f, nil
}

// Default returns the filter with the default rules.
func Default() *Filter {
	f, err := NewFilter(DefaultPrefixes, DefaultNames)
	if err != nil {
		panic(err)
	}
	return f
}

// Excluded reports whether calls to name must not be recorded.
func (f *Filter) Excluded(name string) bool {
	if _, ok := f.names[name]; ok {
		return true
	}
	for _, p := range f.prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
