// Package sdrange extracts checked virtual dispatch sites, auditable static
// call sites and the class hierarchies they depend on from a compiled module,
// and stores them as accumulating snapshot artifacts.
package sdrange

import (
	"fmt"
	"strings"

	"github.com/715d/sdrange/pkg/ir"
	"github.com/715d/sdrange/pkg/snapshot"
)

// Working file names of the produced artifacts.
const (
	CallSitesFile       = "_SD_CallSites.txt"
	StaticCallSitesFile = "_SD_CallSitesStatic.txt"
	ClassHierarchyFile  = "_SD_ClassHierarchy.txt"
)

// CallSite is a checked virtual dispatch site.
type CallSite struct {
	Location      ir.Location `json:"location"`
	DeclaredClass string      `json:"declared_class"`
	PreciseClass  string      `json:"precise_class"`
	Method        string      `json:"method"`
}

// String formats the site as an artifact line. Fields are not escaped.
func (c CallSite) String() string {
	return fmt.Sprintf("%s,%s,%s,%s", c.Location, c.DeclaredClass, c.PreciseClass, c.Method)
}

// StaticCallSite is a direct call to a named function.
type StaticCallSite struct {
	Location ir.Location `json:"location"`
	Callee   string      `json:"callee"`
}

// String formats the site as an artifact line.
func (c StaticCallSite) String() string {
	return fmt.Sprintf("%s,%s", c.Location, c.Callee)
}

// HierarchyLine formats one class hierarchy as an artifact line: the root
// followed by every member of its set.
func HierarchyLine(root string, members []string) string {
	return root + "," + strings.Join(members, ",")
}

// Result summarizes one module-processing session.
type Result struct {
	Module          string              `json:"module"`
	CallSites       []CallSite          `json:"call_sites"`
	StaticCallSites []StaticCallSite    `json:"static_call_sites"`
	Hierarchies     map[string][]string `json:"hierarchies"`
	ClassNames      map[string]string   `json:"class_names"`
	DistinctCallees int                 `json:"distinct_callees"`
	PseudoLocations int                 `json:"pseudo_locations"`
	Saved           []snapshot.Saved    `json:"saved,omitempty"`
}
