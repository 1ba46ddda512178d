// Package cha provides the class-hierarchy oracle consulted when expanding a
// vtable into the set of its subclasses.
package cha

import (
	"fmt"
	"os"
	"slices"

	yaml "gopkg.in/yaml.v3"
)

// Oracle reports direct subclass relationships between vtable symbols.
type Oracle interface {
	// Children returns the vtable symbols of the direct subclasses of vtable.
	Children(vtable string) []string
}

// Static is an Oracle backed by an explicit parent -> children table.
type Static map[string][]string

// Children implements Oracle.
func (s Static) Children(vtable string) []string {
	return s[vtable]
}

// Add records child as a direct subclass of parent. Duplicate edges are
// ignored.
func (s Static) Add(parent string, children ...string) {
	for _, child := range children {
		if !slices.Contains(s[parent], child) {
			s[parent] = append(s[parent], child)
		}
	}
}

// File is the on-disk form of a Static oracle:
//
//	classes:
//	  _ZTV5Shape: [_ZTV6Circle, _ZTV6Square]
//	  _ZTV6Circle: [_ZTV4Ring]
type File struct {
	Classes map[string][]string `yaml:"classes"`
}

// Parse decodes a YAML hierarchy description.
func Parse(data []byte) (Static, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding class hierarchy: %w", err)
	}
	s := make(Static, len(f.Classes))
	for parent, children := range f.Classes {
		s.Add(parent, children...)
	}
	return s, nil
}

// LoadFile reads a YAML hierarchy description from path.
func LoadFile(path string) (Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading class hierarchy: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
