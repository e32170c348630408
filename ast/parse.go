package ast

import (
	"fmt"
	"os"
)

// Parser is implemented by the parser package; declared here so the front
// door does not import it (the parser imports ast for the node types).
type Parser interface {
	Parse(name string, src []byte) (*Module, error)
}

// ParseFile reads an IDL description file and parses it into a Module.
func ParseFile(p Parser, filename string) (*Module, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	return p.Parse(filename, src)
}

// Interfaces returns the interface declarations in source order.
func (m *Module) Interfaces() []*Interface {
	var out []*Interface
	for _, d := range m.Decls {
		if i, ok := d.(*Interface); ok {
			out = append(out, i)
		}
	}
	return out
}

// ValueTypes returns the value-type declarations in source order.
func (m *Module) ValueTypes() []*ValueType {
	var out []*ValueType
	for _, d := range m.Decls {
		if v, ok := d.(*ValueType); ok {
			out = append(out, v)
		}
	}
	return out
}

// Callbacks returns the callback declarations in source order.
func (m *Module) Callbacks() []*Callback {
	var out []*Callback
	for _, d := range m.Decls {
		if c, ok := d.(*Callback); ok {
			out = append(out, c)
		}
	}
	return out
}
