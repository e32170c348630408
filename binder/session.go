package binder

import (
	"fmt"

	"github.com/vvuk/idlebind/ast"
)

// Session holds all state for one generation run: the declaration index,
// the type descriptor memo and the layout slot registry. Components receive
// it explicitly instead of sharing globals, so two runs never interfere.
type Session struct {
	opts   Options
	module *ast.Module

	interfaces map[string]*ast.Interface
	valueTypes map[string]*ast.ValueType
	callbacks  map[string]*ast.Callback
	typedefs   map[string]*ast.Typedef

	memo map[typeKey]*TypeDescriptor

	slots     []layoutSlot
	slotIndex map[string]int
}

// NewSession indexes the module's declarations. Duplicate names are caught
// by the parser, so indexing cannot fail; validation happens in Generate.
func NewSession(m *ast.Module, opts Options) *Session {
	s := &Session{
		opts:       opts,
		module:     m,
		interfaces: make(map[string]*ast.Interface),
		valueTypes: make(map[string]*ast.ValueType),
		callbacks:  make(map[string]*ast.Callback),
		typedefs:   make(map[string]*ast.Typedef),
		memo:       make(map[typeKey]*TypeDescriptor),
		slotIndex:  make(map[string]int),
	}
	for _, d := range m.Decls {
		switch decl := d.(type) {
		case *ast.Interface:
			s.interfaces[decl.Name] = decl
		case *ast.ValueType:
			s.valueTypes[decl.Name] = decl
		case *ast.Callback:
			s.callbacks[decl.Name] = decl
		case *ast.Typedef:
			s.typedefs[decl.Name] = decl
		}
	}
	return s
}

// validate checks every cross-declaration invariant that must hold before
// any emission: inheritance shape, ownership-mode consistency, member type
// resolvability and placement, overload group consistency and value-type
// field restrictions.
func (s *Session) validate() error {
	for _, iface := range s.module.Interfaces() {
		if err := s.validateInterface(iface); err != nil {
			return err
		}
	}
	for _, vt := range s.module.ValueTypes() {
		if err := s.validateValueType(vt); err != nil {
			return err
		}
	}
	for _, cb := range s.module.Callbacks() {
		if err := s.validateCallback(cb); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) validateInterface(iface *ast.Interface) error {
	if iface.Parent != "" {
		parent, ok := s.interfaces[iface.Parent]
		if !ok {
			if _, isValue := s.valueTypes[iface.Parent]; isValue {
				return fmt.Errorf("interface %s: parent %s is a value type", iface.Name, iface.Parent)
			}
			return fmt.Errorf("interface %s: unknown parent %s", iface.Name, iface.Parent)
		}
		if parent.Shared != iface.Shared {
			return fmt.Errorf("interface %s: ownership mode differs from parent %s (shared-ownership interfaces may only extend shared-ownership interfaces)",
				iface.Name, iface.Parent)
		}
	}

	for _, ctor := range iface.Constructors {
		for _, arg := range ctor.Args {
			if err := s.checkParam(arg); err != nil {
				return fmt.Errorf("interface %s, constructor: %w", iface.Name, err)
			}
		}
	}
	if _, err := s.planConstructors(iface); err != nil {
		return err
	}

	groups := groupByName(iface.Operations)
	for _, name := range groups.names {
		ops := groups.byName[name]
		if _, err := planOverloads(s, iface.Name, name, ops); err != nil {
			return err
		}
		for _, op := range ops {
			for _, arg := range op.Args {
				if err := s.checkParam(arg); err != nil {
					return fmt.Errorf("interface %s, operation %s: %w", iface.Name, op.Name, err)
				}
			}
			if err := s.checkReturn(op.Ret, op.RetMod); err != nil {
				return fmt.Errorf("interface %s, operation %s: %w", iface.Name, op.Name, err)
			}
		}
	}

	for _, attr := range iface.Attributes {
		td, err := s.Resolve(attr.Type, attr.Mods)
		if err != nil {
			return fmt.Errorf("interface %s, attribute %s: %w", iface.Name, attr.Name, err)
		}
		st, err := strategyFor(s, td)
		if err != nil {
			return fmt.Errorf("interface %s, attribute %s: %w", iface.Name, attr.Name, err)
		}
		if st.Class == ClassSequence {
			return fmt.Errorf("interface %s, attribute %s: sequence-typed attributes are not supported", iface.Name, attr.Name)
		}
		if st.Class == ClassCallback {
			return fmt.Errorf("interface %s, attribute %s: callback-typed attributes are not supported", iface.Name, attr.Name)
		}
	}
	return nil
}

func (s *Session) validateValueType(vt *ast.ValueType) error {
	if vt.Parent != "" {
		if _, ok := s.valueTypes[vt.Parent]; !ok {
			return fmt.Errorf("value type %s: parent %s is not a value type", vt.Name, vt.Parent)
		}
	}
	for _, f := range vt.Fields {
		if f.ReadOnly {
			return fmt.Errorf("value type %s: field %s cannot be read-only", vt.Name, f.Name)
		}
		if f.Static {
			return fmt.Errorf("value type %s: field %s cannot be static", vt.Name, f.Name)
		}
		td, err := s.Resolve(f.Type, f.Mods)
		if err != nil {
			return fmt.Errorf("value type %s, field %s: %w", vt.Name, f.Name, err)
		}
		if err := checkValueField(td); err != nil {
			return fmt.Errorf("value type %s, field %s: %w", vt.Name, f.Name, err)
		}
	}
	return nil
}

// checkValueField enforces the value-type field restrictions: scalar only,
// no 64-bit widths, no strings, no interfaces, no nested value types.
func checkValueField(td *TypeDescriptor) error {
	switch td.variant {
	case varScalar:
		if td.scalar == Int64 || td.scalar == UInt64 {
			return fmt.Errorf("64-bit integer fields are not supported")
		}
		return nil
	case varString:
		return fmt.Errorf("string fields are not supported")
	case varInterface:
		return fmt.Errorf("interface-typed field %s is not supported in a value type", td.base)
	case varValueType:
		return fmt.Errorf("nested value type %s is not supported", td.base)
	default:
		return fmt.Errorf("field type is not a scalar")
	}
}

func (s *Session) validateCallback(cb *ast.Callback) error {
	for _, p := range cb.Params {
		td, err := s.Resolve(p.Type, p.Mods)
		if err != nil {
			return fmt.Errorf("callback %s, parameter %s: %w", cb.Name, p.Name, err)
		}
		st, err := strategyFor(s, td)
		if err != nil {
			return fmt.Errorf("callback %s, parameter %s: %w", cb.Name, p.Name, err)
		}
		if st.Class == ClassCallback {
			return fmt.Errorf("callback %s, parameter %s: nested callback parameters are not supported", cb.Name, p.Name)
		}
		// No script-side transform exists to hand a sequence back to the
		// callback; a raw pointer without a length would leak through.
		if st.Class == ClassSequence {
			return fmt.Errorf("callback %s, parameter %s: sequence parameters are not supported", cb.Name, p.Name)
		}
	}
	td, err := s.Resolve(cb.Ret, ast.Modifiers{})
	if err != nil {
		return fmt.Errorf("callback %s, return type: %w", cb.Name, err)
	}
	st, err := strategyFor(s, td)
	if err != nil {
		return fmt.Errorf("callback %s, return type: %w", cb.Name, err)
	}
	switch st.Class {
	case ClassSequence, ClassCallback:
		return fmt.Errorf("callback %s: return type is not supported", cb.Name)
	}
	return nil
}

// checkParam resolves one parameter and rejects types unusable in argument
// position.
func (s *Session) checkParam(arg ast.Arg) error {
	td, err := s.Resolve(arg.Type, arg.Mods)
	if err != nil {
		return fmt.Errorf("parameter %s: %w", arg.Name, err)
	}
	if _, err := strategyFor(s, td); err != nil {
		return fmt.Errorf("parameter %s: %w", arg.Name, err)
	}
	return nil
}

// checkReturn resolves a return type and rejects types unusable in return
// position: sequences and callbacks never cross the boundary outward.
func (s *Session) checkReturn(expr *ast.TypeExpr, mods ast.Modifiers) error {
	td, err := s.Resolve(expr, mods)
	if err != nil {
		return fmt.Errorf("return type: %w", err)
	}
	st, err := strategyFor(s, td)
	if err != nil {
		return fmt.Errorf("return type: %w", err)
	}
	switch st.Class {
	case ClassSequence:
		return fmt.Errorf("return type: sequences cannot be returned across the boundary")
	case ClassCallback:
		return fmt.Errorf("return type: callbacks cannot be returned across the boundary")
	}
	return nil
}

// opGroups preserves first-appearance ordering of same-named operations.
type opGroups struct {
	names  []string
	byName map[string][]*ast.Operation
}

func groupByName(ops []*ast.Operation) opGroups {
	g := opGroups{byName: make(map[string][]*ast.Operation)}
	for _, op := range ops {
		if _, seen := g.byName[op.Name]; !seen {
			g.names = append(g.names, op.Name)
		}
		g.byName[op.Name] = append(g.byName[op.Name], op)
	}
	return g
}
