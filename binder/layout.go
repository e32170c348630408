package binder

import (
	"fmt"

	"github.com/vvuk/idlebind/ast"
)

// layoutSlot is one offset-table entry: either a value type's total size
// (Field == "") or one field's byte offset. Slot index is registration
// order; both artifacts are generated from this one list, so the numbering
// is identical on each side of the boundary.
type layoutSlot struct {
	ValueType string
	Field     string
}

// registerLayout walks value types in declaration order and claims one slot
// per type (its size) plus one per scalar field, inherited fields
// most-derived-first. Field validation has already run.
func (s *Session) registerLayout() error {
	for _, vt := range s.module.ValueTypes() {
		s.addSlot(vt.Name, "")
		fields, err := s.allFields(vt)
		if err != nil {
			return err
		}
		for _, f := range fields {
			s.addSlot(vt.Name, f.Name)
		}
	}
	return nil
}

func (s *Session) addSlot(vtName, field string) {
	key := slotKey(vtName, field)
	if _, exists := s.slotIndex[key]; exists {
		return
	}
	s.slotIndex[key] = len(s.slots)
	s.slots = append(s.slots, layoutSlot{ValueType: vtName, Field: field})
}

func slotKey(vtName, field string) string {
	if field == "" {
		return vtName
	}
	return vtName + "." + field
}

// slot returns the registered slot index for a size or field-offset query.
func (s *Session) slot(vtName, field string) int {
	return s.slotIndex[slotKey(vtName, field)]
}

// allFields returns a value type's fields with inherited fields walked
// most-derived-first: the type's own fields, then its parent's, and so on
// up the chain.
func (s *Session) allFields(vt *ast.ValueType) ([]*ast.Attribute, error) {
	var fields []*ast.Attribute
	seenField := make(map[string]bool)
	seenType := map[string]bool{vt.Name: true}
	for cur := vt; cur != nil; {
		for _, f := range cur.Fields {
			if seenField[f.Name] {
				return nil, fmt.Errorf("value type %s: field %s shadows an inherited field", vt.Name, f.Name)
			}
			seenField[f.Name] = true
			fields = append(fields, f)
		}
		if cur.Parent == "" {
			break
		}
		parent, ok := s.valueTypes[cur.Parent]
		if !ok {
			return nil, fmt.Errorf("value type %s: parent %s is not a value type", cur.Name, cur.Parent)
		}
		if seenType[parent.Name] {
			return nil, fmt.Errorf("value type %s: inheritance cycle", vt.Name)
		}
		seenType[parent.Name] = true
		cur = parent
	}
	return fields, nil
}

// fieldKind returns the resolved scalar kind of a validated value field.
func (s *Session) fieldKind(f *ast.Attribute) ScalarKind {
	td, err := s.Resolve(f.Type, f.Mods)
	if err != nil || td.variant != varScalar {
		// Validation rejected non-scalar fields before emission.
		panic(fmt.Sprintf("field %s not validated: %v", f.Name, err))
	}
	return td.scalar
}

// layoutQueryName is the mangled native entry point answering all
// registered layout queries in one call.
func (s *Session) layoutQueryName() string {
	return s.opts.Prefix + "__GetLayout___0"
}

// emitNativeLayout writes the native query entry: a static array of
// compile-time sizeof/offsetof facts in slot order.
func (s *Session) emitNativeLayout(w *srcWriter) {
	if len(s.slots) == 0 {
		return
	}
	w.Linef("int* %s() {", s.layoutQueryName())
	w.Indent()
	w.Line("static int layout[] = {")
	w.Indent()
	for _, slot := range s.slots {
		if slot.Field == "" {
			w.Linef("(int)sizeof(%s),", slot.ValueType)
		} else {
			w.Linef("(int)offsetof(%s, %s),", slot.ValueType, slot.Field)
		}
	}
	w.Dedent()
	w.Line("};")
	w.Line("return layout;")
	w.Dedent()
	w.Line("}")
	w.Line("")
}

// emitScriptLayout writes the startup initializer copying the native
// layout array into the slot-indexed LAYOUT lookup table.
func (s *Session) emitScriptLayout(w *srcWriter) {
	if len(s.slots) == 0 {
		return
	}
	w.Line("var LAYOUT = [];")
	w.Line("function __initLayout__() {")
	w.Indent()
	w.Linef("var p = _%s();", s.layoutQueryName())
	w.Linef("for (var i = 0; i < %d; i++) LAYOUT.push(HEAP32[(p >> 2) + i]);", len(s.slots))
	w.Dedent()
	w.Line("}")
	w.Line("__initLayout__();")
	w.Line("")
}
