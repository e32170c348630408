package binder

import (
	"fmt"

	"github.com/vvuk/idlebind/ast"
)

// ScalarKind enumerates the fixed-width scalar types that cross the
// boundary by value.
type ScalarKind int

const (
	Bool ScalarKind = iota
	Int8
	UInt8
	Int16
	UInt16
	Int32
	UInt32
	Int64
	UInt64
	Float32
	Float64
)

// scalarNames maps IDL scalar keywords (after multi-word joining) to kinds.
var scalarNames = map[string]ScalarKind{
	"boolean":            Bool,
	"byte":               Int8,
	"octet":              UInt8,
	"short":              Int16,
	"unsigned short":     UInt16,
	"long":               Int32,
	"unsigned long":      UInt32,
	"long long":          Int64,
	"unsigned long long": UInt64,
	"float":              Float32,
	"double":             Float64,
}

// CType returns the C type spelled into the native artifact.
func (k ScalarKind) CType() string {
	switch k {
	case Bool:
		return "bool"
	case Int8:
		return "char"
	case UInt8:
		return "unsigned char"
	case Int16:
		return "short"
	case UInt16:
		return "unsigned short"
	case Int32:
		return "int"
	case UInt32:
		return "unsigned int"
	case Int64:
		return "long long"
	case UInt64:
		return "unsigned long long"
	case Float32:
		return "float"
	case Float64:
		return "double"
	}
	return "int"
}

// Width returns the byte width used to pick a staging-buffer heap view.
func (k ScalarKind) Width() int {
	switch k {
	case Bool, Int8, UInt8:
		return 1
	case Int16, UInt16:
		return 2
	case Int32, UInt32, Float32:
		return 4
	case Int64, UInt64, Float64:
		return 8
	}
	return 4
}

// HeapView returns the script-side typed view covering this scalar's width
// and signedness. 64-bit integers have no view; callers reject them first.
func (k ScalarKind) HeapView() string {
	switch k {
	case Bool, Int8:
		return "HEAP8"
	case UInt8:
		return "HEAPU8"
	case Int16:
		return "HEAP16"
	case UInt16:
		return "HEAPU16"
	case Int32:
		return "HEAP32"
	case UInt32:
		return "HEAPU32"
	case Float32:
		return "HEAPF32"
	case Float64:
		return "HEAPF64"
	}
	return "HEAP32"
}

// heapShift returns the right-shift turning a byte offset into a view index.
func (k ScalarKind) heapShift() int {
	switch k.Width() {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	default:
		return 3
	}
}

type variant int

const (
	varScalar variant = iota
	varString
	varSequence
	varNullable
	varInterface
	varValueType
	varCallback
	varVoid
)

// TypeDescriptor is the closed, canonical form of a resolved IDL type
// expression. Descriptors are memoized per Session: resolving the same
// expression twice yields the identical pointer, so descriptor identity
// doubles as structural equality.
type TypeDescriptor struct {
	variant variant
	scalar  ScalarKind      // valid when variant == varScalar
	base    string          // interface/value-type/callback name
	elem    *TypeDescriptor // sequence/nullable element

	ByRef   bool
	ByValue bool
	Const   bool
}

// typeKey is the structural memo key: variant tag + flags + base. The elem
// pointer is canonical (itself memoized), so pointer identity is structural
// identity and the composite key is directly hashable.
type typeKey struct {
	variant              variant
	scalar               ScalarKind
	base                 string
	elem                 *TypeDescriptor
	byRef, byValue, cnst bool
}

func (s *Session) intern(td TypeDescriptor) *TypeDescriptor {
	key := typeKey{
		variant: td.variant, scalar: td.scalar, base: td.base, elem: td.elem,
		byRef: td.ByRef, byValue: td.ByValue, cnst: td.Const,
	}
	if existing, ok := s.memo[key]; ok {
		return existing
	}
	stored := td
	s.memo[key] = &stored
	return &stored
}

// String renders the descriptor for error messages and inspect output.
func (td *TypeDescriptor) String() string {
	var base string
	switch td.variant {
	case varVoid:
		return "void"
	case varScalar:
		base = scalarName(td.scalar)
	case varString:
		base = "DOMString"
	case varSequence:
		base = td.elem.String() + "[]"
	case varNullable:
		base = td.elem.String() + "?"
	case varInterface:
		base = "interface " + td.base
	case varValueType:
		base = "value " + td.base
	case varCallback:
		base = "callback " + td.base
	}
	if td.Const {
		base = "const " + base
	}
	if td.ByRef {
		base = "ref " + base
	}
	if td.ByValue {
		base = "byvalue " + base
	}
	return base
}

func scalarName(k ScalarKind) string {
	for name, kind := range scalarNames {
		if kind == k {
			return name
		}
	}
	return "long"
}

// Resolve canonicalizes a type expression plus use-site modifiers into a
// memoized TypeDescriptor. Typedef indirection is followed recursively,
// merging modifiers; unions and unknown base names fail generation.
func (s *Session) Resolve(expr *ast.TypeExpr, mods ast.Modifiers) (*TypeDescriptor, error) {
	if expr == nil {
		return s.intern(TypeDescriptor{variant: varVoid}), nil
	}
	if expr.Union != nil {
		return nil, fmt.Errorf("union types are not supported across the boundary")
	}

	base, err := s.resolveBase(expr.Name, mods, 0)
	if err != nil {
		return nil, err
	}

	if expr.Sequence {
		if base.variant != varScalar {
			return nil, fmt.Errorf("sequence element %s does not resolve to a scalar type", expr.Name)
		}
		if base.scalar == Int64 || base.scalar == UInt64 {
			return nil, fmt.Errorf("sequence of 64-bit integers is not supported (no staging view)")
		}
		elem := s.intern(TypeDescriptor{variant: varScalar, scalar: base.scalar})
		base = s.intern(TypeDescriptor{
			variant: varSequence, elem: elem,
			ByRef: mods.ByRef, ByValue: mods.ByValue, Const: mods.Const,
		})
	}
	if expr.Nullable {
		base = s.intern(TypeDescriptor{
			variant: varNullable, elem: base,
			ByRef: base.ByRef, ByValue: base.ByValue, Const: base.Const,
		})
	}
	return base, nil
}

const maxTypedefDepth = 32

func (s *Session) resolveBase(name string, mods ast.Modifiers, depth int) (*TypeDescriptor, error) {
	if depth > maxTypedefDepth {
		return nil, fmt.Errorf("typedef cycle involving %q", name)
	}

	if kind, ok := scalarNames[name]; ok {
		return s.intern(TypeDescriptor{
			variant: varScalar, scalar: kind,
			ByRef: mods.ByRef, ByValue: mods.ByValue, Const: mods.Const,
		}), nil
	}
	if name == "DOMString" {
		return s.intern(TypeDescriptor{
			variant: varString,
			ByRef:   mods.ByRef, ByValue: mods.ByValue, Const: mods.Const,
		}), nil
	}
	if _, ok := s.interfaces[name]; ok {
		return s.intern(TypeDescriptor{
			variant: varInterface, base: name,
			ByRef: mods.ByRef, ByValue: mods.ByValue, Const: mods.Const,
		}), nil
	}
	if _, ok := s.valueTypes[name]; ok {
		return s.intern(TypeDescriptor{
			variant: varValueType, base: name,
			ByRef: mods.ByRef, ByValue: mods.ByValue, Const: mods.Const,
		}), nil
	}
	if _, ok := s.callbacks[name]; ok {
		return s.intern(TypeDescriptor{
			variant: varCallback, base: name,
			ByRef: mods.ByRef, ByValue: mods.ByValue, Const: mods.Const,
		}), nil
	}
	if td, ok := s.typedefs[name]; ok {
		merged := ast.Modifiers{
			ByRef:   mods.ByRef || td.Mods.ByRef,
			ByValue: mods.ByValue || td.Mods.ByValue,
			Const:   mods.Const || td.Mods.Const,
		}
		if td.Type.Union != nil {
			return nil, fmt.Errorf("union types are not supported across the boundary (typedef %s)", name)
		}
		inner, err := s.resolveBase(td.Type.Name, merged, depth+1)
		if err != nil {
			return nil, err
		}
		// A typedef may itself add sequence/nullable structure.
		if td.Type.Sequence {
			if inner.variant != varScalar {
				return nil, fmt.Errorf("sequence element %s does not resolve to a scalar type", td.Type.Name)
			}
			elem := s.intern(TypeDescriptor{variant: varScalar, scalar: inner.scalar})
			inner = s.intern(TypeDescriptor{
				variant: varSequence, elem: elem,
				ByRef: merged.ByRef, ByValue: merged.ByValue, Const: merged.Const,
			})
		}
		if td.Type.Nullable {
			inner = s.intern(TypeDescriptor{
				variant: varNullable, elem: inner,
				ByRef: inner.ByRef, ByValue: inner.ByValue, Const: inner.Const,
			})
		}
		return inner, nil
	}
	return nil, fmt.Errorf("unknown type %q", name)
}
