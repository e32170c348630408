package binder

import (
	"fmt"
)

// MarshalClass is the single marshaling variant selected for a descriptor.
type MarshalClass int

const (
	ClassVoid MarshalClass = iota
	ClassScalar
	ClassString
	ClassSequence
	ClassObject // raw-pointer interface
	ClassShared // shared-ownership interface
	ClassValue
	ClassCallback
)

func (c MarshalClass) String() string {
	switch c {
	case ClassVoid:
		return "void"
	case ClassScalar:
		return "scalar"
	case ClassString:
		return "string"
	case ClassSequence:
		return "sequence"
	case ClassObject:
		return "object"
	case ClassShared:
		return "shared"
	case ClassValue:
		return "value"
	case ClassCallback:
		return "callback"
	}
	return "unknown"
}

// Strategy carries the four boundary fragments for one resolved type: the
// native parameter and return types, and the script-side pre-call and
// post-call transforms. One strategy exists per marshaling variant; the
// classification is exhaustive over the TypeDescriptor variants.
type Strategy struct {
	Class    MarshalClass
	td       *TypeDescriptor
	inner    *TypeDescriptor // descriptor with nullability peeled off
	Nullable bool
	sess     *Session
}

// strategyFor classifies a descriptor into exactly one marshaling variant.
// Unsupported composites fail here so every caller reports them with the
// offending member's name attached.
func strategyFor(s *Session, td *TypeDescriptor) (*Strategy, error) {
	inner := td
	nullable := false
	if td.variant == varNullable {
		inner = td.elem
		nullable = true
		if inner.variant == varNullable {
			return nil, fmt.Errorf("doubly nullable types are not supported")
		}
	}

	st := &Strategy{td: td, inner: inner, Nullable: nullable, sess: s}
	switch inner.variant {
	case varVoid:
		st.Class = ClassVoid
	case varScalar:
		st.Class = ClassScalar
	case varString:
		st.Class = ClassString
	case varSequence:
		st.Class = ClassSequence
	case varInterface:
		if s.interfaces[inner.base].Shared {
			st.Class = ClassShared
		} else {
			st.Class = ClassObject
		}
	case varValueType:
		st.Class = ClassValue
	case varCallback:
		st.Class = ClassCallback
	default:
		return nil, fmt.Errorf("unclassifiable type %s", td)
	}
	// A null has no by-value representation: the staged argument copy and
	// the static return slot both require a present value.
	if nullable && st.Class == ClassValue {
		return nil, fmt.Errorf("nullable value types are not supported")
	}
	return st, nil
}

// NativeParam returns the C++ parameter type for this variant.
func (st *Strategy) NativeParam() string {
	switch st.Class {
	case ClassScalar:
		return st.inner.scalar.CType()
	case ClassString:
		if st.inner.Const {
			return "const char*"
		}
		return "char*"
	case ClassSequence:
		return st.inner.elem.scalar.CType() + "*"
	case ClassObject:
		return st.nativeClass() + "*"
	case ClassShared:
		return "std::shared_ptr<" + st.nativeClass() + ">*"
	case ClassValue:
		return st.nativeValue() + "*"
	case ClassCallback:
		return "int"
	}
	return "void*"
}

// NativeReturn returns the C++ return type for this variant. Sequences and
// callbacks are rejected in return position before emission.
func (st *Strategy) NativeReturn() string {
	switch st.Class {
	case ClassVoid:
		return "void"
	case ClassScalar:
		return st.inner.scalar.CType()
	case ClassString:
		if st.inner.Const {
			return "const char*"
		}
		return "char*"
	case ClassObject:
		return st.nativeClass() + "*"
	case ClassShared:
		return "std::shared_ptr<" + st.nativeClass() + ">*"
	case ClassValue:
		return st.nativeValue() + "*"
	}
	return "void"
}

// nativeClass is the qualified native name of the referenced interface.
func (st *Strategy) nativeClass() string {
	return st.sess.interfaces[st.inner.base].NativeName()
}

// nativeValue is the native name of the referenced value type.
func (st *Strategy) nativeValue() string {
	return st.inner.base
}

// NeedsStaging reports whether the script-side pre-call transform writes
// into the staging buffer (so the entry must reset it first).
func (st *Strategy) NeedsStaging() bool {
	switch st.Class {
	case ClassString, ClassSequence, ClassValue:
		return true
	}
	return false
}

// ensureHelper names the script helper staging one argument of this variant.
func (st *Strategy) ensureHelper() string {
	switch st.Class {
	case ClassString:
		return "ensureString"
	case ClassSequence:
		switch st.inner.elem.scalar {
		case Bool, Int8, UInt8:
			return "ensureI8"
		case Int16, UInt16:
			return "ensureI16"
		case Int32, UInt32:
			return "ensureI32"
		case Float32:
			return "ensureF32"
		default:
			return "ensureF64"
		}
	}
	return ""
}

// ScriptPreCall returns the statements transforming one script argument
// into its wire form, in place. An empty slice means the argument crosses
// untouched.
func (st *Strategy) ScriptPreCall(arg string) []string {
	switch st.Class {
	case ClassScalar:
		if st.inner.scalar == Bool {
			return []string{fmt.Sprintf("%s = %s ? 1 : 0;", arg, arg)}
		}
		return nil
	case ClassString, ClassSequence:
		return []string{fmt.Sprintf("%s = %s(%s);", arg, st.ensureHelper(), arg)}
	case ClassObject, ClassShared:
		// Unwrap the handle (raw pointer or boxed ownership cell).
		return []string{fmt.Sprintf("%s = %s ? %s.__ptr__ : 0;", arg, arg, arg)}
	case ClassValue:
		return []string{fmt.Sprintf("%s = %s.__toNative__();", arg, arg)}
	case ClassCallback:
		return []string{fmt.Sprintf("%s = %s__token(%s);", arg, st.inner.base, arg)}
	}
	return nil
}

// ScriptPostCall wraps a native result expression into its script form.
func (st *Strategy) ScriptPostCall(expr string) string {
	switch st.Class {
	case ClassVoid:
		return expr
	case ClassScalar:
		if st.inner.scalar == Bool {
			return "!!(" + expr + ")"
		}
		return expr
	case ClassString:
		return "UTF8ToString(" + expr + ")"
	case ClassObject:
		if st.inner.ByValue {
			// Boxed temporary: must not alias a cached wrapper.
			return st.inner.base + ".wrapNoCache(" + expr + ")"
		}
		return st.inner.base + ".wrap(" + expr + ")"
	case ClassShared:
		// wrap maps the null cell (handle 0) to an explicit null.
		return st.inner.base + ".wrap(" + expr + ")"
	case ClassValue:
		return st.inner.base + ".__fromNative__(" + expr + ")"
	}
	return expr
}

// NativeArgUse returns the C++ expression forwarding one glue parameter to
// the underlying native call.
func (st *Strategy) NativeArgUse(arg string) string {
	switch st.Class {
	case ClassShared:
		return "*" + arg // borrow the cell's shared_ptr
	case ClassValue:
		return "*" + arg // borrow the staged copy
	case ClassCallback:
		return st.inner.base + "(" + arg + ")"
	case ClassObject:
		if st.inner.ByRef {
			return "*" + arg
		}
		return arg
	}
	return arg
}

// NativeReturnStmt emits the glue body forwarding a native call's result
// back out, applying the per-variant boxing.
func (st *Strategy) NativeReturnStmt(w *srcWriter, call string) {
	switch st.Class {
	case ClassVoid:
		w.Linef("%s;", call)
	case ClassShared:
		cls := st.nativeClass()
		w.Linef("std::shared_ptr<%s> r = %s;", cls, call)
		w.Linef("return r ? new std::shared_ptr<%s>(r) : 0;", cls)
	case ClassValue:
		// Capacity-1 static staging slot; consumers copy the fields out
		// before issuing another call returning the same value type.
		vt := st.nativeValue()
		w.Linef("static %s staged;", vt)
		w.Linef("staged = %s;", call)
		w.Line("return &staged;")
	case ClassObject:
		if st.inner.ByValue {
			w.Linef("return new %s(%s);", st.nativeClass(), call)
		} else if st.inner.ByRef {
			w.Linef("return &%s;", call)
		} else {
			w.Linef("return %s;", call)
		}
	case ClassString:
		if st.inner.Const {
			w.Linef("return %s;", call)
		} else {
			w.Linef("return (char*)%s;", call)
		}
	default:
		w.Linef("return %s;", call)
	}
}
