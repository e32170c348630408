package binder

import (
	"fmt"
	"strings"

	"github.com/vvuk/idlebind/ast"
)

// Mangled entry point names. The scheme is prefix + interface + member +
// arity, with distinct get_/set_ mangling for attributes so a method named
// like an accessor cannot collide with it.
func (s *Session) entryName(iface *ast.Interface, member string, arity int) string {
	return fmt.Sprintf("%s%s_%s_%d", s.opts.Prefix, iface.Name, member, arity)
}

func (s *Session) destructorName(iface *ast.Interface) string {
	return fmt.Sprintf("%s%s___destroy___0", s.opts.Prefix, iface.Name)
}

func (s *Session) getterName(iface *ast.Interface, attr *ast.Attribute) string {
	return fmt.Sprintf("%s%s_get_%s_0", s.opts.Prefix, iface.Name, attr.Name)
}

func (s *Session) setterName(iface *ast.Interface, attr *ast.Attribute) string {
	return fmt.Sprintf("%s%s_set_%s_1", s.opts.Prefix, iface.Name, attr.Name)
}

// selfParam returns the C++ self parameter for an interface per its
// ownership mode: a raw pointer or a borrowed ownership cell.
func (s *Session) selfParam(iface *ast.Interface) string {
	if iface.Shared {
		return fmt.Sprintf("std::shared_ptr<%s>* self", iface.NativeName())
	}
	return fmt.Sprintf("%s* self", iface.NativeName())
}

// selfUse returns the expression dereferencing self for a member access.
func selfUse(iface *ast.Interface) string {
	if iface.Shared {
		return "(*self)"
	}
	return "self"
}

// emitNative produces the native-side translation unit. It is meant to be
// included at the end of the translation unit that defines the bound
// classes, mirroring how the paired script artifact is loaded after the
// runtime.
func (s *Session) emitNative() (string, error) {
	w := newWriter("  ")
	w.Linef("// Generated by idlebind from %s. DO NOT EDIT.", s.module.SourceFile)
	w.Line("// Include this file at the end of the translation unit defining the bound classes.")
	w.Line("")
	w.Line("#include <cstddef>")
	if s.usesShared() {
		w.Line("#include <memory>")
	}
	w.Line("")

	for _, cb := range s.module.Callbacks() {
		if err := s.emitNativeCallback(w, cb); err != nil {
			return "", err
		}
	}

	w.Line("extern \"C\" {")
	w.Line("")

	s.emitNativeLayout(w)

	for _, iface := range s.module.Interfaces() {
		if err := s.emitNativeInterface(w, iface); err != nil {
			return "", err
		}
	}

	w.Line("} // extern \"C\"")
	return w.String(), nil
}

func (s *Session) usesShared() bool {
	for _, iface := range s.module.Interfaces() {
		if iface.Shared {
			return true
		}
	}
	return false
}

func (s *Session) emitNativeInterface(w *srcWriter, iface *ast.Interface) error {
	w.Linef("// %s", iface.Name)
	w.Line("")

	plan, err := s.planConstructors(iface)
	if err != nil {
		return err
	}
	for _, arity := range plan.Arities {
		if err := s.emitNativeConstructor(w, iface, plan.ByArity[arity]); err != nil {
			return err
		}
	}

	if !iface.NonDestructible {
		w.Linef("void %s(%s) {", s.destructorName(iface), s.selfParam(iface))
		w.Indent()
		// Releases the ownership cell or deletes the instance.
		w.Line("delete self;")
		w.Dedent()
		w.Line("}")
		w.Line("")
	}

	groups := groupByName(iface.Operations)
	for _, name := range groups.names {
		mplan, err := planOverloads(s, iface.Name, name, groups.byName[name])
		if err != nil {
			return err
		}
		for _, arity := range mplan.Arities {
			if err := s.emitNativeMethod(w, iface, mplan, mplan.ByArity[arity]); err != nil {
				return err
			}
		}
	}

	for _, attr := range iface.Attributes {
		if err := s.emitNativeAttribute(w, iface, attr); err != nil {
			return err
		}
	}
	return nil
}

// nativeParams builds the C++ parameter declarations and the forwarded
// argument expressions for one operation.
func (s *Session) nativeParams(iface *ast.Interface, op *ast.Operation, withSelf bool) (decl []string, fwd []string, err error) {
	if withSelf {
		decl = append(decl, s.selfParam(iface))
	}
	for i, arg := range op.Args {
		st, serr := s.strategyForExpr(arg.Type, arg.Mods)
		if serr != nil {
			return nil, nil, fmt.Errorf("parameter %s: %w", arg.Name, serr)
		}
		name := arg.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		decl = append(decl, fmt.Sprintf("%s %s", st.NativeParam(), name))
		fwd = append(fwd, st.NativeArgUse(name))
	}
	return decl, fwd, nil
}

func (s *Session) emitNativeConstructor(w *srcWriter, iface *ast.Interface, ctor *ast.Operation) error {
	decl, fwd, err := s.nativeParams(iface, ctor, false)
	if err != nil {
		return fmt.Errorf("interface %s, constructor: %w", iface.Name, err)
	}
	cls := iface.NativeName()
	name := s.entryName(iface, iface.Name, len(ctor.Args))
	newExpr := fmt.Sprintf("new %s(%s)", cls, strings.Join(fwd, ", "))
	if iface.Shared {
		w.Linef("std::shared_ptr<%s>* %s(%s) {", cls, name, strings.Join(decl, ", "))
		w.Indent()
		// Ownership cells are heap-boxed at construction.
		w.Linef("return new std::shared_ptr<%s>(%s);", cls, newExpr)
	} else {
		w.Linef("%s* %s(%s) {", cls, name, strings.Join(decl, ", "))
		w.Indent()
		w.Linef("return %s;", newExpr)
	}
	w.Dedent()
	w.Line("}")
	w.Line("")
	return nil
}

func (s *Session) emitNativeMethod(w *srcWriter, iface *ast.Interface, plan *overloadPlan, op *ast.Operation) error {
	retSt, err := strategyFor(s, plan.Ret)
	if err != nil {
		return fmt.Errorf("interface %s, operation %s: %w", iface.Name, op.Name, err)
	}
	decl, fwd, err := s.nativeParams(iface, op, !op.Static)
	if err != nil {
		return fmt.Errorf("interface %s, operation %s: %w", iface.Name, op.Name, err)
	}

	var call string
	if op.Static {
		call = fmt.Sprintf("%s::%s(%s)", iface.NativeName(), op.Name, strings.Join(fwd, ", "))
	} else {
		call = fmt.Sprintf("%s->%s(%s)", selfUse(iface), op.Name, strings.Join(fwd, ", "))
	}

	name := s.entryName(iface, op.Name, len(op.Args))
	w.Linef("%s %s(%s) {", retSt.NativeReturn(), name, strings.Join(decl, ", "))
	w.Indent()
	retSt.NativeReturnStmt(w, call)
	w.Dedent()
	w.Line("}")
	w.Line("")
	return nil
}

func (s *Session) emitNativeAttribute(w *srcWriter, iface *ast.Interface, attr *ast.Attribute) error {
	st, err := s.strategyForExpr(attr.Type, attr.Mods)
	if err != nil {
		return fmt.Errorf("interface %s, attribute %s: %w", iface.Name, attr.Name, err)
	}

	var access string
	var selfDecl string
	if attr.Static {
		access = fmt.Sprintf("%s::%s", iface.NativeName(), attr.Name)
	} else {
		access = fmt.Sprintf("%s->%s", selfUse(iface), attr.Name)
		selfDecl = s.selfParam(iface)
	}

	w.Linef("%s %s(%s) {", st.NativeReturn(), s.getterName(iface, attr), selfDecl)
	w.Indent()
	st.NativeReturnStmt(w, access)
	w.Dedent()
	w.Line("}")
	w.Line("")

	if !attr.ReadOnly {
		setDecl := fmt.Sprintf("%s value", st.NativeParam())
		if selfDecl != "" {
			setDecl = selfDecl + ", " + setDecl
		}
		w.Linef("void %s(%s) {", s.setterName(iface, attr), setDecl)
		w.Indent()
		w.Linef("%s = %s;", access, st.NativeArgUse("value"))
		w.Dedent()
		w.Line("}")
		w.Line("")
	}
	return nil
}
