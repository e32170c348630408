package binder

import (
	"fmt"
	"strings"

	"github.com/vvuk/idlebind/ast"
)

// shimName is the mangled symbol shared by the script-side invocation shim
// and its native extern declaration.
func (s *Session) shimName(cb *ast.Callback) string {
	return fmt.Sprintf("%s%s_invoke_%d", s.opts.Prefix, cb.Name, len(cb.Params))
}

// emitScriptCallback writes one callback type's token registry and its
// invocation shim.
//
// Tokens are minted lazily from 1, identity-deduplicated by a hidden
// property on the function object; the table maps tokens back to live
// functions. Entries are never pruned, so a registry fed many one-shot
// functions grows for the registry's lifetime.
func (s *Session) emitScriptCallback(w *srcWriter, cb *ast.Callback) error {
	w.Linef("var %s__table = [null];", cb.Name)
	w.Linef("function %s__token(fn) {", cb.Name)
	w.Indent()
	w.Linef("var t = fn.__%s_token__;", cb.Name)
	w.Line("if (t === undefined) {")
	w.Indent()
	w.Linef("t = %s__table.length;", cb.Name)
	w.Linef("%s__table.push(fn);", cb.Name)
	w.Linef("fn.__%s_token__ = t;", cb.Name)
	w.Dedent()
	w.Line("}")
	w.Line("return t;")
	w.Dedent()
	w.Line("}")

	// The shim runs while a native call is still on the stack, so it
	// appends to the staging buffer instead of resetting it.
	args := make([]string, len(cb.Params))
	for i := range cb.Params {
		args[i] = fmt.Sprintf("a%d", i)
	}
	w.Linef("function %s(token%s) {", s.shimName(cb), prefixEach(args, ", "))
	w.Indent()
	w.Linef("var fn = %s__table[token];", cb.Name)
	for i, p := range cb.Params {
		st, err := s.strategyForExpr(p.Type, p.Mods)
		if err != nil {
			return fmt.Errorf("callback %s, parameter %s: %w", cb.Name, p.Name, err)
		}
		conv := st.ScriptPostCall(args[i])
		if conv != args[i] {
			w.Linef("%s = %s;", args[i], conv)
		}
	}
	call := fmt.Sprintf("fn(%s)", strings.Join(args, ", "))
	retSt, err := s.strategyForExpr(cb.Ret, ast.Modifiers{})
	if err != nil {
		return fmt.Errorf("callback %s, return type: %w", cb.Name, err)
	}
	if retSt.Class == ClassVoid {
		w.Linef("%s;", call)
	} else {
		w.Linef("var r = %s;", call)
		for _, line := range retSt.ScriptPreCall("r") {
			w.Line(line)
		}
		w.Line("return r;")
	}
	w.Dedent()
	w.Line("}")
	w.Line("")
	return nil
}

// emitNativeCallback writes the extern shim declaration and the adapter
// struct that native code receives in place of a script function: it holds
// the token and forwards operator() through the shim, boxing shared
// ownership cells on the way back in.
func (s *Session) emitNativeCallback(w *srcWriter, cb *ast.Callback) error {
	params := make([]*Strategy, len(cb.Params))
	decl := make([]string, len(cb.Params))
	fwd := make([]string, len(cb.Params))
	for i, p := range cb.Params {
		st, err := s.strategyForExpr(p.Type, p.Mods)
		if err != nil {
			return fmt.Errorf("callback %s, parameter %s: %w", cb.Name, p.Name, err)
		}
		params[i] = st
		decl[i] = fmt.Sprintf("%s a%d", st.NativeParam(), i)
		fwd[i] = fmt.Sprintf("a%d", i)
	}
	retSt, err := s.strategyForExpr(cb.Ret, ast.Modifiers{})
	if err != nil {
		return fmt.Errorf("callback %s, return type: %w", cb.Name, err)
	}

	w.Linef("extern \"C\" %s %s(int token%s);", retSt.NativeReturn(), s.shimName(cb), prefixEach(decl, ", "))
	w.Line("")
	w.Linef("struct %s {", cb.Name)
	w.Indent()
	w.Line("int token;")
	w.Linef("explicit %s(int token) : token(token) {}", cb.Name)

	shimCall := fmt.Sprintf("%s(token%s)", s.shimName(cb), prefixEach(fwd, ", "))
	switch retSt.Class {
	case ClassVoid:
		w.Linef("void operator()(%s) const {", strings.Join(decl, ", "))
		w.Indent()
		w.Linef("%s;", shimCall)
		w.Dedent()
		w.Line("}")
	case ClassShared:
		cls := retSt.nativeClass()
		w.Linef("std::shared_ptr<%s> operator()(%s) const {", cls, strings.Join(decl, ", "))
		w.Indent()
		// The shim hands back a borrowed cell; copy it into a fresh one.
		w.Linef("std::shared_ptr<%s>* cell = %s;", cls, shimCall)
		w.Linef("return cell ? *cell : std::shared_ptr<%s>();", cls)
		w.Dedent()
		w.Line("}")
	case ClassValue:
		vt := retSt.nativeValue()
		w.Linef("%s operator()(%s) const {", vt, strings.Join(decl, ", "))
		w.Indent()
		w.Linef("return *%s;", shimCall)
		w.Dedent()
		w.Line("}")
	default:
		w.Linef("%s operator()(%s) const {", retSt.NativeReturn(), strings.Join(decl, ", "))
		w.Indent()
		w.Linef("return %s;", shimCall)
		w.Dedent()
		w.Line("}")
	}
	w.Dedent()
	w.Line("};")
	w.Line("")
	return nil
}

// strategyForExpr resolves and classifies in one step.
func (s *Session) strategyForExpr(expr *ast.TypeExpr, mods ast.Modifiers) (*Strategy, error) {
	td, err := s.Resolve(expr, mods)
	if err != nil {
		return nil, err
	}
	return strategyFor(s, td)
}

// prefixEach joins items with sep, prefixing the whole list with sep when
// non-empty. Used to append to an existing argument list.
func prefixEach(items []string, sep string) string {
	if len(items) == 0 {
		return ""
	}
	return sep + strings.Join(items, sep)
}
