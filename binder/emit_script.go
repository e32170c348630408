package binder

import (
	"fmt"
	"strings"

	"github.com/vvuk/idlebind/ast"
)

// scriptPrelude is the shared runtime emitted at the top of the script
// artifact. It assumes the enclosing emscripten-style runtime: the HEAP*
// views, _malloc/_free and the UTF-8 string helpers.
//
// The staging area is reused across calls; that is safe because the script
// side is single-threaded and every staged argument is consumed before the
// call returns. Callback shims append to it without resetting, since they
// run while a native call still holds pointers into it.
const scriptPrelude = `var stage = {
  buf: 0, size: 0, pos: 0, temps: [], needed: 0,
  prepare: function() {
    if (stage.needed) {
      for (var i = 0; i < stage.temps.length; i++) _free(stage.temps[i]);
      stage.temps.length = 0;
      if (stage.buf) _free(stage.buf);
      stage.buf = 0;
      stage.size += stage.needed;
      stage.needed = 0;
    }
    if (!stage.buf) {
      stage.size += 256;
      stage.buf = _malloc(stage.size);
    }
    stage.pos = 0;
  },
  alloc: function(len) {
    len = (len + 7) & -8;
    var ptr;
    if (stage.pos + len >= stage.size) {
      ptr = _malloc(len);
      stage.temps.push(ptr);
      stage.needed += len;
    } else {
      ptr = stage.buf + stage.pos;
      stage.pos += len;
    }
    return ptr;
  }
};

function ensureString(value) {
  if (typeof value !== 'string') return value;
  var len = lengthBytesUTF8(value) + 1;
  var ptr = stage.alloc(len);
  stringToUTF8(value, ptr, len);
  return ptr;
}
function ensureI8(values) {
  if (typeof values !== 'object') return values;
  var ptr = stage.alloc(values.length);
  HEAP8.set(values, ptr);
  return ptr;
}
function ensureI16(values) {
  if (typeof values !== 'object') return values;
  var ptr = stage.alloc(values.length * 2);
  HEAP16.set(values, ptr >> 1);
  return ptr;
}
function ensureI32(values) {
  if (typeof values !== 'object') return values;
  var ptr = stage.alloc(values.length * 4);
  HEAP32.set(values, ptr >> 2);
  return ptr;
}
function ensureF32(values) {
  if (typeof values !== 'object') return values;
  var ptr = stage.alloc(values.length * 4);
  HEAPF32.set(values, ptr >> 2);
  return ptr;
}
function ensureF64(values) {
  if (typeof values !== 'object') return values;
  var ptr = stage.alloc(values.length * 8);
  HEAPF64.set(values, ptr >> 3);
  return ptr;
}

function wrapPointer(ptr, cls) {
  var cached = cls.__cache__[ptr];
  if (cached) return cached;
  var obj = Object.create(cls.prototype);
  obj.__ptr__ = ptr;
  cls.__cache__[ptr] = obj;
  return obj;
}
`

// emitScript produces the script-side artifact.
func (s *Session) emitScript() (string, error) {
	w := newWriter("  ")
	w.Linef("// Generated by idlebind from %s. DO NOT EDIT.", s.module.SourceFile)
	w.Line("")
	w.Raw(scriptPrelude)
	w.Line("")

	s.emitScriptLayout(w)

	for _, cb := range s.module.Callbacks() {
		if err := s.emitScriptCallback(w, cb); err != nil {
			return "", err
		}
	}

	for _, vt := range s.module.ValueTypes() {
		if err := s.emitScriptValueType(w, vt); err != nil {
			return "", err
		}
	}

	for _, iface := range s.sortedInterfaces() {
		if err := s.emitScriptInterface(w, iface); err != nil {
			return "", err
		}
	}

	if s.opts.ModuleName != "" {
		s.emitScriptExports(w)
	}
	return w.String(), nil
}

// sortedInterfaces returns interfaces parents-first so each generated class
// can extend an already-defined parent, preserving source order otherwise.
func (s *Session) sortedInterfaces() []*ast.Interface {
	var out []*ast.Interface
	emitted := make(map[string]bool)
	var emit func(i *ast.Interface)
	emit = func(i *ast.Interface) {
		if emitted[i.Name] {
			return
		}
		emitted[i.Name] = true
		if i.Parent != "" {
			if parent, ok := s.interfaces[i.Parent]; ok {
				emit(parent)
			}
		}
		out = append(out, i)
	}
	for _, iface := range s.module.Interfaces() {
		emit(iface)
	}
	return out
}

func (s *Session) emitScriptValueType(w *srcWriter, vt *ast.ValueType) error {
	fields, err := s.allFields(vt)
	if err != nil {
		return err
	}

	w.Linef("// value type %s", vt.Name)
	args := "values"
	w.Linef("function %s(%s) {", vt.Name, args)
	w.Indent()
	for _, f := range fields {
		w.Linef("this.%s = 0;", f.Name)
	}
	w.Line("if (values) {")
	w.Indent()
	for _, f := range fields {
		w.Linef("if (values.%s !== undefined) this.%s = values.%s;", f.Name, f.Name, f.Name)
	}
	w.Dedent()
	w.Line("}")
	w.Dedent()
	w.Line("}")

	if vt.Parent != "" {
		w.Linef("%s.prototype = Object.create(%s.prototype);", vt.Name, vt.Parent)
		w.Linef("%s.prototype.constructor = %s;", vt.Name, vt.Name)
	}

	w.Linef("%s.__fromNative__ = function(ptr) {", vt.Name)
	w.Indent()
	w.Linef("var r = Object.create(%s.prototype);", vt.Name)
	for _, f := range fields {
		kind := s.fieldKind(f)
		read := fmt.Sprintf("%s[(ptr + LAYOUT[%d]) >> %d]",
			kind.HeapView(), s.slot(vt.Name, f.Name), kind.heapShift())
		if kind == Bool {
			read = "!!" + read
		}
		w.Linef("r.%s = %s;", f.Name, read)
	}
	w.Line("return r;")
	w.Dedent()
	w.Line("};")

	w.Linef("%s.prototype.__toNative__ = function() {", vt.Name)
	w.Indent()
	w.Linef("var ptr = stage.alloc(LAYOUT[%d]);", s.slot(vt.Name, ""))
	for _, f := range fields {
		kind := s.fieldKind(f)
		value := "this." + f.Name
		if kind == Bool {
			value = fmt.Sprintf("(this.%s ? 1 : 0)", f.Name)
		}
		w.Linef("%s[(ptr + LAYOUT[%d]) >> %d] = %s;",
			kind.HeapView(), s.slot(vt.Name, f.Name), kind.heapShift(), value)
	}
	w.Line("return ptr;")
	w.Dedent()
	w.Line("};")
	w.Line("")
	return nil
}

func (s *Session) emitScriptInterface(w *srcWriter, iface *ast.Interface) error {
	plan, err := s.planConstructors(iface)
	if err != nil {
		return err
	}

	w.Linef("// interface %s", iface.Name)
	if len(plan.Arities) == 0 {
		w.Linef("function %s() {", iface.Name)
		w.Indent()
		w.Linef("throw '%s has no constructor';", iface.Name)
		w.Dedent()
		w.Line("}")
	} else {
		args := argNames(plan.MaxArity())
		w.Linef("function %s(%s) {", iface.Name, strings.Join(args, ", "))
		w.Indent()
		if s.planStages(plan) {
			w.Line("stage.prepare();")
		}
		tail := func(call string) {
			w.Linef("this.__ptr__ = %s;", call)
			w.Linef("%s.__cache__[this.__ptr__] = this;", iface.Name)
			w.Line("return;")
		}
		if err := s.emitDispatch(w, iface, plan, "", tail); err != nil {
			return err
		}
		w.Dedent()
		w.Line("}")
	}

	if iface.Parent != "" {
		w.Linef("%s.prototype = Object.create(%s.prototype);", iface.Name, iface.Parent)
		w.Linef("%s.prototype.constructor = %s;", iface.Name, iface.Name)
	}
	w.Linef("%s.__cache__ = {};", iface.Name)
	w.Linef("%s.wrap = function(ptr) {", iface.Name)
	w.Indent()
	w.Linef("return ptr ? wrapPointer(ptr, %s) : null;", iface.Name)
	w.Dedent()
	w.Line("};")
	w.Linef("%s.wrapNoCache = function(ptr) {", iface.Name)
	w.Indent()
	w.Line("if (!ptr) return null;")
	w.Linef("var obj = Object.create(%s.prototype);", iface.Name)
	w.Line("obj.__ptr__ = ptr;")
	w.Line("return obj;")
	w.Dedent()
	w.Line("};")
	w.Linef("%s.setCache = function(obj) {", iface.Name)
	w.Indent()
	w.Linef("%s.__cache__[obj.__ptr__] = obj;", iface.Name)
	w.Dedent()
	w.Line("};")

	groups := groupByName(iface.Operations)
	for _, name := range groups.names {
		mplan, err := planOverloads(s, iface.Name, name, groups.byName[name])
		if err != nil {
			return err
		}
		if err := s.emitScriptMethod(w, iface, mplan); err != nil {
			return err
		}
	}

	for _, attr := range iface.Attributes {
		if err := s.emitScriptAttribute(w, iface, attr); err != nil {
			return err
		}
	}

	if !iface.NonDestructible {
		w.Linef("%s.prototype.destroy = function() {", iface.Name)
		w.Indent()
		w.Linef("_%s(this.__ptr__);", s.destructorName(iface))
		w.Linef("delete %s.__cache__[this.__ptr__];", iface.Name)
		w.Dedent()
		w.Line("};")
	}
	w.Line("")
	return nil
}

// planStages reports whether any overload in the plan stages an argument.
func (s *Session) planStages(plan *overloadPlan) bool {
	for _, op := range plan.ByArity {
		for _, arg := range op.Args {
			st, err := s.strategyForExpr(arg.Type, arg.Mods)
			if err == nil && st.NeedsStaging() {
				return true
			}
		}
	}
	return false
}

func argNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("a%d", i)
	}
	return names
}

// emitDispatch writes the arity ladder: each overload below the maximum is
// selected when its first omitted argument is undefined; the final overload
// handles the full argument list. done renders the branch tail from the
// native call expression.
func (s *Session) emitDispatch(w *srcWriter, iface *ast.Interface, plan *overloadPlan, self string, done func(call string)) error {
	emitBranch := func(op *ast.Operation) error {
		arity := len(op.Args)
		callArgs := make([]string, 0, arity+1)
		if self != "" {
			callArgs = append(callArgs, self)
		}
		for i, arg := range op.Args {
			st, err := s.strategyForExpr(arg.Type, arg.Mods)
			if err != nil {
				return fmt.Errorf("interface %s, %s: parameter %s: %w", iface.Name, plan.Name, arg.Name, err)
			}
			name := fmt.Sprintf("a%d", i)
			for _, line := range st.ScriptPreCall(name) {
				w.Line(line)
			}
			callArgs = append(callArgs, name)
		}
		entry := fmt.Sprintf("_%s%s_%s_%d(%s)", s.opts.Prefix, iface.Name, plan.Name, arity, strings.Join(callArgs, ", "))
		done(entry)
		return nil
	}

	max := plan.MaxArity()
	for _, arity := range plan.Arities {
		op := plan.ByArity[arity]
		if arity == max {
			return emitBranch(op)
		}
		w.Linef("if (a%d === undefined) {", arity)
		w.Indent()
		if err := emitBranch(op); err != nil {
			return err
		}
		w.Dedent()
		w.Line("}")
	}
	return nil
}

func (s *Session) emitScriptMethod(w *srcWriter, iface *ast.Interface, plan *overloadPlan) error {
	retSt, err := strategyFor(s, plan.Ret)
	if err != nil {
		return fmt.Errorf("interface %s, operation %s: %w", iface.Name, plan.Name, err)
	}

	target := fmt.Sprintf("%s.prototype.%s", iface.Name, plan.Name)
	if plan.Static {
		target = fmt.Sprintf("%s.%s", iface.Name, plan.Name)
	}
	args := argNames(plan.MaxArity())
	w.Linef("%s = function(%s) {", target, strings.Join(args, ", "))
	w.Indent()
	if s.planStages(plan) {
		w.Line("stage.prepare();")
	}
	self := ""
	if !plan.Static {
		self = "self"
		w.Line("var self = this.__ptr__;")
	}
	done := func(call string) {
		if retSt.Class == ClassVoid {
			w.Linef("%s;", call)
			w.Line("return;")
		} else {
			w.Linef("return %s;", retSt.ScriptPostCall(call))
		}
	}
	if err := s.emitDispatch(w, iface, plan, self, done); err != nil {
		return err
	}
	w.Dedent()
	w.Line("};")
	return nil
}

func (s *Session) emitScriptAttribute(w *srcWriter, iface *ast.Interface, attr *ast.Attribute) error {
	st, err := s.strategyForExpr(attr.Type, attr.Mods)
	if err != nil {
		return fmt.Errorf("interface %s, attribute %s: %w", iface.Name, attr.Name, err)
	}

	owner := iface.Name + ".prototype"
	selfDecl := "var self = this.__ptr__;"
	selfArg := "self"
	if attr.Static {
		owner = iface.Name
		selfDecl = ""
		selfArg = ""
	}

	getCall := fmt.Sprintf("_%s(%s)", s.getterName(iface, attr), selfArg)
	w.Linef("%s.get_%s = function() {", owner, attr.Name)
	w.Indent()
	if selfDecl != "" {
		w.Line(selfDecl)
	}
	w.Linef("return %s;", st.ScriptPostCall(getCall))
	w.Dedent()
	w.Line("};")

	if !attr.ReadOnly {
		w.Linef("%s.set_%s = function(v) {", owner, attr.Name)
		w.Indent()
		if st.NeedsStaging() {
			w.Line("stage.prepare();")
		}
		if selfDecl != "" {
			w.Line(selfDecl)
		}
		for _, line := range st.ScriptPreCall("v") {
			w.Line(line)
		}
		setArgs := "v"
		if selfArg != "" {
			setArgs = selfArg + ", v"
		}
		w.Linef("_%s(%s);", s.setterName(iface, attr), setArgs)
		w.Dedent()
		w.Line("};")
		w.Linef("Object.defineProperty(%s, '%s', { get: %s.get_%s, set: %s.set_%s });",
			owner, attr.Name, owner, attr.Name, owner, attr.Name)
	} else {
		w.Linef("Object.defineProperty(%s, '%s', { get: %s.get_%s });",
			owner, attr.Name, owner, attr.Name)
	}
	return nil
}

// emitScriptExports wraps the generated classes under one module identifier.
func (s *Session) emitScriptExports(w *srcWriter) {
	w.Linef("var %s = {", s.opts.ModuleName)
	w.Indent()
	for _, vt := range s.module.ValueTypes() {
		w.Linef("'%s': %s,", vt.Name, vt.Name)
	}
	for _, iface := range s.module.Interfaces() {
		w.Linef("'%s': %s,", iface.Name, iface.Name)
	}
	w.Dedent()
	w.Line("};")
}
