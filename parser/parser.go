// Package parser implements a hand-written recursive-descent parser for the
// WebIDL subset consumed by idlebind: interfaces with extended attributes,
// value types, typedefs, callbacks and implements statements.
package parser

import (
	"fmt"
	"strings"

	"github.com/vvuk/idlebind/ast"
	"github.com/vvuk/idlebind/scanner"
)

// Parser parses IDL source into declarations. The zero value is ready to use.
type Parser struct {
	name   string
	toks   []token
	pos    int
	decls  []ast.Decl
	byName map[string]ast.Decl
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokPunct
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	line int
}

// Parse tokenizes and parses src, returning the declarations in source
// order. Comments are stripped with line numbers preserved. The name
// parameter is used in error messages.
func (p *Parser) Parse(name string, src []byte) (*ast.Module, error) {
	p.name = name
	p.decls = nil
	p.byName = make(map[string]ast.Decl)
	p.pos = 0

	cleaned := scanner.StripComments(string(src))
	toks, err := p.tokenize(cleaned)
	if err != nil {
		return nil, err
	}
	p.toks = toks

	type implements struct {
		child, parent string
		line          int
	}
	var impls []implements

	for p.peek().kind != tokEOF {
		attrs, err := p.parseExtAttrs()
		if err != nil {
			return nil, err
		}
		tok := p.peek()
		switch {
		case tok.kind == tokIdent && tok.text == "interface":
			if err := p.parseInterface(attrs); err != nil {
				return nil, err
			}
		case tok.kind == tokIdent && tok.text == "typedef":
			if err := p.parseTypedef(attrs); err != nil {
				return nil, err
			}
		case tok.kind == tokIdent && tok.text == "callback":
			if err := p.parseCallback(); err != nil {
				return nil, err
			}
		case tok.kind == tokIdent && p.peekAt(1).kind == tokIdent && p.peekAt(1).text == "implements":
			child := p.next().text
			p.next() // implements
			parent := p.next()
			if parent.kind != tokIdent {
				return nil, p.errf(parent.line, "expected parent name after implements")
			}
			if err := p.expectPunct(";"); err != nil {
				return nil, err
			}
			impls = append(impls, implements{child: child, parent: parent.text, line: tok.line})
		default:
			return nil, p.errf(tok.line, "unexpected %q at top level", tok.text)
		}
	}

	// Apply implements statements once every declaration is known.
	for _, im := range impls {
		child, ok := p.byName[im.child]
		if !ok {
			return nil, p.errf(im.line, "implements: unknown interface %q", im.child)
		}
		if _, ok := p.byName[im.parent]; !ok {
			return nil, p.errf(im.line, "implements: unknown parent %q", im.parent)
		}
		switch c := child.(type) {
		case *ast.Interface:
			if c.Parent != "" {
				return nil, p.errf(im.line, "interface %q already implements %q", im.child, c.Parent)
			}
			c.Parent = im.parent
		case *ast.ValueType:
			if c.Parent != "" {
				return nil, p.errf(im.line, "value type %q already implements %q", im.child, c.Parent)
			}
			c.Parent = im.parent
		default:
			return nil, p.errf(im.line, "implements: %q is not an interface", im.child)
		}
	}

	return &ast.Module{Decls: p.decls, SourceFile: name}, nil
}

func (p *Parser) tokenize(src string) ([]token, error) {
	var toks []token
	line := 1
	i := 0
	for i < len(src) {
		ch := src[i]
		switch {
		case ch == '\n':
			line++
			i++
		case ch == ' ' || ch == '\t' || ch == '\r':
			i++
		case ch == '"':
			j := i + 1
			for j < len(src) && src[j] != '"' {
				if src[j] == '\n' {
					return nil, p.errf(line, "unterminated string literal")
				}
				j++
			}
			if j >= len(src) {
				return nil, p.errf(line, "unterminated string literal")
			}
			toks = append(toks, token{kind: tokString, text: src[i+1 : j], line: line})
			i = j + 1
		case isIdentStart(ch):
			j := i + 1
			for j < len(src) && isIdentByte(src[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: src[i:j], line: line})
			i = j
		case strings.IndexByte("{}()[]<>,;=?", ch) >= 0:
			toks = append(toks, token{kind: tokPunct, text: string(ch), line: line})
			i++
		default:
			return nil, p.errf(line, "unexpected character %q", string(ch))
		}
	}
	toks = append(toks, token{kind: tokEOF, line: line})
	return toks, nil
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentByte(ch byte) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9')
}

func (p *Parser) peek() token { return p.toks[p.pos] }

func (p *Parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *Parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *Parser) errf(line int, format string, args ...interface{}) error {
	return fmt.Errorf("%s:%d: %s", p.name, line, fmt.Sprintf(format, args...))
}

func (p *Parser) expectPunct(s string) error {
	t := p.next()
	if t.kind != tokPunct || t.text != s {
		return p.errf(t.line, "expected %q, got %q", s, t.text)
	}
	return nil
}

func (p *Parser) expectIdent() (token, error) {
	t := p.next()
	if t.kind != tokIdent {
		return t, p.errf(t.line, "expected identifier, got %q", t.text)
	}
	return t, nil
}

// extAttr is one entry of a [Name, Name="value", ...] extended attribute list.
type extAttr struct {
	name  string
	value string
	line  int
}

func (p *Parser) parseExtAttrs() ([]extAttr, error) {
	if t := p.peek(); t.kind != tokPunct || t.text != "[" {
		return nil, nil
	}
	p.next()
	var attrs []extAttr
	for {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		a := extAttr{name: name.text, line: name.line}
		if t := p.peek(); t.kind == tokPunct && t.text == "=" {
			p.next()
			v := p.next()
			if v.kind != tokString && v.kind != tokIdent {
				return nil, p.errf(v.line, "expected value after %s=", a.name)
			}
			a.value = v.text
		}
		attrs = append(attrs, a)
		t := p.next()
		if t.kind == tokPunct && t.text == "]" {
			break
		}
		if t.kind != tokPunct || t.text != "," {
			return nil, p.errf(t.line, "expected , or ] in extended attribute list")
		}
	}
	return attrs, nil
}

// modifiers extracts [Ref]/[Value]/[Const] markers from an attribute list,
// returning the leftovers for the caller to interpret.
func modifiers(attrs []extAttr) (ast.Modifiers, []extAttr) {
	var m ast.Modifiers
	var rest []extAttr
	for _, a := range attrs {
		switch a.name {
		case "Ref":
			m.ByRef = true
		case "Value":
			m.ByValue = true
		case "Const":
			m.Const = true
		default:
			rest = append(rest, a)
		}
	}
	return m, rest
}

func (p *Parser) registerDecl(d ast.Decl, line int) error {
	name := d.DeclName()
	if prev, exists := p.byName[name]; exists {
		return p.errf(line, "%q already declared at line %d", name, prev.DeclLine())
	}
	p.byName[name] = d
	p.decls = append(p.decls, d)
	return nil
}

func (p *Parser) parseInterface(attrs []extAttr) error {
	p.next() // interface
	nameTok, err := p.expectIdent()
	if err != nil {
		return err
	}
	if err := p.expectPunct("{"); err != nil {
		return err
	}

	isValue := false
	iface := &ast.Interface{BaseDecl: ast.BaseDecl{Name: nameTok.text, SourceLine: nameTok.line}}
	for _, a := range attrs {
		switch a.name {
		case "Value":
			isValue = true
		case "Shared":
			iface.Shared = true
		case "NoDelete":
			iface.NonDestructible = true
		case "Prefix":
			iface.NativePrefix = a.value
		default:
			return p.errf(a.line, "interface %s: unknown extended attribute [%s]", nameTok.text, a.name)
		}
	}
	if isValue && (iface.Shared || iface.NonDestructible) {
		return p.errf(nameTok.line, "value type %s cannot be [Shared] or [NoDelete]", nameTok.text)
	}

	for {
		if t := p.peek(); t.kind == tokPunct && t.text == "}" {
			p.next()
			break
		}
		if err := p.parseMember(iface); err != nil {
			return err
		}
	}
	if err := p.expectPunct(";"); err != nil {
		return err
	}

	if isValue {
		vt := &ast.ValueType{BaseDecl: iface.BaseDecl}
		if len(iface.Operations) > 0 || len(iface.Constructors) > 0 {
			return p.errf(nameTok.line, "value type %s cannot declare operations", nameTok.text)
		}
		vt.Fields = iface.Attributes
		return p.registerDecl(vt, nameTok.line)
	}
	return p.registerDecl(iface, nameTok.line)
}

func (p *Parser) parseMember(iface *ast.Interface) error {
	attrs, err := p.parseExtAttrs()
	if err != nil {
		return err
	}
	mods, rest := modifiers(attrs)
	if len(rest) > 0 {
		return p.errf(rest[0].line, "interface %s: unknown member attribute [%s]", iface.Name, rest[0].name)
	}

	static := false
	if t := p.peek(); t.kind == tokIdent && t.text == "static" {
		static = true
		p.next()
	}

	if t := p.peek(); t.kind == tokIdent && (t.text == "attribute" || t.text == "readonly") {
		readOnly := false
		if t.text == "readonly" {
			readOnly = true
			p.next()
			if at := p.peek(); at.kind != tokIdent || at.text != "attribute" {
				return p.errf(at.line, "expected attribute after readonly")
			}
		}
		p.next() // attribute
		typ, err := p.parseType()
		if err != nil {
			return err
		}
		name, err := p.expectIdent()
		if err != nil {
			return err
		}
		if err := p.expectPunct(";"); err != nil {
			return err
		}
		iface.Attributes = append(iface.Attributes, &ast.Attribute{
			Name: name.text, Static: static, ReadOnly: readOnly,
			Type: typ, Mods: mods, Line: name.line,
		})
		return nil
	}

	// Operation: returnType name(params);
	ret, err := p.parseType()
	if err != nil {
		return err
	}
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	args, err := p.parseParams()
	if err != nil {
		return err
	}
	if err := p.expectPunct(";"); err != nil {
		return err
	}

	op := &ast.Operation{
		Name: name.text, Static: static, Ret: ret, RetMod: mods,
		Args: args, Line: name.line,
	}
	if ret != nil && !ret.Sequence && !ret.Nullable && ret.Union == nil && ret.Name == "void" {
		op.Ret = nil
	}
	if name.text == iface.Name {
		if op.Ret != nil {
			return p.errf(name.line, "constructor %s cannot declare a return type", name.text)
		}
		iface.Constructors = append(iface.Constructors, op)
		return nil
	}
	iface.Operations = append(iface.Operations, op)
	return nil
}

func (p *Parser) parseParams() ([]ast.Arg, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var args []ast.Arg
	if t := p.peek(); t.kind == tokPunct && t.text == ")" {
		p.next()
		return args, nil
	}
	for {
		attrs, err := p.parseExtAttrs()
		if err != nil {
			return nil, err
		}
		mods, rest := modifiers(attrs)
		if len(rest) > 0 {
			return nil, p.errf(rest[0].line, "unknown parameter attribute [%s]", rest[0].name)
		}
		// `optional` is accepted and ignored: dispatch is arity-based.
		if t := p.peek(); t.kind == tokIdent && t.text == "optional" {
			p.next()
		}
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		var argName string
		if t := p.peek(); t.kind == tokIdent {
			argName = p.next().text
		}
		args = append(args, ast.Arg{Name: argName, Type: typ, Mods: mods})
		t := p.next()
		if t.kind == tokPunct && t.text == ")" {
			break
		}
		if t.kind != tokPunct || t.text != "," {
			return nil, p.errf(t.line, "expected , or ) in parameter list")
		}
	}
	return args, nil
}

// parseType parses a type expression: a union, a sequence<T>, or a possibly
// multi-word base name, followed by optional [] and ? suffixes.
func (p *Parser) parseType() (*ast.TypeExpr, error) {
	var te *ast.TypeExpr

	if t := p.peek(); t.kind == tokPunct && t.text == "(" {
		// Union: (A or B or C). Parsed so resolution can reject it by name.
		p.next()
		te = &ast.TypeExpr{}
		for {
			member, err := p.parseType()
			if err != nil {
				return nil, err
			}
			te.Union = append(te.Union, member)
			t := p.next()
			if t.kind == tokPunct && t.text == ")" {
				break
			}
			if t.kind != tokIdent || t.text != "or" {
				return nil, p.errf(t.line, "expected `or` or ) in union type")
			}
		}
	} else if t.kind == tokIdent && t.text == "sequence" {
		p.next()
		if err := p.expectPunct("<"); err != nil {
			return nil, err
		}
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(">"); err != nil {
			return nil, err
		}
		te = elem
		te.Sequence = true
	} else {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		base := name.text
		// Multi-word scalars: unsigned short, long long, unsigned long long.
		if base == "unsigned" {
			w, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			base += " " + w.text
			if w.text == "long" {
				if t := p.peek(); t.kind == tokIdent && t.text == "long" {
					p.next()
					base += " long"
				}
			}
		} else if base == "long" {
			if t := p.peek(); t.kind == tokIdent && t.text == "long" {
				p.next()
				base += " long"
			}
		}
		te = &ast.TypeExpr{Name: base}
	}

	for {
		t := p.peek()
		if t.kind == tokPunct && t.text == "[" && p.peekAt(1).kind == tokPunct && p.peekAt(1).text == "]" {
			p.next()
			p.next()
			te.Sequence = true
			continue
		}
		if t.kind == tokPunct && t.text == "?" {
			p.next()
			te.Nullable = true
			continue
		}
		break
	}
	return te, nil
}

func (p *Parser) parseTypedef(attrs []extAttr) error {
	ln := p.next().line // typedef
	mods, rest := modifiers(attrs)
	if len(rest) > 0 {
		return p.errf(rest[0].line, "unknown typedef attribute [%s]", rest[0].name)
	}
	typ, err := p.parseType()
	if err != nil {
		return err
	}
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	if err := p.expectPunct(";"); err != nil {
		return err
	}
	return p.registerDecl(&ast.Typedef{
		BaseDecl: ast.BaseDecl{Name: name.text, SourceLine: ln},
		Type:     typ, Mods: mods,
	}, name.line)
}

// parseCallback parses `callback Name = ReturnType (Type arg, ...);`.
func (p *Parser) parseCallback() error {
	p.next() // callback
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	if err := p.expectPunct("="); err != nil {
		return err
	}
	ret, err := p.parseType()
	if err != nil {
		return err
	}
	if ret.Name == "void" && !ret.Sequence && !ret.Nullable && ret.Union == nil {
		ret = nil
	}
	params, err := p.parseParams()
	if err != nil {
		return err
	}
	if err := p.expectPunct(";"); err != nil {
		return err
	}
	return p.registerDecl(&ast.Callback{
		BaseDecl: ast.BaseDecl{Name: name.text, SourceLine: name.line},
		Ret:      ret, Params: params,
	}, name.line)
}
