package ast

// Decl is the interface for all top-level IDL declarations.
type Decl interface {
	decl()
	DeclName() string
	DeclLine() int
}

// BaseDecl provides common fields for all declarations.
type BaseDecl struct {
	Name       string
	SourceLine int // 1-based line in the original source
}

func (b BaseDecl) DeclName() string { return b.Name }
func (b BaseDecl) DeclLine() int    { return b.SourceLine }

// Module is the root node: one parsed IDL description.
type Module struct {
	Decls      []Decl
	SourceFile string // display path of the source file
}

// TypeExpr is an unresolved IDL type expression as written in the source.
// Union is non-nil for union types, which parse but are rejected during
// resolution.
type TypeExpr struct {
	Name     string // base type name, typedef name, or "" for unions
	Sequence bool   // T[] or sequence<T>
	Nullable bool   // T?
	Union    []*TypeExpr
}

// Modifiers are the extended-attribute annotations that may decorate a
// type use site: [Ref], [Value] and [Const].
type Modifiers struct {
	ByRef   bool
	ByValue bool
	Const   bool
}

// Arg is one operation or callback parameter.
type Arg struct {
	Name string
	Type *TypeExpr
	Mods Modifiers
}

// Operation is a method declared on an interface. Constructors are
// operations whose name equals the interface name.
type Operation struct {
	Name   string
	Static bool
	Ret    *TypeExpr // nil for void
	RetMod Modifiers
	Args   []Arg
	Line   int
}

// Attribute is an `attribute` member of an interface or value type.
type Attribute struct {
	Name     string
	Static   bool
	ReadOnly bool
	Type     *TypeExpr
	Mods     Modifiers
	Line     int
}

// Interface declares a bound native class. Raw-pointer ownership is the
// default; [Shared] selects reference-counted cells.
type Interface struct {
	BaseDecl
	Parent          string // optional single superclass, set via implements
	Shared          bool   // [Shared] ownership marker
	NonDestructible bool   // [NoDelete]
	NativePrefix    string // [Prefix="ns::"] native name qualifier
	Constructors    []*Operation
	Operations      []*Operation
	Attributes      []*Attribute
}

func (i *Interface) decl() {}

// NativeName returns the fully qualified native class name.
func (i *Interface) NativeName() string { return i.NativePrefix + i.Name }

// ValueType declares a by-value record ([Value] interface). Fields must
// resolve to scalars; that is validated during generation, not parsing.
type ValueType struct {
	BaseDecl
	Parent string // optional single value-type parent
	Fields []*Attribute
}

func (v *ValueType) decl() {}

// Callback declares a script-function type invokable from native code.
type Callback struct {
	BaseDecl
	Ret    *TypeExpr // nil for void
	Params []Arg
}

func (c *Callback) decl() {}

// Typedef aliases a name to a type expression plus modifiers.
type Typedef struct {
	BaseDecl
	Type *TypeExpr
	Mods Modifiers
}

func (t *Typedef) decl() {}
