package binder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvuk/idlebind/ast"
)

const strategyIDL = `
	interface ClassA {};
	[Shared] interface Counter {};
	[Value] interface Pt { attribute long x; attribute long y; };
	callback Progress = void (long done, long total);
`

func strategyFixture(t *testing.T) *Session {
	t.Helper()
	return newTestSession(t, strategyIDL)
}

func mustStrategy(t *testing.T, s *Session, expr *ast.TypeExpr, mods ast.Modifiers) *Strategy {
	t.Helper()
	st, err := s.strategyForExpr(expr, mods)
	require.NoError(t, err)
	return st
}

func TestStrategyClassification(t *testing.T) {
	s := strategyFixture(t)
	tests := []struct {
		name  string
		expr  *ast.TypeExpr
		mods  ast.Modifiers
		class MarshalClass
		param string
		ret   string
	}{
		{"void", nil, ast.Modifiers{}, ClassVoid, "", "void"},
		{"scalar", typ("long"), ast.Modifiers{}, ClassScalar, "int", "int"},
		{"string", typ("DOMString"), ast.Modifiers{}, ClassString, "char*", "char*"},
		{"const string", typ("DOMString"), ast.Modifiers{Const: true}, ClassString, "const char*", "const char*"},
		{"sequence", &ast.TypeExpr{Name: "float", Sequence: true}, ast.Modifiers{}, ClassSequence, "float*", ""},
		{"object", typ("ClassA"), ast.Modifiers{}, ClassObject, "ClassA*", "ClassA*"},
		{"shared", typ("Counter"), ast.Modifiers{}, ClassShared, "std::shared_ptr<Counter>*", "std::shared_ptr<Counter>*"},
		{"value", typ("Pt"), ast.Modifiers{}, ClassValue, "Pt*", "Pt*"},
		{"callback", typ("Progress"), ast.Modifiers{}, ClassCallback, "int", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := mustStrategy(t, s, tt.expr, tt.mods)
			assert.Equal(t, tt.class, st.Class)
			if tt.param != "" {
				assert.Equal(t, tt.param, st.NativeParam())
			}
			if tt.ret != "" {
				assert.Equal(t, tt.ret, st.NativeReturn())
			}
		})
	}
}

func TestStrategyNullablePeel(t *testing.T) {
	s := strategyFixture(t)
	st := mustStrategy(t, s, &ast.TypeExpr{Name: "ClassA", Nullable: true}, ast.Modifiers{})
	assert.Equal(t, ClassObject, st.Class)
	assert.True(t, st.Nullable)
	assert.Equal(t, "ClassA*", st.NativeParam())
}

func TestStrategyNullableValueRejected(t *testing.T) {
	s := strategyFixture(t)
	_, err := s.strategyForExpr(&ast.TypeExpr{Name: "Pt", Nullable: true}, ast.Modifiers{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nullable value types are not supported")
}

func TestStrategyDoublyNullable(t *testing.T) {
	s := newTestSession(t, `
		interface ClassA {};
		typedef ClassA? MaybeA;
	`)
	_, err := s.strategyForExpr(&ast.TypeExpr{Name: "MaybeA", Nullable: true}, ast.Modifiers{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doubly nullable")
}

func TestStrategyScriptPreCall(t *testing.T) {
	s := strategyFixture(t)
	tests := []struct {
		name string
		expr *ast.TypeExpr
		want []string
	}{
		{"plain scalar crosses untouched", typ("long"), nil},
		{"bool coerced", typ("boolean"), []string{"a0 = a0 ? 1 : 0;"}},
		{"string staged", typ("DOMString"), []string{"a0 = ensureString(a0);"}},
		{"int sequence staged", &ast.TypeExpr{Name: "long", Sequence: true}, []string{"a0 = ensureI32(a0);"}},
		{"float sequence staged", &ast.TypeExpr{Name: "double", Sequence: true}, []string{"a0 = ensureF64(a0);"}},
		{"object unwrapped", typ("ClassA"), []string{"a0 = a0 ? a0.__ptr__ : 0;"}},
		{"shared unwrapped", typ("Counter"), []string{"a0 = a0 ? a0.__ptr__ : 0;"}},
		{"value staged", typ("Pt"), []string{"a0 = a0.__toNative__();"}},
		{"callback tokenized", typ("Progress"), []string{"a0 = Progress__token(a0);"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := mustStrategy(t, s, tt.expr, ast.Modifiers{})
			assert.Equal(t, tt.want, st.ScriptPreCall("a0"))
		})
	}
}

func TestStrategyScriptPostCall(t *testing.T) {
	s := strategyFixture(t)
	tests := []struct {
		name string
		expr *ast.TypeExpr
		mods ast.Modifiers
		want string
	}{
		{"scalar passthrough", typ("long"), ast.Modifiers{}, "r"},
		{"bool truthiness", typ("boolean"), ast.Modifiers{}, "!!(r)"},
		{"string decoded", typ("DOMString"), ast.Modifiers{}, "UTF8ToString(r)"},
		{"object wrapped", typ("ClassA"), ast.Modifiers{}, "ClassA.wrap(r)"},
		{"boxed copy bypasses cache", typ("ClassA"), ast.Modifiers{ByValue: true}, "ClassA.wrapNoCache(r)"},
		{"shared wrapped", typ("Counter"), ast.Modifiers{}, "Counter.wrap(r)"},
		{"value read back", typ("Pt"), ast.Modifiers{}, "Pt.__fromNative__(r)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := mustStrategy(t, s, tt.expr, tt.mods)
			assert.Equal(t, tt.want, st.ScriptPostCall("r"))
		})
	}
}

func TestStrategyNativeArgUse(t *testing.T) {
	s := strategyFixture(t)
	tests := []struct {
		name string
		expr *ast.TypeExpr
		mods ast.Modifiers
		want string
	}{
		{"scalar forwarded", typ("long"), ast.Modifiers{}, "v"},
		{"object pointer forwarded", typ("ClassA"), ast.Modifiers{}, "v"},
		{"object deref for ref", typ("ClassA"), ast.Modifiers{ByRef: true}, "*v"},
		{"shared cell borrowed", typ("Counter"), ast.Modifiers{}, "*v"},
		{"value copy borrowed", typ("Pt"), ast.Modifiers{}, "*v"},
		{"callback adapted", typ("Progress"), ast.Modifiers{}, "Progress(v)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := mustStrategy(t, s, tt.expr, tt.mods)
			assert.Equal(t, tt.want, st.NativeArgUse("v"))
		})
	}
}

func TestStrategyNativeReturnStmt(t *testing.T) {
	s := strategyFixture(t)
	render := func(expr *ast.TypeExpr, mods ast.Modifiers) string {
		st := mustStrategy(t, s, expr, mods)
		w := newWriter("  ")
		st.NativeReturnStmt(w, "call()")
		return w.String()
	}

	assert.Equal(t, "call();\n", render(nil, ast.Modifiers{}))
	assert.Equal(t, "return call();\n", render(typ("long"), ast.Modifiers{}))
	assert.Equal(t, "return (char*)call();\n", render(typ("DOMString"), ast.Modifiers{}))
	assert.Equal(t, "return call();\n", render(typ("DOMString"), ast.Modifiers{Const: true}))
	assert.Equal(t, "return call();\n", render(typ("ClassA"), ast.Modifiers{}))
	assert.Equal(t, "return &call();\n", render(typ("ClassA"), ast.Modifiers{ByRef: true}))
	assert.Equal(t, "return new ClassA(call());\n", render(typ("ClassA"), ast.Modifiers{ByValue: true}))

	shared := render(typ("Counter"), ast.Modifiers{})
	assert.Contains(t, shared, "std::shared_ptr<Counter> r = call();")
	assert.Contains(t, shared, "return r ? new std::shared_ptr<Counter>(r) : 0;")

	value := render(typ("Pt"), ast.Modifiers{})
	assert.Contains(t, value, "static Pt staged;")
	assert.Contains(t, value, "staged = call();")
	assert.Contains(t, value, "return &staged;")
}

func TestStrategyNeedsStaging(t *testing.T) {
	s := strategyFixture(t)
	assert.True(t, mustStrategy(t, s, typ("DOMString"), ast.Modifiers{}).NeedsStaging())
	assert.True(t, mustStrategy(t, s, &ast.TypeExpr{Name: "long", Sequence: true}, ast.Modifiers{}).NeedsStaging())
	assert.True(t, mustStrategy(t, s, typ("Pt"), ast.Modifiers{}).NeedsStaging())
	assert.False(t, mustStrategy(t, s, typ("long"), ast.Modifiers{}).NeedsStaging())
	assert.False(t, mustStrategy(t, s, typ("ClassA"), ast.Modifiers{}).NeedsStaging())
	assert.False(t, mustStrategy(t, s, typ("Progress"), ast.Modifiers{}).NeedsStaging())
}
