package binder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generate(t *testing.T, src string, opts Options) *Result {
	t.Helper()
	r, err := Generate(parseModule(t, src), opts)
	require.NoError(t, err)
	return r
}

func generateErr(t *testing.T, src string) error {
	t.Helper()
	r, err := Generate(parseModule(t, src), DefaultOptions())
	require.Error(t, err)
	assert.Nil(t, r, "a failing run yields no artifacts")
	return err
}

const basicIDL = `
	interface ClassA {
		void ClassA();
		void ClassA(long x, long y);
		long Add(long a);
		long Add(long a, long b);
		attribute long bar;
		readonly attribute float ro;
		static void Tick();
	};
`

func TestGenerateBasic(t *testing.T) {
	r := generate(t, basicIDL, DefaultOptions())

	// Constructor dispatch: arity ladder over the maximum argument list.
	assert.Contains(t, r.Script, "function ClassA(a0, a1) {")
	assert.Contains(t, r.Script, "if (a0 === undefined) {")
	assert.Contains(t, r.Script, "_bind_ClassA_ClassA_0()")
	assert.Contains(t, r.Script, "_bind_ClassA_ClassA_2(a0, a1)")
	assert.Contains(t, r.Script, "ClassA.__cache__[this.__ptr__] = this;")

	// Instance method with overloads.
	assert.Contains(t, r.Script, "ClassA.prototype.Add = function(a0, a1) {")
	assert.Contains(t, r.Script, "var self = this.__ptr__;")
	assert.Contains(t, r.Script, "return _bind_ClassA_Add_1(self, a0);")
	assert.Contains(t, r.Script, "return _bind_ClassA_Add_2(self, a0, a1);")

	// Static method hangs off the constructor, not the prototype.
	assert.Contains(t, r.Script, "ClassA.Tick = function() {")
	assert.Contains(t, r.Script, "_bind_ClassA_Tick_0()")

	// Attribute accessors and property definitions.
	assert.Contains(t, r.Script, "ClassA.prototype.get_bar = function() {")
	assert.Contains(t, r.Script, "_bind_ClassA_get_bar_0(self)")
	assert.Contains(t, r.Script, "_bind_ClassA_set_bar_1(self, v);")
	assert.Contains(t, r.Script, "Object.defineProperty(ClassA.prototype, 'bar', { get: ClassA.prototype.get_bar, set: ClassA.prototype.set_bar });")
	assert.Contains(t, r.Script, "Object.defineProperty(ClassA.prototype, 'ro', { get: ClassA.prototype.get_ro });")
	assert.NotContains(t, r.Script, "set_ro")

	// Lifecycle.
	assert.Contains(t, r.Script, "ClassA.prototype.destroy = function() {")
	assert.Contains(t, r.Script, "_bind_ClassA___destroy___0(this.__ptr__);")
	assert.Contains(t, r.Script, "delete ClassA.__cache__[this.__ptr__];")

	// Native side.
	assert.Contains(t, r.Native, "ClassA* bind_ClassA_ClassA_0() {")
	assert.Contains(t, r.Native, "ClassA* bind_ClassA_ClassA_2(int x, int y) {")
	assert.Contains(t, r.Native, "int bind_ClassA_Add_2(ClassA* self, int a, int b) {")
	assert.Contains(t, r.Native, "return self->Add(a, b);")
	assert.Contains(t, r.Native, "void bind_ClassA___destroy___0(ClassA* self) {")
	assert.Contains(t, r.Native, "delete self;")
	assert.Contains(t, r.Native, "void bind_ClassA_Tick_0() {")
	assert.Contains(t, r.Native, "ClassA::Tick();")
	assert.Contains(t, r.Native, "int bind_ClassA_get_bar_0(ClassA* self) {")
	assert.Contains(t, r.Native, "void bind_ClassA_set_bar_1(ClassA* self, int value) {")
	assert.Contains(t, r.Native, "self->bar = value;")
	assert.Contains(t, r.Native, `extern "C" {`)
	assert.NotContains(t, r.Native, "#include <memory>", "no shared interfaces, no <memory>")
}

func TestGeneratePrefixOption(t *testing.T) {
	r := generate(t, "interface A { void A(); };", Options{Prefix: "v8_"})
	assert.Contains(t, r.Script, "_v8_A_A_0()")
	assert.Contains(t, r.Native, "A* v8_A_A_0() {")
	assert.NotContains(t, r.Native, "bind_")
}

func TestGenerateNativePrefix(t *testing.T) {
	r := generate(t, `
		[Prefix="mylib::"] interface Counter {
			void Counter();
			long Value();
		};
	`, DefaultOptions())
	// Entry names stay unqualified; the prefix qualifies the C++ type only.
	assert.Contains(t, r.Native, "mylib::Counter* bind_Counter_Counter_0() {")
	assert.Contains(t, r.Native, "return new mylib::Counter();")
	assert.Contains(t, r.Native, "int bind_Counter_Value_0(mylib::Counter* self) {")
	assert.Contains(t, r.Script, "_bind_Counter_Counter_0()")
}

func TestGenerateSharedOwnership(t *testing.T) {
	r := generate(t, `
		[Shared] interface Session {
			void Session();
			Session Clone();
			void Adopt(Session other);
		};
	`, DefaultOptions())

	assert.Contains(t, r.Native, "#include <memory>")
	assert.Contains(t, r.Native, "std::shared_ptr<Session>* bind_Session_Session_0() {")
	assert.Contains(t, r.Native, "return new std::shared_ptr<Session>(new Session());")
	assert.Contains(t, r.Native, "std::shared_ptr<Session>* bind_Session_Clone_0(std::shared_ptr<Session>* self) {")
	assert.Contains(t, r.Native, "std::shared_ptr<Session> r = (*self)->Clone();")
	assert.NotContains(t, r.Native, "bind_Session_Clone_1", "arity counts declared arguments, never self")
	assert.Contains(t, r.Native, "return r ? new std::shared_ptr<Session>(r) : 0;")
	assert.Contains(t, r.Native, "(*self)->Adopt(*other);")
	// The destructor releases the ownership cell, not the instance.
	assert.Contains(t, r.Native, "void bind_Session___destroy___0(std::shared_ptr<Session>* self) {")

	assert.Contains(t, r.Script, "return Session.wrap(_bind_Session_Clone_0(self));")
}

func TestGenerateOwnershipModeMismatch(t *testing.T) {
	err := generateErr(t, `
		interface Raw {};
		[Shared] interface Child {};
		Child implements Raw;
	`)
	assert.Contains(t, err.Error(), "ownership mode differs from parent")
}

func TestGenerateSharedParentAccepted(t *testing.T) {
	r := generate(t, `
		[Shared] interface Base { void Base(); };
		[Shared] interface Child { void Child(); };
		Child implements Base;
	`, DefaultOptions())
	assert.Contains(t, r.Script, "Child.prototype = Object.create(Base.prototype);")
}

func TestGenerateParentOrdering(t *testing.T) {
	// Child declared before parent still emits parent-first.
	r := generate(t, `
		interface Child {};
		interface Base {};
		Child implements Base;
	`, DefaultOptions())
	base := strings.Index(r.Script, "// interface Base")
	child := strings.Index(r.Script, "// interface Child")
	require.NotEqual(t, -1, base)
	require.NotEqual(t, -1, child)
	assert.Less(t, base, child)
}

func TestGenerateSequenceAttributeRejected(t *testing.T) {
	err := generateErr(t, "interface Bad { attribute long[] items; };")
	assert.Contains(t, err.Error(), "items")
	assert.Contains(t, err.Error(), "sequence-typed attributes are not supported")
}

func TestGenerateInterfaceSequenceRejected(t *testing.T) {
	err := generateErr(t, `
		interface ClassB {};
		interface Bad { attribute ClassB[] items; };
	`)
	assert.Contains(t, err.Error(), "items")
	assert.Contains(t, err.Error(), "does not resolve to a scalar")
}

func TestGenerateValueTypeFieldRejected(t *testing.T) {
	err := generateErr(t, `
		interface ClassB {};
		[Value] interface Bad { attribute ClassB inner; };
	`)
	assert.Contains(t, err.Error(), "inner")
	assert.Contains(t, err.Error(), "not supported in a value type")

	err = generateErr(t, "[Value] interface Bad { attribute DOMString name; };")
	assert.Contains(t, err.Error(), "string fields are not supported")

	err = generateErr(t, "[Value] interface Bad { attribute long long big; };")
	assert.Contains(t, err.Error(), "64-bit")
}

func TestGenerateNullableValueParamRejected(t *testing.T) {
	err := generateErr(t, `
		[Value] interface Pt { attribute long x; };
		interface Bad { void Set(Pt? p); };
	`)
	assert.Contains(t, err.Error(), "operation Set")
	assert.Contains(t, err.Error(), "nullable value types are not supported")
}

func TestGenerateUnionMemberRejected(t *testing.T) {
	err := generateErr(t, "interface Bad { void Take((long or DOMString) v); };")
	assert.Contains(t, err.Error(), "union types are not supported")
}

func TestGenerateSequenceReturnRejected(t *testing.T) {
	err := generateErr(t, "interface Bad { long[] All(); };")
	assert.Contains(t, err.Error(), "sequences cannot be returned")
}

func TestGenerateStringsAndSequences(t *testing.T) {
	r := generate(t, `
		interface Log {
			void Log();
			void Write([Const] DOMString msg);
			DOMString Tail();
			float Sum(float[] values);
		};
	`, DefaultOptions())

	assert.Contains(t, r.Script, "stage.prepare();")
	assert.Contains(t, r.Script, "a0 = ensureString(a0);")
	assert.Contains(t, r.Script, "a0 = ensureF32(a0);")
	assert.Contains(t, r.Script, "return UTF8ToString(_bind_Log_Tail_0(self));")

	assert.Contains(t, r.Native, "void bind_Log_Write_1(Log* self, const char* msg) {")
	assert.Contains(t, r.Native, "char* bind_Log_Tail_0(Log* self) {")
	assert.Contains(t, r.Native, "return (char*)self->Tail();")
	assert.Contains(t, r.Native, "float bind_Log_Sum_1(Log* self, float* values) {")
}

func TestGenerateValueTypes(t *testing.T) {
	r := generate(t, `
		[Value] interface Pt { attribute long x; attribute boolean live; };
		interface Canvas {
			void Canvas();
			void MoveTo([Ref] Pt p);
			[Value] Pt Center();
		};
	`, DefaultOptions())

	// Script: constructor, layout-driven marshaling, wrap helpers.
	assert.Contains(t, r.Script, "function Pt(values) {")
	assert.Contains(t, r.Script, "this.x = 0;")
	assert.Contains(t, r.Script, "Pt.__fromNative__ = function(ptr) {")
	assert.Contains(t, r.Script, "Pt.prototype.__toNative__ = function() {")
	assert.Contains(t, r.Script, "r.live = !!HEAP8[(ptr + LAYOUT[2]) >> 0];")
	assert.Contains(t, r.Script, "a0 = a0.__toNative__();")
	assert.Contains(t, r.Script, "return Pt.__fromNative__(_bind_Canvas_Center_0(self));")

	// Native: staged copies in, static staging slot out.
	assert.Contains(t, r.Native, "void bind_Canvas_MoveTo_1(Canvas* self, Pt* p) {")
	assert.Contains(t, r.Native, "self->MoveTo(*p);")
	assert.Contains(t, r.Native, "Pt* bind_Canvas_Center_0(Canvas* self) {")
	assert.Contains(t, r.Native, "static Pt staged;")
	assert.Contains(t, r.Native, "staged = self->Center();")
}

func TestGenerateCallbacks(t *testing.T) {
	r := generate(t, `
		callback Progress = void (long done, long total);
		interface Job {
			void Job();
			void Run(Progress cb);
		};
	`, DefaultOptions())

	// Script: token registry and shim.
	assert.Contains(t, r.Script, "var Progress__table = [null];")
	assert.Contains(t, r.Script, "function Progress__token(fn) {")
	assert.Contains(t, r.Script, "function bind_Progress_invoke_2(token, a0, a1) {")
	assert.Contains(t, r.Script, "var fn = Progress__table[token];")
	assert.Contains(t, r.Script, "a0 = Progress__token(a0);")

	// Native: extern shim declaration plus the adapter struct, emitted
	// outside the extern "C" block.
	assert.Contains(t, r.Native, `extern "C" void bind_Progress_invoke_2(int token, int a0, int a1);`)
	assert.Contains(t, r.Native, "struct Progress {")
	assert.Contains(t, r.Native, "explicit Progress(int token) : token(token) {}")
	assert.Contains(t, r.Native, "void operator()(int a0, int a1) const {")
	assert.Contains(t, r.Native, "bind_Progress_invoke_2(token, a0, a1);")
	assert.Contains(t, r.Native, "void bind_Job_Run_1(Job* self, int cb) {")
	assert.Contains(t, r.Native, "self->Run(Progress(cb));")
	assert.Less(t, strings.Index(r.Native, "struct Progress {"), strings.Index(r.Native, `extern "C" {`))
}

func TestGenerateCallbackRestrictions(t *testing.T) {
	err := generateErr(t, `
		callback Cb = void ();
		interface Bad { Cb Get(); };
	`)
	assert.Contains(t, err.Error(), "callbacks cannot be returned")

	err = generateErr(t, `
		callback Inner = void ();
		callback Outer = void (Inner cb);
	`)
	assert.Contains(t, err.Error(), "nested callback parameters are not supported")

	err = generateErr(t, "callback Sink = void (float[] values);")
	assert.Contains(t, err.Error(), "callback Sink, parameter values")
	assert.Contains(t, err.Error(), "sequence parameters are not supported")
}

func TestGenerateNoDelete(t *testing.T) {
	r := generate(t, "[NoDelete] interface Singleton { long Get(); };", DefaultOptions())
	assert.NotContains(t, r.Script, "Singleton.prototype.destroy")
	assert.NotContains(t, r.Native, "___destroy___")
}

func TestGenerateNoConstructor(t *testing.T) {
	r := generate(t, "interface Opaque { long Get(); };", DefaultOptions())
	assert.Contains(t, r.Script, "throw 'Opaque has no constructor';")
	assert.NotContains(t, r.Native, "bind_Opaque_Opaque_")
	// Instances still arrive via wrap from other calls.
	assert.Contains(t, r.Script, "Opaque.wrap = function(ptr) {")
}

func TestGenerateModuleExports(t *testing.T) {
	r := generate(t, `
		[Value] interface Pt { attribute long x; };
		interface A { void A(); };
	`, Options{Prefix: "bind_", ModuleName: "MyLib"})
	assert.Contains(t, r.Script, "var MyLib = {")
	assert.Contains(t, r.Script, "'Pt': Pt,")
	assert.Contains(t, r.Script, "'A': A,")
}

func TestGenerateBoolMarshaling(t *testing.T) {
	r := generate(t, `
		interface Flag {
			void Flag();
			boolean Toggle(boolean on);
		};
	`, DefaultOptions())
	assert.Contains(t, r.Script, "a0 = a0 ? 1 : 0;")
	assert.Contains(t, r.Script, "return !!(_bind_Flag_Toggle_1(self, a0));")
	assert.Contains(t, r.Native, "bool bind_Flag_Toggle_1(Flag* self, bool on) {")
}

func TestWriteFiles(t *testing.T) {
	r := &Result{Script: "// js\n", Native: "// cpp\n"}
	base := filepath.Join(t.TempDir(), "glue")
	require.NoError(t, r.WriteFiles(base))

	js, err := os.ReadFile(base + ".js")
	require.NoError(t, err)
	assert.Equal(t, "// js\n", string(js))
	cpp, err := os.ReadFile(base + ".cpp")
	require.NoError(t, err)
	assert.Equal(t, "// cpp\n", string(cpp))

	entries, err := os.ReadDir(filepath.Dir(base))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no staging leftovers after a successful write")
}

func TestWriteFilesFailureLeavesNothing(t *testing.T) {
	r := &Result{Script: "// js\n", Native: "// cpp\n"}
	dir := t.TempDir()
	base := filepath.Join(dir, "missing", "glue")
	require.Error(t, r.WriteFiles(base))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
