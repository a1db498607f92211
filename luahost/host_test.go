package luahost

import (
	"errors"
	"strings"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestSandboxHidesLibraries(t *testing.T) {
	st := New(Sandbox())
	defer st.Close()

	for _, name := range []string{"io", "os", "debug", "package", "require", "load", "loadstring", "dofile"} {
		if v := st.GetGlobal(name); v != lua.LNil {
			t.Errorf("sandbox exposes %s (%s)", name, v.Type())
		}
	}
	for _, name := range []string{"print", "pairs", "string", "table", "math", "pcall", "setmetatable"} {
		if v := st.GetGlobal(name); v == lua.LNil {
			t.Errorf("sandbox lacks %s", name)
		}
	}
}

func TestFullOpensLibraries(t *testing.T) {
	st := New(Full())
	defer st.Close()

	for _, name := range []string{"io", "os", "debug", "coroutine", "require", "loadstring"} {
		if v := st.GetGlobal(name); v == lua.LNil {
			t.Errorf("full state lacks %s", name)
		}
	}
	if got := st.Capabilities(); got != Full() {
		t.Errorf("Capabilities = %v", got)
	}
}

func TestCapabilitiesString(t *testing.T) {
	if got := Sandbox().String(); got != "sandbox" {
		t.Errorf("Sandbox().String() = %q", got)
	}
	c := Capabilities{IO: true}.Merge(Capabilities{Coroutine: true})
	if got := c.String(); got != "io,coroutine" {
		t.Errorf("merged String() = %q", got)
	}
}

func TestDoStringResults(t *testing.T) {
	st := New(Sandbox())
	defer st.Close()

	vals, err := st.DoString("multi", "return 1, 'a', nil")
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 3 {
		t.Fatalf("got %d values, want 3", len(vals))
	}
	if vals[2] != lua.LNil {
		t.Errorf("third value = %v, want nil", vals[2])
	}
	if top := st.L.GetTop(); top != 0 {
		t.Errorf("stack has %d leftover values", top)
	}
}

func TestDoStringErrors(t *testing.T) {
	st := New(Sandbox())
	defer st.Close()

	_, err := st.DoString("bad", "return +")
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("error %T is not *Error", err)
	}
	if e.Kind != SyntaxError || e.Chunk != "bad" {
		t.Errorf("syntax error = %+v", e)
	}

	_, err = st.DoString("boom", "error('kaboom')")
	if !errors.As(err, &e) {
		t.Fatalf("error %T is not *Error", err)
	}
	if e.Kind != RuntimeError || e.Chunk != "boom" {
		t.Errorf("runtime error kind %v chunk %q", e.Kind, e.Chunk)
	}
	if !strings.Contains(e.Message, "kaboom") || !strings.HasPrefix(err.Error(), "boom: runtime error: ") {
		t.Errorf("error = %q", err)
	}

	_, err = st.DoString("tbl", "error({code = 7})")
	if !errors.As(err, &e) {
		t.Fatalf("error %T is not *Error", err)
	}
	tbl, ok := e.Value.(*lua.LTable)
	if !ok || tbl.RawGetString("code") != lua.LNumber(7) {
		t.Errorf("error value = %v, want the raised table", e.Value)
	}
}

func TestRegisterAndCall(t *testing.T) {
	st := New(Sandbox())
	defer st.Close()

	st.Register("twice", func(L *lua.LState) int {
		L.Push(L.CheckNumber(1) * 2)
		return 1
	})
	vals, err := st.DoString("reg", "return twice(21)")
	if err != nil {
		t.Fatal(err)
	}
	if FormatAll(vals) != "42" {
		t.Errorf("twice(21) = %s", FormatAll(vals))
	}

	fn, err := st.Load("adder", "return function(a, b) return a + b end")
	if err != nil {
		t.Fatal(err)
	}
	out, err := st.Call(fn)
	if err != nil {
		t.Fatal(err)
	}
	sum, err := st.Call(out[0], lua.LNumber(2), lua.LNumber(3))
	if err != nil {
		t.Fatal(err)
	}
	if FormatAll(sum) != "5" {
		t.Errorf("adder(2, 3) = %s", FormatAll(sum))
	}
}
