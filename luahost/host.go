// Package luahost wraps a gopher-lua state as the host runtime: the
// restricted evaluator macros run in, and the full runtime the REPL and
// the run command execute compiled chunks in.
package luahost

import (
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Capabilities selects which host libraries a state opens beyond the
// always-available base, table, string and math libraries.
type Capabilities struct {
	IO        bool // io library
	OS        bool // os library
	Package   bool // package library with require
	Debug     bool // debug library
	Coroutine bool // coroutine library
	// Load keeps dofile, loadfile, load and loadstring.
	Load bool
}

// Sandbox returns the capabilities of the restricted macro evaluator.
func Sandbox() Capabilities { return Capabilities{} }

// Full returns every capability.
func Full() Capabilities {
	return Capabilities{IO: true, OS: true, Package: true, Debug: true, Coroutine: true, Load: true}
}

// Merge returns the union of c and o.
func (c Capabilities) Merge(o Capabilities) Capabilities {
	return Capabilities{
		IO:        c.IO || o.IO,
		OS:        c.OS || o.OS,
		Package:   c.Package || o.Package,
		Debug:     c.Debug || o.Debug,
		Coroutine: c.Coroutine || o.Coroutine,
		Load:      c.Load || o.Load,
	}
}

// String lists the granted capabilities.
func (c Capabilities) String() string {
	var parts []string
	for _, f := range []struct {
		on   bool
		name string
	}{
		{c.IO, "io"}, {c.OS, "os"}, {c.Package, "package"},
		{c.Debug, "debug"}, {c.Coroutine, "coroutine"}, {c.Load, "load"},
	} {
		if f.on {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "sandbox"
	}
	return strings.Join(parts, ",")
}

// State is a Lua state. It is not safe for concurrent use.
type State struct {
	L    *lua.LState
	caps Capabilities
}

// New creates a state with the given capabilities.
func New(caps Capabilities) *State {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	s := &State{L: L, caps: caps}

	type lib struct {
		name string
		fn   lua.LGFunction
	}
	libs := []lib{}
	if caps.Package {
		libs = append(libs, lib{lua.LoadLibName, lua.OpenPackage})
	}
	libs = append(libs,
		lib{lua.BaseLibName, lua.OpenBase},
		lib{lua.TabLibName, lua.OpenTable},
		lib{lua.StringLibName, lua.OpenString},
		lib{lua.MathLibName, lua.OpenMath},
	)
	if caps.IO {
		libs = append(libs, lib{lua.IoLibName, lua.OpenIo})
	}
	if caps.OS {
		libs = append(libs, lib{lua.OsLibName, lua.OpenOs})
	}
	if caps.Debug {
		libs = append(libs, lib{lua.DebugLibName, lua.OpenDebug})
	}
	if caps.Coroutine {
		libs = append(libs, lib{lua.CoroutineLibName, lua.OpenCoroutine})
	}
	for _, l := range libs {
		L.Push(L.NewFunction(l.fn))
		L.Push(lua.LString(l.name))
		L.Call(1, 0)
	}

	if !caps.Load {
		for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
			L.SetGlobal(name, lua.LNil)
		}
	}
	if !caps.Package {
		L.SetGlobal("require", lua.LNil)
		L.SetGlobal("module", lua.LNil)
	}
	return s
}

// Capabilities returns the capabilities the state was created with.
func (s *State) Capabilities() Capabilities { return s.caps }

// Close releases the state.
func (s *State) Close() {
	s.L.Close()
}

// Load compiles Lua source into a function without running it.
func (s *State) Load(chunkName, code string) (*lua.LFunction, error) {
	fn, err := s.L.Load(strings.NewReader(code), chunkName)
	if err != nil {
		return nil, newError(chunkName, err)
	}
	return fn, nil
}

// Call invokes fn in protected mode and returns all of its results.
func (s *State) Call(fn lua.LValue, args ...lua.LValue) ([]lua.LValue, error) {
	L := s.L
	base := L.GetTop()
	err := L.CallByParam(lua.P{Fn: fn, NRet: lua.MultRet, Protect: true}, args...)
	if err != nil {
		L.SetTop(base)
		return nil, newError("", err)
	}
	n := L.GetTop() - base
	out := make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		out[i] = L.Get(base + 1 + i)
	}
	L.SetTop(base)
	return out, nil
}

// DoString loads and runs a chunk, returning its results.
func (s *State) DoString(chunkName, code string) ([]lua.LValue, error) {
	fn, err := s.Load(chunkName, code)
	if err != nil {
		return nil, err
	}
	out, err := s.Call(fn)
	if e, ok := err.(*Error); ok && e.Chunk == "" {
		e.Chunk = chunkName
	}
	return out, err
}

// SetGlobal sets a global variable.
func (s *State) SetGlobal(name string, v lua.LValue) {
	s.L.SetGlobal(name, v)
}

// GetGlobal reads a global variable.
func (s *State) GetGlobal(name string) lua.LValue {
	return s.L.GetGlobal(name)
}

// Register exposes a Go function as a global.
func (s *State) Register(name string, fn lua.LGFunction) {
	s.L.SetGlobal(name, s.L.NewFunction(fn))
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// ErrorKind distinguishes syntax errors in generated code from runtime
// errors raised while it runs.
type ErrorKind int

const (
	RuntimeError ErrorKind = iota
	SyntaxError
)

// Error is a failure reported by the Lua state.
type Error struct {
	Kind      ErrorKind
	Chunk     string
	Message   string // the error value as a string
	Value     lua.LValue
	Traceback string
}

func (e *Error) Error() string {
	kind := "runtime error"
	if e.Kind == SyntaxError {
		kind = "syntax error"
	}
	if e.Chunk != "" {
		return fmt.Sprintf("%s: %s: %s", e.Chunk, kind, e.Message)
	}
	return kind + ": " + e.Message
}

func newError(chunk string, err error) *Error {
	e := &Error{Chunk: chunk, Message: err.Error(), Value: lua.LString(err.Error())}
	if api, ok := err.(*lua.ApiError); ok {
		if api.Type == lua.ApiErrorSyntax {
			e.Kind = SyntaxError
		}
		if api.Object != nil {
			e.Value = api.Object
			e.Message = api.Object.String()
		}
		e.Traceback = api.StackTrace
	}
	return e
}
