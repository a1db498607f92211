package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/chazu/fern/compiler"
	"github.com/chazu/fern/luahost"
)

func newSession(t *testing.T) *Session {
	t.Helper()
	s, err := New(Options{Name: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func evalOK(t *testing.T, s *Session, src string) string {
	t.Helper()
	vals, err := s.Eval(src)
	if err != nil {
		t.Fatalf("Eval(%q): %v", src, err)
	}
	return strings.Join(vals, " ")
}

func TestSessionID(t *testing.T) {
	s := newSession(t)
	if _, err := uuid.Parse(s.ID); err != nil {
		t.Errorf("ID %q is not a UUID: %v", s.ID, err)
	}
	if s.Name != "test" {
		t.Errorf("Name = %q", s.Name)
	}
}

func TestEvalValues(t *testing.T) {
	s := newSession(t)
	tests := []struct {
		src, want string
	}{
		{"(+ 1 2)", "3"},
		{`(values 1 "two" :three)`, `1 "two" "three"`},
		{"{:a [1 2]}", "{:a [1 2]}"},
		{"(local unused 1)", ""},
	}
	for _, tc := range tests {
		if got := evalOK(t, s, tc.src); got != tc.want {
			t.Errorf("Eval(%s) = %q, want %q", tc.src, got, tc.want)
		}
	}
}

func TestLocalsPersistAcrossEvals(t *testing.T) {
	s := newSession(t)
	evalOK(t, s, "(local x 10)")
	evalOK(t, s, "(fn double [n] (* n 2))")
	if got := evalOK(t, s, "(double x)"); got != "20" {
		t.Errorf("(double x) = %s, want 20", got)
	}
	evalOK(t, s, "(var counter 0)")
	evalOK(t, s, "(set counter (+ counter 5))")
	if got := evalOK(t, s, "counter"); got != "5" {
		t.Errorf("counter = %s, want 5", got)
	}
	if _, ok := s.Scope().Lookup("double"); !ok {
		t.Error("double missing from the session scope")
	}
}

func TestGlobalsAreAllowed(t *testing.T) {
	s := newSession(t)
	evalOK(t, s, "(set answer 42)")
	if got := evalOK(t, s, "answer"); got != "42" {
		t.Errorf("answer = %s, want 42", got)
	}
}

func TestMacrosPersistAcrossEvals(t *testing.T) {
	s := newSession(t)
	evalOK(t, s, "(macro twice [x] `(* 2 ,x))")
	if got := evalOK(t, s, "(twice 21)"); got != "42" {
		t.Errorf("(twice 21) = %s, want 42", got)
	}
	if _, ok := s.Macros().Lookup("twice"); !ok {
		t.Error("twice missing from the session macros")
	}
}

func TestIncompleteInput(t *testing.T) {
	s := newSession(t)
	_, err := s.Eval("(+ 1")
	if err == nil || !compiler.Incomplete(err) {
		t.Fatalf("Eval of an open form: err = %v, want an incomplete error", err)
	}
	if got := evalOK(t, s, "(+ 1\n 2)"); got != "3" {
		t.Errorf("continued input = %s, want 3", got)
	}
}

func TestErrorsDoNotPoisonSession(t *testing.T) {
	s := newSession(t)
	if _, err := s.Eval("(local)"); err == nil {
		t.Fatal("expected a compile error")
	}
	_, err := s.Eval("(error \"boom\")")
	var le *luahost.Error
	if !errors.As(err, &le) || !strings.Contains(le.Message, "boom") {
		t.Fatalf("runtime error = %v", err)
	}
	if got := evalOK(t, s, "(local ok 1) ok"); got != "1" {
		t.Errorf("after errors = %s, want 1", got)
	}
}

func TestSandboxedByDefault(t *testing.T) {
	s := newSession(t)
	if got := evalOK(t, s, "(type io)"); got != `"nil"` {
		t.Errorf("(type io) = %s, want \"nil\"", got)
	}

	full, err := New(Options{Capabilities: luahost.Full()})
	if err != nil {
		t.Fatal(err)
	}
	defer full.Close()
	if got := evalOK(t, full, "(type io)"); got != `"table"` {
		t.Errorf("(type io) with io = %s, want \"table\"", got)
	}
}

func TestRunFile(t *testing.T) {
	s := newSession(t)
	path := filepath.Join(t.TempDir(), "main.fern")
	if err := os.WriteFile(path, []byte("(fn sq [x] (* x x))\n(sq 7)"), 0644); err != nil {
		t.Fatal(err)
	}
	vals, err := s.RunFile(path)
	if err != nil {
		t.Fatalf("RunFile: %v", err)
	}
	if len(vals) != 1 || vals[0] != "49" {
		t.Errorf("RunFile = %v, want [49]", vals)
	}
	// a file gets its own scope
	if _, ok := s.Scope().Lookup("sq"); ok {
		t.Error("file binding leaked into the session scope")
	}
}

func TestCompileFileErrors(t *testing.T) {
	s := newSession(t)
	if _, err := s.CompileFile(filepath.Join(t.TempDir(), "missing.fern")); err == nil {
		t.Error("expected an error for a missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.fern")
	if err := os.WriteFile(path, []byte("(let [x] x)"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := s.CompileFile(path)
	if err == nil || !strings.HasPrefix(err.Error(), path+":1:") {
		t.Errorf("compile error = %v, want it located in %s", err, path)
	}
}

func TestMapLines(t *testing.T) {
	lines := compiler.LineMap{
		2: {Line: 5, Column: 1},
		3: {Line: 9, Column: 3},
	}
	tests := []struct {
		msg, want string
	}{
		{"repl-4:3: attempt to call a nil value", "main.fern:9: attempt to call a nil value"},
		{"repl-4:2: x\nrepl-4:7: y", "main.fern:5: x\nrepl-4:7: y"},
		{"other:3: untouched", "other:3: untouched"},
		{"no location", "no location"},
	}
	for _, tc := range tests {
		if got := MapLines(tc.msg, "repl-4", "main.fern", lines); got != tc.want {
			t.Errorf("MapLines(%q) = %q, want %q", tc.msg, got, tc.want)
		}
	}
}
