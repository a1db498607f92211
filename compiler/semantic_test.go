package compiler

import (
	"strings"
	"testing"
)

func readParams(t *testing.T, src string) *Sequence {
	t.Helper()
	seq, ok := mustRead(t, src)[0].(*Sequence)
	if !ok {
		t.Fatalf("%s is not a sequence", src)
	}
	return seq
}

func TestSemanticAnalyzer_FnParamsAreOptional(t *testing.T) {
	a := paramArity(readParams(t, "[a b c]"), false)
	if a.Min != 0 || a.Max != 3 || a.Variadic {
		t.Errorf("arity = %+v, want min 0 max 3", *a)
	}
}

func TestSemanticAnalyzer_LambdaParamsAreRequired(t *testing.T) {
	tests := []struct {
		params   string
		min, max int
		variadic bool
	}{
		{"[a b]", 2, 2, false},
		{"[a ?b]", 1, 2, false},
		{"[a _b c]", 3, 3, false},
		{"[?a ?b]", 0, 2, false},
		{"[a ...]", 1, 1, true},
		{"[]", 0, 0, false},
	}
	for _, tc := range tests {
		a := paramArity(readParams(t, tc.params), true)
		if a.Min != tc.min || a.Max != tc.max || a.Variadic != tc.variadic {
			t.Errorf("paramArity(%s) = %+v, want min %d max %d variadic %v",
				tc.params, *a, tc.min, tc.max, tc.variadic)
		}
	}
}

func TestSemanticAnalyzer_LiteralArity(t *testing.T) {
	if a := literalArity(mustRead(t, "(fn [x y] x)")[0]); a == nil || a.Max != 2 {
		t.Errorf("fn literal arity = %v", a)
	}
	if a := literalArity(mustRead(t, "(λ [x] x)")[0]); a == nil || a.Min != 1 {
		t.Errorf("λ literal arity = %v", a)
	}
	for _, src := range []string{"(f [x] x)", "x", "(fn name [x] x)", "[fn]"} {
		if a := literalArity(mustRead(t, src)[0]); a != nil {
			t.Errorf("literalArity(%s) = %+v, want nil", src, *a)
		}
	}
}

func TestSemanticAnalyzer_BindingRecordsArity(t *testing.T) {
	c, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.CompileString("(local f (lambda [a ?b] a)) (fn g [x ...] x) (var h (fn [] 1))"); err != nil {
		t.Fatal(err)
	}
	f, _ := c.Scope().Lookup("f")
	if f.Arity == nil || f.Arity.Min != 1 || f.Arity.Max != 2 {
		t.Errorf("f arity = %v", f.Arity)
	}
	g, _ := c.Scope().Lookup("g")
	if g.Arity == nil || !g.Arity.Variadic {
		t.Errorf("g arity = %v", g.Arity)
	}
	if h, _ := c.Scope().Lookup("h"); !h.Mutable {
		t.Error("var binding h is not mutable")
	}
}

func TestSemanticAnalyzer_WarningFormat(t *testing.T) {
	res, err := Compile("(local f (fn [a] a))\n(f 1 2)", Options{Filename: "w.fern"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(res.Warnings))
	}
	w := res.Warnings[0].String()
	if !strings.HasPrefix(w, "w.fern:2:1: warning: ") {
		t.Errorf("warning = %q", w)
	}
	if !strings.Contains(w, "'f' expects at most 1 argument, got 2") {
		t.Errorf("warning = %q", w)
	}
}
