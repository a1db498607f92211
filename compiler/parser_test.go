package compiler

import (
	"errors"
	"strings"
	"testing"
)

func mustRead(t *testing.T, src string) []Node {
	t.Helper()
	forms, err := Read(src)
	if err != nil {
		t.Fatalf("Read(%q): %v", src, err)
	}
	return forms
}

func TestReadAtoms(t *testing.T) {
	forms := mustRead(t, `42 "hi" :kw sym tbl.field nil`)
	if len(forms) != 6 {
		t.Fatalf("got %d forms, want 6", len(forms))
	}
	if n, ok := forms[0].(*Number); !ok || n.Value != 42 || n.Text != "42" {
		t.Errorf("forms[0] = %#v, want number 42", forms[0])
	}
	if s, ok := forms[1].(*String); !ok || s.Value != "hi" {
		t.Errorf("forms[1] = %#v, want string hi", forms[1])
	}
	if k, ok := forms[2].(*Keyword); !ok || k.Name != "kw" {
		t.Errorf("forms[2] = %#v, want keyword kw", forms[2])
	}
	if !IsSym(forms[3], "sym") {
		t.Errorf("forms[3] = %#v, want symbol sym", forms[3])
	}
	if s, ok := forms[4].(*Symbol); !ok || !s.IsMultiSym() {
		t.Errorf("forms[4] = %#v, want a multisym", forms[4])
	}
	if !IsSym(forms[5], "nil") {
		t.Errorf("forms[5] = %#v, want symbol nil", forms[5])
	}
}

func TestReadCollections(t *testing.T) {
	forms := mustRead(t, `(f [1 2] {:a 1 "b" 2})`)
	list, ok := forms[0].(*List)
	if !ok || len(list.Items) != 3 {
		t.Fatalf("got %#v, want a list of 3", forms[0])
	}
	seq, ok := list.Items[1].(*Sequence)
	if !ok || len(seq.Items) != 2 {
		t.Errorf("item 1 = %#v, want a sequence of 2", list.Items[1])
	}
	tbl, ok := list.Items[2].(*Table)
	if !ok || len(tbl.Pairs) != 2 {
		t.Fatalf("item 2 = %#v, want a table of 2 pairs", list.Items[2])
	}
	if k, ok := tbl.Pairs[0].Key.(*Keyword); !ok || k.Name != "a" {
		t.Errorf("first key = %v, want :a", tbl.Pairs[0].Key)
	}
	if k, ok := tbl.Pairs[1].Key.(*String); !ok || k.Value != "b" {
		t.Errorf("second key = %v, want \"b\"", tbl.Pairs[1].Key)
	}
}

func TestReadRoundTripString(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"(+ 1 2)", "(+ 1 2)"},
		{"[a  b\n c]", "[a b c]"},
		{"{:a 1}", "{:a 1}"},
		{"'x", "(quote x)"},
		{"`(a ,b)", "(quote (a (unquote b)))"},
		{`"a\"b"`, `"a\"b"`},
		{"()", "()"},
	}
	for _, tc := range tests {
		forms := mustRead(t, tc.src)
		if len(forms) != 1 {
			t.Fatalf("Read(%q) = %d forms", tc.src, len(forms))
		}
		if got := forms[0].String(); got != tc.want {
			t.Errorf("Read(%q).String() = %q, want %q", tc.src, got, tc.want)
		}
	}
}

func TestReadSpans(t *testing.T) {
	forms := mustRead(t, "x\n  (foo bar)")
	list := forms[1].(*List)
	sp := list.Span()
	if sp.Start.Line != 2 || sp.Start.Column != 3 {
		t.Errorf("list starts at %d:%d, want 2:3", sp.Start.Line, sp.Start.Column)
	}
	if sp.End.Column != 12 {
		t.Errorf("list ends at column %d, want 12", sp.End.Column)
	}
	if bar := list.Items[1].Span().Start; bar.Column != 8 {
		t.Errorf("bar at column %d, want 8", bar.Column)
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		src        string
		msg        string
		incomplete bool
	}{
		{"(foo", "unterminated '(' opened at line 1, column 1", true},
		{"[1 2", "unterminated '['", true},
		{`"abc`, "unterminated string", true},
		{"'", "expected a form after", true},
		{")", "unexpected closing delimiter ')'", false},
		{"(foo]", "mismatched delimiter: expected ')' to close '('", false},
		{"{:a}", "odd number of forms in table literal (1)", false},
		{`"\q"`, "invalid escape sequence", false},
	}
	for _, tc := range tests {
		_, err := Read(tc.src)
		if err == nil {
			t.Errorf("Read(%q): expected an error", tc.src)
			continue
		}
		if !strings.Contains(err.Error(), tc.msg) {
			t.Errorf("Read(%q) error = %q, want it to contain %q", tc.src, err, tc.msg)
		}
		if got := Incomplete(err); got != tc.incomplete {
			t.Errorf("Incomplete(Read(%q)) = %v, want %v", tc.src, got, tc.incomplete)
		}
		var re *ReaderError
		if !errors.As(err, &re) {
			t.Errorf("Read(%q) error %T is not a *ReaderError", tc.src, err)
		}
	}
}

func TestReadRecoversAfterError(t *testing.T) {
	p := NewParser("(good 1) (bad] (also good)")
	forms := p.ParseAll()
	if len(p.Errors()) != 1 {
		t.Fatalf("got %d errors %v, want 1", len(p.Errors()), p.Errors())
	}
	if len(forms) != 2 {
		t.Fatalf("got %d forms, want 2", len(forms))
	}
	if HeadName(forms[0]) != "good" || HeadName(forms[1]) != "also" {
		t.Errorf("forms = %v %v", forms[0], forms[1])
	}
}

func TestReadErrorLocation(t *testing.T) {
	_, err := ReadNamed("main.fern", "(ok)\n  (oops")
	diags := Diagnostics(err)
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	d := diags[0]
	if d.At().Line != 2 || d.At().Column != 3 {
		t.Errorf("error at %d:%d, want 2:3", d.At().Line, d.At().Column)
	}
	if !strings.HasPrefix(err.Error(), "main.fern:2:3") {
		t.Errorf("error = %q, want a main.fern:2:3 prefix", err)
	}
	if !strings.Contains(d.Detail(), "(oops") {
		t.Errorf("detail %q lacks the source excerpt", d.Detail())
	}
}

func TestMultiSymParts(t *testing.T) {
	tests := []struct {
		name   string
		parts  []string
		method bool
	}{
		{"a.b.c", []string{"a", "b", "c"}, false},
		{"obj:method", []string{"obj", "method"}, true},
		{"a.b:m", []string{"a", "b", "m"}, true},
	}
	for _, tc := range tests {
		parts, method := (&Symbol{Name: tc.name}).Parts()
		if method != tc.method || strings.Join(parts, "|") != strings.Join(tc.parts, "|") {
			t.Errorf("Parts(%q) = %v %v, want %v %v", tc.name, parts, method, tc.parts, tc.method)
		}
	}
	for _, name := range []string{"a..b", "a:b:c", "a:b.c", "a."} {
		if validMultiSym(name) {
			t.Errorf("validMultiSym(%q) = true", name)
		}
	}
	for _, name := range []string{".", "..", "...", ":"} {
		if (&Symbol{Name: name}).IsMultiSym() {
			t.Errorf("%q reported as a multisym", name)
		}
	}
}
