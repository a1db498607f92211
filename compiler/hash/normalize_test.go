package hash

import (
	"testing"

	"github.com/chazu/fern/compiler"
)

func readForms(t *testing.T, src string) []compiler.Node {
	t.Helper()
	forms, err := compiler.Read(src)
	if err != nil {
		t.Fatalf("Read(%q): %v", src, err)
	}
	return forms
}

func TestNormalize_StripsPositions(t *testing.T) {
	form := readForms(t, "(f [1] {:a b})")[0]
	h := NormalizeForm(form, false)

	list, ok := h.(*HList)
	if !ok {
		t.Fatalf("got %T, want *HList", h)
	}
	if list.Pos != nil {
		t.Error("position-free normalization kept a position")
	}
	if len(list.Items) != 3 {
		t.Fatalf("items: got %d, want 3", len(list.Items))
	}
	if sym, ok := list.Items[0].(*HSymbol); !ok || sym.Name != "f" {
		t.Errorf("item 0: got %#v", list.Items[0])
	}
	seq, ok := list.Items[1].(*HSequence)
	if !ok || len(seq.Items) != 1 {
		t.Fatalf("item 1: got %#v", list.Items[1])
	}
	if num, ok := seq.Items[0].(*HNumber); !ok || num.Text != "1" || num.Pos != nil {
		t.Errorf("sequence item: got %#v", seq.Items[0])
	}
	tbl, ok := list.Items[2].(*HTable)
	if !ok || len(tbl.Pairs) != 1 {
		t.Fatalf("item 2: got %#v", list.Items[2])
	}
	if kw, ok := tbl.Pairs[0][0].(*HKeyword); !ok || kw.Name != "a" {
		t.Errorf("table key: got %#v", tbl.Pairs[0][0])
	}
}

func TestNormalize_KeepsPositions(t *testing.T) {
	form := readForms(t, "\n  (f x)")[0]
	list := NormalizeForm(form, true).(*HList)
	if list.Pos == nil || list.Pos.Line != 2 || list.Pos.Column != 3 {
		t.Errorf("list position: got %+v, want 2:3", list.Pos)
	}
	x := list.Items[1].(*HSymbol)
	if x.Pos == nil || x.Pos.Column != 6 {
		t.Errorf("x position: got %+v, want column 6", x.Pos)
	}
}

func TestNormalize_QuoteSugar(t *testing.T) {
	a := NormalizeForm(readForms(t, "'x")[0], false)
	b := NormalizeForm(readForms(t, "(quote x)")[0], false)
	if string(Serialize(a)) != string(Serialize(b)) {
		t.Error("'x and (quote x) normalize differently")
	}
}

func TestNormalizeOptions_AllowedGlobals(t *testing.T) {
	h := NormalizeOptions(compiler.Options{AllowedGlobals: []string{"print", "string", "print"}})
	if !h.RestrictGlobals {
		t.Error("a global list should restrict globals")
	}
	if len(h.AllowedGlobals) != 2 || h.AllowedGlobals[0] != "print" || h.AllowedGlobals[1] != "string" {
		t.Errorf("allowed globals: got %v", h.AllowedGlobals)
	}

	open := NormalizeOptions(compiler.Options{})
	closed := NormalizeOptions(compiler.Options{AllowedGlobals: []string{}})
	if open.RestrictGlobals || !closed.RestrictGlobals {
		t.Error("nil and empty global lists must stay distinct")
	}
}

func TestNormalizeUnit_SortsDependencies(t *testing.T) {
	u := NormalizeUnit(nil, compiler.Options{}, []Dependency{
		{Name: "z.fern", Source: "{}"},
		{Name: "a.fern", Source: "{}"},
	})
	if len(u.Deps) != 2 || u.Deps[0].Name != "a.fern" || u.Deps[1].Name != "z.fern" {
		t.Errorf("deps: got %v", u.Deps)
	}
}
