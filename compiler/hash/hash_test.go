package hash_test

import (
	"testing"

	"github.com/chazu/fern/compiler"
	"github.com/chazu/fern/compiler/hash"
)

func read(t *testing.T, src string) []compiler.Node {
	t.Helper()
	forms, err := compiler.Read(src)
	if err != nil {
		t.Fatalf("Read(%q): %v", src, err)
	}
	return forms
}

func TestHashUnit_NonZero(t *testing.T) {
	h := hash.HashUnit(read(t, "(+ 1 2)"), compiler.Options{})
	var zero [32]byte
	if h == zero {
		t.Error("hash should be non-zero")
	}
}

func TestHashUnit_Deterministic(t *testing.T) {
	src := "(local x {:a 1 :b [2 3]}) (print x.a)"
	opts := compiler.Options{Filename: "a.fern"}
	if hash.HashUnit(read(t, src), opts) != hash.HashUnit(read(t, src), opts) {
		t.Error("same source should produce identical hashes")
	}
}

func TestHashUnit_IgnoresTrailingComments(t *testing.T) {
	a := hash.HashUnit(read(t, "(print 1)\n(print 2)"), compiler.Options{})
	b := hash.HashUnit(read(t, "(print 1) ; first\n(print 2)   ; second"), compiler.Options{})
	if a != b {
		t.Error("comments that move no form changed the hash")
	}
}

func TestHashUnit_SensitiveToChanges(t *testing.T) {
	base := hash.HashUnit(read(t, "(print 1)"), compiler.Options{})
	variants := map[string][32]byte{
		"body":        hash.HashUnit(read(t, "(print 2)"), compiler.Options{}),
		"position":    hash.HashUnit(read(t, "\n(print 1)"), compiler.Options{}),
		"filename":    hash.HashUnit(read(t, "(print 1)"), compiler.Options{Filename: "x.fern"}),
		"correlation": hash.HashUnit(read(t, "(print 1)"), compiler.Options{CorrelateLines: true}),
		"globals":     hash.HashUnit(read(t, "(print 1)"), compiler.Options{AllowedGlobals: []string{"print"}}),
		"dependency":  hash.HashUnit(read(t, "(print 1)"), compiler.Options{}, hash.Dependency{Name: "m", Source: "{}"}),
	}
	for name, h := range variants {
		if h == base {
			t.Errorf("changing the %s left the hash unchanged", name)
		}
	}
}

func TestHashUnit_DependencyOrder(t *testing.T) {
	forms := read(t, "(f)")
	a := hash.HashUnit(forms, compiler.Options{}, hash.Dependency{Name: "a", Source: "1"}, hash.Dependency{Name: "b", Source: "2"})
	b := hash.HashUnit(forms, compiler.Options{}, hash.Dependency{Name: "b", Source: "2"}, hash.Dependency{Name: "a", Source: "1"})
	if a != b {
		t.Error("dependency order changed the hash")
	}
}

func TestFormHash_PositionFree(t *testing.T) {
	a := hash.FormHash(read(t, "(fn f [x] (* x 2))")[0])
	b := hash.FormHash(read(t, "\n\n   (fn f [x]\n     (* x 2))")[0])
	if a != b {
		t.Error("moving a form changed its hash")
	}
	c := hash.FormHash(read(t, "(fn f [y] (* y 2))")[0])
	if a == c {
		t.Error("renaming a parameter should change the hash")
	}
}

func TestHex(t *testing.T) {
	h := hash.FormHash(read(t, "x")[0])
	if s := hash.Hex(h); len(s) != 64 {
		t.Errorf("hex key length: got %d, want 64", len(s))
	}
}
