package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/chazu/fern/compiler"
)

// Dependency is an input a compilation reads besides its own source, such
// as a macro module reachable through import-macros.
type Dependency struct {
	Name   string
	Source string
}

// HashUnit computes the SHA-256 content hash of one compilation.
//
// The hash covers a deterministic serialization of the forms with their
// positions, the options that change the output and the given
// dependencies. Two units with equal hashes compile to the same code,
// line map and warnings. Comments and whitespace that do not move a form
// do not change the hash.
func HashUnit(forms []compiler.Node, opts compiler.Options, deps ...Dependency) [32]byte {
	return sha256.Sum256(Serialize(NormalizeUnit(forms, opts, deps)))
}

// FormHash computes a position-free hash of one form. Moving a form
// within a file leaves its hash unchanged.
func FormHash(form compiler.Node) [32]byte {
	return sha256.Sum256(Serialize(NormalizeForm(form, false)))
}

// Hex renders a hash as a lowercase hex key.
func Hex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}
