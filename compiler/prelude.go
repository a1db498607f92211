package compiler

import (
	_ "embed"
)

//go:embed prelude.fern
var preludeSource string

// PreludeSource returns the fern source of the core macros.
func PreludeSource() string { return preludeSource }

// loadPrelude defines the core macros in ns.
func (ns *MacroNamespace) loadPrelude() error {
	c := &Compiler{
		opts:   Options{Filename: "prelude.fern", Macros: ns},
		scope:  NewScope(),
		macros: ns,
	}
	_, err := c.CompileString(preludeSource)
	return err
}
