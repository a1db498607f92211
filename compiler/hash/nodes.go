package hash

// ---------------------------------------------------------------------------
// Frozen hashing AST types.
//
// These are stripped-down parallels of compiler/ast.go. A node carries its
// source position only when the hash has to distinguish where a form sits
// (line maps and warnings depend on it); FormHash leaves Pos nil.
// ---------------------------------------------------------------------------

// HNode is the interface implemented by all hashing AST nodes.
type HNode interface {
	hnode() // marker method
}

// HPos is a source line and column.
type HPos struct {
	Line   uint32
	Column uint32
}

// ---------------------------------------------------------------------------
// Atoms
// ---------------------------------------------------------------------------

// HNumber keeps the literal's Lua spelling, which the emitter copies
// verbatim.
type HNumber struct {
	Pos  *HPos
	Text string
}

type HString struct {
	Pos   *HPos
	Value string
}

type HKeyword struct {
	Pos  *HPos
	Name string
}

type HSymbol struct {
	Pos  *HPos
	Name string
}

func (*HNumber) hnode()  {}
func (*HString) hnode()  {}
func (*HKeyword) hnode() {}
func (*HSymbol) hnode()  {}

// ---------------------------------------------------------------------------
// Collections
// ---------------------------------------------------------------------------

type HList struct {
	Pos   *HPos
	Items []HNode
}

type HSequence struct {
	Pos   *HPos
	Items []HNode
}

// HTable keeps pairs in source order; emitted Lua preserves it.
type HTable struct {
	Pos   *HPos
	Pairs [][2]HNode
}

func (*HList) hnode()     {}
func (*HSequence) hnode() {}
func (*HTable) hnode()    {}

// ---------------------------------------------------------------------------
// Unit structure
// ---------------------------------------------------------------------------

// HOptions holds the compile options that change generated code,
// warnings or line maps.
type HOptions struct {
	Filename                string
	AllowGlobalDeclarations bool
	CorrelateLines          bool
	PersistLocals           bool
	RestrictGlobals         bool
	AllowedGlobals          []string // sorted, deduplicated
}

// HDependency is an input outside the unit that can change its
// compilation, such as a macro module.
type HDependency struct {
	Name   string
	Source string
}

// HUnit is the top-level hashing node for one compilation.
type HUnit struct {
	Options *HOptions
	Deps    []*HDependency // sorted by name
	Forms   []HNode
}

func (*HOptions) hnode()    {}
func (*HDependency) hnode() {}
func (*HUnit) hnode()       {}
