package compiler

import (
	"strings"
)

// ---------------------------------------------------------------------------
// AST: immutable syntax tree produced by the reader
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// IsValid reports whether the position refers to real source text.
func (p Position) IsValid() bool { return p.Line > 0 }

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes. The set of node
// types is closed: Symbol, Keyword, Number, String, List, Sequence, Table.
type Node interface {
	Span() Span
	String() string
	node() // marker method
}

// Symbol is a bare identifier, possibly dotted (tbl.field) or a method
// reference (obj:method).
type Symbol struct {
	SpanVal Span
	Name    string
}

func (n *Symbol) Span() Span     { return n.SpanVal }
func (n *Symbol) String() string { return n.Name }
func (n *Symbol) node()          {}

// Keyword is a :name atom. It evaluates to the string "name".
type Keyword struct {
	SpanVal Span
	Name    string
}

func (n *Keyword) Span() Span     { return n.SpanVal }
func (n *Keyword) String() string { return ":" + n.Name }
func (n *Keyword) node()          {}

// Number is a numeric literal. Text is the Lua-compatible spelling.
type Number struct {
	SpanVal Span
	Text    string
	Value   float64
}

func (n *Number) Span() Span     { return n.SpanVal }
func (n *Number) String() string { return n.Text }
func (n *Number) node()          {}

// String is a string literal holding its decoded value.
type String struct {
	SpanVal Span
	Value   string
}

func (n *String) Span() Span     { return n.SpanVal }
func (n *String) String() string { return QuoteString(n.Value) }
func (n *String) node()          {}

// List is a parenthesized form: special form, macro call or call.
type List struct {
	SpanVal Span
	Items   []Node
}

func (n *List) Span() Span     { return n.SpanVal }
func (n *List) String() string { return "(" + joinNodes(n.Items) + ")" }
func (n *List) node()          {}

// Head returns the first item, or nil for the empty list.
func (n *List) Head() Node {
	if len(n.Items) == 0 {
		return nil
	}
	return n.Items[0]
}

// Args returns the items after the head.
func (n *List) Args() []Node {
	if len(n.Items) < 2 {
		return nil
	}
	return n.Items[1:]
}

// Sequence is a [...] table literal with implicit integer keys.
type Sequence struct {
	SpanVal Span
	Items   []Node
}

func (n *Sequence) Span() Span     { return n.SpanVal }
func (n *Sequence) String() string { return "[" + joinNodes(n.Items) + "]" }
func (n *Sequence) node()          {}

// Pair is one key/value entry of a Table.
type Pair struct {
	Key   Node
	Value Node
}

// Table is a {...} table literal; pairs keep source order.
type Table struct {
	SpanVal Span
	Pairs   []Pair
}

func (n *Table) Span() Span { return n.SpanVal }
func (n *Table) String() string {
	parts := make([]string, 0, len(n.Pairs)*2)
	for _, p := range n.Pairs {
		parts = append(parts, p.Key.String(), p.Value.String())
	}
	return "{" + strings.Join(parts, " ") + "}"
}
func (n *Table) node() {}

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, " ")
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// MakeSpan creates a span from start and end positions.
func MakeSpan(start, end Position) Span {
	return Span{Start: start, End: end}
}

// ZeroSpan returns an empty span.
func ZeroSpan() Span {
	return Span{}
}

// Sym creates a symbol with the given span.
func Sym(name string, span Span) *Symbol {
	return &Symbol{SpanVal: span, Name: name}
}

// IsSym reports whether n is the symbol name.
func IsSym(n Node, name string) bool {
	s, ok := n.(*Symbol)
	return ok && s.Name == name
}

// HeadName returns the symbol name at the head of a list, or "".
func HeadName(n Node) string {
	l, ok := n.(*List)
	if !ok || len(l.Items) == 0 {
		return ""
	}
	if s, ok := l.Items[0].(*Symbol); ok {
		return s.Name
	}
	return ""
}

// IsMultiSym reports whether the symbol is a dotted field path or
// method reference rather than a plain name.
func (n *Symbol) IsMultiSym() bool {
	if strings.Trim(n.Name, ".:") == "" {
		return false // ., .., ..., :
	}
	return strings.ContainsAny(n.Name, ".:")
}

// Parts splits a multi-sym into its root name and field names. For a
// method reference the last element is the method name and method is true.
func (n *Symbol) Parts() (parts []string, method bool) {
	name := n.Name
	if i := strings.LastIndexByte(name, ':'); i > 0 {
		method = true
		parts = append(strings.Split(name[:i], "."), name[i+1:])
		return parts, method
	}
	return strings.Split(name, "."), false
}

// validMultiSym reports whether every part of a multi-sym is non-empty
// and at most one ':' appears, as the final separator.
func validMultiSym(name string) bool {
	if strings.Count(name, ":") > 1 {
		return false
	}
	if i := strings.IndexByte(name, ':'); i >= 0 && strings.Contains(name[i:], ".") {
		return false
	}
	for _, part := range strings.Split(strings.ReplaceAll(name, ":", "."), ".") {
		if part == "" {
			return false
		}
	}
	return true
}
