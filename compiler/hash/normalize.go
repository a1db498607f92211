package hash

import (
	"sort"

	"github.com/chazu/fern/compiler"
)

// ---------------------------------------------------------------------------
// Normalization: compiler AST → frozen hashing AST
//
// Walks reader forms and produces the frozen hashing AST. Spans collapse
// to a line and column, or disappear entirely for position-free hashes.
// ---------------------------------------------------------------------------

// normalizer holds state for the normalization walk.
type normalizer struct {
	positions bool
}

// NormalizeForm transforms one reader form. With positions false the
// result depends only on the form's structure.
func NormalizeForm(form compiler.Node, positions bool) HNode {
	n := &normalizer{positions: positions}
	return n.normalize(form)
}

// NormalizeOptions keeps the options that affect compilation output.
// Scope, Macros and MacroLoader are runtime wiring; callers fold their
// effect in through dependencies.
func NormalizeOptions(opts compiler.Options) *HOptions {
	h := &HOptions{
		Filename:                opts.Filename,
		AllowGlobalDeclarations: opts.AllowGlobalDeclarations,
		CorrelateLines:          opts.CorrelateLines,
		PersistLocals:           opts.PersistLocals,
		RestrictGlobals:         opts.AllowedGlobals != nil,
	}
	if opts.AllowedGlobals != nil {
		seen := make(map[string]bool, len(opts.AllowedGlobals))
		for _, g := range opts.AllowedGlobals {
			if !seen[g] {
				seen[g] = true
				h.AllowedGlobals = append(h.AllowedGlobals, g)
			}
		}
		sort.Strings(h.AllowedGlobals)
	}
	return h
}

// NormalizeUnit transforms a whole compilation: its options, its external
// dependencies and its forms with positions.
func NormalizeUnit(forms []compiler.Node, opts compiler.Options, deps []Dependency) *HUnit {
	n := &normalizer{positions: true}
	u := &HUnit{Options: NormalizeOptions(opts)}
	for _, d := range deps {
		u.Deps = append(u.Deps, &HDependency{Name: d.Name, Source: d.Source})
	}
	sort.SliceStable(u.Deps, func(i, j int) bool { return u.Deps[i].Name < u.Deps[j].Name })
	u.Forms = make([]HNode, len(forms))
	for i, f := range forms {
		u.Forms[i] = n.normalize(f)
	}
	return u
}

func (n *normalizer) pos(node compiler.Node) *HPos {
	if !n.positions {
		return nil
	}
	p := node.Span().Start
	return &HPos{Line: uint32(p.Line), Column: uint32(p.Column)}
}

func (n *normalizer) normalize(node compiler.Node) HNode {
	switch f := node.(type) {
	case *compiler.Number:
		return &HNumber{Pos: n.pos(f), Text: f.Text}
	case *compiler.String:
		return &HString{Pos: n.pos(f), Value: f.Value}
	case *compiler.Keyword:
		return &HKeyword{Pos: n.pos(f), Name: f.Name}
	case *compiler.Symbol:
		return &HSymbol{Pos: n.pos(f), Name: f.Name}
	case *compiler.List:
		return &HList{Pos: n.pos(f), Items: n.normalizeAll(f.Items)}
	case *compiler.Sequence:
		return &HSequence{Pos: n.pos(f), Items: n.normalizeAll(f.Items)}
	case *compiler.Table:
		pairs := make([][2]HNode, len(f.Pairs))
		for i, p := range f.Pairs {
			pairs[i] = [2]HNode{n.normalize(p.Key), n.normalize(p.Value)}
		}
		return &HTable{Pos: n.pos(f), Pairs: pairs}
	default:
		// Unknown node type; should not happen
		return &HSymbol{Name: "nil"}
	}
}

func (n *normalizer) normalizeAll(items []compiler.Node) []HNode {
	out := make([]HNode, len(items))
	for i, item := range items {
		out[i] = n.normalize(item)
	}
	return out
}
