package compiler

// ---------------------------------------------------------------------------
// Fragments: compiled forms awaiting a destination
// ---------------------------------------------------------------------------

// Fragment is the result of compiling one form before it is placed. The
// same fragment can be placed as a statement (assigned, declared, returned
// or discarded) or consumed as an expression; only statement-shaped
// fragments in expression position need a function wrapper.
type Fragment interface {
	fragment() // marker method
}

// ExprFrag is a plain expression list.
type ExprFrag struct {
	Pos   Position
	Exprs []Expr
}

// BlockFrag runs Stmts and then yields Result. A Scoped block keeps its
// locals private with do ... end unless it already fills a whole block.
type BlockFrag struct {
	Pos    Position
	Stmts  []Stmt
	Result Fragment // nil yields nil
	Scoped bool
}

// IfFrag is a conditional with one branch per condition and an optional
// else.
type IfFrag struct {
	Pos      Position
	Conds    []Fragment
	Branches []Fragment
	Else     Fragment // nil: no else
}

// StmtFrag is a statement-only form whose value is nil.
type StmtFrag struct {
	Pos   Position
	Stmts []Stmt
}

func (*ExprFrag) fragment()  {}
func (*BlockFrag) fragment() {}
func (*IfFrag) fragment()    {}
func (*StmtFrag) fragment()  {}

func exprFrag(pos Position, es ...Expr) *ExprFrag {
	return &ExprFrag{Pos: pos, Exprs: es}
}

// nilFrag is the fragment of a form with no value.
func nilFrag(pos Position) *StmtFrag {
	return &StmtFrag{Pos: pos}
}

// fragPos returns the source position of f.
func fragPos(f Fragment) Position {
	switch f := f.(type) {
	case *ExprFrag:
		return f.Pos
	case *BlockFrag:
		return f.Pos
	case *IfFrag:
		return f.Pos
	case *StmtFrag:
		return f.Pos
	}
	return Position{}
}

// normalize strips a block with no statements of its own down to its
// result, as long as no locals of the result would escape.
func normalize(f Fragment) Fragment {
	for {
		b, ok := f.(*BlockFrag)
		if !ok || len(b.Stmts) > 0 {
			return f
		}
		switch r := b.Result.(type) {
		case nil:
			return nilFrag(b.Pos)
		case *ExprFrag, *IfFrag:
			f = r
		case *BlockFrag:
			if b.Scoped && !r.Scoped {
				inner := *r
				inner.Scoped = true
				f = &inner
			} else {
				f = r
			}
		default:
			if b.Scoped {
				return f
			}
			f = r
		}
	}
}

// ---------------------------------------------------------------------------
// Destinations
// ---------------------------------------------------------------------------

// DestKind says where a placed fragment's value goes.
type DestKind int

const (
	DestDiscard DestKind = iota // evaluate for effect
	DestReturn                  // return from the enclosing function
	DestAssign                  // assign to existing targets
	DestDeclare                 // declare new locals
)

// Dest is a placement destination.
type Dest struct {
	Kind    DestKind
	Targets []Expr   // DestAssign
	Names   []string // DestDeclare
	// Explicit makes DestReturn spell out return nil. Only the tail of
	// a chunk or function body may fall off the end instead.
	Explicit bool
}

var (
	discard   = Dest{Kind: DestDiscard}
	returning = Dest{Kind: DestReturn}
	// returning1 delivers exactly one value, even when it is nil.
	returning1 = Dest{Kind: DestReturn, Explicit: true}
)

func assignTo(targets ...Expr) Dest { return Dest{Kind: DestAssign, Targets: targets} }

func declare(ns ...string) Dest { return Dest{Kind: DestDeclare, Names: ns} }

// ---------------------------------------------------------------------------
// Placement
// ---------------------------------------------------------------------------

// Place lowers f into statements delivering its value to d.
func Place(f Fragment, d Dest) []Stmt {
	return place(f, d, false)
}

// placeBody places f as the entire contents of a fresh Lua block, where a
// scoped block needs no do ... end of its own.
func placeBody(f Fragment, d Dest) []Stmt {
	return place(f, d, true)
}

func place(f Fragment, d Dest, fresh bool) []Stmt {
	if f == nil {
		return placeNil(Position{}, d)
	}
	f = normalize(f)
	switch f := f.(type) {
	case *ExprFrag:
		return placeExprs(f.Pos, f.Exprs, d)

	case *StmtFrag:
		return append(append([]Stmt(nil), f.Stmts...), placeNil(f.Pos, d)...)

	case *BlockFrag:
		if d.Kind == DestDeclare {
			decl := &LocalStmt{stmtPos: stmtPos{f.Pos}, Names: d.Names}
			return append([]Stmt{decl}, place(f, assignTo(names(d.Names)...), false)...)
		}
		body := append([]Stmt(nil), f.Stmts...)
		body = append(body, place(f.Result, d, false)...)
		if f.Scoped && !fresh {
			return []Stmt{&DoStmt{stmtPos: stmtPos{f.Pos}, Body: body}}
		}
		return body

	case *IfFrag:
		if d.Kind == DestDeclare {
			decl := &LocalStmt{stmtPos: stmtPos{f.Pos}, Names: d.Names}
			return append([]Stmt{decl}, place(f, assignTo(names(d.Names)...), false)...)
		}
		if d.Kind == DestReturn {
			d.Explicit = true
		}
		st := &IfStmt{stmtPos: stmtPos{f.Pos}}
		for i, cond := range f.Conds {
			st.Conds = append(st.Conds, Value(cond, 1)[0])
			st.Blocks = append(st.Blocks, nonNil(placeBody(f.Branches[i], d)))
		}
		switch {
		case f.Else != nil:
			st.Else = nonNil(placeBody(f.Else, d))
		case d.Kind == DestAssign:
			st.Else = placeNil(f.Pos, d)
		case d.Kind == DestReturn:
			st.Else = []Stmt{&ReturnStmt{stmtPos: stmtPos{f.Pos}, Values: []Expr{&NilExpr{}}}}
		}
		if st.Else != nil && len(st.Else) == 0 {
			st.Else = nil
		}
		return []Stmt{st}
	}
	return nil
}

func nonNil(stmts []Stmt) []Stmt {
	if stmts == nil {
		return []Stmt{}
	}
	return stmts
}

// placeNil delivers the nil value of a statement-only form to d.
func placeNil(pos Position, d Dest) []Stmt {
	switch d.Kind {
	case DestAssign:
		vals := make([]Expr, 1)
		vals[0] = &NilExpr{}
		return []Stmt{&AssignStmt{stmtPos: stmtPos{pos}, Targets: d.Targets, Values: vals}}
	case DestDeclare:
		return []Stmt{&LocalStmt{stmtPos: stmtPos{pos}, Names: d.Names}}
	case DestReturn:
		if d.Explicit {
			return []Stmt{&ReturnStmt{stmtPos: stmtPos{pos}, Values: []Expr{&NilExpr{}}}}
		}
	}
	return nil
}

func placeExprs(pos Position, exprs []Expr, d Dest) []Stmt {
	sp := stmtPos{pos}
	switch d.Kind {
	case DestReturn:
		if len(exprs) == 1 && !d.Explicit {
			if _, ok := exprs[0].(*NilExpr); ok {
				return nil
			}
		}
		return []Stmt{&ReturnStmt{stmtPos: sp, Values: exprs}}

	case DestAssign:
		if len(exprs) == 0 {
			exprs = []Expr{&NilExpr{}}
		}
		return []Stmt{&AssignStmt{stmtPos: sp, Targets: d.Targets, Values: exprs}}

	case DestDeclare:
		if len(exprs) == 1 {
			if _, ok := exprs[0].(*NilExpr); ok {
				exprs = nil
			}
		}
		return []Stmt{&LocalStmt{stmtPos: sp, Names: d.Names, Values: exprs}}
	}

	var out []Stmt
	for _, e := range exprs {
		switch e.(type) {
		case *CallExpr, *MethodCallExpr:
			out = append(out, &CallStmt{stmtPos: sp, Call: e})
		default:
			if !isPure(e) {
				out = append(out, &DoStmt{stmtPos: sp, Body: []Stmt{
					&LocalStmt{stmtPos: sp, Names: []string{"_"}, Values: []Expr{e}},
				}})
			}
		}
	}
	return out
}

// Value lowers f for use as an expression. n is the number of values
// wanted: 1 truncates, a negative n keeps them all. Statement-shaped
// fragments are wrapped in an immediately invoked function.
func Value(f Fragment, n int) []Expr {
	if f == nil {
		return []Expr{&NilExpr{}}
	}
	f = normalize(f)
	if ef, ok := f.(*ExprFrag); ok {
		switch {
		case len(ef.Exprs) == 0:
			if n < 0 {
				return nil
			}
			return []Expr{&NilExpr{}}
		case n < 0 || len(ef.Exprs) == 1:
			return ef.Exprs
		}
		rest := true
		for _, e := range ef.Exprs[1:] {
			if !isPure(e) {
				rest = false
				break
			}
		}
		if rest {
			first := ef.Exprs[0]
			if isMultiValued(first) {
				first = &ParenExpr{X: first}
			}
			return []Expr{first}
		}
	}
	if sf, ok := f.(*StmtFrag); ok && len(sf.Stmts) == 0 {
		return []Expr{&NilExpr{}}
	}
	return []Expr{iife(placeBody(f, returning1))}
}

// iife wraps body in (function() ... end)(), forwarding ... when the body
// refers to it.
func iife(body []Stmt) Expr {
	fn := &FuncExpr{Body: body}
	call := &CallExpr{Fn: fn}
	if usesVararg(body) {
		fn.Vararg = true
		call.Args = []Expr{&VarargExpr{}}
	}
	return call
}

// value1 lowers f to a single expression.
func value1(f Fragment) Expr {
	return Value(f, 1)[0]
}

// valueList lowers a sequence of fragments used as an argument list: all
// but the last are truncated to one value.
func valueList(frags []Fragment) []Expr {
	var out []Expr
	for i, f := range frags {
		if i == len(frags)-1 {
			out = append(out, Value(f, -1)...)
		} else {
			out = append(out, value1(f))
		}
	}
	return out
}
