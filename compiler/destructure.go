package compiler

import (
	"slices"
	"strconv"
)

// ---------------------------------------------------------------------------
// Destructuring: binding patterns to values
// ---------------------------------------------------------------------------

// bindOpts configures one destructuring bind.
type bindOpts struct {
	kind    BindingKind
	mutable bool
	// assign targets existing variables (set) instead of declaring locals.
	assign bool
	// arity is recorded on a plain-symbol binding of a function literal.
	arity *Arity
}

// binder accumulates the statements and bindings of one pattern. Bindings
// become visible only after the whole pattern is bound, so value
// expressions never see the names they introduce.
type binder struct {
	ctx   *compileContext
	s     *Scope
	opts  bindOpts
	pos   Position
	stmts []Stmt
	bound []*Binding
	saved []*Binding // root bindings changed by set
}

// bindForm compiles valueNode and binds it to pattern in scope s.
func (ctx *compileContext) bindForm(pattern, valueNode Node, s *Scope, opts bindOpts) ([]Stmt, error) {
	val, err := ctx.compileForm(valueNode, s, Expression)
	if err != nil {
		return nil, err
	}
	if _, ok := pattern.(*Symbol); ok && !opts.mutable {
		opts.arity = literalArity(valueNode)
	}
	return ctx.bindPattern(pattern, val, s, opts)
}

// bindPattern destructures value into pattern and commits the resulting
// bindings to s. It returns the statements that perform the binding.
func (ctx *compileContext) bindPattern(pattern Node, value Fragment, s *Scope, opts bindOpts) ([]Stmt, error) {
	b := &binder{ctx: ctx, s: s, opts: opts, pos: pattern.Span().Start}
	if err := b.bind(pattern, value, true); err != nil {
		return nil, err
	}
	b.commit()
	return b.stmts, nil
}

// Destructure expands pattern against an already-evaluated value and
// returns the generated Lua name and value expression for every binding,
// in binding order. It does not modify s.
func (c *Compiler) Destructure(pattern Node, value Expr, s *Scope) ([]DestructuredName, error) {
	ctx := newContext(c, "")
	b := &binder{ctx: ctx, s: s, opts: bindOpts{kind: BindLocal}, pos: pattern.Span().Start}
	if err := b.bind(pattern, exprFrag(pattern.Span().Start, value), true); err != nil {
		return nil, err
	}
	var out []DestructuredName
	for _, st := range b.stmts {
		local, ok := st.(*LocalStmt)
		if !ok {
			continue
		}
		for i, nm := range local.Names {
			d := DestructuredName{Name: nm}
			last := len(local.Values) - 1
			spread := last >= 0 && isMultiValued(local.Values[last]) && len(local.Names) > len(local.Values)
			switch {
			case i < last || (i == last && !spread):
				d.Value = local.Values[i]
			case spread:
				d.Value = local.Values[last]
				d.Position = i - last + 1
			}
			for _, bd := range b.bound {
				if bd.Name == nm {
					d.Symbol = bd.Symbol
				}
			}
			out = append(out, d)
		}
	}
	return out, nil
}

// DestructuredName is one (name, value) pair produced by Destructure.
// Symbol is empty for compiler temporaries. Position is non-zero when the
// name takes the Position-th value of a multi-valued Value.
type DestructuredName struct {
	Symbol   string
	Name     string
	Value    Expr
	Position int
}

func (b *binder) commit() {
	for _, bd := range b.bound {
		b.s.Bind(bd)
	}
	persist := b.saved
	if b.s == b.ctx.root {
		persist = append(b.bound, b.saved...)
	}
	b.stmts = append(b.stmts, b.ctx.saveLocals(b.pos, persist)...)
}

func (b *binder) bind(pattern Node, value Fragment, top bool) error {
	ctx := b.ctx
	switch p := pattern.(type) {
	case *Symbol:
		if b.opts.assign {
			target, bd, err := ctx.setTarget(p, b.s)
			if err != nil {
				return err
			}
			b.stmts = append(b.stmts, Place(value, assignTo(target))...)
			b.noteSet(bd)
			return nil
		}
		bd, err := b.declare(p)
		if err != nil {
			return err
		}
		if top {
			bd.Arity = b.opts.arity
		}
		b.stmts = append(b.stmts, Place(value, declare(bd.Name))...)
		return nil

	case *List:
		if !top {
			return ctx.errorf(p, "multiple-value pattern %s is only allowed at the top of a binding", p)
		}
		return b.bindValues(p, value)

	case *Sequence:
		return b.bindSequence(p, value)

	case *Table:
		return b.bindTable(p, value)
	}
	return ctx.errorf(pattern, "invalid binding target %s: expected a symbol or a destructuring pattern", pattern)
}

// declare allocates a Lua name for sym and records the pending binding.
func (b *binder) declare(sym *Symbol) (*Binding, error) {
	if err := b.ctx.checkBindable(sym); err != nil {
		return nil, err
	}
	bd := &Binding{
		Symbol:  sym.Name,
		Name:    b.ctx.names.local(sym.Name),
		Kind:    b.opts.kind,
		Mutable: b.opts.mutable,
		Pos:     sym.Span().Start,
	}
	b.bound = append(b.bound, bd)
	return bd, nil
}

func (b *binder) noteSet(bd *Binding) {
	if bd == nil || !b.ctx.opts.PersistLocals {
		return
	}
	if root, ok := b.ctx.root.LookupLocal(bd.Symbol); ok && root == bd {
		b.saved = append(b.saved, bd)
	}
}

// hold returns a name holding value, introducing a temporary unless value
// already is a plain name.
func (b *binder) hold(value Fragment, base string) Expr {
	if ef, ok := normalize(value).(*ExprFrag); ok && len(ef.Exprs) == 1 {
		if n, ok := ef.Exprs[0].(*NameExpr); ok {
			return n
		}
	}
	t := b.ctx.names.temp(base)
	b.stmts = append(b.stmts, Place(value, declare(t))...)
	return name(t)
}

// bindValues binds (a b c) to the values of a multi-valued expression.
func (b *binder) bindValues(p *List, value Fragment) error {
	ctx := b.ctx
	if len(p.Items) == 0 {
		return ctx.errorf(p, "empty multiple-value pattern")
	}

	type nestedPattern struct {
		pattern Node
		temp    string
	}
	var (
		targets []Expr
		locals  []string
		temps   []string
		nested  []nestedPattern
	)
	for _, item := range p.Items {
		switch it := item.(type) {
		case *Symbol:
			if b.opts.assign {
				target, bd, err := ctx.setTarget(it, b.s)
				if err != nil {
					return err
				}
				targets = append(targets, target)
				b.noteSet(bd)
				continue
			}
			bd, err := b.declare(it)
			if err != nil {
				return err
			}
			locals = append(locals, bd.Name)
		case *Sequence, *Table:
			t := ctx.names.temp("mv")
			temps = append(temps, t)
			nested = append(nested, nestedPattern{pattern: item, temp: t})
			if b.opts.assign {
				targets = append(targets, name(t))
			} else {
				locals = append(locals, t)
			}
		default:
			return ctx.errorf(item, "invalid binding target %s in multiple-value pattern", item)
		}
	}

	switch {
	case b.opts.assign && len(targets) > 1:
		// Values land in fresh locals before any target changes, so
		// (set (a b) (values b a)) swaps.
		held := make([]string, len(targets))
		var dst, src []Expr
		for i, target := range targets {
			if n, ok := target.(*NameExpr); ok && slices.Contains(temps, n.Name) {
				held[i] = n.Name
				continue
			}
			held[i] = ctx.names.temp("set")
			dst = append(dst, target)
			src = append(src, name(held[i]))
		}
		b.stmts = append(b.stmts, Place(value, declare(held...))...)
		if len(dst) > 0 {
			b.stmts = append(b.stmts, &AssignStmt{stmtPos: stmtPos{b.pos}, Targets: dst, Values: src})
		}
	case b.opts.assign:
		if len(temps) > 0 {
			b.stmts = append(b.stmts, &LocalStmt{stmtPos: stmtPos{b.pos}, Names: temps})
		}
		b.stmts = append(b.stmts, Place(value, assignTo(targets...))...)
	default:
		b.stmts = append(b.stmts, Place(value, declare(locals...))...)
	}

	for _, n := range nested {
		if err := b.bind(n.pattern, exprFrag(n.pattern.Span().Start, name(n.temp)), false); err != nil {
			return err
		}
	}
	return nil
}

// bindSequence binds [a b & rest &as whole] by position.
func (b *binder) bindSequence(p *Sequence, value Fragment) error {
	ctx := b.ctx
	src := b.hold(value, "seq")
	pos := p.Span().Start

	index := 0
	for i := 0; i < len(p.Items); i++ {
		item := p.Items[i]
		switch {
		case IsSym(item, "&"):
			if i+1 >= len(p.Items) {
				return ctx.errorf(item, "expected a pattern after &")
			}
			if i+2 < len(p.Items) && !IsSym(p.Items[i+2], "&as") {
				return ctx.errorf(p.Items[i+2], "unexpected pattern after the rest pattern")
			}
			unpack := &BinaryExpr{
				Op:    "or",
				Left:  &IndexExpr{Obj: name("table"), Key: str("unpack")},
				Right: name("unpack"),
			}
			rest := &TableExpr{Entries: []TableEntry{{Value: &CallExpr{
				Fn:   unpack,
				Args: []Expr{src, &NumberExpr{Text: strconv.Itoa(index + 1)}},
			}}}}
			if err := b.bind(p.Items[i+1], exprFrag(pos, rest), false); err != nil {
				return err
			}
			i++

		case IsSym(item, "&as"):
			if i+1 >= len(p.Items) {
				return ctx.errorf(item, "expected a name after &as")
			}
			if err := b.bind(p.Items[i+1], exprFrag(pos, src), false); err != nil {
				return err
			}
			i++

		default:
			index++
			elem := &IndexExpr{Obj: src, Key: &NumberExpr{Text: strconv.Itoa(index)}}
			if err := b.bind(item, exprFrag(item.Span().Start, elem), false); err != nil {
				return err
			}
		}
	}
	return nil
}

// bindTable binds {:key pattern : name &as whole} by key.
func (b *binder) bindTable(p *Table, value Fragment) error {
	ctx := b.ctx
	src := b.hold(value, "tbl")
	pos := p.Span().Start

	for _, pair := range p.Pairs {
		switch {
		case IsSym(pair.Key, "&as"):
			if err := b.bind(pair.Value, exprFrag(pos, src), false); err != nil {
				return err
			}

		case IsSym(pair.Key, ":"):
			sym, ok := pair.Value.(*Symbol)
			if !ok {
				return ctx.errorf(pair.Value, "expected a symbol after ':' in table pattern, got %s", pair.Value)
			}
			elem := &IndexExpr{Obj: src, Key: str(sym.Name)}
			if err := b.bind(sym, exprFrag(sym.Span().Start, elem), false); err != nil {
				return err
			}

		default:
			key, err := ctx.compileKey(pair.Key, b.s)
			if err != nil {
				return err
			}
			elem := &IndexExpr{Obj: src, Key: key}
			if err := b.bind(pair.Value, exprFrag(pair.Value.Span().Start, elem), false); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkBindable rejects symbols that cannot name a local.
func (ctx *compileContext) checkBindable(sym *Symbol) error {
	switch sym.Name {
	case "nil", "true", "false", "...", "&", "&as":
		return ctx.errorf(sym, "cannot bind '%s'", sym.Name)
	}
	if sym.IsMultiSym() {
		return ctx.errorf(sym, "cannot bind multisym '%s'; use a plain name", sym.Name)
	}
	return nil
}
