package compiler

import "strings"

// ---------------------------------------------------------------------------
// Quote: building forms in compile-time code
// ---------------------------------------------------------------------------

// quoter lowers one quoted form to constructor calls. Symbols ending in #
// become a single gensym per quote.
type quoter struct {
	ctx   *compileContext
	s     *Scope
	autos map[string]string // base -> temp holding its gensym
	order []string
}

// (quote form), also written `form
func (ctx *compileContext) compileQuoteForm(n *List, s *Scope, kind Context) (Fragment, error) {
	if !ctx.macro {
		return nil, ctx.errorf(n, "quote is only allowed in macros and eval-compiler code")
	}
	args := n.Args()
	if len(args) != 1 {
		return nil, ctx.errorf(n, "quote: expected exactly one form")
	}
	q := &quoter{ctx: ctx, s: s, autos: make(map[string]string)}
	e, err := q.quote(args[0])
	if err != nil {
		return nil, err
	}
	pos := n.Span().Start
	if len(q.order) == 0 {
		return exprFrag(pos, e), nil
	}
	block := &BlockFrag{Scoped: true, Result: exprFrag(pos, e)}
	for _, base := range q.order {
		block.Stmts = append(block.Stmts, &LocalStmt{
			stmtPos: stmtPos{pos},
			Names:   []string{q.autos[base]},
			Values:  []Expr{&CallExpr{Fn: name("gensym"), Args: []Expr{str(base)}}},
		})
	}
	return block, nil
}

// (unquote x), also written ,x
func (ctx *compileContext) compileUnquote(n *List, s *Scope, kind Context) (Fragment, error) {
	return nil, ctx.errorf(n, "unquote used outside of quote")
}

func (q *quoter) quote(n Node) (Expr, error) {
	switch n := n.(type) {
	case *Symbol:
		if len(n.Name) > 1 && strings.HasSuffix(n.Name, "#") {
			base := strings.TrimSuffix(n.Name, "#")
			t, ok := q.autos[base]
			if !ok {
				t = q.ctx.names.temp("gs")
				q.autos[base] = t
				q.order = append(q.order, base)
			}
			return name(t), nil
		}
		return call("sym", str(n.Name)), nil

	case *Keyword:
		return str(n.Name), nil

	case *String:
		return str(n.Value), nil

	case *Number:
		return &NumberExpr{Text: n.Text}, nil

	case *List:
		if IsSym(n.Head(), "unquote") {
			if len(n.Items) != 2 {
				return nil, q.ctx.errorf(n, "unquote: expected exactly one form")
			}
			return q.ctx.compileExpr(n.Items[1], q.s)
		}
		args, err := q.items(n.Items)
		if err != nil {
			return nil, err
		}
		return call("list", args...), nil

	case *Sequence:
		args, err := q.items(n.Items)
		if err != nil {
			return nil, err
		}
		return call("sequence", args...), nil

	case *Table:
		var args []Expr
		for _, p := range n.Pairs {
			k, err := q.quote(p.Key)
			if err != nil {
				return nil, err
			}
			v, err := q.quote(p.Value)
			if err != nil {
				return nil, err
			}
			args = append(args, k, v)
		}
		return call(Mangle("_quote_kv"), args...), nil
	}
	return nil, q.ctx.errorf(n, "cannot quote %s", n)
}

// items quotes the elements of a list or sequence. An unquote in the last
// position splices every value of its expression.
func (q *quoter) items(items []Node) ([]Expr, error) {
	out := make([]Expr, 0, len(items))
	for i, item := range items {
		if l, ok := item.(*List); ok && i == len(items)-1 && IsSym(l.Head(), "unquote") && len(l.Items) == 2 {
			f, err := q.ctx.compileForm(l.Items[1], q.s, Expression)
			if err != nil {
				return nil, err
			}
			out = append(out, Value(f, -1)...)
			continue
		}
		e, err := q.quote(item)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func call(fn string, args ...Expr) *CallExpr {
	return &CallExpr{Fn: name(fn), Args: args}
}
