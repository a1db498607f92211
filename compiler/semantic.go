package compiler

// ---------------------------------------------------------------------------
// Semantic checks: compile-time warnings
// ---------------------------------------------------------------------------

// Arity warnings are advisory. Lua accepts any argument count, so nothing
// is checked at runtime except the nil checks lambda emits.

// paramArity computes the arity of a parameter sequence. For fn every
// parameter is optional; for lambda a parameter is required unless its
// name starts with ? or _.
func paramArity(params *Sequence, checked bool) *Arity {
	a := &Arity{}
	for _, p := range params.Items {
		if IsSym(p, "...") || IsSym(p, "&") {
			a.Variadic = true
			break
		}
		a.Max++
		if !checked {
			continue
		}
		if sym, ok := p.(*Symbol); !ok || !optionalParam(sym.Name) {
			a.Min = a.Max
		}
	}
	return a
}

// literalArity returns the arity of n when it is an anonymous fn or lambda
// literal, else nil.
func literalArity(n Node) *Arity {
	l, ok := n.(*List)
	if !ok || len(l.Items) < 2 {
		return nil
	}
	var checked bool
	switch HeadName(l) {
	case "fn":
	case "lambda", "λ":
		checked = true
	default:
		return nil
	}
	params, ok := l.Items[1].(*Sequence)
	if !ok {
		return nil
	}
	return paramArity(params, checked)
}

// checkArity warns when a call to a local with known arity passes too few
// or too many arguments. A multi-valued last argument makes the count
// open-ended, so only the upper bound is checked.
func (ctx *compileContext) checkArity(call *List, head *Symbol, s *Scope, args []Expr) {
	if head.IsMultiSym() {
		return
	}
	b, ok := s.Lookup(head.Name)
	if !ok || b.Arity == nil || b.Mutable {
		return
	}
	fixed := len(args)
	open := fixed > 0 && isMultiValued(args[fixed-1])
	if open {
		fixed--
	}
	switch {
	case !open && fixed < b.Arity.Min:
		ctx.warn(call, "'%s' expects at least %d argument%s, got %d",
			head.Name, b.Arity.Min, plural(b.Arity.Min), fixed)
	case !b.Arity.Variadic && fixed > b.Arity.Max:
		ctx.warn(call, "'%s' expects at most %d argument%s, got %d",
			head.Name, b.Arity.Max, plural(b.Arity.Max), fixed)
	}
}
