package compiler

import "strings"

// ---------------------------------------------------------------------------
// Special forms
// ---------------------------------------------------------------------------

// specialForm lowers one special form. kind says whether the form is in a
// statement position of the block s belongs to.
type specialForm func(ctx *compileContext, n *List, s *Scope, kind Context) (Fragment, error)

var specialForms map[string]specialForm

func init() {
	specialForms = map[string]specialForm{
		"do":            (*compileContext).compileDo,
		"let":           (*compileContext).compileLet,
		"local":         (*compileContext).compileLocal,
		"var":           (*compileContext).compileVar,
		"global":        (*compileContext).compileGlobal,
		"set":           (*compileContext).compileSet,
		"tset":          (*compileContext).compileTset,
		".":             (*compileContext).compileDot,
		"fn":            (*compileContext).compileFn,
		"lambda":        (*compileContext).compileLambda,
		"λ":             (*compileContext).compileLambda,
		"if":            (*compileContext).compileIf,
		"when":          (*compileContext).compileWhen,
		"each":          (*compileContext).compileEach,
		"for":           (*compileContext).compileFor,
		"while":         (*compileContext).compileWhile,
		"values":        (*compileContext).compileValues,
		":":             (*compileContext).compileMethodCall,
		"comment":       (*compileContext).compileComment,
		"quote":         (*compileContext).compileQuoteForm,
		"unquote":       (*compileContext).compileUnquote,
		"macro":         (*compileContext).compileMacro,
		"macros":        (*compileContext).compileMacros,
		"import-macros": (*compileContext).compileImportMacros,
		"eval-compiler": (*compileContext).compileEvalCompiler,
	}
}

// IsSpecialForm reports whether name is a special form.
func IsSpecialForm(name string) bool {
	_, ok := specialForms[name]
	return ok
}

// SpecialForms returns the names of all special forms.
func SpecialForms() []string {
	out := make([]string, 0, len(specialForms))
	for name := range specialForms {
		out = append(out, name)
	}
	return out
}

// compileBody compiles forms as the statements of one block; the block's
// value is the value of the last form.
func (ctx *compileContext) compileBody(pos Position, forms []Node, s *Scope) (*BlockFrag, error) {
	b := &BlockFrag{Pos: pos}
	for i, f := range forms {
		frag, err := ctx.compileForm(f, s, Statement)
		if err != nil {
			return nil, err
		}
		if i == len(forms)-1 {
			b.Result = frag
		} else {
			b.Stmts = append(b.Stmts, Place(frag, discard)...)
		}
	}
	return b, nil
}

func (ctx *compileContext) compileDo(n *List, s *Scope, kind Context) (Fragment, error) {
	body, err := ctx.compileBody(n.Span().Start, n.Args(), s.Child())
	if err != nil {
		return nil, err
	}
	body.Scoped = true
	return body, nil
}

func (ctx *compileContext) compileComment(n *List, s *Scope, kind Context) (Fragment, error) {
	return nilFrag(n.Span().Start), nil
}

// ---------------------------------------------------------------------------
// Bindings
// ---------------------------------------------------------------------------

// (let [pattern value ...] body...)
func (ctx *compileContext) compileLet(n *List, s *Scope, kind Context) (Fragment, error) {
	args := n.Args()
	pos := n.Span().Start
	if len(args) == 0 {
		return nil, ctx.errorf(n, "let: expected a binding sequence and body")
	}
	bindings, ok := args[0].(*Sequence)
	if !ok {
		return nil, ctx.errorf(args[0], "let: expected a binding sequence, got %s", args[0])
	}
	if len(bindings.Items)%2 != 0 {
		return nil, ctx.errorf(bindings, "let: expected an even number of name/value bindings, got %d forms", len(bindings.Items))
	}

	inner := s.Child()
	var stmts []Stmt
	for i := 0; i < len(bindings.Items); i += 2 {
		st, err := ctx.bindForm(bindings.Items[i], bindings.Items[i+1], inner, bindOpts{kind: BindLocal})
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, st...)
	}

	body, err := ctx.compileBody(pos, args[1:], inner)
	if err != nil {
		return nil, err
	}
	return &BlockFrag{Pos: pos, Stmts: stmts, Result: body, Scoped: true}, nil
}

func (ctx *compileContext) compileLocal(n *List, s *Scope, kind Context) (Fragment, error) {
	return ctx.compileDeclaration(n, s, kind, bindOpts{kind: BindLocal})
}

func (ctx *compileContext) compileVar(n *List, s *Scope, kind Context) (Fragment, error) {
	return ctx.compileDeclaration(n, s, kind, bindOpts{kind: BindVar, mutable: true})
}

// (local pattern value) / (var pattern value)
func (ctx *compileContext) compileDeclaration(n *List, s *Scope, kind Context, opts bindOpts) (Fragment, error) {
	form := HeadName(n)
	args := n.Args()
	if len(args) != 2 {
		return nil, ctx.errorf(n, "%s: expected a name and a value, got %d forms", form, len(args))
	}
	if kind == Expression {
		return nil, ctx.errorf(n, "%s: cannot declare a local in expression position", form)
	}
	stmts, err := ctx.bindForm(args[0], args[1], s, opts)
	if err != nil {
		return nil, err
	}
	return &StmtFrag{Pos: n.Span().Start, Stmts: stmts}, nil
}

// (global name value)
func (ctx *compileContext) compileGlobal(n *List, s *Scope, kind Context) (Fragment, error) {
	args := n.Args()
	if len(args) != 2 {
		return nil, ctx.errorf(n, "global: expected a name and a value, got %d forms", len(args))
	}
	sym, ok := args[0].(*Symbol)
	if !ok || sym.IsMultiSym() {
		return nil, ctx.errorf(args[0], "global: expected a plain symbol, got %s", args[0])
	}
	if _, bound := s.Lookup(sym.Name); bound {
		return nil, ctx.errorf(sym, "global '%s' conflicts with a local of the same name", sym.Name)
	}
	val, err := ctx.compileForm(args[1], s, Expression)
	if err != nil {
		return nil, err
	}
	s.DeclareGlobal(sym.Name)
	return &StmtFrag{Pos: n.Span().Start, Stmts: Place(val, assignTo(name(Mangle(sym.Name))))}, nil
}

// (set target value)
func (ctx *compileContext) compileSet(n *List, s *Scope, kind Context) (Fragment, error) {
	args := n.Args()
	if len(args) != 2 {
		return nil, ctx.errorf(n, "set: expected a target and a value, got %d forms", len(args))
	}
	val, err := ctx.compileForm(args[1], s, Expression)
	if err != nil {
		return nil, err
	}
	stmts, err := ctx.bindPattern(args[0], val, s, bindOpts{assign: true})
	if err != nil {
		return nil, err
	}
	return &StmtFrag{Pos: n.Span().Start, Stmts: stmts}, nil
}

// setTarget resolves the target of an assignment. The returned binding is
// nil for fields and globals.
func (ctx *compileContext) setTarget(sym *Symbol, s *Scope) (Expr, *Binding, error) {
	if sym.IsMultiSym() {
		if !validMultiSym(sym.Name) {
			return nil, nil, ctx.errorf(sym, "malformed multisym '%s'", sym.Name)
		}
		parts, method := sym.Parts()
		if method {
			return nil, nil, ctx.errorf(sym, "cannot set method reference '%s'", sym.Name)
		}
		obj, err := ctx.resolvePath(sym, parts[:len(parts)-1], s)
		if err != nil {
			return nil, nil, err
		}
		return &IndexExpr{Obj: obj, Key: str(parts[len(parts)-1])}, nil, nil
	}

	switch sym.Name {
	case "nil", "true", "false", "...", "&":
		return nil, nil, ctx.errorf(sym, "cannot set '%s'", sym.Name)
	}
	if b, ok := s.Lookup(sym.Name); ok {
		if !b.Mutable {
			return nil, nil, ctx.errorf(sym, "cannot set immutable %s '%s'; declare it with var", b.Kind, sym.Name)
		}
		return name(b.Name), b, nil
	}
	if ctx.opts.AllowGlobalDeclarations || ctx.macro || s.GlobalDeclared(sym.Name) {
		s.DeclareGlobal(sym.Name)
		return name(Mangle(sym.Name)), nil, nil
	}
	return nil, nil, ctx.errorf(sym, "cannot set undeclared symbol '%s'; declare it with var, local or global", sym.Name)
}

// (tset tbl key... value)
func (ctx *compileContext) compileTset(n *List, s *Scope, kind Context) (Fragment, error) {
	args := n.Args()
	pos := n.Span().Start
	if len(args) < 3 {
		return nil, ctx.errorf(n, "tset: expected a table, at least one key and a value, got %d forms", len(args))
	}
	obj, err := ctx.compileExpr(args[0], s)
	if err != nil {
		return nil, err
	}
	keys := make([]Expr, 0, len(args)-2)
	for _, k := range args[1 : len(args)-1] {
		key, err := ctx.compileKey(k, s)
		if err != nil {
			return nil, err
		}
		if key == nil {
			return nil, ctx.errorf(k, "tset: invalid key %s", k)
		}
		keys = append(keys, key)
	}
	val, err := ctx.compileForm(args[len(args)-1], s, Expression)
	if err != nil {
		return nil, err
	}

	// A statement-shaped value is placed into each branch; hold the table
	// and keys in temporaries so they are evaluated once, up front.
	var pre []Stmt
	if _, plain := normalize(val).(*ExprFrag); !plain {
		hold := func(e Expr) Expr {
			if isSimple(e) {
				return e
			}
			t := ctx.names.temp("tset")
			pre = append(pre, &LocalStmt{stmtPos: stmtPos{pos}, Names: []string{t}, Values: []Expr{e}})
			return name(t)
		}
		obj = hold(obj)
		for i := range keys {
			keys[i] = hold(keys[i])
		}
	}

	target := obj
	for _, k := range keys {
		target = &IndexExpr{Obj: target, Key: k}
	}
	stmts := append(pre, Place(val, assignTo(target))...)
	if len(pre) > 0 {
		stmts = []Stmt{&DoStmt{stmtPos: stmtPos{pos}, Body: stmts}}
	}
	return &StmtFrag{Pos: pos, Stmts: stmts}, nil
}

// (. tbl key...)
func (ctx *compileContext) compileDot(n *List, s *Scope, kind Context) (Fragment, error) {
	args := n.Args()
	if len(args) == 0 {
		return nil, ctx.errorf(n, ".: expected a table and keys")
	}
	e, err := ctx.compileExpr(args[0], s)
	if err != nil {
		return nil, err
	}
	for _, k := range args[1:] {
		key, err := ctx.compileKey(k, s)
		if err != nil {
			return nil, err
		}
		if key == nil {
			return nil, ctx.errorf(k, ".: invalid key %s", k)
		}
		e = &IndexExpr{Obj: e, Key: key}
	}
	return exprFrag(n.Span().Start, e), nil
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func (ctx *compileContext) compileFn(n *List, s *Scope, kind Context) (Fragment, error) {
	return ctx.compileFunction(n, s, kind, false)
}

func (ctx *compileContext) compileLambda(n *List, s *Scope, kind Context) (Fragment, error) {
	return ctx.compileFunction(n, s, kind, true)
}

// optionalParam reports whether a lambda parameter may be nil.
func optionalParam(name string) bool {
	return strings.HasPrefix(name, "?") || strings.HasPrefix(name, "_")
}

// (fn name? [params] body...)
func (ctx *compileContext) compileFunction(n *List, s *Scope, kind Context, checked bool) (Fragment, error) {
	form := HeadName(n)
	args := n.Args()
	pos := n.Span().Start

	var nameSym *Symbol
	if len(args) > 0 {
		if sym, ok := args[0].(*Symbol); ok {
			nameSym = sym
			args = args[1:]
		}
	}
	if len(args) == 0 {
		return nil, ctx.errorf(n, "%s: expected a parameter sequence", form)
	}
	params, ok := args[0].(*Sequence)
	if !ok {
		return nil, ctx.errorf(args[0], "%s: expected a parameter sequence, got %s", form, args[0])
	}
	body := args[1:]

	if nameSym == nil {
		fn, err := ctx.buildFunction(form, pos, params, body, s, checked, false)
		if err != nil {
			return nil, err
		}
		return exprFrag(pos, fn), nil
	}

	if nameSym.IsMultiSym() {
		if !validMultiSym(nameSym.Name) {
			return nil, ctx.errorf(nameSym, "malformed multisym '%s'", nameSym.Name)
		}
		parts, method := nameSym.Parts()
		obj, err := ctx.resolvePath(nameSym, parts[:len(parts)-1], s)
		if err != nil {
			return nil, err
		}
		fn, err := ctx.buildFunction(form, pos, params, body, s, checked, method)
		if err != nil {
			return nil, err
		}
		target := &IndexExpr{Obj: obj, Key: str(parts[len(parts)-1])}
		return &StmtFrag{Pos: pos, Stmts: []Stmt{
			&AssignStmt{stmtPos: stmtPos{pos}, Targets: []Expr{target}, Values: []Expr{fn}},
		}}, nil
	}

	if err := ctx.checkBindable(nameSym); err != nil {
		return nil, err
	}

	// In expression position the name is visible only to the function
	// itself.
	scope := s
	if kind == Expression {
		scope = s.Child()
	}
	b := &Binding{
		Symbol: nameSym.Name,
		Name:   ctx.names.local(nameSym.Name),
		Kind:   BindLocal,
		Arity:  paramArity(params, checked),
		Pos:    nameSym.Span().Start,
	}
	scope.Bind(b)
	fn, err := ctx.buildFunction(form, pos, params, body, scope, checked, false)
	if err != nil {
		return nil, err
	}
	stmts := []Stmt{&LocalFunctionStmt{stmtPos: stmtPos{pos}, Name: b.Name, Func: fn}}
	if kind == Statement && scope == ctx.root {
		stmts = append(stmts, ctx.saveLocals(pos, []*Binding{b})...)
	}
	return &BlockFrag{
		Pos:    pos,
		Stmts:  stmts,
		Result: exprFrag(pos, name(b.Name)),
		Scoped: kind == Expression,
	}, nil
}

// buildFunction compiles a parameter list and body into a function
// expression. checked adds a nil check for every required parameter;
// method adds a leading self parameter.
func (ctx *compileContext) buildFunction(form string, pos Position, params *Sequence, body []Node, s *Scope, checked, method bool) (*FuncExpr, error) {
	fs := s.FunctionChild(false)
	fn := &FuncExpr{}
	var checks, prologue []Stmt

	if method {
		self := ctx.names.local("self")
		fn.Params = append(fn.Params, self)
		fs.Bind(&Binding{Symbol: "self", Name: self, Kind: BindParam, Pos: pos})
	}

	items := params.Items
	for i := 0; i < len(items); i++ {
		p := items[i]
		switch {
		case IsSym(p, "..."):
			if i != len(items)-1 {
				return nil, ctx.errorf(p, "%s: ... must be the last parameter", form)
			}
			fn.Vararg = true
			fs.vararg = true
			continue

		case IsSym(p, "&"):
			if i != len(items)-2 {
				return nil, ctx.errorf(p, "%s: & must be followed by exactly one parameter", form)
			}
			fn.Vararg = true
			fs.vararg = true
			rest := &TableExpr{Entries: []TableEntry{{Value: &VarargExpr{}}}}
			stmts, err := ctx.bindPattern(items[i+1], exprFrag(p.Span().Start, rest), fs, bindOpts{kind: BindParam})
			if err != nil {
				return nil, err
			}
			prologue = append(prologue, stmts...)
			i = len(items)
			continue
		}

		switch p := p.(type) {
		case *Symbol:
			if err := ctx.checkBindable(p); err != nil {
				return nil, err
			}
			nm := ctx.names.local(p.Name)
			fn.Params = append(fn.Params, nm)
			fs.Bind(&Binding{Symbol: p.Name, Name: nm, Kind: BindParam, Pos: p.Span().Start})
			if checked && !optionalParam(p.Name) {
				checks = append(checks, missingArgCheck(p.Span().Start, nm, p.Name))
			}

		case *Sequence, *Table:
			nm := ctx.names.temp("arg")
			fn.Params = append(fn.Params, nm)
			stmts, err := ctx.bindPattern(p, exprFrag(p.Span().Start, name(nm)), fs, bindOpts{kind: BindParam})
			if err != nil {
				return nil, err
			}
			prologue = append(prologue, stmts...)

		default:
			return nil, ctx.errorf(p, "%s: invalid parameter %s", form, p)
		}
	}

	bodyFrag, err := ctx.compileBody(pos, body, fs)
	if err != nil {
		return nil, err
	}
	fn.Body = append(append(checks, prologue...), placeBody(bodyFrag, returning)...)
	return fn, nil
}

// missingArgCheck emits: if (x == nil) then _G.error("Missing argument x", 0) end
func missingArgCheck(pos Position, luaName, symbol string) Stmt {
	raise := &CallExpr{
		Fn:   &IndexExpr{Obj: name("_G"), Key: str("error")},
		Args: []Expr{str("Missing argument " + symbol), &NumberExpr{Text: "0"}},
	}
	return &IfStmt{
		stmtPos: stmtPos{pos},
		Conds:   []Expr{&BinaryExpr{Op: "==", Left: name(luaName), Right: &NilExpr{}}},
		Blocks:  [][]Stmt{{&CallStmt{stmtPos: stmtPos{pos}, Call: raise}}},
	}
}

// ---------------------------------------------------------------------------
// Conditionals and loops
// ---------------------------------------------------------------------------

// (if cond then cond2 then2 ... else?)
func (ctx *compileContext) compileIf(n *List, s *Scope, kind Context) (Fragment, error) {
	args := n.Args()
	if len(args) < 2 {
		return nil, ctx.errorf(n, "if: expected a condition and a body, got %d forms", len(args))
	}
	f := &IfFrag{Pos: n.Span().Start}
	for len(args) >= 2 {
		cond, err := ctx.compileForm(args[0], s, Expression)
		if err != nil {
			return nil, err
		}
		branch, err := ctx.compileForm(args[1], s.Child(), Statement)
		if err != nil {
			return nil, err
		}
		f.Conds = append(f.Conds, cond)
		f.Branches = append(f.Branches, branch)
		args = args[2:]
	}
	if len(args) == 1 {
		els, err := ctx.compileForm(args[0], s.Child(), Statement)
		if err != nil {
			return nil, err
		}
		f.Else = els
	}
	return f, nil
}

// (when cond body...) runs body for effect; its value is always nil.
func (ctx *compileContext) compileWhen(n *List, s *Scope, kind Context) (Fragment, error) {
	args := n.Args()
	if len(args) == 0 {
		return nil, ctx.errorf(n, "when: expected a condition")
	}
	cond, err := ctx.compileForm(args[0], s, Expression)
	if err != nil {
		return nil, err
	}
	body, err := ctx.compileBody(n.Span().Start, args[1:], s.Child())
	if err != nil {
		return nil, err
	}
	pos := n.Span().Start
	branch := &StmtFrag{Pos: pos, Stmts: placeBody(body, discard)}
	f := &IfFrag{Pos: pos, Conds: []Fragment{cond}, Branches: []Fragment{branch}}
	return &StmtFrag{Pos: pos, Stmts: Place(f, discard)}, nil
}

// (each [k v iterator] body...)
func (ctx *compileContext) compileEach(n *List, s *Scope, kind Context) (Fragment, error) {
	args := n.Args()
	pos := n.Span().Start
	if len(args) == 0 {
		return nil, ctx.errorf(n, "each: expected a binding sequence")
	}
	b, ok := args[0].(*Sequence)
	if !ok || len(b.Items) < 2 {
		return nil, ctx.errorf(args[0], "each: expected binding names and an iterator, got %s", args[0])
	}
	iter, err := ctx.compileForm(b.Items[len(b.Items)-1], s, Expression)
	if err != nil {
		return nil, err
	}

	loop := s.Child()
	st := &GenericForStmt{stmtPos: stmtPos{pos}, Exprs: Value(iter, -1)}
	var prologue []Stmt
	for _, p := range b.Items[:len(b.Items)-1] {
		switch p := p.(type) {
		case *Symbol:
			if err := ctx.checkBindable(p); err != nil {
				return nil, err
			}
			nm := ctx.names.local(p.Name)
			st.Names = append(st.Names, nm)
			loop.Bind(&Binding{Symbol: p.Name, Name: nm, Kind: BindLoop, Pos: p.Span().Start})
		case *Sequence, *Table:
			nm := ctx.names.temp("elt")
			st.Names = append(st.Names, nm)
			stmts, err := ctx.bindPattern(p, exprFrag(p.Span().Start, name(nm)), loop, bindOpts{kind: BindLoop})
			if err != nil {
				return nil, err
			}
			prologue = append(prologue, stmts...)
		default:
			return nil, ctx.errorf(p, "each: invalid binding %s", p)
		}
	}

	body, err := ctx.compileBody(pos, args[1:], loop)
	if err != nil {
		return nil, err
	}
	st.Body = append(prologue, placeBody(body, discard)...)
	return &StmtFrag{Pos: pos, Stmts: []Stmt{st}}, nil
}

// (for [i start stop step?] body...)
func (ctx *compileContext) compileFor(n *List, s *Scope, kind Context) (Fragment, error) {
	args := n.Args()
	pos := n.Span().Start
	if len(args) == 0 {
		return nil, ctx.errorf(n, "for: expected a binding sequence")
	}
	b, ok := args[0].(*Sequence)
	if !ok || len(b.Items) < 3 || len(b.Items) > 4 {
		return nil, ctx.errorf(args[0], "for: expected [name start stop step?], got %s", args[0])
	}
	sym, ok := b.Items[0].(*Symbol)
	if !ok {
		return nil, ctx.errorf(b.Items[0], "for: expected a symbol for the loop variable, got %s", b.Items[0])
	}
	if err := ctx.checkBindable(sym); err != nil {
		return nil, err
	}

	st := &NumericForStmt{stmtPos: stmtPos{pos}}
	bounds := make([]Expr, 0, 3)
	for _, item := range b.Items[1:] {
		e, err := ctx.compileExpr(item, s)
		if err != nil {
			return nil, err
		}
		bounds = append(bounds, e)
	}
	st.Start, st.Stop = bounds[0], bounds[1]
	if len(bounds) == 3 {
		st.Step = bounds[2]
	}

	loop := s.Child()
	st.Var = ctx.names.local(sym.Name)
	loop.Bind(&Binding{Symbol: sym.Name, Name: st.Var, Kind: BindLoop, Pos: sym.Span().Start})
	body, err := ctx.compileBody(pos, args[1:], loop)
	if err != nil {
		return nil, err
	}
	st.Body = placeBody(body, discard)
	return &StmtFrag{Pos: pos, Stmts: []Stmt{st}}, nil
}

// (while cond body...)
func (ctx *compileContext) compileWhile(n *List, s *Scope, kind Context) (Fragment, error) {
	args := n.Args()
	pos := n.Span().Start
	if len(args) == 0 {
		return nil, ctx.errorf(n, "while: expected a condition")
	}
	cond, err := ctx.compileExpr(args[0], s)
	if err != nil {
		return nil, err
	}
	body, err := ctx.compileBody(pos, args[1:], s.Child())
	if err != nil {
		return nil, err
	}
	return &StmtFrag{Pos: pos, Stmts: []Stmt{
		&WhileStmt{stmtPos: stmtPos{pos}, Cond: cond, Body: placeBody(body, discard)},
	}}, nil
}

// ---------------------------------------------------------------------------
// Values and method calls
// ---------------------------------------------------------------------------

// (values a b ...)
func (ctx *compileContext) compileValues(n *List, s *Scope, kind Context) (Fragment, error) {
	exprs, err := ctx.compileArgs(n.Args(), s)
	if err != nil {
		return nil, err
	}
	return &ExprFrag{Pos: n.Span().Start, Exprs: exprs}, nil
}

// (: obj method args...)
func (ctx *compileContext) compileMethodCall(n *List, s *Scope, kind Context) (Fragment, error) {
	args := n.Args()
	pos := n.Span().Start
	if len(args) < 2 {
		return nil, ctx.errorf(n, ": expected an object and a method name")
	}
	obj, err := ctx.compileExpr(args[0], s)
	if err != nil {
		return nil, err
	}
	callArgs, err := ctx.compileArgs(args[2:], s)
	if err != nil {
		return nil, err
	}

	var method string
	switch m := args[1].(type) {
	case *Keyword:
		method = m.Name
	case *String:
		method = m.Value
	}
	if IsLuaIdentifier(method) {
		return exprFrag(pos, &MethodCallExpr{Obj: obj, Method: method, Args: callArgs}), nil
	}

	key, err := ctx.compileExpr(args[1], s)
	if err != nil {
		return nil, err
	}
	if isSimple(obj) {
		call := &CallExpr{Fn: &IndexExpr{Obj: obj, Key: key}, Args: append([]Expr{obj}, callArgs...)}
		return exprFrag(pos, call), nil
	}
	t := ctx.names.temp("self")
	call := &CallExpr{Fn: &IndexExpr{Obj: name(t), Key: key}, Args: append([]Expr{name(t)}, callArgs...)}
	return &BlockFrag{
		Pos:    pos,
		Stmts:  []Stmt{&LocalStmt{stmtPos: stmtPos{pos}, Names: []string{t}, Values: []Expr{obj}}},
		Result: exprFrag(pos, call),
		Scoped: true,
	}, nil
}
