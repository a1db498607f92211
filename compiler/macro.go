package compiler

import (
	"fmt"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/chazu/fern/luahost"
)

// ---------------------------------------------------------------------------
// Macro expander
// ---------------------------------------------------------------------------

// Macro is a compile-time function from unevaluated forms to a form.
type Macro struct {
	Name     string
	Params   string // declared parameter pattern
	Fn       *lua.LFunction
	Filename string
	Pos      Position
}

// MacroNamespace holds macros apart from runtime bindings, together with
// the restricted Lua state their code runs in. It is shared by every
// compilation of a session.
type MacroNamespace struct {
	state   *luahost.State
	macros  map[string]*Macro
	modules map[string]*lua.LTable // import-macros cache

	symMT, listMT, seqMT, kvMT *lua.LTable

	// per-expansion bookkeeping, cleared when the outermost activation ends
	active  []*compileContext
	spans   map[*lua.LTable]Span
	order   map[*lua.LTable][]lua.LValue
	counter int
}

// NewMacroNamespace creates a namespace whose evaluator has the sandbox
// libraries plus caps, and loads the core macros into it.
func NewMacroNamespace(caps luahost.Capabilities) (*MacroNamespace, error) {
	ns := newBareNamespace(caps)
	if err := ns.loadPrelude(); err != nil {
		ns.Close()
		return nil, fmt.Errorf("loading core macros: %w", err)
	}
	return ns, nil
}

func newBareNamespace(caps luahost.Capabilities) *MacroNamespace {
	ns := &MacroNamespace{
		state:   luahost.New(luahost.Sandbox().Merge(caps)),
		macros:  make(map[string]*Macro),
		modules: make(map[string]*lua.LTable),
		spans:   make(map[*lua.LTable]Span),
		order:   make(map[*lua.LTable][]lua.LValue),
	}
	ns.installEnv()
	return ns
}

// Close releases the evaluator.
func (ns *MacroNamespace) Close() {
	ns.state.Close()
}

// Lookup finds a macro by name.
func (ns *MacroNamespace) Lookup(name string) (*Macro, bool) {
	m, ok := ns.macros[name]
	return m, ok
}

// Define adds or replaces a macro.
func (ns *MacroNamespace) Define(m *Macro) {
	ns.macros[m.Name] = m
}

// Names returns the defined macro names in sorted order.
func (ns *MacroNamespace) Names() []string {
	out := make([]string, 0, len(ns.macros))
	for name := range ns.macros {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Expand expands one macro call. A form whose head is not a macro is
// returned unchanged.
func (ns *MacroNamespace) Expand(form *List) (Node, error) {
	head, ok := form.Head().(*Symbol)
	if !ok {
		return form, nil
	}
	m, ok := ns.Lookup(head.Name)
	if !ok {
		return form, nil
	}
	return ns.scratchContext().expand(m, form)
}

func (ns *MacroNamespace) scratchContext() *compileContext {
	if n := len(ns.active); n > 0 {
		return ns.active[n-1]
	}
	return newContext(&Compiler{scope: NewScope(), macros: ns}, "")
}

// activate makes ctx the compilation that gensym and macroexpand serve.
func (ns *MacroNamespace) activate(ctx *compileContext) func() {
	ns.active = append(ns.active, ctx)
	return func() {
		ns.active = ns.active[:len(ns.active)-1]
		if len(ns.active) == 0 {
			ns.spans = make(map[*lua.LTable]Span)
			ns.order = make(map[*lua.LTable][]lua.LValue)
		}
	}
}

func (ns *MacroNamespace) nextGensym() int {
	if n := len(ns.active); n > 0 {
		return ns.active[n-1].names.next()
	}
	ns.counter++
	return ns.counter
}

// expand runs macro m on the unevaluated arguments of form.
func (ctx *compileContext) expand(m *Macro, form *List) (Node, error) {
	pos := form.Span().Start
	if ctx.depth >= MaxExpansionDepth {
		return nil, &MacroExpansionError{
			location: ctx.locate(pos),
			Macro:    m.Name,
			Msg:      fmt.Sprintf("expansion depth limit of %d exceeded; the macro may expand into itself", MaxExpansionDepth),
		}
	}

	ns := ctx.macros
	release := ns.activate(ctx)
	defer release()

	args := make([]lua.LValue, 0, len(form.Items))
	for _, a := range form.Args() {
		args = append(args, ns.toLua(a))
	}
	rets, err := ns.state.Call(m.Fn, args...)
	if err != nil {
		return nil, &MacroExpansionError{location: ctx.locate(pos), Macro: m.Name, Msg: errorMessage(err)}
	}
	var ret lua.LValue = lua.LNil
	if len(rets) > 0 {
		ret = rets[0]
	}
	node, err := ns.fromLua(ret, form.Span(), 0)
	if err != nil {
		return nil, &MacroExpansionError{location: ctx.locate(pos), Macro: m.Name, Msg: err.Error()}
	}
	return node, nil
}

func errorMessage(err error) string {
	if e, ok := err.(*luahost.Error); ok {
		return e.Message
	}
	return err.Error()
}

// ---------------------------------------------------------------------------
// Compile-time evaluation
// ---------------------------------------------------------------------------

// runCompileTime compiles forms as compile-time code and runs them in the
// macro evaluator, returning the values of the last form.
func (ctx *compileContext) runCompileTime(what string, forms []Node, filename, src string) ([]lua.LValue, error) {
	c := &Compiler{
		opts: Options{
			Filename:    filename,
			Macros:      ctx.macros,
			MacroLoader: ctx.opts.MacroLoader,
		},
		scope:     NewScope(),
		macros:    ctx.macros,
		macroMode: true,
	}
	res, err := c.compile(forms, src)
	if err != nil {
		return nil, flatten(err).Err()
	}

	release := ctx.macros.activate(ctx)
	defer release()
	vals, err := ctx.macros.state.DoString(fmt.Sprintf("%s (%s)", filename, what), res.Code)
	if err != nil {
		var pos Position
		if len(forms) > 0 {
			pos = forms[0].Span().Start
		}
		return nil, &MacroExpansionError{location: ctx.locate(pos), Macro: what, Msg: errorMessage(err)}
	}
	return vals, nil
}

// (macro name [params] body...)
func (ctx *compileContext) compileMacro(n *List, s *Scope, kind Context) (Fragment, error) {
	args := n.Args()
	if len(args) < 2 {
		return nil, ctx.errorf(n, "macro: expected a name, a parameter sequence and a body")
	}
	nameSym, ok := args[0].(*Symbol)
	if !ok || nameSym.IsMultiSym() {
		return nil, ctx.errorf(args[0], "macro: expected a plain symbol for the name, got %s", args[0])
	}
	params, ok := args[1].(*Sequence)
	if !ok {
		return nil, ctx.errorf(args[1], "macro: expected a parameter sequence, got %s", args[1])
	}

	fnForm := &List{
		SpanVal: n.SpanVal,
		Items:   append([]Node{Sym("fn", nameSym.Span()), params}, args[2:]...),
	}
	vals, err := ctx.runCompileTime("macro "+nameSym.Name, []Node{fnForm}, ctx.opts.Filename, ctx.src)
	if err != nil {
		return nil, err
	}
	fn, ok := firstValue(vals).(*lua.LFunction)
	if !ok {
		return nil, ctx.errorf(n, "macro: '%s' did not compile to a function", nameSym.Name)
	}
	ctx.macros.Define(&Macro{
		Name:     nameSym.Name,
		Params:   params.String(),
		Fn:       fn,
		Filename: ctx.opts.Filename,
		Pos:      n.Span().Start,
	})
	return nilFrag(n.Span().Start), nil
}

// (macros {:name (fn [...] ...) ...})
func (ctx *compileContext) compileMacros(n *List, s *Scope, kind Context) (Fragment, error) {
	args := n.Args()
	if len(args) != 1 {
		return nil, ctx.errorf(n, "macros: expected one table of macro functions")
	}
	tbl, ok := args[0].(*Table)
	if !ok {
		return nil, ctx.errorf(args[0], "macros: expected a table, got %s", args[0])
	}
	vals, err := ctx.runCompileTime("macros", []Node{tbl}, ctx.opts.Filename, ctx.src)
	if err != nil {
		return nil, err
	}
	t, ok := firstValue(vals).(*lua.LTable)
	if !ok {
		return nil, ctx.errorf(n, "macros: expected a table of functions")
	}
	if err := ctx.defineFrom(n, t, "", nil, ctx.opts.Filename); err != nil {
		return nil, err
	}
	return nilFrag(n.Span().Start), nil
}

// (import-macros :module), (import-macros prefix :module) or
// (import-macros {: name :exported local-name} :module)
func (ctx *compileContext) compileImportMacros(n *List, s *Scope, kind Context) (Fragment, error) {
	args := n.Args()
	if len(args) < 1 || len(args) > 2 {
		return nil, ctx.errorf(n, "import-macros: expected an optional binding and a module name")
	}
	if ctx.opts.MacroLoader == nil {
		return nil, ctx.errorf(n, "import-macros: no macro loader is configured")
	}

	modNode := args[len(args)-1]
	var module string
	switch m := modNode.(type) {
	case *String:
		module = m.Value
	case *Keyword:
		module = m.Name
	case *Symbol:
		module = m.Name
	default:
		return nil, ctx.errorf(modNode, "import-macros: expected a module name, got %s", modNode)
	}

	exports, err := ctx.loadMacroModule(n, module)
	if err != nil {
		return nil, err
	}

	prefix := ""
	var selected map[string]string
	if len(args) == 2 {
		switch b := args[0].(type) {
		case *Symbol:
			if b.IsMultiSym() {
				return nil, ctx.errorf(b, "import-macros: expected a plain prefix symbol, got %s", b)
			}
			prefix = b.Name + "."
		case *Table:
			selected = make(map[string]string)
			for _, p := range b.Pairs {
				local, ok := p.Value.(*Symbol)
				if !ok {
					return nil, ctx.errorf(p.Value, "import-macros: expected a symbol, got %s", p.Value)
				}
				switch k := p.Key.(type) {
				case *Keyword:
					selected[k.Name] = local.Name
				case *String:
					selected[k.Value] = local.Name
				case *Symbol:
					if k.Name != ":" {
						return nil, ctx.errorf(k, "import-macros: invalid key %s", k)
					}
					selected[local.Name] = local.Name
				default:
					return nil, ctx.errorf(p.Key, "import-macros: invalid key %s", p.Key)
				}
			}
		default:
			return nil, ctx.errorf(args[0], "import-macros: expected a prefix symbol or a table of names, got %s", args[0])
		}
	}
	if err := ctx.defineFrom(n, exports, prefix, selected, module); err != nil {
		return nil, err
	}
	return nilFrag(n.Span().Start), nil
}

// loadMacroModule reads, compiles and runs a macro module once per
// namespace.
func (ctx *compileContext) loadMacroModule(n *List, module string) (*lua.LTable, error) {
	if t, ok := ctx.macros.modules[module]; ok {
		return t, nil
	}
	src, filename, err := ctx.opts.MacroLoader(module)
	if err != nil {
		return nil, ctx.errorf(n, "import-macros: %v", err)
	}
	forms, err := ReadNamed(filename, src)
	if err != nil {
		return nil, err
	}
	vals, err := ctx.runCompileTime("import-macros "+module, forms, filename, src)
	if err != nil {
		return nil, err
	}
	t, ok := firstValue(vals).(*lua.LTable)
	if !ok {
		return nil, ctx.errorf(n, "import-macros: module '%s' must evaluate to a table of functions", module)
	}
	ctx.macros.modules[module] = t
	return t, nil
}

// defineFrom registers the function-valued string keys of t as macros.
// selected maps exported names to local names; nil takes every export.
func (ctx *compileContext) defineFrom(n *List, t *lua.LTable, prefix string, selected map[string]string, filename string) error {
	var keys []string
	exports := make(map[string]*lua.LFunction)
	var bad error
	t.ForEach(func(k, v lua.LValue) {
		ks, ok := k.(lua.LString)
		fn, isFn := v.(*lua.LFunction)
		if !ok || !isFn {
			if bad == nil {
				bad = ctx.errorf(n, "macro table entry %s is not a named function", luahost.Format(k))
			}
			return
		}
		keys = append(keys, string(ks))
		exports[string(ks)] = fn
	})
	if bad != nil {
		return bad
	}
	sort.Strings(keys)

	if selected != nil {
		for exported := range selected {
			if _, ok := exports[exported]; !ok {
				return ctx.errorf(n, "macro '%s' not found in %s", exported, filename)
			}
		}
	}
	for _, k := range keys {
		local := prefix + k
		if selected != nil {
			l, ok := selected[k]
			if !ok {
				continue
			}
			local = l
		}
		ctx.macros.Define(&Macro{Name: local, Fn: exports[k], Filename: filename, Pos: n.Span().Start})
	}
	return nil
}

// (eval-compiler body...)
func (ctx *compileContext) compileEvalCompiler(n *List, s *Scope, kind Context) (Fragment, error) {
	if len(n.Args()) > 0 {
		if _, err := ctx.runCompileTime("eval-compiler", n.Args(), ctx.opts.Filename, ctx.src); err != nil {
			return nil, err
		}
	}
	return nilFrag(n.Span().Start), nil
}

func firstValue(vals []lua.LValue) lua.LValue {
	if len(vals) == 0 {
		return lua.LNil
	}
	return vals[0]
}

// ---------------------------------------------------------------------------
// Macro environment
// ---------------------------------------------------------------------------

// installEnv defines the syntax helpers available to macro code.
func (ns *MacroNamespace) installEnv() {
	L := ns.state.L
	ns.symMT = L.NewTable()
	ns.listMT = L.NewTable()
	ns.seqMT = L.NewTable()
	ns.kvMT = L.NewTable()

	view := func(L *lua.LState) int {
		n, err := ns.fromLua(L.Get(1), Span{}, 0)
		if err != nil {
			L.Push(lua.LString(luahost.Format(L.Get(1))))
			return 1
		}
		L.Push(lua.LString(n.String()))
		return 1
	}
	for _, mt := range []*lua.LTable{ns.symMT, ns.listMT, ns.seqMT, ns.kvMT} {
		mt.RawSetString("__tostring", L.NewFunction(view))
	}

	collect := func(L *lua.LState, mt *lua.LTable) *lua.LTable {
		t := L.NewTable()
		for i := 1; i <= L.GetTop(); i++ {
			v := L.Get(i)
			if v == lua.LNil {
				v = ns.newSym("nil")
			}
			t.RawSetInt(i, v)
		}
		L.SetMetatable(t, mt)
		return t
	}

	env := map[string]lua.LGFunction{
		"list": func(L *lua.LState) int {
			L.Push(collect(L, ns.listMT))
			return 1
		},
		"sequence": func(L *lua.LState) int {
			L.Push(collect(L, ns.seqMT))
			return 1
		},
		"sym": func(L *lua.LState) int {
			L.Push(ns.newSym(L.CheckString(1)))
			return 1
		},
		"gensym": func(L *lua.LState) int {
			base := L.OptString(1, "g")
			L.Push(ns.newSym(fmt.Sprintf("_%s_%d_", base, ns.nextGensym())))
			return 1
		},
		"list?": func(L *lua.LState) int {
			L.Push(lua.LBool(ns.hasMT(L.Get(1), ns.listMT)))
			return 1
		},
		"sym?": func(L *lua.LState) int {
			L.Push(lua.LBool(ns.hasMT(L.Get(1), ns.symMT)))
			return 1
		},
		"sequence?": func(L *lua.LState) int {
			L.Push(lua.LBool(ns.hasMT(L.Get(1), ns.seqMT)))
			return 1
		},
		"table?": func(L *lua.LState) int {
			v := L.Get(1)
			_, isTable := v.(*lua.LTable)
			L.Push(lua.LBool(isTable && !ns.hasMT(v, ns.symMT) && !ns.hasMT(v, ns.listMT) && !ns.hasMT(v, ns.seqMT)))
			return 1
		},
		"varg?": func(L *lua.LState) int {
			name, ok := ns.symName(L.Get(1))
			L.Push(lua.LBool(ok && name == "..."))
			return 1
		},
		"multi-sym?": func(L *lua.LState) int {
			name, ok := ns.symName(L.Get(1))
			sym := &Symbol{Name: name}
			if !ok || !sym.IsMultiSym() {
				L.Push(lua.LFalse)
				return 1
			}
			parts, _ := sym.Parts()
			t := L.NewTable()
			for _, p := range parts {
				t.Append(lua.LString(p))
			}
			L.Push(t)
			return 1
		},
		"sym-name": func(L *lua.LState) int {
			name, ok := ns.symName(L.Get(1))
			if !ok {
				L.ArgError(1, "expected a symbol")
			}
			L.Push(lua.LString(name))
			return 1
		},
		"macroexpand": func(L *lua.LState) int {
			form, err := ns.fromLua(L.Get(1), Span{}, 0)
			if err != nil {
				L.RaiseError("macroexpand: %s", err.Error())
			}
			list, ok := form.(*List)
			if !ok {
				L.Push(L.Get(1))
				return 1
			}
			expanded, err := ns.Expand(list)
			if err != nil {
				L.RaiseError("%s", err.Error())
			}
			L.Push(ns.toLua(expanded))
			return 1
		},
		"assert-compile": func(L *lua.LState) int {
			cond := L.Get(1)
			if lua.LVIsFalse(cond) {
				msg := L.OptString(2, "assertion failed")
				if form, err := ns.fromLua(L.Get(3), Span{}, 0); err == nil && L.GetTop() >= 3 {
					if sp, ok := ns.spanOf(L.Get(3)); ok && sp.Start.IsValid() {
						msg = fmt.Sprintf("%s (at line %d: %s)", msg, sp.Start.Line, form)
					}
				}
				L.RaiseError("%s", msg)
			}
			L.Push(cond)
			return 1
		},
		"view": view,
		"_quote_kv": func(L *lua.LState) int {
			t := L.NewTable()
			var keys []lua.LValue
			for i := 1; i+1 <= L.GetTop(); i += 2 {
				k, v := L.Get(i), L.Get(i+1)
				if k == lua.LNil {
					L.RaiseError("table key cannot be nil")
				}
				if v == lua.LNil {
					v = ns.newSym("nil")
				}
				t.RawSet(k, v)
				keys = append(keys, k)
			}
			L.SetMetatable(t, ns.kvMT)
			ns.order[t] = keys
			L.Push(t)
			return 1
		},
	}
	for name, fn := range env {
		ns.state.Register(Mangle(name), fn)
	}
}

func (ns *MacroNamespace) newSym(name string) *lua.LTable {
	L := ns.state.L
	t := L.NewTable()
	t.RawSetInt(1, lua.LString(name))
	L.SetMetatable(t, ns.symMT)
	return t
}

func (ns *MacroNamespace) hasMT(v lua.LValue, mt *lua.LTable) bool {
	t, ok := v.(*lua.LTable)
	if !ok {
		return false
	}
	return ns.state.L.GetMetatable(t) == mt
}

func (ns *MacroNamespace) symName(v lua.LValue) (string, bool) {
	if !ns.hasMT(v, ns.symMT) {
		return "", false
	}
	s, ok := v.(*lua.LTable).RawGetInt(1).(lua.LString)
	return string(s), ok
}

func (ns *MacroNamespace) spanOf(v lua.LValue) (Span, bool) {
	t, ok := v.(*lua.LTable)
	if !ok {
		return Span{}, false
	}
	sp, ok := ns.spans[t]
	return sp, ok
}

// ---------------------------------------------------------------------------
// AST <-> Lua conversion
// ---------------------------------------------------------------------------

// toLua converts a form to the value macro code receives.
func (ns *MacroNamespace) toLua(n Node) lua.LValue {
	L := ns.state.L
	var t *lua.LTable
	switch n := n.(type) {
	case *Symbol:
		t = ns.newSym(n.Name)
	case *Keyword:
		return lua.LString(n.Name)
	case *String:
		return lua.LString(n.Value)
	case *Number:
		return lua.LNumber(n.Value)
	case *List:
		t = L.NewTable()
		for i, item := range n.Items {
			t.RawSetInt(i+1, ns.toLua(item))
		}
		L.SetMetatable(t, ns.listMT)
	case *Sequence:
		t = L.NewTable()
		for i, item := range n.Items {
			t.RawSetInt(i+1, ns.toLua(item))
		}
		L.SetMetatable(t, ns.seqMT)
	case *Table:
		t = L.NewTable()
		keys := make([]lua.LValue, 0, len(n.Pairs))
		for _, p := range n.Pairs {
			k := ns.toLua(p.Key)
			t.RawSet(k, ns.toLua(p.Value))
			keys = append(keys, k)
		}
		L.SetMetatable(t, ns.kvMT)
		ns.order[t] = keys
	default:
		return lua.LNil
	}
	ns.spans[t] = n.Span()
	return t
}

const maxConvertDepth = 500

// fromLua converts a value returned by macro code back into a form. Nodes
// without a recorded position take span, the macro call site.
func (ns *MacroNamespace) fromLua(v lua.LValue, span Span, depth int) (Node, error) {
	if depth > maxConvertDepth {
		return nil, fmt.Errorf("form nested too deeply (or cyclic)")
	}
	switch v := v.(type) {
	case *lua.LNilType:
		return Sym("nil", span), nil
	case lua.LBool:
		if v {
			return Sym("true", span), nil
		}
		return Sym("false", span), nil
	case lua.LNumber:
		return &Number{SpanVal: span, Text: numberText(float64(v)), Value: float64(v)}, nil
	case lua.LString:
		return &String{SpanVal: span, Value: string(v)}, nil
	case *lua.LTable:
		return ns.tableToNode(v, span, depth)
	}
	return nil, fmt.Errorf("macro produced a %s value, which has no source form", v.Type())
}

func (ns *MacroNamespace) tableToNode(t *lua.LTable, span Span, depth int) (Node, error) {
	if sp, ok := ns.spans[t]; ok {
		span = sp
	}
	items := func() ([]Node, error) {
		n := t.Len()
		out := make([]Node, 0, n)
		for i := 1; i <= n; i++ {
			item, err := ns.fromLua(t.RawGetInt(i), span, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	}

	switch ns.state.L.GetMetatable(t) {
	case ns.symMT:
		name, _ := ns.symName(t)
		if name == "" {
			return nil, fmt.Errorf("symbol without a name")
		}
		return Sym(name, span), nil
	case ns.listMT:
		its, err := items()
		if err != nil {
			return nil, err
		}
		return &List{SpanVal: span, Items: its}, nil
	case ns.seqMT:
		its, err := items()
		if err != nil {
			return nil, err
		}
		return &Sequence{SpanVal: span, Items: its}, nil
	case ns.kvMT:
	default:
		count := 0
		t.ForEach(func(_, _ lua.LValue) { count++ })
		if n := t.Len(); n > 0 && n == count {
			its, err := items()
			if err != nil {
				return nil, err
			}
			return &Sequence{SpanVal: span, Items: its}, nil
		}
	}

	// key/value table: recorded key order first, then remaining keys in
	// sorted order
	var keys []lua.LValue
	seen := make(map[lua.LValue]bool)
	for _, k := range ns.order[t] {
		if t.RawGet(k) != lua.LNil && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []lua.LValue
	t.ForEach(func(k, _ lua.LValue) {
		if !seen[k] {
			rest = append(rest, k)
		}
	})
	luahost.SortKeys(rest)
	keys = append(keys, rest...)

	out := &Table{SpanVal: span}
	for _, k := range keys {
		var key Node
		if s, ok := k.(lua.LString); ok && isKeywordText(string(s)) {
			key = &Keyword{SpanVal: span, Name: string(s)}
		} else {
			var err error
			key, err = ns.fromLua(k, span, depth+1)
			if err != nil {
				return nil, err
			}
		}
		val, err := ns.fromLua(t.RawGet(k), span, depth+1)
		if err != nil {
			return nil, err
		}
		out.Pairs = append(out.Pairs, Pair{Key: key, Value: val})
	}
	return out, nil
}

// numberText spells a number as a Lua expression.
func numberText(f float64) string {
	if f != f {
		return "(0/0)"
	}
	return luahost.FormatNumber(f)
}

// isKeywordText reports whether s reads back as the keyword :s.
func isKeywordText(s string) bool {
	if s == "" {
		return false
	}
	if _, ok := normalizeNumber(s); ok {
		return false
	}
	return !strings.ContainsAny(s, " \t\n\r\f\v()[]{}\";'`,")
}
