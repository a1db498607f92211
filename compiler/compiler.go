package compiler

import (
	"fmt"

	"github.com/chazu/fern/luahost"
)

// ---------------------------------------------------------------------------
// Compiler: lowers fern forms to Lua source
// ---------------------------------------------------------------------------

// Version identifies the code generator. It is part of compile cache keys.
const Version = "fern-0.4.0"

// MaxExpansionDepth bounds nested macro expansion.
const MaxExpansionDepth = 200

// LocalsTable is the host global through which PersistLocals carries
// top-level locals from one compiled chunk to the next.
const LocalsTable = "___fern_locals___"

// MacroLoader resolves a module name given to import-macros to its source
// text and a filename for diagnostics.
type MacroLoader func(module string) (source string, filename string, err error)

// Options control a compilation.
type Options struct {
	// Filename names the source in errors and correlation comments.
	Filename string
	// AllowGlobalDeclarations lets set assign unbound names as globals.
	AllowGlobalDeclarations bool
	// CorrelateLines appends "-- file:line" to emitted statements.
	CorrelateLines bool
	// AllowedGlobals restricts references to unbound names. Nil allows any.
	AllowedGlobals []string
	// PersistLocals saves top-level locals into LocalsTable and restores
	// locals declared by earlier compilations with the same Scope.
	PersistLocals bool
	// Scope is the top-level scope. Nil starts a fresh one.
	Scope *Scope
	// Macros is the macro namespace. Nil creates one with the core macros.
	Macros *MacroNamespace
	// MacroLoader serves import-macros. Nil disables it.
	MacroLoader MacroLoader
	// MacroCapabilities grants libraries to macro code beyond the sandbox.
	// Only consulted when Macros is nil.
	MacroCapabilities luahost.Capabilities
}

// Result is the output of a successful compilation.
type Result struct {
	Code     string
	LineMap  LineMap
	Warnings []Warning
}

// Compiler compiles successive units against one top-level scope and
// macro namespace.
type Compiler struct {
	opts   Options
	scope  *Scope
	macros *MacroNamespace
	owned  bool // macros were created here
	// macroMode compiles compile-time code: quote is allowed and the
	// AllowedGlobals restriction does not apply.
	macroMode bool
}

// New creates a compiler. It fails only if the core macros cannot be
// loaded.
func New(opts Options) (*Compiler, error) {
	c := &Compiler{opts: opts, scope: opts.Scope, macros: opts.Macros}
	if c.scope == nil {
		c.scope = NewScope()
	}
	if c.macros == nil {
		ns, err := NewMacroNamespace(opts.MacroCapabilities)
		if err != nil {
			return nil, err
		}
		c.macros = ns
		c.owned = true
	}
	return c, nil
}

// Scope returns the persistent top-level scope.
func (c *Compiler) Scope() *Scope { return c.scope }

// Macros returns the macro namespace.
func (c *Compiler) Macros() *MacroNamespace { return c.macros }

// Options returns the options the compiler was created with.
func (c *Compiler) Options() Options { return c.opts }

// Close releases the macro evaluator if the compiler created it.
func (c *Compiler) Close() {
	if c.owned {
		c.macros.Close()
	}
}

// Compile reads and compiles src with a fresh compiler.
func Compile(src string, opts Options) (*Result, error) {
	c, err := New(opts)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.CompileString(src)
}

// CompileString reads src and compiles every form in it. Reader errors and
// compile errors are reported together.
func (c *Compiler) CompileString(src string) (*Result, error) {
	p := NewParser(src)
	p.SetFilename(c.opts.Filename)
	forms := p.ParseAll()
	res, err := c.compile(forms, src)
	errs := p.Errors()
	if err != nil {
		errs = append(errs, flatten(err)...)
	}
	if len(errs) > 0 {
		return nil, errs.Err()
	}
	return res, nil
}

// CompileForms compiles already-read forms. Forms are processed strictly
// left to right; an error drops the offending form and compilation
// continues, so every error is reported. The unit's value is the value of
// its last form.
func (c *Compiler) CompileForms(forms []Node) (*Result, error) {
	return c.compile(forms, "")
}

func flatten(err error) ErrorList {
	if l, ok := err.(ErrorList); ok {
		return l
	}
	return ErrorList{err}
}

func (c *Compiler) compile(forms []Node, src string) (*Result, error) {
	ctx := newContext(c, src)

	var out []Stmt
	if c.opts.PersistLocals {
		out = append(out, ctx.restoreLocals()...)
	}

	var errs ErrorList
	for i, form := range forms {
		mark := c.scope.mark()
		stmts, err := ctx.compileTop(form, i == len(forms)-1)
		if err != nil {
			c.scope.rollback(mark)
			errs = append(errs, err)
			continue
		}
		out = append(out, stmts...)
	}
	if len(errs) > 0 {
		return nil, errs
	}

	r := newRenderer(c.opts.Filename, c.opts.CorrelateLines)
	r.block(out)
	return &Result{Code: r.String(), LineMap: r.lineMap, Warnings: ctx.warnings}, nil
}

// ---------------------------------------------------------------------------
// Compile context
// ---------------------------------------------------------------------------

// compileContext is the state of one compilation.
type compileContext struct {
	c        *Compiler
	opts     Options
	root     *Scope
	names    *nameTable
	macros   *MacroNamespace
	src      string
	warnings []Warning
	depth    int // nested macro expansions
	allowed  map[string]bool
	macro    bool // compiling compile-time code
}

func newContext(c *Compiler, src string) *compileContext {
	ctx := &compileContext{
		c:      c,
		opts:   c.opts,
		root:   c.scope,
		names:  newNameTable(),
		macros: c.macros,
		src:    src,
		macro:  c.macroMode,
	}
	for _, reserved := range []string{"_G", "_ENV", "table", "unpack", "error", LocalsTable} {
		ctx.names.reserve(reserved)
	}
	for _, b := range c.scope.Bindings() {
		ctx.names.reserve(b.Name)
	}
	if c.opts.AllowedGlobals != nil {
		ctx.allowed = make(map[string]bool, len(c.opts.AllowedGlobals))
		for _, g := range c.opts.AllowedGlobals {
			ctx.allowed[g] = true
		}
	}
	return ctx
}

// errorf creates a CompileError at n.
func (ctx *compileContext) errorf(n Node, format string, args ...interface{}) error {
	var pos Position
	if n != nil {
		pos = n.Span().Start
	}
	return &CompileError{
		location: ctx.locate(pos),
		Msg:      fmt.Sprintf(format, args...),
	}
}

func (ctx *compileContext) locate(pos Position) location {
	return location{Filename: ctx.opts.Filename, Pos: pos, Excerpt: sourceLine(ctx.src, pos.Line)}
}

func (ctx *compileContext) warn(n Node, format string, args ...interface{}) {
	ctx.warnings = append(ctx.warnings, Warning{
		Filename: ctx.opts.Filename,
		Pos:      n.Span().Start,
		Msg:      fmt.Sprintf(format, args...),
	})
}

// compileTop compiles one top-level form. The last form of a unit
// returns its value from the chunk.
func (ctx *compileContext) compileTop(form Node, last bool) ([]Stmt, error) {
	frag, err := ctx.compileForm(form, ctx.root, Statement)
	if err != nil {
		return nil, err
	}
	if last {
		return Place(frag, returning), nil
	}
	return Place(frag, discard), nil
}

// restoreLocals re-declares top-level locals of earlier compilations from
// the persistence table.
func (ctx *compileContext) restoreLocals() []Stmt {
	var out []Stmt
	for _, b := range ctx.root.Bindings() {
		out = append(out, &LocalStmt{
			Names:  []string{b.Name},
			Values: []Expr{&IndexExpr{Obj: name(LocalsTable), Key: str(b.Name)}},
		})
	}
	return out
}

// saveLocals stores top-level bindings into the persistence table.
func (ctx *compileContext) saveLocals(pos Position, bs []*Binding) []Stmt {
	if !ctx.opts.PersistLocals || len(bs) == 0 {
		return nil
	}
	st := &AssignStmt{stmtPos: stmtPos{pos}}
	for _, b := range bs {
		st.Targets = append(st.Targets, &IndexExpr{Obj: name(LocalsTable), Key: str(b.Name)})
		st.Values = append(st.Values, name(b.Name))
	}
	return []Stmt{st}
}

// ---------------------------------------------------------------------------
// Form dispatch
// ---------------------------------------------------------------------------

// compileForm lowers n in scope s. ctx says whether the form sits in a
// statement position of the block that s belongs to.
func (ctx *compileContext) compileForm(n Node, s *Scope, kind Context) (Fragment, error) {
	pos := n.Span().Start
	switch n := n.(type) {
	case *Symbol:
		e, err := ctx.compileSymbol(n, s)
		if err != nil {
			return nil, err
		}
		return exprFrag(pos, e), nil

	case *Keyword:
		return exprFrag(pos, str(n.Name)), nil

	case *String:
		return exprFrag(pos, str(n.Value)), nil

	case *Number:
		return exprFrag(pos, &NumberExpr{Text: n.Text}), nil

	case *Sequence:
		return ctx.compileSequence(n, s)

	case *Table:
		return ctx.compileTable(n, s)

	case *List:
		return ctx.compileList(n, s, kind)
	}
	return nil, ctx.errorf(n, "cannot compile %T", n)
}

func (ctx *compileContext) compileList(n *List, s *Scope, kind Context) (Fragment, error) {
	if len(n.Items) == 0 {
		return nil, ctx.errorf(n, "expected a function, macro, or special form to call")
	}

	if head, ok := n.Items[0].(*Symbol); ok {
		if _, bound := s.Lookup(head.Name); !bound {
			if m, ok := ctx.macros.Lookup(head.Name); ok {
				expanded, err := ctx.expand(m, n)
				if err != nil {
					return nil, err
				}
				ctx.depth++
				defer func() { ctx.depth-- }()
				return ctx.compileForm(expanded, s, kind)
			}
			if sf, ok := specialForms[head.Name]; ok {
				return sf(ctx, n, s, kind)
			}
			if op, ok := operators[head.Name]; ok {
				return ctx.compileOperator(op, n, s)
			}
		}
		if head.IsMultiSym() {
			if parts, method := head.Parts(); method {
				return ctx.compileMethodSym(n, head, parts, s)
			}
		}
	}
	return ctx.compileCall(n, s)
}

// compileArgs compiles call arguments in expression position.
func (ctx *compileContext) compileArgs(args []Node, s *Scope) ([]Expr, error) {
	frags := make([]Fragment, len(args))
	for i, a := range args {
		f, err := ctx.compileForm(a, s, Expression)
		if err != nil {
			return nil, err
		}
		frags[i] = f
	}
	return valueList(frags), nil
}

// compileExpr compiles n to a single expression.
func (ctx *compileContext) compileExpr(n Node, s *Scope) (Expr, error) {
	f, err := ctx.compileForm(n, s, Expression)
	if err != nil {
		return nil, err
	}
	return value1(f), nil
}

func (ctx *compileContext) compileCall(n *List, s *Scope) (Fragment, error) {
	fn, err := ctx.compileExpr(n.Items[0], s)
	if err != nil {
		return nil, err
	}
	args, err := ctx.compileArgs(n.Args(), s)
	if err != nil {
		return nil, err
	}
	if head, ok := n.Items[0].(*Symbol); ok {
		ctx.checkArity(n, head, s, args)
	}
	return exprFrag(n.Span().Start, &CallExpr{Fn: fn, Args: args}), nil
}

// compileMethodSym compiles (obj.field:method args...).
func (ctx *compileContext) compileMethodSym(n *List, head *Symbol, parts []string, s *Scope) (Fragment, error) {
	obj, err := ctx.resolvePath(head, parts[:len(parts)-1], s)
	if err != nil {
		return nil, err
	}
	args, err := ctx.compileArgs(n.Args(), s)
	if err != nil {
		return nil, err
	}
	method := parts[len(parts)-1]
	if !IsLuaIdentifier(method) {
		return nil, ctx.errorf(head, "invalid method name '%s'", method)
	}
	return exprFrag(n.Span().Start, &MethodCallExpr{Obj: obj, Method: method, Args: args}), nil
}

// ---------------------------------------------------------------------------
// Symbols
// ---------------------------------------------------------------------------

func (ctx *compileContext) compileSymbol(sym *Symbol, s *Scope) (Expr, error) {
	switch sym.Name {
	case "nil":
		return &NilExpr{}, nil
	case "true":
		return &BoolExpr{Value: true}, nil
	case "false":
		return &BoolExpr{Value: false}, nil
	case "...":
		if !s.Vararg() {
			return nil, ctx.errorf(sym, "unexpected vararg: ... is only valid in a function with ... or & in its parameters")
		}
		return &VarargExpr{}, nil
	}

	if sym.IsMultiSym() {
		if !validMultiSym(sym.Name) {
			return nil, ctx.errorf(sym, "malformed multisym '%s'", sym.Name)
		}
		parts, method := sym.Parts()
		if method {
			return nil, ctx.errorf(sym, "method reference '%s' is only valid in call position", sym.Name)
		}
		return ctx.resolvePath(sym, parts, s)
	}
	return ctx.resolveName(sym, sym.Name, s)
}

// resolvePath compiles a root name followed by field accesses.
func (ctx *compileContext) resolvePath(sym *Symbol, parts []string, s *Scope) (Expr, error) {
	e, err := ctx.resolveName(sym, parts[0], s)
	if err != nil {
		return nil, err
	}
	for _, field := range parts[1:] {
		e = &IndexExpr{Obj: e, Key: str(field)}
	}
	return e, nil
}

// resolveName resolves a plain name to a local or a global.
func (ctx *compileContext) resolveName(sym *Symbol, nm string, s *Scope) (Expr, error) {
	if b, ok := s.Lookup(nm); ok {
		return name(b.Name), nil
	}
	if _, ok := operators[nm]; ok {
		return nil, ctx.errorf(sym, "operator '%s' cannot be used as a value", nm)
	}
	if _, ok := specialForms[nm]; ok {
		return nil, ctx.errorf(sym, "special form '%s' cannot be used as a value", nm)
	}
	if _, ok := ctx.macros.Lookup(nm); ok {
		return nil, ctx.errorf(sym, "macro '%s' cannot be used as a value", nm)
	}
	if ctx.allowed != nil && !ctx.allowed[nm] && !s.GlobalDeclared(nm) && !ctx.macro {
		return nil, ctx.errorf(sym, "unknown identifier '%s'", nm)
	}
	return name(Mangle(nm)), nil
}

// ---------------------------------------------------------------------------
// Table literals
// ---------------------------------------------------------------------------

func (ctx *compileContext) compileSequence(n *Sequence, s *Scope) (Fragment, error) {
	frags := make([]Fragment, len(n.Items))
	for i, item := range n.Items {
		f, err := ctx.compileForm(item, s, Expression)
		if err != nil {
			return nil, err
		}
		frags[i] = f
	}
	t := &TableExpr{}
	for _, v := range valueList(frags) {
		t.Entries = append(t.Entries, TableEntry{Value: v})
	}
	return exprFrag(n.Span().Start, t), nil
}

func (ctx *compileContext) compileTable(n *Table, s *Scope) (Fragment, error) {
	t := &TableExpr{}
	for _, p := range n.Pairs {
		key, err := ctx.compileKey(p.Key, s)
		if err != nil {
			return nil, err
		}
		var val Expr
		if IsSym(p.Key, ":") {
			// {: name} is shorthand for {:name name}
			sym, ok := p.Value.(*Symbol)
			if !ok {
				return nil, ctx.errorf(p.Value, "expected a symbol after ':' in table shorthand")
			}
			key = str(sym.Name)
		}
		val, err = ctx.compileExpr(p.Value, s)
		if err != nil {
			return nil, err
		}
		t.Entries = append(t.Entries, TableEntry{Key: key, Value: val})
	}
	return exprFrag(n.Span().Start, t), nil
}

// compileKey compiles a table key, rejecting a literal nil.
func (ctx *compileContext) compileKey(k Node, s *Scope) (Expr, error) {
	switch k := k.(type) {
	case *Keyword:
		return str(k.Name), nil
	case *String:
		return str(k.Value), nil
	case *Symbol:
		if k.Name == "nil" {
			return nil, ctx.errorf(k, "table key cannot be nil")
		}
		if k.Name == ":" {
			return nil, nil
		}
	}
	return ctx.compileExpr(k, s)
}
