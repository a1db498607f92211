package compiler

// ---------------------------------------------------------------------------
// Operators: valid only in call-head position
// ---------------------------------------------------------------------------

type opKind int

const (
	opArith opKind = iota
	opCompare
	opLogical
	opConcat
	opNot
	opLength
)

// operator describes how a fern operator lowers to Lua.
type operator struct {
	kind opKind
	lua  string
	// identity is the value of the zero-argument form ("" means an
	// argument is required).
	identity Expr
	// unary lowers the one-argument form; nil means the argument itself.
	unary func(x Expr) Expr
	// minArgs is the smallest argument count accepted.
	minArgs int
}

var operators = map[string]*operator{
	"+":  {kind: opArith, lua: "+", identity: &NumberExpr{Text: "0"}},
	"*":  {kind: opArith, lua: "*", identity: &NumberExpr{Text: "1"}},
	"-":  {kind: opArith, lua: "-", minArgs: 1, unary: func(x Expr) Expr { return &UnaryExpr{Op: "-", X: x} }},
	"/":  {kind: opArith, lua: "/", minArgs: 1, unary: func(x Expr) Expr { return &BinaryExpr{Op: "/", Left: &NumberExpr{Text: "1"}, Right: x} }},
	"//": {kind: opArith, lua: "//", minArgs: 2},
	"%":  {kind: opArith, lua: "%", minArgs: 2},
	"^":  {kind: opArith, lua: "^", minArgs: 2},

	"..": {kind: opConcat, lua: "..", identity: &StringExpr{Value: ""}},

	"=":    {kind: opCompare, lua: "==", minArgs: 2},
	"not=": {kind: opCompare, lua: "~=", minArgs: 2},
	"~=":   {kind: opCompare, lua: "~=", minArgs: 2},
	"<":    {kind: opCompare, lua: "<", minArgs: 2},
	">":    {kind: opCompare, lua: ">", minArgs: 2},
	"<=":   {kind: opCompare, lua: "<=", minArgs: 2},
	">=":   {kind: opCompare, lua: ">=", minArgs: 2},

	"and": {kind: opLogical, lua: "and", identity: &BoolExpr{Value: true}},
	"or":  {kind: opLogical, lua: "or", identity: &BoolExpr{Value: false}},

	"not":    {kind: opNot, minArgs: 1},
	"#":      {kind: opLength, minArgs: 1},
	"length": {kind: opLength, minArgs: 1},
}

// IsOperator reports whether name is an operator.
func IsOperator(name string) bool {
	_, ok := operators[name]
	return ok
}

func (ctx *compileContext) compileOperator(op *operator, n *List, s *Scope) (Fragment, error) {
	head := n.Items[0].(*Symbol)
	args := n.Args()
	pos := n.Span().Start

	if len(args) < op.minArgs {
		return nil, ctx.errorf(n, "'%s' expects at least %d argument%s, got %d",
			head.Name, op.minArgs, plural(op.minArgs), len(args))
	}

	switch op.kind {
	case opNot, opLength:
		if len(args) != 1 {
			return nil, ctx.errorf(n, "'%s' expects exactly 1 argument, got %d", head.Name, len(args))
		}
		x, err := ctx.compileExpr(args[0], s)
		if err != nil {
			return nil, err
		}
		if op.kind == opNot {
			return exprFrag(pos, &UnaryExpr{Op: "not", X: x}), nil
		}
		return exprFrag(pos, &UnaryExpr{Op: "#", X: x}), nil
	}

	operands := make([]Expr, len(args))
	for i, a := range args {
		x, err := ctx.compileExpr(a, s)
		if err != nil {
			return nil, err
		}
		operands[i] = x
	}

	if op.kind == opCompare {
		return ctx.compileComparison(op, pos, operands), nil
	}

	switch len(operands) {
	case 0:
		return exprFrag(pos, op.identity), nil
	case 1:
		if op.unary != nil {
			return exprFrag(pos, op.unary(operands[0])), nil
		}
		if op.kind == opConcat {
			return exprFrag(pos, &BinaryExpr{Op: "..", Left: operands[0], Right: &StringExpr{}}), nil
		}
		return exprFrag(pos, operands[0]), nil
	}

	e := operands[0]
	for _, x := range operands[1:] {
		e = &BinaryExpr{Op: op.lua, Left: e, Right: x}
	}
	return exprFrag(pos, e), nil
}

// compileComparison chains (< a b c) as (a < b) and (b < c). Operands that
// are not names or literals are first bound to temporaries so each is
// evaluated once.
func (ctx *compileContext) compileComparison(op *operator, pos Position, operands []Expr) Fragment {
	if len(operands) == 2 {
		return exprFrag(pos, &BinaryExpr{Op: op.lua, Left: operands[0], Right: operands[1]})
	}

	simple := true
	for _, x := range operands[1 : len(operands)-1] {
		if !isSimple(x) {
			simple = false
			break
		}
	}

	var stmts []Stmt
	if !simple {
		decl := &LocalStmt{stmtPos: stmtPos{pos}}
		for i, x := range operands {
			t := ctx.names.temp("cmp")
			decl.Names = append(decl.Names, t)
			decl.Values = append(decl.Values, x)
			operands[i] = name(t)
		}
		stmts = append(stmts, decl)
	}

	var e Expr
	for i := 0; i+1 < len(operands); i++ {
		cmp := &BinaryExpr{Op: op.lua, Left: operands[i], Right: operands[i+1]}
		if e == nil {
			e = cmp
		} else {
			e = &BinaryExpr{Op: "and", Left: e, Right: cmp}
		}
	}
	if len(stmts) == 0 {
		return exprFrag(pos, e)
	}
	return &BlockFrag{Pos: pos, Stmts: stmts, Result: exprFrag(pos, e), Scoped: true}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
