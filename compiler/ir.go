package compiler

// ---------------------------------------------------------------------------
// Lua IR: the target-language tree the emitter renders
// ---------------------------------------------------------------------------

// Expr is a Lua expression.
type Expr interface {
	expr() // marker method
}

// Stmt is a Lua statement. Pos is the source position it was lowered from.
type Stmt interface {
	stmt() // marker method
	At() Position
}

// stmtPos is embedded by every statement.
type stmtPos struct {
	Pos Position
}

func (s stmtPos) At() Position { return s.Pos }

// Expressions

type NilExpr struct{}

type BoolExpr struct{ Value bool }

// NumberExpr holds a numeric literal in Lua spelling.
type NumberExpr struct{ Text string }

type StringExpr struct{ Value string }

// NameExpr references a local or global variable.
type NameExpr struct{ Name string }

type VarargExpr struct{}

// IndexExpr is Obj[Key], rendered as Obj.key when Key is a name-shaped
// string.
type IndexExpr struct {
	Obj Expr
	Key Expr
}

type CallExpr struct {
	Fn   Expr
	Args []Expr
}

// MethodCallExpr is Obj:Method(Args).
type MethodCallExpr struct {
	Obj    Expr
	Method string
	Args   []Expr
}

type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

type UnaryExpr struct {
	Op string
	X  Expr
}

type FuncExpr struct {
	Params []string
	Vararg bool
	Body   []Stmt
}

// TableEntry is one constructor field. A nil Key marks a positional entry.
type TableEntry struct {
	Key   Expr
	Value Expr
}

type TableExpr struct {
	Entries []TableEntry
}

// ParenExpr truncates a multi-valued expression to one value.
type ParenExpr struct{ X Expr }

func (*NilExpr) expr()        {}
func (*BoolExpr) expr()       {}
func (*NumberExpr) expr()     {}
func (*StringExpr) expr()     {}
func (*NameExpr) expr()       {}
func (*VarargExpr) expr()     {}
func (*IndexExpr) expr()      {}
func (*CallExpr) expr()       {}
func (*MethodCallExpr) expr() {}
func (*BinaryExpr) expr()     {}
func (*UnaryExpr) expr()      {}
func (*FuncExpr) expr()       {}
func (*TableExpr) expr()      {}
func (*ParenExpr) expr()      {}

// Statements

type LocalStmt struct {
	stmtPos
	Names  []string
	Values []Expr
}

type AssignStmt struct {
	stmtPos
	Targets []Expr
	Values  []Expr
}

// CallStmt evaluates a call for its effects.
type CallStmt struct {
	stmtPos
	Call Expr
}

type IfStmt struct {
	stmtPos
	Conds  []Expr
	Blocks [][]Stmt
	Else   []Stmt // nil: no else branch
}

type WhileStmt struct {
	stmtPos
	Cond Expr
	Body []Stmt
}

type NumericForStmt struct {
	stmtPos
	Var   string
	Start Expr
	Stop  Expr
	Step  Expr // may be nil
	Body  []Stmt
}

type GenericForStmt struct {
	stmtPos
	Names []string
	Exprs []Expr
	Body  []Stmt
}

type DoStmt struct {
	stmtPos
	Body []Stmt
}

type ReturnStmt struct {
	stmtPos
	Values []Expr
}

type LocalFunctionStmt struct {
	stmtPos
	Name string
	Func *FuncExpr
}

func (*LocalStmt) stmt()         {}
func (*AssignStmt) stmt()        {}
func (*CallStmt) stmt()          {}
func (*IfStmt) stmt()            {}
func (*WhileStmt) stmt()         {}
func (*NumericForStmt) stmt()    {}
func (*GenericForStmt) stmt()    {}
func (*DoStmt) stmt()            {}
func (*ReturnStmt) stmt()        {}
func (*LocalFunctionStmt) stmt() {}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func name(n string) *NameExpr { return &NameExpr{Name: n} }

func str(s string) *StringExpr { return &StringExpr{Value: s} }

func names(ns []string) []Expr {
	out := make([]Expr, len(ns))
	for i, n := range ns {
		out[i] = name(n)
	}
	return out
}

// isPure reports whether evaluating e can have no observable effect, so
// that it may be dropped in statement position.
func isPure(e Expr) bool {
	switch e := e.(type) {
	case *NilExpr, *BoolExpr, *NumberExpr, *StringExpr, *NameExpr, *VarargExpr, *FuncExpr:
		return true
	case *ParenExpr:
		return isPure(e.X)
	case *TableExpr:
		for _, entry := range e.Entries {
			if (entry.Key != nil && !isPure(entry.Key)) || !isPure(entry.Value) {
				return false
			}
		}
		return true
	}
	return false
}

// isSimple reports whether e can be repeated without re-evaluating
// anything: a name or a literal.
func isSimple(e Expr) bool {
	switch e.(type) {
	case *NilExpr, *BoolExpr, *NumberExpr, *StringExpr, *NameExpr:
		return true
	}
	return false
}

// isMultiValued reports whether e may produce more than one value.
func isMultiValued(e Expr) bool {
	switch e.(type) {
	case *CallExpr, *MethodCallExpr, *VarargExpr:
		return true
	}
	return false
}

// usesVararg reports whether ... appears in stmts outside nested
// functions.
func usesVararg(stmts []Stmt) bool {
	for _, s := range stmts {
		if stmtUsesVararg(s) {
			return true
		}
	}
	return false
}

func stmtUsesVararg(s Stmt) bool {
	switch s := s.(type) {
	case *LocalStmt:
		return anyUsesVararg(s.Values)
	case *AssignStmt:
		return anyUsesVararg(s.Targets) || anyUsesVararg(s.Values)
	case *CallStmt:
		return exprUsesVararg(s.Call)
	case *IfStmt:
		if anyUsesVararg(s.Conds) || usesVararg(s.Else) {
			return true
		}
		for _, b := range s.Blocks {
			if usesVararg(b) {
				return true
			}
		}
	case *WhileStmt:
		return exprUsesVararg(s.Cond) || usesVararg(s.Body)
	case *NumericForStmt:
		return exprUsesVararg(s.Start) || exprUsesVararg(s.Stop) ||
			(s.Step != nil && exprUsesVararg(s.Step)) || usesVararg(s.Body)
	case *GenericForStmt:
		return anyUsesVararg(s.Exprs) || usesVararg(s.Body)
	case *DoStmt:
		return usesVararg(s.Body)
	case *ReturnStmt:
		return anyUsesVararg(s.Values)
	}
	return false
}

func anyUsesVararg(es []Expr) bool {
	for _, e := range es {
		if exprUsesVararg(e) {
			return true
		}
	}
	return false
}

func exprUsesVararg(e Expr) bool {
	switch e := e.(type) {
	case *VarargExpr:
		return true
	case *IndexExpr:
		return exprUsesVararg(e.Obj) || exprUsesVararg(e.Key)
	case *CallExpr:
		return exprUsesVararg(e.Fn) || anyUsesVararg(e.Args)
	case *MethodCallExpr:
		return exprUsesVararg(e.Obj) || anyUsesVararg(e.Args)
	case *BinaryExpr:
		return exprUsesVararg(e.Left) || exprUsesVararg(e.Right)
	case *UnaryExpr:
		return exprUsesVararg(e.X)
	case *ParenExpr:
		return exprUsesVararg(e.X)
	case *TableExpr:
		for _, entry := range e.Entries {
			if (entry.Key != nil && exprUsesVararg(entry.Key)) || exprUsesVararg(entry.Value) {
				return true
			}
		}
	}
	return false
}
