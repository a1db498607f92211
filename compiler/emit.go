package compiler

import (
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Emitter: renders the Lua IR as source text
// ---------------------------------------------------------------------------

// Context selects how a fragment is emitted.
type Context int

const (
	Statement  Context = iota // the value may be discarded
	Expression                // the value is consumed
)

func (c Context) String() string {
	if c == Expression {
		return "expression"
	}
	return "statement"
}

// LineMap maps 1-based output line numbers to the source positions the
// statements on those lines were lowered from.
type LineMap map[int]Position

// Lines returns the mapped output lines in ascending order.
func (m LineMap) Lines() []int {
	out := make([]int, 0, len(m))
	for line := range m {
		out = append(out, line)
	}
	sort.Ints(out)
	return out
}

// Emit renders f as Lua source. In Statement context f is discarded;
// in Expression context the result is a single expression.
func Emit(f Fragment, ctx Context) string {
	r := newRenderer("", false)
	if ctx == Expression {
		r.expr(value1(f))
		return r.sb.String()
	}
	r.block(Place(f, discard))
	return r.String()
}

// renderer writes Lua text with two-space indentation and records which
// source position each output line came from.
type renderer struct {
	sb        strings.Builder
	indent    int
	line      int
	atStart   bool
	lineMap   LineMap
	correlate bool
	filename  string
	pending   string // correlation comment for the current line
}

func newRenderer(filename string, correlate bool) *renderer {
	return &renderer{
		line:      1,
		atStart:   true,
		lineMap:   make(LineMap),
		correlate: correlate,
		filename:  filename,
	}
}

// String returns the rendered text without a trailing newline.
func (r *renderer) String() string {
	r.flushComment()
	return strings.TrimRight(r.sb.String(), "\n")
}

func (r *renderer) write(s string) {
	if r.atStart {
		r.sb.WriteString(strings.Repeat("  ", r.indent))
		r.atStart = false
	}
	r.sb.WriteString(s)
}

func (r *renderer) flushComment() {
	if r.pending != "" {
		r.sb.WriteString(" -- ")
		r.sb.WriteString(r.pending)
		r.pending = ""
	}
}

func (r *renderer) newline() {
	r.flushComment()
	r.sb.WriteByte('\n')
	r.line++
	r.atStart = true
}

// mark records that the statement starting on the current line came from
// pos.
func (r *renderer) mark(pos Position) {
	if !pos.IsValid() {
		return
	}
	if _, ok := r.lineMap[r.line]; !ok {
		r.lineMap[r.line] = pos
	}
	if r.correlate && r.pending == "" {
		name := r.filename
		if name == "" {
			name = "unknown"
		}
		r.pending = fmt.Sprintf("%s:%d", name, pos.Line)
	}
}

// block renders statements, one per line.
func (r *renderer) block(stmts []Stmt) {
	for i, s := range stmts {
		if i > 0 {
			r.newline()
		}
		r.stmt(s)
	}
}

// body renders an indented block between a header and its end keyword.
func (r *renderer) body(stmts []Stmt) {
	r.indent++
	for _, s := range stmts {
		r.newline()
		r.stmt(s)
	}
	r.indent--
	r.newline()
}

func (r *renderer) stmt(s Stmt) {
	r.mark(s.At())
	switch s := s.(type) {
	case *LocalStmt:
		r.write("local " + strings.Join(s.Names, ", "))
		if len(s.Values) > 0 {
			r.write(" = ")
			r.exprList(s.Values)
		}

	case *AssignStmt:
		r.exprList(s.Targets)
		r.write(" = ")
		r.exprList(s.Values)

	case *CallStmt:
		if startsWithParen(s.Call) {
			r.write("do local _ = ")
			r.expr(s.Call)
			r.write(" end")
			return
		}
		r.expr(s.Call)

	case *IfStmt:
		for i, cond := range s.Conds {
			if i == 0 {
				r.write("if ")
			} else {
				r.write("elseif ")
			}
			r.expr(cond)
			r.write(" then")
			r.body(s.Blocks[i])
		}
		if s.Else != nil {
			r.write("else")
			r.body(s.Else)
		}
		r.write("end")

	case *WhileStmt:
		r.write("while ")
		r.expr(s.Cond)
		r.write(" do")
		r.body(s.Body)
		r.write("end")

	case *NumericForStmt:
		r.write("for " + s.Var + " = ")
		r.expr(s.Start)
		r.write(", ")
		r.expr(s.Stop)
		if s.Step != nil {
			r.write(", ")
			r.expr(s.Step)
		}
		r.write(" do")
		r.body(s.Body)
		r.write("end")

	case *GenericForStmt:
		r.write("for " + strings.Join(s.Names, ", ") + " in ")
		r.exprList(s.Exprs)
		r.write(" do")
		r.body(s.Body)
		r.write("end")

	case *DoStmt:
		r.write("do")
		r.body(s.Body)
		r.write("end")

	case *ReturnStmt:
		r.write("return")
		if len(s.Values) > 0 {
			r.write(" ")
			r.exprList(s.Values)
		}

	case *LocalFunctionStmt:
		r.write("local function " + s.Name)
		r.funcTail(s.Func)

	default:
		panic(fmt.Sprintf("emit: unknown statement %T", s))
	}
}

func (r *renderer) exprList(es []Expr) {
	for i, e := range es {
		if i > 0 {
			r.write(", ")
		}
		r.expr(e)
	}
}

func (r *renderer) expr(e Expr) {
	switch e := e.(type) {
	case *NilExpr:
		r.write("nil")
	case *BoolExpr:
		if e.Value {
			r.write("true")
		} else {
			r.write("false")
		}
	case *NumberExpr:
		r.write(e.Text)
	case *StringExpr:
		r.write(QuoteString(e.Value))
	case *NameExpr:
		r.write(e.Name)
	case *VarargExpr:
		r.write("...")

	case *IndexExpr:
		r.prefix(e.Obj)
		if s, ok := e.Key.(*StringExpr); ok && IsLuaIdentifier(s.Value) {
			r.write("." + s.Value)
			return
		}
		r.write("[")
		r.expr(e.Key)
		r.write("]")

	case *CallExpr:
		r.prefix(e.Fn)
		r.write("(")
		r.exprList(e.Args)
		r.write(")")

	case *MethodCallExpr:
		r.prefix(e.Obj)
		r.write(":" + e.Method + "(")
		r.exprList(e.Args)
		r.write(")")

	case *BinaryExpr:
		r.write("(")
		r.operand(e.Left)
		r.write(" " + e.Op + " ")
		r.operand(e.Right)
		r.write(")")

	case *UnaryExpr:
		switch e.Op {
		case "#":
			r.write("#")
			r.expr(e.X)
		default:
			r.write("(" + e.Op + " ")
			r.expr(e.X)
			r.write(")")
		}

	case *FuncExpr:
		r.write("function")
		r.funcTail(e)

	case *TableExpr:
		r.table(e)

	case *ParenExpr:
		r.write("(")
		r.expr(e.X)
		r.write(")")

	default:
		panic(fmt.Sprintf("emit: unknown expression %T", e))
	}
}

// prefix renders e where Lua requires a prefix expression, parenthesizing
// literals, functions and constructors.
// operand writes an operator operand. A negative literal is parenthesized
// since -2 ^ 2 reads as -(2 ^ 2).
func (r *renderer) operand(e Expr) {
	if n, ok := e.(*NumberExpr); ok && strings.HasPrefix(n.Text, "-") {
		r.write("(" + n.Text + ")")
		return
	}
	r.expr(e)
}

func (r *renderer) prefix(e Expr) {
	switch e.(type) {
	case *NameExpr, *IndexExpr, *CallExpr, *MethodCallExpr, *ParenExpr, *BinaryExpr, *UnaryExpr:
		if u, ok := e.(*UnaryExpr); ok && u.Op == "#" {
			break
		}
		r.expr(e)
		return
	}
	r.write("(")
	r.expr(e)
	r.write(")")
}

func (r *renderer) funcTail(fn *FuncExpr) {
	params := append([]string(nil), fn.Params...)
	if fn.Vararg {
		params = append(params, "...")
	}
	r.write("(" + strings.Join(params, ", ") + ")")
	if len(fn.Body) == 0 {
		r.write(" end")
		return
	}
	r.body(fn.Body)
	r.write("end")
}

func (r *renderer) table(t *TableExpr) {
	if len(t.Entries) == 0 {
		r.write("{}")
		return
	}
	r.write("{")
	for i, entry := range t.Entries {
		if i > 0 {
			r.write(", ")
		}
		if entry.Key != nil {
			if s, ok := entry.Key.(*StringExpr); ok && IsLuaIdentifier(s.Value) {
				r.write(s.Value + " = ")
			} else {
				r.write("[")
				r.expr(entry.Key)
				r.write("] = ")
			}
		}
		r.expr(entry.Value)
	}
	r.write("}")
}

// startsWithParen reports whether e renders with a leading '(', which Lua
// could read as a call on the previous statement.
func startsWithParen(e Expr) bool {
	switch e := e.(type) {
	case *CallExpr:
		return startsWithParenPrefix(e.Fn)
	case *MethodCallExpr:
		return startsWithParenPrefix(e.Obj)
	}
	return false
}

func startsWithParenPrefix(e Expr) bool {
	switch e := e.(type) {
	case *NameExpr:
		return false
	case *IndexExpr:
		return startsWithParenPrefix(e.Obj)
	case *CallExpr:
		return startsWithParenPrefix(e.Fn)
	case *MethodCallExpr:
		return startsWithParenPrefix(e.Obj)
	}
	return true
}

// QuoteString renders s as a double-quoted Lua string literal.
func QuoteString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(&sb, "\\%03d", c)
			} else {
				sb.WriteByte(c)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
