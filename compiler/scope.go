package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Scope: lexical bindings and Lua name allocation
// ---------------------------------------------------------------------------

// BindingKind classifies what introduced a binding.
type BindingKind int

const (
	BindLocal BindingKind = iota // let, local, named fn
	BindVar                      // var: mutable with set
	BindParam                    // function parameter
	BindLoop                     // each / for loop variable
)

func (k BindingKind) String() string {
	switch k {
	case BindLocal:
		return "local"
	case BindVar:
		return "var"
	case BindParam:
		return "parameter"
	case BindLoop:
		return "loop variable"
	}
	return fmt.Sprintf("BindingKind(%d)", k)
}

// Arity describes the parameter list of a function bound to a name. It is
// used only for warnings.
type Arity struct {
	Min      int
	Max      int
	Variadic bool
}

// Binding associates a source symbol with the Lua identifier generated
// for it.
type Binding struct {
	Symbol  string // source name
	Name    string // generated Lua identifier
	Kind    BindingKind
	Mutable bool
	Arity   *Arity
	Pos     Position
}

// Scope is one level of lexical bindings. The root scope of a compilation
// may outlive it: a REPL session keeps its root scope so later inputs see
// earlier top-level locals.
type Scope struct {
	parent   *Scope
	vars     map[string]*Binding
	order    []string
	function bool // a function body begins here
	vararg   bool // the enclosing function accepts ...
	globals  map[string]bool
}

// NewScope creates a root scope.
func NewScope() *Scope {
	return &Scope{
		vars:     make(map[string]*Binding),
		function: true,
		vararg:   true, // a Lua chunk is a vararg function
		globals:  make(map[string]bool),
	}
}

// Child creates a nested block scope.
func (s *Scope) Child() *Scope {
	return &Scope{parent: s, vars: make(map[string]*Binding)}
}

// FunctionChild creates the scope of a function body.
func (s *Scope) FunctionChild(vararg bool) *Scope {
	return &Scope{parent: s, vars: make(map[string]*Binding), function: true, vararg: vararg}
}

// Parent returns the enclosing scope, or nil for a root scope.
func (s *Scope) Parent() *Scope { return s.parent }

// Root returns the outermost scope.
func (s *Scope) Root() *Scope {
	for s.parent != nil {
		s = s.parent
	}
	return s
}

// IsRoot reports whether s is a root scope.
func (s *Scope) IsRoot() bool { return s.parent == nil }

// Lookup resolves a source name through the scope chain.
func (s *Scope) Lookup(name string) (*Binding, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if b, ok := sc.vars[name]; ok {
			return b, true
		}
	}
	return nil, false
}

// LookupLocal resolves a source name in this scope only.
func (s *Scope) LookupLocal(name string) (*Binding, bool) {
	b, ok := s.vars[name]
	return b, ok
}

// Bind adds b to this scope, shadowing any outer binding of the same name.
func (s *Scope) Bind(b *Binding) {
	if _, exists := s.vars[b.Symbol]; !exists {
		s.order = append(s.order, b.Symbol)
	}
	s.vars[b.Symbol] = b
}

// Bindings returns the bindings of this scope in declaration order.
func (s *Scope) Bindings() []*Binding {
	out := make([]*Binding, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.vars[name])
	}
	return out
}

// Vararg reports whether ... is available in the innermost function.
func (s *Scope) Vararg() bool {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.function {
			return sc.vararg
		}
	}
	return false
}

// DeclareGlobal records name as an explicitly declared global.
func (s *Scope) DeclareGlobal(name string) {
	s.Root().globals[name] = true
}

// GlobalDeclared reports whether name was declared with global.
func (s *Scope) GlobalDeclared(name string) bool {
	return s.Root().globals[name]
}

// mark returns a checkpoint for rollback.
func (s *Scope) mark() scopeMark {
	saved := make(map[string]*Binding, len(s.vars))
	for k, v := range s.vars {
		saved[k] = v
	}
	globals := make(map[string]bool, len(s.globals))
	for k, v := range s.globals {
		globals[k] = v
	}
	return scopeMark{vars: saved, order: len(s.order), globals: globals}
}

// rollback discards bindings made after m.
func (s *Scope) rollback(m scopeMark) {
	s.vars = m.vars
	s.order = s.order[:m.order]
	if s.globals != nil {
		s.globals = m.globals
	}
}

type scopeMark struct {
	vars    map[string]*Binding
	order   int
	globals map[string]bool
}

// ---------------------------------------------------------------------------
// Name mangling
// ---------------------------------------------------------------------------

var luaKeywords = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true,
	"end": true, "false": true, "for": true, "function": true, "goto": true,
	"if": true, "in": true, "local": true, "nil": true, "not": true,
	"or": true, "repeat": true, "return": true, "then": true, "true": true,
	"until": true, "while": true,
}

// IsLuaIdentifier reports whether s can be used verbatim as a Lua name.
func IsLuaIdentifier(s string) bool {
	if s == "" || luaKeywords[s] {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Mangle converts a source symbol name to a valid Lua identifier.
// '-' becomes '_', any other byte outside [A-Za-z0-9_] becomes _XX (hex),
// and Lua keywords gain a leading underscore.
func Mangle(name string) string {
	if IsLuaIdentifier(name) {
		return name
	}
	if luaKeywords[name] {
		return "_" + name
	}
	var sb strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
			sb.WriteByte(c)
		case c >= '0' && c <= '9':
			if i == 0 {
				sb.WriteByte('_')
			}
			sb.WriteByte(c)
		case c == '-' && len(name) > 1:
			sb.WriteByte('_')
		default:
			fmt.Fprintf(&sb, "_%02x", c)
		}
	}
	return sb.String()
}

// nameTable allocates unique Lua identifiers for one compilation.
type nameTable struct {
	used    map[string]bool
	counter int
}

func newNameTable() *nameTable {
	return &nameTable{used: make(map[string]bool)}
}

// reserve marks name as taken.
func (t *nameTable) reserve(name string) {
	t.used[name] = true
}

// next returns the next value of the per-compilation counter.
func (t *nameTable) next() int {
	t.counter++
	return t.counter
}

// local allocates a Lua name for a source symbol, suffixing a counter when
// the mangled name is already taken.
func (t *nameTable) local(symbol string) string {
	base := Mangle(symbol)
	name := base
	for t.used[name] {
		name = fmt.Sprintf("%s_%d_", base, t.next())
	}
	t.used[name] = true
	return name
}

// temp allocates a compiler temporary.
func (t *nameTable) temp(base string) string {
	for {
		name := fmt.Sprintf("_%s_%d_", base, t.next())
		if !t.used[name] {
			t.used[name] = true
			return name
		}
	}
}
