// Package session runs fern code interactively: each session owns a
// compiler whose top-level scope persists across evaluations and the Lua
// state the compiled chunks run in.
package session

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	lua "github.com/yuin/gopher-lua"

	"github.com/chazu/fern/compiler"
	"github.com/chazu/fern/luahost"
)

var log = commonlog.GetLogger("fern.session")

// Options configure a session.
type Options struct {
	// Name labels the session in logs and listings.
	Name string
	// Capabilities are the libraries evaluated code may use.
	Capabilities luahost.Capabilities
	// MacroCapabilities are granted to macro code beyond the sandbox.
	MacroCapabilities luahost.Capabilities
	// MacroLoader serves import-macros.
	MacroLoader compiler.MacroLoader
	// AllowedGlobals restricts unbound references. Nil allows any.
	AllowedGlobals []string
}

// Session is one interactive evaluation context. It is not safe for
// concurrent use.
type Session struct {
	ID   string
	Name string

	opts  Options
	host  *luahost.State
	comp  *compiler.Compiler
	count int
}

// New creates a session with a fresh scope, macro namespace and host.
func New(opts Options) (*Session, error) {
	comp, err := compiler.New(compiler.Options{
		Filename:                "repl",
		AllowGlobalDeclarations: true,
		PersistLocals:           true,
		AllowedGlobals:          opts.AllowedGlobals,
		MacroLoader:             opts.MacroLoader,
		MacroCapabilities:       opts.MacroCapabilities,
	})
	if err != nil {
		return nil, err
	}
	host := luahost.New(opts.Capabilities)
	host.SetGlobal(compiler.LocalsTable, host.L.NewTable())

	s := &Session{
		ID:   uuid.NewString(),
		Name: opts.Name,
		opts: opts,
		host: host,
		comp: comp,
	}
	log.Infof("session %s started (%s)", s.ID, opts.Capabilities)
	return s, nil
}

// Close releases the host state and macro namespace.
func (s *Session) Close() {
	s.comp.Close()
	s.host.Close()
	log.Infof("session %s closed", s.ID)
}

// Host returns the Lua state evaluated code runs in.
func (s *Session) Host() *luahost.State { return s.host }

// Scope returns the persistent top-level scope.
func (s *Session) Scope() *compiler.Scope { return s.comp.Scope() }

// Macros returns the session's macro namespace.
func (s *Session) Macros() *compiler.MacroNamespace { return s.comp.Macros() }

// Compile compiles src against the session scope without running it.
// Successful top-level bindings stay visible to later input.
func (s *Session) Compile(src string) (*compiler.Result, error) {
	return s.comp.CompileString(src)
}

// Eval compiles and runs one chunk of REPL input and returns its values
// rendered as source text. Input that ends inside a form yields an error
// for which compiler.Incomplete is true.
func (s *Session) Eval(src string) ([]string, error) {
	s.count++
	log.Debugf("session %s eval #%d: %s", s.ID, s.count, src)

	res, err := s.comp.CompileString(src)
	if err != nil {
		return nil, err
	}
	for _, w := range res.Warnings {
		log.Warning(w.String())
	}
	vals, err := s.run(fmt.Sprintf("repl-%d", s.count), "repl", res)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = luahost.Format(v)
	}
	return out, nil
}

// CompileFile compiles a source file with a fresh top-level scope. Macros
// the session defines remain available to it.
func (s *Session) CompileFile(path string) (*compiler.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	log.Debugf("session %s compiling %s", s.ID, path)
	return compiler.Compile(string(data), compiler.Options{
		Filename:       path,
		AllowedGlobals: s.opts.AllowedGlobals,
		Macros:         s.comp.Macros(),
		MacroLoader:    s.opts.MacroLoader,
	})
}

// RunFile compiles and runs a source file in the session host and
// returns the chunk's values rendered as source text.
func (s *Session) RunFile(path string) ([]string, error) {
	res, err := s.CompileFile(path)
	if err != nil {
		return nil, err
	}
	vals, err := s.run(path, path, res)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = luahost.Format(v)
	}
	return out, nil
}

// run executes compiled code, pointing runtime errors at source lines.
func (s *Session) run(chunk, filename string, res *compiler.Result) (vals []lua.LValue, err error) {
	vals, err = s.host.DoString(chunk, res.Code)
	if err != nil {
		if e, ok := err.(*luahost.Error); ok {
			e.Message = MapLines(e.Message, chunk, filename, res.LineMap)
		}
		return nil, err
	}
	return vals, nil
}

var chunkLine = regexp.MustCompile(`([^\s:]+):(\d+):`)

// MapLines rewrites "chunk:N:" locations in msg to the source positions
// recorded in lines. Unmapped locations are left alone.
func MapLines(msg, chunk, filename string, lines compiler.LineMap) string {
	return chunkLine.ReplaceAllStringFunc(msg, func(m string) string {
		sub := chunkLine.FindStringSubmatch(m)
		if sub[1] != chunk {
			return m
		}
		n, err := strconv.Atoi(sub[2])
		if err != nil {
			return m
		}
		pos, ok := lines[n]
		if !ok {
			return m
		}
		return fmt.Sprintf("%s:%d:", filename, pos.Line)
	})
}
