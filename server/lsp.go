package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/fern/compiler"
	"github.com/chazu/fern/compiler/hash"
	"github.com/chazu/fern/luahost"
	"github.com/chazu/fern/session"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "fern-lsp"

// Commands served through workspace/executeCommand.
const (
	CommandEval  = "fern.eval"
	CommandReset = "fern.reset"
)

const maxHoverCache = 256

var log = commonlog.GetLogger("fern.lsp")

// Options configure the language server.
type Options struct {
	// Compile is the template for document compilation. Filename is
	// replaced per document.
	Compile compiler.Options
	// Sessions evaluates documents for CommandEval. Nil disables the
	// command.
	Sessions *session.Store
}

// LspServer bridges LSP editor features to the fern compiler via Worker.
type LspServer struct {
	worker *Worker
	opts   Options

	mu   sync.Mutex
	docs map[string]string   // URI → full document content
	lua  map[[32]byte]string // unit hash → Lua of its last form

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a language server.
func NewLSP(opts Options) *LspServer {
	s := &LspServer{
		worker:  NewWorker(),
		opts:    opts,
		docs:    make(map[string]string),
		lua:     make(map[[32]byte]string),
		version: compiler.Version,
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,

		WorkspaceExecuteCommand: s.workspaceExecuteCommand,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// Close stops the worker and any evaluation sessions.
func (s *LspServer) Close() {
	s.worker.Stop()
	if s.opts.Sessions != nil {
		s.opts.Sessions.CloseAll()
	}
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("fern LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"(", "."},
	}
	capabilities.HoverProvider = true

	var commands []string
	if s.opts.Sessions != nil {
		commands = []string{CommandEval, CommandReset}
	}
	capabilities.ExecuteCommandProvider = &protocol.ExecuteCommandOptions{Commands: commands}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.Close()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.setDocument(uri, text)
	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.setDocument(uri, whole.Text)
			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) setDocument(uri protocol.DocumentUri, text string) {
	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func() any {
		return s.complete(params.TextDocument.URI, text, prefix)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	result, err := s.worker.Do(func() any {
		return s.hoverAt(params.TextDocument.URI, text, params.Position)
	})
	if err != nil || result == nil {
		return nil, nil
	}
	return result.(*protocol.Hover), nil
}

func (s *LspServer) workspaceExecuteCommand(ctx *glsp.Context, params *protocol.ExecuteCommandParams) (any, error) {
	if s.opts.Sessions == nil {
		return nil, fmt.Errorf("command %s: evaluation is disabled", params.Command)
	}
	if len(params.Arguments) != 1 {
		return nil, fmt.Errorf("command %s: expected a document URI", params.Command)
	}
	uri, ok := params.Arguments[0].(string)
	if !ok {
		return nil, fmt.Errorf("command %s: expected a document URI, got %T", params.Command, params.Arguments[0])
	}

	switch params.Command {
	case CommandEval:
		text, ok := s.document(protocol.DocumentUri(uri))
		if !ok {
			return nil, fmt.Errorf("document %s is not open", uri)
		}
		result, err := s.worker.Do(func() any {
			return s.eval(uri, text)
		})
		if err != nil {
			return nil, err
		}
		if err, ok := result.(error); ok {
			return nil, err
		}
		return result, nil

	case CommandReset:
		_, err := s.worker.Do(func() any {
			s.reset(uri)
			return nil
		})
		return nil, err
	}
	return nil, fmt.Errorf("unknown command %s", params.Command)
}

// --- Compiler-backed logic (called on worker goroutine) ---

func (s *LspServer) compileOptions(uri protocol.DocumentUri) compiler.Options {
	opts := s.opts.Compile
	opts.Filename = documentFilename(uri)
	opts.Scope = nil
	opts.Macros = nil
	opts.PersistLocals = false
	return opts
}

// diagnose compiles text and converts its errors and warnings.
func (s *LspServer) diagnose(uri protocol.DocumentUri, text string) []protocol.Diagnostic {
	res, err := compiler.Compile(text, s.compileOptions(uri))
	source := lspName
	diagnostics := []protocol.Diagnostic{}

	if err != nil {
		diags := compiler.Diagnostics(err)
		if len(diags) == 0 {
			severity := protocol.DiagnosticSeverityError
			diagnostics = append(diagnostics, protocol.Diagnostic{
				Range:    toRange(compiler.Position{Line: 1, Column: 1}),
				Severity: &severity,
				Source:   &source,
				Message:  err.Error(),
			})
		}
		for _, d := range diags {
			severity := protocol.DiagnosticSeverityError
			diagnostics = append(diagnostics, protocol.Diagnostic{
				Range:    toRange(d.At()),
				Severity: &severity,
				Source:   &source,
				Message:  d.Message(),
			})
		}
		return diagnostics
	}

	for _, w := range res.Warnings {
		severity := protocol.DiagnosticSeverityWarning
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    toRange(w.Pos),
			Severity: &severity,
			Source:   &source,
			Message:  w.Msg,
		})
	}
	return diagnostics
}

// hoverAt renders the Lua compiled from the top-level form under pos.
// Earlier forms are compiled first so their locals and macros are in
// scope.
func (s *LspServer) hoverAt(uri protocol.DocumentUri, text string, pos protocol.Position) *protocol.Hover {
	p := compiler.NewParser(text)
	p.SetFilename(documentFilename(uri))
	forms := p.ParseAll()

	at := compiler.Position{Line: int(pos.Line) + 1, Column: runeColumn(text, pos)}
	idx := -1
	for i, f := range forms {
		if spanContains(f.Span(), at) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	opts := s.compileOptions(uri)
	key := hash.HashUnit(forms[:idx+1], opts)

	s.mu.Lock()
	code, ok := s.lua[key]
	s.mu.Unlock()
	if !ok {
		var err error
		if code, err = compileLast(opts, forms[:idx+1]); err != nil {
			return nil
		}
		s.mu.Lock()
		if len(s.lua) >= maxHoverCache {
			s.lua = make(map[[32]byte]string)
		}
		s.lua[key] = code
		s.mu.Unlock()
	}

	var b strings.Builder
	if word := extractWord(text, pos); word != "" {
		fmt.Fprintf(&b, "**%s**", word)
		switch {
		case compiler.IsSpecialForm(word):
			b.WriteString(" (special form)")
		case isCoreMacro(word):
			b.WriteString(" (macro)")
		}
		b.WriteString("\n\n")
	}
	b.WriteString("```lua\n")
	b.WriteString(code)
	b.WriteString("\n```")

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// compileLast compiles forms in order and returns the Lua of the last one.
func compileLast(opts compiler.Options, forms []compiler.Node) (string, error) {
	c, err := compiler.New(opts)
	if err != nil {
		return "", err
	}
	defer c.Close()

	last := len(forms) - 1
	if last > 0 {
		// Errors in earlier forms only cost their bindings.
		_, _ = c.CompileForms(forms[:last])
	}
	res, err := c.CompileForms(forms[last:])
	if err != nil {
		return "", err
	}
	return res.Code, nil
}

var (
	coreMacrosOnce sync.Once
	coreMacros     map[string]bool
)

// isCoreMacro reports whether name is one of the built-in macros.
func isCoreMacro(name string) bool {
	coreMacrosOnce.Do(func() {
		coreMacros = make(map[string]bool)
		ns, err := compiler.NewMacroNamespace(luahost.Sandbox())
		if err != nil {
			return
		}
		defer ns.Close()
		for _, n := range ns.Names() {
			coreMacros[n] = true
		}
	})
	return coreMacros[name]
}

// complete offers special forms, macros and the document's top-level
// locals that start with prefix.
func (s *LspServer) complete(uri protocol.DocumentUri, text, prefix string) []protocol.CompletionItem {
	c, err := compiler.New(s.compileOptions(uri))
	if err != nil {
		return nil
	}
	defer c.Close()
	_, _ = c.CompileString(text)

	seen := make(map[string]bool)
	var items []protocol.CompletionItem
	add := func(label, detail string, kind protocol.CompletionItemKind) {
		if seen[label] || !strings.HasPrefix(label, prefix) {
			return
		}
		seen[label] = true
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	for _, b := range c.Scope().Bindings() {
		add(b.Symbol, "local", protocol.CompletionItemKindVariable)
	}
	for _, name := range c.Macros().Names() {
		add(name, "macro", protocol.CompletionItemKindFunction)
	}
	specials := compiler.SpecialForms()
	sort.Strings(specials)
	for _, name := range specials {
		add(name, "special form", protocol.CompletionItemKindKeyword)
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

// eval runs text in the session named after uri and returns its values.
func (s *LspServer) eval(uri, text string) any {
	sess, err := s.opts.Sessions.Named(uri)
	if err != nil {
		return err
	}
	vals, err := sess.Eval(text)
	if err != nil {
		return err
	}
	log.Debugf("evaluated %s in session %s", uri, sess.ID)
	return vals
}

func (s *LspServer) reset(uri string) {
	for _, sess := range s.opts.Sessions.List() {
		if sess.Name == uri {
			s.opts.Sessions.Destroy(sess.ID)
		}
	}
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	result, err := s.worker.Do(func() any {
		return s.diagnose(uri, text)
	})
	if err != nil {
		log.Warningf("diagnostics for %s: %s", uri, err)
		return
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: result.([]protocol.Diagnostic),
	})
}

// --- Text helpers ---

// documentFilename names a document in diagnostics.
func documentFilename(uri protocol.DocumentUri) string {
	return strings.TrimPrefix(string(uri), "file://")
}

// toRange converts a 1-based source position to a one-character LSP range.
func toRange(p compiler.Position) protocol.Range {
	line := max(p.Line-1, 0)
	col := max(p.Column-1, 0)
	return protocol.Range{
		Start: protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col)},
		End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col + 1)},
	}
}

// spanContains reports whether p lies in [sp.Start, sp.End).
func spanContains(sp compiler.Span, p compiler.Position) bool {
	before := func(a, b compiler.Position) bool {
		return a.Line < b.Line || (a.Line == b.Line && a.Column < b.Column)
	}
	return !before(p, sp.Start) && before(p, sp.End)
}

func isSymbolChar(r byte) bool {
	return r > ' ' && r != 0x7f && !compiler.IsDelimiter(rune(r))
}

// lineIndex converts a UTF-16 character offset to a byte offset in line,
// clamped to the line's end.
func lineIndex(line string, char protocol.UInteger) int {
	if int(char) >= len(utf16.Encode([]rune(line))) {
		return len(line)
	}
	return protocol.Position{Character: char}.IndexIn(line)
}

// runeColumn returns the 1-based source column of pos.
func runeColumn(text string, pos protocol.Position) int {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return int(pos.Character) + 1
	}
	line := lines[pos.Line]
	return utf8.RuneCountInString(line[:lineIndex(line, pos.Character)]) + 1
}

// extractPrefix returns the symbol fragment before the cursor.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := lineIndex(line, pos.Character)

	start := col
	for start > 0 && isSymbolChar(line[start-1]) {
		start--
	}
	return line[start:col]
}

// extractWord returns the full symbol under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := lineIndex(line, pos.Character)

	start := col
	for start > 0 && isSymbolChar(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isSymbolChar(line[end]) {
		end++
	}
	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
