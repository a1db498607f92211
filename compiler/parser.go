package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Parser: recursive descent reader producing the AST
// ---------------------------------------------------------------------------

// Parser reads fern source text into AST nodes, one top-level form at a
// time. A reader error discards the top-level form it occurs in; reading
// then resumes with the next form.
type Parser struct {
	lexer    *Lexer
	curToken Token
	lastEnd  Position
	errors   ErrorList
	filename string
	input    string // original source text (for error excerpts)
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
		input: input,
	}
	p.nextToken()
	return p
}

// SetFilename sets the name used in error messages.
func (p *Parser) SetFilename(name string) {
	p.filename = name
}

// nextToken advances to the next non-comment token.
func (p *Parser) nextToken() {
	p.lastEnd = p.curToken.End
	p.curToken = p.lexer.NextToken()
	for p.curToken.Type == TokenComment {
		p.curToken = p.lexer.NextToken()
	}
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// errorAt records a reader error at pos.
func (p *Parser) errorAt(pos Position, eof bool, format string, args ...interface{}) {
	p.errors = append(p.errors, &ReaderError{
		location: location{Filename: p.filename, Pos: pos, Excerpt: sourceLine(p.input, pos.Line)},
		Msg:      fmt.Sprintf(format, args...),
		EOF:      eof,
	})
}

// Errors returns accumulated reader errors.
func (p *Parser) Errors() ErrorList {
	return p.errors
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseForm reads the next complete top-level form. It returns false once
// the input is exhausted. Forms containing reader errors are skipped.
func (p *Parser) ParseForm() (Node, bool) {
	for !p.curTokenIs(TokenEOF) {
		if isCloser(p.curToken.Type) {
			p.errorAt(p.curToken.Pos, false, "unexpected closing delimiter '%s'", p.curToken.Literal)
			p.nextToken()
			continue
		}
		before := len(p.errors)
		node := p.parseNode()
		if len(p.errors) == before && node != nil {
			return node, true
		}
	}
	return nil, false
}

// ParseAll reads every top-level form.
func (p *Parser) ParseAll() []Node {
	var nodes []Node
	for {
		node, ok := p.ParseForm()
		if !ok {
			return nodes
		}
		nodes = append(nodes, node)
	}
}

// Read parses text into its sequence of top-level forms.
func Read(text string) ([]Node, error) {
	return ReadNamed("", text)
}

// ReadNamed is Read with a filename for diagnostics.
func ReadNamed(filename, text string) ([]Node, error) {
	p := NewParser(text)
	p.SetFilename(filename)
	nodes := p.ParseAll()
	return nodes, p.Errors().Err()
}

// ---------------------------------------------------------------------------
// Form parsing
// ---------------------------------------------------------------------------

// parseNode parses one form starting at the current token. It returns nil
// after recording an error.
func (p *Parser) parseNode() Node {
	tok := p.curToken
	span := MakeSpan(tok.Pos, tok.End)

	switch tok.Type {
	case TokenLParen, TokenLBracket, TokenLBrace:
		return p.parseCollection()

	case TokenRParen, TokenRBracket, TokenRBrace:
		p.errorAt(tok.Pos, false, "unexpected closing delimiter '%s'", tok.Literal)
		p.nextToken()
		return nil

	case TokenNumber:
		p.nextToken()
		return &Number{SpanVal: span, Text: tok.Literal, Value: numberValue(tok.Literal)}

	case TokenString:
		p.nextToken()
		return &String{SpanVal: span, Value: tok.Literal}

	case TokenKeyword:
		p.nextToken()
		return &Keyword{SpanVal: span, Name: tok.Literal}

	case TokenSymbol:
		p.nextToken()
		return &Symbol{SpanVal: span, Name: tok.Literal}

	case TokenQuote, TokenBackquote:
		return p.parsePrefixed("quote")

	case TokenComma:
		return p.parsePrefixed("unquote")

	case TokenError:
		p.errorAt(tok.Pos, tok.Literal == msgUnterminatedString, "%s", tok.Literal)
		p.nextToken()
		return nil

	case TokenEOF:
		p.errorAt(tok.Pos, true, "unexpected end of input")
		return nil
	}

	p.errorAt(tok.Pos, false, "unexpected token %s", tok)
	p.nextToken()
	return nil
}

// parsePrefixed reads a reader-macro prefix and the form it applies to,
// producing (name form).
func (p *Parser) parsePrefixed(name string) Node {
	tok := p.curToken
	p.nextToken()
	if p.curTokenIs(TokenEOF) {
		p.errorAt(tok.Pos, true, "expected a form after '%s'", tok.Literal)
		return nil
	}
	inner := p.parseNode()
	if inner == nil {
		return nil
	}
	head := Sym(name, MakeSpan(tok.Pos, tok.End))
	return &List{SpanVal: MakeSpan(tok.Pos, inner.Span().End), Items: []Node{head, inner}}
}

// parseCollection parses (...), [...] or {...}.
func (p *Parser) parseCollection() Node {
	open := p.curToken
	closer := closerFor[open.Type]
	p.nextToken()

	var items []Node
	ok := true
	for {
		if p.curTokenIs(TokenEOF) {
			p.errorAt(open.Pos, true, "unterminated '%s' opened at line %d, column %d",
				open.Literal, open.Pos.Line, open.Pos.Column)
			return nil
		}
		if p.curTokenIs(closer) {
			p.nextToken()
			break
		}
		if isCloser(p.curToken.Type) {
			p.errorAt(p.curToken.Pos, false, "mismatched delimiter: expected '%s' to close '%s' at line %d, got '%s'",
				closer, open.Literal, open.Pos.Line, p.curToken.Literal)
			p.nextToken()
			ok = false
			break
		}
		item := p.parseNode()
		if item == nil {
			ok = false
			continue
		}
		items = append(items, item)
	}
	if !ok {
		return nil
	}

	span := MakeSpan(open.Pos, p.lastEnd)
	switch open.Type {
	case TokenLParen:
		return &List{SpanVal: span, Items: items}
	case TokenLBracket:
		return &Sequence{SpanVal: span, Items: items}
	}

	if len(items)%2 != 0 {
		p.errorAt(open.Pos, false, "odd number of forms in table literal (%d)", len(items))
		return nil
	}
	pairs := make([]Pair, 0, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		pairs = append(pairs, Pair{Key: items[i], Value: items[i+1]})
	}
	return &Table{SpanVal: span, Pairs: pairs}
}

func isCloser(t TokenType) bool {
	return t == TokenRParen || t == TokenRBracket || t == TokenRBrace
}
