package compiler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for fern source text
// ---------------------------------------------------------------------------

const msgUnterminatedString = "unterminated string"

// Lexer tokenizes fern source code.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // line of ch (1-based)
	col     int  // column of ch (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	l.col++
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = len(l.input)
		l.readPos = len(l.input) + 1
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// atEOF reports whether the whole input has been consumed.
func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

func (l *Lexer) token(typ TokenType, lit string, pos Position) Token {
	return Token{Type: typ, Literal: lit, Pos: pos, End: l.position()}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	for !l.atEOF() && isWhitespace(l.ch) {
		l.readChar()
	}

	pos := l.position()
	if l.atEOF() {
		return l.token(TokenEOF, "", pos)
	}

	switch l.ch {
	case ';':
		start := l.pos
		for !l.atEOF() && l.ch != '\n' {
			l.readChar()
		}
		return l.token(TokenComment, strings.TrimRight(l.input[start:l.pos], "\r"), pos)
	case '(':
		l.readChar()
		return l.token(TokenLParen, "(", pos)
	case ')':
		l.readChar()
		return l.token(TokenRParen, ")", pos)
	case '[':
		l.readChar()
		return l.token(TokenLBracket, "[", pos)
	case ']':
		l.readChar()
		return l.token(TokenRBracket, "]", pos)
	case '{':
		l.readChar()
		return l.token(TokenLBrace, "{", pos)
	case '}':
		l.readChar()
		return l.token(TokenRBrace, "}", pos)
	case '\'':
		l.readChar()
		return l.token(TokenQuote, "'", pos)
	case '`':
		l.readChar()
		return l.token(TokenBackquote, "`", pos)
	case ',':
		l.readChar()
		return l.token(TokenComma, ",", pos)
	case '"':
		return l.readString(pos)
	}

	return l.readAtom(pos)
}

// readAtom reads a maximal run of non-delimiter, non-whitespace characters
// and classifies it as keyword, number or symbol.
func (l *Lexer) readAtom(pos Position) Token {
	start := l.pos
	for !l.atEOF() && !isWhitespace(l.ch) && !IsDelimiter(l.ch) {
		l.readChar()
	}
	run := l.input[start:l.pos]

	if len(run) > 1 && run[0] == ':' {
		return l.token(TokenKeyword, run[1:], pos)
	}
	if text, ok := normalizeNumber(run); ok {
		return l.token(TokenNumber, text, pos)
	}
	return l.token(TokenSymbol, run, pos)
}

var (
	decimalPattern = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
	hexPattern     = regexp.MustCompile(`^-?0[xX][0-9a-fA-F]+$`)
)

// normalizeNumber reports whether run is a numeric literal and returns
// its Lua spelling: a leading '+' and digit separators are dropped.
func normalizeNumber(run string) (string, bool) {
	text := strings.TrimPrefix(run, "+")
	if text == "" || !(isDigit(rune(text[0])) || text[0] == '-' || text[0] == '.') {
		return "", false
	}
	if strings.Contains(text, "_") {
		if strings.HasPrefix(text, "_") || strings.HasSuffix(text, "_") {
			return "", false
		}
		text = strings.ReplaceAll(text, "_", "")
	}
	if decimalPattern.MatchString(text) || hexPattern.MatchString(text) {
		return text, true
	}
	return "", false
}

// numberValue parses a normalized numeric literal.
func numberValue(text string) float64 {
	neg := strings.HasPrefix(text, "-")
	body := strings.TrimPrefix(text, "-")
	var v float64
	if hexPattern.MatchString(body) {
		u, err := strconv.ParseUint(body[2:], 16, 64)
		if err == nil {
			v = float64(u)
		}
	} else {
		v, _ = strconv.ParseFloat(body, 64)
	}
	if neg {
		return -v
	}
	return v
}

// readString reads a double-quoted string literal, decoding escapes.
func (l *Lexer) readString(pos Position) Token {
	l.readChar() // consume opening "

	var sb strings.Builder
	for {
		if l.atEOF() {
			return l.token(TokenError, msgUnterminatedString, pos)
		}
		switch l.ch {
		case '"':
			l.readChar() // consume closing "
			return l.token(TokenString, sb.String(), pos)
		case '\\':
			l.readChar()
			if l.atEOF() {
				return l.token(TokenError, msgUnterminatedString, pos)
			}
			if err := l.readEscape(&sb); err != "" {
				// skip to the closing quote so reading can resume
				for !l.atEOF() && l.ch != '"' {
					l.readChar()
				}
				if !l.atEOF() {
					l.readChar()
				}
				return l.token(TokenError, err, pos)
			}
		default:
			sb.WriteRune(l.ch)
			l.readChar()
		}
	}
}

// readEscape decodes the escape sequence after a backslash. It returns a
// non-empty message for an invalid escape.
func (l *Lexer) readEscape(sb *strings.Builder) string {
	simple := map[rune]byte{
		'a': '\a', 'b': '\b', 'f': '\f', 'n': '\n', 'r': '\r',
		't': '\t', 'v': '\v', '\\': '\\', '"': '"', '\'': '\'', '\n': '\n',
	}
	if b, ok := simple[l.ch]; ok {
		sb.WriteByte(b)
		l.readChar()
		return ""
	}

	switch {
	case isDigit(l.ch):
		n := 0
		for i := 0; i < 3 && isDigit(l.ch); i++ {
			n = n*10 + int(l.ch-'0')
			l.readChar()
		}
		if n > 255 {
			return fmt.Sprintf("decimal escape too large: %d", n)
		}
		sb.WriteByte(byte(n))
		return ""

	case l.ch == 'x':
		l.readChar()
		n := 0
		for i := 0; i < 2; i++ {
			if !isHexDigit(l.ch) {
				return "hexadecimal digit expected in \\x escape"
			}
			n = n*16 + hexValue(l.ch)
			l.readChar()
		}
		sb.WriteByte(byte(n))
		return ""

	case l.ch == 'u':
		l.readChar()
		if l.ch != '{' {
			return "missing '{' in \\u{XXX} escape"
		}
		l.readChar()
		n := 0
		digits := 0
		for isHexDigit(l.ch) {
			n = n*16 + hexValue(l.ch)
			digits++
			l.readChar()
		}
		if l.ch != '}' || digits == 0 || n > utf8.MaxRune {
			return "malformed \\u{XXX} escape"
		}
		l.readChar()
		sb.WriteRune(rune(n))
		return ""
	}

	return fmt.Sprintf("invalid escape sequence '\\%c'", l.ch)
}

// Helper functions

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func hexValue(r rune) int {
	switch {
	case isDigit(r):
		return int(r - '0')
	case r >= 'a' && r <= 'f':
		return int(r-'a') + 10
	default:
		return int(r-'A') + 10
	}
}

// Tokenize returns all tokens from the input, including comments.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}
	return tokens
}
