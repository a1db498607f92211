package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the fern reader
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError
	TokenComment // ; to end of line

	// Atoms
	TokenNumber  // 42, -1.5, 0xff, 1e10
	TokenString  // "hello\n"
	TokenKeyword // :name
	TokenSymbol  // foo, tbl.field, obj:method, +, ...

	// Delimiters
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenLBrace   // {
	TokenRBrace   // }

	// Reader macros
	TokenQuote     // '
	TokenBackquote // `
	TokenComma     // ,
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "EOF",
	TokenError:     "ERROR",
	TokenComment:   "COMMENT",
	TokenNumber:    "NUMBER",
	TokenString:    "STRING",
	TokenKeyword:   "KEYWORD",
	TokenSymbol:    "SYMBOL",
	TokenLParen:    "(",
	TokenRParen:    ")",
	TokenLBracket:  "[",
	TokenRBracket:  "]",
	TokenLBrace:    "{",
	TokenRBrace:    "}",
	TokenQuote:     "'",
	TokenBackquote: "`",
	TokenComma:     ",",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // decoded text: string contents without quotes, keyword without ':'
	Pos     Position // start position
	End     Position // position just past the token
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// closerFor maps an opening delimiter to the token that closes it.
var closerFor = map[TokenType]TokenType{
	TokenLParen:   TokenRParen,
	TokenLBracket: TokenRBracket,
	TokenLBrace:   TokenRBrace,
}

// IsDelimiter reports whether r is structural and ends an atom.
func IsDelimiter(r rune) bool {
	switch r {
	case '(', ')', '[', ']', '{', '}', '"', ';', '\'', '`', ',':
		return true
	}
	return false
}

func isWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\v'
}
