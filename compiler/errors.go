package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Errors: reader, compile and macro expansion failures
// ---------------------------------------------------------------------------

// Diagnostic is implemented by every positioned compiler error.
type Diagnostic interface {
	error
	At() Position
	Message() string
	// Detail renders the error with its source excerpt and a caret.
	Detail() string
}

// location carries the fields shared by all positioned errors.
type location struct {
	Filename string
	Pos      Position
	Excerpt  string // the source line containing Pos
}

func (l location) prefix() string {
	name := l.Filename
	if name == "" {
		name = "unknown"
	}
	if !l.Pos.IsValid() {
		return name
	}
	return fmt.Sprintf("%s:%d:%d", name, l.Pos.Line, l.Pos.Column)
}

func (l location) caret() string {
	if l.Excerpt == "" || !l.Pos.IsValid() {
		return ""
	}
	col := l.Pos.Column - 1
	if col < 0 {
		col = 0
	}
	pad := make([]byte, 0, col)
	for i := 0; i < col && i < len(l.Excerpt); i++ {
		if l.Excerpt[i] == '\t' {
			pad = append(pad, '\t')
		} else {
			pad = append(pad, ' ')
		}
	}
	return "\n  " + l.Excerpt + "\n  " + string(pad) + "^"
}

// ReaderError is a malformed token, unbalanced delimiter or odd key/value
// count in a table literal.
type ReaderError struct {
	location
	Msg string
	// EOF is set when the input ended before the form was complete.
	EOF bool
}

func (e *ReaderError) Error() string   { return e.prefix() + ": read error: " + e.Msg }
func (e *ReaderError) At() Position    { return e.Pos }
func (e *ReaderError) Message() string { return e.Msg }
func (e *ReaderError) Detail() string  { return e.Error() + e.caret() }

// CompileError is raised while lowering a form.
type CompileError struct {
	location
	Msg string
}

func (e *CompileError) Error() string   { return e.prefix() + ": compile error: " + e.Msg }
func (e *CompileError) At() Position    { return e.Pos }
func (e *CompileError) Message() string { return e.Msg }
func (e *CompileError) Detail() string  { return e.Error() + e.caret() }

// MacroExpansionError is raised when macro code fails or the expansion
// depth guard trips.
type MacroExpansionError struct {
	location
	Macro string
	Msg   string
}

func (e *MacroExpansionError) Error() string {
	return fmt.Sprintf("%s: macro error in '%s': %s", e.prefix(), e.Macro, e.Msg)
}
func (e *MacroExpansionError) At() Position { return e.Pos }
func (e *MacroExpansionError) Message() string {
	return fmt.Sprintf("in macro '%s': %s", e.Macro, e.Msg)
}
func (e *MacroExpansionError) Detail() string { return e.Error() + e.caret() }

// ErrorList collects the per-form errors of one compilation.
type ErrorList []error

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	msgs := make([]string, len(l))
	for i, err := range l {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "\n")
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (l ErrorList) Unwrap() []error { return l }

// Err returns nil for an empty list, the single error for a list of one,
// and the list otherwise.
func (l ErrorList) Err() error {
	switch len(l) {
	case 0:
		return nil
	case 1:
		return l[0]
	}
	return l
}

// Diagnostics flattens err into its positioned errors. Errors that carry
// no position are skipped.
func Diagnostics(err error) []Diagnostic {
	var out []Diagnostic
	var walk func(error)
	walk = func(err error) {
		switch e := err.(type) {
		case nil:
		case ErrorList:
			for _, inner := range e {
				walk(inner)
			}
		case Diagnostic:
			out = append(out, e)
		}
	}
	walk(err)
	return out
}

// Incomplete reports whether err consists only of reader errors caused by
// input ending inside a form.
func Incomplete(err error) bool {
	diags := Diagnostics(err)
	if len(diags) == 0 {
		return false
	}
	for _, d := range diags {
		re, ok := d.(*ReaderError)
		if !ok || !re.EOF {
			return false
		}
	}
	return true
}

// Warning is a non-fatal compile diagnostic.
type Warning struct {
	Filename string
	Pos      Position
	Msg      string
}

func (w Warning) String() string {
	return location{Filename: w.Filename, Pos: w.Pos}.prefix() + ": warning: " + w.Msg
}

// sourceLine returns the 1-based line of src without its newline.
func sourceLine(src string, line int) string {
	if line < 1 {
		return ""
	}
	for i := 1; i < line; i++ {
		nl := strings.IndexByte(src, '\n')
		if nl < 0 {
			return ""
		}
		src = src[nl+1:]
	}
	if nl := strings.IndexByte(src, '\n'); nl >= 0 {
		src = src[:nl]
	}
	return strings.TrimRight(src, "\r")
}
