package compiler

import (
	"testing"
)

// ---------------------------------------------------------------------------
// FuzzLexer: ensure the lexer never panics on arbitrary input.
// ---------------------------------------------------------------------------

func FuzzLexer(f *testing.F) {
	seeds := []string{
		// Delimiters and reader macros
		"( ) [ ] { } ' ` ,",
		// Numbers
		`42`, `-5`, `3.14`, `1e10`, `0xff`, `1_000`, `+7`, `.5`, `-.5e-3`,
		// Strings
		`"hello"`, `"esc\n\t\"\\"`, `"\65\066"`, "\"multi\nline\"", `""`,
		// Keywords and symbols
		`:kw`, `:a.b`, `foo`, `tbl.field`, `obj:method`, `...`, `set!`, `list?`, `λ`,
		// Comments
		"; comment\nfoo", "foo ;; trailing",
		// Edge cases
		`"unterminated`, `"\q"`, `:`, `#`, `~`, ``, "   ", "\t\n\r",
		// Unicode
		`"こんにちは"`, `café`,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("lexer panicked on input %q: %v", data, r)
			}
		}()

		l := NewLexer(data)
		for i := 0; i < len(data)+100; i++ {
			tok := l.NextToken()
			if tok.Type == TokenEOF {
				break
			}
		}
	})
}

// ---------------------------------------------------------------------------
// FuzzRead: ensure the reader never panics and that whatever it reads
// prints back to source that reads as one form.
// ---------------------------------------------------------------------------

func FuzzRead(f *testing.F) {
	seeds := []string{
		`(f 1 2)`, `[1 [2 [3]]]`, `{:a 1 :b {:c 2}}`, `'(a b)`, "`(a ,b ,@c)",
		`(fn [x] (+ x 1))`, `{: a : b}`,
		``, `(`, `)`, `(]`, `{:a}`, `'`, "`", `,`, `((((`, `))))`,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("reader panicked on input %q: %v", data, r)
			}
		}()

		forms, err := Read(data)
		if err != nil {
			return
		}
		for _, form := range forms {
			printed := form.String()
			again, err := Read(printed)
			if err != nil {
				t.Fatalf("printed form %q of input %q does not read back: %v", printed, data, err)
			}
			if len(again) != 1 {
				t.Fatalf("printed form %q of input %q reads as %d forms", printed, data, len(again))
			}
		}
	})
}

// ---------------------------------------------------------------------------
// FuzzCompile: feed arbitrary source through the full pipeline
// (read -> expand -> compile -> emit). Errors are fine, panics are not.
// ---------------------------------------------------------------------------

func FuzzCompile(f *testing.F) {
	seeds := []string{
		// Literals and calls
		`42`, `"s"`, `:k`, `nil`, `(print 1)`, `(+ 1 2 3)`, `(.. "a" 1)`,
		// Bindings
		`(local x 1) x`, `(var y 1) (set y 2) y`, `(let [a 1 b 2] (+ a b))`,
		`(let [[a b & rest] [1 2 3]] rest)`, `(let [{: a :b c} {:a 1 :b 2}] c)`,
		// Control flow
		`(if a b c)`, `(when a b)`, `(do 1 2)`, `(while false 1)`,
		`(for [i 1 10] (print i))`, `(each [k v (pairs t)] (print k v))`,
		// Functions
		`(fn f [x] x)`, `(lambda [x ?y] x)`, `(fn [...] (select "#" ...))`,
		`(: "abc" :upper)`, `(tbl.method:call 1)`,
		// Macros
		"(macro m [x] `(+ ,x 1)) (m 2)", `(-> 1 (+ 2))`, `(icollect [_ v (ipairs [1])] v)`,
		// Errors
		`(local)`, `(set undefined 1)`, `(fn)`, `(let [a])`, `(macro m [] (error "x")) (m)`,
		`(if)`, `(. )`, `(: x)`, `(lua 1)`,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("compiler panicked on input %q: %v", data, r)
			}
		}()

		res, err := Compile(data, Options{Filename: "fuzz.fern", CorrelateLines: true})
		if err != nil {
			if len(Diagnostics(err)) == 0 {
				t.Fatalf("error on input %q carries no diagnostics: %v", data, err)
			}
			return
		}
		if res == nil {
			t.Fatalf("nil result without an error on input %q", data)
		}
	})
}
