package compiler

import (
	"strings"
	"testing"

	"github.com/chazu/fern/luahost"
)

// Integration tests: compile whole programs and run them in the host

func TestIntegrationFactorial(t *testing.T) {
	src := `
(fn fact [n]
  (if (= n 0)
      1
      (* n (fact (- n 1)))))
(values (fact 5) (fact 0))`
	if got := eval(t, src); got != "120\t1" {
		t.Errorf("factorial = %s, want 120 and 1", got)
	}
}

func TestIntegrationFibonacci(t *testing.T) {
	src := `
(fn fib [n]
  (if (< n 2) n (+ (fib (- n 1)) (fib (- n 2)))))
(fib 10)`
	if got := eval(t, src); got != "55" {
		t.Errorf("10 fib = %s, want 55", got)
	}
}

func TestIntegrationCounterClosure(t *testing.T) {
	src := `
(fn make-counter []
  (var count 0)
  (fn []
    (set count (+ count 1))
    count))
(local c1 (make-counter))
(local c2 (make-counter))
(c1) (c1)
(values (c1) (c2))`
	if got := eval(t, src); got != "3\t1" {
		t.Errorf("counters = %s, want 3 and 1", got)
	}
}

func TestIntegrationObjects(t *testing.T) {
	src := `
(local Account {})
(set Account.__index Account)

(fn Account.new [balance]
  (setmetatable {:balance balance} Account))

(fn Account.deposit [self amount]
  (set self.balance (+ self.balance amount))
  self)

(fn Account.report [self]
  (.. "balance: " self.balance))

(local acct (Account.new 10))
(: acct :deposit 5)
(acct:deposit 20)
(acct:report)`
	if got := eval(t, src); got != `"balance: 35"` {
		t.Errorf("report = %s", got)
	}
}

func TestIntegrationStringBuilding(t *testing.T) {
	src := `
(local words [])
(each [_ w (ipairs ["alpha" "beta" "gamma"])]
  (table.insert words (string.upper w)))
(table.concat words "-")`
	if got := eval(t, src); got != `"ALPHA-BETA-GAMMA"` {
		t.Errorf("got %s", got)
	}
}

func TestIntegrationLoops(t *testing.T) {
	src := `
(var total 0)
(for [i 1 10]
  (set total (+ total i)))
(var evens 0)
(for [i 10 1 -2]
  (set evens (+ evens 1)))
(var n 1)
(while (< n 100)
  (set n (* n 2)))
[total evens n]`
	if got := eval(t, src); got != "[55 5 128]" {
		t.Errorf("got %s", got)
	}
}

func TestIntegrationVarargs(t *testing.T) {
	src := `
(fn count-args [...] (select "#" ...))
(fn first-and-rest [x ...] (values x [...]))
(fn forward [...] (first-and-rest ...))
(let [(a rest) (forward 1 2 3)]
  [(count-args 1 nil 3) a rest])`
	if got := eval(t, src); got != "[3 1 [2 3]]" {
		t.Errorf("got %s", got)
	}
}

func TestIntegrationDestructuring(t *testing.T) {
	src := `
(fn point [] {:x 3 :y 4 :tags [:a :b :c]})
(let [{: x : y :tags [first & others]} (point)]
  [(+ (* x x) (* y y)) first (length others)])`
	if got := eval(t, src); got != `[25 "a" 2]` {
		t.Errorf("got %s", got)
	}
}

func TestIntegrationProtectedCall(t *testing.T) {
	src := `
(fn risky [x]
  (if (< x 0)
      (error "negative" 0)
      (* x 2)))
(let [(ok1 v1) (pcall risky 4)
      (ok2 v2) (pcall risky -1)]
  [ok1 v1 ok2 v2])`
	if got := eval(t, src); got != `[true 8 false "negative"]` {
		t.Errorf("got %s", got)
	}
}

func TestIntegrationMacrosInPrograms(t *testing.T) {
	src := `
(macro unless [cond ...] ` + "`" + `(if ,cond nil (do ,...)))
(fn classify [n]
  (-> n (% 2) (= 0) (if :even :odd)))
(var log [])
(unless false (table.insert log (classify 3)) (table.insert log (classify 4)))
(icollect [_ v (ipairs log)] (string.upper v))`
	if got := eval(t, src); got != `["ODD" "EVEN"]` {
		t.Errorf("got %s", got)
	}
}

func TestIntegrationIncrementalSession(t *testing.T) {
	st := luahost.New(luahost.Sandbox())
	defer st.Close()
	st.SetGlobal(LocalsTable, st.L.NewTable())

	c, err := New(Options{PersistLocals: true})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	// a named fn yields the function it defines
	steps := []struct {
		src, want string
	}{
		{"(local greeting \"hi\")", ""},
		{"(fn greet [name] (.. greeting \", \" name))", "function: "},
		{"(greet \"ann\")", `"hi, ann"`},
		{"(local greeting \"bye\") (greet \"bo\")", `"hi, bo"`},
		{"greeting", `"bye"`},
	}
	for i, step := range steps {
		res, err := c.CompileString(step.src)
		if err != nil {
			t.Fatalf("step %d: compile: %v", i, err)
		}
		vals, err := st.DoString("repl", res.Code)
		if err != nil {
			t.Fatalf("step %d: run: %v\n%s", i, err, res.Code)
		}
		got := luahost.FormatAll(vals)
		if strings.HasSuffix(step.want, ": ") {
			if !strings.HasPrefix(got, step.want) {
				t.Errorf("step %d: got %s, want a value starting %q\n%s", i, got, step.want, res.Code)
			}
			continue
		}
		if got != step.want {
			t.Errorf("step %d: got %s, want %s\n%s", i, got, step.want, res.Code)
		}
	}
}

func TestIntegrationRuntimeErrorLines(t *testing.T) {
	res, err := Compile("(local t nil)\n\n(print t.x)", Options{Filename: "boom.fern", CorrelateLines: true})
	if err != nil {
		t.Fatal(err)
	}
	st := luahost.New(luahost.Sandbox())
	defer st.Close()
	_, err = st.DoString("boom.lua", res.Code)
	if err == nil {
		t.Fatal("expected a runtime error")
	}
	// correlation keeps the Lua line of the failing statement findable
	line := 0
	for i, l := range strings.Split(res.Code, "\n") {
		if strings.Contains(l, "t.x") {
			line = i + 1
		}
	}
	if line == 0 || res.LineMap[line].Line != 3 {
		t.Errorf("statement on Lua line %d maps to %v, want source line 3", line, res.LineMap[line])
	}
}
