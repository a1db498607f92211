package compiler

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/chazu/fern/luahost"
)

func TestCoreMacros(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"thread first", "(-> 1 (+ 2) (* 3))", "9"},
		{"thread last", "(->> 10 (- 1))", "-9"},
		{"thread bare symbol", "(local inc (fn [x] (+ x 1))) (-> 1 inc inc)", "3"},
		{"nil-safe thread", "(-?> {:a {:b 5}} (. :a) (. :b))", "5"},
		{"nil-safe thread stops", "(-?> {:a nil} (. :a) (. :b))", "nil"},
		{"doto", "(doto [] (table.insert 1) (table.insert 2))", "[1 2]"},
		{"when-not", "(when-not false :ran)", `"ran"`},
		{"if-let then", "(if-let [x 5] (+ x 1) :no)", "6"},
		{"if-let else", "(if-let [x nil] :yes :no)", `"no"`},
		{"if-let destructuring", "(if-let [[a b] [1 2]] (+ a b) 0)", "3"},
		{"when-let", "(when-let [x 5] (+ x 1))", "6"},
		{"when-let nil", "(when-let [x nil] (error \"ran\"))", "nil"},
		{"when-not true", "(when-not true :ran)", "nil"},
		{"icollect", "(icollect [_ v (ipairs [1 2 3])] (* v 2))", "[2 4 6]"},
		{"icollect skips nil", "(icollect [_ v (ipairs [1 2 3 4])] (if (= 0 (% v 2)) v))", "[2 4]"},
		{"collect", "(collect [k v (pairs {:a 1 :b 2})] (values k (* v 10)))", "{:a 10 :b 20}"},
		{"accumulate", "(accumulate [sum 0 _ v (ipairs [1 2 3 4])] (+ sum v))", "10"},
		{"partial", "(fn add [a b] (+ a b)) (local add3 (partial add 3)) (add3 4)", "7"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := eval(t, tc.src); got != tc.want {
				t.Errorf("eval(%s) = %s, want %s", tc.src, got, tc.want)
			}
		})
	}
}

func TestUserMacros(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"quasiquote", "(macro unless [c ...] `(if ,c nil (do ,...))) (unless false 1 42)", "42"},
		{"list building", `(macro add-all [...] (let [form (list (sym "+"))] (each [_ x (ipairs [...])] (table.insert form x)) form)) (add-all 1 2 3)`, "6"},
		{"gensym hygiene", "(macro swap! [a b] `(let [tmp# ,a] (set ,a ,b) (set ,b tmp#)))\n(var tmp 1) (var y 2) (swap! tmp y) [tmp y]", "[2 1]"},
		{"manual gensym", "(macro twice [x] (let [v (gensym)] `(let [,v ,x] (+ ,v ,v)))) (twice 21)", "42"},
		{"expansions do not collide", "(macro one [] `(let [x# 1] x#)) (+ (one) (one))", "2"},
		{"macro sees syntax", "(macro kind [x] (if (list? x) :list (sym? x) :sym (sequence? x) :seq (table? x) :table :other)) [(kind (a)) (kind a) (kind [a]) (kind {:a 1}) (kind 1)]", `["list" "sym" "seq" "table" "other"]`},
		{"sym-name", `(macro name-of [s] (sym-name s)) (name-of hello-world)`, `"hello-world"`},
		{"view", "(macro show [x] (view x)) (show (a [b] {:c d}))", `"(a [b] {:c d})"`},
		{"multi-sym?", "(macro parts [s] (let [p (multi-sym? s)] (if p (length p) 0))) [(parts a.b.c) (parts abc)]", "[3 0]"},
		{"macro returning a number", "(macro answer [] 42) (answer)", "42"},
		{"macro returning a table", "(macro pair [] {:x 1 :y 2}) (pair)", "{:x 1 :y 2}"},
		{"macros table", "(macros {:double (fn [x] `(* 2 ,x))}) (double 21)", "42"},
		{"eval-compiler", "(eval-compiler (set _G.magic 7)) (macro magic [] _G.magic) (magic)", "7"},
		{"macroexpand", `(macro expanded [form] (view (macroexpand form))) (expanded (when-not a b))`, `"(if (not a) (do b))"`},
		{"macro shadowed by local", "(macro f [] 1) (let [f (fn [] 2)] (f))", "2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := eval(t, tc.src); got != tc.want {
				t.Errorf("eval(%s) = %s, want %s", tc.src, got, tc.want)
			}
		})
	}
}

func TestMacroErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"runtime failure", `(macro boom [] (error "kaboom")) (boom)`, "kaboom"},
		{"runaway expansion", "(macro forever [] `(forever)) (forever)", "expansion depth limit of 200 exceeded"},
		{"function result", "(macro bad [] (fn [] 1)) (bad)", "has no source form"},
		{"assert-compile", `(macro needs-sym [x] (assert-compile (sym? x) "expected a symbol" x) x) (needs-sym 1)`, "expected a symbol"},
		{"sandbox", `(macro sneaky [] (os.exit 1)) (sneaky)`, "exit"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := compileErr(t, tc.src, Options{})
			if !strings.Contains(err.Error(), tc.msg) {
				t.Errorf("error = %q, want it to contain %q", err, tc.msg)
			}
			var me *MacroExpansionError
			if !errors.As(err, &me) {
				t.Errorf("error %T is not a *MacroExpansionError", err)
			}
		})
	}
}

func TestMacroDefinitionErrors(t *testing.T) {
	tests := []struct {
		src string
		msg string
	}{
		{"(macro)", "macro: expected a name"},
		{"(macro a.b [] 1)", "macro: expected a plain symbol"},
		{"(macro m x 1)", "macro: expected a parameter sequence"},
		{"(macros [1 2])", "macros: expected a table"},
		{"(import-macros :x)", "import-macros: no macro loader is configured"},
	}
	for _, tc := range tests {
		err := compileErr(t, tc.src, Options{})
		if !strings.Contains(err.Error(), tc.msg) {
			t.Errorf("compile %q error = %q, want it to contain %q", tc.src, err, tc.msg)
		}
	}
}

func TestUnsafeMacroCapabilities(t *testing.T) {
	src := `(macro home [] (type os.getenv)) (home)`
	if _, err := Compile(src, Options{}); err == nil {
		t.Error("sandboxed macro reached os")
	}
	res, err := Compile(src, Options{MacroCapabilities: luahost.Capabilities{OS: true}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Code, `"function"`) {
		t.Errorf("code = %s", res.Code)
	}
}

func TestImportMacros(t *testing.T) {
	loader := func(module string) (string, string, error) {
		if module != "helpers" {
			return "", "", fmt.Errorf("module %q not found", module)
		}
		return "{:double (fn [x] `(* 2 ,x)) :square (fn [x] `(let [v# ,x] (* v# v#)))}", "helpers.fern", nil
	}

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"all", "(import-macros :helpers) (+ (double 2) (square 3))", "13"},
		{"prefix", "(import-macros h :helpers) (h.double 4)", "8"},
		{"selected", "(import-macros {: square :double twice} :helpers) (+ (square 2) (twice 5))", "14"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Compile(tc.src, Options{MacroLoader: loader})
			if err != nil {
				t.Fatal(err)
			}
			st := luahost.New(luahost.Sandbox())
			defer st.Close()
			vals, err := st.DoString("test", res.Code)
			if err != nil {
				t.Fatal(err)
			}
			if got := luahost.FormatAll(vals); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}

	err := compileErr(t, "(import-macros :missing)", Options{MacroLoader: loader})
	if !strings.Contains(err.Error(), `module "missing" not found`) {
		t.Errorf("error = %v", err)
	}
	err = compileErr(t, "(import-macros {: cube} :helpers)", Options{MacroLoader: loader})
	if !strings.Contains(err.Error(), "macro 'cube' not found") {
		t.Errorf("error = %v", err)
	}
}

func TestImportMacrosLoadsOncePerNamespace(t *testing.T) {
	loads := 0
	loader := func(module string) (string, string, error) {
		loads++
		return "{:id (fn [x] x)}", module + ".fern", nil
	}
	c, err := New(Options{MacroLoader: loader})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	for i := 0; i < 3; i++ {
		if _, err := c.CompileString("(import-macros :m) (id 1)"); err != nil {
			t.Fatal(err)
		}
	}
	if loads != 1 {
		t.Errorf("module loaded %d times, want 1", loads)
	}
}

func TestMacrosPersistAcrossCompiles(t *testing.T) {
	c, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.CompileString("(macro inc! [x] `(set ,x (+ ,x 1)))"); err != nil {
		t.Fatal(err)
	}
	res, err := c.CompileString("(var n 1) (inc! n) n")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Code, "n = (n + 1)") {
		t.Errorf("code = %s", res.Code)
	}
}

func TestSharedMacroNamespace(t *testing.T) {
	ns, err := NewMacroNamespace(luahost.Sandbox())
	if err != nil {
		t.Fatal(err)
	}
	defer ns.Close()

	a, _ := New(Options{Macros: ns})
	b, _ := New(Options{Macros: ns})
	if _, err := a.CompileString("(macro seven [] 7)"); err != nil {
		t.Fatal(err)
	}
	res, err := b.CompileString("(seven)")
	if err != nil {
		t.Fatal(err)
	}
	if res.Code != "return 7" {
		t.Errorf("code = %q", res.Code)
	}
	if _, ok := ns.Lookup("seven"); !ok {
		t.Error("seven missing from the namespace")
	}
}

func TestExpand(t *testing.T) {
	ns, err := NewMacroNamespace(luahost.Sandbox())
	if err != nil {
		t.Fatal(err)
	}
	defer ns.Close()

	tests := []struct {
		src, want string
	}{
		{"(-> a (f b) g)", "(g (f a b))"},
		{"(->> a (f b) g)", "(g (f b a))"},
		{"(when-not x y z)", "(if (not x) (do y z))"},
		{"(not-a-macro 1)", "(not-a-macro 1)"},
	}
	for _, tc := range tests {
		form := mustRead(t, tc.src)[0].(*List)
		got, err := ns.Expand(form)
		if err != nil {
			t.Fatalf("Expand(%s): %v", tc.src, err)
		}
		if got.String() != tc.want {
			t.Errorf("Expand(%s) = %s, want %s", tc.src, got, tc.want)
		}
	}
}

func TestExpansionKeepsPositions(t *testing.T) {
	ns, err := NewMacroNamespace(luahost.Sandbox())
	if err != nil {
		t.Fatal(err)
	}
	defer ns.Close()
	form := mustRead(t, "(-> x\n   (f y))")[0].(*List)
	got, err := ns.Expand(form)
	if err != nil {
		t.Fatal(err)
	}
	call := got.(*List)
	if pos := call.Span().Start; pos.Line != 2 || pos.Column != 4 {
		t.Errorf("expanded call at %d:%d, want 2:4", pos.Line, pos.Column)
	}
}

func TestCoreMacroNames(t *testing.T) {
	ns, err := NewMacroNamespace(luahost.Sandbox())
	if err != nil {
		t.Fatal(err)
	}
	defer ns.Close()
	want := "-> ->> -?> accumulate collect doto icollect if-let partial when-let when-not"
	if got := strings.Join(ns.Names(), " "); got != want {
		t.Errorf("Names() = %s, want %s", got, want)
	}
}
