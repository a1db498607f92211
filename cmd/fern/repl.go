package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/chazu/fern/compiler"
	"github.com/chazu/fern/luahost"
	"github.com/chazu/fern/manifest"
	"github.com/chazu/fern/session"
)

const (
	historyFile = ".fern_history"
	promptMain  = ">> "
	promptCont  = ".. "
)

// handleReplCommand processes the `fern repl` subcommand.
func handleReplCommand(args []string) int {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	common := addCommonFlags(fs)
	sandbox := fs.Bool("sandbox", false, "Evaluate without io, os, package, debug and load")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	common.apply()

	proj, err := loadProject(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	opts := session.Options{
		Name:              "repl",
		Capabilities:      luahost.Full(),
		MacroCapabilities: common.macroCapabilities(),
		MacroLoader:       manifest.MacroLoader(proj.macroPaths("."), nil),
	}
	if *sandbox {
		opts.Capabilities = luahost.Sandbox()
	}

	sess, err := session.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { sess.Close() }()

	fmt.Printf("fern %s REPL (%s)\n", compiler.Version, opts.Capabilities)
	fmt.Println("Ctrl+C cancels input, Ctrl+D exits. Type :help for commands.")

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		input, ok := readForms(ln)
		if !ok {
			fmt.Println()
			return 0
		}
		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(input, "\n", " "))

		if strings.HasPrefix(trimmed, ":") {
			next, quit := handleReplMeta(sess, opts, trimmed)
			if quit {
				return 0
			}
			sess = next
			continue
		}

		vals, err := sess.Eval(input)
		if err != nil {
			reportError(err)
			continue
		}
		if len(vals) > 0 {
			fmt.Println(strings.Join(vals, "\t"))
		}
	}
}

// readForms reads lines until they hold complete forms. It reports false
// at end of input.
func readForms(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if _, err := compiler.Read(src); err != nil && compiler.Incomplete(err) {
			continue
		}
		return src, true
	}
}

// handleReplMeta runs a ":command". It returns the session to continue
// with and whether to quit.
func handleReplMeta(sess *session.Session, opts session.Options, line string) (*session.Session, bool) {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case ":help", ":h", ":?":
		fmt.Println("REPL commands:")
		fmt.Println("  :help, :h, :?     Show this help")
		fmt.Println("  :lua <forms>      Show the Lua the forms compile to")
		fmt.Println("  :locals           List top-level locals")
		fmt.Println("  :macros           List defined macros")
		fmt.Println("  :reset            Start over with a fresh session")
		fmt.Println("  :quit, :q         Exit")
	case ":quit", ":q":
		return sess, true
	case ":lua":
		res, err := compiler.Compile(rest, compiler.Options{
			Filename: "repl",
			Scope:    sess.Scope().Child(),
			Macros:   sess.Macros(),
		})
		if err != nil {
			reportError(err)
			break
		}
		fmt.Println(res.Code)
	case ":locals":
		for _, b := range sess.Scope().Bindings() {
			fmt.Printf("  %s\t%s\n", b.Symbol, b.Name)
		}
	case ":macros":
		fmt.Println(strings.Join(sess.Macros().Names(), " "))
	case ":reset":
		next, err := session.New(opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			break
		}
		sess.Close()
		return next, false
	default:
		fmt.Printf("Unknown command: %s (type :help for commands)\n", cmd)
	}
	return sess, false
}
