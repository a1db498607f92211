package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"

	"github.com/chazu/fern/luahost"
	"github.com/chazu/fern/manifest"
	"github.com/chazu/fern/session"
)

// handleRunCommand processes the `fern run` subcommand. Arguments after
// the file are passed to the program in the global table arg.
// Usage:
//
//	fern run main.fern a b      # arg = {"a", "b"}, arg[0] = "main.fern"
//	fern run -sandbox main.fern # no io, os or package
func handleRunCommand(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	common := addCommonFlags(fs)
	sandbox := fs.Bool("sandbox", false, "Run without io, os, package, debug and load")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	common.apply()

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: fern run [options] <file.fern> [args...]")
		return 2
	}
	path := fs.Arg(0)
	dir := filepath.Dir(path)
	proj, err := loadProject(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	opts := session.Options{
		Name:              path,
		Capabilities:      luahost.Full(),
		MacroCapabilities: common.macroCapabilities(),
		MacroLoader:       manifest.MacroLoader(proj.macroPaths(dir), nil),
	}
	if *sandbox {
		opts.Capabilities = luahost.Sandbox()
	}
	if proj.m != nil && len(proj.m.Compile.Globals) > 0 {
		opts.AllowedGlobals = proj.m.Compile.Globals
	}

	sess, err := session.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer sess.Close()

	host := sess.Host()
	argTable := host.L.NewTable()
	argTable.RawSetInt(0, lua.LString(path))
	for i, a := range fs.Args()[1:] {
		argTable.RawSetInt(i+1, lua.LString(a))
	}
	host.SetGlobal("arg", argTable)

	if _, err := sess.RunFile(path); err != nil {
		reportError(err)
		return 1
	}
	return 0
}
