package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chazu/fern/compiler"
	"github.com/chazu/fern/luahost"
	"github.com/chazu/fern/manifest"
	"github.com/chazu/fern/server"
	"github.com/chazu/fern/session"
)

// handleLspCommand processes the `fern lsp` subcommand.
func handleLspCommand(args []string) int {
	fs := flag.NewFlagSet("lsp", flag.ContinueOnError)
	common := addCommonFlags(fs)
	eval := fs.Bool("eval", false, "Enable the fern.eval command (sandboxed sessions)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	common.apply()

	proj, err := loadProject(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	loader := manifest.MacroLoader(proj.macroPaths("."), nil)
	opts := server.Options{
		Compile: compiler.Options{
			MacroLoader:       loader,
			MacroCapabilities: common.macroCapabilities(),
		},
	}
	if proj.m != nil {
		opts.Compile.AllowGlobalDeclarations = proj.m.Compile.AllowGlobals
		if len(proj.m.Compile.Globals) > 0 {
			opts.Compile.AllowedGlobals = proj.m.Compile.Globals
		}
	}
	if *eval {
		opts.Sessions = session.NewStore(session.Options{
			Capabilities:      luahost.Sandbox(),
			MacroCapabilities: common.macroCapabilities(),
			MacroLoader:       loader,
		})
	}

	srv := server.NewLSP(opts)
	defer srv.Close()
	if err := srv.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		return 1
	}
	return 0
}
