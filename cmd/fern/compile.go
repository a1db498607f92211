package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chazu/fern/compiler"
	"github.com/chazu/fern/manifest"
)

// handleCompileCommand processes the `fern compile` subcommand.
// Usage:
//
//	fern compile main.fern              # Lua on stdout
//	fern compile -o main.lua main.fern  # Lua written to a file
//	fern compile -                      # read source from stdin
func handleCompileCommand(args []string) int {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	common := addCommonFlags(fs)
	output := fs.String("o", "", "Write Lua to this file instead of stdout")
	correlate := fs.Bool("correlate", false, "Annotate Lua lines with their source lines")
	allowGlobals := fs.Bool("allow-globals", false, "Let set assign undeclared names as globals")
	var globals stringList
	fs.Var(&globals, "globals", "Comma-separated names unbound references may use")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	common.apply()

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: fern compile [options] <file.fern | ->")
		return 2
	}
	path := fs.Arg(0)

	var (
		src []byte
		err error
		dir = filepath.Dir(path)
	)
	if path == "-" {
		src, err = io.ReadAll(os.Stdin)
		path, dir = "stdin", "."
	} else {
		src, err = os.ReadFile(path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	proj, err := loadProject(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	opts := proj.compileOptions(path)
	opts.CorrelateLines = opts.CorrelateLines || *correlate
	opts.AllowGlobalDeclarations = opts.AllowGlobalDeclarations || *allowGlobals
	if len(globals) > 0 {
		opts.AllowedGlobals = append(opts.AllowedGlobals, globals...)
	}
	opts.MacroLoader = manifest.MacroLoader(proj.macroPaths(dir), nil)
	opts.MacroCapabilities = common.macroCapabilities()

	res, err := compiler.Compile(string(src), opts)
	if err != nil {
		reportError(err)
		return 1
	}
	reportWarnings(res.Warnings)

	if *output == "" {
		fmt.Println(res.Code)
		return 0
	}
	if err := writeOutput(*output, res.Code); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log.Infof("wrote %s", *output)
	return 0
}

// writeOutput writes compiled code, creating parent directories.
func writeOutput(path, code string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(code+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
