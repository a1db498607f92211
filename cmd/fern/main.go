// fern CLI - compiles fern source to Lua and runs it
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/fern/compiler"
	"github.com/chazu/fern/luahost"
	"github.com/chazu/fern/manifest"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("fern")

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: fern <command> [options] [args...]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  compile <file.fern>   Compile a file to Lua (stdout or -o)\n")
	fmt.Fprintf(os.Stderr, "  run <file.fern>       Compile and run a file\n")
	fmt.Fprintf(os.Stderr, "  repl                  Start an interactive session\n")
	fmt.Fprintf(os.Stderr, "  build                 Compile the project described by fern.toml\n")
	fmt.Fprintf(os.Stderr, "  deps                  Resolve fern.toml dependencies\n")
	fmt.Fprintf(os.Stderr, "  lsp                   Start the language server on stdio\n")
	fmt.Fprintf(os.Stderr, "  version               Print the compiler version\n")
	fmt.Fprintf(os.Stderr, "\nRun 'fern <command> -h' for command options.\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "compile":
		os.Exit(handleCompileCommand(args))
	case "run":
		os.Exit(handleRunCommand(args))
	case "repl":
		os.Exit(handleReplCommand(args))
	case "build":
		os.Exit(handleBuildCommand(args))
	case "deps":
		os.Exit(handleDepsCommand(args))
	case "lsp":
		os.Exit(handleLspCommand(args))
	case "version":
		fmt.Println(compiler.Version)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

// commonFlags are accepted by every command.
type commonFlags struct {
	verbose      *int
	unsafeMacros *bool
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		verbose:      fs.Int("v", 0, "Log verbosity (0 quiet, 1 info, 2 debug)"),
		unsafeMacros: fs.Bool("unsafe-macros", false, "Give macros io, os and package access"),
	}
}

// apply configures logging. The language server keeps stdout for the
// protocol, so logs always go to stderr.
func (c commonFlags) apply() {
	commonlog.Configure(*c.verbose, nil)
}

func (c commonFlags) macroCapabilities() luahost.Capabilities {
	if *c.unsafeMacros {
		return luahost.Capabilities{IO: true, OS: true, Package: true}
	}
	return luahost.Sandbox()
}

// project is the fern.toml context of a command, if any.
type project struct {
	m    *manifest.Manifest
	deps []manifest.ResolvedDep
}

// loadProject finds the fern.toml governing dir and resolves its
// dependencies. A directory outside any project yields a nil manifest.
func loadProject(dir string) (*project, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	p := &project{m: m}
	if m == nil {
		return p, nil
	}
	log.Infof("using %s", filepath.Join(m.Dir, manifest.FileName))
	if p.deps, err = manifest.NewResolver(m).Resolve(); err != nil {
		return nil, err
	}
	return p, nil
}

// macroPaths lists the directories import-macros searches: the project's
// paths followed by its dependencies', or fallback outside a project.
func (p *project) macroPaths(fallback string) []string {
	if p.m == nil {
		return []string{fallback}
	}
	paths := p.m.MacroPaths()
	for _, d := range p.deps {
		paths = append(paths, d.MacroPaths()...)
	}
	return paths
}

// compileOptions returns the options for one file: the manifest's when
// there is one, the defaults otherwise.
func (p *project) compileOptions(path string) compiler.Options {
	if p.m == nil {
		return compiler.Options{Filename: path}
	}
	return p.m.CompileOptions(path)
}

// stringList is a comma-separated flag value.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*l = append(*l, s)
		}
	}
	return nil
}

// reportError prints a compile error with source excerpts when it
// carries positions.
func reportError(err error) {
	diags := compiler.Diagnostics(err)
	if len(diags) == 0 {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	for _, d := range diags {
		fmt.Fprintln(os.Stderr, d.Detail())
	}
}

func reportWarnings(ws []compiler.Warning) {
	for _, w := range ws {
		fmt.Fprintln(os.Stderr, w.String())
	}
}
