package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chazu/fern/cache"
	"github.com/chazu/fern/compiler"
	"github.com/chazu/fern/compiler/hash"
	"github.com/chazu/fern/manifest"
)

// handleBuildCommand processes the `fern build` subcommand. Every source
// file of the project is compiled to the output directory; unchanged
// files are served from the compile cache.
// Usage:
//
//	fern build              # compile, reusing cached output
//	fern build -no-cache    # compile everything, leave the cache alone
func handleBuildCommand(args []string) int {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	common := addCommonFlags(fs)
	noCache := fs.Bool("no-cache", false, "Ignore and do not update the compile cache")
	keepStale := fs.Bool("keep-stale", false, "Do not prune cache entries unused by this build")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	common.apply()

	proj, err := loadProject(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		return 1
	}
	if proj.m == nil {
		fmt.Fprintf(os.Stderr, "Error: no %s found\n", manifest.FileName)
		return 1
	}

	b := &builder{proj: proj, macroCaps: common}
	if !*noCache && !proj.m.Cache.Disabled {
		c, err := cache.Open(proj.m.CachePath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening cache: %v\n", err)
			return 1
		}
		defer c.Close()
		b.cache = c
	}

	files, err := proj.m.SourceFiles()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "No source files found")
		return 1
	}

	failed := 0
	used := make(map[string]bool)
	for _, path := range files {
		key, err := b.buildFile(path)
		if err != nil {
			reportError(err)
			failed++
			continue
		}
		used[key] = true
	}

	if b.cache != nil && failed == 0 && !*keepStale {
		n, err := b.cache.Prune(func(key string) bool { return used[key] })
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: pruning cache: %v\n", err)
		} else if n > 0 {
			log.Infof("pruned %d stale cache entries", n)
		}
	}

	fmt.Printf("Built %d of %d files (%d cached)\n", len(files)-failed, len(files), b.hits)
	if failed > 0 {
		return 1
	}
	return 0
}

// builder compiles project files through the cache.
type builder struct {
	proj      *project
	cache     *cache.Cache
	macroCaps commonFlags
	hits      int
}

// dependencies are the inputs besides a file's own source that select
// its cache entry. Macro modules are checked separately with Entry.Fresh.
func (b *builder) dependencies() []hash.Dependency {
	deps := []hash.Dependency{{Name: "compiler", Source: compiler.Version}}
	for _, d := range b.proj.deps {
		deps = append(deps, hash.Dependency{Name: "dep:" + d.Name, Source: d.Commit + "@" + d.LocalPath})
	}
	return deps
}

// buildFile compiles one file and writes its output. It returns the
// file's cache key.
func (b *builder) buildFile(path string) (string, error) {
	m := b.proj.m
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	src := string(data)

	opts := m.CompileOptions(path)
	forms, err := compiler.ReadNamed(opts.Filename, src)
	if err != nil {
		return "", err
	}
	key := hash.Hex(hash.HashUnit(forms, opts, b.dependencies()...))

	res, ok := b.lookup(key, src)
	if !ok {
		var macros []cache.MacroFile
		opts.MacroLoader = manifest.MacroLoader(b.proj.macroPaths(m.Dir), func(p, s string) {
			macros = append(macros, cache.MacroFile{Path: p, Source: s})
		})
		opts.MacroCapabilities = b.macroCaps.macroCapabilities()

		c, err := compiler.New(opts)
		if err != nil {
			return "", err
		}
		res, err = c.CompileForms(forms)
		c.Close()
		if err != nil {
			return "", err
		}

		if b.cache != nil {
			e := cache.NewEntry(src, res, compiler.Version)
			e.Macros = macros
			if err := b.cache.Put(key, e); err != nil {
				log.Warningf("caching %s: %s", path, err)
			}
		}
	}
	reportWarnings(res.Warnings)

	out := m.OutputPath(path)
	if err := writeOutput(out, res.Code); err != nil {
		return "", err
	}
	log.Infof("%s -> %s", opts.Filename, out)
	return key, nil
}

// lookup returns the cached result for key when it is still valid for
// src.
func (b *builder) lookup(key, src string) (*compiler.Result, bool) {
	if b.cache == nil {
		return nil, false
	}
	e, ok, err := b.cache.Get(key)
	if err != nil {
		log.Warningf("reading cache: %s", err)
		return nil, false
	}
	if !ok || e.Source != src || e.CompilerVersion != compiler.Version || !e.Fresh() {
		return nil, false
	}
	b.hits++
	return e.Result(), true
}
