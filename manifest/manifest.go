// Package manifest handles fern.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/fern/compiler"
)

// FileName is the manifest file looked up in project directories.
const FileName = "fern.toml"

// SourceExt is the extension of fern source files.
const SourceExt = ".fern"

// Manifest represents a fern.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	Source       Source                `toml:"source"`
	Compile      CompileConfig         `toml:"compile"`
	Output       OutputConfig          `toml:"output"`
	Cache        CacheConfig           `toml:"cache"`
	Dependencies map[string]Dependency `toml:"dependencies"`

	// Dir is the directory containing the fern.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures source file locations.
type Source struct {
	Dirs  []string `toml:"dirs"`
	Entry string   `toml:"entry"`
}

// CompileConfig mirrors the compiler options a project can set.
type CompileConfig struct {
	AllowGlobals bool `toml:"allow-globals"`
	Correlate    bool `toml:"correlate"`
	// Globals restricts unbound references when non-empty.
	Globals    []string `toml:"globals"`
	MacroPaths []string `toml:"macro-paths"`
}

// OutputConfig configures where compiled Lua is written.
type OutputConfig struct {
	Dir string `toml:"dir"`
}

// CacheConfig configures the compile cache.
type CacheConfig struct {
	Path     string `toml:"path"`
	Disabled bool   `toml:"disabled"`
}

// Dependency is a macro library fetched from git or a local path.
type Dependency struct {
	Git  string `toml:"git"`
	Tag  string `toml:"tag"`
	Path string `toml:"path"`
}

// Load parses a fern.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Output.Dir == "" {
		m.Output.Dir = "out"
	}
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(".fern", "cache.db")
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a fern.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.abs(d))
	}
	return paths
}

// MacroPaths returns absolute paths searched by import-macros: the
// configured macro paths followed by the source directories.
func (m *Manifest) MacroPaths() []string {
	var paths []string
	for _, d := range m.Compile.MacroPaths {
		paths = append(paths, m.abs(d))
	}
	return append(paths, m.SourceDirPaths()...)
}

// EntryPath returns the absolute path of the entry file, or "" when the
// project names none.
func (m *Manifest) EntryPath() string {
	if m.Source.Entry == "" {
		return ""
	}
	return m.abs(m.Source.Entry)
}

// OutputPath maps a source file to the Lua file it compiles to. Files
// under a source directory keep their relative layout below the output
// directory; others land at its top.
func (m *Manifest) OutputPath(src string) string {
	rel := filepath.Base(src)
	if abs, err := filepath.Abs(src); err == nil {
		for _, dir := range m.SourceDirPaths() {
			if r, err := filepath.Rel(dir, abs); err == nil && !strings.HasPrefix(r, "..") {
				rel = r
				break
			}
		}
	}
	rel = strings.TrimSuffix(rel, SourceExt) + ".lua"
	return filepath.Join(m.abs(m.Output.Dir), rel)
}

// CachePath returns the absolute path of the compile cache database.
func (m *Manifest) CachePath() string {
	return m.abs(m.Cache.Path)
}

// DepsDir returns the path to the .fern/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".fern", "deps")
}

// LockFilePath returns the path to .fern/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".fern", "lock.toml")
}

// CompileOptions returns the compiler options the manifest configures for
// one file. Filename is reported relative to the project directory.
func (m *Manifest) CompileOptions(filename string) compiler.Options {
	name := filename
	if r, err := filepath.Rel(m.Dir, filename); err == nil && !strings.HasPrefix(r, "..") {
		name = filepath.ToSlash(r)
	}
	opts := compiler.Options{
		Filename:                name,
		AllowGlobalDeclarations: m.Compile.AllowGlobals,
		CorrelateLines:          m.Compile.Correlate,
	}
	if len(m.Compile.Globals) > 0 {
		opts.AllowedGlobals = append([]string(nil), m.Compile.Globals...)
	}
	return opts
}
