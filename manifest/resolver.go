package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("fern.manifest")

// ResolvedDep is a macro library resolved to a local directory.
type ResolvedDep struct {
	Name      string    // dependency name
	LocalPath string    // local filesystem path
	Commit    string    // checked-out commit for git dependencies
	Manifest  *Manifest // the dependency's own manifest (may be nil)
}

// MacroPaths returns the directories import-macros searches inside the
// dependency: its manifest's macro and source paths, or its root.
func (d ResolvedDep) MacroPaths() []string {
	if d.Manifest == nil {
		return []string{d.LocalPath}
	}
	return d.Manifest.MacroPaths()
}

// LockFile records the exact revision of every resolved dependency.
type LockFile struct {
	Deps []LockedDep `toml:"dep"`
}

// LockedDep is one entry of the lock file.
type LockedDep struct {
	Name   string `toml:"name"`
	Git    string `toml:"git,omitempty"`
	Tag    string `toml:"tag,omitempty"`
	Commit string `toml:"commit,omitempty"`
	Path   string `toml:"path,omitempty"`
}

// Find returns the locked entry for name, or nil.
func (lf *LockFile) Find(name string) *LockedDep {
	for i := range lf.Deps {
		if lf.Deps[i].Name == name {
			return &lf.Deps[i]
		}
	}
	return nil
}

// ReadLock reads a lock file. A missing file yields an empty lock.
func ReadLock(path string) (*LockFile, error) {
	var lf LockFile
	if _, err := toml.DecodeFile(path, &lf); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &LockFile{}, nil
		}
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return &lf, nil
}

// WriteLock writes a lock file with entries sorted by name.
func WriteLock(path string, lf *LockFile) error {
	sort.Slice(lf.Deps, func(i, j int) bool { return lf.Deps[i].Name < lf.Deps[j].Name })
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(lf)
}

// Resolver fetches macro library dependencies into the project.
type Resolver struct {
	manifest *Manifest
	lock     *LockFile
	// git runs a git command in dir; replaced in tests.
	git func(dir string, args ...string) (string, error)
}

// NewResolver creates a new dependency resolver.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m, git: runGit}
}

func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Resolve resolves all dependencies, transitively, and returns them with
// every dependency ahead of the libraries that need it.
func (r *Resolver) Resolve() ([]ResolvedDep, error) {
	lock, err := ReadLock(r.manifest.LockFilePath())
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	r.lock = lock

	if len(r.manifest.Dependencies) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(r.manifest.DepsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating deps dir: %w", err)
	}

	resolved := make(map[string]*ResolvedDep)
	order, err := r.resolveAll(r.manifest, resolved)
	if err != nil {
		return nil, err
	}

	if err := r.writeLock(order); err != nil {
		return nil, fmt.Errorf("writing lock file: %w", err)
	}
	return order, nil
}

func (r *Resolver) resolveAll(owner *Manifest, resolved map[string]*ResolvedDep) ([]ResolvedDep, error) {
	names := make([]string, 0, len(owner.Dependencies))
	for name := range owner.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	var order []ResolvedDep
	for _, name := range names {
		if _, ok := resolved[name]; ok {
			continue
		}
		rd, err := r.resolveOne(owner, name, owner.Dependencies[name])
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}
		resolved[name] = rd

		if rd.Manifest != nil && len(rd.Manifest.Dependencies) > 0 {
			transitive, err := r.resolveAll(rd.Manifest, resolved)
			if err != nil {
				return nil, err
			}
			order = append(order, transitive...)
		}
		order = append(order, *rd)
	}
	return order, nil
}

func (r *Resolver) resolveOne(owner *Manifest, name string, dep Dependency) (*ResolvedDep, error) {
	switch {
	case dep.Path != "":
		localPath, err := filepath.Abs(owner.abs(dep.Path))
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", dep.Path, err)
		}
		if _, err := os.Stat(localPath); err != nil {
			return nil, fmt.Errorf("local dependency %q not found at %s: %w", name, localPath, err)
		}
		depManifest, _ := Load(localPath)
		return &ResolvedDep{Name: name, LocalPath: localPath, Manifest: depManifest}, nil

	case dep.Git != "":
		depDir := filepath.Join(r.manifest.DepsDir(), name)
		if _, err := os.Stat(depDir); os.IsNotExist(err) {
			log.Infof("cloning %s from %s", name, dep.Git)
			if _, err := r.git("", "clone", "--quiet", dep.Git, depDir); err != nil {
				return nil, err
			}
		} else if locked := r.lock.Find(name); locked == nil || locked.Tag != dep.Tag {
			log.Infof("fetching %s", name)
			if _, err := r.git(depDir, "fetch", "--quiet", "--all", "--tags"); err != nil {
				return nil, err
			}
		}
		if dep.Tag != "" {
			if _, err := r.git(depDir, "checkout", "--quiet", dep.Tag); err != nil {
				return nil, err
			}
		}
		commit, err := r.git(depDir, "rev-parse", "HEAD")
		if err != nil {
			return nil, err
		}
		depManifest, _ := Load(depDir)
		return &ResolvedDep{Name: name, LocalPath: depDir, Commit: commit, Manifest: depManifest}, nil
	}
	return nil, fmt.Errorf("dependency %q has no git or path specified", name)
}

func (r *Resolver) writeLock(order []ResolvedDep) error {
	lf := &LockFile{}
	for _, rd := range order {
		ld := LockedDep{Name: rd.Name, Commit: rd.Commit}
		if dep, ok := r.manifest.Dependencies[rd.Name]; ok {
			ld.Git, ld.Tag, ld.Path = dep.Git, dep.Tag, dep.Path
		} else {
			ld.Path = rd.LocalPath
		}
		lf.Deps = append(lf.Deps, ld)
	}
	return WriteLock(r.manifest.LockFilePath(), lf)
}
