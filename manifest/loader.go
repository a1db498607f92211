package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/fern/compiler"
)

// FindModule locates the source file of a dotted module name below one of
// paths. "a.b" matches a/b.fern or a/b/init.fern, first path first.
func FindModule(paths []string, module string) (string, error) {
	if module == "" || strings.Contains(module, "..") {
		return "", fmt.Errorf("invalid module name %q", module)
	}
	rel := filepath.FromSlash(strings.ReplaceAll(module, ".", "/"))
	var tried []string
	for _, dir := range paths {
		for _, candidate := range []string{
			filepath.Join(dir, rel+SourceExt),
			filepath.Join(dir, rel, "init"+SourceExt),
		} {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
			tried = append(tried, candidate)
		}
	}
	return "", fmt.Errorf("module %q not found; tried %s", module, strings.Join(tried, ", "))
}

// MacroLoader returns a loader serving import-macros from paths. Every
// file it reads is reported to seen, when non-nil, so callers can fold
// macro modules into cache keys.
func MacroLoader(paths []string, seen func(path, source string)) compiler.MacroLoader {
	return func(module string) (string, string, error) {
		path, err := FindModule(paths, module)
		if err != nil {
			return "", "", err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", "", fmt.Errorf("cannot read %s: %w", path, err)
		}
		if seen != nil {
			seen(path, string(data))
		}
		return string(data), path, nil
	}
}

// SourceFiles lists the .fern files below the source directories in
// lexical order. Missing directories are skipped.
func (m *Manifest) SourceFiles() ([]string, error) {
	var files []string
	for _, dir := range m.SourceDirPaths() {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, SourceExt) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
	}
	return files, nil
}
