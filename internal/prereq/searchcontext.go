package prereq

import (
	"os"
	"path/filepath"
	"strings"
)

// SearchContext is an ordered list of extra executable lookup directories
// discovered during dependency checks. It is threaded through later
// acquisition calls instead of mutating the process PATH in place, so
// tests stay hermetic and nothing leaks across runs.
type SearchContext struct {
	ExtraDirs []string
}

// WithDir returns a context extended with one directory, deduplicated.
func (c SearchContext) WithDir(dir string) SearchContext {
	clean := filepath.Clean(strings.TrimSpace(dir))
	if clean == "" || clean == "." {
		return c
	}
	for _, existing := range c.ExtraDirs {
		if existing == clean {
			return c
		}
	}

	out := make([]string, 0, len(c.ExtraDirs)+1)
	out = append(out, c.ExtraDirs...)
	out = append(out, clean)
	return SearchContext{ExtraDirs: out}
}

// Environ returns a copy of the inherited environment with the extra
// directories prepended to PATH, suitable for subprocess execution.
func (c SearchContext) Environ(base []string) []string {
	if len(c.ExtraDirs) == 0 {
		return append([]string(nil), base...)
	}

	prefix := strings.Join(c.ExtraDirs, string(os.PathListSeparator))
	out := make([]string, 0, len(base)+1)
	seenPath := false
	for _, entry := range base {
		if key, value, found := strings.Cut(entry, "="); found && strings.EqualFold(key, "PATH") {
			seenPath = true
			out = append(out, key+"="+prefix+string(os.PathListSeparator)+value)
			continue
		}
		out = append(out, entry)
	}
	if !seenPath {
		out = append(out, "PATH="+prefix)
	}
	return out
}

// LookPath resolves an executable name against PATH and then the extra
// directories, using the provided primitives.
func (c SearchContext) LookPath(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	name string,
) (string, error) {
	path, err := lookPath(name)
	if err == nil {
		return path, nil
	}

	for _, dir := range c.ExtraDirs {
		candidate := filepath.Join(dir, name)
		info, statErr := stat(candidate)
		if statErr == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", err
}
