// Package ignore decides which paths a DSN scan must never open.
package ignore

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/openkraft/dsnscan/internal/domain"
)

// skipDirs are never traversed, with or without a .gitignore.
var skipDirs = map[string]bool{
	".git":             true,
	".hg":              true,
	".svn":             true,
	"node_modules":     true,
	"bower_components": true,
	"jspm_packages":    true,
	"vendor":           true,
	"dist":             true,
	"build":            true,
	"out":              true,
	"target":           true,
	".next":            true,
	".nuxt":            true,
	".output":          true,
	".svelte-kit":      true,
	".turbo":           true,
	".cache":           true,
	".parcel-cache":    true,
	"coverage":         true,
	"__pycache__":      true,
	".venv":            true,
	"venv":             true,
	".tox":             true,
	".mypy_cache":      true,
	".pytest_cache":    true,
	".gradle":          true,
	".idea":            true,
	"Pods":             true,
	"DerivedData":      true,
	".terraform":       true,
	".serverless":      true,
	".vercel":          true,
	".expo":            true,
}

// IsSkipDir reports whether name is one of the built-in skip directories.
func IsSkipDir(name string) bool {
	return skipDirs[name]
}

// Filter combines the built-in skip list, the root .gitignore and extra
// doublestar globs into one predicate.
type Filter struct {
	matcher gitignore.Matcher
	globs   []string
}

// New builds a filter for root. A missing or unreadable .gitignore only
// leaves the built-in rules and globs in effect.
func New(root string, excludeGlobs []string) *Filter {
	f := &Filter{globs: excludeGlobs}
	if patterns := readGitignore(filepath.Join(root, domain.GitignoreFile)); len(patterns) > 0 {
		f.matcher = gitignore.NewMatcher(patterns)
	}
	return f
}

func readGitignore(path string) []gitignore.Pattern {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var patterns []gitignore.Pattern
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return patterns
}

// Ignored reports whether relPath (slash or OS separated, relative to the
// scan root) must be skipped.
func (f *Filter) Ignored(relPath string, isDir bool) bool {
	rel := filepath.ToSlash(relPath)
	if rel == "." || rel == "" {
		return false
	}

	if isDir && skipDirs[pathBase(rel)] {
		return true
	}

	if f.matcher != nil && f.matcher.Match(strings.Split(rel, "/"), isDir) {
		return true
	}

	for _, g := range f.globs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}

func pathBase(rel string) string {
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		return rel[i+1:]
	}
	return rel
}
