// Package projectroot finds the directory that bounds detection for a
// working directory.
package projectroot

import (
	"os"
	"path/filepath"

	"github.com/openkraft/dsnscan/internal/adapters/outbound/envfile"
	"github.com/openkraft/dsnscan/internal/domain"
)

// markers identify a project root: VCS metadata, language manifests and the
// Sentry CLI rc file.
var markers = []string{
	".git", ".hg", ".svn",
	"package.json", "deno.json",
	"go.mod",
	"Cargo.toml",
	"pyproject.toml", "setup.py", "requirements.txt",
	"Gemfile",
	"composer.json",
	"pom.xml", "build.gradle", "build.gradle.kts",
	"pubspec.yaml",
	"mix.exs",
	".sentryclirc",
}

// Resolver implements domain.ProjectRootResolver.
type Resolver struct {
	envFiles *envfile.Detector
}

// New creates a Resolver.
func New() *Resolver {
	return &Resolver{envFiles: envfile.New()}
}

// FindProjectRoot walks upward from cwd and stops at the first directory that
// holds a project marker or a .env file assigning a parsable DSN. Without
// either, cwd itself is the root.
func (r *Resolver) FindProjectRoot(cwd string) (domain.ProjectRoot, error) {
	start, err := filepath.Abs(cwd)
	if err != nil {
		return domain.ProjectRoot{}, err
	}

	dir := start
	for {
		found := r.envFileDsn(dir)
		if found != nil || hasMarker(dir) {
			return domain.ProjectRoot{Path: dir, FoundDsn: found}, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return domain.ProjectRoot{Path: start}, nil
		}
		dir = parent
	}
}

func (r *Resolver) envFileDsn(dir string) *domain.DetectedDsn {
	for _, name := range envfile.Files {
		if d := r.envFiles.DetectFromFile(dir, name); d != nil {
			return d
		}
	}
	return nil
}

func hasMarker(dir string) bool {
	for _, m := range markers {
		if _, err := os.Lstat(filepath.Join(dir, m)); err == nil {
			return true
		}
	}
	return false
}
