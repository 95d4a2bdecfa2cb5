// Package envfile detects DSNs from the process environment and from
// .env-style files.
package envfile

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/subosito/gotenv"

	"github.com/openkraft/dsnscan/internal/adapters/outbound/ignore"
	"github.com/openkraft/dsnscan/internal/domain"
)

// DsnVariable is the variable name read from the environment and .env files.
const DsnVariable = "SENTRY_DSN"

// Files are the .env-style file names checked in each directory, in order.
var Files = []string{
	".env.local",
	".env.development.local",
	".env.production.local",
	".env",
	".env.development",
	".env.production",
}

const maxEnvFileSize = 64 * 1024

// FromEnv returns the DSN held in value (the SENTRY_DSN variable), or nil.
func FromEnv(value string) *domain.DetectedDsn {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return domain.NewDetectedDsn(value, domain.SourceEnv, "", "")
}

// Detector implements domain.EnvFileDetector.
type Detector struct{}

// New creates a Detector.
func New() *Detector { return &Detector{} }

// DetectFromEnvFiles returns the first DSN assigned in a .env file at root or
// in a monorepo package under it.
func (d *Detector) DetectFromEnvFiles(root string) *domain.DetectedDsn {
	for _, dir := range searchDirs(root) {
		for _, name := range Files {
			if found := d.DetectFromFile(root, path.Join(dir, name)); found != nil {
				return found
			}
		}
	}
	return nil
}

// DetectFromAllEnvFiles returns every DSN assigned across the .env files at
// root and in monorepo packages, deduplicated by raw string.
func (d *Detector) DetectFromAllEnvFiles(root string) []domain.DetectedDsn {
	var out []domain.DetectedDsn
	for _, dir := range searchDirs(root) {
		for _, name := range Files {
			if found := d.DetectFromFile(root, path.Join(dir, name)); found != nil {
				out = append(out, *found)
			}
		}
	}
	return domain.DedupeDsns(out)
}

// DetectFromFile reads the SENTRY_DSN assignment from one file relative to root.
func (d *Detector) DetectFromFile(root, relPath string) *domain.DetectedDsn {
	rel := path.Clean(filepath.ToSlash(relPath))
	abs := filepath.Join(root, filepath.FromSlash(rel))

	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() || info.Size() > maxEnvFileSize {
		return nil
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil
	}
	defer f.Close()

	value := gotenv.Parse(f)[DsnVariable]
	if value == "" {
		return nil
	}
	return domain.NewDetectedDsn(value, domain.SourceEnvFile, rel, domain.InferPackagePath(rel))
}

// searchDirs returns "." followed by every package directory under the
// monorepo roots, relative to root.
func searchDirs(root string) []string {
	dirs := []string{"."}
	for _, mr := range domain.MonorepoRoots {
		entries, err := os.ReadDir(filepath.Join(root, mr))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() && !ignore.IsSkipDir(e.Name()) {
				dirs = append(dirs, mr+"/"+e.Name())
			}
		}
	}
	return dirs
}
