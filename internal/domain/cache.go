package domain

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// CachedDsnEntry is the single-DSN cache row for a project root.
type CachedDsnEntry struct {
	Directory  string        `json:"directory"`
	Dsn        string        `json:"dsn"`
	ProjectID  string        `json:"project_id"`
	OrgID      string        `json:"org_id,omitempty"`
	Source     DsnSource     `json:"source"`
	SourcePath string        `json:"source_path,omitempty"`
	Resolved   *ResolvedInfo `json:"resolved,omitempty"`
	CachedAt   time.Time     `json:"cached_at"`
}

// EntryFromDetected builds the cache row for d under directory.
func EntryFromDetected(directory string, d *DetectedDsn, now time.Time) CachedDsnEntry {
	return CachedDsnEntry{
		Directory:  directory,
		Dsn:        d.Raw,
		ProjectID:  d.ProjectID,
		OrgID:      d.OrgID,
		Source:     d.Source,
		SourcePath: d.SourcePath,
		Resolved:   d.Resolved,
		CachedAt:   now,
	}
}

// Detected rebuilds the DetectedDsn the row was written from. It returns nil
// if the stored DSN no longer parses.
func (e *CachedDsnEntry) Detected() *DetectedDsn {
	d := NewDetectedDsn(e.Dsn, e.Source, e.SourcePath, InferPackagePath(e.SourcePath))
	if d == nil {
		return nil
	}
	d.Resolved = e.Resolved
	return d
}

// DetectionSnapshot is the full multi-DSN cache row for a project root.
type DetectionSnapshot struct {
	Fingerprint  string           `json:"fingerprint"`
	PolicyKey    string           `json:"policy_key"`
	AllDsns      []DetectedDsn    `json:"all_dsns"`
	SourceMtimes map[string]int64 `json:"source_mtimes"`
	DirMtimes    map[string]int64 `json:"dir_mtimes"`
	RootDirMtime int64            `json:"root_dir_mtime"`
	TTLExpiresAt time.Time        `json:"ttl_expires_at"`
}

// PolicyKey summarizes the scan settings a snapshot was produced under. A
// snapshot written under a different key does not describe the current scan.
func PolicyKey(policy HostPolicy, maxDepth int, excludePaths []string) string {
	return fmt.Sprintf("host=%s;depth=%d;exclude=%s", policy.ExpectedHost(), maxDepth, strings.Join(excludePaths, ","))
}

// StatFunc is os.Stat or a substitute.
type StatFunc func(name string) (fs.FileInfo, error)

// Validate reports whether the snapshot still describes root. Every tracked
// file must exist with an unchanged mtime, every tracked directory and the
// root must keep their mtimes, and the TTL must not have elapsed. Any failing
// clause invalidates the whole snapshot.
func (s *DetectionSnapshot) Validate(root string, stat StatFunc, now time.Time) bool {
	if s == nil || !now.Before(s.TTLExpiresAt) {
		return false
	}

	info, err := stat(root)
	if err != nil || info.ModTime().UnixMilli() != s.RootDirMtime {
		return false
	}

	for rel, mtime := range s.SourceMtimes {
		info, err := stat(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil || info.ModTime().UnixMilli() != mtime {
			return false
		}
	}

	for rel, mtime := range s.DirMtimes {
		info, err := stat(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil || !info.IsDir() || info.ModTime().UnixMilli() != mtime {
			return false
		}
	}
	return true
}
