package domain

import "context"

// ScanOptions controls one code scan.
type ScanOptions struct {
	StopOnFirst  bool
	MaxDepth     int
	ExcludePaths []string
	// BaseURL is the self-hosted Sentry URL; empty means sentry.io.
	BaseURL string
}

// ScanResult holds the DSNs found by a code scan plus the modification times
// needed to tell later whether the result is stale.
type ScanResult struct {
	RootPath     string           `json:"root_path"`
	Dsns         []DetectedDsn    `json:"dsns"`
	SourceMtimes map[string]int64 `json:"source_mtimes"`
	DirMtimes    map[string]int64 `json:"dir_mtimes"`
	RootDirMtime int64            `json:"root_dir_mtime"`
}

// CodeScanner finds DSNs in source and config files.
type CodeScanner interface {
	ScanDirectory(ctx context.Context, root string, opts ScanOptions) (*ScanResult, error)
	// ScanFile re-reads one file relative to root. A missing or unreadable
	// file yields no DSNs and no error.
	ScanFile(ctx context.Context, root, relPath string, opts ScanOptions) ([]DetectedDsn, error)
}

// EnvFileDetector reads SENTRY_DSN assignments from .env-style files.
type EnvFileDetector interface {
	DetectFromEnvFiles(root string) *DetectedDsn
	DetectFromAllEnvFiles(root string) []DetectedDsn
	DetectFromFile(root, relPath string) *DetectedDsn
}

// ProjectRoot is the boundary of the project containing a working directory.
type ProjectRoot struct {
	Path     string
	FoundDsn *DetectedDsn
}

// ProjectRootResolver walks up from a working directory to its project root.
type ProjectRootResolver interface {
	FindProjectRoot(cwd string) (ProjectRoot, error)
}

// EnvSettings are the process-environment inputs to detection.
type EnvSettings struct {
	Dsn      string
	BaseURL  string
	CacheDir string
}

// EnvLoader reads EnvSettings from the process environment.
type EnvLoader interface {
	LoadEnv() (EnvSettings, error)
}

// ConfigLoader loads project configuration.
type ConfigLoader interface {
	Load(projectPath string) (ProjectConfig, error)
}

// CacheStore persists per-directory detection results. Values returned are
// snapshots; concurrent writers follow last-writer-wins.
type CacheStore interface {
	GetCachedDsn(ctx context.Context, directory string) (*CachedDsnEntry, error)
	SetCachedDsn(ctx context.Context, entry CachedDsnEntry) error
	UpdateCachedResolution(ctx context.Context, directory string, resolved ResolvedInfo) error
	// ClearDsnCache removes the rows for directory, or every row when directory is "".
	ClearDsnCache(ctx context.Context, directory string) error

	// GetCachedDetection returns nil when no valid snapshot exists.
	GetCachedDetection(ctx context.Context, root string) (*DetectionSnapshot, error)
	SetCachedDetection(ctx context.Context, root string, snapshot DetectionSnapshot) error
}
