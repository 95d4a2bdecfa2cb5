package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/openkraft/dsnscan/internal/adapters/outbound/cache/migrations"
	"github.com/openkraft/dsnscan/internal/domain"
)

const fileName = "cache.db"

// Store is a SQLite implementation of domain.CacheStore.
type Store struct {
	db   *sql.DB
	now  func() time.Time
	stat domain.StatFunc
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces time.Now, used for TTL checks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// DefaultPath returns the cache file inside cacheDir, or inside the user
// cache directory when cacheDir is empty.
func DefaultPath(cacheDir string) (string, error) {
	if strings.TrimSpace(cacheDir) == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("locating user cache dir: %w", err)
		}
		cacheDir = filepath.Join(base, "dsnscan")
	}
	return filepath.Join(cacheDir, fileName), nil
}

// Open opens (creating if needed) the cache database at path and applies
// migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{db: db, now: time.Now, stat: os.Stat}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetCachedDsn returns the single-DSN row for directory, or nil.
func (s *Store) GetCachedDsn(ctx context.Context, directory string) (*domain.CachedDsnEntry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT dsn, project_id, org_id, source, source_path,
       resolved_org_slug, resolved_org_name, resolved_project_slug, resolved_project_name,
       cached_at
FROM dsn_cache
WHERE directory = ?
`, directory)

	e := domain.CachedDsnEntry{Directory: directory}
	var (
		source   string
		resolved domain.ResolvedInfo
		cachedAt int64
	)
	err := row.Scan(&e.Dsn, &e.ProjectID, &e.OrgID, &source, &e.SourcePath,
		&resolved.OrgSlug, &resolved.OrgName, &resolved.ProjectSlug, &resolved.ProjectName,
		&cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached dsn: %w", err)
	}

	e.Source = domain.DsnSource(source)
	e.CachedAt = time.UnixMilli(cachedAt).UTC()
	if resolved.OrgSlug != "" || resolved.ProjectSlug != "" {
		e.Resolved = &resolved
	}
	return &e, nil
}

// SetCachedDsn overwrites the single-DSN row for entry.Directory.
func (s *Store) SetCachedDsn(ctx context.Context, entry domain.CachedDsnEntry) error {
	if entry.Directory == "" {
		return fmt.Errorf("directory is required")
	}
	if entry.CachedAt.IsZero() {
		entry.CachedAt = s.now()
	}
	var resolved domain.ResolvedInfo
	if entry.Resolved != nil {
		resolved = *entry.Resolved
	}

	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO dsn_cache (
	directory, dsn, project_id, org_id, source, source_path,
	resolved_org_slug, resolved_org_name, resolved_project_slug, resolved_project_name,
	cached_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		entry.Directory, entry.Dsn, entry.ProjectID, entry.OrgID, string(entry.Source), entry.SourcePath,
		resolved.OrgSlug, resolved.OrgName, resolved.ProjectSlug, resolved.ProjectName,
		entry.CachedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("set cached dsn: %w", err)
	}
	return nil
}

// UpdateCachedResolution attaches resolved identity to an existing row. A
// missing row is left missing.
func (s *Store) UpdateCachedResolution(ctx context.Context, directory string, resolved domain.ResolvedInfo) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE dsn_cache
SET resolved_org_slug = ?, resolved_org_name = ?, resolved_project_slug = ?, resolved_project_name = ?
WHERE directory = ?
`, resolved.OrgSlug, resolved.OrgName, resolved.ProjectSlug, resolved.ProjectName, directory)
	if err != nil {
		return fmt.Errorf("update cached resolution: %w", err)
	}
	return nil
}

// ClearDsnCache deletes both cache rows for directory, or all rows when
// directory is empty.
func (s *Store) ClearDsnCache(ctx context.Context, directory string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	for _, table := range []string{"dsn_cache", "dsn_detection_cache"} {
		var err error
		if directory == "" {
			_, err = tx.ExecContext(ctx, "DELETE FROM "+table)
		} else {
			_, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE directory = ?", directory)
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	return nil
}

// GetCachedDetection returns the snapshot for root only if it is still valid:
// it stats every tracked path, and any changed or missing one, or an elapsed
// TTL, yields nil. Undecodable rows are treated as absent.
func (s *Store) GetCachedDetection(ctx context.Context, root string) (*domain.DetectionSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT fingerprint, policy_key, all_dsns_json, source_mtimes_json, dir_mtimes_json, root_dir_mtime, ttl_expires_at
FROM dsn_detection_cache
WHERE directory = ?
`, root)

	var (
		snap                           domain.DetectionSnapshot
		allJSON, sourcesJSON, dirsJSON string
		ttlExpiresAt                   int64
	)
	err := row.Scan(&snap.Fingerprint, &snap.PolicyKey, &allJSON, &sourcesJSON, &dirsJSON, &snap.RootDirMtime, &ttlExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached detection: %w", err)
	}

	if json.Unmarshal([]byte(allJSON), &snap.AllDsns) != nil ||
		json.Unmarshal([]byte(sourcesJSON), &snap.SourceMtimes) != nil ||
		json.Unmarshal([]byte(dirsJSON), &snap.DirMtimes) != nil {
		return nil, nil
	}
	snap.TTLExpiresAt = time.UnixMilli(ttlExpiresAt).UTC()

	if !snap.Validate(root, s.stat, s.now()) {
		return nil, nil
	}
	return &snap, nil
}

// SetCachedDetection overwrites the snapshot for root.
func (s *Store) SetCachedDetection(ctx context.Context, root string, snapshot domain.DetectionSnapshot) error {
	allJSON, err := json.Marshal(nonNilDsns(snapshot.AllDsns))
	if err != nil {
		return fmt.Errorf("encoding dsns: %w", err)
	}
	sourcesJSON, err := json.Marshal(nonNilMap(snapshot.SourceMtimes))
	if err != nil {
		return fmt.Errorf("encoding source mtimes: %w", err)
	}
	dirsJSON, err := json.Marshal(nonNilMap(snapshot.DirMtimes))
	if err != nil {
		return fmt.Errorf("encoding dir mtimes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO dsn_detection_cache (
	directory, fingerprint, policy_key, all_dsns_json, source_mtimes_json, dir_mtimes_json,
	root_dir_mtime, ttl_expires_at, cached_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		root, snapshot.Fingerprint, snapshot.PolicyKey, string(allJSON), string(sourcesJSON), string(dirsJSON),
		snapshot.RootDirMtime, snapshot.TTLExpiresAt.UTC().UnixMilli(), s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("set cached detection: %w", err)
	}
	return nil
}

func nonNilDsns(d []domain.DetectedDsn) []domain.DetectedDsn {
	if d == nil {
		return []domain.DetectedDsn{}
	}
	return d
}

func nonNilMap(m map[string]int64) map[string]int64 {
	if m == nil {
		return map[string]int64{}
	}
	return m
}
