package scanner

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/openkraft/dsnscan/internal/adapters/outbound/ignore"
	"github.com/openkraft/dsnscan/internal/domain"
)

const (
	maxFileSize        = 256 * 1024 // larger files are skipped unread
	defaultConcurrency = 50
)

// allowedExtensions are the source and config formats worth reading.
var allowedExtensions = map[string]bool{
	".js": true, ".jsx": true, ".mjs": true, ".cjs": true,
	".ts": true, ".tsx": true, ".mts": true, ".cts": true,
	".vue": true, ".svelte": true, ".astro": true,
	".py": true, ".rb": true, ".php": true, ".go": true, ".rs": true,
	".java": true, ".kt": true, ".kts": true, ".scala": true, ".groovy": true, ".gradle": true,
	".swift": true, ".m": true, ".mm": true,
	".cs": true, ".fs": true, ".vb": true,
	".c": true, ".cc": true, ".cpp": true, ".h": true, ".hpp": true,
	".ex": true, ".exs": true, ".erl": true, ".dart": true, ".lua": true, ".pl": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".ini": true,
	".cfg": true, ".conf": true, ".properties": true, ".xml": true, ".plist": true,
	".html": true, ".htm": true,
}

// FileScanner implements domain.CodeScanner by walking the filesystem.
type FileScanner struct {
	concurrency int
}

// New creates a scanner with the default read concurrency.
func New() *FileScanner {
	return &FileScanner{concurrency: defaultConcurrency}
}

// NewWithConcurrency creates a scanner that keeps at most n reads in flight.
func NewWithConcurrency(n int) *FileScanner {
	if n <= 0 {
		n = defaultConcurrency
	}
	return &FileScanner{concurrency: n}
}

type candidate struct {
	rel string
	abs string
}

type fileHit struct {
	dsns  []domain.DetectedDsn
	mtime int64
}

// ScanDirectory finds every DSN under root. Unreadable files and directories
// contribute nothing; an invalid self-hosted URL is returned as an error.
func (s *FileScanner) ScanDirectory(ctx context.Context, root string, opts domain.ScanOptions) (*domain.ScanResult, error) {
	policy, err := domain.NewHostPolicy(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = domain.DefaultMaxDepth
	}

	result := &domain.ScanResult{
		RootPath:     absRoot,
		SourceMtimes: make(map[string]int64),
		DirMtimes:    make(map[string]int64),
	}
	if info, err := os.Stat(absRoot); err == nil {
		result.RootDirMtime = info.ModTime().UnixMilli()
	}

	w := &walker{
		filter:    ignore.New(absRoot, opts.ExcludePaths),
		maxDepth:  maxDepth,
		dirMtimes: result.DirMtimes,
	}
	w.walk(absRoot, "", 0)

	hits, err := s.readAll(ctx, w.files, policy, opts.StopOnFirst)
	if err != nil {
		return nil, err
	}

	// Merge in collection order so the outcome never depends on which read
	// finished first.
	seen := make(map[string]bool)
	for i, hit := range hits {
		if hit == nil {
			continue
		}
		result.SourceMtimes[w.files[i].rel] = hit.mtime
		for _, d := range hit.dsns {
			if seen[d.Raw] {
				continue
			}
			seen[d.Raw] = true
			result.Dsns = append(result.Dsns, d)
			if opts.StopOnFirst {
				return result, nil
			}
		}
	}
	return result, nil
}

// ScanFile re-reads one file and returns its DSNs.
func (s *FileScanner) ScanFile(ctx context.Context, root, relPath string, opts domain.ScanOptions) ([]domain.DetectedDsn, error) {
	policy, err := domain.NewHostPolicy(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel := filepath.ToSlash(relPath)
	hit := readCandidate(candidate{rel: rel, abs: filepath.Join(root, filepath.FromSlash(rel))}, policy)
	if hit == nil {
		return nil, nil
	}
	return hit.dsns, nil
}

// readAll reads files under a bounded pool. With stopOnFirst, scheduling
// stops once any file has a hit; in-flight reads finish, and a result is kept
// only if it comes earlier in collection order than the current best.
func (s *FileScanner) readAll(ctx context.Context, files []candidate, policy domain.HostPolicy, stopOnFirst bool) ([]*fileHit, error) {
	hits := make([]*fileHit, len(files))
	if len(files) == 0 {
		return hits, ctx.Err()
	}

	var best atomic.Int64
	best.Store(int64(len(files)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, f := range files {
		if gctx.Err() != nil || (stopOnFirst && best.Load() < int64(len(files))) {
			break
		}
		g.Go(func() error {
			if stopOnFirst && best.Load() < int64(i) {
				return nil
			}
			hit := readCandidate(f, policy)
			if hit == nil {
				return nil
			}
			if !stopOnFirst {
				hits[i] = hit
				return nil
			}
			for {
				cur := best.Load()
				if int64(i) >= cur {
					return nil
				}
				if best.CompareAndSwap(cur, int64(i)) {
					hits[i] = hit
					return nil
				}
			}
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return hits, nil
}

func readCandidate(f candidate, policy domain.HostPolicy) *fileHit {
	info, err := os.Stat(f.abs)
	if err != nil || !info.Mode().IsRegular() || info.Size() > maxFileSize {
		return nil
	}
	data, err := os.ReadFile(f.abs)
	if err != nil {
		return nil
	}
	dsns := policy.DetectInContent(string(data), domain.SourceCode, f.rel)
	if len(dsns) == 0 {
		return nil
	}
	return &fileHit{dsns: dsns, mtime: info.ModTime().UnixMilli()}
}

type walker struct {
	filter    *ignore.Filter
	maxDepth  int
	dirMtimes map[string]int64
	files     []candidate
}

// walk lists dir, whose entries sit at depth. Subdirectories are checked
// against the filter before they are opened.
func (w *walker) walk(dir, rel string, depth int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, e := range entries {
		childRel := e.Name()
		if rel != "" {
			childRel = path.Join(rel, e.Name())
		}
		childAbs := filepath.Join(dir, e.Name())

		switch {
		case e.IsDir():
			if depth+1 > w.maxDepth || w.filter.Ignored(childRel, true) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			w.dirMtimes[childRel] = info.ModTime().UnixMilli()
			w.walk(childAbs, childRel, depth+1)

		case e.Type().IsRegular():
			if !allowedExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
				continue
			}
			if w.filter.Ignored(childRel, false) {
				continue
			}
			w.files = append(w.files, candidate{rel: childRel, abs: childAbs})
		}
	}
}
