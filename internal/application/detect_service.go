package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/openkraft/dsnscan/internal/adapters/outbound/envfile"
	"github.com/openkraft/dsnscan/internal/domain"
)

// DetectService orchestrates DSN detection:
// resolve project root → consult cache → verify or scan → write cache.
//
// It is built once per process and holds the only handle to the cache
// store; call Close when done.
type DetectService struct {
	resolver     domain.ProjectRootResolver
	scanner      domain.CodeScanner
	envFiles     domain.EnvFileDetector
	envLoader    domain.EnvLoader
	configLoader domain.ConfigLoader
	store        domain.CacheStore // nil disables caching
	logger       *slog.Logger
	now          func() time.Time
}

// Option customizes a DetectService.
type Option func(*DetectService)

// WithLogger sets the logger used for cache and scan diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *DetectService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *DetectService) { s.now = now }
}

func NewDetectService(
	resolver domain.ProjectRootResolver,
	scanner domain.CodeScanner,
	envFiles domain.EnvFileDetector,
	envLoader domain.EnvLoader,
	configLoader domain.ConfigLoader,
	store domain.CacheStore,
	opts ...Option,
) *DetectService {
	s := &DetectService{
		resolver:     resolver,
		scanner:      scanner,
		envFiles:     envFiles,
		envLoader:    envLoader,
		configLoader: configLoader,
		store:        store,
		logger:       slog.New(slog.DiscardHandler),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the cache store if it holds resources.
func (s *DetectService) Close() error {
	if c, ok := s.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// detectionContext is everything one detection call needs about its inputs.
type detectionContext struct {
	root     domain.ProjectRoot
	settings domain.EnvSettings
	config   domain.ProjectConfig
	policy   domain.HostPolicy
}

func (dc detectionContext) scanOptions(stopOnFirst bool) domain.ScanOptions {
	return domain.ScanOptions{
		StopOnFirst:  stopOnFirst,
		MaxDepth:     dc.config.EffectiveMaxDepth(),
		ExcludePaths: dc.config.ExcludePaths,
		BaseURL:      dc.settings.BaseURL,
	}
}

func (dc detectionContext) policyKey() string {
	return domain.PolicyKey(dc.policy, dc.config.EffectiveMaxDepth(), dc.config.ExcludePaths)
}

// prepare resolves the inputs of one detection call. An invalid SENTRY_URL
// fails here, before any cache row is read.
func (s *DetectService) prepare(cwd string) (detectionContext, error) {
	root, err := s.resolver.FindProjectRoot(cwd)
	if err != nil {
		return detectionContext{}, fmt.Errorf("resolving project root: %w", err)
	}
	settings, err := s.envLoader.LoadEnv()
	if err != nil {
		return detectionContext{}, fmt.Errorf("loading environment: %w", err)
	}
	policy, err := domain.NewHostPolicy(settings.BaseURL)
	if err != nil {
		return detectionContext{}, err
	}
	cfg, err := s.configLoader.Load(root.Path)
	if err != nil {
		return detectionContext{}, fmt.Errorf("loading config: %w", err)
	}
	return detectionContext{root: root, settings: settings, config: cfg, policy: policy}, nil
}

// DetectDsn returns the single best DSN for cwd, or nil when none exists.
func (s *DetectService) DetectDsn(ctx context.Context, cwd string) (*domain.DetectedDsn, error) {
	// 1. Resolve project root and inputs
	dc, err := s.prepare(cwd)
	if err != nil {
		return nil, err
	}
	rootPath := dc.root.Path

	// 2. Re-verify the cached entry instead of trusting it
	if entry := s.cachedEntry(ctx, rootPath); entry != nil {
		v, err := s.verify(ctx, dc, entry)
		if err != nil {
			return nil, err
		}
		if v.dsn != nil {
			// 3. Write back a verified-but-changed DSN
			if v.changed {
				s.logger.Debug("cached dsn superseded", "root", rootPath, "source", v.dsn.Source)
				s.writeEntry(ctx, rootPath, v.dsn)
			}
			return v.dsn, nil
		}
		s.logger.Debug("cached dsn invalidated", "root", rootPath, "source", entry.Source)
	}

	// 4. Full scan in priority order
	d, err := s.fullScan(ctx, dc)
	if err != nil {
		return nil, err
	}
	if d != nil {
		s.writeEntry(ctx, rootPath, d)
	}
	return d, nil
}

// verify re-checks a cached entry with the verifier for its source. A row
// whose source this build does not know is treated as a miss.
func (s *DetectService) verify(ctx context.Context, dc detectionContext, entry *domain.CachedDsnEntry) (verdict, error) {
	v, err := verifierFor(entry.Source)
	if err != nil {
		s.logger.Debug("cached dsn has unknown source", "root", dc.root.Path, "error", err)
		return verdict{}, nil
	}
	return v.verify(ctx, s, dc, entry)
}

// fullScan tries code, then env files, then the env var, returning the first hit.
func (s *DetectService) fullScan(ctx context.Context, dc detectionContext) (*domain.DetectedDsn, error) {
	if d, err := s.firstCodeDsn(ctx, dc); err != nil || d != nil {
		return d, err
	}
	if d := s.firstEnvFileDsn(dc); d != nil {
		return d, nil
	}
	return envfile.FromEnv(dc.settings.Dsn), nil
}

func (s *DetectService) firstCodeDsn(ctx context.Context, dc detectionContext) (*domain.DetectedDsn, error) {
	res, err := s.scanner.ScanDirectory(ctx, dc.root.Path, dc.scanOptions(true))
	if err != nil {
		return nil, err
	}
	if len(res.Dsns) == 0 {
		return nil, nil
	}
	d := res.Dsns[0]
	return &d, nil
}

// firstEnvFileDsn reuses the DSN found while resolving the root: it came
// from the root's own env files, which are checked first anyway.
func (s *DetectService) firstEnvFileDsn(dc detectionContext) *domain.DetectedDsn {
	if dc.root.FoundDsn != nil {
		return dc.root.FoundDsn
	}
	return s.envFiles.DetectFromEnvFiles(dc.root.Path)
}

// DetectAllDsns collects every DSN for cwd in priority order and stores the
// result as a detection snapshot.
func (s *DetectService) DetectAllDsns(ctx context.Context, cwd string) (*domain.DetectionResult, error) {
	dc, err := s.prepare(cwd)
	if err != nil {
		return nil, err
	}
	return s.detectAll(ctx, dc)
}

// LookupDetection returns the stored snapshot for cwd's project when it is
// still valid and was produced under the current host, depth and exclude
// settings. Otherwise it behaves like DetectAllDsns.
func (s *DetectService) LookupDetection(ctx context.Context, cwd string) (*domain.DetectionResult, error) {
	dc, err := s.prepare(cwd)
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		snap, err := s.store.GetCachedDetection(ctx, dc.root.Path)
		if err != nil {
			s.logger.Debug("reading detection cache failed", "root", dc.root.Path, "error", err)
		} else if snap != nil && snap.PolicyKey == dc.policyKey() && envStillMatches(snap.AllDsns, dc.settings) {
			res := domain.NewDetectionResult(snap.AllDsns)
			res.Fingerprint = snap.Fingerprint
			return &res, nil
		}
	}
	return s.detectAll(ctx, dc)
}

func (s *DetectService) detectAll(ctx context.Context, dc detectionContext) (*domain.DetectionResult, error) {
	rootPath := dc.root.Path

	// 1. Every code DSN
	scan, err := s.scanner.ScanDirectory(ctx, rootPath, dc.scanOptions(false))
	if err != nil {
		return nil, err
	}
	all := append([]domain.DetectedDsn{}, scan.Dsns...)

	// 2. Every env file DSN, root and monorepo packages
	envFileDsns := s.envFiles.DetectFromAllEnvFiles(rootPath)
	all = append(all, envFileDsns...)

	// 3. The DSN seen during the root walk, then the env var
	if dc.root.FoundDsn != nil {
		all = append(all, *dc.root.FoundDsn)
	}
	if d := envfile.FromEnv(dc.settings.Dsn); d != nil {
		all = append(all, *d)
	}

	domain.SortByPriority(all)
	all = domain.DedupeDsns(all)
	s.attachResolution(ctx, rootPath, all)
	res := domain.NewDetectionResult(all)

	// 4. Snapshot with invalidation metadata
	if s.store != nil {
		sourceMtimes := make(map[string]int64, len(scan.SourceMtimes)+len(envFileDsns))
		for k, v := range scan.SourceMtimes {
			sourceMtimes[k] = v
		}
		tracked := []string{domain.GitignoreFile, domain.ProjectConfigFile}
		for _, d := range envFileDsns {
			tracked = append(tracked, d.SourcePath)
		}
		for _, rel := range tracked {
			if info, err := os.Stat(filepath.Join(rootPath, filepath.FromSlash(rel))); err == nil {
				sourceMtimes[rel] = info.ModTime().UnixMilli()
			}
		}
		snap := domain.DetectionSnapshot{
			Fingerprint:  res.Fingerprint,
			PolicyKey:    dc.policyKey(),
			AllDsns:      res.All,
			SourceMtimes: sourceMtimes,
			DirMtimes:    scan.DirMtimes,
			RootDirMtime: scan.RootDirMtime,
			TTLExpiresAt: s.now().Add(dc.config.EffectiveCacheTTL()),
		}
		if err := s.store.SetCachedDetection(ctx, rootPath, snap); err != nil {
			s.logger.Debug("writing detection cache failed", "root", rootPath, "error", err)
		}
	}
	return &res, nil
}

// attachResolution copies the identity recorded for the single-DSN cache
// row onto the matching DSN so the fingerprint can use slugs.
func (s *DetectService) attachResolution(ctx context.Context, rootPath string, dsns []domain.DetectedDsn) {
	entry := s.cachedEntry(ctx, rootPath)
	if entry == nil || entry.Resolved == nil {
		return
	}
	for i := range dsns {
		if dsns[i].Raw == entry.Dsn && dsns[i].Resolved == nil {
			resolved := *entry.Resolved
			dsns[i].Resolved = &resolved
		}
	}
}

// envStillMatches reports whether every env-sourced DSN in a snapshot is
// still the value of SENTRY_DSN, and that SENTRY_DSN adds nothing new.
func envStillMatches(dsns []domain.DetectedDsn, settings domain.EnvSettings) bool {
	current := envfile.FromEnv(settings.Dsn)
	sawCurrent := current == nil
	for _, d := range dsns {
		if current != nil && d.Raw == current.Raw {
			sawCurrent = true
		}
		if d.Source == domain.SourceEnv && (current == nil || d.Raw != current.Raw) {
			return false
		}
	}
	return sawCurrent
}

// RecordResolution attaches a backend-resolved identity to cwd's cached DSN.
func (s *DetectService) RecordResolution(ctx context.Context, cwd string, resolved domain.ResolvedInfo) error {
	if s.store == nil {
		return nil
	}
	root, err := s.resolver.FindProjectRoot(cwd)
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}
	return s.store.UpdateCachedResolution(ctx, root.Path, resolved)
}

// ClearCache drops the cache rows for cwd's project, or every row when all is set.
func (s *DetectService) ClearCache(ctx context.Context, cwd string, all bool) error {
	if s.store == nil {
		return nil
	}
	if all {
		return s.store.ClearDsnCache(ctx, "")
	}
	root, err := s.resolver.FindProjectRoot(cwd)
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}
	return s.store.ClearDsnCache(ctx, root.Path)
}

// ProjectRoot exposes root resolution for callers that key other state by it.
func (s *DetectService) ProjectRoot(cwd string) (string, error) {
	root, err := s.resolver.FindProjectRoot(cwd)
	if err != nil {
		return "", err
	}
	return root.Path, nil
}

func (s *DetectService) cachedEntry(ctx context.Context, rootPath string) *domain.CachedDsnEntry {
	if s.store == nil {
		return nil
	}
	entry, err := s.store.GetCachedDsn(ctx, rootPath)
	if err != nil {
		s.logger.Debug("reading dsn cache failed", "root", rootPath, "error", err)
		return nil
	}
	return entry
}

func (s *DetectService) writeEntry(ctx context.Context, rootPath string, d *domain.DetectedDsn) {
	if s.store == nil {
		return
	}
	if err := s.store.SetCachedDsn(ctx, domain.EntryFromDetected(rootPath, d, s.now())); err != nil {
		s.logger.Debug("writing dsn cache failed", "root", rootPath, "error", err)
	}
}
