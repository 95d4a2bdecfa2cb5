package application

import (
	"context"
	"fmt"

	"github.com/openkraft/dsnscan/internal/adapters/outbound/envfile"
	"github.com/openkraft/dsnscan/internal/domain"
)

// verdict is the outcome of re-checking a cached entry. A nil dsn means the
// entry is invalid and a full scan must run.
type verdict struct {
	dsn     *domain.DetectedDsn
	changed bool
}

// cacheVerifier re-checks a cached entry using only its own source, plus any
// higher-priority source that could have appeared since.
type cacheVerifier interface {
	verify(ctx context.Context, s *DetectService, dc detectionContext, entry *domain.CachedDsnEntry) (verdict, error)
}

// verifierFor returns the strategy for source. Every DsnSource has a case;
// an unknown value is an error rather than a silent fallback.
func verifierFor(source domain.DsnSource) (cacheVerifier, error) {
	switch source {
	case domain.SourceCode, domain.SourceConfig:
		return fileVerifier{}, nil
	case domain.SourceEnvFile:
		return envFileVerifier{}, nil
	case domain.SourceEnv:
		return envVerifier{}, nil
	case domain.SourceInferred:
		return inferredVerifier{}, nil
	default:
		return nil, fmt.Errorf("no cache verifier for source %q", source)
	}
}

func hit(entry *domain.CachedDsnEntry) verdict {
	d := entry.Detected()
	return verdict{dsn: d}
}

func replaced(d *domain.DetectedDsn) verdict {
	return verdict{dsn: d, changed: true}
}

// fileVerifier re-reads the code or config file the DSN came from.
type fileVerifier struct{}

func (fileVerifier) verify(ctx context.Context, s *DetectService, dc detectionContext, entry *domain.CachedDsnEntry) (verdict, error) {
	if entry.SourcePath == "" {
		return verdict{}, nil
	}
	dsns, err := s.scanner.ScanFile(ctx, dc.root.Path, entry.SourcePath, dc.scanOptions(true))
	if err != nil || len(dsns) == 0 {
		return verdict{}, err
	}
	if dsns[0].Raw == entry.Dsn {
		return hit(entry), nil
	}
	current := dsns[0]
	current.Source = entry.Source
	return replaced(&current), nil
}

// envFileVerifier checks for a new code DSN, then re-reads the cached env file.
type envFileVerifier struct{}

func (envFileVerifier) verify(ctx context.Context, s *DetectService, dc detectionContext, entry *domain.CachedDsnEntry) (verdict, error) {
	code, err := s.firstCodeDsn(ctx, dc)
	if err != nil {
		return verdict{}, err
	}
	if code != nil {
		return replaced(code), nil
	}

	if entry.SourcePath == "" {
		return verdict{}, nil
	}
	current := s.envFiles.DetectFromFile(dc.root.Path, entry.SourcePath)
	if current == nil {
		return verdict{}, nil
	}
	if current.Raw == entry.Dsn {
		return hit(entry), nil
	}
	return replaced(current), nil
}

// envVerifier checks every higher-priority source, then re-reads SENTRY_DSN.
// Env files are re-checked too so that a .env added after caching still
// outranks the environment variable.
type envVerifier struct{}

func (envVerifier) verify(ctx context.Context, s *DetectService, dc detectionContext, entry *domain.CachedDsnEntry) (verdict, error) {
	code, err := s.firstCodeDsn(ctx, dc)
	if err != nil {
		return verdict{}, err
	}
	if code != nil {
		return replaced(code), nil
	}
	if fromFile := s.firstEnvFileDsn(dc); fromFile != nil {
		return replaced(fromFile), nil
	}

	current := envfile.FromEnv(dc.settings.Dsn)
	if current == nil {
		return verdict{}, nil
	}
	if current.Raw == entry.Dsn {
		return hit(entry), nil
	}
	return replaced(current), nil
}

// inferredVerifier never trusts the cache; inferred DSNs have no source to re-read.
type inferredVerifier struct{}

func (inferredVerifier) verify(context.Context, *DetectService, detectionContext, *domain.CachedDsnEntry) (verdict, error) {
	return verdict{}, nil
}
