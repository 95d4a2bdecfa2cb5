package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/openkraft/dsnscan/internal/domain"
)

type envSettings struct {
	Dsn      string `env:"SENTRY_DSN"`
	BaseURL  string `env:"SENTRY_URL"`
	CacheDir string `env:"DSNSCAN_CACHE_DIR"`
}

// EnvLoader implements domain.EnvLoader over the process environment.
type EnvLoader struct {
	environment map[string]string
}

// NewEnvLoader reads from the real process environment on every call.
func NewEnvLoader() *EnvLoader { return &EnvLoader{} }

// NewStaticEnvLoader reads from a fixed map instead of the process environment.
func NewStaticEnvLoader(environment map[string]string) *EnvLoader {
	return &EnvLoader{environment: environment}
}

// LoadEnv parses the detection settings.
func (l *EnvLoader) LoadEnv() (domain.EnvSettings, error) {
	var s envSettings
	opts := env.Options{}
	if l.environment != nil {
		opts.Environment = l.environment
	}
	if err := env.ParseWithOptions(&s, opts); err != nil {
		return domain.EnvSettings{}, fmt.Errorf("parse env: %w", err)
	}
	return domain.EnvSettings{Dsn: s.Dsn, BaseURL: s.BaseURL, CacheDir: s.CacheDir}, nil
}
