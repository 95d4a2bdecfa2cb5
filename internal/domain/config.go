package domain

import (
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	DefaultMaxDepth = 2
	MaxAllowedDepth = 10
	DefaultCacheTTL = 24 * time.Hour
	MinCacheTTL     = time.Minute
)

// ProjectConfigFile is the per-project settings file, read from the project root.
const ProjectConfigFile = ".dsnscan.yaml"

// GitignoreFile is the ignore file honored at the scan root.
const GitignoreFile = ".gitignore"

// ProjectConfig holds project-level settings loaded from .dsnscan.yaml.
type ProjectConfig struct {
	MaxDepth     int      `yaml:"max_depth"     json:"max_depth,omitempty"`
	ExcludePaths []string `yaml:"exclude_paths" json:"exclude_paths,omitempty"`
	CacheTTL     string   `yaml:"cache_ttl"     json:"cache_ttl,omitempty"`
}

// DefaultConfig returns a zero-value config; accessors supply the defaults.
func DefaultConfig() ProjectConfig {
	return ProjectConfig{}
}

// EffectiveMaxDepth returns the configured scan depth or the default.
func (c ProjectConfig) EffectiveMaxDepth() int {
	if c.MaxDepth > 0 {
		return c.MaxDepth
	}
	return DefaultMaxDepth
}

// EffectiveCacheTTL returns the configured snapshot TTL or the default.
// Call Validate first; an unparsable value falls back to the default.
func (c ProjectConfig) EffectiveCacheTTL() time.Duration {
	if c.CacheTTL == "" {
		return DefaultCacheTTL
	}
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil {
		return DefaultCacheTTL
	}
	return d
}

// Validate checks the config for invalid values and returns a descriptive error.
func (c ProjectConfig) Validate() error {
	if c.MaxDepth < 0 || c.MaxDepth > MaxAllowedDepth {
		return fmt.Errorf("max_depth = %d (must be between 1 and %d)", c.MaxDepth, MaxAllowedDepth)
	}

	for i, p := range c.ExcludePaths {
		if p == "" {
			return fmt.Errorf("exclude_paths[%d] must not be empty", i)
		}
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("exclude_paths[%d] = %q is not a valid glob", i, p)
		}
	}

	if c.CacheTTL != "" {
		d, err := time.ParseDuration(c.CacheTTL)
		if err != nil {
			return fmt.Errorf("cache_ttl %q: %w", c.CacheTTL, err)
		}
		if d < MinCacheTTL {
			return fmt.Errorf("cache_ttl = %s (must be at least %s)", d, MinCacheTTL)
		}
	}

	return nil
}
