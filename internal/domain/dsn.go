package domain

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

// DsnSource identifies where a DSN was found.
type DsnSource string

const (
	SourceEnv      DsnSource = "env"
	SourceEnvFile  DsnSource = "env_file"
	SourceConfig   DsnSource = "config"
	SourceCode     DsnSource = "code"
	SourceInferred DsnSource = "inferred"
)

// ValidSources lists every source in priority order, highest first.
var ValidSources = []DsnSource{
	SourceCode,
	SourceEnvFile,
	SourceConfig,
	SourceEnv,
	SourceInferred,
}

// Priority returns the rank of the source; lower ranks win.
// Unknown sources rank after every known one.
func (s DsnSource) Priority() int {
	for i, v := range ValidSources {
		if v == s {
			return i
		}
	}
	return len(ValidSources)
}

// IsFileBased reports whether DSNs from this source carry a SourcePath.
func (s DsnSource) IsFileBased() bool {
	return s == SourceCode || s == SourceEnvFile || s == SourceConfig
}

// ParsedDsn holds the structured fields of a DSN.
type ParsedDsn struct {
	Protocol  string `json:"protocol"`
	PublicKey string `json:"public_key"`
	Host      string `json:"host"`
	ProjectID string `json:"project_id"`
	OrgID     string `json:"org_id,omitempty"`
}

// ResolvedInfo is the org/project identity attached after a backend lookup.
type ResolvedInfo struct {
	OrgSlug     string `json:"org_slug"`
	OrgName     string `json:"org_name,omitempty"`
	ProjectSlug string `json:"project_slug"`
	ProjectName string `json:"project_name,omitempty"`
}

// DetectedDsn is a parsed DSN tagged with where it was found.
type DetectedDsn struct {
	ParsedDsn
	Raw         string        `json:"raw"`
	Source      DsnSource     `json:"source"`
	SourcePath  string        `json:"source_path,omitempty"`
	PackagePath string        `json:"package_path,omitempty"`
	Resolved    *ResolvedInfo `json:"resolved,omitempty"`
}

var (
	projectIDPattern = regexp.MustCompile(`^\d+$`)
	orgHostPattern   = regexp.MustCompile(`^o(\d+)\.ingest\.`)
)

// ParseDsn parses raw into its fields. It returns nil when raw is not a DSN.
func ParseDsn(raw string) *ParsedDsn {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.User == nil {
		return nil
	}

	publicKey := u.User.Username()
	if publicKey == "" || u.Hostname() == "" {
		return nil
	}

	path := strings.Trim(u.Path, "/")
	if path == "" {
		return nil
	}
	segments := strings.Split(path, "/")
	projectID := segments[len(segments)-1]
	if !projectIDPattern.MatchString(projectID) {
		return nil
	}

	parsed := &ParsedDsn{
		Protocol:  u.Scheme,
		PublicKey: publicKey,
		Host:      u.Host,
		ProjectID: projectID,
	}
	if m := orgHostPattern.FindStringSubmatch(strings.ToLower(u.Hostname())); m != nil {
		parsed.OrgID = m[1]
	}
	return parsed
}

// NewDetectedDsn parses raw and tags it with its source. It returns nil when
// raw does not parse; callers treat that as "not a DSN".
func NewDetectedDsn(raw string, source DsnSource, sourcePath, packagePath string) *DetectedDsn {
	parsed := ParseDsn(raw)
	if parsed == nil {
		return nil
	}
	return &DetectedDsn{
		ParsedDsn:   *parsed,
		Raw:         strings.TrimSpace(raw),
		Source:      source,
		SourcePath:  filepath.ToSlash(sourcePath),
		PackagePath: packagePath,
	}
}

// MonorepoRoots are the directory names that host monorepo sub-packages.
var MonorepoRoots = []string{"packages", "apps", "libs", "services", "modules"}

// InferPackagePath returns the monorepo package label ("packages/web") for a
// path relative to the scan root, or "" when the path is not inside one.
func InferPackagePath(relativePath string) string {
	parts := strings.Split(filepath.ToSlash(relativePath), "/")
	if len(parts) < 3 {
		return ""
	}
	for _, root := range MonorepoRoots {
		if parts[0] == root && parts[1] != "" {
			return parts[0] + "/" + parts[1]
		}
	}
	return ""
}
