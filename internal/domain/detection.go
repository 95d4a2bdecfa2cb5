package domain

import (
	"sort"
	"strings"
)

// DetectionResult is the outcome of collecting every DSN for a directory.
type DetectionResult struct {
	Primary     *DetectedDsn  `json:"primary"`
	All         []DetectedDsn `json:"all"`
	HasMultiple bool          `json:"has_multiple"`
	Fingerprint string        `json:"fingerprint"`
}

// NewDetectionResult builds a result from DSNs already in priority order.
// Duplicated raw strings collapse onto their first occurrence.
func NewDetectionResult(dsns []DetectedDsn) DetectionResult {
	all := DedupeDsns(dsns)
	res := DetectionResult{
		All:         all,
		HasMultiple: len(all) > 1,
		Fingerprint: Fingerprint(all),
	}
	if len(all) > 0 {
		primary := all[0]
		res.Primary = &primary
	}
	if res.All == nil {
		res.All = []DetectedDsn{}
	}
	return res
}

// DedupeDsns keeps the first DSN per raw string, preserving order.
func DedupeDsns(dsns []DetectedDsn) []DetectedDsn {
	seen := make(map[string]bool, len(dsns))
	var out []DetectedDsn
	for _, d := range dsns {
		if seen[d.Raw] {
			continue
		}
		seen[d.Raw] = true
		out = append(out, d)
	}
	return out
}

// SortByPriority orders DSNs by source priority, keeping the relative order
// of DSNs from the same source.
func SortByPriority(dsns []DetectedDsn) {
	sort.SliceStable(dsns, func(i, j int) bool {
		return dsns[i].Source.Priority() < dsns[j].Source.Priority()
	})
}

// IdentityKey returns the org:project pair identifying d. Resolved slugs win;
// otherwise the numeric org ID is used, falling back to the host when the
// DSN carries no org ID.
func IdentityKey(d DetectedDsn) string {
	if d.Resolved != nil && d.Resolved.OrgSlug != "" && d.Resolved.ProjectSlug != "" {
		return d.Resolved.OrgSlug + ":" + d.Resolved.ProjectSlug
	}
	org := d.OrgID
	if org == "" {
		org = strings.ToLower(d.Host)
	}
	return org + ":" + d.ProjectID
}

// Fingerprint is the sorted, deduplicated, comma-joined list of identity keys.
func Fingerprint(dsns []DetectedDsn) string {
	keys := make(map[string]bool, len(dsns))
	for _, d := range dsns {
		keys[IdentityKey(d)] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
