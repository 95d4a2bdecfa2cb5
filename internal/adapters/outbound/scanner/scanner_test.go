package scanner_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkraft/dsnscan/internal/adapters/outbound/scanner"
	"github.com/openkraft/dsnscan/internal/domain"
)

const (
	dsnA = "https://abc123@o111.ingest.us.sentry.io/222"
	dsnB = "https://def456@o111.ingest.us.sentry.io/333"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func scanAll(t *testing.T, root string, opts domain.ScanOptions) *domain.ScanResult {
	t.Helper()
	res, err := scanner.New().ScanDirectory(context.Background(), root, opts)
	require.NoError(t, err)
	return res
}

func raws(dsns []domain.DetectedDsn) []string {
	out := make([]string, 0, len(dsns))
	for _, d := range dsns {
		out = append(out, d.Raw)
	}
	return out
}

func TestFileScanner_FindsCodeDsn(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.ts", `const dsn = "`+dsnA+`";`)

	res := scanAll(t, root, domain.ScanOptions{})
	require.Len(t, res.Dsns, 1)

	d := res.Dsns[0]
	assert.Equal(t, dsnA, d.Raw)
	assert.Equal(t, domain.SourceCode, d.Source)
	assert.Equal(t, "src/app.ts", d.SourcePath)
	assert.Equal(t, "222", d.ProjectID)
	assert.Equal(t, "111", d.OrgID)
	assert.Equal(t, "o111.ingest.us.sentry.io", d.Host)
}

func TestFileScanner_SkipsIgnoredTrees(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "node_modules/lib/index.js", `init("`+dsnA+`")`)
	writeFile(t, root, "generated/sentry.ts", `init("`+dsnB+`")`)
	writeFile(t, root, ".gitignore", "generated/\n")

	res := scanAll(t, root, domain.ScanOptions{})
	assert.Empty(t, res.Dsns)
	assert.NotContains(t, res.DirMtimes, "node_modules")
	assert.NotContains(t, res.DirMtimes, "generated")
}

func TestFileScanner_ExcludeGlobs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "fixtures/sample.ts", `init("`+dsnA+`")`)

	res := scanAll(t, root, domain.ScanOptions{ExcludePaths: []string{"fixtures/**"}})
	assert.Empty(t, res.Dsns)
}

func TestFileScanner_IgnoresCommentedDsns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.py", "# SENTRY_DSN = \""+dsnA+"\"\n")

	res := scanAll(t, root, domain.ScanOptions{})
	assert.Empty(t, res.Dsns)
	assert.Empty(t, res.SourceMtimes)
}

func TestFileScanner_HostValidation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.ts", `init("https://key@sentry.example.com/5")`)

	res := scanAll(t, root, domain.ScanOptions{})
	assert.Empty(t, res.Dsns, "self-hosted DSN must be ignored without SENTRY_URL")

	res = scanAll(t, root, domain.ScanOptions{BaseURL: "https://sentry.example.com"})
	assert.Equal(t, []string{"https://key@sentry.example.com/5"}, raws(res.Dsns))
}

func TestFileScanner_InvalidBaseURLIsFatal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.ts", `init("`+dsnA+`")`)

	_, err := scanner.New().ScanDirectory(context.Background(), root, domain.ScanOptions{BaseURL: "not a url"})
	require.Error(t, err)

	var cfgErr *domain.ConfigError
	assert.True(t, errors.As(err, &cfgErr))

	_, err = scanner.New().ScanFile(context.Background(), root, "app.ts", domain.ScanOptions{BaseURL: "not a url"})
	assert.True(t, errors.As(err, &cfgErr))
}

func TestFileScanner_DepthLimit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/b/shallow.ts", `init("`+dsnA+`")`)
	writeFile(t, root, "a/b/c/deep.ts", `init("`+dsnB+`")`)

	res := scanAll(t, root, domain.ScanOptions{})
	assert.Equal(t, []string{dsnA}, raws(res.Dsns))
	assert.Contains(t, res.DirMtimes, "a")
	assert.Contains(t, res.DirMtimes, "a/b")
	assert.NotContains(t, res.DirMtimes, "a/b/c")

	res = scanAll(t, root, domain.ScanOptions{MaxDepth: 3})
	assert.ElementsMatch(t, []string{dsnA, dsnB}, raws(res.Dsns))
	assert.Contains(t, res.DirMtimes, "a/b/c")
}

func TestFileScanner_SkipsLargeAndUnknownFiles(t *testing.T) {
	root := t.TempDir()
	big := `init("` + dsnA + `")` + strings.Repeat(" ", 300*1024)
	writeFile(t, root, "big.js", big)
	writeFile(t, root, "notes.bin", `init("`+dsnB+`")`)

	res := scanAll(t, root, domain.ScanOptions{})
	assert.Empty(t, res.Dsns)
}

func TestFileScanner_DedupesAcrossFilesAndTracksMtimes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.ts", `init("`+dsnA+`")`)
	writeFile(t, root, "b.ts", `init("`+dsnA+`"); other("`+dsnB+`")`)
	writeFile(t, root, "c.ts", `console.log("nothing here")`)

	res := scanAll(t, root, domain.ScanOptions{})
	assert.Equal(t, []string{dsnA, dsnB}, raws(res.Dsns))
	assert.Equal(t, "a.ts", res.Dsns[0].SourcePath)

	assert.Contains(t, res.SourceMtimes, "a.ts")
	assert.Contains(t, res.SourceMtimes, "b.ts")
	assert.NotContains(t, res.SourceMtimes, "c.ts")

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime().UnixMilli(), res.RootDirMtime)
}

func TestFileScanner_StopOnFirstIsDeterministic(t *testing.T) {
	root := t.TempDir()
	for i, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		writeFile(t, root, "src/"+name+".ts", `init("https://k@o1.ingest.sentry.io/`+string(rune('1'+i))+`")`)
	}

	for range 20 {
		res, err := scanner.NewWithConcurrency(4).ScanDirectory(context.Background(), root, domain.ScanOptions{StopOnFirst: true})
		require.NoError(t, err)
		require.Len(t, res.Dsns, 1)
		assert.Equal(t, "src/a.ts", res.Dsns[0].SourcePath)
		assert.Equal(t, "1", res.Dsns[0].ProjectID)
	}
}

func TestFileScanner_EmptyAndMissingRoot(t *testing.T) {
	res := scanAll(t, t.TempDir(), domain.ScanOptions{})
	assert.Empty(t, res.Dsns)

	res = scanAll(t, filepath.Join(t.TempDir(), "missing"), domain.ScanOptions{})
	assert.Empty(t, res.Dsns)
	assert.Zero(t, res.RootDirMtime)
}

func TestFileScanner_CanceledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.ts", `init("`+dsnA+`")`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := scanner.New().ScanDirectory(ctx, root, domain.ScanOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileScanner_ScanFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.ts", `init("`+dsnA+`")`)

	dsns, err := scanner.New().ScanFile(context.Background(), root, "src/app.ts", domain.ScanOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{dsnA}, raws(dsns))

	dsns, err = scanner.New().ScanFile(context.Background(), root, "src/gone.ts", domain.ScanOptions{})
	require.NoError(t, err)
	assert.Empty(t, dsns)
}

func TestFileScanner_ChangedFileChangesMtime(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.ts", `init("`+dsnA+`")`)
	before := scanAll(t, root, domain.ScanOptions{}).SourceMtimes["a.ts"]

	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(filepath.Join(root, "a.ts"), later, later))
	after := scanAll(t, root, domain.ScanOptions{}).SourceMtimes["a.ts"]

	assert.NotEqual(t, before, after)
}
