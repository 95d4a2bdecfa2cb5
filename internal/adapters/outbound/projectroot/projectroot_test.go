package projectroot_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkraft/dsnscan/internal/adapters/outbound/projectroot"
	"github.com/openkraft/dsnscan/internal/domain"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func TestResolver_StopsAtMarker(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", "{}")
	cwd := filepath.Join(root, "src", "components")
	require.NoError(t, os.MkdirAll(cwd, 0755))

	got, err := projectroot.New().FindProjectRoot(cwd)
	require.NoError(t, err)
	assert.Equal(t, root, got.Path)
	assert.Nil(t, got.FoundDsn)
}

func TestResolver_StopsAtNearestMarker(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".git/HEAD", "ref: refs/heads/main\n")
	writeFile(t, root, "packages/web/package.json", "{}")
	cwd := filepath.Join(root, "packages", "web", "src")
	require.NoError(t, os.MkdirAll(cwd, 0755))

	got, err := projectroot.New().FindProjectRoot(cwd)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "packages", "web"), got.Path)
}

func TestResolver_StopsAtEnvFileWithDsn(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/x\n")
	writeFile(t, root, "api/.env", "SENTRY_DSN=https://k@o1.ingest.sentry.io/5\n")
	cwd := filepath.Join(root, "api", "handlers")
	require.NoError(t, os.MkdirAll(cwd, 0755))

	got, err := projectroot.New().FindProjectRoot(cwd)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "api"), got.Path)
	require.NotNil(t, got.FoundDsn)
	assert.Equal(t, domain.SourceEnvFile, got.FoundDsn.Source)
	assert.Equal(t, "5", got.FoundDsn.ProjectID)
}

func TestResolver_IgnoresEnvFileWithoutDsn(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/x\n")
	writeFile(t, root, "api/.env", "PORT=8080\n")
	cwd := filepath.Join(root, "api")

	got, err := projectroot.New().FindProjectRoot(cwd)
	require.NoError(t, err)
	assert.Equal(t, root, got.Path)
}

func TestResolver_FallsBackToCwd(t *testing.T) {
	cwd := t.TempDir()

	got, err := projectroot.New().FindProjectRoot(cwd)
	require.NoError(t, err)
	// Some marker may exist above the temp dir; otherwise cwd is returned.
	if got.Path != cwd {
		assert.True(t, len(got.Path) < len(cwd), "root %s should be an ancestor of %s", got.Path, cwd)
	}
}
