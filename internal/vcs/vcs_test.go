package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initGitRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	cmd := exec.Command("git", "init", "-q")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())
	return dir
}

func TestDetect_NotInVCS(t *testing.T) {
	dir := t.TempDir()
	_, err := Detect(dir)
	// a temp dir may itself live inside a checkout on some CI hosts
	if err != nil {
		assert.ErrorIs(t, err, ErrNotInVCS)
	}
}

func TestDetect_WalksUp(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	repo, err := Detect(nested)
	require.NoError(t, err)
	assert.Equal(t, TypeGit, repo.Type)
	assert.Equal(t, root, repo.Root)
}

func TestDetect_PrefersJJWhenColocated(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, ".jj"), 0o755))

	repo, err := Detect(root)
	require.NoError(t, err)
	assert.Equal(t, TypeJJ, repo.Type)
}

func TestGitHasChanges(t *testing.T) {
	dir := initGitRepo(t)
	ctx := context.Background()

	repo, err := Detect(dir)
	require.NoError(t, err)

	dirty, err := repo.HasChanges(ctx)
	require.NoError(t, err)
	assert.False(t, dirty, "fresh repository is clean")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0o644))

	changes, err := repo.Changes(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Contains(t, changes[0], "notes.md")
}
