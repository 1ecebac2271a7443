package workspace

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorkspace(t *testing.T, project string) *Workspace {
	t.Helper()
	base := t.TempDir()
	w, err := New(project, filepath.Join(base, "local"), filepath.Join(base, "state"), filepath.Join(base, "backups"))
	require.NoError(t, err)
	return w
}

func TestNormPath(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty-is-local-dir", "", "."},
		{"unix-relative", "./path/to/file.md", "path/to/file.md"},
		{"unix-absolute", "/var/lib/file.md", "var/lib/file.md"},
		{"windows-relative", `\docs\notes.md`, "docs/notes.md"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, NormPath(c.input))
		})
	}
}

func TestWorkspace_SetupCreatesDirs(t *testing.T) {
	w := newTestWorkspace(t, "proj-1")
	require.NoError(t, w.Setup())

	assert.DirExists(t, w.StateDir)
	assert.DirExists(t, w.BackupDir)
	assert.Equal(t, "proj-1.lock", filepath.Base(w.LockPath()))
}

func TestWorkspace_LockIsExclusivePerProject(t *testing.T) {
	base := t.TempDir()
	local := filepath.Join(base, "local")
	stateDir := filepath.Join(base, "state")

	w1, err := New("p1", local, stateDir, filepath.Join(base, "b"))
	require.NoError(t, err)
	w2, err := New("p1", local, stateDir, filepath.Join(base, "b"))
	require.NoError(t, err)
	other, err := New("p2", local, stateDir, filepath.Join(base, "b"))
	require.NoError(t, err)

	require.NoError(t, w1.Lock())
	assert.ErrorIs(t, w2.Lock(), ErrProjectLocked)
	require.NoError(t, other.Lock(), "different projects lock independently")

	require.NoError(t, w1.Unlock())
	assert.NoFileExists(t, w1.LockPath())

	require.NoError(t, w2.Lock())
	require.NoError(t, w2.Unlock())
	require.NoError(t, other.Unlock())

	// unlocking an unlocked workspace is a no-op
	require.NoError(t, w1.Unlock())
}

func TestWorkspace_BackupDirPerProject(t *testing.T) {
	base := t.TempDir()
	backups := filepath.Join(base, "backups")

	notes, err := New("notes", filepath.Join(base, "a"), filepath.Join(base, "state"), backups)
	require.NoError(t, err)
	docs, err := New("team/docs", filepath.Join(base, "b"), filepath.Join(base, "state"), backups)
	require.NoError(t, err)
	require.NoError(t, notes.Setup())
	require.NoError(t, docs.Setup())

	assert.Equal(t, filepath.Join(backups, "notes"), notes.BackupDir)
	assert.Equal(t, backups, filepath.Dir(docs.BackupDir))
	assert.NotEqual(t, notes.BackupDir, docs.BackupDir)
	assert.DirExists(t, notes.BackupDir)
	assert.DirExists(t, docs.BackupDir)
}

func TestWorkspace_Paths(t *testing.T) {
	w := newTestWorkspace(t, "p1")

	abs := w.AbsPath("docs/notes.md")
	assert.Equal(t, filepath.Join(w.Root, "docs", "notes.md"), abs)

	rel, err := w.RelPath(abs)
	require.NoError(t, err)
	assert.Equal(t, "docs/notes.md", rel)

	_, err = w.RelPath(filepath.Dir(w.Root))
	assert.Error(t, err)
}

func TestNew_RequiresProject(t *testing.T) {
	_, err := New("", t.TempDir(), t.TempDir(), t.TempDir())
	assert.Error(t, err)
}
