package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eric-downes/claude-sync/internal/client/state"
	"github.com/eric-downes/claude-sync/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	root  string
	dir   string
	store state.Store
	mgr   *Manager
}

func newFixture(t *testing.T, enabled bool, retention int) *fixture {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "local")
	dir := filepath.Join(base, "backups")
	require.NoError(t, os.MkdirAll(root, 0o755))

	store, err := state.NewFileStore(filepath.Join(base, "state"))
	require.NoError(t, err)

	mgr := NewManager(store, Config{Project: "p1", Root: root, Dir: dir, Enabled: enabled, Retention: retention})

	// deterministic, strictly increasing creation times
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mgr.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	return &fixture{root: root, dir: dir, store: store, mgr: mgr}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func (f *fixture) read(t *testing.T, rel string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(b)
}

func TestCreateBackup_VerifiesAndRecords(t *testing.T) {
	f := newFixture(t, true, 5)
	f.write(t, "docs/notes.md", "hello")

	res, err := f.mgr.CreateBackup("docs/notes.md", state.ReasonSync)
	require.NoError(t, err)
	require.NotEmpty(t, res.ID)
	assert.FileExists(t, res.Path)
	assert.True(t, strings.HasPrefix(res.Path, f.dir))
	assert.Contains(t, filepath.Base(res.Path), res.ID)

	entry, err := f.store.GetBackup("p1", res.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, utils.BytesHash([]byte("hello")), entry.Hash)
	assert.Equal(t, "docs/notes.md", entry.Path)
	assert.EqualValues(t, 5, entry.Size)
	assert.Equal(t, state.ReasonSync, entry.Reason)
}

func TestCreateBackup_RejectsHashMismatch(t *testing.T) {
	f := newFixture(t, true, 5)
	f.write(t, "notes.md", "hello")

	// corrupt every read of the backup copy
	f.mgr.hashFile = func(p string) (string, error) {
		if strings.HasPrefix(p, f.dir) {
			return "corrupted", nil
		}
		return utils.FileHash(p)
	}

	_, err := f.mgr.CreateBackup("notes.md", state.ReasonSync)
	assert.ErrorIs(t, err, ErrIntegrity)

	backups, err := f.mgr.ListBackups("")
	require.NoError(t, err)
	assert.Empty(t, backups, "no record persisted for a rejected backup")

	entries, _ := os.ReadDir(f.dir)
	assert.Empty(t, entries, "rejected copy is removed")
}

func TestCreateBackup_MissingSource(t *testing.T) {
	f := newFixture(t, true, 5)
	_, err := f.mgr.CreateBackup("nope.md", state.ReasonSync)
	assert.ErrorIs(t, err, ErrSourceMissing)
}

func TestCreateBackup_DisabledIsNoop(t *testing.T) {
	f := newFixture(t, false, 5)
	f.write(t, "notes.md", "hello")

	res, err := f.mgr.CreateBackup("notes.md", state.ReasonSync)
	require.NoError(t, err)
	assert.Empty(t, res.ID)

	res, err = f.mgr.CreateBackupFromReader("remote.md", strings.NewReader("x"), state.ReasonDelete)
	require.NoError(t, err)
	assert.Empty(t, res.ID)

	assert.NoDirExists(t, f.dir)
}

func TestCreateBackupFromReader(t *testing.T) {
	f := newFixture(t, true, 5)

	res, err := f.mgr.CreateBackupFromReader("remote-only.md", strings.NewReader("remote content"), state.ReasonDelete)
	require.NoError(t, err)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "remote content", string(data))
}

func TestRetention_KeepsNewest(t *testing.T) {
	const n, k = 5, 3
	f := newFixture(t, true, n)

	var ids []string
	for i := range n + k {
		f.write(t, "notes.md", fmt.Sprintf("version %d", i))
		res, err := f.mgr.CreateBackup("notes.md", state.ReasonSync)
		require.NoError(t, err)
		ids = append(ids, res.ID)
	}

	removed, err := f.mgr.CleanupOldBackups()
	require.NoError(t, err)
	assert.Equal(t, k, removed)

	left, err := f.mgr.ListBackups("notes.md")
	require.NoError(t, err)
	require.Len(t, left, n)

	var leftIDs []string
	for _, b := range left {
		leftIDs = append(leftIDs, b.ID)
		assert.FileExists(t, b.BackupPath)
	}
	assert.ElementsMatch(t, ids[k:], leftIDs)
	assert.Equal(t, ids[len(ids)-1], left[0].ID)

	files, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Len(t, files, n, "pruned backup files are deleted")
}

func TestRestore_RoundTrip(t *testing.T) {
	f := newFixture(t, true, 5)
	f.write(t, "notes.md", "original")

	res, err := f.mgr.CreateBackup("notes.md", state.ReasonSync)
	require.NoError(t, err)

	f.write(t, "notes.md", "overwritten")
	require.NoError(t, f.mgr.RestoreFromBackup(res.ID, ""))
	assert.Equal(t, "original", f.read(t, "notes.md"))

	// the overwritten content was preserved before restoring
	backups, err := f.mgr.ListBackups("notes.md")
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, state.ReasonManual, backups[0].Reason)

	alt := filepath.Join(t.TempDir(), "restored.md")
	require.NoError(t, f.mgr.RestoreFromBackup(res.ID, alt))
	data, err := os.ReadFile(alt)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestRestore_Errors(t *testing.T) {
	f := newFixture(t, true, 5)
	f.write(t, "notes.md", "original")

	err := f.mgr.RestoreFromBackup("unknown", "")
	assert.ErrorIs(t, err, ErrBackupNotFound)

	res, err := f.mgr.CreateBackup("notes.md", state.ReasonSync)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(res.Path, []byte("tampered"), 0o644))
	assert.ErrorIs(t, f.mgr.RestoreFromBackup(res.ID, ""), ErrIntegrity)

	require.NoError(t, os.Remove(res.Path))
	assert.ErrorIs(t, f.mgr.RestoreFromBackup(res.ID, ""), ErrBackupMissing)

	assert.Equal(t, "original", f.read(t, "notes.md"))
}

func TestDeleteBackup(t *testing.T) {
	f := newFixture(t, true, 5)
	f.write(t, "notes.md", "x")

	res, err := f.mgr.CreateBackup("notes.md", state.ReasonSync)
	require.NoError(t, err)

	require.NoError(t, f.mgr.DeleteBackup(res.ID))
	assert.NoFileExists(t, res.Path)
	assert.ErrorIs(t, f.mgr.DeleteBackup(res.ID), ErrBackupNotFound)
}

func TestCreateBackupIfChanged(t *testing.T) {
	f := newFixture(t, true, 5)
	f.write(t, "notes.md", "v1")

	changed, err := f.mgr.HasFileChangedSinceBackup("notes.md")
	require.NoError(t, err)
	assert.True(t, changed, "never backed up counts as changed")

	first, err := f.mgr.CreateBackupIfChanged("notes.md", state.ReasonSync)
	require.NoError(t, err)

	again, err := f.mgr.CreateBackupIfChanged("notes.md", state.ReasonSync)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "unchanged file reuses the newest backup")

	f.write(t, "notes.md", "v2")
	changed, err = f.mgr.HasFileChangedSinceBackup("notes.md")
	require.NoError(t, err)
	assert.True(t, changed)

	third, err := f.mgr.CreateBackupIfChanged("notes.md", state.ReasonSync)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestCleanup_SkipsPinned(t *testing.T) {
	f := newFixture(t, true, 1)
	f.write(t, "notes.md", "a")
	old, err := f.mgr.CreateBackup("notes.md", state.ReasonSync)
	require.NoError(t, err)
	f.write(t, "notes.md", "b")
	_, err = f.mgr.CreateBackup("notes.md", state.ReasonSync)
	require.NoError(t, err)

	f.mgr.pin(old.ID)
	removed, err := f.mgr.CleanupOldBackups()
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Error(t, f.mgr.DeleteBackup(old.ID))

	f.mgr.unpin(old.ID)
	removed, err = f.mgr.CleanupOldBackups()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
