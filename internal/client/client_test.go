package client

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eric-downes/claude-sync/internal/client/config"
	"github.com/eric-downes/claude-sync/internal/client/state"
	"github.com/eric-downes/claude-sync/internal/client/sync"
	"github.com/eric-downes/claude-sync/internal/kb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, backend string) (*Client, *kb.Memory) {
	t.Helper()
	tmp := t.TempDir()

	cfg := config.Default()
	cfg.ProjectID = "proj-1"
	cfg.LocalDir = filepath.Join(tmp, "kb")
	cfg.StateDir = filepath.Join(tmp, "state")
	cfg.BackupDir = filepath.Join(tmp, "backups")
	cfg.Path = filepath.Join(tmp, "config.json")
	cfg.State.Backend = backend
	cfg.ConflictResolution = string(sync.PolicyBackupAndMerge)
	cfg.Validation.Enabled = false
	require.NoError(t, os.MkdirAll(cfg.LocalDir, 0o755))
	require.NoError(t, cfg.Validate())

	remote := kb.NewMemory()
	remote.AddProject(cfg.ProjectID, "Notes")

	c, err := New(cfg, remote)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, remote
}

func TestClient_SyncRoundTrip(t *testing.T) {
	for _, backend := range []string{state.BackendJSON, state.BackendSqlite} {
		t.Run(backend, func(t *testing.T) {
			c, remote := newTestClient(t, backend)
			ctx := context.Background()

			require.NoError(t, os.WriteFile(filepath.Join(c.workspace.Root, "local.md"), []byte("mine"), 0o644))
			remote.Put("proj-1", "remote.md", []byte("theirs"), time.Now())

			var progress []sync.Progress
			res, err := c.Sync(ctx, func(p sync.Progress) { progress = append(progress, p) })
			require.NoError(t, err)
			assert.True(t, res.Success)
			assert.Equal(t, 1, res.Stats.Uploaded)
			assert.Equal(t, 1, res.Stats.Downloaded)
			assert.Len(t, progress, 2)

			got, ok := remote.Content("proj-1", "local.md")
			require.True(t, ok)
			assert.Equal(t, "mine", string(got))

			data, err := os.ReadFile(filepath.Join(c.workspace.Root, "remote.md"))
			require.NoError(t, err)
			assert.Equal(t, "theirs", string(data))

			status, err := c.Status(ctx, false)
			require.NoError(t, err)
			assert.Equal(t, 2, status.Tracked)
		})
	}
}

func TestClient_BackupsRestore(t *testing.T) {
	c, remote := newTestClient(t, state.BackendJSON)
	ctx := context.Background()
	path := filepath.Join(c.workspace.Root, "notes.md")

	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))
	_, err := c.Sync(ctx, nil)
	require.NoError(t, err)

	// both sides change: backup_and_merge keeps copies of both before converging
	require.NoError(t, os.WriteFile(path, []byte("v2-local"), 0o644))
	remote.Put("proj-1", "notes.md", []byte("v2-remote"), time.Now().Add(time.Minute))
	res, err := c.Sync(ctx, nil)
	require.NoError(t, err)
	require.True(t, res.Success)

	backups, err := c.ListBackups("notes.md")
	require.NoError(t, err)
	require.NotEmpty(t, backups)

	target := filepath.Join(t.TempDir(), "restored.md")
	got, err := c.RestoreBackup(backups[len(backups)-1].ID, target)
	require.NoError(t, err)
	assert.Equal(t, target, got)
	assert.FileExists(t, target)

	_, err = c.RestoreBackup("no-such-id", "")
	assert.Error(t, err)

	removed, err := c.CleanupBackups()
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestClient_Projects(t *testing.T) {
	c, remote := newTestClient(t, state.BackendJSON)
	remote.AddProject("proj-2", "Other")

	projects, err := c.Projects(context.Background())
	require.NoError(t, err)
	assert.Len(t, projects, 2)
}

func TestNew_RequiresTokenForHTTP(t *testing.T) {
	cfg := config.Default()
	cfg.ProjectID = "proj-1"
	cfg.LocalDir = t.TempDir()
	cfg.Token = ""
	require.NoError(t, cfg.Validate())

	_, err := New(cfg, nil)
	assert.Error(t, err)
}
