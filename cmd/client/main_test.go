package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eric-downes/claude-sync/internal/client/config"
	"github.com/eric-downes/claude-sync/internal/client/sync"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoot() *cobra.Command {
	root := &cobra.Command{Use: "claude-sync", SilenceUsage: true, SilenceErrors: true}
	addPersistentFlags(root)
	root.AddCommand(newSyncCmd(), newValidateCmd(), newStatusCmd(), newProjectsCmd(), newBackupsCmd(), newInitCmd())
	return root
}

// subcommand finds name under a fresh root and parses args into it
func subcommand(t *testing.T, name string, args ...string) *cobra.Command {
	t.Helper()
	root := newTestRoot()
	cmd, _, err := root.Find([]string{name})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadConfigEnv(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("CLAUDE_SYNC_CONFIG_PATH", filepath.Join(tmp, "missing.json"))
	t.Setenv("CLAUDE_SYNC_PROJECT_ID", "proj-env")
	t.Setenv("CLAUDE_SYNC_LOCAL_DIR", filepath.Join(tmp, "kb"))
	t.Setenv("CLAUDE_SYNC_TOKEN", "env-token")
	t.Setenv("CLAUDE_SYNC_CONFLICT_RESOLUTION", "skip")
	t.Setenv("CLAUDE_SYNC_BACKUP_RETENTION_COUNT", "7")
	t.Setenv("CLAUDE_SYNC_VALIDATION_CHECK_VCS", "false")
	t.Setenv("CLAUDE_SYNC_EXCLUDE_PATTERNS", "*.pdf,drafts/**")

	cfg, err := loadConfig(subcommand(t, "sync"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, filepath.Join(tmp, "missing.json"), cfg.Path)
	assert.Equal(t, "proj-env", cfg.ProjectID)
	assert.Equal(t, filepath.Join(tmp, "kb"), cfg.LocalDir)
	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, string(sync.PolicySkip), cfg.ConflictResolution)
	assert.Equal(t, 7, cfg.Backup.RetentionCount)
	assert.False(t, cfg.Validation.CheckVCS)
	assert.True(t, cfg.Validation.CheckDiskSpace)
	assert.Equal(t, []string{"*.pdf", "drafts/**"}, cfg.ExcludePatterns)
	assert.Equal(t, config.DefaultServerURL, cfg.ServerURL)
}

func TestLoadConfigJSON(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`
{
	"project_id": "proj-json",
	"local_dir": "/tmp/claude-sync-json",
	"server_url": "https://kb.example.com",
	"state": {"backend": "sqlite"},
	"backup": {"enabled": false},
	"validation": {"max_conflict_count": 3}
}
`), 0o600))

	cfg, err := loadConfig(subcommand(t, "status", "--config", path))
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, "proj-json", cfg.ProjectID)
	assert.Equal(t, "/tmp/claude-sync-json", cfg.LocalDir)
	assert.Equal(t, "https://kb.example.com", cfg.ServerURL)
	assert.Equal(t, "sqlite", cfg.State.Backend)
	assert.False(t, cfg.Backup.Enabled)
	assert.Equal(t, 3, cfg.Validation.MaxConflictCount)

	// keys absent from the file keep their defaults
	assert.Equal(t, config.DefaultStateDir, cfg.StateDir)
	assert.True(t, cfg.Validation.Enabled)
	assert.Equal(t, sync.DefaultMinFreeBytes, cfg.Validation.MinFreeBytes)
}

func TestLoadConfigFlagsBeatEnvAndFile(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"project_id":"from-file","direction":"download"}`), 0o600))
	t.Setenv("CLAUDE_SYNC_CONFLICT_RESOLUTION", "skip")

	cfg, err := loadConfig(subcommand(t, "sync",
		"--config", path,
		"--project", "from-flag",
		"--conflict", "remote_wins",
		"--dry-run",
		"-e", "*.tmp",
	))
	require.NoError(t, err)

	assert.Equal(t, "from-flag", cfg.ProjectID)
	assert.Equal(t, "download", cfg.Direction)
	assert.Equal(t, "remote_wins", cfg.ConflictResolution)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, []string{"*.tmp"}, cfg.ExcludePatterns)
}

func TestLoadConfigInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := loadConfig(subcommand(t, "status", "--config", path))
	assert.Error(t, err)
}

func TestCLI_MissingProjectExitsNonZero(t *testing.T) {
	tmp := t.TempDir()
	out, code := runCLI(t, "status", "--config", filepath.Join(tmp, "none.json"), "--local-dir", tmp)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "project id is required")
}
