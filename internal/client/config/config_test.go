package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eric-downes/claude-sync/internal/client/state"
	"github.com/eric-downes/claude-sync/internal/client/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	tmp := t.TempDir()
	cfg := Default()
	cfg.ProjectID = "proj-1"
	cfg.LocalDir = filepath.Join(tmp, "kb")
	cfg.StateDir = filepath.Join(tmp, "state")
	cfg.BackupDir = filepath.Join(tmp, "backups")
	cfg.Path = filepath.Join(tmp, "config.json")
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	t.Run("defaults applied", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Direction = ""
		cfg.ConflictResolution = ""
		cfg.State.Backend = ""
		cfg.Backup.RetentionCount = 0
		cfg.Validation.MaxConflictCount = 0
		cfg.Validation.MinFreeBytes = 0

		require.NoError(t, cfg.Validate())
		assert.Equal(t, string(sync.DirectionBoth), cfg.Direction)
		assert.Equal(t, string(sync.PolicyAsk), cfg.ConflictResolution)
		assert.Equal(t, state.BackendJSON, cfg.State.Backend)
		assert.Equal(t, state.DefaultRetention, cfg.Backup.RetentionCount)
		assert.Equal(t, sync.DefaultMaxConflictCount, cfg.Validation.MaxConflictCount)
		assert.Equal(t, uint64(sync.DefaultMinFreeBytes), cfg.Validation.MinFreeBytes)
	})

	t.Run("paths resolved", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.LocalDir = "~/kb"
		cfg.ServerURL = "https://example.com/"

		require.NoError(t, cfg.Validate())
		assert.Equal(t, filepath.Join(home, "kb"), cfg.LocalDir)
		assert.Equal(t, "https://example.com", cfg.ServerURL)
		assert.True(t, filepath.IsAbs(cfg.StateDir))
	})

	t.Run("enums normalized", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.ConflictResolution = "Remote_Wins"
		cfg.State.Backend = "SQLITE"
		cfg.Direction = "upload"

		require.NoError(t, cfg.Validate())
		assert.Equal(t, string(sync.PolicyRemoteWins), cfg.ConflictResolution)
		assert.Equal(t, state.BackendSqlite, cfg.State.Backend)
		assert.Equal(t, string(sync.DirectionUpload), cfg.Direction)
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing project", func(c *Config) { c.ProjectID = " " }, "project id"},
		{"missing local dir", func(c *Config) { c.LocalDir = "" }, "local directory"},
		{"missing server", func(c *Config) { c.ServerURL = "" }, "server url"},
		{"bad server scheme", func(c *Config) { c.ServerURL = "ftp://example.com" }, "invalid server url"},
		{"bad backend", func(c *Config) { c.State.Backend = "postgres" }, "state backend"},
		{"bad direction", func(c *Config) { c.Direction = "sideways" }, "direction"},
		{"bad policy", func(c *Config) { c.ConflictResolution = "merge" }, "merge"},
		{"bad exclude", func(c *Config) { c.ExcludePatterns = []string{"[oops"} }, "exclude pattern"},
		{"negative retention", func(c *Config) { c.Backup.RetentionCount = -1 }, "retention_count"},
		{"negative ceiling", func(c *Config) { c.Validation.MaxConflictCount = -2 }, "max_conflict_count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_SyncOptions(t *testing.T) {
	cfg := validConfig(t)
	cfg.ConflictResolution = "backup_and_merge"
	cfg.DryRun = true
	cfg.ExcludePatterns = []string{"*.pdf"}
	cfg.Validation.CheckVCS = false
	require.NoError(t, cfg.Validate())

	opts := cfg.SyncOptions()
	assert.Equal(t, sync.PolicyBackupAndMerge, opts.ConflictResolution)
	assert.Equal(t, sync.DirectionBoth, opts.Direction)
	assert.True(t, opts.DryRun)
	assert.Equal(t, []string{"*.pdf"}, opts.ExcludePatterns)
	assert.False(t, opts.Validation.CheckVCS)
	assert.True(t, opts.Validation.CheckDiskSpace)
}

func TestConfig_SaveAndLoad_Roundtrip(t *testing.T) {
	cfg := validConfig(t)
	cfg.Token = "tok"
	cfg.ExcludePatterns = []string{"drafts/**"}
	cfg.Backup.RetentionCount = 3
	cfg.Validation.MaxConflictCount = 25
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.Save())

	info, err := os.Stat(cfg.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadFromFile(cfg.Path)
	require.NoError(t, err)
	require.NoError(t, loaded.Validate())
	assert.Equal(t, cfg, loaded)
}

func TestLoadFromFile_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"project_id":"p","local_dir":"/tmp/kb","backup":{"retention_count":2}}`), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "p", cfg.ProjectID)
	assert.Equal(t, 2, cfg.Backup.RetentionCount)
	assert.Equal(t, DefaultServerURL, cfg.ServerURL)
	assert.True(t, cfg.Validation.CheckDiskSpace)
	assert.Equal(t, path, cfg.Path)
}

func TestLoadFromFile_Errors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}
