package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/eric-downes/claude-sync/internal/client/state"
	"github.com/eric-downes/claude-sync/internal/client/sync"
	"github.com/eric-downes/claude-sync/internal/client/workspace"
	"github.com/eric-downes/claude-sync/internal/utils"
	"github.com/goccy/go-json"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigDir   = filepath.Join(home, workspace.StateDirName)
	DefaultConfigPath  = filepath.Join(DefaultConfigDir, "config.json")
	DefaultLogFilePath = filepath.Join(DefaultConfigDir, "logs", "claude-sync.log")
	DefaultStateDir    = filepath.Join(DefaultConfigDir, "state")
	DefaultBackupDir   = filepath.Join(DefaultConfigDir, "backups")
	DefaultServerURL   = "https://api.claude.ai"
)

var (
	ErrNoProject   = errors.New("project id is required")
	ErrNoLocalDir  = errors.New("local directory is required")
	ErrNoServerURL = errors.New("server url is required")
)

type StateConfig struct {
	Backend string `json:"backend" mapstructure:"backend"`
}

type BackupConfig struct {
	Enabled        bool `json:"enabled" mapstructure:"enabled"`
	RetentionCount int  `json:"retention_count" mapstructure:"retention_count"`
}

type Config struct {
	ProjectID          string                 `json:"project_id" mapstructure:"project_id"`
	LocalDir           string                 `json:"local_dir" mapstructure:"local_dir"`
	ServerURL          string                 `json:"server_url" mapstructure:"server_url"`
	Token              string                 `json:"token,omitempty" mapstructure:"token"`
	StateDir           string                 `json:"state_dir" mapstructure:"state_dir"`
	BackupDir          string                 `json:"backup_dir" mapstructure:"backup_dir"`
	State              StateConfig            `json:"state" mapstructure:"state"`
	Direction          string                 `json:"direction" mapstructure:"direction"`
	DryRun             bool                   `json:"dry_run" mapstructure:"dry_run"`
	Force              bool                   `json:"force" mapstructure:"force"`
	Verbose            bool                   `json:"verbose" mapstructure:"verbose"`
	ConflictResolution string                 `json:"conflict_resolution" mapstructure:"conflict_resolution"`
	ExcludePatterns    []string               `json:"exclude_patterns,omitempty" mapstructure:"exclude_patterns"`
	Backup             BackupConfig           `json:"backup" mapstructure:"backup"`
	Validation         sync.ValidationOptions `json:"validation" mapstructure:"validation"`
	Path               string                 `json:"-" mapstructure:"-"`
}

// Default returns a config with every optional setting filled in
func Default() *Config {
	return &Config{
		ServerURL:          DefaultServerURL,
		StateDir:           DefaultStateDir,
		BackupDir:          DefaultBackupDir,
		State:              StateConfig{Backend: state.BackendJSON},
		Direction:          string(sync.DirectionBoth),
		ConflictResolution: string(sync.PolicyAsk),
		Backup:             BackupConfig{Enabled: true, RetentionCount: state.DefaultRetention},
		Validation:         sync.DefaultValidationOptions(),
		Path:               DefaultConfigPath,
	}
}

// Validate fills in defaults, resolves paths and rejects unknown settings
func (c *Config) Validate() error {
	var err error

	c.ProjectID = strings.TrimSpace(c.ProjectID)
	if c.ProjectID == "" {
		return ErrNoProject
	}

	if c.LocalDir == "" {
		return ErrNoLocalDir
	}
	if c.LocalDir, err = utils.ResolvePath(c.LocalDir); err != nil {
		return fmt.Errorf("local dir: %w", err)
	}

	c.ServerURL = strings.TrimRight(strings.TrimSpace(c.ServerURL), "/")
	if c.ServerURL == "" {
		return ErrNoServerURL
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("invalid server url %q", c.ServerURL)
	}

	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	if c.StateDir, err = utils.ResolvePath(c.StateDir); err != nil {
		return fmt.Errorf("state dir: %w", err)
	}

	if c.BackupDir == "" {
		c.BackupDir = DefaultBackupDir
	}
	if c.BackupDir, err = utils.ResolvePath(c.BackupDir); err != nil {
		return fmt.Errorf("backup dir: %w", err)
	}

	switch strings.ToLower(c.State.Backend) {
	case "":
		c.State.Backend = state.BackendJSON
	case state.BackendJSON, state.BackendSqlite:
		c.State.Backend = strings.ToLower(c.State.Backend)
	default:
		return fmt.Errorf("invalid state backend %q", c.State.Backend)
	}

	direction, err := sync.ParseDirection(c.Direction)
	if err != nil {
		return err
	}
	c.Direction = string(direction)

	policy, err := sync.ParsePolicy(c.ConflictResolution)
	if err != nil {
		return err
	}
	c.ConflictResolution = string(policy)

	for _, pattern := range c.ExcludePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	if c.Backup.RetentionCount < 0 {
		return fmt.Errorf("backup retention_count must not be negative, got %d", c.Backup.RetentionCount)
	}
	if c.Backup.RetentionCount == 0 {
		c.Backup.RetentionCount = state.DefaultRetention
	}

	if c.Validation.MinFreeBytes == 0 {
		c.Validation.MinFreeBytes = sync.DefaultMinFreeBytes
	}
	if c.Validation.MaxConflictCount < 0 {
		return fmt.Errorf("validation max_conflict_count must not be negative, got %d", c.Validation.MaxConflictCount)
	}
	if c.Validation.MaxConflictCount == 0 {
		c.Validation.MaxConflictCount = sync.DefaultMaxConflictCount
	}

	if c.Path == "" {
		c.Path = DefaultConfigPath
	}
	if c.Path, err = utils.ResolvePath(c.Path); err != nil {
		return fmt.Errorf("config path: %w", err)
	}

	return nil
}

// SyncOptions maps the config onto engine options
func (c *Config) SyncOptions() *sync.Options {
	opts := sync.DefaultOptions()
	opts.Direction = sync.Direction(c.Direction)
	opts.ConflictResolution = sync.Policy(c.ConflictResolution)
	opts.DryRun = c.DryRun
	opts.Force = c.Force
	opts.Verbose = c.Verbose
	opts.ExcludePatterns = c.ExcludePatterns
	opts.Validation = c.Validation
	return opts
}

// Save writes the config as indented JSON. The token is only readable by the owner.
func (c *Config) Save() error {
	if err := utils.EnsureParent(c.Path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.Path, data, 0o600)
}

// LoadFromFile reads a config on top of the defaults. It does not validate.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	cfg.Path = path
	return cfg, nil
}
