package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/eric-downes/claude-sync/internal/client/backup"
	"github.com/eric-downes/claude-sync/internal/client/config"
	"github.com/eric-downes/claude-sync/internal/client/state"
	"github.com/eric-downes/claude-sync/internal/client/sync"
	"github.com/eric-downes/claude-sync/internal/client/workspace"
	"github.com/eric-downes/claude-sync/internal/kb"
	"github.com/eric-downes/claude-sync/internal/kbsdk"
)

// Client owns everything a sync run needs for one configured project.
type Client struct {
	config    *config.Config
	remote    kb.Client
	store     state.Store
	workspace *workspace.Workspace
	backups   *backup.Manager
	engine    *sync.SyncEngine
}

// New builds a client from a validated config. A nil remote selects the HTTP client.
func New(cfg *config.Config, remote kb.Client) (*Client, error) {
	if remote == nil {
		sdk, err := kbsdk.New(&kbsdk.Config{
			BaseURL: cfg.ServerURL,
			Token:   cfg.Token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create sdk: %w", err)
		}
		remote = sdk
	}

	ws, err := workspace.New(cfg.ProjectID, cfg.LocalDir, cfg.StateDir, cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	if err := ws.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup workspace: %w", err)
	}

	store, err := state.Open(cfg.State.Backend, ws.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	backups := backup.NewManager(store, backup.Config{
		Project:   cfg.ProjectID,
		Root:      ws.Root,
		Dir:       ws.BackupDir,
		Enabled:   cfg.Backup.Enabled,
		Retention: cfg.Backup.RetentionCount,
	})

	engine, err := sync.NewSyncEngine(remote, store, ws, backups, cfg.SyncOptions())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create sync engine: %w", err)
	}

	return &Client{
		config:    cfg,
		remote:    remote,
		store:     store,
		workspace: ws,
		backups:   backups,
		engine:    engine,
	}, nil
}

func (c *Client) Sync(ctx context.Context, onProgress func(sync.Progress)) (*sync.SyncResult, error) {
	slog.Info("claude-sync start",
		"project", c.config.ProjectID,
		"local", c.workspace.Root,
		"server", c.config.ServerURL,
		"direction", c.config.Direction,
		"conflict", c.config.ConflictResolution,
		"dryRun", c.config.DryRun,
	)
	if onProgress != nil {
		c.engine.SetProgress(onProgress)
	}
	return c.engine.Sync(ctx)
}

func (c *Client) Validate(ctx context.Context) (*sync.ValidationResult, error) {
	return c.engine.Validate(ctx)
}

func (c *Client) Status(ctx context.Context, withPaths bool) (*sync.StatusReport, error) {
	return c.engine.Status(ctx, withPaths)
}

// Projects lists the remote projects visible to the configured token
func (c *Client) Projects(ctx context.Context) ([]*kb.Project, error) {
	return c.remote.ListProjects(ctx)
}

func (c *Client) ListBackups(relPath string) ([]*state.BackupEntry, error) {
	return c.backups.ListBackups(relPath)
}

// RestoreBackup writes a backup to target, or over its original path when target is empty
func (c *Client) RestoreBackup(id, target string) (string, error) {
	entry, err := c.store.GetBackup(c.config.ProjectID, id)
	if err != nil {
		return "", err
	}
	if entry == nil {
		return "", fmt.Errorf("%w: %s", backup.ErrBackupNotFound, id)
	}
	if target == "" {
		target = c.workspace.AbsPath(entry.Path)
	}
	if err := c.backups.RestoreFromBackup(id, target); err != nil {
		return "", err
	}
	slog.Info("backup restored", "id", id, "path", entry.Path, "target", target)
	return target, nil
}

func (c *Client) CleanupBackups() (int, error) {
	return c.backups.CleanupOldBackups()
}

func (c *Client) Close() error {
	if err := c.store.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
