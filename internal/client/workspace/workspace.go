// Package workspace resolves the on-disk layout of a synced project and guards it with a lock.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/eric-downes/claude-sync/internal/utils"
	"github.com/gofrs/flock"
)

const (
	// StateDirName is the default state directory name; it is always excluded from scans
	StateDirName = ".claude-sync"
	locksDir     = "locks"
	lockSuffix   = ".lock"
)

var ErrProjectLocked = errors.New("project locked by another sync")

// Workspace ties a remote project to a local directory plus the places its state and backups live.
type Workspace struct {
	ProjectID string
	Root      string
	StateDir  string
	BackupDir string

	flock *flock.Flock
}

func New(projectID, localDir, stateDir, backupDir string) (*Workspace, error) {
	if projectID == "" {
		return nil, errors.New("project id is required")
	}

	root, err := utils.ResolvePath(localDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", localDir, err)
	}
	state, err := utils.ResolvePath(stateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", stateDir, err)
	}
	backups, err := utils.ResolvePath(backupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", backupDir, err)
	}

	lockPath := filepath.Join(state, locksDir, lockName(projectID))
	return &Workspace{
		ProjectID: projectID,
		Root:      root,
		StateDir:  state,
		BackupDir: filepath.Join(backups, utils.SafeName(projectID)),
		flock:     flock.New(lockPath),
	}, nil
}

// Setup creates the state and backup directories. The local root must already exist.
func (w *Workspace) Setup() error {
	for _, dir := range []string{w.StateDir, w.BackupDir, filepath.Dir(w.flock.Path())} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	slog.Debug("workspace", "project", w.ProjectID, "root", w.Root, "state", w.StateDir, "backups", w.BackupDir)
	return nil
}

// Lock takes the per-project advisory lock without blocking
func (w *Workspace) Lock() error {
	if err := utils.EnsureParent(w.flock.Path()); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock project %s: %w", w.ProjectID, err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrProjectLocked, w.ProjectID)
	}
	return nil
}

func (w *Workspace) Unlock() error {
	// a lock we never took is not ours to remove
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock project %s: %w", w.ProjectID, err)
	}
	return os.Remove(w.flock.Path())
}

func (w *Workspace) LockPath() string {
	return w.flock.Path()
}

// AbsPath maps a forward-slash relative path onto the local root
func (w *Workspace) AbsPath(relPath string) string {
	return filepath.Join(w.Root, filepath.FromSlash(relPath))
}

// RelPath maps an absolute path under the local root to its state key
func (w *Workspace) RelPath(absPath string) (string, error) {
	rel, err := filepath.Rel(w.Root, absPath)
	if err != nil {
		return "", err
	}
	rel = NormPath(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", absPath, w.Root)
	}
	return rel, nil
}

// NormPath cleans a path, converts backslashes to slashes and trims leading slashes
func NormPath(p string) string {
	p = filepath.Clean(p)
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.TrimLeft(p, "/")
}

func lockName(projectID string) string {
	return utils.SafeName(projectID) + lockSuffix
}
