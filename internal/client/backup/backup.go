// Package backup keeps hash-verified copies of files before the sync engine overwrites or deletes them.
package backup

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/eric-downes/claude-sync/internal/client/state"
	"github.com/eric-downes/claude-sync/internal/utils"
	"github.com/google/uuid"
)

const (
	timeFormat  = "20060102150405"
	shortIDSize = 8
)

var (
	ErrIntegrity      = errors.New("backup: integrity check failed")
	ErrBackupNotFound = errors.New("backup: not found")
	ErrBackupMissing  = errors.New("backup: file missing")
	ErrSourceMissing  = errors.New("backup: source file missing")
)

type Config struct {
	Project string
	// Root is the local directory relative paths resolve against
	Root string
	// Dir holds the physical backup copies
	Dir       string
	Enabled   bool
	Retention int
}

// Result identifies a created backup. A zero Result means backups are disabled.
type Result struct {
	ID   string
	Path string
}

// Manager creates, restores and prunes backups for a single project.
type Manager struct {
	store state.Store
	cfg   Config

	mu     sync.Mutex
	pinned map[string]int

	now      func() time.Time
	hashFile func(path string) (string, error)
}

func NewManager(store state.Store, cfg Config) *Manager {
	if cfg.Retention <= 0 {
		cfg.Retention = state.DefaultRetention
	}
	return &Manager{
		store:    store,
		cfg:      cfg,
		pinned:   make(map[string]int),
		now:      time.Now,
		hashFile: utils.FileHash,
	}
}

func (m *Manager) Enabled() bool {
	return m.cfg.Enabled
}

func (m *Manager) Dir() string {
	return m.cfg.Dir
}

// CreateBackup copies the local file at relPath into the backup directory,
// verifies the copy by re-hashing it, then records it.
func (m *Manager) CreateBackup(relPath string, reason state.BackupReason) (*Result, error) {
	if !m.cfg.Enabled {
		return &Result{}, nil
	}

	src := m.absPath(relPath)
	srcHash, err := m.hashFile(src)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSourceMissing, relPath)
	} else if err != nil {
		return nil, fmt.Errorf("hash %s: %w", relPath, err)
	}

	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", relPath, err)
	}
	defer f.Close()

	return m.record(relPath, f, srcHash, reason)
}

// CreateBackupFromReader records r as a backup of relPath. Used for content that
// only exists remotely, such as a remote copy about to be deleted.
func (m *Manager) CreateBackupFromReader(relPath string, r io.Reader, reason state.BackupReason) (*Result, error) {
	if !m.cfg.Enabled {
		return &Result{}, nil
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("read content for %s: %w", relPath, err)
	}
	return m.record(relPath, bytes.NewReader(buf.Bytes()), utils.BytesHash(buf.Bytes()), reason)
}

func (m *Manager) record(relPath string, r io.Reader, expectedHash string, reason state.BackupReason) (*Result, error) {
	now := m.now()
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:shortIDSize]
	dst := filepath.Join(m.cfg.Dir, fmt.Sprintf("%s-%s-%s", now.Format(timeFormat), id, filepath.Base(filepath.FromSlash(relPath))))

	size, err := utils.CopyReader(r, dst)
	if err != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("copy %s to backup: %w", relPath, err)
	}

	copyHash, err := m.hashFile(dst)
	if err != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("hash backup of %s: %w", relPath, err)
	}
	if copyHash != expectedHash {
		os.Remove(dst)
		slog.Error("backup integrity", "path", relPath, "expected", expectedHash, "got", copyHash)
		return nil, fmt.Errorf("%w: %s", ErrIntegrity, relPath)
	}

	entry := &state.BackupEntry{
		ID:         id,
		Project:    m.cfg.Project,
		Path:       relPath,
		BackupPath: dst,
		Hash:       copyHash,
		Size:       size,
		Reason:     reason,
		CreatedAt:  now,
	}
	if err := m.store.SaveBackup(entry); err != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("record backup of %s: %w", relPath, err)
	}

	slog.Info("backup", "op", "create", "path", relPath, "id", id, "reason", reason, "size", humanize.Bytes(uint64(size)))
	return &Result{ID: id, Path: dst}, nil
}

// RestoreFromBackup writes the backup content to targetPath, or to the original
// location when targetPath is empty. A differing file already at the target is
// itself backed up first.
func (m *Manager) RestoreFromBackup(id, targetPath string) error {
	entry, err := m.store.GetBackup(m.cfg.Project, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}

	m.pin(id)
	defer m.unpin(id)

	data, err := os.ReadFile(entry.BackupPath)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("backup record is stale, file is gone", "id", id, "backupPath", entry.BackupPath)
		return fmt.Errorf("%w: %s", ErrBackupMissing, entry.BackupPath)
	} else if err != nil {
		return fmt.Errorf("read backup %s: %w", id, err)
	}
	if got := utils.BytesHash(data); got != entry.Hash {
		return fmt.Errorf("%w: backup %s changed on disk", ErrIntegrity, id)
	}

	target := targetPath
	if target == "" {
		target = m.absPath(entry.Path)
	}

	if current, err := m.hashFile(target); err == nil && current != entry.Hash && m.cfg.Enabled {
		if rel, ok := m.relPath(target); ok {
			if _, err := m.CreateBackup(rel, state.ReasonManual); err != nil {
				return fmt.Errorf("preserve current %s before restore: %w", rel, err)
			}
		}
	}

	if err := utils.WriteFileAtomic(target, data, entry.Hash); err != nil {
		return fmt.Errorf("restore %s: %w", id, err)
	}

	slog.Info("backup", "op", "restore", "id", id, "path", entry.Path, "target", target)
	return nil
}

// ListBackups returns backups newest first, optionally only those of relPath.
func (m *Manager) ListBackups(relPath string) ([]*state.BackupEntry, error) {
	all, err := m.store.ListBackups(m.cfg.Project)
	if err != nil {
		return nil, err
	}
	if relPath == "" {
		return all, nil
	}

	var out []*state.BackupEntry
	for _, b := range all {
		if b.Path == relPath {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *Manager) DeleteBackup(id string) error {
	entry, err := m.store.GetBackup(m.cfg.Project, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}
	if m.isPinned(id) {
		return fmt.Errorf("backup %s is being restored", id)
	}

	if err := os.Remove(entry.BackupPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove backup file %s: %w", entry.BackupPath, err)
	}
	return m.store.DeleteBackup(m.cfg.Project, id)
}

// CleanupOldBackups applies the retention policy and returns how many backups were removed.
func (m *Manager) CleanupOldBackups() (int, error) {
	removed, err := m.store.CleanupOldBackups(m.cfg.Project, m.cfg.Retention, m.pinnedIDs()...)
	if err != nil {
		return 0, err
	}

	for _, b := range removed {
		if err := os.Remove(b.BackupPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("backup file not removed", "id", b.ID, "backupPath", b.BackupPath, "error", err)
		}
	}
	if len(removed) > 0 {
		slog.Info("backup", "op", "cleanup", "removed", len(removed), "retention", m.cfg.Retention)
	}
	return len(removed), nil
}

// HasFileChangedSinceBackup reports whether the local file differs from its newest backup.
// A file that was never backed up counts as changed.
func (m *Manager) HasFileChangedSinceBackup(relPath string) (bool, error) {
	backups, err := m.ListBackups(relPath)
	if err != nil {
		return false, err
	}
	if len(backups) == 0 {
		return true, nil
	}

	current, err := m.hashFile(m.absPath(relPath))
	if err != nil {
		return false, fmt.Errorf("hash %s: %w", relPath, err)
	}
	return current != backups[0].Hash, nil
}

// CreateBackupIfChanged skips the copy when the newest backup already holds the current content.
func (m *Manager) CreateBackupIfChanged(relPath string, reason state.BackupReason) (*Result, error) {
	if !m.cfg.Enabled {
		return &Result{}, nil
	}

	changed, err := m.HasFileChangedSinceBackup(relPath)
	if err != nil {
		return nil, err
	}
	if !changed {
		backups, err := m.ListBackups(relPath)
		if err != nil {
			return nil, err
		}
		return &Result{ID: backups[0].ID, Path: backups[0].BackupPath}, nil
	}
	return m.CreateBackup(relPath, reason)
}

func (m *Manager) absPath(relPath string) string {
	return filepath.Join(m.cfg.Root, filepath.FromSlash(relPath))
}

func (m *Manager) relPath(abs string) (string, bool) {
	rel, err := filepath.Rel(m.cfg.Root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return utils.NormRelPath(rel), true
}

func (m *Manager) pin(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinned[id]++
}

func (m *Manager) unpin(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pinned[id]--; m.pinned[id] <= 0 {
		delete(m.pinned, id)
	}
}

func (m *Manager) isPinned(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pinned[id] > 0
}

func (m *Manager) pinnedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.pinned))
	for id := range m.pinned {
		ids = append(ids, id)
	}
	return ids
}
