package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/eric-downes/claude-sync/internal/db"
	"github.com/jmoiron/sqlx"
)

const sqliteFile = "state.db"

// fixed width so TEXT ordering matches time ordering
const storedTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sync_state (
    project TEXT NOT NULL,
    path TEXT NOT NULL,
    local_hash TEXT NOT NULL,
    remote_hash TEXT NOT NULL DEFAULT '',
    remote_id TEXT NOT NULL DEFAULT '',
    local_modified TEXT NOT NULL, -- fixed-width UTC RFC3339
    remote_modified TEXT NOT NULL,
    last_synced TEXT NOT NULL,
    last_direction TEXT NOT NULL DEFAULT '',
    conflict_state TEXT NOT NULL DEFAULT 'none',
    size INTEGER NOT NULL DEFAULT 0,
    deleted INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (project, path)
);

CREATE TABLE IF NOT EXISTS sync_backups (
    project TEXT NOT NULL,
    id TEXT NOT NULL,
    path TEXT NOT NULL,
    backup_path TEXT NOT NULL,
    hash TEXT NOT NULL,
    size INTEGER NOT NULL DEFAULT 0,
    reason TEXT NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (project, id)
);

CREATE INDEX IF NOT EXISTS idx_backups_path ON sync_backups(project, path);
`

// timestamps are stored as TEXT so both drivers round-trip them identically
type entryRow struct {
	Project        string `db:"project"`
	Path           string `db:"path"`
	LocalHash      string `db:"local_hash"`
	RemoteHash     string `db:"remote_hash"`
	RemoteID       string `db:"remote_id"`
	LocalModified  string `db:"local_modified"`
	RemoteModified string `db:"remote_modified"`
	LastSynced     string `db:"last_synced"`
	LastDirection  string `db:"last_direction"`
	ConflictState  string `db:"conflict_state"`
	Size           int64  `db:"size"`
	Deleted        bool   `db:"deleted"`
}

type backupRow struct {
	Project    string `db:"project"`
	ID         string `db:"id"`
	Path       string `db:"path"`
	BackupPath string `db:"backup_path"`
	Hash       string `db:"hash"`
	Size       int64  `db:"size"`
	Reason     string `db:"reason"`
	CreatedAt  string `db:"created_at"`
}

// SqliteStore keeps state for every project in a single SQLite database.
type SqliteStore struct {
	db     *sqlx.DB
	dbPath string
}

var _ Store = (*SqliteStore)(nil)

func NewSqliteStore(dir string) (*SqliteStore, error) {
	dbPath := filepath.Join(dir, sqliteFile)

	conn, err := db.NewSqliteDB(db.WithPath(dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize state schema: %w", err)
	}

	return &SqliteStore{db: conn, dbPath: dbPath}, nil
}

func (s *SqliteStore) Get(project, path string) (*Entry, error) {
	var row entryRow
	err := s.db.Get(&row, "SELECT * FROM sync_state WHERE project = ? AND path = ?", project, path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("query state for %s: %w", path, err)
	}
	return row.toEntry()
}

func (s *SqliteStore) Save(entry *Entry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}

	query := `INSERT OR REPLACE INTO sync_state
		(project, path, local_hash, remote_hash, remote_id, local_modified, remote_modified, last_synced, last_direction, conflict_state, size, deleted)
		VALUES (:project, :path, :local_hash, :remote_hash, :remote_id, :local_modified, :remote_modified, :last_synced, :last_direction, :conflict_state, :size, :deleted)`
	if _, err := s.db.NamedExec(query, newEntryRow(entry)); err != nil {
		return fmt.Errorf("save state for %s: %w", entry.Path, err)
	}
	return nil
}

func (s *SqliteStore) Delete(project, path string) error {
	if _, err := s.db.Exec("DELETE FROM sync_state WHERE project = ? AND path = ?", project, path); err != nil {
		return fmt.Errorf("delete state for %s: %w", path, err)
	}
	return nil
}

func (s *SqliteStore) List(project string) ([]*Entry, error) {
	var rows []entryRow
	if err := s.db.Select(&rows, "SELECT * FROM sync_state WHERE project = ? ORDER BY path", project); err != nil {
		return nil, fmt.Errorf("list state: %w", err)
	}

	out := make([]*Entry, 0, len(rows))
	for _, row := range rows {
		e, err := row.toEntry()
		if err != nil {
			slog.Warn("state row skipped", "project", project, "path", row.Path, "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *SqliteStore) GetBackup(project, id string) (*BackupEntry, error) {
	var row backupRow
	err := s.db.Get(&row, "SELECT * FROM sync_backups WHERE project = ? AND id = ?", project, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("query backup %s: %w", id, err)
	}
	return row.toBackup()
}

func (s *SqliteStore) SaveBackup(entry *BackupEntry) error {
	if err := validateBackup(entry); err != nil {
		return err
	}

	query := `INSERT OR REPLACE INTO sync_backups (project, id, path, backup_path, hash, size, reason, created_at)
		VALUES (:project, :id, :path, :backup_path, :hash, :size, :reason, :created_at)`
	if _, err := s.db.NamedExec(query, newBackupRow(entry)); err != nil {
		return fmt.Errorf("save backup %s: %w", entry.ID, err)
	}
	return nil
}

func (s *SqliteStore) DeleteBackup(project, id string) error {
	if _, err := s.db.Exec("DELETE FROM sync_backups WHERE project = ? AND id = ?", project, id); err != nil {
		return fmt.Errorf("delete backup %s: %w", id, err)
	}
	return nil
}

func (s *SqliteStore) ListBackups(project string) ([]*BackupEntry, error) {
	var rows []backupRow
	if err := s.db.Select(&rows, "SELECT * FROM sync_backups WHERE project = ? ORDER BY created_at DESC, id ASC", project); err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	out := make([]*BackupEntry, 0, len(rows))
	for _, row := range rows {
		b, err := row.toBackup()
		if err != nil {
			slog.Warn("backup row skipped", "project", project, "id", row.ID, "error", err)
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *SqliteStore) CleanupOldBackups(project string, retain int, pinned ...string) ([]*BackupEntry, error) {
	backups, err := s.ListBackups(project)
	if err != nil {
		return nil, err
	}

	expired := selectExpired(backups, retain, pinned)
	if len(expired) == 0 {
		return nil, nil
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("begin cleanup: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, b := range expired {
		if _, err := tx.Exec("DELETE FROM sync_backups WHERE project = ? AND id = ?", project, b.ID); err != nil {
			return nil, fmt.Errorf("delete backup %s: %w", b.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cleanup: %w", err)
	}
	return expired, nil
}

func (s *SqliteStore) Close() error {
	if err := s.db.Close(); err != nil {
		slog.Error("state database close", "path", s.dbPath, "error", err)
		return err
	}
	return nil
}

func newEntryRow(e *Entry) *entryRow {
	return &entryRow{
		Project:        e.Project,
		Path:           e.Path,
		LocalHash:      e.LocalHash,
		RemoteHash:     e.RemoteHash,
		RemoteID:       e.RemoteID,
		LocalModified:  formatTime(e.LocalModified),
		RemoteModified: formatTime(e.RemoteModified),
		LastSynced:     formatTime(e.LastSynced),
		LastDirection:  string(e.LastDirection),
		ConflictState:  string(e.ConflictState),
		Size:           e.Size,
		Deleted:        e.Deleted,
	}
}

func (r *entryRow) toEntry() (*Entry, error) {
	localModified, err := parseTime(r.LocalModified)
	if err != nil {
		return nil, err
	}
	remoteModified, err := parseTime(r.RemoteModified)
	if err != nil {
		return nil, err
	}
	lastSynced, err := parseTime(r.LastSynced)
	if err != nil {
		return nil, err
	}

	return &Entry{
		Project:        r.Project,
		Path:           r.Path,
		LocalHash:      r.LocalHash,
		RemoteHash:     r.RemoteHash,
		RemoteID:       r.RemoteID,
		LocalModified:  localModified,
		RemoteModified: remoteModified,
		LastSynced:     lastSynced,
		LastDirection:  Direction(r.LastDirection),
		ConflictState:  ConflictState(r.ConflictState),
		Size:           r.Size,
		Deleted:        r.Deleted,
	}, nil
}

func newBackupRow(b *BackupEntry) *backupRow {
	return &backupRow{
		Project:    b.Project,
		ID:         b.ID,
		Path:       b.Path,
		BackupPath: b.BackupPath,
		Hash:       b.Hash,
		Size:       b.Size,
		Reason:     string(b.Reason),
		CreatedAt:  formatTime(b.CreatedAt),
	}
}

func (r *backupRow) toBackup() (*BackupEntry, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &BackupEntry{
		ID:         r.ID,
		Project:    r.Project,
		Path:       r.Path,
		BackupPath: r.BackupPath,
		Hash:       r.Hash,
		Size:       r.Size,
		Reason:     BackupReason(r.Reason),
		CreatedAt:  created,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(storedTimeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(storedTimeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}
