// Package state persists per-project sync state: one entry per synced path plus backup records.
package state

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const (
	BackendJSON   = "json"
	BackendSqlite = "sqlite"

	DefaultRetention = 5
)

var ErrInvalidEntry = errors.New("state: entry requires project and path")

// Store is the persistence contract used by the sync engine and the backup manager.
// Get and GetBackup return (nil, nil) for unknown keys.
type Store interface {
	Get(project, path string) (*Entry, error)
	Save(entry *Entry) error
	Delete(project, path string) error
	List(project string) ([]*Entry, error)

	GetBackup(project, id string) (*BackupEntry, error)
	SaveBackup(entry *BackupEntry) error
	DeleteBackup(project, id string) error
	ListBackups(project string) ([]*BackupEntry, error)

	// CleanupOldBackups keeps the newest retain records per original path, never
	// removing pinned ids, and returns the removed records.
	CleanupOldBackups(project string, retain int, pinned ...string) ([]*BackupEntry, error)

	Close() error
}

// Open returns the store for the configured backend rooted at dir
func Open(backend, dir string) (Store, error) {
	switch strings.ToLower(backend) {
	case "", BackendJSON:
		return NewFileStore(dir)
	case BackendSqlite:
		return NewSqliteStore(dir)
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}

// selectExpired picks the records beyond retain for every original path, newest first.
func selectExpired(backups []*BackupEntry, retain int, pinned []string) []*BackupEntry {
	if retain < 0 {
		retain = 0
	}

	byPath := make(map[string][]*BackupEntry)
	for _, b := range backups {
		byPath[b.Path] = append(byPath[b.Path], b)
	}

	var expired []*BackupEntry
	for _, group := range byPath {
		slices.SortStableFunc(group, func(a, b *BackupEntry) int {
			// newest first, id as a tiebreaker for identical timestamps
			if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
				return c
			}
			return strings.Compare(b.ID, a.ID)
		})
		for _, b := range group[min(retain, len(group)):] {
			if slices.Contains(pinned, b.ID) {
				continue
			}
			expired = append(expired, b)
		}
	}

	slices.SortFunc(expired, func(a, b *BackupEntry) int { return strings.Compare(a.ID, b.ID) })
	return expired
}

func validateEntry(e *Entry) error {
	if e == nil || e.Project == "" || e.Path == "" {
		return ErrInvalidEntry
	}
	return nil
}

func validateBackup(b *BackupEntry) error {
	if b == nil || b.Project == "" || b.ID == "" {
		return errors.New("state: backup requires project and id")
	}
	return nil
}
