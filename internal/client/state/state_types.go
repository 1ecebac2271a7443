package state

import (
	"time"
)

// ConflictState is the divergence recorded for an entry at its last sync.
type ConflictState string

const (
	ConflictNone         ConflictState = "none"
	ConflictLocalNewer   ConflictState = "local_newer"
	ConflictRemoteNewer  ConflictState = "remote_newer"
	ConflictBothModified ConflictState = "both_modified"
)

// Direction of the last successful operation on an entry
type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

// BackupReason records why a backup was taken
type BackupReason string

const (
	ReasonSync   BackupReason = "sync"
	ReasonDelete BackupReason = "delete"
	ReasonManual BackupReason = "manual"
)

// Entry is the last synced state of one path in one project.
// An entry exists only once the path has completed a sync; deletions tombstone it.
type Entry struct {
	Project        string        `json:"project"`
	Path           string        `json:"path"`
	LocalHash      string        `json:"local_hash"`
	RemoteHash     string        `json:"remote_hash,omitempty"`
	RemoteID       string        `json:"remote_id,omitempty"`
	LocalModified  time.Time     `json:"local_modified"`
	RemoteModified time.Time     `json:"remote_modified"`
	LastSynced     time.Time     `json:"last_synced"`
	LastDirection  Direction     `json:"last_direction,omitempty"`
	ConflictState  ConflictState `json:"conflict_state"`
	Size           int64         `json:"size"`
	Deleted        bool          `json:"deleted"`
}

// Clone returns a copy safe to mutate
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	cp := *e
	return &cp
}

// Tombstone marks the entry deleted as of now
func (e *Entry) Tombstone(now time.Time) {
	e.Deleted = true
	e.LastSynced = now
	e.ConflictState = ConflictNone
}

// BackupEntry describes an immutable, hash-verified copy of a file.
type BackupEntry struct {
	ID         string       `json:"id"`
	Project    string       `json:"project"`
	Path       string       `json:"path"`
	BackupPath string       `json:"backup_path"`
	Hash       string       `json:"hash"`
	Size       int64        `json:"size"`
	Reason     BackupReason `json:"reason"`
	CreatedAt  time.Time    `json:"created_at"`
}

func key(project, path string) string {
	return project + ":" + path
}
