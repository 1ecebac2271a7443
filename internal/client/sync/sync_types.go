package sync

import (
	"fmt"
	"strings"
)

// Direction restricts which side of the mirror a run may change.
type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
	DirectionBoth     Direction = "both"
)

func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	if d == "" {
		return DirectionBoth, nil
	}
	if !d.IsValid() {
		return "", fmt.Errorf("invalid direction %q: want upload, download or both", s)
	}
	return d, nil
}

func (d Direction) IsValid() bool {
	switch d {
	case DirectionUpload, DirectionDownload, DirectionBoth:
		return true
	}
	return false
}

// Uploads reports whether local changes may be pushed to the remote
func (d Direction) Uploads() bool {
	return d == DirectionUpload || d == DirectionBoth
}

// Downloads reports whether remote changes may be written locally
func (d Direction) Downloads() bool {
	return d == DirectionDownload || d == DirectionBoth
}

// Policy decides what happens to operations on a conflicting path.
type Policy string

const (
	// PolicyAsk is accepted for compatibility but never prompts: it behaves like
	// PolicySkip and adds a warning naming each conflicting file.
	PolicyAsk            Policy = "ask"
	PolicySkip           Policy = "skip"
	PolicyLocalWins      Policy = "local_wins"
	PolicyRemoteWins     Policy = "remote_wins"
	PolicyBackupAndMerge Policy = "backup_and_merge"
)

var policies = []Policy{PolicyAsk, PolicySkip, PolicyLocalWins, PolicyRemoteWins, PolicyBackupAndMerge}

func Policies() []Policy {
	return append([]Policy(nil), policies...)
}

func ParsePolicy(s string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PolicyAsk, nil
	}
	if !p.IsValid() {
		return "", fmt.Errorf("invalid conflict resolution %q", s)
	}
	return p, nil
}

func (p Policy) IsValid() bool {
	for _, known := range policies {
		if p == known {
			return true
		}
	}
	return false
}

func (p Policy) Description() string {
	switch p {
	case PolicyAsk:
		return "leave conflicting files untouched and report them (non-interactive)"
	case PolicySkip:
		return "leave conflicting files untouched"
	case PolicyLocalWins:
		return "keep the local copy and overwrite the remote"
	case PolicyRemoteWins:
		return "keep the remote copy and overwrite the local file"
	case PolicyBackupAndMerge:
		return "back up the local copy, push it, then refresh from the remote"
	}
	return "unknown policy"
}

// ConflictType classifies how a path diverged since its last sync.
type ConflictType string

const (
	ConflictLocalNewer    ConflictType = "local_newer"
	ConflictRemoteNewer   ConflictType = "remote_newer"
	ConflictBothModified  ConflictType = "both_modified"
	ConflictLocalDeleted  ConflictType = "local_deleted"
	ConflictRemoteDeleted ConflictType = "remote_deleted"
)

// NeedsResolution is false for one-way changes that are safe to apply.
func (c ConflictType) NeedsResolution() bool {
	switch c {
	case ConflictBothModified, ConflictLocalDeleted, ConflictRemoteDeleted:
		return true
	}
	return false
}
