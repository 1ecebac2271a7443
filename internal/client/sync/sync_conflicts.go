package sync

import (
	"time"
)

// ConflictInfo describes one divergent path
type ConflictInfo struct {
	Path           string       `json:"path" yaml:"path"`
	Type           ConflictType `json:"type" yaml:"type"`
	LocalModified  time.Time    `json:"localModified,omitempty" yaml:"localModified,omitempty"`
	RemoteModified time.Time    `json:"remoteModified,omitempty" yaml:"remoteModified,omitempty"`
	LastSynced     time.Time    `json:"lastSynced,omitempty" yaml:"lastSynced,omitempty"`
	LocalHash      string       `json:"localHash,omitempty" yaml:"localHash,omitempty"`
	RemoteHash     string       `json:"remoteHash,omitempty" yaml:"remoteHash,omitempty"`
}

// ChangeStats counts every classified path, including the safe one-way changes
type ChangeStats struct {
	LocalFiles    int `json:"localFiles" yaml:"localFiles"`
	RemoteFiles   int `json:"remoteFiles" yaml:"remoteFiles"`
	TrackedFiles  int `json:"trackedFiles" yaml:"trackedFiles"`
	LocalNewer    int `json:"localNewer" yaml:"localNewer"`
	RemoteNewer   int `json:"remoteNewer" yaml:"remoteNewer"`
	BothModified  int `json:"bothModified" yaml:"bothModified"`
	LocalDeleted  int `json:"localDeleted" yaml:"localDeleted"`
	RemoteDeleted int `json:"remoteDeleted" yaml:"remoteDeleted"`
}

func (s *ChangeStats) add(t ConflictType) {
	switch t {
	case ConflictLocalNewer:
		s.LocalNewer++
	case ConflictRemoteNewer:
		s.RemoteNewer++
	case ConflictBothModified:
		s.BothModified++
	case ConflictLocalDeleted:
		s.LocalDeleted++
	case ConflictRemoteDeleted:
		s.RemoteDeleted++
	}
}

// Conflicts is the number of paths that need a policy decision
func (s *ChangeStats) Conflicts() int {
	return s.BothModified + s.LocalDeleted + s.RemoteDeleted
}

// classify returns the divergence of one path, or "" when the path is in sync
// or was deleted on the only side that had it.
func classify(snap *Snapshot, path string) ConflictType {
	l := snap.Local[path]
	r := snap.Remote[path]
	e := snap.Tracked(path)

	switch {
	case l != nil && r != nil:
		if e == nil {
			// present on both sides without history: equal content is simply in sync
			if sameContent(l, r) {
				return ""
			}
			return ConflictBothModified
		}
		lc, rc := localChanged(e, l), remoteChanged(e, r)
		switch {
		case lc && rc:
			return ConflictBothModified
		case lc:
			return ConflictLocalNewer
		case rc:
			return ConflictRemoteNewer
		}
		return ""

	case l == nil && r != nil:
		if e != nil || snap.deletedLocally(path) != nil {
			return ConflictLocalDeleted
		}
		return ConflictRemoteNewer

	case l != nil && r == nil:
		if e == nil {
			return ConflictLocalNewer
		}
		if localChanged(e, l) {
			return ConflictRemoteDeleted
		}
	}
	return ""
}

// DetectConflicts classifies every path in the snapshot. Only classifications that
// need a policy decision are returned as conflicts; the stats count all of them.
// Nothing is classified when either side could not be enumerated.
func DetectConflicts(snap *Snapshot) ([]*ConflictInfo, ChangeStats) {
	stats := ChangeStats{
		LocalFiles:  len(snap.Local),
		RemoteFiles: len(snap.Remote),
	}
	for _, e := range snap.Entries {
		if !e.Deleted {
			stats.TrackedFiles++
		}
	}

	if snap.LocalErr != nil || snap.RemoteErr != nil {
		return nil, stats
	}

	var conflicts []*ConflictInfo
	for _, path := range snap.Paths() {
		t := classify(snap, path)
		if t == "" {
			continue
		}
		stats.add(t)
		if !t.NeedsResolution() {
			continue
		}

		info := &ConflictInfo{Path: path, Type: t}
		if l := snap.Local[path]; l != nil {
			info.LocalModified = l.ModTime
			info.LocalHash = l.Hash
		}
		if r := snap.Remote[path]; r != nil {
			info.RemoteModified = r.ModifiedAt
			info.RemoteHash = r.ContentHash()
		}
		if e := snap.Tracked(path); e != nil {
			info.LastSynced = e.LastSynced
		} else if e := snap.deletedLocally(path); e != nil {
			info.LastSynced = e.LastSynced
		}
		conflicts = append(conflicts, info)
	}
	return conflicts, stats
}
