package sync

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/eric-downes/claude-sync/internal/client/state"
	"github.com/eric-downes/claude-sync/internal/kb"
	"github.com/eric-downes/claude-sync/internal/utils"
)

// Snapshot is everything a run knows before it changes anything: the local
// tree, the remote listing and the stored state, all keyed by local relative path.
// LocalErr or RemoteErr is set when that side could not be enumerated.
type Snapshot struct {
	Project   string
	Local     map[string]*LocalFile
	Remote    map[string]*kb.KnowledgeFile
	Entries   map[string]*state.Entry
	LocalErr  error
	RemoteErr error
	Warnings  []string
	TakenAt   time.Time
}

// Paths is the sorted union of every path seen on any side
func (s *Snapshot) Paths() []string {
	paths := mapset.NewThreadUnsafeSet[string]()
	for p := range s.Local {
		paths.Add(p)
	}
	for p := range s.Remote {
		paths.Add(p)
	}
	for p := range s.Entries {
		paths.Add(p)
	}

	out := paths.ToSlice()
	slices.Sort(out)
	return out
}

// Tracked returns the live (non-tombstoned) entry for path, if any
func (s *Snapshot) Tracked(path string) *state.Entry {
	if e, ok := s.Entries[path]; ok && !e.Deleted {
		return e
	}
	return nil
}

// deletedLocally returns the tombstone for path when the remote copy still listed
// there is the one this side deleted: the same remote file, or the content last
// synced when the deletion started locally.
func (s *Snapshot) deletedLocally(path string) *state.Entry {
	e, ok := s.Entries[path]
	r := s.Remote[path]
	if !ok || !e.Deleted || r == nil || s.Local[path] != nil {
		return nil
	}
	if e.RemoteID != "" && r.ID == e.RemoteID {
		return e
	}
	if e.LastDirection == state.DirectionUpload {
		if h := r.ContentHash(); h != "" && h == e.RemoteHash {
			return e
		}
	}
	return nil
}

func takeSnapshot(ctx context.Context, project string, scanner *LocalScanner, client kb.Client, store state.Store) (*Snapshot, error) {
	snap := &Snapshot{
		Project: project,
		Local:   map[string]*LocalFile{},
		Remote:  map[string]*kb.KnowledgeFile{},
		Entries: map[string]*state.Entry{},
		TakenAt: time.Now(),
	}

	entries, err := store.List(project)
	if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}
	for _, e := range entries {
		snap.Entries[e.Path] = e
	}

	local, err := scanner.Scan(ctx)
	if err != nil {
		snap.LocalErr = err
	} else {
		snap.Local = local
		snap.Warnings = append(snap.Warnings, unportableNames(local)...)
	}

	remote, err := client.ListKnowledgeFiles(ctx, project)
	if err != nil {
		snap.RemoteErr = fmt.Errorf("list remote files: %w", err)
	} else {
		var warnings []string
		snap.Remote, warnings = indexRemote(remote, snap.Entries, snap.Local)
		snap.Warnings = append(snap.Warnings, warnings...)
	}

	slog.Debug("snapshot", "project", project, "local", len(snap.Local), "remote", len(snap.Remote), "tracked", len(snap.Entries))
	return snap, nil
}

// indexRemote keys remote files by local path. A remote file linked to a state entry
// by its id keeps that entry's path, and one named exactly like a local file keeps
// that name; any other file is placed at its sanitized name. When several remote
// files land on the same path the most recently modified one is kept.
func indexRemote(files []*kb.KnowledgeFile, entries map[string]*state.Entry, local map[string]*LocalFile) (map[string]*kb.KnowledgeFile, []string) {
	linked := make(map[string]*state.Entry, len(entries))
	for _, e := range entries {
		if e.RemoteID == "" {
			continue
		}
		// a live entry owns its id over a tombstone, then the latest tombstone wins
		if prev, ok := linked[e.RemoteID]; ok {
			if !prev.Deleted && e.Deleted {
				continue
			}
			if prev.Deleted == e.Deleted && (prev.LastSynced.After(e.LastSynced) || (prev.LastSynced.Equal(e.LastSynced) && prev.Path < e.Path)) {
				continue
			}
		}
		linked[e.RemoteID] = e
	}

	out := make(map[string]*kb.KnowledgeFile, len(files))
	var warnings []string

	for _, f := range files {
		rel, err := utils.SanitizeRelPath(f.Path)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("remote file %q skipped: %v", f.Path, err))
			continue
		}
		if e, ok := linked[f.ID]; ok {
			rel = e.Path
		} else if _, ok := local[f.Path]; ok {
			rel = f.Path
		}

		prev, dup := out[rel]
		if !dup {
			out[rel] = f
			continue
		}

		keep, drop := prev, f
		if f.ModifiedAt.After(prev.ModifiedAt) || (f.ModifiedAt.Equal(prev.ModifiedAt) && strings.Compare(f.ID, prev.ID) > 0) {
			keep, drop = f, prev
		}
		out[rel] = keep
		warnings = append(warnings, fmt.Sprintf("remote files %s and %s both map to %s; using %s", keep.ID, drop.ID, rel, keep.ID))
	}
	return out, warnings
}

// unportableNames warns about local files whose names the remote-to-local mapping
// rewrites. They sync under their own name, but a fresh checkout would rename them.
func unportableNames(local map[string]*LocalFile) []string {
	var warnings []string
	for p := range local {
		rel, err := utils.SanitizeRelPath(p)
		switch {
		case err != nil:
			warnings = append(warnings, fmt.Sprintf("local file %q has a name that cannot be restored from the remote: %v", p, err))
		case rel != p:
			warnings = append(warnings, fmt.Sprintf("local file %q would be restored from the remote as %q", p, rel))
		}
	}
	slices.Sort(warnings)
	return warnings
}

// localChanged is true when the local copy differs from what was last synced
func localChanged(e *state.Entry, l *LocalFile) bool {
	if e == nil || e.Deleted {
		return true
	}
	return l.Hash != e.LocalHash
}

// remoteChanged compares content hashes when both are known and falls back to
// the remote modification time against the last sync otherwise.
func remoteChanged(e *state.Entry, r *kb.KnowledgeFile) bool {
	if e == nil || e.Deleted {
		return true
	}
	if h := r.ContentHash(); h != "" && e.RemoteHash != "" {
		return h != e.RemoteHash
	}
	return r.ModifiedAt.After(e.LastSynced)
}

// sameContent is true only when both hashes are known and equal
func sameContent(l *LocalFile, r *kb.KnowledgeFile) bool {
	h := r.ContentHash()
	return h != "" && h == l.Hash
}
