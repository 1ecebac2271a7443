package sync

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/eric-downes/claude-sync/internal/client/state"
)

// PathStatus is the recorded state of one tracked path
type PathStatus struct {
	Path          string              `json:"path" yaml:"path"`
	Size          int64               `json:"size" yaml:"size"`
	LastSynced    time.Time           `json:"lastSynced" yaml:"lastSynced"`
	LastDirection state.Direction     `json:"lastDirection,omitempty" yaml:"lastDirection,omitempty"`
	ConflictState state.ConflictState `json:"conflictState" yaml:"conflictState"`
	Deleted       bool                `json:"deleted" yaml:"deleted"`
}

// StatusReport summarizes a project's sync state without touching either side.
type StatusReport struct {
	Project     string       `json:"project" yaml:"project"`
	LocalDir    string       `json:"localDir" yaml:"localDir"`
	Tracked     int          `json:"tracked" yaml:"tracked"`
	Tombstoned  int          `json:"tombstoned" yaml:"tombstoned"`
	TotalSize   int64        `json:"totalSize" yaml:"totalSize"`
	Backups     int          `json:"backups" yaml:"backups"`
	BackupSize  int64        `json:"backupSize" yaml:"backupSize"`
	LastSync    time.Time    `json:"lastSync,omitempty" yaml:"lastSync,omitempty"`
	Paths       []PathStatus `json:"paths,omitempty" yaml:"paths,omitempty"`
	GeneratedAt time.Time    `json:"generatedAt" yaml:"generatedAt"`
}

func (s *StatusReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "project %s (%s): %d tracked, %d deleted, %d backups", s.Project, s.LocalDir, s.Tracked, s.Tombstoned, s.Backups)
	if !s.LastSync.IsZero() {
		fmt.Fprintf(&b, ", last sync %s", s.LastSync.Format(time.RFC3339))
	}
	return b.String()
}

// Status reads the stored state of the project. withPaths includes every entry.
func (se *SyncEngine) Status(ctx context.Context, withPaths bool) (*StatusReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := se.store.List(se.workspace.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}
	backups, err := se.store.ListBackups(se.workspace.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load backups: %w", err)
	}

	report := &StatusReport{
		Project:     se.workspace.ProjectID,
		LocalDir:    se.workspace.Root,
		Backups:     len(backups),
		GeneratedAt: se.now(),
	}

	for _, e := range entries {
		if e.Deleted {
			report.Tombstoned++
		} else {
			report.Tracked++
			report.TotalSize += e.Size
		}
		if e.LastSynced.After(report.LastSync) {
			report.LastSync = e.LastSynced
		}
		if withPaths {
			report.Paths = append(report.Paths, PathStatus{
				Path:          e.Path,
				Size:          e.Size,
				LastSynced:    e.LastSynced,
				LastDirection: e.LastDirection,
				ConflictState: e.ConflictState,
				Deleted:       e.Deleted,
			})
		}
	}
	for _, b := range backups {
		report.BackupSize += b.Size
	}

	slices.SortFunc(report.Paths, func(a, b PathStatus) int { return strings.Compare(a.Path, b.Path) })
	return report, nil
}
