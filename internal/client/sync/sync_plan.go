package sync

import (
	"cmp"
	"slices"

	"github.com/eric-downes/claude-sync/internal/client/state"
)

// Plan is the raw set of operations a snapshot calls for, before any conflict policy.
type Plan struct {
	Operations      []Operation
	Reconciliations []*Reconciliation
}

// pathOps returns the operations planned for path
func (p *Plan) pathOps(path string) []Operation {
	var out []Operation
	for _, op := range p.Operations {
		if op.Path() == path {
			out = append(out, op)
		}
	}
	return out
}

func (p *Plan) reconcile(r *Reconciliation) {
	for _, existing := range p.Reconciliations {
		if existing.Path == r.Path {
			return
		}
	}
	p.Reconciliations = append(p.Reconciliations, r)
}

// buildPlan derives operations for the allowed direction(s). A side that could not
// be enumerated contributes nothing to the direction that depends on it.
func buildPlan(snap *Snapshot, direction Direction) *Plan {
	plan := &Plan{}

	if direction.Uploads() && snap.LocalErr == nil {
		planUploads(snap, plan)
	}
	if direction.Downloads() && snap.RemoteErr == nil {
		planDownloads(snap, plan)
	}

	sortOperations(plan.Operations)
	slices.SortFunc(plan.Reconciliations, func(a, b *Reconciliation) int {
		return cmp.Compare(a.Path, b.Path)
	})
	return plan
}

func planUploads(snap *Snapshot, plan *Plan) {
	for path, l := range snap.Local {
		e := snap.Tracked(path)
		r := snap.Remote[path]

		switch {
		case e == nil && r != nil && sameContent(l, r):
			plan.reconcile(&Reconciliation{Path: path, Kind: ReconcileAdopt, Local: l, Remote: r})
		case e == nil:
			plan.Operations = append(plan.Operations, &Upload{RelPath: path, Why: "new local file", Local: l, Existing: r})
		case localChanged(e, l):
			plan.Operations = append(plan.Operations, &Upload{RelPath: path, Why: "modified locally", Local: l, Existing: r})
		}
	}

	// a deletion is only known against the remote listing
	if snap.RemoteErr != nil {
		return
	}
	for path, e := range snap.Entries {
		if snap.Local[path] != nil {
			continue
		}
		if e.Deleted {
			// the remote kept a copy of a file already deleted here
			if snap.deletedLocally(path) != nil {
				plan.Operations = append(plan.Operations, &DeleteRemote{RelPath: path, Why: "deleted locally, remote copy remains", Remote: snap.Remote[path], Entry: e})
			}
			continue
		}
		if r := snap.Remote[path]; r != nil {
			plan.Operations = append(plan.Operations, &DeleteRemote{RelPath: path, Why: "deleted locally", Remote: r, Entry: e})
		} else {
			plan.reconcile(&Reconciliation{Path: path, Kind: ReconcileTombstone, Entry: e})
		}
	}
}

func planDownloads(snap *Snapshot, plan *Plan) {
	localKnown := snap.LocalErr == nil

	for path, r := range snap.Remote {
		e := snap.Tracked(path)
		l := snap.Local[path]

		switch {
		case e == nil && localKnown && snap.deletedLocally(path) != nil:
			// a local deletion, not a new remote file; policy decides whether to restore it
		case e == nil && l != nil && sameContent(l, r):
			plan.reconcile(&Reconciliation{Path: path, Kind: ReconcileAdopt, Local: l, Remote: r})
		case e == nil:
			plan.Operations = append(plan.Operations, &Download{RelPath: path, Why: "new remote file", Remote: r, Backup: l != nil || !localKnown})
		case remoteChanged(e, r):
			plan.Operations = append(plan.Operations, &Download{RelPath: path, Why: "modified remotely", Remote: r, Backup: l != nil || !localKnown})
		}
	}

	if !localKnown {
		return
	}
	for path, e := range snap.Entries {
		if e.Deleted || snap.Remote[path] != nil {
			continue
		}
		if snap.Local[path] != nil {
			plan.Operations = append(plan.Operations, &DeleteLocal{RelPath: path, Why: "deleted remotely", Entry: e})
		} else {
			plan.reconcile(&Reconciliation{Path: path, Kind: ReconcileTombstone, Entry: e})
		}
	}
}

// sortOperations orders by kind (uploads, downloads, remote deletes, local deletes), then path
func sortOperations(ops []Operation) {
	slices.SortStableFunc(ops, func(a, b Operation) int {
		if c := cmp.Compare(opOrder[a.Kind()], opOrder[b.Kind()]); c != 0 {
			return c
		}
		return cmp.Compare(a.Path(), b.Path())
	})
}

// resolvedState maps a classification to what is recorded once the path is synced
func resolvedState(t ConflictType) state.ConflictState {
	switch t {
	case ConflictLocalNewer:
		return state.ConflictLocalNewer
	case ConflictRemoteNewer:
		return state.ConflictRemoteNewer
	case ConflictBothModified:
		return state.ConflictBothModified
	}
	return state.ConflictNone
}
