package sync

import (
	"fmt"
	"log/slog"
)

// resolution is the outcome of applying a conflict policy to a plan
type resolution struct {
	ops      []Operation
	skipped  []SkippedOperation
	warnings []string
}

// applyPolicy rewrites the operations on every conflicting path according to policy.
// Operations on paths without a conflict pass through untouched.
func applyPolicy(plan *Plan, conflicts []*ConflictInfo, policy Policy, direction Direction, snap *Snapshot) *resolution {
	res := &resolution{}
	byPath := make(map[string]*ConflictInfo, len(conflicts))
	for _, c := range conflicts {
		byPath[c.Path] = c
	}

	var added []Operation
	for _, op := range plan.Operations {
		c, conflicted := byPath[op.Path()]
		if !conflicted {
			res.ops = append(res.ops, op)
			continue
		}
		if keep, why := keepOperation(op, c, policy); keep {
			res.ops = append(res.ops, op)
		} else {
			res.skipped = append(res.skipped, SkippedOperation{Op: op, Reason: why})
		}
	}

	for _, c := range conflicts {
		switch policy {
		case PolicyAsk:
			res.warnings = append(res.warnings, fmt.Sprintf("%s: %s conflict needs manual resolution, file left untouched", c.Path, c.Type))
		case PolicySkip:
			res.warnings = append(res.warnings, fmt.Sprintf("%s: %s conflict skipped", c.Path, c.Type))
		default:
			if op := completeWinner(res.ops, c, policy, direction, snap); op != nil {
				added = append(added, op)
			}
			markBackups(res.ops, c, policy)
		}
		slog.Debug("conflict", "path", c.Path, "type", c.Type, "policy", policy)
	}

	res.ops = append(res.ops, added...)
	sortOperations(res.ops)
	return res
}

// survivor picks the side whose version a policy keeps for a conflict type:
// true for local, false for remote.
func survivor(c *ConflictInfo, policy Policy) bool {
	switch policy {
	case PolicyLocalWins:
		return true
	case PolicyRemoteWins:
		return false
	case PolicyBackupAndMerge:
		switch c.Type {
		case ConflictLocalDeleted:
			// the remote copy is the only one left
			return false
		default:
			return true
		}
	}
	return false
}

func keepOperation(op Operation, c *ConflictInfo, policy Policy) (bool, string) {
	switch policy {
	case PolicyAsk, PolicySkip:
		return false, fmt.Sprintf("%s conflict (%s)", c.Type, policy)
	case PolicyBackupAndMerge:
		if c.Type == ConflictBothModified {
			// local is pushed, then the stored result is pulled back
			return true, ""
		}
	}

	if localSide(op) == survivor(c, policy) {
		return true, ""
	}
	return false, fmt.Sprintf("%s conflict resolved by %s", c.Type, policy)
}

// completeWinner adds the operation that carries the surviving version across when
// the planner produced none for it.
func completeWinner(ops []Operation, c *ConflictInfo, policy Policy, direction Direction, snap *Snapshot) Operation {
	has := func(kind OpKind) bool {
		for _, op := range ops {
			if op.Path() == c.Path && op.Kind() == kind {
				return true
			}
		}
		return false
	}

	keepLocal := survivor(c, policy)
	switch {
	case c.Type == ConflictRemoteDeleted && keepLocal && direction.Uploads() && !has(OpUpload):
		if l := snap.Local[c.Path]; l != nil {
			return &Upload{RelPath: c.Path, Why: fmt.Sprintf("restore remotely deleted file (%s)", policy), Local: l, Backup: policy == PolicyBackupAndMerge}
		}
	case c.Type == ConflictLocalDeleted && !keepLocal && direction.Downloads() && !has(OpDownload):
		if r := snap.Remote[c.Path]; r != nil {
			return &Download{RelPath: c.Path, Why: fmt.Sprintf("restore locally deleted file (%s)", policy), Remote: r}
		}
	}
	return nil
}

// markBackups turns on the backups a policy asks for on the kept operations
func markBackups(ops []Operation, c *ConflictInfo, policy Policy) {
	for _, op := range ops {
		if op.Path() != c.Path {
			continue
		}
		switch o := op.(type) {
		case *Upload:
			if c.Type == ConflictBothModified {
				o.BackupRemote = true
			}
			if policy == PolicyBackupAndMerge {
				o.Backup = true
			}
		case *Download:
			if c.Type == ConflictBothModified {
				o.Backup = true
			}
		}
	}
}
