package sync

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func opKeys(ops []Operation) []string {
	out := make([]string, 0, len(ops))
	for _, op := range ops {
		out = append(out, fmt.Sprintf("%s:%s", op.Kind(), op.Path()))
	}
	return out
}

func resolve(snap *Snapshot, policy Policy, direction Direction) *resolution {
	conflicts, _ := DetectConflicts(snap)
	return applyPolicy(buildPlan(snap, direction), conflicts, policy, direction, snap)
}

func TestBuildPlan_OrderAndKinds(t *testing.T) {
	snap := newSnap().
		withLocal("b-new.md", "N").
		withLocal("a-edit.md", "L2").withRemote("a-edit.md", "R1", tBefore).withEntry("a-edit.md", "L1", "R1").
		withRemote("z-remote.md", "Z", tAfter).
		withLocal("c-keep.md", "L1").withEntry("c-keep.md", "L1", "R1").
		withRemote("d-gone.md", "R1", tBefore).withEntry("d-gone.md", "L1", "R1").
		withEntry("e-both-gone.md", "L1", "R1").
		withLocal("f-same.md", "S").withRemote("f-same.md", "S", tAfter)

	plan := buildPlan(snap, DirectionBoth)

	assert.Equal(t, []string{
		"upload:a-edit.md",
		"upload:b-new.md",
		"download:z-remote.md",
		"delete_remote:d-gone.md",
		"delete_local:c-keep.md",
	}, opKeys(plan.Operations))

	require.Len(t, plan.Reconciliations, 2)
	assert.Equal(t, "e-both-gone.md", plan.Reconciliations[0].Path)
	assert.Equal(t, ReconcileTombstone, plan.Reconciliations[0].Kind)
	assert.Equal(t, "f-same.md", plan.Reconciliations[1].Path)
	assert.Equal(t, ReconcileAdopt, plan.Reconciliations[1].Kind)

	for _, op := range plan.Operations {
		switch o := op.(type) {
		case *DeleteLocal, *DeleteRemote:
			assert.True(t, o.BackupRequired(), o.Path())
		case *Upload:
			assert.False(t, o.BackupRequired(), o.Path())
		}
	}
}

func TestBuildPlan_DirectionLimitsOperations(t *testing.T) {
	snap := newSnap().withLocal("up.md", "U").withRemote("down.md", "D", tAfter)

	assert.Equal(t, []string{"upload:up.md"}, opKeys(buildPlan(snap, DirectionUpload).Operations))
	assert.Equal(t, []string{"download:down.md"}, opKeys(buildPlan(snap, DirectionDownload).Operations))
}

func TestBuildPlan_FailedSideOnlyAbortsItsDirection(t *testing.T) {
	snap := newSnap().withRemote("down.md", "D", tAfter)
	snap.LocalErr = fmt.Errorf("permission denied")

	plan := buildPlan(snap, DirectionBoth)
	require.Len(t, plan.Operations, 1)
	dl, ok := plan.Operations[0].(*Download)
	require.True(t, ok)
	// the local side is unknown, so a backup is required in case a copy exists
	assert.True(t, dl.Backup)
}

func TestBuildPlan_DownloadOverExistingFileNeedsBackup(t *testing.T) {
	snap := newSnap().withLocal("a", "L1").withRemote("a", "R2", tAfter).withEntry("a", "L1", "R1")

	plan := buildPlan(snap, DirectionDownload)
	require.Len(t, plan.Operations, 1)
	assert.True(t, plan.Operations[0].BackupRequired())
}

func bothModified() *Snapshot {
	return newSnap().withLocal("notes.md", "L2").withRemote("notes.md", "R2", tAfter).withEntry("notes.md", "L1", "R1")
}

func TestApplyPolicy_BothModified(t *testing.T) {
	t.Run("ask", func(t *testing.T) {
		res := resolve(bothModified(), PolicyAsk, DirectionBoth)
		assert.Empty(t, res.ops)
		assert.Len(t, res.skipped, 2)
		require.Len(t, res.warnings, 1)
		assert.Contains(t, res.warnings[0], "notes.md")
		assert.Contains(t, res.warnings[0], "manual resolution")
	})

	t.Run("skip", func(t *testing.T) {
		res := resolve(bothModified(), PolicySkip, DirectionBoth)
		assert.Empty(t, res.ops)
		assert.Len(t, res.skipped, 2)
	})

	t.Run("local_wins", func(t *testing.T) {
		res := resolve(bothModified(), PolicyLocalWins, DirectionBoth)
		require.Equal(t, []string{"upload:notes.md"}, opKeys(res.ops))
		up := res.ops[0].(*Upload)
		assert.True(t, up.BackupRemote)
		require.Len(t, res.skipped, 1)
		assert.Equal(t, OpDownload, res.skipped[0].Op.Kind())
	})

	t.Run("remote_wins", func(t *testing.T) {
		res := resolve(bothModified(), PolicyRemoteWins, DirectionBoth)
		require.Equal(t, []string{"download:notes.md"}, opKeys(res.ops))
		assert.True(t, res.ops[0].BackupRequired())
	})

	t.Run("backup_and_merge", func(t *testing.T) {
		res := resolve(bothModified(), PolicyBackupAndMerge, DirectionBoth)
		require.Equal(t, []string{"upload:notes.md", "download:notes.md"}, opKeys(res.ops))
		up := res.ops[0].(*Upload)
		assert.True(t, up.Backup)
		assert.True(t, up.BackupRemote)
		assert.Empty(t, res.skipped)
	})
}

func TestApplyPolicy_LocalDeleted(t *testing.T) {
	localDeleted := func() *Snapshot {
		return newSnap().withRemote("a.md", "R1", tBefore).withEntry("a.md", "L1", "R1")
	}

	res := resolve(localDeleted(), PolicyLocalWins, DirectionBoth)
	assert.Equal(t, []string{"delete_remote:a.md"}, opKeys(res.ops))

	// the planner has no download for an unchanged remote; the winner is completed
	res = resolve(localDeleted(), PolicyRemoteWins, DirectionBoth)
	assert.Equal(t, []string{"download:a.md"}, opKeys(res.ops))
	assert.Len(t, res.skipped, 1)

	res = resolve(localDeleted(), PolicyBackupAndMerge, DirectionBoth)
	assert.Equal(t, []string{"download:a.md"}, opKeys(res.ops))

	res = resolve(localDeleted(), PolicyRemoteWins, DirectionUpload)
	assert.Empty(t, res.ops)

	res = resolve(localDeleted(), PolicySkip, DirectionBoth)
	assert.Empty(t, res.ops)
	assert.Len(t, res.skipped, 1)
}

func TestApplyPolicy_RemoteDeleted(t *testing.T) {
	remoteDeleted := func() *Snapshot {
		return newSnap().withLocal("a.md", "L2").withEntry("a.md", "L1", "R1")
	}

	res := resolve(remoteDeleted(), PolicyLocalWins, DirectionBoth)
	assert.Equal(t, []string{"upload:a.md"}, opKeys(res.ops))

	res = resolve(remoteDeleted(), PolicyRemoteWins, DirectionBoth)
	assert.Equal(t, []string{"delete_local:a.md"}, opKeys(res.ops))

	res = resolve(remoteDeleted(), PolicyBackupAndMerge, DirectionBoth)
	require.Equal(t, []string{"upload:a.md"}, opKeys(res.ops))
	assert.True(t, res.ops[0].BackupRequired())

	// only downloads allowed: the planner made no upload, and local_wins may not add one
	res = resolve(remoteDeleted(), PolicyLocalWins, DirectionDownload)
	assert.Empty(t, res.ops)
}

func TestApplyPolicy_NonConflictingPathsUntouched(t *testing.T) {
	snap := bothModified().withLocal("other.md", "O")

	res := resolve(snap, PolicySkip, DirectionBoth)
	assert.Equal(t, []string{"upload:other.md"}, opKeys(res.ops))
}

func TestParsePolicyAndDirection(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyAsk, p)

	p, err = ParsePolicy(" Remote_Wins ")
	require.NoError(t, err)
	assert.Equal(t, PolicyRemoteWins, p)

	_, err = ParsePolicy("merge")
	assert.Error(t, err)

	d, err := ParseDirection("")
	require.NoError(t, err)
	assert.Equal(t, DirectionBoth, d)
	assert.True(t, d.Uploads())
	assert.True(t, d.Downloads())

	d, err = ParseDirection("download")
	require.NoError(t, err)
	assert.False(t, d.Uploads())

	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}
