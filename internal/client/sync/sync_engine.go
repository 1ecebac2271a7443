package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eric-downes/claude-sync/internal/client/backup"
	"github.com/eric-downes/claude-sync/internal/client/state"
	"github.com/eric-downes/claude-sync/internal/client/workspace"
	"github.com/eric-downes/claude-sync/internal/kb"
)

var (
	ErrSyncAlreadyRunning = errors.New("sync already running")
)

// Progress is reported after every executed operation
type Progress struct {
	Done  int
	Total int
	Op    Operation
	Err   error
}

type Options struct {
	Direction          Direction
	DryRun             bool
	ConflictResolution Policy
	// Force runs even when validation reports errors or too many conflicts
	Force           bool
	Verbose         bool
	ExcludePatterns []string
	HashCacheSize   int
	Validation      ValidationOptions
	OnProgress      func(Progress)
}

func DefaultOptions() *Options {
	return &Options{
		Direction:          DirectionBoth,
		ConflictResolution: PolicyAsk,
		HashCacheSize:      defaultHashCacheSize,
		Validation:         DefaultValidationOptions(),
	}
}

// SyncEngine mirrors one local directory with one remote project.
// Runs are sequential; a second concurrent run fails fast.
type SyncEngine struct {
	client    kb.Client
	store     state.Store
	workspace *workspace.Workspace
	backups   *backup.Manager
	opts      Options
	scanner   *LocalScanner
	validator *Validator
	muSync    sync.Mutex
	now       func() time.Time
}

func NewSyncEngine(client kb.Client, store state.Store, ws *workspace.Workspace, backups *backup.Manager, opts *Options) (*SyncEngine, error) {
	if client == nil || store == nil || ws == nil {
		return nil, errors.New("sync engine requires a client, a state store and a workspace")
	}
	if opts == nil {
		opts = DefaultOptions()
	}

	o := *opts
	if o.Direction == "" {
		o.Direction = DirectionBoth
	}
	if !o.Direction.IsValid() {
		return nil, fmt.Errorf("invalid direction %q", o.Direction)
	}
	if o.ConflictResolution == "" {
		o.ConflictResolution = PolicyAsk
	}
	if !o.ConflictResolution.IsValid() {
		return nil, fmt.Errorf("invalid conflict resolution %q", o.ConflictResolution)
	}
	if o.HashCacheSize == 0 {
		o.HashCacheSize = defaultHashCacheSize
	}

	if backups == nil {
		backups = backup.NewManager(store, backup.Config{Project: ws.ProjectID, Root: ws.Root, Dir: ws.BackupDir})
	}

	ignore, err := NewIgnoreList(ws.Root, o.ExcludePatterns)
	if err != nil {
		return nil, err
	}

	return &SyncEngine{
		client:    client,
		store:     store,
		workspace: ws,
		backups:   backups,
		opts:      o,
		scanner:   NewLocalScanner(ws.Root, ignore, o.HashCacheSize),
		validator: NewValidator(client, ws, ValidatorConfig{
			Options:        o.Validation,
			Force:          o.Force,
			BackupsEnabled: backups.Enabled(),
			DryRun:         o.DryRun,
		}),
		now: time.Now,
	}, nil
}

// Sync runs one full pass: snapshot, validate, plan, resolve conflicts and, unless
// this is a dry run, execute. The returned error is reserved for failures that
// prevent a result (lock held, state unreadable); everything else is in the result.
func (se *SyncEngine) Sync(ctx context.Context) (*SyncResult, error) {
	if !se.muSync.TryLock() {
		return nil, ErrSyncAlreadyRunning
	}
	defer se.muSync.Unlock()

	if err := se.workspace.Lock(); err != nil {
		return nil, err
	}
	defer func() {
		if err := se.workspace.Unlock(); err != nil {
			slog.Warn("sync unlock", "project", se.workspace.ProjectID, "error", err)
		}
	}()

	tStart := se.now()
	res := &SyncResult{
		DryRun:    se.opts.DryRun,
		Project:   se.workspace.ProjectID,
		Direction: se.opts.Direction,
		Policy:    se.opts.ConflictResolution,
		StartedAt: tStart,
	}
	defer func() { res.Duration = time.Since(tStart) }()

	snap, err := takeSnapshot(ctx, se.workspace.ProjectID, se.scanner, se.client, se.store)
	if err != nil {
		return nil, err
	}
	res.Warnings = append(res.Warnings, snap.Warnings...)
	if snap.LocalErr != nil {
		res.warn("local scan failed, uploads skipped: %v", snap.LocalErr)
	}
	if snap.RemoteErr != nil {
		res.warn("remote listing failed, downloads skipped: %v", snap.RemoteErr)
	}

	if se.opts.Validation.Enabled {
		res.Validation = se.validator.Validate(ctx, se.opts.Direction, snap)
		res.Conflicts = res.Validation.Conflicts
		res.Changes = res.Validation.Stats.ChangeStats
		for _, issue := range res.Validation.Warnings() {
			res.warn("%s: %s", issue.Code, issue.Message)
		}
	} else {
		res.Conflicts, res.Changes = DetectConflicts(snap)
	}

	plan := buildPlan(snap, se.opts.Direction)
	resolved := applyPolicy(plan, res.Conflicts, se.opts.ConflictResolution, se.opts.Direction, snap)
	res.Planned = resolved.ops
	res.Reconciled = plan.Reconciliations
	res.Warnings = append(res.Warnings, resolved.warnings...)
	for _, s := range resolved.skipped {
		res.skip(s.Op, s.Reason)
	}
	res.Stats.Planned = len(res.Planned)

	slog.Info("sync plan",
		"project", res.Project,
		"direction", res.Direction,
		"policy", res.Policy,
		"operations", len(res.Planned),
		"conflicts", len(res.Conflicts),
		"skipped", len(res.Skipped),
		"reconciliations", len(res.Reconciled),
		"dryRun", res.DryRun,
	)

	if res.Validation != nil && !res.Validation.CanProceed {
		for _, issue := range res.Validation.Errors() {
			res.Errors = append(res.Errors, fmt.Errorf("validation %s: %s", issue.Code, issue.Message))
		}
		slog.Warn("sync blocked by validation", "project", res.Project, "errors", len(res.Validation.Errors()))
		return res, nil
	}

	if se.opts.DryRun {
		res.Success = true
		return res, nil
	}

	se.execute(ctx, snap, res)

	res.Success = len(res.Errors) == 0
	slog.Info("sync done",
		"project", res.Project,
		"uploaded", res.Stats.Uploaded,
		"downloaded", res.Stats.Downloaded,
		"deletedLocal", res.Stats.DeletedLocal,
		"deletedRemote", res.Stats.DeletedRemote,
		"skipped", res.Stats.Skipped,
		"failed", res.Stats.Failed,
		"backups", res.Stats.BackupsCreated,
		"tsTotal", time.Since(tStart),
	)
	return res, nil
}

// Validate runs the pre-flight checks on a fresh snapshot without planning anything
func (se *SyncEngine) Validate(ctx context.Context) (*ValidationResult, error) {
	snap, err := takeSnapshot(ctx, se.workspace.ProjectID, se.scanner, se.client, se.store)
	if err != nil {
		return nil, err
	}
	return se.validator.Validate(ctx, se.opts.Direction, snap), nil
}

// Backups exposes the engine's backup manager
func (se *SyncEngine) Backups() *backup.Manager {
	return se.backups
}

func (se *SyncEngine) Options() Options {
	return se.opts
}

// SetProgress replaces the progress hook. It waits for a running sync to finish.
func (se *SyncEngine) SetProgress(fn func(Progress)) {
	se.muSync.Lock()
	defer se.muSync.Unlock()
	se.opts.OnProgress = fn
}
