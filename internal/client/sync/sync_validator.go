package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/eric-downes/claude-sync/internal/client/workspace"
	"github.com/eric-downes/claude-sync/internal/kb"
	"github.com/eric-downes/claude-sync/internal/utils"
	"github.com/eric-downes/claude-sync/internal/vcs"
	"github.com/shirou/gopsutil/v4/disk"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMinFreeBytes     uint64 = 100 * 1024 * 1024
	DefaultMaxConflictCount        = 10
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// issue codes
const (
	CodeLowDiskSpace       = "low_disk_space"
	CodeDiskCheckFailed    = "disk_check_failed"
	CodeLocalDirMissing    = "local_dir_missing"
	CodeLocalDirNotDir     = "local_dir_not_directory"
	CodeLocalDirUnreadable = "local_dir_unreadable"
	CodeLocalDirReadOnly   = "local_dir_not_writable"
	CodeBackupDirReadOnly  = "backup_dir_not_writable"
	CodeUncommittedChanges = "uncommitted_changes"
	CodeVCSUnavailable     = "vcs_unavailable"
	CodeRemoteUnreachable  = "remote_unreachable"
	CodeProjectNotFound    = "project_not_found"
	CodeTooManyConflicts   = "too_many_conflicts"
	CodeScanFailed         = "scan_failed"
)

type ValidationOptions struct {
	Enabled           bool   `json:"enabled" mapstructure:"enabled"`
	CheckDiskSpace    bool   `json:"check_disk_space" mapstructure:"check_disk_space"`
	CheckPermissions  bool   `json:"check_permissions" mapstructure:"check_permissions"`
	CheckVCS          bool   `json:"check_vcs" mapstructure:"check_vcs"`
	CheckConnectivity bool   `json:"check_connectivity" mapstructure:"check_connectivity"`
	MinFreeBytes      uint64 `json:"min_free_bytes" mapstructure:"min_free_bytes"`
	MaxConflictCount  int    `json:"max_conflict_count" mapstructure:"max_conflict_count"`
}

func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		Enabled:           true,
		CheckDiskSpace:    true,
		CheckPermissions:  true,
		CheckVCS:          true,
		CheckConnectivity: true,
		MinFreeBytes:      DefaultMinFreeBytes,
		MaxConflictCount:  DefaultMaxConflictCount,
	}
}

type ValidationIssue struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Code     string   `json:"code" yaml:"code"`
	Message  string   `json:"message" yaml:"message"`
	Path     string   `json:"path,omitempty" yaml:"path,omitempty"`
	Hint     string   `json:"hint,omitempty" yaml:"hint,omitempty"`
}

type ValidationStats struct {
	ChangeStats   `yaml:",inline"`
	ConflictCount int    `json:"conflictCount" yaml:"conflictCount"`
	FreeBytes     uint64 `json:"freeBytes,omitempty" yaml:"freeBytes,omitempty"`
}

type ValidationResult struct {
	CanProceed      bool              `json:"canProceed" yaml:"canProceed"`
	Forced          bool              `json:"forced,omitempty" yaml:"forced,omitempty"`
	Issues          []ValidationIssue `json:"issues" yaml:"issues"`
	Conflicts       []*ConflictInfo   `json:"conflicts" yaml:"conflicts"`
	Stats           ValidationStats   `json:"stats" yaml:"stats"`
	Recommendations []string          `json:"recommendations" yaml:"recommendations"`
}

func (r *ValidationResult) bySeverity(s Severity) []ValidationIssue {
	var out []ValidationIssue
	for _, i := range r.Issues {
		if i.Severity == s {
			out = append(out, i)
		}
	}
	return out
}

func (r *ValidationResult) Errors() []ValidationIssue {
	return r.bySeverity(SeverityError)
}

func (r *ValidationResult) Warnings() []ValidationIssue {
	return r.bySeverity(SeverityWarning)
}

func (r *ValidationResult) HasCode(code string) bool {
	for _, i := range r.Issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

type ValidatorConfig struct {
	Options        ValidationOptions
	Force          bool
	BackupsEnabled bool
	// DryRun limits the permission check to mode bits so nothing is written
	DryRun bool
}

// Validator runs the pre-flight checks for one workspace. It never touches synced
// files; outside a dry run the permission check creates and removes a scratch file.
type Validator struct {
	client kb.Client
	ws     *workspace.Workspace
	cfg    ValidatorConfig

	diskFree  func(ctx context.Context, path string) (uint64, error)
	repoState func(ctx context.Context, dir string) (*vcs.Repo, []string, error)
}

func NewValidator(client kb.Client, ws *workspace.Workspace, cfg ValidatorConfig) *Validator {
	if cfg.Options.MaxConflictCount <= 0 {
		cfg.Options.MaxConflictCount = DefaultMaxConflictCount
	}
	if cfg.Options.MinFreeBytes == 0 {
		cfg.Options.MinFreeBytes = DefaultMinFreeBytes
	}
	return &Validator{
		client:    client,
		ws:        ws,
		cfg:       cfg,
		diskFree:  diskFree,
		repoState: repoState,
	}
}

// Validate runs the enabled checks concurrently, classifies conflicts in snap and
// decides whether the run may proceed.
func (v *Validator) Validate(ctx context.Context, direction Direction, snap *Snapshot) *ValidationResult {
	opts := v.cfg.Options
	res := &ValidationResult{}

	checks := []struct {
		enabled bool
		// exclusive checks run alone before the others start
		exclusive bool
		run       func(context.Context, *ValidationResult) []ValidationIssue
	}{
		{enabled: opts.CheckDiskSpace, run: v.checkDiskSpace},
		{enabled: opts.CheckPermissions, run: func(ctx context.Context, _ *ValidationResult) []ValidationIssue {
			return v.checkPermissions(direction)
		}},
		// the working tree status must not see the permission check's scratch file
		{enabled: opts.CheckVCS, exclusive: true, run: func(ctx context.Context, _ *ValidationResult) []ValidationIssue {
			return v.checkVCS(ctx)
		}},
		{enabled: opts.CheckConnectivity, run: func(ctx context.Context, _ *ValidationResult) []ValidationIssue {
			return v.checkConnectivity(ctx)
		}},
	}

	// each check writes only its own slot; merging in slot order keeps the report stable
	found := make([][]ValidationIssue, len(checks))
	for i, c := range checks {
		if c.enabled && c.exclusive {
			found[i] = c.run(ctx, res)
		}
	}
	var eg errgroup.Group
	for i, c := range checks {
		if !c.enabled || c.exclusive {
			continue
		}
		eg.Go(func() error {
			found[i] = c.run(ctx, res)
			return nil
		})
	}
	_ = eg.Wait()

	for _, issues := range found {
		res.Issues = append(res.Issues, issues...)
	}

	if snap != nil {
		if snap.LocalErr != nil {
			res.Issues = append(res.Issues, ValidationIssue{
				Severity: SeverityWarning,
				Code:     CodeScanFailed,
				Message:  fmt.Sprintf("local files could not be listed, uploads will be skipped: %v", snap.LocalErr),
			})
		}
		if snap.RemoteErr != nil {
			res.Issues = append(res.Issues, ValidationIssue{
				Severity: SeverityWarning,
				Code:     CodeScanFailed,
				Message:  fmt.Sprintf("remote files could not be listed, downloads will be skipped: %v", snap.RemoteErr),
			})
		}

		var changes ChangeStats
		res.Conflicts, changes = DetectConflicts(snap)
		res.Stats.ChangeStats = changes
		res.Stats.ConflictCount = len(res.Conflicts)
	}

	if res.Stats.ConflictCount > opts.MaxConflictCount {
		res.Issues = append(res.Issues, ValidationIssue{
			Severity: SeverityError,
			Code:     CodeTooManyConflicts,
			Message:  fmt.Sprintf("%d conflicts exceed the limit of %d", res.Stats.ConflictCount, opts.MaxConflictCount),
			Hint:     "resolve some conflicts manually, raise validation.max_conflict_count or run with --force",
		})
	}

	res.CanProceed = len(res.Errors()) == 0
	if !res.CanProceed && v.cfg.Force {
		res.CanProceed = true
		res.Forced = true
	}
	res.Recommendations = recommend(res)

	slog.Debug("validate", "canProceed", res.CanProceed, "issues", len(res.Issues), "conflicts", res.Stats.ConflictCount)
	return res
}

func (v *Validator) checkDiskSpace(ctx context.Context, res *ValidationResult) []ValidationIssue {
	free, err := v.diskFree(ctx, v.ws.Root)
	if err != nil {
		return []ValidationIssue{{
			Severity: SeverityWarning,
			Code:     CodeDiskCheckFailed,
			Message:  fmt.Sprintf("free space could not be determined: %v", err),
			Path:     v.ws.Root,
		}}
	}
	res.Stats.FreeBytes = free

	minFree := v.cfg.Options.MinFreeBytes
	switch {
	case free < minFree:
		return []ValidationIssue{{
			Severity: SeverityError,
			Code:     CodeLowDiskSpace,
			Message:  fmt.Sprintf("only %s free, at least %s required", humanize.IBytes(free), humanize.IBytes(minFree)),
			Path:     v.ws.Root,
			Hint:     "free up disk space before syncing",
		}}
	case free < 2*minFree:
		return []ValidationIssue{{
			Severity: SeverityWarning,
			Code:     CodeLowDiskSpace,
			Message:  fmt.Sprintf("disk space is low: %s free", humanize.IBytes(free)),
			Path:     v.ws.Root,
		}}
	}
	return nil
}

func (v *Validator) checkPermissions(direction Direction) []ValidationIssue {
	root := v.ws.Root

	info, err := os.Stat(root)
	if err != nil {
		return []ValidationIssue{{
			Severity: SeverityError,
			Code:     CodeLocalDirMissing,
			Message:  fmt.Sprintf("local directory is not accessible: %v", err),
			Path:     root,
			Hint:     "create the directory or fix local_dir",
		}}
	}
	if !info.IsDir() {
		return []ValidationIssue{{
			Severity: SeverityError,
			Code:     CodeLocalDirNotDir,
			Message:  "local path is not a directory",
			Path:     root,
		}}
	}

	if _, err := os.ReadDir(root); err != nil {
		return []ValidationIssue{{
			Severity: SeverityError,
			Code:     CodeLocalDirUnreadable,
			Message:  fmt.Sprintf("local directory is not readable: %v", err),
			Path:     root,
		}}
	}

	var issues []ValidationIssue
	if direction.Downloads() || v.cfg.BackupsEnabled {
		if err := v.writable(root); err != nil {
			issues = append(issues, ValidationIssue{
				Severity: SeverityError,
				Code:     CodeLocalDirReadOnly,
				Message:  fmt.Sprintf("local directory is not writable: %v", err),
				Path:     root,
			})
		}
	}
	if v.cfg.BackupsEnabled && utils.DirExists(v.ws.BackupDir) {
		if err := v.writable(v.ws.BackupDir); err != nil {
			issues = append(issues, ValidationIssue{
				Severity: SeverityError,
				Code:     CodeBackupDirReadOnly,
				Message:  fmt.Sprintf("backup directory is not writable: %v", err),
				Path:     v.ws.BackupDir,
				Hint:     "fix backup_dir or disable backups",
			})
		}
	}
	return issues
}

func (v *Validator) writable(dir string) error {
	if !v.cfg.DryRun {
		return utils.ProbeWritable(dir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0o222 == 0 {
		return fmt.Errorf("%s: %w", dir, fs.ErrPermission)
	}
	return nil
}

func (v *Validator) checkVCS(ctx context.Context) []ValidationIssue {
	repo, changes, err := v.repoState(ctx, v.ws.Root)
	switch {
	case errors.Is(err, vcs.ErrNotInVCS):
		return nil
	case errors.Is(err, vcs.ErrVCSNotAvailable):
		return []ValidationIssue{{
			Severity: SeverityInfo,
			Code:     CodeVCSUnavailable,
			Message:  fmt.Sprintf("repository found but its binary is not installed: %v", err),
			Path:     v.ws.Root,
		}}
	case err != nil:
		return []ValidationIssue{{
			Severity: SeverityInfo,
			Code:     CodeVCSUnavailable,
			Message:  fmt.Sprintf("repository status unavailable: %v", err),
			Path:     v.ws.Root,
		}}
	}

	if len(changes) == 0 {
		return nil
	}
	return []ValidationIssue{{
		Severity: SeverityWarning,
		Code:     CodeUncommittedChanges,
		Message:  fmt.Sprintf("%d uncommitted %s change(s) under the local directory", len(changes), repo.Type),
		Path:     repo.Root,
		Hint:     "commit your work so the sync can be undone with " + string(repo.Type),
	}}
}

func (v *Validator) checkConnectivity(ctx context.Context) []ValidationIssue {
	if _, err := v.client.GetCurrentUser(ctx); err != nil {
		return []ValidationIssue{{
			Severity: SeverityError,
			Code:     CodeRemoteUnreachable,
			Message:  fmt.Sprintf("remote is not reachable: %v", err),
			Hint:     "check server_url, your token and network access",
		}}
	}
	if _, err := v.client.GetProject(ctx, v.ws.ProjectID); err != nil {
		return []ValidationIssue{{
			Severity: SeverityError,
			Code:     CodeProjectNotFound,
			Message:  fmt.Sprintf("project %s is not available: %v", v.ws.ProjectID, err),
			Hint:     "list projects to find the right project_id",
		}}
	}
	return nil
}

func recommend(res *ValidationResult) []string {
	var out []string
	if res.Stats.ConflictCount > 0 {
		out = append(out, "run with --dry-run to review the planned operations before syncing")
		out = append(out, "choose a conflict resolution policy with --conflict")
	}
	if res.HasCode(CodeUncommittedChanges) {
		out = append(out, "commit or stash local changes first")
	}
	if res.HasCode(CodeLowDiskSpace) {
		out = append(out, "free up disk space or lower backup.retention_count")
	}
	if res.HasCode(CodeRemoteUnreachable) || res.HasCode(CodeProjectNotFound) {
		out = append(out, "verify server_url, token and project_id")
	}
	if res.Forced {
		out = append(out, "validation errors were overridden with --force")
	}
	return out
}

func diskFree(ctx context.Context, path string) (uint64, error) {
	// the usage of the nearest existing ancestor is what a new directory would get
	for !utils.DirExists(path) {
		parent := filepath.Dir(path)
		if parent == path {
			break
		}
		path = parent
	}

	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

func repoState(ctx context.Context, dir string) (*vcs.Repo, []string, error) {
	repo, err := vcs.Detect(dir)
	if err != nil {
		return nil, nil, err
	}

	var scope []string
	if rel, err := filepath.Rel(repo.Root, dir); err == nil && rel != "." {
		scope = append(scope, filepath.ToSlash(rel))
	}

	changes, err := repo.Changes(ctx, scope...)
	if err != nil {
		return repo, nil, err
	}
	return repo, changes, nil
}
