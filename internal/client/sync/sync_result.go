package sync

import (
	"fmt"
	"time"
)

// OperationError is the failure of a single operation. It never stops the run.
type OperationError struct {
	Op  Operation
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op.Kind(), e.Op.Path(), e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

type Stats struct {
	Planned         int   `json:"planned" yaml:"planned"`
	Uploaded        int   `json:"uploaded" yaml:"uploaded"`
	Downloaded      int   `json:"downloaded" yaml:"downloaded"`
	DeletedLocal    int   `json:"deletedLocal" yaml:"deletedLocal"`
	DeletedRemote   int   `json:"deletedRemote" yaml:"deletedRemote"`
	Unchanged       int   `json:"unchanged" yaml:"unchanged"`
	Skipped         int   `json:"skipped" yaml:"skipped"`
	Failed          int   `json:"failed" yaml:"failed"`
	Reconciled      int   `json:"reconciled" yaml:"reconciled"`
	BackupsCreated  int   `json:"backupsCreated" yaml:"backupsCreated"`
	BackupsRemoved  int   `json:"backupsRemoved" yaml:"backupsRemoved"`
	BytesUploaded   int64 `json:"bytesUploaded" yaml:"bytesUploaded"`
	BytesDownloaded int64 `json:"bytesDownloaded" yaml:"bytesDownloaded"`
}

// SyncResult is the full account of one run. It is returned for failed runs too;
// Success is false whenever validation blocked the run or any operation failed.
type SyncResult struct {
	Success    bool
	DryRun     bool
	Project    string
	Direction  Direction
	Policy     Policy
	Planned    []Operation
	Executed   []Operation
	Skipped    []SkippedOperation
	Reconciled []*Reconciliation
	Conflicts  []*ConflictInfo
	Changes    ChangeStats
	Errors     []error
	Warnings   []string
	Validation *ValidationResult
	Stats      Stats
	StartedAt  time.Time
	Duration   time.Duration
}

func (r *SyncResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *SyncResult) skip(op Operation, reason string) {
	r.Skipped = append(r.Skipped, SkippedOperation{Op: op, Reason: reason})
	r.Stats.Skipped++
}

func (r *SyncResult) fail(op Operation, err error) {
	r.Errors = append(r.Errors, &OperationError{Op: op, Err: err})
	r.skip(op, err.Error())
	r.Stats.Failed++
}

// Recommendations are the validator's, when validation ran
func (r *SyncResult) Recommendations() []string {
	if r.Validation == nil {
		return nil
	}
	return r.Validation.Recommendations
}

// Report is the serializable view of a SyncResult, used for json and yaml output.
type Report struct {
	Success         bool              `json:"success" yaml:"success"`
	DryRun          bool              `json:"dryRun" yaml:"dryRun"`
	Project         string            `json:"project" yaml:"project"`
	Direction       Direction         `json:"direction" yaml:"direction"`
	Policy          Policy            `json:"conflictResolution" yaml:"conflictResolution"`
	Planned         []OperationView   `json:"planned" yaml:"planned"`
	Executed        []OperationView   `json:"executed" yaml:"executed"`
	Skipped         []OperationView   `json:"skipped" yaml:"skipped"`
	Conflicts       []*ConflictInfo   `json:"conflicts" yaml:"conflicts"`
	Changes         ChangeStats       `json:"changes" yaml:"changes"`
	Errors          []string          `json:"errors" yaml:"errors"`
	Warnings        []string          `json:"warnings" yaml:"warnings"`
	Recommendations []string          `json:"recommendations" yaml:"recommendations"`
	Validation      *ValidationResult `json:"validation,omitempty" yaml:"validation,omitempty"`
	Stats           Stats             `json:"stats" yaml:"stats"`
	StartedAt       time.Time         `json:"startedAt" yaml:"startedAt"`
	Duration        string            `json:"duration" yaml:"duration"`
}

func (r *SyncResult) Report() *Report {
	rep := &Report{
		Success:         r.Success,
		DryRun:          r.DryRun,
		Project:         r.Project,
		Direction:       r.Direction,
		Policy:          r.Policy,
		Planned:         views(r.Planned),
		Executed:        views(r.Executed),
		Skipped:         make([]OperationView, 0, len(r.Skipped)),
		Conflicts:       r.Conflicts,
		Changes:         r.Changes,
		Errors:          make([]string, 0, len(r.Errors)),
		Warnings:        r.Warnings,
		Recommendations: r.Recommendations(),
		Validation:      r.Validation,
		Stats:           r.Stats,
		StartedAt:       r.StartedAt,
		Duration:        r.Duration.Round(time.Millisecond).String(),
	}
	for _, s := range r.Skipped {
		v := ViewOf(s.Op)
		v.Error = s.Reason
		rep.Skipped = append(rep.Skipped, v)
	}
	for _, err := range r.Errors {
		rep.Errors = append(rep.Errors, err.Error())
	}
	return rep
}

func views(ops []Operation) []OperationView {
	out := make([]OperationView, 0, len(ops))
	for _, op := range ops {
		out = append(out, ViewOf(op))
	}
	return out
}
