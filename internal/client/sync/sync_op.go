package sync

import (
	"github.com/eric-downes/claude-sync/internal/client/state"
	"github.com/eric-downes/claude-sync/internal/kb"
)

type OpKind string

const (
	OpUpload       OpKind = "upload"
	OpDownload     OpKind = "download"
	OpDeleteLocal  OpKind = "delete_local"
	OpDeleteRemote OpKind = "delete_remote"
)

// execution order of operation kinds within a run
var opOrder = map[OpKind]int{
	OpUpload:       0,
	OpDownload:     1,
	OpDeleteRemote: 2,
	OpDeleteLocal:  3,
}

// Operation is one planned change. The concrete type is one of
// *Upload, *Download, *DeleteLocal or *DeleteRemote.
type Operation interface {
	Kind() OpKind
	Path() string
	Reason() string
	BackupRequired() bool
	isOperation()
}

// Upload pushes a local file. Existing is the remote copy it replaces, if any.
type Upload struct {
	RelPath  string
	Why      string
	Backup   bool
	Local    *LocalFile
	Existing *kb.KnowledgeFile
	// BackupRemote also preserves the replaced remote content before it is superseded
	BackupRemote bool
}

// Download writes a remote file locally, backing up whatever it overwrites.
type Download struct {
	RelPath string
	Why     string
	Backup  bool
	Remote  *kb.KnowledgeFile
}

// DeleteLocal removes a local file whose remote copy was deleted.
type DeleteLocal struct {
	RelPath string
	Why     string
	Entry   *state.Entry
}

// DeleteRemote removes a remote file whose local copy was deleted.
type DeleteRemote struct {
	RelPath string
	Why     string
	Remote  *kb.KnowledgeFile
	Entry   *state.Entry
}

func (o *Upload) Kind() OpKind         { return OpUpload }
func (o *Upload) Path() string         { return o.RelPath }
func (o *Upload) Reason() string       { return o.Why }
func (o *Upload) BackupRequired() bool { return o.Backup }
func (o *Upload) isOperation()         {}

func (o *Download) Kind() OpKind         { return OpDownload }
func (o *Download) Path() string         { return o.RelPath }
func (o *Download) Reason() string       { return o.Why }
func (o *Download) BackupRequired() bool { return o.Backup }
func (o *Download) isOperation()         {}

func (o *DeleteLocal) Kind() OpKind         { return OpDeleteLocal }
func (o *DeleteLocal) Path() string         { return o.RelPath }
func (o *DeleteLocal) Reason() string       { return o.Why }
func (o *DeleteLocal) BackupRequired() bool { return true }
func (o *DeleteLocal) isOperation()         {}

func (o *DeleteRemote) Kind() OpKind         { return OpDeleteRemote }
func (o *DeleteRemote) Path() string         { return o.RelPath }
func (o *DeleteRemote) Reason() string       { return o.Why }
func (o *DeleteRemote) BackupRequired() bool { return true }
func (o *DeleteRemote) isOperation()         {}

// localSide reports whether the operation carries the local version outward
func localSide(op Operation) bool {
	switch op.(type) {
	case *Upload, *DeleteRemote:
		return true
	}
	return false
}

// SkippedOperation is a planned operation that did not run, with the reason.
type SkippedOperation struct {
	Op     Operation
	Reason string
}

// OperationView is the serializable form of an Operation
type OperationView struct {
	Kind           OpKind `json:"kind" yaml:"kind"`
	Path           string `json:"path" yaml:"path"`
	Reason         string `json:"reason" yaml:"reason"`
	BackupRequired bool   `json:"backupRequired" yaml:"backupRequired"`
	Error          string `json:"error,omitempty" yaml:"error,omitempty"`
}

func ViewOf(op Operation) OperationView {
	return OperationView{
		Kind:           op.Kind(),
		Path:           op.Path(),
		Reason:         op.Reason(),
		BackupRequired: op.BackupRequired(),
	}
}

// Reconciliation is a state-only update that needs no file transfer.
type Reconciliation struct {
	Path string
	// Kind is "adopt" for identical untracked copies on both sides, "tombstone" when both are gone
	Kind   string
	Local  *LocalFile
	Remote *kb.KnowledgeFile
	Entry  *state.Entry
}

const (
	ReconcileAdopt     = "adopt"
	ReconcileTombstone = "tombstone"
)
