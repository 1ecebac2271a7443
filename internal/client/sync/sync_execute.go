package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/eric-downes/claude-sync/internal/client/backup"
	"github.com/eric-downes/claude-sync/internal/client/state"
	"github.com/eric-downes/claude-sync/internal/kb"
	"github.com/eric-downes/claude-sync/internal/utils"
)

// run holds what one execution pass learns along the way
type run struct {
	res    *SyncResult
	states map[string]state.ConflictState
	// uploaded holds the stored copy of every file pushed in this run, so a
	// following download of the same path refreshes from it
	uploaded map[string]*uploadedFile
}

type uploadedFile struct {
	file *kb.KnowledgeFile
	// verified is set when file carries the content read back after the upload
	verified bool
}

func (se *SyncEngine) execute(ctx context.Context, snap *Snapshot, res *SyncResult) {
	r := &run{
		res:      res,
		states:   make(map[string]state.ConflictState),
		uploaded: make(map[string]*uploadedFile),
	}
	for _, c := range res.Conflicts {
		r.states[c.Path] = resolvedState(c.Type)
	}
	for _, path := range snap.Paths() {
		if _, ok := r.states[path]; !ok {
			r.states[path] = resolvedState(classify(snap, path))
		}
	}

	total := len(res.Planned)
	for i, op := range res.Planned {
		if err := ctx.Err(); err != nil {
			for _, rest := range res.Planned[i:] {
				res.skip(rest, "cancelled")
			}
			res.Errors = append(res.Errors, fmt.Errorf("sync cancelled: %w", err))
			break
		}

		err := se.executeOp(ctx, r, op)
		if err != nil {
			res.fail(op, err)
			slog.Error("sync", "op", op.Kind(), "path", op.Path(), "error", err)
		} else {
			res.Executed = append(res.Executed, op)
		}

		if se.opts.OnProgress != nil {
			se.opts.OnProgress(Progress{Done: i + 1, Total: total, Op: op, Err: err})
		}
	}

	for _, rec := range res.Reconciled {
		if err := se.reconcile(rec); err != nil {
			res.warn("state update for %s failed: %v", rec.Path, err)
			continue
		}
		res.Stats.Reconciled++
	}

	if res.Stats.BackupsCreated > 0 {
		removed, err := se.backups.CleanupOldBackups()
		if err != nil {
			res.warn("backup retention cleanup failed: %v", err)
		}
		res.Stats.BackupsRemoved = removed
	}
}

func (se *SyncEngine) executeOp(ctx context.Context, r *run, op Operation) error {
	switch o := op.(type) {
	case *Upload:
		return se.upload(ctx, r, o)
	case *Download:
		return se.download(ctx, r, o)
	case *DeleteLocal:
		return se.deleteLocal(r, o)
	case *DeleteRemote:
		return se.deleteRemote(ctx, r, o)
	}
	return fmt.Errorf("unknown operation %T", op)
}

func (se *SyncEngine) upload(ctx context.Context, r *run, op *Upload) error {
	project := se.workspace.ProjectID

	if op.Backup {
		if err := se.backupLocal(r, op.RelPath, state.ReasonSync); err != nil {
			return err
		}
	}
	if op.BackupRemote && op.Existing != nil && se.backups.Enabled() {
		if err := se.backupRemote(ctx, r, op.RelPath, op.Existing, state.ReasonSync); err != nil {
			return err
		}
	}

	localPath := se.workspace.AbsPath(op.RelPath)
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read local file: %w", err)
	}
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat local file: %w", err)
	}
	localHash := utils.BytesHash(data)

	remotePath := op.RelPath
	if op.Existing != nil && op.Existing.Path != "" {
		remotePath = op.Existing.Path
	}

	created, err := se.client.UploadKnowledgeFile(ctx, project, remotePath, data)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	// the remote may normalize what it stores; the entry records what it actually holds
	stored := &uploadedFile{file: created}
	remoteHash := created.ContentHash()
	if fetched, err := se.client.GetKnowledgeFile(ctx, project, created.ID); err != nil {
		slog.Warn("sync upload verify", "path", op.RelPath, "id", created.ID, "error", err)
		if remoteHash == "" {
			remoteHash = localHash
		}
	} else {
		stored = &uploadedFile{file: fetched, verified: true}
		remoteHash = utils.BytesHash(fetched.Content)
	}
	if remoteHash != localHash {
		r.res.warn("%s: remote stored different content than was uploaded", op.RelPath)
		slog.Warn("sync upload drift", "path", op.RelPath, "local", localHash, "remote", remoteHash)
	}

	if op.Existing != nil && op.Existing.ID != created.ID {
		err := se.client.DeleteKnowledgeFile(ctx, project, op.Existing.ID)
		if err != nil && !errors.Is(err, kb.ErrNotFound) {
			r.res.warn("%s: superseded remote copy %s not removed: %v", op.RelPath, op.Existing.ID, err)
		}
	}

	entry := &state.Entry{
		Project:        project,
		Path:           op.RelPath,
		LocalHash:      localHash,
		RemoteHash:     remoteHash,
		RemoteID:       created.ID,
		LocalModified:  info.ModTime(),
		RemoteModified: stored.file.ModifiedAt,
		LastSynced:     se.syncedAt(stored.file.ModifiedAt),
		LastDirection:  state.DirectionUpload,
		ConflictState:  r.states[op.RelPath],
		Size:           int64(len(data)),
	}
	if err := se.store.Save(entry); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	r.uploaded[op.RelPath] = stored
	r.res.Stats.Uploaded++
	r.res.Stats.BytesUploaded += int64(len(data))
	slog.Info("sync", "op", OpUpload, "path", op.RelPath, "id", created.ID, "reason", op.Why)
	return nil
}

func (se *SyncEngine) download(ctx context.Context, r *run, op *Download) error {
	project := se.workspace.ProjectID

	var remote *kb.KnowledgeFile
	up, ok := r.uploaded[op.RelPath]
	if ok && up.verified {
		remote = up.file
	} else {
		id := op.Remote.ID
		if ok {
			id = up.file.ID
		}
		fetched, err := se.client.GetKnowledgeFile(ctx, project, id)
		if err != nil {
			return fmt.Errorf("fetch remote file: %w", err)
		}
		remote = fetched
	}
	content := remote.Content
	remoteHash := utils.BytesHash(content)
	localPath := se.workspace.AbsPath(op.RelPath)

	current, err := utils.FileHash(localPath)
	switch {
	case err == nil && current == remoteHash:
		slog.Debug("sync", "op", OpDownload, "path", op.RelPath, "message", "local copy already identical")
	case err == nil:
		// never overwrite without a copy, whatever the plan said
		if err := se.backupLocal(r, op.RelPath, state.ReasonSync); err != nil {
			return err
		}
		fallthrough
	case errors.Is(err, fs.ErrNotExist):
		if err := utils.WriteFileAtomic(localPath, content, remoteHash); err != nil {
			return fmt.Errorf("write local file: %w", err)
		}
		r.res.Stats.BytesDownloaded += int64(len(content))
	default:
		return fmt.Errorf("hash local file: %w", err)
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat local file: %w", err)
	}

	entry := &state.Entry{
		Project:        project,
		Path:           op.RelPath,
		LocalHash:      remoteHash,
		RemoteHash:     remoteHash,
		RemoteID:       remote.ID,
		LocalModified:  info.ModTime(),
		RemoteModified: remote.ModifiedAt,
		LastSynced:     se.syncedAt(remote.ModifiedAt),
		LastDirection:  state.DirectionDownload,
		ConflictState:  r.states[op.RelPath],
		Size:           int64(len(content)),
	}
	if err := se.store.Save(entry); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	r.res.Stats.Downloaded++
	slog.Info("sync", "op", OpDownload, "path", op.RelPath, "id", remote.ID, "reason", op.Why)
	return nil
}

func (se *SyncEngine) deleteLocal(r *run, op *DeleteLocal) error {
	localPath := se.workspace.AbsPath(op.RelPath)

	if utils.FileExists(localPath) {
		if err := se.backupLocal(r, op.RelPath, state.ReasonDelete); err != nil {
			return err
		}
	}

	err := os.Remove(localPath)
	switch {
	case err == nil:
		slog.Info("sync", "op", OpDeleteLocal, "path", op.RelPath, "reason", op.Why)
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("sync", "op", OpDeleteLocal, "path", op.RelPath, "message", "file was already deleted")
	default:
		return fmt.Errorf("delete local file: %w", err)
	}
	cleanupEmptyParentDirs(filepath.Dir(localPath), se.workspace.Root)

	if err := se.tombstone(op.RelPath, op.Entry, state.DirectionDownload); err != nil {
		return err
	}
	r.res.Stats.DeletedLocal++
	return nil
}

func (se *SyncEngine) deleteRemote(ctx context.Context, r *run, op *DeleteRemote) error {
	project := se.workspace.ProjectID

	if se.backups.Enabled() {
		if err := se.backupRemote(ctx, r, op.RelPath, op.Remote, state.ReasonDelete); err != nil && !errors.Is(err, kb.ErrNotFound) {
			return err
		}
	}

	err := se.client.DeleteKnowledgeFile(ctx, project, op.Remote.ID)
	switch {
	case err == nil:
		slog.Info("sync", "op", OpDeleteRemote, "path", op.RelPath, "id", op.Remote.ID, "reason", op.Why)
	case errors.Is(err, kb.ErrNotFound):
		slog.Debug("sync", "op", OpDeleteRemote, "path", op.RelPath, "message", "remote file was already deleted")
	default:
		return fmt.Errorf("delete remote file: %w", err)
	}

	if err := se.tombstone(op.RelPath, op.Entry, state.DirectionUpload); err != nil {
		return err
	}
	r.res.Stats.DeletedRemote++
	return nil
}

func (se *SyncEngine) backupLocal(r *run, relPath string, reason state.BackupReason) error {
	if !se.backups.Enabled() {
		return nil
	}
	b, err := se.backups.CreateBackupIfChanged(relPath, reason)
	if errors.Is(err, backup.ErrSourceMissing) {
		return nil
	} else if err != nil {
		return fmt.Errorf("backup before %s: %w", reason, err)
	}
	if b.ID != "" {
		r.res.Stats.BackupsCreated++
	}
	return nil
}

func (se *SyncEngine) backupRemote(ctx context.Context, r *run, relPath string, remote *kb.KnowledgeFile, reason state.BackupReason) error {
	fetched, err := se.client.GetKnowledgeFile(ctx, se.workspace.ProjectID, remote.ID)
	if err != nil {
		return fmt.Errorf("fetch remote copy for backup: %w", err)
	}
	b, err := se.backups.CreateBackupFromReader(relPath, bytes.NewReader(fetched.Content), reason)
	if err != nil {
		return fmt.Errorf("backup remote copy: %w", err)
	}
	if b.ID != "" {
		r.res.Stats.BackupsCreated++
	}
	return nil
}

// tombstone marks relPath deleted. dir records which side the deletion travelled
// to; an empty dir keeps the entry's last direction.
func (se *SyncEngine) tombstone(relPath string, e *state.Entry, dir state.Direction) error {
	entry := e.Clone()
	if entry == nil {
		entry = &state.Entry{Project: se.workspace.ProjectID, Path: relPath}
	}
	entry.Tombstone(se.now())
	if dir != "" {
		entry.LastDirection = dir
	}
	if err := se.store.Save(entry); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (se *SyncEngine) reconcile(rec *Reconciliation) error {
	switch rec.Kind {
	case ReconcileTombstone:
		return se.tombstone(rec.Path, rec.Entry, "")
	case ReconcileAdopt:
		entry := &state.Entry{
			Project:        se.workspace.ProjectID,
			Path:           rec.Path,
			LocalHash:      rec.Local.Hash,
			RemoteHash:     rec.Remote.ContentHash(),
			RemoteID:       rec.Remote.ID,
			LocalModified:  rec.Local.ModTime,
			RemoteModified: rec.Remote.ModifiedAt,
			LastSynced:     se.syncedAt(rec.Remote.ModifiedAt),
			ConflictState:  state.ConflictNone,
			Size:           rec.Local.Size,
		}
		slog.Debug("sync", "op", "adopt", "path", rec.Path, "id", rec.Remote.ID)
		return se.store.Save(entry)
	}
	return fmt.Errorf("unknown reconciliation %q", rec.Kind)
}

// syncedAt never records a sync time older than the remote copy it saw, so a
// timestamp-only comparison does not flag the file as changed on the next run.
func (se *SyncEngine) syncedAt(remoteModified time.Time) time.Time {
	now := se.now()
	if remoteModified.After(now) {
		return remoteModified
	}
	return now
}

func cleanupEmptyParentDirs(dir string, root string) {
	for dir != root && len(dir) > len(root) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}

		remaining := 0
		for _, entry := range entries {
			if entry.Name() == ".DS_Store" || entry.Name() == "Thumbs.db" {
				_ = os.RemoveAll(filepath.Join(dir, entry.Name()))
			} else {
				remaining++
			}
		}
		if remaining > 0 {
			return
		}

		if err := os.Remove(dir); err != nil {
			slog.Warn("sync", "op", OpDeleteLocal, "path", dir, "error", err)
			return
		}
		dir = filepath.Dir(dir)
	}
}
