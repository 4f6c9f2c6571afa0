package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
)

// defaultRestorePerm is used for targets that did not exist and whose
// record captured no permissions.
const defaultRestorePerm fs.FileMode = 0o644

// RestoreBackup writes the content of backup id to targetPath, or to the
// record's source path when targetPath is empty, and returns the path written.
//
// With verify set, a payload failing verification stops the restore.
// An existing target is snapshotted as an auto-pre-modify backup first; a
// failed snapshot is logged and does not block the restore. The target is
// replaced atomically, so a failed write leaves it untouched.
func (e *Engine) RestoreBackup(id, targetPath string, verify bool) (string, error) {
	const op = "restore"

	rec, err := e.catalog.Load(id)
	if err != nil {
		return "", opError(op, targetPath, id, err)
	}

	target := targetPath
	if target == "" {
		target = rec.SourcePath
	}
	target, err = filepath.Abs(target)
	if err != nil {
		return "", opError(op, targetPath, id, fmt.Errorf("%w: resolving target: %w", ErrInvalidArgument, err))
	}
	if e.insideRoot(target) {
		return "", opError(op, target, id, fmt.Errorf("%w: target is inside the backup root", ErrInvalidArgument))
	}

	// The content is loaded before the safety snapshot because the
	// snapshot's auto cleanup may remove rec.
	content, err := e.restorableContent(rec, verify)
	if err != nil {
		return "", opError(op, target, id, err)
	}

	perm := defaultRestorePerm
	existing, err := e.fsmgr.Resolve(target)
	switch {
	case err == nil:
		perm = existing.Info().Mode().Perm()
		snap, err := e.CreateBackup(CreateRequest{
			SourcePath: target,
			Type:       TypeAutoPreModify,
			Reason:     "before restoring backup " + rec.ID,
		})
		if err != nil {
			e.logger.Warn("safety backup failed, restoring anyway", "target", target, "error", err)
		} else {
			e.logger.Info("safety backup created", "target", target, "id", snap.ID)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		e.logger.Warn("cannot inspect restore target", "target", target, "error", err)
	}

	if err := e.fsmgr.WriteFile(target, content, perm); err != nil {
		return "", opError(op, target, id, fmt.Errorf("writing target: %w", err))
	}

	if rec.Permissions != nil {
		if err := e.fsmgr.Chmod(target, *rec.Permissions); err != nil {
			e.logger.Warn("restoring permissions failed", "target", target, "mode", FormatPermissions(*rec.Permissions), "error", err)
		}
	}

	e.logger.Info("backup restored", "id", rec.ID, "target", target, "size", len(content))
	return target, nil
}

// restorableContent returns the decoded content of rec, verifying it first
// when asked.
func (e *Engine) restorableContent(rec *Record, verify bool) ([]byte, error) {
	if verify {
		content, decoded, err := e.check(rec)
		if err != nil {
			if corruptionSignal(err) {
				return nil, &Error{Op: "verify", Path: rec.BackupPath, ID: rec.ID, Kind: KindIntegrityFailure, Err: err}
			}
			return nil, err
		}
		if !decoded {
			return nil, ErrLocked
		}
		return content, nil
	}

	payload, err := e.vault.Get(rec.BackupPath)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	content, err := e.decode(rec, payload)
	if err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return content, nil
}

// RestoreLatestBackup restores the newest restorable backup of sourcePath.
// Corrupted and expired records are never picked. It fails with ErrNotFound
// when sourcePath has no restorable backup. verify has the same meaning as
// in RestoreBackup.
func (e *Engine) RestoreLatestBackup(sourcePath, targetPath string, verify bool) (string, error) {
	rec, err := e.LatestBackup(sourcePath)
	if err != nil {
		return "", err
	}
	return e.RestoreBackup(rec.ID, targetPath, verify)
}
