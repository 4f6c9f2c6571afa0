package backup

import (
	"fmt"

	"cfgvault/internal/checksum"
)

// CreateRequest describes a snapshot to take.
type CreateRequest struct {
	SourcePath string
	Type       Type // defaults to TypeManual
	Reason     string
	UserNotes  string
	// Compress forces gzip regardless of policy and size threshold.
	Compress bool
}

// CreateBackup snapshots a file and records it in the catalog.
// The operation is all-or-nothing: on any failure no record is persisted and
// the payload written so far is removed.
func (e *Engine) CreateBackup(req CreateRequest) (*Record, error) {
	const op = "create"

	typ := req.Type
	if typ == "" {
		typ = TypeManual
	}
	if _, err := ParseType(string(typ)); err != nil {
		return nil, opError(op, req.SourcePath, "", err)
	}

	src, err := e.fsmgr.Resolve(req.SourcePath)
	if err != nil {
		return nil, opError(op, req.SourcePath, "", err)
	}
	if !src.Backupable() {
		return nil, opError(op, src.String(), "", fmt.Errorf("%w: not a regular file", ErrInvalidArgument))
	}
	if e.insideRoot(src.String()) {
		return nil, opError(op, src.String(), "", fmt.Errorf("%w: source is inside the backup root", ErrInvalidArgument))
	}

	content, err := e.fsmgr.ReadFile(src)
	if err != nil {
		return nil, opError(op, src.String(), "", fmt.Errorf("reading source: %w", err))
	}
	digest := checksum.Sum(content)

	id := e.idgen.New()
	payload, compression, encryption, err := e.encode(content, req.Compress)
	if err != nil {
		return nil, opError(op, src.String(), id, fmt.Errorf("encoding payload: %w", err))
	}

	name := PayloadName(src.String(), id, compression, encryption)
	backupPath, err := e.vault.Put(name, payload, e.policy.BackupPermissions)
	if err != nil {
		return nil, opError(op, src.String(), id, fmt.Errorf("writing payload: %w", err))
	}

	rec := &Record{
		ID:             id,
		Type:           typ,
		Status:         StatusCreated,
		CreatedAt:      e.clock.Now(),
		SourcePath:     src.String(),
		BackupPath:     backupPath,
		OriginalSize:   int64(len(content)),
		BackupSize:     int64(len(payload)),
		ChecksumMD5:    digest.Fast,
		ChecksumSHA256: digest.Strong,
		PayloadSHA256:  checksum.SHA256(payload),
		Compression:    compression,
		Encryption:     encryption,
		Reason:         req.Reason,
		UserNotes:      req.UserNotes,
		Version:        FormatVersion,
	}
	if e.policy.PreserveOriginalPermissions {
		perm := src.CapturedMode()
		rec.Permissions = &perm
	}

	if e.policy.EnableVerification {
		if _, _, err := e.check(rec); err != nil {
			e.discardPayload(backupPath)
			return nil, &Error{Op: op, Path: src.String(), ID: id, Kind: KindIntegrityFailure, Err: err}
		}
		rec.Status = StatusVerified
	}

	if err := e.catalog.Save(rec); err != nil {
		e.discardPayload(backupPath)
		return nil, opError(op, src.String(), id, fmt.Errorf("saving record: %w", err))
	}

	e.logger.Info("backup created",
		"id", rec.ID,
		"source", rec.SourcePath,
		"type", string(rec.Type),
		"size", rec.OriginalSize,
		"stored", rec.BackupSize,
		"compression", string(rec.Compression))

	e.pushMirror(rec, payload)

	if e.policy.AutoCleanup {
		if _, err := e.enforceForSource(rec.SourcePath); err != nil {
			e.logger.Warn("auto cleanup failed", "source", rec.SourcePath, "error", err)
		}
	}

	return rec, nil
}

// discardPayload removes a payload whose record was never persisted.
func (e *Engine) discardPayload(path string) {
	if err := e.vault.Delete(path); err != nil {
		e.logger.Error("removing payload after failed backup", "path", path, "error", err)
	}
}
