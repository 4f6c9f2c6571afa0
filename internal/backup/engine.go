// Package backup implements the backup-and-restore engine: snapshotting
// configuration files before they are modified, cataloging the snapshots
// with integrity metadata, restoring them, and enforcing retention.
package backup

import (
	"bytes"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"cfgvault/internal/checksum"
	"cfgvault/internal/compress"
)

// Policy holds the engine's behavioral settings.
type Policy struct {
	// RootDir is the backup root. Sources and restore targets inside it are
	// rejected so the engine never snapshots its own storage.
	RootDir string

	// MaxBackupsPerFile is the count policy limit; 0 disables it.
	MaxBackupsPerFile int
	// RetentionDays is the age policy limit; 0 disables it.
	RetentionDays int
	// AutoCleanup runs both policies for a source after each backup of it.
	AutoCleanup bool

	EnableCompression  bool
	CompressThreshold  int64
	EnableVerification bool

	// BackupPermissions is applied to every payload file.
	BackupPermissions fs.FileMode
	// PreserveOriginalPermissions captures source permission bits in the
	// record and reapplies them on restore.
	PreserveOriginalPermissions bool
}

// DefaultPolicy returns the settings used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxBackupsPerFile:           10,
		RetentionDays:               30,
		AutoCleanup:                 true,
		EnableCompression:           false,
		CompressThreshold:           compress.DefaultThreshold,
		EnableVerification:          true,
		BackupPermissions:           0o600,
		PreserveOriginalPermissions: true,
	}
}

// Engine orchestrates creation, verification, restoration and retention
// of backups. It is safe for concurrent use by multiple goroutines once
// configured; Unlock and the Set methods must be called before sharing it.
type Engine struct {
	policy    Policy
	vault     Vault
	catalog   Catalog
	fsmgr     FilesystemManager
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	encryptor Encryptor
	decrypter DecryptionContext
	mirror    Mirror
}

// NewEngine creates an Engine with the provided dependencies.
func NewEngine(policy Policy, vault Vault, catalog Catalog, fsmgr FilesystemManager, logger Logger, clock Clock, idgen IDGenerator) *Engine {
	if policy.BackupPermissions == 0 {
		policy.BackupPermissions = 0o600
	}
	if policy.CompressThreshold < 0 {
		policy.CompressThreshold = compress.DefaultThreshold
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	if idgen == nil {
		idgen = TimestampIDGenerator{Clock: clock}
	}
	return &Engine{
		policy:  policy,
		vault:   vault,
		catalog: catalog,
		fsmgr:   fsmgr,
		logger:  logger,
		clock:   clock,
		idgen:   idgen,
	}
}

// SetEncryptor enables payload encryption for new backups.
func (e *Engine) SetEncryptor(enc Encryptor) { e.encryptor = enc }

// SetMirror enables mirroring of new and deleted backups.
func (e *Engine) SetMirror(m Mirror) { e.mirror = m }

// Unlock supplies the key used to decode encrypted payloads during
// verification and restore.
func (e *Engine) Unlock(ctx DecryptionContext) { e.decrypter = ctx }

// Policy returns the engine's settings.
func (e *Engine) Policy() Policy { return e.policy }

// PayloadName builds the payload file name for a backup of sourcePath:
// <stem>_<id><ext>, followed by the codec extensions. Leading dots are
// dropped so payloads of dotfiles are not hidden files.
func PayloadName(sourcePath, id string, c Compression, enc Encryption) string {
	base := strings.TrimLeft(filepath.Base(sourcePath), ".")
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem, ext = base, ""
	}
	if stem == "" {
		stem = "file"
	}

	name := stem + "_" + id + ext
	if c == CompressionGzip {
		name += compress.Extension
	}
	if enc == EncryptionAge {
		name += ".age"
	}
	return name
}

// encode turns source content into the stored payload.
func (e *Engine) encode(content []byte, forceCompress bool) ([]byte, Compression, Encryption, error) {
	payload := content
	compression := CompressionNone
	encryption := EncryptionNone

	size := int64(len(content))
	if forceCompress || (e.policy.EnableCompression && compress.ShouldCompress(size, e.policy.CompressThreshold)) {
		packed, err := compress.Compress(content)
		if err != nil {
			return nil, "", "", err
		}
		payload = packed
		compression = CompressionGzip
	}

	if e.encryptor != nil {
		var buf bytes.Buffer
		if err := e.encryptor.Encrypt(bytes.NewReader(payload), &buf); err != nil {
			return nil, "", "", fmt.Errorf("encrypting payload: %w", err)
		}
		payload = buf.Bytes()
		encryption = EncryptionAge
	}

	return payload, compression, encryption, nil
}

// decode reverses encode using the codecs recorded in rec.
func (e *Engine) decode(rec *Record, payload []byte) ([]byte, error) {
	data := payload

	switch rec.Encryption {
	case EncryptionAge:
		if e.decrypter == nil {
			return nil, ErrLocked
		}
		var buf bytes.Buffer
		if err := e.decrypter.Decrypt(bytes.NewReader(data), &buf); err != nil {
			return nil, fmt.Errorf("decrypting payload: %w", err)
		}
		data = buf.Bytes()
	case EncryptionNone:
	default:
		return nil, fmt.Errorf("%w: unsupported encryption %q", ErrInvalidArgument, rec.Encryption)
	}

	switch rec.Compression {
	case CompressionGzip:
		out, err := compress.Decompress(data)
		if err != nil {
			return nil, err
		}
		data = out
	case CompressionNone:
	default:
		return nil, fmt.Errorf("%w: unsupported compression %q", ErrInvalidArgument, rec.Compression)
	}

	return data, nil
}

// contentDigest returns the digests recorded for rec's original content.
func contentDigest(rec *Record) checksum.Digest {
	return checksum.Digest{Strong: rec.ChecksumSHA256, Fast: rec.ChecksumMD5}
}

// insideRoot reports whether absPath is the backup root or below it.
func (e *Engine) insideRoot(absPath string) bool {
	if e.policy.RootDir == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(e.policy.RootDir), absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// updateStatus persists a new status for the record with the given id.
// Status is the only field ever rewritten after creation.
func (e *Engine) updateStatus(id string, status Status) error {
	rec, err := e.catalog.Load(id)
	if err != nil {
		return err
	}
	if rec.Status == status {
		return nil
	}
	rec.Status = status
	return e.catalog.Save(rec)
}

func (e *Engine) pushMirror(rec *Record, payload []byte) {
	if e.mirror == nil {
		return
	}
	if err := e.mirror.Push(rec.Clone(), payload); err != nil {
		e.logger.Warn("mirror upload failed", "id", rec.ID, "error", err)
	}
}

func (e *Engine) removeMirror(rec *Record) {
	if e.mirror == nil {
		return
	}
	if err := e.mirror.Remove(rec.Clone()); err != nil {
		e.logger.Warn("mirror removal failed", "id", rec.ID, "error", err)
	}
}
