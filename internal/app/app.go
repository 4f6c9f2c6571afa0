package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cfgvault/internal/backup"
	"cfgvault/internal/catalog"
	"cfgvault/internal/config"
	"cfgvault/internal/database"
	"cfgvault/internal/encryption"
	"cfgvault/internal/fs"
	"cfgvault/internal/mirror"
	"cfgvault/internal/staging"
	"cfgvault/internal/vault"
)

// App is the application layer between the CLI and the backup Engine.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw strings, and releases the catalog index and log file on Close.
type App struct {
	cfg       *config.Config
	area      *staging.Area
	catalog   backup.Catalog
	encryptor backup.Encryptor
	engine    *backup.Engine
	op        *Operation
	logger    *slogAdapter
	logFile   *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "create", "restore").
// The caller must call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	policy, err := policyFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	grace, err := cfg.Backup.OrphanGraceDuration()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", backup.ErrInvalidArgument, err)
	}
	root := cfg.Backup.RootDir

	area, err := staging.NewArea(filepath.Join(root, "temp"), cfg.Backup.MinFreeBytes)
	if err != nil {
		return nil, fmt.Errorf("creating staging area: %w", err)
	}

	v, err := vault.NewFileSystemVault(filepath.Join(root, "settings"), area)
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	store, err := catalog.NewFileStore(filepath.Join(root, "metadata"), area)
	if err != nil {
		return nil, fmt.Errorf("creating metadata store: %w", err)
	}

	if cfg.Catalog.Index == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Catalog.IndexPath), 0o700); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
	}
	cat, err := database.NewCatalogFromConfig(cfg.Catalog, store)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		closeCatalog(cat)
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	m, err := mirror.NewMirrorFromConfig(cfg.Mirror)
	if err != nil {
		closeCatalog(cat)
		return nil, fmt.Errorf("creating mirror: %w", err)
	}

	op := NewOperation(operation, time.Now())
	logger, logFile, err := newLogger(cfg.LogDir, op.ID, parseLevel(cfg.LogLevel))
	if err != nil {
		closeCatalog(cat)
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	clock := backup.RealClock{}
	engine := backup.NewEngine(policy, v, cat, fs.NewOSFilesystemManager(), adapter, clock, backup.TimestampIDGenerator{Clock: clock})
	if enc != nil {
		if enc.IsConfigured() {
			engine.SetEncryptor(enc)
		} else {
			adapter.Warn("encryption is enabled but no key exists, backups are stored unencrypted; run `cfgvault key init`")
		}
	}
	if m != nil {
		engine.SetMirror(m)
	}

	// Temp files older than the orphan grace belong to writes that were
	// interrupted, never to one still running.
	if n, err := area.Sweep(grace, clock.Now()); err != nil {
		adapter.Warn("sweeping staging area failed", "error", err)
	} else if n > 0 {
		adapter.Info("stale staged files removed", "count", n)
	}

	return &App{
		cfg:       cfg,
		area:      area,
		catalog:   cat,
		encryptor: enc,
		engine:    engine,
		op:        op,
		logger:    adapter,
		logFile:   logFile,
	}, nil
}

// policyFromConfig converts the [backup] section into an engine Policy.
func policyFromConfig(cfg *config.Config) (backup.Policy, error) {
	b := cfg.Backup
	perm, err := b.Permissions()
	if err != nil {
		return backup.Policy{}, err
	}
	root, err := filepath.Abs(b.RootDir)
	if err != nil {
		return backup.Policy{}, fmt.Errorf("resolving backup root: %w", err)
	}
	return backup.Policy{
		RootDir:                     root,
		MaxBackupsPerFile:           b.MaxBackupsPerFile,
		RetentionDays:               b.RetentionDays,
		AutoCleanup:                 b.AutoCleanup,
		EnableCompression:           b.EnableCompression,
		CompressThreshold:           b.CompressThresholdBytes,
		EnableVerification:          b.EnableVerification,
		BackupPermissions:           perm,
		PreserveOriginalPermissions: b.PreserveOriginalPermissions,
	}, nil
}

func closeCatalog(c backup.Catalog) error {
	if closer, ok := c.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config { return a.cfg }

// CreateBackup snapshots the file at rawPath. typ may be empty for a manual
// backup; compress forces gzip regardless of size.
func (a *App) CreateBackup(rawPath, typ, reason, notes string, compress bool) (*backup.Record, error) {
	t := backup.TypeManual
	if typ != "" {
		parsed, err := backup.ParseType(typ)
		if err != nil {
			return nil, a.op.Track(err)
		}
		t = parsed
	}
	rec, err := a.engine.CreateBackup(backup.CreateRequest{
		SourcePath: rawPath,
		Type:       t,
		Reason:     reason,
		UserNotes:  notes,
		Compress:   compress,
	})
	return rec, a.op.Track(err)
}

// ListBackups returns records newest first. Empty arguments match everything.
func (a *App) ListBackups(rawPath, typ, status string) ([]*backup.Record, []error, error) {
	var filter backup.Filter
	if rawPath != "" {
		abs, err := filepath.Abs(rawPath)
		if err != nil {
			return nil, nil, a.op.Track(fmt.Errorf("resolving path: %w", err))
		}
		filter.SourcePath = abs
	}
	if typ != "" {
		t, err := backup.ParseType(typ)
		if err != nil {
			return nil, nil, a.op.Track(err)
		}
		filter.Type = t
	}
	if status != "" {
		s, err := backup.ParseStatus(status)
		if err != nil {
			return nil, nil, a.op.Track(err)
		}
		filter.Status = s
	}

	records, problems, err := a.engine.ListBackups(filter)
	for _, p := range problems {
		a.logger.Warn("skipping unreadable record", "error", p)
	}
	return records, problems, a.op.Track(err)
}

// GetBackup returns one record.
func (a *App) GetBackup(id string) (*backup.Record, error) {
	rec, err := a.engine.GetBackup(id)
	return rec, a.op.Track(err)
}

// RestoreBackup restores backup id to target, or to its source when target is empty.
func (a *App) RestoreBackup(id, target string, verify bool) (string, error) {
	path, err := a.engine.RestoreBackup(id, target, verify)
	return path, a.op.Track(err)
}

// RestoreLatestBackup restores the newest restorable backup of rawPath.
func (a *App) RestoreLatestBackup(rawPath, target string, verify bool) (string, error) {
	abs, err := filepath.Abs(rawPath)
	if err != nil {
		return "", a.op.Track(fmt.Errorf("resolving path: %w", err))
	}
	path, err := a.engine.RestoreLatestBackup(abs, target, verify)
	return path, a.op.Track(err)
}

// GetStatistics summarizes the catalog.
func (a *App) GetStatistics() (*backup.Statistics, error) {
	stats, err := a.engine.GetStatistics()
	return stats, a.op.Track(err)
}

// VerifyBackup verifies one backup and persists its status.
func (a *App) VerifyBackup(id string) (bool, error) {
	ok, err := a.engine.VerifyBackup(id)
	return ok, a.op.Track(err)
}

// VerifyAllBackups re-verifies every backup.
func (a *App) VerifyAllBackups() (*backup.VerifyReport, error) {
	report, err := a.engine.VerifyAll()
	if err == nil && report.Corrupted > 0 {
		a.op.Status = "error"
	}
	return report, a.op.Track(err)
}

// CleanupOldBackups applies the configured retention policies.
func (a *App) CleanupOldBackups() (int, error) {
	n, err := a.engine.CleanupOldBackups()
	return n, a.op.Track(err)
}

// Cleanup applies retention with overrides. With dryRun set nothing is deleted.
func (a *App) Cleanup(opts backup.CleanupOptions, dryRun bool) (*backup.CleanupReport, error) {
	var (
		report *backup.CleanupReport
		err    error
	)
	if dryRun {
		report, err = a.engine.PlanCleanup(opts)
	} else {
		report, err = a.engine.Cleanup(opts)
	}
	if err == nil {
		for _, p := range report.Problems {
			a.logger.Warn("cleanup problem", "error", p)
		}
	}
	return report, a.op.Track(err)
}

// PruneOrphans removes stale staged files and payloads no record references,
// both older than the configured orphan grace. It returns the number of
// files removed.
func (a *App) PruneOrphans() (int, error) {
	grace, err := a.cfg.Backup.OrphanGraceDuration()
	if err != nil {
		return 0, a.op.Track(err)
	}
	swept, err := a.area.Sweep(grace, time.Now())
	if err != nil {
		return 0, a.op.Track(err)
	}
	pruned, err := a.engine.PruneOrphans(grace)
	return swept + pruned, a.op.Track(err)
}

// DeleteBackup deletes one backup and its payload.
func (a *App) DeleteBackup(id string) error {
	return a.op.Track(a.engine.DeleteBackup(id))
}

// EncryptionEnabled reports whether the config enables payload encryption.
func (a *App) EncryptionEnabled() bool {
	return a.encryptor != nil
}

// SetupKey generates the encryption key pair protected by passphrase.
func (a *App) SetupKey(passphrase string) error {
	if a.encryptor == nil {
		return a.op.Track(fmt.Errorf("%w: encryption is not enabled in the config", backup.ErrInvalidArgument))
	}
	if err := a.encryptor.Setup(passphrase); err != nil {
		return a.op.Track(fmt.Errorf("setting up encryption key: %w", err))
	}
	a.engine.SetEncryptor(a.encryptor)
	return nil
}

// Unlock decrypts the private key so encrypted backups can be verified and
// restored for the rest of the session.
func (a *App) Unlock(passphrase string) error {
	if a.encryptor == nil {
		return a.op.Track(fmt.Errorf("%w: encryption is not enabled in the config", backup.ErrInvalidArgument))
	}
	ctx, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return a.op.Track(fmt.Errorf("unlocking key: %w", err))
	}
	a.engine.Unlock(ctx)
	return nil
}

// Close logs the operation outcome and releases the catalog index and log file.
func (a *App) Close() error {
	var errs []error

	a.logger.Info("operation finished",
		"operation", a.op.Name,
		"status", a.op.Status,
		"duration", time.Since(a.op.Started).Truncate(time.Millisecond).String())

	if err := closeCatalog(a.catalog); err != nil {
		errs = append(errs, fmt.Errorf("closing catalog index: %w", err))
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing log file: %w", err))
		}
	}
	return errors.Join(errs...)
}

