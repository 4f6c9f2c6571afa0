package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for cfgvault.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	LogLevel   string           `toml:"log_level"` // "debug", "info" (default), "warn" or "error"
	Backup     BackupConfig     `toml:"backup"`
	Catalog    CatalogConfig    `toml:"catalog"`
	Encryption EncryptionConfig `toml:"encryption"`
	Mirror     MirrorConfig     `toml:"mirror"`
}

// BackupConfig holds the backup root and the engine policy.
type BackupConfig struct {
	RootDir                     string `toml:"root_dir"`
	MaxBackupsPerFile           int    `toml:"max_backups_per_file"` // 0 disables the count policy
	RetentionDays               int    `toml:"retention_days"`       // 0 disables the age policy
	AutoCleanup                 bool   `toml:"auto_cleanup"`
	EnableCompression           bool   `toml:"enable_compression"`
	CompressThresholdBytes      int64  `toml:"compress_threshold_bytes"`
	EnableVerification          bool   `toml:"enable_verification"`
	BackupPermissions           string `toml:"backup_permissions"` // octal, e.g. "0600"
	PreserveOriginalPermissions bool   `toml:"preserve_original_permissions"`
	OrphanGrace                 string `toml:"orphan_grace"` // Go duration, e.g. "1h"
	MinFreeBytes                int64  `toml:"min_free_bytes"`
}

// CatalogConfig selects the catalog index.
// This uses a tagged union pattern - the Index field determines which other fields are relevant.
type CatalogConfig struct {
	Index     string `toml:"index"`                // "none" (default), "sqlite" or "memory"
	IndexPath string `toml:"index_path,omitempty"` // only used for index=sqlite
}

// EncryptionConfig holds paths to the age key pair used for payload encryption.
type EncryptionConfig struct {
	Enabled        bool   `toml:"enabled"`
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// MirrorConfig configures the off-host copy of payloads and records.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type MirrorConfig struct {
	Type string `toml:"type"` // "none" (default), "memory" or "s3"

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
	Timeout           string `toml:"timeout,omitempty"`
}

const (
	defaultOrphanGrace   = time.Hour
	defaultMirrorTimeout = 30 * time.Second
)

// NewConfig creates a Config with every default applied for baseDir.
func NewConfig(baseDir string) *Config {
	cfg := defaults()
	cfg.ApplyDefaults(baseDir)
	return cfg
}

// defaults holds the non-path defaults. Read decodes on top of it so keys
// missing from the file keep their default value.
func defaults() *Config {
	return &Config{
		LogLevel: "info",
		Backup: BackupConfig{
			MaxBackupsPerFile:           10,
			RetentionDays:               30,
			AutoCleanup:                 true,
			EnableCompression:           false,
			CompressThresholdBytes:      100 * 1024,
			EnableVerification:          true,
			BackupPermissions:           "0600",
			PreserveOriginalPermissions: true,
			OrphanGrace:                 defaultOrphanGrace.String(),
		},
		Catalog:    CatalogConfig{Index: "none"},
		Encryption: EncryptionConfig{Type: "age"},
		Mirror:     MirrorConfig{Type: "none"},
	}
}

// ApplyDefaults fills BaseDir (when empty) and every empty path derived
// from it.
func (c *Config) ApplyDefaults(baseDir string) {
	if c.BaseDir == "" {
		c.BaseDir = baseDir
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(c.BaseDir, "log")
	}
	if c.Backup.RootDir == "" {
		c.Backup.RootDir = filepath.Join(c.BaseDir, "backups")
	}
	if c.Catalog.IndexPath == "" {
		c.Catalog.IndexPath = filepath.Join(c.BaseDir, "catalog.db")
	}
	if c.Encryption.PublicKeyPath == "" {
		c.Encryption.PublicKeyPath = filepath.Join(c.BaseDir, "keys", "cfgvault.pub")
	}
	if c.Encryption.PrivateKeyPath == "" {
		c.Encryption.PrivateKeyPath = filepath.Join(c.BaseDir, "keys", "cfgvault.key")
	}
}

// Validate rejects unknown enum values and malformed numbers.
func (c *Config) Validate() error {
	var errs []error

	if c.BaseDir == "" {
		errs = append(errs, errors.New("base_dir is required"))
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level: %q", c.LogLevel))
	}

	b := c.Backup
	if b.MaxBackupsPerFile < 0 {
		errs = append(errs, fmt.Errorf("backup.max_backups_per_file must not be negative, got %d", b.MaxBackupsPerFile))
	}
	if b.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("backup.retention_days must not be negative, got %d", b.RetentionDays))
	}
	if b.CompressThresholdBytes < 0 {
		errs = append(errs, fmt.Errorf("backup.compress_threshold_bytes must not be negative, got %d", b.CompressThresholdBytes))
	}
	if b.MinFreeBytes < 0 {
		errs = append(errs, fmt.Errorf("backup.min_free_bytes must not be negative, got %d", b.MinFreeBytes))
	}
	if _, err := b.Permissions(); err != nil {
		errs = append(errs, err)
	}
	if _, err := b.OrphanGraceDuration(); err != nil {
		errs = append(errs, err)
	}

	switch c.Catalog.Index {
	case "", "none", "memory":
	case "sqlite":
		if c.Catalog.IndexPath == "" {
			errs = append(errs, errors.New("catalog.index_path is required for index=sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown catalog.index: %q", c.Catalog.Index))
	}

	switch c.Encryption.Type {
	case "", "age", "test":
	default:
		errs = append(errs, fmt.Errorf("unknown encryption.type: %q", c.Encryption.Type))
	}

	switch c.Mirror.Type {
	case "", "none", "memory":
	case "s3":
		if c.Mirror.S3Bucket == "" {
			errs = append(errs, errors.New("mirror.s3_bucket is required for type=s3"))
		}
		if c.Mirror.S3Region == "" {
			errs = append(errs, errors.New("mirror.s3_region is required for type=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mirror.type: %q", c.Mirror.Type))
	}
	if _, err := c.Mirror.TimeoutDuration(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Permissions parses backup_permissions as an octal mode.
func (b BackupConfig) Permissions() (os.FileMode, error) {
	if b.BackupPermissions == "" {
		return 0o600, nil
	}
	v, err := strconv.ParseUint(b.BackupPermissions, 8, 32)
	if err != nil || v > 0o777 {
		return 0, fmt.Errorf("backup.backup_permissions must be an octal mode like \"0600\", got %q", b.BackupPermissions)
	}
	return os.FileMode(v), nil
}

// OrphanGraceDuration parses orphan_grace.
func (b BackupConfig) OrphanGraceDuration() (time.Duration, error) {
	if b.OrphanGrace == "" {
		return defaultOrphanGrace, nil
	}
	d, err := time.ParseDuration(b.OrphanGrace)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("backup.orphan_grace must be a non-negative duration, got %q", b.OrphanGrace)
	}
	return d, nil
}

// TimeoutDuration parses the mirror timeout.
func (m MirrorConfig) TimeoutDuration() (time.Duration, error) {
	if m.Timeout == "" {
		return defaultMirrorTimeout, nil
	}
	d, err := time.ParseDuration(m.Timeout)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("mirror.timeout must be a positive duration, got %q", m.Timeout)
	}
	return d, nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader. Keys missing from the
// input keep their defaults; paths are left empty for ApplyDefaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := defaults()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path. A missing file
// is reported with an error wrapping fs.ErrNotExist.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// 0600: the mirror section can hold credentials.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
