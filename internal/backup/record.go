package backup

import (
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// FormatVersion is written into every record's "version" field.
const FormatVersion = "1.0"

// Type describes why a snapshot was taken. It is informational only.
type Type string

const (
	TypeManual        Type = "manual"
	TypeAutoPreModify Type = "auto-pre-modify"
	TypeScheduled     Type = "scheduled"
	TypeIncremental   Type = "incremental"
)

// Types lists every valid Type in display order.
var Types = []Type{TypeManual, TypeAutoPreModify, TypeScheduled, TypeIncremental}

// ParseType parses a Type, accepting the legacy underscore spelling.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manual":
		return TypeManual, nil
	case "auto-pre-modify", "auto_pre_modify":
		return TypeAutoPreModify, nil
	case "scheduled":
		return TypeScheduled, nil
	case "incremental":
		return TypeIncremental, nil
	default:
		return "", fmt.Errorf("%w: unknown backup type %q", ErrInvalidArgument, s)
	}
}

// Status is the lifecycle state of a record. It is the only mutable field.
type Status string

const (
	StatusCreated   Status = "created"
	StatusVerified  Status = "verified"
	StatusCorrupted Status = "corrupted"
	StatusExpired   Status = "expired"
)

// Statuses lists every valid Status in lifecycle order.
var Statuses = []Status{StatusCreated, StatusVerified, StatusCorrupted, StatusExpired}

// ParseStatus parses a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusCreated:
		return StatusCreated, nil
	case StatusVerified:
		return StatusVerified, nil
	case StatusCorrupted:
		return StatusCorrupted, nil
	case StatusExpired:
		return StatusExpired, nil
	default:
		return "", fmt.Errorf("%w: unknown backup status %q", ErrInvalidArgument, s)
	}
}

// Restorable reports whether a record in this state may be picked as
// the latest restore candidate.
func (s Status) Restorable() bool {
	switch s {
	case StatusCreated, StatusVerified:
		return true
	case StatusCorrupted, StatusExpired:
		return false
	default:
		return false
	}
}

// Compression identifies the payload codec.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
)

// ParseCompression parses a Compression value.
func ParseCompression(s string) (Compression, error) {
	switch Compression(strings.ToLower(strings.TrimSpace(s))) {
	case CompressionNone, "":
		return CompressionNone, nil
	case CompressionGzip:
		return CompressionGzip, nil
	default:
		return "", fmt.Errorf("%w: unknown compression %q", ErrInvalidArgument, s)
	}
}

// Encryption identifies the payload cipher.
type Encryption string

const (
	EncryptionNone Encryption = "none"
	EncryptionAge  Encryption = "age"
)

// ParseEncryption parses an Encryption value. Records written before
// encryption support carry no field and decode as EncryptionNone.
func ParseEncryption(s string) (Encryption, error) {
	switch Encryption(strings.ToLower(strings.TrimSpace(s))) {
	case EncryptionNone, "":
		return EncryptionNone, nil
	case EncryptionAge:
		return EncryptionAge, nil
	default:
		return "", fmt.Errorf("%w: unknown encryption %q", ErrInvalidArgument, s)
	}
}

// Record is the catalog entry describing one stored snapshot.
// Every field except Status is fixed at creation time.
type Record struct {
	ID             string
	Type           Type
	Status         Status
	CreatedAt      time.Time
	SourcePath     string
	BackupPath     string
	OriginalSize   int64
	BackupSize     int64
	ChecksumMD5    string // over uncompressed content
	ChecksumSHA256 string // over uncompressed content
	PayloadSHA256  string // over the stored bytes; empty for legacy records
	Compression    Compression
	Encryption     Encryption
	Reason         string
	UserNotes      string
	// Permissions holds the source file's permission bits, nil if not captured.
	Permissions *fs.FileMode
	Version     string
}

// Clone returns a copy of r that shares no pointers with it.
func (r *Record) Clone() *Record {
	c := *r
	if r.Permissions != nil {
		p := *r.Permissions
		c.Permissions = &p
	}
	return &c
}

// recordJSON is the on-disk shape of a Record.
type recordJSON struct {
	BackupID        string  `json:"backup_id"`
	BackupType      string  `json:"backup_type"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
	SourceFilePath  string  `json:"source_file_path"`
	BackupFilePath  string  `json:"backup_file_path"`
	OriginalSize    int64   `json:"original_size"`
	BackupSize      int64   `json:"backup_size"`
	ChecksumMD5     string  `json:"checksum_md5"`
	ChecksumSHA256  string  `json:"checksum_sha256"`
	PayloadSHA256   string  `json:"payload_sha256,omitempty"`
	Compression     string  `json:"compression"`
	Encryption      string  `json:"encryption,omitempty"`
	Reason          string  `json:"reason"`
	UserNotes       string  `json:"user_notes"`
	FilePermissions *string `json:"file_permissions"`
	Version         string  `json:"version"`
}

// MarshalJSON encodes the record in the catalog's JSON format.
func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		BackupID:       r.ID,
		BackupType:     string(r.Type),
		Status:         string(r.Status),
		CreatedAt:      r.CreatedAt.Format(time.RFC3339Nano),
		SourceFilePath: r.SourcePath,
		BackupFilePath: r.BackupPath,
		OriginalSize:   r.OriginalSize,
		BackupSize:     r.BackupSize,
		ChecksumMD5:    r.ChecksumMD5,
		ChecksumSHA256: r.ChecksumSHA256,
		PayloadSHA256:  r.PayloadSHA256,
		Compression:    string(r.Compression),
		Reason:         r.Reason,
		UserNotes:      r.UserNotes,
		Version:        r.Version,
	}
	if r.Encryption != "" && r.Encryption != EncryptionNone {
		out.Encryption = string(r.Encryption)
	}
	if out.Version == "" {
		out.Version = FormatVersion
	}
	if r.Permissions != nil {
		s := FormatPermissions(*r.Permissions)
		out.FilePermissions = &s
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a record, accepting the legacy field spellings
// written by earlier versions of the catalog.
func (r *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	typ, err := ParseType(in.BackupType)
	if err != nil {
		return err
	}
	status, err := ParseStatus(in.Status)
	if err != nil {
		return err
	}
	compression, err := ParseCompression(in.Compression)
	if err != nil {
		return err
	}
	encryption, err := ParseEncryption(in.Encryption)
	if err != nil {
		return err
	}
	createdAt, err := ParseTimestamp(in.CreatedAt)
	if err != nil {
		return err
	}

	var perms *fs.FileMode
	if in.FilePermissions != nil && *in.FilePermissions != "" {
		p, err := ParsePermissions(*in.FilePermissions)
		if err != nil {
			return err
		}
		perms = &p
	}

	*r = Record{
		ID:             in.BackupID,
		Type:           typ,
		Status:         status,
		CreatedAt:      createdAt,
		SourcePath:     in.SourceFilePath,
		BackupPath:     in.BackupFilePath,
		OriginalSize:   in.OriginalSize,
		BackupSize:     in.BackupSize,
		ChecksumMD5:    in.ChecksumMD5,
		ChecksumSHA256: in.ChecksumSHA256,
		PayloadSHA256:  in.PayloadSHA256,
		Compression:    compression,
		Encryption:     encryption,
		Reason:         in.Reason,
		UserNotes:      in.UserNotes,
		Permissions:    perms,
		Version:        in.Version,
	}
	return nil
}

// timestampLayouts are tried in order by ParseTimestamp. The naive layouts
// match ISO-8601 values written without a zone, which are read as local time.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses an ISO-8601 timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid timestamp %q", ErrInvalidArgument, s)
}

// FormatPermissions renders permission bits as a four digit octal string.
func FormatPermissions(mode fs.FileMode) string {
	return fmt.Sprintf("%04o", uint32(mode.Perm())|modeSpecialBits(mode))
}

// modeSpecialBits maps Go's setuid/setgid/sticky flags onto their octal positions.
func modeSpecialBits(mode fs.FileMode) uint32 {
	var bits uint32
	if mode&fs.ModeSetuid != 0 {
		bits |= 0o4000
	}
	if mode&fs.ModeSetgid != 0 {
		bits |= 0o2000
	}
	if mode&fs.ModeSticky != 0 {
		bits |= 0o1000
	}
	return bits
}

// ParsePermissions parses an octal permission string. Values carrying file
// type bits (e.g. "0o100644") are masked down to the permission bits.
func ParsePermissions(s string) (fs.FileMode, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "0o"), "0O")
	v, err := strconv.ParseUint(raw, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid permissions %q", ErrInvalidArgument, s)
	}

	mode := fs.FileMode(v & 0o777)
	if v&0o4000 != 0 {
		mode |= fs.ModeSetuid
	}
	if v&0o2000 != 0 {
		mode |= fs.ModeSetgid
	}
	if v&0o1000 != 0 {
		mode |= fs.ModeSticky
	}
	return mode, nil
}

// Filter selects records by source path, type and status.
// Zero-valued fields match everything.
type Filter struct {
	SourcePath string
	Type       Type
	Status     Status
}

// Match reports whether rec satisfies the filter.
func (f Filter) Match(rec *Record) bool {
	if f.SourcePath != "" && rec.SourcePath != f.SourcePath {
		return false
	}
	if f.Type != "" && rec.Type != f.Type {
		return false
	}
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	return true
}
