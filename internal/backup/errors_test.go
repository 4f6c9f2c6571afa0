package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindUnknown},
		{name: "missing file", err: fmt.Errorf("open: %w", fs.ErrNotExist), want: KindNotFound},
		{name: "not found sentinel", err: fmt.Errorf("record x: %w", ErrNotFound), want: KindNotFound},
		{name: "permission", err: &fs.PathError{Op: "open", Path: "/x", Err: syscall.EACCES}, want: KindPermissionDenied},
		{name: "locked key", err: ErrLocked, want: KindPermissionDenied},
		{name: "integrity", err: fmt.Errorf("%w: sha256 mismatch", ErrIntegrity), want: KindIntegrityFailure},
		{name: "disk full", err: &fs.PathError{Op: "write", Path: "/x", Err: syscall.ENOSPC}, want: KindInsufficientStorage},
		{name: "quota", err: fmt.Errorf("write: %w", syscall.EDQUOT), want: KindInsufficientStorage},
		{name: "invalid", err: fmt.Errorf("%w: bad id", ErrInvalidArgument), want: KindInvalidArgument},
		{name: "other", err: errors.New("connection reset"), want: KindIO},
		{name: "wrapped Error keeps kind", err: fmt.Errorf("outer: %w", &Error{Op: "create", Kind: KindIntegrityFailure, Err: errors.New("x")}), want: KindIntegrityFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError(t *testing.T) {
	err := opError("restore", "/cfg/settings.json", "id-1", fmt.Errorf("reading payload: %w", fs.ErrNotExist))

	if !errors.Is(err, ErrNotFound) {
		t.Error("errors.Is(err, ErrNotFound) = false")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Error("errors.Is(err, fs.ErrNotExist) = false, cause not reachable")
	}
	if errors.Is(err, ErrIntegrity) {
		t.Error("errors.Is(err, ErrIntegrity) = true")
	}

	var be *Error
	if !errors.As(err, &be) {
		t.Fatal("errors.As(*Error) = false")
	}
	if be.Op != "restore" || be.Path != "/cfg/settings.json" || be.ID != "id-1" || be.Kind != KindNotFound {
		t.Errorf("Error = %+v", be)
	}

	want := "restore /cfg/settings.json (id-1): not found: reading payload: file does not exist"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	if opError("x", "", "", nil) != nil {
		t.Error("opError(nil) should be nil")
	}
}

func TestPayloadName(t *testing.T) {
	tests := []struct {
		source string
		c      Compression
		enc    Encryption
		want   string
	}{
		{"/cfg/settings.json", CompressionNone, EncryptionNone, "settings_ID.json"},
		{"/cfg/settings.json", CompressionGzip, EncryptionNone, "settings_ID.json.gz"},
		{"/cfg/settings.json", CompressionGzip, EncryptionAge, "settings_ID.json.gz.age"},
		{"/home/u/.bashrc", CompressionNone, EncryptionNone, "bashrc_ID"},
		{"/home/u/.config.local.toml", CompressionNone, EncryptionNone, "config.local_ID.toml"},
		{"/etc/hosts", CompressionNone, EncryptionAge, "hosts_ID.age"},
	}

	for _, tt := range tests {
		if got := PayloadName(tt.source, "ID", tt.c, tt.enc); got != tt.want {
			t.Errorf("PayloadName(%q) = %q, want %q", tt.source, got, tt.want)
		}
	}
}
