package encryption

import (
	"bytes"
	"errors"
	"testing"

	"cfgvault/internal/backup"
	"cfgvault/internal/config"
)

func TestTestEncryptor_EncryptDecrypt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "simple text", input: []byte("hello world")},
		{name: "empty", input: []byte{}},
		{name: "binary data", input: []byte{0x00, 0xff, 0x01, 0xfe}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := NewTestEncryptor()

			var encrypted bytes.Buffer
			if err := e.Encrypt(bytes.NewReader(tt.input), &encrypted); err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if !bytes.HasPrefix(encrypted.Bytes(), testHeader) {
				t.Error("encrypted output does not start with test header")
			}

			ctx, err := e.Unlock("any-passphrase")
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}
			var decrypted bytes.Buffer
			if err := ctx.Decrypt(bytes.NewReader(encrypted.Bytes()), &decrypted); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(decrypted.Bytes(), tt.input) {
				t.Errorf("round-trip failed: got %q, want %q", decrypted.Bytes(), tt.input)
			}
		})
	}
}

func TestTestEncryptor_UnlockChecksPassphraseAfterSetup(t *testing.T) {
	t.Parallel()

	e := NewTestEncryptor()
	if err := e.Setup("right"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if _, err := e.Unlock("wrong"); !errors.Is(err, backup.ErrPermissionDenied) {
		t.Errorf("Unlock(wrong) error = %v, want ErrPermissionDenied", err)
	}
	if _, err := e.Unlock("right"); err != nil {
		t.Errorf("Unlock(right) error = %v", err)
	}
}

func TestTestDecryptionContext_BadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "invalid header", input: []byte("NOT_VALID_HEADER_data")},
		{name: "truncated header", input: []byte("CV")},
		{name: "empty", input: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := &TestDecryptionContext{}
			var out bytes.Buffer
			err := ctx.Decrypt(bytes.NewReader(tt.input), &out)
			if !errors.Is(err, backup.ErrIntegrity) {
				t.Errorf("Decrypt() error = %v, want ErrIntegrity", err)
			}
		})
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.EncryptionConfig
		wantNil bool
		wantErr bool
	}{
		{name: "disabled", cfg: config.EncryptionConfig{Type: "age"}, wantNil: true},
		{name: "age", cfg: config.EncryptionConfig{Enabled: true, Type: "age"}},
		{name: "default type", cfg: config.EncryptionConfig{Enabled: true}},
		{name: "test", cfg: config.EncryptionConfig{Enabled: true, Type: "test"}},
		{name: "unknown", cfg: config.EncryptionConfig{Enabled: true, Type: "gpg"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewEncryptorFromConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewEncryptorFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (got == nil) != tt.wantNil {
				t.Errorf("NewEncryptorFromConfig() = %v, wantNil %v", got, tt.wantNil)
			}
		})
	}
}
