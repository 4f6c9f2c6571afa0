package encryption

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"cfgvault/internal/backup"
)

// testHeader marks payloads written by TestEncryptor.
var testHeader = []byte("CVENC\x00\x00\x00")

// TestEncryptor frames payloads with testHeader instead of encrypting them.
// It backs the "test" encryption type and engine tests that need an
// encrypted payload without key files. Once Setup has run, Unlock only
// accepts the same passphrase.
type TestEncryptor struct {
	passphrase *string
}

var _ backup.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.passphrase = &passphrase
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, io.MultiReader(bytes.NewReader(testHeader), r)); err != nil {
		return fmt.Errorf("framing payload: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (backup.DecryptionContext, error) {
	if e.passphrase != nil && *e.passphrase != passphrase {
		return nil, fmt.Errorf("%w: incorrect passphrase", backup.ErrPermissionDenied)
	}
	return &TestDecryptionContext{}, nil
}

// IsConfigured is always true: there are no key files to create.
func (e *TestEncryptor) IsConfigured() bool { return true }

type TestDecryptionContext struct{}

var _ backup.DecryptionContext = (*TestDecryptionContext)(nil)

// Decrypt rejects input without testHeader as backup.ErrIntegrity.
func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(testHeader))
	if err != nil || !bytes.Equal(head, testHeader) {
		return fmt.Errorf("%w: payload lacks the test encryption header", backup.ErrIntegrity)
	}
	if _, err := br.Discard(len(testHeader)); err != nil {
		return fmt.Errorf("%w: skipping header: %w", backup.ErrIntegrity, err)
	}
	if _, err := io.Copy(w, br); err != nil {
		return fmt.Errorf("unframing payload: %w", err)
	}
	return nil
}
