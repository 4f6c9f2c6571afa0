package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"

	"cfgvault/internal/backup"
	"cfgvault/internal/config"
	"cfgvault/internal/staging"
)

// AgeEncryptor seals payloads to an X25519 key pair. The recipient file is
// plaintext; the identity file is itself age-encrypted to the passphrase
// through a scrypt recipient.
type AgeEncryptor struct {
	recipientFile string
	identityFile  string
}

var _ backup.Encryptor = (*AgeEncryptor)(nil)

func NewAgeEncryptor(cfg config.EncryptionConfig) *AgeEncryptor {
	return &AgeEncryptor{
		recipientFile: cfg.PublicKeyPath,
		identityFile:  cfg.PrivateKeyPath,
	}
}

// Setup generates the key pair. An existing key is never replaced since
// payloads sealed to it would become unrecoverable.
func (e *AgeEncryptor) Setup(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("%w: empty passphrase", backup.ErrInvalidArgument)
	}
	for _, p := range []string{e.recipientFile, e.identityFile} {
		if exists(p) {
			return fmt.Errorf("%w: key file already exists at %s", backup.ErrInvalidArgument, p)
		}
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating X25519 identity: %w", err)
	}
	guard, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("deriving passphrase recipient: %w", err)
	}

	var sealed bytes.Buffer
	if err := seal(&sealed, strings.NewReader(id.String()+"\n"), guard); err != nil {
		return fmt.Errorf("sealing identity: %w", err)
	}

	// The identity goes first so a recipient file never exists without it.
	if err := staging.WriteFileAtomic(e.identityFile, sealed.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing identity file: %w", err)
	}
	if err := staging.WriteFileAtomic(e.recipientFile, []byte(id.Recipient().String()+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing recipient file: %w", err)
	}
	return nil
}

func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	raw, err := os.ReadFile(e.recipientFile)
	if err != nil {
		return fmt.Errorf("reading recipient file: %w", err)
	}
	recipients, err := age.ParseRecipients(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parsing recipient file: %w", err)
	}
	if len(recipients) == 0 {
		return fmt.Errorf("recipient file %s is empty", e.recipientFile)
	}
	return seal(w, r, recipients[0])
}

// Unlock opens the identity file with passphrase. A wrong passphrase is
// reported as backup.ErrPermissionDenied.
func (e *AgeEncryptor) Unlock(passphrase string) (backup.DecryptionContext, error) {
	sealed, err := os.ReadFile(e.identityFile)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}

	guard, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("deriving passphrase identity: %w", err)
	}

	plain, err := age.Decrypt(bytes.NewReader(sealed), guard)
	var noMatch *age.NoIdentityMatchError
	switch {
	case errors.As(err, &noMatch):
		return nil, fmt.Errorf("%w: incorrect passphrase", backup.ErrPermissionDenied)
	case err != nil:
		return nil, fmt.Errorf("opening identity file: %w", err)
	}

	ids, err := age.ParseIdentities(plain)
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("identity file %s holds no key", e.identityFile)
	}
	return &AgeDecryptionContext{identity: ids[0]}, nil
}

// IsConfigured reports whether both key files are present.
func (e *AgeEncryptor) IsConfigured() bool {
	return exists(e.recipientFile) && exists(e.identityFile)
}

// AgeDecryptionContext opens payloads with an unlocked identity.
type AgeDecryptionContext struct {
	identity age.Identity
}

var _ backup.DecryptionContext = (*AgeDecryptionContext)(nil)

// Decrypt fails with backup.ErrIntegrity when r is not a payload sealed to
// this identity or was altered after sealing.
func (c *AgeDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	plain, err := age.Decrypt(r, c.identity)
	if err != nil {
		return fmt.Errorf("%w: opening age payload: %w", backup.ErrIntegrity, err)
	}
	if _, err := io.Copy(w, plain); err != nil {
		return fmt.Errorf("%w: reading age payload: %w", backup.ErrIntegrity, err)
	}
	return nil
}

func seal(w io.Writer, r io.Reader, to age.Recipient) error {
	enc, err := age.Encrypt(w, to)
	if err != nil {
		return fmt.Errorf("starting age stream: %w", err)
	}
	if _, err := io.Copy(enc, r); err != nil {
		return fmt.Errorf("writing age stream: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("closing age stream: %w", err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
