package encryption

import (
	"fmt"

	"cfgvault/internal/backup"
	"cfgvault/internal/config"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration
// type. It returns nil when encryption is disabled.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (backup.Encryptor, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Type {
	case "age", "":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
