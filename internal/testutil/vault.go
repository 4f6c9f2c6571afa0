package testutil

import (
	"cfgvault/internal/vault"
)

// Test vault payloads live in TestVaultDir, inside the backup root TestRootDir.
const (
	TestRootDir  = "/vault"
	TestVaultDir = TestRootDir + "/settings"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() *vault.MemoryVault {
	return vault.NewMemoryVault(TestVaultDir)
}
