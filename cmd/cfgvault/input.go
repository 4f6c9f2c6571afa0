package main

import (
	"fmt"
	"io"
	"os"

	"cfgvault/internal/app"
	"cfgvault/internal/backup"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// passphraseEnv supplies the key passphrase non-interactively.
const passphraseEnv = "CFGVAULT_PASSPHRASE"

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// getPassphrase returns the passphrase from the environment, or prompts on
// the terminal without echo.
func getPassphrase(w io.Writer, prompt string) (string, error) {
	if pw, ok := os.LookupEnv(passphraseEnv); ok {
		return pw, nil
	}
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return "", err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pw), nil
}

// newPassphrase asks for a new passphrase twice unless it comes from the environment.
func newPassphrase(cmd *cobra.Command) (string, error) {
	if pw, ok := os.LookupEnv(passphraseEnv); ok {
		if pw == "" {
			return "", fmt.Errorf("%w: %s is empty", backup.ErrInvalidArgument, passphraseEnv)
		}
		return pw, nil
	}

	w := cmd.ErrOrStderr()
	first, err := getPassphrase(w, "New passphrase: ")
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", fmt.Errorf("%w: passphrase must not be empty", backup.ErrInvalidArgument)
	}
	second, err := getPassphrase(w, "Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("%w: passphrases do not match", backup.ErrInvalidArgument)
	}
	return first, nil
}

func unlock(cmd *cobra.Command, a *app.App) error {
	pw, err := getPassphrase(cmd.ErrOrStderr(), "Passphrase: ")
	if err != nil {
		return err
	}
	return a.Unlock(pw)
}
