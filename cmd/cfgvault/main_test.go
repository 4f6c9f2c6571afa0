package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cfgvault/internal/backup"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"not found", fmt.Errorf("loading: %w", backup.ErrNotFound), exitNotFound},
		{"integrity", fmt.Errorf("%w: backup x is corrupted", backup.ErrIntegrity), exitIntegrity},
		{"locked", backup.ErrLocked, exitPermission},
		{"permission", os.ErrPermission, exitPermission},
		{"storage", backup.ErrInsufficientStorage, exitStorage},
		{"invalid", fmt.Errorf("%w: bad flag", backup.ErrInvalidArgument), exitInvalidInput},
		{"other", errors.New("boom"), exitGeneric},
		{"typed", &backup.Error{Op: "restore", Kind: backup.KindNotFound, Err: errors.New("gone")}, exitNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func stubReadPassword(t *testing.T, answers ...string) {
	t.Helper()
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })
	readPassword = func(int) ([]byte, error) {
		if len(answers) == 0 {
			return nil, errors.New("no more input")
		}
		a := answers[0]
		answers = answers[1:]
		return []byte(a), nil
	}
}

func TestGetPassphrase(t *testing.T) {
	t.Run("from environment", func(t *testing.T) {
		t.Setenv(passphraseEnv, "from-env")
		stubReadPassword(t)
		var buf bytes.Buffer
		got, err := getPassphrase(&buf, "Passphrase: ")
		if err != nil || got != "from-env" {
			t.Errorf("getPassphrase() = %q, %v", got, err)
		}
		if buf.Len() != 0 {
			t.Errorf("prompt printed: %q", buf.String())
		}
	})

	t.Run("from terminal", func(t *testing.T) {
		t.Setenv(passphraseEnv, "")
		os.Unsetenv(passphraseEnv)
		stubReadPassword(t, "typed")
		var buf bytes.Buffer
		got, err := getPassphrase(&buf, "Passphrase: ")
		if err != nil || got != "typed" {
			t.Errorf("getPassphrase() = %q, %v", got, err)
		}
		if buf.String() != "Passphrase: \n" {
			t.Errorf("prompt = %q", buf.String())
		}
	})
}

func TestNewPassphrase(t *testing.T) {
	t.Setenv(passphraseEnv, "")
	os.Unsetenv(passphraseEnv)

	tests := []struct {
		name    string
		answers []string
		want    string
		wantErr error
	}{
		{"match", []string{"secret", "secret"}, "secret", nil},
		{"mismatch", []string{"secret", "other"}, "", backup.ErrInvalidArgument},
		{"empty", []string{""}, "", backup.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubReadPassword(t, tt.answers...)
			cmd := &cobra.Command{}
			cmd.SetErr(&bytes.Buffer{})

			got, err := newPassphrase(cmd)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("newPassphrase() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("newPassphrase() = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestPrintRecords(t *testing.T) {
	created := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	records := []*backup.Record{{
		ID:         "settings_20240115_103000_abcdef12",
		Type:       backup.TypeManual,
		Status:     backup.StatusVerified,
		CreatedAt:  created,
		SourcePath: "/home/u/settings.json",
		BackupSize: 2048,
	}}

	var table bytes.Buffer
	if err := printRecords(&table, formatTable, records); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(table.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "ID") {
		t.Fatalf("table = %q", table.String())
	}
	for _, want := range []string{"settings_20240115_103000_abcdef12", "manual", "verified", "2.0 kB", "/home/u/settings.json"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("row %q missing %q", lines[1], want)
		}
	}

	var empty bytes.Buffer
	if err := printRecords(&empty, formatJSON, nil); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(empty.String()) != "[]" {
		t.Errorf("empty json = %q, want []", empty.String())
	}
}

func TestPrintCleanupReport(t *testing.T) {
	report := &backup.CleanupReport{
		DryRun: true,
		Candidates: []backup.CleanupCandidate{
			{Record: &backup.Record{ID: "a_1", SourcePath: "/a"}, Reason: backup.ReasonCount},
		},
	}

	var buf bytes.Buffer
	if err := printCleanupReport(&buf, formatTable, report); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "a_1") || !strings.Contains(buf.String(), "1 backup(s) would be deleted") {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	if err := printCleanupReport(&buf, formatJSON, report); err != nil {
		t.Fatal(err)
	}
	var out struct {
		DryRun     bool `json:"dry_run"`
		Candidates []struct {
			ID     string `json:"id"`
			Reason string `json:"reason"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decoding %q: %v", buf.String(), err)
	}
	if !out.DryRun || len(out.Candidates) != 1 || out.Candidates[0].Reason != "count" {
		t.Errorf("json = %+v", out)
	}
}

func TestCLI_CreateAndList(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CFGVAULT_HOME", filepath.Join(dir, "data"))
	t.Setenv("CFGVAULT_CONFIG_PATH", filepath.Join(dir, "missing.toml"))

	src := filepath.Join(dir, "app.conf")
	if err := os.WriteFile(src, []byte("debug = true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&bytes.Buffer{})
		rootCmd.SetArgs(args)
		err := rootCmd.Execute()
		return out.String(), err
	}

	out, err := run("create", src, "--reason", "cli test")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(out, "Created backup ") {
		t.Errorf("create output = %q", out)
	}

	out, err = run("list", src, "-o", "json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var recs []map[string]any
	if err := json.Unmarshal([]byte(out), &recs); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(recs) != 1 || recs[0]["reason"] != "cli test" || recs[0]["status"] != "verified" {
		t.Errorf("list = %v", recs)
	}

	_, err = run("delete", "does-not-exist", "-o", "table")
	if exitCode(err) != exitNotFound {
		t.Errorf("delete unknown: exit code %d (%v), want %d", exitCode(err), err, exitNotFound)
	}
}
