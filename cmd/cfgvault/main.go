package main

import (
	"errors"
	"fmt"
	"os"

	"cfgvault/internal/app"
	"cfgvault/internal/backup"
	"cfgvault/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// Exit codes by error kind.
const (
	exitOK           = 0
	exitGeneric      = 1
	exitNotFound     = 2
	exitIntegrity    = 3
	exitPermission   = 4
	exitStorage      = 5
	exitInvalidInput = 6
)

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	switch backup.KindOf(err) {
	case backup.KindNotFound:
		return exitNotFound
	case backup.KindIntegrityFailure:
		return exitIntegrity
	case backup.KindPermissionDenied:
		return exitPermission
	case backup.KindInsufficientStorage:
		return exitStorage
	case backup.KindInvalidArgument:
		return exitInvalidInput
	default:
		return exitGeneric
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "create", "restore").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := app.LoadConfig(defaults["config_path"], defaults["base_dir"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:           "cfgvault",
	Short:         "Versioned backups of configuration files",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backup statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("status")
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.GetStatistics()
		if err != nil {
			return err
		}
		return printStatistics(cmd.OutOrStdout(), outputFormat(cmd), stats)
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list [FILE]",
	Short: "List backups, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")
		status, _ := cmd.Flags().GetString("status")

		a, err := newApp("list")
		if err != nil {
			return err
		}
		defer a.Close()

		var file string
		if len(args) > 0 {
			file = args[0]
		}

		records, problems, err := a.ListBackups(file, typ, status)
		if err != nil {
			return err
		}
		if len(problems) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d unreadable record(s) skipped\n", len(problems))
		}
		return printRecords(cmd.OutOrStdout(), outputFormat(cmd), records)
	},
}

// create command
var createCmd = &cobra.Command{
	Use:   "create FILE",
	Short: "Back up a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")
		reason, _ := cmd.Flags().GetString("reason")
		notes, _ := cmd.Flags().GetString("notes")
		compress, _ := cmd.Flags().GetBool("compress")

		a, err := newApp("create")
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.CreateBackup(args[0], typ, reason, notes, compress)
		if err != nil {
			return err
		}

		if outputFormat(cmd) == formatJSON {
			return printJSON(cmd.OutOrStdout(), rec)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created backup %s of %s (%s)\n", rec.ID, rec.SourcePath, rec.Status)
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore [ID]",
	Short: "Restore a backup",
	Long: "Restore the backup with the given id, or with --file the newest intact backup of that file.\n" +
		"An existing target is backed up before it is overwritten.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		target, _ := cmd.Flags().GetString("target")
		noVerify, _ := cmd.Flags().GetBool("no-verify")

		if (len(args) == 0) == (file == "") {
			return fmt.Errorf("%w: give either a backup id or --file", backup.ErrInvalidArgument)
		}

		a, err := newApp("restore")
		if err != nil {
			return err
		}
		defer a.Close()

		restore := func() (string, error) {
			if len(args) > 0 {
				return a.RestoreBackup(args[0], target, !noVerify)
			}
			return a.RestoreLatestBackup(file, target, !noVerify)
		}

		path, err := restore()
		if errors.Is(err, backup.ErrLocked) && a.EncryptionEnabled() {
			if err := unlock(cmd, a); err != nil {
				return err
			}
			path, err = restore()
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", path)
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify [ID]",
	Short: "Verify backup integrity",
	Long: "Verify one backup, or every backup when no id is given.\n" +
		"Encrypted backups are checked at the stored-bytes level unless CFGVAULT_PASSPHRASE is set.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("verify")
		if err != nil {
			return err
		}
		defer a.Close()

		if _, ok := os.LookupEnv(passphraseEnv); ok && a.EncryptionEnabled() {
			if err := unlock(cmd, a); err != nil {
				return err
			}
		}

		if len(args) > 0 {
			ok, err := a.VerifyBackup(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: backup %s is corrupted", backup.ErrIntegrity, args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup %s verified\n", args[0])
			return nil
		}

		report, err := a.VerifyAllBackups()
		if err != nil {
			return err
		}
		if err := printVerifyReport(cmd.OutOrStdout(), outputFormat(cmd), report); err != nil {
			return err
		}
		if report.Corrupted > 0 {
			return fmt.Errorf("%w: %d corrupted backup(s)", backup.ErrIntegrity, report.Corrupted)
		}
		return nil
	},
}

// cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Apply retention policies",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		corrupted, _ := cmd.Flags().GetBool("corrupted")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		orphans, _ := cmd.Flags().GetBool("orphans")

		if days < 0 {
			return fmt.Errorf("%w: --days must not be negative", backup.ErrInvalidArgument)
		}

		a, err := newApp("cleanup")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Cleanup(backup.CleanupOptions{RetentionDays: days, IncludeCorrupted: corrupted}, dryRun)
		if err != nil {
			return err
		}
		if err := printCleanupReport(cmd.OutOrStdout(), outputFormat(cmd), report); err != nil {
			return err
		}

		if orphans && !dryRun {
			n, err := a.PruneOrphans()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d orphaned file(s)\n", n)
		}
		return nil
	},
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("delete")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteBackup(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted backup %s\n", args[0])
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Configuration initialized at %s\n", defaults["config_path"])
		fmt.Fprintf(cmd.OutOrStdout(), "Backup root: %s\n", cfg.Backup.RootDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := app.LoadConfig(defaults["config_path"], defaults["base_dir"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", defaults["config_path"])
		m := &config.Manager{}
		return m.Write(cmd.OutOrStdout(), cfg)
	},
}

// key command
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the encryption key",
}

var keyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("key-init")
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.EncryptionEnabled() {
			return fmt.Errorf("%w: set [encryption] enabled = true in the config first", backup.ErrInvalidArgument)
		}

		passphrase, err := newPassphrase(cmd)
		if err != nil {
			return err
		}
		if err := a.SetupKey(passphrase); err != nil {
			return err
		}

		cfg := a.Config().Encryption
		fmt.Fprintf(cmd.OutOrStdout(), "Public key:  %s\n", cfg.PublicKeyPath)
		fmt.Fprintf(cmd.OutOrStdout(), "Private key: %s\n", cfg.PrivateKeyPath)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("output", "o", formatTable, "Output format: table or json")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// key subcommands
	keyCmd.AddCommand(keyInitCmd)

	// root commands
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringP("type", "t", "", "Only backups of this type")
	listCmd.Flags().StringP("status", "s", "", "Only backups in this status")
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().StringP("type", "t", string(backup.TypeManual), "Backup type")
	createCmd.Flags().StringP("reason", "r", "", "Why the backup is taken")
	createCmd.Flags().String("notes", "", "Free-form notes")
	createCmd.Flags().Bool("compress", false, "Compress regardless of size")
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().StringP("file", "f", "", "Restore the newest backup of this file")
	restoreCmd.Flags().String("target", "", "Write to this path instead of the original location")
	restoreCmd.Flags().Bool("no-verify", false, "Skip integrity verification before restoring")
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().Int("days", 0, "Override the retention period in days")
	cleanupCmd.Flags().Bool("corrupted", false, "Also delete corrupted backups")
	cleanupCmd.Flags().Bool("dry-run", false, "Show what would be deleted")
	cleanupCmd.Flags().Bool("orphans", false, "Also remove payload files no record references")
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keyCmd)
}
