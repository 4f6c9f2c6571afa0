package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"cfgvault/internal/backup"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func outputFormat(cmd *cobra.Command) string {
	f, _ := cmd.Flags().GetString("output")
	if f == formatJSON {
		return formatJSON
	}
	return formatTable
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRecords(w io.Writer, format string, records []*backup.Record) error {
	if format == formatJSON {
		if records == nil {
			records = []*backup.Record{}
		}
		return printJSON(w, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No backups found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tCREATED\tSIZE\tSOURCE")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ID, rec.Type, rec.Status,
			rec.CreatedAt.Local().Format(time.DateTime),
			humanize.Bytes(uint64(rec.BackupSize)),
			rec.SourcePath)
	}
	return tw.Flush()
}

func printStatistics(w io.Writer, format string, stats *backup.Statistics) error {
	if format == formatJSON {
		return printJSON(w, stats)
	}

	fmt.Fprintf(w, "Backups:        %d\n", stats.TotalBackups)
	fmt.Fprintf(w, "Files:          %d\n", stats.UniqueFilesCount)
	fmt.Fprintf(w, "Stored size:    %s\n", humanize.Bytes(uint64(stats.TotalSize)))
	fmt.Fprintf(w, "Original size:  %s\n", humanize.Bytes(uint64(stats.TotalOriginalSize)))
	if stats.OldestBackup != nil {
		fmt.Fprintf(w, "Oldest backup:  %s\n", humanize.Time(*stats.OldestBackup))
	}
	if stats.NewestBackup != nil {
		fmt.Fprintf(w, "Newest backup:  %s\n", humanize.Time(*stats.NewestBackup))
	}
	if stats.Skipped > 0 {
		fmt.Fprintf(w, "Unreadable:     %d\n", stats.Skipped)
	}

	if len(stats.ByStatus) > 0 {
		fmt.Fprintln(w, "\nBy status:")
		keys := make([]string, 0, len(stats.ByStatus))
		for s := range stats.ByStatus {
			keys = append(keys, string(s))
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %-16s %d\n", k, stats.ByStatus[backup.Status(k)])
		}
	}
	if len(stats.ByType) > 0 {
		fmt.Fprintln(w, "\nBy type:")
		keys := make([]string, 0, len(stats.ByType))
		for t := range stats.ByType {
			keys = append(keys, string(t))
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %-16s %d\n", k, stats.ByType[backup.Type(k)])
		}
	}
	return nil
}

func printVerifyReport(w io.Writer, format string, report *backup.VerifyReport) error {
	if format == formatJSON {
		return printJSON(w, report)
	}
	fmt.Fprintf(w, "Checked %d backup(s): %d verified, %d corrupted\n",
		report.Checked, report.Verified, report.Corrupted)
	for _, id := range report.CorruptedIDs {
		fmt.Fprintf(w, "  corrupted: %s\n", id)
	}
	for _, p := range report.Problems {
		fmt.Fprintf(w, "  problem: %v\n", p)
	}
	return nil
}

// cleanupEntry is the JSON shape of one cleanup candidate.
type cleanupEntry struct {
	ID         string `json:"id"`
	SourcePath string `json:"source_path"`
	Reason     string `json:"reason"`
}

func printCleanupReport(w io.Writer, format string, report *backup.CleanupReport) error {
	if format == formatJSON {
		out := struct {
			DryRun     bool           `json:"dry_run"`
			Deleted    int            `json:"deleted"`
			Candidates []cleanupEntry `json:"candidates"`
			Problems   []string       `json:"problems,omitempty"`
		}{DryRun: report.DryRun, Deleted: report.Deleted, Candidates: []cleanupEntry{}}
		for _, c := range report.Candidates {
			out.Candidates = append(out.Candidates, cleanupEntry{ID: c.Record.ID, SourcePath: c.Record.SourcePath, Reason: string(c.Reason)})
		}
		for _, p := range report.Problems {
			out.Problems = append(out.Problems, p.Error())
		}
		return printJSON(w, out)
	}

	if len(report.Candidates) == 0 {
		fmt.Fprintln(w, "Nothing to clean up.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tREASON\tSOURCE")
		for _, c := range report.Candidates {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Record.ID, c.Reason, c.Record.SourcePath)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if report.DryRun {
			fmt.Fprintf(w, "Dry run: %d backup(s) would be deleted\n", len(report.Candidates))
		} else {
			fmt.Fprintf(w, "Deleted %d backup(s)\n", report.Deleted)
		}
	}
	for _, p := range report.Problems {
		fmt.Fprintf(w, "warning: %v\n", p)
	}
	return nil
}
