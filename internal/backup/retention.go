package backup

import (
	"errors"
	"fmt"
	"time"
)

// CleanupReason says which rule selected a record for deletion.
type CleanupReason string

const (
	ReasonExpired   CleanupReason = "expired"   // left over from an interrupted deletion
	ReasonCorrupted CleanupReason = "corrupted" // failed verification
	ReasonAge       CleanupReason = "age"       // older than the retention period
	ReasonCount     CleanupReason = "count"     // beyond the per-file limit
)

// CleanupCandidate is a record selected for deletion.
type CleanupCandidate struct {
	Record *Record
	Reason CleanupReason
}

// CleanupOptions adjusts a cleanup run.
type CleanupOptions struct {
	// RetentionDays overrides the configured age limit when positive.
	RetentionDays int
	// IncludeCorrupted also deletes records marked corrupted.
	IncludeCorrupted bool
}

// CleanupReport describes a cleanup run or plan.
type CleanupReport struct {
	Candidates []CleanupCandidate
	Deleted    int
	DryRun     bool
	// Problems lists unreadable records and failed deletions.
	Problems []error
}

// retentionRules is the set of rules a deletion plan applies.
type retentionRules struct {
	maxPerFile int
	maxAge     time.Duration
	corrupted  bool
	expired    bool
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// plan selects the records violating rules. Each record is selected at most
// once, under the first matching reason in the order expired, corrupted,
// age, count. The count rule ranks every record of a source, newest first.
func (e *Engine) plan(records []*Record, rules retentionRules) []CleanupCandidate {
	now := e.clock.Now()

	bySource := make(map[string][]*Record)
	var order []string
	for _, rec := range records {
		if _, ok := bySource[rec.SourcePath]; !ok {
			order = append(order, rec.SourcePath)
		}
		bySource[rec.SourcePath] = append(bySource[rec.SourcePath], rec)
	}

	var candidates []CleanupCandidate
	for _, source := range order {
		for rank, rec := range sortNewestFirst(bySource[source]) {
			var reason CleanupReason
			switch {
			case rules.expired && rec.Status == StatusExpired:
				reason = ReasonExpired
			case rules.corrupted && rec.Status == StatusCorrupted:
				reason = ReasonCorrupted
			case rules.maxAge > 0 && rec.CreatedAt.Before(now.Add(-rules.maxAge)):
				reason = ReasonAge
			case rules.maxPerFile > 0 && rank >= rules.maxPerFile:
				reason = ReasonCount
			default:
				continue
			}
			candidates = append(candidates, CleanupCandidate{Record: rec, Reason: reason})
		}
	}
	return candidates
}

// apply deletes every candidate, collecting failures instead of stopping.
func (e *Engine) apply(candidates []CleanupCandidate) (int, []error) {
	deleted := 0
	var problems []error
	for _, c := range candidates {
		if err := e.deleteRecord(c.Record); err != nil {
			problems = append(problems, opError("cleanup", c.Record.BackupPath, c.Record.ID, err))
			continue
		}
		e.logger.Info("backup removed", "id", c.Record.ID, "source", c.Record.SourcePath, "reason", string(c.Reason))
		deleted++
	}
	return deleted, problems
}

// deleteRecord removes a record and its payload as one logical unit. The
// record is first marked expired so an interrupted deletion is finished by
// the next cleanup. Missing files count as already deleted.
func (e *Engine) deleteRecord(rec *Record) error {
	if rec.Status != StatusExpired {
		// A record already gone from the primary can still be indexed, so a
		// missing record falls through to the deletes below.
		if err := e.updateStatus(rec.ID, StatusExpired); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("marking expired: %w", err)
		}
	}

	if err := e.vault.Delete(rec.BackupPath); err != nil {
		if KindOf(err) != KindInvalidArgument {
			return fmt.Errorf("deleting payload: %w", err)
		}
		e.logger.Warn("record points outside the vault, payload left in place", "id", rec.ID, "path", rec.BackupPath)
	}
	if err := e.catalog.Delete(rec.ID); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}

	e.removeMirror(rec)
	return nil
}

// enforceForSource applies both retention policies to one source file.
// It runs after every backup when auto cleanup is on.
func (e *Engine) enforceForSource(sourcePath string) (int, error) {
	records, _, err := e.recordsFor(sourcePath)
	if err != nil {
		return 0, err
	}
	deleted, problems := e.apply(e.plan(records, retentionRules{
		maxPerFile: e.policy.MaxBackupsPerFile,
		maxAge:     days(e.policy.RetentionDays),
	}))
	return deleted, errors.Join(problems...)
}

// EnforceCountPolicy keeps the newest MaxBackupsPerFile records of
// sourcePath and deletes the rest. Running it twice without new backups
// in between deletes nothing the second time.
func (e *Engine) EnforceCountPolicy(sourcePath string) (int, error) {
	records, _, err := e.recordsFor(sourcePath)
	if err != nil {
		return 0, opError("cleanup", sourcePath, "", err)
	}
	deleted, problems := e.apply(e.plan(records, retentionRules{maxPerFile: e.policy.MaxBackupsPerFile}))
	return deleted, errors.Join(problems...)
}

// EnforceAgePolicy deletes every record older than RetentionDays.
func (e *Engine) EnforceAgePolicy() (int, error) {
	records, _, err := e.catalog.ListAll()
	if err != nil {
		return 0, opError("cleanup", "", "", err)
	}
	deleted, problems := e.apply(e.plan(records, retentionRules{maxAge: days(e.policy.RetentionDays)}))
	return deleted, errors.Join(problems...)
}

func (e *Engine) cleanupRules(opts CleanupOptions) retentionRules {
	retention := e.policy.RetentionDays
	if opts.RetentionDays > 0 {
		retention = opts.RetentionDays
	}
	return retentionRules{
		maxPerFile: e.policy.MaxBackupsPerFile,
		maxAge:     days(retention),
		corrupted:  opts.IncludeCorrupted,
		expired:    true,
	}
}

// PlanCleanup reports what Cleanup would delete without deleting anything.
func (e *Engine) PlanCleanup(opts CleanupOptions) (*CleanupReport, error) {
	records, problems, err := e.catalog.ListAll()
	if err != nil {
		return nil, opError("cleanup", "", "", err)
	}
	return &CleanupReport{
		Candidates: e.plan(records, e.cleanupRules(opts)),
		DryRun:     true,
		Problems:   problems,
	}, nil
}

// Cleanup applies the count and age policies across the whole catalog,
// finishes interrupted deletions and, when asked, deletes corrupted records.
func (e *Engine) Cleanup(opts CleanupOptions) (*CleanupReport, error) {
	report, err := e.PlanCleanup(opts)
	if err != nil {
		return nil, err
	}
	report.DryRun = false

	deleted, problems := e.apply(report.Candidates)
	report.Deleted = deleted
	report.Problems = append(report.Problems, problems...)

	e.logger.Info("cleanup finished", "deleted", deleted, "problems", len(report.Problems))
	return report, nil
}

// CleanupOldBackups runs Cleanup with the configured policies and returns
// the number of records deleted.
func (e *Engine) CleanupOldBackups() (int, error) {
	report, err := e.Cleanup(CleanupOptions{})
	if err != nil {
		return 0, err
	}
	return report.Deleted, nil
}

// DeleteCorrupted deletes every record marked corrupted.
func (e *Engine) DeleteCorrupted() (int, error) {
	records, _, err := e.catalog.ListAll()
	if err != nil {
		return 0, opError("cleanup", "", "", err)
	}
	deleted, problems := e.apply(e.plan(records, retentionRules{corrupted: true}))
	return deleted, errors.Join(problems...)
}

// DeleteBackup deletes one backup on operator request.
func (e *Engine) DeleteBackup(id string) error {
	rec, err := e.catalog.Load(id)
	if err != nil {
		return opError("delete", "", id, err)
	}
	if err := e.deleteRecord(rec); err != nil {
		return opError("delete", rec.BackupPath, id, err)
	}
	e.logger.Info("backup deleted", "id", id, "source", rec.SourcePath)
	return nil
}

// PruneOrphans deletes payloads that no record references and that are
// older than grace. These are left behind when a backup is interrupted
// between writing its payload and saving its record. Pruning is refused
// while any record is unreadable, since its payload cannot be told apart
// from an orphan.
func (e *Engine) PruneOrphans(grace time.Duration) (int, error) {
	const op = "prune"

	records, problems, err := e.catalog.ListAll()
	if err != nil {
		return 0, opError(op, "", "", err)
	}
	if len(problems) > 0 {
		return 0, opError(op, "", "", fmt.Errorf("%d unreadable records: %w", len(problems), errors.Join(problems...)))
	}

	referenced := make(map[string]bool, len(records))
	for _, rec := range records {
		referenced[rec.BackupPath] = true
	}

	payloads, err := e.vault.List()
	if err != nil {
		return 0, opError(op, "", "", fmt.Errorf("listing payloads: %w", err))
	}

	cutoff := e.clock.Now().Add(-grace)
	removed := 0
	var failures []error
	for _, p := range payloads {
		if referenced[p.Path] || p.ModTime.After(cutoff) {
			continue
		}
		if err := e.vault.Delete(p.Path); err != nil {
			failures = append(failures, opError(op, p.Path, "", err))
			continue
		}
		e.logger.Info("orphaned payload removed", "path", p.Path, "size", p.Size)
		removed++
	}
	return removed, errors.Join(failures...)
}
