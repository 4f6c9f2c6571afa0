package backup

import (
	"errors"
	"fmt"

	"cfgvault/internal/checksum"
)

// check reads rec's payload and compares it against the record.
// Stored size and payload digest are always checked. When the payload can
// be decoded, the original size and both content digests are checked too
// and the content is returned with decoded set. An encrypted payload with
// no unlocked key passes on the stored-bytes checks alone.
func (e *Engine) check(rec *Record) (content []byte, decoded bool, err error) {
	payload, err := e.vault.Get(rec.BackupPath)
	if err != nil {
		return nil, false, fmt.Errorf("reading payload: %w", err)
	}

	if got := int64(len(payload)); got != rec.BackupSize {
		return nil, false, fmt.Errorf("%w: payload is %d bytes, want %d", ErrIntegrity, got, rec.BackupSize)
	}
	if rec.PayloadSHA256 != "" {
		if got := checksum.SHA256(payload); got != rec.PayloadSHA256 {
			return nil, false, fmt.Errorf("%w: payload sha256 mismatch: got %s, want %s", ErrIntegrity, got, rec.PayloadSHA256)
		}
	}

	content, err = e.decode(rec, payload)
	if errors.Is(err, ErrLocked) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: decoding payload: %w", ErrIntegrity, err)
	}

	if got := int64(len(content)); got != rec.OriginalSize {
		return nil, false, fmt.Errorf("%w: content is %d bytes, want %d", ErrIntegrity, got, rec.OriginalSize)
	}
	if err := checksum.Sum(content).Match(contentDigest(rec)); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrIntegrity, err)
	}

	return content, true, nil
}

// corruptionSignal reports whether a check error means the payload is bad,
// as opposed to the check itself being impossible (e.g. permission denied).
func corruptionSignal(err error) bool {
	switch KindOf(err) {
	case KindIntegrityFailure, KindNotFound:
		return true
	default:
		return false
	}
}

// Verify checks rec's payload against its recorded sizes and digests.
// It returns false for a mismatched or missing payload. The error is
// non-nil only when the payload could not be checked at all. Verify does not
// persist the outcome.
func (e *Engine) Verify(rec *Record) (bool, error) {
	_, _, err := e.check(rec)
	if err == nil {
		return true, nil
	}
	if corruptionSignal(err) {
		e.logger.Warn("backup failed verification", "id", rec.ID, "error", err)
		return false, nil
	}
	return false, opError("verify", rec.BackupPath, rec.ID, err)
}

// VerifyBackup verifies one backup and persists the resulting status.
func (e *Engine) VerifyBackup(id string) (bool, error) {
	rec, err := e.catalog.Load(id)
	if err != nil {
		return false, opError("verify", "", id, err)
	}

	ok, err := e.Verify(rec)
	if err != nil {
		return false, err
	}

	status := StatusCorrupted
	if ok {
		status = StatusVerified
	}
	if err := e.updateStatus(rec.ID, status); err != nil {
		return ok, opError("verify", "", id, fmt.Errorf("saving status: %w", err))
	}
	return ok, nil
}

// VerifyReport summarizes a catalog-wide verification sweep.
type VerifyReport struct {
	Checked      int      `json:"total_checked"`
	Verified     int      `json:"verified"`
	Corrupted    int      `json:"corrupted"`
	CorruptedIDs []string `json:"corrupted_backups"`
	// Problems lists records that could not be read or checked.
	Problems []error `json:"-"`
}

// VerifyAll re-verifies every record and persists each outcome.
// Records pending deletion (expired) are skipped. A record that cannot be
// read or checked is reported in Problems and never aborts the sweep.
// Corrupted records are not deleted; see DeleteCorrupted.
func (e *Engine) VerifyAll() (*VerifyReport, error) {
	records, problems, err := e.catalog.ListAll()
	if err != nil {
		return nil, opError("verify", "", "", fmt.Errorf("listing records: %w", err))
	}

	report := &VerifyReport{CorruptedIDs: []string{}, Problems: problems}
	for _, rec := range sortNewestFirst(records) {
		if rec.Status == StatusExpired {
			continue
		}

		ok, err := e.Verify(rec)
		if err != nil {
			report.Problems = append(report.Problems, err)
			continue
		}

		report.Checked++
		status := StatusVerified
		if ok {
			report.Verified++
		} else {
			status = StatusCorrupted
			report.Corrupted++
			report.CorruptedIDs = append(report.CorruptedIDs, rec.ID)
		}

		if err := e.updateStatus(rec.ID, status); err != nil {
			report.Problems = append(report.Problems, opError("verify", "", rec.ID, fmt.Errorf("saving status: %w", err)))
		}
	}

	e.logger.Info("verification sweep finished",
		"checked", report.Checked,
		"verified", report.Verified,
		"corrupted", report.Corrupted,
		"problems", len(report.Problems))
	return report, nil
}
