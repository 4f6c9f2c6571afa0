// Package catalog implements the metadata store: one JSON document per
// backup record, addressed by backup id.
package catalog

import (
	"fmt"
	"regexp"

	"cfgvault/internal/backup"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidateID rejects ids that could not safely name a metadata file.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) || len(id) > 128 {
		return fmt.Errorf("%w: malformed backup id %q", backup.ErrInvalidArgument, id)
	}
	return nil
}
