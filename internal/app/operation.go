package app

import "time"

// Operation tracks one CLI command run. Its ID tags every log line the run
// writes, so the lines of one invocation can be grepped out of the shared log.
type Operation struct {
	ID      string
	Name    string
	Started time.Time
	Status  string // "success" or "error"
}

// NewOperation creates an operation for the named command started at now.
func NewOperation(name string, now time.Time) *Operation {
	return &Operation{
		ID:      now.UTC().Format("20060102T150405Z"),
		Name:    name,
		Started: now,
		Status:  "success",
	}
}

// Track marks the operation failed when err is non-nil and returns err.
func (op *Operation) Track(err error) error {
	if err != nil {
		op.Status = "error"
	}
	return err
}

// Failed reports whether any tracked call failed.
func (op *Operation) Failed() bool {
	return op.Status == "error"
}
