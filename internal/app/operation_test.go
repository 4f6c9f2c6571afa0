package app

import (
	"errors"
	"testing"
	"time"
)

func TestNewOperation(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	op := NewOperation("create", now)

	if op.ID != "20240115T103000Z" {
		t.Errorf("ID = %q, want 20240115T103000Z", op.ID)
	}
	if op.Name != "create" {
		t.Errorf("Name = %q, want create", op.Name)
	}
	if op.Status != "success" || op.Failed() {
		t.Errorf("Status = %q, want success", op.Status)
	}
}

func TestOperation_Track(t *testing.T) {
	tests := []struct {
		name       string
		errs       []error
		wantFailed bool
	}{
		{name: "no calls", wantFailed: false},
		{name: "all succeed", errs: []error{nil, nil}, wantFailed: false},
		{name: "one fails", errs: []error{nil, errors.New("boom"), nil}, wantFailed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation("verify", time.Now())
			for _, err := range tt.errs {
				if got := op.Track(err); got != err {
					t.Errorf("Track() = %v, want the error passed in", got)
				}
			}
			if op.Failed() != tt.wantFailed {
				t.Errorf("Failed() = %v, want %v", op.Failed(), tt.wantFailed)
			}
		})
	}
}
