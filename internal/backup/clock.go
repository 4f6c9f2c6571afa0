package backup

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so retention decisions are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts backup id generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// IDTimeLayout is the timestamp prefix of generated backup ids.
const IDTimeLayout = "20060102_150405"

// TimestampIDGenerator produces ids of the form YYYYmmdd_HHMMSS_<8 hex>.
// The prefix keeps ids roughly chronological; the random suffix makes them unique.
type TimestampIDGenerator struct {
	Clock Clock
}

func (g TimestampIDGenerator) New() string {
	clock := g.Clock
	if clock == nil {
		clock = RealClock{}
	}
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return clock.Now().Format(IDTimeLayout) + "_" + suffix
}
