package schedule

import (
	"context"
	"encoding/json"
	"time"
)

type SourceType string

const (
	FileScheduleSourceType SourceType = "FILE_SCHEDULE"
	FeedScheduleSourceType SourceType = "FEED_SCHEDULE"
)

type SourceConfig struct {
	Name          string
	Type          SourceType
	Specification json.RawMessage
}

// Source produces the blocking schedule for a calendar day. The
// producer is external (the prayer-time component); a Source only
// reads what it publishes.
type Source interface {
	GetName() string
	DecodeConfig(c SourceConfig) error
	// Next blocks until the producer's schedule for day is available
	// or ctx is done. Returned schedules are validated.
	Next(ctx context.Context, day time.Time) (Schedule, error)
	StopAndWait() error
}
