package schedule

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable signals that the producer has no schedule for the
// requested day yet. Sources keep polling, callers keep retrying.
var ErrUnavailable = errors.New("schedule unavailable")

type IntervalState string

const (
	StatePending   IntervalState = "PENDING"
	StateWaiting   IntervalState = "WAITING"
	StateActive    IntervalState = "ACTIVE"
	StateCompleted IntervalState = "COMPLETED"
	StateFailed    IntervalState = "FAILED"
)

// BlockInterval is one wall-clock window during which connectivity
// must be suppressed. Label carries the producer's name for the window.
type BlockInterval struct {
	Label    string
	Start    time.Time
	Duration time.Duration
}

func (b BlockInterval) End() time.Time {
	return b.Start.Add(b.Duration)
}

// Schedule is the ordered set of blocking intervals for one calendar
// day. It is immutable once handed to the executor for that day.
type Schedule struct {
	Day       time.Time
	Intervals []BlockInterval
}

// Day truncates t to local midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Validate checks the schedule invariants: every interval has a
// positive duration, starts on the schedule's day, starts strictly
// after the previous interval, and does not overlap the previous
// interval's window.
func (s Schedule) Validate() error {
	for i, iv := range s.Intervals {
		if iv.Duration <= 0 {
			return fmt.Errorf("interval '%s' has non-positive duration %v", iv.Label, iv.Duration)
		}
		if !Day(iv.Start).Equal(s.Day) {
			return fmt.Errorf("interval '%s' starts on %s, schedule is for %s",
				iv.Label, Day(iv.Start).Format(time.DateOnly), s.Day.Format(time.DateOnly))
		}
		if i > 0 {
			prev := s.Intervals[i-1]
			if !iv.Start.After(prev.Start) {
				return fmt.Errorf("interval '%s' does not start after interval '%s'", iv.Label, prev.Label)
			}
			if iv.Start.Before(prev.End()) {
				return fmt.Errorf("interval '%s' overlaps interval '%s'", iv.Label, prev.Label)
			}
		}
	}
	return nil
}
