package executor

import (
	"time"

	"aroundtheclock/domain/schedule"
)

// BlockSession is the runtime record of one suppression run. It is
// created when an interval becomes due and owned exclusively by the
// executor loop; terminal sessions are handed to the Recorder.
type BlockSession struct {
	Interval  schedule.BlockInterval
	Interface string
	Gateway   string
	State     schedule.IntervalState
	StartedAt time.Time
	EndedAt   time.Time
	Err       error
}
