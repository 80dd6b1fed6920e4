package executor

import (
	"context"
	"errors"
	"time"

	"aroundtheclock/domain/blocker"
	"aroundtheclock/domain/schedule"

	"github.com/Murilovisque/logs/v3"
)

// ErrMissed marks an interval whose whole window elapsed before the
// executor could start it.
var ErrMissed = errors.New("block window already elapsed")

// Recorder persists terminal sessions. Failures to record are logged,
// never fatal to the day loop.
type Recorder interface {
	Record(ctx context.Context, s BlockSession) error
}

func New(b blocker.Blocker, iface, gateway string, rec Recorder) *Executor {
	return &Executor{
		blocker:   b,
		iface:     iface,
		gateway:   gateway,
		recorder:  rec,
		wakeCheck: 30 * time.Second,
		logger:    logs.NewChildLogger(logs.FixedFieldValue("executor", b.GetName())),
	}
}

// Executor converts a day's schedule into a sequence of enforced
// suppression windows. Intervals are processed strictly sequentially;
// an interval's action never starts before the previous action has
// terminated, so two suppressions can never overlap.
type Executor struct {
	blocker   blocker.Blocker
	iface     string
	gateway   string
	recorder  Recorder
	wakeCheck time.Duration
	logger    logs.Logger
}

// Run processes every interval of sched in order and returns the
// resulting sessions. A failing interval is skipped, not fatal; ctx
// cancellation stops the run after finalizing the current session.
func (e *Executor) Run(ctx context.Context, sched schedule.Schedule) []BlockSession {
	sessions := make([]BlockSession, 0, len(sched.Intervals))
	for _, iv := range sched.Intervals {
		if ctx.Err() != nil {
			break
		}
		s := e.runInterval(ctx, iv)
		sessions = append(sessions, s)
		e.record(s)
	}
	return sessions
}

func (e *Executor) runInterval(ctx context.Context, iv schedule.BlockInterval) BlockSession {
	s := BlockSession{
		Interval:  iv,
		Interface: e.iface,
		Gateway:   e.gateway,
		State:     schedule.StatePending,
	}
	if !iv.End().After(time.Now()) {
		e.logger.Errorf("interval '%s' at %s missed, window already elapsed",
			iv.Label, iv.Start.Format(time.DateTime))
		s.State = schedule.StateFailed
		s.Err = ErrMissed
		return s
	}
	s.State = schedule.StateWaiting
	e.logger.Infof("next interval '%s' at %s for %v", iv.Label, iv.Start.Format(time.DateTime), iv.Duration)
	if err := e.waitUntil(ctx, iv.Start); err != nil {
		s.State = schedule.StateFailed
		s.Err = err
		return s
	}
	// The wait may have overrun the nominal start (previous action
	// still terminating, process suspended); only the remainder of
	// the window is enforced.
	remaining := time.Until(iv.End())
	if remaining <= 0 {
		s.State = schedule.StateFailed
		s.Err = ErrMissed
		return s
	}
	s.State = schedule.StateActive
	s.StartedAt = time.Now()
	bctx, cancel := context.WithTimeout(ctx, remaining)
	err := e.blocker.Block(bctx, blocker.BlockTarget{
		Interface: e.iface,
		Gateway:   e.gateway,
		Timeout:   remaining,
	})
	cancel()
	s.EndedAt = time.Now()
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		e.logger.Errorf("interval '%s' failed. Error: %s", iv.Label, err)
		s.State = schedule.StateFailed
		s.Err = err
		return s
	}
	s.State = schedule.StateCompleted
	e.logger.Infof("interval '%s' completed", iv.Label)
	return s
}

// waitUntil suspends until t. The sleep is capped and the remaining
// wait recomputed on every wake, so a wall-clock adjustment or a
// system suspend shifts the firing point by at most one check
// interval instead of going unnoticed.
func (e *Executor) waitUntil(ctx context.Context, t time.Time) error {
	for {
		d := time.Until(t)
		if d <= 0 {
			return nil
		}
		if d > e.wakeCheck {
			d = e.wakeCheck
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (e *Executor) record(s BlockSession) {
	if e.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.recorder.Record(ctx, s); err != nil {
		e.logger.Errorf("fail to record session '%s'. Error: %s", s.Interval.Label, err)
	}
}
