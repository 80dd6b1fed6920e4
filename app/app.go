package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aroundtheclock/config"
	"aroundtheclock/domain/blocker"
	"aroundtheclock/domain/executor"
	"aroundtheclock/domain/history"
	"aroundtheclock/domain/schedule"

	"github.com/Murilovisque/logs/v3"
)

const (
	retryBackoffInitial = 30 * time.Second
	retryBackoffMax     = 15 * time.Minute
)

func Start() error {
	b, err := BuildBlocker(config.Props.Blocker)
	if err != nil {
		return err
	}
	src, err := BuildSource(config.Props.Source)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	iface, gateway := config.Props.Interface, config.Props.Gateway
	if iface == "" || gateway == "" {
		gateway, iface, err = blocker.DiscoverRoute(ctx)
		if err != nil {
			return fmt.Errorf("no interface/gateway configured and discovery failed. Error: %w", err)
		}
		logs.Infof("discovered gateway '%s' on interface '%s'", gateway, iface)
	}
	var rec executor.Recorder
	var store *history.Store
	if config.Props.HistoryPath != "" {
		store, err = history.Open(config.Props.HistoryPath)
		if err != nil {
			return err
		}
		defer store.Close()
		rec = store
	}
	ex := executor.New(b, iface, gateway, rec)
	prepareStopHandler(cancel)
	runDayLoop(ctx, src, ex)
	if err := src.StopAndWait(); err != nil {
		logs.Error(err)
	}
	logs.Info("app stopped")
	return nil
}

// BuildBlocker constructs the configured suppression primitive. Also
// used by the one-shot block command.
func BuildBlocker(c blocker.BlockerConfig) (blocker.Blocker, error) {
	switch c.Type {
	case blocker.ArpspoofBlockerType:
		b := blocker.NewArpspoofBlocker()
		if len(c.Specification) > 0 {
			if err := b.DecodeConfig(c); err != nil {
				return nil, err
			}
		}
		return b, nil
	default:
		return nil, fmt.Errorf("invalid blocker type '%s'", c.Type)
	}
}

// BuildSource constructs the configured schedule source. Also used by
// the times command.
func BuildSource(c schedule.SourceConfig) (schedule.Source, error) {
	switch c.Type {
	case schedule.FileScheduleSourceType:
		s := schedule.NewFileSource()
		if err := s.DecodeConfig(c); err != nil {
			return nil, err
		}
		return s, nil
	case schedule.FeedScheduleSourceType:
		s := schedule.NewFeedSource()
		if err := s.DecodeConfig(c); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("invalid source type '%s'", c.Type)
	}
}

// runDayLoop fetches one schedule per calendar day and hands it to
// the executor. An unavailable schedule is retried with backoff; a
// processed day advances lastDay so an early finish does not re-run
// the same schedule, while a clock jump past midnight picks up the
// fresh day naturally.
func runDayLoop(ctx context.Context, src schedule.Source, ex *executor.Executor) {
	var lastDay time.Time
	backoff := retryBackoffInitial
	for ctx.Err() == nil {
		day := schedule.Day(time.Now())
		if !day.After(lastDay) {
			day = lastDay.AddDate(0, 0, 1)
		}
		sched, err := src.Next(ctx, day)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logs.Errorf("no schedule for %s. Error: %s. Retrying in %v", day.Format(time.DateOnly), err, backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, retryBackoffMax)
			continue
		}
		backoff = retryBackoffInitial
		logs.Infof("schedule for %s loaded with %d interval(s)", day.Format(time.DateOnly), len(sched.Intervals))
		sessions := ex.Run(ctx, sched)
		for _, s := range sessions {
			if s.State == schedule.StateFailed && !errors.Is(s.Err, context.Canceled) {
				logs.Errorf("interval '%s' ended as %s. Error: %s", s.Interval.Label, s.State, s.Err)
			}
		}
		lastDay = day
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func prepareStopHandler(cancel context.CancelFunc) {
	chSignal := make(chan os.Signal, 1)
	signal.Notify(chSignal, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-chSignal
		logs.Infof("signal received %v, stopping app...", s)
		cancel()
	}()
}
