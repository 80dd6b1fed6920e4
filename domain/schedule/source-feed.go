package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Murilovisque/logs/v3"
	"github.com/nxadm/tail"
)

const feedWakeCheck = 30 * time.Second

func NewFeedSource() *FeedSource {
	return &FeedSource{quietPeriod: 2 * time.Second}
}

// FeedSource follows an append-only feed file where the external
// producer writes one interval per line:
//
//	<RFC3339 start> <duration> <label>
//
// Lines are read from the beginning of the file so a restart sees the
// whole current day. A day's schedule is released when a line dated
// after the requested day arrives (the line is held back for the next
// request), when the quiet period elapses with intervals buffered and
// no new line, or when the day itself is over.
type FeedSource struct {
	name        string
	tailedFile  *tail.Tail
	lookahead   *BlockInterval
	quietPeriod time.Duration
	logger      logs.Logger
}

func (fs *FeedSource) GetName() string {
	return fs.name
}

func (fs *FeedSource) DecodeConfig(c SourceConfig) error {
	var fsj feedSourceJson
	err := json.Unmarshal(c.Specification, &fsj)
	if err != nil {
		return fmt.Errorf("source '%s', fail to decode. Error: %w", c.Name, err)
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("source with empty name")
	}
	if fsj.QuietPeriod != "" {
		fs.quietPeriod, err = time.ParseDuration(fsj.QuietPeriod)
		if err != nil {
			return fmt.Errorf("source '%s', invalid quiet period format %s", c.Name, fsj.QuietPeriod)
		}
	}
	fs.tailedFile, err = tail.TailFile(fsj.File, tail.Config{
		Follow: true,
		ReOpen: true,
	})
	if err != nil {
		return fmt.Errorf("source '%s', fail to tail the feed '%s'. Error: %w", c.Name, fsj.File, err)
	}
	fs.name = c.Name
	fs.logger = logs.NewChildLogger(logs.FixedFieldValue("source", fs.name))
	fs.logger.Info("feed schedule source config loaded")
	return nil
}

func (fs *FeedSource) Next(ctx context.Context, day time.Time) (Schedule, error) {
	var intervals []BlockInterval
	if fs.lookahead != nil {
		iv := *fs.lookahead
		fs.lookahead = nil
		switch {
		case Day(iv.Start).Equal(day):
			intervals = append(intervals, iv)
		case Day(iv.Start).After(day):
			fs.lookahead = &iv
			return fs.finish(day, intervals)
		}
	}
	dayEnd := day.AddDate(0, 0, 1)
	for {
		if !time.Now().Before(dayEnd) {
			return fs.finish(day, intervals)
		}
		wait := time.Until(dayEnd)
		if wait > feedWakeCheck {
			wait = feedWakeCheck
		}
		quiet := false
		if len(intervals) > 0 && fs.quietPeriod < wait {
			wait = fs.quietPeriod
			quiet = true
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Schedule{}, ctx.Err()
		case <-timer.C:
			// No line for a whole quiet period: the producer is done
			// writing the day.
			if quiet {
				return fs.finish(day, intervals)
			}
		case line, ok := <-fs.tailedFile.Lines:
			timer.Stop()
			if !ok {
				return Schedule{}, fmt.Errorf("source '%s', feed closed: %w", fs.name, ErrUnavailable)
			}
			if line.Err != nil {
				fs.logger.Errorf("feed read error: %s", line.Err)
				continue
			}
			if strings.TrimSpace(line.Text) == "" {
				continue
			}
			iv, err := parseFeedLine(line.Text)
			if err != nil {
				fs.logger.Errorf("feed line skipped: %s", err)
				continue
			}
			switch {
			case Day(iv.Start).Before(day):
				continue
			case Day(iv.Start).Equal(day):
				// A line conflicting with what is already buffered is
				// dropped alone; one bad line must not cost the day.
				if n := len(intervals); n > 0 && iv.Start.Before(intervals[n-1].End()) {
					fs.logger.Errorf("feed line out of order, skipped: '%s' at %s",
						iv.Label, iv.Start.Format(time.DateTime))
					continue
				}
				intervals = append(intervals, iv)
			default:
				fs.lookahead = &iv
				return fs.finish(day, intervals)
			}
		}
	}
}

func (fs *FeedSource) StopAndWait() error {
	return fs.tailedFile.Stop()
}

func (fs *FeedSource) finish(day time.Time, intervals []BlockInterval) (Schedule, error) {
	sched := Schedule{Day: day, Intervals: intervals}
	if err := sched.Validate(); err != nil {
		return Schedule{}, fmt.Errorf("source '%s', feed invalid. Error: %w", fs.name, err)
	}
	return sched, nil
}

func parseFeedLine(line string) (BlockInterval, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return BlockInterval{}, fmt.Errorf("malformed feed line '%s'", line)
	}
	start, err := time.Parse(time.RFC3339, fields[0])
	if err != nil {
		return BlockInterval{}, fmt.Errorf("invalid start time '%s'", fields[0])
	}
	d, err := time.ParseDuration(fields[1])
	if err != nil {
		return BlockInterval{}, fmt.Errorf("invalid duration '%s'", fields[1])
	}
	if d <= 0 {
		return BlockInterval{}, fmt.Errorf("non-positive duration '%s'", fields[1])
	}
	label := ""
	if len(fields) > 2 {
		label = fields[2]
	}
	return BlockInterval{Label: label, Start: start.Local(), Duration: d}, nil
}

type feedSourceJson struct {
	File        string
	QuietPeriod string
}
