package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Murilovisque/logs/v3"
)

func NewFileSource() *FileSource {
	return &FileSource{}
}

// FileSource reads the JSON times file the external producer rewrites
// once per day. Two document shapes are accepted: a map of label to
// start time (the producer's native output, durations come from the
// configured blocks table), and an array of explicit intervals.
type FileSource struct {
	name         string
	file         string
	pollInterval time.Duration
	blocks       map[string]time.Duration
	logger       logs.Logger
}

func (fsrc *FileSource) GetName() string {
	return fsrc.name
}

func (fsrc *FileSource) DecodeConfig(c SourceConfig) error {
	var fsj fileSourceJson
	err := json.Unmarshal(c.Specification, &fsj)
	if err != nil {
		return fmt.Errorf("source '%s', fail to decode. Error: %w", c.Name, err)
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("source with empty name")
	}
	if strings.TrimSpace(fsj.File) == "" {
		return fmt.Errorf("source '%s', times file path is empty", c.Name)
	}
	poll := 30 * time.Second
	if fsj.PollInterval != "" {
		poll, err = time.ParseDuration(fsj.PollInterval)
		if err != nil {
			return fmt.Errorf("source '%s', invalid poll interval format %s", c.Name, fsj.PollInterval)
		}
	}
	blocks := make(map[string]time.Duration, len(fsj.Blocks))
	for label, ds := range fsj.Blocks {
		d, err := time.ParseDuration(ds)
		if err != nil {
			return fmt.Errorf("source '%s', invalid block duration format %s for '%s'", c.Name, ds, label)
		}
		blocks[label] = d
	}
	fsrc.name = c.Name
	fsrc.file = fsj.File
	fsrc.pollInterval = poll
	fsrc.blocks = blocks
	fsrc.logger = logs.NewChildLogger(logs.FixedFieldValue("source", fsrc.name))
	fsrc.logger.Info("file schedule source config loaded")
	return nil
}

func (fsrc *FileSource) Next(ctx context.Context, day time.Time) (Schedule, error) {
	for {
		sched, err := fsrc.read(day)
		if err == nil {
			return sched, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return Schedule{}, err
		}
		fsrc.logger.Infof("no schedule for %s yet, next check in %v", day.Format(time.DateOnly), fsrc.pollInterval)
		timer := time.NewTimer(fsrc.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Schedule{}, ctx.Err()
		case <-timer.C:
		}
	}
}

func (fsrc *FileSource) StopAndWait() error {
	return nil
}

func (fsrc *FileSource) read(day time.Time) (Schedule, error) {
	raw, err := os.ReadFile(fsrc.file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Schedule{}, fmt.Errorf("times file '%s' not found: %w", fsrc.file, ErrUnavailable)
		}
		return Schedule{}, fmt.Errorf("read times file '%s' failed. Error: %w", fsrc.file, err)
	}
	var intervals []BlockInterval
	switch firstByte(raw) {
	case '{':
		// The map form carries no dates, so only the producer's last
		// rewrite tells which day the times are for. A file older than
		// the requested day is yesterday's schedule, not tomorrow's.
		if fi, statErr := os.Stat(fsrc.file); statErr == nil && Day(fi.ModTime()).Before(day) {
			return Schedule{}, fmt.Errorf("times file '%s' predates %s: %w",
				fsrc.file, day.Format(time.DateOnly), ErrUnavailable)
		}
		intervals, err = fsrc.parseTimesMap(raw, day)
	case '[':
		intervals, err = fsrc.parseIntervalList(raw, day)
	default:
		err = fmt.Errorf("times file '%s' is not a JSON object or array", fsrc.file)
	}
	if err != nil {
		return Schedule{}, err
	}
	if len(intervals) == 0 {
		return Schedule{}, fmt.Errorf("times file '%s' holds nothing for %s: %w",
			fsrc.file, day.Format(time.DateOnly), ErrUnavailable)
	}
	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].Start.Before(intervals[j].Start)
	})
	sched := Schedule{Day: day, Intervals: intervals}
	if err := sched.Validate(); err != nil {
		return Schedule{}, fmt.Errorf("times file '%s' invalid. Error: %w", fsrc.file, err)
	}
	return sched, nil
}

// parseTimesMap decodes the producer's native {"label": "HH:MM"} form.
// Times carry no date, so they are interpreted on the requested day.
// Labels without a configured block duration are skipped.
func (fsrc *FileSource) parseTimesMap(raw []byte, day time.Time) ([]BlockInterval, error) {
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("times file '%s' fail to decode. Error: %w", fsrc.file, err)
	}
	var intervals []BlockInterval
	for label, ts := range m {
		start, err := parseStartOn(day, ts)
		if err != nil {
			return nil, fmt.Errorf("times file '%s', '%s': %w", fsrc.file, label, err)
		}
		d, ok := fsrc.blocks[label]
		if !ok {
			fsrc.logger.Infof("no block duration configured for '%s', skipping", label)
			continue
		}
		intervals = append(intervals, BlockInterval{Label: label, Start: start, Duration: d})
	}
	return intervals, nil
}

// parseIntervalList decodes [{"label","start","duration"}] entries,
// keeping only those that fall on the requested day.
func (fsrc *FileSource) parseIntervalList(raw []byte, day time.Time) ([]BlockInterval, error) {
	var entries []intervalJson
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("times file '%s' fail to decode. Error: %w", fsrc.file, err)
	}
	var intervals []BlockInterval
	for _, e := range entries {
		start, err := parseStartOn(day, e.Start)
		if err != nil {
			return nil, fmt.Errorf("times file '%s', '%s': %w", fsrc.file, e.Label, err)
		}
		if !Day(start).Equal(day) {
			continue
		}
		d, err := time.ParseDuration(e.Duration)
		if err != nil {
			return nil, fmt.Errorf("times file '%s', '%s': invalid duration format %s", fsrc.file, e.Label, e.Duration)
		}
		intervals = append(intervals, BlockInterval{Label: e.Label, Start: start, Duration: d})
	}
	return intervals, nil
}

func parseStartOn(day time.Time, value string) (time.Time, error) {
	if t, err := time.ParseInLocation(time.RFC3339, value, day.Location()); err == nil {
		return t, nil
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.ParseInLocation(layout, value, day.Location()); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(),
				t.Hour(), t.Minute(), t.Second(), 0, day.Location()), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid start time '%s'", value)
}

func firstByte(raw []byte) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b
	}
	return 0
}

type fileSourceJson struct {
	File         string
	PollInterval string
	Blocks       map[string]string
}

type intervalJson struct {
	Label    string
	Start    string
	Duration string
}
