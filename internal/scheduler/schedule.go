package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const alignedPrefix = "@aligned "

// minLead is the smallest gap to the next boundary that is not skipped
const minLead = 100 * time.Millisecond

// AlignedSchedule fires on wall-clock multiples of Interval since the Unix epoch
type AlignedSchedule struct {
	Interval time.Duration
}

// Next implements cron.Schedule
func (s AlignedSchedule) Next(t time.Time) time.Time {
	return NextBoundary(t, s.Interval)
}

// NextBoundary returns the first multiple of interval strictly after now.
// A boundary closer than 100ms is skipped so clock drift cannot fire a
// cycle twice around the same mark.
func NextBoundary(now time.Time, interval time.Duration) time.Time {
	n := now.UnixNano()
	step := int64(interval)

	next := (n/step + 1) * step
	if next-n < int64(minLead) {
		next += step
	}

	return time.Unix(0, next).In(now.Location())
}

// ParseSchedule accepts "@aligned <duration>" or a standard 5-field cron spec
func ParseSchedule(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)

	if rest, ok := strings.CutPrefix(spec, alignedPrefix); ok {
		interval, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("invalid aligned interval %q: %w", rest, err)
		}
		if interval <= 0 {
			return nil, fmt.Errorf("aligned interval must be positive, got %s", interval)
		}
		return AlignedSchedule{Interval: interval}, nil
	}

	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}
