package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextBoundary(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		now      time.Time
		interval time.Duration
		want     time.Time
	}{
		{name: "mid hour", now: base.Add(17 * time.Minute), interval: time.Hour, want: base.Add(time.Hour)},
		{name: "exactly on the hour", now: base, interval: time.Hour, want: base.Add(time.Hour)},
		{name: "just before the hour", now: base.Add(-time.Second), interval: time.Hour, want: base},
		{name: "within drift margin", now: base.Add(-50 * time.Millisecond), interval: time.Hour, want: base.Add(time.Hour)},
		{name: "five minute mark", now: base.Add(7*time.Minute + 30*time.Second), interval: 5 * time.Minute, want: base.Add(10 * time.Minute)},
		{name: "five minute drift", now: base.Add(5*time.Minute - 10*time.Millisecond), interval: 5 * time.Minute, want: base.Add(10 * time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextBoundary(tt.now, tt.interval)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
			assert.True(t, got.After(tt.now))
		})
	}
}

func TestNextBoundary_KeepsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	now := time.Date(2026, 1, 1, 10, 20, 0, 0, loc)

	got := NextBoundary(now, time.Hour)
	assert.Equal(t, loc, got.Location())
	assert.Equal(t, 11, got.Hour())
	assert.Equal(t, 0, got.Minute())
}

func TestParseSchedule(t *testing.T) {
	sched, err := ParseSchedule("@aligned 1h")
	require.NoError(t, err)
	assert.Equal(t, AlignedSchedule{Interval: time.Hour}, sched)

	sched, err = ParseSchedule("0 3 * * *")
	require.NoError(t, err)
	next := sched.Next(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC), next)

	for _, bad := range []string{"@aligned", "@aligned soon", "@aligned 0s", "@aligned -5m", "not a cron"} {
		_, err := ParseSchedule(bad)
		assert.Error(t, err, bad)
	}
}
