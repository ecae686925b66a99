package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/urdash/internal/external/bringyour"
	"github.com/wonny/urdash/pkg/config"
	"github.com/wonny/urdash/pkg/logger"
)

type stubFetcher struct {
	locations []bringyour.Location
	err       error
	calls     int
}

func (f *stubFetcher) ProviderLocations(ctx context.Context) ([]bringyour.Location, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.locations, nil
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestUpdater(t *testing.T) (*Updater, *SQLiteRepository, *stubFetcher, *testClock) {
	t.Helper()

	repo := newTestRepo(t)
	fetcher := &stubFetcher{}
	clock := &testClock{now: time.UnixMilli(baseTS)}

	u := NewUpdater(repo, fetcher, config.LocationConfig{Retention: 26 * time.Hour}, logger.Nop())
	u.SetClock(clock.Now)
	return u, repo, fetcher, clock
}

func TestUpdater_RunCycle_WonderlandScenario(t *testing.T) {
	ctx := context.Background()
	u, _, fetcher, clock := newTestUpdater(t)

	// hour 0: first observation
	fetcher.locations = []bringyour.Location{
		{Name: "Wonderland", CountryCode: "wl", ProviderCount: 15, Stable: true},
		{Name: "Oz", CountryCode: "oz", ProviderCount: 3, StrongPrivacy: true},
	}
	summary, err := u.RunCycle(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Countries)
	assert.False(t, summary.FetchFailed)

	history, err := u.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Nil(t, history["Wonderland"].Delta1h.Count)

	// hour 1: growth, empty code, Oz missing from a partial response
	clock.now = clock.now.Add(time.Hour)
	fetcher.locations = []bringyour.Location{
		{Name: "Wonderland", ProviderCount: 20, Stable: true},
	}
	summary, err = u.RunCycle(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Countries)

	history, err = u.History(ctx)
	require.NoError(t, err)

	wl := history["Wonderland"]
	assert.Equal(t, "wl", wl.CountryCode)
	assert.Equal(t, int64(20), wl.ProviderCount)
	require.NotNil(t, wl.Delta1h.Count)
	assert.Equal(t, int64(5), *wl.Delta1h.Count)
	assert.InDelta(t, 33.3, *wl.Delta1h.Percent, 1e-9)
	assert.Equal(t, DirectionUp, *wl.Delta1h.Direction)
	assert.Equal(t, int64(15), *wl.Delta1h.PrevCount)
	assert.Nil(t, wl.Delta3h.Count)
	assert.Equal(t, baseTS+hourMs, wl.LastUpdated)

	oz := history["Oz"]
	assert.Equal(t, "oz", oz.CountryCode)
	assert.Equal(t, int64(0), oz.ProviderCount)
	assert.False(t, oz.StrongPrivacy)
	assert.Equal(t, int64(-3), *oz.Delta1h.Count)
	assert.Equal(t, float64(-100), *oz.Delta1h.Percent)

	// hour 2: upstream down, everything decays to zero
	clock.now = clock.now.Add(time.Hour)
	fetcher.err = errors.New("upstream unreachable")
	summary, err = u.RunCycle(ctx, nil)
	require.NoError(t, err)
	assert.True(t, summary.FetchFailed)
	assert.Equal(t, 2, summary.Countries)

	history, err = u.History(ctx)
	require.NoError(t, err)
	wl = history["Wonderland"]
	assert.Equal(t, "wl", wl.CountryCode)
	assert.Equal(t, int64(0), wl.ProviderCount)
	assert.False(t, wl.Stable)
	assert.Equal(t, int64(-20), *wl.Delta1h.Count)
	assert.Equal(t, DirectionDown, *wl.Delta1h.Direction)
	assert.Nil(t, wl.Delta3h.Count)
}

func TestUpdater_RunCycle_TotalFailureWithNothingTracked(t *testing.T) {
	ctx := context.Background()
	u, repo, fetcher, _ := newTestUpdater(t)

	fetcher.err = errors.New("upstream unreachable")
	summary, err := u.RunCycle(ctx, nil)
	require.NoError(t, err)
	assert.True(t, summary.FetchFailed)
	assert.Equal(t, 0, summary.Countries)
	assert.Equal(t, 0, countSnapshots(t, repo))
}

func TestUpdater_RunCycle_CancelledFetchWritesNothing(t *testing.T) {
	u, repo, fetcher, _ := newTestUpdater(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetcher.err = context.Canceled

	_, err := u.RunCycle(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, countSnapshots(t, repo))
}

func TestUpdater_RunCycle_ReportsPhasesAndNotifies(t *testing.T) {
	ctx := context.Background()
	u, _, fetcher, _ := newTestUpdater(t)
	fetcher.locations = []bringyour.Location{{Name: "Wonderland", ProviderCount: 1}}

	var phases []Phase
	var got []CycleSummary
	u.OnCycle(func(_ context.Context, s CycleSummary) { got = append(got, s) })

	_, err := u.RunCycle(ctx, func(p Phase) { phases = append(phases, p) })
	require.NoError(t, err)

	assert.Equal(t, []Phase{PhaseFetching, PhasePersisting}, phases)
	require.Len(t, got, 1)
	assert.Equal(t, baseTS, got[0].Timestamp)
	assert.Equal(t, 1, got[0].Countries)
}

func TestUpdater_Purge(t *testing.T) {
	ctx := context.Background()
	u, repo, _, _ := newTestUpdater(t)

	now := baseTS + 48*hourMs
	require.NoError(t, repo.InsertSnapshot(ctx, []Snapshot{
		{TakenAt: now - 27*hourMs, Country: "Wonderland", ProviderCount: 1},
		{TakenAt: now - 25*hourMs, Country: "Wonderland", ProviderCount: 2},
	}))

	n, err := u.Purge(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = u.Purge(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestUpdater_DeltasUseNearestSnapshot(t *testing.T) {
	ctx := context.Background()
	u, repo, _, _ := newTestUpdater(t)

	now := baseTS + 30*hourMs
	require.NoError(t, repo.InsertSnapshot(ctx, []Snapshot{
		{TakenAt: now - 24*hourMs - 25*minuteMs, Country: "Wonderland", ProviderCount: 8},
		{TakenAt: now - 12*hourMs + 29*minuteMs, Country: "Wonderland", ProviderCount: 10},
		{TakenAt: now - 6*hourMs + 45*minuteMs, Country: "Wonderland", ProviderCount: 99},
	}))

	written, err := u.WriteSnapshot(ctx, now, []Measurement{{Name: "Wonderland", CountryCode: "wl", ProviderCount: 12}})
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	updated, err := u.UpdateCurrentState(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	rows, err := repo.ListCurrent(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	d := rows[0].Deltas
	assert.Nil(t, d[0])
	assert.Nil(t, d[1])
	assert.Nil(t, d[2], "45 minutes off is outside tolerance")
	require.NotNil(t, d[3])
	assert.Equal(t, int64(2), *d[3])
	require.NotNil(t, d[4])
	assert.Equal(t, int64(4), *d[4])
}

type failingRepo struct {
	*SQLiteRepository
}

func (failingRepo) InsertSnapshot(context.Context, []Snapshot) error {
	return storeErr("insert snapshot", errors.New("disk I/O error"))
}

func TestUpdater_StoreErrorAbortsCycle(t *testing.T) {
	repo := newTestRepo(t)
	fetcher := &stubFetcher{locations: []bringyour.Location{{Name: "Wonderland", ProviderCount: 1}}}
	u := NewUpdater(failingRepo{repo}, fetcher, config.LocationConfig{}, logger.Nop())

	notified := false
	u.OnCycle(func(context.Context, CycleSummary) { notified = true })

	_, err := u.RunCycle(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStore)
	assert.False(t, notified)

	rows, err := repo.ListCurrent(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}
