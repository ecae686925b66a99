package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/wonny/urdash/internal/api/handlers"
	"github.com/wonny/urdash/internal/location"
	"github.com/wonny/urdash/internal/scheduler"
	"github.com/wonny/urdash/pkg/config"
	"github.com/wonny/urdash/pkg/logger"
	"github.com/wonny/urdash/pkg/redis"
)

type fakeHistory struct {
	history map[string]location.LocationView
	err     error
	calls   int
}

func (f *fakeHistory) History(context.Context) (map[string]location.LocationView, error) {
	f.calls++
	return f.history, f.err
}

type fakeProxy struct {
	body []byte
	err  error
}

func (f *fakeProxy) RawProviderLocations(context.Context) ([]byte, error) {
	return f.body, f.err
}

type noopJob struct{}

func (noopJob) Name() string                                   { return "location_update" }
func (noopJob) Schedule() string                               { return "@aligned 1h" }
func (noopJob) Run(context.Context, scheduler.StateFunc) error { return nil }

func newTestRouter(t *testing.T, history *fakeHistory, proxy *fakeProxy, limiter *rate.Limiter) http.Handler {
	t.Helper()

	client, err := redis.New(context.Background(), config.RedisConfig{Enabled: false})
	require.NoError(t, err)

	sched := scheduler.New(logger.Nop())
	require.NoError(t, sched.AddJob(noopJob{}))
	h, err := sched.Start(context.Background())
	require.NoError(t, err)
	t.Cleanup(h.Stop)

	lh := handlers.NewLocationHandler(history, proxy, redis.NewCache(client, "test"), limiter, logger.Nop())
	sh := handlers.NewSchedulerHandler(sched, logger.Nop())
	return NewRouter(lh, sh, nil, logger.Nop())
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, &fakeHistory{}, &fakeProxy{}, nil)

	rec := serve(r, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"urdash-api"}`, rec.Body.String())
}

func TestLocationsHistory(t *testing.T) {
	count, pct, prev := int64(5), 33.3, int64(15)
	up := location.DirectionUp
	history := &fakeHistory{history: map[string]location.LocationView{
		"Wonderland": {
			Name:          "Wonderland",
			CountryCode:   "wl",
			ProviderCount: 20,
			Stable:        true,
			Delta1h:       location.Delta{Count: &count, Percent: &pct, Direction: &up, PrevCount: &prev},
			LastUpdated:   1_767_225_600_000,
		},
	}}
	r := newTestRouter(t, history, &fakeProxy{}, nil)

	rec := serve(r, http.MethodGet, "/api/locations/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	wl := body["history"]["Wonderland"]
	assert.Equal(t, "wl", wl["country_code"])
	assert.Equal(t, float64(20), wl["provider_count"])
	assert.Equal(t, map[string]interface{}{"count": float64(5), "percent": 33.3, "direction": "up", "prev_count": float64(15)}, wl["delta_1h"])
	assert.Equal(t, map[string]interface{}{"count": nil, "percent": nil, "direction": nil, "prev_count": nil}, wl["delta_24h"])
	assert.Equal(t, float64(1_767_225_600_000), wl["last_updated"])
}

func TestLocationsHistory_StoreError(t *testing.T) {
	r := newTestRouter(t, &fakeHistory{err: errors.New("store error: database is locked")}, &fakeProxy{}, nil)

	rec := serve(r, http.MethodGet, "/api/locations/history")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"history":{},"error":"store error: database is locked"}`, rec.Body.String())
}

func TestLocationsProxy(t *testing.T) {
	raw := `{"locations":[{"name":"Oz","provider_count":3,"extra":"kept"}]}`
	r := newTestRouter(t, &fakeHistory{}, &fakeProxy{body: []byte(raw)}, nil)

	rec := serve(r, http.MethodGet, "/api/locations")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, raw, rec.Body.String())
}

func TestLocationsProxy_UpstreamFailure(t *testing.T) {
	r := newTestRouter(t, &fakeHistory{}, &fakeProxy{err: errors.New("connection refused")}, nil)

	rec := serve(r, http.MethodGet, "/api/locations")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"locations":[],"error":"connection refused"}`, rec.Body.String())
}

func TestLocationsProxy_RateLimited(t *testing.T) {
	limiter := rate.NewLimiter(rate.Limit(0.001), 1)
	r := newTestRouter(t, &fakeHistory{}, &fakeProxy{body: []byte(`{"locations":[]}`)}, limiter)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/locations").Code)

	rec := serve(r, http.MethodGet, "/api/locations")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"locations":[],"error":"rate limit exceeded"}`, rec.Body.String())
}

func TestSchedulerJobs(t *testing.T) {
	r := newTestRouter(t, &fakeHistory{}, &fakeProxy{}, nil)

	rec := serve(r, http.MethodGet, "/api/scheduler/jobs")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Contains(t, stats, "location_update")
	assert.Equal(t, "sleeping", stats["location_update"]["state"])
	assert.Equal(t, "@aligned 1h", stats["location_update"]["schedule"])

	rec = serve(r, http.MethodGet, "/api/scheduler/jobs/location_update/history")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(r, http.MethodGet, "/api/scheduler/jobs/missing/history")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(r, http.MethodPost, "/api/scheduler/jobs/location_update/run")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = serve(r, http.MethodPost, "/api/scheduler/jobs/missing/run")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	r := newTestRouter(t, &fakeHistory{}, &fakeProxy{}, nil)

	rec := serve(r, http.MethodPost, "/api/locations/history")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := serve(h, http.MethodGet, "/anything")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}

func TestLocationsHistory_DisabledCacheReadsStore(t *testing.T) {
	history := &fakeHistory{history: map[string]location.LocationView{}}
	r := newTestRouter(t, history, &fakeProxy{}, nil)

	serve(r, http.MethodGet, "/api/locations/history")
	serve(r, http.MethodGet, "/api/locations/history")

	assert.Equal(t, 2, history.calls)
}

func TestInvalidateHistory_WithoutCache(t *testing.T) {
	lh := handlers.NewLocationHandler(&fakeHistory{}, &fakeProxy{}, nil, nil, logger.Nop())

	assert.NotPanics(t, func() {
		lh.InvalidateHistory(context.Background(), location.CycleSummary{Timestamp: 1})
	})
}

func TestSchedulerRun_NotStarted(t *testing.T) {
	sched := scheduler.New(logger.Nop())
	require.NoError(t, sched.AddJob(noopJob{}))

	lh := handlers.NewLocationHandler(&fakeHistory{}, &fakeProxy{}, nil, nil, logger.Nop())
	r := NewRouter(lh, handlers.NewSchedulerHandler(sched, logger.Nop()), nil, logger.Nop())

	rec := serve(r, http.MethodPost, "/api/scheduler/jobs/location_update/run")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLocationHistory_FrontendPath(t *testing.T) {
	history := &fakeHistory{history: map[string]location.LocationView{
		"Wonderland": {Name: "Wonderland", CountryCode: "wl", ProviderCount: 15},
	}}
	r := newTestRouter(t, history, &fakeProxy{}, nil)

	legacy := serve(r, http.MethodGet, "/api/location-history")
	require.Equal(t, http.StatusOK, legacy.Code)

	current := serve(r, http.MethodGet, "/api/locations/history")
	assert.JSONEq(t, current.Body.String(), legacy.Body.String())
}
