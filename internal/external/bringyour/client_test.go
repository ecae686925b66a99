package bringyour

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/urdash/pkg/config"
	"github.com/wonny/urdash/pkg/httputil"
	"github.com/wonny/urdash/pkg/logger"
)

const sampleBody = `{"locations":[
	{"name":"Wonderland","country_code":"wl","provider_count":15,"stable":true,"strong_privacy":false},
	{"name":"Oz","provider_count":3,"stable":false,"strong_privacy":true}
]}`

func newTestClient(baseURL string, retries int) *Client {
	cfg := config.UpstreamConfig{
		BaseURL:        baseURL,
		MaxRetries:     retries,
		RetryInterval:  time.Millisecond,
		RequestTimeout: time.Second,
	}
	return NewClient(httputil.NewWithTimeout(logger.Nop(), cfg.RequestTimeout), cfg, logger.Nop())
}

func TestParseProviderLocations(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{name: "valid feed", body: sampleBody, want: 2},
		{name: "empty list", body: `{"locations":[]}`, want: 0},
		{name: "nameless entry dropped", body: `{"locations":[{"provider_count":4}]}`, want: 0},
		{name: "missing locations", body: `{"countries":[]}`, wantErr: true},
		{name: "malformed json", body: `{"locations":[`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProviderLocations([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUpstreamFormat)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestProviderLocations_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/network/provider-locations", r.URL.Path)
		w.Write([]byte(sampleBody))
	}))
	defer server.Close()

	locations, err := newTestClient(server.URL, 10).ProviderLocations(context.Background())
	require.NoError(t, err)
	require.Len(t, locations, 2)

	assert.Equal(t, Location{Name: "Wonderland", CountryCode: "wl", ProviderCount: 15, Stable: true}, locations[0])
	assert.Equal(t, "", locations[1].CountryCode)
	assert.True(t, locations[1].StrongPrivacy)
}

func TestProviderLocations_RetriesServerErrorsAndBadBodies(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusBadGateway)
		case 2:
			w.Write([]byte(`not json`))
		default:
			w.Write([]byte(sampleBody))
		}
	}))
	defer server.Close()

	locations, err := newTestClient(server.URL, 10).ProviderLocations(context.Background())
	require.NoError(t, err)
	assert.Len(t, locations, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestProviderLocations_AllAttemptsFail(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, 10).ProviderLocations(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, httputil.ErrRetriesExhausted)
	assert.ErrorIs(t, err, ErrUpstreamFormat)
	assert.Equal(t, int32(10), calls.Load())
}

func TestProviderLocations_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := newTestClient(url, 2).ProviderLocations(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, httputil.ErrRetriesExhausted)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestRawProviderLocations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleBody))
	}))
	defer server.Close()

	body, err := newTestClient(server.URL, 10).RawProviderLocations(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, sampleBody, string(body))
}

func TestRawProviderLocations_SingleAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, 10).RawProviderLocations(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamFormat)
	assert.Equal(t, int32(1), calls.Load())
}
