package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/urdash/internal/location"
	"github.com/wonny/urdash/pkg/logger"
	"github.com/wonny/urdash/pkg/redis"
)

// HistoryReader reads the current-state view
type HistoryReader interface {
	History(ctx context.Context) (map[string]location.LocationView, error)
}

// LocationsProxy fetches the raw upstream feed
type LocationsProxy interface {
	RawProviderLocations(ctx context.Context) ([]byte, error)
}

// HistoryCache stores the rendered history between cycles (see redis.Cache)
type HistoryCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// HistoryResponse is the /api/locations/history payload
type HistoryResponse struct {
	History map[string]location.LocationView `json:"history"`
	Error   string                           `json:"error,omitempty"`
}

// LocationHandler serves the location endpoints
// ⭐ SSOT: location API handlers live in this struct only
type LocationHandler struct {
	history HistoryReader
	proxy   LocationsProxy
	cache   HistoryCache
	limiter *rate.Limiter
	logger  *logger.Logger

	// generation is bumped on every invalidation; a read only fills the
	// cache if no invalidation happened since it started
	cacheMu    sync.Mutex
	generation uint64
}

// NewLocationHandler creates a new location handler. cache may be nil.
func NewLocationHandler(
	history HistoryReader,
	proxy LocationsProxy,
	cache HistoryCache,
	limiter *rate.Limiter,
	log *logger.Logger,
) *LocationHandler {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &LocationHandler{
		history: history,
		proxy:   proxy,
		cache:   cache,
		limiter: limiter,
		logger:  log,
	}
}

// GetHistory returns every tracked country with its deltas
// GET /api/locations/history
func (h *LocationHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.cache != nil {
		var cached map[string]location.LocationView
		found, err := h.cache.Get(ctx, redis.HistoryKey, &cached)
		if err != nil {
			h.logger.WithError(err).Warn("History cache read failed")
		}
		if found {
			respondJSON(w, http.StatusOK, HistoryResponse{History: cached})
			return
		}
	}

	h.cacheMu.Lock()
	generation := h.generation
	h.cacheMu.Unlock()

	history, err := h.history.History(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to read location history")
		respondJSON(w, http.StatusInternalServerError, HistoryResponse{
			History: map[string]location.LocationView{},
			Error:   err.Error(),
		})
		return
	}

	if h.cache != nil {
		h.fillCache(ctx, generation, history)
	}

	respondJSON(w, http.StatusOK, HistoryResponse{History: history})
}

// ProxyLocations passes the upstream feed through untouched
// GET /api/locations
func (h *LocationHandler) ProxyLocations(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		respondJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"locations": []interface{}{},
			"error":     "rate limit exceeded",
		})
		return
	}

	body, err := h.proxy.RawProviderLocations(r.Context())
	if err != nil {
		h.logger.WithError(err).Warn("Upstream locations fetch failed")
		respondJSON(w, http.StatusBadGateway, map[string]interface{}{
			"locations": []interface{}{},
			"error":     err.Error(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *LocationHandler) fillCache(ctx context.Context, generation uint64, history map[string]location.LocationView) {
	h.cacheMu.Lock()
	defer h.cacheMu.Unlock()

	if h.generation != generation {
		return
	}
	if err := h.cache.Set(ctx, redis.HistoryKey, history, 0); err != nil {
		h.logger.WithError(err).Warn("History cache write failed")
	}
}

// InvalidateHistory drops the cached history after a cycle.
// It is registered as a location.Listener.
func (h *LocationHandler) InvalidateHistory(ctx context.Context, _ location.CycleSummary) {
	if h.cache == nil {
		return
	}

	h.cacheMu.Lock()
	defer h.cacheMu.Unlock()

	h.generation++
	if err := h.cache.Delete(ctx, redis.HistoryKey); err != nil {
		h.logger.WithError(err).Warn("History cache invalidation failed")
	}
}
