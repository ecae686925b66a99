package bringyour

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/wonny/urdash/pkg/httputil"
)

// Location is one entry of the provider-locations feed
type Location struct {
	Name          string `json:"name"`
	CountryCode   string `json:"country_code,omitempty"`
	ProviderCount int64  `json:"provider_count"`
	Stable        bool   `json:"stable"`
	StrongPrivacy bool   `json:"strong_privacy"`
}

type providerLocationsResponse struct {
	Locations *[]Location `json:"locations"`
}

// ProviderLocations fetches the current location set with the configured
// fixed-interval retry budget. When every attempt fails the returned error
// wraps httputil.ErrRetriesExhausted; the caller decides the fallback.
func (c *Client) ProviderLocations(ctx context.Context) ([]Location, error) {
	url := c.providerLocationsURL()

	locations, err := httputil.Retry(ctx, c.policy, c.logger, func(ctx context.Context, attempt int) httputil.Result[[]Location] {
		return c.fetchProviderLocations(ctx, url)
	})
	if err != nil {
		c.logger.WithError(err).Error("Provider locations fetch failed")
		return nil, err
	}

	c.logger.WithField("locations", len(locations)).Info("Fetched provider locations")
	return locations, nil
}

// fetchProviderLocations performs one attempt and classifies its outcome
func (c *Client) fetchProviderLocations(ctx context.Context, url string) httputil.Result[[]Location] {
	resp, err := c.httpClient.Get(ctx, url)
	if err != nil {
		var reqErr *httputil.RequestError
		if errors.As(err, &reqErr) {
			return httputil.FatalFailure[[]Location](err)
		}
		return httputil.RetryableFailure[[]Location](fmt.Errorf("%w: %v", ErrNetwork, err))
	}

	if resp.StatusCode != http.StatusOK {
		return httputil.RetryableFailure[[]Location](fmt.Errorf("%w: HTTP %d", ErrUpstreamFormat, resp.StatusCode))
	}

	locations, err := parseProviderLocations(resp.Body)
	if err != nil {
		return httputil.RetryableFailure[[]Location](err)
	}

	return httputil.Succeeded(locations)
}

// parseProviderLocations decodes the feed body. A missing locations array is
// a format error; entries without a name are dropped.
func parseProviderLocations(body []byte) ([]Location, error) {
	var payload providerLocationsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFormat, err)
	}

	if payload.Locations == nil {
		return nil, fmt.Errorf("%w: missing locations", ErrUpstreamFormat)
	}

	locations := make([]Location, 0, len(*payload.Locations))
	for _, loc := range *payload.Locations {
		if loc.Name == "" {
			continue
		}
		locations = append(locations, loc)
	}

	return locations, nil
}

// RawProviderLocations proxies the feed body untouched in a single attempt.
// Used by the legacy passthrough endpoint, which bypasses the store.
func (c *Client) RawProviderLocations(ctx context.Context) ([]byte, error) {
	resp, err := c.httpClient.Get(ctx, c.providerLocationsURL())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrUpstreamFormat, resp.StatusCode)
	}

	if !json.Valid(resp.Body) {
		return nil, fmt.Errorf("%w: invalid JSON body", ErrUpstreamFormat)
	}

	return resp.Body, nil
}
