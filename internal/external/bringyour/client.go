package bringyour

import (
	"errors"
	"strings"

	"github.com/wonny/urdash/pkg/config"
	"github.com/wonny/urdash/pkg/httputil"
	"github.com/wonny/urdash/pkg/logger"
)

const providerLocationsPath = "/network/provider-locations"

var (
	// ErrNetwork covers timeouts, refused connections and other transport failures
	ErrNetwork = errors.New("upstream network error")
	// ErrUpstreamFormat covers non-200 responses and bodies that do not decode
	ErrUpstreamFormat = errors.New("upstream format error")
)

// Client handles communication with the BringYour API
// ⭐ SSOT: BringYour API calls only happen in this client
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	policy     httputil.RetryPolicy
}

// NewClient creates a new BringYour client
func NewClient(httpClient *httputil.Client, cfg config.UpstreamConfig, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.Component("bringyour"),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		policy: httputil.RetryPolicy{
			MaxAttempts: cfg.MaxRetries,
			Interval:    cfg.RetryInterval,
		},
	}
}

func (c *Client) providerLocationsURL() string {
	return c.baseURL + providerLocationsPath
}
