package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wonny/urdash/pkg/config"
	"github.com/wonny/urdash/pkg/logger"
)

// maxBodySize caps how much of an upstream response is read into memory
const maxBodySize = 8 << 20

// Client is an HTTP client wrapper with per-request timeout and logging.
// It performs exactly one attempt per call; retry policy lives in Retry.
// ⭐ SSOT: all outbound HTTP requests go through this client
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger
	timeout    time.Duration
}

// New creates a new HTTP client from config
func New(cfg *config.Config, log *logger.Logger) *Client {
	return NewWithTimeout(log, cfg.Upstream.RequestTimeout)
}

// NewWithTimeout creates a client with custom per-request timeout
func NewWithTimeout(log *logger.Logger, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{},
		logger:     log,
		timeout:    timeout,
	}
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Get performs a GET request and reads the body
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &RequestError{Err: fmt.Errorf("failed to create GET request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req)
}

// do executes the request with logging
func (c *Client) do(req *http.Request) (*Response, error) {
	startTime := time.Now()
	url := req.URL.String()

	c.logger.WithFields(map[string]interface{}{
		"method": req.Method,
		"url":    url,
	}).Debug("HTTP request started")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithFields(map[string]interface{}{
			"method":   req.Method,
			"url":      url,
			"duration": time.Since(startTime),
			"error":    err.Error(),
		}).Debug("HTTP request failed")
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"method":      req.Method,
		"url":         url,
		"status_code": resp.StatusCode,
		"duration":    time.Since(startTime),
	}).Debug("HTTP request completed")

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// RequestError is returned when a request cannot even be built
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string { return e.Err.Error() }

func (e *RequestError) Unwrap() error { return e.Err }
