package papersources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"
)

// RequestRecorder receives per-request outcomes, typically a metrics sink.
type RequestRecorder interface {
	RecordSourceRequest(source, endpoint string, durationSeconds float64)
	RecordSourceRequestFailed(source, endpoint, errorType string)
}

// Error types reported to RequestRecorder.
const (
	ErrorTypeTransport = "transport"
	ErrorTypeTimeout   = "timeout"
	ErrorTypeStatus    = "status"
	ErrorTypeCanceled  = "canceled"
)

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Source labels requests for metrics and error messages.
	Source string

	// Timeout is the per-request timeout. Exceeding it is a transport failure.
	Timeout time.Duration

	// RequestsPerSecond is the sustained request rate. Zero disables limiting.
	RequestsPerSecond float64

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// Recorder is optional.
	Recorder RequestRecorder
}

// HTTPClient wraps http.Client with a rate limiter. Every call to Do waits on
// the limiter exactly once and sends exactly one attempt; there are no retries.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
}

// NewHTTPClient creates a new rate-limited HTTP client.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "literature-collector/1.0"
	}
	if cfg.Source == "" {
		cfg.Source = "http"
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: NewRateLimiter(cfg.RequestsPerSecond),
		config:      cfg,
	}
}

// RateLimiter returns the limiter owned by this client.
func (c *HTTPClient) RateLimiter() *RateLimiter {
	return c.rateLimiter
}

// Do waits for the rate limiter, then executes req once.
// Non-2xx responses are returned to the caller unchanged; only failures to
// obtain a response produce an error.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	endpoint := path.Base(req.URL.Path)

	if err := c.rateLimiter.Wait(req.Context()); err != nil {
		c.recordFailure(endpoint, ErrorTypeCanceled)
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.recordFailure(endpoint, classifyError(err))
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if c.config.Recorder != nil {
		c.config.Recorder.RecordSourceRequest(c.config.Source, endpoint, time.Since(start).Seconds())
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			c.config.Recorder.RecordSourceRequestFailed(c.config.Source, endpoint, ErrorTypeStatus)
		}
	}
	return resp, nil
}

func (c *HTTPClient) recordFailure(endpoint, errorType string) {
	if c.config.Recorder != nil {
		c.config.Recorder.RecordSourceRequestFailed(c.config.Source, endpoint, errorType)
	}
}

func classifyError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return ErrorTypeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return ErrorTypeTimeout
	}
	return ErrorTypeTransport
}
