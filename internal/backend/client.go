// Package backend fetches dashboard datasets from the detection backend.
//
// Every request goes through the shared httpclient, is paced by a token
// bucket and retried with exponential backoff on transient failures.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/naturethrive/birdmonitor/internal/dataset"
	"github.com/naturethrive/birdmonitor/internal/errors"
	"github.com/naturethrive/birdmonitor/internal/httpclient"
	"github.com/naturethrive/birdmonitor/internal/logger"
	"github.com/naturethrive/birdmonitor/internal/observability/metrics"
)

const (
	componentName = "backend"

	DefaultTimeout        = 10 * time.Second
	DefaultMaxRetries     = 2
	DefaultInitialBackoff = 250 * time.Millisecond
	DefaultMaxBackoff     = 2 * time.Second
	DefaultMaxBodyBytes   = 8 << 20

	previewLength = 200
)

// Config holds backend client settings.
type Config struct {
	// BaseURL is the scheme and host serving the /api endpoints
	BaseURL string

	// Timeout bounds a single attempt
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt
	MaxRetries int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RateLimit is requests per second; zero disables pacing
	RateLimit float64
	Burst     int

	// MaxBodyBytes caps the size of a response body
	MaxBodyBytes int64

	UserAgent string

	// Transport overrides the HTTP transport, used by tests
	Transport http.RoundTripper
}

// Client fetches raw dataset bodies.
type Client struct {
	config  Config
	base    *url.URL
	http    *httpclient.Client
	limiter *rate.Limiter
	log     logger.Logger
	metrics *metrics.BackendMetrics

	// sleep waits between attempts; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a backend client. log and m may be nil.
func New(cfg Config, log logger.Logger, m *metrics.BackendMetrics) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.Newf("backend base URL is required").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf("invalid backend base URL %q", cfg.BaseURL).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Context("base_url", cfg.BaseURL).
			Build()
	}
	if cfg.MaxRetries < 0 {
		return nil, errors.Newf("max retries must not be negative, got %d", cfg.MaxRetries).
			Component(componentName).
			Category(errors.CategoryValidation).
			Build()
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = max(DefaultMaxBackoff, cfg.InitialBackoff)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1))
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Client{
		config: cfg,
		base:   base,
		http: httpclient.New(httpclient.Config{
			Timeout:      cfg.Timeout,
			UserAgent:    cfg.UserAgent,
			MaxBodyBytes: cfg.MaxBodyBytes,
			Transport:    cfg.Transport,
		}),
		limiter: limiter,
		log:     log.Module(componentName),
		metrics: m,
		sleep:   sleepContext,
	}, nil
}

// URL returns the absolute URL of a dataset endpoint.
func (c *Client) URL(id dataset.ID) string {
	return c.base.JoinPath(id.Endpoint()).String()
}

// Fetch retrieves the raw body of one dataset. Transient failures are retried;
// the returned error is a network error carrying the status code and attempt count.
func (c *Client) Fetch(ctx context.Context, id dataset.ID) ([]byte, error) {
	if !id.Valid() {
		return nil, errors.Newf("unknown dataset %q", id).
			Component(componentName).
			Category(errors.CategoryValidation).
			Build()
	}

	target := c.URL(id)
	log := c.log.WithContext(ctx)
	start := time.Now()
	maxAttempts := c.config.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, status, err := c.attempt(ctx, id, target)
		if err == nil {
			c.metrics.RecordFetch(id.String(), metrics.StatusSuccess, time.Since(start).Seconds())
			log.Debug("dataset fetched",
				logger.String("dataset", id.String()),
				logger.Int("attempts", attempt),
				logger.Int("bytes", len(body)),
				logger.Duration("elapsed", time.Since(start)))
			return body, nil
		}

		if ctx.Err() != nil {
			c.metrics.RecordFetch(id.String(), metrics.StatusError, time.Since(start).Seconds())
			return nil, cancelled(ctx, id, target, attempt)
		}

		lastErr = errors.New(err).
			Component(componentName).
			Category(errors.CategoryNetwork).
			NetworkContext(target, attempt).
			Context("dataset", id.String()).
			Context("status_code", status).
			Build()

		if !retryable(status) || attempt == maxAttempts {
			break
		}

		delay := c.backoff(attempt)
		log.Warn("dataset request failed, retrying",
			logger.String("dataset", id.String()),
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", maxAttempts),
			logger.Int("status_code", status),
			logger.Duration("delay", delay),
			logger.Error(err))
		c.metrics.RecordRetry(id.String())

		if err := c.sleep(ctx, delay); err != nil {
			c.metrics.RecordFetch(id.String(), metrics.StatusError, time.Since(start).Seconds())
			return nil, cancelled(ctx, id, target, attempt)
		}
	}

	c.metrics.RecordFetch(id.String(), metrics.StatusError, time.Since(start).Seconds())
	log.Error("dataset fetch failed",
		logger.String("dataset", id.String()),
		logger.String("url", target),
		logger.Error(lastErr))
	return nil, lastErr
}

// attempt performs one request. status is zero when no response was received.
func (c *Client) attempt(ctx context.Context, id dataset.ID, target string) (body []byte, status int, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := c.http.GetJSON(ctx, target)
	if err != nil {
		return nil, 0, fmt.Errorf("request %s: %w", id.Endpoint(), err)
	}

	status = resp.StatusCode
	c.metrics.RecordHTTPStatus(id.String(), strconv.Itoa(status))

	if resp.Truncated {
		return nil, status, fmt.Errorf("%s body exceeds %d bytes", id.Endpoint(), c.http.MaxBodyBytes())
	}
	if !resp.OK() {
		return nil, status, fmt.Errorf("%s returned status %d: %s", id.Endpoint(), status, preview(resp.Body))
	}

	c.metrics.RecordResponseSize(id.String(), len(resp.Body))
	return resp.Body, status, nil
}

// backoff returns the delay before retry number attempt, doubling from
// InitialBackoff and capped at MaxBackoff.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.config.InitialBackoff
	for range attempt - 1 {
		delay *= 2
		if delay >= c.config.MaxBackoff {
			return c.config.MaxBackoff
		}
	}
	return delay
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.Close()
}

// retryable reports whether a failed attempt may be repeated. Transport
// errors (status 0), rate limiting and server errors are transient.
func retryable(status int) bool {
	switch {
	case status == 0:
		return true
	case status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

func cancelled(ctx context.Context, id dataset.ID, target string, attempts int) error {
	return errors.New(ctx.Err()).
		Component(componentName).
		Category(errors.CategoryCancellation).
		NetworkContext(target, attempts).
		Context("dataset", id.String()).
		Build()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func preview(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= previewLength {
		return s
	}
	return s[:previewLength] + "..."
}
