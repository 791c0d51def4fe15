// Package httpclient is the HTTP transport shared by backend requests. It
// applies a default deadline when the caller's context has none, identifies
// itself with a User-Agent, and reads bodies up to a fixed cap.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	// DefaultTimeout applies when the request context carries no deadline.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxBodyBytes caps how much of a response body is read.
	DefaultMaxBodyBytes int64 = 8 << 20

	defaultUserAgent = "birdmonitor"

	// The dashboard talks to a single host.
	maxIdleConnsPerHost   = 4
	idleConnTimeout       = 90 * time.Second
	dialTimeout           = 5 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second
	responseHeaderTimeout = 10 * time.Second
)

// Config holds configuration for creating a Client. Zero fields take defaults.
type Config struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64

	// Transport replaces the pooled transport; tests inject mocks here.
	Transport http.RoundTripper
}

// Response is a response whose body has been read and closed.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Truncated is set when the body was longer than MaxBodyBytes; Body then
	// holds only the first MaxBodyBytes bytes.
	Truncated bool
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// Client performs GET requests for JSON documents. Safe for concurrent use.
type Client struct {
	client       *http.Client
	timeout      time.Duration
	userAgent    string
	maxBodyBytes int64
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	transport := cfg.Transport
	if transport == nil {
		transport = newTransport()
	}

	return &Client{
		// No client-wide timeout; GetJSON derives one per request from ctx.
		client:       &http.Client{Transport: transport},
		timeout:      cfg.Timeout,
		userAgent:    cfg.UserAgent,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   maxIdleConnsPerHost,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ResponseHeaderTimeout: responseHeaderTimeout,
	}
}

// GetJSON fetches url and returns the status and body. Non-2xx statuses are
// not errors here; an error means no complete response was received, and
// wraps ctx.Err() when the context ended the request.
func (c *Client) GetJSON(ctx context.Context, url string) (*Response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
	if int64(len(body)) > c.maxBodyBytes {
		out.Body = body[:c.maxBodyBytes]
		out.Truncated = true
	}
	return out, nil
}

// MaxBodyBytes returns the body cap in effect.
func (c *Client) MaxBodyBytes() int64 {
	return c.maxBodyBytes
}

// Close releases idle connections. Safe to call more than once.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}
