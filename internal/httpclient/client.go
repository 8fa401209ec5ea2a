// Package httpclient provides the HTTP client shared by the source fetcher,
// the media downloader and the publisher, with retry, per-host rate limiting
// and typed errors.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"detiksync/internal/retry"
)

// DefaultUserAgent mimics a desktop browser; the listing site serves a
// reduced page to unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

const maxErrorBody = 2048

// Config holds HTTP client configuration.
type Config struct {
	// Timeout bounds a single request, including reading the body.
	// Streaming requests made with Open only use it for the headers.
	Timeout time.Duration
	// Retry is applied by Do.
	Retry retry.Policy
	// UserAgent is sent unless the caller sets one.
	UserAgent string
	// RequestsPerSecond limits requests per host. Zero means unlimited.
	RequestsPerSecond float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout:           60 * time.Second,
		Retry:             retry.DefaultPolicy(),
		UserAgent:         DefaultUserAgent,
		RequestsPerSecond: 2,
	}
}

// Client wraps an http.Client with retry logic and rate limit handling.
type Client struct {
	base        *http.Client
	stream      *http.Client
	config      *Config
	rateLimiter *RateLimiter
	logger      *zap.Logger
}

// New creates a client. A nil config uses DefaultConfig; a nil logger logs nothing.
func New(cfg *Config, logger *zap.Logger) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	}

	return &Client{
		base:        &http.Client{Timeout: cfg.Timeout, Transport: transport},
		stream:      &http.Client{Transport: transport},
		config:      cfg,
		rateLimiter: NewRateLimiter(cfg.RequestsPerSecond),
		logger:      logger,
	}
}

// RateLimiter exposes the per-host limiter, mainly for tuning in tests.
func (c *Client) RateLimiter() *RateLimiter { return c.rateLimiter }

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// BodyFunc produces a fresh request body for every attempt. A negative
// length means unknown.
type BodyFunc func() (io.Reader, int64, error)

// Get performs a GET request with retry logic.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil, nil)
}

// Do performs a request, retrying transient failures according to the
// configured policy. Non-2xx responses become *HTTPError or *RateLimitError.
func (c *Client) Do(ctx context.Context, method, url string, body BodyFunc, headers map[string]string) (*Response, error) {
	var out *Response
	attempt := 0

	err := retry.Do(ctx, c.config.Retry, IsRetryable, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			c.logger.Debug("retrying request",
				zap.String("method", method), zap.String("url", redactURL(url)), zap.Int("attempt", attempt))
		}

		resp, err := c.send(ctx, c.base, method, url, body, headers)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}
		out = &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Open performs a single GET and returns the live response for streaming.
// The caller must close the body. Non-2xx responses are returned as errors
// with the body already closed. Open does not retry.
func (c *Client) Open(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	return c.send(ctx, c.stream, http.MethodGet, url, nil, headers)
}

func (c *Client) send(ctx context.Context, hc *http.Client, method, url string, body BodyFunc, headers map[string]string) (*http.Response, error) {
	if err := c.rateLimiter.Wait(ctx, url); err != nil {
		return nil, err
	}

	var reader io.Reader
	length := int64(-1)
	if body != nil {
		r, n, err := body()
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("build request body: %w", err))
		}
		reader, length = r, n
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		if closer, ok := reader.(io.Closer); ok {
			closer.Close()
		}
		return nil, retry.Permanent(redactError(err))
	}
	if length >= 0 {
		req.ContentLength = length
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := hc.Do(req)
	if err != nil {
		if closer, ok := reader.(io.Closer); ok {
			closer.Close()
		}
		return nil, fmt.Errorf("http request failed: %w", redactError(err))
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		resp.Body.Close()
		retryAfter := parseRetryAfter(resp.Header)
		c.rateLimiter.Backoff(url, retryAfter)
		return nil, &RateLimitError{StatusCode: resp.StatusCode, RetryAfter: retryAfter}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: redactURL(url), Body: data}
	}

	return resp, nil
}

// IsRetryable classifies errors produced by the client: rate limits, 5xx
// and transport failures are retried, other HTTP errors are not.
func IsRetryable(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Temporary()
	}
	return true
}

// parseRetryAfter extracts the Retry-After header value.
func parseRetryAfter(header http.Header) time.Duration {
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.base.CloseIdleConnections()
	return nil
}
