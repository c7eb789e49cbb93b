// Package client provides the HTTP client shared by the package stats sources.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenk/backoff"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "pkggate"
	defaultBaseDelay = 500 * time.Millisecond
	maxErrorBody     = 1024

	// maxRetryWait bounds how long a rate limited request waits for the
	// upstream reset. Longer resets end the retries.
	maxRetryWait = 2 * time.Minute
)

// Client is an HTTP client for JSON APIs. By default every request is
// attempted exactly once.
type Client struct {
	httpClient *http.Client
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
	authFn     func(url string) (headerName, headerValue string)
	breakers   *breakerSet
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithMaxRetries sets how many times a rate limited or 5xx request is repeated.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n < 0 {
			n = 0
		}
		c.maxRetries = n
	}
}

// WithBaseDelay sets the initial delay for exponential backoff between retries.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = d
	}
}

// WithAuthFunc sets a function that returns an auth header for a given URL.
// Return empty strings to send the request unauthenticated.
func WithAuthFunc(fn func(url string) (headerName, headerValue string)) Option {
	return func(c *Client) {
		c.authFn = fn
	}
}

// WithCircuitBreaker enables per-host circuit breakers that trip after
// threshold consecutive upstream failures. A threshold of 0 disables them.
func WithCircuitBreaker(threshold int64) Option {
	return func(c *Client) {
		if threshold <= 0 {
			c.breakers = nil
			return
		}
		c.breakers = newBreakerSet(threshold)
	}
}

// DefaultClient returns a client with a 30s timeout, no retries and no
// circuit breaker.
func DefaultClient() *Client {
	return NewClient()
}

// NewClient creates a new client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: newTransport(),
		},
		userAgent: defaultUserAgent,
		baseDelay: defaultBaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithUserAgent returns a copy of the client that sends the given User-Agent.
func (c *Client) WithUserAgent(ua string) *Client {
	cp := *c
	cp.userAgent = ua
	return &cp
}

// GetJSON fetches url and decodes the JSON response body into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	return c.GetJSONWithHeaders(ctx, url, nil, v)
}

// GetJSONWithHeaders is GetJSON with extra request headers.
func (c *Client) GetJSONWithHeaders(ctx context.Context, url string, header http.Header, v any) error {
	body, err := c.get(ctx, url, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return nil
}

// GetBody fetches url and returns the raw response body.
func (c *Client) GetBody(ctx context.Context, url string) ([]byte, error) {
	return c.get(ctx, url, nil)
}

// BreakerStates returns "open" or "closed" per host that has been contacted.
// It is empty when circuit breakers are disabled.
func (c *Client) BreakerStates() map[string]string {
	if c.breakers == nil {
		return map[string]string{}
	}
	return c.breakers.states()
}

func (c *Client) get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	var (
		body    []byte
		lastErr error
	)

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.baseDelay
	exp.MaxElapsedTime = 0
	delays := &rateLimitBackOff{BackOff: exp, max: maxRetryWait}

	op := func() error {
		if err := ctx.Err(); err != nil {
			lastErr = err
			return nil
		}

		b, err := c.attempt(ctx, url, header)
		lastErr = err
		if err == nil {
			body = b
			return nil
		}
		if !retryable(err) {
			return nil
		}
		var rlErr *RateLimitError
		if errors.As(err, &rlErr) && rlErr.RetryAfter > 0 {
			delays.wait = time.Duration(rlErr.RetryAfter) * time.Second
		}
		return err
	}

	// WithMaxRetries treats zero as unlimited.
	var retries backoff.BackOff = &backoff.StopBackOff{}
	if c.maxRetries > 0 {
		retries = backoff.WithMaxRetries(delays, uint64(c.maxRetries))
	}
	policy := backoff.WithContext(retries, ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return body, nil
}

// rateLimitBackOff raises the next delay to the wait announced by a rate
// limited response, and stops when that wait exceeds max.
type rateLimitBackOff struct {
	backoff.BackOff
	max  time.Duration
	wait time.Duration
}

func (b *rateLimitBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	wait := b.wait
	b.wait = 0
	if next == backoff.Stop || wait <= next {
		return next
	}
	if wait > b.max {
		return backoff.Stop
	}
	return wait
}

func (c *Client) attempt(ctx context.Context, url string, header http.Header) ([]byte, error) {
	if c.breakers == nil {
		return c.do(ctx, url, header)
	}

	var body []byte
	err := c.breakers.call(url, func() error {
		var doErr error
		body, doErr = c.do(ctx, url, header)
		return doErr
	})
	return body, err
}

func (c *Client) do(ctx context.Context, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		req.Header[http.CanonicalHeaderKey(k)] = vs
	}

	if c.authFn != nil {
		if name, value := c.authFn(url); name != "" && value != "" {
			req.Header.Set(name, value)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response from %s: %w", url, err)
		}
		return body, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{URL: url, RetryAfter: retryAfter(resp)}

	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return nil, &RateLimitError{URL: url, RetryAfter: retryAfter(resp)}

	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: url, Body: string(b)}
	}
}

// retryAfter reads Retry-After, falling back to GitHub's X-RateLimit-Reset.
func retryAfter(resp *http.Response) int {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	if s := resp.Header.Get("X-RateLimit-Reset"); s != "" {
		if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
			if wait := time.Until(time.Unix(ts, 0)); wait > 0 {
				return int(wait.Seconds()) + 1
			}
		}
	}
	return 0
}

func retryable(err error) bool {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	return false
}
