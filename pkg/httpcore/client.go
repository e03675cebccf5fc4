// Package httpcore is the resilient HTTP layer every outbound integration
// goes through. It combines per-host circuit breaking, bounded retries with
// exponential backoff, and cursor pagination, and classifies failures into
// the shared error taxonomy.
package httpcore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/riskradar/riskradar/pkg/errkind"
)

const (
	// maxAttempts bounds one logical request: the first try plus retries.
	maxAttempts = 3

	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 8 * time.Second
)

// Request describes one logical outbound call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte

	// Timeout bounds each individual attempt. Zero means the client default.
	Timeout time.Duration
}

// Response is the decoded outcome of a successful call.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Client issues outbound HTTP requests with retries and circuit breaking.
// Safe for concurrent use.
type Client struct {
	http           *http.Client
	breakers       *breakerSet
	metrics        *Metrics
	defaultTimeout time.Duration
	retryWait      time.Duration
	log            *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithTransport overrides the underlying http.Client, used by tests to point
// at httptest servers.
func WithTransport(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithDefaultTimeout sets the per-attempt timeout used when a Request does
// not carry its own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

// WithRetryWait overrides the initial backoff interval, used by tests to
// avoid real sleeps.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) { c.retryWait = d }
}

// NewClient builds a resilient client sharing one metrics registry.
func NewClient(metrics *Metrics, opts ...Option) *Client {
	c := &Client{
		http:           &http.Client{},
		metrics:        metrics,
		defaultTimeout: 30 * time.Second,
		retryWait:      initialBackoff,
		log:            slog.With("component", "httpcore"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breakers = newBreakerSet(c.log, metrics)
	return c
}

// Do executes the request with up to maxAttempts tries. Transport errors,
// 5xx, and 429 responses are retried with exponential backoff; other 4xx
// responses fail immediately. An open circuit for the target host fails fast
// without consuming a network attempt.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	host, err := hostOf(req.URL)
	if err != nil {
		return nil, errkind.New(errkind.InvalidInput, "invalid request URL %q: %v", req.URL, err)
	}
	br := c.breakers.forHost(host)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryWait
	bo.MaxInterval = maxBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, maxAttempts-1), ctx)

	var resp *Response
	attempt := 0
	operation := func() error {
		attempt++
		out, execErr := br.Execute(func() (any, error) {
			return c.attempt(ctx, req)
		})
		if execErr != nil {
			if errors.Is(execErr, gobreaker.ErrOpenState) || errors.Is(execErr, gobreaker.ErrTooManyRequests) {
				c.metrics.breakerRejects.WithLabelValues(host).Inc()
				// No point retrying while the circuit stays open.
				return backoff.Permanent(errkind.New(errkind.CircuitOpen, "circuit open for host %s", host))
			}
			return c.classify(host, req, execErr, attempt)
		}
		resp = out.(*Response)
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		var kerr *errkind.Error
		if errors.As(err, &kerr) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, errkind.Wrap(errkind.Cancelled, ctx.Err(), "request cancelled")
		}
		return nil, err
	}
	return resp, nil
}

// attempt performs a single HTTP exchange. Non-2xx statuses are returned as
// errors so the breaker counts them.
func (c *Client) attempt(ctx context.Context, req Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.observe(hostLabel(req.URL), "transport_error", time.Since(start))
		return nil, &transportError{err: err}
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		c.metrics.observe(hostLabel(req.URL), "read_error", time.Since(start))
		return nil, &transportError{err: err}
	}
	c.metrics.observe(hostLabel(req.URL), statusClass(httpResp.StatusCode), time.Since(start))

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return &Response{StatusCode: httpResp.StatusCode, Body: payload, Header: httpResp.Header}, nil
	}
	return nil, &statusError{code: httpResp.StatusCode, body: truncate(payload, 512)}
}

// maxResponseBytes caps a single response body read. Deep search reports can
// be large; anything bigger than this is a misbehaving upstream.
const maxResponseBytes = 16 << 20

// classify maps an attempt failure to the error taxonomy and decides
// retryability for the backoff policy.
func (c *Client) classify(host string, req Request, err error, attempt int) error {
	var tErr *transportError
	if errors.As(err, &tErr) {
		if attempt < maxAttempts {
			c.metrics.retries.WithLabelValues(host).Inc()
			c.log.Warn("Retrying after transport error",
				"host", host, "method", req.Method, "attempt", attempt, "error", tErr.err)
			return err // retryable
		}
		if isTimeout(tErr.err) {
			return backoff.Permanent(errkind.Wrap(errkind.Timeout, tErr.err, "request to "+host+" timed out"))
		}
		return backoff.Permanent(errkind.Wrap(errkind.Transport, tErr.err, "request to "+host+" failed"))
	}

	var sErr *statusError
	if errors.As(err, &sErr) {
		retryable := sErr.code >= 500 || sErr.code == http.StatusTooManyRequests
		if retryable && attempt < maxAttempts {
			c.metrics.retries.WithLabelValues(host).Inc()
			c.log.Warn("Retrying after upstream error",
				"host", host, "method", req.Method, "status", sErr.code, "attempt", attempt)
			return err
		}
		if sErr.code == http.StatusTooManyRequests {
			return backoff.Permanent(errkind.New(errkind.RateLimited, "host %s rate limited: %s", host, sErr.body))
		}
		return backoff.Permanent(errkind.New(errkind.ProviderError, "host %s returned %d: %s", host, sErr.code, sErr.body))
	}
	return backoff.Permanent(err)
}

// BreakerStates reports the current breaker state per host.
func (c *Client) BreakerStates() map[string]string {
	return c.breakers.states()
}

// ResetBreaker forcibly closes the breaker for a host. Operational escape
// hatch exposed on the admin API.
func (c *Client) ResetBreaker(host string) bool {
	return c.breakers.reset(host)
}

type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nErr interface{ Timeout() bool }
	return errors.As(err, &nErr) && nErr.Timeout()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func statusClass(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
