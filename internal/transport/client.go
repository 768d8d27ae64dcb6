package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/af-corp/prism-gateway/internal/idempotency"
)

// RetryPolicy bounds the automatic recovery behavior for transient
// failures. Total added latency is capped by MaxRetries x MaxDelay.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy mirrors the process-wide transport defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   2,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// DelayForAttempt computes the backoff before retry attempt n (1-indexed):
// exponential growth from InitialDelay, capped at MaxDelay.
func (p RetryPolicy) DelayForAttempt(attempt int) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	delay := float64(p.InitialDelay) * math.Pow(2, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// Sleeper abstracts backoff waits so tests can run without real delays.
type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Config holds process-wide transport settings.
type Config struct {
	BaseURL                  string
	APIKey                   string
	Timeout                  time.Duration
	Retry                    RetryPolicy
	IdempotencyBucketSeconds int
}

// ProgressFunc receives transfer progress as
// (downloadTotal, downloaded, uploadTotal, uploaded) byte counts.
type ProgressFunc func(downloadTotal, downloaded, uploadTotal, uploaded int64)

// CallOptions adjust a single call. The zero value means: not idempotent,
// process-wide retry policy, no extra headers, no progress reporting.
type CallOptions struct {
	Idempotent bool
	Retry      *RetryPolicy
	Headers    map[string]string
	Progress   ProgressFunc
}

// Error is raised when every attempt at a call has failed. It carries the
// attempt count and the last underlying error.
type Error struct {
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: request failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// APIStatusError is a non-transient upstream HTTP failure. It is never
// retried and propagates immediately.
type APIStatusError struct {
	StatusCode int
	Body       []byte
}

func (e *APIStatusError) Error() string {
	snippet := string(e.Body)
	if len(snippet) > 200 {
		snippet = snippet[:200] + "..."
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, snippet)
}

// transientStatusError marks a retryable HTTP status internally.
type transientStatusError struct {
	StatusCode int
	Body       []byte
}

func (e *transientStatusError) Error() string {
	return fmt.Sprintf("upstream returned transient status %d", e.StatusCode)
}

// WireResponse is the raw result of a backend call. JSON is populated when
// the body parses as a JSON object; Body always holds the raw bytes, which
// is what binary operations (audio speech) consume.
type WireResponse struct {
	StatusCode  int
	Header      http.Header
	Body        []byte
	JSON        map[string]any
	ContentType string
}

// Client executes backend HTTP calls with retry, idempotency headers, and
// multipart bodies rebuilt per attempt. Safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	sleeper Sleeper
}

// NewClient builds a transport client. Zero config fields fall back to
// defaults.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.IdempotencyBucketSeconds == 0 {
		cfg.IdempotencyBucketSeconds = 60
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		sleeper: realSleeper{},
	}
}

// PostJSON sends a JSON body to path under the configured base URL.
func (c *Client) PostJSON(ctx context.Context, path string, body map[string]any, opts CallOptions) (*WireResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	var idemKey string
	if opts.Idempotent {
		idemKey, err = idempotency.BuildKey(body, c.cfg.IdempotencyBucketSeconds, time.Now())
		if err != nil {
			return nil, fmt.Errorf("build idempotency key: %w", err)
		}
	}

	return c.execute(ctx, opts, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		c.setCommonHeaders(req, idemKey, opts.Headers)
		return req, nil
	})
}

func (c *Client) setCommonHeaders(req *http.Request, idemKey string, extra map[string]string) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	for k, v := range extra {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
}

// execute runs the attempt loop: build a fresh request, send, classify.
// Cancellation is observed between attempts and surfaces as the context's
// error rather than a transport exhaustion error.
func (c *Client) execute(ctx context.Context, opts CallOptions, build func() (*http.Request, error)) (*WireResponse, error) {
	policy := c.cfg.Retry
	if opts.Retry != nil {
		policy = *opts.Retry
	}
	maxAttempts := policy.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := policy.DelayForAttempt(attempt - 1)
			c.sleeper.Sleep(delay)
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("transport: canceled after %d attempts: %w", attempt-1, err)
			}
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := c.send(req, opts.Progress)
		if err == nil {
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("transport: canceled after %d attempts: %w", attempt, ctxErr)
		}
		if !isTransient(err) {
			return nil, err
		}
		lastErr = err
		if attempt < maxAttempts {
			slog.Warn("transient transport failure, will retry",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"error", err,
			)
		}
	}

	return nil, &Error{Attempts: maxAttempts, Err: lastErr}
}

// send performs one attempt and classifies the HTTP status.
func (c *Client) send(req *http.Request, progress ProgressFunc) (*WireResponse, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if progress != nil {
		reader = &countingReader{
			r:     resp.Body,
			total: resp.ContentLength,
			report: func(total, done int64) {
				progress(total, done, 0, 0)
			},
		}
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		if isTransientStatus(resp.StatusCode) {
			return nil, &transientStatusError{StatusCode: resp.StatusCode, Body: body}
		}
		return nil, &APIStatusError{StatusCode: resp.StatusCode, Body: body}
	}

	wire := &WireResponse{
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if strings.Contains(wire.ContentType, "application/json") {
		var parsed map[string]any
		if err := json.Unmarshal(body, &parsed); err == nil {
			wire.JSON = parsed
		}
	}
	return wire, nil
}

func isTransientStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= 500
}

// isTransient classifies errors worth retrying: connect/timeout failures
// and upstream statuses flagged transient. 4xx client errors are final.
func isTransient(err error) bool {
	var tse *transientStatusError
	if errors.As(err, &tse) {
		return true
	}
	var ase *APIStatusError
	if errors.As(err, &ase) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	// http.Client wraps dial failures in *url.Error; the ones not already
	// matched above (DNS, refused connections) are connection-level.
	s := err.Error()
	return strings.Contains(s, "connection refused") || strings.Contains(s, "connection reset")
}

// countingReader reports read progress through a callback.
type countingReader struct {
	r      io.Reader
	total  int64
	done   int64
	report func(total, done int64)
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.done += int64(n)
		total := cr.total
		if total < 0 {
			total = 0
		}
		cr.report(total, cr.done)
	}
	return n, err
}
