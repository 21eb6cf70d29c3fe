// Package llm holds the HTTP adapters for the supported completion providers.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/medforge/contentgen/internal/domain/model"
)

const (
	maxErrorBody    = 1 << 10
	maxResponseBody = 8 << 20

	defaultTimeout     = 120 * time.Second
	defaultMaxRetries  = 3
	defaultBaseBackoff = 500 * time.Millisecond
	maxBackoff         = 8 * time.Second
	maxRetryAfter      = 30 * time.Second
)

// HTTPError is a non-2xx provider response.
type HTTPError struct {
	Provider   model.ProviderKind
	StatusCode int
	Body       string
	retryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// HTTPStatusCode returns the response status.
func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

// Retryable reports whether the status is worth retrying.
func (e *HTTPError) Retryable() bool {
	return isRetryableStatus(e.StatusCode)
}

func isRetryableStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// ClientOptions configures a provider adapter.
type ClientOptions struct {
	APIKey            string
	BaseURL           string
	HTTPClient        *http.Client
	Timeout           time.Duration
	MaxRetries        int
	BaseBackoff       time.Duration
	RequestsPerSecond float64
	Logger            *slog.Logger
}

type transport struct {
	provider    model.ProviderKind
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	baseBackoff time.Duration
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

func newTransport(provider model.ProviderKind, opts ClientOptions) *transport {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = defaultMaxRetries
	}
	backoff := opts.BaseBackoff
	if backoff <= 0 {
		backoff = defaultBaseBackoff
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &transport{
		provider:    provider,
		client:      client,
		limiter:     rate.NewLimiter(limit, 1),
		maxRetries:  retries,
		baseBackoff: backoff,
		logger:      logger.With("component", "llm", "provider", string(provider)),
		sleep:       sleepCtx,
	}
}

// postJSON sends payload and decodes the JSON response into a generic document.
// Transient failures are retried with exponential backoff.
func (t *transport) postJSON(ctx context.Context, url string, headers http.Header, payload any) (any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", t.provider, err)
	}

	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			delay := t.backoffFor(attempt, lastErr)
			t.logger.WarnContext(ctx, "retrying provider call", "attempt", attempt, "delay", delay, "error", lastErr)
			if err := t.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("%s: %w", t.provider, err)
			}
		}
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: rate limiter wait: %w", t.provider, err)
		}

		doc, err := t.do(ctx, url, headers, body)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%s: retries exhausted: %w", t.provider, lastErr)
}

func (t *transport) do(ctx context.Context, url string, headers http.Header, body []byte) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", t.provider, err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", t.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{
			Provider:   t.provider,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var doc any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", t.provider, err)
	}
	return doc, nil
}

func (t *transport) backoffFor(attempt int, lastErr error) time.Duration {
	var httpErr *HTTPError
	if errors.As(lastErr, &httpErr) && httpErr.retryAfter > 0 {
		return min(httpErr.retryAfter, maxRetryAfter)
	}
	d := t.baseBackoff << (attempt - 1)
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	return jitter(d)
}

func retryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// jitter spreads d by +/-20%.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	delta := float64(d) * 0.2
	return time.Duration(float64(d) - delta + rand.Float64()*2*delta)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
