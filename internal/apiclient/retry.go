package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"dogeexport/internal/logging"
	"dogeexport/internal/metrics"
)

// RetryPolicy decides which attempts are repeated and how long to wait.
type RetryPolicy struct {
	// Statuses are the HTTP statuses treated as transient.
	Statuses []int
	// MaxRetries is the number of extra attempts after the first one.
	MaxRetries int
	// NewBackOff builds a fresh schedule per request. nil uses DefaultBackOff.
	NewBackOff func() backoff.BackOff
	// MaxRetryAfter caps a server-supplied Retry-After delay. Zero ignores the header.
	MaxRetryAfter time.Duration
}

// DefaultRetryPolicy retries 429 and the usual 5xx gateway statuses.
func DefaultRetryPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		Statuses:      []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
		MaxRetries:    maxRetries,
		NewBackOff:    DefaultBackOff,
		MaxRetryAfter: time.Minute,
	}
}

// DefaultBackOff waits 0.5s, 1s, 2s, ... capped at 30s, without jitter.
func DefaultBackOff() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     500 * time.Millisecond,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         30 * time.Second,
	}
}

func (p RetryPolicy) retryable(status int) bool {
	return slices.Contains(p.Statuses, status)
}

// statusError marks an attempt that got a transient status.
type statusError struct{ status int }

func (e *statusError) Error() string { return "transient HTTP status " + strconv.Itoa(e.status) }

// retryTransport is an http.RoundTripper that applies a per-attempt timeout and
// the retry policy. It records one metrics sample per attempt.
type retryTransport struct {
	next    http.RoundTripper
	policy  RetryPolicy
	timeout time.Duration
	log     *slog.Logger
}

func newRetryTransport(next http.RoundTripper, policy RetryPolicy, timeout time.Duration, log *slog.Logger) *retryTransport {
	if next == nil {
		next = newBaseTransport()
	}
	if policy.NewBackOff == nil {
		policy.NewBackOff = DefaultBackOff
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &retryTransport{next: next, policy: policy, timeout: timeout, log: logging.OrDiscard(log)}
}

func newBaseTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.IdleConnTimeout = 90 * time.Second
	t.MaxIdleConnsPerHost = 8
	return t
}

// RoundTrip implements http.RoundTripper.
//
// When retries run out on a transient status, the last response is returned
// as-is so the caller can classify it. Transport errors after the last attempt
// are returned as errors.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	maxTries := t.policy.MaxRetries + 1

	attempt := 0
	var pending *http.Response
	op := func() (*http.Response, error) {
		if pending != nil {
			discard(pending)
			pending = nil
		}
		attempt++

		areq, err := t.attemptRequest(req, attempt)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		start := time.Now()
		resp, err := t.next.RoundTrip(areq.Request)
		reqDur := time.Since(start)
		if err != nil {
			areq.cancel()
			metrics.RecordHTTP(0, err, reqDur, 0, 0)
			t.log.Debug("request attempt failed", "method", req.Method, "url", req.URL.Redacted(), "attempt", attempt, "err", err)
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		resp.Body = &attemptBody{ReadCloser: resp.Body, cancel: areq.cancel, status: resp.StatusCode, reqDur: reqDur, start: time.Now()}
		t.log.Debug("response", "method", req.Method, "url", req.URL.Redacted(), "status", resp.StatusCode, "attempt", attempt, "elapsed", reqDur)

		if !t.policy.retryable(resp.StatusCode) || attempt >= maxTries {
			return resp, nil
		}
		pending = resp
		se := &statusError{status: resp.StatusCode}
		if d := t.retryAfter(resp); d > 0 {
			return resp, errors.Join(se, &backoff.RetryAfterError{Duration: d})
		}
		return resp, se
	}

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(t.policy.NewBackOff()),
		backoff.WithMaxTries(uint(maxTries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			t.log.Warn("retrying request", "method", req.Method, "url", req.URL.Redacted(), "attempt", attempt, "wait", wait, "err", err)
		}),
	)
	if err == nil {
		return resp, nil
	}
	var se *statusError
	if errors.As(err, &se) && resp != nil {
		return resp, nil
	}
	if resp != nil {
		discard(resp)
	}
	return nil, err
}

// attemptRequest carries the per-attempt cancel func next to the request.
type attemptRequest struct {
	*http.Request
	cancel context.CancelFunc
}

func (t *retryTransport) attemptRequest(req *http.Request, attempt int) (attemptRequest, error) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if t.timeout > 0 {
		ctx, cancel = context.WithTimeout(req.Context(), t.timeout)
	} else {
		ctx, cancel = context.WithCancel(req.Context())
	}
	r := req.Clone(ctx)
	if attempt > 1 && req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			cancel()
			return attemptRequest{}, fmt.Errorf("request body cannot be replayed for retry")
		}
		body, err := req.GetBody()
		if err != nil {
			cancel()
			return attemptRequest{}, fmt.Errorf("replay request body: %w", err)
		}
		r.Body = body
	}
	return attemptRequest{Request: r, cancel: cancel}, nil
}

// retryAfter honours Retry-After on 429 and 503, capped by the policy.
func (t *retryTransport) retryAfter(resp *http.Response) time.Duration {
	if t.policy.MaxRetryAfter <= 0 {
		return 0
	}
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return 0
	}
	d := parseRetryAfter(resp.Header, time.Now())
	if d > t.policy.MaxRetryAfter {
		d = t.policy.MaxRetryAfter
	}
	return d
}

// parseRetryAfter reads delta-seconds or an HTTP-date. Invalid or past values yield 0.
func parseRetryAfter(h http.Header, now time.Time) time.Duration {
	ra := strings.TrimSpace(h.Get("Retry-After"))
	if ra == "" {
		return 0
	}

	if secs, err := strconv.Atoi(ra); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(ra); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
}

// attemptBody releases the attempt's context on Close and reports the
// response metrics for that attempt.
type attemptBody struct {
	io.ReadCloser
	cancel context.CancelFunc
	status int
	reqDur time.Duration
	start  time.Time

	n    int64
	rerr error
	once sync.Once
}

func (b *attemptBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.n += int64(n)
	if err != nil && err != io.EOF {
		b.rerr = err
	}
	return n, err
}

func (b *attemptBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(func() {
		b.cancel()
		metrics.RecordHTTP(b.status, b.rerr, b.reqDur, time.Since(b.start), b.n)
	})
	return err
}
