// Package ratelimit throttles Helix API calls against the budget the server
// reports in its Ratelimit-* response headers.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/fivetwenty-io/helix/internal/constants"
	helixhttp "github.com/fivetwenty-io/helix/internal/http"
	"github.com/fivetwenty-io/helix/pkg/helix"
	"golang.org/x/time/rate"
)

// DefaultRetryWait is used for a 429 that carries neither a reset time nor Retry-After.
const DefaultRetryWait = time.Second

// HeaderRetryAfter is the retry-after header (seconds).
const HeaderRetryAfter = "Retry-After"

// ErrBodyNotRewindable is returned when a 429 must be retried but the request body cannot be replayed.
var ErrBodyNotRewindable = errors.New("request body cannot be replayed for retry")

var _ helixhttp.Throttler = (*Limiter)(nil)

// Limiter admits one request at a time against the last known budget. The
// budget starts unknown and is overwritten by every response carrying the
// rate-limit headers; responses may arrive out of order, so it is a hint.
type Limiter struct {
	admission chan struct{}

	mu        sync.Mutex
	limit     int
	remaining int
	resetsAt  time.Time
	known     bool

	bucket *rate.Limiter
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger helix.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger.
func WithLogger(logger helix.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithSleeper replaces the context-aware timer used for every wait.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) {
		l.sleep = sleep
	}
}

// WithProactiveRate additionally caps the request rate on the client side.
// A non-positive rps leaves the cap disabled.
func WithProactiveRate(rps float64, burst int) Option {
	return func(l *Limiter) {
		if rps <= 0 {
			l.bucket = nil

			return
		}

		if burst < 1 {
			burst = 1
		}

		l.bucket = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewLimiter creates a limiter with an unknown budget.
func NewLimiter(opts ...Option) *Limiter {
	limiter := &Limiter{
		admission: make(chan struct{}, 1),
		now:       time.Now,
		sleep:     sleepContext,
	}

	for _, opt := range opts {
		opt(limiter)
	}

	return limiter
}

// Do sends req once the budget admits it. A 429 is answered by waiting for
// the server's reset time and retrying exactly once; a second 429 is returned
// as a *helix.HTTPStatusError. Transport errors are returned unmodified.
func (l *Limiter) Do(ctx context.Context, req *http.Request, send helixhttp.SendFunc) (*http.Response, error) {
	err := l.admit(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := send(req)
	if err != nil {
		return nil, err
	}

	l.UpdateFromResponse(resp)

	if resp.StatusCode != http.StatusTooManyRequests {
		return resp, nil
	}

	wait := l.retryWait(resp.Header)
	drain(resp)

	if l.logger != nil {
		l.logger.Warn("rate limited by server, retrying after reset", map[string]interface{}{
			"method": req.Method,
			"path":   req.URL.Path,
			"wait":   wait.String(),
		})
	}

	err = l.sleep(ctx, wait)
	if err != nil {
		return nil, err
	}

	retry, err := rewind(ctx, req)
	if err != nil {
		return nil, err
	}

	err = l.admit(ctx)
	if err != nil {
		return nil, err
	}

	resp, err = send(retry)
	if err != nil {
		return nil, err
	}

	l.UpdateFromResponse(resp)

	if resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		clean := *req.URL
		clean.RawQuery = ""

		return nil, helix.NewHTTPStatusError(resp.StatusCode, req.Method, clean.String(), body)
	}

	return resp, nil
}

// UpdateFromResponse overwrites the budget from resp's rate-limit headers.
// Responses without the headers leave the budget untouched.
func (l *Limiter) UpdateFromResponse(resp *http.Response) {
	if resp == nil {
		return
	}

	limit, limitErr := strconv.Atoi(resp.Header.Get(constants.HeaderRateLimitLimit))
	remaining, remainingErr := strconv.Atoi(resp.Header.Get(constants.HeaderRateLimitRemaining))
	reset, resetErr := strconv.ParseInt(resp.Header.Get(constants.HeaderRateLimitReset), 10, 64)

	if limitErr != nil && remainingErr != nil && resetErr != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if limitErr == nil {
		l.limit = limit
	}

	if remainingErr == nil {
		l.remaining = remaining
	}

	if resetErr == nil {
		l.resetsAt = time.Unix(reset, 0)
	}

	l.known = true
}

// SetBudget replaces the budget, e.g. to seed it from a previous process.
func (l *Limiter) SetBudget(budget helix.RateLimitBudget) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.limit = budget.Limit
	l.remaining = budget.Remaining
	l.resetsAt = budget.ResetsAt
	l.known = true
}

// Budget returns the current budget snapshot.
func (l *Limiter) Budget() helix.RateLimitBudget {
	l.mu.Lock()
	defer l.mu.Unlock()

	return helix.RateLimitBudget{
		Limit:     l.limit,
		Remaining: l.remaining,
		ResetsAt:  l.resetsAt,
		Known:     l.known,
	}
}

// admit holds the admission slot for the whole check-wait-decrement sequence.
func (l *Limiter) admit(ctx context.Context) error {
	select {
	case l.admission <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	defer func() { <-l.admission }()

	if l.bucket != nil {
		err := l.bucket.Wait(ctx)
		if err != nil {
			return fmt.Errorf("waiting for proactive rate limit: %w", err)
		}
	}

	l.mu.Lock()
	now := l.now()

	var wait time.Duration
	if l.remaining <= 0 && now.Before(l.resetsAt) {
		wait = l.resetsAt.Sub(now)
	}
	l.mu.Unlock()

	if wait > 0 {
		if l.logger != nil {
			l.logger.Debug("rate limit budget exhausted, waiting for reset", map[string]interface{}{
				"wait": wait.String(),
			})
		}

		err := l.sleep(ctx, wait)
		if err != nil {
			return err
		}
	}

	l.mu.Lock()
	if l.remaining > 0 {
		l.remaining--
	}
	l.mu.Unlock()

	return nil
}

func (l *Limiter) retryWait(header http.Header) time.Duration {
	if reset, err := strconv.ParseInt(header.Get(constants.HeaderRateLimitReset), 10, 64); err == nil {
		return max(time.Unix(reset, 0).Sub(l.now()), 0)
	}

	if seconds, err := strconv.Atoi(header.Get(HeaderRetryAfter)); err == nil {
		return max(time.Duration(seconds)*time.Second, 0)
	}

	return DefaultRetryWait
}

func rewind(ctx context.Context, req *http.Request) (*http.Request, error) {
	retry := req.Clone(ctx)

	if req.Body == nil || req.Body == http.NoBody {
		return retry, nil
	}

	if req.GetBody == nil {
		return nil, ErrBodyNotRewindable
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("replaying request body: %w", err)
	}

	retry.Body = body

	return retry, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
