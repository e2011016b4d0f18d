package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"
)

// RetryPolicy controls how failed downloads and API calls are retried with
// exponential backoff.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns a RetryPolicy with sensible defaults:
// 3 attempts, 1s initial delay, 2x multiplier, 30s max delay.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
	}
}

// StatusError is an HTTP response that did not carry the expected status.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	op := e.Op
	if op == "" {
		op = "request"
	}
	return fmt.Sprintf("%s: %s (status %d)", op, http.StatusText(e.Code), e.Code)
}

// Temporary reports whether a later attempt could get a different answer:
// rate limiting, request timeouts and server-side errors.
func (e *StatusError) Temporary() bool {
	switch {
	case e.Code == http.StatusTooManyRequests, e.Code == http.StatusRequestTimeout:
		return true
	case e.Code >= 500:
		return e.Code != http.StatusNotImplemented
	}
	return false
}

// ShouldRetry returns true if the error is retryable and the attempt count
// has not exceeded MaxAttempts.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt > p.MaxAttempts {
		return false
	}
	return Retryable(err)
}

// Retryable classifies err. Typed errors decide first: a StatusError by its
// code, a cancelled context never, a network timeout always. Anything else
// falls back to matching well-known transient and permanent messages, and
// unknown errors are retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Temporary()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "timeout"):
		return true
	case strings.Contains(msg, "invalid"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "forbidden"):
		return false
	}
	return true
}

// NextDelay returns the backoff delay for the given attempt number (1-indexed).
// The delay is InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// ExecuteContext runs fn up to MaxAttempts times, sleeping between retries
// with exponential backoff. It returns nil on success, or the last error once
// attempts run out, the error is permanent, or ctx ends during a backoff.
func (p *RetryPolicy) ExecuteContext(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !p.ShouldRetry(err, attempt) {
			return err
		}
		if attempt < p.MaxAttempts {
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(p.NextDelay(attempt)):
			}
		}
	}
	return lastErr
}
