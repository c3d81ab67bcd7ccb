// Package retry provides a generic exponential-backoff retry helper used
// by the index client's writes and searches and by the
// embedder/summarizer adapters. Relational store calls are not retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

// Policy configures the backoff schedule. Delay doubles each attempt,
// capped at Ceiling, with full jitter applied.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Ceiling    time.Duration
}

// DefaultPolicy mirrors the teacher's fixed Vertex AI schedule
// (500ms/1000ms/2000ms capped at 4s) generalized to a doubling series.
var DefaultPolicy = Policy{
	MaxRetries: 3,
	BaseDelay:  500 * time.Millisecond,
	Ceiling:    4 * time.Second,
}

// ErrExhausted is returned when every retry attempt fails with a
// retryable error.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Retryable reports whether err warrants another attempt. The default
// checks for HTTP 429/503 and common rate-limit/quota substrings,
// matching the teacher's isRetryableError/isRetryableStatus.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout")
}

// RetryableStatus reports whether an HTTP status code warrants a retry.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

// Do executes fn, retrying on retryable errors per p with exponential
// backoff and full jitter, up to p.MaxRetries additional attempts.
func Do[T any](ctx context.Context, p Policy, operation string, fn func() (T, error)) (T, error) {
	result, err := fn()
	if err == nil || !Retryable(err) {
		return result, err
	}

	delay := p.BaseDelay
	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		jittered := time.Duration(rand.Int63n(int64(delay) + 1))
		slog.Warn("retrying operation", "operation", operation, "attempt", attempt,
			"delay_ms", jittered.Milliseconds(), "error", err.Error())

		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("%s: context cancelled during retry: %w", operation, ctx.Err())
		case <-time.After(jittered):
		}

		result, err = fn()
		if err == nil {
			slog.Info("retry succeeded", "operation", operation, "attempt", attempt)
			return result, nil
		}
		if !Retryable(err) {
			return result, err
		}

		delay *= 2
		if delay > p.Ceiling {
			delay = p.Ceiling
		}
	}

	var zero T
	slog.Error("retries exhausted", "operation", operation, "attempts", p.MaxRetries+1)
	return zero, fmt.Errorf("%s: %w: %v", operation, ErrExhausted, err)
}
