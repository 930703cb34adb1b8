package llmprovider

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// isRetryableStatus reports whether statusCode warrants a retried request.
// 4xx is never retried, including 429 — only 500, 502, 503 and 504 are
// (network failures, which carry no status, are retried by withRetry).
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// backoff computes the delay before retry attempt (0-indexed), base *
// 2^attempt with +/-10% jitter.
func backoff(base time.Duration, attempt int) time.Duration {
	d := float64(base) * math.Pow(2, float64(attempt))
	jitter := d * 0.1 * (rand.Float64()*2 - 1)
	return time.Duration(d + jitter)
}

// retryableCall is the low-level operation a retry loop wraps: it must
// report the HTTP status code obtained (0 if the request never reached
// the server) alongside any error.
type retryableCall func() (statusCode int, err error)

// withRetry invokes fn, retrying up to maxRetries times with exponential
// backoff on network errors or retryable status codes. A non-retryable
// 4xx response returns immediately without further attempts.
func withRetry(ctx context.Context, maxRetries int, retryDelay time.Duration, fn retryableCall) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff(retryDelay, attempt-1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		status, err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if status != 0 && !isRetryableStatus(status) {
			return lastErr
		}
	}
	return lastErr
}
