package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"time"
)

// Retry defaults: transient provider failures are retried with exponential
// backoff before surfacing ErrProviderUnavailable.
const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 2 * time.Second
	maxDelay           = 10 * time.Second
)

// isTransientStatus reports whether an HTTP status warrants a retry.
func isTransientStatus(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

// isTransientErr reports whether a transport error warrants a retry.
// Timeouts and connection errors are transient; everything else is not.
func isTransientErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// backoffDelay computes the delay before the given retry attempt (1-based):
// base * 2^(attempt-1), capped, with up to 25% random jitter.
func backoffDelay(attempt int, base time.Duration) time.Duration {
	delay := base << uint(attempt-1)
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 4))
	return delay + jitter
}

// doWithRetry performs an HTTP call with retries on transient failures.
// Request bodies must be rebuildable, hence the factory. The response body
// is the caller's to close. After maxAttempts transient failures the last
// failure is wrapped in ErrProviderUnavailable.
func doWithRetry(ctx context.Context, client Doer, build func() (*http.Request, error), maxAttempts int, baseDelay time.Duration) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffDelay(attempt-1, baseDelay)):
			}
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			if !isTransientErr(err) {
				return nil, fmt.Errorf("provider request failed: %w", err)
			}
			lastErr = err
			continue
		}

		if isTransientStatus(resp.StatusCode) {
			resp.Body.Close()
			lastErr = fmt.Errorf("provider returned status %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, lastErr)
}
