package http

import (
	"context"
	"time"
)

// DefaultRetryDelays returns the backoff delays for page retries: 1s, 2s, 4s.
func DefaultRetryDelays() []time.Duration {
	return []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
}

type fetchFunc func(ctx context.Context, url string) (string, error)

// fetchWithRetry calls fetch up to len(delays)+1 times, sleeping delays[i]
// between attempts. onRetry, if set, is called before each retry with the
// 1-based number of the next attempt.
func fetchWithRetry(ctx context.Context, url string, fetch fetchFunc, delays []time.Duration, onRetry func(attempt int, err error)) (string, error) {
	maxAttempts := len(delays) + 1

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		html, err := fetch(ctx, url)
		if err == nil {
			return html, nil
		}
		lastErr = err

		if attempt >= maxAttempts-1 {
			break
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		if onRetry != nil {
			onRetry(attempt+2, err)
		}

		t := time.NewTimer(delays[attempt])
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}

	return "", lastErr
}
