package retry

import (
	"context"
	"time"
)

// Delay returns the backoff before retry attempt n: 200ms doubled per attempt, capped at 5s.
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 8 {
		attempt = 8
	}
	base := 200 * time.Millisecond
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts are
// exhausted, or ctx is done. The last error is returned.
func Do(ctx context.Context, maxRetries int, retryable func(error) bool, fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt == maxRetries || retryable == nil || !retryable(err) {
			return err
		}
		t := time.NewTimer(Delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
	return err
}
