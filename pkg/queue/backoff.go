package queue

import (
	"math"
	"time"
)

// Backoff returns the delay before redelivering a job whose attempt-th
// attempt just failed: base * 2^(attempt-1), capped at max when max > 0.
// Without a cap the result saturates at math.MaxInt64.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		return 0
	}
	limit := time.Duration(math.MaxInt64)
	if max > 0 {
		limit = max
	}
	if attempt > 63 || base > time.Duration(math.MaxInt64>>(attempt-1)) {
		return limit
	}
	d := base << (attempt - 1)
	if d > limit {
		return limit
	}
	return d
}
