package edgar

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces filing downloads at a fixed minimum interval. Build one
// per pipeline run and share it across workers.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows requestsPerSecond calls with no burst. A
// non-positive rate disables limiting.
func NewRateLimiter(requestsPerSecond float64) *RateLimiter {
	if requestsPerSecond <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	interval := time.Duration(float64(time.Second) / requestsPerSecond)
	return &RateLimiter{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// WaitBeforeNextCall blocks until the next request may be sent.
func (r *RateLimiter) WaitBeforeNextCall(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
