// Package papersources provides the rate-limited HTTP plumbing shared by the
// literature API clients.
package papersources

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Default E-utilities request rates.
const (
	// AnonymousRequestsPerSecond is the NCBI limit without an API key.
	AnonymousRequestsPerSecond = 3.0

	// KeyedRequestsPerSecond is the NCBI limit with an API key.
	KeyedRequestsPerSecond = 10.0
)

// DefaultRequestsPerSecond returns the rate allowed for the given credentials.
func DefaultRequestsPerSecond(hasAPIKey bool) float64 {
	if hasAPIKey {
		return KeyedRequestsPerSecond
	}
	return AnonymousRequestsPerSecond
}

// RateLimiter enforces a minimum spacing between outbound requests.
// The bucket holds a single token, so two grants are never closer than Interval.
// It is safe for concurrent use because the underlying rate.Limiter is goroutine-safe.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter permitting requestsPerSecond sustained calls with no bursts.
// A non-positive rate disables limiting.
func NewRateLimiter(requestsPerSecond float64) *RateLimiter {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Wait blocks until the next request is permitted or the context is canceled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow returns true if a request is permitted without waiting, consuming the token.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// SetRate updates the sustained rate.
func (r *RateLimiter) SetRate(requestsPerSecond float64) {
	if requestsPerSecond <= 0 {
		r.limiter.SetLimit(rate.Inf)
		return
	}
	r.limiter.SetLimit(rate.Limit(requestsPerSecond))
}

// Interval returns the minimum spacing between permitted requests.
// It is zero when limiting is disabled.
func (r *RateLimiter) Interval() time.Duration {
	limit := r.limiter.Limit()
	if limit == rate.Inf || limit <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(limit))
}

// Tokens returns the current number of available tokens.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
