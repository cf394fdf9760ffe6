package clients

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter gates outbound requests
type RateLimiter interface {
	// Allow checks if a request is allowed right now
	Allow() bool

	// Wait blocks until a request is allowed or ctx is done
	Wait(ctx context.Context) error

	// GetStats returns rate limiter statistics
	GetStats() RateLimiterStats
}

// RateLimiterStats provides statistics about rate limiter usage
type RateLimiterStats struct {
	Rate            float64       `json:"rate"`
	Burst           int           `json:"burst"`
	AllowedRequests int64         `json:"allowed_requests"`
	WaitedRequests  int64         `json:"waited_requests"`
	TotalWait       time.Duration `json:"total_wait"`
}

// TokenBucketRateLimiter is a RateLimiter backed by golang.org/x/time/rate
type TokenBucketRateLimiter struct {
	limiter *rate.Limiter

	allowed   int64
	waited    int64
	totalWait int64
}

// NewTokenBucketRateLimiter creates a limiter allowing rps requests per
// second with the given burst. A burst below 1 is raised to 1.
func NewTokenBucketRateLimiter(rps float64, burst int) *TokenBucketRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucketRateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Allow implements RateLimiter
func (l *TokenBucketRateLimiter) Allow() bool {
	if l.limiter.Allow() {
		atomic.AddInt64(&l.allowed, 1)
		return true
	}
	return false
}

// Wait implements RateLimiter
func (l *TokenBucketRateLimiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	waited := time.Since(start)
	atomic.AddInt64(&l.allowed, 1)
	if waited > time.Millisecond {
		atomic.AddInt64(&l.waited, 1)
		atomic.AddInt64(&l.totalWait, int64(waited))
	}
	return nil
}

// GetStats implements RateLimiter
func (l *TokenBucketRateLimiter) GetStats() RateLimiterStats {
	return RateLimiterStats{
		Rate:            float64(l.limiter.Limit()),
		Burst:           l.limiter.Burst(),
		AllowedRequests: atomic.LoadInt64(&l.allowed),
		WaitedRequests:  atomic.LoadInt64(&l.waited),
		TotalWait:       time.Duration(atomic.LoadInt64(&l.totalWait)),
	}
}
