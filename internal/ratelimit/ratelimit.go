package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ProviderRateLimiter enforces a minimum delay between requests to the same
// provider (openai, perplexity, mantiks). It is safe for concurrent use; callers
// sharing a provider queue up behind one token bucket.
type ProviderRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter // key: provider name
	minDelay  time.Duration
	overrides map[string]time.Duration
}

// NewProviderRateLimiter creates a limiter that spaces requests to each
// provider by minDelay, or by the provider's entry in overrides.
// A zero delay means unlimited.
func NewProviderRateLimiter(minDelay time.Duration, overrides map[string]time.Duration) *ProviderRateLimiter {
	return &ProviderRateLimiter{
		limiters:  make(map[string]*rate.Limiter),
		minDelay:  minDelay,
		overrides: overrides,
	}
}

// Wait blocks until the provider may be called again.
// Returns an error if the context is cancelled while waiting.
func (r *ProviderRateLimiter) Wait(ctx context.Context, provider string) error {
	if err := r.limiterFor(provider).Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait for %s: %w", provider, err)
	}
	return nil
}

// DelayFor returns the configured spacing for provider.
func (r *ProviderRateLimiter) DelayFor(provider string) time.Duration {
	if d, ok := r.overrides[provider]; ok {
		return d
	}
	return r.minDelay
}

func (r *ProviderRateLimiter) limiterFor(provider string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[provider]
	if !ok {
		limit := rate.Inf
		if d := r.DelayFor(provider); d > 0 {
			limit = rate.Every(d)
		}
		l = rate.NewLimiter(limit, 1)
		r.limiters[provider] = l
	}
	return l
}
