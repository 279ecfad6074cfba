package jobs

import (
	"context"
	"log/slog"

	"github.com/amishk599/leadradar/internal/model"
	"github.com/amishk599/leadradar/internal/retry"
)

// Waiter is the shared provider rate limiter.
type Waiter interface {
	Wait(ctx context.Context, provider string) error
}

// RateLimitedFetcher is a decorator that enforces provider-level rate limiting
// before delegating to the wrapped fetcher.
type RateLimitedFetcher struct {
	inner    model.JobsFetcher
	limiter  Waiter
	provider string
}

// NewRateLimitedFetcher wraps a JobsFetcher with rate limiting under the
// given provider name.
func NewRateLimitedFetcher(inner model.JobsFetcher, limiter Waiter, provider string) *RateLimitedFetcher {
	return &RateLimitedFetcher{inner: inner, limiter: limiter, provider: provider}
}

// FetchCompanyJobs waits for the rate limiter, then delegates.
func (f *RateLimitedFetcher) FetchCompanyJobs(ctx context.Context, company model.Company) (model.CompanyJobs, error) {
	if err := f.limiter.Wait(ctx, f.provider); err != nil {
		return model.CompanyJobs{}, err
	}
	return f.inner.FetchCompanyJobs(ctx, company)
}

// RetryFetcher is a decorator that retries transient failures with
// exponential backoff and jitter.
type RetryFetcher struct {
	inner  model.JobsFetcher
	policy retry.Policy
	logger *slog.Logger
}

// NewRetryFetcher wraps a JobsFetcher with retry logic.
func NewRetryFetcher(inner model.JobsFetcher, policy retry.Policy, logger *slog.Logger) *RetryFetcher {
	return &RetryFetcher{inner: inner, policy: policy, logger: logger}
}

// FetchCompanyJobs attempts the fetch, retrying on transient errors.
func (f *RetryFetcher) FetchCompanyJobs(ctx context.Context, company model.Company) (model.CompanyJobs, error) {
	jobs, _, err := retry.Do(ctx, f.policy, f.logger.With("company", company.Name), func(ctx context.Context) (model.CompanyJobs, error) {
		return f.inner.FetchCompanyJobs(ctx, company)
	})
	return jobs, err
}
