package ai

import "context"

// Request is one chat completion call.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	// JSON asks the provider for a machine-parseable object reply.
	JSON bool
	// Schema, when set, is enforced server-side via structured outputs.
	SchemaName string
	Schema     map[string]any
}

// Response is the raw text reply and its accounting.
type Response struct {
	Content   string
	Tokens    int
	Citations []string // search providers only
}

// Completer sends a prompt to an LLM or search provider.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Waiter is the provider-level rate limiter shared by decorators.
type Waiter interface {
	Wait(ctx context.Context, provider string) error
}

// RateLimitedCompleter waits for the provider's rate limiter before delegating.
type RateLimitedCompleter struct {
	inner    Completer
	limiter  Waiter
	provider string
}

// NewRateLimitedCompleter wraps inner. All completers targeting the same
// provider should share one limiter.
func NewRateLimitedCompleter(inner Completer, limiter Waiter, provider string) *RateLimitedCompleter {
	return &RateLimitedCompleter{inner: inner, limiter: limiter, provider: provider}
}

// Complete waits for the limiter, then delegates.
func (c *RateLimitedCompleter) Complete(ctx context.Context, req Request) (Response, error) {
	if err := c.limiter.Wait(ctx, c.provider); err != nil {
		return Response{}, err
	}
	return c.inner.Complete(ctx, req)
}
