package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amishk599/leadradar/internal/model"
	"github.com/amishk599/leadradar/internal/retry"
)

// Operation is the external call made for one WorkItem.
type Operation func(ctx context.Context, item model.WorkItem) (model.Success, error)

// Observer is told when an item goes in flight and when it reaches a terminal state.
type Observer interface {
	Started(item model.WorkItem)
	Finished(result model.Result)
}

// Dispatcher runs an Operation over many WorkItems with at most limit calls in
// flight. Each call is wrapped in the retry policy; the concurrency slot is held
// across retries and released once the item is terminal.
type Dispatcher struct {
	limit    int
	policy   retry.Policy
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a dispatcher. limit values below 1 are treated as 1.
func New(limit int, policy retry.Policy, logger *slog.Logger) *Dispatcher {
	if limit < 1 {
		limit = 1
	}
	return &Dispatcher{
		limit:  limit,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// WithObserver attaches an observer and returns d.
func (d *Dispatcher) WithObserver(o Observer) *Dispatcher {
	d.observer = o
	return d
}

// Limit returns the concurrency limit.
func (d *Dispatcher) Limit() int { return d.limit }

// Run starts every item and returns a channel of results in completion order.
// The channel is closed once every started item is terminal. When ctx is
// cancelled no further items are started; those items produce no result.
func (d *Dispatcher) Run(ctx context.Context, items []model.WorkItem, op Operation) <-chan model.Result {
	out := make(chan model.Result)

	go func() {
		defer close(out)

		var g errgroup.Group
		g.SetLimit(d.limit)

		for _, item := range items {
			if ctx.Err() != nil {
				d.logger.Warn("dispatch interrupted, leaving remaining items pending", "error", ctx.Err())
				break
			}
			// Go blocks while limit calls are in flight.
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				if d.observer != nil {
					d.observer.Started(item)
				}
				result := d.execute(ctx, item, op)
				if d.observer != nil {
					d.observer.Finished(result)
				}
				out <- result
				return nil
			})
		}
		_ = g.Wait()
	}()

	return out
}

// execute runs op with retries and converts every outcome, panics included,
// into a Result.
func (d *Dispatcher) execute(ctx context.Context, item model.WorkItem, op Operation) (result model.Result) {
	attempts := 0
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("operation panicked", "key", item.Key, "panic", r)
			result = model.Result{
				Key:         item.Key,
				Outcome:     model.Failure{Reason: fmt.Sprintf("panic: %v", r), Attempts: max(attempts, 1)},
				CompletedAt: d.now().UTC(),
			}
		}
	}()

	success, n, err := retry.Do(ctx, d.policy, d.logger.With("key", item.Key), func(ctx context.Context) (model.Success, error) {
		attempts++
		return op(ctx, item)
	})
	if n > attempts {
		attempts = n
	}

	if err != nil {
		return model.Result{
			Key:         item.Key,
			Outcome:     model.Failure{Reason: err.Error(), Attempts: attempts},
			CompletedAt: d.now().UTC(),
		}
	}
	return model.Result{Key: item.Key, Outcome: success, CompletedAt: d.now().UTC()}
}
