package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/leadradar/internal/checkpoint"
	"github.com/amishk599/leadradar/internal/dispatch"
	"github.com/amishk599/leadradar/internal/model"
)

// DefaultTopLeads is how many leads a run report carries.
const DefaultTopLeads = 5

// LeadFunc extracts a scored lead from a successful result.
type LeadFunc func(r model.Result) (model.Lead, bool)

// Pipeline owns one full batch run: enumerate → skip completed → dispatch →
// merge into the checkpoint → close → record → notify.
type Pipeline struct {
	Name       string
	items      iter.Seq[model.WorkItem]
	op         dispatch.Operation
	checkpoint *checkpoint.Checkpoint
	dispatcher *dispatch.Dispatcher
	ledger     model.RunLedger
	notifier   model.Notifier
	leads      LeadFunc
	topLeads   int
	refresh    map[string]bool
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a pipeline wired with its core dependencies.
func New(
	name string,
	items iter.Seq[model.WorkItem],
	op dispatch.Operation,
	cp *checkpoint.Checkpoint,
	d *dispatch.Dispatcher,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		Name:       name,
		items:      items,
		op:         op,
		checkpoint: cp,
		dispatcher: d,
		topLeads:   DefaultTopLeads,
		logger:     logger.With("pipeline", name),
		now:        time.Now,
	}
}

// WithLedger records every run in l.
func (p *Pipeline) WithLedger(l model.RunLedger) *Pipeline {
	p.ledger = l
	return p
}

// WithNotifier sends the run report to n.
func (p *Pipeline) WithNotifier(n model.Notifier) *Pipeline {
	p.notifier = n
	return p
}

// WithLeads ranks successful results with fn and keeps the best n in the report.
func (p *Pipeline) WithLeads(fn LeadFunc, n int) *Pipeline {
	p.leads = fn
	if n > 0 {
		p.topLeads = n
	}
	return p
}

// WithRefresh processes keys again even when they already succeeded.
func (p *Pipeline) WithRefresh(keys ...string) *Pipeline {
	if p.refresh == nil {
		p.refresh = make(map[string]bool, len(keys))
	}
	for _, k := range keys {
		p.refresh[k] = true
	}
	return p
}

// Plan enumerates the items and splits them into the ones still to process
// and the number already completed successfully.
func (p *Pipeline) Plan() (pending []model.WorkItem, skipped int) {
	for item := range p.items {
		if p.checkpoint.Succeeded(item.Key) && !p.refresh[item.Key] {
			skipped++
			continue
		}
		pending = append(pending, item)
	}
	return pending, skipped
}

// Run processes every item without a successful result. Per-item failures are
// recorded and never abort the run; a checkpoint write error does. When ctx is
// cancelled, items not yet started stay pending, in-flight results are still
// merged, and the checkpoint is flushed before returning.
func (p *Pipeline) Run(ctx context.Context) (model.RunReport, error) {
	report := model.RunReport{
		RunID:     uuid.NewString(),
		Pipeline:  p.Name,
		StartedAt: p.now().UTC(),
	}
	pending, skipped := p.Plan()
	report.Total = len(pending) + skipped
	report.Skipped = skipped

	p.logger.Info("starting pipeline",
		"run_id", report.RunID,
		"total", report.Total,
		"skipped", skipped,
		"pending", len(pending),
		"concurrency", p.dispatcher.Limit(),
	)

	// Checkpoint writes outlive cancellation so in-flight work is not lost.
	persistCtx := context.WithoutCancel(ctx)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var leads []model.Lead
	var mergeErr error
	for r := range p.dispatcher.Run(runCtx, pending, p.op) {
		if mergeErr != nil {
			continue // draining
		}
		if err := p.checkpoint.Merge(persistCtx, r); err != nil {
			mergeErr = err
			p.logger.Error("checkpoint write failed, stopping run", "error", err)
			cancel()
			continue
		}

		switch o := r.Outcome.(type) {
		case model.Success:
			report.Succeeded++
			report.Tokens += o.Tokens
			if p.leads != nil {
				if lead, ok := p.leads(r); ok {
					leads = append(leads, lead)
				}
			}
			p.logger.Info("item completed",
				"key", r.Key,
				"completed", report.Processed(),
				"failed", report.Failed,
				"total", len(pending),
				"tokens", report.Tokens,
			)
		case model.Failure:
			report.Failed++
			p.logger.Warn("item failed",
				"key", r.Key,
				"attempts", o.Attempts,
				"error", o.Reason,
				"completed", report.Processed(),
				"failed", report.Failed,
				"total", len(pending),
			)
		}
	}

	closeErr := p.checkpoint.Close(persistCtx)
	report.FinishedAt = p.now().UTC()
	report.Flushes = p.checkpoint.Flushes()
	report.TopLeads = rankLeads(leads, p.topLeads)

	if err := errors.Join(mergeErr, closeErr); err != nil {
		return report, fmt.Errorf("pipeline %s: %w", p.Name, err)
	}

	if ctx.Err() != nil {
		p.logger.Warn("run interrupted, remaining items left for the next run",
			"remaining", len(pending)-report.Processed(),
			"tally", report.Tally(),
		)
		p.record(persistCtx, report)
		return report, fmt.Errorf("pipeline %s interrupted: %w", p.Name, ctx.Err())
	}

	p.logger.Info("pipeline finished",
		"run_id", report.RunID,
		"tally", report.Tally(),
		"skipped", report.Skipped,
		"tokens", report.Tokens,
		"flushes", report.Flushes,
		"duration", report.Duration().Round(time.Millisecond).String(),
	)
	p.record(persistCtx, report)

	if p.notifier != nil && report.Processed() > 0 {
		if err := p.notifier.Notify(report); err != nil {
			p.logger.Error("notification failed", "error", err)
		}
	}
	return report, nil
}

// record writes the run to the ledger. Ledger errors are logged only.
func (p *Pipeline) record(ctx context.Context, report model.RunReport) {
	if p.ledger == nil {
		return
	}
	if err := p.ledger.RecordRun(ctx, report); err != nil {
		p.logger.Error("recording run failed", "run_id", report.RunID, "error", err)
	}
}

// rankLeads sorts by score, best first, breaking ties by key, and keeps n.
func rankLeads(leads []model.Lead, n int) []model.Lead {
	slices.SortFunc(leads, func(a, b model.Lead) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		if a.Key < b.Key {
			return -1
		}
		if a.Key > b.Key {
			return 1
		}
		return 0
	})
	if len(leads) > n {
		leads = leads[:n]
	}
	return leads
}
