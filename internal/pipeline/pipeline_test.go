package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/leadradar/internal/checkpoint"
	"github.com/amishk599/leadradar/internal/dispatch"
	"github.com/amishk599/leadradar/internal/model"
	"github.com/amishk599/leadradar/internal/retry"
)

// --- Fakes ---

// MemoryBackend keeps the last saved checkpoint in memory.
type MemoryBackend struct {
	mu      sync.Mutex
	saved   map[string]model.Result
	saves   int
	saveErr error
}

func (b *MemoryBackend) Load(context.Context) (map[string]model.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.saved), nil
}

func (b *MemoryBackend) Save(_ context.Context, entries map[string]model.Result) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return b.saveErr
	}
	b.saved = maps.Clone(entries)
	b.saves++
	return nil
}

// RecordingLedger remembers recorded runs.
type RecordingLedger struct {
	Runs []model.RunReport
}

func (l *RecordingLedger) RecordRun(_ context.Context, r model.RunReport) error {
	l.Runs = append(l.Runs, r)
	return nil
}

func (l *RecordingLedger) ListRuns(context.Context, int) ([]model.RunReport, error) {
	return l.Runs, nil
}

// RecordingNotifier records which reports were sent to Notify.
type RecordingNotifier struct {
	Reports []model.RunReport
}

func (n *RecordingNotifier) Notify(r model.RunReport) error {
	n.Reports = append(n.Reports, r)
	return nil
}

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeItems(n int) []model.WorkItem {
	items := make([]model.WorkItem, n)
	for i := range items {
		items[i] = model.WorkItem{Key: fmt.Sprintf("item-%d", i+1), Kind: model.KindJob}
	}
	return items
}

// countingOp fails every key in failing and counts calls per key.
type countingOp struct {
	mu      sync.Mutex
	calls   map[string]int
	failing map[string]bool
}

func newCountingOp(failing ...string) *countingOp {
	f := make(map[string]bool)
	for _, k := range failing {
		f[k] = true
	}
	return &countingOp{calls: make(map[string]int), failing: f}
}

func (o *countingOp) run(_ context.Context, item model.WorkItem) (model.Success, error) {
	o.mu.Lock()
	o.calls[item.Key]++
	o.mu.Unlock()
	if o.failing[item.Key] {
		return model.Success{}, errors.New("provider rejected the item")
	}
	payload, _ := json.Marshal(map[string]string{"key": item.Key})
	return model.Success{Payload: payload, Tokens: 10}, nil
}

func (o *countingOp) total() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.calls {
		n += c
	}
	return n
}

func newPipeline(t *testing.T, backend *MemoryBackend, items []model.WorkItem, op dispatch.Operation, limit, flushEvery int) *Pipeline {
	t.Helper()
	cp, err := checkpoint.Open(context.Background(), backend, flushEvery, discardLogger())
	if err != nil {
		t.Fatalf("checkpoint.Open: %v", err)
	}
	d := dispatch.New(limit, retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond}, discardLogger())
	return New("jobs", slices.Values(items), op, cp, d, discardLogger())
}

// --- Tests ---

func TestRun_SevenItemScenario(t *testing.T) {
	backend := &MemoryBackend{}
	op := newCountingOp("item-4")

	report, err := newPipeline(t, backend, makeItems(7), op.run, 2, 3).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := report.Tally(); got != "6 success / 1 failure / 7 total" {
		t.Errorf("tally = %q", got)
	}
	if report.Flushes < 3 || backend.saves < 3 {
		t.Errorf("flushes = %d (backend saves %d), want >= 3", report.Flushes, backend.saves)
	}
	if len(backend.saved) != 7 {
		t.Fatalf("persisted entries = %d, want 7", len(backend.saved))
	}
	f, ok := backend.saved["item-4"].Outcome.(model.Failure)
	if !ok || f.Attempts != 3 {
		t.Errorf("item-4 = %+v, want failure after 3 attempts", backend.saved["item-4"])
	}
	if report.Tokens != 60 {
		t.Errorf("tokens = %d, want 60", report.Tokens)
	}
	if report.RunID == "" || report.FinishedAt.Before(report.StartedAt) {
		t.Errorf("report = %+v", report)
	}
}

func TestRun_IdempotentResume(t *testing.T) {
	backend := &MemoryBackend{}
	first := newCountingOp("item-4")
	if _, err := newPipeline(t, backend, makeItems(7), first.run, 2, 3).Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	second := newCountingOp()
	report, err := newPipeline(t, backend, makeItems(7), second.run, 2, 3).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if second.total() != 1 || second.calls["item-4"] != 1 {
		t.Errorf("second run calls = %v, want only item-4 retried", second.calls)
	}
	if report.Skipped != 6 || report.Succeeded != 1 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}
	if !backend.saved["item-4"].Succeeded() {
		t.Error("failed item should be overwritten by the later success")
	}

	third := newCountingOp()
	report, err = newPipeline(t, backend, makeItems(7), third.run, 2, 3).Run(context.Background())
	if err != nil {
		t.Fatalf("third Run: %v", err)
	}
	if third.total() != 0 || report.Skipped != 7 || report.Processed() != 0 {
		t.Errorf("fully completed checkpoint reprocessed: calls=%d report=%+v", third.total(), report)
	}
}

func TestRun_CheckpointErrorAbortsRun(t *testing.T) {
	backend := &MemoryBackend{saveErr: errors.New("disk full")}
	op := newCountingOp()

	_, err := newPipeline(t, backend, makeItems(5), op.run, 1, 1).Run(context.Background())
	if err == nil {
		t.Fatal("expected error when the checkpoint cannot be written")
	}
	if calls := op.total(); calls > 2 {
		t.Errorf("calls = %d, want the run stopped after the failed write", calls)
	}
}

func TestRun_CancellationLeavesRemainingPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	op := func(_ context.Context, item model.WorkItem) (model.Success, error) {
		if calls.Add(1) == 2 {
			cancel()
		}
		return model.Success{Payload: json.RawMessage(`{}`)}, nil
	}

	backend := &MemoryBackend{}
	report, err := newPipeline(t, backend, makeItems(5), op, 1, 10).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if report.Succeeded != 2 || calls.Load() != 2 {
		t.Errorf("succeeded=%d calls=%d, want 2/2", report.Succeeded, calls.Load())
	}
	if len(backend.saved) != 2 {
		t.Errorf("persisted = %d, want in-flight results flushed on exit", len(backend.saved))
	}
}

func TestRun_CancelledAfterLastItemIsInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	op := func(_ context.Context, item model.WorkItem) (model.Success, error) {
		cancel()
		return model.Success{Payload: json.RawMessage(`{}`)}, nil
	}
	ledger := &RecordingLedger{}
	notifier := &RecordingNotifier{}

	report, err := newPipeline(t, &MemoryBackend{}, makeItems(1), op, 1, 1).
		WithLedger(ledger).
		WithNotifier(notifier).
		Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if report.Succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", report.Succeeded)
	}
	if len(ledger.Runs) != 1 {
		t.Errorf("ledger runs = %d, want the interrupted run recorded", len(ledger.Runs))
	}
	if len(notifier.Reports) != 0 {
		t.Errorf("notifications = %d, want none for an interrupted run", len(notifier.Reports))
	}
}

func TestRun_RecordsNotifiesAndRanksLeads(t *testing.T) {
	ledger := &RecordingLedger{}
	notifier := &RecordingNotifier{}
	scores := map[string]int{"item-1": 4, "item-2": 9, "item-3": 7}
	leads := func(r model.Result) (model.Lead, bool) {
		return model.Lead{Key: r.Key, Score: scores[r.Key]}, true
	}

	op := newCountingOp()
	p := newPipeline(t, &MemoryBackend{}, makeItems(3), op.run, 3, 1).
		WithLedger(ledger).
		WithNotifier(notifier).
		WithLeads(leads, 2)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ledger.Runs) != 1 || ledger.Runs[0].RunID != report.RunID {
		t.Errorf("ledger runs = %+v", ledger.Runs)
	}
	if len(notifier.Reports) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.Reports))
	}
	top := report.TopLeads
	if len(top) != 2 || top[0].Key != "item-2" || top[1].Key != "item-3" {
		t.Errorf("top leads = %+v, want item-2 then item-3", top)
	}
}

func TestRun_NothingPendingSkipsNotification(t *testing.T) {
	backend := &MemoryBackend{saved: map[string]model.Result{
		"item-1": {Key: "item-1", Outcome: model.Success{Payload: json.RawMessage(`{}`)}},
	}}
	notifier := &RecordingNotifier{}
	op := newCountingOp()

	report, err := newPipeline(t, backend, makeItems(1), op.run, 2, 2).WithNotifier(notifier).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Skipped != 1 || op.total() != 0 || len(notifier.Reports) != 0 {
		t.Errorf("report=%+v calls=%d notifications=%d", report, op.total(), len(notifier.Reports))
	}
}

func TestRun_RefreshReprocessesSucceededKey(t *testing.T) {
	backend := &MemoryBackend{saved: map[string]model.Result{
		"item-1": {Key: "item-1", Outcome: model.Success{Payload: json.RawMessage(`{"v":1}`)}},
		"item-2": {Key: "item-2", Outcome: model.Success{Payload: json.RawMessage(`{}`)}},
	}}
	op := newCountingOp()

	report, err := newPipeline(t, backend, makeItems(2), op.run, 1, 1).WithRefresh("item-1").Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Skipped != 1 || report.Succeeded != 1 {
		t.Errorf("skipped=%d succeeded=%d, want 1/1", report.Skipped, report.Succeeded)
	}
	if op.calls["item-1"] != 1 || op.calls["item-2"] != 0 {
		t.Errorf("calls = %v, want only the refreshed key", op.calls)
	}
	if got := string(backend.saved["item-1"].Payload()); got != `{"key":"item-1"}` {
		t.Errorf("item-1 payload = %s, want the new result", got)
	}
}

func TestPlan(t *testing.T) {
	backend := &MemoryBackend{saved: map[string]model.Result{
		"item-1": {Key: "item-1", Outcome: model.Success{Payload: json.RawMessage(`{}`)}},
		"item-2": {Key: "item-2", Outcome: model.Failure{Reason: "x", Attempts: 1}},
	}}
	p := newPipeline(t, backend, makeItems(3), newCountingOp().run, 1, 1)

	pending, skipped := p.Plan()
	if skipped != 1 || len(pending) != 2 || pending[0].Key != "item-2" {
		t.Errorf("pending=%v skipped=%d", pending, skipped)
	}
}
