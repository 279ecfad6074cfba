package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/amishk599/leadradar/internal/model"
)

// Checkpoint is the in-memory map of completed work for one pipeline, backed
// by a persistent backend. Merge is its only mutation entry point.
type Checkpoint struct {
	mu         sync.Mutex
	backend    model.CheckpointBackend
	entries    map[string]model.Result
	flushEvery int
	pending    int // merges since the last flush
	flushes    int
	logger     *slog.Logger
}

// Open loads the checkpoint from backend. flushEvery is the number of merges
// between flushes; values below 1 are treated as 1.
func Open(ctx context.Context, backend model.CheckpointBackend, flushEvery int, logger *slog.Logger) (*Checkpoint, error) {
	entries, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if entries == nil {
		entries = make(map[string]model.Result)
	}
	if flushEvery < 1 {
		flushEvery = 1
	}
	return &Checkpoint{
		backend:    backend,
		entries:    entries,
		flushEvery: flushEvery,
		logger:     logger,
	}, nil
}

// Merge records r, overwriting any prior entry for r.Key, and flushes once
// flushEvery merges have accumulated.
func (c *Checkpoint) Merge(ctx context.Context, r model.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[r.Key] = r
	c.pending++
	if c.pending < c.flushEvery {
		return nil
	}
	return c.flushLocked(ctx)
}

// Flush writes the full map to the backend.
func (c *Checkpoint) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked(ctx)
}

// Close flushes unconditionally. It must be called after the last merge.
func (c *Checkpoint) Close(ctx context.Context) error {
	return c.Flush(ctx)
}

func (c *Checkpoint) flushLocked(ctx context.Context) error {
	if err := c.backend.Save(ctx, c.entries); err != nil {
		return fmt.Errorf("flush checkpoint: %w", err)
	}
	c.flushes++
	c.logger.Debug("checkpoint flushed", "entries", len(c.entries), "merged", c.pending)
	c.pending = 0
	return nil
}

// Succeeded reports whether key already has a successful result.
func (c *Checkpoint) Succeeded(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	return ok && r.Succeeded()
}

// Get returns the result recorded for key.
func (c *Checkpoint) Get(key string) (model.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	return r, ok
}

// Len returns the number of recorded results.
func (c *Checkpoint) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Counts returns the number of succeeded and failed entries.
func (c *Checkpoint) Counts() (succeeded, failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.entries {
		if r.Succeeded() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Flushes returns how many times the checkpoint has been written.
func (c *Checkpoint) Flushes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushes
}

// Snapshot returns a copy of the recorded results.
func (c *Checkpoint) Snapshot() map[string]model.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.entries)
}
