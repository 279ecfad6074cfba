package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amishk599/leadradar/internal/checkpoint"
	"github.com/amishk599/leadradar/internal/model"
)

// maxRunHistory bounds the runs list kept in Redis.
const maxRunHistory = 500

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // key namespace, default "leadradar"
}

// RedisStore keeps checkpoints as one hash per pipeline and the run history as
// a capped list, so several machines can share progress.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", opts.Addr, err)
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "leadradar"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

// Checkpoint returns the checkpoint backend of one pipeline.
func (s *RedisStore) Checkpoint(pipeline string) *RedisCheckpoint {
	return &RedisCheckpoint{client: s.client, key: s.checkpointKey(pipeline), pipeline: pipeline}
}

// RecordRun pushes a run onto the history list.
func (s *RedisStore) RecordRun(ctx context.Context, r model.RunReport) error {
	raw, err := json.Marshal(runRecord(r))
	if err != nil {
		return fmt.Errorf("encoding run %s: %w", r.RunID, err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.runsKey(), raw)
	pipe.LTrim(ctx, s.runsKey(), 0, maxRunHistory-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording run %s: %w", r.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *RedisStore) ListRuns(ctx context.Context, limit int) ([]model.RunReport, error) {
	raws, err := s.client.LRange(ctx, s.runsKey(), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	runs := make([]model.RunReport, 0, len(raws))
	for _, raw := range raws {
		var rec storedRun
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			// skip entries written by an incompatible version
			continue
		}
		runs = append(runs, rec.report())
	}
	return runs, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) checkpointKey(pipeline string) string {
	return fmt.Sprintf("%s:checkpoint:%s", s.prefix, pipeline)
}

func (s *RedisStore) runsKey() string { return s.prefix + ":runs" }

// RedisCheckpoint is a model.CheckpointBackend over one Redis hash; each field
// is an identity key and each value the JSON-encoded result.
type RedisCheckpoint struct {
	client   *redis.Client
	key      string
	pipeline string
}

// Load reads the whole hash. A missing hash is an empty checkpoint.
func (c *RedisCheckpoint) Load(ctx context.Context) (map[string]model.Result, error) {
	fields, err := c.client.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, fmt.Errorf("loading %s checkpoint: %w", c.pipeline, err)
	}
	entries := make(map[string]model.Result, len(fields))
	for key, raw := range fields {
		var r model.Result
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("%s checkpoint entry %q: %v: %w", c.pipeline, key, err, checkpoint.ErrCorrupt)
		}
		r.Key = key
		entries[key] = r
	}
	return entries, nil
}

// Save replaces the hash atomically.
func (c *RedisCheckpoint) Save(ctx context.Context, entries map[string]model.Result) error {
	values := make(map[string]any, len(entries))
	for key, r := range entries {
		raw, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encoding %s entry %q: %w", c.pipeline, key, err)
		}
		values[key] = string(raw)
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, c.key)
	if len(values) > 0 {
		pipe.HSet(ctx, c.key, values)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving %s checkpoint: %w", c.pipeline, err)
	}
	return nil
}

// storedRun is the JSON form of a run in the history list.
type storedRun struct {
	RunID      string    `json:"run_id"`
	Pipeline   string    `json:"pipeline"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	Skipped    int       `json:"skipped"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Tokens     int       `json:"tokens"`
	Flushes    int       `json:"flushes"`
}

func runRecord(r model.RunReport) storedRun {
	return storedRun{
		RunID:      r.RunID,
		Pipeline:   r.Pipeline,
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
		Total:      r.Total,
		Skipped:    r.Skipped,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		Tokens:     r.Tokens,
		Flushes:    r.Flushes,
	}
}

func (s storedRun) report() model.RunReport {
	return model.RunReport{
		RunID:      s.RunID,
		Pipeline:   s.Pipeline,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Total:      s.Total,
		Skipped:    s.Skipped,
		Succeeded:  s.Succeeded,
		Failed:     s.Failed,
		Tokens:     s.Tokens,
		Flushes:    s.Flushes,
	}
}
