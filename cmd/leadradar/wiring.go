package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"time"

	"github.com/amishk599/leadradar/internal/ai"
	"github.com/amishk599/leadradar/internal/analysis"
	"github.com/amishk599/leadradar/internal/checkpoint"
	"github.com/amishk599/leadradar/internal/config"
	"github.com/amishk599/leadradar/internal/dispatch"
	"github.com/amishk599/leadradar/internal/export"
	"github.com/amishk599/leadradar/internal/filter"
	"github.com/amishk599/leadradar/internal/jobs"
	"github.com/amishk599/leadradar/internal/model"
	"github.com/amishk599/leadradar/internal/pipeline"
	"github.com/amishk599/leadradar/internal/ratelimit"
	"github.com/amishk599/leadradar/internal/retry"
	"github.com/amishk599/leadradar/internal/source"
	"github.com/amishk599/leadradar/internal/store"
)

var errNoCompanies = errors.New("no companies configured")

// leadFuncs ranks successful results of each pipeline.
var leadFuncs = map[string]pipeline.LeadFunc{
	config.PipelineJobs:       analysis.JobLead,
	config.PipelineTrends:     analysis.TrendLead,
	config.PipelineNews:       analysis.NewsLead,
	config.PipelineInterviews: analysis.NewsLead,
}

// app holds what the commands of one invocation share: one rate limiter per
// process, the checkpoint stores and the run ledger.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	limiter *ratelimit.ProviderRateLimiter
	filter  model.JobFilter
	sqlite  *store.SQLiteStore
	redis   *store.RedisStore
	ledger  model.RunLedger
	refresh newsRefresh
}

// newsRefresh re-runs the news or interviews search of one company and merges
// the findings into its previous report.
type newsRefresh struct {
	Company string
	Days    int
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		limiter: ratelimit.NewProviderRateLimiter(cfg.RateLimit.MinDelay, cfg.RateLimit.Overrides),
		filter: filter.NewPostingFilter(
			cfg.Filters.TitleKeywords,
			cfg.Filters.TitleExcludeKeywords,
			cfg.Filters.Locations,
			cfg.Filters.ExcludeLocations,
			cfg.Filters.MinDescription,
		),
		ledger: store.NewNopLedger(),
	}

	switch cfg.Checkpoint.Backend {
	case config.BackendRedis:
		rs, err := store.NewRedisStore(ctx, store.RedisOptions{
			Addr:     cfg.Checkpoint.Redis.Addr,
			Password: cfg.Checkpoint.Redis.Password,
			DB:       cfg.Checkpoint.Redis.DB,
			Prefix:   cfg.Checkpoint.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		a.redis = rs
		if cfg.History.Enabled {
			a.ledger = rs
		}
	case config.BackendSQLite:
		if err := a.openSQLite(ctx); err != nil {
			return nil, err
		}
	default:
		// File checkpoints keep the run history in sqlite.
		if cfg.History.Enabled {
			if err := a.openSQLite(ctx); err != nil {
				return nil, err
			}
		}
	}
	return a, nil
}

func (a *app) openSQLite(ctx context.Context) error {
	s, err := store.NewSQLiteStore(a.cfg.Checkpoint.SQLitePath)
	if err != nil {
		return err
	}
	a.sqlite = s
	if !a.cfg.History.Enabled {
		return nil
	}
	a.ledger = s
	if a.cfg.History.Retention > 0 {
		n, err := s.PruneRuns(ctx, a.cfg.History.Retention)
		if err != nil {
			a.logger.Warn("pruning run history failed", "error", err)
		} else if n > 0 {
			a.logger.Debug("pruned run history", "runs", n, "retention", a.cfg.History.Retention.String())
		}
	}
	return nil
}

func (a *app) Close() {
	if a.sqlite != nil {
		a.sqlite.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

// backend returns where the named pipeline keeps its checkpoint.
func (a *app) backend(name string) model.CheckpointBackend {
	switch a.cfg.Checkpoint.Backend {
	case config.BackendRedis:
		return a.redis.Checkpoint(name)
	case config.BackendSQLite:
		return a.sqlite.Checkpoint(name)
	default:
		return checkpoint.NewFileBackend(filepath.Join(a.cfg.Checkpoint.Dir, a.cfg.Pipelines[name].File))
	}
}

// loader reads the input document and every pipeline's checkpoint.
func (a *app) loader() *export.Loader {
	backends := make(map[string]model.CheckpointBackend, len(config.PipelineNames))
	for _, name := range config.PipelineNames {
		backends[name] = a.backend(name)
	}
	return &export.Loader{
		DocPath:  a.cfg.Input,
		Filter:   a.filter,
		Backends: backends,
		Logger:   a.logger,
	}
}

// loadDocument reads the input document written by fetch.
func (a *app) loadDocument() (*source.Document, error) {
	doc, err := source.Load(a.cfg.Input)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("input document %s not found, run `leadradar fetch` first: %w", a.cfg.Input, err)
	}
	return doc, err
}

func (a *app) retryPolicy(attemptTimeout time.Duration) retry.Policy {
	return retry.Policy{
		MaxRetries:     a.cfg.Pipeline.MaxRetries,
		BaseDelay:      a.cfg.Pipeline.RetryBaseDelay,
		AttemptTimeout: attemptTimeout,
	}
}

// completers builds the rate-limited OpenAI and Perplexity clients.
func (a *app) completers() (llm, search ai.Completer) {
	openai := ai.NewOpenAIProvider(a.cfg.AI.BaseURL, a.cfg.AI.APIKey, a.cfg.AI.Model, &http.Client{Timeout: a.cfg.AI.Timeout})
	pplx := ai.NewPerplexityProvider(a.cfg.Search.BaseURL, a.cfg.Search.APIKey, a.cfg.Search.Model, &http.Client{Timeout: a.cfg.Search.Timeout})
	return ai.NewRateLimitedCompleter(openai, a.limiter, openai.Name()),
		ai.NewRateLimitedCompleter(pplx, a.limiter, pplx.Name())
}

// fetcher builds the jobs-data client with rate limiting and retries.
// Companies with a Greenhouse board are read from the board.
func (a *app) fetcher() model.JobsFetcher {
	p := a.cfg.JobsProvider
	client := &http.Client{Timeout: p.Timeout}
	router := &jobs.Router{
		Default: jobs.NewRateLimitedFetcher(
			jobs.NewMantiksFetcher(p.BaseURL, p.APIKey, p.Keywords, p.AgeInDays, client),
			a.limiter, jobs.ProviderMantiks,
		),
		Greenhouse: jobs.NewRateLimitedFetcher(
			jobs.NewGreenhouseFetcher(p.GreenhouseBaseURL, client),
			a.limiter, jobs.ProviderGreenhouse,
		),
	}
	return jobs.NewRetryFetcher(router, a.retryPolicy(p.Timeout), a.logger)
}

// buildPipeline wires the named pipeline over doc. The dispatcher is returned
// so callers can attach an observer before running.
func (a *app) buildPipeline(ctx context.Context, name string, doc *source.Document, n model.Notifier) (*pipeline.Pipeline, *dispatch.Dispatcher, error) {
	settings, ok := a.cfg.Pipelines[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", export.ErrUnknownPipeline, name)
	}
	logger := a.logger
	llm, search := a.completers()
	enum := source.NewEnumerator(doc, a.filter)

	cp, err := checkpoint.Open(ctx, a.backend(name), settings.FlushEvery, logger.With("pipeline", name))
	if err != nil {
		return nil, nil, fmt.Errorf("open %s checkpoint: %w", name, err)
	}

	var items iter.Seq[model.WorkItem]
	var op dispatch.Operation
	var refresh []string
	switch name {
	case config.PipelineJobs:
		items = enum.JobItems()
		op = analysis.NewJobAnalyzer(llm, a.cfg.Product, logger).Analyze
	case config.PipelineTrends:
		items = enum.CompanyItems()
		op = analysis.NewTrendAnalyzer(llm, a.cfg.Product, logger).Analyze
	case config.PipelineNews, config.PipelineInterviews:
		kind := analysis.KindNews
		if name == config.PipelineInterviews {
			kind = analysis.KindInterviews
		}
		na, err := analysis.NewNewsAnalyzer(kind, search, llm, a.cfg.Product, logger)
		if err != nil {
			return nil, nil, err
		}
		items = enum.AllCompanyItems()
		op = na.Analyze
		if company := a.refresh.Company; company != "" {
			items, err = companyItem(items, company)
			if err != nil {
				return nil, nil, err
			}
			na.WithLookback(a.refresh.Days)
			op = dispatch.Operation(analysis.RefreshNews(na.Analyze, cp.Get))
			refresh = []string{company}
			logger.Info("refreshing company", "pipeline", name, "company", company, "days", a.refresh.Days)
		}
	}

	d := dispatch.New(a.cfg.Pipeline.Concurrency, a.retryPolicy(a.cfg.Pipeline.CallTimeout), logger)
	p := pipeline.New(name, items, op, cp, d, logger).
		WithLedger(a.ledger).
		WithNotifier(n).
		WithLeads(leadFuncs[name], a.cfg.Pipeline.TopLeads).
		WithRefresh(refresh...)
	return p, d, nil
}

// companyItem narrows items to the one keyed by company.
func companyItem(items iter.Seq[model.WorkItem], company string) (iter.Seq[model.WorkItem], error) {
	for item := range items {
		if item.Key == company {
			return slices.Values([]model.WorkItem{item}), nil
		}
	}
	return nil, fmt.Errorf("company %q not found in the input document", company)
}
