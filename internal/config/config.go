package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/amishk599/leadradar/internal/ai"
	"github.com/amishk599/leadradar/internal/analysis"
	"github.com/amishk599/leadradar/internal/jobs"
	"github.com/amishk599/leadradar/internal/model"
)

// Pipeline names, in the order `run` executes them. Checkpoints and the
// exported data document are keyed by these names.
const (
	PipelineJobs       = "jobs"
	PipelineTrends     = "trends"
	PipelineNews       = "news"
	PipelineInterviews = "interviews"
)

// PipelineNames lists every pipeline in execution order.
var PipelineNames = []string{PipelineJobs, PipelineTrends, PipelineNews, PipelineInterviews}

// Checkpoint backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config is the root configuration for leadradar.
type Config struct {
	Input        string // input document written by fetch
	ExportPath   string // frontend data document
	Companies    []model.Company
	JobsProvider JobsProviderConfig
	AI           ProviderConfig
	Search       ProviderConfig
	Product      string // product description injected into prompts
	Pipeline     PipelineConfig
	Pipelines    map[string]PipelineSettings
	Checkpoint   CheckpointConfig
	History      HistoryConfig
	Filters      FilterConfig
	Notification NotificationConfig
	Server       ServerConfig
	Schedule     ScheduleConfig
	RateLimit    RateLimitConfig
}

// JobsProviderConfig configures where job postings come from.
type JobsProviderConfig struct {
	BaseURL           string
	GreenhouseBaseURL string // public boards API, used for companies with a greenhouse_board
	APIKey            string
	Keywords          []string
	AgeInDays         int
	Timeout           time.Duration
}

// ProviderConfig configures one OpenAI-compatible chat completions endpoint.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration // HTTP client timeout
}

// PipelineConfig holds the dispatcher and retry settings shared by every pipeline.
type PipelineConfig struct {
	Concurrency    int
	MaxRetries     int
	RetryBaseDelay time.Duration
	CallTimeout    time.Duration // per-attempt wall-clock limit
	TopLeads       int
}

// PipelineSettings is the per-pipeline section.
type PipelineSettings struct {
	Enabled    bool
	FlushEvery int
	File       string // checkpoint file name for the file backend
}

// CheckpointConfig selects where checkpoints live.
type CheckpointConfig struct {
	Backend    string
	Dir        string
	SQLitePath string
	Redis      RedisConfig
}

// RedisConfig is the Redis connection used by the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// HistoryConfig controls the run ledger.
type HistoryConfig struct {
	Enabled   bool
	Retention time.Duration // runs older than this are pruned; zero keeps everything
}

// FilterConfig holds keyword and location filter settings for job postings.
type FilterConfig struct {
	TitleKeywords        []string
	TitleExcludeKeywords []string
	Locations            []string
	ExcludeLocations     []string
	MinDescription       int
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log" or "slack"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

// ServerConfig configures the read-only results API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ScheduleConfig controls `run`.
type ScheduleConfig struct {
	Interval time.Duration // zero runs a single cycle
	Fetch    bool          // refresh the input document before the pipelines
	Pause    time.Duration // wait between consecutive stages
}

// RateLimitConfig controls provider-level rate limiting.
type RateLimitConfig struct {
	MinDelay  time.Duration            // minimum gap between requests to the same provider
	Overrides map[string]time.Duration // per-provider overrides, keyed by provider name
}

// MinDelayFor returns the configured delay for the given provider, falling back to MinDelay.
func (r RateLimitConfig) MinDelayFor(provider string) time.Duration {
	if d, ok := r.Overrides[provider]; ok {
		return d
	}
	return r.MinDelay
}

// EnabledPipelines returns the enabled pipeline names in execution order.
func (c *Config) EnabledPipelines() []string {
	var names []string
	for _, name := range PipelineNames {
		if c.Pipelines[name].Enabled {
			names = append(names, name)
		}
	}
	return names
}

// CheckCredentials reports the first missing API key needed by the given
// stages ("fetch" or a pipeline name).
func (c *Config) CheckCredentials(stages ...string) error {
	for _, s := range stages {
		switch s {
		case "fetch":
			if c.JobsProvider.APIKey != "" {
				continue
			}
			for _, company := range c.Companies {
				if company.GreenhouseBoard == "" {
					return fmt.Errorf("jobs_provider.api_key (or MANTIKS_API_KEY) is required to fetch jobs for %s", company.Name)
				}
			}
		case PipelineJobs, PipelineTrends:
			if c.AI.APIKey == "" {
				return fmt.Errorf("ai.api_key (or OPENAI_API_KEY) is required by the %s pipeline", s)
			}
		case PipelineNews, PipelineInterviews:
			if c.AI.APIKey == "" {
				return fmt.Errorf("ai.api_key (or OPENAI_API_KEY) is required by the %s pipeline", s)
			}
			if c.Search.APIKey == "" {
				return fmt.Errorf("search.api_key (or PERPLEXITY_API_KEY) is required by the %s pipeline", s)
			}
		}
	}
	return nil
}

// defaultFlushEvery is the checkpoint cadence per pipeline: cheap items flush
// less often than slow two-step searches.
var defaultFlushEvery = map[string]int{
	PipelineJobs:       5,
	PipelineTrends:     2,
	PipelineNews:       1,
	PipelineInterviews: 1,
}

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	Input        string                         `yaml:"input"`
	ExportPath   string                         `yaml:"export_path"`
	Companies    []model.Company                `yaml:"companies"`
	JobsProvider rawJobsProviderConfig          `yaml:"jobs_provider"`
	AI           rawProviderConfig              `yaml:"ai"`
	Search       rawProviderConfig              `yaml:"search"`
	Product      string                         `yaml:"product"`
	Pipeline     rawPipelineConfig              `yaml:"pipeline"`
	Pipelines    map[string]rawPipelineSettings `yaml:"pipelines"`
	Checkpoint   rawCheckpointConfig            `yaml:"checkpoint"`
	History      rawHistoryConfig               `yaml:"history"`
	Filters      rawFilterConfig                `yaml:"filters"`
	Notification NotificationConfig             `yaml:"notification"`
	Server       ServerConfig                   `yaml:"server"`
	Schedule     rawScheduleConfig              `yaml:"schedule"`
	RateLimit    rawRateLimitConfig             `yaml:"rate_limit"`
}

type rawJobsProviderConfig struct {
	BaseURL           string   `yaml:"base_url"`
	GreenhouseBaseURL string   `yaml:"greenhouse_base_url"`
	APIKey            string   `yaml:"api_key"`
	Keywords          []string `yaml:"keywords"`
	AgeInDays         int      `yaml:"age_in_days"`
	Timeout           string   `yaml:"timeout"`
}

type rawProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

type rawPipelineConfig struct {
	Concurrency    *int   `yaml:"concurrency"`
	MaxRetries     *int   `yaml:"max_retries"`
	RetryBaseDelay string `yaml:"retry_base_delay"`
	CallTimeout    string `yaml:"call_timeout"`
	TopLeads       int    `yaml:"top_leads"`
}

type rawPipelineSettings struct {
	Enabled    *bool  `yaml:"enabled"`
	FlushEvery int    `yaml:"flush_every"`
	File       string `yaml:"file"`
}

type rawCheckpointConfig struct {
	Backend    string      `yaml:"backend"`
	Dir        string      `yaml:"dir"`
	SQLitePath string      `yaml:"sqlite_path"`
	Redis      RedisConfig `yaml:"redis"`
}

type rawHistoryConfig struct {
	Enabled   *bool  `yaml:"enabled"`
	Retention string `yaml:"retention"`
}

type rawFilterConfig struct {
	TitleKeywords        []string `yaml:"title_keywords"`
	TitleExcludeKeywords []string `yaml:"title_exclude_keywords"`
	Locations            []string `yaml:"locations"`
	ExcludeLocations     []string `yaml:"exclude_locations"`
	MinDescription       int      `yaml:"min_description"`
}

type rawScheduleConfig struct {
	Interval string `yaml:"interval"`
	Fetch    bool   `yaml:"fetch"`
	Pause    string `yaml:"pause"`
}

type rawRateLimitConfig struct {
	MinDelay  string            `yaml:"min_delay"`
	Overrides map[string]string `yaml:"overrides"`
}

// envOverrides are read from the process environment after the file; a set
// variable wins over the file value.
type envOverrides struct {
	OpenAIKey     string `env:"OPENAI_API_KEY"`
	PerplexityKey string `env:"PERPLEXITY_API_KEY"`
	MantiksKey    string `env:"MANTIKS_API_KEY"`
	SlackWebhook  string `env:"LEADRADAR_SLACK_WEBHOOK"`
	RedisAddr     string `env:"LEADRADAR_REDIS_ADDR"`
}

// Load reads and parses the YAML config file at path, applies environment
// overrides, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg, err := build(raw)
	if err != nil {
		return nil, err
	}

	var env envOverrides
	if err := envconfig.Process(context.Background(), &env); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	applyEnv(cfg, env)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func build(raw rawConfig) (*Config, error) {
	cfg := &Config{
		Input:      orDefault(raw.Input, "jobs_data.json"),
		ExportPath: orDefault(raw.ExportPath, "public/data.json"),
		Companies:  raw.Companies,
		JobsProvider: JobsProviderConfig{
			BaseURL:           orDefault(raw.JobsProvider.BaseURL, jobs.DefaultMantiksBaseURL),
			GreenhouseBaseURL: orDefault(raw.JobsProvider.GreenhouseBaseURL, jobs.DefaultGreenhouseBaseURL),
			APIKey:            raw.JobsProvider.APIKey,
			Keywords:          raw.JobsProvider.Keywords,
			AgeInDays:         raw.JobsProvider.AgeInDays,
		},
		AI: ProviderConfig{
			BaseURL: orDefault(raw.AI.BaseURL, ai.DefaultOpenAIBaseURL),
			APIKey:  raw.AI.APIKey,
			Model:   orDefault(raw.AI.Model, ai.DefaultOpenAIModel),
		},
		Search: ProviderConfig{
			BaseURL: orDefault(raw.Search.BaseURL, ai.DefaultPerplexityBaseURL),
			APIKey:  raw.Search.APIKey,
			Model:   orDefault(raw.Search.Model, ai.DefaultPerplexityModel),
		},
		Product: orDefault(strings.TrimSpace(raw.Product), analysis.DefaultProduct),
		Pipeline: PipelineConfig{
			Concurrency: 25,
			MaxRetries:  2,
			TopLeads:    raw.Pipeline.TopLeads,
		},
		Pipelines: make(map[string]PipelineSettings, len(PipelineNames)),
		Checkpoint: CheckpointConfig{
			Backend:    orDefault(raw.Checkpoint.Backend, BackendFile),
			Dir:        orDefault(raw.Checkpoint.Dir, "."),
			SQLitePath: orDefault(raw.Checkpoint.SQLitePath, "leadradar.db"),
			Redis:      raw.Checkpoint.Redis,
		},
		History: HistoryConfig{Enabled: true},
		Filters: FilterConfig{
			TitleKeywords:        raw.Filters.TitleKeywords,
			TitleExcludeKeywords: raw.Filters.TitleExcludeKeywords,
			Locations:            raw.Filters.Locations,
			ExcludeLocations:     raw.Filters.ExcludeLocations,
			MinDescription:       raw.Filters.MinDescription,
		},
		Notification: raw.Notification,
		Server:       ServerConfig{Addr: orDefault(raw.Server.Addr, ":8080")},
		Schedule:     ScheduleConfig{Fetch: raw.Schedule.Fetch},
		RateLimit:    RateLimitConfig{Overrides: make(map[string]time.Duration)},
	}
	if cfg.JobsProvider.AgeInDays == 0 {
		cfg.JobsProvider.AgeInDays = 90
	}
	if raw.Pipeline.Concurrency != nil {
		cfg.Pipeline.Concurrency = *raw.Pipeline.Concurrency
	}
	if raw.Pipeline.MaxRetries != nil {
		cfg.Pipeline.MaxRetries = *raw.Pipeline.MaxRetries
	}
	if raw.History.Enabled != nil {
		cfg.History.Enabled = *raw.History.Enabled
	}

	durations := []struct {
		name   string
		value  string
		def    time.Duration
		target *time.Duration
	}{
		{"jobs_provider.timeout", raw.JobsProvider.Timeout, 60 * time.Second, &cfg.JobsProvider.Timeout},
		{"ai.timeout", raw.AI.Timeout, 120 * time.Second, &cfg.AI.Timeout},
		{"search.timeout", raw.Search.Timeout, 120 * time.Second, &cfg.Search.Timeout},
		{"pipeline.retry_base_delay", raw.Pipeline.RetryBaseDelay, 2 * time.Second, &cfg.Pipeline.RetryBaseDelay},
		{"pipeline.call_timeout", raw.Pipeline.CallTimeout, 90 * time.Second, &cfg.Pipeline.CallTimeout},
		{"history.retention", raw.History.Retention, 0, &cfg.History.Retention},
		{"schedule.interval", raw.Schedule.Interval, 0, &cfg.Schedule.Interval},
		{"schedule.pause", raw.Schedule.Pause, 0, &cfg.Schedule.Pause},
		{"rate_limit.min_delay", raw.RateLimit.MinDelay, 0, &cfg.RateLimit.MinDelay},
	}
	for _, d := range durations {
		*d.target = d.def
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("parse %s %q: %w", d.name, d.value, err)
		}
		*d.target = v
	}

	for provider, v := range raw.RateLimit.Overrides {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse rate_limit.overrides[%q]: %w", provider, err)
		}
		cfg.RateLimit.Overrides[provider] = d
	}

	for name := range raw.Pipelines {
		if defaultFlushEvery[name] == 0 {
			return nil, fmt.Errorf("pipelines: unknown pipeline %q (want one of %s)", name, strings.Join(PipelineNames, ", "))
		}
	}
	for _, name := range PipelineNames {
		r := raw.Pipelines[name]
		s := PipelineSettings{
			Enabled:    true,
			FlushEvery: defaultFlushEvery[name],
			File:       orDefault(r.File, name+"_analysis.json"),
		}
		if r.Enabled != nil {
			s.Enabled = *r.Enabled
		}
		if r.FlushEvery != 0 {
			s.FlushEvery = r.FlushEvery
		}
		cfg.Pipelines[name] = s
	}

	return cfg, nil
}

func applyEnv(cfg *Config, env envOverrides) {
	if env.OpenAIKey != "" {
		cfg.AI.APIKey = env.OpenAIKey
	}
	if env.PerplexityKey != "" {
		cfg.Search.APIKey = env.PerplexityKey
	}
	if env.MantiksKey != "" {
		cfg.JobsProvider.APIKey = env.MantiksKey
	}
	if env.SlackWebhook != "" {
		cfg.Notification.Type = "slack"
		cfg.Notification.WebhookURL = env.SlackWebhook
	}
	if env.RedisAddr != "" {
		cfg.Checkpoint.Redis.Addr = env.RedisAddr
	}
}

func validate(cfg *Config) error {
	if cfg.Pipeline.Concurrency < 1 {
		return fmt.Errorf("pipeline.concurrency must be at least 1, got %d", cfg.Pipeline.Concurrency)
	}
	if cfg.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline.max_retries must not be negative, got %d", cfg.Pipeline.MaxRetries)
	}
	if cfg.Pipeline.CallTimeout <= 0 {
		return fmt.Errorf("pipeline.call_timeout must be positive, got %v", cfg.Pipeline.CallTimeout)
	}
	if cfg.Pipeline.TopLeads < 0 {
		return fmt.Errorf("pipeline.top_leads must not be negative, got %d", cfg.Pipeline.TopLeads)
	}
	for _, name := range PipelineNames {
		if s := cfg.Pipelines[name]; s.FlushEvery < 1 {
			return fmt.Errorf("pipelines.%s.flush_every must be at least 1, got %d", name, s.FlushEvery)
		}
	}
	if cfg.Schedule.Interval < 0 || cfg.Schedule.Pause < 0 {
		return fmt.Errorf("schedule.interval and schedule.pause must not be negative")
	}

	seen := make(map[string]bool, len(cfg.Companies))
	for i, c := range cfg.Companies {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("companies[%d]: name is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("companies: duplicate company %q", c.Name)
		}
		seen[c.Name] = true
	}

	switch cfg.Checkpoint.Backend {
	case BackendFile, BackendSQLite:
	case BackendRedis:
		if cfg.Checkpoint.Redis.Addr == "" {
			return fmt.Errorf("checkpoint.redis.addr (or LEADRADAR_REDIS_ADDR) is required when backend is \"redis\"")
		}
	default:
		return fmt.Errorf("checkpoint.backend must be file, sqlite or redis, got %q", cfg.Checkpoint.Backend)
	}

	switch cfg.Notification.Type {
	case "", "log":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	default:
		return fmt.Errorf("notification.type must be log or slack, got %q", cfg.Notification.Type)
	}

	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
