package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker" validate:"required"`
	Acquire  AcquireConfig  `mapstructure:"acquire" validate:"required"`
	Capture  CaptureConfig  `mapstructure:"capture" validate:"required"`
	Judge    JudgeConfig    `mapstructure:"judge" validate:"required"`
}

// ServerConfig contains process-level settings.
type ServerConfig struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// WorkerConfig tunes the polling worker loop and queue behavior.
type WorkerConfig struct {
	// BatchSize is the maximum number of tasks claimed per dequeue.
	BatchSize int `mapstructure:"batch_size" validate:"required,gt=0,lte=50"`

	// PollInterval is how long the loop sleeps when the queue is empty.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required"`

	// StatsInterval is how often stale tasks are reclaimed and queue
	// stats are logged.
	StatsInterval time.Duration `mapstructure:"stats_interval" validate:"required"`

	// StaleTimeout is the age at which a processing task is considered
	// abandoned by a crashed worker. Must exceed every single-operation
	// timeout or live work gets reclaimed.
	StaleTimeout time.Duration `mapstructure:"stale_timeout" validate:"required"`

	// Pacing delays throttle repeated operations of the same task type.
	JudgePacing  time.Duration `mapstructure:"judge_pacing"`
	VisualPacing time.Duration `mapstructure:"visual_pacing"`
}

// AcquireConfig tunes the content acquisition phase.
type AcquireConfig struct {
	// ContentMaxChars caps extracted page/readme text before judging.
	ContentMaxChars int `mapstructure:"content_max_chars" validate:"required,gt=0"`

	// FetchConcurrency bounds parallel fast-path acquisitions per batch.
	FetchConcurrency int `mapstructure:"fetch_concurrency" validate:"required,gt=0,lte=16"`

	// FetchTimeout applies to each plain HTTP fetch (page, metadata, readme).
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" validate:"required"`

	// NavigateTimeout bounds browser navigation to the load event.
	NavigateTimeout time.Duration `mapstructure:"navigate_timeout" validate:"required"`

	// SettleTimeout bounds the best-effort network-idle wait. The wait is
	// a heuristic; some sites never go idle and timing out here is normal.
	SettleTimeout time.Duration `mapstructure:"settle_timeout" validate:"required"`

	// SettleDelay is the fixed pause after navigation for hydration and
	// animations to finish.
	SettleDelay time.Duration `mapstructure:"settle_delay"`

	// GitHubToken optionally raises API rate limits. Empty means
	// unauthenticated access.
	GitHubToken string `mapstructure:"github_token"`
}

// CaptureConfig tunes the screenshot and thumbnail pipeline.
type CaptureConfig struct {
	// Dir is the directory screenshots and thumbnails are written to.
	Dir string `mapstructure:"dir" validate:"required"`

	ViewportWidth  int `mapstructure:"viewport_width" validate:"required,gt=0"`
	ViewportHeight int `mapstructure:"viewport_height" validate:"required,gt=0"`

	// ThumbnailWidth is the width thumbnails are resized to.
	ThumbnailWidth int `mapstructure:"thumbnail_width" validate:"required,gt=0"`

	// JPEGQuality is the thumbnail encode quality, 1-100.
	JPEGQuality int `mapstructure:"jpeg_quality" validate:"required,gte=1,lte=100"`

	// RetryDelay is the fixed backoff before the single capture retry.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// JudgeConfig contains all LLM integration related settings.
type JudgeConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name" validate:"required"`

	// BatchTimeout bounds the single batched judge call; SingleTimeout
	// bounds each per-subject fallback call.
	BatchTimeout  time.Duration `mapstructure:"batch_timeout" validate:"required"`
	SingleTimeout time.Duration `mapstructure:"single_timeout" validate:"required"`
}
