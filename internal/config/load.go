package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables take precedence over values from the
// config file. Returns a populated Config struct or an error if
// loading or validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file in the working directory.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables with SHOWHN_ prefix, e.g.
	// SHOWHN_DATABASE_URL, SHOWHN_JUDGE_GEMINI_API_KEY.
	v.SetEnvPrefix("SHOWHN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for every tunable so a bare environment
// with only database URL and API key set still produces a valid config.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.log_level", "info")

	v.SetDefault("worker.batch_size", 5)
	v.SetDefault("worker.poll_interval", 5*time.Second)
	v.SetDefault("worker.stats_interval", time.Minute)
	v.SetDefault("worker.stale_timeout", 5*time.Minute)
	v.SetDefault("worker.judge_pacing", 2*time.Second)
	v.SetDefault("worker.visual_pacing", time.Second)

	v.SetDefault("acquire.content_max_chars", 8000)
	v.SetDefault("acquire.fetch_concurrency", 4)
	v.SetDefault("acquire.fetch_timeout", 10*time.Second)
	v.SetDefault("acquire.navigate_timeout", 15*time.Second)
	v.SetDefault("acquire.settle_timeout", 5*time.Second)
	v.SetDefault("acquire.settle_delay", 2*time.Second)

	v.SetDefault("capture.dir", "screenshots")
	v.SetDefault("capture.viewport_width", 1280)
	v.SetDefault("capture.viewport_height", 800)
	v.SetDefault("capture.thumbnail_width", 500)
	v.SetDefault("capture.jpeg_quality", 70)
	v.SetDefault("capture.retry_delay", 3*time.Second)

	v.SetDefault("judge.model_name", "gemini-2.0-flash")
	v.SetDefault("judge.batch_timeout", 60*time.Second)
	v.SetDefault("judge.single_timeout", 30*time.Second)
}
