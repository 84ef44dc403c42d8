package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreMongo = "mongo"
	StoreBolt  = "bolt"
)

// Config holds everything the harvester needs for one run.
type Config struct {
	SourcesFile    string `mapstructure:"sources_file"`
	PublishersFile string `mapstructure:"publishers_file"`

	StoreBackend  string `mapstructure:"store_backend"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
	BoltPath      string `mapstructure:"bolt_path"`

	CountryConcurrency int `mapstructure:"country_concurrency"`
	URLConcurrency     int `mapstructure:"url_concurrency"`

	PageTimeout   time.Duration `mapstructure:"page_timeout"`
	SearchTimeout time.Duration `mapstructure:"search_timeout"`

	TwitterBearerToken string        `mapstructure:"twitter_bearer_token"`
	LookbackHours      int           `mapstructure:"lookback_hours"`
	RateLimitAttempts  int           `mapstructure:"rate_limit_attempts"`
	RateLimitBudget    time.Duration `mapstructure:"rate_limit_budget"`

	BreakerThreshold int `mapstructure:"breaker_threshold"`

	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	SummaryModel string `mapstructure:"summary_model"`
}

// Load reads configuration from an optional YAML file and HARVESTER_* env
// vars. Env wins over file, file over defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sources_file", "configs/sources.yaml")
	v.SetDefault("publishers_file", "")

	v.SetDefault("store_backend", StoreBolt)
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_database", "statewatch")
	v.SetDefault("bolt_path", "harvester.db")

	v.SetDefault("country_concurrency", 5)
	v.SetDefault("url_concurrency", 20)

	v.SetDefault("page_timeout", 8*time.Second)
	v.SetDefault("search_timeout", 30*time.Second)

	// Empty defaults keep the keys visible to AutomaticEnv during Unmarshal.
	v.SetDefault("twitter_bearer_token", "")
	v.SetDefault("openai_api_key", "")

	v.SetDefault("lookback_hours", 48)
	v.SetDefault("rate_limit_attempts", 5)
	v.SetDefault("rate_limit_budget", 15*time.Minute)

	v.SetDefault("breaker_threshold", 3)

	v.SetDefault("summary_model", "gpt-4o")
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case StoreMongo:
		if strings.TrimSpace(c.MongoURI) == "" {
			return fmt.Errorf("mongo_uri is required for the mongo store backend")
		}
	case StoreBolt:
		if strings.TrimSpace(c.BoltPath) == "" {
			return fmt.Errorf("bolt_path is required for the bolt store backend")
		}
	default:
		return fmt.Errorf("store_backend %q not supported", c.StoreBackend)
	}

	if c.CountryConcurrency <= 0 {
		return fmt.Errorf("country_concurrency must be positive")
	}
	if c.URLConcurrency <= 0 {
		return fmt.Errorf("url_concurrency must be positive")
	}
	if c.LookbackHours <= 0 {
		return fmt.Errorf("lookback_hours must be positive")
	}
	if c.RateLimitAttempts <= 0 {
		return fmt.Errorf("rate_limit_attempts must be positive")
	}
	if c.BreakerThreshold <= 0 {
		return fmt.Errorf("breaker_threshold must be positive")
	}
	return nil
}
