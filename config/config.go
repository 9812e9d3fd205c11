package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/shelfscout/backend/internal/domain"
	"github.com/shelfscout/backend/internal/usecase"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig          `mapstructure:"server"`
	Logging    LoggingConfig         `mapstructure:"logging"`
	Pipeline   PipelineConfig        `mapstructure:"pipeline"`
	Currency   CurrencyConfig        `mapstructure:"currency"`
	Categories usecase.RuleSet       `mapstructure:"categories"`
	Sources    []domain.SourceConfig `mapstructure:"sources"`
	Feed       FeedConfig            `mapstructure:"feed"`
	Storage    StorageConfig         `mapstructure:"storage"`
	Export     ExportConfig          `mapstructure:"export"`
	Ranking    RankingConfig         `mapstructure:"ranking"`
	RateLimit  RateLimitConfig       `mapstructure:"ratelimit"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

// PipelineConfig holds the reconciliation and scoring knobs
type PipelineConfig struct {
	Workers             int                  `mapstructure:"workers"`
	SimilarityThreshold float64              `mapstructure:"similarity_threshold"`
	PriceTolerance      float64              `mapstructure:"price_tolerance"`
	AmbiguityTolerance  float64              `mapstructure:"ambiguity_tolerance"`
	Markup              float64              `mapstructure:"markup"`
	PricePrecision      int32                `mapstructure:"price_precision"`
	Weights             usecase.ScoreWeights `mapstructure:"weights"`
	OnSaleBonus         float64              `mapstructure:"on_sale_bonus"`
	OutOfStockPenalty   float64              `mapstructure:"out_of_stock_penalty"`
	WorkingCurrency     string               `mapstructure:"working_currency"`
	DedupOrder          string               `mapstructure:"dedup_order"`
	ExampleLimit        int                  `mapstructure:"example_limit"`
	KnownBrands         []string             `mapstructure:"known_brands"`
}

// CurrencyConfig holds conversion rates into the working currency.
// Rates are kept as text so they convert to decimals without float rounding.
type CurrencyConfig struct {
	Rates map[string]string `mapstructure:"rates"`
}

// FeedConfig holds HTTP feed source configuration
type FeedConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	MaxRetries        int           `mapstructure:"max_retries"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// StorageConfig holds snapshot storage configuration
type StorageConfig struct {
	Type         string        `mapstructure:"type"` // "memory" or "sqlite"
	SQLitePath   string        `mapstructure:"sqlite_path"`
	SnapshotTTL  time.Duration `mapstructure:"snapshot_ttl"`
	Capacity     int           `mapstructure:"capacity"`
	HistoryLimit int           `mapstructure:"history_limit"`
}

// ExportConfig holds scored product export configuration. Empty targets are disabled.
type ExportConfig struct {
	CSVDir         string `mapstructure:"csv_dir"` // directory receiving one scored-<run>.csv per run
	PostgresDSN    string `mapstructure:"postgres_dsn"`
	PostgresSchema string `mapstructure:"postgres_schema"`
	BatchSize      int    `mapstructure:"batch_size"`
}

// RankingConfig holds ranking query defaults
type RankingConfig struct {
	DefaultTopK int `mapstructure:"default_top_k"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute
}

// Load loads configuration from .env, config files and environment variables
func Load() (*Config, error) {
	return load("")
}

// LoadFile loads configuration from an explicit config file path
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	// .env is optional; values already in the environment win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/shelfscout/")
	}

	// Environment variable settings
	v.SetEnvPrefix("SHELFSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional unless a path was given)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	enableUnsetSources(v, config.Sources)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Pipeline defaults
	def := usecase.DefaultPipelineConfig()
	v.SetDefault("pipeline.workers", def.Workers)
	v.SetDefault("pipeline.similarity_threshold", def.SimilarityThreshold)
	v.SetDefault("pipeline.price_tolerance", def.PriceTolerance)
	v.SetDefault("pipeline.ambiguity_tolerance", def.AmbiguityTolerance)
	v.SetDefault("pipeline.markup", def.Markup)
	v.SetDefault("pipeline.price_precision", def.PricePrecision)
	v.SetDefault("pipeline.weights.rating", def.Weights.Rating)
	v.SetDefault("pipeline.weights.reviews", def.Weights.Reviews)
	v.SetDefault("pipeline.weights.sources", def.Weights.Sources)
	v.SetDefault("pipeline.on_sale_bonus", def.OnSaleBonus)
	v.SetDefault("pipeline.out_of_stock_penalty", def.OutOfStockPenalty)
	v.SetDefault("pipeline.working_currency", def.WorkingCurrency)
	v.SetDefault("pipeline.dedup_order", def.DedupOrder)
	v.SetDefault("pipeline.example_limit", def.ExampleLimit)

	// Categories default to the built-in taxonomy when no rules are configured
	v.SetDefault("categories.version", def.Rules.Version)

	// Feed defaults
	v.SetDefault("feed.timeout", "30s")
	v.SetDefault("feed.requests_per_second", 2)
	v.SetDefault("feed.burst", 4)
	v.SetDefault("feed.max_retries", 3)
	v.SetDefault("feed.user_agent", "ShelfScout/1.0")

	// Storage defaults
	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.sqlite_path", "data/shelfscout.db")
	v.SetDefault("storage.snapshot_ttl", "0s") // keep until evicted
	v.SetDefault("storage.capacity", 50)
	v.SetDefault("storage.history_limit", 20)

	// Export defaults
	v.SetDefault("export.csv_dir", "")
	v.SetDefault("export.postgres_dsn", "")
	v.SetDefault("export.postgres_schema", "public")
	v.SetDefault("export.batch_size", 200)

	v.SetDefault("ranking.default_top_k", 5)

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 100)
}

// enableUnsetSources turns on every source entry that has no enabled key.
// List entries get no viper defaults, so the raw entries are inspected.
func enableUnsetSources(v *viper.Viper, sources []domain.SourceConfig) {
	raw, _ := v.Get("sources").([]any)
	for i := range sources {
		if i >= len(raw) {
			return
		}
		entry, ok := raw[i].(map[string]any)
		if !ok {
			continue
		}
		if _, set := entry["enabled"]; !set {
			sources[i].Enabled = true
		}
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if f := config.Logging.Format; f != "console" && f != "json" {
		return fmt.Errorf("logging format must be 'console' or 'json', got: %s", f)
	}

	if config.Storage.Type != "memory" && config.Storage.Type != "sqlite" {
		return fmt.Errorf("storage type must be 'memory' or 'sqlite', got: %s", config.Storage.Type)
	}

	if config.Storage.Type == "sqlite" && strings.TrimSpace(config.Storage.SQLitePath) == "" {
		return fmt.Errorf("sqlite path is required when storage type is 'sqlite'")
	}

	if config.Ranking.DefaultTopK <= 0 {
		return fmt.Errorf("ranking default_top_k must be positive, got: %d", config.Ranking.DefaultTopK)
	}

	seen := make(map[string]bool, len(config.Sources))
	for i, src := range config.Sources {
		if strings.TrimSpace(src.Name) == "" {
			return fmt.Errorf("source %d has no name", i)
		}
		if seen[src.Name] {
			return fmt.Errorf("duplicate source name: %s", src.Name)
		}
		seen[src.Name] = true

		switch src.Kind {
		case "feed":
			if src.URL == "" {
				return fmt.Errorf("feed source %s requires a url", src.Name)
			}
		case "file":
			if src.Path == "" {
				return fmt.Errorf("file source %s requires a path", src.Name)
			}
		default:
			return fmt.Errorf("source %s kind must be 'feed' or 'file', got: %s", src.Name, src.Kind)
		}
	}

	if len(config.Categories.Rules) > 0 {
		if err := config.Categories.Validate(); err != nil {
			return err
		}
	}

	pipelineCfg, err := config.PipelineSettings()
	if err != nil {
		return err
	}
	return pipelineCfg.Validate()
}

// PipelineSettings converts the pipeline, currency and category sections into
// the usecase pipeline configuration
func (c *Config) PipelineSettings() (usecase.PipelineConfig, error) {
	rates := make(domain.RateTable, len(c.Currency.Rates))
	for code, text := range c.Currency.Rates {
		rate, err := decimal.NewFromString(strings.TrimSpace(text))
		if err != nil {
			return usecase.PipelineConfig{}, fmt.Errorf("%w: rate for %s: %v", domain.ErrInvalidConfig, code, err)
		}
		// viper lowercases map keys
		rates[strings.ToUpper(code)] = rate
	}

	rules := c.Categories
	if len(rules.Rules) == 0 {
		rules = usecase.DefaultRuleSet()
	}

	p := c.Pipeline
	return usecase.PipelineConfig{
		Workers:             p.Workers,
		SimilarityThreshold: p.SimilarityThreshold,
		PriceTolerance:      p.PriceTolerance,
		AmbiguityTolerance:  p.AmbiguityTolerance,
		Markup:              p.Markup,
		PricePrecision:      p.PricePrecision,
		Weights:             p.Weights,
		OnSaleBonus:         p.OnSaleBonus,
		OutOfStockPenalty:   p.OutOfStockPenalty,
		DedupOrder:          p.DedupOrder,
		ExampleLimit:        p.ExampleLimit,
		KnownBrands:         p.KnownBrands,
		WorkingCurrency:     strings.ToUpper(p.WorkingCurrency),
		Rates:               rates,
		Rules:               rules,
	}, nil
}
