// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Feedback, Catalog, Index, Adjust, Keywords, Encoder,
// Postgres, Kafka, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Feedback  FeedbackConfig  `yaml:"feedback"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Index     IndexConfig     `yaml:"index"`
	Adjust    AdjustConfig    `yaml:"adjust"`
	Keywords  KeywordsConfig  `yaml:"keywords"`
	Encoder   EncoderConfig   `yaml:"encoder"`
	Recommend RecommendConfig `yaml:"recommend"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// WriteRatePerMinute limits feedback and reindex calls per client; zero
	// disables the limit.
	WriteRatePerMinute int `yaml:"writeRatePerMinute"`
	WriteBurst         int `yaml:"writeBurst"`
}

// Feedback backends.
const (
	FeedbackBackendCSV      = "csv"
	FeedbackBackendPostgres = "postgres"
)

// FeedbackConfig selects where user judgments are appended and read from.
type FeedbackConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// CatalogConfig points at the read-only movie catalog.
type CatalogConfig struct {
	Path      string `yaml:"path"`
	TopRatedN int    `yaml:"topRatedN"`
}

// IndexConfig locates the published vector index file.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// Matcher strategies for keyword-to-item matching.
const (
	MatcherSubstring = "substring"
	MatcherTrigram   = "trigram"
)

// AdjustConfig controls the feedback aggregation step.
type AdjustConfig struct {
	PenaltyRate    float64 `yaml:"penaltyRate"`
	BoostRate      float64 `yaml:"boostRate"`
	KeywordTopN    int     `yaml:"keywordTopN"`
	Matcher        string  `yaml:"matcher"`
	ExtractWorkers int     `yaml:"extractWorkers"`
	RecordRuns     bool    `yaml:"recordRuns"`
}

// Keyword extraction providers.
const (
	KeywordsStatistical = "statistical"
	KeywordsHTTP        = "http"
)

// KeywordsConfig selects the keyword extractor implementation.
type KeywordsConfig struct {
	Provider string        `yaml:"provider"`
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// EncoderConfig points at the external query-encoder service.
type EncoderConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RecommendConfig bounds the number of recommendations per query.
type RecommendConfig struct {
	DefaultTopN int `yaml:"defaultTopN"`
	MaxTopN     int `yaml:"maxTopN"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	FeedbackEvents string `yaml:"feedbackEvents"`
	IndexRebuilt   string `yaml:"indexRebuilt"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. A missing file at the default location is not an error; the
// defaults are used instead.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		case os.IsNotExist(err) && path == DefaultPath:
		default:
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPath is the config file looked up when no -config flag is given.
const DefaultPath = "configs/development.yaml"

// Validate rejects settings that would break the aggregation invariants.
func (c *Config) Validate() error {
	if c.Adjust.PenaltyRate < 0 || c.Adjust.PenaltyRate >= 1 {
		return fmt.Errorf("adjust.penaltyRate must be in [0, 1), got %v", c.Adjust.PenaltyRate)
	}
	if c.Adjust.BoostRate < 0 || c.Adjust.BoostRate >= 1 {
		return fmt.Errorf("adjust.boostRate must be in [0, 1), got %v", c.Adjust.BoostRate)
	}
	if c.Adjust.KeywordTopN < 1 {
		return fmt.Errorf("adjust.keywordTopN must be positive, got %d", c.Adjust.KeywordTopN)
	}
	switch c.Adjust.Matcher {
	case MatcherSubstring, MatcherTrigram:
	default:
		return fmt.Errorf("adjust.matcher must be %q or %q, got %q", MatcherSubstring, MatcherTrigram, c.Adjust.Matcher)
	}
	switch c.Feedback.Backend {
	case FeedbackBackendCSV:
		if c.Feedback.Path == "" {
			return fmt.Errorf("feedback.path is required for the csv backend")
		}
	case FeedbackBackendPostgres:
	default:
		return fmt.Errorf("feedback.backend must be %q or %q, got %q", FeedbackBackendCSV, FeedbackBackendPostgres, c.Feedback.Backend)
	}
	switch c.Keywords.Provider {
	case KeywordsStatistical:
	case KeywordsHTTP:
		if c.Keywords.URL == "" {
			return fmt.Errorf("keywords.url is required for the http provider")
		}
	default:
		return fmt.Errorf("keywords.provider must be %q or %q, got %q", KeywordsStatistical, KeywordsHTTP, c.Keywords.Provider)
	}
	if c.Index.Path == "" {
		return fmt.Errorf("index.path is required")
	}
	if c.Recommend.DefaultTopN < 1 || c.Recommend.MaxTopN < c.Recommend.DefaultTopN {
		return fmt.Errorf("recommend.defaultTopN must be in [1, maxTopN]")
	}
	return nil
}

// defaultConfig returns a Config with the file layout of a local checkout:
// everything lives under ./data.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               8080,
			ReadTimeout:        30 * time.Second,
			WriteTimeout:       60 * time.Second,
			ShutdownTimeout:    15 * time.Second,
			WriteRatePerMinute: 30,
			WriteBurst:         10,
		},
		Feedback: FeedbackConfig{
			Backend: FeedbackBackendCSV,
			Path:    "data/feedback.csv",
		},
		Catalog: CatalogConfig{
			Path:      "data/movies_metadata_clean.csv",
			TopRatedN: 50,
		},
		Index: IndexConfig{
			Path: "data/my_custom_dataset/embeddings.vidx",
		},
		Adjust: AdjustConfig{
			PenaltyRate:    0.05,
			BoostRate:      0.05,
			KeywordTopN:    3,
			Matcher:        MatcherSubstring,
			ExtractWorkers: 4,
		},
		Keywords: KeywordsConfig{
			Provider: KeywordsStatistical,
			Timeout:  10 * time.Second,
			CacheTTL: 24 * time.Hour,
		},
		Encoder: EncoderConfig{
			URL:     "http://localhost:8090/encode",
			Timeout: 5 * time.Second,
		},
		Recommend: RecommendConfig{
			DefaultTopN: 5,
			MaxTopN:     10,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "recommender",
			User:            "recommender",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "recommender-group",
			Topics: KafkaTopics{
				FeedbackEvents: "feedback-events",
				IndexRebuilt:   "index.rebuilt",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads RR_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RR_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RR_FEEDBACK_BACKEND"); v != "" {
		cfg.Feedback.Backend = v
	}
	if v := os.Getenv("RR_FEEDBACK_PATH"); v != "" {
		cfg.Feedback.Path = v
	}
	if v := os.Getenv("RR_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("RR_INDEX_PATH"); v != "" {
		cfg.Index.Path = v
	}
	if v := os.Getenv("RR_ADJUST_PENALTY_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Adjust.PenaltyRate = rate
		}
	}
	if v := os.Getenv("RR_ADJUST_BOOST_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Adjust.BoostRate = rate
		}
	}
	if v := os.Getenv("RR_ADJUST_MATCHER"); v != "" {
		cfg.Adjust.Matcher = v
	}
	if v := os.Getenv("RR_KEYWORDS_PROVIDER"); v != "" {
		cfg.Keywords.Provider = v
	}
	if v := os.Getenv("RR_KEYWORDS_URL"); v != "" {
		cfg.Keywords.URL = v
	}
	if v := os.Getenv("RR_ENCODER_URL"); v != "" {
		cfg.Encoder.URL = v
	}
	if v := os.Getenv("RR_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("RR_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("RR_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("RR_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("RR_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("RR_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("RR_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("RR_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("RR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RR_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
