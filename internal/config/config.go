// Package config provides configuration management for the acquisition service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the acquisition service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings for the job registry.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Storage contains on-disk artifact layout settings.
	Storage StorageConfig `mapstructure:"storage"`
	// Pipeline contains orchestrator settings.
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	// Sources contains academic source API configurations.
	Sources SourcesConfig `mapstructure:"sources"`
	// Downloader contains PDF download settings.
	Downloader DownloaderConfig `mapstructure:"downloader"`
	// Extractor contains PDF text extraction settings.
	Extractor ExtractorConfig `mapstructure:"extractor"`
	// Translator contains translation provider settings.
	Translator TranslatorConfig `mapstructure:"translator"`
	// Events contains optional Kafka progress event publishing settings.
	Events EventsConfig `mapstructure:"events"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading the request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing the response.
	// Streaming endpoints override this per connection.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// IdleTimeout is the keep-alive idle timeout.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password. Loaded only from the environment.
	Password string `mapstructure:"-"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open.
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a pooled connection.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum idle time of a pooled connection.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between idle connection health checks.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files.
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup.
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace is the prefix for all metric names.
	Namespace string `mapstructure:"namespace"`
}

// StorageConfig holds on-disk layout configuration.
type StorageConfig struct {
	// Root is the directory under which all job artifacts are written.
	// Every write is confined to <root>/<job_id>/.
	Root string `mapstructure:"root"`
}

// PipelineConfig holds orchestrator configuration.
type PipelineConfig struct {
	// MaxConcurrentJobs is the global cap on jobs running in parallel.
	MaxConcurrentJobs int `mapstructure:"max_concurrent_jobs"`
	// MaxPagesPerSource caps search pagination per source per job.
	MaxPagesPerSource int `mapstructure:"max_pages_per_source"`
	// PageSize is the number of records requested per search page.
	PageSize int `mapstructure:"page_size"`
}

// SourceConfig holds settings shared by all academic source clients.
type SourceConfig struct {
	// Enabled indicates whether this source may be selected by jobs.
	Enabled bool `mapstructure:"enabled"`
	// BaseURL overrides the source API base URL. Empty uses the source default.
	BaseURL string `mapstructure:"base_url"`
	// APIKey is the optional source API key. Loaded only from the environment.
	APIKey string `mapstructure:"-"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// MinRequestInterval is the minimum delay between successive pages.
	MinRequestInterval time.Duration `mapstructure:"min_request_interval"`
}

// SourcesConfig groups per-source configurations.
type SourcesConfig struct {
	PubMed          SourceConfig `mapstructure:"pubmed"`
	ArXiv           SourceConfig `mapstructure:"arxiv"`
	SemanticScholar SourceConfig `mapstructure:"semantic_scholar"`
}

// DownloaderConfig holds PDF download configuration.
type DownloaderConfig struct {
	// Timeout is the per-download HTTP timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxSizeBytes caps accepted PDF size. Oversize responses are skipped.
	MaxSizeBytes int64 `mapstructure:"max_size_bytes"`
	// MaxConcurrent bounds in-flight downloads per job.
	MaxConcurrent int64 `mapstructure:"max_concurrent"`
	// MaxAttempts is the total attempts per paper on transient failures.
	MaxAttempts int `mapstructure:"max_attempts"`
	// UserAgent is the User-Agent header sent with download requests.
	UserAgent string `mapstructure:"user_agent"`
}

// ExtractorConfig holds text extraction configuration.
type ExtractorConfig struct {
	// MaxPages caps extraction to the first N pages of a PDF.
	MaxPages int `mapstructure:"max_pages"`
}

// TranslatorConfig holds translation provider configuration.
type TranslatorConfig struct {
	// Endpoint is the translation provider HTTP endpoint.
	Endpoint string `mapstructure:"endpoint"`
	// APIKey is the optional provider key. Loaded only from the environment.
	APIKey string `mapstructure:"-"`
	// Timeout is the per-chunk request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// ChunkSize is the maximum characters submitted per request.
	ChunkSize int `mapstructure:"chunk_size"`
	// MinCallInterval is the minimum delay between chunk submissions.
	MinCallInterval time.Duration `mapstructure:"min_call_interval"`
	// MaxRetries is retries per chunk on transient errors.
	MaxRetries int `mapstructure:"max_retries"`
}

// EventsConfig holds optional Kafka publishing for progress events.
type EventsConfig struct {
	// KafkaEnabled enables mirroring progress events to a Kafka topic.
	KafkaEnabled bool `mapstructure:"kafka_enabled"`
	// KafkaBrokers is the broker address list.
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	// KafkaTopic is the topic progress events are published to.
	KafkaTopic string `mapstructure:"kafka_topic"`
}

// Load reads configuration from defaults, an optional config file and
// LITPIPE_-prefixed environment variables, then validates it.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("LITPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/acquisition-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK; env vars and defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Secrets are loaded exclusively from environment variables.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates fields that must never come from config files.
func loadSecrets(cfg *Config) {
	cfg.Database.Password = os.Getenv("LITPIPE_DATABASE_PASSWORD")
	cfg.Sources.PubMed.APIKey = os.Getenv("LITPIPE_SOURCES_PUBMED_API_KEY")
	cfg.Sources.SemanticScholar.APIKey = os.Getenv("LITPIPE_SOURCES_SEMANTIC_SCHOLAR_API_KEY")
	cfg.Translator.APIKey = os.Getenv("LITPIPE_TRANSLATOR_API_KEY")
}

// setDefaults applies default values for all settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "litpipe")
	v.SetDefault("database.name", "acquisition_service")
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "1m")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "litpipe")

	v.SetDefault("storage.root", "./data/papers")

	v.SetDefault("pipeline.max_concurrent_jobs", 2)
	v.SetDefault("pipeline.max_pages_per_source", 10)
	v.SetDefault("pipeline.page_size", 20)

	v.SetDefault("sources.pubmed.enabled", true)
	v.SetDefault("sources.pubmed.timeout", "30s")
	v.SetDefault("sources.pubmed.min_request_interval", "500ms")
	v.SetDefault("sources.arxiv.enabled", true)
	v.SetDefault("sources.arxiv.timeout", "30s")
	v.SetDefault("sources.arxiv.min_request_interval", "500ms")
	v.SetDefault("sources.semantic_scholar.enabled", true)
	v.SetDefault("sources.semantic_scholar.timeout", "30s")
	v.SetDefault("sources.semantic_scholar.min_request_interval", "500ms")

	v.SetDefault("downloader.timeout", "30s")
	v.SetDefault("downloader.max_size_bytes", 50*1024*1024)
	v.SetDefault("downloader.max_concurrent", 4)
	v.SetDefault("downloader.max_attempts", 3)
	v.SetDefault("downloader.user_agent", "SpinalSurgery-AcquisitionService/1.0")

	v.SetDefault("extractor.max_pages", 20)

	v.SetDefault("translator.endpoint", "")
	v.SetDefault("translator.timeout", "30s")
	v.SetDefault("translator.chunk_size", 4500)
	v.SetDefault("translator.min_call_interval", "500ms")
	v.SetDefault("translator.max_retries", 2)

	v.SetDefault("events.kafka_enabled", false)
	v.SetDefault("events.kafka_topic", "acquisition.progress")
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Storage.Root == "" {
		return fmt.Errorf("storage root is required")
	}

	if c.Pipeline.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("pipeline max_concurrent_jobs must be positive")
	}
	if c.Pipeline.PageSize <= 0 {
		return fmt.Errorf("pipeline page_size must be positive")
	}

	if c.Downloader.MaxConcurrent <= 0 {
		return fmt.Errorf("downloader max_concurrent must be positive")
	}
	if c.Downloader.MaxAttempts <= 0 {
		return fmt.Errorf("downloader max_attempts must be positive")
	}

	if c.Extractor.MaxPages <= 0 {
		return fmt.Errorf("extractor max_pages must be positive")
	}

	if c.Translator.ChunkSize <= 0 {
		return fmt.Errorf("translator chunk_size must be positive")
	}
	if c.Translator.Endpoint != "" {
		if _, err := url.Parse(c.Translator.Endpoint); err != nil {
			return fmt.Errorf("invalid translator endpoint: %w", err)
		}
	}

	if c.Events.KafkaEnabled && len(c.Events.KafkaBrokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka publishing is enabled")
	}

	return nil
}

// HTTPAddress returns the host:port the HTTP server binds to.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}
