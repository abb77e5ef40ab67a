// Package config defines the research service configuration.
package config

import (
	"fmt"
	"slices"
	"time"

	infraconfig "github.com/jonesrussell/north-cloud/research/internal/infra/config"
	infralogger "github.com/jonesrussell/north-cloud/research/internal/infra/logger"
)

const (
	defaultServicePort      = 8095
	defaultServerTimeout    = 30 * time.Second
	defaultDatabasePort     = 5432
	defaultMaxOpenConns     = 25
	defaultMaxIdleConns     = 5
	defaultConnMaxLifetime  = 5 * time.Minute
	defaultRedisAddress     = "localhost:6379"
	defaultRedisStream      = "research-events"
	defaultSearchBaseURL    = "https://api.firecrawl.dev"
	defaultSearchTimeout    = 60 * time.Second
	defaultLLMProvider      = ProviderAnthropic
	defaultAnthropicModel   = "claude-sonnet-4-5"
	defaultGeminiModel      = "gemini-2.5-flash"
	defaultLLMMaxTokens     = 1024
	defaultLLMTimeout       = 60 * time.Second
	defaultConcurrency      = 1
	defaultSchedulerSpec    = "0 * * * *"
	maxPipelineConcurrency  = 16
	defaultCronSecretHeader = "X-Cron-Secret"
)

// LLM provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config is the root configuration.
type Config struct {
	Service   ServiceConfig      `yaml:"service"`
	Database  DatabaseConfig     `yaml:"database"`
	Auth      AuthConfig         `yaml:"auth"`
	Redis     RedisConfig        `yaml:"redis"`
	Search    SearchConfig       `yaml:"search"`
	LLM       LLMConfig          `yaml:"llm"`
	Pipeline  PipelineConfig     `yaml:"pipeline"`
	Scheduler SchedulerConfig    `yaml:"scheduler"`
	Logging   infralogger.Config `yaml:"logging"`
}

type ServiceConfig struct {
	Name         string        `yaml:"name"`
	Version      string        `yaml:"version"`
	Port         int           `env:"RESEARCH_PORT"         yaml:"port"`
	Debug        bool          `env:"APP_DEBUG"             yaml:"debug"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `env:"CORS_ORIGINS"          yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Host            string        `env:"POSTGRES_RESEARCH_HOST"     yaml:"host"`
	Port            int           `env:"POSTGRES_RESEARCH_PORT"     yaml:"port"`
	User            string        `env:"POSTGRES_RESEARCH_USER"     yaml:"user"`
	Password        string        `env:"POSTGRES_RESEARCH_PASSWORD" yaml:"password"`
	DBName          string        `env:"POSTGRES_RESEARCH_DB"       yaml:"dbname"`
	SSLMode         string        `env:"POSTGRES_RESEARCH_SSLMODE"  yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN returns the lib/pq keyword connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the postgres:// form used by golang-migrate.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// AuthConfig holds the shared secrets. Empty values leave the matching
// endpoints answering 503.
type AuthConfig struct {
	AdminToken       string `env:"RESEARCH_ADMIN_TOKEN" yaml:"admin_token"`
	CronSecret       string `env:"CRON_SECRET"          yaml:"cron_secret"`
	CronSecretHeader string `yaml:"cron_secret_header"`
	JWTSecret        string `env:"AUTH_JWT_SECRET"      yaml:"jwt_secret"`
}

type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS"        yaml:"address"`
	Password string `env:"REDIS_PASSWORD"       yaml:"password"`
	DB       int    `env:"REDIS_DB"             yaml:"db"`
	Stream   string `yaml:"stream"`
	Enabled  bool   `env:"REDIS_EVENTS_ENABLED" yaml:"enabled"`
}

// SearchConfig points at a Firecrawl-compatible search and scrape API.
type SearchConfig struct {
	BaseURL     string        `env:"FIRECRAWL_BASE_URL" yaml:"base_url"`
	APIKey      string        `env:"FIRECRAWL_API_KEY"  yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	IncludeHTML bool          `yaml:"include_html"`
}

type LLMConfig struct {
	Provider  string        `env:"LLM_PROVIDER"  yaml:"provider"`
	Model     string        `env:"LLM_MODEL"     yaml:"model"`
	APIKey    string        `env:"LLM_API_KEY"   yaml:"api_key"`
	BaseURL   string        `env:"LLM_BASE_URL"  yaml:"base_url"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

type PipelineConfig struct {
	// Concurrency bounds parallel source fetches within one query run.
	Concurrency int `env:"RESEARCH_CONCURRENCY" yaml:"concurrency"`
	// DropUndated makes the freshness filter discard results without a published date.
	DropUndated bool `yaml:"drop_undated"`
}

type SchedulerConfig struct {
	Enabled bool   `env:"RESEARCH_SCHEDULER_ENABLED" yaml:"enabled"`
	Spec    string `env:"RESEARCH_SCHEDULER_SPEC"    yaml:"spec"`
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	cfg, err := infraconfig.LoadWithDefaults(path, setDefaults)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("invalid config: %w", validateErr)
	}
	return cfg, nil
}

// Validate checks fields the service cannot start without. Missing API keys
// and tokens are not fatal; the affected operations report them at call time.
func (c *Config) Validate() error {
	if c.Service.Port <= 0 {
		return &infraconfig.ValidationError{Field: "service.port", Message: "must be positive"}
	}
	if c.Database.Host == "" {
		return &infraconfig.ValidationError{Field: "database.host", Message: "is required"}
	}
	if c.Database.User == "" {
		return &infraconfig.ValidationError{Field: "database.user", Message: "is required"}
	}
	if c.Database.DBName == "" {
		return &infraconfig.ValidationError{Field: "database.dbname", Message: "is required"}
	}
	if !slices.Contains([]string{ProviderAnthropic, ProviderGemini}, c.LLM.Provider) {
		return &infraconfig.ValidationError{Field: "llm.provider", Message: "must be anthropic or gemini"}
	}
	if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > maxPipelineConcurrency {
		return &infraconfig.ValidationError{
			Field:   "pipeline.concurrency",
			Message: fmt.Sprintf("must be between 1 and %d", maxPipelineConcurrency),
		}
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "research"
	}
	if cfg.Service.Version == "" {
		cfg.Service.Version = "dev"
	}
	if cfg.Service.Port == 0 {
		cfg.Service.Port = defaultServicePort
	}
	if cfg.Service.ReadTimeout == 0 {
		cfg.Service.ReadTimeout = defaultServerTimeout
	}
	if cfg.Service.WriteTimeout == 0 {
		// a crawl-source request runs a full fetch and score pass
		cfg.Service.WriteTimeout = 10 * defaultServerTimeout
	}
	if len(cfg.Service.CORSOrigins) == 0 {
		cfg.Service.CORSOrigins = []string{"http://localhost:3002"}
	}

	setDatabaseDefaults(&cfg.Database)

	if cfg.Auth.CronSecretHeader == "" {
		cfg.Auth.CronSecretHeader = defaultCronSecretHeader
	}
	if cfg.Redis.Address == "" {
		cfg.Redis.Address = defaultRedisAddress
	}
	if cfg.Redis.Stream == "" {
		cfg.Redis.Stream = defaultRedisStream
	}
	if cfg.Search.BaseURL == "" {
		cfg.Search.BaseURL = defaultSearchBaseURL
	}
	if cfg.Search.Timeout == 0 {
		cfg.Search.Timeout = defaultSearchTimeout
	}

	setLLMDefaults(&cfg.LLM)

	if cfg.Pipeline.Concurrency == 0 {
		cfg.Pipeline.Concurrency = defaultConcurrency
	}
	if cfg.Scheduler.Spec == "" {
		cfg.Scheduler.Spec = defaultSchedulerSpec
	}
}

func setDatabaseDefaults(db *DatabaseConfig) {
	if db.Port == 0 {
		db.Port = defaultDatabasePort
	}
	if db.SSLMode == "" {
		db.SSLMode = "disable"
	}
	if db.MaxOpenConns == 0 {
		db.MaxOpenConns = defaultMaxOpenConns
	}
	if db.MaxIdleConns == 0 {
		db.MaxIdleConns = defaultMaxIdleConns
	}
	if db.ConnMaxLifetime == 0 {
		db.ConnMaxLifetime = defaultConnMaxLifetime
	}
}

func setLLMDefaults(l *LLMConfig) {
	if l.Provider == "" {
		l.Provider = defaultLLMProvider
	}
	if l.Model == "" {
		switch l.Provider {
		case ProviderGemini:
			l.Model = defaultGeminiModel
		default:
			l.Model = defaultAnthropicModel
		}
	}
	if l.MaxTokens == 0 {
		l.MaxTokens = defaultLLMMaxTokens
	}
	if l.Timeout == 0 {
		l.Timeout = defaultLLMTimeout
	}
}
