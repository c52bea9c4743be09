// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Generation    GenerationConfig    `yaml:"generation" mapstructure:"generation"`
	Quota         QuotaConfig         `yaml:"quota" mapstructure:"quota"`
	Admission     AdmissionConfig     `yaml:"admission" mapstructure:"admission"`
	Retry         RetryConfig         `yaml:"retry" mapstructure:"retry"`
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate" mapstructure:"auto_migrate"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider" mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	FallbackChain   []string                  `yaml:"fallback_chain" mapstructure:"fallback_chain"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// GenerationConfig 生成流水线配置
type GenerationConfig struct {
	DefaultWordCount    int `yaml:"default_word_count" mapstructure:"default_word_count"`
	DefaultChapterCount int `yaml:"default_chapter_count" mapstructure:"default_chapter_count"`
	MinWordCount        int `yaml:"min_word_count" mapstructure:"min_word_count"`
	MaxWordCount        int `yaml:"max_word_count" mapstructure:"max_word_count"`
	MaxChapterCount     int `yaml:"max_chapter_count" mapstructure:"max_chapter_count"`
	MaxThemeRunes       int `yaml:"max_theme_runes" mapstructure:"max_theme_runes"`

	// DefaultTemperature 未按角色覆盖时使用
	DefaultTemperature float64 `yaml:"default_temperature" mapstructure:"default_temperature"`
	OutlineMaxTokens   int     `yaml:"outline_max_tokens" mapstructure:"outline_max_tokens"`
	ChapterMaxTokens   int     `yaml:"chapter_max_tokens" mapstructure:"chapter_max_tokens"`
	ReviewMaxTokens    int     `yaml:"review_max_tokens" mapstructure:"review_max_tokens"`

	MaxParseAttempts    int     `yaml:"max_parse_attempts" mapstructure:"max_parse_attempts"`
	ContextTailRunes    int     `yaml:"context_tail_runes" mapstructure:"context_tail_runes"`
	ContextDigestCount  int     `yaml:"context_digest_chapters" mapstructure:"context_digest_chapters"`
	ContextDigestRunes  int     `yaml:"context_digest_runes" mapstructure:"context_digest_runes"`
	ReviewThreshold     float64 `yaml:"review_threshold" mapstructure:"review_threshold"`
	MaxRevisions        int     `yaml:"max_revisions" mapstructure:"max_revisions"`
	PolishEnabled       bool    `yaml:"polish_enabled" mapstructure:"polish_enabled"`
	ReviewEnabled       bool    `yaml:"review_enabled" mapstructure:"review_enabled"`
	TokensPerWordFactor float64 `yaml:"tokens_per_word_factor" mapstructure:"tokens_per_word_factor"`
}

// QuotaConfig 按身份的配额配置
type QuotaConfig struct {
	Backend             string `yaml:"backend" mapstructure:"backend"` // memory/redis
	RequestsPerHour     int    `yaml:"requests_per_hour" mapstructure:"requests_per_hour"`
	DailyTokens         int64  `yaml:"daily_tokens" mapstructure:"daily_tokens"`
	MaxTokensPerRequest int64  `yaml:"max_tokens_per_request" mapstructure:"max_tokens_per_request"`
}

// AdmissionConfig 并发准入配置
type AdmissionConfig struct {
	MaxConcurrent int    `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	Backlog       int    `yaml:"backlog" mapstructure:"backlog"`
	Mode          string `yaml:"mode" mapstructure:"mode"` // reject/enqueue
}

// RetryConfig 模型调用重试配置
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	Base        time.Duration `yaml:"base" mapstructure:"base"`
	Cap         time.Duration `yaml:"cap" mapstructure:"cap"`
	Multiplier  float64       `yaml:"multiplier" mapstructure:"multiplier"`
	Jitter      float64       `yaml:"jitter" mapstructure:"jitter"`
	CallTimeout time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
}

// StoreConfig 任务状态存储配置
type StoreConfig struct {
	Backend string        `yaml:"backend" mapstructure:"backend"` // memory/redis/postgres
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	MaxLen        int           `yaml:"max_len" mapstructure:"max_len"`
	ConsumerGroup string        `yaml:"consumer_group" mapstructure:"consumer_group"`
	BlockTimeout  time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit    int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff  BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	CORS CORSConfig `yaml:"cors" mapstructure:"cors"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}
