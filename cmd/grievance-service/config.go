package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"safevoice/internal/common/cache"
	"safevoice/internal/common/db"
	commonmw "safevoice/internal/common/http/middleware"
	"safevoice/internal/common/mq"
	"safevoice/internal/common/storage"
	"safevoice/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	driverMySQL  = "mysql"
	driverMinIO  = "minio"
	driverMemory = "memory"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`

	CORS commonmw.CORSConfig `yaml:"cors"`
}

// AppConfig holds the grievance-service configuration.
type AppConfig struct {
	Server ServerConfig  `yaml:"server"`
	Logger logger.Config `yaml:"logger"`

	Store    StoreConfig         `yaml:"store"`
	Database db.MySQLConfig      `yaml:"database"`
	Redis    cache.RedisConfig   `yaml:"redis"`
	MinIO    storage.MinIOConfig `yaml:"minio"`
	Kafka    mq.KafkaConfig      `yaml:"kafka"`

	Attachments AttachmentConfig `yaml:"attachments"`
	Events      EventsConfig     `yaml:"events"`
	Auth        AuthConfig       `yaml:"auth"`
	RateLimit   RateLimitConfig  `yaml:"rateLimit"`
	Issues      IssueConfig      `yaml:"issues"`
	Seed        SeedConfig       `yaml:"seed"`
}

// StoreConfig selects the backends. "memory" keeps everything in process.
type StoreConfig struct {
	Database string `yaml:"database"` // mysql, memory
	Objects  string `yaml:"objects"`  // minio, memory
}

// AttachmentConfig holds evidence upload settings.
type AttachmentConfig struct {
	KeyPrefix         string        `yaml:"keyPrefix"`
	PublicBaseURL     string        `yaml:"publicBaseURL"`
	MaxTotalBytes     int64         `yaml:"maxTotalBytes"`
	MaxRequestBytes   int64         `yaml:"maxRequestBytes"`
	UploadConcurrency int           `yaml:"uploadConcurrency"`
	OpTimeout         time.Duration `yaml:"opTimeout"`
	DeleteMaxElapsed  time.Duration `yaml:"deleteMaxElapsed"`
}

// EventsConfig controls lifecycle event publishing and orphan cleanup.
type EventsConfig struct {
	Enabled         *bool         `yaml:"enabled"`
	Topic           string        `yaml:"topic"`
	ConsumerGroup   string        `yaml:"consumerGroup"`
	Cleanup         bool          `yaml:"cleanup"`
	BatchSize       int           `yaml:"batchSize"`
	ListTimeout     time.Duration `yaml:"listTimeout"`
	DeleteTimeout   time.Duration `yaml:"deleteTimeout"`
	MaxRetries      int           `yaml:"maxRetries"`
	RetryDelay      time.Duration `yaml:"retryDelay"`
	DeadLetterTopic string        `yaml:"deadLetterTopic"`
}

// IsEnabled defaults to true when brokers are configured.
func (c EventsConfig) IsEnabled(kafka mq.KafkaConfig) bool {
	if c.Enabled != nil {
		return *c.Enabled
	}
	return len(kafka.Brokers) > 0
}

func (c EventsConfig) toSubscribeOptions() *mq.SubscribeOptions {
	return &mq.SubscribeOptions{
		ConsumerGroup:   c.ConsumerGroup,
		MaxRetries:      c.MaxRetries,
		RetryDelay:      c.RetryDelay,
		DeadLetterTopic: c.DeadLetterTopic,
	}
}

// AuthConfig holds access token verification settings.
type AuthConfig struct {
	JWTSecret    string        `yaml:"jwtSecret"`
	JWTIssuer    string        `yaml:"jwtIssuer"`
	CacheTimeout time.Duration `yaml:"cacheTimeout"`
}

// RateLimitConfig limits issue submissions per reporter.
type RateLimitConfig struct {
	SubmitMax    int           `yaml:"submitMax"`
	Window       time.Duration `yaml:"window"`
	RedisTimeout time.Duration `yaml:"redisTimeout"`
}

// IssueConfig holds issue validation settings.
type IssueConfig struct {
	Categories []string `yaml:"categories"`
}

// SeedConfig populates the directory of the in-memory store.
type SeedConfig struct {
	Reporters []SeedPrincipal `yaml:"reporters"`
	Admins    []SeedPrincipal `yaml:"admins"`
	Resolvers []SeedPrincipal `yaml:"resolvers"`
}

// SeedPrincipal is one directory entry.
type SeedPrincipal struct {
	ID          int64  `yaml:"id"`
	Name        string `yaml:"name"`
	Designation string `yaml:"designation"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) error {
	cfg.Store.Database = strings.ToLower(strings.TrimSpace(cfg.Store.Database))
	if cfg.Store.Database == "" {
		cfg.Store.Database = driverMySQL
	}
	cfg.Store.Objects = strings.ToLower(strings.TrimSpace(cfg.Store.Objects))
	if cfg.Store.Objects == "" {
		cfg.Store.Objects = driverMinIO
	}
	switch cfg.Store.Database {
	case driverMySQL:
		if cfg.Database.DSN == "" {
			return fmt.Errorf("database dsn is required")
		}
	case driverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", cfg.Store.Database)
	}
	switch cfg.Store.Objects {
	case driverMinIO:
		if cfg.MinIO.Bucket == "" {
			return fmt.Errorf("minio bucket is required")
		}
	case driverMemory:
		if cfg.MinIO.Bucket == "" {
			cfg.MinIO.Bucket = "evidence"
		}
	default:
		return fmt.Errorf("unknown object store driver %q", cfg.Store.Objects)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwtSecret is required")
	}
	if cfg.Redis.Addr != "" {
		applyRedisDefaults(&cfg.Redis)
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Attachments.KeyPrefix == "" {
		cfg.Attachments.KeyPrefix = "issues"
	}
	if cfg.Attachments.MaxTotalBytes <= 0 {
		cfg.Attachments.MaxTotalBytes = 1 << 20
	}
	if cfg.Attachments.MaxRequestBytes <= 0 {
		cfg.Attachments.MaxRequestBytes = 2*cfg.Attachments.MaxTotalBytes + 64<<10
	}

	if cfg.Events.Topic == "" {
		cfg.Events.Topic = "safevoice.issue-lifecycle"
	}
	if cfg.Events.ConsumerGroup == "" {
		cfg.Events.ConsumerGroup = "safevoice-attachment-cleanup"
	}

	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = time.Hour
	}
	if cfg.RateLimit.RedisTimeout == 0 {
		cfg.RateLimit.RedisTimeout = 200 * time.Millisecond
	}
	return nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}
