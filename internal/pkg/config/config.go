package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
	// BodyLimit caps batch request bodies, in bytes.
	BodyLimit int `mapstructure:"body_limit"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
	// Durable is the consumer name the worker binds to on the fix stream.
	Durable    string `mapstructure:"durable"`
	MaxDeliver int    `mapstructure:"max_deliver"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// ResolverConfig tunes zone resolution. Distances are meters.
type ResolverConfig struct {
	DefaultAccuracy float64 `mapstructure:"default_accuracy"`
	MinBuffer       float64 `mapstructure:"min_buffer"`
	MaxBuffer       float64 `mapstructure:"max_buffer"`
	BatchWorkers    int     `mapstructure:"batch_workers"`
	ReviewThreshold float64 `mapstructure:"review_threshold"`
	CacheTTL        int     `mapstructure:"cache_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: ZONEFIX_RESOLVER_MAX_BUFFER → resolver.max_buffer
	v.SetEnvPrefix("ZONEFIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.body_limit", 1<<20)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "scouting")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "zonefix")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.durable", "zonefix-worker")
	v.SetDefault("nats.max_deliver", 5)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("resolver.default_accuracy", 15.0)
	v.SetDefault("resolver.min_buffer", 3.0)
	v.SetDefault("resolver.max_buffer", 50.0)
	v.SetDefault("resolver.batch_workers", 8)
	v.SetDefault("resolver.review_threshold", 0.5)
	v.SetDefault("resolver.cache_ttl", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	r := c.Resolver
	if r.DefaultAccuracy <= 0 {
		errs = append(errs, "resolver.default_accuracy must be positive")
	}
	if r.MinBuffer <= 0 {
		errs = append(errs, "resolver.min_buffer must be positive")
	}
	if r.MaxBuffer < r.MinBuffer {
		errs = append(errs, fmt.Sprintf("resolver.max_buffer (%g) must not be below resolver.min_buffer (%g)", r.MaxBuffer, r.MinBuffer))
	}
	if r.BatchWorkers <= 0 {
		errs = append(errs, "resolver.batch_workers must be positive")
	}
	if r.ReviewThreshold <= 0 || r.ReviewThreshold > 1 {
		errs = append(errs, fmt.Sprintf("resolver.review_threshold must be in (0, 1], got %g", r.ReviewThreshold))
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be json or text, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
