package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Trust    TrustConfig    `mapstructure:"trust"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LedgerConfig tunes wallet defaults and transfer serialization.
type LedgerConfig struct {
	// DefaultCreditLimit is assigned to lazily created wallets.
	DefaultCreditLimit string        `mapstructure:"default_credit_limit"`
	LockTimeout        time.Duration `mapstructure:"lock_timeout"`
}

// TrustConfig tunes trust-score aggregation and the credit-limit
// derivation newLimit = clamp(base + score*scale, min, max).
type TrustConfig struct {
	RatingWindow     int     `mapstructure:"rating_window"` // most recent N ratings considered
	PriorWeight      float64 `mapstructure:"prior_weight"`  // pseudo-ratings at the midpoint
	BaseLimit        string  `mapstructure:"base_limit"`
	ScaleFactor      string  `mapstructure:"scale_factor"`
	MinLimit         string  `mapstructure:"min_limit"`
	MaxLimit         string  `mapstructure:"max_limit"`
	RecomputeWorkers int     `mapstructure:"recompute_workers"`
	QueueSize        int     `mapstructure:"queue_size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: UNITS_.
// Nested keys use underscore: UNITS_DATABASE_HOST, UNITS_TRUST_MAX_LIMIT, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "units_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ledger.default_credit_limit", "20")
	v.SetDefault("ledger.lock_timeout", "5s")
	v.SetDefault("trust.rating_window", 50)
	v.SetDefault("trust.prior_weight", 5)
	v.SetDefault("trust.base_limit", "0")
	v.SetDefault("trust.scale_factor", "40")
	v.SetDefault("trust.min_limit", "5")
	v.SetDefault("trust.max_limit", "100")
	v.SetDefault("trust.recompute_workers", 4)
	v.SetDefault("trust.queue_size", 256)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: UNITS_DATABASE_HOST -> database.host
	v.SetEnvPrefix("UNITS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
