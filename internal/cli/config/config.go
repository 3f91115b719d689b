package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DriverMemory keeps everything in process; nothing survives the command
const DriverMemory = "memory"

var (
	// ErrInvalidConfig is returned when a loaded configuration fails validation
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config represents the crudkit configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Paging   PagingConfig   `mapstructure:"paging"`
}

// DatabaseConfig selects the storage backend
type DatabaseConfig struct {
	// Driver is one of sqlite3, pgx, postgres or memory
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig configures the audit trail; an empty address disables it
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// PagingConfig holds paging defaults
type PagingConfig struct {
	DefaultSize int `mapstructure:"default_size"`
}

// Load reads crudkit.yaml from the working directory, or the file at path
// when one is given. CRUDKIT_* environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "crudkit.db")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "crudkit:audit")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("paging.default_size", 20)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("crudkit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CRUDKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Database.Driver {
	case "sqlite3", "pgx", "postgres":
		if cfg.Database.DSN == "" {
			return fmt.Errorf("%w: database.dsn is required for driver %s", ErrInvalidConfig, cfg.Database.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%w: unknown database.driver %q", ErrInvalidConfig, cfg.Database.Driver)
	}

	if cfg.Paging.DefaultSize < 0 {
		return fmt.Errorf("%w: paging.default_size must not be negative, got %d", ErrInvalidConfig, cfg.Paging.DefaultSize)
	}

	if _, err := parseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalidConfig, err)
	}
	return nil
}

// NewLogger builds the logger described by the log section
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: log.level: %w", ErrInvalidConfig, err)
	}

	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

func parseLevel(text string) (zapcore.Level, error) {
	var level zapcore.Level
	err := level.UnmarshalText([]byte(text))
	return level, err
}
