// Package config loads service settings from flags, an optional config file,
// a .env file and the environment, in increasing order of precedence for the
// environment over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	fage "filippo.io/age"
	"github.com/codingric/moneyman/pkg/age"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError names the offending setting.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidConfig }

type Config struct {
	Port     int            `mapstructure:"port"`
	Verbose  bool           `mapstructure:"verbose"`
	AgeKey   string         `mapstructure:"agekey"`
	Model    ModelConfig    `mapstructure:"model"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Classify ClassifyConfig `mapstructure:"classify"`
	Log      LogConfig      `mapstructure:"log"`

	Transactions TransactionsConfig `mapstructure:"transactions"`
}

type ModelConfig struct {
	Path string `mapstructure:"path"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InsertTimeout   time.Duration `mapstructure:"insert_timeout"`
	AutoMigrate     bool          `mapstructure:"automigrate"`
}

// DSN is the libpq style connection string for the postgres driver. Values
// are single quoted so passwords may contain spaces, quotes or backslashes.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dsnQuote(d.Host), d.Port, dsnQuote(d.User), dsnQuote(d.Password), dsnQuote(d.Name), dsnQuote(d.SSLMode),
	)
}

var dsnEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func dsnQuote(s string) string {
	return "'" + dsnEscaper.Replace(s) + "'"
}

type CacheConfig struct {
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

type ClassifyConfig struct {
	MaxBatch int `mapstructure:"max_batch"`
}

// TransactionsConfig controls GET /transactions. The route lists any user's
// history by user_id without authentication, so it is off unless enabled.
type TransactionsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// env maps config keys to the environment variables that override them.
var env = map[string]string{
	"port":              "PORT",
	"agekey":            "AGE_KEY",
	"model.path":        "MODEL_PATH",
	"database.driver":   "DB_DRIVER",
	"database.host":     "DB_HOST",
	"database.port":     "DB_PORT",
	"database.name":     "DB_NAME",
	"database.user":     "DB_USER",
	"database.password": "DB_PASSWORD",
	"database.sslmode":  "DB_SSLMODE",
	"database.path":     "DB_PATH",
	"cache.address":     "REDIS_ADDRESS",
	"cache.password":    "REDIS_PASSWORD",
	"log.level":         "LOG_LEVEL",

	"transactions.enabled": "TRANSACTIONS_ENABLED",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("model.path", filepath.Join("ml", "model.json"))
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "prefer")
	v.SetDefault("database.path", "predictor.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.insert_timeout", 5*time.Second)
	v.SetDefault("database.automigrate", false)
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("cache.prefix", "predict:")
	v.SetDefault("classify.max_batch", 500)
	v.SetDefault("log.level", "info")
	v.SetDefault("transactions.enabled", false)
}

// Load builds the configuration from the command line arguments (without the
// program name), .env, an optional config.yaml and the environment.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	flags := pflag.NewFlagSet("predictor", pflag.ContinueOnError)
	flags.StringP("config", "c", "", "Config file (yaml)")
	flags.BoolP("verbose", "v", false, "Verbose")
	flags.IntP("port", "p", 8080, "Port")
	flags.StringP("model", "m", filepath.Join("ml", "model.json"), "Model artifact")
	flags.StringP("agekey", "a", "", "Age private key for `age:` values")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.BindPFlag("verbose", flags.Lookup("verbose"))
	v.BindPFlag("port", flags.Lookup("port"))
	v.BindPFlag("model.path", flags.Lookup("model"))
	v.BindPFlag("agekey", flags.Lookup("agekey"))
	for key, name := range env {
		v.BindEnv(key, name)
	}

	if path, _ := flags.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/predictor/")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Debug().Msg("Config not found - using defaults")
	} else {
		log.Debug().Msgf("Config loaded `%s`", v.ConfigFileUsed())
	}

	var identity *fage.X25519Identity
	if keypath := v.GetString("agekey"); keypath != "" {
		id, err := age.LoadIdentity(keypath)
		if err != nil {
			return nil, err
		}
		identity = id
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		age.HookFunc(identity),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return &ValidationError{"port", "must be between 1 and 65535"}
	}
	if strings.TrimSpace(c.Model.Path) == "" {
		return &ValidationError{"model.path", "is required"}
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return &ValidationError{"log.level", fmt.Sprintf("%q is not a log level", c.Log.Level)}
	}
	if c.Classify.MaxBatch <= 0 {
		return &ValidationError{"classify.max_batch", "must be positive"}
	}
	if c.Database.InsertTimeout <= 0 {
		return &ValidationError{"database.insert_timeout", "must be positive"}
	}

	switch c.Database.Driver {
	case "postgres":
		for field, value := range map[string]string{
			"database.host": c.Database.Host,
			"database.name": c.Database.Name,
			"database.user": c.Database.User,
		} {
			if value == "" {
				return &ValidationError{field, "is required for postgres"}
			}
		}
		if c.Database.Port <= 0 {
			return &ValidationError{"database.port", "must be positive"}
		}
	case "sqlite":
		if c.Database.Path == "" {
			return &ValidationError{"database.path", "is required for sqlite"}
		}
	default:
		return &ValidationError{"database.driver", fmt.Sprintf("%q is not one of postgres, sqlite", c.Database.Driver)}
	}
	return nil
}

// LogLevel is the configured zerolog level; verbose forces trace.
func (c *Config) LogLevel() zerolog.Level {
	if c.Verbose {
		return zerolog.TraceLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
