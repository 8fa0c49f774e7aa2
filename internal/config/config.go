// Package config loads service configuration from defaults, an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"cabdispatch/internal/alloc"
)

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Allocation AllocationConfig `mapstructure:"allocation"`
	Webhooks   WebhooksConfig   `mapstructure:"webhooks"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
}

// StorageConfig selects the persistence backend. An empty Driver picks postgres when a DSN
// is set, then mongo when a URI is set, then memory.
type StorageConfig struct {
	Driver        string `mapstructure:"driver"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
	Migrate       bool   `mapstructure:"migrate"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type AuthConfig struct {
	Mode       string `mapstructure:"mode"`
	HMACSecret string `mapstructure:"hmac_secret"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WebhooksConfig lists receivers that get every fleet event as a signed POST.
// WEBHOOK_URLS is comma separated.
type WebhooksConfig struct {
	URLs        []string `mapstructure:"urls"`
	Secret      string   `mapstructure:"secret"`
	MaxAttempts int      `mapstructure:"max_attempts"`
}

type AllocationConfig struct {
	Seed     int64         `mapstructure:"seed"`
	Timezone string        `mapstructure:"timezone"`
	Weights  alloc.Weights `mapstructure:"weights"`
}

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Backend resolves the storage driver.
func (s StorageConfig) Backend() string {
	if s.Driver != "" {
		return strings.ToLower(s.Driver)
	}
	switch {
	case strings.TrimSpace(s.PostgresDSN) != "":
		return BackendPostgres
	case strings.TrimSpace(s.MongoURI) != "":
		return BackendMongo
	default:
		return BackendMemory
	}
}

// Location returns the zone used to bucket bookings by hour.
func (a AllocationConfig) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(a.Timezone)
}

// envBindings maps config keys to the flat environment names operators already use.
var envBindings = map[string]string{
	"server.port":                   "PORT",
	"storage.driver":                "STORAGE_DRIVER",
	"storage.postgres_dsn":          "DATABASE_URL",
	"storage.mongo_uri":             "MONGO_URL",
	"storage.mongo_database":        "MONGO_DATABASE",
	"storage.migrate":               "DB_MIGRATE",
	"redis.url":                     "REDIS_URL",
	"auth.mode":                     "AUTH_MODE",
	"auth.hmac_secret":              "AUTH_HMAC_SECRET",
	"rate_limit.rps":                "RATE_RPS",
	"rate_limit.burst":              "RATE_BURST",
	"logging.level":                 "LOG_LEVEL",
	"logging.format":                "LOG_FORMAT",
	"allocation.seed":               "ALLOCATION_SEED",
	"allocation.timezone":           "ALLOCATION_TIMEZONE",
	"allocation.weights.distance":   "ALLOCATION_WEIGHTS_DISTANCE",
	"allocation.weights.efficiency": "ALLOCATION_WEIGHTS_EFFICIENCY",
	"allocation.weights.rating":     "ALLOCATION_WEIGHTS_RATING",
	"allocation.weights.capacity":   "ALLOCATION_WEIGHTS_CAPACITY",
	"allocation.weights.fuel":       "ALLOCATION_WEIGHTS_FUEL",
	"allocation.weights.priority":   "ALLOCATION_WEIGHTS_PRIORITY",
	"allocation.weights.wait_time":  "ALLOCATION_WEIGHTS_WAIT_TIME",
	"webhooks.urls":                 "WEBHOOK_URLS",
	"webhooks.secret":               "WEBHOOK_SECRET",
	"webhooks.max_attempts":         "WEBHOOK_MAX_ATTEMPTS",
}

// Load reads configuration. configPath may be empty, in which case only defaults and the
// environment apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("storage.driver", "")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.mongo_uri", "")
	v.SetDefault("storage.mongo_database", "cabdispatch")
	v.SetDefault("storage.migrate", true)

	v.SetDefault("redis.url", "")

	v.SetDefault("auth.mode", "dev")
	v.SetDefault("auth.hmac_secret", "")

	v.SetDefault("rate_limit.rps", 0)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	w := alloc.DefaultWeights()
	v.SetDefault("allocation.seed", 0)
	v.SetDefault("allocation.timezone", "")
	v.SetDefault("allocation.weights.distance", w.Distance)
	v.SetDefault("allocation.weights.efficiency", w.Efficiency)
	v.SetDefault("allocation.weights.rating", w.Rating)
	v.SetDefault("allocation.weights.capacity", w.Capacity)
	v.SetDefault("allocation.weights.fuel", w.Fuel)
	v.SetDefault("allocation.weights.priority", w.Priority)
	v.SetDefault("allocation.weights.wait_time", w.WaitTime)

	v.SetDefault("webhooks.urls", []string{})
	v.SetDefault("webhooks.secret", "")
	v.SetDefault("webhooks.max_attempts", 10)
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Storage.Backend() {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn required for postgres"))
		}
	case BackendMongo:
		if c.Storage.MongoURI == "" {
			errs = append(errs, errors.New("storage.mongo_uri required for mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	switch strings.ToLower(c.Auth.Mode) {
	case "dev":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			errs = append(errs, errors.New("auth.hmac_secret required for hmac mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth.mode %q", c.Auth.Mode))
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate_limit values must be >= 0"))
	}
	if f := strings.ToLower(c.Logging.Format); f != "json" && f != "text" {
		errs = append(errs, fmt.Errorf("unknown logging.format %q", c.Logging.Format))
	}
	if _, err := c.Allocation.Location(); err != nil {
		errs = append(errs, fmt.Errorf("allocation.timezone: %w", err))
	}
	if err := c.Allocation.Weights.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Webhooks.URLs) > 0 && c.Webhooks.MaxAttempts <= 0 {
		errs = append(errs, errors.New("webhooks.max_attempts must be > 0"))
	}
	return errors.Join(errs...)
}
