// Package config loads server settings from defaults, an optional file and HZ_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DevInsecureSecret signs tokens when jwt.dev_insecure is set and no secret is configured.
const DevInsecureSecret = "hacking-zone-secret-key"

// EnvPrefix prefixes environment overrides: HZ_JWT_SECRET sets jwt.secret.
const EnvPrefix = "HZ"

// Store and limiter drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	LimiterRedis   = "redis"
	LimiterNone    = "none"
)

type HTTP struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	TrustProxy      bool          `mapstructure:"trust_proxy"`
}

type GRPC struct {
	Addr         string        `mapstructure:"addr"`
	Reflection   bool          `mapstructure:"reflection"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type JWT struct {
	Secret      string        `mapstructure:"secret"`
	DevInsecure bool          `mapstructure:"dev_insecure"`
	TTL         time.Duration `mapstructure:"ttl"`
}

type Store struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Database string `mapstructure:"database"`
	Migrate  bool   `mapstructure:"migrate"`
}

type Limiter struct {
	Driver        string        `mapstructure:"driver"`
	Window        time.Duration `mapstructure:"window"`
	Max           int           `mapstructure:"max"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
}

type Password struct {
	MinLength      int    `mapstructure:"min_length"`
	ArgonTime      uint32 `mapstructure:"argon_time"`
	ArgonMemoryKiB uint32 `mapstructure:"argon_memory_kib"`
}

type Log struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Config is the full server configuration.
type Config struct {
	HTTP     HTTP     `mapstructure:"http"`
	GRPC     GRPC     `mapstructure:"grpc"`
	JWT      JWT      `mapstructure:"jwt"`
	Store    Store    `mapstructure:"store"`
	Limiter  Limiter  `mapstructure:"limiter"`
	Password Password `mapstructure:"password"`
	Streak   struct {
		Timezone string `mapstructure:"timezone"`
	} `mapstructure:"streak"`
	CORS struct {
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"cors"`
	Log Log `mapstructure:"log"`

	location *time.Location
}

// SetDefaults registers every key so environment overrides apply to all of them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":5000")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.shutdown_timeout", 5*time.Second)
	v.SetDefault("http.max_body_bytes", int64(1<<20))
	v.SetDefault("http.trust_proxy", false)

	v.SetDefault("grpc.addr", "")
	v.SetDefault("grpc.reflection", false)
	v.SetDefault("grpc.poll_interval", 10*time.Second)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.dev_insecure", false)
	v.SetDefault("jwt.ttl", 30*24*time.Hour)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.database", "hacking_zone")
	v.SetDefault("store.migrate", true)

	v.SetDefault("limiter.driver", "memory")
	v.SetDefault("limiter.window", 15*time.Minute)
	v.SetDefault("limiter.max", 100)
	v.SetDefault("limiter.redis_addr", "")
	v.SetDefault("limiter.redis_password", "")

	v.SetDefault("password.min_length", 6)
	v.SetDefault("password.argon_time", 3)
	v.SetDefault("password.argon_memory_kib", 64*1024)

	v.SetDefault("streak.timezone", "UTC")
	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads cfgFile (optional) and the environment into a validated Config.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints and resolves derived values.
func (c *Config) Validate() error {
	var problems []error

	if c.JWT.Secret == "" {
		if c.JWT.DevInsecure {
			c.JWT.Secret = DevInsecureSecret
		} else {
			problems = append(problems, errors.New("jwt.secret is required (or set jwt.dev_insecure for local use)"))
		}
	}
	if c.JWT.TTL <= 0 {
		problems = append(problems, errors.New("jwt.ttl must be positive"))
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres, DriverMongo:
		if c.Store.DSN == "" {
			problems = append(problems, fmt.Errorf("store.dsn is required for store.driver=%s", c.Store.Driver))
		}
	default:
		problems = append(problems, fmt.Errorf("store.driver %q: want memory, postgres or mongo", c.Store.Driver))
	}

	switch c.Limiter.Driver {
	case DriverMemory, LimiterNone:
	case DriverPostgres:
		if c.Store.Driver != DriverPostgres {
			problems = append(problems, errors.New("limiter.driver=postgres requires store.driver=postgres"))
		}
	case LimiterRedis:
		if c.Limiter.RedisAddr == "" {
			problems = append(problems, errors.New("limiter.redis_addr is required for limiter.driver=redis"))
		}
	default:
		problems = append(problems, fmt.Errorf("limiter.driver %q: want memory, postgres, redis or none", c.Limiter.Driver))
	}
	if c.Limiter.Window <= 0 || c.Limiter.Max <= 0 {
		problems = append(problems, errors.New("limiter.window and limiter.max must be positive"))
	}

	if c.Password.MinLength < 1 {
		problems = append(problems, errors.New("password.min_length must be at least 1"))
	}
	if c.Password.ArgonTime == 0 || c.Password.ArgonMemoryKiB < 8 {
		problems = append(problems, errors.New("password.argon_time must be positive and password.argon_memory_kib at least 8"))
	}

	loc, err := time.LoadLocation(c.Streak.Timezone)
	if err != nil {
		problems = append(problems, fmt.Errorf("streak.timezone: %w", err))
	}
	c.location = loc

	return errors.Join(problems...)
}

// Location is the time zone in which login streak days are counted.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}
