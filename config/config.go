package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Hub       HubConfig       `mapstructure:"hub"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	// InstanceID names this process among replicas. Defaults to the hostname.
	InstanceID      string        `mapstructure:"instance_id"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type StorageConfig struct {
	// Driver is "badger" (embedded, default) or "postgres".
	Driver   string         `mapstructure:"driver"`
	Badger   BadgerConfig   `mapstructure:"badger"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type BadgerConfig struct {
	Path       string        `mapstructure:"path"`
	InMemory   bool          `mapstructure:"in_memory"`
	SyncWrites bool          `mapstructure:"sync_writes"`
	GCInterval time.Duration `mapstructure:"gc_interval"`
}

type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DirectoryConfig points at the YAML seed used when contests are not read
// from Postgres.
type DirectoryConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Brokers         []string      `mapstructure:"brokers"`
	GroupID         string        `mapstructure:"group_id"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	RetryMaxBackoff time.Duration `mapstructure:"retry_max_backoff"`
}

type HubConfig struct {
	SendBuffer int `mapstructure:"send_buffer"`
	MaxDrops   int `mapstructure:"max_drops"`
}

type RateLimitConfig struct {
	PerMinute   int           `mapstructure:"per_minute"`
	Burst       int           `mapstructure:"burst"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

var envBindings = map[string]string{
	"server.port":                     "PORT",
	"server.read_timeout":             "SERVER_READ_TIMEOUT",
	"server.write_timeout":            "SERVER_WRITE_TIMEOUT",
	"server.shutdown_timeout":         "SERVER_SHUTDOWN_TIMEOUT",
	"server.allowed_origins":          "ALLOWED_ORIGINS",
	"server.instance_id":              "INSTANCE_ID",
	"jwt.secret":                      "JWT_SECRET",
	"storage.driver":                  "STORAGE_DRIVER",
	"storage.badger.path":             "BADGER_PATH",
	"storage.badger.in_memory":        "BADGER_IN_MEMORY",
	"storage.badger.sync_writes":      "BADGER_SYNC_WRITES",
	"storage.badger.gc_interval":      "BADGER_GC_INTERVAL",
	"storage.postgres.dsn":            "DATABASE_URL",
	"storage.postgres.max_open_conns": "DATABASE_MAX_OPEN_CONNS",
	"storage.postgres.max_idle_conns": "DATABASE_MAX_IDLE_CONNS",
	"directory.seed_file":             "DIRECTORY_SEED_FILE",
	"redis.enabled":                   "REDIS_ENABLED",
	"redis.host":                      "REDIS_HOST",
	"redis.port":                      "REDIS_PORT",
	"redis.password":                  "REDIS_PASSWORD",
	"redis.db":                        "REDIS_DB",
	"kafka.enabled":                   "KAFKA_ENABLED",
	"kafka.brokers":                   "KAFKA_BROKERS",
	"kafka.group_id":                  "KAFKA_GROUP_ID",
	"kafka.retry_backoff":             "KAFKA_RETRY_BACKOFF",
	"kafka.retry_max_backoff":         "KAFKA_RETRY_MAX_BACKOFF",
	"hub.send_buffer":                 "HUB_SEND_BUFFER",
	"hub.max_drops":                   "HUB_MAX_DROPS",
	"ratelimit.per_minute":            "RATE_LIMIT_PER_MINUTE",
	"ratelimit.burst":                 "RATE_LIMIT_BURST",
	"ratelimit.idle_timeout":          "RATE_LIMIT_IDLE_TIMEOUT",
	"log.level":                       "LOG_LEVEL",
	"log.pretty":                      "LOG_PRETTY",
}

func setDefaults(vip *viper.Viper) {
	vip.SetDefault("server.port", "6001")
	vip.SetDefault("server.read_timeout", 15*time.Second)
	vip.SetDefault("server.write_timeout", 15*time.Second)
	vip.SetDefault("server.shutdown_timeout", 10*time.Second)
	vip.SetDefault("server.allowed_origins", []string{"*"})

	vip.SetDefault("storage.driver", DriverBadger)
	vip.SetDefault("storage.badger.path", "./data/contest")
	vip.SetDefault("storage.badger.sync_writes", true)
	vip.SetDefault("storage.badger.gc_interval", 5*time.Minute)
	vip.SetDefault("storage.postgres.max_open_conns", 20)
	vip.SetDefault("storage.postgres.max_idle_conns", 5)
	vip.SetDefault("storage.postgres.conn_max_lifetime", 30*time.Minute)

	vip.SetDefault("redis.host", "localhost")
	vip.SetDefault("redis.port", 6379)

	vip.SetDefault("kafka.brokers", []string{"localhost:9092"})
	vip.SetDefault("kafka.group_id", "contest-engine")
	vip.SetDefault("kafka.retry_backoff", 500*time.Millisecond)
	vip.SetDefault("kafka.retry_max_backoff", 30*time.Second)

	vip.SetDefault("hub.send_buffer", 256)
	vip.SetDefault("hub.max_drops", 64)

	vip.SetDefault("ratelimit.per_minute", 120)
	vip.SetDefault("ratelimit.burst", 20)
	vip.SetDefault("ratelimit.idle_timeout", 10*time.Minute)

	vip.SetDefault("log.level", "info")
}

// Load reads .env (if present), then the optional config file, then the
// environment. Later sources win.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	vip := viper.New()
	setDefaults(vip)
	for key, env := range envBindings {
		if err := vip.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Server.InstanceID == "" {
		cfg.Server.InstanceID, _ = os.Hostname()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret (JWT_SECRET) is required"))
	}
	switch c.Storage.Driver {
	case DriverBadger:
		if c.Storage.Badger.Path == "" && !c.Storage.Badger.InMemory {
			errs = append(errs, errors.New("storage.badger.path is required unless in_memory is set"))
		}
		if c.Directory.SeedFile == "" {
			errs = append(errs, errors.New("directory.seed_file is required with the badger driver"))
		}
	case DriverPostgres:
		if c.Storage.Postgres.DSN == "" {
			errs = append(errs, errors.New("storage.postgres.dsn (DATABASE_URL) is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	if c.Kafka.RetryBackoff <= 0 || c.Kafka.RetryMaxBackoff < c.Kafka.RetryBackoff {
		errs = append(errs, errors.New("kafka.retry_max_backoff must be at least kafka.retry_backoff"))
	}
	if c.Redis.Enabled && c.Server.InstanceID == "" {
		errs = append(errs, errors.New("server.instance_id (INSTANCE_ID) is required when redis is enabled"))
	}
	if c.Hub.SendBuffer <= 0 {
		errs = append(errs, errors.New("hub.send_buffer must be positive"))
	}
	if c.RateLimit.PerMinute <= 0 {
		errs = append(errs, errors.New("ratelimit.per_minute must be positive"))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// Logger builds the process logger. Pretty output is for local development.
func (c LogConfig) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var out io.Writer = os.Stdout
	if c.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "contest-engine").Logger()
}
