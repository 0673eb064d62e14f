package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Logging  LoggingConfig
	Kafka    KafkaConfig
	NATS     NATSConfig
	Sync     SyncConfig
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst       int           `mapstructure:"rate_burst"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Database       string `mapstructure:"database"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxOpenConns   int    `mapstructure:"max_open_conns"`
	MaxIdleConns   int    `mapstructure:"max_idle_conns"`
	ConnectRetries uint64 `mapstructure:"connect_retries"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addresses   []string      `mapstructure:"addresses"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	ClusterMode bool          `mapstructure:"cluster_mode"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Issuer    string        `mapstructure:"issuer"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`
	Topic    string   `mapstructure:"topic"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	Stream        string `mapstructure:"stream"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type SyncConfig struct {
	Transport              string        `mapstructure:"transport"` // kafka or nats
	MaxBatch               int           `mapstructure:"max_batch"`
	MaxDispatchLimit       int           `mapstructure:"max_dispatch_limit"`
	MaxAttempts            int           `mapstructure:"max_attempts"`
	DeliveryTimeout        time.Duration `mapstructure:"delivery_timeout"`
	DefaultLookbackMinutes int           `mapstructure:"default_lookback_minutes"`
	MaxLookbackMinutes     int           `mapstructure:"max_lookback_minutes"`
	StrictModules          bool          `mapstructure:"strict_modules"`
	Modules                []string      `mapstructure:"modules"`
	Relay                  RelayConfig   `mapstructure:"relay"`
	Breaker                BreakerConfig `mapstructure:"breaker"`
}

type RelayConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

// DefaultModules are the retail modules known to the module mapper.
var DefaultModules = []string{"inventory", "sales", "purchases", "customers", "loyalty", "stores", "users", "reports"}

func Load() (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/hybridsync/")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HYBRIDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.rate_limit", 50)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.connect_retries", 5)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.pool_size", 100)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.issuer", "hybridsync")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("kafka.client_id", "hybridsync-relay")
	v.SetDefault("kafka.topic", "hybridsync.events")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.stream", "HYBRIDSYNC")
	v.SetDefault("nats.subject_prefix", "hybridsync")
	v.SetDefault("sync.transport", "kafka")
	v.SetDefault("sync.max_batch", 500)
	v.SetDefault("sync.max_dispatch_limit", 1000)
	v.SetDefault("sync.max_attempts", 10)
	v.SetDefault("sync.delivery_timeout", "10s")
	v.SetDefault("sync.default_lookback_minutes", 60)
	v.SetDefault("sync.max_lookback_minutes", 7*24*60)
	v.SetDefault("sync.strict_modules", true)
	v.SetDefault("sync.modules", DefaultModules)
	v.SetDefault("sync.relay.poll_interval", "5s")
	v.SetDefault("sync.relay.batch_size", 100)
	v.SetDefault("sync.breaker.enabled", true)
	v.SetDefault("sync.breaker.max_requests", 1)
	v.SetDefault("sync.breaker.interval", "60s")
	v.SetDefault("sync.breaker.timeout", "30s")
	v.SetDefault("sync.breaker.failure_threshold", 5)
}

func (c *Config) Validate() error {
	var errs []error
	s := c.Sync
	switch s.Transport {
	case "kafka", "nats":
	default:
		errs = append(errs, fmt.Errorf("sync.transport must be kafka or nats, got %q", s.Transport))
	}
	if s.MaxBatch < 1 {
		errs = append(errs, errors.New("sync.max_batch must be positive"))
	}
	if s.MaxDispatchLimit < 1 {
		errs = append(errs, errors.New("sync.max_dispatch_limit must be positive"))
	}
	if s.Relay.BatchSize < 1 || s.Relay.BatchSize > s.MaxDispatchLimit {
		errs = append(errs, fmt.Errorf("sync.relay.batch_size must be in [1, %d]", s.MaxDispatchLimit))
	}
	if s.Relay.PollInterval <= 0 {
		errs = append(errs, errors.New("sync.relay.poll_interval must be positive"))
	}
	if s.DeliveryTimeout <= 0 {
		errs = append(errs, errors.New("sync.delivery_timeout must be positive"))
	}
	if s.MaxLookbackMinutes < 0 || s.DefaultLookbackMinutes < 0 || s.DefaultLookbackMinutes > s.MaxLookbackMinutes {
		errs = append(errs, errors.New("sync.default_lookback_minutes must be in [0, sync.max_lookback_minutes]"))
	}
	if int64(s.MaxLookbackMinutes) > int64(math.MaxInt64/time.Minute) {
		errs = append(errs, errors.New("sync.max_lookback_minutes exceeds the representable range"))
	}
	if len(s.Modules) == 0 {
		errs = append(errs, errors.New("sync.modules must not be empty"))
	}
	return errors.Join(errs...)
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
