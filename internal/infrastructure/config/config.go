package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Signals     SignalsConfig  `mapstructure:"signals"`
	Ledger      LedgerConfig   `mapstructure:"ledger"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	Host            string   `mapstructure:"host"`
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RateLimitPerMin int      `mapstructure:"rate_limit_per_min"`
	AdminToken      string   `mapstructure:"admin_token"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// TTL in seconds for the current-value read cache
	CurrentValueTTL int `mapstructure:"current_value_ttl"`
}

// SignalsConfig points at the signals service that owns position lifecycles
type SignalsConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"`
}

// LedgerConfig tunes the accounting engine and its daily snapshot jobs
type LedgerConfig struct {
	// Reference timezone defining calendar days for snapshots and returns
	Timezone string `mapstructure:"timezone"`
	// Cron schedule for the day-start liquidity snapshot
	LiquiditySnapshotSchedule string `mapstructure:"liquidity_snapshot_schedule"`
	// Cron schedule for the close-adjacent portfolio snapshot
	PortfolioSnapshotSchedule string `mapstructure:"portfolio_snapshot_schedule"`
}

// Location resolves the configured reference timezone
func (c LedgerConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// CurrentValueTTLDuration returns the read-cache TTL as a duration
func (c RedisConfig) CurrentValueTTLDuration() time.Duration {
	return time.Duration(c.CurrentValueTTL) * time.Second
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.allowed_origins", []string{"*"})
	viper.SetDefault("server.rate_limit_per_min", 100)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "pool_service")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", 300)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.current_value_ttl", 30)

	viper.SetDefault("signals.base_url", "http://localhost:8081")
	viper.SetDefault("signals.timeout", 10)

	viper.SetDefault("ledger.timezone", "America/Argentina/Buenos_Aires")
	viper.SetDefault("ledger.liquidity_snapshot_schedule", "5 0 * * *")
	viper.SetDefault("ledger.portfolio_snapshot_schedule", "0 18 * * *")
}

// overrideFromEnv maps flat environment variables onto nested config keys
func overrideFromEnv() {
	overrides := map[string]string{
		"ENVIRONMENT":      "environment",
		"LOG_LEVEL":        "log_level",
		"PORT":             "server.port",
		"ADMIN_TOKEN":      "server.admin_token",
		"DATABASE_URL":     "database.url",
		"REDIS_HOST":       "redis.host",
		"REDIS_PORT":       "redis.port",
		"REDIS_PASSWORD":   "redis.password",
		"SIGNALS_BASE_URL": "signals.base_url",
		"SIGNALS_API_KEY":  "signals.api_key",
		"LEDGER_TIMEZONE":  "ledger.timezone",
	}
	for env, key := range overrides {
		if value := os.Getenv(env); value != "" {
			viper.Set(key, value)
		}
	}
}

func validate(config *Config) error {
	if config.Database.URL == "" {
		return fmt.Errorf("database url is required")
	}
	if config.Environment == "production" && config.Server.AdminToken == "" {
		return fmt.Errorf("server.admin_token is required in production")
	}
	if _, err := config.Ledger.Location(); err != nil {
		return fmt.Errorf("invalid ledger.timezone %q: %w", config.Ledger.Timezone, err)
	}
	return nil
}
