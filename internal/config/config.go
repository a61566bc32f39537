// Package config provides configuration management for the position dashboard.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Solana    SolanaConfig
	PriceFeed PriceFeedConfig
	Refresh   RefreshConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Logging   LoggingConfig
	Markets   MarketsConfig
	Fixtures  FixturesConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	ClientRPS       int
	ClientBurst     int
	AllowedOrigins  []string
}

// SolanaConfig holds RPC endpoints. Secondary is optional and used for failover.
type SolanaConfig struct {
	RPCPrimary   string
	RPCSecondary string
	Commitment   string
}

// PriceFeedConfig holds public price API configuration
type PriceFeedConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	BTCAssetID        string
	CollateralAssetID string
}

// RefreshConfig holds polling cadence. FetchTimeout bounds a single tick's
// upstream work; IdleTimeout reaps sessions nobody has touched.
type RefreshConfig struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	IdleTimeout  time.Duration
}

// RedisConfig holds Redis configuration. An empty Host disables the state mirror.
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
	StateTTL       time.Duration
}

// Enabled reports whether the mirror should be wired
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// NATSConfig holds the optional commit publisher. An empty URL disables it.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// FixturesConfig points at YAML files backing the protocol clients in demo mode.
// UseFixtureSlot reads the slot from the fixture instead of the Solana RPC.
type FixturesConfig struct {
	PositionsPath  string
	UseFixtureSlot bool
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			ClientRPS:       getEnvAsInt("RATE_LIMIT_CLIENT_RPS", 10),
			ClientBurst:     getEnvAsInt("RATE_LIMIT_CLIENT_BURST", 20),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Solana: SolanaConfig{
			RPCPrimary:   getEnv("SOLANA_RPC_PRIMARY", "https://api.mainnet-beta.solana.com"),
			RPCSecondary: getEnv("SOLANA_RPC_SECONDARY", ""),
			Commitment:   getEnv("SOLANA_COMMITMENT", "confirmed"),
		},
		PriceFeed: PriceFeedConfig{
			BaseURL:           getEnv("PRICE_API_BASE_URL", "https://api.coingecko.com/api/v3"),
			Timeout:           getEnvAsDuration("PRICE_API_TIMEOUT", 10*time.Second),
			RequestsPerSecond: getEnvAsFloat("PRICE_API_RPS", 0.5),
			BTCAssetID:        getEnv("PRICE_BTC_ASSET_ID", "bitcoin"),
			CollateralAssetID: getEnv("PRICE_COLLATERAL_ASSET_ID", "jito-staked-sol"),
		},
		Refresh: RefreshConfig{
			Interval:     getEnvAsDuration("REFRESH_INTERVAL", 30*time.Second),
			FetchTimeout: getEnvAsDuration("REFRESH_FETCH_TIMEOUT", 20*time.Second),
			IdleTimeout:  getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:           getEnv("REDIS_HOST", ""),
			Port:           getEnv("REDIS_PORT", "6379"),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			StateTTL:       getEnvAsDuration("REDIS_STATE_TTL", 2*time.Minute),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "dashboard.state"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Fixtures: FixturesConfig{
			PositionsPath:  getEnv("POSITIONS_FIXTURE_PATH", ""),
			UseFixtureSlot: getEnvAsBool("POSITIONS_FIXTURE_SLOT", false),
		},
	}

	markets, err := LoadMarkets(getEnv("MARKETS_CONFIG_PATH", ""))
	if err != nil {
		return nil, err
	}
	config.Markets = *markets

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks ranges the rest of the service relies on
func (c *Config) Validate() error {
	if c.Refresh.Interval < 5*time.Second || c.Refresh.Interval > 5*time.Minute {
		return fmt.Errorf("REFRESH_INTERVAL must be between 5s and 5m, got %v", c.Refresh.Interval)
	}
	if c.Refresh.FetchTimeout <= 0 {
		return fmt.Errorf("REFRESH_FETCH_TIMEOUT must be positive, got %v", c.Refresh.FetchTimeout)
	}
	if c.Solana.RPCPrimary == "" {
		return fmt.Errorf("SOLANA_RPC_PRIMARY is required")
	}
	if c.PriceFeed.BaseURL == "" {
		return fmt.Errorf("PRICE_API_BASE_URL is required")
	}
	if c.PriceFeed.RequestsPerSecond <= 0 {
		return fmt.Errorf("PRICE_API_RPS must be positive, got %v", c.PriceFeed.RequestsPerSecond)
	}
	if c.Server.ClientRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_CLIENT_RPS must be positive, got %d", c.Server.ClientRPS)
	}
	return c.Markets.Validate()
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated variable, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
