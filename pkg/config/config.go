package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel      string
	HTTPPort      string
	FaucetEnabled bool // exposes POST /api/accounts/{address}/credit

	// Chain
	EthRPCURL string

	// Oracle
	OracleMode           string // "static" or "chainlink"
	OracleAddress        string
	OracleStaticPrice    int64 // raw answer, scaled by OracleStaticDecimals
	OracleStaticDecimals int
	OracleRPCRatePerSec  float64
	OracleRPCBurst       int
	OracleDecimalsTTL    time.Duration

	// Factory
	FactoryDeployer string

	// Keeper
	KeeperEnabled     bool
	KeeperInterval    time.Duration
	KeeperConcurrency int

	// Event stream
	StreamSendBuffer        int
	WSDialTimeout           time.Duration
	WSPingInterval          time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSReconnectBackoffMult  float64
	WSMessageBufferSize     int

	// Storage
	StorageMode  string // "console", "postgres" or "sqlite"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
	SQLitePath   string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort:      getEnvOrDefault("HTTP_PORT", "8080"),
		FaucetEnabled: getBoolOrDefault("FAUCET_ENABLED", false),

		// Chain defaults
		EthRPCURL: os.Getenv("ETH_RPC_URL"),

		// Oracle defaults (ETH/USD aggregator on mainnet)
		OracleMode:           strings.ToLower(getEnvOrDefault("ORACLE_MODE", "static")),
		OracleAddress:        getEnvOrDefault("ORACLE_ADDRESS", "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"),
		OracleStaticPrice:    getInt64OrDefault("ORACLE_STATIC_PRICE", 300000000000),
		OracleStaticDecimals: getIntOrDefault("ORACLE_STATIC_DECIMALS", 8),
		OracleRPCRatePerSec:  getFloat64OrDefault("ORACLE_RPC_RATE_PER_SEC", 5.0),
		OracleRPCBurst:       getIntOrDefault("ORACLE_RPC_BURST", 5),
		OracleDecimalsTTL:    getDurationOrDefault("ORACLE_DECIMALS_TTL", 24*time.Hour),

		// Factory defaults
		FactoryDeployer: getEnvOrDefault("FACTORY_DEPLOYER", "0x00000000000000000000000000000000000fAc70"),

		// Keeper defaults
		KeeperEnabled:     getBoolOrDefault("KEEPER_ENABLED", true),
		KeeperInterval:    getDurationOrDefault("KEEPER_INTERVAL", 15*time.Second),
		KeeperConcurrency: getIntOrDefault("KEEPER_CONCURRENCY", 4),

		// Event stream defaults
		StreamSendBuffer:        getIntOrDefault("STREAM_SEND_BUFFER", 256),
		WSDialTimeout:           getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 30*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", 1*time.Second),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		WSReconnectBackoffMult:  getFloat64OrDefault("WS_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		WSMessageBufferSize:     getIntOrDefault("WS_MESSAGE_BUFFER_SIZE", 1000),

		// Storage defaults
		StorageMode:  strings.ToLower(getEnvOrDefault("STORAGE_MODE", "console")),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "pricebets"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "pricebets"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "price_bets"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		SQLitePath:   getEnvOrDefault("SQLITE_PATH", "price-bets.db"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	switch c.OracleMode {
	case "static":
		if c.OracleStaticPrice <= 0 {
			return fmt.Errorf("ORACLE_STATIC_PRICE must be positive, got %d", c.OracleStaticPrice)
		}
		if c.OracleStaticDecimals < 0 || c.OracleStaticDecimals > 36 {
			return fmt.Errorf("ORACLE_STATIC_DECIMALS must be between 0 and 36, got %d", c.OracleStaticDecimals)
		}
	case "chainlink":
		if c.EthRPCURL == "" {
			return fmt.Errorf("ETH_RPC_URL is required when ORACLE_MODE is 'chainlink'")
		}
	default:
		return fmt.Errorf("ORACLE_MODE must be 'static' or 'chainlink', got %q", c.OracleMode)
	}

	err := validateAddress("ORACLE_ADDRESS", c.OracleAddress)
	if err != nil {
		return err
	}

	err = validateAddress("FACTORY_DEPLOYER", c.FactoryDeployer)
	if err != nil {
		return err
	}

	if c.KeeperEnabled && c.KeeperInterval <= 0 {
		return fmt.Errorf("KEEPER_INTERVAL must be positive, got %v", c.KeeperInterval)
	}

	if c.KeeperConcurrency < 1 {
		return fmt.Errorf("KEEPER_CONCURRENCY must be at least 1, got %d", c.KeeperConcurrency)
	}

	switch c.StorageMode {
	case "console", "postgres":
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH cannot be empty when STORAGE_MODE is 'sqlite'")
		}
	default:
		return fmt.Errorf("STORAGE_MODE must be 'console', 'postgres' or 'sqlite', got %q", c.StorageMode)
	}

	return nil
}

// OracleAddr returns the configured default oracle address.
func (c *Config) OracleAddr() common.Address {
	return common.HexToAddress(c.OracleAddress)
}

// DeployerAddr returns the configured factory deployer address.
func (c *Config) DeployerAddr() common.Address {
	return common.HexToAddress(c.FactoryDeployer)
}

func validateAddress(key string, value string) error {
	if !common.IsHexAddress(value) {
		return fmt.Errorf("%s must be a hex address, got %q", key, value)
	}

	if common.HexToAddress(value) == (common.Address{}) {
		return fmt.Errorf("%s cannot be the zero address", key)
	}

	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
