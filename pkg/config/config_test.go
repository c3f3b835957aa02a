package config

import (
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func validConfig() *Config {
	return &Config{
		HTTPPort:             "8080",
		OracleMode:           "static",
		OracleAddress:        "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419",
		OracleStaticPrice:    300000000000,
		OracleStaticDecimals: 8,
		FactoryDeployer:      "0x00000000000000000000000000000000000fAc70",
		KeeperEnabled:        true,
		KeeperInterval:       15 * time.Second,
		KeeperConcurrency:    4,
		StorageMode:          "console",
		SQLitePath:           "price-bets.db",
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.HTTPPort != "8080" {
		t.Errorf("expected HTTP port 8080, got %s", cfg.HTTPPort)
	}

	if cfg.OracleMode != "static" {
		t.Errorf("expected static oracle mode, got %s", cfg.OracleMode)
	}

	if cfg.OracleStaticPrice != 300000000000 || cfg.OracleStaticDecimals != 8 {
		t.Errorf("unexpected static answer %d/%d", cfg.OracleStaticPrice, cfg.OracleStaticDecimals)
	}

	if cfg.OracleDecimalsTTL != 24*time.Hour {
		t.Errorf("expected decimals TTL 24h, got %v", cfg.OracleDecimalsTTL)
	}

	if !cfg.KeeperEnabled || cfg.KeeperInterval != 15*time.Second || cfg.KeeperConcurrency != 4 {
		t.Errorf("unexpected keeper defaults: %v %v %d", cfg.KeeperEnabled, cfg.KeeperInterval, cfg.KeeperConcurrency)
	}

	if cfg.FaucetEnabled {
		t.Error("expected faucet disabled by default")
	}

	if cfg.StorageMode != "console" {
		t.Errorf("expected console storage, got %s", cfg.StorageMode)
	}

	if cfg.OracleAddr() != common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419") {
		t.Errorf("unexpected oracle address %s", cfg.OracleAddr().Hex())
	}

	if cfg.DeployerAddr() == (common.Address{}) {
		t.Error("expected non-zero deployer")
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("ORACLE_MODE", "Chainlink")
	t.Setenv("ETH_RPC_URL", "https://eth.example.org")
	t.Setenv("ORACLE_RPC_RATE_PER_SEC", "2.5")
	t.Setenv("KEEPER_INTERVAL", "1m")
	t.Setenv("KEEPER_CONCURRENCY", "8")
	t.Setenv("FAUCET_ENABLED", "true")
	t.Setenv("STORAGE_MODE", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/events.db")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.HTTPPort != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.HTTPPort)
	}

	if cfg.OracleMode != "chainlink" {
		t.Errorf("expected mode to be lowercased, got %s", cfg.OracleMode)
	}

	if cfg.OracleRPCRatePerSec != 2.5 {
		t.Errorf("expected rate 2.5, got %f", cfg.OracleRPCRatePerSec)
	}

	if cfg.KeeperInterval != time.Minute || cfg.KeeperConcurrency != 8 {
		t.Errorf("unexpected keeper config %v/%d", cfg.KeeperInterval, cfg.KeeperConcurrency)
	}

	if !cfg.FaucetEnabled {
		t.Error("expected faucet enabled")
	}

	if cfg.StorageMode != "sqlite" || cfg.SQLitePath != "/tmp/events.db" {
		t.Errorf("unexpected storage config %s %s", cfg.StorageMode, cfg.SQLitePath)
	}
}

func TestLoadFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("KEEPER_INTERVAL", "soon")
	t.Setenv("KEEPER_CONCURRENCY", "many")
	t.Setenv("FAUCET_ENABLED", "perhaps")
	t.Setenv("ORACLE_STATIC_PRICE", "3k")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.KeeperInterval != 15*time.Second {
		t.Errorf("expected default interval, got %v", cfg.KeeperInterval)
	}

	if cfg.KeeperConcurrency != 4 {
		t.Errorf("expected default concurrency, got %d", cfg.KeeperConcurrency)
	}

	if cfg.FaucetEnabled {
		t.Error("expected default faucet setting")
	}

	if cfg.OracleStaticPrice != 300000000000 {
		t.Errorf("expected default static price, got %d", cfg.OracleStaticPrice)
	}
}

func TestLoadFromEnv_ValidationError(t *testing.T) {
	t.Setenv("STORAGE_MODE", "mongo")

	_, err := LoadFromEnv()
	if err == nil {
		t.Fatal("expected error for unknown storage mode")
	}

	if !strings.Contains(err.Error(), "STORAGE_MODE") {
		t.Errorf("expected STORAGE_MODE in error, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty-http-port",
			mutate:  func(c *Config) { c.HTTPPort = "" },
			wantErr: "HTTP_PORT",
		},
		{
			name:    "unknown-oracle-mode",
			mutate:  func(c *Config) { c.OracleMode = "pyth" },
			wantErr: "ORACLE_MODE",
		},
		{
			name:    "chainlink-without-rpc",
			mutate:  func(c *Config) { c.OracleMode = "chainlink" },
			wantErr: "ETH_RPC_URL",
		},
		{
			name: "chainlink-with-rpc",
			mutate: func(c *Config) {
				c.OracleMode = "chainlink"
				c.EthRPCURL = "http://localhost:8545"
			},
		},
		{
			name:    "non-positive-static-price",
			mutate:  func(c *Config) { c.OracleStaticPrice = 0 },
			wantErr: "ORACLE_STATIC_PRICE",
		},
		{
			name:    "too-many-decimals",
			mutate:  func(c *Config) { c.OracleStaticDecimals = 37 },
			wantErr: "ORACLE_STATIC_DECIMALS",
		},
		{
			name:    "malformed-oracle-address",
			mutate:  func(c *Config) { c.OracleAddress = "0x1234" },
			wantErr: "ORACLE_ADDRESS",
		},
		{
			name:    "zero-oracle-address",
			mutate:  func(c *Config) { c.OracleAddress = "0x0000000000000000000000000000000000000000" },
			wantErr: "ORACLE_ADDRESS",
		},
		{
			name:    "malformed-deployer",
			mutate:  func(c *Config) { c.FactoryDeployer = "factory" },
			wantErr: "FACTORY_DEPLOYER",
		},
		{
			name:    "zero-keeper-interval",
			mutate:  func(c *Config) { c.KeeperInterval = 0 },
			wantErr: "KEEPER_INTERVAL",
		},
		{
			name: "disabled-keeper-ignores-interval",
			mutate: func(c *Config) {
				c.KeeperEnabled = false
				c.KeeperInterval = 0
			},
		},
		{
			name:    "zero-keeper-concurrency",
			mutate:  func(c *Config) { c.KeeperConcurrency = 0 },
			wantErr: "KEEPER_CONCURRENCY",
		},
		{
			name:    "unknown-storage-mode",
			mutate:  func(c *Config) { c.StorageMode = "redis" },
			wantErr: "STORAGE_MODE",
		},
		{
			name: "sqlite-without-path",
			mutate: func(c *Config) {
				c.StorageMode = "sqlite"
				c.SQLitePath = ""
			},
			wantErr: "SQLITE_PATH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}

			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}

			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer func() { _ = logger.Sync() }()

	t.Setenv("LOG_LEVEL", "loud")

	_, err = NewLogger()
	if err == nil {
		t.Error("expected error for invalid log level")
	}
}
