package app

import (
	"context"
	"fmt"
	"math/big"

	"github.com/0xF16/price-bets/internal/factory"
	"github.com/0xF16/price-bets/internal/keeper"
	"github.com/0xF16/price-bets/internal/ledger"
	"github.com/0xF16/price-bets/internal/oracle"
	"github.com/0xF16/price-bets/internal/storage"
	"github.com/0xF16/price-bets/internal/vault"
	"github.com/0xF16/price-bets/pkg/cache"
	"github.com/0xF16/price-bets/pkg/config"
	"github.com/0xF16/price-bets/pkg/healthprobe"
	"github.com/0xF16/price-bets/pkg/httpserver"
	"github.com/0xF16/price-bets/pkg/websocket"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	clock := opts.Clock
	if clock == nil {
		clock = ledger.SystemClock{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: setupHealthChecker(),
		ledger:        ledger.New(logger),
		ctx:           ctx,
		cancel:        cancel,
	}

	err := a.setup(ctx, clock)
	if err != nil {
		cancel()
		a.release()
		return nil, err
	}

	return a, nil
}

func (a *App) setup(ctx context.Context, clock ledger.Clock) error {
	cfg := a.cfg
	logger := a.logger

	oracles, err := a.setupOracles(ctx)
	if err != nil {
		return fmt.Errorf("setup oracles: %w", err)
	}

	hub, err := websocket.NewHub(&websocket.HubConfig{
		SendBufferSize: cfg.StreamSendBuffer,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("setup event hub: %w", err)
	}
	a.hub = hub

	eventStorage, reader, err := setupStorage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("setup storage: %w", err)
	}
	a.storage = storage.NewFanOut(eventStorage, storage.NewStreamStorage(hub))

	a.factory, err = factory.New(&factory.Config{
		Address: cfg.DeployerAddr(),
		Vault: &vault.Config{
			Ledger:  a.ledger,
			Clock:   clock,
			Oracles: oracles,
			Events:  a.storage,
			Logger:  logger,
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("setup factory: %w", err)
	}

	if cfg.KeeperEnabled {
		a.keeper, err = keeper.New(&keeper.Config{
			Source:      a.factory,
			Clock:       clock,
			Interval:    cfg.KeeperInterval,
			Concurrency: cfg.KeeperConcurrency,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("setup keeper: %w", err)
		}
		a.healthChecker.AddCheck("keeper", a.keeper.Check)
	}

	vaultHandler, err := httpserver.NewVaultHandler(&httpserver.VaultHandlerConfig{
		Registry:      a.factory,
		Accounts:      a.ledger,
		Events:        reader,
		Clock:         clock,
		DefaultOracle: cfg.OracleAddr(),
		FaucetEnabled: cfg.FaucetEnabled,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("setup vault handler: %w", err)
	}

	a.httpServer, err = httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: a.healthChecker,
		Vaults:        vaultHandler,
		EventStream:   hub,
	})
	if err != nil {
		return fmt.Errorf("setup http server: %w", err)
	}

	return nil
}

func setupHealthChecker() *healthprobe.HealthChecker {
	return healthprobe.New()
}

// setupOracles builds the registry vaults resolve their feeds through. In
// static mode only the configured address resolves; in chainlink mode any
// address is dialed on first use.
func (a *App) setupOracles(ctx context.Context) (*oracle.Registry, error) {
	cfg := a.cfg

	if cfg.OracleMode != "chainlink" {
		registry := oracle.NewRegistry(nil)
		registry.Register(cfg.OracleAddr(), oracle.NewStatic(
			big.NewInt(cfg.OracleStaticPrice),
			uint8(cfg.OracleStaticDecimals), //nolint:gosec // validated to 0..36
		))

		a.logger.Info("static-oracle-registered",
			zap.String("oracle", cfg.OracleAddr().Hex()),
			zap.Int64("answer", cfg.OracleStaticPrice),
			zap.Int("decimals", cfg.OracleStaticDecimals))

		return registry, nil
	}

	client, err := ethclient.DialContext(ctx, cfg.EthRPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	a.ethClient = client

	decimalsCache, err := setupCache(a.logger)
	if err != nil {
		return nil, fmt.Errorf("setup cache: %w", err)
	}
	a.decimalsCache = decimalsCache

	limiter := oracle.NewRPCLimiter(cfg.OracleRPCRatePerSec, cfg.OracleRPCBurst)
	registry := oracle.NewRegistry(oracle.ChainlinkDialer(
		client,
		decimalsCache,
		cfg.OracleDecimalsTTL,
		limiter,
		a.logger,
	))

	// Dial the default feed eagerly so a bad address fails at startup.
	_, err = registry.Oracle(cfg.OracleAddr())
	if err != nil {
		return nil, err
	}

	a.logger.Info("chainlink-oracle-enabled",
		zap.String("oracle", cfg.OracleAddr().Hex()),
		zap.Float64("rpc-rate-per-sec", cfg.OracleRPCRatePerSec),
		zap.Int("rpc-burst", cfg.OracleRPCBurst))

	return registry, nil
}

func setupCache(logger *zap.Logger) (*cache.RistrettoCache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 1000, // 10x expected feeds
		MaxCost:     100,  // Maximum 100 feeds in cache
		BufferItems: 64,   // Buffer size for Get operations
		Logger:      logger,
	})
}

// setupStorage returns the configured event sink and, for the SQL backends,
// a reader for the event history endpoint.
func setupStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, storage.EventReader, error) {
	switch cfg.StorageMode {
	case "postgres":
		pgStorage, err := storage.NewPostgresStorage(ctx, &storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pgStorage, pgStorage, nil

	case "sqlite":
		sqliteStorage, err := storage.NewSQLiteStorage(ctx, &storage.SQLiteConfig{
			Path:   cfg.SQLitePath,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create sqlite storage: %w", err)
		}
		return sqliteStorage, sqliteStorage, nil
	}

	return storage.NewConsoleStorage(logger), nil, nil
}
