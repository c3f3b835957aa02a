package app

import (
	"context"
	"sync"

	"github.com/0xF16/price-bets/internal/factory"
	"github.com/0xF16/price-bets/internal/keeper"
	"github.com/0xF16/price-bets/internal/ledger"
	"github.com/0xF16/price-bets/internal/storage"
	"github.com/0xF16/price-bets/pkg/cache"
	"github.com/0xF16/price-bets/pkg/config"
	"github.com/0xF16/price-bets/pkg/healthprobe"
	"github.com/0xF16/price-bets/pkg/httpserver"
	"github.com/0xF16/price-bets/pkg/websocket"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	ledger        *ledger.Ledger
	factory       *factory.Factory
	keeper        *keeper.Keeper // nil when disabled
	hub           *websocket.Hub
	storage       storage.Storage
	ethClient     *ethclient.Client // nil in static oracle mode
	decimalsCache *cache.RistrettoCache
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Options holds application options.
type Options struct {
	Clock ledger.Clock // For tests: defaults to the system clock
}

// Factory returns the vault factory.
func (a *App) Factory() *factory.Factory {
	return a.factory
}

// Ledger returns the account ledger.
func (a *App) Ledger() *ledger.Ledger {
	return a.ledger
}
