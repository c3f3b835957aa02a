package app

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("oracle-mode", a.cfg.OracleMode),
		zap.String("storage-mode", a.cfg.StorageMode),
		zap.Bool("keeper-enabled", a.cfg.KeeperEnabled),
		zap.String("log-level", a.cfg.LogLevel))

	a.startComponents()

	// Mark as ready
	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.String("factory", a.factory.Address().Hex()),
		zap.String("template", a.factory.Template().Address().Hex()))

	// Wait for shutdown signal
	return a.waitForShutdown()
}

func (a *App) startComponents() {
	// The hub must be delivering before the first vault event is published.
	a.wg.Add(1)
	go a.runEventHub()

	// Start HTTP server
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give HTTP server a moment to start
	time.Sleep(100 * time.Millisecond)

	if a.keeper == nil {
		a.logger.Info("keeper-not-started",
			zap.String("reason", "disabled - vaults must be closed through the API"))
		return
	}

	a.wg.Add(1)
	go a.runKeeper()
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runEventHub() {
	defer a.wg.Done()
	err := a.hub.Run(a.ctx)
	if err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("event-hub-error", zap.Error(err))
	}
}

func (a *App) runKeeper() {
	defer a.wg.Done()
	err := a.keeper.Run(a.ctx)
	if err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("keeper-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
