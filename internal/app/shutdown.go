package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Cancel context to signal all components
	a.cancel()

	// Shutdown components in dependency order
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server
	err := a.shutdownHTTPServer(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	// Wait for the keeper and hub loops before closing what they write to
	a.wg.Wait()

	a.release()

	a.logger.Info("application-shutdown-complete")

	return nil
}

func (a *App) shutdownHTTPServer(ctx context.Context) error {
	if a.httpServer == nil {
		return nil
	}
	return a.httpServer.Shutdown(ctx)
}

// release closes storage, the event hub and the RPC client. It tolerates a
// partially constructed App so New can clean up after a failed setup.
func (a *App) release() {
	// Closing the fan-out also closes the hub through the stream sink.
	if a.storage != nil {
		err := a.storage.Close()
		if err != nil {
			a.logger.Error("storage-close-error", zap.Error(err))
		}
	} else if a.hub != nil {
		err := a.hub.Close()
		if err != nil {
			a.logger.Error("event-hub-close-error", zap.Error(err))
		}
	}

	if a.decimalsCache != nil {
		a.decimalsCache.Close()
	}

	if a.ethClient != nil {
		a.ethClient.Close()
	}
}
