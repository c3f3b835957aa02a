package cmd

import (
	"fmt"

	"github.com/0xF16/price-bets/internal/app"
	"github.com/0xF16/price-bets/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the vault service",
	Long: `Starts the vault service, which will:
1. Deploy the template vault and expose the factory over HTTP
2. Accept bids and settle vaults through the REST API
3. Close vaults automatically once their bidding window ends (keeper)
4. Stream audit events to WebSocket subscribers on /ws/events

Configuration is read from the environment (and .env when present).`,
	RunE: runService,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
}

func runService(cmd *cobra.Command, args []string) error {
	// Load config
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create logger
	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	application, err := app.New(cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	// Run app
	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
