package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/0xF16/price-bets/internal/storage"
	"github.com/0xF16/price-bets/pkg/config"
	"github.com/0xF16/price-bets/pkg/websocket"
	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var watchEventsCmd = &cobra.Command{
	Use:   "watch-events",
	Short: "Follow the live vault event stream",
	Long: `Connects to a running service's /ws/events stream and prints vault audit
events as they happen. The connection is re-established with backoff when it drops.

Example:
  price-bets watch-events --url ws://localhost:8080/ws/events --vault 0x...`,
	Args: cobra.NoArgs,
	RunE: runWatchEvents,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	watchURL   string
	watchVault string
	watchJSON  bool
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(watchEventsCmd)

	watchEventsCmd.Flags().StringVarP(&watchURL, "url", "u", "ws://localhost:8080/ws/events", "Event stream URL")
	watchEventsCmd.Flags().StringVar(&watchVault, "vault", "", "Only show events for this vault")
	watchEventsCmd.Flags().BoolVarP(&watchJSON, "json", "j", false, "Output raw JSON messages")
}

func runWatchEvents(cmd *cobra.Command, args []string) error {
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

	var vaultFilter string
	if watchVault != "" {
		if !common.IsHexAddress(watchVault) {
			return fmt.Errorf("invalid vault address %q", watchVault)
		}
		vaultFilter = common.HexToAddress(watchVault).Hex()
	}

	subscriber, err := websocket.NewSubscriber(websocket.Config{
		URL:                   watchURL,
		DialTimeout:           cfg.WSDialTimeout,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		Logger:                logger,
	})
	if err != nil {
		return fmt.Errorf("create subscriber: %w", err)
	}

	err = subscriber.Start()
	if err != nil {
		return fmt.Errorf("start subscriber: %w", err)
	}
	defer subscriber.Close()

	fmt.Println("Connected! Watching for vault events...")

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	msgChan := subscriber.Messages()

	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			return nil
		case msg, ok := <-msgChan:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			var event storage.EventView
			err = json.Unmarshal(msg, &event)
			if err != nil {
				logger.Warn("undecodable-stream-message", zap.Error(err))
				continue
			}

			if vaultFilter != "" && event.Vault != vaultFilter {
				continue
			}

			if watchJSON {
				fmt.Println(string(msg))
				continue
			}

			printEvent(w, &event)
		}
	}
}

func printEvent(w *tabwriter.Writer, event *storage.EventView) {
	timestamp := event.At.Local().Format("15:04:05")

	fmt.Fprintf(w, "[%s] %s\t%s\t", timestamp, event.Kind, shortAddress(event.Vault))

	switch {
	case event.Amount != "" && event.Actor != "":
		fmt.Fprintf(w, "%s\t%s wei\n", shortAddress(event.Actor), event.Amount)
	case event.Price != 0:
		fmt.Fprintf(w, "price\t%d\n", event.Price)
	case event.Actor != "":
		fmt.Fprintf(w, "%s\t\n", shortAddress(event.Actor))
	default:
		fmt.Fprintf(w, "\t\n")
	}

	w.Flush()
}

func shortAddress(addr string) string {
	if len(addr) < 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
