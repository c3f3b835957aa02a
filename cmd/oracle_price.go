package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/0xF16/price-bets/internal/oracle"
	"github.com/0xF16/price-bets/pkg/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var oraclePriceCmd = &cobra.Command{
	Use:   "oracle-price [feed-address]",
	Short: "Read a Chainlink feed the way a vault assesses it",
	Long: `Reads latestRoundData and decimals from an AggregatorV3 feed and prints
the raw answer next to the whole price a vault would record.

Without an address the configured ORACLE_ADDRESS is used.

Example:
  price-bets oracle-price 0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419 --rpc https://eth.llamarpc.com`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOraclePrice,
}

//nolint:gochecknoglobals // Cobra boilerplate
var oraclePriceRPC string

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(oraclePriceCmd)

	oraclePriceCmd.Flags().StringVarP(&oraclePriceRPC, "rpc", "r", "", "Ethereum RPC endpoint (default: ETH_RPC_URL)")
}

func runOraclePrice(cmd *cobra.Command, args []string) error {
	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	rpcURL := oraclePriceRPC
	if rpcURL == "" {
		rpcURL = os.Getenv("ETH_RPC_URL")
	}
	if rpcURL == "" {
		return fmt.Errorf("no RPC endpoint: pass --rpc or set ETH_RPC_URL")
	}

	feedHex := os.Getenv("ORACLE_ADDRESS")
	if len(args) == 1 {
		feedHex = args[0]
	}
	if !common.IsHexAddress(feedHex) {
		return fmt.Errorf("invalid feed address %q", feedHex)
	}
	feedAddr := common.HexToAddress(feedHex)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return fmt.Errorf("connect to RPC: %w", err)
	}
	defer client.Close()

	feed, err := oracle.NewChainlink(&oracle.ChainlinkConfig{
		Address: feedAddr,
		Caller:  client,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("create feed: %w", err)
	}

	answer, decimals, err := feed.LatestPrice(ctx)
	if err != nil {
		return fmt.Errorf("read feed: %w", err)
	}

	price, err := oracle.Normalize(answer, decimals)
	if err != nil {
		return fmt.Errorf("normalize answer: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Feed:     %s\n", feedAddr.Hex())
	fmt.Fprintf(out, "Answer:   %s\n", answer.String())
	fmt.Fprintf(out, "Decimals: %d\n", decimals)
	fmt.Fprintf(out, "Price:    %d\n", price)

	return nil
}
