package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "price-bets",
	Short: "Price prediction escrow vaults",
	Long: `Price prediction escrow vaults settled against an on-chain price feed.

Bettors stake ether on a guess of the asset price while a vault's bidding
window is open. Once it closes, the vault reads its oracle and pays the whole
pool to the guesses closest to the assessed price. A factory clones new
vaults from a single template.`,
	PersistentPreRunE: loadDotEnv,
	SilenceUsage:      true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadDotEnv reads .env into the environment when the file exists.
func loadDotEnv(cmd *cobra.Command, args []string) error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
