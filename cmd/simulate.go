package cmd

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/0xF16/price-bets/internal/factory"
	"github.com/0xF16/price-bets/internal/ledger"
	"github.com/0xF16/price-bets/internal/oracle"
	"github.com/0xF16/price-bets/internal/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Play one vault round in memory and print the settlement",
	Long: `Creates a vault against a fixed oracle answer, places the given bids,
closes the round and prints who won and what they were paid.

Bids are name:guess:stake triples separated by commas. The stake is in ether
and the name is either a hex address or a label hashed into one.

Example:
  price-bets simulate --price 3000.42 --bids alice:3000:1.5,bob:3100:0.5,carol:3001:1`,
	RunE: runSimulate,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	simPrice    string
	simDecimals uint8
	simBids     string
)

//nolint:gochecknoglobals // fixed simulation accounts
var (
	simOracle   = common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")
	simDeployer = common.HexToAddress("0x00000000000000000000000000000000000fAc70")
	weiPerEther = big.NewInt(1_000_000_000_000_000_000)
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVar(&simPrice, "price", "3000", "Asset price the oracle reports")
	simulateCmd.Flags().Uint8Var(&simDecimals, "decimals", 8, "Decimals the oracle answer is scaled by")
	simulateCmd.Flags().StringVar(&simBids, "bids", "", "Bids as name:guess:stake[,name:guess:stake...]")
	_ = simulateCmd.MarkFlagRequired("bids")
}

type simBid struct {
	Name   string
	Bettor common.Address
	Guess  int64
	Stake  *big.Int
}

type simRow struct {
	simBid
	Distance uint64
	Payout   *big.Int
	Winner   bool
}

type simResult struct {
	Vault         common.Address
	AssessedPrice int64
	Pool          *big.Int
	Rows          []simRow
}

func runSimulate(cmd *cobra.Command, args []string) error {
	bids, err := parseBids(simBids)
	if err != nil {
		return err
	}

	answer, err := scaleAnswer(simPrice, simDecimals)
	if err != nil {
		return err
	}

	result, err := simulateRound(cmd.Context(), answer, simDecimals, bids, zap.NewNop())
	if err != nil {
		return err
	}

	renderSimulation(cmd.OutOrStdout(), result)
	return nil
}

// simulateRound runs a full round on a private ledger. Every bettor is funded
// with exactly their stake, so their closing balance is their payout.
func simulateRound(
	ctx context.Context,
	answer *big.Int,
	decimals uint8,
	bids []simBid,
	logger *zap.Logger,
) (*simResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	l := ledger.New(logger)
	now := time.Now().UTC().Truncate(time.Second)
	clock := ledger.NewManualClock(now)

	registry := oracle.NewRegistry(nil)
	registry.Register(simOracle, oracle.NewStatic(answer, decimals))

	f, err := factory.New(&factory.Config{
		Address: simDeployer,
		Vault: &vault.Config{
			Ledger:  l,
			Clock:   clock,
			Oracles: registry,
			Logger:  logger,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create factory: %w", err)
	}

	v, err := f.CreateVault(ctx, simOracle, now.Add(time.Hour), now.Add(2*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("create vault: %w", err)
	}

	for _, bid := range bids {
		err = l.Credit(bid.Bettor, bid.Stake)
		if err != nil {
			return nil, fmt.Errorf("fund %s: %w", bid.Name, err)
		}

		err = v.PlaceBid(ctx, bid.Bettor, bid.Guess, bid.Stake)
		if err != nil {
			return nil, fmt.Errorf("bid for %s: %w", bid.Name, err)
		}
	}

	pool := v.Pool()

	clock.Advance(time.Hour)

	err = v.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("close vault: %w", err)
	}

	price, _ := v.AssessedPrice()

	winners := make(map[common.Address]bool)
	for _, w := range v.Winners() {
		winners[w] = true
	}

	rows := make([]simRow, 0, len(bids))
	for _, bid := range bids {
		rows = append(rows, simRow{
			simBid:   bid,
			Distance: distance(bid.Guess, price),
			Payout:   l.Balance(bid.Bettor),
			Winner:   winners[bid.Bettor],
		})
	}

	return &simResult{
		Vault:         v.Address(),
		AssessedPrice: price,
		Pool:          pool,
		Rows:          rows,
	}, nil
}

func renderSimulation(w io.Writer, result *simResult) {
	fmt.Fprintf(w, "Vault: %s\n", result.Vault.Hex())
	fmt.Fprintf(w, "Assessed price: %d\n", result.AssessedPrice)
	fmt.Fprintf(w, "Pool: %s ETH\n\n", formatEther(result.Pool))

	table := tablewriter.NewWriter(w)
	table.Header("Bettor", "Address", "Guess", "Distance", "Stake (ETH)", "Payout (ETH)", "Winner")

	for _, row := range result.Rows {
		winner := ""
		if row.Winner {
			winner = "yes"
		}

		table.Append(
			row.Name,
			row.Bettor.Hex(),
			strconv.FormatInt(row.Guess, 10),
			strconv.FormatUint(row.Distance, 10),
			formatEther(row.Stake),
			formatEther(row.Payout),
			winner,
		)
	}

	table.Render()
}

// parseBids parses name:guess:stake triples.
func parseBids(s string) ([]simBid, error) {
	var bids []simBid

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("bid %q: expected name:guess:stake", part)
		}

		guess, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bid %q: invalid guess: %w", part, err)
		}

		stake, err := parseEther(fields[2])
		if err != nil {
			return nil, fmt.Errorf("bid %q: %w", part, err)
		}

		bids = append(bids, simBid{
			Name:   fields[0],
			Bettor: bettorAddress(fields[0]),
			Guess:  guess,
			Stake:  stake,
		})
	}

	if len(bids) == 0 {
		return nil, fmt.Errorf("no bids given")
	}

	return bids, nil
}

// bettorAddress maps a label to an address. Hex addresses are used as is.
func bettorAddress(name string) common.Address {
	if common.IsHexAddress(name) {
		return common.HexToAddress(name)
	}
	return common.BytesToAddress(crypto.Keccak256([]byte(name))[12:])
}

// parseEther converts a decimal ether amount to wei.
func parseEther(s string) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid ether amount %q", s)
	}

	r.Mul(r, new(big.Rat).SetInt(weiPerEther))
	if !r.IsInt() {
		return nil, fmt.Errorf("ether amount %q is finer than one wei", s)
	}

	wei := new(big.Int).Set(r.Num())
	if wei.Sign() <= 0 {
		return nil, fmt.Errorf("ether amount %q must be positive", s)
	}
	return wei, nil
}

// scaleAnswer converts a decimal price to an oracle answer with the given decimals.
func scaleAnswer(price string, decimals uint8) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(price)
	if !ok {
		return nil, fmt.Errorf("invalid price %q", price)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	if !r.IsInt() {
		return nil, fmt.Errorf("price %q has more than %d decimals", price, decimals)
	}

	return new(big.Int).Set(r.Num()), nil
}

func formatEther(wei *big.Int) string {
	return new(big.Rat).SetFrac(wei, weiPerEther).FloatString(6)
}

func distance(guess int64, price int64) uint64 {
	if guess > price {
		return uint64(guess) - uint64(price)
	}
	return uint64(price) - uint64(guess)
}
