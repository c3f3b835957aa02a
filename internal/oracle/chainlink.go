package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AggregatorV3ABI is the subset of the Chainlink AggregatorV3Interface used here.
const AggregatorV3ABI = `[
	{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"latestRoundData","outputs":[
		{"internalType":"uint80","name":"roundId","type":"uint80"},
		{"internalType":"int256","name":"answer","type":"int256"},
		{"internalType":"uint256","name":"startedAt","type":"uint256"},
		{"internalType":"uint256","name":"updatedAt","type":"uint256"},
		{"internalType":"uint80","name":"answeredInRound","type":"uint80"}
	],"stateMutability":"view","type":"function"}
]`

// ContractCaller executes read-only contract calls. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Feed is an on-chain price feed split into its two reads.
type Feed interface {
	PriceOracle
	Address() common.Address
	Decimals(ctx context.Context) (uint8, error)
	LatestAnswer(ctx context.Context) (*big.Int, error)
}

// ChainlinkConfig holds configuration for a Chainlink feed adapter.
type ChainlinkConfig struct {
	Address common.Address
	Caller  ContractCaller

	// Limiter is shared between feeds talking to the same RPC endpoint.
	// When nil, one is built from RatePerSec and Burst.
	Limiter    *rate.Limiter
	RatePerSec float64
	Burst      int

	Logger *zap.Logger
}

// Chainlink reads an AggregatorV3 price feed over JSON-RPC.
type Chainlink struct {
	address common.Address
	caller  ContractCaller
	abi     abi.ABI
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewChainlink creates a feed adapter.
func NewChainlink(cfg *ChainlinkConfig) (*Chainlink, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Caller == nil {
		return nil, errors.New("caller cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Address == (common.Address{}) {
		return nil, errors.New("feed address cannot be zero")
	}

	parsedABI, err := abi.JSON(strings.NewReader(AggregatorV3ABI))
	if err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewRPCLimiter(cfg.RatePerSec, cfg.Burst)
	}

	return &Chainlink{
		address: cfg.Address,
		caller:  cfg.Caller,
		abi:     parsedABI,
		limiter: limiter,
		logger:  cfg.Logger,
	}, nil
}

// NewRPCLimiter builds a limiter for feed calls. A non-positive rate disables limiting.
func NewRPCLimiter(perSec float64, burst int) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSec), burst)
}

// Address returns the feed contract address.
func (c *Chainlink) Address() common.Address {
	return c.address
}

// LatestPrice reads the latest answer and the feed decimals.
func (c *Chainlink) LatestPrice(ctx context.Context) (*big.Int, uint8, error) {
	return readFeed(ctx, c, "chainlink")
}

// Decimals calls decimals() on the feed.
func (c *Chainlink) Decimals(ctx context.Context) (decimals uint8, err error) {
	out, err := c.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}

	if len(out) != 1 {
		return 0, fmt.Errorf("unpack decimals: expected 1 value, got %d", len(out))
	}

	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unpack decimals: unexpected type %T", out[0])
	}

	return decimals, nil
}

// LatestAnswer calls latestRoundData() and returns the answer of a completed round.
func (c *Chainlink) LatestAnswer(ctx context.Context) (answer *big.Int, err error) {
	out, err := c.call(ctx, "latestRoundData")
	if err != nil {
		return nil, err
	}

	if len(out) != 5 {
		return nil, fmt.Errorf("unpack latestRoundData: expected 5 values, got %d", len(out))
	}

	roundID, ok1 := out[0].(*big.Int)
	answer, ok2 := out[1].(*big.Int)
	updatedAt, ok3 := out[3].(*big.Int)
	answeredInRound, ok4 := out[4].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, errors.New("unpack latestRoundData: unexpected types")
	}

	if updatedAt.Sign() == 0 || answeredInRound.Cmp(roundID) < 0 {
		return nil, fmt.Errorf("%w: round %s answered in %s", ErrStalePrice, roundID, answeredInRound)
	}

	c.logger.Debug("chainlink-round",
		zap.String("feed", c.address.Hex()),
		zap.String("round-id", roundID.String()),
		zap.String("answer", answer.String()),
		zap.Time("updated-at", time.Unix(updatedAt.Int64(), 0).UTC()))

	return answer, nil
}

func (c *Chainlink) call(ctx context.Context, method string) ([]interface{}, error) {
	err := c.limiter.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait rate limit: %w", err)
	}

	data, err := c.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack ABI: %w", err)
	}

	msg := ethereum.CallMsg{
		To:   &c.address,
		Data: data,
	}

	start := time.Now()
	result, err := c.caller.CallContract(ctx, msg, nil)
	RPCCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		RPCCallsTotal.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	RPCCallsTotal.WithLabelValues(method, "success").Inc()

	out, err := c.abi.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}

	return out, nil
}

func readFeed(ctx context.Context, feed Feed, source string) (*big.Int, uint8, error) {
	start := time.Now()
	defer func() {
		OracleReadDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	}()

	OracleReadsTotal.WithLabelValues(source, "attempt").Inc()

	decimals, err := feed.Decimals(ctx)
	if err != nil {
		OracleReadsTotal.WithLabelValues(source, "error").Inc()
		return nil, 0, fmt.Errorf("read decimals: %w", err)
	}

	answer, err := feed.LatestAnswer(ctx)
	if err != nil {
		OracleReadsTotal.WithLabelValues(source, "error").Inc()
		return nil, 0, fmt.Errorf("read answer: %w", err)
	}

	OracleReadsTotal.WithLabelValues(source, "success").Inc()
	return answer, decimals, nil
}
