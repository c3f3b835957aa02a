package cmd

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/0xF16/price-bets/internal/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseEther(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "whole", input: "2", want: "2000000000000000000"},
		{name: "fraction", input: "1.5", want: "1500000000000000000"},
		{name: "one-wei", input: "0.000000000000000001", want: "1"},
		{name: "below-one-wei", input: "0.0000000000000000001", wantErr: true},
		{name: "zero", input: "0", wantErr: true},
		{name: "negative", input: "-1", wantErr: true},
		{name: "garbage", input: "lots", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEther(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestScaleAnswer(t *testing.T) {
	got, err := scaleAnswer("3000.42", 8)
	require.NoError(t, err)
	assert.Equal(t, "300042000000", got.String())

	got, err = scaleAnswer("3000", 0)
	require.NoError(t, err)
	assert.Equal(t, "3000", got.String())

	_, err = scaleAnswer("3000.5", 0)
	assert.Error(t, err)

	_, err = scaleAnswer("abc", 8)
	assert.Error(t, err)
}

func TestParseBids(t *testing.T) {
	bids, err := parseBids("alice:3000:1.5, 0x000000000000000000000000000000000000000b:3100:0.5")
	require.NoError(t, err)
	require.Len(t, bids, 2)

	assert.Equal(t, "alice", bids[0].Name)
	assert.Equal(t, bettorAddress("alice"), bids[0].Bettor)
	assert.NotEqual(t, common.Address{}, bids[0].Bettor)
	assert.Equal(t, int64(3000), bids[0].Guess)
	assert.Equal(t, "1500000000000000000", bids[0].Stake.String())

	assert.Equal(t, common.HexToAddress("0xb"), bids[1].Bettor)

	_, err = parseBids("")
	assert.Error(t, err)

	_, err = parseBids("alice:3000")
	assert.Error(t, err)

	_, err = parseBids("alice:high:1")
	assert.Error(t, err)
}

func TestSimulateRound_TiedWinnersSplitPool(t *testing.T) {
	bids, err := parseBids("alice:2990:1,bob:3010:0.5,carol:3500:1.5")
	require.NoError(t, err)

	answer, err := scaleAnswer("3000.99", 8)
	require.NoError(t, err)

	result, err := simulateRound(context.Background(), answer, 8, bids, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, int64(3000), result.AssessedPrice)
	assert.Equal(t, "3000000000000000000", result.Pool.String())

	require.Len(t, result.Rows, 3)
	assert.True(t, result.Rows[0].Winner)
	assert.True(t, result.Rows[1].Winner)
	assert.False(t, result.Rows[2].Winner)

	assert.Equal(t, uint64(10), result.Rows[0].Distance)
	assert.Equal(t, uint64(10), result.Rows[1].Distance)
	assert.Equal(t, uint64(500), result.Rows[2].Distance)

	assert.Equal(t, "1500000000000000000", result.Rows[0].Payout.String())
	assert.Equal(t, "1500000000000000000", result.Rows[1].Payout.String())
	assert.Equal(t, 0, result.Rows[2].Payout.Sign())

	var out bytes.Buffer
	renderSimulation(&out, result)
	assert.Contains(t, out.String(), "Assessed price: 3000")
	assert.Contains(t, out.String(), "1.500000")
	assert.Contains(t, out.String(), result.Vault.Hex())
}

func TestSimulateRound_DuplicateBettor(t *testing.T) {
	bids, err := parseBids("alice:3000:1,alice:3100:1")
	require.NoError(t, err)

	_, err = simulateRound(context.Background(), big.NewInt(3000), 0, bids, zap.NewNop())
	assert.ErrorIs(t, err, vault.ErrDuplicateBid)
}

func TestSimulateRound_InvalidOracleAnswer(t *testing.T) {
	bids, err := parseBids("alice:3000:1")
	require.NoError(t, err)

	_, err = simulateRound(context.Background(), nil, 0, bids, zap.NewNop())
	assert.ErrorIs(t, err, vault.ErrInvalidOraclePrice)
}

func TestDistance(t *testing.T) {
	assert.Equal(t, uint64(5), distance(10, 5))
	assert.Equal(t, uint64(5), distance(5, 10))
	assert.Equal(t, uint64(0), distance(7, 7))
	assert.Equal(t, uint64(20), distance(-10, 10))
}
