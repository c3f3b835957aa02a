package httpserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/0xF16/price-bets/internal/factory"
	"github.com/0xF16/price-bets/internal/ledger"
	"github.com/0xF16/price-bets/internal/oracle"
	"github.com/0xF16/price-bets/internal/storage"
	"github.com/0xF16/price-bets/internal/vault"
	"github.com/0xF16/price-bets/pkg/healthprobe"
	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	testOracle = common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")
	alice      = common.HexToAddress("0x000000000000000000000000000000000000000a")
	bob        = common.HexToAddress("0x000000000000000000000000000000000000000b")
	start      = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

type snapshotBody struct {
	Address       string   `json:"address"`
	Oracle        string   `json:"oracle"`
	Phase         string   `json:"phase"`
	Pool          string   `json:"pool"`
	Balance       string   `json:"balance"`
	AssessedPrice *int64   `json:"assessed_price"`
	Winners       []string `json:"winners"`
	Bets          []struct {
		Bettor       string `json:"bettor"`
		GuessedPrice int64  `json:"guessed_price"`
		StakedAmount string `json:"staked_amount"`
		Active       bool   `json:"active"`
	} `json:"bets"`
}

type fakeEventReader struct {
	events    []*vault.Event
	err       error
	lastLimit int
}

func (f *fakeEventReader) ListEvents(ctx context.Context, vaultAddr common.Address, limit int) ([]*vault.Event, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

type apiEnv struct {
	handler http.Handler
	ledger  *ledger.Ledger
	clock   *ledger.ManualClock
	events  *fakeEventReader
}

func newAPIEnv(t *testing.T, faucet bool) *apiEnv {
	t.Helper()

	logger := zap.NewNop()
	l := ledger.New(logger)
	clock := ledger.NewManualClock(start)

	registry := oracle.NewRegistry(nil)
	registry.Register(testOracle, oracle.NewStaticPrice(3000))

	f, err := factory.New(&factory.Config{
		Address: common.HexToAddress("0x00000000000000000000000000000000000fac70"),
		Vault: &vault.Config{
			Ledger:  l,
			Clock:   clock,
			Oracles: registry,
			Logger:  logger,
		},
		Logger: logger,
	})
	require.NoError(t, err)

	events := &fakeEventReader{}

	vaults, err := NewVaultHandler(&VaultHandlerConfig{
		Registry:      f,
		Accounts:      l,
		Events:        events,
		Clock:         clock,
		DefaultOracle: testOracle,
		FaucetEnabled: faucet,
		Logger:        logger,
	})
	require.NoError(t, err)

	server, err := New(&Config{
		Port:          "0",
		Logger:        logger,
		HealthChecker: healthprobe.New(),
		Vaults:        vaults,
	})
	require.NoError(t, err)

	return &apiEnv{handler: server.Handler(), ledger: l, clock: clock, events: events}
}

func (e *apiEnv) do(t *testing.T, method string, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

func (e *apiEnv) createVault(t *testing.T) string {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/vaults", CreateVaultRequest{
		BiddingDuration: "1h",
		RoundDuration:   "2h",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var snap snapshotBody
	decodeBody(t, w, &snap)
	return snap.Address
}

func TestNewVaultHandler_Validation(t *testing.T) {
	logger := zap.NewNop()
	l := ledger.New(logger)

	_, err := NewVaultHandler(nil)
	assert.Error(t, err)

	_, err = NewVaultHandler(&VaultHandlerConfig{Accounts: l, Logger: logger})
	assert.Error(t, err)

	_, err = NewVaultHandler(&VaultHandlerConfig{Registry: &factory.Factory{}, Logger: logger})
	assert.Error(t, err)

	_, err = NewVaultHandler(&VaultHandlerConfig{Registry: &factory.Factory{}, Accounts: l})
	assert.Error(t, err)
}

func TestVaultAPI_FullRound(t *testing.T) {
	env := newAPIEnv(t, true)

	for _, addr := range []common.Address{alice, bob} {
		w := env.do(t, http.MethodPost, "/api/accounts/"+addr.Hex()+"/credit", AccountRequest{Amount: "2000000000000000000"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	vaultAddr := env.createVault(t)
	base := "/api/vaults/" + vaultAddr

	w := env.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap snapshotBody
	decodeBody(t, w, &snap)
	assert.Equal(t, "bidding", snap.Phase)
	assert.Equal(t, testOracle.Hex(), snap.Oracle)

	w = env.do(t, http.MethodPost, base+"/bids", PlaceBidRequest{Bettor: alice.Hex(), GuessedPrice: 3000, Stake: "1000000000000000000"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, base+"/bids", PlaceBidRequest{Bettor: bob.Hex(), GuessedPrice: 3100, Stake: "500000000000000000"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Duplicate bid
	w = env.do(t, http.MethodPost, base+"/bids", PlaceBidRequest{Bettor: alice.Hex(), GuessedPrice: 2900, Stake: "1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	var errBody ErrorResponse
	decodeBody(t, w, &errBody)
	assert.Equal(t, "Address already placed a bid", errBody.Error)
	assert.Equal(t, "duplicate_bid", errBody.Code)

	// Too early to close
	w = env.do(t, http.MethodPost, base+"/close", nil)
	assert.Equal(t, http.StatusTooEarly, w.Code)

	env.clock.Advance(time.Hour)

	w = env.do(t, http.MethodPost, base+"/close", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decodeBody(t, w, &snap)
	assert.Equal(t, "resolved", snap.Phase)
	assert.Equal(t, []string{alice.Hex()}, snap.Winners)
	require.NotNil(t, snap.AssessedPrice)
	assert.Equal(t, int64(3000), *snap.AssessedPrice)
	assert.Equal(t, "0", snap.Pool)

	w = env.do(t, http.MethodGet, "/api/accounts/"+alice.Hex(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var account AccountResponse
	decodeBody(t, w, &account)
	assert.Equal(t, "2500000000000000000", account.Balance)

	// Bid after resolution
	w = env.do(t, http.MethodPost, base+"/bids", PlaceBidRequest{Bettor: common.HexToAddress("0xc").Hex(), GuessedPrice: 3000, Stake: "1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	decodeBody(t, w, &errBody)
	assert.Equal(t, "bidding_closed", errBody.Code)

	w = env.do(t, http.MethodGet, base+"/bets/"+bob.Hex(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var bet vault.BetView
	decodeBody(t, w, &bet)
	assert.Equal(t, int64(3100), bet.GuessedPrice)
	assert.Equal(t, "500000000000000000", bet.StakedAmount)
	assert.True(t, bet.Active)

	w = env.do(t, http.MethodGet, "/api/vaults", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []snapshotBody
	decodeBody(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, vaultAddr, list[0].Address)

	w = env.do(t, http.MethodPost, base+"/withdraw", AccountRequest{Bettor: alice.Hex()})
	assert.Equal(t, http.StatusConflict, w.Code)
	decodeBody(t, w, &errBody)
	assert.Equal(t, "nothing_to_withdraw", errBody.Code)
}

func TestVaultAPI_AssessThenClose(t *testing.T) {
	env := newAPIEnv(t, true)
	require.NoError(t, env.ledger.Credit(alice, big.NewInt(100)))

	base := "/api/vaults/" + env.createVault(t)

	w := env.do(t, http.MethodPost, base+"/bids", PlaceBidRequest{Bettor: alice.Hex(), GuessedPrice: 2990, Stake: "100"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, base+"/assess", nil)
	assert.Equal(t, http.StatusTooEarly, w.Code)

	env.clock.Advance(time.Hour)

	w = env.do(t, http.MethodPost, base+"/assess", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap snapshotBody
	decodeBody(t, w, &snap)
	assert.Equal(t, "assessed", snap.Phase)

	w = env.do(t, http.MethodPost, base+"/assess", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, base+"/close", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, base+"/close", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestVaultAPI_BadRequests(t *testing.T) {
	env := newAPIEnv(t, false)
	vaultAddr := env.createVault(t)
	otherVault := env.createVault(t)
	base := "/api/vaults/" + vaultAddr

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{
			name:   "invalid-window",
			method: http.MethodPost,
			path:   "/api/vaults",
			body:   CreateVaultRequest{BiddingDuration: "2h", RoundDuration: "1h"},
			status: http.StatusBadRequest,
			code:   "invalid_window",
		},
		{
			name:   "window-already-passed",
			method: http.MethodPost,
			path:   "/api/vaults",
			body:   CreateVaultRequest{BiddingEnd: start.Add(-time.Minute), WholeRoundEnd: start.Add(time.Hour)},
			status: http.StatusBadRequest,
			code:   "window_already_passed",
		},
		{
			name:   "missing-window",
			method: http.MethodPost,
			path:   "/api/vaults",
			body:   CreateVaultRequest{},
			status: http.StatusBadRequest,
		},
		{
			name:   "malformed-duration",
			method: http.MethodPost,
			path:   "/api/vaults",
			body:   CreateVaultRequest{BiddingDuration: "soon", RoundDuration: "2h"},
			status: http.StatusBadRequest,
		},
		{
			name:   "invalid-oracle",
			method: http.MethodPost,
			path:   "/api/vaults",
			body:   CreateVaultRequest{Oracle: "chainlink", BiddingDuration: "1h", RoundDuration: "2h"},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown-vault",
			method: http.MethodGet,
			path:   "/api/vaults/0x00000000000000000000000000000000000000ff",
			status: http.StatusNotFound,
		},
		{
			name:   "malformed-vault-address",
			method: http.MethodGet,
			path:   "/api/vaults/not-an-address",
			status: http.StatusBadRequest,
		},
		{
			name:   "invalid-stake",
			method: http.MethodPost,
			path:   base + "/bids",
			body:   PlaceBidRequest{Bettor: alice.Hex(), GuessedPrice: 3000, Stake: "0"},
			status: http.StatusBadRequest,
		},
		{
			name:   "insufficient-funds",
			method: http.MethodPost,
			path:   base + "/bids",
			body:   PlaceBidRequest{Bettor: alice.Hex(), GuessedPrice: 3000, Stake: "1"},
			status: http.StatusPaymentRequired,
		},
		{
			name:   "bettor-is-the-vault",
			method: http.MethodPost,
			path:   base + "/bids",
			body:   PlaceBidRequest{Bettor: vaultAddr, GuessedPrice: 3000, Stake: "1"},
			status: http.StatusBadRequest,
			code:   "invalid_bettor",
		},
		{
			name:   "bettor-is-another-vault",
			method: http.MethodPost,
			path:   base + "/bids",
			body:   PlaceBidRequest{Bettor: otherVault, GuessedPrice: 3000, Stake: "1"},
			status: http.StatusBadRequest,
			code:   "invalid_bettor",
		},
		{
			name:   "malformed-bettor",
			method: http.MethodGet,
			path:   base + "/bets/alice",
			status: http.StatusBadRequest,
		},
		{
			name:   "close-without-bets",
			method: http.MethodPost,
			path:   base + "/close",
			status: http.StatusConflict,
			code:   "no_participants",
		},
		{
			name:   "faucet-disabled",
			method: http.MethodPost,
			path:   "/api/accounts/" + alice.Hex() + "/credit",
			body:   AccountRequest{Amount: "1"},
			status: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())

			if tt.code != "" {
				var errBody ErrorResponse
				decodeBody(t, w, &errBody)
				assert.Equal(t, tt.code, errBody.Code)
			}
		})
	}
}

func TestVaultAPI_MalformedBody(t *testing.T) {
	env := newAPIEnv(t, true)

	req := httptest.NewRequest(http.MethodPost, "/api/vaults", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVaultAPI_Events(t *testing.T) {
	env := newAPIEnv(t, true)
	vaultAddr := env.createVault(t)

	event := vault.NewEvent(vault.EventBidPlaced, common.HexToAddress(vaultAddr), start)
	event.Actor = alice
	event.Amount = big.NewInt(42)
	env.events.events = []*vault.Event{event}

	w := env.do(t, http.MethodGet, "/api/vaults/"+vaultAddr+"/events?limit=5000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxEventLimit, env.events.lastLimit)

	var views []storage.EventView
	decodeBody(t, w, &views)
	require.Len(t, views, 1)
	assert.Equal(t, "42", views[0].Amount)
	assert.Equal(t, alice.Hex(), views[0].Actor)

	w = env.do(t, http.MethodGet, "/api/vaults/"+vaultAddr+"/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultEventLimit, env.events.lastLimit)

	w = env.do(t, http.MethodGet, "/api/vaults/"+vaultAddr+"/events?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.events.err = errors.New("db down")
	w = env.do(t, http.MethodGet, "/api/vaults/"+vaultAddr+"/events", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{err: fmt.Errorf("lookup: %w", factory.ErrUnknownVault), status: http.StatusNotFound},
		{err: vault.ErrForbidden, status: http.StatusForbidden},
		{err: vault.ErrTooEarly, status: http.StatusTooEarly},
		{err: vault.ErrInvalidWindow, status: http.StatusBadRequest},
		{err: vault.ErrWindowAlreadyPassed, status: http.StatusBadRequest},
		{err: vault.ErrInvalidOracle, status: http.StatusBadRequest},
		{err: vault.ErrInvalidStake, status: http.StatusBadRequest},
		{err: ledger.ErrInvalidAmount, status: http.StatusBadRequest},
		{err: vault.ErrInvalidBettor, status: http.StatusBadRequest},
		{err: fmt.Errorf("transfer stake: %w", ledger.ErrContractAccount), status: http.StatusBadRequest},
		{err: ledger.ErrSelfTransfer, status: http.StatusBadRequest},
		{err: fmt.Errorf("transfer stake: %w", ledger.ErrInsufficientFunds), status: http.StatusPaymentRequired},
		{err: vault.ErrInvalidOraclePrice, status: http.StatusBadGateway},
		{err: oracle.ErrStalePrice, status: http.StatusBadGateway},
		{err: vault.ErrDuplicateBid, status: http.StatusConflict},
		{err: vault.ErrBiddingClosed, status: http.StatusConflict},
		{err: vault.ErrAlreadyResolved, status: http.StatusConflict},
		{err: vault.ErrNoParticipants, status: http.StatusConflict},
		{err: vault.ErrNothingToWithdraw, status: http.StatusConflict},
		{err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, StatusForError(tt.err))
		})
	}
}
