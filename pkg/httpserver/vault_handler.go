package httpserver

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/0xF16/price-bets/internal/factory"
	"github.com/0xF16/price-bets/internal/ledger"
	"github.com/0xF16/price-bets/internal/oracle"
	"github.com/0xF16/price-bets/internal/storage"
	"github.com/0xF16/price-bets/internal/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
	maxBodyBytes      = 1 << 16
)

// VaultRegistry creates and looks up vaults. factory.Factory implements this interface.
type VaultRegistry interface {
	CreateVault(ctx context.Context, oracleAddr common.Address, biddingEnd time.Time, wholeRoundEnd time.Time) (*vault.Vault, error)
	Vault(addr common.Address) (*vault.Vault, error)
	Vaults() []*vault.Vault
}

// Accounts exposes ledger balances. ledger.Ledger implements this interface.
type Accounts interface {
	Balance(addr common.Address) *big.Int
	Credit(addr common.Address, amount *big.Int) error
}

// VaultHandler serves the vault API.
type VaultHandler struct {
	registry      VaultRegistry
	accounts      Accounts
	events        storage.EventReader
	clock         ledger.Clock
	defaultOracle common.Address
	faucet        bool
	logger        *zap.Logger
}

// VaultHandlerConfig holds configuration for the vault API.
type VaultHandlerConfig struct {
	Registry      VaultRegistry
	Accounts      Accounts
	Events        storage.EventReader // optional, enables GET /api/vaults/{address}/events
	Clock         ledger.Clock
	DefaultOracle common.Address
	FaucetEnabled bool
	Logger        *zap.Logger
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// CreateVaultRequest is the body of POST /api/vaults. Absolute times take
// precedence over durations, which are relative to now.
type CreateVaultRequest struct {
	Oracle          string    `json:"oracle,omitempty"`
	BiddingEnd      time.Time `json:"bidding_end,omitempty"`
	WholeRoundEnd   time.Time `json:"whole_round_end,omitempty"`
	BiddingDuration string    `json:"bidding_duration,omitempty"`
	RoundDuration   string    `json:"round_duration,omitempty"`
}

// PlaceBidRequest is the body of POST /api/vaults/{address}/bids.
type PlaceBidRequest struct {
	Bettor       string `json:"bettor"`
	GuessedPrice int64  `json:"guessed_price"`
	Stake        string `json:"stake"` // wei, decimal
}

// AccountRequest is the body of withdraw and credit requests.
type AccountRequest struct {
	Bettor string `json:"bettor,omitempty"`
	Amount string `json:"amount,omitempty"` // wei, decimal
}

// AccountResponse reports a ledger balance.
type AccountResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// WithdrawResponse reports a completed withdrawal.
type WithdrawResponse struct {
	Bettor string `json:"bettor"`
	Amount string `json:"amount"`
}

// NewVaultHandler creates a new vault handler.
func NewVaultHandler(cfg *VaultHandlerConfig) (*VaultHandler, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Registry == nil {
		return nil, errors.New("vault registry cannot be nil")
	}

	if cfg.Accounts == nil {
		return nil, errors.New("accounts cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = ledger.SystemClock{}
	}

	return &VaultHandler{
		registry:      cfg.Registry,
		accounts:      cfg.Accounts,
		events:        cfg.Events,
		clock:         clock,
		defaultOracle: cfg.DefaultOracle,
		faucet:        cfg.FaucetEnabled,
		logger:        cfg.Logger,
	}, nil
}

// Routes mounts the vault API on r.
func (h *VaultHandler) Routes(r chi.Router) {
	r.Route("/api/vaults", func(r chi.Router) {
		r.Get("/", h.HandleListVaults)
		r.Post("/", h.HandleCreateVault)

		r.Route("/{address}", func(r chi.Router) {
			r.Get("/", h.HandleGetVault)
			r.Get("/bets/{bettor}", h.HandleGetBet)
			r.Post("/bids", h.HandlePlaceBid)
			r.Post("/assess", h.HandleAssess)
			r.Post("/close", h.HandleClose)
			r.Post("/withdraw", h.HandleWithdraw)

			if h.events != nil {
				r.Get("/events", h.HandleListEvents)
			}
		})
	})

	r.Route("/api/accounts/{address}", func(r chi.Router) {
		r.Get("/", h.HandleGetAccount)

		if h.faucet {
			r.Post("/credit", h.HandleCredit)
		}
	})
}

// HandleListVaults handles GET /api/vaults.
func (h *VaultHandler) HandleListVaults(w http.ResponseWriter, r *http.Request) {
	vaults := h.registry.Vaults()

	snapshots := make([]vault.Snapshot, 0, len(vaults))
	for _, v := range vaults {
		snapshots = append(snapshots, v.Snapshot())
	}

	h.writeJSON(w, http.StatusOK, snapshots)
}

// HandleCreateVault handles POST /api/vaults.
func (h *VaultHandler) HandleCreateVault(w http.ResponseWriter, r *http.Request) {
	var req CreateVaultRequest
	if !h.decode(w, r, &req) {
		return
	}

	oracleAddr := h.defaultOracle
	if req.Oracle != "" {
		addr, ok := parseAddress(req.Oracle)
		if !ok {
			h.writeError(w, "invalid oracle address", "", http.StatusBadRequest)
			return
		}
		oracleAddr = addr
	}

	biddingEnd, wholeRoundEnd, err := h.resolveWindow(req)
	if err != nil {
		h.writeError(w, err.Error(), "", http.StatusBadRequest)
		return
	}

	v, err := h.registry.CreateVault(r.Context(), oracleAddr, biddingEnd, wholeRoundEnd)
	if err != nil {
		h.writeVaultError(w, "create-vault", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, v.Snapshot())
}

func (h *VaultHandler) resolveWindow(req CreateVaultRequest) (time.Time, time.Time, error) {
	biddingEnd := req.BiddingEnd
	wholeRoundEnd := req.WholeRoundEnd
	now := h.clock.Now()

	if biddingEnd.IsZero() {
		if req.BiddingDuration == "" {
			return time.Time{}, time.Time{}, errors.New("bidding_end or bidding_duration is required")
		}
		d, err := time.ParseDuration(req.BiddingDuration)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid bidding_duration")
		}
		biddingEnd = now.Add(d)
	}

	if wholeRoundEnd.IsZero() {
		if req.RoundDuration == "" {
			return time.Time{}, time.Time{}, errors.New("whole_round_end or round_duration is required")
		}
		d, err := time.ParseDuration(req.RoundDuration)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid round_duration")
		}
		wholeRoundEnd = now.Add(d)
	}

	return biddingEnd, wholeRoundEnd, nil
}

// HandleGetVault handles GET /api/vaults/{address}.
func (h *VaultHandler) HandleGetVault(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, v.Snapshot())
}

// HandleGetBet handles GET /api/vaults/{address}/bets/{bettor}.
func (h *VaultHandler) HandleGetBet(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}

	bettor, ok := parseAddress(chi.URLParam(r, "bettor"))
	if !ok {
		h.writeError(w, "invalid bettor address", "", http.StatusBadRequest)
		return
	}

	bet := v.Bet(bettor)
	bet.Bettor = bettor

	h.writeJSON(w, http.StatusOK, vault.NewBetView(bet))
}

// HandlePlaceBid handles POST /api/vaults/{address}/bids.
func (h *VaultHandler) HandlePlaceBid(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req PlaceBidRequest
	if !h.decode(w, r, &req) {
		return
	}

	bettor, ok := parseAddress(req.Bettor)
	if !ok {
		h.writeError(w, "invalid bettor address", "", http.StatusBadRequest)
		return
	}

	stake, ok := parseWei(req.Stake)
	if !ok {
		h.writeError(w, "invalid stake", "", http.StatusBadRequest)
		return
	}

	err := v.PlaceBid(r.Context(), bettor, req.GuessedPrice, stake)
	if err != nil {
		h.writeVaultError(w, "place-bid", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, vault.NewBetView(v.Bet(bettor)))
}

// HandleAssess handles POST /api/vaults/{address}/assess.
func (h *VaultHandler) HandleAssess(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}

	err := v.AssessPrice(r.Context())
	if err != nil {
		h.writeVaultError(w, "assess-price", err)
		return
	}

	h.writeJSON(w, http.StatusOK, v.Snapshot())
}

// HandleClose handles POST /api/vaults/{address}/close.
func (h *VaultHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}

	err := v.Close(r.Context())
	if err != nil {
		h.writeVaultError(w, "close", err)
		return
	}

	h.writeJSON(w, http.StatusOK, v.Snapshot())
}

// HandleWithdraw handles POST /api/vaults/{address}/withdraw.
func (h *VaultHandler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req AccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	bettor, ok := parseAddress(req.Bettor)
	if !ok {
		h.writeError(w, "invalid bettor address", "", http.StatusBadRequest)
		return
	}

	amount, err := v.Withdraw(r.Context(), bettor)
	if err != nil {
		h.writeVaultError(w, "withdraw", err)
		return
	}

	h.writeJSON(w, http.StatusOK, WithdrawResponse{
		Bettor: bettor.Hex(),
		Amount: amount.String(),
	})
}

// HandleListEvents handles GET /api/vaults/{address}/events?limit=N.
func (h *VaultHandler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	v, ok := h.lookup(w, r)
	if !ok {
		return
	}

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, "invalid limit", "", http.StatusBadRequest)
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := h.events.ListEvents(r.Context(), v.Address(), limit)
	if err != nil {
		h.logger.Error("list-events-failed",
			zap.String("vault", v.Address().Hex()),
			zap.Error(err))
		h.writeError(w, "failed to list events", "", http.StatusInternalServerError)
		return
	}

	views := make([]storage.EventView, 0, len(events))
	for _, e := range events {
		views = append(views, storage.NewEventView(e))
	}

	h.writeJSON(w, http.StatusOK, views)
}

// HandleGetAccount handles GET /api/accounts/{address}.
func (h *VaultHandler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(chi.URLParam(r, "address"))
	if !ok {
		h.writeError(w, "invalid address", "", http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusOK, AccountResponse{
		Address: addr.Hex(),
		Balance: h.accounts.Balance(addr).String(),
	})
}

// HandleCredit handles POST /api/accounts/{address}/credit. It is only
// mounted when the faucet is enabled.
func (h *VaultHandler) HandleCredit(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(chi.URLParam(r, "address"))
	if !ok {
		h.writeError(w, "invalid address", "", http.StatusBadRequest)
		return
	}

	var req AccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	amount, ok := parseWei(req.Amount)
	if !ok {
		h.writeError(w, "invalid amount", "", http.StatusBadRequest)
		return
	}

	err := h.accounts.Credit(addr, amount)
	if err != nil {
		h.writeVaultError(w, "credit", err)
		return
	}

	h.logger.Info("account-credited",
		zap.String("address", addr.Hex()),
		zap.String("amount", amount.String()))

	h.writeJSON(w, http.StatusOK, AccountResponse{
		Address: addr.Hex(),
		Balance: h.accounts.Balance(addr).String(),
	})
}

func (h *VaultHandler) lookup(w http.ResponseWriter, r *http.Request) (*vault.Vault, bool) {
	addr, ok := parseAddress(chi.URLParam(r, "address"))
	if !ok {
		h.writeError(w, "invalid vault address", "", http.StatusBadRequest)
		return nil, false
	}

	v, err := h.registry.Vault(addr)
	if err != nil {
		h.writeVaultError(w, "lookup", err)
		return nil, false
	}

	return v, true
}

func (h *VaultHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil {
		h.writeError(w, "invalid request body", "", http.StatusBadRequest)
		return false
	}

	return true
}

// writeVaultError maps domain errors to HTTP statuses.
func (h *VaultHandler) writeVaultError(w http.ResponseWriter, operation string, err error) {
	status := StatusForError(err)

	if status >= http.StatusInternalServerError {
		h.logger.Error("vault-request-failed",
			zap.String("operation", operation),
			zap.Error(err))
	} else {
		h.logger.Debug("vault-request-rejected",
			zap.String("operation", operation),
			zap.Error(err))
	}

	message := err.Error()
	var vErr *vault.Error
	if errors.As(err, &vErr) && status < http.StatusInternalServerError {
		message = vErr.Reason
	}

	h.writeError(w, message, vault.Code(err), status)
}

// StatusForError returns the HTTP status for a domain error.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, factory.ErrUnknownVault):
		return http.StatusNotFound
	case errors.Is(err, vault.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, vault.ErrTooEarly):
		return http.StatusTooEarly
	case errors.Is(err, vault.ErrInvalidWindow),
		errors.Is(err, vault.ErrWindowAlreadyPassed),
		errors.Is(err, vault.ErrInvalidOracle),
		errors.Is(err, vault.ErrInvalidStake),
		errors.Is(err, vault.ErrInvalidBettor),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrContractAccount),
		errors.Is(err, ledger.ErrSelfTransfer):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, vault.ErrInvalidOraclePrice),
		errors.Is(err, oracle.ErrUnknownOracle),
		errors.Is(err, oracle.ErrInvalidPrice),
		errors.Is(err, oracle.ErrStalePrice):
		return http.StatusBadGateway
	case vault.Code(err) != "":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *VaultHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

func (h *VaultHandler) writeError(w http.ResponseWriter, message string, code string, status int) {
	h.writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	addr := common.HexToAddress(s)
	return addr, addr != (common.Address{})
}

func parseWei(s string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, false
	}
	return amount, true
}
