/**
 * @description
 * This file contains the HTTP handlers for the wallet-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer; every engine outcome maps deterministically to one status
 * category here.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5, github.com/google/uuid: Token issuing.
 * - github.com/shopspring/decimal: Fixed-point amounts.
 * - golang.org/x/crypto/bcrypt: Password hashing.
 * - internal/app, internal/domain: Service logic and typed errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/walletcore/wallet-service/internal/app"
	"github.com/walletcore/wallet-service/internal/domain"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 50
	minPasswordLength = 6
)

// WalletHandlers holds the application service and auth/limiting settings
// the handlers use.
type WalletHandlers struct {
	service         *app.Service
	limiter         app.RateLimiter
	jwtSecret       string
	tokenTTL        time.Duration
	bcryptCost      int
	transfersPerMin int
}

// NewWalletHandlers creates a new instance of WalletHandlers.
func NewWalletHandlers(service *app.Service, jwtSecret string, tokenTTL time.Duration, bcryptCost int) *WalletHandlers {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &WalletHandlers{
		service:    service,
		jwtSecret:  jwtSecret,
		tokenTTL:   tokenTTL,
		bcryptCost: bcryptCost,
	}
}

// SetTransferRateLimiter enables per-account rate limiting on transfer creation.
func (h *WalletHandlers) SetTransferRateLimiter(limiter app.RateLimiter, perMinute int) {
	h.limiter = limiter
	h.transfersPerMin = perMinute
}

// tokenResponse is returned by the login endpoint.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// adjustmentResponse is returned by the deposit and withdraw endpoints.
type adjustmentResponse struct {
	Message string          `json:"message"`
	Balance decimal.Decimal `json:"balance"`
}

// RegisterHandler creates a new account with an optional initial balance.
func (h *WalletHandlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if len(req.Username) < minUsernameLength || len(req.Username) > maxUsernameLength {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Username must be between %d and %d characters", minUsernameLength, maxUsernameLength))
		return
	}
	if len(req.Password) < minPasswordLength {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
		return
	}

	initialBalance := decimal.Zero
	if req.InitialBalance != nil {
		initialBalance = *req.InitialBalance
		if initialBalance.IsNegative() || initialBalance.Exponent() < -2 {
			h.writeError(w, http.StatusBadRequest, "Initial balance must be non-negative with at most two decimal places")
			return
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.bcryptCost)
	if err != nil {
		log.Printf("level=error component=api msg=\"password hash failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Could not create account")
		return
	}

	account, err := h.service.CreateAccount(r.Context(), req.Username, string(hash), initialBalance)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, account)
}

// LoginHandler verifies credentials and issues a bearer token.
func (h *WalletHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	accountID, err := h.service.VerifyCredentials(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(accountID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenTTL)),
		ID:        uuid.NewString(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.jwtSecret))
	if err != nil {
		log.Printf("level=error component=api msg=\"token signing failed\" account_id=%d err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not issue token")
		return
	}

	h.writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(h.tokenTTL.Seconds()),
	})
}

// MeHandler returns the authenticated account's profile snapshot.
func (h *WalletHandlers) MeHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Could not get account ID from context", http.StatusInternalServerError)
		return
	}

	account, err := h.service.FindAccountByID(r.Context(), accountID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// GetBalanceHandler returns the committed balance of the authenticated account.
func (h *WalletHandlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Could not get account ID from context", http.StatusInternalServerError)
		return
	}

	balance, err := h.service.GetBalance(r.Context(), accountID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, domain.BalanceResponse{Balance: balance})
}

// DepositHandler credits the authenticated account.
func (h *WalletHandlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	h.adjustBalance(w, r, false)
}

// WithdrawHandler debits the authenticated account, rejecting overdrafts.
func (h *WalletHandlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	h.adjustBalance(w, r, true)
}

func (h *WalletHandlers) adjustBalance(w http.ResponseWriter, r *http.Request, withdraw bool) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Could not get account ID from context", http.StatusInternalServerError)
		return
	}

	var req domain.BalanceAdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validAmount(req.Amount) {
		h.writeError(w, http.StatusBadRequest, "Amount must be positive with at most two decimal places")
		return
	}

	delta := req.Amount
	verb := "deposited"
	if withdraw {
		delta = delta.Neg()
		verb = "withdrawn"
	}

	newBalance, err := h.service.AdjustBalance(r.Context(), accountID, delta, true)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, adjustmentResponse{
		Message: fmt.Sprintf("%s %s", req.Amount.StringFixed(2), verb),
		Balance: newBalance,
	})
}

// CreateTransferHandler executes a transfer from the authenticated account to
// the account addressed by username.
func (h *WalletHandlers) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Could not get account ID from context", http.StatusInternalServerError)
		return
	}

	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validAmount(req.Amount) {
		h.writeError(w, http.StatusBadRequest, "Amount must be positive with at most two decimal places")
		return
	}
	if req.Description != nil && len(*req.Description) > domain.MaxDescriptionLength {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Description must be at most %d characters", domain.MaxDescriptionLength))
		return
	}

	if !h.allowTransfer(w, r, accountID) {
		return
	}

	source, err := h.service.FindAccountByID(r.Context(), accountID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	recipient, err := h.service.FindAccountByUsername(r.Context(), strings.TrimSpace(req.ToUsername))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, fmt.Sprintf("Account %q not found", req.ToUsername))
			return
		}
		h.writeServiceError(w, err)
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	transfer, err := h.service.ExecuteTransfer(r.Context(), source.ID, recipient.ID, req.Amount, req.Description, idempotencyKey)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, domain.TransferView{
		ID:           transfer.ID,
		FromUsername: source.Username,
		ToUsername:   recipient.Username,
		Amount:       transfer.Amount,
		Description:  transfer.Description,
		CreatedAt:    transfer.CreatedAt,
	})
}

// allowTransfer consults the rate limiter; it fails open when redis is
// unavailable so money movement never depends on the limiter being healthy.
func (h *WalletHandlers) allowTransfer(w http.ResponseWriter, r *http.Request, accountID int64) bool {
	if h.limiter == nil || h.transfersPerMin <= 0 {
		return true
	}

	count, retryAfter, err := h.limiter.ConsumeRateLimit(r.Context(), "transfer_create", strconv.FormatInt(accountID, 10), h.transfersPerMin, time.Minute)
	if err != nil {
		log.Printf("level=warn component=api msg=\"rate limiter unavailable; allowing request\" account_id=%d err=%v", accountID, err)
		return true
	}
	if count > h.transfersPerMin {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		h.writeError(w, http.StatusTooManyRequests, "Too many transfer requests. Please wait and try again.")
		return false
	}
	return true
}

// ListTransfersHandler returns the account's transfer history, newest first.
func (h *WalletHandlers) ListTransfersHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Could not get account ID from context", http.StatusInternalServerError)
		return
	}

	opts := domain.TransferListOptions{Limit: 50}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 100 {
			h.writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		opts.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			h.writeError(w, http.StatusBadRequest, "offset must be non-negative")
			return
		}
		opts.Offset = offset
	}

	transfers, err := h.service.ListTransfers(r.Context(), accountID, opts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, transfers)
}

// GetTransferHandler returns one ledger record the caller participated in.
func (h *WalletHandlers) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Could not get account ID from context", http.StatusInternalServerError)
		return
	}

	transferID, err := strconv.ParseInt(chi.URLParam(r, "transferID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transfer id")
		return
	}

	view, err := h.service.GetTransfer(r.Context(), accountID, transferID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// validAmount accepts strictly positive amounts with at most two fractional
// digits; anything more precise is rejected, never rounded.
func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Exponent() >= -2
}

// writeServiceError maps the typed error taxonomy onto status categories:
// not-found, validation, conflict/insufficient-funds, auth, transient.
func (h *WalletHandlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSourceNotFound),
		errors.Is(err, domain.ErrDestinationNotFound),
		errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrTransferNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrSelfTransfer),
		errors.Is(err, domain.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrUsernameTaken):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		h.writeError(w, http.StatusUnauthorized, err.Error())
	case domain.IsStorageError(err):
		log.Printf("level=error component=api msg=\"storage failure\" err=%v", err)
		h.writeError(w, http.StatusServiceUnavailable, "Storage temporarily unavailable. Please retry.")
	default:
		log.Printf("level=error component=api msg=\"unexpected error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *WalletHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *WalletHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
