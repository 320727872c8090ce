package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/estatehub/backend/internal/ledger"
	"github.com/estatehub/backend/internal/middleware"
	"github.com/estatehub/backend/internal/models"
	"github.com/estatehub/backend/internal/services"
)

const maxCallbackBody = 64 << 10

// BidPlacer is the bid admission surface.
type BidPlacer interface {
	PlaceBid(ctx context.Context, auctionID, userID uuid.UUID, amount int64) (*models.Bid, error)
	ListBids(ctx context.Context, auctionID uuid.UUID) ([]*models.Bid, error)
}

// DepositGate is the deposit surface.
type DepositGate interface {
	RequestDeposit(ctx context.Context, auctionID, userID uuid.UUID, amount int64) (*services.DepositHandle, error)
	ConfirmDeposit(ctx context.Context, auctionID, userID, txID uuid.UUID, amount int64) error
	FailDeposit(ctx context.Context, auctionID, userID, txID uuid.UUID) error
}

// AuctionCanceller performs the external CANCELLED transition.
type AuctionCanceller interface {
	Cancel(ctx context.Context, auctionID uuid.UUID) error
}

// LedgerReader serves read-only views and the admin create path.
type LedgerReader interface {
	CreateAuction(ctx context.Context, a *models.Auction) error
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	ListTransactions(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error)
}

// CallbackVerifier authenticates gateway callbacks.
type CallbackVerifier interface {
	VerifyCallback(signature string, body []byte) error
}

// AuctionHandler serves the /v1 auction, deposit and wallet endpoints.
type AuctionHandler struct {
	Bids            BidPlacer
	Deposits        DepositGate
	Lifecycle       AuctionCanceller
	Ledger          LedgerReader
	Verifier        CallbackVerifier
	SignatureHeader string
	Validator       *services.Validator
	Logger          *slog.Logger
}

// --- POST /v1/auctions ---

type createAuctionRequest struct {
	AssetID       string    `json:"asset_id"`
	StartPrice    int64     `json:"start_price"`
	BidStep       int64     `json:"bid_step"`
	DepositAmount int64     `json:"deposit_amount"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
}

// CreateAuction handles POST /v1/auctions (admin).
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "INVALID_JSON")
		return
	}
	assetID, err := uuid.Parse(req.AssetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid asset_id", "INVALID_ASSET_ID")
		return
	}
	if req.StartPrice <= 0 || req.BidStep <= 0 || req.DepositAmount <= 0 {
		writeError(w, http.StatusBadRequest, "start_price, bid_step and deposit_amount must be positive", "INVALID_AMOUNT")
		return
	}
	if req.StartTime.IsZero() || !req.EndTime.After(req.StartTime) {
		writeError(w, http.StatusBadRequest, "end_time must be after start_time", "INVALID_SCHEDULE")
		return
	}
	a := &models.Auction{
		AssetID:       assetID,
		StartPrice:    req.StartPrice,
		CurrentPrice:  req.StartPrice,
		BidStep:       req.BidStep,
		DepositAmount: req.DepositAmount,
		StartTime:     req.StartTime.UTC(),
		EndTime:       req.EndTime.UTC(),
	}
	if err := h.Ledger.CreateAuction(r.Context(), a); err != nil {
		h.Logger.Error("create auction", "error", err)
		writeError(w, http.StatusInternalServerError, "create auction failed", "INTERNAL")
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// --- GET /v1/auctions/{id} ---

// GetAuction handles GET /v1/auctions/{id}.
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid auction id", "INVALID_AUCTION_ID")
		return
	}
	a, err := h.Ledger.GetAuction(r.Context(), auctionID)
	if errors.Is(err, ledger.ErrNotFound) {
		h.writeServiceError(w, services.ErrAuctionNotFound)
		return
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// --- POST /v1/auctions/{id}/bids ---

type amountRequest struct {
	Amount int64 `json:"amount"`
}

// PlaceBid handles POST /v1/auctions/{id}/bids.
func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	userID, auctionID, req, ok := h.amountCall(w, r)
	if !ok {
		return
	}
	bid, err := h.Bids.PlaceBid(r.Context(), auctionID, userID, req.Amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bid)
}

// ListBids handles GET /v1/auctions/{id}/bids.
func (h *AuctionHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid auction id", "INVALID_AUCTION_ID")
		return
	}
	bids, err := h.Bids.ListBids(r.Context(), auctionID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if bids == nil {
		bids = []*models.Bid{}
	}
	writeJSON(w, http.StatusOK, bids)
}

// --- POST /v1/auctions/{id}/deposits ---

// RequestDeposit handles POST /v1/auctions/{id}/deposits. Payment completes
// asynchronously at the gateway, hence 202.
func (h *AuctionHandler) RequestDeposit(w http.ResponseWriter, r *http.Request) {
	userID, auctionID, req, ok := h.amountCall(w, r)
	if !ok {
		return
	}
	handle, err := h.Deposits.RequestDeposit(r.Context(), auctionID, userID, req.Amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, handle)
}

// --- POST /v1/auctions/{id}/cancel ---

// CancelAuction handles POST /v1/auctions/{id}/cancel (admin).
func (h *AuctionHandler) CancelAuction(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid auction id", "INVALID_AUCTION_ID")
		return
	}
	if err := h.Lifecycle.Cancel(r.Context(), auctionID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"auction_id": auctionID.String(), "status": models.AuctionStatusCancelled})
}

// --- POST /v1/payments/callback ---

// PaymentCallback handles the gateway's signed deposit notification:
// Verify Signature -> Validate Schema -> Confirm or Fail -> 200.
func (h *AuctionHandler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed", "INVALID_BODY")
		return
	}
	if err := h.Verifier.VerifyCallback(r.Header.Get(h.SignatureHeader), body); err != nil {
		h.Logger.Warn("payment callback rejected", "error", err)
		writeError(w, http.StatusUnauthorized, "invalid callback signature", "BAD_SIGNATURE")
		return
	}
	cb, err := h.Validator.ParsePaymentCallback(body)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "INVALID_CALLBACK")
		return
	}

	switch cb.Status {
	case services.CallbackStatusPaid:
		err = h.Deposits.ConfirmDeposit(r.Context(), cb.AuctionID, cb.UserID, cb.TransactionID, cb.Amount)
	default:
		err = h.Deposits.FailDeposit(r.Context(), cb.AuctionID, cb.UserID, cb.TransactionID)
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"transaction_id": cb.TransactionID.String(), "status": cb.Status})
}

// --- GET /v1/wallet ---

type walletResponse struct {
	UserID       uuid.UUID             `json:"user_id"`
	Balance      int64                 `json:"balance"`
	Transactions []*models.Transaction `json:"transactions"`
}

// GetWallet handles GET /v1/wallet for the caller. A user who was never
// credited has a zero balance.
func (h *AuctionHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "UNAUTHORIZED")
		return
	}
	resp := walletResponse{UserID: userID, Transactions: []*models.Transaction{}}
	wallet, err := h.Ledger.GetWallet(r.Context(), userID)
	switch {
	case err == nil:
		resp.Balance = wallet.Balance
	case !errors.Is(err, ledger.ErrNotFound):
		h.writeServiceError(w, err)
		return
	}
	txs, err := h.Ledger.ListTransactions(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if txs != nil {
		resp.Transactions = txs
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- GET /healthz ---

func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- helpers ---

func (h *AuctionHandler) amountCall(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, amountRequest, bool) {
	var req amountRequest
	userID, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "UNAUTHORIZED")
		return uuid.Nil, uuid.Nil, req, false
	}
	auctionID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid auction id", "INVALID_AUCTION_ID")
		return uuid.Nil, uuid.Nil, req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "INVALID_JSON")
		return uuid.Nil, uuid.Nil, req, false
	}
	return userID, auctionID, req, true
}

// writeServiceError maps the engine's error taxonomy onto HTTP statuses.
func (h *AuctionHandler) writeServiceError(w http.ResponseWriter, err error) {
	var se *services.Error
	if !errors.As(err, &se) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusServiceUnavailable, "request cancelled", "CANCELLED")
			return
		}
		h.Logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "INTERNAL")
		return
	}
	writeError(w, statusFor(se), se.Message, se.Code)
}

func statusFor(se *services.Error) int {
	if se.Code == services.ErrAuctionBusy.Code {
		return http.StatusTooManyRequests
	}
	if se.Code == services.ErrEngineStopped.Code {
		return http.StatusServiceUnavailable
	}
	switch se.Kind {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindState, services.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}
