package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/estatehub/backend/internal/ledger"
	"github.com/estatehub/backend/internal/models"
)

// DepositGate admits participants. A user may bid only after the gateway
// confirms their deposit for that auction.
type DepositGate struct {
	store    DepositStore
	gateway  PaymentGateway
	notifier Notifier
	logger   *slog.Logger
}

// DepositHandle is returned to the client to complete payment at the gateway.
type DepositHandle struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	GatewayHandle
}

func NewDepositGate(store DepositStore, gateway PaymentGateway, notifier Notifier, logger *slog.Logger) *DepositGate {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DepositGate{store: store, gateway: gateway, notifier: notifier, logger: logger}
}

// RequestDeposit records a PENDING AUCTION_DEPOSIT transaction and starts the
// gateway payment for it.
func (g *DepositGate) RequestDeposit(ctx context.Context, auctionID, userID uuid.UUID, amount int64) (*DepositHandle, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	a, err := g.store.GetAuction(ctx, auctionID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get auction: %w", err)
	}
	if a.Status != models.AuctionStatusUpcoming && a.Status != models.AuctionStatusOngoing {
		return nil, withDetail(ErrAuctionNotOpen, "auction is %s", a.Status)
	}
	if amount != a.DepositAmount {
		return nil, withDetail(ErrDepositAmountMismatch, "deposit for this auction is %d", a.DepositAmount)
	}
	p, err := g.store.GetParticipant(ctx, auctionID, userID)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	if p != nil && p.DepositPaid {
		return nil, ErrDepositAlreadyPaid
	}

	tx := &models.Transaction{
		ID:        uuid.New(),
		UserID:    userID,
		AuctionID: &auctionID,
		Type:      models.TxTypeAuctionDeposit,
		Amount:    amount,
		Status:    models.TxStatusPending,
	}
	if err := g.store.AppendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("append deposit transaction: %w", err)
	}

	handle, err := g.gateway.Initiate(ctx, DepositRequest{
		TransactionID: tx.ID,
		AuctionID:     auctionID,
		UserID:        userID,
		Amount:        amount,
	})
	if err != nil {
		if _, ferr := g.store.SetTransactionStatus(ctx, tx.ID, models.TxStatusPending, models.TxStatusFailed); ferr != nil {
			g.logger.Error("mark deposit transaction failed", "transaction_id", tx.ID, "error", ferr)
		}
		return nil, fmt.Errorf("initiate gateway payment: %w", err)
	}
	return &DepositHandle{TransactionID: tx.ID, GatewayHandle: *handle}, nil
}

// ConfirmDeposit is the gateway callback. Gateways redeliver callbacks, so
// confirming the participant's own deposit again succeeds without side
// effects. A different deposit transaction paid after the participant already
// paid is completed and credited back to the user's wallet.
func (g *DepositGate) ConfirmDeposit(ctx context.Context, auctionID, userID, txID uuid.UUID, amount int64) error {
	t, err := g.store.GetTransaction(ctx, txID)
	if errors.Is(err, ledger.ErrNotFound) {
		return ErrTransactionNotFound
	}
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}
	if t.Type != models.TxTypeAuctionDeposit || t.UserID != userID || t.AuctionID == nil || *t.AuctionID != auctionID {
		return ErrTransactionMismatch
	}
	if t.Amount != amount {
		return withDetail(ErrTransactionMismatch, "paid %d but deposit transaction is %d", amount, t.Amount)
	}

	p, err := g.store.GetParticipant(ctx, auctionID, userID)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return fmt.Errorf("get participant: %w", err)
	}
	if p != nil && p.DepositPaid {
		return g.settleRepeat(ctx, p, t)
	}

	confirmed, err := g.store.ConfirmDeposit(ctx, auctionID, userID, txID)
	if err != nil {
		return fmt.Errorf("confirm deposit: %w", err)
	}
	if !confirmed {
		// A concurrent confirmation won the race, possibly for another transaction.
		p, err := g.store.GetParticipant(ctx, auctionID, userID)
		if err != nil {
			return fmt.Errorf("get participant: %w", err)
		}
		return g.settleRepeat(ctx, p, t)
	}

	g.logger.Info("deposit confirmed", "auction_id", auctionID, "user_id", userID, "transaction_id", txID)
	if err := g.notifier.Notify(ctx, userID, models.NotifyDepositConfirmed, map[string]any{
		"auction_id":     auctionID.String(),
		"transaction_id": txID.String(),
		"amount":         amount,
	}); err != nil {
		g.logger.Warn("deposit confirmation notification failed", "user_id", userID, "error", err)
	}
	return nil
}

// settleRepeat handles a paid confirmation for a participant that is already
// paid. Redelivery of the paying transaction is a no-op; any other paid
// transaction is surplus and goes back to the wallet.
func (g *DepositGate) settleRepeat(ctx context.Context, p *models.Participant, t *models.Transaction) error {
	if p.DepositTxID != nil && *p.DepositTxID == t.ID {
		g.logger.Info("duplicate deposit confirmation ignored", "auction_id", p.AuctionID, "user_id", p.BidderID, "transaction_id", t.ID)
		return nil
	}
	refunded, err := g.store.RefundSurplusDeposit(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("refund surplus deposit: %w", err)
	}
	if !refunded {
		return nil
	}
	g.logger.Warn("surplus deposit credited to wallet", "auction_id", p.AuctionID, "user_id", p.BidderID, "transaction_id", t.ID, "amount", t.Amount)
	if err := g.notifier.Notify(ctx, p.BidderID, models.NotifyDepositRefunded, map[string]any{
		"auction_id":     p.AuctionID.String(),
		"transaction_id": t.ID.String(),
		"amount":         t.Amount,
	}); err != nil {
		g.logger.Warn("surplus deposit notification failed", "user_id", p.BidderID, "error", err)
	}
	return nil
}

// FailDeposit records a gateway-reported payment failure. Only a PENDING
// transaction moves to FAILED; a late failure for a completed deposit is
// ignored.
func (g *DepositGate) FailDeposit(ctx context.Context, auctionID, userID, txID uuid.UUID) error {
	t, err := g.store.GetTransaction(ctx, txID)
	if errors.Is(err, ledger.ErrNotFound) {
		return ErrTransactionNotFound
	}
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}
	if t.Type != models.TxTypeAuctionDeposit || t.UserID != userID || t.AuctionID == nil || *t.AuctionID != auctionID {
		return ErrTransactionMismatch
	}
	failed, err := g.store.SetTransactionStatus(ctx, txID, models.TxStatusPending, models.TxStatusFailed)
	if err != nil {
		return fmt.Errorf("fail deposit transaction: %w", err)
	}
	if failed {
		g.logger.Info("deposit payment failed", "auction_id", auctionID, "user_id", userID, "transaction_id", txID)
	}
	return nil
}
