package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/estatehub/backend/internal/models"
)

// BidStore is the subset of the ledger store used by bid admission.
type BidStore interface {
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	GetParticipant(ctx context.Context, auctionID, userID uuid.UUID) (*models.Participant, error)
	// PlaceBid appends bid and sets the auction's current price to bid.Amount
	// in one conditional write. It returns false without changing anything
	// when the auction is no longer ONGOING, has reached its end time, or its
	// current price differs from expectedPrice.
	PlaceBid(ctx context.Context, bid *models.Bid, expectedPrice int64, now time.Time) (bool, error)
	ListBids(ctx context.Context, auctionID uuid.UUID) ([]*models.Bid, error)
}

// DepositStore is the subset of the ledger store used by the deposit gate.
type DepositStore interface {
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	GetParticipant(ctx context.Context, auctionID, userID uuid.UUID) (*models.Participant, error)
	AppendTransaction(ctx context.Context, t *models.Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	SetTransactionStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	// ConfirmDeposit marks the participant paid and the transaction COMPLETED
	// atomically, whether the transaction was PENDING or FAILED. It returns
	// false without changes when the participant was already paid.
	ConfirmDeposit(ctx context.Context, auctionID, userID, txID uuid.UUID) (bool, error)
	// RefundSurplusDeposit completes a deposit transaction that was paid after
	// the participant had already paid with another one, credits its amount
	// to the user's wallet and appends an AUCTION_REFUND transaction. It
	// returns false when the transaction was already COMPLETED.
	RefundSurplusDeposit(ctx context.Context, txID uuid.UUID) (bool, error)
}

// SettlementStore is the subset of the ledger store used by settlement.
type SettlementStore interface {
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	HighestBid(ctx context.Context, auctionID uuid.UUID) (*models.Bid, error)
	SetWinner(ctx context.Context, auctionID, winnerID uuid.UUID) (bool, error)
	ParticipantsNeedingRefund(ctx context.Context, auctionID uuid.UUID) ([]*models.Participant, error)
	// RefundParticipant flips isRefunded, credits the wallet atomically and
	// appends an AUCTION_REFUND transaction. It returns false when the
	// participant was already refunded.
	RefundParticipant(ctx context.Context, p *models.Participant, amount int64) (bool, error)
	MarkSettled(ctx context.Context, auctionID uuid.UUID, at time.Time) error
}

// LifecycleStore is the subset of the ledger store used by the scheduler.
type LifecycleStore interface {
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	ListDueAuctions(ctx context.Context, now time.Time) ([]*models.Auction, error)
	ListAuctionsAwaitingSettlement(ctx context.Context) ([]*models.Auction, error)
	CompareAndSetAuctionStatus(ctx context.Context, id uuid.UUID, expected, next string) (bool, error)
}

// Broadcaster publishes events to live observers. Delivery is best effort.
type Broadcaster interface {
	Publish(topic string, event models.AuctionEvent)
}

// Notifier delivers a per-user notification. Failures are logged by the
// caller and never retried.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind string, payload map[string]any) error
}

// PaymentGateway starts an external deposit payment.
type PaymentGateway interface {
	Initiate(ctx context.Context, req DepositRequest) (*GatewayHandle, error)
}

// DepositRequest is what the gateway needs to collect a deposit.
type DepositRequest struct {
	TransactionID uuid.UUID
	AuctionID     uuid.UUID
	UserID        uuid.UUID
	Amount        int64
}

// GatewayHandle is opaque to the engine and handed back to the client.
type GatewayHandle struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url"`
}

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(string, models.AuctionEvent) {}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, uuid.UUID, string, map[string]any) error { return nil }
