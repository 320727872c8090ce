package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/estatehub/backend/internal/models"
)

// Store is the full ledger contract implemented by Repository and MemoryStore.
type Store interface {
	CreateAuction(ctx context.Context, a *models.Auction) error
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	ListDueAuctions(ctx context.Context, now time.Time) ([]*models.Auction, error)
	ListAuctionsAwaitingSettlement(ctx context.Context) ([]*models.Auction, error)
	CompareAndSetAuctionStatus(ctx context.Context, id uuid.UUID, expected, next string) (bool, error)

	PlaceBid(ctx context.Context, bid *models.Bid, expectedPrice int64, now time.Time) (bool, error)
	ListBids(ctx context.Context, auctionID uuid.UUID) ([]*models.Bid, error)
	HighestBid(ctx context.Context, auctionID uuid.UUID) (*models.Bid, error)
	SetWinner(ctx context.Context, auctionID, winnerID uuid.UUID) (bool, error)
	MarkSettled(ctx context.Context, auctionID uuid.UUID, at time.Time) error

	GetParticipant(ctx context.Context, auctionID, userID uuid.UUID) (*models.Participant, error)
	ListParticipants(ctx context.Context, auctionID uuid.UUID) ([]*models.Participant, error)
	ConfirmDeposit(ctx context.Context, auctionID, userID, txID uuid.UUID) (bool, error)
	RefundSurplusDeposit(ctx context.Context, txID uuid.UUID) (bool, error)
	ParticipantsNeedingRefund(ctx context.Context, auctionID uuid.UUID) ([]*models.Participant, error)
	RefundParticipant(ctx context.Context, p *models.Participant, amount int64) (bool, error)

	CreditWallet(ctx context.Context, userID uuid.UUID, amount int64) (int64, error)
	GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	AppendTransaction(ctx context.Context, t *models.Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	SetTransactionStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	ListTransactions(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error)
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MemoryStore)(nil)
)
