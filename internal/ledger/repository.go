package ledger

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estatehub/backend/internal/models"
	"github.com/estatehub/backend/internal/repository"
)

//go:embed schema.sql
var schemaSQL string

// Repository is the Postgres ledger store. Operations that touch more than
// one table run in a single transaction.
type Repository struct {
	pool         *pgxpool.Pool
	auctions     *repository.AuctionRepo
	bids         *repository.BidRepo
	participants *repository.ParticipantRepo
	wallets      *repository.WalletRepo
	txs          *repository.TransactionRepo
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool:         pool,
		auctions:     repository.NewAuctionRepo(),
		bids:         repository.NewBidRepo(),
		participants: repository.NewParticipantRepo(),
		wallets:      repository.NewWalletRepo(),
		txs:          repository.NewTransactionRepo(),
	}
}

// Migrate applies the ledger schema. Statements are idempotent.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}

func (r *Repository) CreateAuction(ctx context.Context, a *models.Auction) error {
	prepareAuction(a, time.Now().UTC())
	return r.auctions.Create(ctx, r.pool, a)
}

func (r *Repository) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	a, err := r.auctions.GetByID(ctx, r.pool, id)
	return a, mapNoRows(err)
}

func (r *Repository) ListDueAuctions(ctx context.Context, now time.Time) ([]*models.Auction, error) {
	return r.auctions.ListDue(ctx, r.pool, now)
}

func (r *Repository) ListAuctionsAwaitingSettlement(ctx context.Context) ([]*models.Auction, error) {
	return r.auctions.ListAwaitingSettlement(ctx, r.pool)
}

func (r *Repository) CompareAndSetAuctionStatus(ctx context.Context, id uuid.UUID, expected, next string) (bool, error) {
	return r.auctions.CompareAndSetStatus(ctx, r.pool, id, expected, next)
}

// PlaceBid advances the price conditionally and appends the bid in one
// transaction. The UPDATE takes the auction row lock, so concurrent writers
// from other processes serialize on it and the loser sees a changed price.
func (r *Repository) PlaceBid(ctx context.Context, bid *models.Bid, expectedPrice int64, now time.Time) (bool, error) {
	if bid.ID == uuid.Nil {
		bid.ID = uuid.New()
	}
	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = now
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	ok, err := r.auctions.AdvancePrice(ctx, tx, bid.AuctionID, expectedPrice, bid.Amount, now)
	if err != nil || !ok {
		return false, err
	}
	if err := r.bids.Create(ctx, tx, bid); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (r *Repository) ListBids(ctx context.Context, auctionID uuid.UUID) ([]*models.Bid, error) {
	return r.bids.ListByAuction(ctx, r.pool, auctionID)
}

// HighestBid returns nil, nil when the auction has no bids.
func (r *Repository) HighestBid(ctx context.Context, auctionID uuid.UUID) (*models.Bid, error) {
	b, err := r.bids.Highest(ctx, r.pool, auctionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (r *Repository) SetWinner(ctx context.Context, auctionID, winnerID uuid.UUID) (bool, error) {
	return r.auctions.SetWinner(ctx, r.pool, auctionID, winnerID)
}

func (r *Repository) MarkSettled(ctx context.Context, auctionID uuid.UUID, at time.Time) error {
	return r.auctions.MarkSettled(ctx, r.pool, auctionID, at)
}

func (r *Repository) GetParticipant(ctx context.Context, auctionID, userID uuid.UUID) (*models.Participant, error) {
	p, err := r.participants.Get(ctx, r.pool, auctionID, userID)
	return p, mapNoRows(err)
}

func (r *Repository) ListParticipants(ctx context.Context, auctionID uuid.UUID) ([]*models.Participant, error) {
	return r.participants.ListByAuction(ctx, r.pool, auctionID)
}

// ConfirmDeposit marks the participant paid and completes the deposit
// transaction in one database transaction.
func (r *Repository) ConfirmDeposit(ctx context.Context, auctionID, userID, txID uuid.UUID) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	paid, err := r.participants.MarkPaidTx(ctx, tx, auctionID, userID, txID)
	if err != nil {
		return false, fmt.Errorf("mark participant paid: %w", err)
	}
	if !paid {
		return false, nil
	}
	if err := r.txs.Complete(ctx, tx, txID); err != nil {
		return false, mapNoRows(err)
	}
	return true, tx.Commit(ctx)
}

// RefundSurplusDeposit completes a second paid deposit and credits it back to
// the wallet in one database transaction.
func (r *Repository) RefundSurplusDeposit(ctx context.Context, txID uuid.UUID) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	t, err := r.txs.CompleteIfOpen(ctx, tx, txID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("complete surplus deposit: %w", err)
	}
	w, err := r.wallets.Credit(ctx, tx, t.UserID, t.Amount)
	if err != nil {
		return false, fmt.Errorf("credit wallet: %w", err)
	}
	if err := r.txs.Create(ctx, tx, &models.Transaction{
		ID:         uuid.New(),
		WalletID:   &w.ID,
		UserID:     t.UserID,
		AuctionID:  t.AuctionID,
		Type:       models.TxTypeAuctionRefund,
		Amount:     t.Amount,
		Status:     models.TxStatusCompleted,
		GatewayRef: t.GatewayRef,
	}); err != nil {
		return false, fmt.Errorf("append refund transaction: %w", err)
	}
	return true, tx.Commit(ctx)
}

func (r *Repository) ParticipantsNeedingRefund(ctx context.Context, auctionID uuid.UUID) ([]*models.Participant, error) {
	return r.participants.ListNeedingRefund(ctx, r.pool, auctionID)
}

// RefundParticipant flips is_refunded, credits the wallet with an atomic
// increment and appends the AUCTION_REFUND transaction, all or nothing.
func (r *Repository) RefundParticipant(ctx context.Context, p *models.Participant, amount int64) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	flipped, err := r.participants.MarkRefunded(ctx, tx, p.AuctionID, p.BidderID)
	if err != nil {
		return false, fmt.Errorf("mark refunded: %w", err)
	}
	if !flipped {
		cur, err := r.participants.Get(ctx, tx, p.AuctionID, p.BidderID)
		if err != nil {
			return false, mapNoRows(err)
		}
		if !cur.DepositPaid {
			return false, ErrNotPaid
		}
		return false, nil
	}
	w, err := r.wallets.Credit(ctx, tx, p.BidderID, amount)
	if err != nil {
		return false, fmt.Errorf("credit wallet: %w", err)
	}
	auctionID := p.AuctionID
	if err := r.txs.Create(ctx, tx, &models.Transaction{
		ID:        uuid.New(),
		WalletID:  &w.ID,
		UserID:    p.BidderID,
		AuctionID: &auctionID,
		Type:      models.TxTypeAuctionRefund,
		Amount:    amount,
		Status:    models.TxStatusCompleted,
	}); err != nil {
		return false, fmt.Errorf("append refund transaction: %w", err)
	}
	return true, tx.Commit(ctx)
}

func (r *Repository) CreditWallet(ctx context.Context, userID uuid.UUID, amount int64) (int64, error) {
	w, err := r.wallets.Credit(ctx, r.pool, userID, amount)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

func (r *Repository) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	w, err := r.wallets.GetByUserID(ctx, r.pool, userID)
	return w, mapNoRows(err)
}

func (r *Repository) AppendTransaction(ctx context.Context, t *models.Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return r.txs.Create(ctx, r.pool, t)
}

func (r *Repository) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	t, err := r.txs.GetByID(ctx, r.pool, id)
	return t, mapNoRows(err)
}

func (r *Repository) SetTransactionStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	return r.txs.SetStatus(ctx, r.pool, id, from, to)
}

func (r *Repository) ListTransactions(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error) {
	return r.txs.ListByUserID(ctx, r.pool, userID)
}
