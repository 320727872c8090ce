package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/estatehub/backend/internal/models"
)

type AuctionRepo struct{}

func NewAuctionRepo() *AuctionRepo {
	return &AuctionRepo{}
}

const auctionColumns = `id, asset_id, status, start_price, current_price, bid_step, deposit_amount,
	start_time, end_time, winner_id, settled_at, created_at, updated_at`

func scanAuction(row pgx.Row) (*models.Auction, error) {
	var a models.Auction
	err := row.Scan(&a.ID, &a.AssetID, &a.Status, &a.StartPrice, &a.CurrentPrice, &a.BidStep, &a.DepositAmount,
		&a.StartTime, &a.EndTime, &a.WinnerID, &a.SettledAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AuctionRepo) Create(ctx context.Context, db DB, a *models.Auction) error {
	return db.QueryRow(ctx, `
		INSERT INTO auctions (id, asset_id, status, start_price, current_price, bid_step, deposit_amount, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, a.ID, a.AssetID, a.Status, a.StartPrice, a.CurrentPrice, a.BidStep, a.DepositAmount, a.StartTime, a.EndTime).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AuctionRepo) GetByID(ctx context.Context, db DB, id uuid.UUID) (*models.Auction, error) {
	return scanAuction(db.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id))
}

// ListDue returns auctions whose start or end time has been reached while
// they are still in the state that time should move them out of.
func (r *AuctionRepo) ListDue(ctx context.Context, db DB, now time.Time) ([]*models.Auction, error) {
	return r.list(ctx, db, `
		SELECT `+auctionColumns+` FROM auctions
		WHERE (status = 'UPCOMING' AND start_time <= $1)
		   OR (status = 'ONGOING' AND end_time <= $1)
		ORDER BY end_time, id
	`, now)
}

// ListAwaitingSettlement returns COMPLETED auctions that were never marked
// settled or still hold unrefunded losing deposits.
func (r *AuctionRepo) ListAwaitingSettlement(ctx context.Context, db DB) ([]*models.Auction, error) {
	return r.list(ctx, db, `
		SELECT `+auctionColumns+` FROM auctions a
		WHERE a.status = 'COMPLETED'
		  AND (a.settled_at IS NULL OR EXISTS (
			SELECT 1 FROM participants p
			WHERE p.auction_id = a.id AND p.deposit_paid AND NOT p.is_refunded
			  AND p.bidder_id IS DISTINCT FROM a.winner_id))
		ORDER BY a.end_time, a.id
	`)
}

func (r *AuctionRepo) list(ctx context.Context, db DB, sql string, args ...any) ([]*models.Auction, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// CompareAndSetStatus moves the auction to next only if it is still in expected.
func (r *AuctionRepo) CompareAndSetStatus(ctx context.Context, db DB, id uuid.UUID, expected, next string) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE auctions SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, expected, next)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AdvancePrice sets current_price to amount when the auction is still open
// at now and its price has not moved since expectedPrice was read.
func (r *AuctionRepo) AdvancePrice(ctx context.Context, db DB, id uuid.UUID, expectedPrice, amount int64, now time.Time) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE auctions SET current_price = $3, updated_at = now()
		WHERE id = $1 AND status = 'ONGOING' AND end_time > $4 AND current_price = $2
	`, id, expectedPrice, amount, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetWinner writes winner_id only if no winner was recorded yet.
func (r *AuctionRepo) SetWinner(ctx context.Context, db DB, id, winnerID uuid.UUID) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE auctions SET winner_id = $2, updated_at = now()
		WHERE id = $1 AND winner_id IS NULL
	`, id, winnerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *AuctionRepo) MarkSettled(ctx context.Context, db DB, id uuid.UUID, at time.Time) error {
	_, err := db.Exec(ctx, `
		UPDATE auctions SET settled_at = COALESCE(settled_at, $2), updated_at = now() WHERE id = $1
	`, id, at)
	return err
}
