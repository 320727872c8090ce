package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/estatehub/backend/internal/models"
)

type BidRepo struct{}

func NewBidRepo() *BidRepo {
	return &BidRepo{}
}

func (r *BidRepo) Create(ctx context.Context, db DB, b *models.Bid) error {
	_, err := db.Exec(ctx, `
		INSERT INTO bids (id, auction_id, bidder_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, b.ID, b.AuctionID, b.BidderID, b.Amount, b.CreatedAt)
	return err
}

// ListByAuction returns accepted bids in acceptance order.
func (r *BidRepo) ListByAuction(ctx context.Context, db DB, auctionID uuid.UUID) ([]*models.Bid, error) {
	rows, err := db.Query(ctx, `
		SELECT id, auction_id, bidder_id, amount, created_at
		FROM bids WHERE auction_id = $1 ORDER BY created_at, seq
	`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Bid
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.Amount, &b.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &b)
	}
	return list, rows.Err()
}

// Highest returns the maximum bid, earliest first on equal amounts.
func (r *BidRepo) Highest(ctx context.Context, db DB, auctionID uuid.UUID) (*models.Bid, error) {
	var b models.Bid
	err := db.QueryRow(ctx, `
		SELECT id, auction_id, bidder_id, amount, created_at
		FROM bids WHERE auction_id = $1
		ORDER BY amount DESC, created_at ASC, seq ASC
		LIMIT 1
	`, auctionID).Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.Amount, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
