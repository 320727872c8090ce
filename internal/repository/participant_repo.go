package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/estatehub/backend/internal/models"
)

type ParticipantRepo struct{}

func NewParticipantRepo() *ParticipantRepo {
	return &ParticipantRepo{}
}

const participantColumns = `auction_id, bidder_id, deposit_paid, deposit_tx_id, is_refunded, created_at, updated_at`

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var p models.Participant
	if err := row.Scan(&p.AuctionID, &p.BidderID, &p.DepositPaid, &p.DepositTxID, &p.IsRefunded, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ParticipantRepo) Get(ctx context.Context, db DB, auctionID, bidderID uuid.UUID) (*models.Participant, error) {
	return scanParticipant(db.QueryRow(ctx, `
		SELECT `+participantColumns+` FROM participants WHERE auction_id = $1 AND bidder_id = $2
	`, auctionID, bidderID))
}

func (r *ParticipantRepo) ListByAuction(ctx context.Context, db DB, auctionID uuid.UUID) ([]*models.Participant, error) {
	return r.list(ctx, db, `
		SELECT `+participantColumns+` FROM participants WHERE auction_id = $1 ORDER BY created_at
	`, auctionID)
}

// ListNeedingRefund returns paid, unrefunded participants other than the winner.
func (r *ParticipantRepo) ListNeedingRefund(ctx context.Context, db DB, auctionID uuid.UUID) ([]*models.Participant, error) {
	return r.list(ctx, db, `
		SELECT p.auction_id, p.bidder_id, p.deposit_paid, p.deposit_tx_id, p.is_refunded, p.created_at, p.updated_at
		FROM participants p JOIN auctions a ON a.id = p.auction_id
		WHERE p.auction_id = $1 AND p.deposit_paid AND NOT p.is_refunded
		  AND p.bidder_id IS DISTINCT FROM a.winner_id
		ORDER BY p.created_at
	`, auctionID)
}

func (r *ParticipantRepo) list(ctx context.Context, db DB, sql string, args ...any) ([]*models.Participant, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// MarkPaidTx records a paid deposit. A first deposit inserts the row; an
// existing unpaid row is flipped to paid. It returns false when the
// participant had already paid. Must run inside tx: the insert is attempted
// under a savepoint so a unique violation does not abort the transaction.
func (r *ParticipantRepo) MarkPaidTx(ctx context.Context, tx pgx.Tx, auctionID, bidderID, txID uuid.UUID) (bool, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return false, err
	}
	_, err = sp.Exec(ctx, `
		INSERT INTO participants (auction_id, bidder_id, deposit_paid, deposit_tx_id)
		VALUES ($1, $2, TRUE, $3)
	`, auctionID, bidderID, txID)
	if err == nil {
		return true, sp.Commit(ctx)
	}
	_ = sp.Rollback(ctx)
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return false, err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE participants SET deposit_paid = TRUE, deposit_tx_id = $3, updated_at = now()
		WHERE auction_id = $1 AND bidder_id = $2 AND NOT deposit_paid
	`, auctionID, bidderID, txID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkRefunded flips is_refunded exactly once for a paid participant.
func (r *ParticipantRepo) MarkRefunded(ctx context.Context, db DB, auctionID, bidderID uuid.UUID) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE participants SET is_refunded = TRUE, updated_at = now()
		WHERE auction_id = $1 AND bidder_id = $2 AND deposit_paid AND NOT is_refunded
	`, auctionID, bidderID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
