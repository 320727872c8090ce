package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/estatehub/backend/internal/models"
)

type TransactionRepo struct{}

func NewTransactionRepo() *TransactionRepo {
	return &TransactionRepo{}
}

func (r *TransactionRepo) Create(ctx context.Context, db DB, t *models.Transaction) error {
	return db.QueryRow(ctx, `
		INSERT INTO transactions (id, wallet_id, user_id, auction_id, tx_type, amount, status, gateway_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, t.ID, t.WalletID, t.UserID, t.AuctionID, t.Type, t.Amount, t.Status, t.GatewayRef).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TransactionRepo) GetByID(ctx context.Context, db DB, id uuid.UUID) (*models.Transaction, error) {
	var t models.Transaction
	err := db.QueryRow(ctx, `
		SELECT id, wallet_id, user_id, auction_id, tx_type, amount, status, gateway_ref, created_at, updated_at
		FROM transactions WHERE id = $1
	`, id).Scan(&t.ID, &t.WalletID, &t.UserID, &t.AuctionID, &t.Type, &t.Amount, &t.Status, &t.GatewayRef, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Complete marks a deposit transaction COMPLETED whatever its prior status.
// It returns pgx.ErrNoRows when the transaction does not exist.
func (r *TransactionRepo) Complete(ctx context.Context, db DB, id uuid.UUID) error {
	tag, err := db.Exec(ctx, `
		UPDATE transactions SET status = 'COMPLETED', updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CompleteIfOpen marks a transaction that is not yet COMPLETED as COMPLETED
// and returns it. It returns pgx.ErrNoRows when there was nothing to change.
func (r *TransactionRepo) CompleteIfOpen(ctx context.Context, db DB, id uuid.UUID) (*models.Transaction, error) {
	var t models.Transaction
	err := db.QueryRow(ctx, `
		UPDATE transactions SET status = 'COMPLETED', updated_at = now()
		WHERE id = $1 AND status <> 'COMPLETED'
		RETURNING id, wallet_id, user_id, auction_id, tx_type, amount, status, gateway_ref, created_at, updated_at
	`, id).Scan(&t.ID, &t.WalletID, &t.UserID, &t.AuctionID, &t.Type, &t.Amount, &t.Status, &t.GatewayRef, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SetStatus moves the transaction from one status to another, reporting
// whether the row was still in the expected status.
func (r *TransactionRepo) SetStatus(ctx context.Context, db DB, id uuid.UUID, from, to string) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE transactions SET status = $3, updated_at = now() WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *TransactionRepo) ListByUserID(ctx context.Context, db DB, userID uuid.UUID) ([]*models.Transaction, error) {
	rows, err := db.Query(ctx, `
		SELECT id, wallet_id, user_id, auction_id, tx_type, amount, status, gateway_ref, created_at, updated_at
		FROM transactions WHERE user_id = $1 ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.WalletID, &t.UserID, &t.AuctionID, &t.Type, &t.Amount, &t.Status, &t.GatewayRef, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
