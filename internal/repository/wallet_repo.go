package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/estatehub/backend/internal/models"
)

type WalletRepo struct{}

func NewWalletRepo() *WalletRepo {
	return &WalletRepo{}
}

// Credit atomically adds amount to the user's balance, creating the wallet on
// first credit, and returns the wallet after the increment.
func (r *WalletRepo) Credit(ctx context.Context, db DB, userID uuid.UUID, amount int64) (*models.Wallet, error) {
	var w models.Wallet
	err := db.QueryRow(ctx, `
		INSERT INTO wallets (id, user_id, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = now()
		RETURNING id, user_id, balance, created_at, updated_at
	`, uuid.New(), userID, amount).Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepo) GetByUserID(ctx context.Context, db DB, userID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := db.QueryRow(ctx, `
		SELECT id, user_id, balance, created_at, updated_at FROM wallets WHERE user_id = $1
	`, userID).Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
