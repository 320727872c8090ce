package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction type and status enums.
const (
	TxTypeDeposit        = "DEPOSIT"
	TxTypeAuctionDeposit = "AUCTION_DEPOSIT"
	TxTypeAuctionRefund  = "AUCTION_REFUND"
	TxTypePayment        = "PAYMENT"

	TxStatusPending   = "PENDING"
	TxStatusCompleted = "COMPLETED"
	TxStatusFailed    = "FAILED"
)

type Wallet struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction is a wallet-level money movement. AuctionID and UserID are the
// reference metadata; WalletID is nil for gateway-paid deposits that never
// touch the wallet balance.
type Transaction struct {
	ID         uuid.UUID  `json:"id"`
	WalletID   *uuid.UUID `json:"wallet_id,omitempty"`
	UserID     uuid.UUID  `json:"user_id"`
	AuctionID  *uuid.UUID `json:"auction_id,omitempty"`
	Type       string     `json:"type"`
	Amount     int64      `json:"amount"`
	Status     string     `json:"status"`
	GatewayRef string     `json:"gateway_ref,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
