package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is unique per (AuctionID, BidderID).
type Participant struct {
	AuctionID   uuid.UUID  `json:"auction_id"`
	BidderID    uuid.UUID  `json:"bidder_id"`
	DepositPaid bool       `json:"deposit_paid"`
	DepositTxID *uuid.UUID `json:"deposit_tx_id,omitempty"`
	IsRefunded  bool       `json:"is_refunded"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
