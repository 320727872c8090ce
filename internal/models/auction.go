package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Auction status enums. COMPLETED and CANCELLED are terminal.
const (
	AuctionStatusUpcoming  = "UPCOMING"
	AuctionStatusOngoing   = "ONGOING"
	AuctionStatusCompleted = "COMPLETED"
	AuctionStatusCancelled = "CANCELLED"
)

type Auction struct {
	ID            uuid.UUID  `json:"id"`
	AssetID       uuid.UUID  `json:"asset_id"`
	Status        string     `json:"status"`
	StartPrice    int64      `json:"start_price"`
	CurrentPrice  int64      `json:"current_price"`
	BidStep       int64      `json:"bid_step"`
	DepositAmount int64      `json:"deposit_amount"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	WinnerID      *uuid.UUID `json:"winner_id,omitempty"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// MinNextBid is the lowest amount a new bid must reach to be accepted. It
// saturates at math.MaxInt64 once the ladder has no room left.
func (a *Auction) MinNextBid() int64 {
	if a.CurrentPrice > math.MaxInt64-a.BidStep {
		return math.MaxInt64
	}
	return a.CurrentPrice + a.BidStep
}

// Admits reports whether amount clears the current price by at least one bid
// step. amount and BidStep are positive, so the subtraction cannot overflow.
func (a *Auction) Admits(amount int64) bool {
	return amount > 0 && amount-a.BidStep >= a.CurrentPrice
}

// IsOpenAt reports whether bids may be accepted at now.
func (a *Auction) IsOpenAt(now time.Time) bool {
	return a.Status == AuctionStatusOngoing && now.Before(a.EndTime)
}

// IsTerminal reports whether the auction reached COMPLETED or CANCELLED.
func (a *Auction) IsTerminal() bool {
	return a.Status == AuctionStatusCompleted || a.Status == AuctionStatusCancelled
}
