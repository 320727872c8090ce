package models

import (
	"time"

	"github.com/google/uuid"
)

// Broadcast event types published on the auction topic.
const (
	EventAuctionStarted   = "auction_started"
	EventNewBid           = "new_bid"
	EventAuctionEnded     = "auction_ended"
	EventAuctionCancelled = "auction_cancelled"
)

// Notification kinds sent to individual users.
const (
	NotifyDepositConfirmed = "deposit_confirmed"
	NotifyAuctionWon       = "auction_won"
	NotifyDepositRefunded  = "deposit_refunded"
)

type AuctionEvent struct {
	Type      string     `json:"type"`
	AuctionID uuid.UUID  `json:"auction_id"`
	BidderID  *uuid.UUID `json:"bidder_id,omitempty"`
	Amount    int64      `json:"amount,omitempty"`
	WinnerID  *uuid.UUID `json:"winner_id"`
	Timestamp time.Time  `json:"timestamp"`
}

// AuctionTopic is the broadcast topic for one auction.
func AuctionTopic(auctionID uuid.UUID) string {
	return "auction:" + auctionID.String()
}
