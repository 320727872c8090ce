package services

import (
	"errors"
	"fmt"
)

// Error kinds.
const (
	KindValidation = "validation"
	KindState      = "state"
	KindConflict   = "conflict"
	KindNotFound   = "not_found"
)

// Error is returned to callers of the bid and deposit operations. Code is the
// machine-readable reason; errors.Is matches two Errors with the same Code.
type Error struct {
	Kind    string
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrInvalidAmount         = newError(KindValidation, "INVALID_AMOUNT", "amount must be positive")
	ErrDepositAmountMismatch = newError(KindValidation, "DEPOSIT_AMOUNT_MISMATCH", "amount does not match the auction deposit")
	ErrTransactionMismatch   = newError(KindValidation, "TRANSACTION_MISMATCH", "transaction does not belong to this deposit")

	ErrAuctionNotOngoing   = newError(KindState, "AUCTION_NOT_ONGOING", "auction is not accepting bids")
	ErrAuctionEnded        = newError(KindState, "AUCTION_ENDED", "auction end time has passed")
	ErrAuctionNotOpen      = newError(KindState, "AUCTION_NOT_OPEN", "auction no longer accepts deposits")
	ErrAuctionNotCompleted = newError(KindState, "AUCTION_NOT_COMPLETED", "auction has not completed")
	ErrEngineStopped       = newError(KindState, "ENGINE_STOPPED", "bid engine is shutting down")

	ErrBidTooLow          = newError(KindConflict, "BID_TOO_LOW", "bid is below current price plus bid step")
	ErrDepositRequired    = newError(KindConflict, "DEPOSIT_REQUIRED", "deposit must be paid before bidding")
	ErrDepositAlreadyPaid = newError(KindConflict, "DEPOSIT_ALREADY_PAID", "deposit already paid for this auction")
	ErrAuctionBusy        = newError(KindConflict, "AUCTION_BUSY", "too many pending bids for this auction")

	ErrAuctionNotFound     = newError(KindNotFound, "AUCTION_NOT_FOUND", "auction not found")
	ErrTransactionNotFound = newError(KindNotFound, "TRANSACTION_NOT_FOUND", "transaction not found")
)

// withDetail returns a copy of base carrying a more specific message.
func withDetail(base *Error, format string, args ...any) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the taxonomy kind of err, or "" for infrastructure errors.
func KindOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the machine-readable code of err, or "" for infrastructure errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
