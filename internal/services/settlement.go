package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/estatehub/backend/internal/ledger"
	"github.com/estatehub/backend/internal/models"
)

// SettlementService names the winner of a completed auction and refunds the
// losing deposits. Every step is guarded by a conditional write, so running
// it again on the same auction only finishes what a previous run left over.
type SettlementService struct {
	store    SettlementStore
	notifier Notifier
	clock    Clock
	logger   *slog.Logger
}

// SettlementResult summarizes one settlement run.
type SettlementResult struct {
	AuctionID       uuid.UUID
	WinnerID        *uuid.UUID
	WinningAmount   int64
	RemainingAmount int64
	Refunded        []uuid.UUID
	Failed          []uuid.UUID
}

func NewSettlementService(store SettlementStore, notifier Notifier, clock Clock, logger *slog.Logger) *SettlementService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SettlementService{store: store, notifier: notifier, clock: clock, logger: logger}
}

// Settle runs settlement for a COMPLETED auction. Refund failures are
// isolated per participant: the rest are still processed and the failures
// come back joined in the error, leaving the auction unsettled for a rerun.
func (s *SettlementService) Settle(ctx context.Context, auctionID uuid.UUID) (*SettlementResult, error) {
	a, err := s.store.GetAuction(ctx, auctionID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get auction: %w", err)
	}
	if a.Status != models.AuctionStatusCompleted {
		return nil, withDetail(ErrAuctionNotCompleted, "auction is %s", a.Status)
	}

	res := &SettlementResult{AuctionID: auctionID}
	if err := s.settleWinner(ctx, a, res); err != nil {
		return res, err
	}

	participants, err := s.store.ParticipantsNeedingRefund(ctx, auctionID)
	if err != nil {
		return res, fmt.Errorf("list participants needing refund: %w", err)
	}
	var errs []error
	for _, p := range participants {
		if res.WinnerID != nil && p.BidderID == *res.WinnerID {
			continue
		}
		if err := s.refund(ctx, a, p, res); err != nil {
			res.Failed = append(res.Failed, p.BidderID)
			errs = append(errs, fmt.Errorf("refund %s: %w", p.BidderID, err))
			s.logger.Error("deposit refund failed", "auction_id", auctionID, "user_id", p.BidderID, "error", err)
		}
	}
	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}

	if err := s.store.MarkSettled(ctx, auctionID, s.clock.Now()); err != nil {
		return res, fmt.Errorf("mark settled: %w", err)
	}
	s.logger.Info("auction settled", "auction_id", auctionID, "winner_id", res.WinnerID, "refunded", len(res.Refunded))
	return res, nil
}

// settleWinner records the highest bidder as winner. The winner notification
// goes out only from the run that actually wrote winner_id.
func (s *SettlementService) settleWinner(ctx context.Context, a *models.Auction, res *SettlementResult) error {
	top, err := s.store.HighestBid(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("highest bid: %w", err)
	}
	if top == nil {
		return nil
	}
	winner := top.BidderID
	if a.WinnerID != nil {
		winner = *a.WinnerID
	}
	res.WinnerID = &winner
	res.WinningAmount = top.Amount
	res.RemainingAmount = top.Amount - a.DepositAmount
	if a.WinnerID != nil {
		return nil
	}

	written, err := s.store.SetWinner(ctx, a.ID, winner)
	if err != nil {
		return fmt.Errorf("set winner: %w", err)
	}
	if !written {
		return nil
	}
	// The remaining amount is informational; its payment is handled outside the engine.
	s.notify(ctx, winner, models.NotifyAuctionWon, map[string]any{
		"auction_id":       a.ID.String(),
		"winning_amount":   res.WinningAmount,
		"deposit_amount":   a.DepositAmount,
		"remaining_amount": res.RemainingAmount,
	})
	return nil
}

func (s *SettlementService) refund(ctx context.Context, a *models.Auction, p *models.Participant, res *SettlementResult) error {
	if p.IsRefunded {
		return nil
	}
	refunded, err := s.store.RefundParticipant(ctx, p, a.DepositAmount)
	if err != nil {
		return err
	}
	if !refunded {
		return nil
	}
	res.Refunded = append(res.Refunded, p.BidderID)
	s.notify(ctx, p.BidderID, models.NotifyDepositRefunded, map[string]any{
		"auction_id": a.ID.String(),
		"amount":     a.DepositAmount,
	})
	return nil
}

func (s *SettlementService) notify(ctx context.Context, userID uuid.UUID, kind string, payload map[string]any) {
	if err := s.notifier.Notify(ctx, userID, kind, payload); err != nil {
		s.logger.Warn("notification failed", "user_id", userID, "kind", kind, "error", err)
	}
}
