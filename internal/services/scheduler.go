package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/estatehub/backend/internal/ledger"
	"github.com/estatehub/backend/internal/models"
)

const (
	DefaultSchedulerInterval    = 60 * time.Second
	DefaultSchedulerConcurrency = 8
)

// Settler runs settlement for one completed auction.
type Settler interface {
	Settle(ctx context.Context, auctionID uuid.UUID) (*SettlementResult, error)
}

// Scheduler advances auctions through UPCOMING -> ONGOING -> COMPLETED on a
// fixed interval. Every transition is a compare-and-set on status, so
// overlapping ticks, or a tick racing a restarted process, fire each
// transition's side effects once.
type Scheduler struct {
	store       LifecycleStore
	settler     Settler
	broadcaster Broadcaster
	clock       Clock
	logger      *slog.Logger
	interval    time.Duration
	concurrency int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// TickReport counts what one tick did.
type TickReport struct {
	Started   int
	Completed int
	Recovered int
	Failed    int
}

type tickCounters struct {
	started, completed, recovered, failed atomic.Int64
}

func (c *tickCounters) report() TickReport {
	return TickReport{
		Started:   int(c.started.Load()),
		Completed: int(c.completed.Load()),
		Recovered: int(c.recovered.Load()),
		Failed:    int(c.failed.Load()),
	}
}

func NewScheduler(store LifecycleStore, settler Settler, broadcaster Broadcaster, clock Clock, logger *slog.Logger, interval time.Duration, concurrency int) *Scheduler {
	if broadcaster == nil {
		broadcaster = nopBroadcaster{}
	}
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultSchedulerInterval
	}
	if concurrency <= 0 {
		concurrency = DefaultSchedulerConcurrency
	}
	return &Scheduler{
		store:       store,
		settler:     settler,
		broadcaster: broadcaster,
		clock:       clock,
		logger:      logger,
		interval:    interval,
		concurrency: concurrency,
	}
}

// Start runs a tick immediately and then every interval until Stop is called
// or ctx is cancelled. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.logger.Info("auction scheduler started", "interval", s.interval)
}

// Stop cancels the loop and waits for the tick in progress to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("auction scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick scans due auctions once and then reruns settlement for completed
// auctions that still have work left. Per-auction failures are logged and
// counted; only a failed scan query is returned as an error.
func (s *Scheduler) Tick(ctx context.Context) (TickReport, error) {
	var c tickCounters
	now := s.clock.Now()

	due, err := s.store.ListDueAuctions(ctx, now)
	if err != nil {
		return c.report(), fmt.Errorf("list due auctions: %w", err)
	}
	var handled sync.Map
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, a := range due {
		handled.Store(a.ID, struct{}{})
		g.Go(func() error {
			s.advance(ctx, a, now, &c)
			return nil
		})
	}
	_ = g.Wait()

	awaiting, err := s.store.ListAuctionsAwaitingSettlement(ctx)
	if err != nil {
		return c.report(), fmt.Errorf("list auctions awaiting settlement: %w", err)
	}
	for _, a := range awaiting {
		if _, ok := handled.Load(a.ID); ok {
			continue
		}
		g.Go(func() error {
			s.retrySettlement(ctx, a.ID, &c)
			return nil
		})
	}
	_ = g.Wait()

	r := c.report()
	if r != (TickReport{}) {
		s.logger.Info("scheduler tick", "started", r.Started, "completed", r.Completed, "recovered", r.Recovered, "failed", r.Failed)
	}
	return r, nil
}

func (s *Scheduler) advance(ctx context.Context, a *models.Auction, now time.Time, c *tickCounters) {
	status := a.Status
	if status == models.AuctionStatusUpcoming {
		if now.Before(a.StartTime) {
			return
		}
		ok, err := s.store.CompareAndSetAuctionStatus(ctx, a.ID, models.AuctionStatusUpcoming, models.AuctionStatusOngoing)
		if err != nil {
			c.failed.Add(1)
			s.logger.Error("start auction failed", "auction_id", a.ID, "error", err)
			return
		}
		if ok {
			c.started.Add(1)
			s.logger.Info("auction started", "auction_id", a.ID)
			s.broadcaster.Publish(models.AuctionTopic(a.ID), models.AuctionEvent{
				Type:      models.EventAuctionStarted,
				AuctionID: a.ID,
				Timestamp: now,
			})
		}
		status = models.AuctionStatusOngoing
	}
	if status == models.AuctionStatusOngoing && !now.Before(a.EndTime) {
		s.close(ctx, a.ID, now, c)
	}
}

// close re-reads the auction before the COMPLETED compare-and-set so the
// decision never rests on the state listed at the start of the tick.
func (s *Scheduler) close(ctx context.Context, id uuid.UUID, now time.Time, c *tickCounters) {
	a, err := s.store.GetAuction(ctx, id)
	if err != nil {
		c.failed.Add(1)
		s.logger.Error("reload auction before close failed", "auction_id", id, "error", err)
		return
	}
	if a.Status != models.AuctionStatusOngoing || now.Before(a.EndTime) {
		return
	}
	ok, err := s.store.CompareAndSetAuctionStatus(ctx, id, models.AuctionStatusOngoing, models.AuctionStatusCompleted)
	if err != nil {
		c.failed.Add(1)
		s.logger.Error("complete auction failed", "auction_id", id, "error", err)
		return
	}
	if !ok {
		return
	}
	c.completed.Add(1)
	s.logger.Info("auction completed", "auction_id", id)

	res, err := s.settler.Settle(ctx, id)
	if err != nil {
		c.failed.Add(1)
		s.logger.Error("settlement failed, will retry next tick", "auction_id", id, "error", err)
	}
	var winner *uuid.UUID
	if res != nil {
		winner = res.WinnerID
	}
	s.broadcaster.Publish(models.AuctionTopic(id), models.AuctionEvent{
		Type:      models.EventAuctionEnded,
		AuctionID: id,
		WinnerID:  winner,
		Timestamp: now,
	})
}

func (s *Scheduler) retrySettlement(ctx context.Context, id uuid.UUID, c *tickCounters) {
	if _, err := s.settler.Settle(ctx, id); err != nil {
		c.failed.Add(1)
		s.logger.Error("settlement retry failed", "auction_id", id, "error", err)
		return
	}
	c.recovered.Add(1)
}

// Cancel moves an UPCOMING or ONGOING auction to CANCELLED. Bids still queued
// for it fail on their fresh status read.
func (s *Scheduler) Cancel(ctx context.Context, id uuid.UUID) error {
	for {
		a, err := s.store.GetAuction(ctx, id)
		if errors.Is(err, ledger.ErrNotFound) {
			return ErrAuctionNotFound
		}
		if err != nil {
			return fmt.Errorf("get auction: %w", err)
		}
		if a.IsTerminal() {
			return withDetail(ErrAuctionNotOpen, "auction is %s", a.Status)
		}
		ok, err := s.store.CompareAndSetAuctionStatus(ctx, id, a.Status, models.AuctionStatusCancelled)
		if err != nil {
			return fmt.Errorf("cancel auction: %w", err)
		}
		if ok {
			s.logger.Info("auction cancelled", "auction_id", id, "previous_status", a.Status)
			s.broadcaster.Publish(models.AuctionTopic(id), models.AuctionEvent{
				Type:      models.EventAuctionCancelled,
				AuctionID: id,
				Timestamp: s.clock.Now(),
			})
			return nil
		}
		// Status moved between read and write; statuses only move forward, so this loop is short.
	}
}
