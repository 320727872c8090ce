package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/estatehub/backend/internal/ledger"
	"github.com/estatehub/backend/internal/models"
)

const (
	DefaultBidQueueSize  = 256
	DefaultBidWorkerIdle = 5 * time.Minute
)

// BidConfig tunes the per-auction bid workers.
type BidConfig struct {
	// QueueSize bounds the pending bids per auction; extra bids get AUCTION_BUSY.
	QueueSize int
	// IdleTimeout retires a worker that received no bid for this long.
	IdleTimeout time.Duration
}

// BidService admits bids. Every auction gets one worker goroutine that
// handles that auction's bids strictly in arrival order, so the price check
// and the price write can never interleave with a sibling bid. Workers for
// different auctions run independently.
type BidService struct {
	store       BidStore
	broadcaster Broadcaster
	clock       Clock
	logger      *slog.Logger
	queueSize   int
	idle        time.Duration

	mu      sync.Mutex
	workers map[uuid.UUID]*bidWorker
	stopped bool
	done    chan struct{}
	wg      sync.WaitGroup
}

type bidWorker struct {
	auctionID uuid.UUID
	reqs      chan *bidRequest
}

type bidRequest struct {
	ctx       context.Context
	auctionID uuid.UUID
	userID    uuid.UUID
	amount    int64
	reply     chan bidResult
}

type bidResult struct {
	bid *models.Bid
	err error
}

func NewBidService(store BidStore, broadcaster Broadcaster, clock Clock, logger *slog.Logger, cfg BidConfig) *BidService {
	if broadcaster == nil {
		broadcaster = nopBroadcaster{}
	}
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultBidQueueSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultBidWorkerIdle
	}
	return &BidService{
		store:       store,
		broadcaster: broadcaster,
		clock:       clock,
		logger:      logger,
		queueSize:   cfg.QueueSize,
		idle:        cfg.IdleTimeout,
		workers:     make(map[uuid.UUID]*bidWorker),
		done:        make(chan struct{}),
	}
}

// PlaceBid submits a bid and waits for the auction's worker to decide it.
// Every precondition is evaluated by the worker against freshly read state.
// Once queued, the request is always answered: a context cancelled before the
// worker picks it up fails it, a context cancelled later does not undo it.
func (s *BidService) PlaceBid(ctx context.Context, auctionID, userID uuid.UUID, amount int64) (*models.Bid, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	// Cheap early rejection so unknown or closed auctions never get a worker.
	a, err := s.getAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if a.IsTerminal() {
		return nil, withDetail(ErrAuctionNotOngoing, "auction is %s", a.Status)
	}

	req := &bidRequest{
		ctx:       ctx,
		auctionID: auctionID,
		userID:    userID,
		amount:    amount,
		reply:     make(chan bidResult, 1),
	}
	if err := s.enqueue(req); err != nil {
		return nil, err
	}
	res := <-req.reply
	return res.bid, res.err
}

// ListBids returns accepted bids of an auction in acceptance order.
func (s *BidService) ListBids(ctx context.Context, auctionID uuid.UUID) ([]*models.Bid, error) {
	if _, err := s.getAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return s.store.ListBids(ctx, auctionID)
}

// ActiveWorkers reports how many auctions currently have a live worker.
func (s *BidService) ActiveWorkers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// Stop rejects new bids, fails queued ones with ENGINE_STOPPED and waits for
// every worker to exit.
func (s *BidService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.done)
	s.mu.Unlock()
	s.wg.Wait()
}

// enqueue hands req to the auction's worker, starting one if needed. The send
// happens under s.mu so a worker retiring concurrently can never strand it.
func (s *BidService) enqueue(req *bidRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrEngineStopped
	}
	w, ok := s.workers[req.auctionID]
	if !ok {
		w = &bidWorker{auctionID: req.auctionID, reqs: make(chan *bidRequest, s.queueSize)}
		s.workers[req.auctionID] = w
		s.wg.Add(1)
		go s.run(w)
	}
	select {
	case w.reqs <- req:
		return nil
	default:
		return ErrAuctionBusy
	}
}

func (s *BidService) run(w *bidWorker) {
	defer s.wg.Done()
	timer := time.NewTimer(s.idle)
	defer timer.Stop()
	for {
		// Stop wins over queued work.
		select {
		case <-s.done:
			s.drain(w)
			return
		default:
		}
		select {
		case <-s.done:
			s.drain(w)
			return
		case req := <-w.reqs:
			s.process(req)
			timer.Reset(s.idle)
		case <-timer.C:
			if s.retire(w) {
				return
			}
			timer.Reset(s.idle)
		}
	}
}

// retire removes an idle worker unless a bid slipped in meanwhile.
func (s *BidService) retire(w *bidWorker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(w.reqs) > 0 {
		return false
	}
	delete(s.workers, w.auctionID)
	return true
}

func (s *BidService) drain(w *bidWorker) {
	for {
		select {
		case req := <-w.reqs:
			req.reply <- bidResult{err: ErrEngineStopped}
		default:
			return
		}
	}
}

func (s *BidService) process(req *bidRequest) {
	if err := req.ctx.Err(); err != nil {
		req.reply <- bidResult{err: err}
		return
	}
	bid, err := s.admit(context.WithoutCancel(req.ctx), req)
	req.reply <- bidResult{bid: bid, err: err}
}

// admit runs on the auction's worker only.
func (s *BidService) admit(ctx context.Context, req *bidRequest) (*models.Bid, error) {
	now := s.clock.Now()
	a, err := s.getAuction(ctx, req.auctionID)
	if err != nil {
		return nil, err
	}
	if err := checkOpen(a, now); err != nil {
		return nil, err
	}

	p, err := s.store.GetParticipant(ctx, req.auctionID, req.userID)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	if p == nil || !p.DepositPaid {
		return nil, ErrDepositRequired
	}

	if !a.Admits(req.amount) {
		return nil, withDetail(ErrBidTooLow, "minimum bid is %d", a.MinNextBid())
	}

	bid := &models.Bid{
		ID:        uuid.New(),
		AuctionID: req.auctionID,
		BidderID:  req.userID,
		Amount:    req.amount,
		CreatedAt: now,
	}
	ok, err := s.store.PlaceBid(ctx, bid, a.CurrentPrice, now)
	if err != nil {
		return nil, fmt.Errorf("place bid: %w", err)
	}
	if !ok {
		return nil, s.explainRejectedWrite(ctx, req, now)
	}

	bidder := req.userID
	s.broadcaster.Publish(models.AuctionTopic(req.auctionID), models.AuctionEvent{
		Type:      models.EventNewBid,
		AuctionID: req.auctionID,
		BidderID:  &bidder,
		Amount:    bid.Amount,
		Timestamp: bid.CreatedAt,
	})
	s.logger.Debug("bid accepted", "auction_id", req.auctionID, "user_id", req.userID, "amount", bid.Amount)
	return bid, nil
}

// explainRejectedWrite classifies a conditional write that matched no row:
// the auction closed or was cancelled, or its price moved (another process
// wrote a bid between our read and our write).
func (s *BidService) explainRejectedWrite(ctx context.Context, req *bidRequest, now time.Time) error {
	a, err := s.getAuction(ctx, req.auctionID)
	if err != nil {
		return err
	}
	if err := checkOpen(a, now); err != nil {
		return err
	}
	return withDetail(ErrBidTooLow, "minimum bid is %d", a.MinNextBid())
}

func (s *BidService) getAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	a, err := s.store.GetAuction(ctx, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get auction: %w", err)
	}
	return a, nil
}

func checkOpen(a *models.Auction, now time.Time) error {
	if a.Status != models.AuctionStatusOngoing {
		return withDetail(ErrAuctionNotOngoing, "auction is %s", a.Status)
	}
	if !now.Before(a.EndTime) {
		return ErrAuctionEnded
	}
	return nil
}
