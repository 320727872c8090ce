package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/estatehub/backend/internal/ledger"
	"github.com/estatehub/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Shared fakes for the auction engine tests. Persistence is the real
// in-memory ledger; only time, broadcast and notifications are faked.
// ---------------------------------------------------------------------------

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []models.AuctionEvent
	topics []string
}

func (b *recordingBroadcaster) Publish(topic string, ev models.AuctionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	b.events = append(b.events, ev)
}

func (b *recordingBroadcaster) count(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ev := range b.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func (b *recordingBroadcaster) last(eventType string) (models.AuctionEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].Type == eventType {
			return b.events[i], true
		}
	}
	return models.AuctionEvent{}, false
}

type notification struct {
	userID  uuid.UUID
	kind    string
	payload map[string]any
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, userID uuid.UUID, kind string, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{userID: userID, kind: kind, payload: payload})
	return n.err
}

func (n *recordingNotifier) count(kind string, userID uuid.UUID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.kind == kind && s.userID == userID {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) total(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.kind == kind {
			c++
		}
	}
	return c
}

// ---------------------------------------------------------------------------
// Seeding helpers
// ---------------------------------------------------------------------------

// seedAuction stores an auction priced 1000 with step 100 and deposit 500,
// running from t0 to t0+10m.
func seedAuction(t *testing.T, store *ledger.MemoryStore, status string) *models.Auction {
	t.Helper()
	a := &models.Auction{
		AssetID:       uuid.New(),
		Status:        status,
		StartPrice:    1000,
		CurrentPrice:  1000,
		BidStep:       100,
		DepositAmount: 500,
		StartTime:     t0,
		EndTime:       t0.Add(10 * time.Minute),
	}
	if err := store.CreateAuction(context.Background(), a); err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	return a
}

// payDeposit records a completed deposit for userID on auctionID.
func payDeposit(t *testing.T, store *ledger.MemoryStore, auctionID, userID uuid.UUID, amount int64) {
	t.Helper()
	ctx := context.Background()
	tx := &models.Transaction{
		ID:        uuid.New(),
		UserID:    userID,
		AuctionID: &auctionID,
		Type:      models.TxTypeAuctionDeposit,
		Amount:    amount,
		Status:    models.TxStatusPending,
	}
	if err := store.AppendTransaction(ctx, tx); err != nil {
		t.Fatalf("AppendTransaction: %v", err)
	}
	ok, err := store.ConfirmDeposit(ctx, auctionID, userID, tx.ID)
	if err != nil || !ok {
		t.Fatalf("ConfirmDeposit: ok=%v err=%v", ok, err)
	}
}

// placeBid writes a bid straight to the store at the given time.
func placeBid(t *testing.T, store *ledger.MemoryStore, auctionID, userID uuid.UUID, amount int64, at time.Time) {
	t.Helper()
	a, err := store.GetAuction(context.Background(), auctionID)
	if err != nil {
		t.Fatalf("GetAuction: %v", err)
	}
	bid := &models.Bid{AuctionID: auctionID, BidderID: userID, Amount: amount, CreatedAt: at}
	ok, err := store.PlaceBid(context.Background(), bid, a.CurrentPrice, at)
	if err != nil || !ok {
		t.Fatalf("PlaceBid(%d): ok=%v err=%v", amount, ok, err)
	}
}

func setStatus(t *testing.T, store *ledger.MemoryStore, auctionID uuid.UUID, from, to string) {
	t.Helper()
	ok, err := store.CompareAndSetAuctionStatus(context.Background(), auctionID, from, to)
	if err != nil || !ok {
		t.Fatalf("CompareAndSetAuctionStatus %s->%s: ok=%v err=%v", from, to, ok, err)
	}
}

func mustAuction(t *testing.T, store *ledger.MemoryStore, id uuid.UUID) *models.Auction {
	t.Helper()
	a, err := store.GetAuction(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAuction: %v", err)
	}
	return a
}

func walletBalance(t *testing.T, store *ledger.MemoryStore, userID uuid.UUID) int64 {
	t.Helper()
	w, err := store.GetWallet(context.Background(), userID)
	if err != nil {
		return 0
	}
	return w.Balance
}
