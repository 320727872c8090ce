package ledger

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/estatehub/backend/internal/models"
)

type participantKey struct {
	auctionID uuid.UUID
	userID    uuid.UUID
}

// MemoryStore is an in-process ledger store. One mutex guards every table so
// each method is atomic the same way a single Postgres transaction is.
type MemoryStore struct {
	mu           sync.Mutex
	now          func() time.Time
	auctions     map[uuid.UUID]*models.Auction
	bids         map[uuid.UUID][]*models.Bid
	participants map[participantKey]*models.Participant
	wallets      map[uuid.UUID]*models.Wallet
	txs          map[uuid.UUID]*models.Transaction
	txOrder      []uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:          func() time.Time { return time.Now().UTC() },
		auctions:     make(map[uuid.UUID]*models.Auction),
		bids:         make(map[uuid.UUID][]*models.Bid),
		participants: make(map[participantKey]*models.Participant),
		wallets:      make(map[uuid.UUID]*models.Wallet),
		txs:          make(map[uuid.UUID]*models.Transaction),
	}
}

// CreateAuction stores a new auction. Zero ID, status and current price are
// filled with a fresh id, UPCOMING and the start price.
func (m *MemoryStore) CreateAuction(_ context.Context, a *models.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prepareAuction(a, m.now())
	cp := *a
	m.auctions[a.ID] = &cp
	return nil
}

func (m *MemoryStore) GetAuction(_ context.Context, id uuid.UUID) (*models.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAuction(a), nil
}

func (m *MemoryStore) ListDueAuctions(_ context.Context, now time.Time) ([]*models.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Auction
	for _, a := range m.auctions {
		switch {
		case a.Status == models.AuctionStatusUpcoming && !now.Before(a.StartTime):
			out = append(out, copyAuction(a))
		case a.Status == models.AuctionStatusOngoing && !now.Before(a.EndTime):
			out = append(out, copyAuction(a))
		}
	}
	sortAuctions(out)
	return out, nil
}

func (m *MemoryStore) ListAuctionsAwaitingSettlement(_ context.Context) ([]*models.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Auction
	for _, a := range m.auctions {
		if a.Status != models.AuctionStatusCompleted {
			continue
		}
		if a.SettledAt == nil || len(m.needingRefundLocked(a)) > 0 {
			out = append(out, copyAuction(a))
		}
	}
	sortAuctions(out)
	return out, nil
}

func (m *MemoryStore) CompareAndSetAuctionStatus(_ context.Context, id uuid.UUID, expected, next string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	if !ok {
		return false, ErrNotFound
	}
	if a.Status != expected {
		return false, nil
	}
	a.Status = next
	a.UpdatedAt = m.now()
	return true, nil
}

func (m *MemoryStore) PlaceBid(_ context.Context, bid *models.Bid, expectedPrice int64, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[bid.AuctionID]
	if !ok {
		return false, ErrNotFound
	}
	if !a.IsOpenAt(now) || a.CurrentPrice != expectedPrice {
		return false, nil
	}
	if bid.ID == uuid.Nil {
		bid.ID = uuid.New()
	}
	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = now
	}
	cp := *bid
	m.bids[bid.AuctionID] = append(m.bids[bid.AuctionID], &cp)
	a.CurrentPrice = bid.Amount
	a.UpdatedAt = now
	return true, nil
}

func (m *MemoryStore) ListBids(_ context.Context, auctionID uuid.UUID) ([]*models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Bid, 0, len(m.bids[auctionID]))
	for _, b := range m.bids[auctionID] {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

// HighestBid returns the largest bid, earliest first on equal amounts, or nil
// when the auction has no bids.
func (m *MemoryStore) HighestBid(_ context.Context, auctionID uuid.UUID) (*models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.Bid
	for _, b := range m.bids[auctionID] {
		if best == nil || b.Amount > best.Amount || (b.Amount == best.Amount && b.CreatedAt.Before(best.CreatedAt)) {
			best = b
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (m *MemoryStore) SetWinner(_ context.Context, auctionID, winnerID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[auctionID]
	if !ok {
		return false, ErrNotFound
	}
	if a.WinnerID != nil {
		return false, nil
	}
	w := winnerID
	a.WinnerID = &w
	a.UpdatedAt = m.now()
	return true, nil
}

func (m *MemoryStore) MarkSettled(_ context.Context, auctionID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[auctionID]
	if !ok {
		return ErrNotFound
	}
	if a.SettledAt == nil {
		t := at
		a.SettledAt = &t
	}
	return nil
}

func (m *MemoryStore) GetParticipant(_ context.Context, auctionID, userID uuid.UUID) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[participantKey{auctionID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) ListParticipants(_ context.Context, auctionID uuid.UUID) ([]*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Participant
	for k, p := range m.participants {
		if k.auctionID == auctionID {
			cp := *p
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *models.Participant) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ConfirmDeposit(_ context.Context, auctionID, userID, txID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[txID]
	if !ok {
		return false, ErrNotFound
	}
	now := m.now()
	key := participantKey{auctionID, userID}
	p, ok := m.participants[key]
	if ok && p.DepositPaid {
		return false, nil
	}
	if !ok {
		p = &models.Participant{AuctionID: auctionID, BidderID: userID, CreatedAt: now}
		m.participants[key] = p
	}
	id := txID
	p.DepositPaid = true
	p.DepositTxID = &id
	p.UpdatedAt = now
	t.Status = models.TxStatusCompleted
	t.UpdatedAt = now
	return true, nil
}

// RefundSurplusDeposit completes txID and returns its amount to the wallet.
func (m *MemoryStore) RefundSurplusDeposit(_ context.Context, txID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[txID]
	if !ok {
		return false, ErrNotFound
	}
	if t.Status == models.TxStatusCompleted {
		return false, nil
	}
	now := m.now()
	t.Status = models.TxStatusCompleted
	t.UpdatedAt = now
	w := m.creditLocked(t.UserID, t.Amount, now)
	walletID := w.ID
	var auctionID *uuid.UUID
	if t.AuctionID != nil {
		id := *t.AuctionID
		auctionID = &id
	}
	m.appendTxLocked(&models.Transaction{
		ID:         uuid.New(),
		WalletID:   &walletID,
		UserID:     t.UserID,
		AuctionID:  auctionID,
		Type:       models.TxTypeAuctionRefund,
		Amount:     t.Amount,
		Status:     models.TxStatusCompleted,
		GatewayRef: t.GatewayRef,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	return true, nil
}

func (m *MemoryStore) ParticipantsNeedingRefund(_ context.Context, auctionID uuid.UUID) ([]*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[auctionID]
	if !ok {
		return nil, ErrNotFound
	}
	return m.needingRefundLocked(a), nil
}

func (m *MemoryStore) needingRefundLocked(a *models.Auction) []*models.Participant {
	var out []*models.Participant
	for k, p := range m.participants {
		if k.auctionID != a.ID || !p.DepositPaid || p.IsRefunded {
			continue
		}
		if a.WinnerID != nil && *a.WinnerID == p.BidderID {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *models.Participant) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

func (m *MemoryStore) RefundParticipant(_ context.Context, p *models.Participant, amount int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.participants[participantKey{p.AuctionID, p.BidderID}]
	if !ok {
		return false, ErrNotFound
	}
	if !cur.DepositPaid {
		return false, ErrNotPaid
	}
	if cur.IsRefunded {
		return false, nil
	}
	now := m.now()
	cur.IsRefunded = true
	cur.UpdatedAt = now
	w := m.creditLocked(p.BidderID, amount, now)
	auctionID := p.AuctionID
	walletID := w.ID
	m.appendTxLocked(&models.Transaction{
		ID:        uuid.New(),
		WalletID:  &walletID,
		UserID:    p.BidderID,
		AuctionID: &auctionID,
		Type:      models.TxTypeAuctionRefund,
		Amount:    amount,
		Status:    models.TxStatusCompleted,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return true, nil
}

// CreditWallet atomically adds amount to the user's wallet, creating it on first use.
func (m *MemoryStore) CreditWallet(_ context.Context, userID uuid.UUID, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creditLocked(userID, amount, m.now()).Balance, nil
}

func (m *MemoryStore) creditLocked(userID uuid.UUID, amount int64, now time.Time) *models.Wallet {
	w, ok := m.wallets[userID]
	if !ok {
		w = &models.Wallet{ID: uuid.New(), UserID: userID, CreatedAt: now}
		m.wallets[userID] = w
	}
	w.Balance += amount
	w.UpdatedAt = now
	return w
}

func (m *MemoryStore) GetWallet(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *MemoryStore) AppendTransaction(_ context.Context, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	cp := *t
	m.appendTxLocked(&cp)
	return nil
}

func (m *MemoryStore) appendTxLocked(t *models.Transaction) {
	m.txs[t.ID] = t
	m.txOrder = append(m.txOrder, t.ID)
}

func (m *MemoryStore) GetTransaction(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) SetTransactionStatus(_ context.Context, id uuid.UUID, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[id]
	if !ok {
		return false, ErrNotFound
	}
	if t.Status != from {
		return false, nil
	}
	t.Status = to
	t.UpdatedAt = m.now()
	return true, nil
}

// ListTransactions returns the user's transactions in insertion order.
func (m *MemoryStore) ListTransactions(_ context.Context, userID uuid.UUID) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Transaction
	for _, id := range m.txOrder {
		if t := m.txs[id]; t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func prepareAuction(a *models.Auction, now time.Time) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = models.AuctionStatusUpcoming
	}
	if a.CurrentPrice < a.StartPrice {
		a.CurrentPrice = a.StartPrice
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
}

func copyAuction(a *models.Auction) *models.Auction {
	cp := *a
	if a.WinnerID != nil {
		w := *a.WinnerID
		cp.WinnerID = &w
	}
	if a.SettledAt != nil {
		s := *a.SettledAt
		cp.SettledAt = &s
	}
	return &cp
}

func sortAuctions(list []*models.Auction) {
	slices.SortFunc(list, func(a, b *models.Auction) int {
		if c := a.EndTime.Compare(b.EndTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
}
