package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/estatehub/backend/internal/models"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newAuction(t *testing.T, m *MemoryStore, status string) *models.Auction {
	t.Helper()
	a := &models.Auction{
		AssetID:       uuid.New(),
		Status:        status,
		StartPrice:    1000,
		BidStep:       100,
		DepositAmount: 500,
		StartTime:     t0,
		EndTime:       t0.Add(10 * time.Minute),
	}
	assert.NoError(t, m.CreateAuction(context.Background(), a))
	return a
}

func confirmDeposit(t *testing.T, m *MemoryStore, auctionID, userID uuid.UUID) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	tx := &models.Transaction{UserID: userID, AuctionID: &auctionID, Type: models.TxTypeAuctionDeposit, Amount: 500, Status: models.TxStatusPending}
	assert.NoError(t, m.AppendTransaction(ctx, tx))
	ok, err := m.ConfirmDeposit(ctx, auctionID, userID, tx.ID)
	assert.NoError(t, err)
	assert.True(t, ok)
	return tx.ID
}

func TestCreateAuction_Defaults(t *testing.T) {
	m := NewMemoryStore()
	a := newAuction(t, m, "")

	got, err := m.GetAuction(context.Background(), a.ID)
	assert.NoError(t, err)
	check.NotEqual(t, uuid.Nil, got.ID)
	check.Equal(t, models.AuctionStatusUpcoming, got.Status)
	check.Equal(t, int64(1000), got.CurrentPrice)
	check.Nil(t, got.WinnerID)

	_, err = m.GetAuction(context.Background(), uuid.New())
	check.True(t, errors.Is(err, ErrNotFound))
}

func TestGetAuction_ReturnsCopy(t *testing.T) {
	m := NewMemoryStore()
	a := newAuction(t, m, models.AuctionStatusOngoing)

	got, _ := m.GetAuction(context.Background(), a.ID)
	got.CurrentPrice = 99999
	got.Status = models.AuctionStatusCancelled

	again, _ := m.GetAuction(context.Background(), a.ID)
	check.Equal(t, int64(1000), again.CurrentPrice)
	check.Equal(t, models.AuctionStatusOngoing, again.Status)
}

func TestListDueAuctions(t *testing.T) {
	m := NewMemoryStore()
	startDue := newAuction(t, m, models.AuctionStatusUpcoming)
	endDue := newAuction(t, m, models.AuctionStatusOngoing)
	newAuction(t, m, models.AuctionStatusCompleted)
	newAuction(t, m, models.AuctionStatusCancelled)

	due, err := m.ListDueAuctions(context.Background(), t0.Add(-time.Second))
	assert.NoError(t, err)
	check.Equal(t, 0, len(due))

	due, _ = m.ListDueAuctions(context.Background(), t0)
	check.Equal(t, 1, len(due))
	check.Equal(t, startDue.ID, due[0].ID)

	due, _ = m.ListDueAuctions(context.Background(), t0.Add(10*time.Minute))
	check.Equal(t, 2, len(due))
	ids := map[uuid.UUID]bool{due[0].ID: true, due[1].ID: true}
	check.True(t, ids[startDue.ID] && ids[endDue.ID])
}

func TestCompareAndSetAuctionStatus(t *testing.T) {
	m := NewMemoryStore()
	a := newAuction(t, m, models.AuctionStatusUpcoming)
	ctx := context.Background()

	ok, err := m.CompareAndSetAuctionStatus(ctx, a.ID, models.AuctionStatusUpcoming, models.AuctionStatusOngoing)
	assert.NoError(t, err)
	check.True(t, ok)

	ok, err = m.CompareAndSetAuctionStatus(ctx, a.ID, models.AuctionStatusUpcoming, models.AuctionStatusOngoing)
	assert.NoError(t, err)
	check.False(t, ok)

	_, err = m.CompareAndSetAuctionStatus(ctx, uuid.New(), models.AuctionStatusUpcoming, models.AuctionStatusOngoing)
	check.True(t, errors.Is(err, ErrNotFound))
}

func TestPlaceBid_ConditionalWrite(t *testing.T) {
	m := NewMemoryStore()
	a := newAuction(t, m, models.AuctionStatusOngoing)
	ctx := context.Background()
	now := t0.Add(time.Minute)
	bidder := uuid.New()

	ok, err := m.PlaceBid(ctx, &models.Bid{AuctionID: a.ID, BidderID: bidder, Amount: 1100}, 1000, now)
	assert.NoError(t, err)
	check.True(t, ok)

	// Stale expected price.
	ok, _ = m.PlaceBid(ctx, &models.Bid{AuctionID: a.ID, BidderID: bidder, Amount: 1200}, 1000, now)
	check.False(t, ok)

	// At end time.
	ok, _ = m.PlaceBid(ctx, &models.Bid{AuctionID: a.ID, BidderID: bidder, Amount: 1200}, 1100, a.EndTime)
	check.False(t, ok)

	bids, _ := m.ListBids(ctx, a.ID)
	check.Equal(t, 1, len(bids))
	check.NotEqual(t, uuid.Nil, bids[0].ID)
	check.Equal(t, now, bids[0].CreatedAt)

	got, _ := m.GetAuction(ctx, a.ID)
	check.Equal(t, int64(1100), got.CurrentPrice)

	_, _ = m.CompareAndSetAuctionStatus(ctx, a.ID, models.AuctionStatusOngoing, models.AuctionStatusCancelled)
	ok, _ = m.PlaceBid(ctx, &models.Bid{AuctionID: a.ID, BidderID: bidder, Amount: 1200}, 1100, now)
	check.False(t, ok)
}

func TestHighestBid(t *testing.T) {
	m := NewMemoryStore()
	a := newAuction(t, m, models.AuctionStatusOngoing)
	ctx := context.Background()

	top, err := m.HighestBid(ctx, a.ID)
	assert.NoError(t, err)
	check.Nil(t, top)

	first, second := uuid.New(), uuid.New()
	_, _ = m.PlaceBid(ctx, &models.Bid{AuctionID: a.ID, BidderID: first, Amount: 1500}, 1000, t0.Add(time.Minute))
	// Direct append of an equal later bid to exercise the earliest-wins tie break.
	m.mu.Lock()
	m.bids[a.ID] = append(m.bids[a.ID], &models.Bid{ID: uuid.New(), AuctionID: a.ID, BidderID: second, Amount: 1500, CreatedAt: t0.Add(2 * time.Minute)})
	m.mu.Unlock()

	top, err = m.HighestBid(ctx, a.ID)
	assert.NoError(t, err)
	assert.NotNil(t, top)
	check.Equal(t, first, top.BidderID)
}

func TestSetWinner_OnlyOnce(t *testing.T) {
	m := NewMemoryStore()
	a := newAuction(t, m, models.AuctionStatusCompleted)
	ctx := context.Background()
	w1, w2 := uuid.New(), uuid.New()

	ok, err := m.SetWinner(ctx, a.ID, w1)
	assert.NoError(t, err)
	check.True(t, ok)
	ok, _ = m.SetWinner(ctx, a.ID, w2)
	check.False(t, ok)

	got, _ := m.GetAuction(ctx, a.ID)
	check.Equal(t, w1, *got.WinnerID)
}

func TestConfirmDeposit_Upsert(t *testing.T) {
	m := NewMemoryStore()
	a := newAuction(t, m, models.AuctionStatusOngoing)
	ctx := context.Background()
	user := uuid.New()

	txID := confirmDeposit(t, m, a.ID, user)

	p, err := m.GetParticipant(ctx, a.ID, user)
	assert.NoError(t, err)
	check.True(t, p.DepositPaid)
	check.Equal(t, txID, *p.DepositTxID)

	tx, _ := m.GetTransaction(ctx, txID)
	check.Equal(t, models.TxStatusCompleted, tx.Status)

	ok, err := m.ConfirmDeposit(ctx, a.ID, user, txID)
	assert.NoError(t, err)
	check.False(t, ok)

	_, err = m.ConfirmDeposit(ctx, a.ID, user, uuid.New())
	check.True(t, errors.Is(err, ErrNotFound))
}

func TestRefundParticipant(t *testing.T) {
	m := NewMemoryStore()
	a := newAuction(t, m, models.AuctionStatusCompleted)
	ctx := context.Background()
	winner, loser, unpaid := uuid.New(), uuid.New(), uuid.New()
	confirmDeposit(t, m, a.ID, winner)
	confirmDeposit(t, m, a.ID, loser)
	_, _ = m.SetWinner(ctx, a.ID, winner)

	need, err := m.ParticipantsNeedingRefund(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, 1, len(need))
	check.Equal(t, loser, need[0].BidderID)

	ok, err := m.RefundParticipant(ctx, need[0], 500)
	assert.NoError(t, err)
	check.True(t, ok)
	ok, err = m.RefundParticipant(ctx, need[0], 500)
	assert.NoError(t, err)
	check.False(t, ok)

	w, err := m.GetWallet(ctx, loser)
	assert.NoError(t, err)
	check.Equal(t, int64(500), w.Balance)

	txs, _ := m.ListTransactions(ctx, loser)
	check.Equal(t, 2, len(txs))
	check.Equal(t, models.TxTypeAuctionDeposit, txs[0].Type)
	check.Equal(t, models.TxTypeAuctionRefund, txs[1].Type)
	assert.NotNil(t, txs[1].WalletID)
	check.Equal(t, w.ID, *txs[1].WalletID)

	need, _ = m.ParticipantsNeedingRefund(ctx, a.ID)
	check.Equal(t, 0, len(need))

	_, err = m.RefundParticipant(ctx, &models.Participant{AuctionID: a.ID, BidderID: unpaid}, 500)
	check.True(t, errors.Is(err, ErrNotFound))
}

func TestListAuctionsAwaitingSettlement(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	unsettled := newAuction(t, m, models.AuctionStatusCompleted)
	settled := newAuction(t, m, models.AuctionStatusCompleted)
	newAuction(t, m, models.AuctionStatusOngoing)
	assert.NoError(t, m.MarkSettled(ctx, settled.ID, t0))

	list, err := m.ListAuctionsAwaitingSettlement(ctx)
	assert.NoError(t, err)
	check.Equal(t, 1, len(list))
	check.Equal(t, unsettled.ID, list[0].ID)

	// A deposit confirmed after settlement makes the auction eligible again.
	confirmDeposit(t, m, settled.ID, uuid.New())
	list, _ = m.ListAuctionsAwaitingSettlement(ctx)
	check.Equal(t, 2, len(list))

	// MarkSettled keeps the first timestamp.
	assert.NoError(t, m.MarkSettled(ctx, settled.ID, t0.Add(time.Hour)))
	got, _ := m.GetAuction(ctx, settled.ID)
	check.Equal(t, t0, *got.SettledAt)
}

func TestCreditWallet_Concurrent(t *testing.T) {
	m := NewMemoryStore()
	user := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.CreditWallet(context.Background(), user, 10)
			check.NoError(t, err)
		}()
	}
	wg.Wait()

	w, err := m.GetWallet(context.Background(), user)
	assert.NoError(t, err)
	check.Equal(t, int64(500), w.Balance)
}

func TestSetTransactionStatus(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	tx := &models.Transaction{UserID: uuid.New(), Type: models.TxTypeDeposit, Amount: 100, Status: models.TxStatusPending}
	assert.NoError(t, m.AppendTransaction(ctx, tx))

	ok, err := m.SetTransactionStatus(ctx, tx.ID, models.TxStatusPending, models.TxStatusFailed)
	assert.NoError(t, err)
	check.True(t, ok)
	ok, _ = m.SetTransactionStatus(ctx, tx.ID, models.TxStatusPending, models.TxStatusCompleted)
	check.False(t, ok)

	_, err = m.SetTransactionStatus(ctx, uuid.New(), models.TxStatusPending, models.TxStatusFailed)
	check.True(t, errors.Is(err, ErrNotFound))
}

func TestConfirmDeposit_CompletesFailedTransaction(t *testing.T) {
	m := NewMemoryStore()
	a := newAuction(t, m, models.AuctionStatusOngoing)
	ctx := context.Background()
	user := uuid.New()
	tx := &models.Transaction{UserID: user, AuctionID: &a.ID, Type: models.TxTypeAuctionDeposit, Amount: 500, Status: models.TxStatusFailed}
	assert.NoError(t, m.AppendTransaction(ctx, tx))

	ok, err := m.ConfirmDeposit(ctx, a.ID, user, tx.ID)
	assert.NoError(t, err)
	check.True(t, ok)
	got, _ := m.GetTransaction(ctx, tx.ID)
	check.Equal(t, models.TxStatusCompleted, got.Status)
}

func TestRefundSurplusDeposit(t *testing.T) {
	m := NewMemoryStore()
	a := newAuction(t, m, models.AuctionStatusOngoing)
	ctx := context.Background()
	user := uuid.New()
	confirmDeposit(t, m, a.ID, user)
	surplus := &models.Transaction{UserID: user, AuctionID: &a.ID, Type: models.TxTypeAuctionDeposit, Amount: 500, Status: models.TxStatusPending}
	assert.NoError(t, m.AppendTransaction(ctx, surplus))

	ok, err := m.RefundSurplusDeposit(ctx, surplus.ID)
	assert.NoError(t, err)
	check.True(t, ok)
	ok, err = m.RefundSurplusDeposit(ctx, surplus.ID)
	assert.NoError(t, err)
	check.False(t, ok)

	got, _ := m.GetTransaction(ctx, surplus.ID)
	check.Equal(t, models.TxStatusCompleted, got.Status)
	w, err := m.GetWallet(ctx, user)
	assert.NoError(t, err)
	check.Equal(t, int64(500), w.Balance)

	txs, _ := m.ListTransactions(ctx, user)
	assert.Equal(t, 3, len(txs))
	check.Equal(t, models.TxTypeAuctionRefund, txs[2].Type)
	check.Equal(t, a.ID, *txs[2].AuctionID)

	_, err = m.RefundSurplusDeposit(ctx, uuid.New())
	check.True(t, errors.Is(err, ErrNotFound))
}
