package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

func TestNotificationWorker_PostsToWebhook(t *testing.T) {
	received := make(chan NotificationArgs, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		var args NotificationArgs
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			t.Errorf("decode: %v", err)
		}
		received <- args
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewNotificationWorker(srv.URL, nil)
	args := NotificationArgs{UserID: uuid.New(), Event: "auction_won", Payload: map[string]any{"winning_amount": 1200}}
	if err := w.Work(context.Background(), &river.Job[NotificationArgs]{Args: args}); err != nil {
		t.Fatalf("Work: %v", err)
	}
	got := <-received
	if got.UserID != args.UserID || got.Event != "auction_won" {
		t.Errorf("webhook received %+v", got)
	}
	if got.Payload["winning_amount"] != float64(1200) {
		t.Errorf("payload = %v", got.Payload)
	}
}

func TestNotificationWorker_Non2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w := NewNotificationWorker(srv.URL, nil)
	err := w.Work(context.Background(), &river.Job[NotificationArgs]{Args: NotificationArgs{UserID: uuid.New(), Event: "deposit_refunded"}})
	if err == nil {
		t.Fatal("expected error for 503 webhook")
	}
}

func TestNotificationWorker_NoWebhookLogsOnly(t *testing.T) {
	w := NewNotificationWorker("", nil)
	if err := w.Work(context.Background(), &river.Job[NotificationArgs]{Args: NotificationArgs{UserID: uuid.New(), Event: "deposit_confirmed"}}); err != nil {
		t.Fatalf("Work: %v", err)
	}
}

func TestNotificationArgs_FireAndForget(t *testing.T) {
	opts := NotificationArgs{}.InsertOpts()
	if opts.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d; want 1", opts.MaxAttempts)
	}
	if opts.Queue != QueueNotifications {
		t.Errorf("Queue = %q; want %q", opts.Queue, QueueNotifications)
	}
	if (NotificationArgs{}).Kind() != "notification" {
		t.Errorf("unexpected kind %q", NotificationArgs{}.Kind())
	}
}

func TestRiverNotifier_Enqueues(t *testing.T) {
	var inserted []NotificationArgs
	n := NewRiverNotifier(func(_ context.Context, args NotificationArgs) error {
		inserted = append(inserted, args)
		return nil
	})
	user := uuid.New()
	if err := n.Notify(context.Background(), user, "auction_won", map[string]any{"auction_id": "a"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(inserted) != 1 || inserted[0].UserID != user || inserted[0].Event != "auction_won" || inserted[0].SentAt.IsZero() {
		t.Fatalf("inserted = %+v", inserted)
	}

	failing := NewRiverNotifier(func(context.Context, NotificationArgs) error { return errors.New("db down") })
	if err := failing.Notify(context.Background(), user, "auction_won", nil); err == nil {
		t.Error("expected enqueue error")
	}
}

func TestLogNotifier_DeliversSynchronously(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	n := NewLogNotifier(NewNotificationWorker(srv.URL, nil))
	if err := n.Notify(context.Background(), uuid.New(), "deposit_refunded", map[string]any{"amount": 500}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("webhook calls = %d; want 1", got)
	}
}
