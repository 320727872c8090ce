package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// InsertNotificationFunc enqueues a notification job. Provided by main as a
// closure over river.Client.Insert.
type InsertNotificationFunc func(ctx context.Context, args NotificationArgs) error

// RiverNotifier hands notifications to the river queue so the caller never
// waits on delivery.
type RiverNotifier struct {
	insert InsertNotificationFunc
	now    func() time.Time
}

func NewRiverNotifier(insert InsertNotificationFunc) *RiverNotifier {
	return &RiverNotifier{insert: insert, now: func() time.Time { return time.Now().UTC() }}
}

func (n *RiverNotifier) Notify(ctx context.Context, userID uuid.UUID, kind string, payload map[string]any) error {
	args := NotificationArgs{UserID: userID, Event: kind, Payload: payload, SentAt: n.now()}
	if err := n.insert(ctx, args); err != nil {
		return fmt.Errorf("enqueue %s notification: %w", kind, err)
	}
	return nil
}

// InsertWith adapts a river client to InsertNotificationFunc.
func InsertWith[TTx any](client *river.Client[TTx]) InsertNotificationFunc {
	return func(ctx context.Context, args NotificationArgs) error {
		_, err := client.Insert(ctx, args, nil)
		return err
	}
}

// LogNotifier delivers synchronously through a NotificationWorker without a
// queue. Used when the ledger runs in memory and no river database exists.
type LogNotifier struct {
	worker *NotificationWorker
}

func NewLogNotifier(worker *NotificationWorker) *LogNotifier {
	return &LogNotifier{worker: worker}
}

func (n *LogNotifier) Notify(ctx context.Context, userID uuid.UUID, kind string, payload map[string]any) error {
	return n.worker.deliver(ctx, NotificationArgs{UserID: userID, Event: kind, Payload: payload, SentAt: time.Now().UTC()})
}
