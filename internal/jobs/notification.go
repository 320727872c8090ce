package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// NotificationArgs is one per-user notification queued for delivery.
type NotificationArgs struct {
	UserID  uuid.UUID      `json:"user_id"`
	Event   string         `json:"kind"`
	Payload map[string]any `json:"payload"`
	SentAt  time.Time      `json:"sent_at"`
}

func (NotificationArgs) Kind() string { return "notification" }

// InsertOpts makes notifications fire-and-forget: a failed delivery is
// discarded rather than retried.
func (NotificationArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 1, Queue: QueueNotifications}
}

const QueueNotifications = "notifications"

// NotificationWorker delivers notifications to the configured webhook, or
// only logs them when no webhook is set.
type NotificationWorker struct {
	river.WorkerDefaults[NotificationArgs]
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewNotificationWorker(webhookURL string, logger *slog.Logger) *NotificationWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationWorker{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (w *NotificationWorker) Work(ctx context.Context, job *river.Job[NotificationArgs]) error {
	return w.deliver(ctx, job.Args)
}

func (w *NotificationWorker) deliver(ctx context.Context, args NotificationArgs) error {
	if w.webhookURL == "" {
		w.logger.Info("notification", "user_id", args.UserID, "kind", args.Event, "payload", args.Payload)
		return nil
	}
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("network error calling notification webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}
	return nil
}
