package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/estatehub/backend/internal/models"
)

const (
	subscriberBuffer = 64
	pingInterval     = 30 * time.Second
	pongWait         = 60 * time.Second
	writeWait        = 10 * time.Second
)

// Hub fans auction events out to live subscribers. Delivery is at most once:
// a subscriber whose buffer is full misses the event.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	topics map[string]map[int]chan models.AuctionEvent
	nextID int
}

// NewHub builds a hub. An empty allowedOrigins accepts any websocket origin.
func NewHub(logger *slog.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowedOrigins) == 0 || origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
		topics: make(map[string]map[int]chan models.AuctionEvent),
	}
}

// Publish never blocks on a slow subscriber.
func (h *Hub) Publish(topic string, event models.AuctionEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.topics[topic] {
		select {
		case ch <- event:
		default:
			h.logger.Warn("dropping event for slow subscriber", "topic", topic, "subscriber", id, "type", event.Type)
		}
	}
}

// Subscribe registers a buffered channel on topic. The returned cancel func
// removes and closes it.
func (h *Hub) Subscribe(topic string) (<-chan models.AuctionEvent, func()) {
	ch := make(chan models.AuctionEvent, subscriberBuffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[int]chan models.AuctionEvent)
		h.topics[topic] = subs
	}
	subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(subs, id)
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
			close(ch)
		})
	}
}

// Subscribers reports the live subscriber count of topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// ServeWS handles GET /v1/ws?auction_id=... and streams that auction's events
// as JSON text frames until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	auctionID, err := uuid.Parse(r.URL.Query().Get("auction_id"))
	if err != nil {
		http.Error(w, `{"error":"auction_id must be a uuid","code":"INVALID_AUCTION_ID"}`, http.StatusBadRequest)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := h.Subscribe(models.AuctionTopic(auctionID))
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// The read side only watches for close; clients send nothing meaningful.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("marshal event", "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
