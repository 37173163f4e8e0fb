package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"tagvorto/internal/constants"
	"tagvorto/internal/metrics"
	"tagvorto/internal/models"
	"tagvorto/internal/util"
)

// Event is the envelope delivered to websocket subscribers and carried over
// the redis channels between instances.
type Event struct {
	Event   string          `json:"event"`
	Date    string          `json:"date"`
	Payload json.RawMessage `json:"payload"`
}

// ApplausePayload is the body of an ApplauseReceived event.
type ApplausePayload struct {
	FromUser string `json:"fromUser"`
	ToUser   string `json:"toUser"`
}

// writeWait bounds a single websocket write so one stalled peer cannot
// hold up the fanout loop for everyone else.
var writeWait = 5 * time.Second

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans events out to websocket subscribers grouped by date. Publishing
// goes through redis pub/sub, so every instance (including the publisher)
// receives the event on its subscriber loop and forwards it to local
// connections. The hub holds no game state, only live connections.
type Hub struct {
	rdb      *redis.Client
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	groups map[string]map[*client]struct{}
}

func New(rdb *redis.Client) *Hub {
	return &Hub{
		rdb: rdb,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		groups: make(map[string]map[*client]struct{}),
	}
}

// PublishLeaderboard broadcasts the fresh leaderboard for a date.
func (h *Hub) PublishLeaderboard(ctx context.Context, date string, entries []models.LeaderboardEntryView) error {
	return h.publish(ctx, constants.ChannelLeaderboard, constants.EventLeaderboardUpdated, date, entries)
}

// PublishApplause broadcasts an applause notification for a date.
func (h *Hub) PublishApplause(ctx context.Context, date, fromUser, toUser string) error {
	return h.publish(ctx, constants.ChannelApplause, constants.EventApplauseReceived, date,
		ApplausePayload{FromUser: fromUser, ToUser: toUser})
}

func (h *Hub) publish(ctx context.Context, channel, event, date string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	envelope, err := json.Marshal(Event{Event: event, Date: date, Payload: body})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", event, err)
	}
	if err := h.rdb.Publish(ctx, channel, envelope).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// Run consumes the redis channels and forwards every event to the local
// subscribers of its date group. Blocks until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, constants.ChannelLeaderboard, constants.ChannelApplause)
	defer pubsub.Close()

	util.LogInfo("Hub subscribed to broadcast channels")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			util.LogInfo("Hub shutting down")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				util.LogWarn("Dropping malformed broadcast event: %v", err)
				continue
			}
			h.broadcastLocal(evt.Date, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcastLocal(date string, data []byte) {
	h.mu.RLock()
	group := make([]*client, 0, len(h.groups[date]))
	for c := range h.groups[date] {
		group = append(group, c)
	}
	h.mu.RUnlock()

	for _, c := range group {
		if err := c.send(data); err != nil {
			util.LogWarn("Dropping websocket subscriber for %s: %v", date, err)
			h.unregister(date, c)
			_ = c.conn.Close()
		}
	}
}

// ServeWS upgrades an HTTP request to a websocket subscription for one
// date's events. Blocks until the peer disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, date string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket: %w", err)
	}

	c := &client{conn: conn}
	h.register(date, c)
	metrics.WSSubscribers.Inc()
	util.LogInfo("Websocket subscriber joined date group %s", date)

	defer func() {
		h.unregister(date, c)
		metrics.WSSubscribers.Dec()
		_ = conn.Close()
	}()

	// Read loop only detects close; subscribers never send game traffic.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

func (h *Hub) register(date string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.groups[date] == nil {
		h.groups[date] = make(map[*client]struct{})
	}
	h.groups[date][c] = struct{}{}
}

func (h *Hub) unregister(date string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if group, ok := h.groups[date]; ok {
		delete(group, c)
		if len(group) == 0 {
			delete(h.groups, date)
		}
	}
}

// SubscriberCount reports live connections for the health endpoint.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, group := range h.groups {
		n += len(group)
	}
	return n
}
