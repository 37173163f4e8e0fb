package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagvorto/internal/constants"
	"tagvorto/internal/models"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb)
}

func TestPublishLeaderboardEnvelope(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	sub := h.rdb.Subscribe(ctx, constants.ChannelLeaderboard)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	entries := []models.LeaderboardEntryView{
		{Rank: 1, UserName: "alice", Score: 5970, Guesses: 1},
	}
	require.NoError(t, h.PublishLeaderboard(ctx, "2024-03-15", entries))

	select {
	case msg := <-sub.Channel():
		var evt Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &evt))
		assert.Equal(t, constants.EventLeaderboardUpdated, evt.Event)
		assert.Equal(t, "2024-03-15", evt.Date)

		var got []models.LeaderboardEntryView
		require.NoError(t, json.Unmarshal(evt.Payload, &got))
		require.Len(t, got, 1)
		assert.Equal(t, "alice", got[0].UserName)
	case <-time.After(2 * time.Second):
		t.Fatal("no leaderboard event received")
	}
}

func TestPublishApplauseEnvelope(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	sub := h.rdb.Subscribe(ctx, constants.ChannelApplause)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, h.PublishApplause(ctx, "2024-03-15", "Alice", "Bob"))

	select {
	case msg := <-sub.Channel():
		var evt Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &evt))
		assert.Equal(t, constants.EventApplauseReceived, evt.Event)

		var payload ApplausePayload
		require.NoError(t, json.Unmarshal(evt.Payload, &payload))
		assert.Equal(t, "Alice", payload.FromUser)
		assert.Equal(t, "Bob", payload.ToUser)
	case <-time.After(2 * time.Second):
		t.Fatal("no applause event received")
	}
}

func TestRunFansOutToDateGroup(t *testing.T) {
	h := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.ServeWS(w, r, r.URL.Query().Get("date"))
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	matching, _, err := websocket.DefaultDialer.Dial(wsURL+"?date=2024-03-15", nil)
	require.NoError(t, err)
	defer matching.Close()
	other, _, err := websocket.DefaultDialer.Dial(wsURL+"?date=2024-03-16", nil)
	require.NoError(t, err)
	defer other.Close()

	require.Eventually(t, func() bool { return h.SubscriberCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	// The Run loop's subscription settles in-process almost immediately;
	// a short grace period keeps the publish from racing it.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, h.PublishApplause(ctx, "2024-03-15", "Alice", "Bob"))

	require.NoError(t, matching.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := matching.ReadMessage()
	require.NoError(t, err)

	var evt Event
	require.NoError(t, json.Unmarshal(data, &evt))
	assert.Equal(t, constants.EventApplauseReceived, evt.Event)
	assert.Equal(t, "2024-03-15", evt.Date)

	// The other date group never sees it.
	require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = other.ReadMessage()
	require.Error(t, err)
}

func TestBroadcastDropsStalledSubscriber(t *testing.T) {
	h := newTestHub(t)
	oldWait := writeWait
	writeWait = 200 * time.Millisecond
	t.Cleanup(func() { writeWait = oldWait })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.ServeWS(w, r, "2024-03-15")
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	stalled, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer stalled.Close()
	healthy, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer healthy.Close()

	require.Eventually(t, func() bool { return h.SubscriberCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	marker := []byte(`{"event":"still-alive"}`)
	got := make(chan struct{}, 1)
	go func() {
		for {
			_, msg, err := healthy.ReadMessage()
			if err != nil {
				return
			}
			if string(msg) == string(marker) {
				select {
				case got <- struct{}{}:
				default:
				}
			}
		}
	}()

	// The stalled peer never reads. Flood until its buffers fill and the
	// write deadline drops it; the healthy reader keeps draining throughout.
	payload := []byte(strings.Repeat("x", 64<<10))
	deadline := time.Now().Add(15 * time.Second)
	for h.SubscriberCount() == 2 && time.Now().Before(deadline) {
		h.broadcastLocal("2024-03-15", payload)
	}
	require.Equal(t, 1, h.SubscriberCount(), "stalled subscriber was never dropped")

	h.broadcastLocal("2024-03-15", marker)
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("healthy subscriber stopped receiving after the stalled peer was dropped")
	}
}

func TestSubscriberCountTracksDisconnects(t *testing.T) {
	h := newTestHub(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.ServeWS(w, r, "2024-03-15")
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.SubscriberCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}
