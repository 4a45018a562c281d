package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibleverse-backend/internal/domain"
	redisrepo "bibleverse-backend/internal/repository/redis"
	apperrors "bibleverse-backend/pkg/errors"
)

type stubLookup struct{}

func (stubLookup) GetCall(_ context.Context, callID string) (*domain.Call, error) {
	if callID != "c1" {
		return nil, apperrors.CallNotFoundError()
	}
	return &domain.Call{ID: callID}, nil
}

// failingBus claims to be up but rejects every publish
type failingBus struct {
	published int
}

func (b *failingBus) Available() bool { return true }

func (b *failingBus) Publish(context.Context, *domain.CallEvent) error {
	b.published++
	return errors.New("connection reset")
}

func (b *failingBus) Subscribe(context.Context, string) *redis.PubSub { return nil }

// flakyBus accepts publishes but never yields a working subscription:
// the first attempt finds Redis down, later ones fail on Receive.
type flakyBus struct {
	client *redis.Client

	mu        sync.Mutex
	attempts  int
	published int
}

func newFlakyBus(t *testing.T) *flakyBus {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	return &flakyBus{client: client}
}

func (b *flakyBus) Available() bool { return true }

func (b *flakyBus) Publish(context.Context, *domain.CallEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published++
	return nil
}

func (b *flakyBus) Subscribe(ctx context.Context, callID string) *redis.PubSub {
	b.mu.Lock()
	b.attempts++
	first := b.attempts == 1
	b.mu.Unlock()

	if first {
		return nil
	}
	return b.client.Subscribe(ctx, redisrepo.CallEventChannel(callID))
}

func (b *flakyBus) counts() (attempts, published int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts, b.published
}

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, hub *CallEventHub, userID string) string {
	t.Helper()
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	})
	router.GET("/v1/calls/:id/events", hub.ServeWS)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, hub *CallEventHub, base, callID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(base+"/v1/calls/"+callID+"/events", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.Subscribers(callID) == 1 }, time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.CallEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var event domain.CallEvent
	require.NoError(t, json.Unmarshal(payload, &event))
	return event
}

func TestCallEventHub_DeliversLocally(t *testing.T) {
	hub := NewCallEventHub(stubLookup{}, nil, HubConfig{}, nil)
	conn := dial(t, hub, serve(t, hub, "alice"), "c1")

	require.NoError(t, hub.Publish(context.Background(), &domain.CallEvent{
		Type:      domain.CallEventSpeakerChanged,
		CallID:    "c1",
		SpeakerID: "bob",
		Message:   "Thank you. Next up is bob.",
	}))

	event := readEvent(t, conn)
	assert.Equal(t, domain.CallEventSpeakerChanged, event.Type)
	assert.Equal(t, "bob", event.SpeakerID)
}

func TestCallEventHub_BusFailureFallsBackToLocal(t *testing.T) {
	bus := &failingBus{}
	hub := NewCallEventHub(stubLookup{}, bus, HubConfig{}, nil)
	conn := dial(t, hub, serve(t, hub, "alice"), "c1")

	require.NoError(t, hub.Publish(context.Background(), &domain.CallEvent{Type: domain.CallEventEnded, CallID: "c1"}))

	assert.Equal(t, domain.CallEventEnded, readEvent(t, conn).Type)
	assert.Equal(t, 1, bus.published)
}

func TestCallEventHub_OtherCallsNotDelivered(t *testing.T) {
	hub := NewCallEventHub(stubLookup{}, nil, HubConfig{}, nil)
	conn := dial(t, hub, serve(t, hub, "alice"), "c1")

	require.NoError(t, hub.Publish(context.Background(), &domain.CallEvent{Type: domain.CallEventEnded, CallID: "c2"}))
	require.NoError(t, hub.Publish(context.Background(), &domain.CallEvent{Type: domain.CallEventHandRaised, CallID: "c1"}))

	assert.Equal(t, domain.CallEventHandRaised, readEvent(t, conn).Type)
}

func TestCallEventHub_UnregistersOnClose(t *testing.T) {
	hub := NewCallEventHub(stubLookup{}, nil, HubConfig{}, nil)
	conn := dial(t, hub, serve(t, hub, "alice"), "c1")

	conn.Close()

	assert.Eventually(t, func() bool { return hub.Subscribers("c1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestCallEventHub_Rejections(t *testing.T) {
	hub := NewCallEventHub(stubLookup{}, nil, HubConfig{}, nil)

	_, resp, err := websocket.DefaultDialer.Dial(serve(t, hub, "alice")+"/v1/calls/missing/events", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(serve(t, hub, "")+"/v1/calls/c1/events", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCallEventHub_CheckOrigin(t *testing.T) {
	hub := NewCallEventHub(stubLookup{}, nil, HubConfig{AllowedOrigins: []string{"https://app.bibleverse.io"}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, hub.upgrader.CheckOrigin(req))

	req.Header.Set("Origin", "https://app.bibleverse.io")
	assert.True(t, hub.upgrader.CheckOrigin(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, hub.upgrader.CheckOrigin(req))
}

func TestCallLookupFunc(t *testing.T) {
	var lookup CallLookup = CallLookupFunc(func(_ context.Context, callID string) (*domain.Call, error) {
		return &domain.Call{ID: callID}, nil
	})

	call, err := lookup.GetCall(context.Background(), "c9")

	require.NoError(t, err)
	assert.Equal(t, "c9", call.ID)
}

func TestCallEventHub_RetriesSubscriptionAndDeliversMeanwhile(t *testing.T) {
	bus := newFlakyBus(t)
	hub := NewCallEventHub(stubLookup{}, bus, HubConfig{
		RetryBackoff:    5 * time.Millisecond,
		MaxRetryBackoff: 20 * time.Millisecond,
	}, nil)
	conn := dial(t, hub, serve(t, hub, "alice"), "c1")

	require.Eventually(t, func() bool {
		attempts, _ := bus.counts()
		return attempts >= 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, hub.subscribed("c1"))

	require.NoError(t, hub.Publish(context.Background(), &domain.CallEvent{
		Type:      domain.CallEventSpeakerChanged,
		CallID:    "c1",
		SpeakerID: "bob",
	}))

	event := readEvent(t, conn)
	assert.Equal(t, domain.CallEventSpeakerChanged, event.Type)
	assert.Equal(t, "bob", event.SpeakerID)
	_, published := bus.counts()
	assert.Equal(t, 1, published)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Subscribers("c1") == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		before, _ := bus.counts()
		time.Sleep(100 * time.Millisecond)
		after, _ := bus.counts()
		return before == after
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCallEventHub_CancelledRelayLeavesLiveFlag(t *testing.T) {
	hub := NewCallEventHub(stubLookup{}, nil, HubConfig{}, nil)

	current, cancelCurrent := context.WithCancel(context.Background())
	defer cancelCurrent()
	stale, cancelStale := context.WithCancel(context.Background())
	cancelStale()

	hub.markLive(current, "c1", true)
	hub.markLive(stale, "c1", false)
	assert.True(t, hub.subscribed("c1"))

	hub.markLive(current, "c1", false)
	assert.False(t, hub.subscribed("c1"))
}
