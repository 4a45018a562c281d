package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bibleverse-backend/internal/domain"
	redisrepo "bibleverse-backend/internal/repository/redis"
	"bibleverse-backend/pkg/constants"
	apperrors "bibleverse-backend/pkg/errors"
	"bibleverse-backend/pkg/logger"
	"bibleverse-backend/pkg/metrics"
	"bibleverse-backend/pkg/response"
)

// CallLookup resolves a call before a subscriber is accepted
type CallLookup interface {
	GetCall(ctx context.Context, callID string) (*domain.Call, error)
}

// CallLookupFunc adapts a function to CallLookup
type CallLookupFunc func(ctx context.Context, callID string) (*domain.Call, error)

// GetCall calls f(ctx, callID)
func (f CallLookupFunc) GetCall(ctx context.Context, callID string) (*domain.Call, error) {
	return f(ctx, callID)
}

// EventBus carries events between instances
type EventBus interface {
	Available() bool
	Publish(ctx context.Context, event *domain.CallEvent) error
	Subscribe(ctx context.Context, callID string) *redis.PubSub
}

// CallEventHub pushes call events to WebSocket subscribers.
// With a bus every instance receives every event through Pub/Sub;
// without one, or while this instance holds no live subscription for
// the call, events are also delivered to local clients directly.
type CallEventHub struct {
	calls CallLookup
	bus   EventBus

	mu                  sync.RWMutex
	clients             map[string]map[*CallEventClient]bool
	subscriptionCancels map[string]context.CancelFunc
	live                map[string]bool

	retryBackoff    time.Duration
	maxRetryBackoff time.Duration

	upgrader       websocket.Upgrader
	maxConnections int
	semaphore      chan struct{}
	metrics        *metrics.Metrics
}

// CallEventClient is one WebSocket subscriber of a call
type CallEventClient struct {
	hub    *CallEventHub
	conn   *websocket.Conn
	send   chan []byte
	userID string
	callID string
}

// HubConfig configures a CallEventHub
type HubConfig struct {
	AllowedOrigins []string
	MaxConnections int
	// RetryBackoff is the first wait before re-subscribing to the bus;
	// it doubles up to MaxRetryBackoff
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

// NewCallEventHub creates a hub. bus may be nil.
func NewCallEventHub(calls CallLookup, bus EventBus, cfg HubConfig, m *metrics.Metrics) *CallEventHub {
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 1000
	}

	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	maxBackoff := cfg.MaxRetryBackoff
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Second
	}
	if maxBackoff < backoff {
		maxBackoff = backoff
	}

	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[o] = true
	}

	return &CallEventHub{
		calls:               calls,
		bus:                 bus,
		clients:             make(map[string]map[*CallEventClient]bool),
		subscriptionCancels: make(map[string]context.CancelFunc),
		live:                make(map[string]bool),
		retryBackoff:        backoff,
		maxRetryBackoff:     maxBackoff,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Native clients send no Origin
					return true
				}
				return origins["*"] || origins[origin]
			},
		},
		maxConnections: maxConns,
		semaphore:      make(chan struct{}, maxConns),
		metrics:        m,
	}
}

// Publish implements the call service's EventPublisher
func (h *CallEventHub) Publish(ctx context.Context, event *domain.CallEvent) error {
	if h.bus != nil && h.bus.Available() {
		err := h.bus.Publish(ctx, event)
		if err == nil {
			if !h.subscribed(event.CallID) {
				// Our relay is not listening yet; local clients would miss it
				h.broadcast(event)
			}
			return nil
		}
		logger.Warn("Event bus publish failed, delivering locally",
			logger.CallID(event.CallID),
			zap.Error(err))
	}
	h.broadcast(event)
	return nil
}

// subscribed reports whether this instance relays the call's channel
func (h *CallEventHub) subscribed(callID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.live[callID]
}

func (h *CallEventHub) markLive(ctx context.Context, callID string, live bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	// A cancelled relay no longer owns the flag; a newer one may
	if ctx.Err() != nil {
		return
	}
	if live {
		h.live[callID] = true
		return
	}
	delete(h.live, callID)
}

func (h *CallEventHub) broadcast(event *domain.CallEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal call event", logger.CallID(event.CallID), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients[event.CallID] {
		select {
		case client.send <- payload:
		default:
			// Slow consumer
			h.removeLocked(client)
		}
	}
	h.metrics.RecordWebSocketMessage(string(event.Type))
}

func (h *CallEventHub) register(client *CallEventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.callID] == nil {
		h.clients[client.callID] = make(map[*CallEventClient]bool)

		if h.bus != nil {
			ctx, cancel := context.WithCancel(context.Background())
			h.subscriptionCancels[client.callID] = cancel
			go h.subscribeToCall(ctx, client.callID)
		}
	}
	h.clients[client.callID][client] = true
	h.metrics.SetWebSocketConnections(h.countLocked())
}

func (h *CallEventHub) unregister(client *CallEventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *CallEventHub) removeLocked(client *CallEventClient) {
	clients, ok := h.clients[client.callID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)

	if len(clients) == 0 {
		if cancel, ok := h.subscriptionCancels[client.callID]; ok {
			cancel()
			delete(h.subscriptionCancels, client.callID)
		}
		delete(h.live, client.callID)
		delete(h.clients, client.callID)
	}
	h.metrics.SetWebSocketConnections(h.countLocked())
}

func (h *CallEventHub) countLocked() int {
	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}

// Subscribers returns the number of local subscribers of a call
func (h *CallEventHub) Subscribers(callID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[callID])
}

// subscribeToCall relays the call's Pub/Sub channel to local clients.
// A failed or dropped subscription is retried with backoff until the
// last local client leaves.
func (h *CallEventHub) subscribeToCall(ctx context.Context, callID string) {
	backoff := h.retryBackoff
	for {
		if h.relay(ctx, callID) {
			backoff = h.retryBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > h.maxRetryBackoff {
			backoff = h.maxRetryBackoff
		}
	}
}

// relay runs one subscription until ctx ends or the channel drops.
// It reports whether the subscription was ever confirmed.
func (h *CallEventHub) relay(ctx context.Context, callID string) bool {
	if !h.bus.Available() {
		return false
	}
	pubsub := h.bus.Subscribe(ctx, callID)
	if pubsub == nil {
		return false
	}
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() == nil {
			logger.Warn("Failed to subscribe to call events, retrying", logger.CallID(callID), zap.Error(err))
		}
		return false
	}

	h.markLive(ctx, callID, true)
	defer h.markLive(ctx, callID, false)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true
		case msg, ok := <-ch:
			if !ok {
				logger.Warn("Call event subscription dropped, retrying", logger.CallID(callID))
				return true
			}
			event, err := redisrepo.DecodeCallEvent(msg.Payload)
			if err != nil {
				logger.Warn("Dropping malformed call event", logger.CallID(callID), zap.Error(err))
				continue
			}
			h.broadcast(event)
		}
	}
}

// ServeWS upgrades GET /v1/calls/:id/events
func (h *CallEventHub) ServeWS(c *gin.Context) {
	select {
	case h.semaphore <- struct{}{}:
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		response.FromError(c, apperrors.ServiceUnavailableError("Server at capacity, please try again later"))
		return
	}

	userID := c.GetString("user_id")
	if userID == "" {
		<-h.semaphore
		response.Unauthorized(c, "Not authenticated")
		return
	}

	callID := c.Param("id")
	if _, err := h.calls.GetCall(c.Request.Context(), callID); err != nil {
		<-h.semaphore
		response.FromError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		<-h.semaphore
		logger.Warn("WebSocket upgrade failed", logger.CallID(callID), logger.UserID(userID), zap.Error(err))
		return
	}

	client := &CallEventClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 64),
		userID: userID,
		callID: callID,
	}
	h.register(client)

	go client.writePump()
	go client.readPump()
}

// readPump only handles control frames; subscribers never send events
func (c *CallEventClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
		<-c.hub.semaphore
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(2 * constants.WebSocketPingInterval))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(2 * constants.WebSocketPingInterval))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket connection closed",
					logger.CallID(c.callID),
					logger.UserID(c.userID),
					zap.Error(err))
			}
			return
		}
	}
}

func (c *CallEventClient) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
