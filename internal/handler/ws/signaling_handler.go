package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"callhub-backend/internal/domain"
	"callhub-backend/internal/service/call"
	"callhub-backend/internal/service/presence"
	"callhub-backend/pkg/constants"
	"callhub-backend/pkg/logger"
	"callhub-backend/pkg/metrics"
)

// HubConfig tunes the signaling hub
type HubConfig struct {
	MaxConnections int
	SendBuffer     int
	AllowedOrigins []string
	ProfileTimeout time.Duration
}

// SignalingHub owns the live signaling sockets. It feeds decoded client
// events into the call coordinator and implements call.Sender for frames
// going the other way.
type SignalingHub struct {
	coordinator *call.Coordinator
	broadcaster *call.Broadcaster
	profiles    presence.ProfileProvider

	mu      sync.RWMutex
	clients map[domain.ConnID]*SignalingClient
	wg      sync.WaitGroup

	// Concurrency limit: maxConnections is the maximum number of concurrent WebSocket connections
	maxConnections int
	// Semaphore for limiting concurrent connections
	semaphore chan struct{}

	sendBuffer     int
	profileTimeout time.Duration
	upgrader       websocket.Upgrader
}

// SignalingClient is one authenticated signaling socket
type SignalingClient struct {
	hub    *SignalingHub
	id     domain.ConnID
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

// NewSignalingHub creates a new signaling hub. profiles may be nil.
// Attach must be called before the hub serves connections.
func NewSignalingHub(profiles presence.ProfileProvider, cfg HubConfig) *SignalingHub {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = constants.DefaultMaxConnections
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = constants.DefaultSendBuffer
	}
	if cfg.ProfileTimeout <= 0 {
		cfg.ProfileTimeout = constants.ProfileRefreshTimeout
	}

	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}

	return &SignalingHub{
		profiles:       profiles,
		clients:        make(map[domain.ConnID]*SignalingClient),
		maxConnections: cfg.MaxConnections,
		semaphore:      make(chan struct{}, cfg.MaxConnections),
		sendBuffer:     cfg.SendBuffer,
		profileTimeout: cfg.ProfileTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Reject empty origins - require explicit origin for security
					return false
				}
				return allowed["*"] || allowed[origin]
			},
		},
	}
}

// Attach wires the hub to the coordinator that uses it as its Sender
func (h *SignalingHub) Attach(coordinator *call.Coordinator, broadcaster *call.Broadcaster) {
	h.coordinator = coordinator
	h.broadcaster = broadcaster
}

// Send implements call.Sender. It never blocks: a connection whose queue is
// full is closed and the frame dropped.
func (h *SignalingHub) Send(connID domain.ConnID, frame domain.Frame) bool {
	h.mu.RLock()
	client, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		metrics.SignalingClientMessageDroppedTotal.WithLabelValues("unknown_connection").Inc()
		return false
	}

	data, err := json.Marshal(frame)
	if err != nil {
		logger.Error("Failed to marshal signaling frame",
			zap.String("type", frame.FrameType()),
			zap.Error(err))
		metrics.SignalingClientMessageDroppedTotal.WithLabelValues("marshal").Inc()
		return false
	}

	select {
	case <-client.done:
		metrics.SignalingClientMessageDroppedTotal.WithLabelValues("closed").Inc()
		return false
	default:
	}

	select {
	case client.send <- data:
		metrics.SignalingWebSocketMessagesTotal.WithLabelValues("out").Inc()
		return true
	default:
		metrics.SignalingClientMessageDroppedTotal.WithLabelValues("buffer_full").Inc()
		logger.Warn("Signaling client too slow, closing connection",
			zap.String("conn_id", string(connID)),
			zap.String("user_id", client.userID.String()))
		client.close()
		return false
	}
}

// Count returns the number of live sockets
func (h *SignalingHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS handles WebSocket requests for signaling
func (h *SignalingHub) ServeWS(c *gin.Context) {
	// Acquire semaphore to limit concurrent connections
	select {
	case h.semaphore <- struct{}{}:
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server at capacity, please try again later"})
		return
	}
	released := false
	release := func() {
		if !released {
			released = true
			<-h.semaphore
		}
	}

	// Get user ID from context (set by auth middleware)
	userIDVal, exists := c.Get("user_id")
	if !exists {
		release()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		release()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user_id"})
		return
	}

	identity := h.resolveIdentity(c.Request.Context(), userID, c.GetString("username"))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		release()
		logger.Warn("WebSocket upgrade failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	client := &SignalingClient{
		hub:    h,
		id:     domain.ConnID(uuid.NewString()),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, h.sendBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()
	h.wg.Add(2)
	metrics.SignalingWebSocketConnections.Inc()

	logger.Info("Signaling connection opened",
		zap.String("conn_id", string(client.id)),
		zap.String("user_id", userID.String()))

	go client.writePump()

	h.coordinator.Connect(client.id, identity)
	h.broadcaster.SendSnapshot(context.Background(), client.id)

	go func() {
		defer release()
		client.readPump()
	}()
}

// resolveIdentity looks the user's profile up once at connect time, falling
// back to the username the auth layer supplied
func (h *SignalingHub) resolveIdentity(ctx context.Context, userID uuid.UUID, username string) domain.Identity {
	identity := domain.Identity{UserID: userID, DisplayName: username}
	if h.profiles == nil {
		return identity
	}

	ctx, cancel := context.WithTimeout(ctx, h.profileTimeout)
	defer cancel()

	profile, err := h.profiles.GetProfile(ctx, userID)
	if err != nil || profile == nil {
		logger.Debug("Profile lookup at connect failed, using username",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return identity
	}
	if name := profile.Name(); name != "" {
		identity.DisplayName = name
	}
	identity.Avatar = profile.Avatar()
	return identity
}

// remove forgets the client and tears down whatever it held in the coordinator
func (h *SignalingHub) remove(c *SignalingClient) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()
	if !ok {
		return
	}

	c.close()
	h.coordinator.Disconnect(c.id)
	metrics.SignalingWebSocketConnections.Dec()

	logger.Info("Signaling connection closed",
		zap.String("conn_id", string(c.id)),
		zap.String("user_id", c.userID.String()))
}

// Shutdown closes every socket with a going-away frame and waits for the
// pumps to exit or ctx to expire
func (h *SignalingHub) Shutdown(ctx context.Context) error {
	h.mu.RLock()
	clients := make([]*SignalingClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	deadline := time.Now().Add(constants.WebSocketWriteWait)
	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		c.close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *SignalingClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump reads messages from WebSocket
func (c *SignalingClient) readPump() {
	defer func() {
		c.hub.remove(c)
		c.hub.wg.Done()
	}()

	c.conn.SetReadLimit(constants.MaxInboundMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("conn_id", string(c.id)),
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
			return
		}
		metrics.SignalingWebSocketMessagesTotal.WithLabelValues("in").Inc()

		var msg domain.InboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			metrics.SignalingClientMessageDroppedTotal.WithLabelValues("malformed").Inc()
			logger.Warn("Invalid message format from WebSocket",
				zap.String("conn_id", string(c.id)),
				zap.String("user_id", c.userID.String()),
				zap.Error(err))
			continue
		}

		res := c.hub.coordinator.HandleMessage(c.id, &msg)
		if res.Outcome == call.Rejected && res.Err != nil {
			logger.Debug("Signaling message rejected",
				zap.String("conn_id", string(c.id)),
				zap.String("type", msg.Type),
				zap.String("code", string(res.Err.Code)))
		}
	}
}

// writePump writes messages to WebSocket
func (c *SignalingClient) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		c.hub.wg.Done()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
