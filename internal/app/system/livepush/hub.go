// internal/app/system/livepush/hub.go
package livepush

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dalemusser/stratacomm/internal/app/system/metrics"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendQueue  = 32
)

type conn struct {
	userID string
	ws     *websocket.Conn
	send   chan []byte
	once   sync.Once
}

func (c *conn) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub keeps the websocket sessions of users connected to this instance,
// indexed by user id. A user may hold several sessions (tabs, devices).
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	byUser map[string]map[*conn]struct{}
}

// NewHub creates a hub. allowedOrigins limits browser origins that may
// connect; an empty list allows same-host requests only.
func NewHub(logger *zap.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		log:    logger,
		byUser: make(map[string]map[*conn]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]struct{}, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed[o] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := allowed["*"]; ok {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	}
	return h
}

// Notify queues ev on every session of userID. It does not wait for the
// frame to be written.
func (h *Hub) Notify(ctx context.Context, userID string, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := ev.encode()
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := h.byUser[userID]
	if len(conns) == 0 {
		return ErrNotConnected
	}
	queued := 0
	for c := range conns {
		select {
		case c.send <- data:
			queued++
		default:
			h.log.Debug("dropping push for slow websocket", zap.String("user_id", userID))
		}
	}
	if queued == 0 {
		return ErrSlowConsumer
	}
	return nil
}

// Connections returns the number of live sessions for userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}

// Serve upgrades the request and registers the session for userID. It blocks
// until the client disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err), zap.String("user_id", userID))
		return
	}

	c := &conn{userID: userID, ws: ws, send: make(chan []byte, sendQueue)}
	h.add(c)
	defer h.remove(c)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) add(c *conn) {
	h.mu.Lock()
	set := h.byUser[c.userID]
	if set == nil {
		set = make(map[*conn]struct{})
		h.byUser[c.userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	metrics.WebSocketConnections.Inc()
	h.log.Debug("websocket connected", zap.String("user_id", c.userID))
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	if set := h.byUser[c.userID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, c.userID)
		}
	}
	// close under the write lock so Notify never sends on a closed channel
	c.close()
	h.mu.Unlock()

	metrics.WebSocketConnections.Dec()
	h.log.Debug("websocket disconnected", zap.String("user_id", c.userID))
}

// readPump drains client frames (the protocol is push-only) and keeps the
// read deadline alive through pongs.
func (h *Hub) readPump(c *conn) {
	c.ws.SetReadLimit(512)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every session.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, set := range h.byUser {
		for c := range set {
			c.close()
		}
		delete(h.byUser, userID)
	}
}
