package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/keygrid-core/internal/infrastructure/config"
	"github.com/nerrad567/keygrid-core/internal/infrastructure/logging"
	"github.com/nerrad567/keygrid-core/internal/module"
)

const (
	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	// subscribeAll matches every event type.
	subscribeAll = string(module.EventAll)
)

// Hub tracks WebSocket clients and pushes session events to the ones
// subscribed to them.
type Hub struct {
	cfg     config.SocketConfig
	logger  *logging.Logger
	clients map[*wsClient]struct{}
	mu      sync.RWMutex
}

// wsClient represents a connected WebSocket client.
type wsClient struct {
	hub           *Hub
	server        *Server
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex
}

// wsResponseTimeout is how long a response waits for buffer space before
// the client is dropped as too slow. Events never wait.
var wsResponseTimeout = 5 * time.Second

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// The socket is local and owner-only; there is no browser origin.
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.SocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

func (h *Hub) register(client *wsClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) unregister(client *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// Broadcast pushes ev to every client subscribed to its type. It is
// subscribed to the core event hub and must not block.
func (h *Hub) Broadcast(ev module.Event) {
	// Snapshot client list under hub lock, then release before sending
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	var data []byte
	sent := 0
	for _, client := range clients {
		if !client.isSubscribed(string(ev.Type)) {
			continue
		}
		if data == nil {
			var err error
			data, err = json.Marshal(EventMessage{Type: TypeEvent, Data: ev})
			if err != nil {
				h.logger.Error("failed to marshal event", "type", ev.Type, "error", err)
				return
			}
		}
		client.trySend(data)
		sent++
	}
	if sent > 0 {
		h.logger.Debug("event pushed", "type", ev.Type, "serial", ev.Serial, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades the HTTP connection to a WebSocket connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		hub:           s.hub,
		server:        s,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}

	s.hub.register(client)

	go client.writePump()
	go client.readPump()
}

func (h *Hub) timing() (ping, pong time.Duration) {
	ping = time.Duration(h.cfg.PingInterval) * time.Second
	pong = time.Duration(h.cfg.PongTimeout) * time.Second
	if ping <= 0 {
		ping = 30 * time.Second
	}
	if pong <= 0 {
		pong = 10 * time.Second
	}
	return ping, pong
}

// readPump reads requests from the connection and answers them in order.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.server.maxMessageSize())
	pingInterval, pongWait := c.hub.timing()
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *wsClient) writePump() {
	pingInterval, pongWait := c.hub.timing()
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage answers one request. Malformed messages get a BadRequest
// response; unknown types get nothing.
func (c *wsClient) handleMessage(data []byte) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil || req.Type == "" {
		c.sendJSON(Response{Type: req.Type, ID: req.ID, Result: ResultBadRequest, Message: "invalid request"})
		return
	}
	resp, ok := c.server.dispatch(context.Background(), req, c)
	if !ok {
		c.hub.logger.Debug("ignoring unknown request type", "type", req.Type)
		return
	}
	c.sendJSON(resp)
}

func (c *wsClient) subscribe(types []string) {
	c.mu.Lock()
	for _, t := range types {
		c.subscriptions[t] = struct{}{}
	}
	c.mu.Unlock()
	c.hub.logger.Debug("websocket client subscribed", "events", types)
}

func (c *wsClient) unsubscribe(types []string) {
	c.mu.Lock()
	for _, t := range types {
		delete(c.subscriptions, t)
	}
	c.mu.Unlock()
}

func (c *wsClient) subscribed() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.subscriptions))
	for t := range c.subscriptions {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// trySend attempts to send data to the client's send channel.
// It silently handles closed channels (client disconnected during broadcast)
// and full buffers (slow client).
func (c *wsClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}

func (c *wsClient) isSubscribed(eventType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.subscriptions[subscribeAll]; ok {
		return true
	}
	_, ok := c.subscriptions[eventType]
	return ok
}

func (c *wsClient) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.hub.logger.Error("failed to marshal response", "error", err)
		return
	}
	c.sendResponse(data)
}

// sendResponse queues a response, waiting up to wsResponseTimeout for
// buffer space. A client that stays full is disconnected rather than left
// without an answer.
func (c *wsClient) sendResponse(data []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
	}

	timer := time.NewTimer(wsResponseTimeout)
	defer timer.Stop()
	select {
	case c.send <- data:
		return true
	case <-timer.C:
		c.hub.logger.Warn("websocket client too slow, disconnecting", "buffered", len(c.send))
		c.conn.Close()
		return false
	}
}
