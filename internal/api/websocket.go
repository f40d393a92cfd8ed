package api

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"pong-arena/internal/game"
	"pong-arena/internal/metrics"
	"pong-arena/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendQueueSize  = 256
	closeGraceTime = time.Second
)

// HubConfig bounds the connection layer.
type HubConfig struct {
	MaxConnections int
	MaxPerIP       int
	MessagesPerSec float64
	MessageBurst   int
	AllowedOrigins []string
	SendQueueSize  int
	PongWait       time.Duration
	PingPeriod     time.Duration
	WriteWait      time.Duration
}

// DefaultHubConfig returns the default connection limits.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		MaxConnections: 2000,
		MaxPerIP:       10,
		MessagesPerSec: 60,
		MessageBurst:   120,
		SendQueueSize:  sendQueueSize,
		PongWait:       pongWait,
		PingPeriod:     pingPeriod,
		WriteWait:      writeWait,
	}
}

// client is one WebSocket connection. readPump runs in the HTTP handler
// goroutine, writePump in its own goroutine and is the only writer of conn.
type client struct {
	id      string
	ip      string
	conn    *websocket.Conn
	send    chan []byte // closed by Hub.unregister, under Hub.mu
	limiter *rate.Limiter
	done    chan struct{} // closed when writePump returns

	// Routing, guarded by Hub.mu
	gameID    string
	playerID  string
	spectator bool
}

// Hub routes session events to WebSocket connections and client messages to
// sessions. It owns the connection table and the per-game routing table
// behind a single mutex.
type Hub struct {
	manager *game.Manager
	cfg     HubConfig

	upgrader  websocket.Upgrader
	wsLimiter *WebSocketRateLimiter

	mu      sync.RWMutex
	clients map[string]*client
	games   map[string]map[string]*client
	closed  bool
}

// NewHub creates a hub over a session manager. Register it with
// manager.AddEventSink so session events reach the connections.
func NewHub(manager *game.Manager, cfg HubConfig) *Hub {
	def := DefaultHubConfig()
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = (cfg.PongWait * 9) / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.MessagesPerSec <= 0 {
		cfg.MessagesPerSec = def.MessagesPerSec
	}
	if cfg.MessageBurst <= 0 {
		cfg.MessageBurst = int(cfg.MessagesPerSec * 2)
	}

	h := &Hub{
		manager:   manager,
		cfg:       cfg,
		wsLimiter: NewWebSocketRateLimiter(cfg.MaxPerIP),
		clients:   make(map[string]*client),
		games:     make(map[string]map[string]*client),
	}
	check := originChecker(cfg.AllowedOrigins)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if check(r) {
				return true
			}
			log.Printf("⚠️ WebSocket connection rejected from origin: %s", r.Header.Get("Origin"))
			metrics.ConnectionRejected("origin")
			return false
		},
	}
	return h
}

// =============================================================================
// CONNECTION LIFECYCLE
// =============================================================================

// ServeWS upgrades the request and runs the connection until it closes.
// Optional query parameters gameId and username join (or create) a game
// straight away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if h.cfg.MaxConnections > 0 && h.ConnectionCount() >= h.cfg.MaxConnections {
		log.Printf("⚠️ WebSocket connection rejected: total limit reached (%d)", h.cfg.MaxConnections)
		metrics.ConnectionRejected("ws_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}
	if !h.wsLimiter.Allow(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		metrics.ConnectionRejected("ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.wsLimiter.Release(ip)
		return
	}

	c := &client{
		id:      uuid.NewString(),
		ip:      ip,
		conn:    conn,
		send:    make(chan []byte, h.cfg.SendQueueSize),
		limiter: rate.NewLimiter(rate.Limit(h.cfg.MessagesPerSec), h.cfg.MessageBurst),
		done:    make(chan struct{}),
	}
	if !h.register(c) {
		h.wsLimiter.Release(ip)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(closeGraceTime))
		conn.Close()
		return
	}

	go h.writePump(c)

	q := r.URL.Query()
	if username := q.Get("username"); username != "" {
		h.autoJoin(c, q.Get("gameId"), username)
	}

	h.readPump(c)

	// Unregister closes the queue; writePump drains it and exits.
	h.disconnect(c)
	select {
	case <-c.done:
	case <-time.After(h.cfg.WriteWait):
	}
	conn.Close()
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	metrics.SetWSConnections(count)
	log.Printf("🔌 Client %s connected from %s (%d total)", c.id, c.ip, count)
	return true
}

// unregister removes c from both routing tables and closes its queue.
// It returns the player binding c had, if any.
func (h *Hub) unregister(c *client) (gameID, playerID string, ok bool) {
	h.mu.Lock()
	if _, present := h.clients[c.id]; !present {
		h.mu.Unlock()
		return "", "", false
	}
	delete(h.clients, c.id)
	h.unbindLocked(c)
	gameID, playerID = c.gameID, c.playerID
	c.gameID, c.playerID, c.spectator = "", "", false
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.wsLimiter.Release(c.ip)
	metrics.SetWSConnections(count)
	log.Printf("🔌 Client %s disconnected (%d remaining)", c.id, count)
	return gameID, playerID, true
}

// disconnect unregisters c and marks its player disconnected. The session
// then notifies the remaining participants and starts the forfeit clock.
func (h *Hub) disconnect(c *client) {
	gameID, playerID, ok := h.unregister(c)
	if !ok || gameID == "" || playerID == "" {
		return
	}
	if s, found := h.manager.GetSession(gameID); found {
		s.MarkDisconnected(playerID)
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for _, c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.Unlock()

	// Closing the socket makes each readPump return and clean up.
	for _, conn := range conns {
		conn.Close()
	}
}

// ConnectionCount returns the number of open connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(protocol.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️ Client %s read error: %v", c.id, err)
			}
			return
		}
		metrics.WSMessage("in")

		if !c.limiter.Allow() {
			h.sendTo(c, protocol.NewError("", "rate_limited", "Too many messages"))
			continue
		}

		msg, err := protocol.Decode(raw)
		if err != nil {
			code := "malformed"
			if errors.Is(err, protocol.ErrUnknownType) {
				code = "unknown_type"
			}
			h.sendTo(c, protocol.NewError("", code, err.Error()))
			continue
		}
		h.handle(c, msg)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		close(c.done)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				// A failed write is a disconnect; the read side notices the closed socket.
				c.conn.Close()
				return
			}
			metrics.WSMessage("out")

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

// =============================================================================
// ROUTING TABLE
// =============================================================================

// bind attaches c to a game as a player or spectator, replacing any previous
// binding. The previous player binding is returned so the caller can mark it
// disconnected.
func (h *Hub) bind(c *client, gameID, playerID string, spectator bool) (prevGame, prevPlayer string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.id]; !ok {
		return "", ""
	}
	prevGame, prevPlayer = c.gameID, c.playerID
	if prevGame != gameID {
		h.unbindLocked(c)
	}
	c.gameID, c.playerID, c.spectator = gameID, playerID, spectator
	if gameID != "" {
		conns, ok := h.games[gameID]
		if !ok {
			conns = make(map[string]*client)
			h.games[gameID] = conns
		}
		conns[c.id] = c
	}
	if prevGame == gameID && prevPlayer == playerID {
		return "", ""
	}
	return prevGame, prevPlayer
}

func (h *Hub) unbindLocked(c *client) {
	if c.gameID == "" {
		return
	}
	if conns, ok := h.games[c.gameID]; ok {
		delete(conns, c.id)
		if len(conns) == 0 {
			delete(h.games, c.gameID)
		}
	}
}

func (h *Hub) binding(c *client) (gameID, playerID string, spectator bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.gameID, c.playerID, c.spectator
}

// =============================================================================
// OUTBOUND
// =============================================================================

// Publish implements game.EventSink. It runs under the session lock, so it
// only encodes and enqueues.
func (h *Hub) Publish(ev game.Event) {
	h.BroadcastToGame(ev.SessionID, protocol.Outbound{
		Type:   string(ev.Type),
		Data:   ev.Data,
		GameID: ev.SessionID,
	})
}

// BroadcastToGame sends msg to every connection attached to the game: its
// connected human players and its spectators.
func (h *Hub) BroadcastToGame(gameID string, msg protocol.Outbound) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := h.games[gameID]
	if len(conns) == 0 {
		return
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		log.Printf("❌ Encode %s for game %s: %v", msg.Type, gameID, err)
		return
	}
	for _, c := range conns {
		h.enqueueLocked(c, data)
	}
}

// SendToConnection sends msg to one connection. It returns false if the
// connection is unknown.
func (h *Hub) SendToConnection(connID string, msg protocol.Outbound) bool {
	data, err := protocol.Encode(msg)
	if err != nil {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	if !ok {
		return false
	}
	return h.enqueueLocked(c, data)
}

// SendToPlayer sends msg to the connection currently bound to a player.
func (h *Hub) SendToPlayer(gameID, playerID string, msg protocol.Outbound) bool {
	data, err := protocol.Encode(msg)
	if err != nil {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.games[gameID] {
		if c.playerID == playerID {
			return h.enqueueLocked(c, data)
		}
	}
	return false
}

func (h *Hub) sendTo(c *client, msg protocol.Outbound) {
	data, err := protocol.Encode(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.id]; ok {
		h.enqueueLocked(c, data)
	}
}

// enqueueLocked never blocks. A client whose queue is full is too slow to
// keep up; its socket is closed and the read side cleans up.
// Callers hold h.mu, which keeps c.send open.
func (h *Hub) enqueueLocked(c *client, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		metrics.WSMessage("dropped")
		log.Printf("⚠️ Client %s send queue full, disconnecting", c.id)
		c.conn.Close()
		return false
	}
}
