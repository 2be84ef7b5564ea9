package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zde37/chordring/pkg"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Size of the send buffer per client
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client represents a connected WebSocket client.
type client struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	send chan []byte // Buffered channel of outbound messages
}

// WebSocketHub fans ring update events out to WebSocket subscribers.
// It implements chord.RingUpdateBroadcaster.
type WebSocketHub struct {
	// Registered clients
	clients map[*client]bool

	// Encoded events waiting to be fanned out
	broadcast chan []byte

	// Register requests from clients
	register chan *client

	// Unregister requests from clients
	unregister chan *client

	// Shutdown signal
	shutdown chan struct{}
	stopOnce sync.Once

	// WaitGroup for graceful shutdown
	wg sync.WaitGroup

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	logger *pkg.Logger
}

// NewWebSocketHub creates a new WebSocket hub.
func NewWebSocketHub(logger *pkg.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		shutdown:   make(chan struct{}),
		logger:     logger.WithFields(pkg.Fields{"component": "websocket_hub"}),
	}
}

// Start runs the hub loop in the background.
func (h *WebSocketHub) Start() {
	h.wg.Add(1)
	go h.run()
}

func (h *WebSocketHub) run() {
	defer h.wg.Done()

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().Int("total_clients", total).Msg("Client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				h.drop(c)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().Int("total_clients", total).Msg("Client disconnected")

		case message := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					h.logger.Warn().Msg("Client send buffer full, disconnecting slow client")
					h.drop(c)
				}
			}
			h.mu.Unlock()

		case <-h.shutdown:
			h.logger.Info().Msg("Shutting down WebSocket hub")
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return
		}
	}
}

// drop closes the client's queue; its write pump then closes the connection.
// Callers hold h.mu.
func (h *WebSocketHub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
}

// Stop gracefully shuts down the WebSocket hub.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.shutdown)
	})
	h.wg.Wait()
}

// ClientCount returns the number of connected subscribers.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump drains the connection so that pongs and close frames are seen.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn().Err(err).Msg("WebSocket unexpected close")
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
// It is the only writer of the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleWebSocket upgrades the request and subscribes the connection.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade to websocket")
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	select {
	case h.register <- c:
	case <-h.shutdown:
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// BroadcastRingUpdate queues update for every subscriber as one JSON text
// frame. It never blocks; events are dropped when the queue is full.
func (h *WebSocketHub) BroadcastRingUpdate(update any) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn().Msg("Broadcast channel full, dropping message")
	}

	return nil
}
