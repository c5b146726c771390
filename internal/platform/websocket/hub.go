// Package websocket upgrades HTTP requests to WebSocket connections and fans
// live frames out to watchers. Clients subscribe to topics; every payload
// published on a topic is copied to each subscriber's send buffer.
package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	TextMessage = gorillawebsocket.TextMessage

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one watcher connection.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
	conn   Conn
}

// NewClient creates a client with a buffered send channel.
func NewClient(conn Conn, topics ...string) *Client {
	return &Client{
		ID:     uuid.New().String(),
		Topics: topics,
		Send:   make(chan []byte, sendBuffer),
		conn:   conn,
	}
}

// Hub tracks clients and their topic subscriptions. All operations are
// safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> set of clients
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger.With().Str("component", "ws_hub").Logger(),
	}
}

// Register adds a client to the hub and subscribes it to its topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
	}
}

// Unregister removes a client from every topic and closes its Send channel.
// Calling it twice is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		if subscribers, ok := h.clients[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, topic)
			}
		}
	}
	delete(h.all, client)
	close(client.Send)
}

// Broadcast copies data to every subscriber of topic. A subscriber whose
// buffer is full misses the frame; the caller never blocks.
func (h *Hub) Broadcast(topic string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
		default:
			h.logger.Debug().Str("client", client.ID).Str("topic", topic).Msg("watcher buffer full, frame dropped")
		}
	}
}

// Upgrader performs the HTTP to WebSocket handshake. An empty origin list
// accepts any origin.
type Upgrader struct {
	upgrader gorillawebsocket.Upgrader
}

func NewUpgrader(allowedOrigins []string) *Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Upgrader{upgrader: gorillawebsocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(allowed) == 0 || origin == "" || allowed["*"] || allowed[origin]
		},
	}}
}

// Upgrade switches the request to the WebSocket protocol.
func (u *Upgrader) Upgrade(c echo.Context) (Conn, error) {
	ws, err := u.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil, err
	}
	return &gorillaConn{ws}, nil
}

// Serve upgrades the request and registers a read-only watcher on topics.
// It returns once the handshake is done; pumps run until the peer goes away.
func (h *Hub) Serve(u *Upgrader, c echo.Context, topics ...string) error {
	ws, err := u.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	client := NewClient(&gorillaConn{ws}, topics...)
	h.Register(client)
	h.logger.Info().Str("client", client.ID).Strs("topics", topics).Msg("watcher connected")

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

// readPump discards inbound frames and unregisters the client once the
// connection fails or the peer stops answering pings.
func (h *Hub) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.Unregister(client)
		ws.Close()
		h.logger.Info().Str("client", client.ID).Msg("watcher disconnected")
	}()

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// gorillaConn wraps a gorilla/websocket.Conn to satisfy Conn. Writes carry a
// deadline so a stalled peer cannot wedge the sender.
type gorillaConn struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConn) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConn) WriteMessage(messageType int, data []byte) error {
	a.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConn) Close() error {
	return a.conn.Close()
}
