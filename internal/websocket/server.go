package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yegors/livecap/pkg/logger"
)

// Message is the envelope broadcast to connected clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// client is one connected websocket peer.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Server fans transcript events out to websocket clients. Slow clients
// are disconnected rather than allowed to stall the broadcast path.
type Server struct {
	ctx      context.Context
	cancel   context.CancelFunc
	upgrader websocket.Upgrader
	logger   *logger.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	inbound func(payload []byte)
}

// NewServer creates a websocket fan-out server.
func NewServer(ctx context.Context, log *logger.Logger) *Server {
	sCtx, sCancel := context.WithCancel(ctx)
	return &Server{
		ctx:    sCtx,
		cancel: sCancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from the same origin as the page;
			// the API layer enforces CORS for everything else.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  log.Named("websocket"),
		clients: make(map[*client]struct{}),
	}
}

// OnMessage registers a handler for inbound client messages. Must be
// called before the first client connects.
func (s *Server) OnMessage(fn func(payload []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbound = fn
}

// HandleWS upgrades an HTTP request and registers the client.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade websocket connection", logger.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	count := len(s.clients)
	s.mu.Unlock()
	s.logger.Info("WebSocket client connected", logger.Int("clients", count))

	go s.writePump(c)
	go s.readPump(c)
}

// Broadcast sends a message to every connected client.
func (s *Server) Broadcast(msg *Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("Failed to marshal websocket message",
			logger.String("type", msg.Type),
			logger.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
			// Client is not draining its queue, drop it.
			s.removeLocked(c)
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Stop disconnects all clients.
func (s *Server) Stop() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		s.removeLocked(c)
	}
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(c)
}

func (s *Server) removeLocked(c *client) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	close(c.send)
	c.conn.Close()
}

// readPump consumes client messages: control frames keep the connection
// alive, text frames go to the registered inbound handler.
func (s *Server) readPump(c *client) {
	defer s.remove(c)
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	s.mu.Lock()
	inbound := s.inbound
	s.mu.Unlock()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("WebSocket read error", logger.Error(err))
			}
			return
		}
		if inbound != nil && len(payload) > 0 {
			inbound(payload)
		}
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.remove(c)
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}
