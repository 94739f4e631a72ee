package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mcoot/worldrelay/internal/model"
	"github.com/mcoot/worldrelay/internal/services/coordinator"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// Config holds configuration for websocket connections
type Config struct {
	// WriteWait bounds a single frame write
	WriteWait time.Duration
	// PongWait is how long a connection may stay silent before it is dropped
	PongWait time.Duration
	// PingPeriod must be shorter than PongWait
	PingPeriod time.Duration
	// MaxMessageSize caps inbound frames in bytes
	MaxMessageSize int64
	// SendBuffer is the number of outbound messages queued per connection
	SendBuffer int
}

// DefaultConfig returns default websocket configuration
func DefaultConfig() Config {
	return Config{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 1 << 20,
		SendBuffer:     256,
	}
}

// Dispatcher receives connection lifecycle events and inbound messages
type Dispatcher interface {
	Connect(conn coordinator.Conn) error
	Dispatch(id model.ConnID, msg model.Message) error
	Disconnect(id model.ConnID) error
}

// Server upgrades HTTP requests to websocket connections and pumps
// messages between them and the dispatcher
type Server struct {
	cfg        Config
	dispatcher Dispatcher
	upgrader   websocket.Upgrader
	logger     *slog.Logger

	mu      sync.RWMutex
	clients map[model.ConnID]*Client
	wg      sync.WaitGroup
}

// NewServer creates a websocket Server
func NewServer(dispatcher Dispatcher, cfg Config, logger *slog.Logger) *Server {
	defaults := DefaultConfig()
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaults.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaults.PongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaults.SendBuffer
	}
	return &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: cfg.WriteWait,
			// Browser clients are served from other origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger.With(slog.String("component", "ws")),
		clients: make(map[model.ConnID]*Client),
	}
}

// ServeWS upgrades the request and starts the connection's pumps
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response
		s.logger.Warn("websocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.Any("error", err))
		return
	}

	client := newClient(s, conn)
	s.wg.Add(2)
	s.register(client)

	if err := s.dispatcher.Connect(client); err != nil {
		s.logger.Warn("dispatcher refused connection",
			slog.String("conn_id", string(client.id)),
			slog.Any("error", err))
		s.unregister(client)
		client.close()
		_ = conn.Close()
		s.wg.Add(-2)
		return
	}

	go client.writePump()
	go client.readPump()

	s.logger.Info("websocket connected",
		slog.String("conn_id", string(client.id)),
		slog.String("remote_addr", r.RemoteAddr))
}

func (s *Server) register(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.id] = client
}

// unregister removes the client and reports whether it was still registered
func (s *Server) unregister(client *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client.id]; !ok {
		return false
	}
	delete(s.clients, client.id)
	return true
}

// Count returns the number of open connections
func (s *Server) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close closes every open connection and waits for their pumps to exit
func (s *Server) Close() {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.RUnlock()

	for _, client := range clients {
		client.close()
	}
	s.wg.Wait()
	s.logger.Info("websocket server closed", slog.Int("disconnected_clients", len(clients)))
}

func newID() model.ConnID {
	return model.ConnID(uuid.NewString())
}
