package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcoot/worldrelay/internal/model"
)

// Client is one websocket connection
type Client struct {
	id          model.ConnID
	server      *Server
	conn        *websocket.Conn
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	connectedAt time.Time
	logger      *slog.Logger
}

func newClient(s *Server, conn *websocket.Conn) *Client {
	id := newID()
	return &Client{
		id:          id,
		server:      s,
		conn:        conn,
		send:        make(chan []byte, s.cfg.SendBuffer),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
		logger:      s.logger.With(slog.String("conn_id", string(id))),
	}
}

// ID returns the connection's identifier
func (c *Client) ID() model.ConnID {
	return c.id
}

// Send queues a message for the write pump. A full buffer drops the message.
func (c *Client) Send(msg model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn("message dropped - client buffer full", slog.String("type", msg.Type))
		return ErrSendBufferFull
	}
}

// close stops the write pump, which sends a close frame and closes the socket
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump decodes inbound frames until the connection fails, then
// tells the dispatcher the connection has gone
func (c *Client) readPump() {
	defer func() {
		if c.server.unregister(c) {
			if err := c.server.dispatcher.Disconnect(c.id); err != nil {
				c.logger.Debug("disconnect not delivered", slog.Any("error", err))
			}
		}
		c.close()
		c.server.wg.Done()
		c.logger.Info("websocket disconnected",
			slog.Duration("connection_duration", time.Since(c.connectedAt)))
	}()

	cfg := c.server.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn("websocket read error", slog.Any("error", err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg model.Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			c.logger.Warn("ignoring malformed frame", slog.Any("error", err), slog.Int("bytes", len(data)))
			continue
		}
		if err := c.server.dispatcher.Dispatch(c.id, msg); err != nil {
			c.logger.Warn("message not delivered", slog.String("type", msg.Type), slog.Any("error", err))
			return
		}
	}
}

// writePump writes queued messages and keepalive pings until the client is closed
func (c *Client) writePump() {
	cfg := c.server.cfg
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.server.wg.Done()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("websocket write failed", slog.Any("error", err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.flush(cfg.WriteWait)
			deadline := time.Now().Add(time.Second)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

// flush writes whatever is still queued before the socket closes
func (c *Client) flush(wait time.Duration) {
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}
