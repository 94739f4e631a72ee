package coordinator

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mcoot/worldrelay/internal/dependencies/clock"
	"github.com/mcoot/worldrelay/internal/model"
	"github.com/mcoot/worldrelay/internal/services/auth"
	"github.com/mcoot/worldrelay/internal/services/persistence"
	"github.com/mcoot/worldrelay/internal/services/registry"
	"github.com/mcoot/worldrelay/internal/services/sessions"
	"github.com/mcoot/worldrelay/internal/storage"
)

// Conn is one client connection as seen by the coordinator
type Conn interface {
	ID() model.ConnID
	// Send queues a message for delivery. It must not block.
	Send(msg model.Message) error
}

// Config holds configuration for the coordinator
type Config struct {
	// EventBuffer is the capacity of the inbound event queue
	EventBuffer int
	// CredentialTimeout bounds a single hash or verify call
	CredentialTimeout time.Duration
	// PendingJoinTimeout re-asks for state when a pending join has waited this long.
	// Zero leaves pending joins waiting indefinitely.
	PendingJoinTimeout time.Duration
}

// DefaultConfig returns default coordinator configuration
func DefaultConfig() Config {
	return Config{
		EventBuffer:       256,
		CredentialTimeout: 10 * time.Second,
	}
}

// Coordinator applies every inbound event to the session table and world
// registry, one event at a time, on a single goroutine.
//
// Credential hashing runs on other goroutines. Its result comes back as a
// new event, and the handler for that event re-checks the connection,
// session and identity table before changing anything.
type Coordinator struct {
	cfg      Config
	auth     *auth.Service
	registry *registry.Registry
	sessions *sessions.Table
	persist  *persistence.Scheduler
	clock    clock.Clock
	logger   *slog.Logger

	// loop-owned
	conns     map[model.ConnID]Conn
	runCtx    context.Context
	startedAt time.Time

	events chan event
	done   chan struct{}

	// inflight counts off-loop work whose result event the loop has not yet handled
	inflight atomic.Int64
}

// New creates a Coordinator. Run must be called before events are processed.
func New(
	cfg Config,
	authService *auth.Service,
	reg *registry.Registry,
	table *sessions.Table,
	persist *persistence.Scheduler,
	clk clock.Clock,
	logger *slog.Logger,
) *Coordinator {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}
	if cfg.CredentialTimeout <= 0 {
		cfg.CredentialTimeout = DefaultConfig().CredentialTimeout
	}
	return &Coordinator{
		cfg:       cfg,
		auth:      authService,
		registry:  reg,
		sessions:  table,
		persist:   persist,
		clock:     clk,
		logger:    logger.With(slog.String("component", "coordinator")),
		conns:     make(map[model.ConnID]Conn),
		runCtx:    context.Background(),
		startedAt: clk.Now(),
		events:    make(chan event, cfg.EventBuffer),
		done:      make(chan struct{}),
	}
}

// PersistedTables returns the tables the persistence scheduler must save
func PersistedTables(authService *auth.Service, reg *registry.Registry) []persistence.Table {
	return []persistence.Table{
		{
			Key:       storage.KeyLogins,
			Marshal:   authService.MarshalSnapshot,
			Unmarshal: authService.UnmarshalSnapshot,
		},
		{
			Key:       storage.KeyWorlds,
			Marshal:   reg.MarshalSnapshot,
			Unmarshal: reg.UnmarshalSnapshot,
		},
	}
}

// Run processes events until ctx is cancelled
func (c *Coordinator) Run(ctx context.Context) {
	c.runCtx = ctx
	c.logger.Info("coordinator started")
	defer func() {
		close(c.done)
		c.logger.Info("coordinator stopped",
			slog.Int("sessions", c.sessions.Len()),
			slog.Int("connections", len(c.conns)))
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// Connect registers a new connection and greets it
func (c *Coordinator) Connect(conn Conn) error {
	return c.submit(connectEvent{conn: conn})
}

// Dispatch queues an inbound message from a connection
func (c *Coordinator) Dispatch(id model.ConnID, msg model.Message) error {
	return c.submit(messageEvent{id: id, msg: msg})
}

// Disconnect queues the end of a connection
func (c *Coordinator) Disconnect(id model.ConnID) error {
	return c.submit(disconnectEvent{id: id})
}

func (c *Coordinator) submit(ev event) error {
	select {
	case <-c.done:
		return model.ErrCoordinatorStopped
	default:
	}
	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return model.ErrCoordinatorStopped
	}
}

func (c *Coordinator) handle(ev event) {
	switch e := ev.(type) {
	case connectEvent:
		c.handleConnect(e.conn)
	case disconnectEvent:
		c.handleDisconnect(e.id)
	case messageEvent:
		c.handleMessage(e.id, e.msg)
	case loginHashedEvent:
		c.handleLoginHashed(e)
	case loginVerifiedEvent:
		c.handleLoginVerified(e)
	case pendingTimeoutEvent:
		c.handlePendingTimeout(e)
	case asyncResultEvent:
		c.handle(e.ev)
		c.inflight.Add(-1)
	case statusEvent:
		e.reply <- c.status()
	default:
		c.logger.Error("unknown event", slog.Any("event", ev))
	}
}

func (c *Coordinator) handleConnect(conn Conn) {
	c.conns[conn.ID()] = conn
	c.logger.Debug("connection opened",
		slog.String("conn_id", string(conn.ID())),
		slog.Int("connections", len(c.conns)))
	c.send(conn.ID(), model.MsgNewConnect, nil)
}

func (c *Coordinator) handleDisconnect(id model.ConnID) {
	c.logout(id)
	delete(c.conns, id)
	c.logger.Debug("connection closed",
		slog.String("conn_id", string(id)),
		slog.Int("connections", len(c.conns)))
}

func (c *Coordinator) handleMessage(id model.ConnID, msg model.Message) {
	if _, ok := c.conns[id]; !ok {
		c.logger.Warn("message from unknown connection",
			slog.String("conn_id", string(id)),
			slog.String("type", msg.Type))
		return
	}

	switch msg.Type {
	case model.MsgLogin:
		c.handleLogin(id, msg)
	case model.MsgGetAvailableWorlds:
		c.handleGetAvailableWorlds(id)
	case model.MsgJoinNewWorld:
		c.handleJoinNewWorld(id)
	case model.MsgJoinWorld:
		c.handleJoinWorld(id, msg)
	case model.MsgLeaveWorld:
		c.handleLeaveWorld(id)
	case model.MsgInvite:
		c.handleInvite(id, msg)
	case model.MsgChat:
		c.handleChat(id, msg)
	case model.MsgInput:
		c.handleInput(id, msg)
	case model.MsgGameState:
		c.handleGameState(id, msg)
	case model.MsgLogout:
		c.logout(id)
	default:
		c.logger.Warn("unknown message type",
			slog.String("conn_id", string(id)),
			slog.String("type", msg.Type))
	}
}

// goAsync runs fn off the loop with a bounded context and feeds the event it
// returns back into the loop. The work counts as in flight until that event
// has been handled.
func (c *Coordinator) goAsync(fn func(ctx context.Context) event) {
	c.inflight.Add(1)
	parent := c.runCtx
	go func() {
		ctx, cancel := context.WithTimeout(parent, c.cfg.CredentialTimeout)
		defer cancel()
		if err := c.submit(asyncResultEvent{ev: fn(ctx)}); err != nil {
			c.inflight.Add(-1)
		}
	}()
}

// send delivers a message to one connection, if it is still open
func (c *Coordinator) send(id model.ConnID, msgType string, payload any) {
	conn, ok := c.conns[id]
	if !ok {
		return
	}
	msg, err := model.NewMessage(msgType, payload)
	if err != nil {
		c.logger.Error("failed to encode message", slog.String("type", msgType), slog.Any("error", err))
		return
	}
	c.deliver(conn, msg)
}

func (c *Coordinator) deliver(conn Conn, msg model.Message) {
	if err := conn.Send(msg); err != nil {
		c.logger.Warn("failed to send message",
			slog.String("conn_id", string(conn.ID())),
			slog.String("type", msg.Type),
			slog.Any("error", err))
	}
}

// toWorld delivers a message to every member of a world
func (c *Coordinator) toWorld(code model.WorldCode, msgType string, payload any) {
	c.toWorldOthers(code, "", msgType, payload)
}

// toWorldOthers delivers a message to every member of a world except one connection
func (c *Coordinator) toWorldOthers(code model.WorldCode, except model.ConnID, msgType string, payload any) {
	msg, err := model.NewMessage(msgType, payload)
	if err != nil {
		c.logger.Error("failed to encode message", slog.String("type", msgType), slog.Any("error", err))
		return
	}
	c.relay(code, except, msg)
}

func (c *Coordinator) relay(code model.WorldCode, except model.ConnID, msg model.Message) {
	for _, member := range c.sessions.Members(code) {
		if member.ConnID == except {
			continue
		}
		if conn, ok := c.conns[member.ConnID]; ok {
			c.deliver(conn, msg)
		}
	}
}

func (c *Coordinator) chat(code model.WorldCode, text string) {
	c.toWorld(code, model.MsgChat, model.ChatPayload{Text: text})
}

func (c *Coordinator) chatOthers(code model.WorldCode, except model.ConnID, text string) {
	c.toWorldOthers(code, except, model.MsgChat, model.ChatPayload{Text: text})
}
