package coordinator

import (
	"log/slog"
	"time"

	"github.com/mcoot/worldrelay/internal/model"
	"github.com/mcoot/worldrelay/internal/storage"
)

// requireSession returns the caller's session, or tells the caller it has none
func (c *Coordinator) requireSession(id model.ConnID) *model.Session {
	session := c.sessions.Get(id)
	if session == nil {
		c.send(id, model.MsgUnrecognizedSession, nil)
	}
	return session
}

// requireJoined returns the caller's session and world, or tells the caller
// it has no session. Not being in a world is reported the same way.
func (c *Coordinator) requireJoined(id model.ConnID) (*model.Session, *model.World) {
	session := c.sessions.Get(id)
	if session == nil || session.CurrentWorld == "" {
		c.send(id, model.MsgUnrecognizedSession, nil)
		return nil, nil
	}
	world, err := c.registry.Get(session.CurrentWorld)
	if err != nil {
		c.logger.Error("session references missing world",
			slog.String("conn_id", string(id)),
			slog.String("world", string(session.CurrentWorld)))
		session.ClearWorld()
		c.send(id, model.MsgUnrecognizedSession, nil)
		return nil, nil
	}
	return session, world
}

func (c *Coordinator) handleGetAvailableWorlds(id model.ConnID) {
	session := c.requireSession(id)
	if session == nil {
		return
	}
	c.send(id, model.MsgWorldCodes, model.WorldCodesPayload{
		Codes: c.registry.CodesVisibleTo(session.Username),
	})
}

func (c *Coordinator) handleJoinNewWorld(id model.ConnID) {
	session := c.requireSession(id)
	if session == nil {
		return
	}

	state := c.registry.NewInitialState()
	var world *model.World
	c.persist.WithGate(func() {
		world = c.registry.Create(session.Username, state)
	})
	c.persist.Schedule(storage.KeyWorlds)

	session.Admit(world.Code)
	c.send(id, model.MsgWelcome, model.WelcomePayload{
		ActiveUsernames: c.sessions.MemberUsernames(world.Code, id),
		State:           world.GameState,
	})
	c.chat(world.Code, session.Username+" joined")
}

// handleJoinWorld clears the caller's world, then either admits it straight
// away or parks it until a current member hands over fresh state.
// Leaving the old world this way does not tell its members.
func (c *Coordinator) handleJoinWorld(id model.ConnID, msg model.Message) {
	session := c.requireSession(id)
	if session == nil {
		return
	}
	session.ClearWorld()

	var payload model.JoinWorldPayload
	if err := msg.Decode(&payload); err != nil {
		c.logger.Debug("ignoring join", slog.String("conn_id", string(id)), slog.Any("error", err))
		return
	}
	world, err := c.registry.GetInvited(payload.Code, session.Username)
	if err != nil {
		c.logger.Debug("ignoring join",
			slog.String("conn_id", string(id)),
			slog.String("world", string(payload.Code)),
			slog.Any("error", err))
		return
	}

	peer := c.sessions.FirstMember(world.Code, id)
	if peer == nil {
		c.admit(session, world)
		return
	}

	session.Await(world.Code, c.clock.Now())
	world.EnqueueJoin(id)
	c.send(peer.ConnID, model.MsgGetState, nil)
	c.armPendingTimeout(session)

	c.logger.Debug("join pending state handoff",
		slog.String("conn_id", string(id)),
		slog.String("world", string(world.Code)),
		slog.String("peer", peer.Username),
		slog.Int("queued", world.PendingJoins()))
}

// admit makes the session a member of the world and announces it
func (c *Coordinator) admit(session *model.Session, world *model.World) {
	session.Admit(world.Code)
	c.send(session.ConnID, model.MsgWelcome, model.WelcomePayload{
		ActiveUsernames: c.sessions.MemberUsernames(world.Code, session.ConnID),
		State:           world.GameState,
	})
	c.toWorldOthers(world.Code, session.ConnID, model.MsgPlayerJoined, model.PlayerPayload{Username: session.Username})
	c.chat(world.Code, session.Username+" joined")

	c.logger.Info("player joined world",
		slog.String("username", session.Username),
		slog.String("world", string(world.Code)))
}

// depart tells the rest of the session's world that it left
func (c *Coordinator) depart(session *model.Session) {
	code := session.CurrentWorld
	c.toWorldOthers(code, session.ConnID, model.MsgPlayerLeft, model.PlayerPayload{Username: session.Username})
	c.chatOthers(code, session.ConnID, session.Username+" left")

	c.logger.Info("player left world",
		slog.String("username", session.Username),
		slog.String("world", string(code)))
}

func (c *Coordinator) handleLeaveWorld(id model.ConnID) {
	session, _ := c.requireJoined(id)
	if session == nil {
		return
	}
	c.depart(session)
	session.ClearWorld()
}

func (c *Coordinator) handleInvite(id model.ConnID, msg model.Message) {
	session, world := c.requireJoined(id)
	if session == nil {
		return
	}

	var payload model.InvitePayload
	if err := msg.Decode(&payload); err != nil {
		c.logger.Debug("ignoring invite", slog.String("conn_id", string(id)), slog.Any("error", err))
		return
	}

	if !c.auth.Exists(payload.Username) {
		c.chat(world.Code, "user does not exist")
		return
	}

	var added bool
	c.persist.WithGate(func() {
		added = world.Invite(payload.Username)
	})
	if added {
		c.persist.Schedule(storage.KeyWorlds)
	}
	c.chat(world.Code, "invited "+payload.Username)
}

func (c *Coordinator) handleChat(id model.ConnID, msg model.Message) {
	session, world := c.requireJoined(id)
	if session == nil {
		return
	}

	var payload model.ChatPayload
	if err := msg.Decode(&payload); err != nil {
		c.logger.Debug("ignoring chat", slog.String("conn_id", string(id)), slog.Any("error", err))
		return
	}
	c.chat(world.Code, session.Username+": "+payload.Text)
}

// handleInput relays the input frame to the whole world exactly as received
func (c *Coordinator) handleInput(id model.ConnID, msg model.Message) {
	session, world := c.requireJoined(id)
	if session == nil {
		return
	}

	var payload model.InputPayload
	if err := msg.Decode(&payload); err != nil {
		c.logger.Debug("ignoring input", slog.String("conn_id", string(id)), slog.Any("error", err))
		return
	}
	c.relay(world.Code, "", model.Message{Type: model.MsgInput, Payload: msg.Payload})
}

// handleGameState replaces the world's state, then admits every queued
// joiner, most recently queued first. An undecodable, empty or null state
// is ignored and leaves queued joiners pending.
func (c *Coordinator) handleGameState(id model.ConnID, msg model.Message) {
	session, world := c.requireJoined(id)
	if session == nil {
		return
	}

	var payload model.GameStatePayload
	if err := msg.Decode(&payload); err != nil || len(payload.State) == 0 || string(payload.State) == "null" {
		c.logger.Debug("ignoring game state", slog.String("conn_id", string(id)), slog.Any("error", err))
		return
	}

	c.persist.WithGate(func() {
		world.GameState = payload.State
	})
	c.persist.Schedule(storage.KeyWorlds)

	c.drain(world)
}

func (c *Coordinator) drain(world *model.World) {
	for {
		id, ok := world.PopJoin()
		if !ok {
			return
		}
		queued := c.sessions.Get(id)
		if queued == nil || queued.PendingWorld != world.Code {
			c.logger.Debug("dropping stale join",
				slog.String("conn_id", string(id)),
				slog.String("world", string(world.Code)))
			continue
		}
		c.admit(queued, world)
	}
}

func (c *Coordinator) armPendingTimeout(session *model.Session) {
	if c.cfg.PendingJoinTimeout <= 0 {
		return
	}
	ev := pendingTimeoutEvent{id: session.ConnID, code: session.PendingWorld, since: session.PendingSince}
	c.clock.AfterFunc(c.cfg.PendingJoinTimeout, func() {
		_ = c.submit(ev)
	})
}

// handlePendingTimeout re-asks for state on behalf of a joiner that has
// waited too long, or admits it if nobody is left to ask
func (c *Coordinator) handlePendingTimeout(e pendingTimeoutEvent) {
	session := c.sessions.Get(e.id)
	if session == nil || session.PendingWorld != e.code || !session.PendingSince.Equal(e.since) {
		return
	}
	world, err := c.registry.Get(e.code)
	if err != nil {
		session.ClearWorld()
		return
	}

	logger := c.logger.With(
		slog.String("conn_id", string(e.id)),
		slog.String("world", string(e.code)),
		slog.Duration("waited", c.clock.Now().Sub(e.since).Round(time.Millisecond)))

	peer := c.sessions.FirstMember(world.Code, e.id)
	if peer == nil {
		logger.Warn("pending join timed out with no members, admitting")
		c.admit(session, world)
		return
	}

	logger.Warn("pending join timed out, asking again", slog.String("peer", peer.Username))
	session.Await(world.Code, c.clock.Now())
	c.send(peer.ConnID, model.MsgGetState, nil)
	c.armPendingTimeout(session)
}
