package coordinator

import (
	"context"
	"log/slog"

	"github.com/mcoot/worldrelay/internal/model"
	"github.com/mcoot/worldrelay/internal/storage"
)

func (c *Coordinator) handleLogin(id model.ConnID, msg model.Message) {
	var payload model.LoginPayload
	if err := msg.Decode(&payload); err != nil || payload.Username == "" {
		c.logger.Warn("rejected login", slog.String("conn_id", string(id)), slog.Any("error", err))
		c.send(id, model.MsgIncorrectPassword, nil)
		return
	}
	c.login(id, payload.Username, payload.Password)
}

// login starts credential work for a login attempt
func (c *Coordinator) login(id model.ConnID, username, password string) {
	if c.sessions.Get(id) != nil {
		c.send(id, model.MsgLoginAlreadyActive, nil)
		return
	}

	hasher := c.auth.Hasher()
	identity, err := c.auth.Lookup(username)
	if err != nil {
		c.goAsync(func(ctx context.Context) event {
			hash, err := hasher.Hash(ctx, password)
			return loginHashedEvent{id: id, username: username, password: password, hash: hash, err: err}
		})
		return
	}

	stored := identity.PasswordHash
	c.goAsync(func(ctx context.Context) event {
		ok, err := hasher.Verify(ctx, password, stored)
		return loginVerifiedEvent{id: id, username: username, ok: ok, err: err}
	})
}

func (c *Coordinator) handleLoginHashed(e loginHashedEvent) {
	logger := c.logger.With(slog.String("conn_id", string(e.id)), slog.String("username", e.username))

	if e.err != nil {
		logger.Error("failed to hash password", slog.Any("error", e.err))
		c.send(e.id, model.MsgIncorrectPassword, nil)
		return
	}

	// Another login created the identity while this one was hashing.
	// Start over so the password is checked against the stored hash.
	if c.auth.Exists(e.username) {
		logger.Debug("identity created concurrently, verifying instead")
		if _, open := c.conns[e.id]; open {
			c.login(e.id, e.username, e.password)
		}
		return
	}

	var addErr error
	c.persist.WithGate(func() {
		addErr = c.auth.Add(&model.Identity{
			Username:     e.username,
			PasswordHash: e.hash,
			CreatedAt:    c.clock.Now(),
		})
	})
	if addErr != nil {
		logger.Error("failed to create identity", slog.Any("error", addErr))
		return
	}
	c.persist.Schedule(storage.KeyLogins)

	c.completeLogin(e.id, e.username)
}

func (c *Coordinator) handleLoginVerified(e loginVerifiedEvent) {
	if e.err != nil {
		c.logger.Error("failed to verify password",
			slog.String("conn_id", string(e.id)),
			slog.String("username", e.username),
			slog.Any("error", e.err))
	}
	if !e.ok {
		c.send(e.id, model.MsgIncorrectPassword, nil)
		return
	}
	c.completeLogin(e.id, e.username)
}

// completeLogin binds a session after credentials have been accepted.
// The connection may have gone or logged in while credentials were checked.
func (c *Coordinator) completeLogin(id model.ConnID, username string) {
	if _, open := c.conns[id]; !open {
		c.logger.Debug("login completed for closed connection",
			slog.String("conn_id", string(id)),
			slog.String("username", username))
		return
	}
	if c.sessions.Get(id) != nil || c.sessions.ByUsername(username) != nil {
		c.send(id, model.MsgLoginAlreadyActive, nil)
		return
	}

	c.sessions.Add(&model.Session{
		ConnID:     id,
		Username:   username,
		LoggedInAt: c.clock.Now(),
	})
	c.send(id, model.MsgLoggedIn, nil)

	c.persist.Schedule(storage.KeyLogins)
	c.persist.Arm()

	c.logger.Info("player logged in",
		slog.String("conn_id", string(id)),
		slog.String("username", username))
	c.logger.Debug("active players", slog.Any("usernames", c.sessions.Usernames()))
}

// logout removes the connection's session, telling its world it left.
// Calling it without a session does nothing.
func (c *Coordinator) logout(id model.ConnID) {
	session := c.sessions.Get(id)
	if session == nil {
		return
	}

	if session.CurrentWorld != "" {
		c.depart(session)
	}
	c.sessions.Remove(id)

	if c.sessions.Len() == 0 {
		c.persist.Disarm()
	}

	c.logger.Info("player logged out",
		slog.String("conn_id", string(id)),
		slog.String("username", session.Username))
	c.logger.Debug("active players", slog.Any("usernames", c.sessions.Usernames()))
}
