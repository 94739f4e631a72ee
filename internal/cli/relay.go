package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mcoot/worldrelay/internal/model"
)

// RelayConn is a websocket connection speaking the relay protocol
type RelayConn struct {
	conn    *websocket.Conn
	inbound chan model.Message
	readErr error

	writeMu sync.Mutex
}

// WebsocketURL converts an http(s) server URL into the relay's websocket endpoint
func WebsocketURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(serverURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// DialRelay connects to the relay and waits for its greeting
func DialRelay(ctx context.Context, serverURL string) (*RelayConn, error) {
	wsURL, err := WebsocketURL(serverURL)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", wsURL, err)
	}

	rc := &RelayConn{
		conn:    conn,
		inbound: make(chan model.Message, 64),
	}
	go rc.readLoop()

	if _, err := rc.Expect(ctx, model.MsgNewConnect); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return rc, nil
}

func (rc *RelayConn) readLoop() {
	defer close(rc.inbound)
	for {
		var msg model.Message
		if err := rc.conn.ReadJSON(&msg); err != nil {
			rc.readErr = err
			return
		}
		rc.inbound <- msg
	}
}

// Messages returns the inbound message stream. It is closed when the connection ends.
func (rc *RelayConn) Messages() <-chan model.Message {
	return rc.inbound
}

// Err returns the error that ended the connection, once Messages is closed
func (rc *RelayConn) Err() error {
	return rc.readErr
}

// Send writes one message
func (rc *RelayConn) Send(msgType string, payload any) error {
	msg, err := model.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	rc.writeMu.Lock()
	defer rc.writeMu.Unlock()
	return rc.conn.WriteJSON(msg)
}

// Next returns the next inbound message
func (rc *RelayConn) Next(ctx context.Context) (model.Message, error) {
	select {
	case msg, ok := <-rc.inbound:
		if !ok {
			if rc.readErr != nil {
				return model.Message{}, fmt.Errorf("connection closed: %w", rc.readErr)
			}
			return model.Message{}, errors.New("connection closed")
		}
		return msg, nil
	case <-ctx.Done():
		return model.Message{}, ctx.Err()
	}
}

// Expect skips messages until one of the given types arrives
func (rc *RelayConn) Expect(ctx context.Context, types ...string) (model.Message, error) {
	for {
		msg, err := rc.Next(ctx)
		if err != nil {
			return model.Message{}, fmt.Errorf("waiting for %s: %w", strings.Join(types, "/"), err)
		}
		for _, t := range types {
			if msg.Type == t {
				return msg, nil
			}
		}
	}
}

// Login authenticates the connection, creating the identity if it is new
func (rc *RelayConn) Login(ctx context.Context, username, password string) error {
	if username == "" {
		return errors.New("username is required (--user or RELAY_USER)")
	}
	if err := rc.Send(model.MsgLogin, model.LoginPayload{Username: username, Password: password}); err != nil {
		return err
	}

	msg, err := rc.Expect(ctx, model.MsgLoggedIn, model.MsgIncorrectPassword, model.MsgLoginAlreadyActive)
	if err != nil {
		return err
	}
	switch msg.Type {
	case model.MsgIncorrectPassword:
		return model.ErrIncorrectPassword
	case model.MsgLoginAlreadyActive:
		return model.ErrAlreadyActive
	default:
		return nil
	}
}

// WorldCodes lists the worlds the logged-in user is invited to
func (rc *RelayConn) WorldCodes(ctx context.Context) ([]model.WorldCode, error) {
	if err := rc.Send(model.MsgGetAvailableWorlds, nil); err != nil {
		return nil, err
	}
	msg, err := rc.Expect(ctx, model.MsgWorldCodes, model.MsgUnrecognizedSession)
	if err != nil {
		return nil, err
	}
	if msg.Type == model.MsgUnrecognizedSession {
		return nil, model.ErrUnrecognizedSession
	}
	var payload model.WorldCodesPayload
	if err := msg.Decode(&payload); err != nil {
		return nil, err
	}
	return payload.Codes, nil
}

// Close logs out and closes the connection
func (rc *RelayConn) Close() error {
	_ = rc.Send(model.MsgLogout, nil)
	rc.writeMu.Lock()
	_ = rc.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	rc.writeMu.Unlock()
	return rc.conn.Close()
}

// openSession dials the relay and logs in with the configured credentials
func openSession(ctx context.Context) (*RelayConn, error) {
	rc, err := DialRelay(ctx, cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	if err := rc.Login(ctx, cfg.Username, cfg.Password); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return rc, nil
}
