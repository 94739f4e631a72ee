package model

import (
	"encoding/json"
	"fmt"
)

// Inbound message types (client to server)
const (
	MsgLogin              = "login"
	MsgGetAvailableWorlds = "get available worlds"
	MsgJoinNewWorld       = "join new world"
	MsgJoinWorld          = "join world"
	MsgLeaveWorld         = "leave world"
	MsgInvite             = "invite"
	MsgLogout             = "logout"
)

// Outbound message types (server to client)
const (
	MsgNewConnect          = "new connect"
	MsgLoggedIn            = "logged in"
	MsgLoginAlreadyActive  = "login already active"
	MsgIncorrectPassword   = "incorrect password"
	MsgUnrecognizedSession = "unrecognized session"
	MsgWorldCodes          = "world codes"
	MsgWelcome             = "welcome"
	MsgGetState            = "get state"
	MsgPlayerJoined        = "player joined"
	MsgPlayerLeft          = "player left"
)

// Message types used in both directions
const (
	MsgChat      = "chat message"
	MsgInput     = "input"
	MsgGameState = "game state"
)

// Message is the envelope every frame on a connection is wrapped in
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds a message with the payload encoded as JSON.
// A nil payload produces a message with no payload.
func NewMessage(msgType string, payload any) (Message, error) {
	msg := Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %q payload: %w", msgType, err)
	}
	msg.Payload = data
	return msg, nil
}

// Decode unmarshals the payload into v
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: %q has no payload", ErrMalformedPayload, m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrMalformedPayload, m.Type, err)
	}
	return nil
}

// LoginPayload carries login credentials
type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// JoinWorldPayload names the world to join
type JoinWorldPayload struct {
	Code WorldCode `json:"code"`
}

// InvitePayload names the user to invite
type InvitePayload struct {
	Username string `json:"username"`
}

// ChatPayload carries a chat line
type ChatPayload struct {
	Text string `json:"text"`
}

// InputPayload is a player input frame. All fields are relayed without interpretation.
type InputPayload struct {
	TickPlayerID json.RawMessage `json:"tick_player_id"`
	Input        json.RawMessage `json:"input"`
	RandState    json.RawMessage `json:"rand_state,omitempty"`
}

// GameStatePayload carries an authoritative state blob
type GameStatePayload struct {
	State GameState `json:"state"`
}

// WorldCodesPayload lists the worlds a user may join
type WorldCodesPayload struct {
	Codes []WorldCode `json:"codes"`
}

// WelcomePayload is sent to a session when it becomes a member of a world
type WelcomePayload struct {
	ActiveUsernames []string  `json:"active_usernames"`
	State           GameState `json:"state"`
}

// PlayerPayload names a player joining or leaving
type PlayerPayload struct {
	Username string `json:"username"`
}
