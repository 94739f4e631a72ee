package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// WorldCode is the short code that identifies a world
type WorldCode string

// GameState is the authoritative state blob for a world.
// The server never interprets it beyond storing and relaying it.
type GameState json.RawMessage

// MarshalJSON emits the blob as-is, or null when empty
func (g GameState) MarshalJSON() ([]byte, error) {
	if len(g) == 0 {
		return []byte("null"), nil
	}
	return g, nil
}

// UnmarshalJSON stores a copy of the raw blob
func (g *GameState) UnmarshalJSON(data []byte) error {
	if g == nil {
		return fmt.Errorf("model.GameState: UnmarshalJSON on nil pointer")
	}
	*g = append((*g)[0:0], data...)
	return nil
}

// initialGameState is the state every world starts with
type initialGameState struct {
	Seed        uint32 `json:"seed"`
	RandomState uint32 `json:"randomState"`
	InitState   bool   `json:"init_state"`
}

// NewInitialGameState returns the starting state for a freshly created world
func NewInitialGameState(seed, randomState uint32) GameState {
	data, _ := json.Marshal(initialGameState{
		Seed:        seed,
		RandomState: randomState,
		InitState:   true,
	})
	return GameState(data)
}

// World is one shared play session
type World struct {
	Code             WorldCode `json:"code"`
	InvitedUsernames []string  `json:"invited_usernames"`
	GameState        GameState `json:"game_state"`
	CreatedAt        time.Time `json:"created_at,omitzero"`

	// joinQueue holds connections waiting for the next state handoff.
	// Connection IDs don't survive a restart so the queue is never persisted.
	joinQueue []ConnID
}

// NewWorld creates a world with the creator already invited
func NewWorld(code WorldCode, creator string, state GameState, now time.Time) *World {
	return &World{
		Code:             code,
		InvitedUsernames: []string{creator},
		GameState:        state,
		CreatedAt:        now,
	}
}

// IsInvited reports whether the username is on the world's invite list
func (w *World) IsInvited(username string) bool {
	return slices.Contains(w.InvitedUsernames, username)
}

// Invite adds a username to the invite list.
// Returns false if the username was already invited.
func (w *World) Invite(username string) bool {
	if w.IsInvited(username) {
		return false
	}
	w.InvitedUsernames = append(w.InvitedUsernames, username)
	return true
}

// EnqueueJoin appends a pending joiner to the tail of the join queue
func (w *World) EnqueueJoin(id ConnID) {
	w.joinQueue = append(w.joinQueue, id)
}

// PopJoin removes and returns the most recently queued joiner
func (w *World) PopJoin() (ConnID, bool) {
	n := len(w.joinQueue)
	if n == 0 {
		return "", false
	}
	id := w.joinQueue[n-1]
	w.joinQueue = w.joinQueue[:n-1]
	return id, true
}

// PendingJoins returns the number of queued joiners
func (w *World) PendingJoins() int {
	return len(w.joinQueue)
}
