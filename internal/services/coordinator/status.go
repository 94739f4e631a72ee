package coordinator

import (
	"context"
	"time"

	"github.com/mcoot/worldrelay/internal/model"
)

// Status is a point-in-time summary of the relay
type Status struct {
	StartedAt           time.Time     `json:"started_at"`
	Connections         int           `json:"connections"`
	ActiveUsernames     []string      `json:"active_usernames"`
	RegisteredUsernames []string      `json:"registered_usernames"`
	Worlds              []WorldStatus `json:"worlds"`
	SnapshotArmed       bool          `json:"snapshot_armed"`
	LastSaved           time.Time     `json:"last_saved,omitzero"`
	SaveFailures        int           `json:"save_failures"`
}

// WorldStatus summarises one world
type WorldStatus struct {
	Code         model.WorldCode `json:"code"`
	Invited      []string        `json:"invited"`
	Members      []string        `json:"members"`
	PendingJoins int             `json:"pending_joins"`
}

// Status asks the coordinator loop for a summary. Every event submitted
// before the call has been handled by the time it returns.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	if err := c.submit(statusEvent{reply: reply}); err != nil {
		return Status{}, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-c.done:
		return Status{}, model.ErrCoordinatorStopped
	}
}

func (c *Coordinator) status() Status {
	st := Status{
		StartedAt:           c.startedAt,
		Connections:         len(c.conns),
		ActiveUsernames:     c.sessions.Usernames(),
		RegisteredUsernames: c.auth.Usernames(),
		Worlds:              make([]WorldStatus, 0, c.registry.Len()),
		SnapshotArmed:       c.persist.Armed(),
		LastSaved:           c.persist.LastSaved(),
		SaveFailures:        c.persist.Failures(),
	}
	for _, code := range c.registry.Codes() {
		world, err := c.registry.Get(code)
		if err != nil {
			continue
		}
		st.Worlds = append(st.Worlds, WorldStatus{
			Code:         code,
			Invited:      append([]string(nil), world.InvitedUsernames...),
			Members:      c.sessions.MemberUsernames(code, ""),
			PendingJoins: world.PendingJoins(),
		})
	}
	return st
}
