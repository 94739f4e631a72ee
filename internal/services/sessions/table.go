package sessions

import (
	"fmt"
	"slices"

	"github.com/mcoot/worldrelay/internal/model"
)

// Table maps live connections to their sessions.
// Sessions are kept in login order so member selection is deterministic.
// Not safe for concurrent use; the coordinator loop owns it.
type Table struct {
	byConn map[model.ConnID]*model.Session
	order  []model.ConnID
}

// New creates an empty Table
func New() *Table {
	return &Table{
		byConn: make(map[model.ConnID]*model.Session),
	}
}

// Add stores a session, replacing any session on the same connection
func (t *Table) Add(session *model.Session) {
	if _, ok := t.byConn[session.ConnID]; !ok {
		t.order = append(t.order, session.ConnID)
	}
	t.byConn[session.ConnID] = session
}

// Get returns the session for a connection, or nil
func (t *Table) Get(id model.ConnID) *model.Session {
	return t.byConn[id]
}

// Remove deletes the session for a connection.
// Returns the removed session, or nil if there was none.
func (t *Table) Remove(id model.ConnID) *model.Session {
	session, ok := t.byConn[id]
	if !ok {
		return nil
	}
	delete(t.byConn, id)
	t.order = slices.DeleteFunc(t.order, func(c model.ConnID) bool { return c == id })
	return session
}

// ByUsername returns the session bound to the username, or nil
func (t *Table) ByUsername(username string) *model.Session {
	for _, id := range t.order {
		if s := t.byConn[id]; s.Username == username {
			return s
		}
	}
	return nil
}

// Members returns the sessions joined to the world, in login order
func (t *Table) Members(code model.WorldCode) []*model.Session {
	var members []*model.Session
	for _, id := range t.order {
		if s := t.byConn[id]; s.InWorld(code) {
			members = append(members, s)
		}
	}
	return members
}

// MemberUsernames returns the usernames of the world's members, excluding one connection
func (t *Table) MemberUsernames(code model.WorldCode, except model.ConnID) []string {
	names := []string{}
	for _, s := range t.Members(code) {
		if s.ConnID != except {
			names = append(names, s.Username)
		}
	}
	return names
}

// FirstMember returns the earliest-logged-in member of the world other than except
func (t *Table) FirstMember(code model.WorldCode, except model.ConnID) *model.Session {
	for _, id := range t.order {
		if s := t.byConn[id]; s.ConnID != except && s.InWorld(code) {
			return s
		}
	}
	return nil
}

// Len returns the number of sessions
func (t *Table) Len() int {
	return len(t.byConn)
}

// All returns every session in login order
func (t *Table) All() []*model.Session {
	all := make([]*model.Session, 0, len(t.order))
	for _, id := range t.order {
		all = append(all, t.byConn[id])
	}
	return all
}

// Usernames returns the usernames of all sessions, in login order
func (t *Table) Usernames() []string {
	names := make([]string, 0, len(t.order))
	for _, id := range t.order {
		names = append(names, t.byConn[id].Username)
	}
	return names
}

// WorldLookup resolves a world code
type WorldLookup interface {
	Get(code model.WorldCode) (*model.World, error)
}

// MembershipConsistent checks that every joined or pending session references
// a registered world that has invited its username
func (t *Table) MembershipConsistent(worlds WorldLookup) error {
	for _, id := range t.order {
		s := t.byConn[id]
		for _, code := range []model.WorldCode{s.CurrentWorld, s.PendingWorld} {
			if code == "" {
				continue
			}
			world, err := worlds.Get(code)
			if err != nil {
				return fmt.Errorf("session %s (%s): %w", s.ConnID, s.Username, err)
			}
			if !world.IsInvited(s.Username) {
				return fmt.Errorf("session %s: %s is in world %s without an invite", s.ConnID, s.Username, code)
			}
		}
	}
	return nil
}
