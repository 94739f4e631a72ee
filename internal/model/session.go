package model

import "time"

// ConnID identifies a single client connection
type ConnID string

// MembershipState describes a session's relationship to a world
type MembershipState string

const (
	MembershipUnjoined    MembershipState = "unjoined"
	MembershipPendingJoin MembershipState = "pending_join"
	MembershipJoined      MembershipState = "joined"
)

// Session binds a live connection to an authenticated identity
type Session struct {
	ConnID     ConnID
	Username   string
	LoggedInAt time.Time

	// CurrentWorld is the world the session is a full member of, if any
	CurrentWorld WorldCode
	// PendingWorld is the world the session is waiting to be admitted to, if any
	PendingWorld WorldCode
	// PendingSince is when the session entered PendingWorld
	PendingSince time.Time
}

// State returns the session's membership state
func (s *Session) State() MembershipState {
	switch {
	case s.CurrentWorld != "":
		return MembershipJoined
	case s.PendingWorld != "":
		return MembershipPendingJoin
	default:
		return MembershipUnjoined
	}
}

// InWorld reports whether the session is a full member of the given world
func (s *Session) InWorld(code WorldCode) bool {
	return code != "" && s.CurrentWorld == code
}

// ClearWorld drops any current or pending world assignment
func (s *Session) ClearWorld() {
	s.CurrentWorld = ""
	s.PendingWorld = ""
	s.PendingSince = time.Time{}
}

// Admit makes the session a full member of the given world
func (s *Session) Admit(code WorldCode) {
	s.CurrentWorld = code
	s.PendingWorld = ""
	s.PendingSince = time.Time{}
}

// Await marks the session as waiting for admission to the given world
func (s *Session) Await(code WorldCode, now time.Time) {
	s.CurrentWorld = ""
	s.PendingWorld = code
	s.PendingSince = now
}
