package response

import (
	"time"

	"github.com/mcoot/worldrelay/internal/services/coordinator"
)

// Health is the response for the health endpoint
type Health struct {
	Status string `json:"status"`
}

// World represents a world in API responses
type World struct {
	Code         string   `json:"code"`
	Invited      []string `json:"invited"`
	Members      []string `json:"members"`
	PendingJoins int      `json:"pending_joins"`
}

// WorldFromCoordinator converts a coordinator.WorldStatus
func WorldFromCoordinator(w coordinator.WorldStatus) World {
	return World{
		Code:         string(w.Code),
		Invited:      nonNil(w.Invited),
		Members:      nonNil(w.Members),
		PendingJoins: w.PendingJoins,
	}
}

// Status represents the relay status page
type Status struct {
	StartedAt           time.Time  `json:"started_at"`
	UptimeSeconds       int64      `json:"uptime_seconds"`
	Connections         int        `json:"connections"`
	ActiveUsernames     []string   `json:"active_usernames"`
	RegisteredUsernames []string   `json:"registered_usernames"`
	Worlds              []World    `json:"worlds"`
	SnapshotArmed       bool       `json:"snapshot_armed"`
	LastSaved           *time.Time `json:"last_saved"`
	SaveFailures        int        `json:"save_failures"`
}

// StatusFromCoordinator converts a coordinator.Status
func StatusFromCoordinator(s coordinator.Status) Status {
	worlds := make([]World, len(s.Worlds))
	for i, w := range s.Worlds {
		worlds[i] = WorldFromCoordinator(w)
	}

	var lastSaved *time.Time
	if !s.LastSaved.IsZero() {
		t := s.LastSaved
		lastSaved = &t
	}

	return Status{
		StartedAt:           s.StartedAt,
		UptimeSeconds:       int64(time.Since(s.StartedAt).Seconds()),
		Connections:         s.Connections,
		ActiveUsernames:     nonNil(s.ActiveUsernames),
		RegisteredUsernames: nonNil(s.RegisteredUsernames),
		Worlds:              worlds,
		SnapshotArmed:       s.SnapshotArmed,
		LastSaved:           lastSaved,
		SaveFailures:        s.SaveFailures,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
