package model

import "time"

// Identity is a registered username and its credential hash.
// Identities are created on the first login for an unknown username and never change.
type Identity struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
}
