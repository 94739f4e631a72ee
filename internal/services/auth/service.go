package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mcoot/worldrelay/internal/model"
)

// Service owns the identity table and the hasher used to check credentials.
// The table is not synchronized: it is written from the coordinator loop
// under the persistence gate and read by snapshots under the same gate.
type Service struct {
	hasher     Hasher
	identities map[string]*model.Identity
	logger     *slog.Logger
}

// New creates a new auth Service
func New(hasher Hasher, logger *slog.Logger) *Service {
	return &Service{
		hasher:     hasher,
		identities: make(map[string]*model.Identity),
		logger:     logger.With(slog.String("component", "auth")),
	}
}

// Hasher returns the hasher for off-loop credential work
func (s *Service) Hasher() Hasher {
	return s.hasher
}

// Lookup returns the identity for a username
func (s *Service) Lookup(username string) (*model.Identity, error) {
	identity, ok := s.identities[username]
	if !ok {
		return nil, model.ErrIdentityNotFound
	}
	return identity, nil
}

// Exists reports whether an identity exists for the username
func (s *Service) Exists(username string) bool {
	_, ok := s.identities[username]
	return ok
}

// Add registers a new identity. Existing identities are never replaced.
func (s *Service) Add(identity *model.Identity) error {
	if _, ok := s.identities[identity.Username]; ok {
		return model.ErrIdentityExists
	}
	s.identities[identity.Username] = identity
	s.logger.Info("identity created", slog.String("username", identity.Username))
	return nil
}

// Len returns the number of identities
func (s *Service) Len() int {
	return len(s.identities)
}

// Usernames returns every registered username, sorted
func (s *Service) Usernames() []string {
	names := make([]string, 0, len(s.identities))
	for name := range s.identities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarshalSnapshot encodes the identity table as a JSON array ordered by username
func (s *Service) MarshalSnapshot() ([]byte, error) {
	list := make([]*model.Identity, 0, len(s.identities))
	for _, name := range s.Usernames() {
		list = append(list, s.identities[name])
	}
	return json.Marshal(list)
}

// UnmarshalSnapshot replaces the identity table with a previously saved snapshot
func (s *Service) UnmarshalSnapshot(data []byte) error {
	var list []*model.Identity
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("decode logins: %w", err)
	}
	identities := make(map[string]*model.Identity, len(list))
	for _, identity := range list {
		if identity == nil || identity.Username == "" {
			continue
		}
		identities[identity.Username] = identity
	}
	s.identities = identities
	s.logger.Info("identities loaded", slog.Int("count", len(identities)))
	return nil
}
