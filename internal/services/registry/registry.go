package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mcoot/worldrelay/internal/dependencies/clock"
	"github.com/mcoot/worldrelay/internal/dependencies/random"
	"github.com/mcoot/worldrelay/internal/model"
)

const (
	// CodeLength is the length of generated world codes
	CodeLength = 6
	// CodeAlphabet is the characters used in world codes
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Registry maps world codes to worlds.
// Like the identity table it is owned by the coordinator loop and only
// mutated under the persistence gate.
type Registry struct {
	worlds map[model.WorldCode]*model.World
	clock  clock.Clock
	random random.Random
	logger *slog.Logger
}

// New creates an empty Registry
func New(clock clock.Clock, random random.Random, logger *slog.Logger) *Registry {
	return &Registry{
		worlds: make(map[model.WorldCode]*model.World),
		clock:  clock,
		random: random,
		logger: logger.With(slog.String("component", "registry")),
	}
}

// GenerateCode draws codes until one is found that no registered world uses
func (r *Registry) GenerateCode() model.WorldCode {
	for {
		code := model.WorldCode(r.random.String(CodeLength, CodeAlphabet))
		if code == "" {
			continue
		}
		if _, taken := r.worlds[code]; !taken {
			return code
		}
	}
}

// NewInitialState returns a fresh random starting state
func (r *Registry) NewInitialState() model.GameState {
	return model.NewInitialGameState(r.random.Uint32(), r.random.Uint32())
}

// Create registers a new world under a fresh code with the creator invited
func (r *Registry) Create(creator string, state model.GameState) *model.World {
	world := model.NewWorld(r.GenerateCode(), creator, state, r.clock.Now())
	r.worlds[world.Code] = world
	r.logger.Info("world created",
		slog.String("world", string(world.Code)),
		slog.String("creator", creator),
		slog.Int("total_worlds", len(r.worlds)))
	return world
}

// Get returns the world with the given code
func (r *Registry) Get(code model.WorldCode) (*model.World, error) {
	world, ok := r.worlds[code]
	if !ok {
		return nil, model.ErrWorldNotFound
	}
	return world, nil
}

// GetInvited returns the world if the username is invited to it
func (r *Registry) GetInvited(code model.WorldCode, username string) (*model.World, error) {
	world, err := r.Get(code)
	if err != nil {
		return nil, err
	}
	if !world.IsInvited(username) {
		return nil, model.ErrNotInvited
	}
	return world, nil
}

// CodesVisibleTo returns the codes of every world the username is invited to, sorted
func (r *Registry) CodesVisibleTo(username string) []model.WorldCode {
	codes := []model.WorldCode{}
	for code, world := range r.worlds {
		if world.IsInvited(username) {
			codes = append(codes, code)
		}
	}
	sortCodes(codes)
	return codes
}

// Codes returns every registered code, sorted
func (r *Registry) Codes() []model.WorldCode {
	codes := make([]model.WorldCode, 0, len(r.worlds))
	for code := range r.worlds {
		codes = append(codes, code)
	}
	sortCodes(codes)
	return codes
}

// Len returns the number of registered worlds
func (r *Registry) Len() int {
	return len(r.worlds)
}

// MarshalSnapshot encodes every world as a JSON object keyed by code.
// Join queues are not included.
func (r *Registry) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(r.worlds)
}

// UnmarshalSnapshot replaces the registry contents with a saved snapshot.
// Worlds are rebuilt as fresh values with empty join queues.
func (r *Registry) UnmarshalSnapshot(data []byte) error {
	var saved map[model.WorldCode]*model.World
	if err := json.Unmarshal(data, &saved); err != nil {
		return fmt.Errorf("decode worlds: %w", err)
	}

	worlds := make(map[model.WorldCode]*model.World, len(saved))
	for code, world := range saved {
		if world == nil {
			continue
		}
		world.Code = code
		worlds[code] = world
	}
	r.worlds = worlds
	r.logger.Info("worlds loaded", slog.Int("count", len(worlds)))
	return nil
}

func sortCodes(codes []model.WorldCode) {
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
}
