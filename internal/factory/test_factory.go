package factory

import (
	"io"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/worldrelay/internal/dependencies/mocks"
	"github.com/mcoot/worldrelay/internal/services/auth"
	"github.com/mcoot/worldrelay/internal/services/coordinator"
	"github.com/mcoot/worldrelay/internal/storage/memory"
	"github.com/mcoot/worldrelay/internal/transport/ws"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
	Storage    *memory.Storage
}

// NewTestApp creates an App configured for testing with mocked clock and
// random source, in-memory storage and the cheapest bcrypt cost
func NewTestApp() *TestApp {
	return NewTestAppWithOptions(Options{
		Coordinator: coordinator.DefaultConfig(),
		WebSocket:   ws.DefaultConfig(),
	})
}

// NewTestAppWithOptions is NewTestApp with service tuning
func NewTestAppWithOptions(opts Options) *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	app := newWithDependencies(store, mockClock, mockRandom, auth.NewBcryptHasher(bcrypt.MinCost), opts, logger)

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		Storage:    store,
	}
}
