package mocks

import (
	"sync"

	"github.com/mcoot/worldrelay/internal/dependencies/random"
)

// MockRandom is a mock implementation of Random for testing.
// Each method returns queued results in order. Intn and Uint32 then fall back
// to zero; String falls back to a deterministic sequence.
type MockRandom struct {
	mu sync.Mutex

	IntnResults []int
	intnIndex   int

	Uint32Results []uint32
	uint32Index   int

	StringResults   []string
	stringIndex     int
	fallbackStrings int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// Intn returns the next queued result, or 0 if none remaining
func (r *MockRandom) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.intnIndex >= len(r.IntnResults) {
		return 0
	}
	result := r.IntnResults[r.intnIndex]
	r.intnIndex++
	return result
}

// Uint32 returns the next queued result, or 0 if none remaining
func (r *MockRandom) Uint32() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.uint32Index >= len(r.Uint32Results) {
		return 0
	}
	result := r.Uint32Results[r.uint32Index]
	r.uint32Index++
	return result
}

// String returns the next queued result. Once the queue is empty it counts
// up through the alphabet ("AAAAAA", "AAAAAB", ...) so callers drawing until
// they get an unused value always terminate.
func (r *MockRandom) String(length int, alphabet string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stringIndex < len(r.StringResults) {
		result := r.StringResults[r.stringIndex]
		r.stringIndex++
		return result
	}
	if length <= 0 || alphabet == "" {
		return ""
	}
	n := r.fallbackStrings
	r.fallbackStrings++
	out := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		out[i] = alphabet[n%len(alphabet)]
		n /= len(alphabet)
	}
	return string(out)
}

// QueueIntn adds values to the Intn result queue
func (r *MockRandom) QueueIntn(values ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.IntnResults = append(r.IntnResults, values...)
}

// QueueUint32 adds values to the Uint32 result queue
func (r *MockRandom) QueueUint32(values ...uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Uint32Results = append(r.Uint32Results, values...)
}

// QueueString adds values to the String result queue
func (r *MockRandom) QueueString(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StringResults = append(r.StringResults, values...)
}

// Reset clears all queued results
func (r *MockRandom) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.IntnResults, r.intnIndex = nil, 0
	r.Uint32Results, r.uint32Index = nil, 0
	r.StringResults, r.stringIndex = nil, 0
	r.fallbackStrings = 0
}
