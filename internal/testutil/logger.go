package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
)

// NopLogger returns a logger that discards all output.
// Use this in tests to avoid log noise.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// LogCapture collects JSON log lines written at debug level and above
type LogCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// CaptureLogger returns a logger whose records can be read back with Entries
func CaptureLogger() (*slog.Logger, *LogCapture) {
	capture := &LogCapture{}
	handler := slog.NewJSONHandler(capture, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), capture
}

func (c *LogCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// Entries decodes every record logged so far
func (c *LogCapture) Entries(t testing.TB) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var entries []map[string]any
	dec := json.NewDecoder(bytes.NewReader(c.buf.Bytes()))
	for dec.More() {
		var entry map[string]any
		if err := dec.Decode(&entry); err != nil {
			t.Fatalf("decode log entry: %v", err)
		}
		entries = append(entries, entry)
	}
	return entries
}

// Messages returns the msg field of every record logged so far
func (c *LogCapture) Messages(t testing.TB) []string {
	t.Helper()
	var msgs []string
	for _, entry := range c.Entries(t) {
		msg, _ := entry["msg"].(string)
		msgs = append(msgs, msg)
	}
	return msgs
}
