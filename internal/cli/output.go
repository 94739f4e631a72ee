package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mcoot/worldrelay/internal/model"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to stdout
func NewOutput(format string) *Output {
	return &Output{format: format, w: os.Stdout}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	if _, ok := data.(RelayEvent); !ok {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case HealthResult:
		fmt.Fprintf(o.w, "Status: %s (%s in %dms)\n", v.Status, v.Server, v.LatencyMS)
	case StatusResult:
		o.printStatus(v)
	case WorldResult:
		o.printWorld(v)
	case WorldsResult:
		o.printWorlds(v)
	case CreateResult:
		o.printCreate(v)
	case RelayEvent:
		o.printEvent(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// HealthResult response type
type HealthResult struct {
	Status    string `json:"status"`
	Server    string `json:"server"`
	LatencyMS int64  `json:"latency_ms"`
}

// WorldResult response type (matches API)
type WorldResult struct {
	Code         string   `json:"code"`
	Invited      []string `json:"invited"`
	Members      []string `json:"members"`
	PendingJoins int      `json:"pending_joins"`
}

// StatusResult response type (matches API)
type StatusResult struct {
	StartedAt           time.Time     `json:"started_at"`
	UptimeSeconds       int64         `json:"uptime_seconds"`
	Connections         int           `json:"connections"`
	ActiveUsernames     []string      `json:"active_usernames"`
	RegisteredUsernames []string      `json:"registered_usernames"`
	Worlds              []WorldResult `json:"worlds"`
	SnapshotArmed       bool          `json:"snapshot_armed"`
	LastSaved           *time.Time    `json:"last_saved"`
	SaveFailures        int           `json:"save_failures"`
}

// WorldsResult lists the worlds a user may join
type WorldsResult struct {
	Username string            `json:"username"`
	Codes    []model.WorldCode `json:"codes"`
}

// CreateResult describes a freshly created world
type CreateResult struct {
	Code            model.WorldCode `json:"code"`
	ActiveUsernames []string        `json:"active_usernames"`
	State           model.GameState `json:"state"`
}

// RelayEvent is one inbound message seen during play
type RelayEvent struct {
	Time    time.Time       `json:"time"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (o *Output) printStatus(s StatusResult) {
	fmt.Fprintf(o.w, "Started: %s (up %s)\n", s.StartedAt.Format(time.RFC3339),
		(time.Duration(s.UptimeSeconds) * time.Second).String())
	fmt.Fprintf(o.w, "Connections: %d\n", s.Connections)
	fmt.Fprintf(o.w, "Active (%d): %s\n", len(s.ActiveUsernames), strings.Join(s.ActiveUsernames, ", "))
	fmt.Fprintf(o.w, "Registered: %d\n", len(s.RegisteredUsernames))
	if s.LastSaved != nil {
		fmt.Fprintf(o.w, "Last saved: %s\n", s.LastSaved.Format(time.RFC3339))
	} else {
		fmt.Fprintln(o.w, "Last saved: never")
	}
	if s.SaveFailures > 0 {
		fmt.Fprintf(o.w, "Save failures: %d\n", s.SaveFailures)
	}
	fmt.Fprintf(o.w, "Worlds (%d):\n", len(s.Worlds))
	for _, w := range s.Worlds {
		fmt.Fprintf(o.w, "  - %s: %d playing, %d invited", w.Code, len(w.Members), len(w.Invited))
		if w.PendingJoins > 0 {
			fmt.Fprintf(o.w, ", %d waiting", w.PendingJoins)
		}
		fmt.Fprintln(o.w)
	}
}

func (o *Output) printWorld(w WorldResult) {
	fmt.Fprintf(o.w, "World: %s\n", w.Code)
	fmt.Fprintf(o.w, "Invited: %s\n", strings.Join(w.Invited, ", "))
	fmt.Fprintf(o.w, "Playing: %s\n", strings.Join(w.Members, ", "))
	fmt.Fprintf(o.w, "Waiting to join: %d\n", w.PendingJoins)
}

func (o *Output) printWorlds(w WorldsResult) {
	if len(w.Codes) == 0 {
		fmt.Fprintf(o.w, "%s has no worlds\n", w.Username)
		return
	}
	for _, code := range w.Codes {
		fmt.Fprintln(o.w, code)
	}
}

func (o *Output) printCreate(c CreateResult) {
	fmt.Fprintf(o.w, "World: %s\n", c.Code)
	fmt.Fprintf(o.w, "State: %s\n", string(c.State))
}

func (o *Output) printEvent(e RelayEvent) {
	switch e.Type {
	case model.MsgChat:
		var chat model.ChatPayload
		if json.Unmarshal(e.Payload, &chat) == nil {
			fmt.Fprintf(o.w, "[chat] %s\n", chat.Text)
			return
		}
	case model.MsgPlayerJoined, model.MsgPlayerLeft:
		var p model.PlayerPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			fmt.Fprintf(o.w, "[%s] %s\n", e.Type, p.Username)
			return
		}
	case model.MsgWelcome:
		var w model.WelcomePayload
		if json.Unmarshal(e.Payload, &w) == nil {
			fmt.Fprintf(o.w, "[welcome] playing with: %s\n", strings.Join(w.ActiveUsernames, ", "))
			fmt.Fprintf(o.w, "[welcome] state: %s\n", string(w.State))
			return
		}
	}
	if len(e.Payload) > 0 {
		fmt.Fprintf(o.w, "[%s] %s\n", e.Type, string(e.Payload))
	} else {
		fmt.Fprintf(o.w, "[%s]\n", e.Type)
	}
}
