package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mcoot/worldrelay/internal/services/coordinator"
	"github.com/mcoot/worldrelay/internal/web/templates/pages"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// StatusSource reports the relay's current state
type StatusSource interface {
	Status(ctx context.Context) (coordinator.Status, error)
}

// StatusHandler renders the human-readable status page
type StatusHandler struct {
	source  StatusSource
	timeout time.Duration
	logger  *slog.Logger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(source StatusSource, timeout time.Duration, logger *slog.Logger) *StatusHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &StatusHandler{
		source:  source,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "web")),
	}
}

// Page handles GET /status
func (h *StatusHandler) Page(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	st, err := h.source.Status(ctx)
	if err != nil {
		h.logger.Warn("status unavailable", slog.String("error", err.Error()))
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.Status(pageData(st)).Render(r.Context(), w); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// pageData converts a coordinator summary into what the status page shows
func pageData(st coordinator.Status) pages.StatusData {
	data := pages.StatusData{
		StartedAt:         "Server started at " + st.StartedAt.Format(timeLayout),
		ActivePlayers:     st.ActiveUsernames,
		RegisteredPlayers: st.RegisteredUsernames,
		Worlds:            make([]pages.WorldRow, 0, len(st.Worlds)),
		LastSaved:         "Storage not written yet",
	}
	if !st.LastSaved.IsZero() {
		data.LastSaved = "Storage written at " + st.LastSaved.Format(timeLayout)
	}
	for _, world := range st.Worlds {
		data.Worlds = append(data.Worlds, pages.WorldRow{
			Code:    string(world.Code),
			Invited: strings.Join(world.Invited, ", "),
			Members: strconv.Itoa(len(world.Members)),
		})
	}
	return data
}
