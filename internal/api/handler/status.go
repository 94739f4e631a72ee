package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/mcoot/worldrelay/internal/api/response"
	"github.com/mcoot/worldrelay/internal/model"
	"github.com/mcoot/worldrelay/internal/services/coordinator"
)

// StatusSource reports the relay's current state
type StatusSource interface {
	Status(ctx context.Context) (coordinator.Status, error)
}

// StatusHandler handles the read-only status endpoints
type StatusHandler struct {
	source  StatusSource
	timeout time.Duration
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(source StatusSource, timeout time.Duration) *StatusHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &StatusHandler{
		source:  source,
		timeout: timeout,
	}
}

// Health handles GET /api/v1/health
func (h *StatusHandler) Health(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, response.Health{Status: "ok"})
}

// Get handles GET /api/v1/status
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.status(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.StatusFromCoordinator(st))
}

// GetWorld handles GET /api/v1/worlds/{code}
func (h *StatusHandler) GetWorld(w http.ResponseWriter, r *http.Request) {
	code := model.WorldCode(strings.ToUpper(mux.Vars(r)["code"]))
	if code == "" {
		WriteError(w, NewInvalidRequestError("world code is required"))
		return
	}

	st, err := h.status(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	for _, world := range st.Worlds {
		if world.Code == code {
			response.JSON(w, http.StatusOK, response.WorldFromCoordinator(world))
			return
		}
	}
	WriteError(w, model.ErrWorldNotFound)
}

func (h *StatusHandler) status(r *http.Request) (coordinator.Status, error) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	return h.source.Status(ctx)
}
