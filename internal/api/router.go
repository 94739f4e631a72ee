package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mcoot/worldrelay/internal/api/handler"
	"github.com/mcoot/worldrelay/internal/api/middleware"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger        *slog.Logger
	Status        handler.StatusSource
	WebSocket     http.Handler
	StatusTimeout time.Duration
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	statusHandler := handler.NewStatusHandler(cfg.Status, cfg.StatusTimeout)

	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	r.Use(recoveryMiddleware)
	r.Use(loggingMiddleware)

	// Websocket endpoint the game clients connect to
	if cfg.WebSocket != nil {
		r.Handle("/ws", cfg.WebSocket).Methods(http.MethodGet)
	}

	// Registered on the root router so a method mismatch reports 405
	r.HandleFunc("/api/v1/health", statusHandler.Health).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/status", statusHandler.Get).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/worlds/{code}", statusHandler.GetWorld).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(handler.NotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(handler.MethodNotAllowed)

	return r
}
