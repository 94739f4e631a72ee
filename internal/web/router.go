package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mcoot/worldrelay/internal/web/handler"
	"github.com/mcoot/worldrelay/internal/web/middleware"
)

// RouterConfig holds configuration for the web router
type RouterConfig struct {
	Logger        *slog.Logger
	Status        handler.StatusSource
	StatusTimeout time.Duration
}

// NewRouter creates a new web router serving the status page
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	statusHandler := handler.NewStatusHandler(cfg.Status, cfg.StatusTimeout, cfg.Logger)

	r.HandleFunc("/status", statusHandler.Page).Methods(http.MethodGet)
	r.Handle("/", http.RedirectHandler("/status", http.StatusFound)).Methods(http.MethodGet)

	return r
}
