package middleware

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/worldrelay/internal/middleware"
)

// Recovery creates panic recovery middleware that answers with a plain HTML page
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Recovery(logger, statusPanicHandler)
}

func statusPanicHandler(w http.ResponseWriter, _ *http.Request, _ any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Error</title></head>
<body><h1>Internal Server Error</h1></body>
</html>`))
}
