package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcoot/worldrelay/internal/api"
	"github.com/mcoot/worldrelay/internal/config"
	"github.com/mcoot/worldrelay/internal/factory"
	"github.com/mcoot/worldrelay/internal/web"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("RELAY_CONFIG"), "Path to a YAML config file (env: RELAY_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return err
	}

	// Set up logging from the config
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Create application factory
	app, err := factory.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		return err
	}

	// Load saved tables and start the coordinator
	if err := app.Start(ctx); err != nil {
		logger.Error("failed to start application", slog.String("error", err.Error()))
		return err
	}

	apiRouter := api.NewRouter(api.RouterConfig{
		Logger:    logger,
		Status:    app.Coordinator,
		WebSocket: http.HandlerFunc(app.WebSocket.ServeWS),
	})

	webRouter := web.NewRouter(web.RouterConfig{
		Logger: logger,
		Status: app.Coordinator,
	})

	// Combine routers
	mux := http.NewServeMux()
	mux.Handle("/api/", apiRouter)
	mux.Handle("/ws", apiRouter)
	mux.Handle("/", webRouter)

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadHeaderTimeout = cfg.Server.ReadHeaderTimeout
	serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	server := api.NewServer(mux, serverConfig, logger)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for shutdown or error
	var runErr error
	select {
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("server error", slog.String("error", runErr.Error()))
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		if runErr = server.Shutdown(context.Background()); runErr != nil {
			logger.Error("shutdown error", slog.String("error", runErr.Error()))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error("application shutdown error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("server stopped")
	return runErr
}
