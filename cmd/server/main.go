package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shsh-labs/chatgw/internal/config"
	"github.com/shsh-labs/chatgw/internal/credstore"
	"github.com/shsh-labs/chatgw/internal/httpapi"
	"github.com/shsh-labs/chatgw/internal/pairing"
	"github.com/shsh-labs/chatgw/internal/registry"
	"github.com/shsh-labs/chatgw/internal/sessionmgr"
	"github.com/shsh-labs/chatgw/internal/upstream"
	"github.com/shsh-labs/chatgw/internal/webhook"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	creds, err := credstore.New(cfg.Session.SessionDir)
	if err != nil {
		slog.Error("Failed to initialize credential store", "error", err)
		os.Exit(1)
	}
	slog.Info("Credential store ready", "dir", cfg.Session.SessionDir)

	adapter := upstream.NewWSAdapter(cfg.BridgeURL, cfg.Session.ConnectTimeout)

	webhookRegistry := webhook.NewRegistry()
	dispatcher := webhook.NewDispatcher(webhookRegistry)
	dispatcher.Run()
	defer dispatcher.Close()

	// The Pairing Service needs a pairing.Regenerator that restarts sessions
	// through the Session Registry, but the Registry is built later (its
	// factory needs the Server's broker, which needs the Pairing Service);
	// break the cycle with a forwarding closure over sessionRegistry.
	var sessionRegistry *registry.Registry
	pairingSvc := pairing.New(regeneratorFunc(func(ctx context.Context, tenantID string) error {
		_, err := sessionRegistry.Restart(ctx, tenantID)
		return err
	}))
	pairingSvc.Run()
	defer pairingSvc.Close()

	server := httpapi.New(cfg, nil, pairingSvc, webhookRegistry, dispatcher)

	factory := func(tenantID string) registry.Manager {
		return sessionmgr.New(sessionmgr.Config{
			TenantID:      tenantID,
			Adapter:       adapter,
			Credentials:   creds,
			Sink:          server.Broker(),
			MaxReconnects: cfg.Session.MaxReconnectAttempts,
		})
	}
	sessionRegistry = registry.New(factory)
	sessionRegistry.Run()
	defer sessionRegistry.ShutdownAll(context.Background())

	server.SetRegistry(sessionRegistry)
	slog.Info("Session registry, pairing service, and webhook dispatcher initialized")

	// Setup router.
	r := server.Router()

	// Server.
	srv := &http.Server{
		Addr:         cfg.Host + ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// regeneratorFunc adapts a plain function to pairing.Regenerator.
type regeneratorFunc func(ctx context.Context, tenantID string) error

func (f regeneratorFunc) Regenerate(ctx context.Context, tenantID string) error {
	return f(ctx, tenantID)
}
