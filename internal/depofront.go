package internal

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/depo-front/internal/auth"
	"github.com/dgellow/depo-front/internal/config"
	"github.com/dgellow/depo-front/internal/cookie"
	"github.com/dgellow/depo-front/internal/crypto"
	"github.com/dgellow/depo-front/internal/idp"
	"github.com/dgellow/depo-front/internal/log"
	"github.com/dgellow/depo-front/internal/metrics"
	"github.com/dgellow/depo-front/internal/server"
	"github.com/dgellow/depo-front/internal/session"
	"github.com/dgellow/depo-front/internal/shell"
	"github.com/dgellow/depo-front/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	cleanupInterval = time.Hour
	csrfTokenTTL    = 2 * time.Hour
	shutdownTimeout = 30 * time.Second
)

// DepoFront is the complete authenticated shell application
type DepoFront struct {
	config     config.Config
	httpServer *server.HTTPServer
	storage    storage.UserStore
	cleanup    *storage.CleanupManager
}

// NewDepoFront creates the application with all dependencies built
func NewDepoFront(ctx context.Context, cfg config.Config) (*DepoFront, error) {
	log.LogInfoWithFields("depofront", "Building application", map[string]any{
		"baseURL":  cfg.App.BaseURL,
		"provider": string(cfg.Provider.Kind),
		"storage":  string(cfg.Storage.Kind),
	})

	// The public configuration is checked before anything starts listening.
	pub, err := shell.NewPublicConfig(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("invalid public configuration: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	provider, err := idp.NewProvider(cfg.Provider, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity provider: %w", err)
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	var cleanup *storage.CleanupManager
	if cfg.Storage.Retention > 0 {
		cleanup = storage.NewCleanupManager(store, cleanupInterval, cfg.Storage.Retention)
	}

	codec, err := session.NewCodec([]byte(cfg.Session.EncryptionKey))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create session codec: %w", err)
	}
	csrf := crypto.NewCSRFProtection([]byte(cfg.Session.CSRFKey), csrfTokenTTL)

	renderer, err := shell.NewRenderer(pub, &csrf)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	factory := auth.NewFactory(auth.Config{
		Provider:      provider,
		Codec:         codec,
		Jar:           cookie.NewJar(cfg.Session.CookieName, cookie.DefaultOptions(cfg.Session.MaxAge)),
		Users:         store,
		Metrics:       m,
		RefreshMargin: cfg.Session.RefreshMargin,
	})

	handler := server.NewRouter(server.NewHandlers(renderer, &csrf, store, m), server.RouterConfig{
		Auth:           factory,
		Metrics:        m,
		Health:         server.NewHealthHandler(cfg.App.Name, provider.Type),
		LoginRateLimit: cfg.LoginRateLimit,
		RequestTimeout: cfg.App.RequestTimeout,
	})

	return &DepoFront{
		config:     cfg,
		httpServer: server.NewHTTPServer(handler, cfg.App.Addr),
		storage:    store,
		cleanup:    cleanup,
	}, nil
}

// Run starts the server and blocks until a shutdown signal or a server
// error
func (d *DepoFront) Run() error {
	log.LogInfoWithFields("depofront", "Starting application", map[string]any{
		"addr": d.config.App.Addr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := d.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if d.cleanup != nil {
		d.cleanup.Start(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("depofront", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields("depofront", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("depofront", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": shutdownTimeout.String(),
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	stopErr := d.httpServer.Stop(shutdownCtx)
	if stopErr != nil {
		log.LogErrorWithFields("depofront", "HTTP server shutdown error", map[string]any{
			"error": stopErr.Error(),
		})
	}

	if d.cleanup != nil {
		d.cleanup.Stop()
	}
	if err := d.storage.Close(); err != nil {
		log.LogWarnWithFields("depofront", "Failed to close storage", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("depofront", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return stopErr
}
