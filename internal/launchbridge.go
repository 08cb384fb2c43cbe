package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/launch-bridge/internal/bridge"
	"github.com/dgellow/launch-bridge/internal/config"
	"github.com/dgellow/launch-bridge/internal/cookie"
	"github.com/dgellow/launch-bridge/internal/crypto"
	"github.com/dgellow/launch-bridge/internal/idp"
	"github.com/dgellow/launch-bridge/internal/log"
	"github.com/dgellow/launch-bridge/internal/metrics"
	"github.com/dgellow/launch-bridge/internal/server"
	"github.com/dgellow/launch-bridge/internal/storage"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// LaunchBridge is the complete application: the dashboard API, the per-user
// bridges and the background sweep that evicts idle ones
type LaunchBridge struct {
	config     config.Config
	handler    http.Handler
	httpServer *server.HTTPServer
	registry   *bridge.Registry
	cleanup    *bridge.CleanupManager
	storage    storage.Storage
}

// NewLaunchBridge builds the application with all its dependencies
func NewLaunchBridge(ctx context.Context, cfg config.Config) (*LaunchBridge, error) {
	log.LogInfoWithFields("launchbridge", "Building application", map[string]any{
		"baseURL":     cfg.Server.BaseURL,
		"destination": cfg.Bridge.DestinationURL,
		"issuer":      string(cfg.Issuer.Kind),
		"login":       cfg.Login.Provider,
	})

	store, err := OpenStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	provider, err := idp.NewProvider(ctx, cfg.Login)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create login provider: %w", err)
	}

	issuer, err := idp.NewTokenIssuer(ctx, cfg.Issuer)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}

	keys, err := deriveKeys([]byte(cfg.Server.SessionSecret))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sessionEncryptor, err := crypto.NewEncryptor(keys.cookie)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create session encryptor: %w", err)
	}
	csrf := crypto.NewCSRFProtection(keys.csrf, cfg.Server.SessionTTL)
	jar := cookie.Jar{Secure: cfg.Server.SecureCookies}

	m := metrics.New()
	registry := bridge.NewRegistry(bridge.Config{
		Destination:    cfg.Bridge.DestinationURL,
		Template:       cfg.Bridge.Template,
		AcquireTimeout: cfg.Bridge.AcquireTimeout,
	}, issuer,
		bridge.WithMetrics(m),
		bridge.WithNotificationTTL(cfg.Notifications.TTL),
	)

	handler := server.NewRouter(server.Routes{
		Auth:           server.NewAuthHandlers(provider, store, sessionEncryptor, keys.state, csrf, jar, cfg.Server.SessionTTL),
		Bridge:         server.NewBridgeHandlers(registry, store, m, nil),
		Health:         server.NewHealthHandler(registry.Len),
		Metrics:        m.Handler(),
		Session:        server.NewSessionMiddleware(sessionEncryptor, jar),
		CSRF:           server.NewCSRFMiddleware(csrf),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	return &LaunchBridge{
		config:     cfg,
		handler:    handler,
		httpServer: server.NewHTTPServer(handler, cfg.Server.Addr),
		registry:   registry,
		cleanup:    bridge.NewCleanupManager(registry, cfg.Bridge.IdleTimeout, cfg.Bridge.CleanupInterval),
		storage:    store,
	}, nil
}

// Handler returns the application's HTTP handler
func (a *LaunchBridge) Handler() http.Handler {
	return a.handler
}

// Run serves until ctx is cancelled, SIGINT/SIGTERM arrives or the HTTP server
// fails, then shuts everything down
func (a *LaunchBridge) Run(ctx context.Context) error {
	log.LogInfoWithFields("launchbridge", "Starting application", map[string]any{
		"addr": a.config.Server.Addr,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	a.cleanup.Start(gctx)

	g.Go(func() error {
		<-gctx.Done()

		reason := "context cancelled"
		if cause := context.Cause(gctx); cause != nil && !errors.Is(cause, context.Canceled) {
			reason = cause.Error()
		}
		log.LogInfoWithFields("launchbridge", "Starting graceful shutdown", map[string]any{
			"reason":  reason,
			"timeout": shutdownTimeout.String(),
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.httpServer.Stop(shutdownCtx)
	})

	err := g.Wait()

	a.cleanup.Stop()
	a.registry.Close()
	if closeErr := a.storage.Close(); closeErr != nil {
		log.LogWarnWithFields("launchbridge", "Failed to close storage", map[string]any{
			"error": closeErr.Error(),
		})
	}

	if err != nil {
		log.LogErrorWithFields("launchbridge", "Application stopped with error", map[string]any{
			"error": err.Error(),
		})
		return err
	}
	log.LogInfoWithFields("launchbridge", "Application shutdown complete", nil)
	return nil
}

// OpenStorage creates the user store selected by the configuration
func OpenStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	if cfg.Kind == config.StorageKindFirestore {
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    cfg.GCPProject,
			"database":   cfg.FirestoreDatabase,
			"collection": cfg.FirestoreCollection,
		})
		firestoreStorage, err := storage.NewFirestoreStorage(ctx, cfg.GCPProject, cfg.FirestoreDatabase, cfg.FirestoreCollection)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore storage: %w", err)
		}
		return firestoreStorage, nil
	}

	log.LogInfoWithFields("storage", "Using in-memory storage", nil)
	return storage.NewMemoryStorage(), nil
}

type derivedKeys struct {
	cookie []byte
	state  []byte
	csrf   []byte
}

// deriveKeys splits the session secret into one key per purpose
func deriveKeys(secret []byte) (derivedKeys, error) {
	var keys derivedKeys
	var err error
	if keys.cookie, err = crypto.DeriveKey(secret, crypto.PurposeCookie); err != nil {
		return keys, fmt.Errorf("failed to derive cookie key: %w", err)
	}
	if keys.state, err = crypto.DeriveKey(secret, crypto.PurposeState); err != nil {
		return keys, fmt.Errorf("failed to derive login state key: %w", err)
	}
	if keys.csrf, err = crypto.DeriveKey(secret, crypto.PurposeCSRF); err != nil {
		return keys, fmt.Errorf("failed to derive CSRF key: %w", err)
	}
	return keys, nil
}
