// Command droppyd is the local entitlement daemon. It owns the license and
// trial state for the desktop application; the UI talks to it over a
// loopback HTTP API and a websocket for access-change events.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"droppy/internal/config"
	"droppy/internal/entitlement"
	"droppy/internal/infrastructure"
	"droppy/internal/licenseapi"
	"droppy/internal/security"
	"droppy/internal/services"
	"droppy/internal/store"
	transport "droppy/internal/transport/http"
	"droppy/internal/trialapi"
	"droppy/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "droppyd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	otelProviders, err := infrastructure.InitializeOTel(
		infrastructure.DefaultOTelConfig(cfg.Product.Version), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		otelProviders.Shutdown(shutdownCtx)
	}()

	fp := security.NewFingerprintManager(cfg.Product.BundleID)
	sig, err := fp.Signature()
	if err != nil {
		return fmt.Errorf("failed to derive device signature: %w", err)
	}

	secure := store.NewSecureStore(cfg.Paths.SecureStore, store.DeriveStoreSecret(sig.Signature))
	settings, err := store.OpenSettingsStore(cfg.Paths.SettingsDB)
	if err != nil {
		return fmt.Errorf("failed to open settings store: %w", err)
	}
	defer settings.Close()
	marker := store.NewTrialMarker(cfg.Paths.TrialMarker)

	stores := store.NewReconciler(logger, secure, settings, marker)

	licenseClient := licenseapi.NewClient(licenseapi.Config{
		Endpoint:         cfg.License.VerifyEndpoint,
		ProductID:        cfg.Product.ID,
		ProductPermalink: cfg.Product.Permalink,
		Timeout:          cfg.License.RequestTimeout,
	}, logger)

	var trialClient *trialapi.Client
	if cfg.RemoteTrialMode() {
		trialClient = trialapi.NewClient(trialapi.Config{
			BaseURL:     cfg.Trial.Endpoint,
			APIKey:      cfg.Trial.APIKey,
			AppBundleID: cfg.Product.BundleID,
			AppVersion:  cfg.Product.Version,
			Timeout:     cfg.Trial.RequestTimeout,
		}, logger)
	}

	engine := entitlement.NewEngine(cfg, secure, stores, licenseClient, trialClient, fp, logger)

	hub := websocket.NewHub(logger)
	defer hub.Close()
	engine.OnAccessChange(hub.BroadcastAccessChange)

	service := services.NewEntitlementService(engine, logger)

	router := transport.NewRouter(transport.RouterDeps{
		Config:      cfg,
		Logger:      logger,
		Service:     service,
		AccessHub:   hub,
		MetricsHTTP: otelProviders.PrometheusHTTP,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("entitlement daemon listening",
			slog.String("addr", server.Addr),
			slog.Bool("enforcement_disabled", cfg.EnforcementDisabled()),
			slog.Bool("remote_trial_mode", cfg.RemoteTrialMode()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Revalidate on launch so a stale activation is caught early
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.License.RequestTimeout+5*time.Second)
		defer cancel()
		if _, err := service.Revalidate(ctx); err != nil {
			logger.WarnContext(ctx, "startup revalidation failed",
				slog.String("error", err.Error()),
			)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case received := <-stop:
		logger.Info("shutting down", slog.String("signal", received.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
