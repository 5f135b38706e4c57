package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sagarc03/cellar/config"
	cellarhttp "github.com/sagarc03/cellar/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the cellar HTTP server. Every namespace under models in the
configuration is served at /{namespace}.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var purgeInterval time.Duration

func init() {
	serveCmd.Flags().Int("port", 5708, "HTTP server port (env: CELLAR_SERVER_PORT)")
	serveCmd.Flags().DurationVar(&purgeInterval, "purge-interval", 0, "run cleanup on this interval (0 disables)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg, err := config.FromContext(ctx)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	namespaces := a.namespaces()
	if len(namespaces) == 0 {
		return errors.New("no models configured: add a models section to the config file")
	}

	services := make(map[string]cellarhttp.Service, len(a.models))
	for ns, m := range a.models {
		services[ns] = m
	}

	handler := cellarhttp.NewHandler(&cellarhttp.HandlerConfig{
		Services:      services,
		CORS:          cfg.CORS,
		MaxUploadSize: cfg.Server.MaxUploadSize,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := cellarhttp.NewServer(addr, handler.Router())

	if purgeInterval > 0 {
		go runPurgeLoop(ctx, a, purgeInterval)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "err", err)
		}
		cancel()
	}()

	slog.Info("starting server",
		"addr", addr,
		"namespaces", namespaces,
		"backend", cfg.Storage.Backend,
		"database", cfg.Database.Type,
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func runPurgeLoop(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleaned, err := a.store.Purge(ctx, 0)
			if err != nil {
				slog.Warn("purge failed", "err", err)
				continue
			}
			if cleaned > 0 {
				slog.Info("purged removed content", "records_cleaned", cleaned)
			}
		}
	}
}
