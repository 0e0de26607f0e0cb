// Command mcpbrokerd runs the MCP connection broker as a standalone HTTP
// process, for local development and for embedding hosts that prefer a
// sidecar over linking this module directly.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/api"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/logging"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/registry"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/settings"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/toolcache"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/validation"
)

func main() {
	if err := createRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func createRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "mcpbrokerd",
		Short: "MCP connection broker",
		Long:  "mcpbrokerd manages connections to external MCP servers and exposes a control-plane REST API for listing, starting, stopping, and calling their tools.",
		RunE:  run,
	}
	root.Flags().String("host", "", "listen host")
	root.Flags().Int("port", 0, "listen port")
	root.Flags().String("settings-path", "", "path to mcp_settings.json")
	root.Flags().String("log-level", "", "log level (debug, info, warn, error)")
	root.Flags().Bool("log-json", false, "emit logs as JSON")
	root.Flags().Duration("shutdown-timeout", 0, "graceful shutdown timeout")
	return root
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Init(logging.Config{Level: logging.Level(cfg.LogLevel), JSON: cfg.LogJSON})
	log := logging.GetDefault()

	store := settings.NewStore(cfg.SettingsPath)
	validator := validation.New()
	reg := registry.New(validator)
	cache := toolcache.New(reg, store)
	router := api.NewRouter(reg, store, cache)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting mcp broker", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := reg.Shutdown(shutdownCtx); err != nil {
		log.Warn("registry shutdown reported errors", "err", err)
	}
	return server.Shutdown(shutdownCtx)
}
