// Package main provides the proctord server and replay tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/proctorai/proctor/internal/config"
	"github.com/proctorai/proctor/internal/mock"
	"github.com/proctorai/proctor/internal/replay"
	"github.com/proctorai/proctor/internal/session"
	"github.com/proctorai/proctor/internal/ws"
)

var (
	configPath string
	envFile    string

	servePort int
	serveMock bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "proctord",
		Short:        "Proctoring signal fusion server",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before env overrides")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newReplayCmd())
	return rootCmd
}

func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().IntVar(&servePort, "port", 0, "override server port")
	cmd.Flags().BoolVar(&serveMock, "mock", false, "feed simulated candidates")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	store := session.NewStore(cfg.SessionOptions())
	broadcaster := ws.NewBroadcaster(store, cfg.Broadcast.Throttle, cfg.Broadcast.SnapshotInterval, cfg.Server.MaxConnections)
	broadcaster.SetPrivacyFilter(cfg.Privacy.NewViewFilter())
	store.SetListener(broadcaster.Observe)

	server := ws.NewServer(store, broadcaster, cfg.Server.AllowedOrigins, cfg.Server.AuthToken)
	if cfg.Server.AuthToken == "" {
		log.Println("No auth token configured; API is open to any local client")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if serveMock {
		log.Println("Starting in mock mode")
		gen := mock.NewGenerator(store, cfg.Mock.TickInterval, cfg.Mock.Seed)
		if err := gen.Start(ctx); err != nil {
			return err
		}
	}

	httpServer := ws.NewHTTPServer(cfg.Server.Host, cfg.Server.Port, server.Handler())
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on %s", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		log.Println("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	broadcaster.Stop()
	store.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <script.yaml>...",
		Short: "Run signal scripts on a simulated clock and report the verdict",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runReplay,
	}
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	failed := 0
	for _, path := range args {
		script, err := replay.LoadScript(path)
		if err != nil {
			return err
		}
		report := replay.Run(script, cfg.SessionOptions())
		if err := report.Write(cmd.OutOrStdout()); err != nil {
			return err
		}
		if !report.Passed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d script(s) failed", failed, len(args))
	}
	return nil
}
