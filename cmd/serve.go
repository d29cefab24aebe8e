package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/boxrender/internal/config"
	"github.com/conneroisu/boxrender/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve renders over HTTP",
	Long: `Serve renders over HTTP until interrupted.

Any path renders the manifest of the gist named by the gist query parameter,
authorised by the token parameter or the configured fallback token. The
reserved paths /healthz, /metrics, /status and /events expose health,
Prometheus metrics, a status page and a websocket event feed.

Examples:
  boxrender serve                       # Listen on 0.0.0.0:8080
  boxrender serve --port 9000           # Listen on another port
  RENDERER_STORE_KIND=dir RENDERER_STORE_DIR=./gists boxrender serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.logger.Warn(context.Background(), cerr, "Failed to close cache")
		}
	}()

	srv := server.New(cfg, server.Deps{
		Store:    a.store,
		Renderer: a.renderer,
		Cache:    a.cache,
		Metrics:  a.metrics,
		Logger:   a.logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.dir != nil {
		a.dir.OnChange(srv.StoreChanged)
		if err := a.dir.Watch(ctx, cfg.Store.Debounce); err != nil {
			return fmt.Errorf("watch store: %w", err)
		}
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Start(ctx) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errc
}
