package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BioHazard786/warpchat/internal/config"
	"github.com/BioHazard786/warpchat/internal/coordinator"
	"github.com/BioHazard786/warpchat/internal/logging"
	"github.com/BioHazard786/warpchat/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator that introduces participants",
	Long: `Run the signaling coordinator. Participants connect to it over a websocket,
learn who else is online, and exchange WebRTC handshakes through it.

Examples:
  warpchat serve
  warpchat serve --addr :8080
  PORT=8080 warpchat serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		closeLog, err := logging.Init(slog.LevelInfo)
		if err != nil {
			return err
		}
		defer closeLog()

		cfg, err := config.Load(config.Options{ConfigPath: flagConfig, Listen: flagAddr})
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg.Listen, slog.Default())
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address (default :3000 or $PORT)")
}

// serve runs the hub and its HTTP front until ctx ends or the listener fails.
func serve(ctx context.Context, addr string, logger *slog.Logger) error {
	hub := coordinator.NewHub(logger.With("component", "hub"))
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(hub, logger.With("component", "http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("coordinator listening", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down coordinator")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
