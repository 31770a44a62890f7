package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vexlio/drover/internal/bridge"
	"github.com/vexlio/drover/internal/config"
	"github.com/vexlio/drover/internal/gateway"
	"github.com/vexlio/drover/internal/observability"
	"github.com/vexlio/drover/internal/session"
)

// newServeCmd creates and configures the `serve` command.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the extension bridge and the dashboard API",
		Long: `Starts the websocket endpoint the browser extension connects to, plus the
HTTP API the web dashboard uses for status and task submission. The browser
itself stays entirely under the user's control.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("bridge.port", cmd.Flags().Lookup("port")); err != nil {
				return err
			}
			if err := viper.BindPFlag("gateway.addr", cmd.Flags().Lookup("api-addr")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			bridgeServer := bridge.NewServer(cfg.Bridge, logger)
			if err := bridgeServer.Start(); err != nil {
				return fmt.Errorf("failed to start bridge server: %w", err)
			}

			sess := session.NewSession(bridgeServer, cfg.Bridge.LandingURL, logger)
			logger.Info("Browsing session ready", zap.String("session_id", sess.ID()))

			store, err := gateway.OpenStore(cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("failed to open task store: %w", err)
			}

			queue := gateway.NewQueue(nil, store, cfg.Gateway.QueueSize, logger)
			api := gateway.NewServer(cfg.Gateway, bridgeServer, queue, logger)
			if err := api.Start(); err != nil {
				return fmt.Errorf("failed to start gateway API: %w", err)
			}

			g, runCtx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := queue.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})

			logger.Info("Drover is up",
				zap.Int("bridge_port", cfg.Bridge.Port),
				zap.String("api_addr", cfg.Gateway.Addr))

			err = g.Wait()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if stopErr := api.Stop(shutdownCtx); stopErr != nil {
				logger.Error("Gateway shutdown failed", zap.Error(stopErr))
			}
			if stopErr := bridgeServer.Stop(shutdownCtx); stopErr != nil {
				logger.Error("Bridge shutdown failed", zap.Error(stopErr))
			}
			if closeErr := store.Close(); closeErr != nil {
				logger.Error("Task store close failed", zap.Error(closeErr))
			}
			_ = sess.Close(shutdownCtx)

			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("Shutdown complete")
			return nil
		},
	}

	serveCmd.Flags().Int("port", 0, "websocket port the extension connects to")
	serveCmd.Flags().String("api-addr", "", "listen address for the dashboard API")
	return serveCmd
}

func init() {
	rootCmd.AddCommand(newServeCmd())
}
