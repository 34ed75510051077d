// Command httpcored runs the reactive HTTP core as a standalone daemon:
// it loads a YAML configuration document, wires a small demonstration
// router, and serves both the reactive core and the admin control plane
// until terminated.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"httpcore/internal/admin"
	"httpcore/internal/config"
	"httpcore/internal/routing"
	"httpcore/internal/server"
)

var (
	configPath string
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "httpcored",
	Short: "Reactive HTTP/1.x and HTTP/2 server core",
	Long:  `httpcored serves the reactive HTTP core and its admin control plane from a YAML configuration document.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server and admin surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		router := routing.NewRouter()
		registerDemoRoutes(router)

		ctrl := newDemoController()

		srv, err := server.New(cfg, router, ctrl, logger)
		if err != nil {
			return fmt.Errorf("build server: %w", err)
		}

		adminSrv := admin.New(cfg.Admin, router, logger, func() bool { return true })

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		errc := make(chan error, 2)
		go func() { errc <- srv.Serve(ctx) }()
		go func() { errc <- adminSrv.Serve(ctx) }()

		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-sigc:
			logger.Info("shutdown signal received")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout()+time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("server shutdown", zap.Error(err))
			}
			cancel()
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("server stopped: %w", err)
			}
		}
		return nil
	},
}

func init() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration document")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	defer logger.Sync() //nolint:errcheck
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
