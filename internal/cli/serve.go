package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rennerdo30/pacparser/internal/config"
	"github.com/rennerdo30/pacparser/internal/logging"
	"github.com/rennerdo30/pacparser/internal/server"
)

// shutdownTimeout bounds graceful shutdown of the API.
const shutdownTimeout = 15 * time.Second

func newServeCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve PAC lookups over HTTP",
		Long: `Serve loads the configured PAC file and answers lookups on the REST API.
SIGHUP reloads the PAC file; SIGINT and SIGTERM stop the server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configFile)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "pacparser.yaml", "config file path")
	return cmd
}

func runServe(ctx context.Context, configFile string) error {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logging.Setup(cfg.Logging); err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logging.Close() //nolint:errcheck

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	if err := srv.Start(ctx); err != nil {
		srv.Stop(context.Background()) //nolint:errcheck
		return fmt.Errorf("start server: %w", err)
	}

	logger := logging.WithComponent("cli")
	for {
		select {
		case <-ctx.Done():
			return stopServer(srv)
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGHUP:
				logger.Info("Received SIGHUP, reloading PAC file")
				if err := srv.ReloadScript(); err != nil {
					logger.Error("PAC reload failed", "error", err)
				}
			default:
				logger.Info("Received shutdown signal", "signal", sig.String())
				return stopServer(srv)
			}
		}
	}
}

func stopServer(srv *server.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(ctx)
}
