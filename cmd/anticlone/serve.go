package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/klirineu/offertrack-web/internal/app"
	"github.com/klirineu/offertrack-web/internal/logger"
)

var serveListenFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the beacon and verification HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		if serveListenFlag != "" {
			cfg.ListenAddr = serveListenFlag
		}
		logger.Debug("serve: script at %s%s", cfg.PublicBaseURL, cfg.ScriptPath)
		return app.Serve(ctx, cfg, store)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		store.Close()
		logger.Info("migrations applied")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListenFlag, "listen", "", "listen address (overrides listen_addr)")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}
