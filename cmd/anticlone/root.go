package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/klirineu/offertrack-web/internal/app"
	"github.com/klirineu/offertrack-web/internal/config"
	"github.com/klirineu/offertrack-web/internal/domain"
	"github.com/klirineu/offertrack-web/internal/logger"
	"github.com/klirineu/offertrack-web/internal/shortid"
)

var (
	cfgFile      string
	logLevelFlag string
	dbURLFlag    string
	dbDriverFlag string
)

var rootCmd = &cobra.Command{
	Use:   "anticlone",
	Short: "Detect cloned landing pages and push countermeasures to them",
	Long: `anticlone serves the beacon script and the verification endpoint that
protected sites embed, and manages the sites and the clone ledger behind them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := logLevelFlag
		if level == "" {
			level = logger.LevelInfo
		}
		return logger.Init(level, "")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "DEBUG, INFO, WARN or ERROR (overrides log.level)")
	rootCmd.PersistentFlags().StringVar(&dbURLFlag, "db", "", "database url or sqlite path (overrides database.url)")
	rootCmd.PersistentFlags().StringVar(&dbDriverFlag, "driver", "", "postgres or sqlite (overrides database.driver)")
}

// loadConfig reads the config file and environment, then applies flags.
func loadConfig() (config.Config, error) {
	// A missing database.url is fine when --db supplies it; Validate runs again below.
	cfg, err := config.Load(cfgFile)
	if err != nil && dbURLFlag == "" {
		return cfg, err
	}
	if dbURLFlag != "" {
		cfg.Database.URL = dbURLFlag
	}
	if dbDriverFlag != "" {
		cfg.Database.Driver = dbDriverFlag
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	level := cfg.Log.Level
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	if err := logger.Init(level, cfg.Log.Path); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// openStore loads config and opens a migrated store.
func openStore(ctx context.Context) (config.Config, app.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, nil, err
	}
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return cfg, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return cfg, nil, fmt.Errorf("migrate: %w", err)
	}
	return cfg, store, nil
}

// findSite accepts a full site id or a short id.
func findSite(ctx context.Context, store app.Store, arg string) (domain.ProtectedSite, error) {
	if id, err := uuid.Parse(arg); err == nil {
		return store.GetSite(ctx, id)
	}
	prefix, err := shortid.Decode(arg)
	if err != nil {
		return domain.ProtectedSite{}, fmt.Errorf("%q is neither a site id nor a short id", arg)
	}
	candidates, err := store.FindByIDPrefix(ctx, prefix)
	if err != nil {
		return domain.ProtectedSite{}, err
	}
	return shortid.Resolve(arg, candidates)
}
