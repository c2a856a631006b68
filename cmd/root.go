package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dheerajkumar69/posture-detection/internal/config"
	"github.com/Dheerajkumar69/posture-detection/internal/logger"
	"github.com/Dheerajkumar69/posture-detection/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Cfg is the configuration loaded before any subcommand runs.
	Cfg *config.Config
	// DB is the session store, opened on demand by requireDB.
	DB *store.Store

	cfgFile string
	dbURL   string
)

// Version is the application version.
const Version = "0.1.0"

var errNoDatabase = errors.New("no database configured: pass --db or set POSTURE_DATABASE_URL")

var rootCmd = &cobra.Command{
	Use:           "posture",
	Short:         "Squat and desk posture analysis for recorded video",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		if err := v.BindPFlag("database.url", cmd.Root().PersistentFlags().Lookup("db")); err != nil {
			return err
		}
		if err := v.BindPFlag("log.level", cmd.Root().PersistentFlags().Lookup("log-level")); err != nil {
			return err
		}

		var err error
		Cfg, err = config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		return logger.Init(Cfg.Log)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			DB.Close()
			DB = nil
		}
		logger.Sync()
	},
}

// requireDB opens the session store for commands that cannot work without it.
func requireDB(ctx context.Context) (*store.Store, error) {
	if DB != nil {
		return DB, nil
	}
	if Cfg.Database.URL == "" {
		return nil, errNoDatabase
	}
	var err error
	DB, err = store.New(ctx, Cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return DB, nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for session storage")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
}
