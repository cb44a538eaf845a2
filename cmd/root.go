// Package cmd holds the emoji-stories command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"emoji-stories/config"
	"emoji-stories/logger"
)

var (
	configPath string

	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "emoji-stories",
	Short: "Daily emoji prompts, short stories and streaks",
	Long: `emoji-stories serves a small journaling site: every day brings a shared
set of emoji, users write a short story about them and, once they have
posted, read and react to everyone else's.`,
	SilenceUsage: true,
	// Without a subcommand the server starts, as container entrypoints expect.
	RunE: runServe,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log, err = logger.New(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	rootCmd.AddCommand(serveCmd, migrateCmd, promptCmd)
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openDB connects with a zap-backed gorm logger.
func openDB() (*gorm.DB, error) {
	gl, err := logger.NewGormLogger(log.Named("gorm"), cfg.Log.GormLevel)
	if err != nil {
		return nil, err
	}
	db, err := config.InitDB(cfg.Database.URL, gl)
	if err != nil {
		return nil, err
	}
	driver, _, _ := config.ParseDatabaseURL(cfg.Database.URL)
	log.Info("database connected", zap.String("driver", driver))
	return db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
