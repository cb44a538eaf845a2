package cmd

import (
	"context"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"emoji-stories/config"
	"emoji-stories/scheduler"
	"emoji-stories/server"
)

var (
	servePort   string
	skipMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "port to listen on (overrides config and PORT)")
	serveCmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not migrate the schema on start")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB()
	if err != nil {
		return err
	}
	defer closeDB(db)

	if !skipMigrate {
		if err := config.Migrate(db); err != nil {
			return err
		}
	}

	app, err := server.NewApp(ctx, cfg, db, log)
	if err != nil {
		return err
	}

	if cfg.Scheduler.Enabled {
		daily, err := scheduler.NewDaily(cfg.Scheduler.Spec, cfg.Location(), app.Prompts, db, log.Named("scheduler"))
		if err != nil {
			return err
		}
		daily.Start()
		log.Info("nightly rollover scheduled", zap.Time("next", daily.Next()))
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			daily.Stop(stopCtx)
		}()
	}

	port := cfg.Server.Port
	if servePort != "" {
		port = servePort
	}
	return server.Run(ctx, net.JoinHostPort("", port), server.NewRouter(app), log)
}
