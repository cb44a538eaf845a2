package cmd

import (
	"github.com/spf13/cobra"

	"emoji-stories/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer closeDB(db)

		if err := config.Migrate(db); err != nil {
			return err
		}
		log.Info("schema migrated")
		return nil
	},
}
