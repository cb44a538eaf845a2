package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"emoji-stories/services"
)

var promptDate string

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the emoji prompt for a day, creating it if needed",
	Example: `  emoji-stories prompt
  emoji-stories prompt --date 2024-12-24`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer closeDB(db)

		prompts, err := services.NewPromptService(db, services.PromptOptions{
			Pool:     cfg.Prompt.Pool,
			Count:    cfg.Prompt.Count,
			Calendar: services.NewCalendar(cfg.Location()),
		})
		if err != nil {
			return err
		}

		date := promptDate
		if date == "" {
			date = prompts.Calendar().Today()
		}
		daily, err := prompts.ForDate(cmd.Context(), date)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", daily.Date, strings.Join(daily.List(), " "))
		return nil
	},
}

func init() {
	promptCmd.Flags().StringVar(&promptDate, "date", "", "date as YYYY-MM-DD (default: today)")
}
