package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/squidsoup/slaybot/slaybot"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the database",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		if cfg.Database == "" {
			log.Fatal(
				"Environment variable SLAY_DATABASE not set (must be a " +
					"sqlite file path)",
			)
		}
		db, err := slaybot.CreateDB(ctx, cfg.Database)
		if err != nil {
			log.Fatalf("Error creating database: %v", err)
		}

		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}

		fmt.Fprintln(
			cmd.OutOrStdout(),
			"Initialization complete. You can now start the bot with the 'run' subcommand.",
		)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
