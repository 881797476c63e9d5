package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/squidsoup/slaybot/slaybot"
)

const envTemplateFile = "slaybot.env.example"

// envTemplate is written next to the binary on first run, so an operator
// starting from nothing gets a settings file to fill in.
const envTemplate = `# SlayBot settings. Copy to .env (or pass --config) and fill in the
# values from the discord developer portal.
SLAY_DISCORD_TOKEN=
SLAY_DISCORD_APPLICATION_ID=
# Optional: restrict slash commands to a single guild
SLAY_DISCORD_GUILD_ID=
# Optional: channel to announce startup in
SLAY_DISCORD_NOTIFICATION_CHANNEL_ID=
SLAY_DATABASE=slaybot.sqlite3
SLAY_LOG_LEVEL=INFO
`

var (
	runCmd = &cobra.Command{
		Use:   "run [flags]",
		Short: "Starts the SlayBot bot and status API",
		Run: func(cmd *cobra.Command, _ []string) {
			ctx := cmd.Context()

			if cfg.Discord == nil || cfg.Discord.Token == "" {
				writeEnvTemplate()
				log.Fatalf(
					"discord token is not set - fill in %s and copy it to .env",
					envTemplateFile,
				)
			}

			bot, err := slaybot.New(cfg)
			if err != nil {
				log.Fatalf("error creating slaybot: %s", err.Error())
			}

			if err = bot.Run(ctx); err != nil {
				log.Fatalf("error running slaybot: %s", err.Error())
			}
		},
	}
)

// writeEnvTemplate creates the example settings file if it doesn't
// already exist.
func writeEnvTemplate() {
	if _, err := os.Stat(envTemplateFile); err == nil {
		return
	}
	if err := os.WriteFile(envTemplateFile, []byte(envTemplate), 0600); err != nil {
		log.Printf("unable to write %s: %v", envTemplateFile, err)
		return
	}
	fmt.Printf("wrote example settings to %s\n", envTemplateFile)
}

func init() {
	rootCmd.AddCommand(runCmd)
}
