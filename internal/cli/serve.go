package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/reportbot/reportbot/internal/slack"
	"github.com/reportbot/reportbot/pkg/models"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot: event server, scheduler, and config watcher",
	Long: `Start the report bot. This runs the Slack event listener, the daily
report scheduler, and the configuration file watcher until interrupted.

Configuration is read from reportbot.yaml; channel/subteam mapping changes are
picked up without a restart. Secrets come from the environment:
SLACK_BOT_TOKEN and OPENROUTER_API_KEY.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil || Collector == nil {
			return fmt.Errorf("bot not initialized")
		}

		cfg := Config.Snapshot()

		Config.Watch(func(reloaded *models.BotConfig) {
			if Events != nil {
				Events.LogEvent("config.reloaded", map[string]any{"channels": len(reloaded.Channels)})
			}
		})

		server := slack.NewServer(cfg.ListenAddr, Collector, Engine, Transport, Events)

		sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithCancel(sigCtx)
		defer cancel()

		errCh := make(chan error, 2)
		go func() { errCh <- server.Run(ctx) }()
		go func() { errCh <- Sched.Run(ctx) }()

		fmt.Printf("reportbot listening on %s, reporting daily at %02d:%02d %s\n",
			cfg.ListenAddr, cfg.ReportHour, cfg.ReportMinute, cfg.Timezone)

		err := <-errCh
		canceled := ctx.Err() != nil
		cancel()
		<-errCh
		if err != nil && !canceled {
			return fmt.Errorf("running bot: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
