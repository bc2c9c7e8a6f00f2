package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	botmcp "github.com/reportbot/reportbot/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the reportbot MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reportbot MCP server on stdio",
	Long: `Start the reportbot MCP server on stdio transport.

The server exposes report functionality as MCP tools that AI assistants can
call: trigger_report, list_summaries, get_summary, get_metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil || Archive == nil {
			return fmt.Errorf("bot not initialized")
		}

		srv := botmcp.NewServer(Engine, Archive, MetricsCalc, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
