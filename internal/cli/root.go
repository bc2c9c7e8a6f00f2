// Package cli defines the reportbot command tree. Service instances are
// package-level variables wired during app initialization.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "reportbot",
	Short: "reportbot - daily report collection and AI summarization",
	Long: `reportbot collects free-text status updates from team members into
per-channel Slack threads over the course of a day, then produces AI-generated
summaries per subteam and a combined master report, delivered on a schedule or
on demand.

Run "reportbot serve" to start the bot, "reportbot trigger" to run a report
cycle immediately, and "reportbot history" to browse archived summaries.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("reportbot %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
