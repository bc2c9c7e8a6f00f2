package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var metricsDays int

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show ingestion and cycle metrics from the event log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (observability may be disabled)")
		}

		since := time.Now().UTC().AddDate(0, 0, -metricsDays)
		m, err := MetricsCalc.Calculate(since)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		fmt.Printf("Metrics for the last %d day(s):\n\n", metricsDays)
		fmt.Printf("  Windows opened:     %d\n", m.WindowsOpened)
		fmt.Printf("  Windows replaced:   %d\n", m.WindowsReplaced)
		fmt.Printf("  Contributions:      %d\n", m.ContributionsAccepted)
		fmt.Printf("  Cycles completed:   %d\n", m.CyclesCompleted)
		fmt.Printf("  Cycles failed:      %d\n", m.CyclesFailed)
		fmt.Printf("  Degraded summaries: %d\n", m.DegradedSummaries)
		if len(m.IngestRejections) > 0 {
			fmt.Println("  Rejections:")
			for reason, n := range m.IngestRejections {
				fmt.Printf("    %-18s %d\n", reason, n)
			}
		}
		fmt.Printf("\n  Total events: %d\n", m.EventCount)
		return nil
	},
}

func init() {
	metricsCmd.Flags().IntVar(&metricsDays, "days", 7, "how many days of events to aggregate")
	rootCmd.AddCommand(metricsCmd)
}
