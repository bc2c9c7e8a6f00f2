package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyOffset int
)

var historyCmd = &cobra.Command{
	Use:   "history [record-id]",
	Short: "List archived report cycles, or show one record",
	Long: `Browse the summary archive. Without arguments, lists recent
aggregation records newest first. With a record ID, prints the full record
including the master summary and every team summary.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Archive == nil {
			return fmt.Errorf("archive not initialized")
		}

		if len(args) == 1 {
			return showRecord(args[0])
		}

		records, err := Archive.ListRecent(historyLimit, historyOffset)
		if err != nil {
			return fmt.Errorf("listing archive: %w", err)
		}
		if len(records) == 0 {
			fmt.Println("No archived reports yet.")
			return nil
		}

		for _, r := range records {
			preview := r.MasterSummaryText
			if len(preview) > 80 {
				preview = preview[:80] + "..."
			}
			preview = strings.ReplaceAll(preview, "\n", " ")
			fmt.Printf("%s  %s  %3d contribution(s)  %s\n",
				r.ID, r.Date, r.TotalContributions, preview)
		}
		return nil
	},
}

func showRecord(id string) error {
	record, err := Archive.GetByID(id)
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}
	if record == nil {
		return fmt.Errorf("record %s not found", id)
	}

	fmt.Printf("Record %s (%s)\n", record.ID, record.Date)
	fmt.Printf("Created: %s\n", record.CreatedAt.Format("2006-01-02 15:04 UTC"))
	fmt.Printf("Total contributions: %d\n\n", record.TotalContributions)
	fmt.Printf("Master summary:\n%s\n", record.MasterSummaryText)

	for _, s := range record.PerChannel {
		flags := ""
		if s.Degraded {
			flags += " [degraded]"
		}
		if s.Truncated {
			flags += " [truncated]"
		}
		fmt.Printf("\n%s (%d contribution(s))%s\n%s\n", s.SubteamLabel, s.ContributionCount, flags, s.SummaryText)
	}

	if record.MeetingSummaryText != "" {
		fmt.Printf("\nMeeting summary:\n%s\n", record.MeetingSummaryText)
	}
	return nil
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum records to list")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "records to skip")
	rootCmd.AddCommand(historyCmd)
}
