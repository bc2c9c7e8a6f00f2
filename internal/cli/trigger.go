package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/reportbot/reportbot/pkg/models"
	"github.com/spf13/cobra"
)

var triggerAddr string

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Trigger an aggregation cycle on a running serve instance",
	Long: `Ask a running "reportbot serve" process to run a report cycle now.

The cycle summarizes every channel with an open collection window, posts the
master report, archives the record, and resets the collection state. If a
cycle is already in flight the trigger is rejected.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: 5 * time.Minute}
		resp, err := client.Post("http://"+normalizeAddr(triggerAddr)+"/admin/trigger", "application/json", nil)
		if err != nil {
			return fmt.Errorf("reaching serve instance at %s: %w", triggerAddr, err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			var record models.AggregationRecord
			if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
				return fmt.Errorf("decoding trigger response: %w", err)
			}
			fmt.Printf("Cycle complete: record %s, %d contribution(s) across %d team(s).\n",
				record.ID, record.TotalContributions, len(record.PerChannel))
			return nil
		case http.StatusConflict:
			return fmt.Errorf("a report cycle is already running")
		default:
			return fmt.Errorf("trigger failed with status %d", resp.StatusCode)
		}
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Open collection windows on a running serve instance",
	Long: `Ask a running "reportbot serve" process to post the daily report
prompt to every configured channel, opening (or replacing) each channel's
collection window.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: time.Minute}
		resp, err := client.Post("http://"+normalizeAddr(triggerAddr)+"/admin/start", "application/json", nil)
		if err != nil {
			return fmt.Errorf("reaching serve instance at %s: %w", triggerAddr, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("start failed with status %d", resp.StatusCode)
		}
		var result struct {
			Opened int `json:"opened"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decoding start response: %w", err)
		}
		fmt.Printf("Collection started in %d channel(s).\n", result.Opened)
		return nil
	},
}

// normalizeAddr turns a listen address like ":8484" into a dialable host.
func normalizeAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "127.0.0.1" + addr
	}
	return addr
}

func init() {
	triggerCmd.Flags().StringVar(&triggerAddr, "addr", "127.0.0.1:8484", "address of the running serve instance")
	startCmd.Flags().StringVar(&triggerAddr, "addr", "127.0.0.1:8484", "address of the running serve instance")
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(startCmd)
}
