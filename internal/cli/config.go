package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/reportbot/reportbot/pkg/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter reportbot.yaml to the base path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(BasePath, "reportbot.yaml")
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}

		cfg := models.BotConfig{
			Channels: []models.ChannelConfig{
				{ChannelID: "C0000000001", DisplayName: "team-engineering", SubteamLabel: "Engineering"},
				{ChannelID: "C0000000002", DisplayName: "team-design", SubteamLabel: "Design"},
			},
			MasterReportChannel: "C0000000099",
			Timezone:            "America/New_York",
			ReportHour:          0,
			ReportMinute:        0,
			ListenAddr:          ":8484",
			AI: models.AIConfig{
				Model:           "google/gemini-2.0-flash-exp:free",
				MaxOutputTokens: 1024,
				InputCharBudget: 24000,
			},
		}

		data, err := yaml.Marshal(&cfg)
		if err != nil {
			return fmt.Errorf("marshaling starter config: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}

		fmt.Printf("Wrote %s. Edit the channel IDs, then run \"reportbot serve\".\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Config == nil {
			return fmt.Errorf("config not initialized")
		}
		data, err := yaml.Marshal(Config.Snapshot())
		if err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
