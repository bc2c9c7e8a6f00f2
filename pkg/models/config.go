package models

// ChannelConfig maps one Slack channel to its subteam label. Entries are
// immutable per reload: the whole channel set is replaced wholesale when the
// config file changes, never partially mutated.
type ChannelConfig struct {
	ChannelID    string `yaml:"id" mapstructure:"id" json:"channel_id"`
	DisplayName  string `yaml:"name" mapstructure:"name" json:"display_name"`
	SubteamLabel string `yaml:"subteam" mapstructure:"subteam" json:"subteam_label"`
}

// AIConfig holds summarization provider settings.
type AIConfig struct {
	Model           string `yaml:"model" mapstructure:"model"`
	MaxOutputTokens int    `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
	InputCharBudget int    `yaml:"input_char_budget" mapstructure:"input_char_budget"`
}

// BotConfig is the immutable configuration snapshot read from reportbot.yaml
// via Viper. Readers always see a complete snapshot; reloads replace the whole
// value atomically behind core.ConfigStore.
type BotConfig struct {
	Channels            []ChannelConfig `yaml:"channels" mapstructure:"channels"`
	MasterReportChannel string          `yaml:"master_channel" mapstructure:"master_channel"`
	Timezone            string          `yaml:"timezone" mapstructure:"timezone"`
	ReportHour          int             `yaml:"report_hour" mapstructure:"report_hour"`
	ReportMinute        int             `yaml:"report_minute" mapstructure:"report_minute"`
	ListenAddr          string          `yaml:"listen_addr" mapstructure:"listen_addr"`
	AI                  AIConfig        `yaml:"ai" mapstructure:"ai"`
}

// ChannelByID returns the config entry for the given channel, if present.
func (c *BotConfig) ChannelByID(channelID string) (ChannelConfig, bool) {
	for _, ch := range c.Channels {
		if ch.ChannelID == channelID {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}
