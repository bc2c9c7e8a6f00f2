// Package core contains the business logic for the report bot: the
// configuration store, the collection registry, the report ledger, and the
// aggregation engine.
package core

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/reportbot/reportbot/pkg/models"
	"github.com/spf13/viper"
)

// ConfigStore defines the interface for loading and watching the bot
// configuration. Snapshot never blocks and always returns a complete,
// consistent configuration; reloads replace the snapshot atomically.
type ConfigStore interface {
	Load() error
	Snapshot() *models.BotConfig
	Watch(onReload func(*models.BotConfig))
}

// viperConfigStore implements ConfigStore using Viper for reading the
// reportbot.yaml file with fsnotify-backed hot reload.
type viperConfigStore struct {
	v       *viper.Viper
	current atomic.Pointer[models.BotConfig]
}

// NewConfigStore creates a ConfigStore that reads reportbot.yaml from the
// given directory.
func NewConfigStore(basePath string) ConfigStore {
	v := viper.New()
	v.SetConfigName("reportbot")
	v.SetConfigType("yaml")
	v.AddConfigPath(basePath)

	v.SetDefault("timezone", "America/New_York")
	v.SetDefault("report_hour", 0)
	v.SetDefault("report_minute", 0)
	v.SetDefault("listen_addr", ":8484")
	v.SetDefault("ai.model", "google/gemini-2.0-flash-exp:free")
	v.SetDefault("ai.max_output_tokens", 1024)
	v.SetDefault("ai.input_char_budget", 24000)

	return &viperConfigStore{v: v}
}

// Load reads the config file and installs the first snapshot. A missing or
// invalid file is fatal at load time.
func (s *viperConfigStore) Load() error {
	if err := s.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading reportbot.yaml: %w", err)
	}
	cfg, err := s.unmarshal()
	if err != nil {
		return err
	}
	s.current.Store(cfg)
	return nil
}

// Snapshot returns the current immutable configuration snapshot.
func (s *viperConfigStore) Snapshot() *models.BotConfig {
	return s.current.Load()
}

// Watch starts watching the config file for changes. A successful reload
// replaces the snapshot wholesale and invokes onReload; a failed reload keeps
// the previous good snapshot in place.
func (s *viperConfigStore) Watch(onReload func(*models.BotConfig)) {
	s.v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := s.unmarshal()
		if err != nil {
			// Previous good config retained.
			return
		}
		s.current.Store(cfg)
		if onReload != nil {
			onReload(cfg)
		}
	})
	s.v.WatchConfig()
}

func (s *viperConfigStore) unmarshal() (*models.BotConfig, error) {
	var cfg models.BotConfig
	if err := s.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling reportbot.yaml: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateConfig checks a BotConfig for invalid field values and returns a
// clear error message identifying every problem found.
func validateConfig(cfg *models.BotConfig) error {
	var errs []string

	if len(cfg.Channels) == 0 {
		errs = append(errs, "channels must not be empty")
	}
	seen := make(map[string]bool, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		if ch.ChannelID == "" {
			errs = append(errs, fmt.Sprintf("channels[%d].id must not be empty", i))
			continue
		}
		if seen[ch.ChannelID] {
			errs = append(errs, fmt.Sprintf("channels[%d].id %q is duplicated", i, ch.ChannelID))
		}
		seen[ch.ChannelID] = true
		if ch.SubteamLabel == "" {
			errs = append(errs, fmt.Sprintf("channels[%d].subteam must not be empty", i))
		}
	}

	if cfg.MasterReportChannel == "" {
		errs = append(errs, "master_channel must not be empty")
	}
	if cfg.ReportHour < 0 || cfg.ReportHour > 23 {
		errs = append(errs, fmt.Sprintf("report_hour %d is invalid, must be between 0 and 23", cfg.ReportHour))
	}
	if cfg.ReportMinute < 0 || cfg.ReportMinute > 59 {
		errs = append(errs, fmt.Sprintf("report_minute %d is invalid, must be between 0 and 59", cfg.ReportMinute))
	}
	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("timezone %q is not a valid IANA zone", cfg.Timezone))
		}
	}
	if cfg.AI.InputCharBudget <= 0 {
		errs = append(errs, fmt.Sprintf("ai.input_char_budget %d is invalid, must be positive", cfg.AI.InputCharBudget))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
