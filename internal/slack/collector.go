package slack

import (
	"context"
	"fmt"
	"time"

	"github.com/reportbot/reportbot/internal/core"
	"github.com/reportbot/reportbot/pkg/models"
)

// MessageEvent is the subset of a Slack message event the collector needs.
type MessageEvent struct {
	ChannelID string
	UserID    string
	Text      string
	TS        string
	ThreadTS  string
	BotID     string
}

// Collector ties the transport to the collection registry and report ledger:
// it opens collection windows by posting thread anchors and ingests thread
// replies as contributions.
type Collector struct {
	config    core.ConfigStore
	registry  core.CollectionRegistry
	ledger    core.ReportLedger
	transport Transport
	events    core.EventLogger
	now       func() time.Time
}

// NewCollector creates a Collector. events may be nil.
func NewCollector(config core.ConfigStore, registry core.CollectionRegistry, ledger core.ReportLedger, transport Transport, events core.EventLogger) *Collector {
	return &Collector{
		config:    config,
		registry:  registry,
		ledger:    ledger,
		transport: transport,
		events:    events,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// StartCollection posts a thread-anchor message to every configured channel
// and opens (or replaces) each channel's collection window at the returned
// message timestamp. It returns the number of windows opened; a post failure
// for one channel does not stop the rest.
func (c *Collector) StartCollection(ctx context.Context) (int, error) {
	cfg := c.config.Snapshot()

	opened := 0
	var firstErr error
	for _, ch := range cfg.Channels {
		ts, err := c.transport.PostMessage(ctx, ch.ChannelID,
			fmt.Sprintf("\U0001f4dd Daily Report for %s", ch.SubteamLabel),
			collectionPromptBlocks(ch.SubteamLabel))
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("posting collection prompt to %s: %w", ch.DisplayName, err)
			}
			continue
		}
		c.registry.StartCollection(ch.ChannelID, ts)
		c.logEvent("window.opened", map[string]any{"channel": ch.ChannelID, "anchor": ts})
		opened++
	}
	if opened == 0 && firstErr != nil {
		return 0, firstErr
	}
	return opened, nil
}

// HandleMessage ingests one inbound message event. Replies outside an open
// window or to the wrong thread are dropped silently; accepted contributions
// get a white_check_mark reaction as the only user-visible acknowledgment.
func (c *Collector) HandleMessage(ctx context.Context, ev MessageEvent) {
	// Only thread replies from humans are candidates.
	if ev.ThreadTS == "" || ev.BotID != "" {
		return
	}

	name, err := c.transport.UserDisplayName(ctx, ev.UserID)
	if err != nil || name == "" {
		name = ev.UserID
	}

	result := c.ledger.Record(models.Contribution{
		ChannelID:         ev.ChannelID,
		AuthorID:          ev.UserID,
		AuthorDisplayName: name,
		Text:              ev.Text,
		ArrivedAt:         c.now(),
	}, ev.ThreadTS)

	if !result.Accepted {
		c.logEvent("ingest.rejected", map[string]any{
			"channel": ev.ChannelID,
			"user":    ev.UserID,
			"reason":  string(result.Reason),
		})
		return
	}

	c.logEvent("ingest.accepted", map[string]any{"channel": ev.ChannelID, "user": ev.UserID})

	// Best effort: a missing reaction is an acceptable failure mode.
	if err := c.transport.AddReaction(ctx, ev.ChannelID, ev.TS, "white_check_mark"); err != nil {
		c.logEvent("reaction.failed", map[string]any{"channel": ev.ChannelID, "error": err.Error()})
	}
}

func (c *Collector) logEvent(eventType string, data map[string]any) {
	if c.events != nil {
		c.events.LogEvent(eventType, data)
	}
}
