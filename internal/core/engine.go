package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/reportbot/reportbot/pkg/models"
)

// ErrCycleRunning is returned when a cycle trigger arrives while another
// cycle is already summarizing or publishing. The trigger is rejected, not
// queued, to avoid double-draining the ledger.
var ErrCycleRunning = errors.New("aggregation cycle already running")

// SummaryResult is the outcome of one summarization call. Provider failures
// surface as Degraded with fallback text rather than as errors, so callers
// compose without error-style control flow.
type SummaryResult struct {
	Text      string
	Degraded  bool
	Truncated bool
}

// Summarizer turns batches of contributions into natural-language summaries.
// Implementations must never fail: exhausted retries yield a degraded result.
type Summarizer interface {
	SummarizeChannel(ctx context.Context, subteam string, contributions []models.Contribution) SummaryResult
	GenerateMasterReport(ctx context.Context, results []models.ChannelSummaryResult) SummaryResult
	SummarizeMeeting(ctx context.Context, results []models.ChannelSummaryResult) SummaryResult
}

// SummaryArchive persists completed aggregation records. Append assigns and
// returns the record ID.
type SummaryArchive interface {
	Append(record models.AggregationRecord) (string, error)
}

// MasterPublisher posts the finished master report to the master channel.
type MasterPublisher interface {
	PublishMaster(ctx context.Context, channelID string, record models.AggregationRecord) error
}

// EventLogger records observable engine events. May be nil-free no-op.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any)
}

// AggregationEngine orchestrates one summarize-then-reset cycle across all
// channels with open collection windows.
type AggregationEngine interface {
	// RunCycle runs one full aggregation cycle and returns the archived
	// record. Returns ErrCycleRunning if a cycle is already in flight, or a
	// storage error if the archive append failed (in which case all windows
	// and contributions remain intact for retry).
	RunCycle(ctx context.Context) (*models.AggregationRecord, error)
}

type aggregationEngine struct {
	config     ConfigStore
	registry   CollectionRegistry
	ledger     ReportLedger
	summarizer Summarizer
	archive    SummaryArchive
	publisher  MasterPublisher
	events     EventLogger
	now        func() time.Time

	inFlight atomic.Bool
}

// NewAggregationEngine wires an AggregationEngine from its collaborators.
// publisher and events may be nil.
func NewAggregationEngine(config ConfigStore, registry CollectionRegistry, ledger ReportLedger, summarizer Summarizer, archive SummaryArchive, publisher MasterPublisher, events EventLogger) AggregationEngine {
	return &aggregationEngine{
		config:     config,
		registry:   registry,
		ledger:     ledger,
		summarizer: summarizer,
		archive:    archive,
		publisher:  publisher,
		events:     events,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (e *aggregationEngine) RunCycle(ctx context.Context) (*models.AggregationRecord, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return nil, ErrCycleRunning
	}
	defer e.inFlight.Store(false)

	cfg := e.config.Snapshot()

	// Consistent cut: summarize from snapshots, drain only after the record
	// is safely archived. A storage failure leaves every window open and
	// every contribution ledgered for retry.
	open := make(map[string]bool)
	for _, w := range e.registry.OpenWindows() {
		open[w.ChannelID] = true
	}

	groups := groupBySubteam(cfg.Channels, open)

	results := make([]models.ChannelSummaryResult, 0, len(groups))
	total := 0
	for _, g := range groups {
		var contributions []models.Contribution
		for _, ch := range g.channels {
			contributions = append(contributions, e.ledger.Snapshot(ch.ChannelID)...)
		}

		sum := e.summarizer.SummarizeChannel(ctx, g.subteam, contributions)
		if sum.Degraded {
			e.logEvent("summary.degraded", map[string]any{"subteam": g.subteam, "contributions": len(contributions)})
		}

		memberIDs := make([]string, len(g.channels))
		for i, ch := range g.channels {
			memberIDs[i] = ch.ChannelID
		}
		results = append(results, models.ChannelSummaryResult{
			ChannelID:         g.channels[0].ChannelID,
			ChannelName:       g.channels[0].DisplayName,
			SubteamLabel:      g.subteam,
			MemberChannelIDs:  memberIDs,
			SummaryText:       sum.Text,
			ContributionCount: len(contributions),
			Degraded:          sum.Degraded,
			Truncated:         sum.Truncated,
		})
		total += len(contributions)
	}

	master := e.summarizer.GenerateMasterReport(ctx, results)

	record := models.AggregationRecord{
		Date:               e.cycleDate(cfg),
		MasterSummaryText:  master.Text,
		PerChannel:         results,
		TotalContributions: total,
		CreatedAt:          e.now(),
	}
	if len(results) > 0 {
		meeting := e.summarizer.SummarizeMeeting(ctx, results)
		record.MeetingSummaryText = meeting.Text
	}

	id, err := e.archive.Append(record)
	if err != nil {
		e.logEvent("cycle.failed", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("archiving aggregation record: %w", err)
	}
	record.ID = id

	// Best effort: the record is durable, so a publish failure must not
	// leave windows stuck open.
	if e.publisher != nil {
		if err := e.publisher.PublishMaster(ctx, cfg.MasterReportChannel, record); err != nil {
			e.logEvent("publish.failed", map[string]any{"error": err.Error(), "channel": cfg.MasterReportChannel})
		}
	}

	configured := make(map[string]bool, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		configured[ch.ChannelID] = true
	}
	for channelID := range open {
		dropped := e.ledger.Drain(channelID)
		if !configured[channelID] {
			// A config reload removed the channel while its window was open,
			// so its contributions belong to no subteam and were never
			// summarized. The event log is the only trace of the loss.
			e.logEvent("cycle.dropped_unconfigured", map[string]any{
				"channel":       channelID,
				"contributions": len(dropped),
			})
		}
	}
	closed := e.registry.CloseAll()

	e.logEvent("cycle.completed", map[string]any{
		"record_id":     record.ID,
		"channels":      len(closed),
		"contributions": total,
	})
	return &record, nil
}

// cycleDate formats the cycle's calendar date in the configured timezone.
func (e *aggregationEngine) cycleDate(cfg *models.BotConfig) string {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return e.now().In(loc).Format("2006-01-02")
}

func (e *aggregationEngine) logEvent(eventType string, data map[string]any) {
	if e.events != nil {
		e.events.LogEvent(eventType, data)
	}
}

// subteamGroup collects the configured channels of one subteam that currently
// have open windows, in configuration order.
type subteamGroup struct {
	subteam  string
	channels []models.ChannelConfig
}

// groupBySubteam groups open-window channels by subteam label, preserving
// configuration order for both groups and members.
func groupBySubteam(channels []models.ChannelConfig, open map[string]bool) []subteamGroup {
	index := make(map[string]int)
	var groups []subteamGroup
	for _, ch := range channels {
		if !open[ch.ChannelID] {
			continue
		}
		i, ok := index[ch.SubteamLabel]
		if !ok {
			i = len(groups)
			index[ch.SubteamLabel] = i
			groups = append(groups, subteamGroup{subteam: ch.SubteamLabel})
		}
		groups[i].channels = append(groups[i].channels, ch)
	}
	return groups
}
