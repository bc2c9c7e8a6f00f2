// Package internal provides the App struct that wires all components of the
// report bot together and initializes the CLI layer.
package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/reportbot/reportbot/internal/cli"
	"github.com/reportbot/reportbot/internal/core"
	"github.com/reportbot/reportbot/internal/observability"
	"github.com/reportbot/reportbot/internal/scheduler"
	"github.com/reportbot/reportbot/internal/slack"
	"github.com/reportbot/reportbot/internal/storage"
	"github.com/reportbot/reportbot/internal/summarize"
	"github.com/reportbot/reportbot/pkg/models"
)

// App holds all service dependencies for the report bot.
type App struct {
	BasePath string

	// Configuration
	Config core.ConfigStore

	// Collection state
	Registry core.CollectionRegistry
	Ledger   core.ReportLedger

	// Summarization and aggregation
	Summarizer *summarize.Client
	Engine     core.AggregationEngine

	// Storage layer
	Archive storage.ArchiveManager

	// Slack layer
	Transport slack.Transport
	Collector *slack.Collector
	Publisher *slack.Publisher

	// Scheduling
	Sched *scheduler.Scheduler

	// Observability
	EventLog    observability.EventLog
	MetricsCalc observability.MetricsCalculator
}

// NewApp creates and wires all components of the report bot. basePath is the
// directory holding reportbot.yaml, the summary archive, and the event log.
func NewApp(basePath string) (*App, error) {
	// Secrets come from the environment; a .env file next to the config is
	// honored but not required.
	_ = godotenv.Load(filepath.Join(basePath, ".env"))

	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.Config = core.NewConfigStore(basePath)
	if err := app.Config.Load(); err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	// --- Observability ---
	eventLogPath := filepath.Join(basePath, ".reportbot_events.jsonl")
	eventLog, err := observability.NewJSONLEventLog(eventLogPath)
	if err != nil {
		// Non-fatal: disable observability if the log can't be created.
		eventLog = nil
	}
	app.EventLog = eventLog

	var events core.EventLogger
	if app.EventLog != nil {
		events = &eventLogAdapter{log: app.EventLog}
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}

	// --- Collection state ---
	// The registry's discard hook drops a channel's ledgered contributions
	// when its window is replaced. The ledger is created right after, so the
	// hook closes over the App field rather than a local.
	discard := func(channelID string) int {
		if app.Ledger == nil {
			return 0
		}
		return app.Ledger.Drop(channelID)
	}
	onReplaced := func(channelID string, discarded int) {
		if events != nil {
			events.LogEvent("window.replaced", map[string]any{
				"channel":   channelID,
				"discarded": discarded,
			})
		}
	}
	app.Registry = core.NewCollectionRegistry(discard, onReplaced)
	app.Ledger = core.NewReportLedger(app.Registry)

	// --- Summarization ---
	cfg := app.Config.Snapshot()
	app.Summarizer = summarize.NewClient(summarize.Options{
		APIKey:          os.Getenv("OPENROUTER_API_KEY"),
		Model:           cfg.AI.Model,
		MaxOutputTokens: cfg.AI.MaxOutputTokens,
		InputCharBudget: cfg.AI.InputCharBudget,
	})

	// --- Storage layer ---
	archivePath := filepath.Join(basePath, "summaries.jsonl")
	app.Archive, err = storage.NewJSONLArchive(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening summary archive: %w", err)
	}

	// --- Slack layer ---
	app.Transport = slack.NewClient(os.Getenv("SLACK_BOT_TOKEN"))
	app.Publisher = slack.NewPublisher(app.Transport)
	app.Collector = slack.NewCollector(app.Config, app.Registry, app.Ledger, app.Transport, events)

	// --- Aggregation engine ---
	app.Engine = core.NewAggregationEngine(
		app.Config,
		app.Registry,
		app.Ledger,
		&summarizerAdapter{client: app.Summarizer, events: events},
		app.Archive,
		app.Publisher,
		events,
	)

	// --- Scheduler ---
	app.Sched = scheduler.New(app.Config, app.Engine, events)

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Config = app.Config
	cli.Registry = app.Registry
	cli.Ledger = app.Ledger
	cli.Engine = app.Engine
	cli.Archive = app.Archive
	cli.Collector = app.Collector
	cli.Transport = app.Transport
	cli.Sched = app.Sched

	cli.Events = events
	cli.EventLog = app.EventLog
	cli.MetricsCalc = app.MetricsCalc

	return app, nil
}

// Close releases resources held by the App, such as the event log and the
// archive file handles. Safe to call with nil members.
func (a *App) Close() error {
	var firstErr error
	if a.Archive != nil {
		if err := a.Archive.Close(); err != nil {
			firstErr = err
		}
	}
	if a.EventLog != nil {
		if err := a.EventLog.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ResolveBasePath determines the directory holding the bot's config and data.
// It checks the REPORTBOT_HOME env var, then walks up from the current
// directory looking for reportbot.yaml, falling back to the cwd.
func ResolveBasePath() string {
	if home := os.Getenv("REPORTBOT_HOME"); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "reportbot.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cwd, _ := os.Getwd()
	return cwd
}

// --- Adapters ---

// summarizerAdapter adapts summarize.Client to core.Summarizer and logs
// degraded results as they happen.
type summarizerAdapter struct {
	client *summarize.Client
	events core.EventLogger
}

func (a *summarizerAdapter) SummarizeChannel(ctx context.Context, subteam string, contributions []models.Contribution) core.SummaryResult {
	r := a.client.SummarizeChannel(ctx, subteam, contributions)
	a.observe("channel", subteam, r)
	return core.SummaryResult{Text: r.Text, Degraded: r.Degraded, Truncated: r.Truncated}
}

func (a *summarizerAdapter) GenerateMasterReport(ctx context.Context, results []models.ChannelSummaryResult) core.SummaryResult {
	r := a.client.GenerateMasterReport(ctx, results)
	a.observe("master", "", r)
	return core.SummaryResult{Text: r.Text, Degraded: r.Degraded, Truncated: r.Truncated}
}

func (a *summarizerAdapter) SummarizeMeeting(ctx context.Context, results []models.ChannelSummaryResult) core.SummaryResult {
	r := a.client.SummarizeMeeting(ctx, results)
	a.observe("meeting", "", r)
	return core.SummaryResult{Text: r.Text, Degraded: r.Degraded, Truncated: r.Truncated}
}

func (a *summarizerAdapter) observe(kind, subteam string, r summarize.Result) {
	if a.events == nil || !r.Degraded {
		return
	}
	a.events.LogEvent("summary.degraded", map[string]any{
		"kind":    kind,
		"subteam": subteam,
	})
}

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) {
	_ = a.log.Write(observability.NewEvent(observability.EventType(eventType), data))
}
