package cli

import (
	"github.com/reportbot/reportbot/internal/core"
	"github.com/reportbot/reportbot/internal/observability"
	"github.com/reportbot/reportbot/internal/scheduler"
	"github.com/reportbot/reportbot/internal/slack"
	"github.com/reportbot/reportbot/internal/storage"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath string

	Config    core.ConfigStore
	Registry  core.CollectionRegistry
	Ledger    core.ReportLedger
	Engine    core.AggregationEngine
	Archive   storage.ArchiveManager
	Collector *slack.Collector
	Transport slack.Transport
	Sched     *scheduler.Scheduler

	Events      core.EventLogger
	EventLog    observability.EventLog
	MetricsCalc observability.MetricsCalculator
)
