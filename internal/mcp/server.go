// Package mcp provides an MCP (Model Context Protocol) server that exposes
// reportbot functionality as MCP tools for AI assistants.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reportbot/reportbot/internal/core"
	"github.com/reportbot/reportbot/internal/observability"
	"github.com/reportbot/reportbot/internal/storage"
	"github.com/reportbot/reportbot/pkg/models"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps reportbot services and exposes them as MCP tools.
type Server struct {
	server      *gomcp.Server
	engine      core.AggregationEngine
	archive     storage.ArchiveManager
	metricsCalc observability.MetricsCalculator
}

// NewServer creates a new MCP server with the given service dependencies.
// metricsCalc may be nil if observability is disabled.
func NewServer(engine core.AggregationEngine, archive storage.ArchiveManager, metricsCalc observability.MetricsCalculator, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		engine:      engine,
		archive:     archive,
		metricsCalc: metricsCalc,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "reportbot", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type triggerReportInput struct{}

type triggerReportOutput struct {
	RecordID           string `json:"record_id"`
	Date               string `json:"date"`
	TotalContributions int    `json:"total_contributions"`
	Teams              int    `json:"teams"`
	Message            string `json:"message"`
}

type listSummariesInput struct {
	Limit  int `json:"limit,omitempty" jsonschema:"maximum number of records to return (default 10)"`
	Offset int `json:"offset,omitempty" jsonschema:"number of records to skip, newest first"`
}

type summaryOutput struct {
	ID                 string              `json:"id"`
	Date               string              `json:"date"`
	MasterSummary      string              `json:"master_summary"`
	MeetingSummary     string              `json:"meeting_summary,omitempty"`
	TotalContributions int                 `json:"total_contributions"`
	Teams              []teamSummaryOutput `json:"teams,omitempty"`
	Created            string              `json:"created"`
}

type teamSummaryOutput struct {
	Subteam       string `json:"subteam"`
	Summary       string `json:"summary"`
	Contributions int    `json:"contributions"`
	Degraded      bool   `json:"degraded,omitempty"`
	Truncated     bool   `json:"truncated,omitempty"`
}

type listSummariesOutput struct {
	Summaries []summaryOutput `json:"summaries"`
	Count     int             `json:"count"`
}

type getSummaryInput struct {
	RecordID string `json:"record_id" jsonschema:"required,the aggregation record identifier"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 24h, defaults to 7d)"`
}

type metricsOutput struct {
	WindowsOpened         int            `json:"windows_opened"`
	WindowsReplaced       int            `json:"windows_replaced"`
	ContributionsAccepted int            `json:"contributions_accepted"`
	IngestRejections      map[string]int `json:"ingest_rejections"`
	CyclesCompleted       int            `json:"cycles_completed"`
	CyclesFailed          int            `json:"cycles_failed"`
	DegradedSummaries     int            `json:"degraded_summaries"`
	EventCount            int            `json:"event_count"`
	OldestEvent           string         `json:"oldest_event,omitempty"`
	NewestEvent           string         `json:"newest_event,omitempty"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "trigger_report",
		Description: "Run a full aggregation cycle now: summarize every channel with an open collection window, post the master report, archive the record, and reset collection state.",
	}, s.handleTriggerReport)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_summaries",
		Description: "List archived report cycles, newest first, with master summary text and per-team details.",
	}, s.handleListSummaries)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_summary",
		Description: "Get a single archived aggregation record by its ID, including the master summary, every team summary, and the meeting summary if present.",
	}, s.handleGetSummary)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get ingestion and cycle metrics derived from the event log (windows opened, contributions accepted, rejections, cycles, degraded summaries).",
	}, s.handleGetMetrics)
}

// --- Tool handlers ---

func (s *Server) handleTriggerReport(ctx context.Context, _ *gomcp.CallToolRequest, _ triggerReportInput) (*gomcp.CallToolResult, triggerReportOutput, error) {
	record, err := s.engine.RunCycle(ctx)
	if err != nil {
		if errors.Is(err, core.ErrCycleRunning) {
			return errorResult("a report cycle is already running"), triggerReportOutput{}, nil
		}
		return errorResult(fmt.Sprintf("running report cycle: %s", err)), triggerReportOutput{}, nil
	}

	out := triggerReportOutput{
		RecordID:           record.ID,
		Date:               record.Date,
		TotalContributions: record.TotalContributions,
		Teams:              len(record.PerChannel),
		Message:            fmt.Sprintf("cycle complete: %d contribution(s) across %d team(s)", record.TotalContributions, len(record.PerChannel)),
	}
	return nil, out, nil
}

func (s *Server) handleListSummaries(_ context.Context, _ *gomcp.CallToolRequest, input listSummariesInput) (*gomcp.CallToolResult, listSummariesOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	records, err := s.archive.ListRecent(limit, input.Offset)
	if err != nil {
		return errorResult(fmt.Sprintf("listing summaries: %s", err)), listSummariesOutput{}, nil
	}

	out := listSummariesOutput{
		Summaries: make([]summaryOutput, len(records)),
		Count:     len(records),
	}
	for i, r := range records {
		out.Summaries[i] = recordToOutput(&r)
	}
	return nil, out, nil
}

func (s *Server) handleGetSummary(_ context.Context, _ *gomcp.CallToolRequest, input getSummaryInput) (*gomcp.CallToolResult, summaryOutput, error) {
	if input.RecordID == "" {
		return errorResult("record_id is required"), summaryOutput{}, nil
	}

	record, err := s.archive.GetByID(input.RecordID)
	if err != nil {
		return errorResult(fmt.Sprintf("getting record %s: %s", input.RecordID, err)), summaryOutput{}, nil
	}
	if record == nil {
		return errorResult(fmt.Sprintf("record %s not found", input.RecordID)), summaryOutput{}, nil
	}

	return nil, recordToOutput(record), nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (observability may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := parseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		WindowsOpened:         metrics.WindowsOpened,
		WindowsReplaced:       metrics.WindowsReplaced,
		ContributionsAccepted: metrics.ContributionsAccepted,
		IngestRejections:      metrics.IngestRejections,
		CyclesCompleted:       metrics.CyclesCompleted,
		CyclesFailed:          metrics.CyclesFailed,
		DegradedSummaries:     metrics.DegradedSummaries,
		EventCount:            metrics.EventCount,
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

// --- Helpers ---

func recordToOutput(r *models.AggregationRecord) summaryOutput {
	out := summaryOutput{
		ID:                 r.ID,
		Date:               r.Date,
		MasterSummary:      r.MasterSummaryText,
		MeetingSummary:     r.MeetingSummaryText,
		TotalContributions: r.TotalContributions,
		Teams:              make([]teamSummaryOutput, len(r.PerChannel)),
		Created:            r.CreatedAt.Format(time.RFC3339),
	}
	for i, s := range r.PerChannel {
		out.Teams[i] = teamSummaryOutput{
			Subteam:       s.SubteamLabel,
			Summary:       s.SummaryText,
			Contributions: s.ContributionCount,
			Degraded:      s.Degraded,
			Truncated:     s.Truncated,
		}
	}
	return out
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		IngestRejections: make(map[string]int),
	}
}

// errorResult creates a CallToolResult carrying an error message so the
// calling assistant sees the failure instead of a protocol error.
func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a relative duration like "7d" or "24h" into an absolute
// cutoff time.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
