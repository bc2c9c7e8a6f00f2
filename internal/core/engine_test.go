package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/reportbot/reportbot/pkg/models"
)

// --- Test doubles ---

type staticConfig struct {
	cfg *models.BotConfig
}

func (s *staticConfig) Load() error                            { return nil }
func (s *staticConfig) Snapshot() *models.BotConfig            { return s.cfg }
func (s *staticConfig) Watch(onReload func(*models.BotConfig)) {}

func testConfig() *staticConfig {
	return &staticConfig{cfg: &models.BotConfig{
		Channels: []models.ChannelConfig{
			{ChannelID: "C001", DisplayName: "team-eng", SubteamLabel: "Engineering"},
			{ChannelID: "C002", DisplayName: "team-design", SubteamLabel: "Design"},
			{ChannelID: "C003", DisplayName: "team-eng-infra", SubteamLabel: "Engineering"},
		},
		MasterReportChannel: "C999",
		Timezone:            "UTC",
		AI:                  models.AIConfig{InputCharBudget: 24000},
	}}
}

// echoSummarizer produces deterministic summaries and records calls. When
// entered/block are set, SummarizeChannel signals entry and then parks until
// block is closed.
type echoSummarizer struct {
	mu           sync.Mutex
	channelCalls []string
	entered      chan struct{}
	block        chan struct{}
}

func (s *echoSummarizer) SummarizeChannel(_ context.Context, subteam string, contributions []models.Contribution) SummaryResult {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.channelCalls = append(s.channelCalls, subteam)
	s.mu.Unlock()
	if len(contributions) == 0 {
		return SummaryResult{Text: "No reports submitted."}
	}
	return SummaryResult{Text: fmt.Sprintf("%s summary of %d", subteam, len(contributions))}
}

func (s *echoSummarizer) GenerateMasterReport(_ context.Context, results []models.ChannelSummaryResult) SummaryResult {
	if len(results) == 0 {
		return SummaryResult{Text: "No reports submitted today."}
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.SubteamLabel
	}
	return SummaryResult{Text: "master: " + strings.Join(parts, ", ")}
}

func (s *echoSummarizer) SummarizeMeeting(_ context.Context, results []models.ChannelSummaryResult) SummaryResult {
	if len(results) == 0 {
		return SummaryResult{Text: "No meeting data available."}
	}
	return SummaryResult{Text: "meeting summary"}
}

type memoryArchive struct {
	mu      sync.Mutex
	records []models.AggregationRecord
	failErr error
}

func (a *memoryArchive) Append(record models.AggregationRecord) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failErr != nil {
		return "", a.failErr
	}
	id := fmt.Sprintf("rec-%d", len(a.records)+1)
	record.ID = id
	a.records = append(a.records, record)
	return id, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	posts   []models.AggregationRecord
	channel string
	failErr error
}

func (p *recordingPublisher) PublishMaster(_ context.Context, channelID string, record models.AggregationRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failErr != nil {
		return p.failErr
	}
	p.channel = channelID
	p.posts = append(p.posts, record)
	return nil
}

type recordingEvents struct {
	mu     sync.Mutex
	types  []string
	fields []map[string]any
}

func (r *recordingEvents) LogEvent(eventType string, data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
	r.fields = append(r.fields, data)
}

func (r *recordingEvents) find(eventType string) (map[string]any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.types {
		if t == eventType {
			return r.fields[i], true
		}
	}
	return nil, false
}

func newTestEngine(cfg ConfigStore, summarizer Summarizer, archive SummaryArchive, publisher MasterPublisher) (AggregationEngine, CollectionRegistry, ReportLedger) {
	var ledger ReportLedger
	reg := NewCollectionRegistry(func(channelID string) int {
		return ledger.Drop(channelID)
	}, nil)
	ledger = NewReportLedger(reg)
	engine := NewAggregationEngine(cfg, reg, ledger, summarizer, archive, publisher, nil)
	return engine, reg, ledger
}

// --- Tests ---

func TestRunCycle_EndToEnd(t *testing.T) {
	cfg := testConfig()
	summarizer := &echoSummarizer{}
	archive := &memoryArchive{}
	publisher := &recordingPublisher{}
	engine, reg, ledger := newTestEngine(cfg, summarizer, archive, publisher)

	reg.StartCollection("C001", "1111.0001")
	ledger.Record(contribution("C001", "U1", "shipped the parser"), "1111.0001")
	ledger.Record(contribution("C001", "U2", "fixed the flaky test"), "1111.0001")
	ledger.Record(contribution("C001", "U3", "on call, no progress"), "1111.0001")

	record, err := engine.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if record.ID != "rec-1" {
		t.Errorf("expected archived record ID rec-1, got %q", record.ID)
	}
	if record.TotalContributions != 3 {
		t.Errorf("expected 3 total contributions, got %d", record.TotalContributions)
	}
	if len(record.PerChannel) != 1 {
		t.Fatalf("expected one group (only C001 open), got %d", len(record.PerChannel))
	}
	group := record.PerChannel[0]
	if group.SubteamLabel != "Engineering" {
		t.Errorf("expected Engineering group, got %q", group.SubteamLabel)
	}
	if group.ContributionCount != 3 {
		t.Errorf("expected 3 contributions in group, got %d", group.ContributionCount)
	}
	if record.MeetingSummaryText == "" {
		t.Error("expected meeting summary on a non-degenerate cycle")
	}

	// Publication went to the master channel.
	if publisher.channel != "C999" {
		t.Errorf("expected publish to C999, got %q", publisher.channel)
	}

	// Collection state was reset.
	if reg.IsOpen("C001") {
		t.Error("expected window closed after cycle")
	}
	if len(ledger.Snapshot("C001")) != 0 {
		t.Error("expected ledger drained after cycle")
	}
}

func TestRunCycle_DegenerateCycleWithNoWindows(t *testing.T) {
	engine, _, _ := newTestEngine(testConfig(), &echoSummarizer{}, &memoryArchive{}, &recordingPublisher{})

	record, err := engine.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.MasterSummaryText != "No reports submitted today." {
		t.Errorf("expected degenerate sentinel, got %q", record.MasterSummaryText)
	}
	if record.TotalContributions != 0 || len(record.PerChannel) != 0 {
		t.Errorf("expected empty record, got %+v", record)
	}
	if record.MeetingSummaryText != "" {
		t.Error("degenerate cycle must not produce a meeting summary")
	}
}

func TestRunCycle_OpenWindowWithNoContributions(t *testing.T) {
	engine, reg, _ := newTestEngine(testConfig(), &echoSummarizer{}, &memoryArchive{}, &recordingPublisher{})
	reg.StartCollection("C002", "1111.0002")

	record, err := engine.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(record.PerChannel) != 1 {
		t.Fatalf("expected one group, got %d", len(record.PerChannel))
	}
	if record.PerChannel[0].SummaryText != "No reports submitted." {
		t.Errorf("expected empty-channel sentinel, got %q", record.PerChannel[0].SummaryText)
	}
}

func TestRunCycle_GroupsChannelsBySubteamInConfigOrder(t *testing.T) {
	summarizer := &echoSummarizer{}
	engine, reg, ledger := newTestEngine(testConfig(), summarizer, &memoryArchive{}, &recordingPublisher{})

	// Open in reverse config order; grouping must still follow the config.
	reg.StartCollection("C003", "1111.0003")
	reg.StartCollection("C002", "1111.0002")
	reg.StartCollection("C001", "1111.0001")
	ledger.Record(contribution("C001", "U1", "a"), "1111.0001")
	ledger.Record(contribution("C003", "U2", "b"), "1111.0003")

	record, err := engine.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(record.PerChannel) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(record.PerChannel))
	}
	eng := record.PerChannel[0]
	if eng.SubteamLabel != "Engineering" || record.PerChannel[1].SubteamLabel != "Design" {
		t.Errorf("expected config order Engineering, Design; got %s, %s",
			eng.SubteamLabel, record.PerChannel[1].SubteamLabel)
	}
	// C001 and C003 share the Engineering label and are summarized together.
	if eng.ContributionCount != 2 {
		t.Errorf("expected merged Engineering group with 2 contributions, got %d", eng.ContributionCount)
	}
	if len(eng.MemberChannelIDs) != 2 || eng.MemberChannelIDs[0] != "C001" || eng.MemberChannelIDs[1] != "C003" {
		t.Errorf("expected member channels [C001 C003], got %v", eng.MemberChannelIDs)
	}
}

func TestRunCycle_RejectsConcurrentCycle(t *testing.T) {
	summarizer := &echoSummarizer{entered: make(chan struct{}), block: make(chan struct{})}
	engine, reg, _ := newTestEngine(testConfig(), summarizer, &memoryArchive{}, &recordingPublisher{})
	reg.StartCollection("C001", "1111.0001")

	done := make(chan error, 1)
	go func() {
		_, err := engine.RunCycle(context.Background())
		done <- err
	}()

	// Wait until the first cycle is inside the summarizer.
	<-summarizer.entered

	if _, err := engine.RunCycle(context.Background()); !errors.Is(err, ErrCycleRunning) {
		t.Errorf("expected ErrCycleRunning, got %v", err)
	}

	close(summarizer.block)
	if err := <-done; err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}

	// The gate releases once the cycle completes.
	if _, err := engine.RunCycle(context.Background()); err != nil {
		t.Errorf("expected a fresh cycle to run after completion, got %v", err)
	}
}

func TestRunCycle_ArchiveFailureKeepsState(t *testing.T) {
	archive := &memoryArchive{failErr: errors.New("disk full")}
	publisher := &recordingPublisher{}
	engine, reg, ledger := newTestEngine(testConfig(), &echoSummarizer{}, archive, publisher)

	reg.StartCollection("C001", "1111.0001")
	ledger.Record(contribution("C001", "U1", "precious report"), "1111.0001")

	if _, err := engine.RunCycle(context.Background()); err == nil {
		t.Fatal("expected error from failed archive append")
	}

	// Nothing published, nothing reset: the cycle can be retried.
	if len(publisher.posts) != 0 {
		t.Error("archive failure must not publish the master report")
	}
	if !reg.IsOpen("C001") {
		t.Error("archive failure must leave the window open")
	}
	if len(ledger.Snapshot("C001")) != 1 {
		t.Error("archive failure must leave the ledger intact")
	}

	// Retry after the storage recovers.
	archive.failErr = nil
	record, err := engine.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if record.TotalContributions != 1 {
		t.Errorf("expected the retried cycle to carry the contribution, got %d", record.TotalContributions)
	}
}

func TestRunCycle_PublishFailureStillResets(t *testing.T) {
	publisher := &recordingPublisher{failErr: errors.New("slack is down")}
	engine, reg, ledger := newTestEngine(testConfig(), &echoSummarizer{}, &memoryArchive{}, publisher)

	reg.StartCollection("C001", "1111.0001")
	ledger.Record(contribution("C001", "U1", "a"), "1111.0001")

	record, err := engine.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("publish failure must not fail the cycle: %v", err)
	}
	if record.ID == "" {
		t.Error("expected the record to be archived despite the publish failure")
	}
	if reg.IsOpen("C001") {
		t.Error("expected windows closed: the record is durable")
	}
}

// degradedSummarizer fails channel summarization but succeeds on the rollups.
type degradedSummarizer struct {
	echoSummarizer
}

func (s *degradedSummarizer) SummarizeChannel(_ context.Context, _ string, contributions []models.Contribution) SummaryResult {
	return SummaryResult{
		Text:     fmt.Sprintf("Summary unavailable: %d report(s) received but could not be summarized.", len(contributions)),
		Degraded: true,
	}
}

func TestRunCycle_DegradedChannelStillProducesMaster(t *testing.T) {
	engine, reg, ledger := newTestEngine(testConfig(), &degradedSummarizer{}, &memoryArchive{}, &recordingPublisher{})

	reg.StartCollection("C001", "1111.0001")
	ledger.Record(contribution("C001", "U1", "a"), "1111.0001")
	ledger.Record(contribution("C001", "U2", "b"), "1111.0001")

	record, err := engine.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("a degraded summary must not fail the cycle: %v", err)
	}
	group := record.PerChannel[0]
	if !group.Degraded {
		t.Error("expected degraded flag on the group result")
	}
	want := "Summary unavailable: 2 report(s) received but could not be summarized."
	if group.SummaryText != want {
		t.Errorf("expected fallback text %q, got %q", want, group.SummaryText)
	}
	if record.MasterSummaryText == "" {
		t.Error("master summary must still be produced")
	}
}

func TestRunCycle_ReloadRemovedChannelLogsDroppedContributions(t *testing.T) {
	cfg := testConfig()
	cfg.cfg.Channels = append(cfg.cfg.Channels,
		models.ChannelConfig{ChannelID: "C777", DisplayName: "team-ops", SubteamLabel: "Ops"})

	events := &recordingEvents{}
	var ledger ReportLedger
	reg := NewCollectionRegistry(func(channelID string) int {
		return ledger.Drop(channelID)
	}, nil)
	ledger = NewReportLedger(reg)
	engine := NewAggregationEngine(cfg, reg, ledger, &echoSummarizer{}, &memoryArchive{}, &recordingPublisher{}, events)

	reg.StartCollection("C001", "1111.0001")
	reg.StartCollection("C777", "1111.0777")
	ledger.Record(contribution("C001", "U1", "kept"), "1111.0001")
	ledger.Record(contribution("C777", "U2", "lost"), "1111.0777")
	ledger.Record(contribution("C777", "U3", "also lost"), "1111.0777")

	// A hot reload removes the ops channel while its window is still open.
	cfg.cfg.Channels = cfg.cfg.Channels[:3]

	record, err := engine.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Only the configured channel is summarized.
	if len(record.PerChannel) != 1 || record.PerChannel[0].SubteamLabel != "Engineering" {
		t.Fatalf("expected only the Engineering group, got %+v", record.PerChannel)
	}
	if record.TotalContributions != 1 {
		t.Errorf("expected 1 summarized contribution, got %d", record.TotalContributions)
	}

	// The unconfigured channel's loss shows up in the event log.
	data, ok := events.find("cycle.dropped_unconfigured")
	if !ok {
		t.Fatal("expected a cycle.dropped_unconfigured event")
	}
	if data["channel"] != "C777" {
		t.Errorf("expected dropped channel C777, got %v", data["channel"])
	}
	if data["contributions"] != 2 {
		t.Errorf("expected 2 dropped contributions, got %v", data["contributions"])
	}

	// Its state is still fully reset with everything else.
	if reg.IsOpen("C777") {
		t.Error("expected the removed channel's window closed")
	}
	if len(ledger.Snapshot("C777")) != 0 {
		t.Error("expected the removed channel's ledger drained")
	}
}

func TestGroupBySubteam_SkipsClosedChannels(t *testing.T) {
	channels := testConfig().cfg.Channels
	groups := groupBySubteam(channels, map[string]bool{"C002": true})

	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].subteam != "Design" {
		t.Errorf("expected Design, got %s", groups[0].subteam)
	}
}
