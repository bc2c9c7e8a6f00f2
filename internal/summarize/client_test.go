package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reportbot/reportbot/pkg/models"
)

func respondWith(t *testing.T, w http.ResponseWriter, text string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": text}},
		},
	})
	if err != nil {
		t.Fatalf("encoding response: %v", err)
	}
}

func testClient(baseURL string) *Client {
	return NewClient(Options{
		APIKey:      "test-key",
		Model:       "test-model",
		BaseURL:     baseURL,
		BackoffBase: time.Millisecond,
	})
}

func someContributions(n int) []models.Contribution {
	out := make([]models.Contribution, n)
	for i := range out {
		out[i] = models.Contribution{
			ChannelID:         "C001",
			AuthorID:          fmt.Sprintf("U%d", i),
			AuthorDisplayName: fmt.Sprintf("user%d", i),
			Text:              fmt.Sprintf("report %d", i),
			ArrivedAt:         time.Now().UTC(),
		}
	}
	return out
}

func TestSummarizeChannel_EmptyBatchReturnsSentinel(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	result := testClient(srv.URL).SummarizeChannel(context.Background(), "Engineering", nil)
	if result.Text != SentinelNoReports {
		t.Errorf("expected %q, got %q", SentinelNoReports, result.Text)
	}
	if result.Degraded {
		t.Error("empty batch must not be degraded")
	}
	if called {
		t.Error("empty batch must not call the provider")
	}
}

func TestSummarizeChannel_Success(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		gotPrompt = req.Messages[0].Content
		respondWith(t, w, "the team shipped things")
	}))
	defer srv.Close()

	result := testClient(srv.URL).SummarizeChannel(context.Background(), "Engineering", someContributions(2))
	if result.Text != "the team shipped things" {
		t.Errorf("unexpected summary %q", result.Text)
	}
	if result.Degraded || result.Truncated {
		t.Errorf("unexpected flags: %+v", result)
	}
	if !strings.Contains(gotPrompt, "Engineering team") {
		t.Errorf("prompt missing subteam name:\n%s", gotPrompt)
	}
	if !strings.Contains(gotPrompt, "**user0**: report 0") {
		t.Errorf("prompt missing transcript line:\n%s", gotPrompt)
	}
}

func TestSummarizeChannel_FallbackAfterExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	result := testClient(srv.URL).SummarizeChannel(context.Background(), "Engineering", someContributions(4))
	if !result.Degraded {
		t.Fatal("expected degraded result")
	}
	want := "Summary unavailable: 4 report(s) received but could not be summarized."
	if result.Text != want {
		t.Errorf("expected %q, got %q", want, result.Text)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestSummarizeChannel_RetriesOn429ThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		respondWith(t, w, "recovered")
	}))
	defer srv.Close()

	result := testClient(srv.URL).SummarizeChannel(context.Background(), "Engineering", someContributions(1))
	if result.Degraded {
		t.Fatal("expected success after retry")
	}
	if result.Text != "recovered" {
		t.Errorf("unexpected text %q", result.Text)
	}
}

func TestSummarizeChannel_DoesNotRetryAuthFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := testClient(srv.URL).SummarizeChannel(context.Background(), "Engineering", someContributions(1))
	if !result.Degraded {
		t.Fatal("expected degraded result")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected a single attempt for a 401, got %d", got)
	}
}

func TestSummarizeChannel_TruncatesOldestFirst(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotPrompt = req.Messages[0].Content
		respondWith(t, w, "ok")
	}))
	defer srv.Close()

	client := NewClient(Options{
		APIKey:          "test-key",
		BaseURL:         srv.URL,
		InputCharBudget: 60,
		BackoffBase:     time.Millisecond,
	})

	contributions := []models.Contribution{
		{AuthorDisplayName: "old", Text: strings.Repeat("x", 50)},
		{AuthorDisplayName: "new", Text: "kept"},
	}
	result := client.SummarizeChannel(context.Background(), "Engineering", contributions)
	if !result.Truncated {
		t.Error("expected truncated flag")
	}
	if strings.Contains(gotPrompt, "**old**") {
		t.Error("oldest contribution should have been dropped")
	}
	if !strings.Contains(gotPrompt, "**new**: kept") {
		t.Errorf("newest contribution missing from prompt:\n%s", gotPrompt)
	}
}

func TestGenerateMasterReport_EmptyReturnsSentinel(t *testing.T) {
	result := testClient("http://127.0.0.1:0").GenerateMasterReport(context.Background(), nil)
	if result.Text != SentinelNoReportsToday {
		t.Errorf("expected %q, got %q", SentinelNoReportsToday, result.Text)
	}
}

func TestGenerateMasterReport_FallbackCountsAllContributions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	results := []models.ChannelSummaryResult{
		{SubteamLabel: "Engineering", SummaryText: "a", ContributionCount: 3},
		{SubteamLabel: "Design", SummaryText: "b", ContributionCount: 2},
	}
	result := testClient(srv.URL).GenerateMasterReport(context.Background(), results)
	if !result.Degraded {
		t.Fatal("expected degraded result")
	}
	if !strings.Contains(result.Text, "5 report(s)") {
		t.Errorf("fallback should count all contributions, got %q", result.Text)
	}
}

func TestSummarizeMeeting_EmptyReturnsSentinel(t *testing.T) {
	result := testClient("http://127.0.0.1:0").SummarizeMeeting(context.Background(), nil)
	if result.Text != SentinelNoMeetingData {
		t.Errorf("expected %q, got %q", SentinelNoMeetingData, result.Text)
	}
}

func TestSummarizeMeeting_PromptIncludesEveryTeam(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotPrompt = req.Messages[0].Content
		respondWith(t, w, "meeting notes")
	}))
	defer srv.Close()

	results := []models.ChannelSummaryResult{
		{SubteamLabel: "Engineering", SummaryText: "eng summary", ContributionCount: 1},
		{SubteamLabel: "Design", SummaryText: "design summary", ContributionCount: 2},
	}
	result := testClient(srv.URL).SummarizeMeeting(context.Background(), results)
	if result.Text != "meeting notes" {
		t.Errorf("unexpected text %q", result.Text)
	}
	if !strings.Contains(gotPrompt, "**Engineering** (1 report)") {
		t.Errorf("prompt missing Engineering header:\n%s", gotPrompt)
	}
	if !strings.Contains(gotPrompt, "**Design** (2 reports)") {
		t.Errorf("prompt missing Design header:\n%s", gotPrompt)
	}
}

func TestComplete_ContextCancellationStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(Options{
		APIKey:      "test-key",
		BaseURL:     srv.URL,
		BackoffBase: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	result := client.SummarizeChannel(ctx, "Engineering", someContributions(1))
	if !result.Degraded {
		t.Error("expected degraded result on cancelled context")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation should short-circuit the backoff, took %s", elapsed)
	}
}

func TestBuildTranscript_SingleOversizeContributionKept(t *testing.T) {
	contributions := []models.Contribution{
		{AuthorDisplayName: "only", Text: strings.Repeat("y", 500)},
	}
	transcript, truncated := buildTranscript(contributions, 10)
	if truncated {
		t.Error("a single contribution is never reported truncated")
	}
	if !strings.Contains(transcript, "**only**") {
		t.Error("the most recent contribution must always be kept")
	}
}
