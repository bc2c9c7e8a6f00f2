// Package summarize implements the OpenRouter summarization client: prompt
// assembly, input truncation, retry with exponential backoff, and graceful
// fallback when the provider is unreachable.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/reportbot/reportbot/pkg/models"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// Fixed result texts. SentinelNoReports is returned for an empty channel
// without calling the provider; SentinelNoReportsToday is the degenerate
// cycle's master summary.
const (
	SentinelNoReports      = "No reports submitted."
	SentinelNoReportsToday = "No reports submitted today."
	SentinelNoMeetingData  = "No meeting data available."
)

// Result is the outcome of one summarization call. Provider failures after
// exhausted retries produce a degraded Result, never an error.
type Result struct {
	Text      string
	Degraded  bool
	Truncated bool
}

// Options configures a Client.
type Options struct {
	APIKey          string
	Model           string
	MaxOutputTokens int
	// InputCharBudget bounds the concatenated transcript passed to the
	// provider; oldest contributions are dropped first when exceeded.
	InputCharBudget int
	// BaseURL overrides the OpenRouter endpoint, for tests.
	BaseURL string
	// Timeout bounds each individual provider call. Defaults to 30s.
	Timeout time.Duration
	// BackoffBase is the first retry delay, doubled per attempt. Defaults
	// to 1s.
	BackoffBase time.Duration
}

// Client calls the OpenRouter chat-completions API. It is stateless and safe
// for concurrent use.
type Client struct {
	apiKey          string
	model           string
	maxOutputTokens int
	inputCharBudget int
	baseURL         string
	backoffBase     time.Duration
	http            *http.Client
}

// NewClient creates a summarization Client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.InputCharBudget <= 0 {
		opts.InputCharBudget = 24000
	}
	return &Client{
		apiKey:          opts.APIKey,
		model:           opts.Model,
		maxOutputTokens: opts.MaxOutputTokens,
		inputCharBudget: opts.InputCharBudget,
		baseURL:         opts.BaseURL,
		backoffBase:     opts.BackoffBase,
		http:            &http.Client{Timeout: opts.Timeout},
	}
}

// SummarizeChannel summarizes one subteam group's contributions in arrival
// order. An empty batch returns SentinelNoReports without a provider call.
func (c *Client) SummarizeChannel(ctx context.Context, subteam string, contributions []models.Contribution) Result {
	if len(contributions) == 0 {
		return Result{Text: SentinelNoReports}
	}

	transcript, truncated := buildTranscript(contributions, c.inputCharBudget)
	prompt := fmt.Sprintf(`Summarize the following daily reports from the %s team.

Team reports:
%s

Create a concise 2-3 sentence summary covering:
- Main accomplishments
- Any blockers or challenges
- Key themes

Write ONLY the summary. Do not include meta-commentary, notes, or explanations about your process.`, subteam, transcript)

	text, err := c.complete(ctx, prompt)
	if err != nil {
		return Result{Text: fallbackText(len(contributions)), Degraded: true, Truncated: truncated}
	}
	return Result{Text: text, Truncated: truncated}
}

// GenerateMasterReport rolls all group summaries up into one executive
// summary. Empty input returns SentinelNoReportsToday without a provider call.
func (c *Client) GenerateMasterReport(ctx context.Context, results []models.ChannelSummaryResult) Result {
	if len(results) == 0 {
		return Result{Text: SentinelNoReportsToday}
	}

	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "**%s**:\n%s", r.SubteamLabel, r.SummaryText)
	}

	prompt := fmt.Sprintf(`Create a master daily report from these team summaries:

%s

Write a brief executive summary (2-3 paragraphs) covering:
1. Overall accomplishments across all teams today
2. Any cross-team themes or patterns
3. Notable blockers or challenges

Write ONLY the executive summary. Do not include notes, meta-commentary, placeholders, or instructions.`, sb.String())

	text, err := c.complete(ctx, prompt)
	if err != nil {
		total := 0
		for _, r := range results {
			total += r.ContributionCount
		}
		return Result{Text: fallbackText(total), Degraded: true}
	}
	return Result{Text: text}
}

// SummarizeMeeting produces the meeting-focused Q&A summary posted as a
// thread reply under the master report.
func (c *Client) SummarizeMeeting(ctx context.Context, results []models.ChannelSummaryResult) Result {
	if len(results) == 0 {
		return Result{Text: SentinelNoMeetingData}
	}

	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "**%s** (%s):\n%s", r.SubteamLabel, pluralReports(r.ContributionCount), r.SummaryText)
	}

	prompt := fmt.Sprintf(`Based on the following team summaries, answer the questions:

1. What was accomplished in the previous meeting?
2. Which goals were met or not met, and why?
3. Identify any blockers or risks.
4. What are the next-meeting goals and projected milestones?

Team Summaries:
%s

Provide concise bullet points for each question.`, sb.String())

	text, err := c.complete(ctx, prompt)
	if err != nil {
		total := 0
		for _, r := range results {
			total += r.ContributionCount
		}
		return Result{Text: fallbackText(total), Degraded: true}
	}
	return Result{Text: text}
}

// fallbackText is the documented degraded placeholder used when the provider
// call fails irrecoverably.
func fallbackText(n int) string {
	return fmt.Sprintf("Summary unavailable: %d report(s) received but could not be summarized.", n)
}

func pluralReports(n int) string {
	if n == 1 {
		return "1 report"
	}
	return fmt.Sprintf("%d reports", n)
}

// buildTranscript concatenates "author: text" lines in arrival order,
// dropping oldest contributions first when the character budget is exceeded.
// The most recent contribution is always kept, even if it alone exceeds the
// budget.
func buildTranscript(contributions []models.Contribution, budget int) (string, bool) {
	lines := make([]string, len(contributions))
	for i, c := range contributions {
		lines[i] = fmt.Sprintf("**%s**: %s", c.AuthorDisplayName, c.Text)
	}

	start := len(lines) - 1
	total := len(lines[start])
	for start > 0 {
		next := total + len("\n\n") + len(lines[start-1])
		if next > budget {
			break
		}
		total = next
		start--
	}
	return strings.Join(lines[start:], "\n\n"), start > 0
}

// --- OpenRouter wire types ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Provider  *providerOpts `json:"provider,omitempty"`
}

type providerOpts struct {
	Sort string `json:"sort,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// maxAttempts is one initial call plus two retries on transient failures.
const maxAttempts = 3

// complete performs the chat-completions call with exponential backoff on
// transient failures (timeouts, 429, 5xx). Authentication and
// malformed-request errors are not retried.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: c.maxOutputTokens,
		Provider:  &providerOpts{Sort: "throughput"},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling completion request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoffBase << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, retryable, err := c.once(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}
	return "", fmt.Errorf("completion failed after %d attempts: %w", maxAttempts, lastErr)
}

// once performs a single provider call and reports whether a failure is
// retryable.
func (c *Client) once(ctx context.Context, body []byte) (text string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("building completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Title", "reportbot")

	resp, err := c.http.Do(req)
	if err != nil {
		// Network errors and timeouts are transient.
		return "", true, fmt.Errorf("calling completion endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", retryable, fmt.Errorf("completion endpoint returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false, fmt.Errorf("decoding completion response: %w", err)
	}
	if parsed.Error != nil {
		return "", false, fmt.Errorf("completion endpoint error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("completion response contained no choices")
	}
	return parsed.Choices[0].Message.Content, false, nil
}
