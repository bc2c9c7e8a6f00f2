// Package slack provides the messaging-transport integration: a thin Web API
// client, Block Kit message building, the inbound event server, and the
// contribution collector.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultAPIURL = "https://slack.com/api"

// Transport defines the Slack operations the bot consumes. Implemented by
// Client; faked in tests.
type Transport interface {
	// PostMessage posts text with optional blocks and returns the message
	// timestamp, which anchors reply threads.
	PostMessage(ctx context.Context, channelID, text string, blocks []Block) (string, error)
	// PostThreadReply posts into an existing thread.
	PostThreadReply(ctx context.Context, channelID, threadTS, text string, blocks []Block) error
	PostEphemeral(ctx context.Context, channelID, userID, text string) error
	// AddReaction reacts to a message as an acknowledgment signal.
	AddReaction(ctx context.Context, channelID, timestamp, name string) error
	// UserDisplayName resolves a user ID to a display name.
	UserDisplayName(ctx context.Context, userID string) (string, error)
}

// Client is a minimal Slack Web API client.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a Client authenticated with the given bot token.
func NewClient(token string) *Client {
	return &Client{
		token:   token,
		baseURL: defaultAPIURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// NewClientWithBaseURL creates a Client against a non-default API endpoint,
// for tests.
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	TS    string `json:"ts,omitempty"`
	User  *struct {
		Name    string `json:"name"`
		Profile struct {
			RealName    string `json:"real_name"`
			DisplayName string `json:"display_name"`
		} `json:"profile"`
	} `json:"user,omitempty"`
}

func (c *Client) PostMessage(ctx context.Context, channelID, text string, blocks []Block) (string, error) {
	payload := map[string]any{"channel": channelID, "text": text}
	if len(blocks) > 0 {
		payload["blocks"] = blocks
	}
	resp, err := c.call(ctx, "chat.postMessage", payload)
	if err != nil {
		return "", err
	}
	return resp.TS, nil
}

func (c *Client) PostThreadReply(ctx context.Context, channelID, threadTS, text string, blocks []Block) error {
	payload := map[string]any{"channel": channelID, "thread_ts": threadTS, "text": text}
	if len(blocks) > 0 {
		payload["blocks"] = blocks
	}
	_, err := c.call(ctx, "chat.postMessage", payload)
	return err
}

func (c *Client) PostEphemeral(ctx context.Context, channelID, userID, text string) error {
	_, err := c.call(ctx, "chat.postEphemeral", map[string]any{
		"channel": channelID,
		"user":    userID,
		"text":    text,
	})
	return err
}

func (c *Client) AddReaction(ctx context.Context, channelID, timestamp, name string) error {
	_, err := c.call(ctx, "reactions.add", map[string]any{
		"channel":   channelID,
		"timestamp": timestamp,
		"name":      name,
	})
	return err
}

// UserDisplayName resolves the user's real name, falling back to the profile
// display name and then the handle.
func (c *Client) UserDisplayName(ctx context.Context, userID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/users.info?user="+url.QueryEscape(userID), nil)
	if err != nil {
		return "", fmt.Errorf("building users.info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling users.info: %w", err)
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding users.info response: %w", err)
	}
	if !parsed.OK {
		return "", fmt.Errorf("users.info failed: %s", parsed.Error)
	}
	if parsed.User == nil {
		return "", fmt.Errorf("users.info returned no user")
	}
	if name := parsed.User.Profile.RealName; name != "" {
		return name, nil
	}
	if name := parsed.User.Profile.DisplayName; name != "" {
		return name, nil
	}
	return parsed.User.Name, nil
}

func (c *Client) call(ctx context.Context, method string, payload map[string]any) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", method, resp.StatusCode)
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("%s failed: %s", method, parsed.Error)
	}
	return &parsed, nil
}
