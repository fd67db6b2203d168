package slack

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"flowpilot/app/pkg/logger"
	"flowpilot/app/pkg/types"
)

const requestTimeout = 10 * time.Second

type Client struct {
	httpClient *http.Client
	baseURL    string
	botToken   string
	userID     string
	channelIDs []string
}

func NewClient(botToken, userID string, channelIDs []string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    "https://slack.com/api",
		botToken:   botToken,
		userID:     userID,
		channelIDs: channelIDs,
	}
}

// NewClientWithBaseURL exists for tests against a local Slack stub.
func NewClientWithBaseURL(baseURL, botToken, userID string, channelIDs []string) *Client {
	c := NewClient(botToken, userID, channelIDs)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// Mentions scans the configured channels for messages mentioning the
// user, newer than sinceTs. Channels that fail to load are skipped.
func (c *Client) Mentions(ctx context.Context, sinceTs string) ([]types.SlackMention, error) {
	var mentions []types.SlackMention
	mentionToken := "<@" + c.userID + ">"

	for _, channelID := range c.channelIDs {
		params := url.Values{}
		params.Set("channel", channelID)
		params.Set("limit", "100")
		if sinceTs != "" {
			params.Set("oldest", sinceTs)
		}

		raw, err := c.get(ctx, "/conversations.history", params)
		if err != nil {
			logger.Error("slack history failed for channel %s: %v", channelID, err)
			continue
		}
		parsed := gjson.Parse(raw)
		if !parsed.Get("ok").Bool() {
			logger.Error("slack history not ok for channel %s: %s", channelID, parsed.Get("error").String())
			continue
		}

		parsed.Get("messages").ForEach(func(_, msg gjson.Result) bool {
			text := msg.Get("text").String()
			ts := msg.Get("ts").String()
			if text == "" || ts == "" {
				return true
			}
			if msg.Get("subtype").Exists() {
				return true
			}
			if c.userID != "" && !strings.Contains(text, mentionToken) {
				return true
			}
			mentions = append(mentions, types.SlackMention{
				ChannelID: channelID,
				Text:      text,
				Ts:        ts,
			})
			return true
		})
	}
	return mentions, nil
}

// ThreadSummary joins a thread's messages into a plain-text transcript.
func (c *Client) ThreadSummary(ctx context.Context, channelID, threadTs string) (string, error) {
	params := url.Values{}
	params.Set("channel", channelID)
	params.Set("ts", threadTs)
	params.Set("limit", "100")

	raw, err := c.get(ctx, "/conversations.replies", params)
	if err != nil {
		return "", err
	}
	parsed := gjson.Parse(raw)
	if !parsed.Get("ok").Bool() {
		return "", fmt.Errorf("slack replies not ok: %s", parsed.Get("error").String())
	}

	var lines []string
	parsed.Get("messages").ForEach(func(_, msg gjson.Result) bool {
		if text := strings.TrimSpace(msg.Get("text").String()); text != "" {
			lines = append(lines, msg.Get("text").String())
		}
		return true
	})
	if len(lines) == 0 {
		return "No messages found in this thread.", nil
	}
	return strings.Join(lines, "\n"), nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.botToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("slack request %s: status %d", path, resp.StatusCode)
	}
	return string(body), nil
}
