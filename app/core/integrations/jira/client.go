package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"flowpilot/app/core/tasks"
	"flowpilot/app/pkg/types"
)

const requestTimeout = 10 * time.Second

const assignedJQL = "assignee = currentUser() AND statusCategory != Done ORDER BY priority DESC"

var issueKeyRe = regexp.MustCompile(`^[A-Z][A-Z0-9]+-\d+$`)

type Client struct {
	httpClient *http.Client
	baseURL    string
	email      string
	token      string
}

type IssueDetail struct {
	Key         string
	Title       string
	Description string
	URL         string
	Status      string
}

func NewClient(baseURL, email, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		email:      email,
		token:      token,
	}
}

// FetchAssigned returns the user's open Jira issues ordered by priority.
func (c *Client) FetchAssigned(ctx context.Context) ([]types.Task, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"jql":        assignedJQL,
		"maxResults": 50,
		"fields":     []string{"summary", "description", "status", "priority", "duedate"},
	})

	raw, err := c.do(ctx, http.MethodPost, c.baseURL+"/rest/api/3/search/jql", payload)
	if err != nil {
		return nil, err
	}
	return tasks.NormalizeJiraIssues(raw, c.baseURL), nil
}

func (c *Client) IssueDetails(ctx context.Context, key string) (IssueDetail, error) {
	raw, err := c.do(ctx, http.MethodGet, c.baseURL+"/rest/api/3/issue/"+url.PathEscape(key), nil)
	if err != nil {
		return IssueDetail{}, err
	}

	parsed := gjson.Parse(raw)
	task := tasks.NormalizeJiraIssue(parsed, c.baseURL)

	status := parsed.Get("fields.status.name").String()
	if status == "" {
		status = parsed.Get("status.name").String()
	}
	if status == "" && parsed.Get("status").Type == gjson.String {
		status = parsed.Get("status").String()
	}

	return IssueDetail{
		Key:         key,
		Title:       task.Title,
		Description: task.Description,
		URL:         task.URL,
		Status:      status,
	}, nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, payload []byte) (string, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(c.email, c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("jira request %s: status %d", rawURL, resp.StatusCode)
	}
	return string(data), nil
}

// IsDone reports whether a Jira status means the issue is finished.
func IsDone(status string) bool {
	s := strings.ToLower(status)
	return strings.Contains(s, "done") ||
		strings.Contains(s, "resolved") ||
		strings.Contains(s, "closed") ||
		strings.Contains(s, "complete")
}

// ParseIssueKeyFromURL extracts a PROJECT-123 key from a browse URL.
func ParseIssueKeyFromURL(rawURL string) (string, bool) {
	if strings.TrimSpace(rawURL) == "" {
		return "", false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	var parts []string
	for _, part := range strings.Split(parsed.Path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	key := parts[len(parts)-1]
	if !issueKeyRe.MatchString(key) {
		return "", false
	}
	return key, true
}
