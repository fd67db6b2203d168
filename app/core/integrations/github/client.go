package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"flowpilot/app/core/tasks"
	"flowpilot/app/pkg/types"
)

const requestTimeout = 10 * time.Second

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

type IssueDetail struct {
	Title       string
	Description string
	URL         string
	State       string
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

// FetchAssigned returns the user's open assigned issues.
func (c *Client) FetchAssigned(ctx context.Context) ([]types.Task, error) {
	raw, err := c.get(ctx, c.baseURL+"/issues?filter=assigned&state=open&per_page=50")
	if err != nil {
		return nil, err
	}
	return tasks.NormalizeGitHubIssues(raw), nil
}

func (c *Client) IssueDetails(ctx context.Context, owner, repo string, number int) (IssueDetail, error) {
	raw, err := c.get(ctx, fmt.Sprintf("%s/repos/%s/%s/issues/%d", c.baseURL, owner, repo, number))
	if err != nil {
		return IssueDetail{}, err
	}

	parsed := gjson.Parse(raw)
	detail := IssueDetail{
		Title:       parsed.Get("title").String(),
		Description: parsed.Get("body").String(),
		URL:         parsed.Get("html_url").String(),
		State:       parsed.Get("state").String(),
	}
	if detail.URL == "" {
		detail.URL = parsed.Get("url").String()
	}
	return detail, nil
}

func (c *Client) get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

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
		return "", fmt.Errorf("github request %s: status %d", rawURL, resp.StatusCode)
	}
	return string(body), nil
}

// ParseIssueURL extracts owner, repo, and number from an issue or pull
// request URL.
func ParseIssueURL(rawURL string) (owner, repo string, number int, ok bool) {
	if strings.TrimSpace(rawURL) == "" {
		return "", "", 0, false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", 0, false
	}

	var parts []string
	for _, part := range strings.Split(parsed.Path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) < 4 {
		return "", "", 0, false
	}
	kind := parts[2]
	if kind != "issues" && kind != "pull" {
		return "", "", 0, false
	}
	number, err = strconv.Atoi(parts[3])
	if err != nil || number <= 0 {
		return "", "", 0, false
	}
	return parts[0], parts[1], number, true
}
