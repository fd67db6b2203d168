package tasks

import (
	"strings"

	"github.com/tidwall/gjson"

	"flowpilot/app/pkg/types"
)

// NormalizeGitHubIssues maps a raw GitHub issues array to tasks. Field
// shapes vary between endpoints, so every field is fetched defensively.
func NormalizeGitHubIssues(raw string) []types.Task {
	items := gjson.Parse(raw).Array()
	out := make([]types.Task, 0, len(items))
	for _, item := range items {
		out = append(out, NormalizeGitHubIssue(item))
	}
	return out
}

func NormalizeGitHubIssue(item gjson.Result) types.Task {
	id := item.Get("id").String()
	if id == "" {
		id = item.Get("number").String()
	}

	title := item.Get("title").String()
	if title == "" {
		title = "Untitled issue"
	}

	description := item.Get("body").String()
	if description == "" {
		description = item.Get("description").String()
	}

	url := item.Get("html_url").String()
	if url == "" {
		url = item.Get("url").String()
	}

	var labels []string
	item.Get("labels").ForEach(func(_, label gjson.Result) bool {
		name := label.String()
		if label.IsObject() {
			name = label.Get("name").String()
		}
		if strings.TrimSpace(name) != "" {
			labels = append(labels, name)
		}
		return true
	})

	return types.Task{
		ID:          id,
		Title:       title,
		Description: description,
		URL:         url,
		Source:      types.SourceGitHub,
		Labels:      labels,
	}
}

// NormalizeJiraIssues maps a Jira search response (or bare issue array)
// to tasks. baseURL is used to build browse links.
func NormalizeJiraIssues(raw, baseURL string) []types.Task {
	parsed := gjson.Parse(raw)
	items := parsed.Get("issues")
	if !items.Exists() {
		items = parsed
	}

	issues := items.Array()
	out := make([]types.Task, 0, len(issues))
	for _, item := range issues {
		out = append(out, NormalizeJiraIssue(item, baseURL))
	}
	return out
}

func NormalizeJiraIssue(item gjson.Result, baseURL string) types.Task {
	key := item.Get("key").String()
	id := key
	if id == "" {
		id = item.Get("id").String()
	}

	title := item.Get("fields.summary").String()
	if title == "" {
		title = item.Get("title").String()
	}
	if title == "" {
		title = "Untitled Jira issue"
	}

	description := extractDescription(item.Get("fields.description"))
	if description == "" {
		description = extractDescription(item.Get("description"))
	}

	dueDate := firstString(item, "fields.duedate", "fields.dueDate", "dueDate", "duedate")

	var url string
	if key != "" && baseURL != "" {
		url = strings.TrimRight(baseURL, "/") + "/browse/" + key
	}

	var labels []string
	if key != "" {
		labels = append(labels, types.JiraKeyLabelPrefix+key)
	}

	return types.Task{
		ID:          id,
		Title:       title,
		Description: description,
		URL:         url,
		Source:      types.SourceJira,
		Labels:      labels,
		DueDate:     dueDate,
	}
}

func firstString(item gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := item.Get(path).String(); v != "" {
			return v
		}
	}
	return ""
}

func extractDescription(value gjson.Result) string {
	if !value.Exists() {
		return ""
	}
	if value.Type == gjson.String {
		return value.String()
	}
	if value.IsObject() {
		return strings.TrimSpace(ExtractADFText(value))
	}
	return ""
}

// ExtractADFText flattens an Atlassian Document Format tree into plain
// text by collecting every text node in order.
func ExtractADFText(node gjson.Result) string {
	var parts []string
	var walk func(n gjson.Result)
	walk = func(n gjson.Result) {
		if n.Get("type").String() == "text" {
			if text := n.Get("text").String(); text != "" {
				parts = append(parts, text)
			}
		}
		n.Get("content").ForEach(func(_, child gjson.Result) bool {
			walk(child)
			return true
		})
	}
	walk(node)
	return strings.Join(parts, " ")
}
