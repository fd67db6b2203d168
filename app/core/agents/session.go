package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"flowpilot/app/core/llm"
	"flowpilot/app/pkg/logger"
	"flowpilot/app/pkg/types"
)

type IssueDetails struct {
	Source              types.TaskSource
	Title               string
	Description         string
	URL                 string
	StateBefore         string
	StateAfter          string
	ClosedDuringSession bool
}

type SessionInput struct {
	TaskTitle       string
	TaskDescription string
	PreviousSummary string
	Events          []types.SessionEvent
	SlackSummary    string
	IssueDetails    *IssueDetails
}

type SessionSummary struct {
	Summary      string
	KeyDecisions []string
	NextSteps    []string
	RiskFlags    string
}

// SessionAgent condenses a work session's events into a narrative
// summary with decisions and next steps.
type SessionAgent struct {
	llm llm.Client
}

func NewSessionAgent(client llm.Client) *SessionAgent {
	return &SessionAgent{llm: client}
}

// Summarize returns an error only when the model call itself fails; a
// malformed response still yields a usable placeholder summary.
func (a *SessionAgent) Summarize(ctx context.Context, input SessionInput) (SessionSummary, error) {
	prompt := buildSessionPrompt(input)

	raw, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		return SessionSummary{}, err
	}
	return parseSessionSummary(raw), nil
}

func parseSessionSummary(raw string) SessionSummary {
	payload, ok := ExtractJSON(raw)
	if !ok {
		logger.Error("session summary response contained no JSON")
		return SessionSummary{
			Summary: "Automatic summary unavailable due to parsing error. Review session events manually.",
		}
	}

	var parsed struct {
		SessionSummary string   `json:"sessionSummary"`
		KeyDecisions   []string `json:"keyDecisions"`
		NextSteps      []string `json:"nextSteps"`
		RiskFlags      string   `json:"riskFlags"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		logger.Error("session summary JSON malformed: %v", err)
		return SessionSummary{
			Summary: "Automatic summary unavailable due to parsing error. Review session events manually.",
		}
	}

	summary := strings.TrimSpace(parsed.SessionSummary)
	if summary == "" {
		summary = "Session summary not provided by model."
	}
	return SessionSummary{
		Summary:      summary,
		KeyDecisions: dropBlank(parsed.KeyDecisions),
		NextSteps:    dropBlank(parsed.NextSteps),
		RiskFlags:    strings.TrimSpace(parsed.RiskFlags),
	}
}

func dropBlank(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item) != "" {
			out = append(out, item)
		}
	}
	return out
}

func buildSessionPrompt(input SessionInput) string {
	eventsJSON, _ := json.MarshalIndent(input.Events, "", "  ")

	orNone := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "(none)"
		}
		return s
	}

	var b strings.Builder
	b.WriteString("You are a coding session summarizer. Read the session context and produce:\n")
	b.WriteString("- A concise session summary.\n")
	b.WriteString("- A list of key decisions made.\n")
	b.WriteString("- A list of concrete next steps for the developer.\n")
	b.WriteString("- Optional risk flags (uncertainties, blockers, or concerns).\n\n")
	fmt.Fprintf(&b, "Task context:\n- Title: %s\n- Description: %s\n\n", input.TaskTitle, orNone(input.TaskDescription))
	fmt.Fprintf(&b, "Previous session summary:\n%s\n\n", orNone(input.PreviousSummary))
	b.WriteString("Session events (JSON):\n")
	b.Write(eventsJSON)
	fmt.Fprintf(&b, "\n\nSlack thread summary:\n%s\n", orNone(input.SlackSummary))
	if input.IssueDetails != nil {
		fmt.Fprintf(&b, "\nLinked %s issue %q: state went from %q to %q (closed during session: %v).\n",
			input.IssueDetails.Source, input.IssueDetails.Title,
			input.IssueDetails.StateBefore, input.IssueDetails.StateAfter,
			input.IssueDetails.ClosedDuringSession)
	}
	b.WriteString("\nRespond ONLY with JSON in this shape, no markdown and no text outside the JSON:\n")
	b.WriteString(`{"sessionSummary":"...","keyDecisions":["..."],"nextSteps":["..."],"riskFlags":"optional"}`)
	return b.String()
}
