package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"flowpilot/app/core/agents"
	"flowpilot/app/core/integrations/github"
	"flowpilot/app/core/integrations/jira"
	"flowpilot/app/core/orchestrator/store"
	"flowpilot/app/core/reconcile"
	"flowpilot/app/pkg/logger"
	"flowpilot/app/pkg/types"
)

var ErrTaskNotFound = errors.New("task not found")

// ActiveSessionError is returned by Start when the task already has a
// running session.
type ActiveSessionError struct {
	ExistingSessionID string
}

func (e *ActiveSessionError) Error() string {
	return "an active session already exists for this task"
}

type GitHubClient interface {
	FetchAssigned(ctx context.Context) ([]types.Task, error)
	IssueDetails(ctx context.Context, owner, repo string, number int) (github.IssueDetail, error)
}

type JiraClient interface {
	FetchAssigned(ctx context.Context) ([]types.Task, error)
	IssueDetails(ctx context.Context, key string) (jira.IssueDetail, error)
}

type SlackClient interface {
	ThreadSummary(ctx context.Context, channelID, threadTs string) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, input agents.SessionInput) (agents.SessionSummary, error)
}

// Manager owns the work-session lifecycle: start, event capture, and
// the end-of-session summary pipeline.
type Manager struct {
	userID        string
	sessions      *store.SessionStore
	tasks         *store.TaskStore
	notifications *store.NotificationStore
	github        GitHubClient
	jira          JiraClient
	slack         SlackClient
	summarizer    Summarizer
}

func NewManager(
	userID string,
	sessions *store.SessionStore,
	tasks *store.TaskStore,
	notifications *store.NotificationStore,
	githubClient GitHubClient,
	jiraClient JiraClient,
	slackClient SlackClient,
	summarizer Summarizer,
) *Manager {
	return &Manager{
		userID:        userID,
		sessions:      sessions,
		tasks:         tasks,
		notifications: notifications,
		github:        githubClient,
		jira:          jiraClient,
		slack:         slackClient,
		summarizer:    summarizer,
	}
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Start opens a session for a task. Upstream state lookups are
// advisory; only a missing task blocks the start.
func (m *Manager) Start(ctx context.Context, taskID string, source types.TaskSource, plannedBlockID string) (types.Session, error) {
	if existing, ok, err := m.sessions.ActiveFor(m.userID, taskID); err != nil {
		logger.Error("active session check failed: %v", err)
	} else if ok {
		return types.Session{}, &ActiveSessionError{ExistingSessionID: existing.ID}
	}

	if source == "" {
		source = types.SourceLocal
	}

	task, found := m.resolveTask(ctx, taskID, source)
	if !found {
		return types.Session{}, ErrTaskNotFound
	}

	issueStateAtStart := m.issueStateAtStart(ctx, task, source)

	now := nowISO()
	session := types.Session{
		ID:                m.sessions.PushKey(),
		UserID:            m.userID,
		TaskID:            taskID,
		PlannedBlockID:    plannedBlockID,
		Status:            types.SessionActive,
		StartTime:         now,
		TaskSource:        source,
		TaskURL:           task.URL,
		IssueStateAtStart: issueStateAtStart,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if task.Title != "" {
		session.Summary = "Working on: " + task.Title
	}

	if err := m.sessions.Save(session); err != nil {
		return types.Session{}, err
	}
	return session, nil
}

func (m *Manager) resolveTask(ctx context.Context, taskID string, source types.TaskSource) (types.Task, bool) {
	switch source {
	case types.SourceGitHub:
		assigned, err := m.github.FetchAssigned(ctx)
		if err != nil {
			logger.Error("github task lookup failed: %v", err)
			return types.Task{}, false
		}
		return findTask(assigned, taskID)
	case types.SourceJira:
		assigned, err := m.jira.FetchAssigned(ctx)
		if err != nil {
			logger.Error("jira task lookup failed: %v", err)
			return types.Task{}, false
		}
		return findTask(assigned, taskID)
	default:
		task, err := m.tasks.Get(m.userID, taskID)
		if err != nil {
			if err != store.ErrNotFound {
				logger.Error("local task lookup failed: %v", err)
			}
			return types.Task{}, false
		}
		return task, true
	}
}

func findTask(tasks []types.Task, taskID string) (types.Task, bool) {
	for _, task := range tasks {
		if task.ID == taskID {
			return task, true
		}
	}
	return types.Task{}, false
}

func (m *Manager) issueStateAtStart(ctx context.Context, task types.Task, source types.TaskSource) string {
	switch source {
	case types.SourceGitHub:
		if owner, repo, number, ok := github.ParseIssueURL(task.URL); ok {
			details, err := m.github.IssueDetails(ctx, owner, repo, number)
			if err != nil {
				logger.Error("initial github issue state fetch failed: %v", err)
				return ""
			}
			return details.State
		}
	case types.SourceJira:
		if key, ok := jira.ParseIssueKeyFromURL(task.URL); ok {
			details, err := m.jira.IssueDetails(ctx, key)
			if err != nil {
				logger.Error("initial jira issue state fetch failed: %v", err)
				return ""
			}
			return details.Status
		}
	case types.SourceLocal:
		if key := task.JiraKey(); key != "" {
			details, err := m.jira.IssueDetails(ctx, key)
			if err != nil {
				logger.Error("initial jira state fetch for slack task %s failed: %v", key, err)
				return ""
			}
			return details.Status
		}
	}
	return ""
}

// AddEvent records a session event. Events are accepted even after a
// session completed; they simply stop influencing the summary.
func (m *Manager) AddEvent(sessionID string, eventType types.SessionEventType, payload map[string]interface{}) (types.SessionEvent, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	event := types.SessionEvent{
		ID:        m.sessions.PushKey(),
		SessionID: sessionID,
		Type:      eventType,
		Timestamp: nowISO(),
		Payload:   payload,
	}
	if err := m.sessions.AppendEvent(event); err != nil {
		return types.SessionEvent{}, err
	}
	return event, nil
}

func (m *Manager) List(status types.SessionStatus) ([]types.Session, error) {
	return m.sessions.List(m.userID, status)
}

func (m *Manager) Detail(sessionID string) (types.Session, []types.SessionEvent, error) {
	session, err := m.sessions.Get(sessionID)
	if err != nil {
		return types.Session{}, nil, err
	}
	events, err := m.sessions.Events(sessionID)
	if err != nil {
		return types.Session{}, nil, err
	}
	return session, events, nil
}

// End closes a session: reconciles linked issues and slack tasks,
// summarizes the events, and persists the completed session.
func (m *Manager) End(ctx context.Context, sessionID string) (types.Session, error) {
	session, err := m.sessions.Get(sessionID)
	if err != nil {
		return types.Session{}, err
	}

	events, err := m.sessions.Events(sessionID)
	if err != nil {
		return types.Session{}, err
	}

	task, taskFound := m.resolveTask(ctx, session.TaskID, session.TaskSource)
	if !taskFound && session.TaskID != "" {
		logger.Info("task %s not found while ending session %s; it may have been deleted", session.TaskID, sessionID)
	}

	var removed []reconcile.RemovedTask
	if session.TaskSource == types.SourceLocal && session.TaskID != "" && task.HasLabel(types.LabelSlack) {
		if key := task.JiraKey(); key != "" {
			details, err := m.jira.IssueDetails(ctx, key)
			if err != nil {
				logger.Error("jira check for slack cleanup of %s failed: %v", key, err)
			} else if jira.IsDone(details.Status) {
				removed = m.cleanupSlackTasks(details.Title, details.Description, key)
			}
		}
		// The session's own slack task is finished with the session.
		if err := m.tasks.Delete(m.userID, session.TaskID); err != nil {
			logger.Error("failed to delete slack task %s: %v", session.TaskID, err)
		}
	}

	issueDetails, moreRemoved := m.fetchIssueDetails(ctx, session, task, len(removed) > 0)
	removed = append(removed, moreRemoved...)

	slackSummary := m.maybeFetchSlackSummary(ctx, events)

	augmented := events
	if issueDetails != nil && issueDetails.ClosedDuringSession {
		augmented = append(augmented, types.SessionEvent{
			ID:        "issue-closed-" + sessionID,
			SessionID: sessionID,
			Type:      types.EventSystem,
			Timestamp: nowISO(),
			Payload: map[string]interface{}{
				"kind":   types.SystemKindIssueClosed,
				"source": string(issueDetails.Source),
				"title":  issueDetails.Title,
				"url":    issueDetails.URL,
			},
		})
	}
	if len(removed) > 0 {
		augmented = append(augmented, types.SessionEvent{
			ID:        "slack-cleanup-" + sessionID,
			SessionID: sessionID,
			Type:      types.EventSystem,
			Timestamp: nowISO(),
			Payload: map[string]interface{}{
				"kind":  types.SystemKindSlackTasksRemoved,
				"tasks": removed,
			},
		})
	}

	input := agents.SessionInput{
		TaskTitle:       task.Title,
		TaskDescription: task.Description,
		PreviousSummary: session.Summary,
		Events:          augmented,
		SlackSummary:    slackSummary,
		IssueDetails:    issueDetails,
	}
	if input.TaskTitle == "" {
		input.TaskTitle = "Untitled task"
	}

	summary, err := m.summarizer.Summarize(ctx, input)
	if err != nil {
		logger.Error("session summary failed: %v", err)
		summary = agents.SessionSummary{
			Summary:      session.Summary,
			KeyDecisions: session.KeyDecisions,
			NextSteps:    session.NextSteps,
		}
		if summary.Summary == "" {
			summary.Summary = "Automatic AI summary unavailable due to an error."
		}
	}

	summary = forceAppendClosure(summary, issueDetails)
	summary = forceAppendCleanup(summary, removed)

	now := nowISO()
	session.Status = types.SessionCompleted
	session.EndTime = now
	session.UpdatedAt = now
	session.Summary = summary.Summary
	session.KeyDecisions = summary.KeyDecisions
	session.NextSteps = summary.NextSteps
	if slackSummary != "" {
		session.SlackSummary = slackSummary
	}
	if summary.RiskFlags != "" {
		session.RiskFlags = summary.RiskFlags
	}

	if err := m.sessions.Save(session); err != nil {
		return types.Session{}, err
	}
	return session, nil
}

func (m *Manager) cleanupSlackTasks(title, description, jiraKey string) []reconcile.RemovedTask {
	removed, err := reconcile.RemoveSlackTasksForJira(m.tasks, m.userID, title, description, jiraKey)
	if err != nil {
		logger.Error("slack task cleanup for %s failed: %v", jiraKey, err)
		return nil
	}
	if len(removed) == 0 {
		return nil
	}

	titles := joinedTitles(removed)
	rawText := fmt.Sprintf("Removed Slack tasks linked to Jira issue %s because it was completed.", jiraKey)
	if titles != "" {
		rawText = fmt.Sprintf("Removed Slack tasks [%s] because Jira issue %s was completed.", titles, jiraKey)
	}

	notification := types.Notification{
		ID:        m.sessions.PushKey(),
		UserID:    m.userID,
		Source:    types.NotifySlack,
		RawText:   rawText,
		CreatedAt: nowISO(),
		Processed: false,
	}
	if err := m.notifications.Put(m.userID, notification); err != nil {
		logger.Error("failed to store cleanup notification: %v", err)
	}
	return removed
}

// fetchIssueDetails enriches the summary with the linked issue's final
// state. For Jira it also triggers slack-task cleanup when the issue is
// done and the LOCAL branch has not cleaned up already.
func (m *Manager) fetchIssueDetails(ctx context.Context, session types.Session, task types.Task, alreadyCleaned bool) (*agents.IssueDetails, []reconcile.RemovedTask) {
	effectiveURL := task.URL
	if effectiveURL == "" {
		effectiveURL = session.TaskURL
	}
	if effectiveURL == "" {
		return nil, nil
	}

	switch session.TaskSource {
	case types.SourceGitHub:
		owner, repo, number, ok := github.ParseIssueURL(effectiveURL)
		if !ok {
			return nil, nil
		}
		details, err := m.github.IssueDetails(ctx, owner, repo, number)
		if err != nil {
			logger.Error("final github issue state fetch failed: %v", err)
			return nil, nil
		}
		return &agents.IssueDetails{
			Source:              types.SourceGitHub,
			Title:               details.Title,
			Description:         details.Description,
			URL:                 details.URL,
			StateBefore:         session.IssueStateAtStart,
			StateAfter:          details.State,
			ClosedDuringSession: details.State == "closed",
		}, nil

	case types.SourceJira:
		key, ok := jira.ParseIssueKeyFromURL(effectiveURL)
		if !ok {
			return nil, nil
		}
		details, err := m.jira.IssueDetails(ctx, key)
		if err != nil {
			logger.Error("final jira issue state fetch failed: %v", err)
			return nil, nil
		}

		issue := &agents.IssueDetails{
			Source:              types.SourceJira,
			Title:               details.Title,
			Description:         details.Description,
			URL:                 details.URL,
			StateBefore:         session.IssueStateAtStart,
			StateAfter:          details.Status,
			ClosedDuringSession: jira.IsDone(details.Status) && !jira.IsDone(session.IssueStateAtStart),
		}

		var removed []reconcile.RemovedTask
		if jira.IsDone(details.Status) && !alreadyCleaned {
			removed = m.cleanupSlackTasks(details.Title, details.Description, key)
		}
		return issue, removed
	}
	return nil, nil
}

func (m *Manager) maybeFetchSlackSummary(ctx context.Context, events []types.SessionEvent) string {
	for _, event := range events {
		channelID, okChannel := event.Payload["channelId"].(string)
		threadTs, okThread := event.Payload["threadTs"].(string)
		if !okChannel || !okThread {
			continue
		}
		summary, err := m.slack.ThreadSummary(ctx, channelID, threadTs)
		if err != nil {
			logger.Error("slack thread summary failed: %v", err)
			return ""
		}
		return summary
	}
	return ""
}

func forceAppendClosure(summary agents.SessionSummary, issue *agents.IssueDetails) agents.SessionSummary {
	if issue == nil || !issue.ClosedDuringSession {
		return summary
	}

	sentence := fmt.Sprintf("The linked %s issue %q was closed during this session.", issue.Source, issue.Title)
	if summary.Summary == "" {
		summary.Summary = sentence
	} else if !strings.Contains(summary.Summary, issue.Title) {
		summary.Summary = summary.Summary + " " + sentence
	}

	summary.KeyDecisions = append(summary.KeyDecisions, fmt.Sprintf("Closed the %s issue: %s", issue.Source, issue.Title))
	summary.NextSteps = append(summary.NextSteps, "Verify the fix in staging/production and monitor for regressions.")
	return summary
}

func forceAppendCleanup(summary agents.SessionSummary, removed []reconcile.RemovedTask) agents.SessionSummary {
	titles := make([]string, 0, len(removed))
	for _, task := range removed {
		if title := strings.TrimSpace(task.Title); title != "" {
			titles = append(titles, title)
		}
	}
	if len(titles) == 0 {
		return summary
	}

	quoted := make([]string, len(titles))
	for i, title := range titles {
		quoted[i] = fmt.Sprintf("%q", title)
	}
	sentence := fmt.Sprintf("The following Slack-derived tasks were removed from your backlog because the linked Jira issue was completed: %s.", strings.Join(quoted, ", "))

	if summary.Summary == "" {
		summary.Summary = sentence
	} else if !strings.Contains(summary.Summary, "Slack-derived tasks were removed from your backlog") {
		summary.Summary = summary.Summary + " " + sentence
	}

	summary.KeyDecisions = append(summary.KeyDecisions, "Cleaned up related Slack tasks: "+strings.Join(titles, ", "))
	return summary
}

func joinedTitles(removed []reconcile.RemovedTask) string {
	var titles []string
	for _, task := range removed {
		if title := strings.TrimSpace(task.Title); title != "" {
			titles = append(titles, title)
		}
	}
	return strings.Join(titles, ", ")
}
