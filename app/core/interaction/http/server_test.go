package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"flowpilot/app/core/agents"
	"flowpilot/app/core/integrations/github"
	"flowpilot/app/core/integrations/jira"
	"flowpilot/app/core/notify"
	"flowpilot/app/core/orchestrator/db"
	"flowpilot/app/core/orchestrator/store"
	"flowpilot/app/core/planning"
	"flowpilot/app/core/sessions"
	"flowpilot/app/pkg/types"
)

type stubGitHub struct {
	tasks []types.Task
	err   error
}

func (s *stubGitHub) FetchAssigned(context.Context) ([]types.Task, error) {
	return s.tasks, s.err
}

func (s *stubGitHub) IssueDetails(context.Context, string, string, int) (github.IssueDetail, error) {
	return github.IssueDetail{}, errors.New("not configured")
}

type stubJira struct {
	tasks []types.Task
	err   error
}

func (s *stubJira) FetchAssigned(context.Context) ([]types.Task, error) {
	return s.tasks, s.err
}

func (s *stubJira) IssueDetails(context.Context, string) (jira.IssueDetail, error) {
	return jira.IssueDetail{}, errors.New("not configured")
}

type stubSlack struct {
	mentions []types.SlackMention
}

func (s *stubSlack) Mentions(context.Context, string) ([]types.SlackMention, error) {
	return s.mentions, nil
}

func (s *stubSlack) ThreadSummary(context.Context, string, string) (string, error) {
	return "", nil
}

type stubSummarizer struct{}

func (stubSummarizer) Summarize(_ context.Context, input agents.SessionInput) (agents.SessionSummary, error) {
	return agents.SessionSummary{Summary: "Worked on " + input.TaskTitle}, nil
}

type stubClassifier struct {
	decision types.InterruptDecision
}

func (s *stubClassifier) Classify(context.Context, string, types.DayPlan) types.InterruptDecision {
	return s.decision
}

type stubPlanner struct{}

func (stubPlanner) PlanDay(_ context.Context, input agents.PlanInput) types.DayPlan {
	return types.DayPlan{Date: input.Date, Blocks: []types.PlanBlock{}, GeneratedAt: "2026-03-02T08:00:00Z"}
}

type fixture struct {
	srv    *httptest.Server
	github *stubGitHub
	jira   *stubJira
	slack  *stubSlack
	tasks  *store.TaskStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.NewSQLiteDB(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	base := store.New(database)
	taskStore := store.NewTaskStore(base)
	sessionStore := store.NewSessionStore(base)
	notificationStore := store.NewNotificationStore(base)
	planStore := store.NewPlanStore(base)
	settingsStore := store.NewSettingsStore(base)

	githubStub := &stubGitHub{}
	jiraStub := &stubJira{}
	slackStub := &stubSlack{}

	sessionManager := sessions.NewManager(
		"u1", sessionStore, taskStore, notificationStore,
		githubStub, jiraStub, slackStub, stubSummarizer{},
	)
	planningService := planning.NewService(
		"u1", planStore, taskStore, settingsStore,
		githubStub, jiraStub,
		stubCalendar{}, stubPlanner{},
		planning.WorkingHours{Timezone: "UTC", WorkStart: "09:00", WorkEnd: "18:00"},
	)
	notifyService := notify.NewService(
		"u1", notificationStore, taskStore, planStore,
		slackStub, &stubClassifier{decision: types.InterruptDecision{
			Priority: types.PriorityUrgent, SuggestedAction: types.ActionStartNow, Rationale: "urgent",
		}},
	)

	server := NewServer(0, "u1", taskStore, settingsStore, githubStub, jiraStub, planningService, sessionManager, notifyService)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, github: githubStub, jira: jiraStub, slack: slackStub, tasks: taskStore}
}

type stubCalendar struct{}

func (stubCalendar) DayEvents(context.Context, string, string) ([]types.CalendarEvent, error) {
	return []types.CalendarEvent{}, nil
}

func (f *fixture) post(t *testing.T, path string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp := f.get(t, "/health")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestLocalTaskLifecycle(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/tasks/local", map[string]interface{}{"title": "Write docs", "labels": []string{"docs"}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created types.Task
	decode(t, resp, &created)
	if created.ID == "" || created.Source != types.SourceLocal {
		t.Fatalf("unexpected task %+v", created)
	}

	resp = f.get(t, "/tasks/local")
	var list []types.Task
	decode(t, resp, &list)
	if len(list) != 1 || list[0].Title != "Write docs" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestLocalTaskRequiresTitle(t *testing.T) {
	f := newFixture(t)
	resp := f.post(t, "/tasks/local", map[string]interface{}{"description": "no title"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUpstreamTasksDegradeToEmptyList(t *testing.T) {
	f := newFixture(t)
	f.github.err = errors.New("github down")
	f.jira.err = errors.New("jira down")

	for _, path := range []string{"/tasks/github", "/tasks/jira"} {
		resp := f.get(t, path)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
		var list []types.Task
		decode(t, resp, &list)
		if len(list) != 0 {
			t.Fatalf("%s: expected empty list, got %+v", path, list)
		}
	}
}

func TestPlanDayRoundTrip(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/plan-day?date=2026-03-02")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 before planning, got %d", resp.StatusCode)
	}

	resp = f.post(t, "/plan-day", map[string]string{"date": "2026-03-02"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var plan types.DayPlan
	decode(t, resp, &plan)
	if plan.Date != "2026-03-02" {
		t.Fatalf("unexpected plan %+v", plan)
	}

	resp = f.get(t, "/plan-day?date=2026-03-02")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after planning, got %d", resp.StatusCode)
	}
	decode(t, resp, &plan)
	if plan.Date != "2026-03-02" {
		t.Fatalf("stored plan mismatch %+v", plan)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	if err := f.tasks.Put("u1", types.Task{ID: "t1", Title: "Fix login bug", Source: types.SourceLocal}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	resp := f.post(t, "/session/start", map[string]string{"taskId": "t1", "source": "LOCAL"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var session types.Session
	decode(t, resp, &session)
	if session.Status != types.SessionActive {
		t.Fatalf("unexpected session %+v", session)
	}

	resp = f.post(t, "/session/start", map[string]string{"taskId": "t1", "source": "LOCAL"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate start, got %d", resp.StatusCode)
	}
	var conflict map[string]string
	decode(t, resp, &conflict)
	if conflict["existingSessionId"] != session.ID {
		t.Fatalf("conflict should name the existing session: %+v", conflict)
	}

	resp = f.post(t, "/session/event", map[string]interface{}{
		"sessionId": session.ID,
		"type":      "NOTE",
		"payload":   map[string]string{"text": "found the root cause"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = f.post(t, "/session/end", map[string]string{"sessionId": session.ID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var ended types.Session
	decode(t, resp, &ended)
	if ended.Status != types.SessionCompleted || ended.Summary == "" {
		t.Fatalf("unexpected ended session %+v", ended)
	}

	resp = f.get(t, "/sessions/"+session.ID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var detail struct {
		Session types.Session        `json:"session"`
		Events  []types.SessionEvent `json:"events"`
	}
	decode(t, resp, &detail)
	if detail.Session.ID != session.ID || len(detail.Events) != 1 {
		t.Fatalf("unexpected detail %+v", detail)
	}

	resp = f.get(t, "/sessions?status=completed")
	var list []types.Session
	decode(t, resp, &list)
	if len(list) != 1 || list[0].ID != session.ID {
		t.Fatalf("unexpected session list %+v", list)
	}
}

func TestSessionStartValidation(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/session/start", map[string]string{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without taskId, got %d", resp.StatusCode)
	}

	resp = f.post(t, "/session/start", map[string]string{"taskId": "ghost"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown task, got %d", resp.StatusCode)
	}
}

func TestSessionEndUnknownSession(t *testing.T) {
	f := newFixture(t)
	resp := f.post(t, "/session/end", map[string]string{"sessionId": "ghost"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestNotificationPollAndActions(t *testing.T) {
	f := newFixture(t)
	f.slack.mentions = []types.SlackMention{
		{ChannelID: "C1", Text: "<@U1> prod is on fire", Ts: "1700000001.000100"},
	}

	resp := f.post(t, "/notifications/slack/poll", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var poll struct {
		Created []types.Notification `json:"created"`
		LastTs  string               `json:"lastTs"`
	}
	decode(t, resp, &poll)
	if len(poll.Created) != 1 || poll.LastTs != "1700000001.000100" {
		t.Fatalf("unexpected poll result %+v", poll)
	}
	id := poll.Created[0].ID

	resp = f.get(t, "/notifications?processed=false")
	var pending []types.Notification
	decode(t, resp, &pending)
	if len(pending) != 1 {
		t.Fatalf("expected one pending notification, got %+v", pending)
	}

	resp = f.post(t, "/notifications/"+id+"/schedule-now", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var scheduled struct {
		Notification types.Notification `json:"notification"`
		Task         types.Task         `json:"task"`
	}
	decode(t, resp, &scheduled)
	if !scheduled.Notification.Processed {
		t.Fatalf("notification should be processed after scheduling")
	}
	if !strings.HasPrefix(scheduled.Task.Title, "Slack: ") {
		t.Fatalf("unexpected task %+v", scheduled.Task)
	}

	resp = f.post(t, "/notifications/ghost/mark-processed", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown notification, got %d", resp.StatusCode)
	}
}

func TestSettingsMasking(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/settings", map[string]string{
		"githubToken": "ghp_secret123",
		"slackToken":  "xo",
		"timezone":    "Europe/Berlin",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var settings map[string]interface{}
	decode(t, resp, &settings)

	if settings["githubToken"] != "ghp_****" {
		t.Fatalf("unexpected masked github token %v", settings["githubToken"])
	}
	if settings["slackToken"] != "****" {
		t.Fatalf("short token should be fully masked, got %v", settings["slackToken"])
	}
	if settings["githubTokenPlain"] != "ghp_secret123" {
		t.Fatalf("plain token should be stored, got %v", settings["githubTokenPlain"])
	}
	if settings["timezone"] != "Europe/Berlin" {
		t.Fatalf("unexpected timezone %v", settings["timezone"])
	}

	resp = f.post(t, "/settings", map[string]string{"workStart": "08:30"})
	decode(t, resp, &settings)
	if settings["githubToken"] != "ghp_****" || settings["workStart"] != "08:30" {
		t.Fatalf("partial update should merge, got %v", settings)
	}

	resp = f.get(t, "/settings")
	decode(t, resp, &settings)
	if settings["workStart"] != "08:30" {
		t.Fatalf("stored settings mismatch %v", settings)
	}
}
