package planning

import (
	"context"
	"errors"
	"testing"

	"flowpilot/app/core/agents"
	"flowpilot/app/core/orchestrator/db"
	"flowpilot/app/core/orchestrator/store"
	"flowpilot/app/pkg/types"
)

type stubTaskSource struct {
	tasks []types.Task
	err   error
}

func (s *stubTaskSource) FetchAssigned(context.Context) ([]types.Task, error) {
	return s.tasks, s.err
}

type stubCalendar struct {
	events   []types.CalendarEvent
	err      error
	timezone string
}

func (s *stubCalendar) DayEvents(_ context.Context, _, timezone string) ([]types.CalendarEvent, error) {
	s.timezone = timezone
	return s.events, s.err
}

type stubPlanner struct {
	input agents.PlanInput
}

func (s *stubPlanner) PlanDay(_ context.Context, input agents.PlanInput) types.DayPlan {
	s.input = input
	return types.DayPlan{
		Date:        input.Date,
		Blocks:      []types.PlanBlock{{ID: "block-1", Start: input.Date + "T09:00:00Z", End: input.Date + "T11:00:00Z", Label: "Focus", Mode: types.ModeDeepWork, TaskIDs: []string{}}},
		GeneratedAt: "2026-03-02T08:00:00Z",
	}
}

type fixture struct {
	service  *Service
	tasks    *store.TaskStore
	plans    *store.PlanStore
	settings *store.SettingsStore
	github   *stubTaskSource
	jira     *stubTaskSource
	calendar *stubCalendar
	planner  *stubPlanner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.NewSQLiteDB(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	base := store.New(database)
	f := &fixture{
		tasks:    store.NewTaskStore(base),
		plans:    store.NewPlanStore(base),
		settings: store.NewSettingsStore(base),
		github:   &stubTaskSource{},
		jira:     &stubTaskSource{},
		calendar: &stubCalendar{},
		planner:  &stubPlanner{},
	}
	f.service = NewService(
		"u1", f.plans, f.tasks, f.settings,
		f.github, f.jira, f.calendar, f.planner,
		WorkingHours{Timezone: "UTC", WorkStart: "09:00", WorkEnd: "18:00"},
	)
	return f
}

func TestPlanDayGathersAllSources(t *testing.T) {
	f := newFixture(t)
	f.github.tasks = []types.Task{{ID: "gh-1", Title: "Fix bug", Source: types.SourceGitHub}}
	f.jira.tasks = []types.Task{{ID: "PROJ-1", Title: "Ship feature", Source: types.SourceJira}}
	if err := f.tasks.Put("u1", types.Task{ID: "local-1", Title: "Write docs", Source: types.SourceLocal}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	f.calendar.events = []types.CalendarEvent{
		{ID: "e1", Title: "Standup", Start: "2026-03-02T10:00:00Z", End: "2026-03-02T10:15:00Z", Type: types.CalendarMeeting},
	}

	generated, err := f.service.PlanDay(context.Background(), "2026-03-02")
	if err != nil {
		t.Fatalf("PlanDay: %v", err)
	}

	if len(f.planner.input.Tasks) != 3 {
		t.Fatalf("expected 3 tasks in planning input, got %d", len(f.planner.input.Tasks))
	}
	if len(f.planner.input.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(f.planner.input.Events))
	}
	if f.planner.input.WorkStart != "09:00" || f.planner.input.Timezone != "UTC" {
		t.Fatalf("unexpected working hours %+v", f.planner.input)
	}

	stored, err := f.plans.Get("u1", "2026-03-02")
	if err != nil {
		t.Fatalf("plan should be persisted: %v", err)
	}
	if stored.Date != generated.Date || len(stored.Blocks) != 1 {
		t.Fatalf("unexpected stored plan %+v", stored)
	}
}

func TestPlanDayDegradesOnUpstreamFailure(t *testing.T) {
	f := newFixture(t)
	f.github.err = errors.New("github down")
	f.jira.err = errors.New("jira down")
	f.calendar.err = errors.New("calendar down")

	if _, err := f.service.PlanDay(context.Background(), "2026-03-02"); err != nil {
		t.Fatalf("upstream failures must not fail planning: %v", err)
	}
	if len(f.planner.input.Tasks) != 0 || len(f.planner.input.Events) != 0 {
		t.Fatalf("expected empty input, got %+v", f.planner.input)
	}
}

func TestPlanDayUsesStoredWorkingHours(t *testing.T) {
	f := newFixture(t)
	if _, err := f.settings.Update("u1", map[string]interface{}{
		"timezone":  "Europe/Berlin",
		"workStart": "08:00",
	}); err != nil {
		t.Fatalf("settings.Update: %v", err)
	}

	if _, err := f.service.PlanDay(context.Background(), "2026-03-02"); err != nil {
		t.Fatalf("PlanDay: %v", err)
	}

	if f.planner.input.Timezone != "Europe/Berlin" {
		t.Fatalf("stored timezone should win, got %q", f.planner.input.Timezone)
	}
	if f.planner.input.WorkStart != "08:00" {
		t.Fatalf("stored workStart should win, got %q", f.planner.input.WorkStart)
	}
	if f.planner.input.WorkEnd != "18:00" {
		t.Fatalf("unset fields keep defaults, got %q", f.planner.input.WorkEnd)
	}
	if f.calendar.timezone != "Europe/Berlin" {
		t.Fatalf("calendar should be queried in the resolved timezone, got %q", f.calendar.timezone)
	}
}

func TestGetMissingPlan(t *testing.T) {
	f := newFixture(t)
	if _, err := f.service.Get("2026-03-02"); err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
