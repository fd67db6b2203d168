package planning

import (
	"context"
	"time"

	"flowpilot/app/core/agents"
	"flowpilot/app/core/orchestrator/store"
	"flowpilot/app/pkg/logger"
	"flowpilot/app/pkg/types"
)

type GitHubSource interface {
	FetchAssigned(ctx context.Context) ([]types.Task, error)
}

type JiraSource interface {
	FetchAssigned(ctx context.Context) ([]types.Task, error)
}

type CalendarSource interface {
	DayEvents(ctx context.Context, date, timezone string) ([]types.CalendarEvent, error)
}

type Planner interface {
	PlanDay(ctx context.Context, input agents.PlanInput) types.DayPlan
}

// WorkingHours are the fallbacks used when the user's stored settings do
// not override them.
type WorkingHours struct {
	Timezone  string
	WorkStart string
	WorkEnd   string
}

// Service assembles the planning input for a date and persists the
// generated plan. Upstream task sources are best effort; a failing
// integration contributes an empty task list instead of failing the
// whole plan.
type Service struct {
	userID   string
	plans    *store.PlanStore
	tasks    *store.TaskStore
	settings *store.SettingsStore
	github   GitHubSource
	jira     JiraSource
	calendar CalendarSource
	planner  Planner
	defaults WorkingHours
}

func NewService(
	userID string,
	plans *store.PlanStore,
	tasks *store.TaskStore,
	settings *store.SettingsStore,
	githubSource GitHubSource,
	jiraSource JiraSource,
	calendarSource CalendarSource,
	planner Planner,
	defaults WorkingHours,
) *Service {
	return &Service{
		userID:   userID,
		plans:    plans,
		tasks:    tasks,
		settings: settings,
		github:   githubSource,
		jira:     jiraSource,
		calendar: calendarSource,
		planner:  planner,
		defaults: defaults,
	}
}

func TodayDate() string {
	return time.Now().UTC().Format("2006-01-02")
}

// PlanDay generates and stores the plan for a date. An empty date means
// today.
func (s *Service) PlanDay(ctx context.Context, date string) (types.DayPlan, error) {
	if date == "" {
		date = TodayDate()
	}

	hours := s.workingHours()
	tasks := s.gatherTasks(ctx)

	events, err := s.calendar.DayEvents(ctx, date, hours.Timezone)
	if err != nil {
		logger.Error("calendar fetch for %s failed: %v", date, err)
		events = []types.CalendarEvent{}
	}

	generated := s.planner.PlanDay(ctx, agents.PlanInput{
		Date:      date,
		Timezone:  hours.Timezone,
		WorkStart: hours.WorkStart,
		WorkEnd:   hours.WorkEnd,
		Tasks:     tasks,
		Events:    events,
	})

	if err := s.plans.Save(s.userID, generated); err != nil {
		return types.DayPlan{}, err
	}
	return generated, nil
}

// Get returns the stored plan for a date. An empty date means today.
func (s *Service) Get(date string) (types.DayPlan, error) {
	if date == "" {
		date = TodayDate()
	}
	return s.plans.Get(s.userID, date)
}

func (s *Service) gatherTasks(ctx context.Context) []types.Task {
	tasks := []types.Task{}

	if githubTasks, err := s.github.FetchAssigned(ctx); err != nil {
		logger.Error("github tasks unavailable for planning: %v", err)
	} else {
		tasks = append(tasks, githubTasks...)
	}

	if jiraTasks, err := s.jira.FetchAssigned(ctx); err != nil {
		logger.Error("jira tasks unavailable for planning: %v", err)
	} else {
		tasks = append(tasks, jiraTasks...)
	}

	if localTasks, err := s.tasks.List(s.userID); err != nil {
		logger.Error("local tasks unavailable for planning: %v", err)
	} else {
		tasks = append(tasks, localTasks...)
	}

	return tasks
}

// workingHours resolves stored settings over the configured defaults.
func (s *Service) workingHours() WorkingHours {
	hours := s.defaults

	stored, err := s.settings.Get(s.userID)
	if err != nil {
		logger.Error("failed to load settings: %v", err)
		return hours
	}

	if v, ok := stored["timezone"].(string); ok && v != "" {
		hours.Timezone = v
	}
	if v, ok := stored["workStart"].(string); ok && v != "" {
		hours.WorkStart = v
	}
	if v, ok := stored["workEnd"].(string); ok && v != "" {
		hours.WorkEnd = v
	}
	return hours
}
