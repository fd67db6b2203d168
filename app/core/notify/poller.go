package notify

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"flowpilot/app/core/orchestrator/store"
	"flowpilot/app/core/plan"
	"flowpilot/app/pkg/logger"
	"flowpilot/app/pkg/types"
)

type SlackSource interface {
	Mentions(ctx context.Context, sinceTs string) ([]types.SlackMention, error)
}

type Classifier interface {
	Classify(ctx context.Context, rawText string, plan types.DayPlan) types.InterruptDecision
}

// Service polls Slack mentions, triages them through the interrupt
// classifier, and turns the keepers into notifications and local tasks.
type Service struct {
	userID        string
	notifications *store.NotificationStore
	tasks         *store.TaskStore
	plans         *store.PlanStore
	slack         SlackSource
	classifier    Classifier
}

func NewService(
	userID string,
	notifications *store.NotificationStore,
	tasks *store.TaskStore,
	plans *store.PlanStore,
	slack SlackSource,
	classifier Classifier,
) *Service {
	return &Service{
		userID:        userID,
		notifications: notifications,
		tasks:         tasks,
		plans:         plans,
		slack:         slack,
		classifier:    classifier,
	}
}

type PollResult struct {
	Created []types.Notification `json:"created"`
	LastTs  string               `json:"lastTs"`
}

var (
	unsafeIDChars = regexp.MustCompile(`[.#$/\[\]]`)
	mentionTokens = regexp.MustCompile(`<@[^>]+>`)
	whitespaceRun = regexp.MustCompile(`\s+`)
	jiraKeyInText = regexp.MustCompile(`\b([A-Z][A-Z0-9]+-\d+)\b`)
)

func todayDate() string {
	return time.Now().UTC().Format("2006-01-02")
}

func tomorrowDate() string {
	return time.Now().UTC().Add(24 * time.Hour).Format("2006-01-02")
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// safeNotificationID derives a stable id from channel and message ts,
// so re-polling the same mention overwrites instead of duplicating.
func safeNotificationID(channelID, ts string) string {
	return unsafeIDChars.ReplaceAllString(channelID+"-"+ts, "_")
}

func stripSlackMentions(text string) string {
	cleaned := mentionTokens.ReplaceAllString(text, "")
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(cleaned, " "))
}

// Poll fetches mentions newer than the stored cursor and classifies
// each one. URGENT mentions become unprocessed notifications; LATER
// mentions are recorded and synthesized into a local task due tomorrow;
// IGNORE mentions are recorded as already processed.
func (s *Service) Poll(ctx context.Context) (PollResult, error) {
	sinceTs, err := s.notifications.SlackLastTs(s.userID)
	if err != nil {
		return PollResult{}, err
	}

	currentPlan := s.loadPlanOrEmpty(todayDate())

	mentions, err := s.slack.Mentions(ctx, sinceTs)
	if err != nil {
		return PollResult{}, err
	}
	if len(mentions) == 0 {
		return PollResult{Created: []types.Notification{}, LastTs: sinceTs}, nil
	}

	created := []types.Notification{}
	for _, mention := range mentions {
		decision := s.classifier.Classify(ctx, mention.Text, currentPlan)
		logger.Info("slack interrupt decision: priority=%s action=%s text=%q", decision.Priority, decision.SuggestedAction, mention.Text)

		notification := types.Notification{
			ID:                safeNotificationID(mention.ChannelID, mention.Ts),
			UserID:            s.userID,
			Source:            types.NotifySlack,
			RawText:           mention.Text,
			CreatedAt:         nowISO(),
			Processed:         decision.Priority != types.PriorityUrgent,
			InterruptDecision: &decision,
		}
		if err := s.notifications.Put(s.userID, notification); err != nil {
			return PollResult{}, err
		}

		switch decision.Priority {
		case types.PriorityUrgent:
			created = append(created, notification)
		case types.PriorityLater:
			if _, err := s.EnsureLocalTask(notification, tomorrowDate()); err != nil {
				logger.Error("failed to create local task for mention: %v", err)
			}
		}
	}

	lastTs := sinceTs
	tss := make([]string, 0, len(mentions))
	for _, mention := range mentions {
		if mention.Ts != "" {
			tss = append(tss, mention.Ts)
		}
	}
	if len(tss) > 0 {
		sort.Strings(tss)
		lastTs = tss[len(tss)-1]
		if err := s.notifications.SetSlackLastTs(s.userID, lastTs); err != nil {
			return PollResult{}, err
		}
	}

	return PollResult{Created: created, LastTs: lastTs}, nil
}

func (s *Service) loadPlanOrEmpty(date string) types.DayPlan {
	p, err := s.plans.Get(s.userID, date)
	if err != nil {
		if err != store.ErrNotFound {
			logger.Error("failed to load plan for %s: %v", date, err)
		}
		return types.DayPlan{Date: date, Blocks: []types.PlanBlock{}, GeneratedAt: nowISO()}
	}
	return p
}

// EnsureLocalTask returns the local task representing a notification,
// creating one when no slack-labeled task with the same text exists.
func (s *Service) EnsureLocalTask(notification types.Notification, dueDate string) (types.Task, error) {
	if dueDate == "" {
		dueDate = todayDate()
	}

	existing, found, err := s.tasks.FindSlackByDescription(s.userID, strings.TrimSpace(notification.RawText))
	if err != nil {
		logger.Error("failed to check for existing slack task: %v", err)
	} else if found {
		existing.Title = stripSlackMentions(existing.Title)
		if existing.Title == "" {
			existing.Title = "Slack task"
		}
		existing.Description = stripSlackMentions(existing.Description)
		if existing.DueDate == "" {
			existing.DueDate = dueDate
		}
		return existing, nil
	}

	cleaned := stripSlackMentions(notification.RawText)
	base := cleaned
	if len(base) > 120 {
		base = base[:117] + "..."
	}
	if base == "" {
		base = "Slack task"
	}

	labels := []string{types.LabelSlack}
	if notification.InterruptDecision != nil && notification.InterruptDecision.Priority != "" {
		labels = append(labels, strings.ToLower(string(notification.InterruptDecision.Priority)))
	}
	if match := jiraKeyInText.FindString(notification.RawText); match != "" {
		labels = append(labels, types.JiraKeyLabelPrefix+match)
	}

	task := types.Task{
		ID:          s.tasks.PushKey(),
		Title:       "Slack: " + base,
		Description: cleaned,
		Source:      types.SourceLocal,
		Labels:      labels,
		DueDate:     dueDate,
	}
	if err := s.tasks.Put(s.userID, task); err != nil {
		return types.Task{}, err
	}
	return task, nil
}

func (s *Service) List(processed *bool) ([]types.Notification, error) {
	notifications, err := s.notifications.List(s.userID)
	if err != nil {
		return nil, err
	}
	if processed == nil {
		return notifications, nil
	}
	filtered := make([]types.Notification, 0, len(notifications))
	for _, n := range notifications {
		if n.Processed == *processed {
			filtered = append(filtered, n)
		}
	}
	return filtered, nil
}

func (s *Service) MarkProcessed(id string) (types.Notification, error) {
	notification, err := s.notifications.Get(s.userID, id)
	if err != nil {
		return types.Notification{}, err
	}
	notification.Processed = true
	if err := s.notifications.Put(s.userID, notification); err != nil {
		return types.Notification{}, err
	}
	return notification, nil
}

// ScheduleNow synthesizes a task due today and slots it into today's
// plan (when one exists).
func (s *Service) ScheduleNow(id string) (types.Notification, types.Task, error) {
	notification, err := s.notifications.Get(s.userID, id)
	if err != nil {
		return types.Notification{}, types.Task{}, err
	}

	task, err := s.EnsureLocalTask(notification, todayDate())
	if err != nil {
		return types.Notification{}, types.Task{}, err
	}

	if current, err := s.plans.Get(s.userID, todayDate()); err == nil {
		updated, _ := plan.InsertSlackBlock(current, task, time.Now().UTC())
		updated.GeneratedAt = nowISO()
		if err := s.plans.Save(s.userID, updated); err != nil {
			logger.Error("failed to save plan with slack block: %v", err)
		}
	} else if err != store.ErrNotFound {
		logger.Error("failed to load today's plan: %v", err)
	}

	notification.Processed = true
	if err := s.notifications.Put(s.userID, notification); err != nil {
		return types.Notification{}, types.Task{}, err
	}
	return notification, task, nil
}

// ScheduleLater synthesizes a task due tomorrow without touching the
// plan.
func (s *Service) ScheduleLater(id string) (types.Notification, types.Task, error) {
	notification, err := s.notifications.Get(s.userID, id)
	if err != nil {
		return types.Notification{}, types.Task{}, err
	}

	task, err := s.EnsureLocalTask(notification, tomorrowDate())
	if err != nil {
		return types.Notification{}, types.Task{}, err
	}

	notification.Processed = true
	if err := s.notifications.Put(s.userID, notification); err != nil {
		return types.Notification{}, types.Task{}, err
	}
	return notification, task, nil
}
