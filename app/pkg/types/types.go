package types

import "strings"

// TaskSource identifies where a task came from. Task ids are only unique
// within their own source.
type TaskSource string

const (
	SourceGitHub TaskSource = "GITHUB"
	SourceJira   TaskSource = "JIRA"
	SourceLocal  TaskSource = "LOCAL"
)

// Machine-readable labels carried on tasks.
const (
	LabelSlack         = "slack"
	JiraKeyLabelPrefix = "JIRA_KEY:"
)

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	URL         string     `json:"url,omitempty"`
	Source      TaskSource `json:"source"`
	Labels      []string   `json:"labels,omitempty"`
	DueDate     string     `json:"dueDate,omitempty"`
}

func (t Task) HasLabel(label string) bool {
	for _, l := range t.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// JiraKey returns the key carried by a JIRA_KEY:<key> label, or "".
func (t Task) JiraKey() string {
	for _, l := range t.Labels {
		if strings.HasPrefix(l, JiraKeyLabelPrefix) {
			return strings.TrimPrefix(l, JiraKeyLabelPrefix)
		}
	}
	return ""
}

type PlanBlockMode string

const (
	ModeDeepWork PlanBlockMode = "DEEP_WORK"
	ModeShallow  PlanBlockMode = "SHALLOW"
	ModeMeeting  PlanBlockMode = "MEETING"
)

type PlanBlock struct {
	ID      string        `json:"id"`
	Start   string        `json:"start"`
	End     string        `json:"end"`
	Label   string        `json:"label"`
	Mode    PlanBlockMode `json:"mode"`
	TaskIDs []string      `json:"taskIds"`
	Notes   string        `json:"notes,omitempty"`
}

type DayPlan struct {
	Date        string      `json:"date"`
	Blocks      []PlanBlock `json:"blocks"`
	GeneratedAt string      `json:"generatedAt"`
}

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

type Session struct {
	ID                string        `json:"id"`
	UserID            string        `json:"userId"`
	TaskID            string        `json:"taskId,omitempty"`
	PlannedBlockID    string        `json:"plannedBlockId,omitempty"`
	Status            SessionStatus `json:"status"`
	StartTime         string        `json:"startTime"`
	EndTime           string        `json:"endTime,omitempty"`
	Summary           string        `json:"summary,omitempty"`
	KeyDecisions      []string      `json:"keyDecisions,omitempty"`
	NextSteps         []string      `json:"nextSteps,omitempty"`
	SlackSummary      string        `json:"slackSummary,omitempty"`
	RiskFlags         string        `json:"riskFlags,omitempty"`
	TaskSource        TaskSource    `json:"taskSource,omitempty"`
	TaskURL           string        `json:"taskUrl,omitempty"`
	IssueStateAtStart string        `json:"issueStateAtStart,omitempty"`
	CreatedAt         string        `json:"createdAt"`
	UpdatedAt         string        `json:"updatedAt"`
}

type SessionEventType string

const (
	EventNote       SessionEventType = "NOTE"
	EventTestResult SessionEventType = "TEST_RESULT"
	EventSystem     SessionEventType = "SYSTEM"
)

// SYSTEM event payload kinds synthesized by the session lifecycle manager.
const (
	SystemKindIssueClosed       = "ISSUE_CLOSED"
	SystemKindSlackTasksRemoved = "SLACK_TASKS_REMOVED_FOR_JIRA"
)

type SessionEvent struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"sessionId"`
	Type      SessionEventType       `json:"type"`
	Timestamp string                 `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

type InterruptPriority string

const (
	PriorityUrgent InterruptPriority = "URGENT"
	PriorityLater  InterruptPriority = "LATER"
	PriorityIgnore InterruptPriority = "IGNORE"
)

type InterruptAction string

const (
	ActionStartNow           InterruptAction = "START_NOW"
	ActionAddToExistingBlock InterruptAction = "ADD_TO_EXISTING_BLOCK"
	ActionCreateNewBlock     InterruptAction = "CREATE_NEW_BLOCK"
	ActionIgnore             InterruptAction = "IGNORE"
)

type InterruptDecision struct {
	Priority         InterruptPriority `json:"priority"`
	SuggestedAction  InterruptAction   `json:"suggestedAction"`
	SuggestedBlockID string            `json:"suggestedBlockId,omitempty"`
	Rationale        string            `json:"rationale"`
}

type NotificationSource string

const (
	NotifySlack    NotificationSource = "SLACK"
	NotifyGitHub   NotificationSource = "GITHUB"
	NotifyJira     NotificationSource = "JIRA"
	NotifyCalendar NotificationSource = "CALENDAR"
)

type Notification struct {
	ID                string             `json:"id"`
	UserID            string             `json:"userId"`
	Source            NotificationSource `json:"source"`
	RawText           string             `json:"rawText"`
	CreatedAt         string             `json:"createdAt"`
	Processed         bool               `json:"processed"`
	InterruptDecision *InterruptDecision `json:"interruptDecision,omitempty"`
}

type CalendarEventType string

const (
	CalendarMeeting CalendarEventType = "MEETING"
	CalendarBlocked CalendarEventType = "BLOCKED"
	CalendarInfo    CalendarEventType = "INFO"
)

type CalendarEvent struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Start       string            `json:"start"`
	End         string            `json:"end"`
	Type        CalendarEventType `json:"type"`
	Description string            `json:"description,omitempty"`
}

type SlackMention struct {
	ChannelID string `json:"channelId"`
	Text      string `json:"text"`
	Ts        string `json:"ts"`
}
