package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"flowpilot/app/core/llm"
	"flowpilot/app/core/plan"
	"flowpilot/app/pkg/logger"
	"flowpilot/app/pkg/types"
)

type PlanInput struct {
	Date      string
	Timezone  string
	WorkStart string
	WorkEnd   string
	Tasks     []types.Task
	Events    []types.CalendarEvent
}

// PlanningAgent turns the day's tasks and calendar into a block plan.
// A failed or malformed model response degrades to an empty plan for
// the requested date.
type PlanningAgent struct {
	llm llm.Client
}

func NewPlanningAgent(client llm.Client) *PlanningAgent {
	return &PlanningAgent{llm: client}
}

func (a *PlanningAgent) PlanDay(ctx context.Context, input PlanInput) types.DayPlan {
	prompt := buildPlanPrompt(input)

	raw, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		logger.Error("plan generation failed: %v", err)
		return emptyPlan(input.Date)
	}
	return a.parsePlan(raw, input)
}

func (a *PlanningAgent) parsePlan(raw string, input PlanInput) types.DayPlan {
	payload, ok := ExtractJSON(raw)
	if !ok {
		logger.Error("plan response contained no JSON")
		return emptyPlan(input.Date)
	}

	var parsed types.DayPlan
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		logger.Error("plan JSON malformed: %v", err)
		return emptyPlan(input.Date)
	}

	if parsed.Date == "" {
		parsed.Date = input.Date
	}
	if parsed.Blocks == nil {
		parsed.Blocks = []types.PlanBlock{}
	}
	if parsed.GeneratedAt == "" {
		parsed.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	}
	for i := range parsed.Blocks {
		if parsed.Blocks[i].ID == "" {
			parsed.Blocks[i].ID = fmt.Sprintf("block-%d", i+1)
		}
		switch parsed.Blocks[i].Mode {
		case types.ModeDeepWork, types.ModeShallow, types.ModeMeeting:
		default:
			parsed.Blocks[i].Mode = types.ModeDeepWork
		}
		if parsed.Blocks[i].TaskIDs == nil {
			parsed.Blocks[i].TaskIDs = []string{}
		}
	}

	parsed.Blocks = plan.ReconcileMeetingBlocks(parsed.Blocks, input.Events)
	return parsed
}

func emptyPlan(date string) types.DayPlan {
	return types.DayPlan{
		Date:        date,
		Blocks:      []types.PlanBlock{},
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func buildPlanPrompt(input PlanInput) string {
	tasksJSON, _ := json.MarshalIndent(input.Tasks, "", "  ")
	eventsJSON, _ := json.MarshalIndent(input.Events, "", "  ")

	var b strings.Builder
	b.WriteString("You are a planning assistant helping a software developer split their workday into focused blocks.\n\n")
	b.WriteString("Guidelines:\n")
	fmt.Fprintf(&b, "- Respect the working hours exactly: %s to %s in timezone %s.\n", input.WorkStart, input.WorkEnd, input.Timezone)
	b.WriteString("- Use three block modes: DEEP_WORK, SHALLOW, and MEETING.\n")
	b.WriteString("- Meetings are fixed and must match the calendar events of type MEETING.\n")
	b.WriteString("- Avoid overlapping blocks.\n")
	b.WriteString("- Tasks may carry a dueDate (YYYY-MM-DD); schedule the soonest-due tasks first, especially those due today or overdue.\n")
	b.WriteString("- Tasks labeled \"slack\" came in via Slack and usually deserve their own short blocks, separate from GitHub or Jira work.\n")
	b.WriteString("- Only group a Slack task with a Jira task when their titles and text clearly describe the same work; never group on ids or labels alone.\n")
	b.WriteString("- Group related tasks into deep work blocks and leave short breaks between long ones.\n")
	b.WriteString("- Use calendar event titles as block labels and put a concise description into notes when helpful.\n\n")
	fmt.Fprintf(&b, "Date: %s\nTimezone: %s\nWorking hours: %s - %s\n\n", input.Date, input.Timezone, input.WorkStart, input.WorkEnd)
	b.WriteString("Tasks (JSON):\n")
	b.Write(tasksJSON)
	b.WriteString("\n\nCalendar events (JSON):\n")
	b.Write(eventsJSON)
	b.WriteString("\n\nRespond with a single JSON object, no markdown and no explanations:\n")
	b.WriteString(`{"date":"YYYY-MM-DD","generatedAt":"ISO timestamp","blocks":[{"id":"...","start":"ISO timestamp","end":"ISO timestamp","label":"...","mode":"DEEP_WORK|SHALLOW|MEETING","taskIds":["..."],"notes":"optional"}]}`)
	b.WriteString("\nAll timestamps must be valid ISO8601 strings within the given date and working hours.")
	return b.String()
}
