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

// InterruptAgent classifies an incoming message against the current day
// plan. It always returns a usable decision; model failures degrade to a
// conservative fallback instead of propagating.
type InterruptAgent struct {
	llm llm.Client
}

func NewInterruptAgent(client llm.Client) *InterruptAgent {
	return &InterruptAgent{llm: client}
}

func fallbackDecision() types.InterruptDecision {
	return types.InterruptDecision{
		Priority:        types.PriorityLater,
		SuggestedAction: types.ActionIgnore,
		Rationale:       "Fallback decision because the model response could not be parsed.",
	}
}

func (a *InterruptAgent) Classify(ctx context.Context, rawText string, plan types.DayPlan) types.InterruptDecision {
	prompt := buildInterruptPrompt(rawText, plan)

	raw, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		logger.Error("interrupt classify failed: %v", err)
		return fallbackDecision()
	}

	payload, ok := ExtractJSON(raw)
	if !ok {
		logger.Error("interrupt classify returned no JSON")
		return fallbackDecision()
	}

	var parsed struct {
		Priority         string `json:"priority"`
		SuggestedAction  string `json:"suggestedAction"`
		SuggestedBlockID string `json:"suggestedBlockId"`
		Rationale        string `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		logger.Error("interrupt classify JSON malformed: %v", err)
		return fallbackDecision()
	}

	decision := types.InterruptDecision{
		Priority:         types.InterruptPriority(strings.ToUpper(strings.TrimSpace(parsed.Priority))),
		SuggestedAction:  types.InterruptAction(strings.ToUpper(strings.TrimSpace(parsed.SuggestedAction))),
		SuggestedBlockID: strings.TrimSpace(parsed.SuggestedBlockID),
		Rationale:        strings.TrimSpace(parsed.Rationale),
	}

	switch decision.Priority {
	case types.PriorityUrgent, types.PriorityLater, types.PriorityIgnore:
	default:
		decision.Priority = types.PriorityLater
	}
	switch decision.SuggestedAction {
	case types.ActionStartNow, types.ActionAddToExistingBlock, types.ActionCreateNewBlock, types.ActionIgnore:
	default:
		decision.SuggestedAction = types.ActionIgnore
	}
	if decision.Rationale == "" {
		decision.Rationale = "Model did not provide a rationale."
	}
	return decision
}

func buildInterruptPrompt(rawText string, plan types.DayPlan) string {
	var b strings.Builder
	b.WriteString("You are an interrupt triage assistant for a software engineer.\n")
	b.WriteString("Classify the incoming message against the current day plan.\n\n")
	b.WriteString("Incoming message:\n")
	b.WriteString(rawText)
	b.WriteString("\n\nCurrent day plan blocks:\n")
	if len(plan.Blocks) == 0 {
		b.WriteString("(no plan for today)\n")
	}
	for _, block := range plan.Blocks {
		fmt.Fprintf(&b, "- id=%s %s - %s [%s] %s\n", block.ID, block.Start, block.End, block.Mode, block.Label)
	}
	b.WriteString("\nDecide:\n")
	b.WriteString("- priority: URGENT (needs attention today), LATER (schedule for later), or IGNORE (noise).\n")
	b.WriteString("- suggestedAction: START_NOW, ADD_TO_EXISTING_BLOCK, CREATE_NEW_BLOCK, or IGNORE.\n")
	b.WriteString("- suggestedBlockId: only when suggestedAction is ADD_TO_EXISTING_BLOCK, one of the block ids above.\n")
	b.WriteString("- rationale: one short sentence.\n\n")
	b.WriteString("Respond ONLY with a JSON object shaped as:\n")
	b.WriteString(`{"priority":"URGENT|LATER|IGNORE","suggestedAction":"START_NOW|ADD_TO_EXISTING_BLOCK|CREATE_NEW_BLOCK|IGNORE","suggestedBlockId":"optional","rationale":"..."}`)
	return b.String()
}
