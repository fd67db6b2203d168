package plan

import (
	"fmt"
	"sort"
	"time"

	"flowpilot/app/pkg/types"
)

// ReconcileMeetingBlocks rewrites MEETING blocks so they carry the real
// calendar event titles instead of whatever the model paraphrased. Each
// MEETING block adopts the event whose start time is closest to its own;
// ties go to the earlier event. Safe to apply more than once.
func ReconcileMeetingBlocks(blocks []types.PlanBlock, events []types.CalendarEvent) []types.PlanBlock {
	usable := make([]types.CalendarEvent, 0, len(events))
	for _, event := range events {
		if _, err := time.Parse(time.RFC3339, event.Start); err == nil {
			usable = append(usable, event)
		}
	}
	if len(usable) == 0 {
		return blocks
	}
	sort.SliceStable(usable, func(i, j int) bool {
		return usable[i].Start < usable[j].Start
	})

	out := make([]types.PlanBlock, len(blocks))
	for i, block := range blocks {
		out[i] = block
		if block.Mode != types.ModeMeeting {
			continue
		}
		blockStart, err := time.Parse(time.RFC3339, block.Start)
		if err != nil {
			continue
		}

		best := usable[0]
		bestDiff := absDuration(mustParse(best.Start).Sub(blockStart))
		for _, event := range usable[1:] {
			diff := absDuration(mustParse(event.Start).Sub(blockStart))
			if diff < bestDiff {
				bestDiff = diff
				best = event
			}
		}

		if best.Title != "" {
			out[i].Label = best.Title
		}
		if out[i].Notes == "" && best.Description != "" {
			out[i].Notes = best.Description
		}
	}
	return out
}

func mustParse(ts string) time.Time {
	t, _ := time.Parse(time.RFC3339, ts)
	return t
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

const slackBlockDuration = 30 * time.Minute

// InsertSlackBlock places a 30-minute SHALLOW block for a Slack task
// into the first gap at or after now, sliding past occupied blocks.
func InsertSlackBlock(p types.DayPlan, task types.Task, now time.Time) (types.DayPlan, types.PlanBlock) {
	sorted := make([]types.PlanBlock, len(p.Blocks))
	copy(sorted, p.Blocks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	candidateStart := now
	for _, block := range sorted {
		blockStart, err1 := time.Parse(time.RFC3339, block.Start)
		blockEnd, err2 := time.Parse(time.RFC3339, block.End)
		if err1 != nil || err2 != nil {
			continue
		}
		candidateEnd := candidateStart.Add(slackBlockDuration)
		if !candidateEnd.After(blockStart) {
			break
		}
		if !candidateStart.Before(blockEnd) {
			continue
		}
		candidateStart = blockEnd
	}

	label := task.Title
	if label == "" {
		label = "Slack task"
	}
	block := types.PlanBlock{
		ID:      fmt.Sprintf("slack-%s-%d", task.ID, now.UnixMilli()),
		Start:   candidateStart.UTC().Format(time.RFC3339),
		End:     candidateStart.Add(slackBlockDuration).UTC().Format(time.RFC3339),
		Label:   label,
		Mode:    types.ModeShallow,
		TaskIDs: []string{task.ID},
		Notes:   task.Description,
	}

	p.Blocks = append(p.Blocks, block)
	return p, block
}
