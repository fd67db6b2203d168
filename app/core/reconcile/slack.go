package reconcile

import (
	"strings"
	"unicode"

	"flowpilot/app/core/orchestrator/store"
	"flowpilot/app/pkg/logger"
	"flowpilot/app/pkg/types"
)

type RemovedTask struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// RemoveSlackTasksForJira deletes slack-derived local tasks that belong
// to a completed Jira issue. A task carrying the exact JIRA_KEY label is
// removed outright; otherwise tasks are matched by token overlap between
// the Jira issue text and the task text. Short Jira texts (fewer than
// three usable tokens) never trigger fuzzy removal.
func RemoveSlackTasksForJira(tasks *store.TaskStore, userID, title, description, jiraKey string) ([]RemovedTask, error) {
	all, err := tasks.List(userID)
	if err != nil {
		return nil, err
	}

	jiraTokens := tokenSet(title + " " + description)
	fuzzyAllowed := len(jiraTokens) >= 3

	var removed []RemovedTask
	for _, task := range all {
		if !task.HasLabel(types.LabelSlack) {
			continue
		}

		if jiraKey != "" && task.JiraKey() == jiraKey {
			removed = append(removed, remove(tasks, userID, task)...)
			continue
		}

		if !fuzzyAllowed {
			continue
		}

		slackTokens := tokenize(task.Title + " " + task.Description)
		if len(slackTokens) == 0 {
			continue
		}
		overlap := 0
		for _, token := range slackTokens {
			if _, ok := jiraTokens[token]; ok {
				overlap++
			}
		}
		if overlap >= 2 {
			removed = append(removed, remove(tasks, userID, task)...)
		}
	}
	return removed, nil
}

func remove(tasks *store.TaskStore, userID string, task types.Task) []RemovedTask {
	if err := tasks.Delete(userID, task.ID); err != nil {
		logger.Error("failed to delete slack task %s: %v", task.ID, err)
		return nil
	}
	return []RemovedTask{{ID: task.ID, Title: task.Title}}
}

func tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	var tokens []string
	for _, field := range strings.Fields(cleaned) {
		if len(field) >= 3 {
			tokens = append(tokens, field)
		}
	}
	return tokens
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range tokenize(text) {
		set[token] = struct{}{}
	}
	return set
}
