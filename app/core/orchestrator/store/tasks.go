package store

import (
	"encoding/json"
	"sort"

	"flowpilot/app/pkg/types"
)

type TaskStore struct {
	store *Store
}

func NewTaskStore(store *Store) *TaskStore {
	return &TaskStore{store: store}
}

func localTaskPath(userID, taskID string) string {
	return "tasks/local/" + userID + "/" + taskID
}

func (s *TaskStore) Put(userID string, task types.Task) error {
	return s.store.Set(localTaskPath(userID, task.ID), task)
}

func (s *TaskStore) Get(userID, taskID string) (types.Task, error) {
	var task types.Task
	if err := s.store.Get(localTaskPath(userID, taskID), &task); err != nil {
		return types.Task{}, err
	}
	return task, nil
}

func (s *TaskStore) List(userID string) ([]types.Task, error) {
	children, err := s.store.Children("tasks/local/" + userID)
	if err != nil {
		return nil, err
	}

	tasks := make([]types.Task, 0, len(children))
	for _, raw := range children {
		var task types.Task
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			continue
		}
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

func (s *TaskStore) Delete(userID, taskID string) error {
	return s.store.Delete(localTaskPath(userID, taskID))
}

// FindSlackByDescription looks for an existing slack-labeled task with
// the exact same description.
func (s *TaskStore) FindSlackByDescription(userID, description string) (types.Task, bool, error) {
	tasks, err := s.List(userID)
	if err != nil {
		return types.Task{}, false, err
	}
	for _, task := range tasks {
		if task.HasLabel(types.LabelSlack) && task.Description == description {
			return task, true, nil
		}
	}
	return types.Task{}, false, nil
}

func (s *TaskStore) PushKey() string {
	return s.store.PushKey()
}
