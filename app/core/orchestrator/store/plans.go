package store

import (
	"flowpilot/app/pkg/types"
)

type PlanStore struct {
	store *Store
}

func NewPlanStore(store *Store) *PlanStore {
	return &PlanStore{store: store}
}

func planPath(userID, date string) string {
	return "plans/" + userID + "/" + date
}

func (s *PlanStore) Save(userID string, plan types.DayPlan) error {
	return s.store.Set(planPath(userID, plan.Date), plan)
}

func (s *PlanStore) Get(userID, date string) (types.DayPlan, error) {
	var plan types.DayPlan
	if err := s.store.Get(planPath(userID, date), &plan); err != nil {
		return types.DayPlan{}, err
	}
	return plan, nil
}
