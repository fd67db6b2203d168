package store

import (
	"encoding/json"
)

type SettingsStore struct {
	store *Store
}

func NewSettingsStore(store *Store) *SettingsStore {
	return &SettingsStore{store: store}
}

func settingsPath(userID string) string {
	return "settings/" + userID
}

func (s *SettingsStore) Get(userID string) (map[string]interface{}, error) {
	raw, ok, err := s.store.GetRaw(settingsPath(userID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]interface{}{}, nil
	}
	var settings map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// Update shallow-merges fields and returns the merged settings.
func (s *SettingsStore) Update(userID string, fields map[string]interface{}) (map[string]interface{}, error) {
	if err := s.store.Update(settingsPath(userID), fields); err != nil {
		return nil, err
	}
	return s.Get(userID)
}
