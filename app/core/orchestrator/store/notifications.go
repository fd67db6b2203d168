package store

import (
	"encoding/json"
	"sort"

	"flowpilot/app/pkg/types"
)

type NotificationStore struct {
	store *Store
}

func NewNotificationStore(store *Store) *NotificationStore {
	return &NotificationStore{store: store}
}

func notificationPath(userID, id string) string {
	return "notifications/" + userID + "/" + id
}

func notificationMetaPath(userID string) string {
	return "notificationMeta/" + userID
}

func (s *NotificationStore) Put(userID string, n types.Notification) error {
	return s.store.Set(notificationPath(userID, n.ID), n)
}

func (s *NotificationStore) Get(userID, id string) (types.Notification, error) {
	var n types.Notification
	if err := s.store.Get(notificationPath(userID, id), &n); err != nil {
		return types.Notification{}, err
	}
	return n, nil
}

func (s *NotificationStore) Exists(userID, id string) (bool, error) {
	_, ok, err := s.store.GetRaw(notificationPath(userID, id))
	return ok, err
}

// List returns the user's notifications, newest first.
func (s *NotificationStore) List(userID string) ([]types.Notification, error) {
	children, err := s.store.Children("notifications/" + userID)
	if err != nil {
		return nil, err
	}

	notifications := make([]types.Notification, 0, len(children))
	for _, raw := range children {
		var n types.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			continue
		}
		notifications = append(notifications, n)
	}
	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt > notifications[j].CreatedAt
	})
	return notifications, nil
}

func (s *NotificationStore) SlackLastTs(userID string) (string, error) {
	var meta struct {
		SlackLastTs string `json:"slackLastTs"`
	}
	err := s.store.Get(notificationMetaPath(userID), &meta)
	if err == ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return meta.SlackLastTs, nil
}

func (s *NotificationStore) SetSlackLastTs(userID, ts string) error {
	return s.store.Update(notificationMetaPath(userID), map[string]interface{}{
		"slackLastTs": ts,
	})
}
