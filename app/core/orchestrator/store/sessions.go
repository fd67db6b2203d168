package store

import (
	"encoding/json"
	"sort"

	"flowpilot/app/pkg/types"
)

type SessionStore struct {
	store *Store
}

func NewSessionStore(store *Store) *SessionStore {
	return &SessionStore{store: store}
}

func sessionPath(id string) string {
	return "sessions/" + id
}

func eventPath(sessionID, eventID string) string {
	return "sessionEvents/" + sessionID + "/" + eventID
}

func (s *SessionStore) Save(session types.Session) error {
	return s.store.Set(sessionPath(session.ID), session)
}

func (s *SessionStore) Get(id string) (types.Session, error) {
	var session types.Session
	if err := s.store.Get(sessionPath(id), &session); err != nil {
		return types.Session{}, err
	}
	return session, nil
}

// List returns the user's sessions, newest first. An empty status
// matches everything.
func (s *SessionStore) List(userID string, status types.SessionStatus) ([]types.Session, error) {
	children, err := s.store.Children("sessions")
	if err != nil {
		return nil, err
	}

	sessions := make([]types.Session, 0, len(children))
	for _, raw := range children {
		var session types.Session
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			continue
		}
		if session.UserID != userID {
			continue
		}
		if status != "" && session.Status != status {
			continue
		}
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt > sessions[j].CreatedAt
	})
	return sessions, nil
}

// ActiveFor reports the user's active session for a task, if any.
func (s *SessionStore) ActiveFor(userID, taskID string) (types.Session, bool, error) {
	active, err := s.List(userID, types.SessionActive)
	if err != nil {
		return types.Session{}, false, err
	}
	for _, session := range active {
		if session.TaskID == taskID {
			return session, true, nil
		}
	}
	return types.Session{}, false, nil
}

func (s *SessionStore) AppendEvent(event types.SessionEvent) error {
	return s.store.Set(eventPath(event.SessionID, event.ID), event)
}

// Events returns a session's events sorted by timestamp ascending.
func (s *SessionStore) Events(sessionID string) ([]types.SessionEvent, error) {
	children, err := s.store.Children("sessionEvents/" + sessionID)
	if err != nil {
		return nil, err
	}

	events := make([]types.SessionEvent, 0, len(children))
	for _, raw := range children {
		var event types.SessionEvent
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
	return events, nil
}

func (s *SessionStore) PushKey() string {
	return s.store.PushKey()
}
