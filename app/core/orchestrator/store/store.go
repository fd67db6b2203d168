package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"

	"flowpilot/app/core/orchestrator/db"
)

var ErrNotFound = errors.New("not found")

// Store persists JSON documents addressed by slash-separated paths.
// Each record lives at a leaf path; Children enumerates the records
// directly under a prefix.
type Store struct {
	db *db.DB
}

func New(database *db.DB) *Store {
	return &Store{db: database}
}

func (s *Store) GetRaw(path string) (string, bool, error) {
	var value string
	err := s.db.Conn().QueryRow(`SELECT value FROM nodes WHERE path = ?`, path).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", path, err)
	}
	return value, true, nil
}

func (s *Store) Get(path string, dst interface{}) error {
	raw, ok, err := s.GetRaw(path)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (s *Store) Set(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return s.SetRaw(path, string(data))
}

func (s *Store) SetRaw(path, raw string) error {
	_, err := s.db.Conn().Exec(`
INSERT INTO nodes (path, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(path) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		path, raw, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

// Update shallow-merges fields into the document at path, creating it
// when absent. A nil value removes the key.
func (s *Store) Update(path string, fields map[string]interface{}) error {
	raw, ok, err := s.GetRaw(path)
	if err != nil {
		return err
	}
	if !ok {
		raw = "{}"
	}
	for key, value := range fields {
		if value == nil {
			raw, err = sjson.Delete(raw, key)
		} else {
			raw, err = sjson.Set(raw, key, value)
		}
		if err != nil {
			return fmt.Errorf("merge %s.%s: %w", path, key, err)
		}
	}
	return s.SetRaw(path, raw)
}

func (s *Store) Delete(path string) error {
	_, err := s.db.Conn().Exec(`DELETE FROM nodes WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// Children returns the records directly under prefix, keyed by the
// final path segment.
func (s *Store) Children(prefix string) (map[string]string, error) {
	rows, err := s.db.Conn().Query(`SELECT path, value FROM nodes WHERE path LIKE ? || '/%'`, prefix)
	if err != nil {
		return nil, fmt.Errorf("children %s: %w", prefix, err)
	}
	defer rows.Close()

	children := make(map[string]string)
	for rows.Next() {
		var path, value string
		if err := rows.Scan(&path, &value); err != nil {
			return nil, err
		}
		rest := strings.TrimPrefix(path, prefix+"/")
		if strings.Contains(rest, "/") {
			continue
		}
		children[rest] = value
	}
	return children, rows.Err()
}

func (s *Store) PushKey() string {
	return uuid.NewString()
}
