// Package store persists the event history: every event the dispatcher
// processes, except clock ticks, is recorded so operators can inspect what
// the engine saw.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hatdsl/hat/internal/integration"
)

// StoredEvent is one recorded event row.
type StoredEvent struct {
	ID          int64             `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Integration string            `json:"integration"`
	DeviceID    string            `json:"device_id"`
	DeviceName  string            `json:"device_name,omitempty"`
	DeviceType  string            `json:"device_type"`
	EventType   string            `json:"event_type"`
	State       string            `json:"state,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

// EventFilter narrows ListEvents results. Zero values match everything.
type EventFilter struct {
	Integration string
	DeviceID    string
	EventType   string
	SinceID     int64
	Limit       int
}

type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp_utc TEXT NOT NULL,
	integration TEXT NOT NULL,
	device_id TEXT NOT NULL,
	device_name TEXT,
	device_type TEXT NOT NULL,
	event_type TEXT NOT NULL,
	state TEXT,
	parameters TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_scope ON events(integration, device_id, id);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type, id);
`)
	if err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}

	return nil
}

// RecordEvent implements the runtime's Recorder contract. Clock ticks are
// not recorded; one row per second of uptime would drown everything else.
func (s *Store) RecordEvent(event integration.Event) error {
	if event.Type == integration.EventClockTick {
		return nil
	}

	var parameters any
	if len(event.Parameters) > 0 {
		encoded, err := json.Marshal(event.Parameters)
		if err != nil {
			return fmt.Errorf("encode event parameters: %w", err)
		}
		parameters = string(encoded)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
INSERT INTO events (
	timestamp_utc, integration, device_id, device_name,
	device_type, event_type, state, parameters
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		event.Device.Integration,
		event.Device.ID,
		event.Device.Name,
		string(event.Device.Type),
		event.Type.String(),
		event.Device.State,
		parameters,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	return nil
}

// ListEvents returns matching events in ascending id order.
func (s *Store) ListEvents(filter EventFilter) ([]StoredEvent, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	query := `
SELECT
	id,
	timestamp_utc,
	integration,
	device_id,
	device_name,
	device_type,
	event_type,
	state,
	parameters
FROM events`

	where := make([]string, 0, 4)
	args := make([]any, 0, 4)

	if filter.Integration != "" {
		where = append(where, "integration = ?")
		args = append(args, filter.Integration)
	}
	if filter.DeviceID != "" {
		where = append(where, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, filter.EventType)
	}
	if filter.SinceID > 0 {
		where = append(where, "id > ?")
		args = append(args, filter.SinceID)
	}

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, filter.Limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]StoredEvent, 0, filter.Limit)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	for left, right := 0, len(events)-1; left < right; left, right = left+1, right-1 {
		events[left], events[right] = events[right], events[left]
	}

	return events, nil
}

// DeleteEvents removes matching events. Without filters, all must be true.
func (s *Store) DeleteEvents(filter EventFilter, all bool) (int64, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 3)

	if filter.Integration != "" {
		where = append(where, "integration = ?")
		args = append(args, filter.Integration)
	}
	if filter.DeviceID != "" {
		where = append(where, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, filter.EventType)
	}

	if !all && len(where) == 0 {
		return 0, nil
	}

	query := "DELETE FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read affected rows: %w", err)
	}

	return count, nil
}

func scanEvent(rows *sql.Rows) (StoredEvent, error) {
	var (
		id            int64
		timestampRaw  string
		integrationID string
		deviceID      string
		deviceName    sql.NullString
		deviceType    string
		eventType     string
		state         sql.NullString
		parametersRaw sql.NullString
	)

	if err := rows.Scan(
		&id,
		&timestampRaw,
		&integrationID,
		&deviceID,
		&deviceName,
		&deviceType,
		&eventType,
		&state,
		&parametersRaw,
	); err != nil {
		return StoredEvent{}, fmt.Errorf("scan event row: %w", err)
	}

	timestamp, err := time.Parse(time.RFC3339Nano, timestampRaw)
	if err != nil {
		return StoredEvent{}, fmt.Errorf("parse event timestamp: %w", err)
	}

	var parameters map[string]string
	if parametersRaw.Valid && parametersRaw.String != "" {
		if err := json.Unmarshal([]byte(parametersRaw.String), &parameters); err != nil {
			return StoredEvent{}, fmt.Errorf("decode event parameters: %w", err)
		}
	}

	return StoredEvent{
		ID:          id,
		Timestamp:   timestamp,
		Integration: integrationID,
		DeviceID:    deviceID,
		DeviceName:  deviceName.String,
		DeviceType:  deviceType,
		EventType:   eventType,
		State:       state.String,
		Parameters:  parameters,
	}, nil
}
