// Package changefeed delivers row-level INSERT, UPDATE and DELETE events from
// Postgres to in-process subscribers filtered by table and owning user.
package changefeed

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Tables that publish change events.
const (
	MedicationsTable    = "medications"
	MedicationLogsTable = "medication_logs"
)

type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// Event mirrors the JSON emitted by the notify trigger. New is null for
// DELETE; Old is null for INSERT.
type Event struct {
	Type  EventType       `json:"eventType"`
	Table string          `json:"table"`
	New   json.RawMessage `json:"new"`
	Old   json.RawMessage `json:"old"`
}

// Record returns the row the event is about: New when present, else Old.
func (e Event) Record() json.RawMessage {
	if !isNull(e.New) {
		return e.New
	}
	return e.Old
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

type ownerField struct {
	UserID string `json:"user_id"`
}

// UserID extracts user_id from the event's record.
func (e Event) UserID() string {
	var o ownerField
	if err := json.Unmarshal(e.Record(), &o); err != nil {
		return ""
	}
	return o.UserID
}

// Decode parses a notification payload.
func Decode(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode change event: %w", err)
	}
	switch ev.Type {
	case Insert, Update, Delete:
	default:
		return Event{}, fmt.Errorf("decode change event: unknown type %q", ev.Type)
	}
	if ev.Table == "" {
		return Event{}, fmt.Errorf("decode change event: missing table")
	}
	if isNull(ev.Record()) {
		return Event{}, fmt.Errorf("decode change event: no record")
	}
	return ev, nil
}
