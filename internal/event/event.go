// Package event defines the canonical event model shared by all provider
// adapters, the session assembler, and the live streamer. Events are pure
// data: immutable once produced, ordered by (timestamp, stream, id), with a
// stable self-describing JSON form.
package event

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Event is one canonical record in a session's history.
type Event struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	ParentID  *uuid.UUID
	Timestamp time.Time
	Stream    StreamID
	Payload   Payload
	Metadata  map[string]any
}

// Less reports whether e sorts before other. Events compare by
// (timestamp, stream, id) so interleaved streams order deterministically.
func (e Event) Less(other Event) bool {
	if !e.Timestamp.Equal(other.Timestamp) {
		return e.Timestamp.Before(other.Timestamp)
	}
	if s1, s2 := e.Stream.String(), other.Stream.String(); s1 != s2 {
		return s1 < s2
	}
	return e.ID.String() < other.ID.String()
}

// Sort orders events in place by (timestamp, stream, id). The sort is
// stable so same-key events keep input order.
func Sort(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Less(events[j])
	})
}

type eventWire struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	ParentID  string          `json:"parent_id,omitempty"`
	Timestamp string          `json:"timestamp"`
	Stream    StreamID        `json:"stream_id"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// MarshalJSON encodes the event with an RFC 3339 UTC timestamp and the
// payload tagged by variant name. The field set is stable.
func (e Event) MarshalJSON() ([]byte, error) {
	payload, err := marshalPayload(e.Payload)
	if err != nil {
		return nil, err
	}
	w := eventWire{
		EventID:   e.ID.String(),
		SessionID: e.SessionID.String(),
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Stream:    e.Stream,
		Payload:   payload,
		Metadata:  e.Metadata,
	}
	if e.ParentID != nil {
		w.ParentID = e.ParentID.String()
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire form. Additional fields are ignored.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id, err := uuid.Parse(w.EventID)
	if err != nil {
		return err
	}
	sessionID, err := uuid.Parse(w.SessionID)
	if err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return err
	}
	payload, err := unmarshalPayload(w.Payload)
	if err != nil {
		return err
	}
	e.ID = id
	e.SessionID = sessionID
	e.Timestamp = ts.UTC()
	e.Stream = w.Stream
	e.Payload = payload
	e.Metadata = w.Metadata
	e.ParentID = nil
	if w.ParentID != "" {
		parent, err := uuid.Parse(w.ParentID)
		if err != nil {
			return err
		}
		e.ParentID = &parent
	}
	return nil
}
