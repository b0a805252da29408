// Package realtime carries change events and presence updates for a board to
// every subscribed client.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zeusync/boardsync/internal/core/model"
)

type EventKind string

const (
	EventChange        EventKind = "change"
	EventPresenceSync  EventKind = "presence_sync"
	EventPresenceJoin  EventKind = "presence_join"
	EventPresenceLeave EventKind = "presence_leave"
)

// ChangeEvent announces a new authoritative version of one record. Record is
// either a model.VersionedRecord of the matching entity or its raw JSON.
type ChangeEvent struct {
	RecordType model.RecordKind `json:"record_type"`
	RecordID   string           `json:"record_id"`
	Record     any              `json:"record"`
}

type Event struct {
	Kind     EventKind             `json:"kind"`
	BoardID  string                `json:"board_id"`
	Change   *ChangeEvent          `json:"change,omitempty"`
	Presence []model.PresenceEntry `json:"presence,omitempty"`
}

// Channel is the per-board realtime subscription surface.
type Channel interface {
	Subscribe(ctx context.Context, boardID string) (Subscription, error)
	Announce(ctx context.Context, boardID string, entry model.PresenceEntry) error
	Leave(ctx context.Context, boardID, participantID string) error
}

// Subscription yields the events of one board to a single consumer. Cancel is
// synchronous and idempotent; after it returns Events is closed.
type Subscription interface {
	ID() string
	Events() <-chan Event
	Cancel()
}

// Decode extracts a typed record from a change event.
func Decode[T any](c *ChangeEvent) (model.VersionedRecord[T], error) {
	switch v := c.Record.(type) {
	case model.VersionedRecord[T]:
		return v, nil
	case *model.VersionedRecord[T]:
		if v == nil {
			break
		}
		return *v, nil
	case json.RawMessage:
		return decodeJSON[T](v)
	case []byte:
		return decodeJSON[T](v)
	}
	return model.VersionedRecord[T]{}, fmt.Errorf("%s %s: %w (%T)", c.RecordType, c.RecordID, ErrUnexpectedPayload, c.Record)
}

func decodeJSON[T any](b []byte) (model.VersionedRecord[T], error) {
	var rec model.VersionedRecord[T]
	if err := json.Unmarshal(b, &rec); err != nil {
		return rec, fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
	}
	return rec, nil
}
