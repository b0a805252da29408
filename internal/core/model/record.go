// Package model holds the board entities and the value types shared by the
// conflict detector, resolver, reorder engine and mutation coordinator.
package model

import (
	"time"
)

type RecordKind string

const (
	KindTask   RecordKind = "task"
	KindColumn RecordKind = "column"
	KindBoard  RecordKind = "board"
)

// VersionedRecord wraps an entity with the server-assigned write metadata.
// Two records with equal Version are equal in content.
type VersionedRecord[T any] struct {
	Data      T         `json:"data"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
}

// Ptr returns a pointer to a copy of r. Handy for the optional local side of
// detector calls.
func (r VersionedRecord[T]) Ptr() *VersionedRecord[T] {
	return &r
}

type ConflictType string

const (
	ConflictConcurrentEdit ConflictType = "concurrent_edit"
	ConflictDeleteEdit     ConflictType = "delete_edit"
	ConflictMoveEdit       ConflictType = "move_edit"
	ConflictOrder          ConflictType = "order_conflict"
)

// Conflict describes one disagreement between a local and a remote version.
// Field is empty for record-level conflicts.
type Conflict struct {
	Type          ConflictType `json:"type"`
	LocalVersion  uint64       `json:"local_version"`
	RemoteVersion uint64       `json:"remote_version"`
	Field         Field        `json:"field,omitempty"`
	DetectedAt    time.Time    `json:"detected_at"`
}

type Strategy string

const (
	StrategyLastWriteWins  Strategy = "last_write_wins"
	StrategyFirstWriteWins Strategy = "first_write_wins"
	StrategyMerge          Strategy = "merge"
	StrategyManual         Strategy = "manual"
)

// ParseStrategy returns the named strategy, or last_write_wins for anything
// unknown or empty.
func ParseStrategy(s string) Strategy {
	switch Strategy(s) {
	case StrategyFirstWriteWins, StrategyMerge, StrategyManual:
		return Strategy(s)
	default:
		return StrategyLastWriteWins
	}
}

// Resolution is the outcome of combining two versions. Resolved=false means
// the caller must keep Result (the local data) and present Conflicts.
type Resolution[T any] struct {
	Resolved  bool       `json:"resolved"`
	Strategy  Strategy   `json:"strategy"`
	Result    T          `json:"result"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// Patch is the payload of an update: the changed field names and the full
// optimistic value they were taken from.
type Patch[T any] struct {
	Fields []Field `json:"fields"`
	Data   T       `json:"data"`
}

// OrderedItem is any entity participating in a sequenced container.
type OrderedItem struct {
	ID          string `json:"id"`
	ContainerID string `json:"container_id"`
	Order       int    `json:"order"`
}
