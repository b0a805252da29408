package mutation

import (
	"github.com/zeusync/boardsync/internal/collab"
	"github.com/zeusync/boardsync/internal/core/cache"
	"github.com/zeusync/boardsync/internal/core/model"
)

type Status string

const (
	StatusInflight   Status = "inflight"
	StatusConfirmed  Status = "confirmed"
	StatusRolledBack Status = "rolled_back"
)

// PendingMutation is one optimistic local write waiting for the Mutation API.
type PendingMutation[T any] struct {
	ID               string
	TargetRecordID   string
	Action           collab.Action
	PreviousSnapshot cache.Snapshot[T]
	OptimisticValue  T
	Status           Status
}

// Outcome says what happened to a remote event.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeStale      Outcome = "stale"
	OutcomeQueued     Outcome = "queued"
	OutcomeResolved   Outcome = "resolved"
	OutcomeUnresolved Outcome = "unresolved"
)

// ConflictReport is surfaced when a resolution could not be made
// automatically. The cache keeps Local until the caller submits a choice.
type ConflictReport[T any] struct {
	RecordID   string
	Local      model.VersionedRecord[T]
	Remote     model.VersionedRecord[T]
	Resolution model.Resolution[T]
}

type Stats struct {
	Applied    uint64
	Ignored    uint64
	Stale      uint64
	Queued     uint64
	Resolved   uint64
	Unresolved uint64
	Confirmed  uint64
	RolledBack uint64
}

// recordState is the per-record slot. While inflight, local writes wait in
// waiters and the newest conflicting remote version waits in queued.
type recordState[T any] struct {
	inflight bool
	waiters  []chan struct{}
	queued   *model.VersionedRecord[T]
	current  *PendingMutation[T]
}
