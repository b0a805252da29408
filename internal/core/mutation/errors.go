package mutation

import (
	"errors"
	"fmt"

	"github.com/zeusync/boardsync/internal/collab"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrRecordNotFound   = errors.New("record not found in local cache")
	ErrUnordered        = errors.New("entity has no container order")
	ErrNoConflict       = errors.New("no unresolved conflict for record")
	ErrContention       = errors.New("container kept changing during reorder")
)

// RejectedError is returned whenever a mutation was rolled back: the
// permission gate denied it or the Mutation API failed.
type RejectedError struct {
	RecordID string
	Action   collab.Action
	Cause    error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s %s rejected: %v", e.Action, e.RecordID, e.Cause)
}

func (e *RejectedError) Unwrap() error {
	return e.Cause
}
