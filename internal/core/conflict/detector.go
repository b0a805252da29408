// Package conflict classifies and resolves disagreements between a locally
// held record and a remote version of it. Nothing here mutates state or
// returns errors: outcomes are data.
package conflict

import (
	"time"

	"github.com/zeusync/boardsync/internal/core/model"
)

// HasConflict reports whether remote disagrees with local. An absent local or
// an equal version never conflicts. A differing version with the same
// timestamp and the same writer is an echo of one write and does not conflict.
func HasConflict[T any](local *model.VersionedRecord[T], remote model.VersionedRecord[T]) bool {
	if local == nil || local.Version == remote.Version {
		return false
	}
	if local.UpdatedAt.Equal(remote.UpdatedAt) && local.UpdatedBy == remote.UpdatedBy {
		return false
	}
	return true
}

// IsStaleUpdate reports an out-of-order delivery: remote is older than what is
// already held locally.
func IsStaleUpdate[T any](local *model.VersionedRecord[T], remote model.VersionedRecord[T]) bool {
	return local != nil && remote.Version < local.Version
}

type Detector[T any] struct {
	schema *model.Schema[T]
	now    func() time.Time
}

func NewDetector[T any](schema *model.Schema[T]) *Detector[T] {
	return &Detector[T]{schema: schema, now: time.Now}
}

// WithClock returns a copy of the detector stamping conflicts with now.
func (d *Detector[T]) WithClock(now func() time.Time) *Detector[T] {
	return &Detector[T]{schema: d.schema, now: now}
}

func (d *Detector[T]) Schema() *model.Schema[T] {
	return d.schema
}

func (d *Detector[T]) HasConflict(local *model.VersionedRecord[T], remote model.VersionedRecord[T]) bool {
	return HasConflict(local, remote)
}

func (d *Detector[T]) IsStaleUpdate(local *model.VersionedRecord[T], remote model.VersionedRecord[T]) bool {
	return IsStaleUpdate(local, remote)
}

// DetectConflictType classifies a disagreement. Checks run in a fixed order:
// missing local, local deletion, order change, container change.
func (d *Detector[T]) DetectConflictType(local *model.VersionedRecord[T], remote model.VersionedRecord[T]) model.ConflictType {
	if local == nil {
		return model.ConflictConcurrentEdit
	}
	if d.schema.Deleted(local.Data) && !d.schema.Deleted(remote.Data) {
		return model.ConflictDeleteEdit
	}
	if d.schema.Order != nil && d.schema.Order(local.Data) != d.schema.Order(remote.Data) {
		return model.ConflictOrder
	}
	if d.schema.Container != nil && d.schema.Container(local.Data) != d.schema.Container(remote.Data) {
		return model.ConflictMoveEdit
	}
	return model.ConflictConcurrentEdit
}

// DetectFieldConflicts emits one conflict per field whose value differs.
func (d *Detector[T]) DetectFieldConflicts(local, remote model.VersionedRecord[T]) []model.Conflict {
	var out []model.Conflict
	ts := d.now()
	for _, f := range d.schema.Fields {
		if f.Equal(local.Data, remote.Data) {
			continue
		}
		out = append(out, model.Conflict{
			Type:          fieldConflictType(f.Name),
			LocalVersion:  local.Version,
			RemoteVersion: remote.Version,
			Field:         f.Name,
			DetectedAt:    ts,
		})
	}
	return out
}

// CanAutoMerge is true when nothing differs or every difference is on the
// non-critical allow-list.
func (d *Detector[T]) CanAutoMerge(local, remote model.VersionedRecord[T]) bool {
	for _, c := range d.DetectFieldConflicts(local, remote) {
		if !model.IsNonCritical(c.Field) {
			return false
		}
	}
	return true
}

// recordConflict is the record-level entry used when a resolution has to be
// surfaced without any field-level difference.
func (d *Detector[T]) recordConflict(local, remote model.VersionedRecord[T]) model.Conflict {
	return model.Conflict{
		Type:          d.DetectConflictType(&local, remote),
		LocalVersion:  local.Version,
		RemoteVersion: remote.Version,
		DetectedAt:    d.now(),
	}
}

func fieldConflictType(f model.Field) model.ConflictType {
	switch f {
	case model.FieldOrder:
		return model.ConflictOrder
	case model.FieldStatus, model.FieldBoard:
		return model.ConflictMoveEdit
	case model.FieldDeleted:
		return model.ConflictDeleteEdit
	default:
		return model.ConflictConcurrentEdit
	}
}
