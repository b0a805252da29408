// Package cache is the memory-resident local view of a board. It is read by
// the UI and written only by the mutation coordinator.
package cache

import (
	"sync"

	"github.com/zeusync/boardsync/internal/core/model"
)

// Snapshot captures one record as it was before a local write, including
// whether it existed at all.
type Snapshot[T any] struct {
	Record  model.VersionedRecord[T]
	Present bool
}

// Change is delivered to observers after every write. Old or New is nil when
// the record was created or removed.
type Change[T any] struct {
	ID  string
	Old *model.VersionedRecord[T]
	New *model.VersionedRecord[T]
}

type Store[T any] struct {
	mu       sync.RWMutex
	schema   *model.Schema[T]
	records  map[string]model.VersionedRecord[T]
	onChange []func(Change[T])
}

func NewStore[T any](schema *model.Schema[T]) *Store[T] {
	return &Store[T]{
		schema:  schema,
		records: make(map[string]model.VersionedRecord[T]),
	}
}

func (s *Store[T]) Schema() *model.Schema[T] {
	return s.schema
}

func (s *Store[T]) Get(id string) (model.VersionedRecord[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

func (s *Store[T]) Snapshot(id string) Snapshot[T] {
	r, ok := s.Get(id)
	return Snapshot[T]{Record: r, Present: ok}
}

func (s *Store[T]) Put(record model.VersionedRecord[T]) {
	id := s.schema.ID(record.Data)

	s.mu.Lock()
	old, existed := s.records[id]
	s.records[id] = record
	observers := s.onChange
	s.mu.Unlock()

	change := Change[T]{ID: id, New: &record}
	if existed {
		change.Old = &old
	}
	notify(observers, change)
}

func (s *Store[T]) Delete(id string) {
	s.mu.Lock()
	old, existed := s.records[id]
	delete(s.records, id)
	observers := s.onChange
	s.mu.Unlock()

	if existed {
		notify(observers, Change[T]{ID: id, Old: &old})
	}
}

// Restore puts the store back exactly as snap describes it.
func (s *Store[T]) Restore(id string, snap Snapshot[T]) {
	if !snap.Present {
		s.Delete(id)
		return
	}
	s.Put(snap.Record)
}

// Load replaces the whole content, used on cold start. Observers are not
// notified.
func (s *Store[T]) Load(records []model.VersionedRecord[T]) {
	next := make(map[string]model.VersionedRecord[T], len(records))
	for _, r := range records {
		next[s.schema.ID(r.Data)] = r
	}
	s.mu.Lock()
	s.records = next
	s.mu.Unlock()
}

func (s *Store[T]) List() []model.VersionedRecord[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.VersionedRecord[T], 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out
}

func (s *Store[T]) Filter(pred func(model.VersionedRecord[T]) bool) []model.VersionedRecord[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.VersionedRecord[T]
	for _, r := range s.records {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// Items returns the live (non-deleted) members of containerID as ordered items.
// It returns nil for unordered entities.
func (s *Store[T]) Items(containerID string) []model.OrderedItem {
	if !s.schema.Ordered() {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.OrderedItem
	for _, r := range s.records {
		if s.schema.Deleted(r.Data) || s.schema.Container(r.Data) != containerID {
			continue
		}
		item, _ := s.schema.Item(r.Data)
		out = append(out, item)
	}
	return out
}

func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// OnChange registers an observer. Observers run synchronously after the write
// and must not write back into the store's owner.
func (s *Store[T]) OnChange(fn func(Change[T])) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

func notify[T any](observers []func(Change[T]), change Change[T]) {
	for _, fn := range observers {
		fn(change)
	}
}
