// Package memapi is an in-memory authoritative Mutation API. It assigns
// versions, stamps writers and publishes every accepted write to a realtime
// publisher, which is what the board server and the tests run against.
package memapi

import (
	"cmp"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/boardsync/internal/collab"
	"github.com/zeusync/boardsync/internal/core/model"
	"github.com/zeusync/boardsync/internal/core/observability/log"
	"github.com/zeusync/boardsync/internal/realtime"
	"github.com/zeusync/boardsync/pkg/sequence"
)

// Publisher receives every accepted write. *realtime.Hub implements it.
type Publisher interface {
	PublishChange(boardID string, change realtime.ChangeEvent)
}

type nopPublisher struct{}

func (nopPublisher) PublishChange(string, realtime.ChangeEvent) {}

var (
	_ collab.Resource[model.Task]   = (*Table[model.Task])(nil)
	_ collab.Resource[model.Column] = (*Table[model.Column])(nil)
	_ collab.Resource[model.Board]  = (*Table[model.Board])(nil)
)

// Table holds the authoritative records of one entity kind.
type Table[T any] struct {
	schema  *model.Schema[T]
	boardOf func(T) string
	pub     Publisher
	logger  log.Log
	now     func() time.Time

	mu      sync.Mutex
	records map[string]model.VersionedRecord[T]
	failure error
	delay   time.Duration
}

func NewTable[T any](schema *model.Schema[T], boardOf func(T) string, pub Publisher, logger log.Log, now func() time.Time) *Table[T] {
	if pub == nil {
		pub = nopPublisher{}
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Table[T]{
		schema:  schema,
		boardOf: boardOf,
		pub:     pub,
		logger:  logger.With(log.String("table", string(schema.Kind))),
		now:     now,
		records: make(map[string]model.VersionedRecord[T]),
	}
}

// Fail makes every following call return err until Fail(nil).
func (t *Table[T]) Fail(err error) {
	t.mu.Lock()
	t.failure = err
	t.mu.Unlock()
}

// Delay holds every following call for d before it is applied.
func (t *Table[T]) Delay(d time.Duration) {
	t.mu.Lock()
	t.delay = d
	t.mu.Unlock()
}

// Seed stores records as they are, without publishing.
func (t *Table[T]) Seed(records ...model.VersionedRecord[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range records {
		t.records[t.schema.ID(r.Data)] = r
	}
}

// Get returns the live record with id.
func (t *Table[T]) Get(id string) (model.VersionedRecord[T], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[id]
	if !ok || t.schema.Deleted(r.Data) {
		return model.VersionedRecord[T]{}, false
	}
	return r, true
}

// List returns the live records of a board, ordered records first by
// container then order.
func (t *Table[T]) List(ctx context.Context, boardID string) ([]model.VersionedRecord[T], error) {
	if err := t.enter(ctx); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	return sequence.FromMap(t.records).
		Filter(func(r model.VersionedRecord[T]) bool {
			return !t.schema.Deleted(r.Data) && (boardID == "" || t.boardOf(r.Data) == boardID)
		}).
		SortBy(t.compare).
		Collect(), nil
}

func (t *Table[T]) Create(ctx context.Context, v T) (model.VersionedRecord[T], error) {
	if err := t.enter(ctx); err != nil {
		return model.VersionedRecord[T]{}, err
	}
	if t.schema.Deleted(v) {
		return model.VersionedRecord[T]{}, fmt.Errorf("create deleted %s: %w", t.schema.Kind, collab.ErrValidation)
	}

	id := t.schema.ID(v)
	if id == "" {
		id = uuid.NewString()
		v = t.schema.SetID(v, id)
	}

	t.mu.Lock()
	prev, ok := t.records[id]
	if ok && !t.schema.Deleted(prev.Data) {
		t.mu.Unlock()
		return model.VersionedRecord[T]{}, fmt.Errorf("%s %s: %w", t.schema.Kind, id, collab.ErrAlreadyExists)
	}
	rec := t.saveLocked(ctx, prev, v)
	t.mu.Unlock()

	t.publish(rec)
	return rec, nil
}

// Update applies the patched fields on top of the stored record.
func (t *Table[T]) Update(ctx context.Context, id string, patch model.Patch[T]) (model.VersionedRecord[T], error) {
	if err := t.enter(ctx); err != nil {
		return model.VersionedRecord[T]{}, err
	}

	t.mu.Lock()
	prev, err := t.liveLocked(id)
	if err != nil {
		t.mu.Unlock()
		return model.VersionedRecord[T]{}, err
	}
	next := t.schema.Clone(prev.Data)
	for _, name := range patch.Fields {
		spec, ok := t.schema.Field(name)
		if !ok || name == model.FieldDeleted {
			t.mu.Unlock()
			return model.VersionedRecord[T]{}, fmt.Errorf("%s field %q: %w", t.schema.Kind, name, collab.ErrValidation)
		}
		spec.Set(&next, spec.Value(patch.Data))
	}
	rec := t.saveLocked(ctx, prev, next)
	t.mu.Unlock()

	t.publish(rec)
	return rec, nil
}

// Delete soft-deletes the record and publishes the tombstone.
func (t *Table[T]) Delete(ctx context.Context, id string) error {
	if err := t.enter(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	prev, err := t.liveLocked(id)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	rec := t.saveLocked(ctx, prev, t.schema.MarkDeleted(t.schema.Clone(prev.Data)))
	t.mu.Unlock()

	t.publish(rec)
	return nil
}

func (t *Table[T]) Move(ctx context.Context, id, containerID string, order int) error {
	if !t.schema.Ordered() {
		return fmt.Errorf("move %s: %w", t.schema.Kind, collab.ErrValidation)
	}
	if err := t.enter(ctx); err != nil {
		return err
	}
	if order < 0 || containerID == "" {
		return fmt.Errorf("move %s to %q at %d: %w", id, containerID, order, collab.ErrValidation)
	}

	t.mu.Lock()
	prev, err := t.liveLocked(id)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	rec := t.saveLocked(ctx, prev, t.schema.Place(t.schema.Clone(prev.Data), containerID, order))
	t.mu.Unlock()

	t.publish(rec)
	return nil
}

// Reorder applies a batch of order changes atomically: either every item
// exists and is written, or none is.
func (t *Table[T]) Reorder(ctx context.Context, items []model.OrderedItem) error {
	if !t.schema.Ordered() {
		return fmt.Errorf("reorder %s: %w", t.schema.Kind, collab.ErrValidation)
	}
	if err := t.enter(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	prevs := make([]model.VersionedRecord[T], len(items))
	for i, it := range items {
		prev, err := t.liveLocked(it.ID)
		if err != nil {
			t.mu.Unlock()
			return err
		}
		if it.Order < 0 {
			t.mu.Unlock()
			return fmt.Errorf("order %d for %s: %w", it.Order, it.ID, collab.ErrValidation)
		}
		prevs[i] = prev
	}
	recs := make([]model.VersionedRecord[T], len(items))
	for i, it := range items {
		container := it.ContainerID
		if container == "" {
			container = t.schema.Container(prevs[i].Data)
		}
		recs[i] = t.saveLocked(ctx, prevs[i], t.schema.Place(t.schema.Clone(prevs[i].Data), container, it.Order))
	}
	t.mu.Unlock()

	for _, rec := range recs {
		t.publish(rec)
	}
	return nil
}

func (t *Table[T]) enter(ctx context.Context) error {
	t.mu.Lock()
	failure, delay := t.failure, t.delay
	t.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return failure
}

func (t *Table[T]) liveLocked(id string) (model.VersionedRecord[T], error) {
	r, ok := t.records[id]
	if !ok || t.schema.Deleted(r.Data) {
		return model.VersionedRecord[T]{}, fmt.Errorf("%s %s: %w", t.schema.Kind, id, collab.ErrNotFound)
	}
	return r, nil
}

func (t *Table[T]) saveLocked(ctx context.Context, prev model.VersionedRecord[T], next T) model.VersionedRecord[T] {
	rec := model.VersionedRecord[T]{
		Data:      next,
		Version:   prev.Version + 1,
		UpdatedAt: t.now(),
		UpdatedBy: collab.ActorFrom(ctx),
	}
	t.records[t.schema.ID(next)] = rec
	return rec
}

func (t *Table[T]) publish(rec model.VersionedRecord[T]) {
	id := t.schema.ID(rec.Data)
	t.logger.Debug("Record written",
		log.String("record_id", id),
		log.Uint64("version", rec.Version),
		log.String("updated_by", rec.UpdatedBy))
	t.pub.PublishChange(t.boardOf(rec.Data), realtime.ChangeEvent{
		RecordType: t.schema.Kind,
		RecordID:   id,
		Record:     rec,
	})
}

func (t *Table[T]) compare(a, b model.VersionedRecord[T]) int {
	if t.schema.Ordered() {
		if c := cmp.Compare(t.schema.Container(a.Data), t.schema.Container(b.Data)); c != 0 {
			return c
		}
		if c := cmp.Compare(t.schema.Order(a.Data), t.schema.Order(b.Data)); c != 0 {
			return c
		}
	}
	return cmp.Compare(t.schema.ID(a.Data), t.schema.ID(b.Data))
}
