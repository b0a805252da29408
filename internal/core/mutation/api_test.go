package mutation

import (
	"context"
	"sync"
	"time"

	"github.com/zeusync/boardsync/internal/collab"
	"github.com/zeusync/boardsync/internal/core/model"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeTasks is a scripted task API. Calls block on gate when it is set and
// fail with err when it is set.
type fakeTasks struct {
	mu       sync.Mutex
	records  map[string]model.VersionedRecord[model.Task]
	err      error
	gate     chan struct{}
	entered  chan string
	calls    []collab.Action
	reorders [][]model.OrderedItem
}

func newFakeTasks(seed ...model.VersionedRecord[model.Task]) *fakeTasks {
	f := &fakeTasks{
		records: make(map[string]model.VersionedRecord[model.Task]),
		entered: make(chan string, 16),
	}
	for _, r := range seed {
		f.records[r.Data.ID] = r
	}
	return f
}

func (f *fakeTasks) block() {
	f.mu.Lock()
	f.gate = make(chan struct{})
	f.mu.Unlock()
}

func (f *fakeTasks) unblock() {
	f.mu.Lock()
	gate := f.gate
	f.gate = nil
	f.mu.Unlock()
	if gate != nil {
		close(gate)
	}
}

func (f *fakeTasks) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeTasks) enter(action collab.Action) error {
	f.mu.Lock()
	f.calls = append(f.calls, action)
	gate := f.gate
	f.mu.Unlock()

	f.entered <- string(action)
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeTasks) Calls() []collab.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]collab.Action(nil), f.calls...)
}

func (f *fakeTasks) save(ctx context.Context, task model.Task) model.VersionedRecord[model.Task] {
	prev := f.records[task.ID]
	rec := model.VersionedRecord[model.Task]{
		Data:      task,
		Version:   prev.Version + 1,
		UpdatedAt: t0.Add(time.Second),
		UpdatedBy: collab.ActorFrom(ctx),
	}
	f.records[task.ID] = rec
	return rec
}

func (f *fakeTasks) Create(ctx context.Context, task model.Task) (model.VersionedRecord[model.Task], error) {
	if err := f.enter(collab.ActionCreate); err != nil {
		return model.VersionedRecord[model.Task]{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(ctx, task), nil
}

func (f *fakeTasks) Update(ctx context.Context, id string, patch model.Patch[model.Task]) (model.VersionedRecord[model.Task], error) {
	if err := f.enter(collab.ActionUpdate); err != nil {
		return model.VersionedRecord[model.Task]{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.records[id]
	if !ok {
		return model.VersionedRecord[model.Task]{}, collab.ErrNotFound
	}
	task := model.TaskSchema.Clone(current.Data)
	for _, name := range patch.Fields {
		spec, _ := model.TaskSchema.Field(name)
		spec.Set(&task, spec.Value(patch.Data))
	}
	return f.save(ctx, task), nil
}

func (f *fakeTasks) Delete(_ context.Context, id string) error {
	if err := f.enter(collab.ActionDelete); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	return nil
}

func (f *fakeTasks) Move(ctx context.Context, id, containerID string, order int) error {
	if err := f.enter(collab.ActionMove); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	task := f.records[id].Data
	task.StatusID, task.Order = containerID, order
	f.save(ctx, task)
	return nil
}

func (f *fakeTasks) Reorder(ctx context.Context, items []model.OrderedItem) error {
	if err := f.enter(collab.ActionReorder); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reorders = append(f.reorders, append([]model.OrderedItem(nil), items...))
	for _, it := range items {
		task := f.records[it.ID].Data
		task.Order = it.Order
		f.save(ctx, task)
	}
	return nil
}
