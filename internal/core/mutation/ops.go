package mutation

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/zeusync/boardsync/internal/collab"
	"github.com/zeusync/boardsync/internal/core/model"
	"github.com/zeusync/boardsync/internal/core/reorder"
)

// reorderAttempts bounds how often a reorder restarts when the container's
// membership changes while its slots are being acquired.
const reorderAttempts = 3

// Create inserts v optimistically with version 0 and replaces it with the
// authoritative record once the Mutation API confirms. A missing id is
// generated.
func (c *Coordinator[T]) Create(ctx context.Context, v T) (model.VersionedRecord[T], error) {
	id := c.schema.ID(v)
	if id == "" {
		id = uuid.NewString()
		v = c.schema.SetID(v, id)
	}

	if err := c.acquire(ctx, id); err != nil {
		return model.VersionedRecord[T]{}, err
	}

	c.mu.Lock()
	if local := c.localLocked(id); local != nil && !c.schema.Deleted(local.Data) {
		c.mu.Unlock()
		c.release(id, true)
		return model.VersionedRecord[T]{}, fmt.Errorf("%s %s: %w", c.schema.Kind, id, collab.ErrAlreadyExists)
	}
	delete(c.tombstones, id)
	pm := c.beginLocked(id, collab.ActionCreate, model.VersionedRecord[T]{
		Data:      v,
		UpdatedAt: c.now(),
		UpdatedBy: c.actor,
	})
	c.mu.Unlock()

	rec, err := c.run(ctx, []*PendingMutation[T]{pm}, func(ctx context.Context) (*model.VersionedRecord[T], error) {
		r, err := c.api.Create(ctx, v)
		if err != nil {
			return nil, err
		}
		return &r, nil
	})
	if err != nil {
		return model.VersionedRecord[T]{}, err
	}
	return *rec, nil
}

// Update applies change to a copy of the cached record and sends only the
// fields that differ. An update that changes nothing returns the cached
// record without calling the Mutation API.
func (c *Coordinator[T]) Update(ctx context.Context, id string, change func(T) T) (model.VersionedRecord[T], error) {
	return c.write(ctx, id, func(local model.VersionedRecord[T]) (T, T, uint64) {
		return change(c.schema.Clone(local.Data)), local.Data, local.Version
	})
}

// ResolveManually submits choice for a record with an unresolved conflict.
// The patch is computed against the remote version, which is what the
// server currently holds. A report whose remote version is no longer newer
// than the cached record is dropped and ErrNoConflict returned.
func (c *Coordinator[T]) ResolveManually(ctx context.Context, id string, choice T) (model.VersionedRecord[T], error) {
	if err := c.acquire(ctx, id); err != nil {
		return model.VersionedRecord[T]{}, err
	}

	c.mu.Lock()
	report, ok := c.unresolved[id]
	if local := c.localLocked(id); ok && (local == nil || local.Version >= report.Remote.Version) {
		delete(c.unresolved, id)
		ok = false
	}
	if !ok {
		c.mu.Unlock()
		c.release(id, true)
		return model.VersionedRecord[T]{}, fmt.Errorf("%s: %w", id, ErrNoConflict)
	}

	if len(c.schema.Diff(report.Remote.Data, c.schema.SetID(choice, id))) == 0 {
		c.store.Put(report.Remote)
		delete(c.unresolved, id)
		c.mu.Unlock()
		c.release(id, true)
		return report.Remote, nil
	}
	c.mu.Unlock()

	return c.writeAcquired(ctx, id, func(local model.VersionedRecord[T]) (T, T, uint64) {
		return c.schema.Clone(choice), report.Remote.Data, max(local.Version, report.Remote.Version)
	})
}

// write is the shared body of Update and ResolveManually. prepare returns the
// next value, the value the server is assumed to hold, and the version the
// optimistic record keeps.
func (c *Coordinator[T]) write(ctx context.Context, id string, prepare func(model.VersionedRecord[T]) (T, T, uint64)) (model.VersionedRecord[T], error) {
	if err := c.acquire(ctx, id); err != nil {
		return model.VersionedRecord[T]{}, err
	}
	return c.writeAcquired(ctx, id, prepare)
}

// writeAcquired runs with the slot of id already held and always releases it.
func (c *Coordinator[T]) writeAcquired(ctx context.Context, id string, prepare func(model.VersionedRecord[T]) (T, T, uint64)) (model.VersionedRecord[T], error) {
	c.mu.Lock()
	local := c.localLocked(id)
	if local == nil || c.schema.Deleted(local.Data) {
		c.mu.Unlock()
		c.release(id, true)
		return model.VersionedRecord[T]{}, fmt.Errorf("%s %s: %w", c.schema.Kind, id, ErrRecordNotFound)
	}
	next, base, version := prepare(*local)
	next = c.schema.SetID(next, id)
	fields := c.schema.Diff(base, next)
	if len(fields) == 0 {
		current := *local
		c.mu.Unlock()
		c.release(id, true)
		return current, nil
	}
	pm := c.beginLocked(id, collab.ActionUpdate, model.VersionedRecord[T]{
		Data:      next,
		Version:   version,
		UpdatedAt: c.now(),
		UpdatedBy: c.actor,
	})
	c.mu.Unlock()

	patch := model.Patch[T]{Fields: fields, Data: next}
	rec, err := c.run(ctx, []*PendingMutation[T]{pm}, func(ctx context.Context) (*model.VersionedRecord[T], error) {
		r, err := c.api.Update(ctx, id, patch)
		if err != nil {
			return nil, err
		}
		return &r, nil
	})
	if err != nil {
		return model.VersionedRecord[T]{}, err
	}
	return *rec, nil
}

// Delete hides the record optimistically and tombstones it on confirmation,
// so late remote updates for the id are dropped.
func (c *Coordinator[T]) Delete(ctx context.Context, id string) error {
	if err := c.acquire(ctx, id); err != nil {
		return err
	}

	c.mu.Lock()
	local := c.localLocked(id)
	if local == nil || c.schema.Deleted(local.Data) {
		c.mu.Unlock()
		c.release(id, true)
		return fmt.Errorf("%s %s: %w", c.schema.Kind, id, ErrRecordNotFound)
	}
	pm := c.beginLocked(id, collab.ActionDelete, model.VersionedRecord[T]{
		Data:      c.schema.MarkDeleted(c.schema.Clone(local.Data)),
		Version:   local.Version,
		UpdatedAt: c.now(),
		UpdatedBy: c.actor,
	})
	c.mu.Unlock()

	_, err := c.run(ctx, []*PendingMutation[T]{pm}, func(ctx context.Context) (*model.VersionedRecord[T], error) {
		return nil, c.api.Delete(ctx, id)
	})
	return err
}

// Reorder moves the item at index from to index to inside containerID and
// renumbers the container. Every item whose order changed is written
// optimistically and rolled back together if the API rejects the batch.
func (c *Coordinator[T]) Reorder(ctx context.Context, containerID string, from, to int) ([]model.OrderedItem, error) {
	if !c.schema.Ordered() {
		return nil, fmt.Errorf("%s: %w", c.schema.Kind, ErrUnordered)
	}

	for range reorderAttempts {
		ids := itemIDs(c.store.Items(containerID))
		if err := c.acquireAll(ctx, ids); err != nil {
			return nil, err
		}

		c.mu.Lock()
		items := c.store.Items(containerID)
		if !sameMembers(ids, itemIDs(items)) {
			c.mu.Unlock()
			c.releaseAll(sortedUnique(ids), true)
			continue
		}

		next, err := reorder.Reorder(items, from, to)
		if err != nil {
			c.mu.Unlock()
			c.releaseAll(sortedUnique(ids), true)
			return nil, err
		}
		changed := reorder.Changed(items, next)
		muts := c.placeLocked(changed, collab.ActionReorder)
		c.mu.Unlock()
		c.releaseUntouched(ids, changed)

		if len(muts) == 0 {
			return next, nil
		}
		_, err = c.run(ctx, muts, func(ctx context.Context) (*model.VersionedRecord[T], error) {
			return nil, c.api.Reorder(ctx, changed)
		})
		if err != nil {
			return nil, err
		}
		return next, nil
	}
	return nil, fmt.Errorf("%s container %s: %w", c.schema.Kind, containerID, ErrContention)
}

// Move takes id out of its container and inserts it at index in
// destinationID, renumbering both containers. The moved item is sent through
// Move and its displaced siblings through Reorder.
func (c *Coordinator[T]) Move(ctx context.Context, id, destinationID string, index int) (reorder.MoveResult, error) {
	if !c.schema.Ordered() {
		return reorder.MoveResult{}, fmt.Errorf("%s: %w", c.schema.Kind, ErrUnordered)
	}

	for range reorderAttempts {
		local, ok := c.store.Get(id)
		if !ok || c.schema.Deleted(local.Data) {
			return reorder.MoveResult{}, fmt.Errorf("%s %s: %w", c.schema.Kind, id, ErrRecordNotFound)
		}
		sourceID := c.schema.Container(local.Data)

		ids := append(itemIDs(c.store.Items(sourceID)), itemIDs(c.store.Items(destinationID))...)
		if err := c.acquireAll(ctx, ids); err != nil {
			return reorder.MoveResult{}, err
		}

		c.mu.Lock()
		current := c.localLocked(id)
		source := c.store.Items(sourceID)
		destination := c.store.Items(destinationID)
		if current == nil || c.schema.Container(current.Data) != sourceID ||
			!sameMembers(ids, append(itemIDs(source), itemIDs(destination)...)) {
			c.mu.Unlock()
			c.releaseAll(sortedUnique(ids), true)
			continue
		}

		res, err := reorder.Move(source, destination, id, destinationID, index)
		if err != nil {
			c.mu.Unlock()
			c.releaseAll(sortedUnique(ids), true)
			return reorder.MoveResult{}, err
		}

		before := source
		after := res.Source
		if sourceID != destinationID {
			before = append(slices.Clone(source), destination...)
			after = append(slices.Clone(res.Source), res.Destination...)
		}
		changed := reorder.Changed(before, after)
		// the moved item leads so rejections are reported against it
		slices.SortStableFunc(changed, func(a, b model.OrderedItem) int {
			switch {
			case a.ID == id:
				return -1
			case b.ID == id:
				return 1
			}
			return 0
		})
		muts := c.placeLocked(changed, collab.ActionReorder)
		if len(muts) > 0 && muts[0].TargetRecordID == id {
			muts[0].Action = collab.ActionMove
		}
		c.mu.Unlock()
		c.releaseUntouched(ids, changed)

		if len(muts) == 0 {
			return res, nil
		}
		siblings := slices.DeleteFunc(slices.Clone(changed), func(it model.OrderedItem) bool { return it.ID == id })
		_, err = c.run(ctx, muts, func(ctx context.Context) (*model.VersionedRecord[T], error) {
			if muts[0].Action == collab.ActionMove {
				if err := c.api.Move(ctx, id, res.Moved.ContainerID, res.Moved.Order); err != nil {
					return nil, err
				}
			}
			if len(siblings) > 0 {
				return nil, c.api.Reorder(ctx, siblings)
			}
			return nil, nil
		})
		if err != nil {
			return reorder.MoveResult{}, err
		}
		return res, nil
	}
	return reorder.MoveResult{}, fmt.Errorf("%s %s: %w", c.schema.Kind, id, ErrContention)
}

// placeLocked writes the new container and order of every changed item into
// the cache and returns one pending mutation per item.
func (c *Coordinator[T]) placeLocked(changed []model.OrderedItem, action collab.Action) []*PendingMutation[T] {
	muts := make([]*PendingMutation[T], 0, len(changed))
	now := c.now()
	for _, it := range changed {
		local := c.localLocked(it.ID)
		if local == nil {
			continue
		}
		muts = append(muts, c.beginLocked(it.ID, action, model.VersionedRecord[T]{
			Data:      c.schema.Place(c.schema.Clone(local.Data), it.ContainerID, it.Order),
			Version:   local.Version,
			UpdatedAt: now,
			UpdatedBy: c.actor,
		}))
	}
	return muts
}

// releaseUntouched frees the slots of items a reorder did not change.
func (c *Coordinator[T]) releaseUntouched(ids []string, changed []model.OrderedItem) {
	touched := make(map[string]struct{}, len(changed))
	for _, it := range changed {
		touched[it.ID] = struct{}{}
	}
	for _, id := range sortedUnique(ids) {
		if _, ok := touched[id]; !ok {
			c.release(id, true)
		}
	}
}

func itemIDs(items []model.OrderedItem) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

func sameMembers(a, b []string) bool {
	set := func(ids []string) map[string]struct{} {
		m := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			m[id] = struct{}{}
		}
		return m
	}
	return maps.Equal(set(a), set(b))
}
