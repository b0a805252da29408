// Package mutation applies local changes optimistically, confirms or rolls
// them back against the Mutation API, and decides what to do with remote
// events that race an in-flight write.
package mutation

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/boardsync/internal/collab"
	"github.com/zeusync/boardsync/internal/core/cache"
	"github.com/zeusync/boardsync/internal/core/conflict"
	"github.com/zeusync/boardsync/internal/core/model"
	"github.com/zeusync/boardsync/internal/core/observability/log"
)

type Config struct {
	// Gate is consulted before every Mutation API call. Nil allows all.
	Gate collab.PermissionGate
	// Strategy resolves conflicting remote events. Defaults to last_write_wins.
	Strategy model.Strategy
	// OrderStrategy is used instead of Strategy for order and move conflicts,
	// since two permutations cannot be merged. Defaults to last_write_wins.
	OrderStrategy model.Strategy
	// Actor is the local writer identity.
	Actor  string
	Logger log.Log
	Clock  func() time.Time
}

type Coordinator[T any] struct {
	schema        *model.Schema[T]
	store         *cache.Store[T]
	api           collab.MutationAPI[T]
	gate          collab.PermissionGate
	resolver      *conflict.Resolver[T]
	strategy      model.Strategy
	orderStrategy model.Strategy
	actor         string
	logger        log.Log
	now           func() time.Time

	hooksMu    sync.RWMutex
	onConflict func(ConflictReport[T])
	onStale    func(model.VersionedRecord[T])

	mu         sync.Mutex
	records    map[string]*recordState[T]
	tombstones map[string]struct{}
	unresolved map[string]ConflictReport[T]

	applied, ignored, stale, queued atomic.Uint64
	resolved, unresolvedN           atomic.Uint64
	confirmed, rolledBack           atomic.Uint64
}

func New[T any](schema *model.Schema[T], store *cache.Store[T], api collab.MutationAPI[T], cfg Config) *Coordinator[T] {
	if cfg.Gate == nil {
		cfg.Gate = collab.AllowAll
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Strategy == "" {
		cfg.Strategy = model.StrategyLastWriteWins
	}
	if cfg.OrderStrategy == "" {
		cfg.OrderStrategy = model.StrategyLastWriteWins
	}
	logger := cfg.Logger.With(log.String("component", "coordinator"), log.String("kind", string(schema.Kind)))
	return &Coordinator[T]{
		schema:        schema,
		store:         store,
		api:           api,
		gate:          cfg.Gate,
		resolver:      conflict.NewResolver(conflict.NewDetector(schema).WithClock(cfg.Clock), cfg.Logger),
		strategy:      cfg.Strategy,
		orderStrategy: cfg.OrderStrategy,
		actor:         cfg.Actor,
		logger:        logger,
		now:           cfg.Clock,
		records:       make(map[string]*recordState[T]),
		tombstones:    make(map[string]struct{}),
		unresolved:    make(map[string]ConflictReport[T]),
	}
}

func (c *Coordinator[T]) Store() *cache.Store[T] {
	return c.store
}

// Resolver exposes the resolver so callers can register custom strategies.
func (c *Coordinator[T]) Resolver() *conflict.Resolver[T] {
	return c.resolver
}

// OnConflict is called, outside any lock, for every unresolved conflict.
func (c *Coordinator[T]) OnConflict(fn func(ConflictReport[T])) {
	c.hooksMu.Lock()
	c.onConflict = fn
	c.hooksMu.Unlock()
}

// OnStale is called for every remote event dropped as out of order.
func (c *Coordinator[T]) OnStale(fn func(model.VersionedRecord[T])) {
	c.hooksMu.Lock()
	c.onStale = fn
	c.hooksMu.Unlock()
}

func (c *Coordinator[T]) Stats() Stats {
	return Stats{
		Applied:    c.applied.Load(),
		Ignored:    c.ignored.Load(),
		Stale:      c.stale.Load(),
		Queued:     c.queued.Load(),
		Resolved:   c.resolved.Load(),
		Unresolved: c.unresolvedN.Load(),
		Confirmed:  c.confirmed.Load(),
		RolledBack: c.rolledBack.Load(),
	}
}

// Pending returns copies of the mutations currently in flight.
func (c *Coordinator[T]) Pending() []PendingMutation[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []PendingMutation[T]
	for _, st := range c.records {
		if st.current != nil {
			out = append(out, *st.current)
		}
	}
	return out
}

// Conflicts returns the unresolved conflicts awaiting an explicit choice.
func (c *Coordinator[T]) Conflicts() []ConflictReport[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ConflictReport[T], 0, len(c.unresolved))
	for _, r := range c.unresolved {
		out = append(out, r)
	}
	return out
}

// acquire takes the record's slot, waiting behind earlier local writes.
func (c *Coordinator[T]) acquire(ctx context.Context, id string) error {
	c.mu.Lock()
	st, ok := c.records[id]
	if !ok {
		st = &recordState[T]{}
		c.records[id] = st
	}
	if !st.inflight {
		st.inflight = true
		c.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	st.waiters = append(st.waiters, ch)
	c.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		if i := slices.Index(st.waiters, ch); i >= 0 {
			st.waiters = slices.Delete(st.waiters, i, i+1)
			c.mu.Unlock()
			return ctx.Err()
		}
		c.mu.Unlock()
		// the slot was handed to us concurrently
		c.release(id, true)
		return ctx.Err()
	}
}

// acquireAll takes several slots in id order so overlapping multi-record
// writes cannot deadlock.
func (c *Coordinator[T]) acquireAll(ctx context.Context, ids []string) error {
	ids = sortedUnique(ids)
	for i, id := range ids {
		if err := c.acquire(ctx, id); err != nil {
			c.releaseAll(ids[:i], true)
			return err
		}
	}
	return nil
}

// release frees the slot. The queued remote event is integrated first, via
// the resolver after a confirmed write, or directly after a rollback.
func (c *Coordinator[T]) release(id string, resolve bool) {
	c.mu.Lock()
	st, ok := c.records[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	var (
		outcome Outcome
		remote  model.VersionedRecord[T]
		report  *ConflictReport[T]
	)
	if st.queued != nil {
		remote = *st.queued
		st.queued = nil
		outcome, report = c.integrateLocked(remote, resolve)
	}
	st.current = nil
	if len(st.waiters) > 0 {
		next := st.waiters[0]
		st.waiters = st.waiters[1:]
		close(next)
	} else {
		delete(c.records, id)
	}
	c.mu.Unlock()

	if outcome != "" {
		c.observe(outcome, remote, report)
	}
}

func (c *Coordinator[T]) releaseAll(ids []string, resolve bool) {
	for _, id := range ids {
		c.release(id, resolve)
	}
}

// beginLocked snapshots the record, writes the optimistic value into the
// cache and registers the pending mutation.
func (c *Coordinator[T]) beginLocked(id string, action collab.Action, optimistic model.VersionedRecord[T]) *PendingMutation[T] {
	pm := &PendingMutation[T]{
		ID:               uuid.NewString(),
		TargetRecordID:   id,
		Action:           action,
		PreviousSnapshot: c.store.Snapshot(id),
		OptimisticValue:  optimistic.Data,
		Status:           StatusInflight,
	}
	c.store.Put(optimistic)
	c.records[id].current = pm
	return pm
}

// run checks permissions, issues the authoritative write and then confirms or
// rolls back every pending mutation. Slots are released on both paths.
func (c *Coordinator[T]) run(ctx context.Context, muts []*PendingMutation[T], call func(ctx context.Context) (*model.VersionedRecord[T], error)) (*model.VersionedRecord[T], error) {
	lead := muts[0]

	var err error
	for _, pm := range muts {
		var allowed bool
		allowed, err = c.gate.CanPerform(ctx, pm.Action, pm.TargetRecordID)
		if err == nil && !allowed {
			err = ErrPermissionDenied
		}
		if err != nil {
			break
		}
	}

	var authoritative *model.VersionedRecord[T]
	if err == nil {
		authoritative, err = call(collab.WithActor(ctx, c.actor))
	}
	if err != nil {
		c.rollback(muts)
		c.logger.Warn("Mutation rejected, rolled back",
			log.String("record_id", lead.TargetRecordID),
			log.String("action", string(lead.Action)),
			log.Int("records", len(muts)),
			log.Error(err))
		return nil, &RejectedError{RecordID: lead.TargetRecordID, Action: lead.Action, Cause: err}
	}

	c.confirm(muts, authoritative)
	return authoritative, nil
}

func (c *Coordinator[T]) rollback(muts []*PendingMutation[T]) {
	c.mu.Lock()
	for i := len(muts) - 1; i >= 0; i-- {
		pm := muts[i]
		c.store.Restore(pm.TargetRecordID, pm.PreviousSnapshot)
		pm.Status = StatusRolledBack
	}
	c.mu.Unlock()
	c.rolledBack.Add(uint64(len(muts)))

	for _, pm := range muts {
		c.release(pm.TargetRecordID, false)
	}
}

func (c *Coordinator[T]) confirm(muts []*PendingMutation[T], authoritative *model.VersionedRecord[T]) {
	c.mu.Lock()
	for _, pm := range muts {
		switch {
		case pm.Action == collab.ActionDelete:
			c.store.Delete(pm.TargetRecordID)
			c.tombstones[pm.TargetRecordID] = struct{}{}
			delete(c.unresolved, pm.TargetRecordID)
		case authoritative != nil:
			if id := c.schema.ID(authoritative.Data); id != pm.TargetRecordID {
				c.store.Delete(pm.TargetRecordID)
			}
			c.store.Put(*authoritative)
			delete(c.unresolved, pm.TargetRecordID)
		default:
			delete(c.unresolved, pm.TargetRecordID)
		}
		pm.Status = StatusConfirmed
	}
	c.mu.Unlock()
	c.confirmed.Add(uint64(len(muts)))

	for _, pm := range muts {
		c.release(pm.TargetRecordID, true)
	}
}

// ApplyRemote integrates a record delivered by the realtime channel. Stale
// deliveries are dropped first; events racing an in-flight local write are
// queued until that write settles.
func (c *Coordinator[T]) ApplyRemote(remote model.VersionedRecord[T]) Outcome {
	id := c.schema.ID(remote.Data)

	c.mu.Lock()
	var (
		outcome Outcome
		report  *ConflictReport[T]
	)
	if st, ok := c.records[id]; ok && st.inflight {
		outcome = c.queueLocked(st, id, remote)
	} else {
		outcome, report = c.integrateLocked(remote, true)
	}
	c.mu.Unlock()

	c.observe(outcome, remote, report)
	return outcome
}

func (c *Coordinator[T]) queueLocked(st *recordState[T], id string, remote model.VersionedRecord[T]) Outcome {
	if _, dead := c.tombstones[id]; dead {
		if c.schema.Deleted(remote.Data) {
			return OutcomeIgnored
		}
		return OutcomeStale
	}
	local := c.localLocked(id)
	if conflict.IsStaleUpdate(local, remote) {
		return OutcomeStale
	}
	if !conflict.HasConflict(local, remote) {
		return OutcomeIgnored
	}
	if st.queued != nil && remote.Version < st.queued.Version {
		return OutcomeStale
	}
	st.queued = &remote
	return OutcomeQueued
}

func (c *Coordinator[T]) integrateLocked(remote model.VersionedRecord[T], resolve bool) (Outcome, *ConflictReport[T]) {
	id := c.schema.ID(remote.Data)
	if _, dead := c.tombstones[id]; dead {
		if c.schema.Deleted(remote.Data) {
			return OutcomeIgnored, nil
		}
		return OutcomeStale, nil
	}
	local := c.localLocked(id)
	if conflict.IsStaleUpdate(local, remote) {
		return OutcomeStale, nil
	}

	if c.schema.Deleted(remote.Data) {
		c.tombstones[id] = struct{}{}
		delete(c.unresolved, id)
		if local == nil {
			return OutcomeIgnored, nil
		}
		c.store.Delete(id)
		return OutcomeApplied, nil
	}

	if local == nil {
		c.store.Put(remote)
		return OutcomeApplied, nil
	}

	if !conflict.HasConflict(local, remote) {
		if remote.Version > local.Version {
			c.store.Put(remote)
			return OutcomeApplied, nil
		}
		return OutcomeIgnored, nil
	}

	if !resolve || model.Fingerprint(local.Data) == model.Fingerprint(remote.Data) {
		c.store.Put(remote)
		delete(c.unresolved, id)
		return OutcomeApplied, nil
	}

	strategy := c.strategy
	switch c.resolver.Detector().DetectConflictType(local, remote) {
	case model.ConflictOrder, model.ConflictMoveEdit:
		strategy = c.orderStrategy
	}

	res := c.resolver.Resolve(*local, remote, strategy)
	if !res.Resolved {
		report := ConflictReport[T]{RecordID: id, Local: *local, Remote: remote, Resolution: res}
		c.unresolved[id] = report
		return OutcomeUnresolved, &report
	}

	merged := model.VersionedRecord[T]{
		Data:      res.Result,
		Version:   max(local.Version, remote.Version),
		UpdatedAt: remote.UpdatedAt,
		UpdatedBy: remote.UpdatedBy,
	}
	if model.Fingerprint(res.Result) == model.Fingerprint(local.Data) {
		merged.UpdatedAt = local.UpdatedAt
		merged.UpdatedBy = local.UpdatedBy
	}
	c.store.Put(merged)
	delete(c.unresolved, id)
	return OutcomeResolved, nil
}

func (c *Coordinator[T]) localLocked(id string) *model.VersionedRecord[T] {
	if r, ok := c.store.Get(id); ok {
		return &r
	}
	return nil
}

// observe counts, logs and fires hooks for a remote event outcome. It must be
// called without c.mu held.
func (c *Coordinator[T]) observe(outcome Outcome, remote model.VersionedRecord[T], report *ConflictReport[T]) {
	fields := []log.Field{
		log.String("record_id", c.schema.ID(remote.Data)),
		log.Uint64("version", remote.Version),
		log.String("outcome", string(outcome)),
	}
	switch outcome {
	case OutcomeApplied:
		c.applied.Add(1)
	case OutcomeIgnored:
		c.ignored.Add(1)
	case OutcomeQueued:
		c.queued.Add(1)
		c.logger.Debug("Remote event queued behind local write", fields...)
	case OutcomeResolved:
		c.resolved.Add(1)
		c.logger.Debug("Remote event resolved", fields...)
	case OutcomeStale:
		c.stale.Add(1)
		c.logger.Debug("Dropped stale delivery", fields...)
		c.hooksMu.RLock()
		fn := c.onStale
		c.hooksMu.RUnlock()
		if fn != nil {
			fn(remote)
		}
	case OutcomeUnresolved:
		c.unresolvedN.Add(1)
		c.logger.Info("Conflict needs manual resolution",
			append(fields, log.Int("conflicts", len(report.Resolution.Conflicts)))...)
		c.hooksMu.RLock()
		fn := c.onConflict
		c.hooksMu.RUnlock()
		if fn != nil && report != nil {
			fn(*report)
		}
	}
}

func sortedUnique(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
