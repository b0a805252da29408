package conflict

import (
	"fmt"
	"sync"

	"github.com/zeusync/boardsync/internal/core/model"
	"github.com/zeusync/boardsync/internal/core/observability/log"
)

// MergeFunc is a caller-supplied merge. Returning an error or panicking makes
// the resolver fall back to last_write_wins.
type MergeFunc[T any] func(local, remote model.VersionedRecord[T]) (T, error)

// ResolveFunc resolves two versions of one record.
type ResolveFunc[T any] func(local, remote model.VersionedRecord[T]) model.Resolution[T]

type Resolver[T any] struct {
	detector *Detector[T]
	logger   log.Log

	mu     sync.RWMutex
	custom map[model.Strategy]ResolveFunc[T]
}

func NewResolver[T any](detector *Detector[T], logger log.Log) *Resolver[T] {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Resolver[T]{
		detector: detector,
		logger:   logger.With(log.String("component", "resolver"), log.String("kind", string(detector.Schema().Kind))),
		custom:   make(map[model.Strategy]ResolveFunc[T]),
	}
}

func (r *Resolver[T]) Detector() *Detector[T] {
	return r.detector
}

// Resolve dispatches on strategy. Unknown strategies that were not registered
// through Register resolve as last_write_wins.
func (r *Resolver[T]) Resolve(local, remote model.VersionedRecord[T], strategy model.Strategy) model.Resolution[T] {
	switch strategy {
	case model.StrategyLastWriteWins:
		return r.LastWriteWins(local, remote)
	case model.StrategyFirstWriteWins:
		return r.FirstWriteWins(local, remote)
	case model.StrategyMerge:
		return r.MergeUpdates(local, remote)
	case model.StrategyManual:
		return r.Manual(local, remote)
	}

	r.mu.RLock()
	fn, ok := r.custom[strategy]
	r.mu.RUnlock()
	if ok {
		return fn(local, remote)
	}
	return r.LastWriteWins(local, remote)
}

// Register makes a custom strategy available to Resolve under name.
func (r *Resolver[T]) Register(name model.Strategy, fn MergeFunc[T]) {
	r.mu.Lock()
	r.custom[name] = r.CreateMergeStrategy(name, fn)
	r.mu.Unlock()
}

// LastWriteWins keeps the data with the later UpdatedAt. On an exact tie the
// higher version wins, then remote.
func (r *Resolver[T]) LastWriteWins(local, remote model.VersionedRecord[T]) model.Resolution[T] {
	winner := remote
	switch {
	case local.UpdatedAt.After(remote.UpdatedAt):
		winner = local
	case local.UpdatedAt.Equal(remote.UpdatedAt) && local.Version > remote.Version:
		winner = local
	}
	return model.Resolution[T]{Resolved: true, Strategy: model.StrategyLastWriteWins, Result: winner.Data}
}

// FirstWriteWins keeps the data with the earlier UpdatedAt. On an exact tie
// the lower version wins, then remote.
func (r *Resolver[T]) FirstWriteWins(local, remote model.VersionedRecord[T]) model.Resolution[T] {
	winner := remote
	switch {
	case local.UpdatedAt.Before(remote.UpdatedAt):
		winner = local
	case local.UpdatedAt.Equal(remote.UpdatedAt) && local.Version < remote.Version:
		winner = local
	}
	return model.Resolution[T]{Resolved: true, Strategy: model.StrategyFirstWriteWins, Result: winner.Data}
}

// MergeUpdates starts from local and takes the remote side of every differing
// field, deep-merging where the value is structured. It only proceeds when all
// differences are non-critical; otherwise local is kept and the field
// conflicts are returned for manual resolution.
func (r *Resolver[T]) MergeUpdates(local, remote model.VersionedRecord[T]) model.Resolution[T] {
	conflicts := r.detector.DetectFieldConflicts(local, remote)
	for _, c := range conflicts {
		if !model.IsNonCritical(c.Field) {
			return model.Resolution[T]{
				Resolved:  false,
				Strategy:  model.StrategyMerge,
				Result:    local.Data,
				Conflicts: conflicts,
			}
		}
	}

	result := local.Data
	for _, c := range conflicts {
		spec, ok := r.detector.Schema().Field(c.Field)
		if !ok {
			continue
		}
		spec.Set(&result, DeepMerge(spec.Value(local.Data), spec.Value(remote.Data)))
	}
	return model.Resolution[T]{Resolved: true, Strategy: model.StrategyMerge, Result: result}
}

// Manual never resolves; the caller presents Conflicts and re-submits a choice.
func (r *Resolver[T]) Manual(local, remote model.VersionedRecord[T]) model.Resolution[T] {
	conflicts := r.detector.DetectFieldConflicts(local, remote)
	if len(conflicts) == 0 {
		conflicts = []model.Conflict{r.detector.recordConflict(local, remote)}
	}
	return model.Resolution[T]{
		Resolved:  false,
		Strategy:  model.StrategyManual,
		Result:    local.Data,
		Conflicts: conflicts,
	}
}

// CreateMergeStrategy wraps fn so that a failing or panicking merge degrades
// to last_write_wins with a warning instead of propagating.
func (r *Resolver[T]) CreateMergeStrategy(name model.Strategy, fn MergeFunc[T]) ResolveFunc[T] {
	return func(local, remote model.VersionedRecord[T]) (res model.Resolution[T]) {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Warn("Custom merge panicked, falling back to last_write_wins",
					log.String("strategy", string(name)),
					log.Error(fmt.Errorf("panic: %v", p)))
				res = r.LastWriteWins(local, remote)
			}
		}()

		merged, err := fn(local, remote)
		if err != nil {
			r.logger.Warn("Custom merge failed, falling back to last_write_wins",
				log.String("strategy", string(name)),
				log.Error(err))
			return r.LastWriteWins(local, remote)
		}
		return model.Resolution[T]{Resolved: true, Strategy: name, Result: merged}
	}
}
