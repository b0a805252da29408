package conflict

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zeusync/boardsync/internal/core/model"
	"github.com/zeusync/boardsync/internal/core/observability/log"
)

func newTaskResolver() *Resolver[model.Task] {
	return NewResolver(NewDetector(model.TaskSchema), log.NewNop())
}

func TestLastWriteWins(t *testing.T) {
	r := newTaskResolver()
	older := rec(model.Task{ID: "t1", Title: "old"}, 4, t0, "u1")
	newer := rec(model.Task{ID: "t1", Title: "new"}, 3, t0.Add(time.Second), "u2")

	res := r.LastWriteWins(older, newer)
	assert.True(t, res.Resolved)
	assert.Equal(t, "new", res.Result.Title)
	assert.Equal(t, "new", r.LastWriteWins(newer, older).Result.Title)
}

func TestLastWriteWinsSymmetric(t *testing.T) {
	r := newTaskResolver()
	pairs := [][2]model.VersionedRecord[model.Task]{
		{rec(model.Task{Title: "a"}, 1, t0, "x"), rec(model.Task{Title: "b"}, 2, t0.Add(time.Millisecond), "y")},
		{rec(model.Task{Title: "a"}, 7, t0, "x"), rec(model.Task{Title: "b"}, 2, t0, "y")},
		{rec(model.Task{Title: "a"}, 3, t0, "x"), rec(model.Task{Title: "a"}, 3, t0, "x")},
	}
	for _, p := range pairs {
		assert.Equal(t, r.LastWriteWins(p[0], p[1]).Result, r.LastWriteWins(p[1], p[0]).Result)
		assert.Equal(t, r.FirstWriteWins(p[0], p[1]).Result, r.FirstWriteWins(p[1], p[0]).Result)
	}
}

func TestLastWriteWinsTieFavorsRemote(t *testing.T) {
	r := newTaskResolver()
	local := rec(model.Task{Title: "local"}, 2, t0, "x")
	remote := rec(model.Task{Title: "remote"}, 2, t0, "y")
	assert.Equal(t, "remote", r.LastWriteWins(local, remote).Result.Title)
}

func TestFirstWriteWins(t *testing.T) {
	r := newTaskResolver()
	first := rec(model.Task{Title: "first"}, 1, t0, "u1")
	second := rec(model.Task{Title: "second"}, 2, t0.Add(time.Second), "u2")

	res := r.FirstWriteWins(second, first)
	assert.True(t, res.Resolved)
	assert.Equal(t, model.StrategyFirstWriteWins, res.Strategy)
	assert.Equal(t, "first", res.Result.Title)
}

func TestMergeUpdatesUnionsTags(t *testing.T) {
	r := newTaskResolver()
	local := rec(model.Task{ID: "t1", Tags: []string{"a"}}, 5, t0, "u1")
	remote := rec(model.Task{ID: "t1", Tags: []string{"a", "b"}}, 6, t0.Add(time.Second), "u2")

	require.True(t, r.Detector().CanAutoMerge(local, remote))
	res := r.MergeUpdates(local, remote)
	assert.True(t, res.Resolved)
	assert.Equal(t, []string{"a", "b"}, res.Result.Tags)
}

func TestMergeUpdatesKeepsLocalOnlyFields(t *testing.T) {
	r := newTaskResolver()
	local := rec(model.Task{ID: "t1", Title: "same", Tags: []string{"x", "local"}, Description: "mine", Color: "red"}, 1, t0, "u1")
	remote := rec(model.Task{ID: "t1", Title: "same", Tags: []string{"x", "remote"}, Description: "theirs", Color: "red"}, 2, t0, "u2")

	res := r.MergeUpdates(local, remote)
	require.True(t, res.Resolved)
	assert.Equal(t, []string{"x", "local", "remote"}, res.Result.Tags)
	assert.Equal(t, "theirs", res.Result.Description)
	assert.Equal(t, "red", res.Result.Color)
	assert.Equal(t, "same", res.Result.Title)
}

func TestMergeUpdatesIdempotent(t *testing.T) {
	r := newTaskResolver()
	cases := []struct {
		local, remote model.Task
	}{
		{model.Task{Tags: []string{"a"}}, model.Task{Tags: []string{"a", "b"}}},
		{model.Task{Tags: []string{"a", "c"}, Description: "x"}, model.Task{Tags: []string{"b"}, Description: "y"}},
		{model.Task{Title: "t"}, model.Task{Title: "u"}},
		{model.Task{Color: "red"}, model.Task{Color: "blue", Tags: []string{"z", "z"}}},
	}
	for _, c := range cases {
		remote := rec(c.remote, 9, t0.Add(time.Minute), "r")
		once := r.MergeUpdates(rec(c.local, 8, t0, "l"), remote)
		twice := r.MergeUpdates(rec(once.Result, 8, t0, "l"), remote)
		assert.Equal(t, once.Result, twice.Result)
		assert.Equal(t, once.Resolved, twice.Resolved)
	}
}

func TestManualNeverResolves(t *testing.T) {
	r := newTaskResolver()
	local := rec(model.Task{Title: "a"}, 1, t0, "u1")

	res := r.Manual(local, rec(model.Task{Title: "b"}, 2, t0, "u2"))
	assert.False(t, res.Resolved)
	assert.Equal(t, "a", res.Result.Title)
	require.Len(t, res.Conflicts, 1)

	res = r.Manual(local, rec(model.Task{Title: "a"}, 2, t0, "u2"))
	assert.False(t, res.Resolved)
	require.Len(t, res.Conflicts, 1)
	assert.Empty(t, res.Conflicts[0].Field)
}

func TestResolveDispatch(t *testing.T) {
	r := newTaskResolver()
	local := rec(model.Task{Title: "a"}, 1, t0.Add(time.Second), "u1")
	remote := rec(model.Task{Title: "b"}, 2, t0, "u2")

	assert.Equal(t, model.StrategyLastWriteWins, r.Resolve(local, remote, "").Strategy)
	assert.Equal(t, model.StrategyLastWriteWins, r.Resolve(local, remote, "unknown").Strategy)
	assert.Equal(t, model.StrategyFirstWriteWins, r.Resolve(local, remote, model.StrategyFirstWriteWins).Strategy)
	assert.Equal(t, model.StrategyMerge, r.Resolve(local, remote, model.StrategyMerge).Strategy)
	assert.Equal(t, model.StrategyManual, r.Resolve(local, remote, model.StrategyManual).Strategy)
}

func TestCustomMergeStrategy(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := NewResolver(NewDetector(model.TaskSchema), log.NewWithCore(core))

	local := rec(model.Task{Title: "local"}, 1, t0, "u1")
	remote := rec(model.Task{Title: "remote"}, 2, t0.Add(time.Second), "u2")

	r.Register("concat", func(l, rm model.VersionedRecord[model.Task]) (model.Task, error) {
		out := l.Data
		out.Title = l.Data.Title + "+" + rm.Data.Title
		return out, nil
	})
	res := r.Resolve(local, remote, "concat")
	assert.True(t, res.Resolved)
	assert.Equal(t, model.Strategy("concat"), res.Strategy)
	assert.Equal(t, "local+remote", res.Result.Title)
	assert.Zero(t, logs.Len())

	t.Run("error degrades to last write wins", func(t *testing.T) {
		fn := r.CreateMergeStrategy("failing", func(_, _ model.VersionedRecord[model.Task]) (model.Task, error) {
			return model.Task{}, errors.New("cannot merge")
		})
		res := fn(local, remote)
		assert.True(t, res.Resolved)
		assert.Equal(t, model.StrategyLastWriteWins, res.Strategy)
		assert.Equal(t, "remote", res.Result.Title)
		assert.Equal(t, 1, logs.FilterMessageSnippet("falling back").Len())
	})

	t.Run("panic degrades to last write wins", func(t *testing.T) {
		fn := r.CreateMergeStrategy("panicking", func(_, _ model.VersionedRecord[model.Task]) (model.Task, error) {
			panic("nil map")
		})
		var res model.Resolution[model.Task]
		assert.NotPanics(t, func() { res = fn(local, remote) })
		assert.Equal(t, model.StrategyLastWriteWins, res.Strategy)
		assert.Equal(t, "remote", res.Result.Title)
		assert.Equal(t, 2, logs.FilterMessageSnippet("falling back").Len())
	})
}

func TestDeepMerge(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, DeepMerge([]string{"a", "b"}, []string{"b", "c"}))
	assert.Equal(t, "remote", DeepMerge("local", "remote"))
	assert.Equal(t, 2, DeepMerge(1, 2))

	merged := DeepMerge(
		map[string]any{"keep": 1, "nested": map[string]any{"x": "l", "list": []any{"a"}}},
		map[string]any{"new": true, "nested": map[string]any{"y": "r", "list": []any{"a", "b"}}},
	)
	assert.Equal(t, map[string]any{
		"keep":   1,
		"new":    true,
		"nested": map[string]any{"x": "l", "y": "r", "list": []any{"a", "b"}},
	}, merged)

	// mismatched shapes take the remote value
	assert.Equal(t, "r", DeepMerge([]string{"a"}, "r"))
}

func TestUnionSlicesDeduplicates(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3}, UnionSlices([]int{1, 1, 2}, []int{3, 2}))
	assert.Empty(t, UnionSlices[string](nil, nil))
}
