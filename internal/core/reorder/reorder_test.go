package reorder

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeusync/boardsync/internal/core/model"
)

func items(container string, ids ...string) []model.OrderedItem {
	out := make([]model.OrderedItem, len(ids))
	for i, id := range ids {
		out[i] = model.OrderedItem{ID: id, ContainerID: container, Order: i}
	}
	return out
}

func ids(list []model.OrderedItem) []string {
	out := make([]string, len(list))
	for i, it := range list {
		out[i] = it.ID
	}
	return out
}

func TestReorderMoveFirstToLast(t *testing.T) {
	got, err := Reorder(items("c", "A", "B", "C"), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []model.OrderedItem{
		{ID: "B", ContainerID: "c", Order: 0},
		{ID: "C", ContainerID: "c", Order: 1},
		{ID: "A", ContainerID: "c", Order: 2},
	}, got)
}

func TestReorderSortsAndBreaksTiesByID(t *testing.T) {
	in := []model.OrderedItem{
		{ID: "z", ContainerID: "c", Order: 10},
		{ID: "b", ContainerID: "c", Order: 3},
		{ID: "a", ContainerID: "c", Order: 3},
	}
	got, err := Reorder(in, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "b"}, ids(got))
	assert.True(t, Contiguous(got))
	assert.Equal(t, 10, in[0].Order, "input must not be modified")
}

func TestReorderContiguousProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for n := 1; n <= 12; n++ {
		for trial := 0; trial < 20; trial++ {
			list := make([]model.OrderedItem, n)
			for i := range list {
				list[i] = model.OrderedItem{ID: string(rune('a' + i)), ContainerID: "c", Order: rng.Intn(5)}
			}
			from, to := rng.Intn(n), rng.Intn(n)
			sorted := Sorted(list)

			got, err := Reorder(list, from, to)
			require.NoError(t, err)
			require.Len(t, got, n)
			assert.True(t, Contiguous(got))
			assert.Equal(t, sorted[from].ID, got[to].ID)
			for i, it := range got {
				assert.Equal(t, i, it.Order)
			}
		}
	}
}

func TestReorderOutOfRange(t *testing.T) {
	_, err := Reorder(items("c", "A"), 0, 1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = Reorder(items("c", "A"), -1, 0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = Reorder(nil, 0, 0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestMoveAcrossContainers(t *testing.T) {
	res, err := Move(items("todo", "A", "B", "C"), items("done", "X", "Y"), "B", "done", 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "C"}, ids(res.Source))
	assert.True(t, Contiguous(res.Source))
	assert.Equal(t, []string{"X", "B", "Y"}, ids(res.Destination))
	assert.True(t, Contiguous(res.Destination))
	assert.Equal(t, model.OrderedItem{ID: "B", ContainerID: "done", Order: 1}, res.Moved)
	for _, it := range res.Destination {
		assert.Equal(t, "done", it.ContainerID)
	}
}

func TestMoveAppendAndEmptyDestination(t *testing.T) {
	res, err := Move(items("todo", "A"), nil, "A", "done", 0)
	require.NoError(t, err)
	assert.Empty(t, res.Source)
	assert.Equal(t, []model.OrderedItem{{ID: "A", ContainerID: "done", Order: 0}}, res.Destination)

	res, err = Move(items("todo", "A", "B"), items("done", "X"), "A", "done", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "A"}, ids(res.Destination))

	_, err = Move(items("todo", "A"), items("done", "X"), "A", "done", 3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = Move(items("todo", "A"), nil, "missing", "done", 0)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestMoveWithinSameContainer(t *testing.T) {
	list := items("c", "A", "B", "C")
	res, err := Move(list, list, "A", "c", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "A"}, ids(res.Destination))
	assert.Equal(t, model.OrderedItem{ID: "A", ContainerID: "c", Order: 2}, res.Moved)

	res, err = Move(list, list, "A", "c", len(list))
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "A"}, ids(res.Destination), "length appends")

	_, err = Move(list, list, "A", "c", len(list)+1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestChanged(t *testing.T) {
	before := items("c", "A", "B", "C", "D")
	after, err := Reorder(before, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B"}, ids(Changed(before, after)))
	assert.Empty(t, Changed(before, before))
}

func TestIndexOf(t *testing.T) {
	list := []model.OrderedItem{{ID: "b", Order: 1}, {ID: "a", Order: 0}}
	assert.Equal(t, 0, IndexOf(list, "a"))
	assert.Equal(t, -1, IndexOf(list, "x"))
}
