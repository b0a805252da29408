// Package reorder turns drag/drop and explicit move intents into contiguous
// integer order values.
package reorder

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/zeusync/boardsync/internal/core/model"
)

var (
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrItemNotFound    = errors.New("item not found in container")
)

// Sort orders items in place by order, breaking ties by id.
func Sort(items []model.OrderedItem) {
	slices.SortStableFunc(items, func(a, b model.OrderedItem) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Sorted returns a sorted copy of items.
func Sorted(items []model.OrderedItem) []model.OrderedItem {
	out := slices.Clone(items)
	Sort(out)
	return out
}

// Renumber assigns 0..n-1 to items in their current sequence.
func Renumber(items []model.OrderedItem) []model.OrderedItem {
	for i := range items {
		items[i].Order = i
	}
	return items
}

// Reorder moves the item at index from to index to within one container and
// renumbers the whole container. Indexes refer to the container sorted by
// order.
func Reorder(items []model.OrderedItem, from, to int) ([]model.OrderedItem, error) {
	list := Sorted(items)
	if from < 0 || from >= len(list) {
		return nil, fmt.Errorf("source %d of %d: %w", from, len(list), ErrIndexOutOfRange)
	}
	if to < 0 || to >= len(list) {
		return nil, fmt.Errorf("destination %d of %d: %w", to, len(list), ErrIndexOutOfRange)
	}
	moved := list[from]
	list = slices.Delete(list, from, from+1)
	list = slices.Insert(list, to, moved)
	return Renumber(list), nil
}

// IndexOf returns the position of id in the sorted container, or -1.
func IndexOf(items []model.OrderedItem, id string) int {
	return slices.IndexFunc(Sorted(items), func(it model.OrderedItem) bool { return it.ID == id })
}

type MoveResult struct {
	Source      []model.OrderedItem
	Destination []model.OrderedItem
	Moved       model.OrderedItem
}

// Move takes id out of source and inserts it into destination at index,
// renumbering both containers. An index equal to the destination length
// appends. When both lists describe the same container it behaves like
// Reorder.
func Move(source, destination []model.OrderedItem, id, destinationID string, index int) (MoveResult, error) {
	src := Sorted(source)
	from := slices.IndexFunc(src, func(it model.OrderedItem) bool { return it.ID == id })
	if from < 0 {
		return MoveResult{}, fmt.Errorf("%s: %w", id, ErrItemNotFound)
	}

	if src[from].ContainerID == destinationID {
		if index == len(src) {
			index = len(src) - 1
		}
		list, err := Reorder(src, from, index)
		if err != nil {
			return MoveResult{}, err
		}
		moved := list[slices.IndexFunc(list, func(it model.OrderedItem) bool { return it.ID == id })]
		return MoveResult{Source: list, Destination: list, Moved: moved}, nil
	}

	dst := Sorted(destination)
	if index < 0 || index > len(dst) {
		return MoveResult{}, fmt.Errorf("destination %d of %d: %w", index, len(dst), ErrIndexOutOfRange)
	}

	moved := src[from]
	src = Renumber(slices.Delete(src, from, from+1))

	moved.ContainerID = destinationID
	dst = Renumber(slices.Insert(dst, index, moved))
	moved.Order = index

	return MoveResult{Source: src, Destination: dst, Moved: moved}, nil
}

// Changed returns the items of after whose container or order differ from
// their entry in before (or that were not in before at all).
func Changed(before, after []model.OrderedItem) []model.OrderedItem {
	prev := make(map[string]model.OrderedItem, len(before))
	for _, it := range before {
		prev[it.ID] = it
	}
	var out []model.OrderedItem
	for _, it := range after {
		if old, ok := prev[it.ID]; !ok || old != it {
			out = append(out, it)
		}
	}
	return out
}

// Contiguous reports whether items carry exactly the orders 0..n-1.
func Contiguous(items []model.OrderedItem) bool {
	seen := make([]bool, len(items))
	for _, it := range items {
		if it.Order < 0 || it.Order >= len(items) || seen[it.Order] {
			return false
		}
		seen[it.Order] = true
	}
	return true
}
