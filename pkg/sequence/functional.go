package sequence

import (
	"iter"
	"maps"
	"slices"
)

// Iterator is a lazy, chainable view over a sequence of T.
type Iterator[T any] struct {
	seq iter.Seq[T]
}

// From iterates over a slice.
func From[T any](data []T) *Iterator[T] {
	return &Iterator[T]{seq: slices.Values(data)}
}

// FromMap iterates over the values of a map in unspecified order.
func FromMap[K comparable, T any](data map[K]T) *Iterator[T] {
	return &Iterator[T]{seq: maps.Values(data)}
}

// Seq exposes the underlying sequence for range-over-func.
func (i *Iterator[T]) Seq() iter.Seq[T] {
	return i.seq
}

// Filter keeps elements satisfying pred.
func (i *Iterator[T]) Filter(pred func(T) bool) *Iterator[T] {
	return &Iterator[T]{
		seq: func(yield func(T) bool) {
			for v := range i.seq {
				if pred(v) && !yield(v) {
					return
				}
			}
		},
	}
}

// SortBy collects and sorts with a three-way compare function. Stable.
func (i *Iterator[T]) SortBy(cmp func(a, b T) int) *Iterator[T] {
	data := i.Collect()
	slices.SortStableFunc(data, cmp)
	return From(data)
}

// Collect exhausts the iterator into a slice. An empty iterator yields a
// non-nil empty slice.
func (i *Iterator[T]) Collect() []T {
	out := make([]T, 0)
	for v := range i.seq {
		out = append(out, v)
	}
	return out
}

// Count returns the number of elements.
func (i *Iterator[T]) Count() int {
	n := 0
	for range i.seq {
		n++
	}
	return n
}

// Map transforms each element.
func Map[T, R any](i *Iterator[T], fn func(T) R) *Iterator[R] {
	return &Iterator[R]{
		seq: func(yield func(R) bool) {
			for v := range i.seq {
				if !yield(fn(v)) {
					return
				}
			}
		},
	}
}
