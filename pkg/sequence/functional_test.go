package sequence

import (
	"cmp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterSortCollect(t *testing.T) {
	got := From([]int{5, 2, 8, 1, 4}).
		Filter(func(v int) bool { return v%2 == 0 }).
		SortBy(cmp.Compare[int]).
		Collect()
	assert.Equal(t, []int{2, 4, 8}, got)
}

func TestFromMapAndMap(t *testing.T) {
	m := map[string]int{"a": 1, "b": 2, "c": 3}
	got := Map(FromMap(m), func(v int) int { return v * 10 }).SortBy(cmp.Compare[int]).Collect()
	assert.Equal(t, []int{10, 20, 30}, got)
	assert.Equal(t, 3, FromMap(m).Count())
}

func TestEmptyCollectIsNotNil(t *testing.T) {
	got := From([]string{}).Collect()
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFilterStopsEarly(t *testing.T) {
	seen := 0
	it := From([]int{1, 2, 3, 4}).Filter(func(v int) bool { seen++; return true })
	for v := range it.Seq() {
		if v == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}
