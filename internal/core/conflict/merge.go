package conflict

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// DeepMerge combines a (local) and b (remote) structurally. Slices are unioned
// by value in local-then-novel-remote order, maps are merged key by key and
// every other value takes b.
func DeepMerge(a, b any) any {
	switch bv := b.(type) {
	case []string:
		if av, ok := a.([]string); ok {
			return UnionSlices(av, bv)
		}
	case []int:
		if av, ok := a.([]int); ok {
			return UnionSlices(av, bv)
		}
	case []any:
		if av, ok := a.([]any); ok {
			return unionAny(av, bv)
		}
	case map[string]string:
		if av, ok := a.(map[string]string); ok {
			out := make(map[string]string, len(av)+len(bv))
			for k, v := range av {
				out[k] = v
			}
			for k, v := range bv {
				out[k] = v
			}
			return out
		}
	case map[string]any:
		if av, ok := a.(map[string]any); ok {
			out := make(map[string]any, len(av)+len(bv))
			for k, v := range av {
				out[k] = v
			}
			for k, v := range bv {
				if prev, exists := out[k]; exists {
					out[k] = DeepMerge(prev, v)
				} else {
					out[k] = v
				}
			}
			return out
		}
	}
	return b
}

// UnionSlices returns a's elements followed by those of b not already seen,
// with duplicates removed.
func UnionSlices[E comparable](a, b []E) []E {
	seen := mapset.NewThreadUnsafeSetWithSize[E](len(a) + len(b))
	out := make([]E, 0, len(a)+len(b))
	for _, list := range [][]E{a, b} {
		for _, v := range list {
			if seen.Add(v) {
				out = append(out, v)
			}
		}
	}
	return out
}

// unionAny handles decoded JSON arrays. Comparable elements are deduplicated
// through a set; nested arrays and objects are kept as-is.
func unionAny(a, b []any) []any {
	seen := mapset.NewThreadUnsafeSet[any]()
	out := make([]any, 0, len(a)+len(b))
	for _, list := range [][]any{a, b} {
		for _, v := range list {
			switch v.(type) {
			case []any, map[string]any:
				out = append(out, v)
				continue
			}
			if seen.Add(v) {
				out = append(out, v)
			}
		}
	}
	return out
}
