// Package reduce provides the pure reducer functions that combine an existing
// channel value with an incoming partial value. Reducers never mutate their
// inputs and are deterministic given a fixed arrival order, which keeps
// repeated runs of the same graph reproducible.
package reduce

// Overwrite returns incoming when it is non-nil, otherwise existing.
// Last write wins.
func Overwrite[T any](existing, incoming *T) *T {
	if incoming == nil {
		return existing
	}
	return incoming
}

// Append concatenates incoming after existing. The result never shares a
// backing array with existing, so later appends cannot clobber snapshots.
func Append[T any](existing, incoming []T) []T {
	if len(incoming) == 0 {
		return existing
	}
	out := make([]T, 0, len(existing)+len(incoming))
	out = append(out, existing...)
	out = append(out, incoming...)
	return out
}

// UnionStrings merges incoming into existing, dropping duplicates while
// preserving first-seen order.
func UnionStrings(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]bool, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, item := range existing {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	for _, item := range incoming {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}

// MergeByKey merges incoming into existing keyed by keyFn. An incoming item
// replaces the existing item with the same key in place; new keys are
// appended in arrival order. The relative order of untouched keys is
// preserved.
func MergeByKey[T any](existing, incoming []T, keyFn func(T) string) []T {
	if len(incoming) == 0 {
		return existing
	}
	index := make(map[string]int, len(existing))
	out := make([]T, len(existing))
	copy(out, existing)
	for i, item := range out {
		index[keyFn(item)] = i
	}
	for _, item := range incoming {
		if i, ok := index[keyFn(item)]; ok {
			out[i] = item
			continue
		}
		index[keyFn(item)] = len(out)
		out = append(out, item)
	}
	return out
}

// FirstWriterByKey appends incoming items whose key has not been seen yet;
// the first writer for a given key wins. Items with an empty key are always
// appended.
func FirstWriterByKey[T any](existing, incoming []T, keyFn func(T) string) []T {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]bool, len(existing))
	for _, item := range existing {
		if k := keyFn(item); k != "" {
			seen[k] = true
		}
	}
	out := make([]T, len(existing), len(existing)+len(incoming))
	copy(out, existing)
	for _, item := range incoming {
		k := keyFn(item)
		if k != "" {
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		out = append(out, item)
	}
	return out
}

// MergeMap shallow-merges incoming into existing, overwriting per key.
func MergeMap[K comparable, V any](existing, incoming map[K]V) map[K]V {
	if len(incoming) == 0 {
		return existing
	}
	out := make(map[K]V, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = v
	}
	return out
}

// DedupeByKey removes items whose key was already seen, keeping the first
// occurrence in place. Items with an empty key are kept as-is.
// DedupeByKey(DedupeByKey(l)) == DedupeByKey(l) for any list l.
func DedupeByKey[T any](items []T, keyFn func(T) string) []T {
	seen := make(map[string]bool, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		k := keyFn(item)
		if k != "" {
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		out = append(out, item)
	}
	return out
}
