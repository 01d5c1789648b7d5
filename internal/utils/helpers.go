package utils

import (
	"cmp"
	"slices"
)

// SliceToSet converts a slice of any comparable type to a set represented by a map[T]struct{}.
func SliceToSet[T comparable](slice []T) map[T]struct{} {
	set := make(map[T]struct{}, len(slice))
	for _, item := range slice {
		set[item] = struct{}{}
	}
	return set
}

// SortedKeys returns the keys of a set in ascending order.
func SortedKeys[T cmp.Ordered](set map[T]struct{}) []T {
	keys := make([]T, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
