package nxload

import "golang.org/x/exp/constraints"

// NormalizeIndex makes sure the event index ends with the bin edge of the
// last pulse, i.e. the total number of events n. Producers differ on
// whether that trailing edge is written: when it is missing it is appended,
// otherwise the last entry is overwritten with n. The input is not
// modified.
func NormalizeIndex[T constraints.Integer](index []T, n int) []T {
	total := T(n)
	if len(index) == 0 {
		return []T{total}
	}
	last := len(index) - 1
	if index[last] < total {
		normalized := make([]T, len(index), len(index)+1)
		copy(normalized, index)
		return append(normalized, total)
	}
	normalized := make([]T, len(index))
	copy(normalized, index)
	normalized[last] = total
	return normalized
}
