// Package ragged packs per-entity variable-length series into a flat data
// array plus a cumulative end-offset index. index[i] is the exclusive end of
// entity i's slice in data, so entity i spans data[index[i-1]:index[i]] with
// an implicit start of 0, and index[len(index)-1] == len(data).
package ragged

import (
	"errors"
	"fmt"
)

// ErrInvalidIndex reports an index that does not describe data.
var ErrInvalidIndex = errors.New("invalid ragged index")

// Encode concatenates series and returns the flat data with its index.
// An empty input yields empty (non-nil) data and index.
func Encode[T any](series [][]T) (data []T, index []int64) {
	total := 0
	for _, s := range series {
		total += len(s)
	}
	data = make([]T, 0, total)
	index = make([]int64, 0, len(series))
	for _, s := range series {
		data = append(data, s...)
		index = append(index, int64(len(data)))
	}
	return data, index
}

// Decode splits data back into per-entity series. The returned slices alias
// data.
func Decode[T any](data []T, index []int64) ([][]T, error) {
	if err := Validate(len(data), index); err != nil {
		return nil, err
	}
	series := make([][]T, len(index))
	var start int64
	for i, end := range index {
		series[i] = data[start:end:end]
		start = end
	}
	return series, nil
}

// Validate checks that index is non-decreasing, non-negative and ends at n.
func Validate(n int, index []int64) error {
	if len(index) == 0 {
		if n != 0 {
			return fmt.Errorf("%w: empty index for %d values", ErrInvalidIndex, n)
		}
		return nil
	}
	var prev int64
	for i, end := range index {
		if end < prev {
			return fmt.Errorf("%w: offset %d at entity %d is below %d", ErrInvalidIndex, end, i, prev)
		}
		prev = end
	}
	if last := index[len(index)-1]; last != int64(n) {
		return fmt.Errorf("%w: last offset %d, data holds %d values", ErrInvalidIndex, last, n)
	}
	return nil
}
