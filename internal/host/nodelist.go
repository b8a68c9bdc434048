package host

import "github.com/pkg/errors"

// CountPrefixed encodes indices as [len(indices), indices...].
func CountPrefixed(indices []int) []int {
	out := make([]int, 0, len(indices)+1)
	out = append(out, len(indices))
	return append(out, indices...)
}

// ParseCountPrefixed decodes a list produced by CountPrefixed.
func ParseCountPrefixed(list []int) ([]int, error) {
	if len(list) == 0 {
		return nil, errors.New("count-prefixed list is empty")
	}
	n := list[0]
	if n < 0 || n != len(list)-1 {
		return nil, errors.Errorf("count-prefixed list declares %d entries, carries %d", n, len(list)-1)
	}
	return list[1:], nil
}
