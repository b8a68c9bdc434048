package delegate

import (
	"github.com/pkg/errors"

	"github.com/born-ml/graphbridge/internal/accel"
)

// tensorTable maps host tensor indexes to accelerator tensors. The slot
// after the last host index holds the placeholder used for index -1.
type tensorTable struct {
	entries []accel.Tensor
}

func newTensorTable(size int, placeholder accel.Tensor) *tensorTable {
	t := &tensorTable{entries: make([]accel.Tensor, size+1)}
	t.entries[size] = placeholder
	return t
}

func (t *tensorTable) slot(idx int) (int, bool) {
	if idx == -1 {
		return len(t.entries) - 1, true
	}
	if idx < 0 || idx >= len(t.entries)-1 {
		return 0, false
	}
	return idx, true
}

// get returns the tensor at idx, or nil when the slot is empty.
func (t *tensorTable) get(idx int) accel.Tensor {
	s, ok := t.slot(idx)
	if !ok {
		return nil
	}
	return t.entries[s]
}

// set stores at into an empty slot.
func (t *tensorTable) set(idx int, at accel.Tensor) error {
	s, ok := t.slot(idx)
	if !ok || idx == -1 {
		return errors.Wrapf(ErrTableEntry, "index %d out of range", idx)
	}
	if t.entries[s] != nil {
		return errors.Wrapf(ErrTableEntry, "index %d already set", idx)
	}
	t.entries[s] = at
	return nil
}
