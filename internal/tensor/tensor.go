package tensor

import (
	"fmt"
	"unsafe"
)

// Allocation describes where a tensor's bytes live.
type Allocation int

// Allocation kinds.
const (
	// AllocNone means no buffer has been assigned (yet).
	AllocNone Allocation = iota
	// AllocMmapRO is read-only constant storage owned by the model, usually memory-mapped.
	AllocMmapRO
	// AllocArenaRW is scratch memory assigned by the host for activations.
	AllocArenaRW
	// AllocPersistentRW survives across invocations (variable tensors).
	AllocPersistentRW
)

// String returns the allocation kind name.
func (a Allocation) String() string {
	switch a {
	case AllocMmapRO:
		return "mmap-ro"
	case AllocArenaRW:
		return "arena-rw"
	case AllocPersistentRW:
		return "persistent-rw"
	default:
		return "none"
	}
}

// Tensor is the host engine's description of a tensor.
//
// Data is nil until the host assigns a buffer. Constant tensors carry their
// payload from construction.
type Tensor struct {
	Name       string
	Type       DataType
	Shape      Shape
	Quant      *Quantization
	Data       []byte
	IsVariable bool
	Allocation Allocation
}

// New creates a tensor descriptor without data.
func New(name string, dtype DataType, shape Shape) *Tensor {
	return &Tensor{
		Name:  name,
		Type:  dtype,
		Shape: shape.Clone(),
	}
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return t.Shape.NumElements()
}

// Bytes returns the size of the tensor payload in bytes.
func (t *Tensor) Bytes() int {
	return t.NumElements() * t.Type.Size()
}

// HasData reports whether a buffer is attached.
func (t *Tensor) HasData() bool {
	return t.Data != nil
}

// Allocate attaches a zeroed buffer of the right size.
func (t *Tensor) Allocate(kind Allocation) {
	t.Data = make([]byte, t.Bytes())
	t.Allocation = kind
}

// String returns a short description used in logs and errors.
func (t *Tensor) String() string {
	return fmt.Sprintf("%s[%s %v]", t.Name, t.Type, []int(t.Shape))
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (t *Tensor) AsFloat32() []float32 {
	if t.Type != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", t.Type))
	}
	if len(t.Data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&t.Data[0])), t.NumElements())
}

// AsInt32 interprets the data as []int32.
// Panics if the tensor's dtype is not Int32.
func (t *Tensor) AsInt32() []int32 {
	if t.Type != Int32 {
		panic(fmt.Sprintf("tensor dtype is %s, not int32", t.Type))
	}
	if len(t.Data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*int32)(unsafe.Pointer(&t.Data[0])), t.NumElements())
}

// AsInt16 interprets the data as []int16.
// Panics if the tensor's dtype is not Int16.
func (t *Tensor) AsInt16() []int16 {
	if t.Type != Int16 {
		panic(fmt.Sprintf("tensor dtype is %s, not int16", t.Type))
	}
	if len(t.Data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*int16)(unsafe.Pointer(&t.Data[0])), t.NumElements())
}

// AsUint8 returns the raw bytes of a Uint8 tensor.
// Panics if the tensor's dtype is not Uint8.
func (t *Tensor) AsUint8() []uint8 {
	if t.Type != Uint8 {
		panic(fmt.Sprintf("tensor dtype is %s, not uint8", t.Type))
	}
	return t.Data
}

// FromFloat32 builds a Float32 tensor whose data is a copy of values.
func FromFloat32(name string, shape Shape, values []float32) *Tensor {
	t := New(name, Float32, shape)
	t.Data = make([]byte, t.Bytes())
	copy(t.AsFloat32(), values)
	return t
}

// FromInt32 builds an Int32 tensor whose data is a copy of values.
func FromInt32(name string, shape Shape, values []int32) *Tensor {
	t := New(name, Int32, shape)
	t.Data = make([]byte, t.Bytes())
	copy(t.AsInt32(), values)
	return t
}
