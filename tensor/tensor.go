// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/graphbridge/internal/tensor"
)

// Type aliases for public API

// Tensor is the host engine's description of a tensor.
type Tensor = tensor.Tensor

// DataType is the element type of a host tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float16 DataType = tensor.Float16
	Int32   DataType = tensor.Int32
	Int16   DataType = tensor.Int16
	Int8    DataType = tensor.Int8
	Uint8   DataType = tensor.Uint8
	Bool    DataType = tensor.Bool
	Float64 DataType = tensor.Float64
	Int64   DataType = tensor.Int64
)

// Shape lists dimensions outermost first.
// Example: Shape{2, 3, 4} is a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// Quantization holds affine quantization parameters.
type Quantization = tensor.Quantization

// Allocation describes where a tensor's bytes live.
type Allocation = tensor.Allocation

// Allocation kinds.
const (
	AllocNone         Allocation = tensor.AllocNone
	AllocMmapRO       Allocation = tensor.AllocMmapRO
	AllocArenaRW      Allocation = tensor.AllocArenaRW
	AllocPersistentRW Allocation = tensor.AllocPersistentRW
)

// New creates a tensor descriptor without data.
func New(name string, dtype DataType, shape Shape) *Tensor {
	return tensor.New(name, dtype, shape)
}

// FromFloat32 builds a Float32 tensor holding a copy of values.
func FromFloat32(name string, shape Shape, values []float32) *Tensor {
	return tensor.FromFloat32(name, shape, values)
}

// FromInt32 builds an Int32 tensor holding a copy of values.
func FromInt32(name string, shape Shape, values []int32) *Tensor {
	return tensor.FromInt32(name, shape, values)
}

// PerTensor returns quantization with a single scale and zero point.
func PerTensor(scale float32, zeroPoint int32) *Quantization {
	return tensor.PerTensor(scale, zeroPoint)
}

// PerChannel returns quantization with one scale per channel of dim.
func PerChannel(dim int, scales []float32, zeroPoints []int32) *Quantization {
	return tensor.PerChannel(dim, scales, zeroPoints)
}
