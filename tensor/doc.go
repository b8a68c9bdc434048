// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor describes tensors as the host inference engine sees them.
//
// # Overview
//
// A Tensor is a descriptor, not a compute object: it carries the element
// type, an outermost-first Shape, optional affine quantization, the backing
// bytes and the kind of memory those bytes live in. The delegate reads
// descriptors to build accelerator tensors and copies data in and out of
// Data on every invocation.
//
// # Basic Usage
//
//	import "github.com/born-ml/graphbridge/tensor"
//
//	x := tensor.New("x", tensor.Float32, tensor.Shape{1, 4})
//	x.Allocate(tensor.AllocArenaRW)
//	copy(x.AsFloat32(), []float32{1, 2, 3, 4})
//
//	w := tensor.FromFloat32("w", tensor.Shape{4}, []float32{1, 1, 1, 1})
//	w.Allocation = tensor.AllocMmapRO // model constant
//
// # Supported Data Types
//
//   - Float32, Float16 (floating-point)
//   - Int32, Int16, Int8, Uint8 (integers, optionally quantized)
//   - Bool (stored as one byte per element)
//   - Float64, Int64 (host only; rejected by the delegate)
//
// # Quantization
//
// PerTensor attaches a single scale and zero point. PerChannel attaches one
// scale per slice along a dimension:
//
//	w.Quant = tensor.PerChannel(0, []float32{0.5, 0.25}, nil)
//
// # Allocation Kinds
//
// AllocMmapRO marks read-only model data; such tensors become constants of
// the accelerator graph. AllocArenaRW and AllocPersistentRW are host scratch
// and variable memory; their contents are copied on every invocation.
package tensor
