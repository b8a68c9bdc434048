package delegate

import (
	"github.com/pkg/errors"

	"github.com/born-ml/graphbridge/internal/accel"
	"github.com/born-ml/graphbridge/internal/tensor"
)

// accelType maps host element types onto accelerator element types.
// Bool is stored as one byte per element.
var accelType = map[tensor.DataType]accel.DataType{
	tensor.Float32: accel.Float32,
	tensor.Float16: accel.Float16,
	tensor.Int32:   accel.Int32,
	tensor.Int16:   accel.Int16,
	tensor.Int8:    accel.Int8,
	tensor.Uint8:   accel.Uint8,
	tensor.Bool:    accel.Int8,
}

// effectiveShape treats rank-0 tensors as rank 1 with extent 1.
func effectiveShape(t *tensor.Tensor) tensor.Shape {
	if t.Shape.Rank() == 0 {
		return tensor.Shape{1}
	}
	return t.Shape
}

func checkPermutation(perm []uint32, rank int) ([]int, error) {
	if len(perm) != rank {
		return nil, errors.Wrapf(ErrPermutation, "%v for rank %d", perm, rank)
	}
	seen := make([]bool, rank)
	out := make([]int, rank)
	for i, p := range perm {
		if int(p) >= rank || seen[p] {
			return nil, errors.Wrapf(ErrPermutation, "%v", perm)
		}
		seen[p] = true
		out[i] = int(p)
	}
	return out, nil
}

// ConvertAxis maps a host axis to the accelerator axis. With a permutation
// the axis is first located in the permuted order; the reversal to
// innermost-first order is applied last.
func ConvertAxis(dim, rank int, perm []uint32) int32 {
	pos := dim
	for i, p := range perm {
		if int(p) == dim {
			pos = i
			break
		}
	}
	return int32(rank - 1 - pos) //nolint:gosec // G115: rank is small
}

// TensorSpec builds the accelerator spec of a host tensor. Dimensions are
// permuted by perm (when non-empty) and then reversed.
func TensorSpec(t *tensor.Tensor, perm []uint32, attr accel.Attribute) (accel.TensorSpec, error) {
	dt, ok := accelType[t.Type]
	if !ok {
		return accel.TensorSpec{}, errors.Wrapf(ErrUnsupportedType, "%s", t)
	}

	dims := effectiveShape(t)
	rank := len(dims)
	if q := t.Quant; q.IsPerChannel() {
		if err := checkPerChannel(q, dims); err != nil {
			return accel.TensorSpec{}, errors.Wrapf(err, "tensor %s", t)
		}
	}
	if len(perm) > 0 {
		p, err := checkPermutation(perm, rank)
		if err != nil {
			return accel.TensorSpec{}, errors.Wrapf(err, "tensor %s", t)
		}
		if dims, err = tensor.PermuteShape(dims, p); err != nil {
			return accel.TensorSpec{}, errors.Wrapf(ErrPermutation, "tensor %s: %v", t, err)
		}
	}
	shape := make(accel.ShapeType, rank)
	for j := range shape {
		shape[j] = uint32(dims[rank-1-j]) //nolint:gosec // G115: dimensions are non-negative
	}

	spec := accel.TensorSpec{DataType: dt, Shape: shape, Attr: attr}
	if q := t.Quant; q != nil && len(q.Scales) > 0 {
		if len(q.Scales) == 1 {
			var zp int32
			if len(q.ZeroPoints) > 0 {
				zp = q.ZeroPoints[0]
			}
			spec.Quant = accel.NewAsymmetric(q.Scales[0], zp)
		} else {
			axis := ConvertAxis(q.QuantizedDimension, rank, perm)
			spec.Quant = accel.NewPerChannel(axis, q.Scales, q.ZeroPoints)
		}
	}
	return spec, nil
}

// checkPerChannel validates per-channel parameters against the host shape.
func checkPerChannel(q *tensor.Quantization, dims tensor.Shape) error {
	dim := q.QuantizedDimension
	if dim < 0 || dim >= len(dims) {
		return errors.Wrapf(ErrQuantization, "quantized dimension %d outside rank %d", dim, len(dims))
	}
	if len(q.Scales) != dims[dim] {
		return errors.Wrapf(ErrQuantization, "%d scales for %d channels", len(q.Scales), dims[dim])
	}
	if len(q.ZeroPoints) != 0 && len(q.ZeroPoints) != len(q.Scales) {
		return errors.Wrapf(ErrQuantization, "%d zero points for %d scales", len(q.ZeroPoints), len(q.Scales))
	}
	return nil
}

// elementWidth returns the byte width used to transpose t's data.
func elementWidth(dt tensor.DataType) (int, bool) {
	switch dt {
	case tensor.Float32, tensor.Int32:
		return 4, true
	case tensor.Float16, tensor.Int16:
		return 2, true
	case tensor.Uint8, tensor.Int8, tensor.Bool:
		return 1, true
	default:
		return 0, false
	}
}

// TransposeData returns t's data laid out in permuted dimension order.
// Unsupported element types return ErrUnsupportedType and no data.
func TransposeData(t *tensor.Tensor, perm []uint32) ([]byte, error) {
	width, ok := elementWidth(t.Type)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedType, "transpose %s", t)
	}
	dims := effectiveShape(t)
	p, err := checkPermutation(perm, len(dims))
	if err != nil {
		return nil, errors.Wrapf(err, "tensor %s", t)
	}
	out, err := tensor.TransposeBytes(t.Data, dims, p, width)
	if err != nil {
		return nil, errors.Wrapf(ErrUnsupportedType, "transpose %s: %v", t, err)
	}
	return out, nil
}

// AttributeFor classifies a tensor met as an operand during graph building.
// Tensors carrying model data are constants, checked first. Data held in
// host read-write memory is not model data, so arena activations stay
// internal to the graph and variables keep their flag.
func AttributeFor(t *tensor.Tensor) accel.Attribute {
	switch {
	case t.HasData() && t.Allocation != tensor.AllocArenaRW && t.Allocation != tensor.AllocPersistentRW:
		return accel.Constant
	case t.IsVariable:
		return accel.Variable
	default:
		return accel.Transient
	}
}

// TranslateTensor creates the accelerator tensor for a host tensor.
// Constants carry their data, transposed when perm is non-empty; a constant
// without data is rejected.
func TranslateTensor(g accel.Graph, t *tensor.Tensor, attr accel.Attribute, perm []uint32) (accel.Tensor, error) {
	spec, err := TensorSpec(t, perm, attr)
	if err != nil {
		return nil, err
	}

	var data []byte
	if attr == accel.Constant {
		if !t.HasData() {
			return nil, errors.Wrapf(ErrMissingTensor, "constant %s has no data", t)
		}
		data = t.Data
		if len(perm) > 0 {
			if data, err = TransposeData(t, perm); err != nil {
				return nil, err
			}
		}
	}

	at, err := g.CreateTensor(spec, data)
	if err != nil {
		return nil, errors.Wrapf(err, "create tensor %s", t)
	}
	return at, nil
}
