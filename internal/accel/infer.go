package accel

import (
	"github.com/pkg/errors"
)

// BroadcastShapes broadcasts two innermost-first shapes.
//
// Dimensions are compared starting at index 0 (innermost). They are
// compatible when equal or when one of them is 1; missing dimensions are
// treated as 1.
//
//	[4, 1] + [4, 3] → [4, 3]
//	[4]    + [4, 3] → [4, 3]
//	[4, 2] + [3, 2] → error
func BroadcastShapes(a, b ShapeType) (ShapeType, error) {
	n := max(len(a), len(b))
	out := make(ShapeType, n)
	for i := 0; i < n; i++ {
		da, db := uint32(1), uint32(1)
		if i < len(a) {
			da = a[i]
		}
		if i < len(b) {
			db = b[i]
		}
		switch {
		case da == db:
			out[i] = da
		case da == 1:
			out[i] = db
		case db == 1:
			out[i] = da
		default:
			return nil, errors.Wrapf(ErrShapeMismatch, "cannot broadcast %v and %v at dimension %d", a, b, i)
		}
	}
	return out, nil
}

// NumInputs returns the accepted operand count range of op.
func NumInputs(op Op) (lo, hi int) {
	switch op.(type) {
	case Add, Sub, Multiply:
		return 2, 2
	case FullyConnected:
		return 2, 3
	case RNNCell:
		return 5, 5
	default:
		return 1, 1
	}
}

// NumOutputs returns the number of results op produces.
func NumOutputs(op Op) int {
	if _, ok := op.(RNNCell); ok {
		return 2
	}
	return 1
}

// InferOutputShapes computes the output shapes of op for the given inputs.
// Placeholder operands must not be passed.
func InferOutputShapes(op Op, inputs []TensorSpec) ([]ShapeType, error) {
	lo, hi := NumInputs(op)
	if len(inputs) < lo || len(inputs) > hi {
		return nil, errors.Wrapf(ErrUnbound, "%s takes %d..%d inputs, got %d", op.Kind(), lo, hi, len(inputs))
	}

	switch o := op.(type) {
	case Add, Sub, Multiply:
		s, err := BroadcastShapes(inputs[0].Shape, inputs[1].Shape)
		if err != nil {
			return nil, errors.Wrap(err, op.Kind())
		}
		return []ShapeType{s}, nil

	case Relu, Relu1, Relu6, Tanh, Sigmoid, LeakyRelu:
		return []ShapeType{inputs[0].Shape.Clone()}, nil

	case FullyConnected:
		return inferFullyConnected(inputs)

	case RNNCell:
		return inferRNNCell(inputs)

	case Transpose:
		in := inputs[0].Shape
		if len(o.Perm) != len(in) {
			return nil, errors.Wrapf(ErrShapeMismatch, "Transpose: perm %v for rank %d", o.Perm, len(in))
		}
		out := make(ShapeType, len(in))
		seen := make([]bool, len(in))
		for j, p := range o.Perm {
			if int(p) >= len(in) || seen[p] {
				return nil, errors.Wrapf(ErrShapeMismatch, "Transpose: invalid perm %v", o.Perm)
			}
			seen[p] = true
			out[j] = in[p]
		}
		return []ShapeType{out}, nil

	case Reshape:
		if o.Size.NumElements() != inputs[0].Shape.NumElements() {
			return nil, errors.Wrapf(ErrShapeMismatch, "Reshape: %v to %v", inputs[0].Shape, o.Size)
		}
		return []ShapeType{o.Size.Clone()}, nil

	default:
		return nil, errors.Wrapf(ErrUnsupportedOp, "%s", op.Kind())
	}
}

func inferFullyConnected(inputs []TensorSpec) ([]ShapeType, error) {
	in, w := inputs[0].Shape, inputs[1].Shape
	if len(in) != 2 || len(w) != 2 {
		return nil, errors.Wrapf(ErrShapeMismatch, "FullyConnected: input %v and weights %v must be rank 2", in, w)
	}
	if in[0] != w[0] {
		return nil, errors.Wrapf(ErrShapeMismatch, "FullyConnected: input depth %d, weights depth %d", in[0], w[0])
	}
	if len(inputs) == 3 && inputs[2].Shape.NumElements() != int(w[1]) {
		return nil, errors.Wrapf(ErrShapeMismatch, "FullyConnected: bias %v for %d units", inputs[2].Shape, w[1])
	}
	return []ShapeType{{w[1], in[1]}}, nil
}

func inferRNNCell(inputs []TensorSpec) ([]ShapeType, error) {
	in, w, r, b, h := inputs[0].Shape, inputs[1].Shape, inputs[2].Shape, inputs[3].Shape, inputs[4].Shape
	if len(in) != 2 || len(w) != 2 || len(r) != 2 || len(h) != 2 {
		return nil, errors.Wrapf(ErrShapeMismatch, "RNNCell: input %v, weights %v, recurrent %v, state %v must be rank 2", in, w, r, h)
	}
	units := w[1]
	switch {
	case in[0] != w[0]:
		return nil, errors.Wrapf(ErrShapeMismatch, "RNNCell: input depth %d, weights depth %d", in[0], w[0])
	case r[0] != units || r[1] != units:
		return nil, errors.Wrapf(ErrShapeMismatch, "RNNCell: recurrent weights %v for %d units", r, units)
	case b.NumElements() != int(units):
		return nil, errors.Wrapf(ErrShapeMismatch, "RNNCell: bias %v for %d units", b, units)
	case h[0] != units || h[1] != in[1]:
		return nil, errors.Wrapf(ErrShapeMismatch, "RNNCell: state %v for %d units, batch %d", h, units, in[1])
	}
	out := ShapeType{units, in[1]}
	return []ShapeType{out, out.Clone()}, nil
}
