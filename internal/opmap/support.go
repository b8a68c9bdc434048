package opmap

import (
	"github.com/pkg/errors"

	"github.com/born-ml/graphbridge/internal/accel"
	"github.com/born-ml/graphbridge/internal/host"
	"github.com/born-ml/graphbridge/internal/tensor"
)

// maxRank is the highest tensor rank the mapped operations accept.
const maxRank = 6

// supportedType reports whether the accelerator can hold dt.
func supportedType(dt tensor.DataType) bool {
	switch dt {
	case tensor.Float32, tensor.Float16, tensor.Int32, tensor.Int16, tensor.Int8, tensor.Uint8:
		return true
	default:
		return false
	}
}

// operands resolves tensor indexes. Optional (-1) entries come back nil.
func operands(ctx host.Context, indexes []int) ([]*tensor.Tensor, bool) {
	out := make([]*tensor.Tensor, len(indexes))
	for i, idx := range indexes {
		if idx < 0 {
			continue
		}
		t := ctx.Tensor(idx)
		if t == nil {
			return nil, false
		}
		out[i] = t
	}
	return out, true
}

// checkTensors verifies that every present tensor has a supported type and
// rank, and that the required leading operands are present.
func checkTensors(ts []*tensor.Tensor, required int) bool {
	for i, t := range ts {
		if t == nil {
			if i < required {
				return false
			}
			continue
		}
		if !supportedType(t.Type) || t.Shape.Rank() > maxRank {
			return false
		}
	}
	return true
}

func isConstant(t *tensor.Tensor) bool {
	return t != nil && t.HasData() && !t.IsVariable
}

// broadcastable reports whether two outermost-first shapes broadcast.
func broadcastable(a, b tensor.Shape) bool {
	for i, j := len(a)-1, len(b)-1; i >= 0 && j >= 0; i, j = i-1, j-1 {
		if a[i] != b[j] && a[i] != 1 && b[j] != 1 {
			return false
		}
	}
	return true
}

// activationOp returns the accel operation for a fused activation; nil for
// ActNone. The bool is false for activations the accelerator lacks.
func activationOp(act host.FusedActivation) (accel.Op, bool) {
	switch act {
	case host.ActNone:
		return nil, true
	case host.ActRelu:
		return accel.Relu{}, true
	case host.ActReluN1To1:
		return accel.Relu1{}, true
	case host.ActRelu6:
		return accel.Relu6{}, true
	case host.ActTanh:
		return accel.Tanh{}, true
	case host.ActSigmoid:
		return accel.Sigmoid{}, true
	default:
		return nil, false
	}
}

func cellActivation(act host.FusedActivation) (accel.Activation, bool) {
	switch act {
	case host.ActNone:
		return accel.ActivationNone, true
	case host.ActRelu:
		return accel.ActivationRelu, true
	case host.ActReluN1To1:
		return accel.ActivationRelu1, true
	case host.ActRelu6:
		return accel.ActivationRelu6, true
	case host.ActTanh:
		return accel.ActivationTanh, true
	case host.ActSigmoid:
		return accel.ActivationSigmoid, true
	default:
		return accel.ActivationNone, false
	}
}

// transient creates an internal tensor like ref with a new shape.
func transient(g accel.Graph, like accel.Tensor, shape accel.ShapeType) (accel.Tensor, error) {
	spec := like.Spec().WithAttr(accel.Transient)
	spec.Shape = shape.Clone()
	return g.CreateTensor(spec, nil)
}

// withActivation returns the tensor the main operation should write to.
// With a fused activation that is a fresh transient, and finish appends the
// activation from it to out; otherwise it is out itself.
func withActivation(g accel.Graph, act host.FusedActivation, out accel.Tensor) (accel.Tensor, func() error, error) {
	op, ok := activationOp(act)
	if !ok {
		return nil, nil, errors.Errorf("unsupported fused activation %d", act)
	}
	if op == nil {
		return out, func() error { return nil }, nil
	}
	tmp, err := transient(g, out, out.Spec().Shape)
	if err != nil {
		return nil, nil, err
	}
	finish := func() error {
		o, err := g.CreateOperation(op)
		if err != nil {
			return err
		}
		o.BindInputs(tmp).BindOutputs(out)
		return nil
	}
	return tmp, finish, nil
}

// emit creates one operation and binds its operands.
func emit(g accel.Graph, op accel.Op, inputs []accel.Tensor, outputs ...accel.Tensor) error {
	o, err := g.CreateOperation(op)
	if err != nil {
		return err
	}
	o.BindInputs(inputs...).BindOutputs(outputs...)
	return nil
}

func arity(inputs, outputs []accel.Tensor, in, out int) error {
	if len(inputs) < in || len(outputs) < out {
		return errors.Wrapf(accel.ErrUnbound, "want %d inputs and %d outputs, got %d and %d", in, out, len(inputs), len(outputs))
	}
	return nil
}
