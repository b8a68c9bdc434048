// Package layout rebuilds accel graphs before compilation.
//
// Infer copies a graph into a fresh graph of the same context, checking every
// operation's output shapes on the way and dropping layout operations that do
// nothing (identity transposes, same-shape reshapes). The returned TensorMap
// tells callers which tensor of the new graph stands for each tensor of the
// original one, so that host buffers can be bound after the rewrite.
package layout

import (
	"github.com/pkg/errors"

	"github.com/born-ml/graphbridge/internal/accel"
)

// TensorMap maps tensors of the source graph to tensors of the inferred graph.
type TensorMap map[accel.Tensor]accel.Tensor

// Lookup returns the inferred counterpart of t.
func (m TensorMap) Lookup(t accel.Tensor) (accel.Tensor, bool) {
	if t == nil {
		return nil, false
	}
	out, ok := m[t]
	return out, ok
}

// Infer rebuilds src into a new graph created by ctx.
// The source graph must not be compiled yet; it is left untouched.
func Infer(src accel.Graph, ctx accel.Context) (accel.Graph, TensorMap, error) {
	if src.Compiled() {
		return nil, nil, errors.Wrap(accel.ErrGraphCompiled, "layout inference")
	}
	dst, err := ctx.CreateGraph()
	if err != nil {
		return nil, nil, errors.Wrap(err, "create inferred graph")
	}

	ops := src.Operations()
	elided := make([]bool, len(ops))
	alias := make(map[accel.Tensor]accel.Tensor)
	for i, o := range ops {
		if in, out, ok := noop(o); ok {
			elided[i] = true
			alias[out] = in
		}
	}

	m := make(TensorMap, len(src.Tensors()))
	for _, t := range src.Tensors() {
		if _, ok := alias[t]; ok {
			continue
		}
		if t.IsPlaceholder() {
			m[t] = dst.CreateTensorPlaceholder()
			continue
		}
		nt, err := dst.CreateTensor(t.Spec(), t.ConstData())
		if err != nil {
			return nil, nil, errors.Wrapf(err, "tensor %d", t.ID())
		}
		m[t] = nt
	}
	// Chains of elided ops resolve to the first real producer.
	for out := range alias {
		in := alias[out]
		for {
			next, ok := alias[in]
			if !ok {
				break
			}
			in = next
		}
		m[out] = m[in]
	}

	for i, o := range ops {
		if elided[i] {
			continue
		}
		if err := checkShapes(o); err != nil {
			return nil, nil, errors.Wrapf(err, "operation %d (%s)", i, o.Op().Kind())
		}
		no, err := dst.CreateOperation(o.Op())
		if err != nil {
			return nil, nil, errors.Wrapf(err, "operation %d (%s)", i, o.Op().Kind())
		}
		no.BindInputs(remap(m, o.Inputs())...).BindOutputs(remap(m, o.Outputs())...)
	}
	return dst, m, nil
}

// noop reports whether o is a layout operation that leaves its data unchanged
// and whose output is internal to the graph.
func noop(o accel.Operation) (in, out accel.Tensor, ok bool) {
	if len(o.Inputs()) != 1 || len(o.Outputs()) != 1 {
		return nil, nil, false
	}
	in, out = o.Inputs()[0], o.Outputs()[0]
	if in.IsPlaceholder() || out.IsPlaceholder() || out.Spec().Attr != accel.Transient {
		return nil, nil, false
	}
	is, os := in.Spec(), out.Spec()
	if is.DataType != os.DataType || !is.Shape.Equal(os.Shape) {
		return nil, nil, false
	}

	switch op := o.Op().(type) {
	case accel.Transpose:
		for j, p := range op.Perm {
			if int(p) != j {
				return nil, nil, false
			}
		}
		return in, out, len(op.Perm) == len(is.Shape)
	case accel.Reshape:
		return in, out, true
	default:
		return nil, nil, false
	}
}

func checkShapes(o accel.Operation) error {
	inputs := make([]accel.TensorSpec, 0, len(o.Inputs()))
	for _, t := range o.Inputs() {
		if !t.IsPlaceholder() {
			inputs = append(inputs, t.Spec())
		}
	}
	shapes, err := accel.InferOutputShapes(o.Op(), inputs)
	if err != nil {
		return err
	}
	if len(shapes) != len(o.Outputs()) {
		return errors.Wrapf(accel.ErrUnbound, "%d outputs bound, %d expected", len(o.Outputs()), len(shapes))
	}
	for i, t := range o.Outputs() {
		if !t.Spec().Shape.Equal(shapes[i]) {
			return errors.Wrapf(accel.ErrShapeMismatch, "output %d is %v, inferred %v", i, t.Spec().Shape, shapes[i])
		}
	}
	return nil
}

func remap(m TensorMap, ts []accel.Tensor) []accel.Tensor {
	out := make([]accel.Tensor, len(ts))
	for i, t := range ts {
		out[i] = m[t]
	}
	return out
}
