package opmap

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/born-ml/graphbridge/internal/accel"
	"github.com/born-ml/graphbridge/internal/host"
	"github.com/born-ml/graphbridge/internal/tensor"
)

// registerLayout adds RESHAPE and TRANSPOSE.
func (r *Registry) registerLayout() {
	r.Register(Builtin(host.BuiltinReshape), reshape{})
	r.Register(Builtin(host.BuiltinTranspose), transpose{})
}

// reshape takes its target shape from the output tensor; the optional shape
// operand is ignored.
type reshape struct{}

func (reshape) IsSupported(ctx host.Context, node *host.Node, _ *host.Registration) bool {
	if len(node.Inputs) < 1 || len(node.Inputs) > 2 || len(node.Outputs) != 1 {
		return false
	}
	ts, ok := operands(ctx, []int{node.Inputs[0], node.Outputs[0]})
	if !ok || !checkTensors(ts, 2) {
		return false
	}
	return ts[0].Type == ts[1].Type && ts[0].NumElements() == ts[1].NumElements()
}

func (reshape) ParamSize() int { return 0 }

func (reshape) StateTensorIndexes(*host.Node) []int { return nil }

func (reshape) MapOp(g accel.Graph, inputs, outputs, _ []accel.Tensor, _ []byte) error {
	if err := arity(inputs, outputs, 1, 1); err != nil {
		return err
	}
	return emit(g, accel.Reshape{Size: outputs[0].Spec().Shape}, inputs[:1], outputs[0])
}

// transpose reads its permutation from a constant int32 operand.
type transpose struct{}

func (transpose) IsSupported(ctx host.Context, node *host.Node, _ *host.Registration) bool {
	if len(node.Inputs) != 2 || len(node.Outputs) != 1 {
		return false
	}
	ts, ok := operands(ctx, []int{node.Inputs[0], node.Outputs[0]})
	if !ok || !checkTensors(ts, 2) || ts[0].Type != ts[1].Type {
		return false
	}
	perm := ctx.Tensor(node.Inputs[1])
	if perm == nil || perm.Type != tensor.Int32 || !isConstant(perm) || perm.NumElements() != ts[0].Shape.Rank() {
		return false
	}
	p := make([]int, perm.NumElements())
	for i, v := range perm.AsInt32() {
		p[i] = int(v)
	}
	shape, err := tensor.PermuteShape(ts[0].Shape, p)
	return err == nil && shape.Equal(ts[1].Shape)
}

func (transpose) ParamSize() int { return 0 }

func (transpose) StateTensorIndexes(*host.Node) []int { return nil }

func (transpose) MapOp(g accel.Graph, inputs, outputs, _ []accel.Tensor, _ []byte) error {
	if err := arity(inputs, outputs, 2, 1); err != nil {
		return err
	}
	data := inputs[1].ConstData()
	rank := len(data) / 4
	if rank == 0 || rank != len(inputs[0].Spec().Shape) {
		return errors.Wrapf(accel.ErrShapeMismatch, "permutation of %d bytes for rank %d", len(data), len(inputs[0].Spec().Shape))
	}
	// A permutation p over outermost-first axes becomes q over
	// innermost-first axes: q[j] = r-1-p[r-1-j].
	perm := make([]uint32, rank)
	for j := range perm {
		p := binary.LittleEndian.Uint32(data[4*(rank-1-j):])
		perm[j] = uint32(rank-1) - p //nolint:gosec // G115: rank is at most maxRank
	}
	return emit(g, accel.Transpose{Perm: perm}, inputs[:1], outputs[0])
}
