package opmap

import (
	"github.com/born-ml/graphbridge/internal/accel"
	"github.com/born-ml/graphbridge/internal/host"
)

// registerElementwise adds ADD, SUB and MUL.
func (r *Registry) registerElementwise() {
	r.Register(Builtin(host.BuiltinAdd), binaryOp{newOp: func() accel.Op { return accel.Add{} }})
	r.Register(Builtin(host.BuiltinSub), binaryOp{newOp: func() accel.Op { return accel.Sub{} }})
	r.Register(Builtin(host.BuiltinMul), binaryOp{newOp: func() accel.Op { return accel.Multiply{Scale: 1} }})
}

// binaryOp is a broadcasting arithmetic operator with a fused activation.
type binaryOp struct {
	newOp func() accel.Op
}

func (binaryOp) IsSupported(ctx host.Context, node *host.Node, _ *host.Registration) bool {
	if len(node.Inputs) != 2 || len(node.Outputs) != 1 {
		return false
	}
	ts, ok := operands(ctx, append(append([]int(nil), node.Inputs...), node.Outputs...))
	if !ok || !checkTensors(ts, 3) {
		return false
	}
	a, b, out := ts[0], ts[1], ts[2]
	if a.Type != b.Type || a.Type != out.Type {
		return false
	}
	var p host.ArithmeticParams
	if err := host.DecodeParams(node.BuiltinData, &p); err != nil {
		return false
	}
	if _, ok := activationOp(p.Activation); !ok {
		return false
	}
	return broadcastable(a.Shape, b.Shape)
}

func (binaryOp) ParamSize() int { return host.ParamSize(host.ArithmeticParams{}) }

func (binaryOp) StateTensorIndexes(*host.Node) []int { return nil }

func (b binaryOp) MapOp(g accel.Graph, inputs, outputs, _ []accel.Tensor, params []byte) error {
	if err := arity(inputs, outputs, 2, 1); err != nil {
		return err
	}
	var p host.ArithmeticParams
	if err := host.DecodeParams(params, &p); err != nil {
		return err
	}
	target, finish, err := withActivation(g, p.Activation, outputs[0])
	if err != nil {
		return err
	}
	if err := emit(g, b.newOp(), inputs[:2], target); err != nil {
		return err
	}
	return finish()
}
