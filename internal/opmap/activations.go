package opmap

import (
	"github.com/born-ml/graphbridge/internal/accel"
	"github.com/born-ml/graphbridge/internal/host"
)

// registerActivations adds the standalone activation operators.
func (r *Registry) registerActivations() {
	r.Register(Builtin(host.BuiltinRelu), unaryOp{op: accel.Relu{}})
	r.Register(Builtin(host.BuiltinReluN1To1), unaryOp{op: accel.Relu1{}})
	r.Register(Builtin(host.BuiltinRelu6), unaryOp{op: accel.Relu6{}})
	r.Register(Builtin(host.BuiltinTanh), unaryOp{op: accel.Tanh{}})
	r.Register(Builtin(host.BuiltinLogistic), unaryOp{op: accel.Sigmoid{}})
	r.Register(Custom(host.CustomLeakyRelu), leakyRelu{})
}

func sameTypeUnary(ctx host.Context, node *host.Node) bool {
	if len(node.Inputs) != 1 || len(node.Outputs) != 1 {
		return false
	}
	ts, ok := operands(ctx, []int{node.Inputs[0], node.Outputs[0]})
	if !ok || !checkTensors(ts, 2) {
		return false
	}
	return ts[0].Type == ts[1].Type && ts[0].Shape.Equal(ts[1].Shape)
}

// unaryOp is a parameterless activation.
type unaryOp struct {
	op accel.Op
}

func (unaryOp) IsSupported(ctx host.Context, node *host.Node, _ *host.Registration) bool {
	return sameTypeUnary(ctx, node)
}

func (unaryOp) ParamSize() int { return 0 }

func (unaryOp) StateTensorIndexes(*host.Node) []int { return nil }

func (u unaryOp) MapOp(g accel.Graph, inputs, outputs, _ []accel.Tensor, _ []byte) error {
	if err := arity(inputs, outputs, 1, 1); err != nil {
		return err
	}
	return emit(g, u.op, inputs[:1], outputs[0])
}

// leakyRelu reads its slope from the custom data.
type leakyRelu struct{}

func (leakyRelu) IsSupported(ctx host.Context, node *host.Node, _ *host.Registration) bool {
	return sameTypeUnary(ctx, node)
}

func (leakyRelu) ParamSize() int { return host.ParamSize(host.LeakyReluParams{}) }

func (leakyRelu) StateTensorIndexes(*host.Node) []int { return nil }

func (leakyRelu) MapOp(g accel.Graph, inputs, outputs, _ []accel.Tensor, params []byte) error {
	if err := arity(inputs, outputs, 1, 1); err != nil {
		return err
	}
	var p host.LeakyReluParams
	if err := host.DecodeParams(params, &p); err != nil {
		return err
	}
	return emit(g, accel.LeakyRelu{Alpha: p.Alpha}, inputs[:1], outputs[0])
}
