package opmap

import (
	"github.com/pkg/errors"

	"github.com/born-ml/graphbridge/internal/accel"
	"github.com/born-ml/graphbridge/internal/host"
)

// rnnStateInput is the input position of the RNN hidden state.
const rnnStateInput = 4

// registerDense adds FULLY_CONNECTED and RNN.
func (r *Registry) registerDense() {
	r.Register(Builtin(host.BuiltinFullyConnected), fullyConnected{})
	r.Register(Builtin(host.BuiltinRNN), rnn{})
}

// fullyConnected maps FULLY_CONNECTED. Inputs of rank other than 2 are
// flattened to [batch, depth] first; outputs that keep their leading
// dimensions are reshaped back afterwards.
type fullyConnected struct{}

func (fullyConnected) IsSupported(ctx host.Context, node *host.Node, _ *host.Registration) bool {
	if len(node.Inputs) < 2 || len(node.Inputs) > 3 || len(node.Outputs) != 1 {
		return false
	}
	ts, ok := operands(ctx, node.Inputs)
	if !ok || !checkTensors(ts, 2) {
		return false
	}
	outs, ok := operands(ctx, node.Outputs)
	if !ok || !checkTensors(outs, 1) {
		return false
	}
	in, w, out := ts[0], ts[1], outs[0]
	if w.Shape.Rank() != 2 || !isConstant(w) {
		return false
	}
	depth, units := w.Shape[1], w.Shape[0]
	if depth == 0 || in.NumElements()%depth != 0 {
		return false
	}
	if out.NumElements() != in.NumElements()/depth*units {
		return false
	}
	if len(ts) == 3 && ts[2] != nil && ts[2].NumElements() != units {
		return false
	}
	var p host.FullyConnectedParams
	if err := host.DecodeParams(node.BuiltinData, &p); err != nil {
		return false
	}
	_, ok = activationOp(p.Activation)
	return ok
}

func (fullyConnected) ParamSize() int { return host.ParamSize(host.FullyConnectedParams{}) }

func (fullyConnected) StateTensorIndexes(*host.Node) []int { return nil }

func (fullyConnected) MapOp(g accel.Graph, inputs, outputs, _ []accel.Tensor, params []byte) error {
	if err := arity(inputs, outputs, 2, 1); err != nil {
		return err
	}
	var p host.FullyConnectedParams
	if err := host.DecodeParams(params, &p); err != nil {
		return err
	}

	in, w, out := inputs[0], inputs[1], outputs[0]
	ws := w.Spec().Shape
	if len(ws) != 2 {
		return errors.Wrapf(accel.ErrShapeMismatch, "weights %v", ws)
	}
	depth, units := ws[0], ws[1]

	flat := accel.ShapeType{depth, uint32(in.Spec().Shape.NumElements()) / depth} //nolint:gosec // G115: element count fits in uint32
	if !in.Spec().Shape.Equal(flat) {
		reshaped, err := transient(g, in, flat)
		if err != nil {
			return err
		}
		if err := emit(g, accel.Reshape{Size: flat}, []accel.Tensor{in}, reshaped); err != nil {
			return err
		}
		in = reshaped
	}

	result := out
	canonical := accel.ShapeType{units, flat[1]}
	if !out.Spec().Shape.Equal(canonical) {
		tmp, err := transient(g, out, canonical)
		if err != nil {
			return err
		}
		result = tmp
	}

	target, finish, err := withActivation(g, p.Activation, result)
	if err != nil {
		return err
	}
	args := []accel.Tensor{in, w}
	if len(inputs) > 2 {
		args = append(args, inputs[2])
	}
	if err := emit(g, accel.FullyConnected{Weights: units}, args, target); err != nil {
		return err
	}
	if err := finish(); err != nil {
		return err
	}
	if result != out {
		return emit(g, accel.Reshape{Size: out.Spec().Shape}, []accel.Tensor{result}, out)
	}
	return nil
}

// rnn maps the basic RNN cell. The hidden state input is a state tensor:
// the cell's new state is copied back into it after every invocation.
type rnn struct{}

func (rnn) IsSupported(ctx host.Context, node *host.Node, _ *host.Registration) bool {
	if len(node.Inputs) != 5 || len(node.Outputs) != 1 {
		return false
	}
	ts, ok := operands(ctx, append(append([]int(nil), node.Inputs...), node.Outputs...))
	if !ok || !checkTensors(ts, 6) {
		return false
	}
	for _, t := range ts {
		if t.Shape.Rank() > 2 {
			return false
		}
	}
	in, w, rw, state := ts[0], ts[1], ts[2], ts[rnnStateInput]
	if !isConstant(w) || !isConstant(rw) || !state.IsVariable {
		return false
	}
	if w.Shape.Rank() != 2 || rw.Shape.Rank() != 2 || in.Shape.Rank() != 2 || state.Shape.Rank() != 2 {
		return false
	}
	var p host.RNNParams
	if err := host.DecodeParams(node.BuiltinData, &p); err != nil {
		return false
	}
	_, ok = cellActivation(p.Activation)
	return ok
}

func (rnn) ParamSize() int { return host.ParamSize(host.RNNParams{}) }

func (rnn) StateTensorIndexes(node *host.Node) []int {
	if len(node.Inputs) <= rnnStateInput {
		return nil
	}
	return []int{node.Inputs[rnnStateInput]}
}

func (rnn) MapOp(g accel.Graph, inputs, outputs, states []accel.Tensor, params []byte) error {
	if err := arity(inputs, outputs, 5, 1); err != nil {
		return err
	}
	if len(states) != 1 {
		return errors.Wrapf(accel.ErrUnbound, "RNN needs one state tensor, got %d", len(states))
	}
	var p host.RNNParams
	if err := host.DecodeParams(params, &p); err != nil {
		return err
	}
	act, ok := cellActivation(p.Activation)
	if !ok {
		return errors.Errorf("unsupported fused activation %d", p.Activation)
	}
	return emit(g, accel.RNNCell{Activation: act}, inputs[:5], outputs[0], states[0])
}
