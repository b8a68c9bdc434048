package interp

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/graphbridge/internal/host"
	"github.com/born-ml/graphbridge/internal/tensor"
)

// Resolver maps operator identities to native registrations.
type Resolver struct {
	builtins map[host.BuiltinOperator]*host.Registration
	customs  map[string]*host.Registration
}

// NewResolver returns a resolver with every native float32 kernel.
func NewResolver() *Resolver {
	r := &Resolver{
		builtins: make(map[host.BuiltinOperator]*host.Registration),
		customs:  make(map[string]*host.Registration),
	}

	r.AddBuiltin(host.BuiltinAdd, binaryKernel(func(a, b float32) float32 { return a + b }))
	r.AddBuiltin(host.BuiltinSub, binaryKernel(func(a, b float32) float32 { return a - b }))
	r.AddBuiltin(host.BuiltinMul, binaryKernel(func(a, b float32) float32 { return a * b }))
	r.AddBuiltin(host.BuiltinRelu, unaryKernel(activation(host.ActRelu)))
	r.AddBuiltin(host.BuiltinReluN1To1, unaryKernel(activation(host.ActReluN1To1)))
	r.AddBuiltin(host.BuiltinRelu6, unaryKernel(activation(host.ActRelu6)))
	r.AddBuiltin(host.BuiltinTanh, unaryKernel(activation(host.ActTanh)))
	r.AddBuiltin(host.BuiltinLogistic, unaryKernel(activation(host.ActSigmoid)))
	r.AddBuiltin(host.BuiltinFloor, unaryKernel(func(x float32) float32 { return float32(math.Floor(float64(x))) }))
	r.AddBuiltin(host.BuiltinFullyConnected, fullyConnectedKernel)
	r.AddBuiltin(host.BuiltinRNN, rnnKernel)
	r.AddBuiltin(host.BuiltinReshape, reshapeKernel)
	r.AddBuiltin(host.BuiltinTranspose, transposeKernel)
	r.AddBuiltin(host.BuiltinLeakyRelu, leakyReluKernel(func(n *host.Node) []byte { return n.BuiltinData }))
	r.AddCustom(host.CustomLeakyRelu, leakyReluKernel(func(n *host.Node) []byte { return n.CustomData }))

	return r
}

// AddBuiltin registers a kernel for a builtin operator.
func (r *Resolver) AddBuiltin(code host.BuiltinOperator, invoke func(ctx host.Context, node *host.Node) error) {
	r.builtins[code] = &host.Registration{BuiltinCode: code, Version: 1, Invoke: invoke}
}

// AddCustom registers a kernel for a custom operator.
func (r *Resolver) AddCustom(name string, invoke func(ctx host.Context, node *host.Node) error) {
	r.customs[name] = &host.Registration{BuiltinCode: host.BuiltinCustom, CustomName: name, Version: 1, Invoke: invoke}
}

// Builtin returns the registration of a builtin operator.
func (r *Resolver) Builtin(code host.BuiltinOperator) (*host.Registration, bool) {
	reg, ok := r.builtins[code]
	return reg, ok
}

// Custom returns the registration of a custom operator.
func (r *Resolver) Custom(name string) (*host.Registration, bool) {
	reg, ok := r.customs[name]
	return reg, ok
}

// floats resolves node tensors as float32 views.
func floats(ctx host.Context, indexes ...int) ([][]float32, error) {
	out := make([][]float32, len(indexes))
	for i, idx := range indexes {
		if idx < 0 {
			continue
		}
		t := ctx.Tensor(idx)
		if t == nil {
			return nil, errors.Wrapf(host.ErrTensorIndex, "%d", idx)
		}
		if t.Type != tensor.Float32 {
			return nil, errors.Wrapf(host.ErrNotSupported, "native kernels take float32, %s is %s", t.Name, t.Type)
		}
		if !t.HasData() {
			return nil, errors.Wrapf(ErrNotAllocated, "%s", t.Name)
		}
		out[i] = t.AsFloat32()
	}
	return out, nil
}

func activation(act host.FusedActivation) func(float32) float32 {
	switch act {
	case host.ActRelu:
		return func(x float32) float32 { return max(x, 0) }
	case host.ActReluN1To1:
		return func(x float32) float32 { return min(max(x, -1), 1) }
	case host.ActRelu6:
		return func(x float32) float32 { return min(max(x, 0), 6) }
	case host.ActTanh:
		return func(x float32) float32 { return float32(math.Tanh(float64(x))) }
	case host.ActSigmoid:
		return func(x float32) float32 { return float32(1 / (1 + math.Exp(-float64(x)))) }
	case host.ActSignBit:
		return func(x float32) float32 {
			if math.Signbit(float64(x)) {
				return 1
			}
			return 0
		}
	default:
		return func(x float32) float32 { return x }
	}
}

// broadcastOffsets maps every element of out to an element of in, with
// shapes aligned at their innermost dimension.
func broadcastOffsets(in, out tensor.Shape) []int {
	n := out.NumElements()
	offsets := make([]int, n)
	inStrides := in.ComputeStrides()
	shift := len(out) - len(in)
	for o := 0; o < n; o++ {
		rem, off := o, 0
		for d := len(out) - 1; d >= 0; d-- {
			coord := rem % out[d]
			rem /= out[d]
			if id := d - shift; id >= 0 && in[id] != 1 {
				off += coord * inStrides[id]
			}
		}
		offsets[o] = off
	}
	return offsets
}

func binaryKernel(f func(a, b float32) float32) func(host.Context, *host.Node) error {
	return func(ctx host.Context, node *host.Node) error {
		v, err := floats(ctx, node.Inputs[0], node.Inputs[1], node.Outputs[0])
		if err != nil {
			return err
		}
		var p host.ArithmeticParams
		if len(node.BuiltinData) > 0 {
			if err := host.DecodeParams(node.BuiltinData, &p); err != nil {
				return err
			}
		}
		act := activation(p.Activation)
		a, b, out := v[0], v[1], v[2]
		outShape := ctx.Tensor(node.Outputs[0]).Shape
		ia := broadcastOffsets(ctx.Tensor(node.Inputs[0]).Shape, outShape)
		ib := broadcastOffsets(ctx.Tensor(node.Inputs[1]).Shape, outShape)
		for i := range out {
			out[i] = act(f(a[ia[i]], b[ib[i]]))
		}
		return nil
	}
}

func unaryKernel(f func(float32) float32) func(host.Context, *host.Node) error {
	return func(ctx host.Context, node *host.Node) error {
		v, err := floats(ctx, node.Inputs[0], node.Outputs[0])
		if err != nil {
			return err
		}
		for i, x := range v[0] {
			v[1][i] = f(x)
		}
		return nil
	}
}

func leakyReluKernel(blob func(*host.Node) []byte) func(host.Context, *host.Node) error {
	return func(ctx host.Context, node *host.Node) error {
		var p host.LeakyReluParams
		if err := host.DecodeParams(blob(node), &p); err != nil {
			return err
		}
		return unaryKernel(func(x float32) float32 {
			if x < 0 {
				return p.Alpha * x
			}
			return x
		})(ctx, node)
	}
}

// fullyConnectedKernel computes out[b, n] = act(sum_k in[b, k] * w[n, k] + bias[n]).
func fullyConnectedKernel(ctx host.Context, node *host.Node) error {
	bias := -1
	if len(node.Inputs) > 2 {
		bias = node.Inputs[2]
	}
	v, err := floats(ctx, node.Inputs[0], node.Inputs[1], bias, node.Outputs[0])
	if err != nil {
		return err
	}
	var p host.FullyConnectedParams
	if err := host.DecodeParams(node.BuiltinData, &p); err != nil {
		return err
	}
	act := activation(p.Activation)

	w := ctx.Tensor(node.Inputs[1])
	units, depth := w.Shape[0], w.Shape[1]
	in, weights, b, out := v[0], v[1], v[2], v[3]
	batch := len(in) / depth
	for i := 0; i < batch; i++ {
		row := in[i*depth : (i+1)*depth]
		for n := 0; n < units; n++ {
			var acc float32
			if b != nil {
				acc = b[n]
			}
			col := weights[n*depth : (n+1)*depth]
			for k := range row {
				acc += row[k] * col[k]
			}
			out[i*units+n] = act(acc)
		}
	}
	return nil
}

// rnnKernel computes h' = act(x W^T + h R^T + b), writes it to the output and
// overwrites the hidden state input.
func rnnKernel(ctx host.Context, node *host.Node) error {
	v, err := floats(ctx, node.Inputs[0], node.Inputs[1], node.Inputs[2], node.Inputs[3], node.Inputs[4], node.Outputs[0])
	if err != nil {
		return err
	}
	var p host.RNNParams
	if err := host.DecodeParams(node.BuiltinData, &p); err != nil {
		return err
	}
	act := activation(p.Activation)

	x, w, r, b, h, out := v[0], v[1], v[2], v[3], v[4], v[5]
	wt := ctx.Tensor(node.Inputs[1])
	units, depth := wt.Shape[0], wt.Shape[1]
	batch := len(x) / depth
	for i := 0; i < batch; i++ {
		xi := x[i*depth : (i+1)*depth]
		hi := h[i*units : (i+1)*units]
		for u := 0; u < units; u++ {
			acc := b[u]
			for k, xv := range xi {
				acc += xv * w[u*depth+k]
			}
			for j, hv := range hi {
				acc += hv * r[u*units+j]
			}
			out[i*units+u] = act(acc)
		}
	}
	copy(h, out)
	return nil
}

func reshapeKernel(ctx host.Context, node *host.Node) error {
	in, out := ctx.Tensor(node.Inputs[0]), ctx.Tensor(node.Outputs[0])
	if in == nil || out == nil {
		return errors.Wrap(host.ErrTensorIndex, "reshape")
	}
	if in.Bytes() != out.Bytes() {
		return errors.Errorf("reshape %s to %s", in, out)
	}
	copy(out.Data, in.Data)
	return nil
}

func transposeKernel(ctx host.Context, node *host.Node) error {
	in, perm, out := ctx.Tensor(node.Inputs[0]), ctx.Tensor(node.Inputs[1]), ctx.Tensor(node.Outputs[0])
	if in == nil || perm == nil || out == nil {
		return errors.Wrap(host.ErrTensorIndex, "transpose")
	}
	if perm.Type != tensor.Int32 {
		return errors.Wrapf(host.ErrNotSupported, "permutation of type %s", perm.Type)
	}
	p := make([]int, perm.NumElements())
	for i, v := range perm.AsInt32() {
		p[i] = int(v)
	}
	data, err := tensor.TransposeBytes(in.Data, in.Shape, p, in.Type.Size())
	if err != nil {
		return errors.Wrap(err, "transpose")
	}
	copy(out.Data, data)
	return nil
}
