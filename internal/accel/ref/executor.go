package ref

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/graphbridge/internal/accel"
	"github.com/born-ml/graphbridge/internal/parallel"
	"github.com/born-ml/graphbridge/internal/tensor"
)

// Executor runs the operations of one graph.
type Executor interface {
	// Prepare is called once per operation from Graph.Compile, after shape
	// validation. It rejects operations the executor cannot run.
	Prepare(o *Operation) error
	// Execute runs one operation.
	Execute(o *Operation) error
}

// CPUExecutor runs every accel operation on the CPU.
// Integer tensors are dequantized to float32, computed, and requantized.
type CPUExecutor struct {
	cfg parallel.Config
}

var _ Executor = (*CPUExecutor)(nil)

// NewCPUExecutor creates a CPU executor.
func NewCPUExecutor(cfg parallel.Config) *CPUExecutor {
	return &CPUExecutor{cfg: cfg}
}

// Prepare implements Executor.
func (e *CPUExecutor) Prepare(o *Operation) error {
	switch o.op.(type) {
	case accel.Add, accel.Sub, accel.Multiply,
		accel.Relu, accel.Relu1, accel.Relu6, accel.Tanh, accel.Sigmoid, accel.LeakyRelu,
		accel.FullyConnected, accel.RNNCell:
		return nil
	case accel.Transpose, accel.Reshape:
		// Layout ops move raw bytes.
		if o.In(0).spec.DataType != o.Out(0).spec.DataType {
			return errors.Wrapf(accel.ErrUnsupportedType, "%s from %s to %s",
				o.op.Kind(), o.In(0).spec.DataType, o.Out(0).spec.DataType)
		}
		return nil
	default:
		return errors.Wrapf(accel.ErrUnsupportedOp, "%s", o.op.Kind())
	}
}

// Execute implements Executor.
func (e *CPUExecutor) Execute(o *Operation) error {
	switch op := o.op.(type) {
	case accel.Add:
		return e.binary(o, func(a, b float32) float32 { return a + b })
	case accel.Sub:
		return e.binary(o, func(a, b float32) float32 { return a - b })
	case accel.Multiply:
		scale := op.Scale
		if scale == 0 {
			scale = 1
		}
		return e.binary(o, func(a, b float32) float32 { return scale * a * b })
	case accel.Relu, accel.Relu1, accel.Relu6, accel.Tanh, accel.Sigmoid, accel.LeakyRelu:
		return e.unary(o, unaryFunc(op))
	case accel.FullyConnected:
		return e.fullyConnected(o)
	case accel.RNNCell:
		return e.rnnCell(o, activationFunc(op.Activation))
	case accel.Transpose:
		return transpose(o, op.Perm)
	case accel.Reshape:
		copy(o.Out(0).data, o.In(0).data)
		return nil
	default:
		return errors.Wrapf(accel.ErrUnsupportedOp, "%s", o.op.Kind())
	}
}

func unaryFunc(op accel.Op) func(float32) float32 {
	switch o := op.(type) {
	case accel.Relu:
		return activationFunc(accel.ActivationRelu)
	case accel.Relu1:
		return activationFunc(accel.ActivationRelu1)
	case accel.Relu6:
		return activationFunc(accel.ActivationRelu6)
	case accel.Tanh:
		return activationFunc(accel.ActivationTanh)
	case accel.Sigmoid:
		return activationFunc(accel.ActivationSigmoid)
	case accel.LeakyRelu:
		alpha := o.Alpha
		return func(x float32) float32 {
			if x < 0 {
				return alpha * x
			}
			return x
		}
	}
	return activationFunc(accel.ActivationNone)
}

func activationFunc(act accel.Activation) func(float32) float32 {
	switch act {
	case accel.ActivationRelu:
		return func(x float32) float32 { return max(x, 0) }
	case accel.ActivationRelu1:
		return func(x float32) float32 { return min(max(x, -1), 1) }
	case accel.ActivationRelu6:
		return func(x float32) float32 { return min(max(x, 0), 6) }
	case accel.ActivationTanh:
		return func(x float32) float32 { return float32(math.Tanh(float64(x))) }
	case accel.ActivationSigmoid:
		return func(x float32) float32 { return float32(1 / (1 + math.Exp(-float64(x)))) }
	default:
		return func(x float32) float32 { return x }
	}
}

// broadcastStrides returns, for each output dimension, the element stride of
// in along it (0 where in is broadcast). Shapes are innermost first.
func broadcastStrides(in, out accel.ShapeType) []int {
	strides := make([]int, len(out))
	stride := 1
	for i := range out {
		if i < len(in) {
			if in[i] != 1 {
				strides[i] = stride
			}
			stride *= int(in[i])
		}
	}
	return strides
}

func broadcastIndex(o int, out accel.ShapeType, strides []int) int {
	idx := 0
	for i, d := range out {
		idx += (o % int(d)) * strides[i]
		o /= int(d)
	}
	return idx
}

func (e *CPUExecutor) binary(o *Operation, f func(a, b float32) float32) error {
	a, err := loadFloat32(o.In(0), e.cfg)
	if err != nil {
		return err
	}
	b, err := loadFloat32(o.In(1), e.cfg)
	if err != nil {
		return err
	}
	out := o.Out(0)
	shape := out.spec.Shape
	result := make([]float32, shape.NumElements())

	if len(a) == len(result) && len(b) == len(result) {
		parallel.ForRange(len(result), func(start, end int) {
			for i := start; i < end; i++ {
				result[i] = f(a[i], b[i])
			}
		}, e.cfg)
		return storeFloat32(out, result, e.cfg)
	}

	sa := broadcastStrides(o.In(0).spec.Shape, shape)
	sb := broadcastStrides(o.In(1).spec.Shape, shape)
	parallel.ForRange(len(result), func(start, end int) {
		for i := start; i < end; i++ {
			result[i] = f(a[broadcastIndex(i, shape, sa)], b[broadcastIndex(i, shape, sb)])
		}
	}, e.cfg)
	return storeFloat32(out, result, e.cfg)
}

func (e *CPUExecutor) unary(o *Operation, f func(float32) float32) error {
	x, err := loadFloat32(o.In(0), e.cfg)
	if err != nil {
		return err
	}
	parallel.ForRange(len(x), func(start, end int) {
		for i := start; i < end; i++ {
			x[i] = f(x[i])
		}
	}, e.cfg)
	return storeFloat32(o.Out(0), x, e.cfg)
}

// fullyConnected computes out[b, n] = sum_k in[b, k] * w[n, k] + bias[n].
func (e *CPUExecutor) fullyConnected(o *Operation) error {
	in, err := loadFloat32(o.In(0), e.cfg)
	if err != nil {
		return err
	}
	w, err := loadFloat32(o.In(1), e.cfg)
	if err != nil {
		return err
	}
	var bias []float32
	if bt := o.In(2); bt != nil {
		if bias, err = loadFloat32(bt, e.cfg); err != nil {
			return err
		}
	}

	k := int(o.In(0).spec.Shape[0])
	batch := int(o.In(0).spec.Shape[1])
	units := int(o.In(1).spec.Shape[1])
	out := make([]float32, units*batch)

	parallel.ForRange(batch*units, func(start, end int) {
		for idx := start; idx < end; idx++ {
			b, n := idx/units, idx%units
			var acc float32
			if bias != nil {
				acc = bias[n]
			}
			row, col := in[b*k:(b+1)*k], w[n*k:(n+1)*k]
			for j := range row {
				acc += row[j] * col[j]
			}
			out[idx] = acc
		}
	}, e.cfg)
	return storeFloat32(o.Out(0), out, e.cfg)
}

// rnnCell computes state' = act(in * W^T + state * R^T + bias) and writes it
// to both outputs.
func (e *CPUExecutor) rnnCell(o *Operation, act func(float32) float32) error {
	operands := make([][]float32, 5)
	for i := range operands {
		v, err := loadFloat32(o.In(i), e.cfg)
		if err != nil {
			return err
		}
		operands[i] = v
	}
	in, w, r, bias, state := operands[0], operands[1], operands[2], operands[3], operands[4]

	inDepth := int(o.In(0).spec.Shape[0])
	batch := int(o.In(0).spec.Shape[1])
	units := int(o.In(1).spec.Shape[1])
	next := make([]float32, units*batch)

	parallel.ForRange(len(next), func(start, end int) {
		for idx := start; idx < end; idx++ {
			b, u := idx/units, idx%units
			x := in[b*inDepth : (b+1)*inDepth]
			h := state[b*units : (b+1)*units]
			acc := bias[u]
			wr := w[u*inDepth : (u+1)*inDepth]
			for i := range x {
				acc += x[i] * wr[i]
			}
			rr := r[u*units : (u+1)*units]
			for j := range h {
				acc += h[j] * rr[j]
			}
			next[idx] = act(acc)
		}
	}, e.cfg)

	if err := storeFloat32(o.Out(0), next, e.cfg); err != nil {
		return err
	}
	return storeFloat32(o.Out(1), next, e.cfg)
}

// transpose moves raw bytes. Innermost-first shapes and permutations are
// mirrored into row-major form for tensor.TransposeBytes.
func transpose(o *Operation, perm []uint32) error {
	in := o.In(0)
	rank := len(perm)
	shape := make(tensor.Shape, rank)
	rowPerm := make([]int, rank)
	for i := 0; i < rank; i++ {
		shape[i] = int(in.spec.Shape[rank-1-i])
		rowPerm[i] = rank - 1 - int(perm[rank-1-i])
	}
	out, err := tensor.TransposeBytes(in.data, shape, rowPerm, in.spec.DataType.Size())
	if err != nil {
		return errors.Wrap(err, "Transpose")
	}
	copy(o.Out(0).data, out)
	return nil
}
