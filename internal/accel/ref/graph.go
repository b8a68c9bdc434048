package ref

import (
	"github.com/pkg/errors"

	"github.com/born-ml/graphbridge/internal/accel"
)

// Tensor implements accel.Tensor with host memory storage.
type Tensor struct {
	graph       *Graph
	id          uint32
	spec        accel.TensorSpec
	data        []byte
	placeholder bool
}

var _ accel.Tensor = (*Tensor)(nil)

// ID implements accel.Tensor.
func (t *Tensor) ID() uint32 { return t.id }

// Spec implements accel.Tensor.
func (t *Tensor) Spec() accel.TensorSpec { return t.spec }

// IsPlaceholder implements accel.Tensor.
func (t *Tensor) IsPlaceholder() bool { return t.placeholder }

// ConstData implements accel.Tensor.
func (t *Tensor) ConstData() []byte {
	if t.spec.Attr != accel.Constant {
		return nil
	}
	return t.data
}

// Data returns the storage backing the tensor. Executors read and write it.
func (t *Tensor) Data() []byte { return t.data }

// CopyDataToTensor implements accel.Tensor.
func (t *Tensor) CopyDataToTensor(src []byte) error {
	if t.placeholder {
		return errors.Wrap(accel.ErrUnbound, "copy into placeholder")
	}
	if len(src) != len(t.data) {
		return errors.Wrapf(accel.ErrBufferSize, "tensor %d holds %d bytes, source has %d", t.id, len(t.data), len(src))
	}
	copy(t.data, src)
	return nil
}

// CopyDataFromTensor implements accel.Tensor.
func (t *Tensor) CopyDataFromTensor(dst []byte) error {
	if t.placeholder {
		return errors.Wrap(accel.ErrUnbound, "copy from placeholder")
	}
	if len(dst) != len(t.data) {
		return errors.Wrapf(accel.ErrBufferSize, "tensor %d holds %d bytes, destination has %d", t.id, len(t.data), len(dst))
	}
	copy(dst, t.data)
	return nil
}

// Operation implements accel.Operation.
type Operation struct {
	op      accel.Op
	inputs  []accel.Tensor
	outputs []accel.Tensor
}

var _ accel.Operation = (*Operation)(nil)

// Op implements accel.Operation.
func (o *Operation) Op() accel.Op { return o.op }

// BindInputs implements accel.Operation.
func (o *Operation) BindInputs(tensors ...accel.Tensor) accel.Operation {
	o.inputs = append(o.inputs, tensors...)
	return o
}

// BindOutputs implements accel.Operation.
func (o *Operation) BindOutputs(tensors ...accel.Tensor) accel.Operation {
	o.outputs = append(o.outputs, tensors...)
	return o
}

// Inputs implements accel.Operation.
func (o *Operation) Inputs() []accel.Tensor { return o.inputs }

// Outputs implements accel.Operation.
func (o *Operation) Outputs() []accel.Tensor { return o.outputs }

// In returns input i, or nil when it is absent or a placeholder.
func (o *Operation) In(i int) *Tensor {
	if i >= len(o.inputs) {
		return nil
	}
	t, ok := o.inputs[i].(*Tensor)
	if !ok || t.placeholder {
		return nil
	}
	return t
}

// Out returns output i.
func (o *Operation) Out(i int) *Tensor {
	if i >= len(o.outputs) {
		return nil
	}
	t, _ := o.outputs[i].(*Tensor)
	return t
}

// Graph implements accel.Graph.
type Graph struct {
	ctx         *Context
	exec        Executor
	tensors     []*Tensor
	ops         []*Operation
	placeholder *Tensor
	compiled    bool
}

var _ accel.Graph = (*Graph)(nil)

func (g *Graph) checkValid() error {
	if g.compiled {
		return errors.Wrap(accel.ErrGraphCompiled, "cannot add to graph")
	}
	return nil
}

// CreateTensor implements accel.Graph.
// Constant tensors must come with exactly ByteSize() bytes of data; data is
// ignored for every other attribute.
func (g *Graph) CreateTensor(spec accel.TensorSpec, data []byte) (accel.Tensor, error) {
	if err := g.checkValid(); err != nil {
		return nil, err
	}
	if spec.DataType.Size() == 0 {
		return nil, errors.Wrapf(accel.ErrUnsupportedType, "tensor %s", spec)
	}
	if len(spec.Shape) == 0 {
		return nil, errors.Wrapf(accel.ErrShapeMismatch, "tensor %s has no dimensions", spec)
	}
	if err := spec.Quant.Validate(spec.Shape); err != nil {
		return nil, errors.Wrapf(err, "tensor %s", spec)
	}

	spec.Shape = spec.Shape.Clone()
	t := &Tensor{
		graph: g,
		id:    uint32(len(g.tensors)), //nolint:gosec // G115: tensor count fits in uint32
		spec:  spec,
		data:  make([]byte, spec.ByteSize()),
	}
	if spec.Attr == accel.Constant {
		if len(data) != len(t.data) {
			return nil, errors.Wrapf(accel.ErrBufferSize, "constant %s needs %d bytes, got %d", spec, len(t.data), len(data))
		}
		copy(t.data, data)
	}
	g.tensors = append(g.tensors, t)
	return t, nil
}

// CreateTensorPlaceholder implements accel.Graph.
// Every call returns the same placeholder.
func (g *Graph) CreateTensorPlaceholder() accel.Tensor {
	if g.placeholder == nil {
		g.placeholder = &Tensor{
			graph:       g,
			id:          uint32(len(g.tensors)), //nolint:gosec // G115: tensor count fits in uint32
			placeholder: true,
		}
		g.tensors = append(g.tensors, g.placeholder)
	}
	return g.placeholder
}

// CreateOperation implements accel.Graph.
func (g *Graph) CreateOperation(op accel.Op) (accel.Operation, error) {
	if err := g.checkValid(); err != nil {
		return nil, err
	}
	o := &Operation{op: op}
	g.ops = append(g.ops, o)
	return o, nil
}

// Tensors implements accel.Graph.
func (g *Graph) Tensors() []accel.Tensor {
	out := make([]accel.Tensor, len(g.tensors))
	for i, t := range g.tensors {
		out[i] = t
	}
	return out
}

// Operations implements accel.Graph.
func (g *Graph) Operations() []accel.Operation {
	out := make([]accel.Operation, len(g.ops))
	for i, o := range g.ops {
		out[i] = o
	}
	return out
}

// Compiled implements accel.Graph.
func (g *Graph) Compiled() bool {
	return g.compiled
}

// Compile implements accel.Graph.
//
// It checks that every operation has its operands bound to tensors of this
// graph, that output shapes agree with shape inference, and that no tensor is
// read before something produces it. Compiling twice is a no-op.
func (g *Graph) Compile() error {
	if g.compiled {
		return nil
	}

	produced := make(map[*Tensor]bool, len(g.tensors))
	for _, t := range g.tensors {
		switch t.spec.Attr {
		case accel.Input, accel.Variable, accel.Constant:
			produced[t] = true
		}
	}

	for i, o := range g.ops {
		if err := g.validate(o, produced); err != nil {
			return errors.Wrapf(err, "operation %d (%s)", i, o.op.Kind())
		}
		if err := g.exec.Prepare(o); err != nil {
			return errors.Wrapf(err, "operation %d (%s)", i, o.op.Kind())
		}
	}

	g.compiled = true
	g.ctx.compiles.Add(1)
	return nil
}

func (g *Graph) validate(o *Operation, produced map[*Tensor]bool) error {
	inputs := make([]accel.TensorSpec, 0, len(o.inputs))
	for i, in := range o.inputs {
		t, ok := in.(*Tensor)
		if !ok || t.graph != g {
			return errors.Wrapf(accel.ErrForeignTensor, "input %d", i)
		}
		if t.placeholder {
			// Only trailing optional operands may be absent.
			if lo, _ := accel.NumInputs(o.op); i < lo {
				return errors.Wrapf(accel.ErrUnbound, "required input %d is a placeholder", i)
			}
			continue
		}
		if !produced[t] {
			return errors.Errorf("input %d reads tensor %d before it is produced", i, t.id)
		}
		inputs = append(inputs, t.spec)
	}

	shapes, err := accel.InferOutputShapes(o.op, inputs)
	if err != nil {
		return err
	}
	if len(o.outputs) != len(shapes) {
		return errors.Wrapf(accel.ErrUnbound, "%d outputs bound, %d expected", len(o.outputs), len(shapes))
	}
	for i, out := range o.outputs {
		t, ok := out.(*Tensor)
		if !ok || t.graph != g || t.placeholder {
			return errors.Wrapf(accel.ErrForeignTensor, "output %d", i)
		}
		if t.spec.Attr == accel.Constant {
			return errors.Errorf("output %d writes constant tensor %d", i, t.id)
		}
		if !t.spec.Shape.Equal(shapes[i]) {
			return errors.Wrapf(accel.ErrShapeMismatch, "output %d is %v, inferred %v", i, t.spec.Shape, shapes[i])
		}
		produced[t] = true
	}
	return nil
}

// Run implements accel.Graph.
func (g *Graph) Run() error {
	if !g.compiled {
		return accel.ErrNotCompiled
	}
	for i, o := range g.ops {
		if err := g.exec.Execute(o); err != nil {
			return errors.Wrapf(err, "operation %d (%s)", i, o.op.Kind())
		}
	}
	g.ctx.runs.Add(1)
	return nil
}
