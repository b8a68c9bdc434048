// Package interp is a small host inference engine.
//
// It owns tensors and an execution plan of nodes, runs them with native
// float32 kernels, and lets a host.Delegate replace supported nodes with
// delegate kernels. It implements host.Context.
//
// Typical use:
//
//	it := interp.New(interp.DefaultOptions())
//	a := it.AddTensor(tensor.New("a", tensor.Float32, tensor.Shape{1, 4}))
//	...
//	it.AddBuiltin(host.BuiltinAdd, []int{a, b}, []int{out}, host.ArithmeticParams{})
//	it.ModifyGraphWithDelegate(d)
//	it.AllocateTensors()
//	it.Invoke()
package interp

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/born-ml/graphbridge/internal/host"
	"github.com/born-ml/graphbridge/internal/tensor"
)

// Errors returned by the interpreter.
var (
	ErrNotAllocated     = errors.New("interp: tensors not allocated")
	ErrAlreadyAllocated = errors.New("interp: tensors already allocated")
	ErrClosed           = errors.New("interp: interpreter closed")
)

// Options configures an Interpreter.
type Options struct {
	// Logger receives partitioning and lifecycle messages.
	Logger logrus.FieldLogger
	// Resolver supplies registrations for AddBuiltin and AddCustom.
	Resolver *Resolver
}

// DefaultOptions returns options with the standard logger and native kernels.
func DefaultOptions() Options {
	return Options{
		Logger:   logrus.StandardLogger(),
		Resolver: NewResolver(),
	}
}

type nodeEntry struct {
	node host.Node
	reg  *host.Registration
}

// Interpreter implements host.Context.
type Interpreter struct {
	log      logrus.FieldLogger
	resolver *Resolver

	tensors []*tensor.Tensor
	nodes   []*nodeEntry
	plan    []int
	inputs  []int
	outputs []int

	allocated bool
	closed    bool
}

var _ host.Context = (*Interpreter)(nil)

// New creates an empty interpreter.
func New(opts Options) *Interpreter {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Resolver == nil {
		opts.Resolver = NewResolver()
	}
	return &Interpreter{
		log:      opts.Logger.WithField("component", "interp"),
		resolver: opts.Resolver,
	}
}

// AddTensor registers a tensor and returns its index.
func (it *Interpreter) AddTensor(t *tensor.Tensor) int {
	it.tensors = append(it.tensors, t)
	return len(it.tensors) - 1
}

// AddConstant registers a tensor carrying read-only model data.
// Tensors without an allocation kind are marked AllocMmapRO.
func (it *Interpreter) AddConstant(t *tensor.Tensor) (int, error) {
	if !t.HasData() || len(t.Data) != t.Bytes() {
		return -1, errors.Errorf("constant %s carries %d bytes, needs %d", t, len(t.Data), t.Bytes())
	}
	if t.Allocation == tensor.AllocNone {
		t.Allocation = tensor.AllocMmapRO
	}
	return it.AddTensor(t), nil
}

// AddVariable registers a tensor that keeps its value across invocations.
func (it *Interpreter) AddVariable(t *tensor.Tensor) int {
	t.IsVariable = true
	return it.AddTensor(t)
}

// AddNode appends a node with an explicit registration to the plan.
func (it *Interpreter) AddNode(reg *host.Registration, node host.Node) int {
	it.nodes = append(it.nodes, &nodeEntry{node: node, reg: reg})
	idx := len(it.nodes) - 1
	it.plan = append(it.plan, idx)
	return idx
}

// AddBuiltin appends a builtin operator node. params is a fixed-size
// parameter struct from package host, or nil.
func (it *Interpreter) AddBuiltin(code host.BuiltinOperator, inputs, outputs []int, params any) (int, error) {
	reg, ok := it.resolver.Builtin(code)
	if !ok {
		return -1, errors.Wrapf(host.ErrNotSupported, "builtin %s", code)
	}
	if err := it.checkIndexes(inputs, outputs); err != nil {
		return -1, errors.Wrapf(err, "builtin %s", code)
	}
	node := host.Node{Inputs: inputs, Outputs: outputs}
	if params != nil {
		node.BuiltinData = host.EncodeParams(params)
	}
	return it.AddNode(reg, node), nil
}

// AddCustom appends a custom operator node.
func (it *Interpreter) AddCustom(name string, inputs, outputs []int, params any) (int, error) {
	reg, ok := it.resolver.Custom(name)
	if !ok {
		return -1, errors.Wrapf(host.ErrNotSupported, "custom %s", name)
	}
	if err := it.checkIndexes(inputs, outputs); err != nil {
		return -1, errors.Wrapf(err, "custom %s", name)
	}
	node := host.Node{Inputs: inputs, Outputs: outputs}
	if params != nil {
		node.CustomData = host.EncodeParams(params)
	}
	return it.AddNode(reg, node), nil
}

func (it *Interpreter) checkIndexes(lists ...[]int) error {
	for _, list := range lists {
		for _, idx := range list {
			if idx < -1 || idx >= len(it.tensors) {
				return errors.Wrapf(host.ErrTensorIndex, "%d", idx)
			}
		}
	}
	return nil
}

// SetInputs declares the graph inputs.
func (it *Interpreter) SetInputs(indexes ...int) { it.inputs = append([]int(nil), indexes...) }

// SetOutputs declares the graph outputs.
func (it *Interpreter) SetOutputs(indexes ...int) { it.outputs = append([]int(nil), indexes...) }

// Input returns the i-th graph input.
func (it *Interpreter) Input(i int) *tensor.Tensor { return it.Tensor(it.inputs[i]) }

// Output returns the i-th graph output.
func (it *Interpreter) Output(i int) *tensor.Tensor { return it.Tensor(it.outputs[i]) }

// ExecutionPlan implements host.Context.
func (it *Interpreter) ExecutionPlan() []int {
	return append([]int(nil), it.plan...)
}

// NodeAndRegistration implements host.Context.
func (it *Interpreter) NodeAndRegistration(index int) (*host.Node, *host.Registration, error) {
	if index < 0 || index >= len(it.nodes) {
		return nil, nil, errors.Wrapf(host.ErrNodeIndex, "%d", index)
	}
	e := it.nodes[index]
	return &e.node, e.reg, nil
}

// Tensor implements host.Context.
func (it *Interpreter) Tensor(index int) *tensor.Tensor {
	if index < 0 || index >= len(it.tensors) {
		return nil
	}
	return it.tensors[index]
}

// TensorsSize implements host.Context.
func (it *Interpreter) TensorsSize() int {
	return len(it.tensors)
}

// ModifyGraphWithDelegate lets d claim nodes of the plan.
// It must run before AllocateTensors.
func (it *Interpreter) ModifyGraphWithDelegate(d host.Delegate) error {
	if it.closed {
		return ErrClosed
	}
	if it.allocated {
		return errors.Wrap(ErrAlreadyAllocated, "apply delegate")
	}
	if err := d.Prepare(it); err != nil {
		return errors.Wrap(err, "delegate prepare")
	}
	return nil
}

// AllocateTensors attaches buffers to every tensor used by the plan and runs
// each node's Prepare. Variables get persistent storage.
func (it *Interpreter) AllocateTensors() error {
	if it.closed {
		return ErrClosed
	}
	used := make(map[int]bool)
	mark := func(indexes []int) {
		for _, idx := range indexes {
			if idx >= 0 {
				used[idx] = true
			}
		}
	}
	mark(it.inputs)
	mark(it.outputs)
	for _, n := range it.plan {
		mark(it.nodes[n].node.Inputs)
		mark(it.nodes[n].node.Outputs)
	}

	for idx := range it.tensors {
		t := it.tensors[idx]
		if !used[idx] || t.HasData() {
			continue
		}
		kind := tensor.AllocArenaRW
		if t.IsVariable {
			kind = tensor.AllocPersistentRW
		}
		t.Allocate(kind)
	}

	for _, n := range it.plan {
		e := it.nodes[n]
		if e.reg.Prepare == nil {
			continue
		}
		if err := e.reg.Prepare(it, &e.node); err != nil {
			return errors.Wrapf(err, "prepare node %d (%s)", n, e.reg.Name())
		}
	}
	it.allocated = true
	it.log.WithField("tensors", len(used)).Debug("tensors allocated")
	return nil
}

// Invoke runs the plan once.
func (it *Interpreter) Invoke() error {
	if it.closed {
		return ErrClosed
	}
	if !it.allocated {
		return ErrNotAllocated
	}
	for _, n := range it.plan {
		e := it.nodes[n]
		if e.reg.Invoke == nil {
			return errors.Wrapf(host.ErrNotSupported, "node %d (%s) has no kernel", n, e.reg.Name())
		}
		if err := e.reg.Invoke(it, &e.node); err != nil {
			return errors.Wrapf(err, "node %d (%s)", n, e.reg.Name())
		}
	}
	return nil
}

// Close frees every kernel instance created by Init. It is safe to call
// more than once.
func (it *Interpreter) Close() {
	if it.closed {
		return
	}
	it.closed = true
	for _, e := range it.nodes {
		if e.reg.Free != nil && e.node.UserData != nil {
			e.reg.Free(it, e.node.UserData)
			e.node.UserData = nil
		}
	}
}
