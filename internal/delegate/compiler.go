package delegate

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/born-ml/graphbridge/internal/accel"
	"github.com/born-ml/graphbridge/internal/accel/layout"
	"github.com/born-ml/graphbridge/internal/host"
	"github.com/born-ml/graphbridge/internal/opmap"
	"github.com/born-ml/graphbridge/internal/tensor"
)

// CompileState is the lifecycle state of a kernel's accelerator graph.
type CompileState int32

// Compile states. Compiled and Failed are terminal.
const (
	Uncompiled CompileState = iota
	Compiling
	Compiled
	Failed
)

// String returns the state name.
func (s CompileState) String() string {
	switch s {
	case Uncompiled:
		return "uncompiled"
	case Compiling:
		return "compiling"
	case Compiled:
		return "compiled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("CompileState(%d)", int32(s))
	}
}

// compiler builds the accelerator graph of one subgraph on first use.
type compiler struct {
	record     *SubgraphRecord
	registry   *opmap.Registry
	newContext func() (accel.Context, error)
	log        logrus.FieldLogger

	state atomic.Int32
	mu    sync.Mutex
	err   error

	ctx   accel.Context
	graph accel.Graph
	io    bindings
}

func newCompiler(record *SubgraphRecord, registry *opmap.Registry, newContext func() (accel.Context, error), log logrus.FieldLogger) *compiler {
	return &compiler{
		record:     record,
		registry:   registry,
		newContext: newContext,
		log:        log,
	}
}

func (c *compiler) State() CompileState {
	return CompileState(c.state.Load())
}

// ensure compiles the graph unless that already happened. A failed build
// is never retried: every later call returns the same error.
func (c *compiler) ensure(hctx host.Context) error {
	switch c.State() {
	case Compiled:
		return nil
	case Failed:
		return c.err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.State() {
	case Compiled:
		return nil
	case Failed:
		return c.err
	}

	c.state.Store(int32(Compiling))
	if err := c.safeBuild(hctx); err != nil {
		c.release()
		c.err = fmt.Errorf("%w: %w", ErrCompile, err)
		c.state.Store(int32(Failed))
		c.log.WithError(err).Error("graph compilation failed")
		return c.err
	}
	c.state.Store(int32(Compiled))
	return nil
}

func (c *compiler) safeBuild(hctx host.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic while building graph: %v", r)
		}
	}()
	return c.build(hctx)
}

func (c *compiler) build(hctx host.Context) error {
	ctx, err := c.newContext()
	if err != nil {
		return errors.Wrap(err, "create accelerator context")
	}
	c.ctx = ctx

	src, err := ctx.CreateGraph()
	if err != nil {
		return errors.Wrap(err, "create graph")
	}
	table := newTensorTable(hctx.TensorsSize(), src.CreateTensorPlaceholder())

	lookup := func(idx int) (*tensor.Tensor, error) {
		t := hctx.Tensor(idx)
		if t == nil {
			return nil, errors.Wrapf(ErrMissingTensor, "host tensor %d", idx)
		}
		return t, nil
	}
	translate := func(idx int, attr func(*tensor.Tensor) accel.Attribute) (accel.Tensor, error) {
		if at := table.get(idx); at != nil {
			return at, nil
		}
		t, err := lookup(idx)
		if err != nil {
			return nil, err
		}
		at, err := TranslateTensor(src, t, attr(t), nil)
		if err != nil {
			return nil, errors.Wrapf(err, "host tensor %d", idx)
		}
		if err := table.set(idx, at); err != nil {
			return nil, err
		}
		return at, nil
	}
	fixed := func(a accel.Attribute) func(*tensor.Tensor) accel.Attribute {
		return func(*tensor.Tensor) accel.Attribute { return a }
	}

	for _, idx := range c.record.Inputs {
		if _, err := translate(idx, fixed(accel.Input)); err != nil {
			return errors.Wrap(err, "subgraph input")
		}
	}
	for _, idx := range c.record.Outputs {
		if idx < 0 {
			continue
		}
		if _, err := translate(idx, fixed(accel.Output)); err != nil {
			return errors.Wrap(err, "subgraph output")
		}
	}

	states := make(map[int]accel.Tensor, len(c.record.States))
	for _, idx := range c.record.States {
		if idx < 0 {
			continue
		}
		t, err := lookup(idx)
		if err != nil {
			return errors.Wrap(err, "state")
		}
		spec, err := TensorSpec(t, nil, accel.Output)
		if err != nil {
			return errors.Wrapf(err, "state %d", idx)
		}
		at, err := src.CreateTensor(spec, nil)
		if err != nil {
			return errors.Wrapf(err, "state %d", idx)
		}
		states[idx] = at
	}

	resolve := func(idxs []int) ([]accel.Tensor, error) {
		out := make([]accel.Tensor, len(idxs))
		for i, idx := range idxs {
			at, err := translate(idx, AttributeFor)
			if err != nil {
				return nil, err
			}
			out[i] = at
		}
		return out, nil
	}
	for i, d := range c.record.Operations {
		ins, err := resolve(d.Inputs)
		if err != nil {
			return errors.Wrapf(err, "operation %d (%s) inputs", i, d.ID)
		}
		outs, err := resolve(d.Outputs)
		if err != nil {
			return errors.Wrapf(err, "operation %d (%s) outputs", i, d.ID)
		}
		sts := make([]accel.Tensor, len(d.States))
		for j, s := range d.States {
			if s < 0 {
				sts[j] = table.get(-1)
				continue
			}
			sts[j] = states[s]
		}
		if err := c.registry.MapOp(d.ID, src, ins, outs, sts, d.Params); err != nil {
			return errors.Wrapf(err, "operation %d", i)
		}
	}

	graph, m, err := layout.Infer(src, ctx)
	if err != nil {
		return err
	}
	if err := graph.Compile(); err != nil {
		return errors.Wrap(err, "compile")
	}

	io, err := bind(c.record, table, states, m)
	if err != nil {
		return err
	}
	c.graph = graph
	c.io = io

	c.log.WithFields(logrus.Fields{
		"backend":    ctx.Name(),
		"operations": len(c.record.Operations),
		"accel_ops":  len(graph.Operations()),
		"inputs":     len(io.inputs),
		"outputs":    len(io.outputs),
		"states":     len(io.states),
	}).Info("graph compiled")
	return nil
}

// release drops the graph and the accelerator context.
func (c *compiler) release() {
	c.graph = nil
	c.io = bindings{}
	if c.ctx != nil {
		c.ctx.Release()
		c.ctx = nil
	}
}
