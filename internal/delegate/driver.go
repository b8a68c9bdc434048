package delegate

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/born-ml/graphbridge/internal/accel"
	"github.com/born-ml/graphbridge/internal/accel/layout"
	"github.com/born-ml/graphbridge/internal/host"
)

// binding pairs a host tensor index with its tensor in the compiled graph.
type binding struct {
	index  int
	tensor accel.Tensor
}

// bindings lists the host buffers exchanged with the compiled graph on
// every invocation. For states, index is the host tensor the state is read
// from and written back to.
type bindings struct {
	inputs  []binding
	outputs []binding
	states  []binding
}

// bind resolves the subgraph boundary through the layout map.
func bind(rec *SubgraphRecord, table *tensorTable, states map[int]accel.Tensor, m layout.TensorMap) (bindings, error) {
	var b bindings
	resolve := func(idxs []int, get func(int) accel.Tensor) ([]binding, error) {
		out := make([]binding, 0, len(idxs))
		for _, idx := range idxs {
			if idx < 0 {
				continue
			}
			pre := get(idx)
			if pre == nil {
				return nil, errors.Wrapf(ErrMissingTensor, "host tensor %d has no graph tensor", idx)
			}
			post, ok := m.Lookup(pre)
			if !ok {
				return nil, errors.Wrapf(ErrMissingTensor, "host tensor %d dropped by layout inference", idx)
			}
			out = append(out, binding{index: idx, tensor: post})
		}
		return out, nil
	}

	var err error
	if b.inputs, err = resolve(rec.Inputs, table.get); err != nil {
		return b, err
	}
	if b.outputs, err = resolve(rec.Outputs, table.get); err != nil {
		return b, err
	}
	stateOf := func(idx int) accel.Tensor { return states[idx] }
	if b.states, err = resolve(rec.States, stateOf); err != nil {
		return b, err
	}
	return b, nil
}

// hostBuffer returns the data of host tensor idx.
func hostBuffer(hctx host.Context, idx int) ([]byte, error) {
	t := hctx.Tensor(idx)
	if t == nil || !t.HasData() {
		return nil, errors.Wrapf(ErrMissingTensor, "host tensor %d has no buffer", idx)
	}
	return t.Data, nil
}

// execute runs one invocation: upload inputs, run, download outputs, and
// write the new states into the host tensors they were read from.
func execute(hctx host.Context, g accel.Graph, io bindings, log logrus.FieldLogger) error {
	for _, b := range io.inputs {
		buf, err := hostBuffer(hctx, b.index)
		if err != nil {
			return err
		}
		if err := b.tensor.CopyDataToTensor(buf); err != nil {
			return errors.Wrapf(ErrExecution, "copy input %d: %v", b.index, err)
		}
	}

	if err := g.Run(); err != nil {
		return errors.Wrapf(ErrExecution, "run: %v", err)
	}

	for _, b := range io.outputs {
		buf, err := hostBuffer(hctx, b.index)
		if err != nil {
			return err
		}
		if err := b.tensor.CopyDataFromTensor(buf); err != nil {
			return errors.Wrapf(ErrExecution, "copy output %d: %v", b.index, err)
		}
	}
	for _, b := range io.states {
		buf, err := hostBuffer(hctx, b.index)
		if err != nil {
			return err
		}
		if err := b.tensor.CopyDataFromTensor(buf); err != nil {
			return errors.Wrapf(ErrExecution, "copy state %d: %v", b.index, err)
		}
	}

	log.WithFields(logrus.Fields{
		"inputs":  len(io.inputs),
		"outputs": len(io.outputs),
		"states":  len(io.states),
	}).Debug("invocation complete")
	return nil
}
