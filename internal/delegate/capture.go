package delegate

import (
	"github.com/pkg/errors"

	"github.com/born-ml/graphbridge/internal/host"
	"github.com/born-ml/graphbridge/internal/opmap"
	"github.com/born-ml/graphbridge/internal/tensor"
)

// OperationDescriptor is the immutable record of one claimed host node.
type OperationDescriptor struct {
	ID      opmap.OpID
	Inputs  []int
	Outputs []int
	States  []int
	Params  []byte
}

// SubgraphRecord is everything a delegate kernel keeps about its subgraph.
type SubgraphRecord struct {
	Operations []OperationDescriptor
	// Inputs excludes tensors stored in read-only model memory; those become
	// constants of the accelerator graph.
	Inputs  []int
	Outputs []int
	// States is the union of all operations' state indexes, first-seen order.
	// Absent optional states (-1) are left out.
	States []int
}

// paramBlob returns the parameter bytes a node carries for its operator.
func paramBlob(id opmap.OpID, node *host.Node) []byte {
	if id.IsCustom() {
		return node.CustomData
	}
	return node.BuiltinData
}

// Capture snapshots the claimed nodes of params into a SubgraphRecord.
func Capture(ctx host.Context, params *host.DelegateParams, registry *opmap.Registry) (*SubgraphRecord, error) {
	rec := &SubgraphRecord{
		Outputs: append([]int(nil), params.OutputTensors...),
	}
	for _, idx := range params.InputTensors {
		if idx < 0 {
			continue
		}
		if t := ctx.Tensor(idx); t != nil && t.Allocation == tensor.AllocMmapRO {
			continue
		}
		rec.Inputs = append(rec.Inputs, idx)
	}

	seen := make(map[int]bool)
	for _, nodeIdx := range params.NodesToReplace {
		node, reg, err := ctx.NodeAndRegistration(nodeIdx)
		if err != nil {
			return nil, errors.Wrapf(err, "node %d", nodeIdx)
		}
		id, op, ok := registry.Lookup(reg)
		if !ok {
			return nil, errors.Wrapf(ErrUnsupportedOp, "node %d: %s", nodeIdx, id)
		}

		desc := OperationDescriptor{
			ID:      id,
			Inputs:  append([]int(nil), node.Inputs...),
			Outputs: append([]int(nil), node.Outputs...),
			Params:  []byte{},
		}
		if n := op.ParamSize(); n > 0 {
			blob := paramBlob(id, node)
			if len(blob) < n {
				return nil, errors.Wrapf(ErrMissingParams, "node %d: %s needs %d bytes, got %d", nodeIdx, id, n, len(blob))
			}
			desc.Params = append(desc.Params, blob[:n]...)
		}
		for _, s := range op.StateTensorIndexes(node) {
			desc.States = append(desc.States, s)
			if s >= 0 && !seen[s] {
				seen[s] = true
				rec.States = append(rec.States, s)
			}
		}
		rec.Operations = append(rec.Operations, desc)
	}
	return rec, nil
}
