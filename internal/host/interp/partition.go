package interp

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/born-ml/graphbridge/internal/host"
)

// ReplaceNodeSubsetsWithDelegateKernels implements host.Context.
//
// The claimed nodes are split into maximal runs of consecutive plan entries.
// Each run becomes one delegate node whose inputs are the tensors the run
// reads but does not produce, and whose outputs are the tensors it produces
// that are read after it or are graph outputs. reg.Init is called once per
// run. An empty list is a no-op.
func (it *Interpreter) ReplaceNodeSubsetsWithDelegateKernels(reg *host.Registration, nodesToReplace []int, d host.Delegate) error {
	if it.allocated {
		return errors.Wrap(ErrAlreadyAllocated, "replace nodes")
	}
	claimed, err := host.ParseCountPrefixed(nodesToReplace)
	if err != nil {
		return errors.Wrap(host.ErrDelegate, err.Error())
	}
	if len(claimed) == 0 {
		it.log.Debug("delegate claimed no nodes")
		return nil
	}

	inPlan := make(map[int]bool, len(it.plan))
	for _, n := range it.plan {
		inPlan[n] = true
	}
	set := make(map[int]bool, len(claimed))
	for _, n := range claimed {
		if !inPlan[n] {
			return errors.Wrapf(host.ErrNodeIndex, "node %d is not in the execution plan", n)
		}
		set[n] = true
	}

	var (
		plan []int
		run  []int
	)
	flush := func(pos int) error {
		if len(run) == 0 {
			return nil
		}
		idx, err := it.delegateRun(reg, d, run, pos)
		if err != nil {
			return err
		}
		plan = append(plan, idx)
		run = nil
		return nil
	}
	for pos, n := range it.plan {
		if set[n] {
			run = append(run, n)
			continue
		}
		if err := flush(pos); err != nil {
			return err
		}
		plan = append(plan, n)
	}
	if err := flush(len(it.plan)); err != nil {
		return err
	}

	it.log.WithFields(logrus.Fields{
		"delegate": reg.Name(),
		"claimed":  len(claimed),
		"plan":     len(plan),
	}).Debug("replaced node subsets")
	it.plan = plan
	return nil
}

// delegateRun creates the delegate node for run. end is the plan position
// just past the run.
func (it *Interpreter) delegateRun(reg *host.Registration, d host.Delegate, run []int, end int) (int, error) {
	produced := make(map[int]bool)
	seen := make(map[int]bool)
	var inputs []int
	for _, n := range run {
		node := &it.nodes[n].node
		for _, t := range node.Inputs {
			if t < 0 || produced[t] || seen[t] {
				continue
			}
			seen[t] = true
			inputs = append(inputs, t)
		}
		for _, t := range node.Outputs {
			if t >= 0 {
				produced[t] = true
			}
		}
	}

	readLater := make(map[int]bool)
	for _, n := range it.plan[end:] {
		for _, t := range it.nodes[n].node.Inputs {
			readLater[t] = true
		}
	}
	for _, t := range it.outputs {
		readLater[t] = true
	}
	var outputs []int
	for _, n := range run {
		for _, t := range it.nodes[n].node.Outputs {
			if t >= 0 && readLater[t] {
				outputs = append(outputs, t)
				readLater[t] = false
			}
		}
	}

	params := &host.DelegateParams{
		Delegate:       d,
		NodesToReplace: append([]int(nil), run...),
		InputTensors:   inputs,
		OutputTensors:  outputs,
	}
	var data any
	if reg.Init != nil {
		var err error
		if data, err = reg.Init(it, params); err != nil {
			return -1, errors.Wrapf(err, "init %s for nodes %v", reg.Name(), run)
		}
	}

	it.nodes = append(it.nodes, &nodeEntry{
		node: host.Node{Inputs: inputs, Outputs: outputs, UserData: data},
		reg:  reg,
	})
	return len(it.nodes) - 1, nil
}
