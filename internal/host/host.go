// Package host defines the boundary between a host inference engine and a
// delegate that takes over part of its execution plan.
//
// The host owns the tensors and the node list. A delegate inspects nodes
// during Prepare and asks the host to replace a subset of them with a single
// delegate kernel, described by a Registration (init, prepare, invoke, free).
package host

import (
	"github.com/born-ml/graphbridge/internal/tensor"
)

// Node is one operation in the host execution plan.
type Node struct {
	Inputs  []int
	Outputs []int

	// BuiltinData holds the encoded parameters of a builtin operator.
	BuiltinData []byte
	// CustomData holds the encoded parameters of a custom operator.
	CustomData []byte

	// UserData is the value returned by Registration.Init for delegate kernels.
	UserData any
}

// Registration describes an operator implementation.
//
// Exactly one of BuiltinCode (other than BuiltinCustom) or CustomName
// identifies the operator. Any of the function fields may be nil.
type Registration struct {
	BuiltinCode BuiltinOperator
	CustomName  string
	Version     int

	// Init is called once when the host instantiates the kernel.
	// For delegate kernels params is a *DelegateParams.
	Init func(ctx Context, params *DelegateParams) (any, error)
	// Free releases whatever Init returned.
	Free func(ctx Context, data any)
	// Prepare runs after tensors are allocated.
	Prepare func(ctx Context, node *Node) error
	// Invoke executes the kernel.
	Invoke func(ctx Context, node *Node) error
}

// Name returns the custom name, or the builtin operator name.
func (r *Registration) Name() string {
	if r.CustomName != "" {
		return r.CustomName
	}
	return r.BuiltinCode.String()
}

// DelegateParams is handed to a delegate kernel's Init.
// It describes one claimed subgraph.
type DelegateParams struct {
	Delegate       Delegate
	NodesToReplace []int
	InputTensors   []int
	OutputTensors  []int
}

// BufferHandle identifies a delegate-owned buffer.
type BufferHandle int

// InvalidBufferHandle means the tensor has no delegate buffer.
const InvalidBufferHandle BufferHandle = -1

// Delegate is implemented by accelerators that take over host nodes.
type Delegate interface {
	// Prepare inspects the execution plan and claims supported nodes via
	// Context.ReplaceNodeSubsetsWithDelegateKernels.
	Prepare(ctx Context) error
	// CopyFromBufferHandle copies a delegate-owned buffer into t.Data.
	CopyFromBufferHandle(ctx Context, handle BufferHandle, t *tensor.Tensor) error
	// FreeBufferHandle releases a delegate-owned buffer.
	FreeBufferHandle(ctx Context, handle *BufferHandle)
}

// Context is the host engine surface visible to a delegate.
type Context interface {
	// ExecutionPlan returns node indices in execution order.
	ExecutionPlan() []int
	// NodeAndRegistration resolves a node index.
	NodeAndRegistration(index int) (*Node, *Registration, error)
	// Tensor returns the descriptor at index, or nil when out of range.
	Tensor(index int) *tensor.Tensor
	// TensorsSize returns the number of tensors known to the host.
	TensorsSize() int
	// ReplaceNodeSubsetsWithDelegateKernels replaces the nodes listed in the
	// count-prefixed list nodesToReplace with delegate kernels built from reg.
	ReplaceNodeSubsetsWithDelegateKernels(reg *Registration, nodesToReplace []int, d Delegate) error
}
