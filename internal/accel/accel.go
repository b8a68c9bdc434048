// Package accel defines the accelerator execution backend used by the delegate.
//
// A backend exposes a Context that creates Graphs. A Graph is populated with
// Tensors and Operations, compiled once, and then run any number of times.
// Shapes are listed innermost dimension first.
//
// Implementations:
//   - ref: pure Go reference executor
//   - webgpu: WebGPU compute shaders (windows)
package accel

// Tensor is a graph-owned tensor.
type Tensor interface {
	// ID is unique within the owning graph.
	ID() uint32
	Spec() TensorSpec
	// IsPlaceholder reports whether the tensor stands for an absent operand.
	IsPlaceholder() bool
	// ConstData returns the payload of a constant tensor, nil otherwise.
	ConstData() []byte
	// CopyDataToTensor uploads len(Spec().ByteSize()) bytes from src.
	CopyDataToTensor(src []byte) error
	// CopyDataFromTensor downloads the tensor payload into dst.
	CopyDataFromTensor(dst []byte) error
}

// Operation is a node of a graph with bound operands.
type Operation interface {
	Op() Op
	BindInputs(tensors ...Tensor) Operation
	BindOutputs(tensors ...Tensor) Operation
	Inputs() []Tensor
	Outputs() []Tensor
}

// Graph is a buildable, compilable, runnable computation graph.
//
// Tensors and operations can only be added before Compile succeeds.
type Graph interface {
	CreateTensor(spec TensorSpec, data []byte) (Tensor, error)
	CreateTensorPlaceholder() Tensor
	CreateOperation(op Op) (Operation, error)

	// Tensors returns all tensors in creation order.
	Tensors() []Tensor
	// Operations returns all operations in creation order.
	Operations() []Operation

	Compile() error
	Compiled() bool
	Run() error
}

// Context owns backend resources shared by its graphs.
type Context interface {
	Name() string
	CreateGraph() (Graph, error)
	Release()
}
