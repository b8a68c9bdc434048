package accel

// Op is the parameter block of an operation. The concrete type selects the
// computation; backends switch on it.
type Op interface {
	Kind() string
}

// Activation is applied by recurrent cells to their new state.
type Activation int

// Activations.
const (
	ActivationNone Activation = iota
	ActivationRelu
	ActivationRelu1
	ActivationRelu6
	ActivationTanh
	ActivationSigmoid
)

// Add computes inputs[0] + inputs[1] with broadcasting.
type Add struct{}

// Sub computes inputs[0] - inputs[1] with broadcasting.
type Sub struct{}

// Multiply computes Scale * inputs[0] * inputs[1] with broadcasting.
type Multiply struct {
	Scale float32
}

// Relu computes max(x, 0).
type Relu struct{}

// Relu1 clamps to [-1, 1].
type Relu1 struct{}

// Relu6 clamps to [0, 6].
type Relu6 struct{}

// Tanh computes the hyperbolic tangent.
type Tanh struct{}

// Sigmoid computes 1 / (1 + exp(-x)).
type Sigmoid struct{}

// LeakyRelu computes x for x >= 0 and Alpha*x otherwise.
type LeakyRelu struct {
	Alpha float32
}

// FullyConnected multiplies inputs[0] ([K, B]) by weights inputs[1] ([K, N])
// and adds the optional bias inputs[2] ([N]). Output is [N, B].
type FullyConnected struct {
	Weights uint32
}

// RNNCell is a basic recurrent cell:
//
//	state' = act(input * W + state * R + bias)
//
// Inputs: input [I, B], weights [I, U], recurrent weights [U, U], bias [U],
// state [U, B]. Outputs: output [U, B] and the new state [U, B], which hold
// the same values.
type RNNCell struct {
	Activation Activation
}

// Transpose permutes dimensions: out.Shape[j] = in.Shape[Perm[j]].
type Transpose struct {
	Perm []uint32
}

// Reshape reinterprets the input with a new shape of the same element count.
type Reshape struct {
	Size ShapeType
}

// Kind implements Op.
func (Add) Kind() string { return "Add" }

// Kind implements Op.
func (Sub) Kind() string { return "Sub" }

// Kind implements Op.
func (Multiply) Kind() string { return "Multiply" }

// Kind implements Op.
func (Relu) Kind() string { return "Relu" }

// Kind implements Op.
func (Relu1) Kind() string { return "Relu1" }

// Kind implements Op.
func (Relu6) Kind() string { return "Relu6" }

// Kind implements Op.
func (Tanh) Kind() string { return "Tanh" }

// Kind implements Op.
func (Sigmoid) Kind() string { return "Sigmoid" }

// Kind implements Op.
func (LeakyRelu) Kind() string { return "LeakyRelu" }

// Kind implements Op.
func (FullyConnected) Kind() string { return "FullyConnected" }

// Kind implements Op.
func (RNNCell) Kind() string { return "RNNCell" }

// Kind implements Op.
func (Transpose) Kind() string { return "Transpose" }

// Kind implements Op.
func (Reshape) Kind() string { return "Reshape" }

// IsElementwiseBinary reports whether op combines two broadcast operands.
func IsElementwiseBinary(op Op) bool {
	switch op.(type) {
	case Add, Sub, Multiply:
		return true
	}
	return false
}

// IsElementwiseUnary reports whether op maps each element independently.
func IsElementwiseUnary(op Op) bool {
	switch op.(type) {
	case Relu, Relu1, Relu6, Tanh, Sigmoid, LeakyRelu:
		return true
	}
	return false
}
