package accel

import "errors"

// Common errors.
var (
	ErrGraphCompiled   = errors.New("graph already compiled")
	ErrNotCompiled     = errors.New("graph not compiled")
	ErrUnsupportedOp   = errors.New("operation not supported by backend")
	ErrUnsupportedType = errors.New("data type not supported by backend")
	ErrShapeMismatch   = errors.New("shape mismatch")
	ErrUnbound         = errors.New("operation operand not bound")
	ErrBufferSize      = errors.New("buffer size does not match tensor")
	ErrForeignTensor   = errors.New("tensor belongs to another graph")
	ErrQuantization    = errors.New("quantization does not fit tensor")
)
