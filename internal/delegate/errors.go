package delegate

import "errors"

// Errors returned by the delegate. Callers test them with errors.Is; the
// returned errors carry context added with github.com/pkg/errors.
var (
	// ErrMissingParams means a claimed node lacks the parameter bytes its
	// operator needs.
	ErrMissingParams = errors.New("delegate: operator parameters missing")
	// ErrUnsupportedOp means a claimed node has no catalog entry.
	ErrUnsupportedOp = errors.New("delegate: unsupported operator")
	// ErrUnsupportedType means a tensor's element type has no accelerator
	// counterpart or cannot be transposed.
	ErrUnsupportedType = errors.New("delegate: unsupported tensor type")
	// ErrQuantization means per-channel parameters do not fit the tensor
	// shape.
	ErrQuantization = errors.New("delegate: invalid quantization")
	// ErrPermutation means a permutation does not fit the tensor rank.
	ErrPermutation = errors.New("delegate: invalid permutation")
	// ErrCompile means building or compiling the accelerator graph failed.
	// It is terminal for the kernel instance.
	ErrCompile = errors.New("delegate: graph compilation failed")
	// ErrMissingTensor means an index has no accelerator tensor or no
	// host buffer.
	ErrMissingTensor = errors.New("delegate: missing tensor")
	// ErrExecution means copying data or running the graph failed.
	ErrExecution = errors.New("delegate: execution failed")
	// ErrInstanceFailed is returned by every invocation after a runtime
	// failure.
	ErrInstanceFailed = errors.New("delegate: kernel instance failed earlier")
	// ErrUnknownBackend means Options.Backend names no known backend.
	ErrUnknownBackend = errors.New("delegate: unknown backend")
	// ErrTableEntry means a tensor table slot was set twice or is out of range.
	ErrTableEntry = errors.New("delegate: tensor table entry")
)
