// Package delegate hands supported parts of a host inference engine's
// execution plan to an accelerator.
//
// The host calls Prepare on the delegate once, before allocating tensors.
// The delegate claims every node its operator catalog accepts; the host
// replaces each run of consecutive claimed nodes with one delegate kernel.
// A kernel builds and compiles its accelerator graph on first invocation
// and afterwards only copies inputs in, runs, and copies outputs (and
// recurrent state) back.
//
// # Backends
//
//   - reference: pure Go, always available (default)
//   - webgpu: WebGPU compute shaders (Windows)
//
// # Example Usage
//
//	d, err := delegate.New(delegate.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := engine.ModifyGraphWithDelegate(d); err != nil {
//	    log.Fatal(err)
//	}
//
// Use [ListSupportedOps] to get the operators the delegate can take over.
package delegate

import (
	"github.com/born-ml/graphbridge/internal/delegate"
	"github.com/born-ml/graphbridge/internal/host"
	"github.com/born-ml/graphbridge/internal/opmap"
)

// Options configures a Delegate.
type Options = delegate.Options

// Delegate takes over supported nodes of a host execution plan.
type Delegate = delegate.Delegate

// HostContext is the host engine surface the delegate works against.
type HostContext = host.Context

// Node is one operation of the host execution plan.
type Node = host.Node

// Registration describes an operator implementation handed to the host.
type Registration = host.Registration

// Params describes one subgraph claimed by the delegate.
type Params = host.DelegateParams

// Errors reported by delegate kernels. Test them with errors.Is.
var (
	ErrMissingParams   = delegate.ErrMissingParams
	ErrUnsupportedOp   = delegate.ErrUnsupportedOp
	ErrUnsupportedType = delegate.ErrUnsupportedType
	ErrQuantization    = delegate.ErrQuantization
	ErrCompile         = delegate.ErrCompile
	ErrExecution       = delegate.ErrExecution
	ErrInstanceFailed  = delegate.ErrInstanceFailed
	ErrUnknownBackend  = delegate.ErrUnknownBackend
)

// DefaultOptions returns the default delegate configuration.
//
// Default configuration:
//   - Logger: logrus standard logger
//   - Backend: reference
//   - Operators: the full built-in catalog
func DefaultOptions() Options {
	return delegate.DefaultOptions()
}

// New creates a delegate.
//
// Example:
//
//	opts := delegate.DefaultOptions()
//	opts.Backend = "webgpu"
//	d, err := delegate.New(opts)
func New(opts Options) (*Delegate, error) {
	return delegate.New(opts)
}

// Backends returns the backend names accepted in Options.Backend.
func Backends() []string {
	return delegate.Backends()
}

// ListSupportedOps returns the names of all operators the default catalog
// can delegate, sorted.
//
// Example:
//
//	for _, op := range delegate.ListSupportedOps() {
//	    fmt.Println(op)
//	}
func ListSupportedOps() []string {
	ids := opmap.NewRegistry().SupportedOps()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id.String()
	}
	return names
}
