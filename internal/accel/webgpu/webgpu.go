// Package webgpu implements an accel backend that runs float32 elementwise
// operations on the GPU through WebGPU.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
//
// Graph bookkeeping is shared with the reference backend; operations the GPU
// path does not cover run on the CPU executor.
package webgpu

import (
	"errors"

	"github.com/born-ml/graphbridge/internal/accel"
	"github.com/born-ml/graphbridge/internal/accel/ref"
)

// Name is the backend name.
const Name = "webgpu"

// ErrUnavailable is returned by New when no WebGPU adapter can be used.
var ErrUnavailable = errors.New("webgpu: not available")

// Context implements accel.Context on a WebGPU device.
type Context struct {
	*ref.Context
	release func()
}

var _ accel.Context = (*Context)(nil)

// Release frees the GPU device. Graphs created by the context must not be
// run afterwards.
func (c *Context) Release() {
	if c.release != nil {
		c.release()
		c.release = nil
	}
}
