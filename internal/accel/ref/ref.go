// Package ref implements the accel backend in pure Go.
//
// It is the default accelerator: graphs are validated at Compile and run
// operation by operation on the CPU. The graph bookkeeping is reusable by
// other backends through NewContextWithExecutor.
package ref

import (
	"sync/atomic"

	"github.com/born-ml/graphbridge/internal/accel"
	"github.com/born-ml/graphbridge/internal/parallel"
)

// Name is the backend name.
const Name = "reference"

// Stats counts backend activity. Useful to assert compile-once behavior.
type Stats struct {
	Graphs   int64
	Compiles int64
	Runs     int64
}

// Context implements accel.Context.
type Context struct {
	name        string
	newExecutor func() Executor

	graphs   atomic.Int64
	compiles atomic.Int64
	runs     atomic.Int64
}

var _ accel.Context = (*Context)(nil)

// NewContext returns a reference context running kernels on the CPU.
func NewContext() *Context {
	cfg := parallel.DefaultConfig()
	return NewContextWithExecutor(Name, func() Executor {
		return NewCPUExecutor(cfg)
	})
}

// NewContextWithExecutor returns a context whose graphs execute operations
// with executors built by newExecutor.
func NewContextWithExecutor(name string, newExecutor func() Executor) *Context {
	return &Context{
		name:        name,
		newExecutor: newExecutor,
	}
}

// Name implements accel.Context.
func (c *Context) Name() string {
	return c.name
}

// CreateGraph implements accel.Context.
func (c *Context) CreateGraph() (accel.Graph, error) {
	c.graphs.Add(1)
	return &Graph{
		ctx:  c,
		exec: c.newExecutor(),
	}, nil
}

// Release implements accel.Context.
func (c *Context) Release() {}

// Stats returns a snapshot of the activity counters.
func (c *Context) Stats() Stats {
	return Stats{
		Graphs:   c.graphs.Load(),
		Compiles: c.compiles.Load(),
		Runs:     c.runs.Load(),
	}
}
