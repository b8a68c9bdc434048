//go:build windows

package webgpu

import (
	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/graphbridge/internal/accel"
	"github.com/born-ml/graphbridge/internal/accel/ref"
	"github.com/born-ml/graphbridge/internal/parallel"
)

// executor runs float32 elementwise operations without broadcasting on the
// GPU and hands everything else to the CPU executor.
type executor struct {
	dev *device
	cpu *ref.CPUExecutor
}

var _ ref.Executor = (*executor)(nil)

func (e *executor) Prepare(o *ref.Operation) error {
	return e.cpu.Prepare(o)
}

func (e *executor) Execute(o *ref.Operation) error {
	if !e.onGPU(o) {
		return e.cpu.Execute(o)
	}
	operands := make([][]byte, 0, 2)
	for i := range o.Inputs() {
		operands = append(operands, o.In(i).Data())
	}
	return e.dev.elementwise(o.Op().Kind(), o.Out(0).Data(), operands...)
}

func (e *executor) onGPU(o *ref.Operation) bool {
	if _, ok := shaders[o.Op().Kind()]; !ok {
		return false
	}
	if m, ok := o.Op().(accel.Multiply); ok && m.Scale != 0 && m.Scale != 1 {
		return false
	}
	out := o.Out(0).Spec()
	if out.DataType != accel.Float32 || out.Quant.Type != accel.QuantNone {
		return false
	}
	for i := range o.Inputs() {
		in := o.In(i)
		if in == nil {
			return false
		}
		s := in.Spec()
		if s.DataType != accel.Float32 || s.Quant.Type != accel.QuantNone || !s.Shape.Equal(out.Shape) {
			return false
		}
	}
	return true
}

// New opens the default WebGPU adapter and returns a context on it.
func New() (*Context, error) {
	dev, err := openDevice()
	if err != nil {
		return nil, err
	}
	cfg := parallel.DefaultConfig()
	ctx := ref.NewContextWithExecutor(Name, func() ref.Executor {
		return &executor{dev: dev, cpu: ref.NewCPUExecutor(cfg)}
	})
	return &Context{Context: ctx, release: dev.release}, nil
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}
