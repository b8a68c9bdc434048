//go:build windows

package webgpu

import (
	"encoding/binary"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
)

// device owns the WebGPU objects and the shader/pipeline caches.
type device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex
}

// openDevice requests a high-performance adapter and its default queue.
func openDevice() (d *device, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			d = nil
			err = errors.Wrapf(ErrUnavailable, "native library: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, errors.Wrapf(ErrUnavailable, "request adapter: %v", adapterErr)
	}

	dev, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrapf(ErrUnavailable, "request device: %v", deviceErr)
	}

	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, errors.Wrap(ErrUnavailable, "no queue")
	}

	return &device{
		instance:  instance,
		adapter:   adapter,
		device:    dev,
		queue:     queue,
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
	}, nil
}

func (d *device) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.pipelines {
		p.Release()
	}
	for _, s := range d.shaders {
		s.Release()
	}
	d.pipelines, d.shaders = nil, nil
	d.queue.Release()
	d.device.Release()
	d.adapter.Release()
	d.instance.Release()
}

// pipeline returns the cached compute pipeline for a named shader.
func (d *device) pipeline(name string) (*wgpu.ComputePipeline, error) {
	d.mu.RLock()
	if p, ok := d.pipelines[name]; ok {
		d.mu.RUnlock()
		return p, nil
	}
	d.mu.RUnlock()

	code, ok := shaders[name]
	if !ok {
		return nil, errors.Errorf("webgpu: no shader %q", name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pipelines[name]; ok {
		return p, nil
	}
	shader := d.device.CreateShaderModuleWGSL(code)
	d.shaders[name] = shader
	// Auto layout (nil layout).
	p := d.device.CreateComputePipelineSimple(nil, shader, "main")
	d.pipelines[name] = p
	return p, nil
}

// createBuffer creates a storage buffer holding data.
func (d *device) createBuffer(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mappedPtr), size), data)
	buffer.Unmap()
	return buffer
}

// createUniformBuffer creates a 16-byte aligned uniform buffer.
func (d *device) createUniformBuffer(data []byte) *wgpu.Buffer {
	size := (uint64(len(data)) + 15) &^ 15
	buffer := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mappedPtr), size), data)
	buffer.Unmap()
	return buffer
}

// readBuffer copies a storage buffer into dst through a staging buffer.
func (d *device) readBuffer(src *wgpu.Buffer, dst []byte) error {
	size := uint64(len(dst))
	staging := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	d.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(d.device, wgpu.MapModeRead, 0, size); err != nil {
		return errors.Wrap(err, "webgpu: map staging buffer")
	}
	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(dst, unsafe.Slice((*byte)(mappedPtr), size))
	staging.Unmap()
	return nil
}

// elementwise runs the named shader over same-sized float32 operands and
// writes the result into out.
func (d *device) elementwise(name string, out []byte, operands ...[]byte) error {
	pipeline, err := d.pipeline(name)
	if err != nil {
		return err
	}
	numElements := len(out) / 4
	size := uint64(len(out))

	entries := make([]wgpu.BindGroupEntry, 0, len(operands)+2)
	for i, data := range operands {
		buf := d.createBuffer(data)
		defer buf.Release()
		//nolint:gosec // G115: binding index is tiny
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), buf, 0, size))
	}

	result := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer result.Release()

	params := make([]byte, 16)
	//nolint:gosec // G115: element count fits in uint32
	binary.LittleEndian.PutUint32(params[0:4], uint32(numElements))
	paramBuf := d.createUniformBuffer(params)
	defer paramBuf.Release()

	//nolint:gosec // G115: binding index is tiny
	n := uint32(len(operands))
	entries = append(entries,
		wgpu.BufferBindingEntry(n, result, 0, size),
		wgpu.BufferBindingEntry(n+1, paramBuf, 0, 16),
	)
	bindGroup := d.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), entries)
	defer bindGroup.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	//nolint:gosec // G115: workgroup count is non-negative
	pass.DispatchWorkgroups(uint32((numElements+workgroupSize-1)/workgroupSize), 1, 1)
	pass.End()
	d.queue.Submit(encoder.Finish(nil))

	return d.readBuffer(result, out)
}
