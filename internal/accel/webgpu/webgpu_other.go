//go:build !windows

package webgpu

// New returns ErrUnavailable: the WebGPU bindings are only built on windows.
func New() (*Context, error) {
	return nil, ErrUnavailable
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() bool {
	return false
}
