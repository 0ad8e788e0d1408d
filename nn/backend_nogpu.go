//go:build !gpu

package nn

// GPUBackend is unavailable without the gpu build tag
type GPUBackend struct{}

// NewGPUBackend always fails with ErrNoGPU in builds without -tags=gpu
func NewGPUBackend() (*GPUBackend, error) {
	return nil, ErrNoGPU
}

// Name returns "gpu"
func (b *GPUBackend) Name() string { return "gpu" }

// Conv2D always fails with ErrNoGPU
func (b *GPUBackend) Conv2D(x, w *Tensor, stride, padding int) (*Tensor, error) {
	return nil, ErrNoGPU
}
