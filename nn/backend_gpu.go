//go:build gpu

package nn

import (
	"fmt"

	"github.com/openfluke/e2fpn/gpu"
)

// GPUBackend runs convolutions through WebGPU compute shaders
type GPUBackend struct{}

// NewGPUBackend initializes the shared GPU context
func NewGPUBackend() (*GPUBackend, error) {
	if err := gpu.EnsureGPU(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoGPU, err)
	}
	return &GPUBackend{}, nil
}

// Name returns "gpu"
func (b *GPUBackend) Name() string { return "gpu" }

// Conv2D dispatches the convolution to the GPU
func (b *GPUBackend) Conv2D(x, w *Tensor, stride, padding int) (*Tensor, error) {
	g, err := convGeometry(x, w, stride, padding)
	if err != nil {
		return nil, err
	}
	data, err := gpu.Conv2D(gpu.Conv2DSpec{
		Batch:       g.batch,
		InChannels:  g.inC,
		OutChannels: g.outC,
		KernelSize:  g.kSize,
		Stride:      g.stride,
		Padding:     g.padding,
		InputHeight: g.inH,
		InputWidth:  g.inW,
	}, x.Data, w.Data)
	if err != nil {
		return nil, err
	}
	return &Tensor{Data: data, Shape: []int{g.batch, g.outC, g.outH, g.outW}}, nil
}
