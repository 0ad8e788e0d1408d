package nn

import (
	"fmt"
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"golang.org/x/sync/errgroup"
)

// Backend defines the numeric kernels that carry real cost.
// This abstraction allows swapping implementations (CPU, GPU)
// without changing layer code.
type Backend interface {
	// Name identifies the backend in logs ("cpu", "gpu").
	Name() string

	// Conv2D cross-correlates x [N, Cin, H, W] with w [Cout, Cin, K, K].
	// There is no bias term. Output shape is [N, Cout, OH, OW] with
	// OH = (H + 2*padding - K)/stride + 1.
	Conv2D(x, w *Tensor, stride, padding int) (*Tensor, error)
}

// =============================================================================
// CPUBackend Implementation
// =============================================================================

// CPUBackend runs kernels on the host, fanning out over
// (batch, output channel) planes.
type CPUBackend struct {
	workers int
}

// NewCPUBackend creates a CPU backend sized to the logical core count.
func NewCPUBackend() *CPUBackend {
	workers := cpuid.CPU.LogicalCores
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &CPUBackend{workers: workers}
}

// Name returns "cpu"
func (b *CPUBackend) Name() string { return "cpu" }

// Workers returns the maximum number of planes computed concurrently.
func (b *CPUBackend) Workers() int { return b.workers }

// Describe returns the detected CPU model and feature level for logging.
func (b *CPUBackend) Describe() string {
	return fmt.Sprintf("%s (%d logical cores, x86 level %d, avx2=%t)",
		cpuid.CPU.BrandName, b.workers, cpuid.CPU.X64Level(), cpuid.CPU.Supports(cpuid.AVX2))
}

// Conv2D performs 2D cross-correlation on CPU
func (b *CPUBackend) Conv2D(x, w *Tensor, stride, padding int) (*Tensor, error) {
	g, err := convGeometry(x, w, stride, padding)
	if err != nil {
		return nil, err
	}
	out := NewTensor(g.batch, g.outC, g.outH, g.outW)

	var eg errgroup.Group
	eg.SetLimit(b.workers)
	for n := 0; n < g.batch; n++ {
		for f := 0; f < g.outC; f++ {
			eg.Go(func() error {
				conv2DPlane(x.Data, w.Data, out.Data, g, n, f)
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
