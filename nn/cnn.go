package nn

import (
	"fmt"
	"math"
	"math/rand"
)

// conv2DGeometry holds the resolved sizes of one convolution call
type conv2DGeometry struct {
	batch, inC, inH, inW int
	outC, kSize          int
	stride, padding      int
	outH, outW           int
}

// ConvOutputSize returns the spatial output size of a convolution
func ConvOutputSize(in, kernel, stride, padding int) int {
	return (in+2*padding-kernel)/stride + 1
}

func convGeometry(x, w *Tensor, stride, padding int) (conv2DGeometry, error) {
	n, c, h, wd, err := x.Dims4()
	if err != nil {
		return conv2DGeometry{}, err
	}
	if len(w.Shape) != 4 || w.Shape[2] != w.Shape[3] {
		return conv2DGeometry{}, fmt.Errorf("%w: conv weight must be [Cout, Cin, K, K], got %v", ErrShape, w.Shape)
	}
	if w.Shape[1] != c {
		return conv2DGeometry{}, fmt.Errorf("%w: conv weight expects %d input channels, tensor has %d", ErrShape, w.Shape[1], c)
	}
	if stride < 1 || padding < 0 {
		return conv2DGeometry{}, fmt.Errorf("%w: invalid stride %d / padding %d", ErrShape, stride, padding)
	}
	g := conv2DGeometry{
		batch: n, inC: c, inH: h, inW: wd,
		outC: w.Shape[0], kSize: w.Shape[2],
		stride: stride, padding: padding,
	}
	g.outH = ConvOutputSize(h, g.kSize, stride, padding)
	g.outW = ConvOutputSize(wd, g.kSize, stride, padding)
	if g.outH <= 0 || g.outW <= 0 {
		return conv2DGeometry{}, fmt.Errorf("%w: %dx%d input too small for kernel %d", ErrShape, h, wd, g.kSize)
	}
	return g, nil
}

// conv2DPlane computes output plane (n, f)
// input shape: [batch][inChannels][height][width] (flattened)
// kernel shape: [filters][inChannels][k][k] (flattened)
func conv2DPlane(input, kernel, output []float32, g conv2DGeometry, n, f int) {
	plane := output[(n*g.outC+f)*g.outH*g.outW : (n*g.outC+f+1)*g.outH*g.outW]
	kk := g.kSize * g.kSize

	for ic := 0; ic < g.inC; ic++ {
		in := input[(n*g.inC+ic)*g.inH*g.inW : (n*g.inC+ic+1)*g.inH*g.inW]
		kern := kernel[(f*g.inC+ic)*kk : (f*g.inC+ic+1)*kk]

		for kh := 0; kh < g.kSize; kh++ {
			for kw := 0; kw < g.kSize; kw++ {
				wv := kern[kh*g.kSize+kw]
				if wv == 0 {
					continue
				}
				for oh := 0; oh < g.outH; oh++ {
					ih := oh*g.stride + kh - g.padding
					// Check bounds
					if ih < 0 || ih >= g.inH {
						continue
					}
					row := in[ih*g.inW : (ih+1)*g.inW]
					dst := plane[oh*g.outW : (oh+1)*g.outW]
					for ow := range dst {
						iw := ow*g.stride + kw - g.padding
						if iw >= 0 && iw < g.inW {
							dst[ow] += wv * row[iw]
						}
					}
				}
			}
		}
	}
}

// HeNormal fills data with He-initialized weights (std = sqrt(2/fanIn))
func HeNormal(rng *rand.Rand, data []float32, fanIn int) {
	stddev := math.Sqrt(2.0 / float64(fanIn))
	for i := range data {
		data[i] = float32(rng.NormFloat64() * stddev)
	}
}

// =============================================================================
// Conv2D Layer
// =============================================================================

// Conv2D is a plain convolution with fixed weights and no bias
type Conv2D struct {
	Weight  *Tensor // [Cout, Cin, K, K]
	Stride  int
	Padding int

	backend Backend
}

// NewConv2D creates a convolution layer bound to a backend
func NewConv2D(weight *Tensor, stride, padding int, backend Backend) *Conv2D {
	if backend == nil {
		backend = NewCPUBackend()
	}
	return &Conv2D{Weight: weight, Stride: stride, Padding: padding, backend: backend}
}

// Forward runs the convolution on the layer's backend
func (c *Conv2D) Forward(x *Tensor) (*Tensor, error) {
	return c.backend.Conv2D(x, c.Weight, c.Stride, c.Padding)
}

// OutputShape returns [N, Cout, OH, OW] for an [N, Cin, H, W] input
func (c *Conv2D) OutputShape(in []int) ([]int, error) {
	if len(in) != 4 || in[1] != c.Weight.Shape[1] {
		return nil, fmt.Errorf("%w: conv expects [N, %d, H, W], got %v", ErrShape, c.Weight.Shape[1], in)
	}
	k := c.Weight.Shape[2]
	return []int{in[0], c.Weight.Shape[0],
		ConvOutputSize(in[2], k, c.Stride, c.Padding),
		ConvOutputSize(in[3], k, c.Stride, c.Padding)}, nil
}
