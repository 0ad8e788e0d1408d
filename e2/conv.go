package e2

import (
	"fmt"
	"math/rand"

	"github.com/openfluke/e2fpn/nn"
)

// ConvSpec is the geometry of a convolution
type ConvSpec struct {
	Kernel  int
	Stride  int
	Padding int
}

// Conv1x1 is a pointwise convolution without padding
func Conv1x1(stride int) ConvSpec { return ConvSpec{Kernel: 1, Stride: stride, Padding: 0} }

// Conv3x3 is a 3x3 convolution with unit padding
func Conv3x3(stride int) ConvSpec { return ConvSpec{Kernel: 3, Stride: stride, Padding: 1} }

// R2Conv is a rotation-equivariant convolution between two field types.
// It has no bias. Its dense filter is expanded from base filters on every
// forward pass so that externally updated parameters take effect.
type R2Conv struct {
	in, out FieldType
	spec    ConvSpec

	weight  *nn.Tensor // flat base filters, see layoutBlocks
	blocks  []convBlock
	backend nn.Backend
}

// NewR2Conv creates a convolution from in to out with He-normal base
// filters drawn from rng.
func NewR2Conv(in, out FieldType, spec ConvSpec, rng *rand.Rand, backend nn.Backend) (*R2Conv, error) {
	if in.IsZero() || out.IsZero() {
		return nil, fmt.Errorf("%w: conv needs declared input and output types", ErrConfiguration)
	}
	if in.GroupOrder() != out.GroupOrder() {
		return nil, fmt.Errorf("%w: conv from C%d to C%d", ErrTypeMismatch, in.GroupOrder(), out.GroupOrder())
	}
	if spec.Kernel < 1 || spec.Stride < 1 || spec.Padding < 0 {
		return nil, fmt.Errorf("%w: invalid conv geometry %+v", ErrConfiguration, spec)
	}
	if backend == nil {
		backend = nn.NewCPUBackend()
	}
	blocks, total := layoutBlocks(in, out, spec.Kernel)
	weight := nn.NewTensor(total)
	nn.HeNormal(rng, weight.Data, in.Size()*spec.Kernel*spec.Kernel)

	return &R2Conv{in: in, out: out, spec: spec, weight: weight, blocks: blocks, backend: backend}, nil
}

func (c *R2Conv) Kind() Kind         { return KindConv }
func (c *R2Conv) InType() FieldType  { return c.in }
func (c *R2Conv) OutType() FieldType { return c.out }

func (c *R2Conv) Spec() OpSpec {
	return OpSpec{Kind: KindConv, Kernel: c.spec.Kernel, Stride: c.spec.Stride, Padding: c.spec.Padding, Params: c.weight.Size()}
}

// Parameters returns the base filters
func (c *R2Conv) Parameters() []*nn.Tensor { return []*nn.Tensor{c.weight} }

// Filter expands the base filters into the dense [Cout, Cin, K, K] filter.
func (c *R2Conv) Filter() *nn.Tensor {
	return expandFilter(c.weight.Data, c.blocks, c.in, c.out, c.spec.Kernel)
}

func (c *R2Conv) Forward(x *GeometricTensor) (*GeometricTensor, error) {
	if err := checkInput("conv", x, c.in); err != nil {
		return nil, err
	}
	y, err := c.backend.Conv2D(x.Tensor, c.Filter(), c.spec.Stride, c.spec.Padding)
	if err != nil {
		return nil, err
	}
	return &GeometricTensor{Tensor: y, Type: c.out}, nil
}

func (c *R2Conv) OutputShape(in []int) ([]int, error) {
	if err := spatialShape("conv", in, c.in); err != nil {
		return nil, err
	}
	return []int{in[0], c.out.Size(),
		nn.ConvOutputSize(in[2], c.spec.Kernel, c.spec.Stride, c.spec.Padding),
		nn.ConvOutputSize(in[3], c.spec.Kernel, c.spec.Stride, c.spec.Padding)}, nil
}

// Export expands the filter once into a plain convolution.
func (c *R2Conv) Export() (*Exported, error) {
	return newExported(c, nn.NewConv2D(c.Filter(), c.spec.Stride, c.spec.Padding, c.backend)), nil
}
