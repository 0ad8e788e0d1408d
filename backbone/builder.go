package backbone

import (
	"math/rand"

	"github.com/openfluke/e2fpn/e2"
	"github.com/openfluke/e2fpn/nn"
)

// builder creates equivariant operators sharing one random source and
// one backend.
type builder struct {
	rng      *rand.Rand
	backend  nn.Backend
	eps      float64
	momentum float64
}

func (b *builder) conv(in, out e2.FieldType, spec e2.ConvSpec) (op[geometric], error) {
	c, err := e2.NewR2Conv(in, out, spec, b.rng, b.backend)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (b *builder) norm(typ e2.FieldType) op[geometric] {
	return e2.NewInnerBatchNorm(typ, b.eps, b.momentum)
}

func (b *builder) relu(typ e2.FieldType) op[geometric] {
	return e2.NewReLU(typ)
}

func (b *builder) upsample(typ e2.FieldType) (op[geometric], error) {
	u, err := e2.NewUpsampling(typ, 2)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// convNormReLU builds conv -> batchnorm -> relu
func (b *builder) convNormReLU(in, out e2.FieldType, spec e2.ConvSpec) (sequence[geometric], error) {
	c, err := b.conv(in, out, spec)
	if err != nil {
		return nil, err
	}
	return sequence[geometric]{c, b.norm(out), b.relu(out)}, nil
}

// fuse builds the 3x3 conv -> bn -> relu -> 3x3 conv refinement applied
// after a top-down addition.
func (b *builder) fuse(typ, out e2.FieldType) (sequence[geometric], error) {
	head, err := b.convNormReLU(typ, typ, e2.Conv3x3(1))
	if err != nil {
		return nil, err
	}
	last, err := b.conv(typ, out, e2.Conv3x3(1))
	if err != nil {
		return nil, err
	}
	return append(head, last), nil
}

var (
	stemNames = []string{"conv", "bn", "relu"}
	fuseNames = []string{"conv1", "bn", "relu", "conv2"}
)
