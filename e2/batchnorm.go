package e2

import (
	"github.com/openfluke/e2fpn/nn"
)

const (
	// DefaultBNEpsilon is added to the variance before normalizing
	DefaultBNEpsilon = 1e-5
	// DefaultBNMomentum weights the newest batch in the running statistics
	DefaultBNMomentum = 0.1
)

// InnerBatchNorm normalizes each field with statistics shared by all of
// its channels, which keeps regular fields equivariant: a rotation only
// permutes channels inside a field and leaves the field's statistics
// unchanged. Gain and bias are per field.
type InnerBatchNorm struct {
	typ      FieldType
	gamma    *nn.Tensor // [fields]
	beta     *nn.Tensor // [fields]
	mean     []float64  // running, per field
	variance []float64  // running, per field

	eps      float64
	momentum float64
	training bool
}

// NewInnerBatchNorm creates a batch norm over typ with unit gain, zero
// bias and running statistics (0, 1). It starts in training mode.
func NewInnerBatchNorm(typ FieldType, eps, momentum float64) *InnerBatchNorm {
	if eps <= 0 {
		eps = DefaultBNEpsilon
	}
	if momentum <= 0 {
		momentum = DefaultBNMomentum
	}
	bn := &InnerBatchNorm{
		typ:      typ,
		gamma:    nn.NewTensor(typ.Len()),
		beta:     nn.NewTensor(typ.Len()),
		mean:     make([]float64, typ.Len()),
		variance: make([]float64, typ.Len()),
		eps:      eps,
		momentum: momentum,
		training: true,
	}
	for i := range bn.gamma.Data {
		bn.gamma.Data[i] = 1
		bn.variance[i] = 1
	}
	return bn
}

func (b *InnerBatchNorm) Kind() Kind         { return KindNormalize }
func (b *InnerBatchNorm) InType() FieldType  { return b.typ }
func (b *InnerBatchNorm) OutType() FieldType { return b.typ }

func (b *InnerBatchNorm) Spec() OpSpec {
	return OpSpec{Kind: KindNormalize, Params: b.gamma.Size() + b.beta.Size()}
}

// Parameters returns gain and bias
func (b *InnerBatchNorm) Parameters() []*nn.Tensor { return []*nn.Tensor{b.gamma, b.beta} }

// SetTraining switches between batch and running statistics
func (b *InnerBatchNorm) SetTraining(training bool) { b.training = training }

// Training reports whether batch statistics are in use
func (b *InnerBatchNorm) Training() bool { return b.training }

// RunningStats returns copies of the per-field running mean and variance
func (b *InnerBatchNorm) RunningStats() (mean, variance []float64) {
	return append([]float64(nil), b.mean...), append([]float64(nil), b.variance...)
}

// SetRunningStats overwrites the running statistics, e.g. when restoring
// trained state. Slices must have one entry per field.
func (b *InnerBatchNorm) SetRunningStats(mean, variance []float64) error {
	if len(mean) != b.typ.Len() || len(variance) != b.typ.Len() {
		return nn.ErrShape
	}
	copy(b.mean, mean)
	copy(b.variance, variance)
	return nil
}

func (b *InnerBatchNorm) Forward(x *GeometricTensor) (*GeometricTensor, error) {
	if err := checkInput("batchnorm", x, b.typ); err != nil {
		return nil, err
	}
	mean, variance := b.mean, b.variance
	if b.training {
		var err error
		mean, variance, err = b.batchStats(x.Tensor)
		if err != nil {
			return nil, err
		}
	}
	scale, shift := b.affine(mean, variance)
	y, err := nn.ChannelAffine(x.Tensor, scale, shift)
	if err != nil {
		return nil, err
	}
	return &GeometricTensor{Tensor: y, Type: b.typ}, nil
}

// batchStats computes per-field mean and biased variance over batch,
// channels of the field and space, and folds them into the running
// statistics (with unbiased variance). Running statistics are untouched
// when the batch is rejected.
func (b *InnerBatchNorm) batchStats(t *nn.Tensor) (mean, variance []float64, err error) {
	if err := nn.CheckImage(t); err != nil {
		return nil, nil, err
	}
	n, c, h, w := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	plane := h * w
	offs := b.typ.offsets()
	mean = make([]float64, b.typ.Len())
	variance = make([]float64, b.typ.Len())
	unbiased := make([]float64, b.typ.Len())

	for f := range mean {
		size := b.typ.Repr(f).Size(b.typ.GroupOrder())
		count := float64(n * size * plane)

		var sum float64
		for bi := 0; bi < n; bi++ {
			for ch := offs[f]; ch < offs[f]+size; ch++ {
				for _, v := range t.Data[(bi*c+ch)*plane : (bi*c+ch+1)*plane] {
					sum += float64(v)
				}
			}
		}
		mu := sum / count

		var sq float64
		for bi := 0; bi < n; bi++ {
			for ch := offs[f]; ch < offs[f]+size; ch++ {
				for _, v := range t.Data[(bi*c+ch)*plane : (bi*c+ch+1)*plane] {
					d := float64(v) - mu
					sq += d * d
				}
			}
		}
		mean[f] = mu
		variance[f] = sq / count
		unbiased[f] = variance[f]
		if count > 1 {
			unbiased[f] = sq / (count - 1)
		}
	}

	for f := range mean {
		b.mean[f] = (1-b.momentum)*b.mean[f] + b.momentum*mean[f]
		b.variance[f] = (1-b.momentum)*b.variance[f] + b.momentum*unbiased[f]
	}
	return mean, variance, nil
}

// affine expands per-field statistics into per-channel scale and shift.
func (b *InnerBatchNorm) affine(mean, variance []float64) (scale, shift []float32) {
	scale = make([]float32, b.typ.Size())
	shift = make([]float32, b.typ.Size())
	offs := b.typ.offsets()
	for f := range mean {
		s, t := nn.BatchNormAffine(float64(b.gamma.Data[f]), float64(b.beta.Data[f]), mean[f], variance[f], b.eps)
		for ch := offs[f]; ch < offs[f]+b.typ.Repr(f).Size(b.typ.GroupOrder()); ch++ {
			scale[ch], shift[ch] = s, t
		}
	}
	return scale, shift
}

func (b *InnerBatchNorm) OutputShape(in []int) ([]int, error) {
	if err := spatialShape("batchnorm", in, b.typ); err != nil {
		return nil, err
	}
	return append([]int(nil), in...), nil
}

// Export freezes the running statistics into a per-channel affine map.
func (b *InnerBatchNorm) Export() (*Exported, error) {
	scale, shift := b.affine(b.mean, b.variance)
	return newExported(b, &nn.BatchNorm{Scale: scale, Shift: shift}), nil
}
