package nn

import (
	"fmt"
	"math"
)

// BatchNormAffine folds normalization statistics and the learned gain/bias
// into a single per-channel scale and shift:
//
//	y = (x - mean) / sqrt(var + eps) * gamma + beta = x*scale + shift
//
// Both the equivariant and the exported batch-norm evaluate through this
// function so that export is bit-for-bit preserving.
func BatchNormAffine(gamma, beta, mean, variance, eps float64) (scale, shift float32) {
	s := gamma / math.Sqrt(variance+eps)
	return float32(s), float32(beta - mean*s)
}

// ChannelAffine applies y = x*scale[c] + shift[c] over an [N, C, H, W] tensor
func ChannelAffine(x *Tensor, scale, shift []float32) (*Tensor, error) {
	n, c, h, w, err := x.Dims4()
	if err != nil {
		return nil, err
	}
	if len(scale) != c || len(shift) != c {
		return nil, fmt.Errorf("%w: affine has %d/%d channels, tensor has %d", ErrShape, len(scale), len(shift), c)
	}
	out := NewTensor(x.Shape...)
	plane := h * w
	for b := 0; b < n; b++ {
		for ch := 0; ch < c; ch++ {
			off := (b*c + ch) * plane
			s, t := scale[ch], shift[ch]
			for i := off; i < off+plane; i++ {
				out.Data[i] = x.Data[i]*s + t
			}
		}
	}
	return out, nil
}

// =============================================================================
// BatchNorm Layer (inference form)
// =============================================================================

// BatchNorm is a frozen batch normalization: a per-channel affine map
type BatchNorm struct {
	Scale []float32
	Shift []float32
}

// Forward applies the per-channel affine map
func (b *BatchNorm) Forward(x *Tensor) (*Tensor, error) {
	return ChannelAffine(x, b.Scale, b.Shift)
}

// OutputShape returns the input shape unchanged
func (b *BatchNorm) OutputShape(in []int) ([]int, error) {
	if len(in) != 4 || in[1] != len(b.Scale) {
		return nil, fmt.Errorf("%w: batchnorm expects [N, %d, H, W], got %v", ErrShape, len(b.Scale), in)
	}
	return append([]int(nil), in...), nil
}
