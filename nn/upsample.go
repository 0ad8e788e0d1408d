package nn

import (
	"fmt"
)

// UpsampleBilinear resizes the spatial dimensions of an [N, C, H, W] tensor
// by an integer factor using bilinear interpolation with aligned corners:
// output pixel o samples input coordinate o*(in-1)/(out-1).
func UpsampleBilinear(x *Tensor, factor int) (*Tensor, error) {
	n, c, h, w, err := x.Dims4()
	if err != nil {
		return nil, err
	}
	if factor < 1 {
		return nil, fmt.Errorf("%w: upsample factor %d", ErrShape, factor)
	}
	oh, ow := h*factor, w*factor
	out := NewTensor(n, c, oh, ow)

	ys := alignedCoords(h, oh)
	xs := alignedCoords(w, ow)

	for p := 0; p < n*c; p++ {
		src := x.Data[p*h*w : (p+1)*h*w]
		dst := out.Data[p*oh*ow : (p+1)*oh*ow]
		for i, yc := range ys {
			for j, xc := range xs {
				top := src[yc.lo*w+xc.lo]*(1-xc.frac) + src[yc.lo*w+xc.hi]*xc.frac
				bottom := src[yc.hi*w+xc.lo]*(1-xc.frac) + src[yc.hi*w+xc.hi]*xc.frac
				dst[i*ow+j] = top*(1-yc.frac) + bottom*yc.frac
			}
		}
	}
	return out, nil
}

type sampleCoord struct {
	lo, hi int
	frac   float32
}

func alignedCoords(in, out int) []sampleCoord {
	coords := make([]sampleCoord, out)
	if in == 1 || out == 1 {
		return coords
	}
	scale := float64(in-1) / float64(out-1)
	for o := range coords {
		pos := float64(o) * scale
		lo := int(pos)
		if lo > in-1 {
			lo = in - 1
		}
		hi := lo + 1
		if hi > in-1 {
			hi = in - 1
		}
		coords[o] = sampleCoord{lo: lo, hi: hi, frac: float32(pos - float64(lo))}
	}
	return coords
}

// Upsample is the plain bilinear upsampling layer
type Upsample struct {
	Factor int
}

// Forward resizes x by the layer's factor
func (u *Upsample) Forward(x *Tensor) (*Tensor, error) {
	return UpsampleBilinear(x, u.Factor)
}

// OutputShape scales the two spatial dimensions
func (u *Upsample) OutputShape(in []int) ([]int, error) {
	if len(in) != 4 {
		return nil, fmt.Errorf("%w: upsample expects 4-D shape, got %v", ErrShape, in)
	}
	return []int{in[0], in[1], in[2] * u.Factor, in[3] * u.Factor}, nil
}
