package e2

import (
	"math"

	"github.com/openfluke/e2fpn/nn"
)

// rotateQuarter rotates an n×n plane counter-clockwise by q quarter turns.
// Output (i, j) reads input (j, n-1-i) for one turn.
func rotateQuarter(src []float32, n, q int) []float32 {
	out := append([]float32(nil), src...)
	for ; q%4 != 0; q-- {
		next := make([]float32, len(out))
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				next[i*n+j] = out[j*n+(n-1-i)]
			}
		}
		out = next
	}
	return out
}

// snap removes the floating point noise of cos/sin at multiples of π/2 so
// quarter-turn rotations resolve to exact index permutations.
func snap(v float64) float64 {
	r := math.Round(v)
	if math.Abs(v-r) < 1e-9 {
		return r
	}
	return v
}

// rotateFilter rotates a k×k filter by theta about its centre, sampling
// bilinearly and treating everything outside the support as zero. At
// multiples of π/2 it agrees exactly with rotateQuarter.
func rotateFilter(src []float32, k int, theta float64) []float32 {
	cos, sin := snap(math.Cos(theta)), snap(math.Sin(theta))
	c := float64(k-1) / 2
	out := make([]float32, k*k)

	at := func(i, j int) float64 {
		if i < 0 || i >= k || j < 0 || j >= k {
			return 0
		}
		return float64(src[i*k+j])
	}

	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			x, y := float64(j)-c, float64(i)-c
			// Source position in (row, col) coordinates
			sr := x*sin + y*cos + c
			sc := x*cos - y*sin + c

			r0, c0 := math.Floor(sr), math.Floor(sc)
			fr, fc := sr-r0, sc-c0
			ri, ci := int(r0), int(c0)

			v := at(ri, ci)*(1-fr)*(1-fc) +
				at(ri, ci+1)*(1-fr)*fc +
				at(ri+1, ci)*fr*(1-fc) +
				at(ri+1, ci+1)*fr*fc
			out[i*k+j] = float32(v)
		}
	}
	return out
}

// convBlock locates the base filters that connect input field in to
// output field out inside the flat parameter vector.
type convBlock struct {
	out, in int
	offset  int
	filters int // N for a regular input field, otherwise 1
}

// layoutBlocks assigns every (out field, in field) pair its slice of the
// parameter vector, out-major.
func layoutBlocks(in, out FieldType, k int) ([]convBlock, int) {
	n := in.GroupOrder()
	blocks := make([]convBlock, 0, in.Len()*out.Len())
	offset := 0
	for o := 0; o < out.Len(); o++ {
		for i := 0; i < in.Len(); i++ {
			filters := 1
			if in.Repr(i) == Regular {
				filters = n
			}
			blocks = append(blocks, convBlock{out: o, in: i, offset: offset, filters: filters})
			offset += filters * k * k
		}
	}
	return blocks, offset
}

// expandFilter builds the dense [out.Size(), in.Size(), k, k] filter from
// base parameters. With R_r the rotation by 2πr/N and ψ the base filters
// of one block:
//
//	regular → regular  W[(o,r),(i,s)] = R_r ψ[(s−r) mod N]
//	trivial → regular  W[(o,r),i]     = R_r ψ[0]
//	regular → trivial  W[o,(i,s)]     = 1/N Σ_r R_r ψ[(s−r) mod N]
//	trivial → trivial  W[o,i]         = 1/N Σ_r R_r ψ[0]
func expandFilter(params []float32, blocks []convBlock, in, out FieldType, k int) *nn.Tensor {
	n := in.GroupOrder()
	kk := k * k
	inC, outC := in.Size(), out.Size()
	w := nn.NewTensor(outC, inC, k, k)
	inOff, outOff := in.offsets(), out.offsets()

	put := func(oc, ic int, filter []float32) {
		copy(w.Data[(oc*inC+ic)*kk:(oc*inC+ic+1)*kk], filter)
	}

	for _, b := range blocks {
		// rot[r][j] = R_r ψ[j]
		rot := make([][][]float32, n)
		for r := 0; r < n; r++ {
			rot[r] = make([][]float32, b.filters)
			theta := 2 * math.Pi * float64(r) / float64(n)
			for j := 0; j < b.filters; j++ {
				psi := params[b.offset+j*kk : b.offset+(j+1)*kk]
				rot[r][j] = rotateFilter(psi, k, theta)
			}
		}

		outRegular := out.Repr(b.out) == Regular
		inRegular := in.Repr(b.in) == Regular

		switch {
		case outRegular && inRegular:
			for r := 0; r < n; r++ {
				for s := 0; s < n; s++ {
					put(outOff[b.out]+r, inOff[b.in]+s, rot[r][((s-r)%n+n)%n])
				}
			}
		case outRegular:
			for r := 0; r < n; r++ {
				put(outOff[b.out]+r, inOff[b.in], rot[r][0])
			}
		case inRegular:
			for s := 0; s < n; s++ {
				avg := make([]float32, kk)
				for r := 0; r < n; r++ {
					accumulate(avg, rot[r][((s-r)%n+n)%n])
				}
				scale(avg, 1/float32(n))
				put(outOff[b.out], inOff[b.in]+s, avg)
			}
		default:
			avg := make([]float32, kk)
			for r := 0; r < n; r++ {
				accumulate(avg, rot[r][0])
			}
			scale(avg, 1/float32(n))
			put(outOff[b.out], inOff[b.in], avg)
		}
	}
	return w
}

func accumulate(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

func scale(dst []float32, f float32) {
	for i := range dst {
		dst[i] *= f
	}
}
