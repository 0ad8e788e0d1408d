package e2

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomPlane(rng *rand.Rand, n int) []float32 {
	p := make([]float32, n)
	for i := range p {
		p[i] = float32(rng.NormFloat64())
	}
	return p
}

func TestRotateQuarter(t *testing.T) {
	src := []float32{
		1, 2,
		3, 4,
	}
	// Counter-clockwise: the right column becomes the top row.
	assert.Equal(t, []float32{2, 4, 1, 3}, rotateQuarter(src, 2, 1))
	assert.Equal(t, []float32{4, 3, 2, 1}, rotateQuarter(src, 2, 2))
	assert.Equal(t, src, rotateQuarter(src, 2, 4))
	assert.Equal(t, []float32{1, 2, 3, 4}, src, "source is not modified")
}

// TestRotateFilterMatchesQuarterTurns checks that interpolated filter
// rotation reduces to an exact permutation at multiples of π/2.
func TestRotateFilterMatchesQuarterTurns(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, k := range []int{1, 3, 5, 7} {
		src := randomPlane(rng, k*k)
		for q := 0; q < 4; q++ {
			got := rotateFilter(src, k, float64(q)*math.Pi/2)
			assert.Equal(t, rotateQuarter(src, k, q), got, "k=%d q=%d", k, q)
		}
	}
}

func TestRotateFilterPreservesCentre(t *testing.T) {
	src := make([]float32, 9)
	src[4] = 1
	for _, theta := range []float64{math.Pi / 4, math.Pi / 3, 1.0} {
		out := rotateFilter(src, 3, theta)
		assert.InDelta(t, 1, out[4], 1e-6)
	}
}

func TestLayoutBlocks(t *testing.T) {
	in, _ := NewFieldType(4, Regular, Trivial)
	out, _ := RegularType(4, 2)
	blocks, total := layoutBlocks(in, out, 3)

	require.Len(t, blocks, 4)
	assert.Equal(t, convBlock{out: 0, in: 0, offset: 0, filters: 4}, blocks[0])
	assert.Equal(t, convBlock{out: 0, in: 1, offset: 36, filters: 1}, blocks[1])
	assert.Equal(t, convBlock{out: 1, in: 0, offset: 45, filters: 4}, blocks[2])
	assert.Equal(t, 2*(4+1)*9, total)
}

// TestExpandFilterRegular checks W[(o,r),(i,s)] = R_r ψ[(s-r) mod N].
func TestExpandFilterRegular(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	reg, _ := RegularType(4, 1)
	blocks, total := layoutBlocks(reg, reg, 3)
	params := randomPlane(rng, total)

	w := expandFilter(params, blocks, reg, reg, 3)
	require.Equal(t, []int{4, 4, 3, 3}, w.Shape)
	for r := 0; r < 4; r++ {
		for s := 0; s < 4; s++ {
			j := ((s-r)%4 + 4) % 4
			want := rotateQuarter(params[j*9:(j+1)*9], 3, r)
			got := w.Data[(r*4+s)*9 : (r*4+s+1)*9]
			assert.Equal(t, want, got, "r=%d s=%d", r, s)
		}
	}
}

// TestExpandFilterTrivialOutput checks that a trivial-to-trivial filter is
// symmetrized, i.e. unchanged by a quarter turn.
func TestExpandFilterTrivialOutput(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	triv, _ := TrivialType(4, 1)
	blocks, total := layoutBlocks(triv, triv, 5)
	params := randomPlane(rng, total)

	w := expandFilter(params, blocks, triv, triv, 5)
	turned := rotateQuarter(w.Data, 5, 1)
	for i := range turned {
		assert.InDelta(t, w.Data[i], turned[i], 1e-6)
	}
}
