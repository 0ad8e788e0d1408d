package e2

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfluke/e2fpn/nn"
)

// assertEquivariant checks m(g·x) == g·m(x) for every quarter turn.
func assertEquivariant(t *testing.T, m Module, x *GeometricTensor, tol float64) {
	t.Helper()
	n := x.Type.GroupOrder()
	y, err := m.Forward(x)
	require.NoError(t, err)
	for e := n / 4; e < n; e += n / 4 {
		gx, err := x.Transform(e)
		require.NoError(t, err)
		left, err := m.Forward(gx)
		require.NoError(t, err)
		right, err := y.Transform(e)
		require.NoError(t, err)
		assertClose(t, right.Tensor, left.Tensor, tol)
	}
}

func TestR2ConvEquivariance(t *testing.T) {
	c4 := func(reprs ...Repr) FieldType { return mustType(NewFieldType(4, reprs...)) }
	cases := []struct {
		name    string
		in, out FieldType
		spec    ConvSpec
		size    int
	}{
		{"trivial to regular 3x3", c4(Trivial), c4(Regular, Regular), Conv3x3(1), 7},
		{"regular to regular 3x3", c4(Regular, Regular), c4(Regular, Regular, Regular), Conv3x3(1), 7},
		{"regular to regular 1x1", c4(Regular, Regular), c4(Regular), Conv1x1(1), 6},
		{"mixed to regular", c4(Regular, Trivial), c4(Regular, Regular), Conv3x3(1), 5},
		{"regular to trivial", c4(Regular, Regular), c4(Trivial, Trivial, Trivial), Conv3x3(1), 7},
		{"stem 7x7 stride 2", c4(Trivial), c4(Regular), ConvSpec{Kernel: 7, Stride: 2, Padding: 3}, 9},
		{"3x3 stride 2 on odd size", c4(Regular), c4(Regular, Regular), Conv3x3(2), 9},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(int64(i) + 100))
			conv, err := NewR2Conv(tc.in, tc.out, tc.spec, rng, nil)
			require.NoError(t, err)
			x := randomGeometric(t, rng, tc.in, 2, tc.size, tc.size)
			assertEquivariant(t, conv, x, 1e-4)
		})
	}
}

// TestR2ConvInvariantOutput checks that a regular-to-trivial conv produces
// outputs that only rotate spatially when the input rotates.
func TestR2ConvInvariantOutput(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	in := mustType(RegularType(4, 2))
	out := mustType(TrivialType(4, 3))
	conv, err := NewR2Conv(in, out, Conv3x3(1), rng, nil)
	require.NoError(t, err)

	x := randomGeometric(t, rng, in, 1, 5, 5)
	y, err := conv.Forward(x)
	require.NoError(t, err)
	gx, _ := x.Transform(1)
	gy, err := conv.Forward(gx)
	require.NoError(t, err)

	for c := 0; c < 3; c++ {
		plane := y.Tensor.Data[c*25 : (c+1)*25]
		want := rotateQuarter(plane, 5, 1)
		got := gy.Tensor.Data[c*25 : (c+1)*25]
		for i := range want {
			assert.InDelta(t, want[i], got[i], 1e-4)
		}
	}
}

func TestR2ConvRejectsWrongType(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	reg := mustType(RegularType(4, 1))
	triv := mustType(TrivialType(4, 4))
	conv, err := NewR2Conv(reg, reg, Conv3x3(1), rng, nil)
	require.NoError(t, err)

	x := randomGeometric(t, rng, triv, 1, 3, 3)
	_, err = conv.Forward(x)
	assert.ErrorIs(t, err, ErrTypeMismatch, "same channel count, wrong representation")

	_, err = conv.Forward(nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = conv.OutputShape([]int{1, 5, 3, 3})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestNewR2ConvErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	reg4 := mustType(RegularType(4, 1))
	reg8 := mustType(RegularType(8, 1))

	_, err := NewR2Conv(FieldType{}, reg4, Conv3x3(1), rng, nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewR2Conv(reg4, reg8, Conv3x3(1), rng, nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = NewR2Conv(reg4, reg4, ConvSpec{Kernel: 3, Stride: 0}, rng, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestR2ConvParameters(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	in := mustType(RegularType(4, 2))
	out := mustType(RegularType(4, 3))
	conv, err := NewR2Conv(in, out, Conv3x3(1), rng, nil)
	require.NoError(t, err)

	spec := conv.Spec()
	assert.Equal(t, KindConv, spec.Kind)
	assert.Equal(t, 3*2*4*9, spec.Params)
	require.Len(t, conv.Parameters(), 1)

	stem, err := NewR2Conv(mustType(TrivialType(4, 1)), in, ConvSpec{Kernel: 7, Stride: 2, Padding: 3}, rng, nil)
	require.NoError(t, err)
	assert.Equal(t, 2*49, stem.Spec().Params)

	// Parameters are live: zeroing them zeroes the expanded filter.
	for _, p := range conv.Parameters() {
		for i := range p.Data {
			p.Data[i] = 0
		}
	}
	for _, v := range conv.Filter().Data {
		require.Zero(t, v)
	}
}

func TestR2ConvDeterministicInit(t *testing.T) {
	in := mustType(RegularType(4, 2))
	a, _ := NewR2Conv(in, in, Conv3x3(1), rand.New(rand.NewSource(42)), nil)
	b, _ := NewR2Conv(in, in, Conv3x3(1), rand.New(rand.NewSource(42)), nil)
	assert.Equal(t, a.Parameters()[0].Data, b.Parameters()[0].Data)
}

func TestR2ConvOutputShape(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	in := mustType(TrivialType(8, 1))
	out := mustType(RegularType(8, 16))
	conv, err := NewR2Conv(in, out, ConvSpec{Kernel: 7, Stride: 2, Padding: 3}, rng, nil)
	require.NoError(t, err)

	shape, err := conv.OutputShape([]int{1, 1, 480, 640})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 128, 240, 320}, shape)
}

// TestR2ConvExportParity checks that the baked conv computes the same
// values as the equivariant one.
func TestR2ConvExportParity(t *testing.T) {
	rng := rand.New(rand.NewSource(14))
	in := mustType(NewFieldType(4, Regular, Trivial))
	out := mustType(RegularType(4, 2))
	conv, err := NewR2Conv(in, out, Conv3x3(2), rng, nil)
	require.NoError(t, err)

	x := randomGeometric(t, rng, in, 2, 8, 8)
	want, err := conv.Forward(x)
	require.NoError(t, err)

	ex, err := conv.Export()
	require.NoError(t, err)
	assert.Equal(t, KindConv, ex.Kind())
	assert.True(t, ex.InType().Equal(in))
	assert.True(t, ex.OutType().Equal(out))
	assert.Zero(t, ex.Spec().Params)
	assert.Equal(t, 3, ex.Spec().Kernel)

	got, err := ex.Forward(x.Tensor)
	require.NoError(t, err)
	assert.Equal(t, want.Tensor.Shape, got.Shape)
	assert.Equal(t, want.Tensor.Data, got.Data)

	shape, err := ex.OutputShape(x.Tensor.Shape)
	require.NoError(t, err)
	assert.Equal(t, got.Shape, shape)

	_, err = ex.Forward(nn.NewTensor(2, 4, 8, 8))
	assert.ErrorIs(t, err, ErrTypeMismatch)
}
