package e2

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfluke/e2fpn/nn"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "conv", KindConv.String())
	assert.Equal(t, "batchnorm", KindNormalize.String())
	assert.Equal(t, "relu", KindNonlinearity.String())
	assert.Equal(t, "upsample", KindUpsample.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}

func TestReLU(t *testing.T) {
	rng := rand.New(rand.NewSource(30))
	typ := mustType(NewFieldType(4, Regular, Trivial))
	relu := NewReLU(typ)
	x := randomGeometric(t, rng, typ, 1, 5, 5)

	y, err := relu.Forward(x)
	require.NoError(t, err)
	for i, v := range x.Tensor.Data {
		if v > 0 {
			assert.Equal(t, v, y.Tensor.Data[i])
		} else {
			assert.Zero(t, y.Tensor.Data[i])
		}
	}
	assertEquivariant(t, relu, x, 0)

	ex, err := relu.Export()
	require.NoError(t, err)
	got, err := ex.Forward(x.Tensor)
	require.NoError(t, err)
	assert.Equal(t, y.Tensor.Data, got.Data)
	assert.Empty(t, relu.Parameters())
}

func TestUpsampling(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	typ := mustType(RegularType(4, 2))
	up, err := NewUpsampling(typ, 2)
	require.NoError(t, err)

	x := randomGeometric(t, rng, typ, 1, 5, 5)
	y, err := up.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 8, 10, 10}, y.Tensor.Shape)
	assert.True(t, y.Type.Equal(typ))
	assertEquivariant(t, up, x, 1e-5)

	shape, err := up.OutputShape([]int{3, 8, 15, 20})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 8, 30, 40}, shape)
	assert.Equal(t, 2, up.Spec().Factor)

	ex, err := up.Export()
	require.NoError(t, err)
	got, err := ex.Forward(x.Tensor)
	require.NoError(t, err)
	assert.Equal(t, y.Tensor.Data, got.Data)

	_, err = NewUpsampling(typ, 0)
	assert.ErrorIs(t, err, ErrConfiguration)
}

// TestExportedIgnoresFieldTypes checks that an exported operator accepts any
// tensor with the right channel count.
func TestExportedIgnoresFieldTypes(t *testing.T) {
	typ := mustType(RegularType(4, 1))
	ex, err := NewReLU(typ).Export()
	require.NoError(t, err)

	_, err = ex.Forward(nn.NewTensor(1, 4, 2, 2))
	assert.NoError(t, err)
	_, err = ex.Forward(nn.NewTensor(1, 3, 2, 2))
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.IsType(t, nn.ReLU{}, ex.Layer())
}
