package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUpsampleBilinearAlignedCorners checks corner preservation and the
// interpolated interior of a 2x2 -> 4x4 resize.
func TestUpsampleBilinearAlignedCorners(t *testing.T) {
	x := NewTensorFromSlice([]float32{
		0, 3,
		6, 9,
	}, 1, 1, 2, 2)
	y, err := UpsampleBilinear(x, 2)
	require.NoError(t, err)
	require.Equal(t, []int{1, 1, 4, 4}, y.Shape)

	want := []float32{
		0, 1, 2, 3,
		2, 3, 4, 5,
		4, 5, 6, 7,
		6, 7, 8, 9,
	}
	for i := range want {
		assert.InDelta(t, want[i], y.Data[i], 1e-5, "index %d", i)
	}
}

func TestUpsampleSinglePixel(t *testing.T) {
	x := NewTensorFromSlice([]float32{4}, 1, 1, 1, 1)
	y, err := UpsampleBilinear(x, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 4, 4, 4}, y.Data)
}

func TestUpsampleLayer(t *testing.T) {
	u := &Upsample{Factor: 2}
	shape, err := u.OutputShape([]int{1, 8, 5, 7})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 8, 10, 14}, shape)

	_, err = u.OutputShape([]int{8, 5, 7})
	assert.ErrorIs(t, err, ErrShape)

	_, err = UpsampleBilinear(NewTensor(1, 1, 2, 2), 0)
	assert.ErrorIs(t, err, ErrShape)
}
