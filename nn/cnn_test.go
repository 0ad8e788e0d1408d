package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// naiveConv2D is the textbook loop used as a reference for the backends.
func naiveConv2D(x, w *Tensor, stride, padding int) *Tensor {
	n, c, h, wd := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	f, k := w.Shape[0], w.Shape[2]
	oh := ConvOutputSize(h, k, stride, padding)
	ow := ConvOutputSize(wd, k, stride, padding)
	out := NewTensor(n, f, oh, ow)
	for b := 0; b < n; b++ {
		for o := 0; o < f; o++ {
			for i := 0; i < oh; i++ {
				for j := 0; j < ow; j++ {
					var sum float32
					for ic := 0; ic < c; ic++ {
						for ki := 0; ki < k; ki++ {
							for kj := 0; kj < k; kj++ {
								y, xx := i*stride+ki-padding, j*stride+kj-padding
								if y < 0 || y >= h || xx < 0 || xx >= wd {
									continue
								}
								sum += w.At4(o, ic, ki, kj) * x.At4(b, ic, y, xx)
							}
						}
					}
					out.Set4(sum, b, o, i, j)
				}
			}
		}
	}
	return out
}

func randomTensor(rng *rand.Rand, shape ...int) *Tensor {
	t := NewTensor(shape...)
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64())
	}
	return t
}

// TestConv2DHandComputed checks a 3x3 input against values worked out by hand
func TestConv2DHandComputed(t *testing.T) {
	x := NewTensorFromSlice([]float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}, 1, 1, 3, 3)
	w := NewTensorFromSlice([]float32{
		0, 1, 0,
		1, -4, 1,
		0, 1, 0,
	}, 1, 1, 3, 3)

	y, err := NewCPUBackend().Conv2D(x, w, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 3, 3}, y.Shape)
	assert.Equal(t, []float32{
		2, 1, -4,
		-3, 0, -7,
		-16, -11, -22,
	}, y.Data)

	y, err = NewCPUBackend().Conv2D(x, w, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2, 2}, y.Shape)
	assert.Equal(t, []float32{2, -4, -16, -22}, y.Data)
}

// TestConv2DMatchesReference compares the parallel kernel with the naive loop
func TestConv2DMatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	cases := []struct {
		name           string
		k, stride, pad int
		batch, in, out int
		height, width  int
	}{
		{"pointwise", 1, 1, 0, 2, 3, 4, 5, 5},
		{"3x3", 3, 1, 1, 1, 4, 2, 6, 7},
		{"3x3 strided", 3, 2, 1, 2, 2, 3, 8, 8},
		{"7x7 stem", 7, 2, 3, 1, 1, 3, 9, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			x := randomTensor(rng, tc.batch, tc.in, tc.height, tc.width)
			w := randomTensor(rng, tc.out, tc.in, tc.k, tc.k)

			got, err := NewCPUBackend().Conv2D(x, w, tc.stride, tc.pad)
			require.NoError(t, err)
			want := naiveConv2D(x, w, tc.stride, tc.pad)
			require.Equal(t, want.Shape, got.Shape)
			for i := range want.Data {
				assert.InDelta(t, want.Data[i], got.Data[i], 1e-4)
			}
		})
	}
}

func TestConv2DErrors(t *testing.T) {
	b := NewCPUBackend()
	_, err := b.Conv2D(NewTensor(1, 2, 4, 4), NewTensor(1, 3, 3, 3), 1, 1)
	assert.ErrorIs(t, err, ErrShape)

	_, err = b.Conv2D(NewTensor(1, 1, 2, 2), NewTensor(1, 1, 5, 5), 1, 0)
	assert.ErrorIs(t, err, ErrShape)

	_, err = b.Conv2D(NewTensor(1, 1, 4, 4), NewTensor(1, 1, 3, 3), 0, 1)
	assert.ErrorIs(t, err, ErrShape)
}

func TestConv2DLayer(t *testing.T) {
	layer := NewConv2D(NewTensor(8, 3, 3, 3), 2, 1, nil)
	shape, err := layer.OutputShape([]int{2, 3, 16, 12})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 8, 8, 6}, shape)

	_, err = layer.OutputShape([]int{2, 4, 16, 12})
	assert.ErrorIs(t, err, ErrShape)
}

func TestHeNormal(t *testing.T) {
	data := make([]float32, 20000)
	HeNormal(rand.New(rand.NewSource(1)), data, 50)

	var sum, sq float64
	for _, v := range data {
		sum += float64(v)
		sq += float64(v) * float64(v)
	}
	mean := sum / float64(len(data))
	std := math.Sqrt(sq/float64(len(data)) - mean*mean)
	assert.InDelta(t, 0, mean, 0.01)
	assert.InDelta(t, math.Sqrt(2.0/50), std, 0.01)

	again := make([]float32, len(data))
	HeNormal(rand.New(rand.NewSource(1)), again, 50)
	assert.Equal(t, data, again, "same seed gives same weights")
}

func TestCPUBackendWorkers(t *testing.T) {
	b := NewCPUBackend()
	assert.Equal(t, "cpu", b.Name())
	assert.GreaterOrEqual(t, b.Workers(), 1)
	assert.NotEmpty(t, b.Describe())
}
