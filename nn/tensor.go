package nn

import (
	"fmt"
)

// Tensor is a dense row-major float32 array. Image tensors use the
// [batch][channels][height][width] layout throughout the module.
type Tensor struct {
	Data  []float32
	Shape []int
}

// NewTensor creates a zero-filled tensor with the given shape
func NewTensor(shape ...int) *Tensor {
	return &Tensor{
		Data:  make([]float32, numel(shape)),
		Shape: append([]int(nil), shape...),
	}
}

// NewTensorFromSlice copies data into a new tensor of the given shape.
// It panics when len(data) does not match the shape.
func NewTensorFromSlice(data []float32, shape ...int) *Tensor {
	if len(data) != numel(shape) {
		panic(fmt.Sprintf("nn: data length %d != numel %d of shape %v", len(data), numel(shape), shape))
	}
	t := NewTensor(shape...)
	copy(t.Data, data)
	return t
}

func numel(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Size returns the number of elements
func (t *Tensor) Size() int {
	return len(t.Data)
}

// CheckImage verifies that t is a non-empty [N, C, H, W] tensor whose
// data covers its shape exactly.
func CheckImage(t *Tensor) error {
	if t == nil {
		return fmt.Errorf("%w: nil tensor", ErrShape)
	}
	if len(t.Shape) != 4 {
		return fmt.Errorf("%w: expected 4-D tensor, got shape %v", ErrShape, t.Shape)
	}
	for _, d := range t.Shape {
		if d < 1 {
			return fmt.Errorf("%w: empty image tensor %v", ErrShape, t.Shape)
		}
	}
	if len(t.Data) != numel(t.Shape) {
		return fmt.Errorf("%w: %d elements for shape %v", ErrShape, len(t.Data), t.Shape)
	}
	return nil
}

// Dims4 unpacks a 4-D image tensor shape.
func (t *Tensor) Dims4() (n, c, h, w int, err error) {
	if len(t.Shape) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("%w: expected 4-D tensor, got shape %v", ErrShape, t.Shape)
	}
	return t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3], nil
}

// Channels returns the size of dimension 1, or 0 for tensors of lower rank.
func (t *Tensor) Channels() int {
	if len(t.Shape) < 2 {
		return 0
	}
	return t.Shape[1]
}

// At4 returns the element at (n, c, h, w)
func (t *Tensor) At4(n, c, h, w int) float32 {
	return t.Data[((n*t.Shape[1]+c)*t.Shape[2]+h)*t.Shape[3]+w]
}

// Set4 stores v at (n, c, h, w)
func (t *Tensor) Set4(v float32, n, c, h, w int) {
	t.Data[((n*t.Shape[1]+c)*t.Shape[2]+h)*t.Shape[3]+w] = v
}

// SameShape reports whether a and b have identical shapes.
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
