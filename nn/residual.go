package nn

import "fmt"

// Add returns a + b element-wise. Unlike a pass-through residual, a size
// mismatch is an error: the operands of every fusion point must agree.
func Add(a, b *Tensor) (*Tensor, error) {
	if !SameShape(a.Shape, b.Shape) {
		return nil, fmt.Errorf("%w: cannot add %v and %v", ErrShape, a.Shape, b.Shape)
	}
	out := NewTensor(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] + b.Data[i]
	}
	return out, nil
}
