package nn

// Relu applies max(0, v) element-wise and returns a new tensor
func Relu(x *Tensor) *Tensor {
	out := NewTensor(x.Shape...)
	for i, v := range x.Data {
		if v > 0 {
			out.Data[i] = v
		}
	}
	return out
}

// ReLU is the plain rectifier layer
type ReLU struct{}

// Forward applies the rectifier
func (ReLU) Forward(x *Tensor) (*Tensor, error) {
	return Relu(x), nil
}

// OutputShape returns the input shape unchanged
func (ReLU) OutputShape(in []int) ([]int, error) {
	return append([]int(nil), in...), nil
}
