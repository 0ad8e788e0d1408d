package nn

// Layer is a plain, fixed-weight operator over image tensors.
type Layer interface {
	// Forward applies the layer.
	Forward(x *Tensor) (*Tensor, error)
	// OutputShape maps an input shape to the shape Forward would produce.
	OutputShape(in []int) ([]int, error)
}
