package e2

import "github.com/openfluke/e2fpn/nn"

// ReLU rectifies every channel. Pointwise maps commute with the channel
// permutations of regular fields, so this is equivariant for any type.
type ReLU struct {
	typ FieldType
}

// NewReLU creates a rectifier over typ
func NewReLU(typ FieldType) *ReLU { return &ReLU{typ: typ} }

func (r *ReLU) Kind() Kind               { return KindNonlinearity }
func (r *ReLU) InType() FieldType        { return r.typ }
func (r *ReLU) OutType() FieldType       { return r.typ }
func (r *ReLU) Spec() OpSpec             { return OpSpec{Kind: KindNonlinearity} }
func (r *ReLU) Parameters() []*nn.Tensor { return nil }

func (r *ReLU) Forward(x *GeometricTensor) (*GeometricTensor, error) {
	if err := checkInput("relu", x, r.typ); err != nil {
		return nil, err
	}
	return &GeometricTensor{Tensor: nn.Relu(x.Tensor), Type: r.typ}, nil
}

func (r *ReLU) OutputShape(in []int) ([]int, error) {
	if err := spatialShape("relu", in, r.typ); err != nil {
		return nil, err
	}
	return append([]int(nil), in...), nil
}

func (r *ReLU) Export() (*Exported, error) {
	return newExported(r, nn.ReLU{}), nil
}
