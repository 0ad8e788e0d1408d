package e2

import (
	"fmt"

	"github.com/openfluke/e2fpn/nn"
)

// Upsampling resizes every channel bilinearly with aligned corners. The
// sampling grid is symmetric under quarter turns, so it commutes with
// the group action.
type Upsampling struct {
	typ    FieldType
	factor int
}

// NewUpsampling creates an upsampler over typ
func NewUpsampling(typ FieldType, factor int) (*Upsampling, error) {
	if factor < 1 {
		return nil, fmt.Errorf("%w: upsampling factor must be >= 1, got %d", ErrConfiguration, factor)
	}
	return &Upsampling{typ: typ, factor: factor}, nil
}

func (u *Upsampling) Kind() Kind               { return KindUpsample }
func (u *Upsampling) InType() FieldType        { return u.typ }
func (u *Upsampling) OutType() FieldType       { return u.typ }
func (u *Upsampling) Spec() OpSpec             { return OpSpec{Kind: KindUpsample, Factor: u.factor} }
func (u *Upsampling) Parameters() []*nn.Tensor { return nil }

func (u *Upsampling) Forward(x *GeometricTensor) (*GeometricTensor, error) {
	if err := checkInput("upsample", x, u.typ); err != nil {
		return nil, err
	}
	y, err := nn.UpsampleBilinear(x.Tensor, u.factor)
	if err != nil {
		return nil, err
	}
	return &GeometricTensor{Tensor: y, Type: u.typ}, nil
}

func (u *Upsampling) OutputShape(in []int) ([]int, error) {
	if err := spatialShape("upsample", in, u.typ); err != nil {
		return nil, err
	}
	return []int{in[0], in[1], in[2] * u.factor, in[3] * u.factor}, nil
}

func (u *Upsampling) Export() (*Exported, error) {
	return newExported(u, &nn.Upsample{Factor: u.factor}), nil
}
