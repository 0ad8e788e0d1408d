package e2

import (
	"fmt"

	"github.com/openfluke/e2fpn/nn"
)

// GeometricTensor pairs a plain [N, C, H, W] tensor with the field type
// its channel dimension claims to satisfy.
type GeometricTensor struct {
	Tensor *nn.Tensor
	Type   FieldType
}

// NewGeometricTensor wraps t as a tensor of type typ. The channel count
// must equal typ.Size() and every dimension must be non-empty.
func NewGeometricTensor(t *nn.Tensor, typ FieldType) (*GeometricTensor, error) {
	if len(t.Shape) != 4 {
		return nil, fmt.Errorf("%w: expected [N, C, H, W], got shape %v", ErrTypeMismatch, t.Shape)
	}
	if t.Shape[1] != typ.Size() {
		return nil, fmt.Errorf("%w: tensor has %d channels, %s needs %d", ErrTypeMismatch, t.Shape[1], typ, typ.Size())
	}
	if err := nn.CheckImage(t); err != nil {
		return nil, err
	}
	return &GeometricTensor{Tensor: t, Type: typ}, nil
}

// Add sums two tensors of the same field type.
func (g *GeometricTensor) Add(o *GeometricTensor) (*GeometricTensor, error) {
	if !g.Type.Equal(o.Type) {
		return nil, fmt.Errorf("%w: cannot add %s and %s", ErrTypeMismatch, g.Type, o.Type)
	}
	sum, err := nn.Add(g.Tensor, o.Tensor)
	if err != nil {
		return nil, err
	}
	return &GeometricTensor{Tensor: sum, Type: g.Type}, nil
}

// Transform applies rotation element e of C_N: every spatial plane is
// rotated by 2πe/N and the channels of each regular field shift
// cyclically by e. Only quarter turns are representable on the pixel
// grid, so 4e must be a multiple of N, and the tensor must be square.
func (g *GeometricTensor) Transform(e int) (*GeometricTensor, error) {
	n := g.Type.GroupOrder()
	e = ((e % n) + n) % n
	if (4*e)%n != 0 {
		return nil, fmt.Errorf("%w: element %d of C%d is not a quarter turn", ErrConfiguration, e, n)
	}
	batch, c, h, w, err := g.Tensor.Dims4()
	if err != nil {
		return nil, err
	}
	if h != w {
		return nil, fmt.Errorf("%w: rotation needs a square tensor, got %dx%d", nn.ErrShape, h, w)
	}
	q := 4 * e / n
	plane := h * w
	out := nn.NewTensor(g.Tensor.Shape...)
	offs := g.Type.offsets()

	for b := 0; b < batch; b++ {
		for f := 0; f < g.Type.Len(); f++ {
			size := g.Type.Repr(f).Size(n)
			for s := 0; s < size; s++ {
				src := offs[f] + (s-e%size+size)%size
				dst := offs[f] + s
				from := g.Tensor.Data[(b*c+src)*plane : (b*c+src+1)*plane]
				copy(out.Data[(b*c+dst)*plane:(b*c+dst+1)*plane], rotateQuarter(from, h, q))
			}
		}
	}
	return &GeometricTensor{Tensor: out, Type: g.Type}, nil
}

func checkInput(op string, x *GeometricTensor, want FieldType) error {
	if x == nil || x.Tensor == nil {
		return fmt.Errorf("%w: %s received no tensor", ErrTypeMismatch, op)
	}
	if !x.Type.Equal(want) {
		return fmt.Errorf("%w: %s expects %s, got %s", ErrTypeMismatch, op, want, x.Type)
	}
	if x.Tensor.Channels() != want.Size() {
		return fmt.Errorf("%w: %s expects %d channels, tensor has %d", ErrTypeMismatch, op, want.Size(), x.Tensor.Channels())
	}
	return nil
}
