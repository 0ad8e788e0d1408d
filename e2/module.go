package e2

import (
	"fmt"

	"github.com/openfluke/e2fpn/nn"
)

// Kind enumerates the closed set of operator kinds.
type Kind uint8

const (
	KindConv Kind = iota
	KindNormalize
	KindNonlinearity
	KindUpsample
)

func (k Kind) String() string {
	switch k {
	case KindConv:
		return "conv"
	case KindNormalize:
		return "batchnorm"
	case KindNonlinearity:
		return "relu"
	case KindUpsample:
		return "upsample"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// OpSpec is the static description of an operator, used for inspection.
type OpSpec struct {
	Kind    Kind
	Kernel  int // conv only
	Stride  int // conv only
	Padding int // conv only
	Factor  int // upsample only
	Params  int // learnable scalars
}

// Module is an equivariant operator with declared boundary types.
type Module interface {
	Kind() Kind
	InType() FieldType
	OutType() FieldType
	Spec() OpSpec

	// Forward rejects inputs whose type differs from InType.
	Forward(x *GeometricTensor) (*GeometricTensor, error)
	// OutputShape maps an [N, C, H, W] input shape to the output shape.
	OutputShape(in []int) ([]int, error)
	// Parameters returns the learnable tensors, possibly empty.
	Parameters() []*nn.Tensor
	// Export bakes the representation structure into a plain layer.
	Export() (*Exported, error)
}

// Trainable is implemented by modules whose behavior differs between
// training and inference.
type Trainable interface {
	SetTraining(training bool)
}

// Exported is the plain counterpart of a Module. Its field types are
// informational only; it consumes and produces plain tensors.
type Exported struct {
	kind    Kind
	in, out FieldType
	spec    OpSpec
	layer   nn.Layer
}

func newExported(m Module, layer nn.Layer) *Exported {
	return &Exported{kind: m.Kind(), in: m.InType(), out: m.OutType(), spec: m.Spec(), layer: layer}
}

func (e *Exported) Kind() Kind         { return e.kind }
func (e *Exported) InType() FieldType  { return e.in }
func (e *Exported) OutType() FieldType { return e.out }
func (e *Exported) Layer() nn.Layer    { return e.layer }

// Spec reports the description of the module it was exported from.
// Baked weights are not learnable, so Params is zero.
func (e *Exported) Spec() OpSpec {
	s := e.spec
	s.Params = 0
	return s
}

// Forward checks the channel count against the declared input type and
// runs the plain layer.
func (e *Exported) Forward(x *nn.Tensor) (*nn.Tensor, error) {
	if x.Channels() != e.in.Size() {
		return nil, fmt.Errorf("%w: exported %s expects %d channels, got %d", ErrTypeMismatch, e.kind, e.in.Size(), x.Channels())
	}
	return e.layer.Forward(x)
}

func (e *Exported) OutputShape(in []int) ([]int, error) {
	return e.layer.OutputShape(in)
}

func spatialShape(op string, in []int, typ FieldType) error {
	if len(in) != 4 {
		return fmt.Errorf("%w: %s expects [N, C, H, W], got %v", nn.ErrShape, op, in)
	}
	if in[1] != typ.Size() {
		return fmt.Errorf("%w: %s expects %d channels, got %d", ErrTypeMismatch, op, typ.Size(), in[1])
	}
	return nil
}
