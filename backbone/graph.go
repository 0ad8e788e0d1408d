package backbone

import (
	"fmt"

	"github.com/openfluke/e2fpn/e2"
	"github.com/openfluke/e2fpn/nn"
)

// op is what the graph needs from an operator, whichever tensor kind T it
// works on. e2.Module satisfies op[*e2.GeometricTensor] and *e2.Exported
// satisfies op[*nn.Tensor], so one graph definition serves both states.
type op[T any] interface {
	Kind() e2.Kind
	InType() e2.FieldType
	OutType() e2.FieldType
	Spec() e2.OpSpec
	Forward(x T) (T, error)
	OutputShape(in []int) ([]int, error)
}

// family supplies the few tensor operations the graph performs itself.
type family[T any] interface {
	wrap(x *nn.Tensor, typ e2.FieldType) (T, error)
	unwrap(y T) *nn.Tensor
	add(a, b T) (T, error)
}

type (
	geometric = *e2.GeometricTensor
	plain     = *nn.Tensor
)

type equivariant struct{}

func (equivariant) wrap(x *nn.Tensor, typ e2.FieldType) (geometric, error) {
	return e2.NewGeometricTensor(x, typ)
}
func (equivariant) unwrap(y geometric) *nn.Tensor         { return y.Tensor }
func (equivariant) add(a, b geometric) (geometric, error) { return a.Add(b) }

type baked struct{}

func (baked) wrap(x *nn.Tensor, typ e2.FieldType) (plain, error) {
	if len(x.Shape) != 4 || x.Shape[1] != typ.Size() {
		return nil, fmt.Errorf("%w: expected [N, %d, H, W], got shape %v", ErrTypeMismatch, typ.Size(), x.Shape)
	}
	if err := nn.CheckImage(x); err != nil {
		return nil, err
	}
	return x, nil
}
func (baked) unwrap(y plain) *nn.Tensor     { return y }
func (baked) add(a, b plain) (plain, error) { return nn.Add(a, b) }

// mapper converts one operator between tensor kinds.
type mapper[A, B any] func(op[A]) (op[B], error)

// exportOp bakes an equivariant module into its plain counterpart.
func exportOp(o op[geometric]) (op[plain], error) {
	m, ok := o.(e2.Module)
	if !ok {
		return nil, fmt.Errorf("%w: %s operator cannot be exported", ErrStateViolation, o.Kind())
	}
	ex, err := m.Export()
	if err != nil {
		return nil, err
	}
	return ex, nil
}

// sequence is a chain of operators applied in order.
type sequence[T any] []op[T]

func (s sequence[T]) forward(x T) (T, error) {
	var err error
	for _, o := range s {
		if x, err = o.Forward(x); err != nil {
			return x, err
		}
	}
	return x, nil
}

func (s sequence[T]) outputShape(in []int) ([]int, error) {
	var err error
	for _, o := range s {
		if in, err = o.OutputShape(in); err != nil {
			return nil, err
		}
	}
	return in, nil
}

func (s sequence[T]) inType() e2.FieldType  { return s[0].InType() }
func (s sequence[T]) outType() e2.FieldType { return s[len(s)-1].OutType() }

// links checks that consecutive operators agree on their shared type.
func (s sequence[T]) links(where string) error {
	for i := 1; i < len(s); i++ {
		if err := link(fmt.Sprintf("%s[%d]", where, i), s[i-1].OutType(), s[i].InType()); err != nil {
			return err
		}
	}
	return nil
}

func mapSequence[A, B any](s sequence[A], f mapper[A, B]) (sequence[B], error) {
	if s == nil {
		return nil, nil
	}
	out := make(sequence[B], len(s))
	for i, o := range s {
		m, err := f(o)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

// link fails when the producer's output type is not the consumer's input.
func link(where string, produced, consumed e2.FieldType) error {
	if !produced.Equal(consumed) {
		return fmt.Errorf("%w: %s: %s feeds an operator expecting %s", ErrTypeMismatch, where, produced, consumed)
	}
	return nil
}

// sameShape is the symbolic counterpart of a residual or lateral add.
func sameShape(where string, a, b []int) error {
	if !nn.SameShape(a, b) {
		return fmt.Errorf("%w: %s: cannot add %v and %v", nn.ErrShape, where, a, b)
	}
	return nil
}

// visitor receives every operator with its path in the graph.
type visitor[T any] func(path string, o op[T])

func (s sequence[T]) walk(prefix string, names []string, fn visitor[T]) {
	for i, o := range s {
		fn(prefix+"."+names[i], o)
	}
}
