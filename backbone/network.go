package backbone

import (
	"fmt"

	"github.com/openfluke/e2fpn/e2"
	"github.com/openfluke/e2fpn/nn"
)

var stageNames = [3]string{"layer1", "layer2", "layer3"}

// network is the full topology over one tensor kind: stem, three stages,
// the pyramid head and the invariant projector on the coarse branch.
type network[T any] struct {
	fam       family[T]
	input     e2.FieldType
	stem      sequence[T]
	stages    [3]*stage[T]
	head      *pyramidHead[T]
	projector op[T] // layer3triv, 3x3 regular -> trivial
}

func buildNetwork(b *builder, t Types) (*network[geometric], error) {
	n := &network[geometric]{fam: equivariant{}, input: t.Input}

	var err error
	if n.stem, err = b.convNormReLU(t.Input, t.Stem, e2.ConvSpec{Kernel: 7, Stride: 2, Padding: 3}); err != nil {
		return nil, fmt.Errorf("stem: %w", err)
	}
	cur := t.Stem
	for i, stride := range [3]int{1, 2, 2} {
		if n.stages[i], cur, err = buildStage(b, cur, t.Stages[i], stride); err != nil {
			return nil, fmt.Errorf("%s: %w", stageNames[i], err)
		}
	}
	if n.head, err = newPyramidHead(b, t.Stages, t.Fine); err != nil {
		return nil, fmt.Errorf("fpn: %w", err)
	}
	if n.projector, err = b.conv(t.Stages[2], t.Coarse, e2.Conv3x3(1)); err != nil {
		return nil, fmt.Errorf("projector: %w", err)
	}
	return n, nil
}

func (n *network[T]) forward(x *nn.Tensor) (coarse, fine *nn.Tensor, err error) {
	in, err := n.fam.wrap(x, n.input)
	if err != nil {
		return nil, nil, fmt.Errorf("input: %w", err)
	}
	if in, err = n.stem.forward(in); err != nil {
		return nil, nil, fmt.Errorf("stem: %w", err)
	}
	var feats [3]T
	for i, s := range n.stages {
		if in, err = s.forward(n.fam, in); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", stageNames[i], err)
		}
		feats[i] = in
	}
	c, f, err := n.head.forward(n.fam, feats[0], feats[1], feats[2])
	if err != nil {
		return nil, nil, fmt.Errorf("fpn: %w", err)
	}
	if c, err = n.projector.Forward(c); err != nil {
		return nil, nil, fmt.Errorf("projector: %w", err)
	}
	return n.fam.unwrap(c), n.fam.unwrap(f), nil
}

func (n *network[T]) outputShape(in []int) (coarse, fine []int, err error) {
	if len(in) != 4 || in[1] != n.input.Size() {
		return nil, nil, fmt.Errorf("%w: input must be [N, %d, H, W], got %v", ErrTypeMismatch, n.input.Size(), in)
	}
	if in[0] < 1 || in[2] < 1 || in[3] < 1 {
		return nil, nil, fmt.Errorf("input: %w: empty image shape %v", nn.ErrShape, in)
	}
	if in, err = n.stem.outputShape(in); err != nil {
		return nil, nil, fmt.Errorf("stem: %w", err)
	}
	var feats [3][]int
	for i, s := range n.stages {
		if in, err = s.outputShape(in); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", stageNames[i], err)
		}
		feats[i] = in
	}
	if coarse, fine, err = n.head.outputShape(feats[0], feats[1], feats[2]); err != nil {
		return nil, nil, fmt.Errorf("fpn: %w", err)
	}
	if coarse, err = n.projector.OutputShape(coarse); err != nil {
		return nil, nil, fmt.Errorf("projector: %w", err)
	}
	return coarse, fine, nil
}

// links walks every producer/consumer edge from the input to both outputs.
func (n *network[T]) links() error {
	if err := link("stem", n.input, n.stem.inType()); err != nil {
		return err
	}
	if err := n.stem.links("stem"); err != nil {
		return err
	}
	cur := n.stem.outType()
	for i, s := range n.stages {
		if err := link(stageNames[i], cur, s.inType()); err != nil {
			return err
		}
		if err := s.links(stageNames[i]); err != nil {
			return err
		}
		cur = s.outType()
	}
	x1, x2, x3 := n.stages[0].outType(), n.stages[1].outType(), n.stages[2].outType()
	if err := n.head.links(x1, x2, x3); err != nil {
		return err
	}
	return link("projector", n.head.coarseOut.OutType(), n.projector.InType())
}

func (n *network[T]) walk(fn visitor[T]) {
	n.stem.walk("stem", stemNames, fn)
	for i, s := range n.stages {
		s.walk(stageNames[i], fn)
	}
	n.head.walk(fn)
	fn("projector", n.projector)
}

func mapNetwork[A, B any](n *network[A], fam family[B], f mapper[A, B]) (*network[B], error) {
	out := &network[B]{fam: fam, input: n.input}

	var err error
	if out.stem, err = mapSequence(n.stem, f); err != nil {
		return nil, fmt.Errorf("stem: %w", err)
	}
	for i, s := range n.stages {
		if out.stages[i], err = mapStage(s, f); err != nil {
			return nil, fmt.Errorf("%s: %w", stageNames[i], err)
		}
	}
	if out.head, err = mapHead(n.head, f); err != nil {
		return nil, fmt.Errorf("fpn: %w", err)
	}
	if out.projector, err = f(n.projector); err != nil {
		return nil, fmt.Errorf("projector: %w", err)
	}
	return out, nil
}
