package backbone

import (
	"fmt"

	"github.com/openfluke/e2fpn/e2"
)

var (
	blockNames    = []string{"conv1", "bn1", "relu1", "conv2", "bn2"}
	shortcutNames = []string{"conv", "bn"}
)

// residualBlock is a basic two-conv residual unit. The shortcut
// projection exists only when the stride or the field type changes.
type residualBlock[T any] struct {
	in, out  e2.FieldType
	stride   int
	body     sequence[T] // conv1 bn1 relu1 conv2 bn2
	shortcut sequence[T] // conv bn, or nil for identity
	relu     op[T]
}

func newResidualBlock(b *builder, in, out e2.FieldType, stride int) (*residualBlock[geometric], error) {
	first, err := b.convNormReLU(in, out, e2.Conv3x3(stride))
	if err != nil {
		return nil, err
	}
	second, err := b.conv(out, out, e2.Conv3x3(1))
	if err != nil {
		return nil, err
	}
	blk := &residualBlock[geometric]{
		in:     in,
		out:    out,
		stride: stride,
		body:   append(first, second, b.norm(out)),
		relu:   b.relu(out),
	}
	if stride != 1 || !in.Equal(out) {
		proj, err := b.conv(in, out, e2.Conv1x1(stride))
		if err != nil {
			return nil, err
		}
		blk.shortcut = sequence[geometric]{proj, b.norm(out)}
	}
	return blk, nil
}

func (r *residualBlock[T]) forward(fam family[T], x T) (T, error) {
	y, err := r.body.forward(x)
	if err != nil {
		return y, err
	}
	if r.shortcut != nil {
		if x, err = r.shortcut.forward(x); err != nil {
			return x, err
		}
	}
	sum, err := fam.add(x, y)
	if err != nil {
		return sum, fmt.Errorf("residual add: %w", err)
	}
	return r.relu.Forward(sum)
}

func (r *residualBlock[T]) outputShape(in []int) ([]int, error) {
	y, err := r.body.outputShape(in)
	if err != nil {
		return nil, err
	}
	if r.shortcut != nil {
		if in, err = r.shortcut.outputShape(in); err != nil {
			return nil, err
		}
	}
	if err := sameShape("residual add", in, y); err != nil {
		return nil, err
	}
	return r.relu.OutputShape(y)
}

func (r *residualBlock[T]) links(where string) error {
	if err := link(where+".conv1", r.in, r.body.inType()); err != nil {
		return err
	}
	if err := r.body.links(where); err != nil {
		return err
	}
	skip := r.in
	if r.shortcut != nil {
		if err := link(where+".shortcut", r.in, r.shortcut.inType()); err != nil {
			return err
		}
		if err := r.shortcut.links(where + ".shortcut"); err != nil {
			return err
		}
		skip = r.shortcut.outType()
	}
	// Both branches of the addition must carry the block's output type.
	if err := link(where+".add", r.body.outType(), r.out); err != nil {
		return err
	}
	if err := link(where+".add", skip, r.out); err != nil {
		return err
	}
	return link(where+".relu2", r.out, r.relu.InType())
}

func (r *residualBlock[T]) walk(prefix string, fn visitor[T]) {
	r.body.walk(prefix, blockNames, fn)
	if r.shortcut != nil {
		r.shortcut.walk(prefix+".shortcut", shortcutNames, fn)
	}
	fn(prefix+".relu2", r.relu)
}

func mapBlock[A, B any](r *residualBlock[A], f mapper[A, B]) (*residualBlock[B], error) {
	body, err := mapSequence(r.body, f)
	if err != nil {
		return nil, err
	}
	shortcut, err := mapSequence(r.shortcut, f)
	if err != nil {
		return nil, err
	}
	relu, err := f(r.relu)
	if err != nil {
		return nil, err
	}
	return &residualBlock[B]{in: r.in, out: r.out, stride: r.stride, body: body, shortcut: shortcut, relu: relu}, nil
}

// stage is a fixed pair of residual blocks: the first absorbs the stride
// and the type change, the second preserves both.
type stage[T any] struct {
	blocks [2]*residualBlock[T]
}

// buildStage returns the stage and its output type, which becomes the
// next stage's input.
func buildStage(b *builder, in, out e2.FieldType, stride int) (*stage[geometric], e2.FieldType, error) {
	first, err := newResidualBlock(b, in, out, stride)
	if err != nil {
		return nil, e2.FieldType{}, err
	}
	second, err := newResidualBlock(b, out, out, 1)
	if err != nil {
		return nil, e2.FieldType{}, err
	}
	return &stage[geometric]{blocks: [2]*residualBlock[geometric]{first, second}}, out, nil
}

func (s *stage[T]) forward(fam family[T], x T) (T, error) {
	var err error
	for _, blk := range s.blocks {
		if x, err = blk.forward(fam, x); err != nil {
			return x, err
		}
	}
	return x, nil
}

func (s *stage[T]) outputShape(in []int) ([]int, error) {
	var err error
	for _, blk := range s.blocks {
		if in, err = blk.outputShape(in); err != nil {
			return nil, err
		}
	}
	return in, nil
}

func (s *stage[T]) inType() e2.FieldType  { return s.blocks[0].in }
func (s *stage[T]) outType() e2.FieldType { return s.blocks[1].out }

func (s *stage[T]) links(where string) error {
	for i, blk := range s.blocks {
		if err := blk.links(fmt.Sprintf("%s.%d", where, i)); err != nil {
			return err
		}
	}
	return link(where+".1", s.blocks[0].out, s.blocks[1].in)
}

func (s *stage[T]) walk(prefix string, fn visitor[T]) {
	for i, blk := range s.blocks {
		blk.walk(fmt.Sprintf("%s.%d", prefix, i), fn)
	}
}

func mapStage[A, B any](s *stage[A], f mapper[A, B]) (*stage[B], error) {
	out := &stage[B]{}
	for i, blk := range s.blocks {
		m, err := mapBlock(blk, f)
		if err != nil {
			return nil, err
		}
		out.blocks[i] = m
	}
	return out, nil
}
