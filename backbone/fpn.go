package backbone

import (
	"fmt"

	"github.com/openfluke/e2fpn/e2"
)

// pyramidHead fuses the three stage outputs top-down, coarsest first.
// Every lateral input is projected to the coarser branch's type before the
// addition, and the last conv of the fine branch targets trivial fields so
// the fine output is invariant.
type pyramidHead[T any] struct {
	coarseOut   op[T]       // layer3_outconv, 1x1 on stage 3
	up3to2      op[T]       // x2 upsample of coarseOut
	midLateral  op[T]       // layer2_outconv, 1x1 stage 2 -> stage 3 type
	midFuse     sequence[T] // layer2_outconv2, ends in the stage 2 type
	up2to1      op[T]       // x2 upsample of midFuse
	fineLateral op[T]       // layer1_outconv, 1x1 stage 1 -> stage 2 type
	fineFuse    sequence[T] // layer1_outconv2, ends in trivial fields
}

func newPyramidHead(b *builder, stages [3]e2.FieldType, fine e2.FieldType) (*pyramidHead[geometric], error) {
	var (
		h   = &pyramidHead[geometric]{}
		err error
	)
	if h.coarseOut, err = b.conv(stages[2], stages[2], e2.Conv1x1(1)); err != nil {
		return nil, err
	}
	if h.up3to2, err = b.upsample(stages[2]); err != nil {
		return nil, err
	}
	if h.midLateral, err = b.conv(stages[1], stages[2], e2.Conv1x1(1)); err != nil {
		return nil, err
	}
	if h.midFuse, err = b.fuse(stages[2], stages[1]); err != nil {
		return nil, err
	}
	if h.up2to1, err = b.upsample(stages[1]); err != nil {
		return nil, err
	}
	if h.fineLateral, err = b.conv(stages[0], stages[1], e2.Conv1x1(1)); err != nil {
		return nil, err
	}
	if h.fineFuse, err = b.fuse(stages[1], fine); err != nil {
		return nil, err
	}
	return h, nil
}

// forward returns the projected coarse features, still equivariant, and
// the invariant fine features.
func (h *pyramidHead[T]) forward(fam family[T], x1, x2, x3 T) (coarse, fine T, err error) {
	if coarse, err = h.coarseOut.Forward(x3); err != nil {
		return coarse, fine, err
	}
	up, err := h.up3to2.Forward(coarse)
	if err != nil {
		return coarse, fine, err
	}
	lat, err := h.midLateral.Forward(x2)
	if err != nil {
		return coarse, fine, err
	}
	mid, err := fam.add(lat, up)
	if err != nil {
		return coarse, fine, fmt.Errorf("fpn 1/4 fusion: %w", err)
	}
	if mid, err = h.midFuse.forward(mid); err != nil {
		return coarse, fine, err
	}
	if up, err = h.up2to1.Forward(mid); err != nil {
		return coarse, fine, err
	}
	if lat, err = h.fineLateral.Forward(x1); err != nil {
		return coarse, fine, err
	}
	if fine, err = fam.add(lat, up); err != nil {
		return coarse, fine, fmt.Errorf("fpn 1/2 fusion: %w", err)
	}
	fine, err = h.fineFuse.forward(fine)
	return coarse, fine, err
}

func (h *pyramidHead[T]) outputShape(x1, x2, x3 []int) (coarse, fine []int, err error) {
	if coarse, err = h.coarseOut.OutputShape(x3); err != nil {
		return nil, nil, err
	}
	up, err := h.up3to2.OutputShape(coarse)
	if err != nil {
		return nil, nil, err
	}
	lat, err := h.midLateral.OutputShape(x2)
	if err != nil {
		return nil, nil, err
	}
	if err := sameShape("fpn 1/4 fusion", lat, up); err != nil {
		return nil, nil, err
	}
	mid, err := h.midFuse.outputShape(lat)
	if err != nil {
		return nil, nil, err
	}
	if up, err = h.up2to1.OutputShape(mid); err != nil {
		return nil, nil, err
	}
	if lat, err = h.fineLateral.OutputShape(x1); err != nil {
		return nil, nil, err
	}
	if err := sameShape("fpn 1/2 fusion", lat, up); err != nil {
		return nil, nil, err
	}
	if fine, err = h.fineFuse.outputShape(lat); err != nil {
		return nil, nil, err
	}
	return coarse, fine, nil
}

// links checks every edge of the head given the three stage types.
func (h *pyramidHead[T]) links(x1, x2, x3 e2.FieldType) error {
	checks := []struct {
		where              string
		produced, consumed e2.FieldType
	}{
		{"fpn.layer3_outconv", x3, h.coarseOut.InType()},
		{"fpn.up3to2", h.coarseOut.OutType(), h.up3to2.InType()},
		{"fpn.layer2_outconv", x2, h.midLateral.InType()},
		{"fpn.add3to2", h.midLateral.OutType(), h.up3to2.OutType()},
		{"fpn.layer2_outconv2", h.midLateral.OutType(), h.midFuse.inType()},
		{"fpn.up2to1", h.midFuse.outType(), h.up2to1.InType()},
		{"fpn.layer1_outconv", x1, h.fineLateral.InType()},
		{"fpn.add2to1", h.fineLateral.OutType(), h.up2to1.OutType()},
		{"fpn.layer1_outconv2", h.fineLateral.OutType(), h.fineFuse.inType()},
	}
	for _, c := range checks {
		if err := link(c.where, c.produced, c.consumed); err != nil {
			return err
		}
	}
	if err := h.midFuse.links("fpn.layer2_outconv2"); err != nil {
		return err
	}
	return h.fineFuse.links("fpn.layer1_outconv2")
}

func (h *pyramidHead[T]) walk(fn visitor[T]) {
	fn("fpn.layer3_outconv", h.coarseOut)
	fn("fpn.up3to2", h.up3to2)
	fn("fpn.layer2_outconv", h.midLateral)
	h.midFuse.walk("fpn.layer2_outconv2", fuseNames, fn)
	fn("fpn.up2to1", h.up2to1)
	fn("fpn.layer1_outconv", h.fineLateral)
	h.fineFuse.walk("fpn.layer1_outconv2", fuseNames, fn)
}

func mapHead[A, B any](h *pyramidHead[A], f mapper[A, B]) (*pyramidHead[B], error) {
	var (
		out = &pyramidHead[B]{}
		err error
	)
	for _, m := range []struct {
		dst *op[B]
		src op[A]
	}{
		{&out.coarseOut, h.coarseOut},
		{&out.up3to2, h.up3to2},
		{&out.midLateral, h.midLateral},
		{&out.up2to1, h.up2to1},
		{&out.fineLateral, h.fineLateral},
	} {
		if *m.dst, err = f(m.src); err != nil {
			return nil, err
		}
	}
	if out.midFuse, err = mapSequence(h.midFuse, f); err != nil {
		return nil, err
	}
	if out.fineFuse, err = mapSequence(h.fineFuse, f); err != nil {
		return nil, err
	}
	return out, nil
}
