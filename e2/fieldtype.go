package e2

import (
	"fmt"
	"strings"
)

// Repr tags the group representation carried by one field.
type Repr uint8

const (
	// Trivial fields are single channels left unchanged by rotations.
	Trivial Repr = iota
	// Regular fields are N channels permuted cyclically by rotations.
	Regular
)

func (r Repr) String() string {
	switch r {
	case Trivial:
		return "trivial"
	case Regular:
		return "regular"
	default:
		return fmt.Sprintf("Repr(%d)", uint8(r))
	}
}

// Size returns the number of channels the representation occupies under
// a group of order n.
func (r Repr) Size(n int) int {
	if r == Regular {
		return n
	}
	return 1
}

// FieldType is an immutable description of a tensor's channel structure:
// an ordered sequence of representation tags under C_N.
type FieldType struct {
	n     int
	reprs []Repr
	size  int
}

// NewFieldType builds a field type from an explicit tag sequence.
func NewFieldType(n int, reprs ...Repr) (FieldType, error) {
	if n < 1 {
		return FieldType{}, fmt.Errorf("%w: group order must be >= 1, got %d", ErrConfiguration, n)
	}
	if len(reprs) == 0 {
		return FieldType{}, fmt.Errorf("%w: field type needs at least one field", ErrConfiguration)
	}
	ft := FieldType{n: n, reprs: append([]Repr(nil), reprs...)}
	for _, r := range reprs {
		if r != Trivial && r != Regular {
			return FieldType{}, fmt.Errorf("%w: unknown representation %v", ErrConfiguration, r)
		}
		ft.size += r.Size(n)
	}
	return ft, nil
}

// TrivialType returns width copies of the trivial representation.
func TrivialType(n, width int) (FieldType, error) {
	return repeated(n, Trivial, width)
}

// RegularType returns multiplicity copies of the regular representation.
func RegularType(n, multiplicity int) (FieldType, error) {
	return repeated(n, Regular, multiplicity)
}

func repeated(n int, r Repr, count int) (FieldType, error) {
	if count < 1 {
		return FieldType{}, fmt.Errorf("%w: need at least one %s field, got %d", ErrConfiguration, r, count)
	}
	reprs := make([]Repr, count)
	for i := range reprs {
		reprs[i] = r
	}
	return NewFieldType(n, reprs...)
}

// GroupOrder returns N
func (f FieldType) GroupOrder() int { return f.n }

// Len returns the number of fields
func (f FieldType) Len() int { return len(f.reprs) }

// Repr returns the tag of field i
func (f FieldType) Repr(i int) Repr { return f.reprs[i] }

// Size returns the expanded channel count: one per trivial field, N per
// regular field.
func (f FieldType) Size() int { return f.size }

// IsZero reports whether f is the zero FieldType
func (f FieldType) IsZero() bool { return f.n == 0 }

// Equal reports structural equality: same group order and the same tag
// sequence. Two types with equal Size may still differ.
func (f FieldType) Equal(g FieldType) bool {
	if f.n != g.n || len(f.reprs) != len(g.reprs) {
		return false
	}
	for i := range f.reprs {
		if f.reprs[i] != g.reprs[i] {
			return false
		}
	}
	return true
}

// offsets returns the first channel of every field.
func (f FieldType) offsets() []int {
	offs := make([]int, len(f.reprs))
	c := 0
	for i, r := range f.reprs {
		offs[i] = c
		c += r.Size(f.n)
	}
	return offs
}

// String renders run-length encoded tags, e.g. "C8[16×regular]".
func (f FieldType) String() string {
	if f.IsZero() {
		return "<none>"
	}
	var parts []string
	for i := 0; i < len(f.reprs); {
		j := i
		for j < len(f.reprs) && f.reprs[j] == f.reprs[i] {
			j++
		}
		parts = append(parts, fmt.Sprintf("%d×%s", j-i, f.reprs[i]))
		i = j
	}
	return fmt.Sprintf("C%d[%s]", f.n, strings.Join(parts, ", "))
}

// Reduction decides how many regular fields approximate a nominal
// channel width: width / D copies, with D either the group order or an
// explicit divisor no larger than it.
type Reduction struct {
	full    bool
	divisor int
}

// FullGroup divides nominal widths by the group order, keeping the
// expanded channel count equal to the nominal width.
func FullGroup() Reduction { return Reduction{full: true} }

// Divisor divides nominal widths by d.
func Divisor(d int) Reduction { return Reduction{divisor: d} }

// Resolve returns the divisor D for group order n.
func (r Reduction) Resolve(n int) (int, error) {
	if r.full {
		return n, nil
	}
	if r.divisor < 1 {
		return 0, fmt.Errorf("%w: reduction divisor must be >= 1, got %d", ErrConfiguration, r.divisor)
	}
	if r.divisor > n {
		return 0, fmt.Errorf("%w: reduction divisor %d exceeds group order %d", ErrConfiguration, r.divisor, n)
	}
	return r.divisor, nil
}

// RegularFromWidth returns width/D copies of the regular representation.
// The division floors; a width smaller than D is rejected.
func RegularFromWidth(n, width int, red Reduction) (FieldType, error) {
	d, err := red.Resolve(n)
	if err != nil {
		return FieldType{}, err
	}
	if width < 1 {
		return FieldType{}, fmt.Errorf("%w: channel width must be positive, got %d", ErrConfiguration, width)
	}
	if width/d == 0 {
		return FieldType{}, fmt.Errorf("%w: width %d is smaller than reduction divisor %d", ErrConfiguration, width, d)
	}
	return RegularType(n, width/d)
}
