package e2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegularFromWidth(t *testing.T) {
	cases := []struct {
		name      string
		n, width  int
		red       Reduction
		fields    int
		channels  int
		wantError bool
	}{
		{"full group keeps width", 8, 128, FullGroup(), 16, 128, false},
		{"full group 196 floors", 8, 196, FullGroup(), 24, 192, false},
		{"divisor 4 doubles channels", 8, 128, Divisor(4), 32, 256, false},
		{"divisor 1 is N times wider", 4, 3, Divisor(1), 3, 12, false},
		{"divisor equal to order", 8, 256, Divisor(8), 32, 256, false},
		{"divisor above order", 8, 128, Divisor(16), 0, 0, true},
		{"negative divisor", 8, 128, Divisor(-1), 0, 0, true},
		{"zero divisor", 8, 128, Divisor(0), 0, 0, true},
		{"zero value reduction", 8, 128, Reduction{}, 0, 0, true},
		{"width below divisor", 8, 4, FullGroup(), 0, 0, true},
		{"zero width", 8, 0, FullGroup(), 0, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ft, err := RegularFromWidth(tc.n, tc.width, tc.red)
			if tc.wantError {
				assert.ErrorIs(t, err, ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.fields, ft.Len())
			assert.Equal(t, tc.channels, ft.Size())
			assert.Equal(t, tc.n, ft.GroupOrder())
			for i := 0; i < ft.Len(); i++ {
				assert.Equal(t, Regular, ft.Repr(i))
			}
		})
	}
}

func TestFieldTypeSize(t *testing.T) {
	mixed, err := NewFieldType(4, Regular, Trivial, Trivial, Regular)
	require.NoError(t, err)
	assert.Equal(t, 10, mixed.Size())
	assert.Equal(t, []int{0, 4, 5, 6}, mixed.offsets())

	triv, err := TrivialType(8, 256)
	require.NoError(t, err)
	assert.Equal(t, 256, triv.Size())
	assert.Equal(t, 256, triv.Len())
}

// TestFieldTypeEqual checks that equality is structural, not by size.
func TestFieldTypeEqual(t *testing.T) {
	reg, err := RegularType(8, 2)
	require.NoError(t, err)
	triv, err := TrivialType(8, 16)
	require.NoError(t, err)
	require.Equal(t, reg.Size(), triv.Size())
	assert.False(t, reg.Equal(triv))

	again, err := RegularType(8, 2)
	require.NoError(t, err)
	assert.True(t, reg.Equal(again))

	other, err := RegularType(4, 4)
	require.NoError(t, err)
	assert.False(t, reg.Equal(other), "same size, different group")

	a, _ := NewFieldType(4, Regular, Trivial)
	b, _ := NewFieldType(4, Trivial, Regular)
	assert.False(t, a.Equal(b), "order matters")
}

func TestFieldTypeString(t *testing.T) {
	reg, _ := RegularType(8, 16)
	assert.Equal(t, "C8[16×regular]", reg.String())

	mixed, _ := NewFieldType(4, Regular, Trivial, Trivial)
	assert.Equal(t, "C4[1×regular, 2×trivial]", mixed.String())

	assert.Equal(t, "<none>", FieldType{}.String())
	assert.True(t, FieldType{}.IsZero())
}

func TestFieldTypeErrors(t *testing.T) {
	_, err := NewFieldType(0, Regular)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewFieldType(4)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewFieldType(4, Repr(9))
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = RegularType(8, 0)
	assert.ErrorIs(t, err, ErrConfiguration)
}
