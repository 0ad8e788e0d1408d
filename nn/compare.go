package nn

import (
	"fmt"
	"math"
)

// Divergence summarizes the element-wise difference of two tensors
type Divergence struct {
	MaxAbsError  float64
	MeanAbsError float64
	RMSError     float64
	Elements     int
}

// String renders the divergence on a single line
func (d Divergence) String() string {
	return fmt.Sprintf("max_abs=%.4e mean_abs=%.4e rms=%.4e n=%d", d.MaxAbsError, d.MeanAbsError, d.RMSError, d.Elements)
}

// Compare computes divergence metrics between two tensors of the same shape
func Compare(a, b *Tensor) (Divergence, error) {
	if !SameShape(a.Shape, b.Shape) {
		return Divergence{}, fmt.Errorf("%w: cannot compare %v and %v", ErrShape, a.Shape, b.Shape)
	}
	d := Divergence{Elements: len(a.Data)}
	if d.Elements == 0 {
		return d, nil
	}
	var sumAbs, sumSq float64
	for i := range a.Data {
		diff := math.Abs(float64(a.Data[i]) - float64(b.Data[i]))
		sumAbs += diff
		sumSq += diff * diff
		if diff > d.MaxAbsError {
			d.MaxAbsError = diff
		}
	}
	d.MeanAbsError = sumAbs / float64(d.Elements)
	d.RMSError = math.Sqrt(sumSq / float64(d.Elements))
	return d, nil
}
