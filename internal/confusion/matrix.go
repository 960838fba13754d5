package confusion

import (
	"fmt"
	"math"

	"go-ultrasound-classifier/pkg/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Matrix counts (predicted, synthetic truth) pairs. Row i is the predicted
// label with index i, column j the true label with index j.
type Matrix struct {
	dense *mat.Dense
}

// NewMatrix returns an all-zero matrix.
func NewMatrix() *Matrix {
	return &Matrix{dense: mat.NewDense(models.NumLabels, models.NumLabels, nil)}
}

// FromCounts builds a matrix from row-major counts.
func FromCounts(counts [][]uint64) (*Matrix, error) {
	if len(counts) != models.NumLabels {
		return nil, fmt.Errorf("expected %d rows, got %d", models.NumLabels, len(counts))
	}
	m := NewMatrix()
	for i, row := range counts {
		if len(row) != models.NumLabels {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", i, models.NumLabels, len(row))
		}
		for j, v := range row {
			m.dense.Set(i, j, float64(v))
		}
	}
	return m, nil
}

// fromDense validates a decoded store: 2x2, finite, non-negative integers.
func fromDense(d *mat.Dense) (*Matrix, error) {
	r, c := d.Dims()
	if r != models.NumLabels || c != models.NumLabels {
		return nil, fmt.Errorf("confusion matrix must be %dx%d, got %dx%d", models.NumLabels, models.NumLabels, r, c)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := d.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v != math.Trunc(v) {
				return nil, fmt.Errorf("cell (%d,%d) holds %v, want a non-negative integer", i, j, v)
			}
		}
	}
	return &Matrix{dense: mat.DenseCopyOf(d)}, nil
}

// At returns the count for a (predicted, truth) pair.
func (m *Matrix) At(predicted, truth models.Label) uint64 {
	return uint64(m.dense.At(predicted.Index(), truth.Index()))
}

// Increment adds one to the (predicted, truth) cell.
func (m *Matrix) Increment(predicted, truth models.Label) error {
	if !predicted.Valid() || !truth.Valid() {
		return fmt.Errorf("invalid label pair (%d, %d)", int(predicted), int(truth))
	}
	i, j := predicted.Index(), truth.Index()
	m.dense.Set(i, j, m.dense.At(i, j)+1)
	return nil
}

// Counts returns a row-major copy of the cells.
func (m *Matrix) Counts() [][]uint64 {
	out := make([][]uint64, models.NumLabels)
	for i := range out {
		out[i] = make([]uint64, models.NumLabels)
		for j := range out[i] {
			out[i][j] = uint64(m.dense.At(i, j))
		}
	}
	return out
}

// Total is the number of recorded predictions.
func (m *Matrix) Total() uint64 {
	return uint64(floats.Sum(m.dense.RawMatrix().Data))
}

// Max is the largest single cell.
func (m *Matrix) Max() uint64 {
	return uint64(floats.Max(m.dense.RawMatrix().Data))
}

// Equal reports whether both matrices hold the same counts.
func (m *Matrix) Equal(other *Matrix) bool {
	if other == nil {
		return false
	}
	return mat.Equal(m.dense, other.dense)
}

// Clone returns an independent copy.
func (m *Matrix) Clone() *Matrix {
	return &Matrix{dense: mat.DenseCopyOf(m.dense)}
}

// MarshalBinary encodes the matrix in gonum's binary matrix format.
func (m *Matrix) MarshalBinary() ([]byte, error) {
	return m.dense.MarshalBinary()
}

// UnmarshalMatrix decodes and validates data written by MarshalBinary.
func UnmarshalMatrix(data []byte) (*Matrix, error) {
	var d mat.Dense
	if err := d.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decode confusion matrix: %w", err)
	}
	return fromDense(&d)
}

// Response converts the matrix to its API view.
func (m *Matrix) Response() models.ConfusionMatrixResponse {
	return models.ConfusionMatrixResponse{
		Labels: models.LabelNames(),
		Matrix: m.Counts(),
		Total:  m.Total(),
	}
}

func (m *Matrix) String() string {
	return fmt.Sprintf("%v", m.Counts())
}
