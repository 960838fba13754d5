package confusion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"go-ultrasound-classifier/pkg/models"
)

// Accumulator owns one confusion matrix store. Every load-modify-save runs
// under a single lock, so concurrent requests never lose increments.
type Accumulator struct {
	mu   sync.Mutex
	path string
}

// NewAccumulator binds an accumulator to the numeric store at path.
func NewAccumulator(path string) *Accumulator {
	return &Accumulator{path: path}
}

// Path is the numeric store location.
func (a *Accumulator) Path() string {
	return a.path
}

// ReportPath is the rendered PNG location.
func (a *Accumulator) ReportPath() string {
	return ReportPath(a.path)
}

// Record adds one (predicted, truth) observation and persists both
// artifacts. The returned matrix reflects the increment even when saving
// failed, in which case err is non-nil.
func (a *Accumulator) Record(ctx context.Context, predicted, truth models.Label) (*Matrix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return Update(predicted, truth, a.path)
}

// Snapshot returns the currently persisted matrix.
func (a *Accumulator) Snapshot() (*Matrix, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Load(a.path)
}

// Reset zeroes the matrix and re-renders the report.
func (a *Accumulator) Reset(ctx context.Context) error {
	return a.Replace(ctx, NewMatrix())
}

// Replace overwrites the stored matrix, e.g. after rebuilding it from the
// prediction history.
func (a *Accumulator) Replace(ctx context.Context, m *Matrix) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("replace confusion matrix: nil matrix")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return Save(m, a.path)
}

// EnsureReport renders the PNG from the numeric store if it is missing and
// returns its path.
func (a *Accumulator) EnsureReport() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	reportPath := ReportPath(a.path)
	if _, err := os.Stat(reportPath); err == nil {
		return reportPath, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	m, err := Load(a.path)
	if err != nil {
		return "", err
	}
	if err := SaveReport(m, reportPath); err != nil {
		return "", err
	}
	return reportPath, nil
}
