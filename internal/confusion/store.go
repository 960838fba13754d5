package confusion

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go-ultrasound-classifier/pkg/models"
)

// ReportExt is the extension of the rendered report next to the numeric store.
const ReportExt = ".png"

// ReportPath returns the rendered report location for a numeric store path:
// same stem, .png extension.
func ReportPath(storePath string) string {
	return strings.TrimSuffix(storePath, filepath.Ext(storePath)) + ReportExt
}

// Load returns the matrix persisted at path, or an all-zero matrix when the
// file does not exist yet.
func Load(path string) (*Matrix, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewMatrix(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read confusion matrix %s: %w", path, err)
	}
	m, err := UnmarshalMatrix(data)
	if err != nil {
		return nil, fmt.Errorf("load confusion matrix %s: %w", path, err)
	}
	return m, nil
}

// Save writes the numeric store and then re-renders the report. Each file is
// replaced atomically; the pair is not.
func Save(m *Matrix, path string) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode confusion matrix: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("write confusion matrix: %w", err)
	}
	if err := SaveReport(m, ReportPath(path)); err != nil {
		return err
	}
	return nil
}

// SaveReport renders m as a PNG to reportPath.
func SaveReport(m *Matrix, reportPath string) error {
	var buf bytes.Buffer
	if err := WritePNG(&buf, m); err != nil {
		return fmt.Errorf("render confusion matrix: %w", err)
	}
	if err := writeFileAtomic(reportPath, buf.Bytes()); err != nil {
		return fmt.Errorf("write confusion matrix report: %w", err)
	}
	return nil
}

// Update loads the matrix at path, increments (predicted, truth) and saves
// it. Callers sharing a path must serialise calls; see Accumulator.
func Update(predicted, truth models.Label, path string) (*Matrix, error) {
	m, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := m.Increment(predicted, truth); err != nil {
		return nil, err
	}
	if err := Save(m, path); err != nil {
		return m, err
	}
	return m, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
