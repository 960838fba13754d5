package classifier

import (
	"encoding/json"
	"fmt"
	"os"

	"go-ultrasound-classifier/pkg/models"
)

// Tensor layouts.
const (
	LayoutNHWC = "NHWC"
	LayoutNCHW = "NCHW"
)

// Metadata describes the exported model next to the .onnx file.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	Layout      string   `json:"layout,omitempty"`
	InputName   string   `json:"input_name,omitempty"`
	OutputName  string   `json:"output_name,omitempty"`
}

// LoadMetadata reads and validates the metadata file.
func LoadMetadata(path string) (*Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if err := md.normalize(); err != nil {
		return nil, err
	}
	return &md, nil
}

// normalize fills defaults and checks the model matches the label set.
func (m *Metadata) normalize() error {
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	if len(m.InputShape) != 4 {
		return fmt.Errorf("input_shape must have 4 dimensions, got %v", m.InputShape)
	}
	if m.Layout == "" {
		switch {
		case m.InputShape[3] == 3:
			m.Layout = LayoutNHWC
		case m.InputShape[1] == 3:
			m.Layout = LayoutNCHW
		default:
			return fmt.Errorf("cannot infer layout from input_shape %v", m.InputShape)
		}
	}
	if m.Layout != LayoutNHWC && m.Layout != LayoutNCHW {
		return fmt.Errorf("unsupported layout %q", m.Layout)
	}
	if m.ImageSize <= 0 {
		if m.Layout == LayoutNHWC {
			m.ImageSize = int(m.InputShape[1])
		} else {
			m.ImageSize = int(m.InputShape[2])
		}
	}
	if m.InputElements() != int64(3*m.ImageSize*m.ImageSize) {
		return fmt.Errorf("input_shape %v does not hold a single %dx%d RGB image", m.InputShape, m.ImageSize, m.ImageSize)
	}

	if len(m.Classes) == 0 {
		m.Classes = models.LabelNames()
	}
	if len(m.Classes) != models.NumLabels {
		return fmt.Errorf("model must have %d classes, got %d", models.NumLabels, len(m.Classes))
	}
	for i, name := range m.Classes {
		label, err := models.ParseLabel(name)
		if err != nil {
			return fmt.Errorf("class %d: %w", i, err)
		}
		if label.Index() != i {
			return fmt.Errorf("class %q must be at index %d, found at %d", name, label.Index(), i)
		}
	}

	if len(m.OutputShape) == 0 {
		m.OutputShape = []int64{1, models.NumLabels}
	}
	var out int64 = 1
	for _, d := range m.OutputShape {
		out *= d
	}
	if out != models.NumLabels {
		return fmt.Errorf("output_shape %v must hold %d probabilities", m.OutputShape, models.NumLabels)
	}
	return nil
}

// InputElements is the number of float32 values the model consumes.
func (m *Metadata) InputElements() int64 {
	var n int64 = 1
	for _, d := range m.InputShape {
		n *= d
	}
	return n
}
