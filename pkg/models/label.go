package models

import (
	"encoding/json"
	"fmt"
)

// Label is the classifier output class. The zero value is Healthy.
type Label int

const (
	Healthy Label = iota
	Infected
)

// NumLabels is the size of the label enumeration.
const NumLabels = 2

var labelNames = [NumLabels]string{"Healthy", "Infected"}

// Labels returns the enumeration in index order.
func Labels() []Label {
	return []Label{Healthy, Infected}
}

// LabelNames returns the display names in index order.
func LabelNames() []string {
	return []string{labelNames[Healthy], labelNames[Infected]}
}

func (l Label) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Label(%d)", int(l))
	}
	return labelNames[l]
}

// Index is the row/column position of the label in a confusion matrix.
func (l Label) Index() int {
	return int(l)
}

func (l Label) Valid() bool {
	return l == Healthy || l == Infected
}

// Other returns the opposite label.
func (l Label) Other() Label {
	if l == Healthy {
		return Infected
	}
	return Healthy
}

// ParseLabel accepts only the canonical names.
func ParseLabel(s string) (Label, error) {
	for i, name := range labelNames {
		if s == name {
			return Label(i), nil
		}
	}
	return 0, fmt.Errorf("unknown label %q", s)
}

// LabelFromIndex maps a class index back to a Label.
func LabelFromIndex(i int) (Label, error) {
	l := Label(i)
	if !l.Valid() {
		return 0, fmt.Errorf("label index %d out of range", i)
	}
	return l, nil
}

func (l Label) MarshalJSON() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid label %d", int(l))
	}
	return json.Marshal(l.String())
}

func (l *Label) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLabel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Prediction is a classifier verdict: the argmax label and its probability.
type Prediction struct {
	Label         Label              `json:"label"`
	Confidence    float32            `json:"confidence"`
	Probabilities [NumLabels]float32 `json:"probabilities"`
}

// Percentage formats the confidence the way the API reports it, e.g. "90.00%".
func (p Prediction) Percentage() string {
	return fmt.Sprintf("%.2f%%", float64(p.Confidence)*100)
}
