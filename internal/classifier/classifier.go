// Package classifier wraps the externally trained ultrasound model.
package classifier

import (
	"context"
	"fmt"
	"image"
	"math"

	"go-ultrasound-classifier/pkg/models"
)

// Classifier turns an image into a Healthy/Infected prediction.
type Classifier interface {
	Classify(ctx context.Context, img image.Image) (models.Prediction, error)
	Close() error
}

// PredictionFromProbabilities picks the argmax label; confidence is the max
// probability. Ties go to the lower index.
func PredictionFromProbabilities(probs []float32) (models.Prediction, error) {
	var p models.Prediction
	if len(probs) != models.NumLabels {
		return p, fmt.Errorf("expected %d class probabilities, got %d", models.NumLabels, len(probs))
	}

	best := 0
	for i, v := range probs {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return p, fmt.Errorf("probability %d is not finite: %v", i, v)
		}
		if v > probs[best] {
			best = i
		}
		p.Probabilities[i] = v
	}

	label, err := models.LabelFromIndex(best)
	if err != nil {
		return p, err
	}
	p.Label = label
	p.Confidence = probs[best]
	return p, nil
}
