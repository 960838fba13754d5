package repository

import (
	"context"

	"go-ultrasound-classifier/pkg/models"
)

// PredictionRepository keeps the history of classified requests. It is the
// source for rebuilding the confusion matrix.
type PredictionRepository interface {
	// SavePrediction stores one classified request
	SavePrediction(ctx context.Context, record *models.PredictionRecord) error

	// GetPrediction retrieves a stored record by id
	GetPrediction(ctx context.Context, id string) (*models.PredictionRecord, error)

	// ListPredictions returns the most recent records, newest first
	ListPredictions(ctx context.Context, limit int) ([]*models.PredictionRecord, error)

	// TallyPairs counts records per (predicted, synthetic truth) pair, rows
	// indexed by predicted label
	TallyPairs(ctx context.Context) ([models.NumLabels][models.NumLabels]uint64, error)

	Close() error
}
