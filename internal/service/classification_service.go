package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"time"

	"go-ultrasound-classifier/internal/classifier"
	"go-ultrasound-classifier/internal/confusion"
	apperrors "go-ultrasound-classifier/internal/errors"
	"go-ultrasound-classifier/internal/logger"
	"go-ultrasound-classifier/internal/observer"
	"go-ultrasound-classifier/internal/oracle"
	"go-ultrasound-classifier/internal/repository"
	"go-ultrasound-classifier/internal/storage"
	"go-ultrasound-classifier/internal/worker"
	"go-ultrasound-classifier/pkg/models"
	"go-ultrasound-classifier/pkg/validation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultListLimit applies when a caller asks for recent predictions
	// without a limit.
	DefaultListLimit = 50

	publishTimeout = 30 * time.Second
)

// ClassificationService runs the prediction pipeline and owns the
// confusion matrix bookkeeping.
type ClassificationService interface {
	// ClassifyUpload decodes r and runs the pipeline. A colourful image yields
	// an Invalid response and no error.
	ClassifyUpload(ctx context.Context, filename string, r io.Reader) (*models.PredictionResponse, error)

	// ClassifyURL fetches imageURL and runs the same pipeline
	ClassifyURL(ctx context.Context, imageURL string) (*models.PredictionResponse, error)

	ConfusionMatrix(ctx context.Context) (*confusion.Matrix, error)

	// ConfusionMatrixReport returns the path of the rendered PNG, rendering
	// it first if needed
	ConfusionMatrixReport(ctx context.Context) (string, error)

	ResetConfusionMatrix(ctx context.Context) error

	// RebuildConfusionMatrix replaces the matrix with the tallies from the
	// prediction history
	RebuildConfusionMatrix(ctx context.Context) (*confusion.Matrix, error)

	RecentPredictions(ctx context.Context, limit int) ([]*models.PredictionRecord, error)
	GetPrediction(ctx context.Context, id string) (*models.PredictionRecord, error)
}

// Dependencies are the collaborators of the classification service. History,
// Publisher, Jobs and Events are optional.
type Dependencies struct {
	Classifier   classifier.Classifier
	Grayscale    *validation.GrayscaleValidator
	URLValidator *validation.URLValidator
	Fetcher      storage.ImageFetcher
	Oracle       oracle.SyntheticOracle
	Accumulator  *confusion.Accumulator
	History      repository.PredictionRepository
	Publisher    storage.ArtifactPublisher
	Jobs         *worker.Pool
	Events       observer.Subject
}

type classificationService struct {
	deps Dependencies
}

// NewClassificationService validates deps and returns the service
func NewClassificationService(deps Dependencies) (ClassificationService, error) {
	switch {
	case deps.Classifier == nil:
		return nil, errors.New("classification service: classifier is required")
	case deps.Oracle == nil:
		return nil, errors.New("classification service: oracle is required")
	case deps.Accumulator == nil:
		return nil, errors.New("classification service: accumulator is required")
	}
	if deps.Grayscale == nil {
		deps.Grayscale = validation.NewGrayscaleValidator()
	}
	if deps.URLValidator == nil {
		deps.URLValidator = validation.NewURLValidator()
	}
	return &classificationService{deps: deps}, nil
}

type requestIDKey struct{}

// WithRequestID attaches a correlation id used in logs and events. Prediction
// records always get their own id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id attached by WithRequestID, or a fresh one.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *classificationService) ClassifyUpload(ctx context.Context, filename string, r io.Reader) (*models.PredictionResponse, error) {
	start := time.Now()
	requestID := RequestID(ctx)

	img, format, err := image.Decode(r)
	if err != nil {
		s.notify(ctx, observer.PredictionEvent{
			EventType:      observer.InvalidUpload,
			RequestID:      requestID,
			Source:         models.SourceUpload,
			ProcessingTime: time.Since(start),
			ErrorMessage:   err.Error(),
		})
		return nil, apperrors.NewValidationError("Uploaded file is not a readable image", err)
	}

	logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"filename":   filename,
		"format":     format,
		"width":      img.Bounds().Dx(),
		"height":     img.Bounds().Dy(),
	}).Debug("Decoded upload")

	return s.classify(ctx, requestID, models.SourceUpload, filename, img, start)
}

func (s *classificationService) ClassifyURL(ctx context.Context, imageURL string) (*models.PredictionResponse, error) {
	start := time.Now()
	requestID := RequestID(ctx)

	if err := s.deps.URLValidator.ValidateImageURL(imageURL); err != nil {
		return nil, err
	}
	if s.deps.Fetcher == nil {
		return nil, apperrors.NewInternalError("Image fetching is not configured", nil)
	}

	img, err := s.deps.Fetcher.FetchImage(ctx, imageURL)
	if err != nil {
		var fetchErr *apperrors.AppError
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			fetchErr = apperrors.NewTimeoutError("Image fetch timeout", err)
		case errors.Is(err, storage.ErrUndecodableImage):
			fetchErr = apperrors.NewValidationError("Fetched file is not a readable image", err)
		default:
			fetchErr = apperrors.NewNetworkError("Failed to fetch image", err)
		}
		s.notify(ctx, observer.PredictionEvent{
			EventType:      observer.InvalidUpload,
			RequestID:      requestID,
			Source:         models.SourceURL,
			Stage:          "fetch",
			ProcessingTime: time.Since(start),
			ErrorMessage:   err.Error(),
		})
		return nil, fetchErr
	}

	return s.classify(ctx, requestID, models.SourceURL, imageURL, img, start)
}

func (s *classificationService) classify(ctx context.Context, requestID, source, filename string, img image.Image, start time.Time) (*models.PredictionResponse, error) {
	thresholds := s.deps.Grayscale.Thresholds()
	report := s.deps.Grayscale.Inspect(img)
	detail := &models.GrayscaleDetail{
		Fraction:  report.Fraction,
		Threshold: thresholds.ChannelThreshold,
		Ratio:     thresholds.AcceptanceRatio,
	}

	if !report.Accepted {
		s.notify(ctx, observer.PredictionEvent{
			EventType:      observer.ImageRejected,
			RequestID:      requestID,
			Source:         source,
			Stage:          "grayscale",
			ProcessingTime: time.Since(start),
			Metadata: map[string]interface{}{
				"grayscale_fraction": report.Fraction,
				"total_pixels":       report.TotalPixels,
			},
		})
		resp := models.InvalidResponse()
		resp.Grayscale = detail
		return &resp, nil
	}

	prediction, err := s.deps.Classifier.Classify(ctx, img)
	if err != nil {
		s.notify(ctx, observer.PredictionEvent{
			EventType:      observer.InferenceFailed,
			RequestID:      requestID,
			Source:         source,
			Stage:          "inference",
			ProcessingTime: time.Since(start),
			ErrorMessage:   err.Error(),
		})
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, apperrors.NewTimeoutError("Model inference timed out", err)
		case errors.Is(err, classifier.ErrUnprocessableImage):
			return nil, apperrors.NewProcessingError("Image could not be prepared for the model", err)
		}
		return nil, apperrors.NewInferenceError("Model inference failed", err)
	}

	recordID := uuid.NewString()
	resp := &models.PredictionResponse{
		Result:     prediction.Label.String(),
		Percentage: prediction.Percentage(),
		ID:         recordID,
		Grayscale:  detail,
	}

	truth := s.deps.Oracle.SyntheticTruth(prediction.Label)
	resp.Warnings = s.bookkeep(ctx, requestID, &models.PredictionRecord{
		ID:             recordID,
		Filename:       filename,
		Source:         source,
		Predicted:      prediction.Label,
		Confidence:     prediction.Confidence,
		SyntheticTruth: truth,
	})

	s.notify(ctx, observer.PredictionEvent{
		EventType:      observer.PredictionCompleted,
		RequestID:      requestID,
		Source:         source,
		Label:          prediction.Label.String(),
		Confidence:     prediction.Confidence,
		ProcessingTime: time.Since(start),
		Metadata:       map[string]interface{}{"prediction_id": recordID},
	})
	return resp, nil
}

// bookkeep updates the matrix and the history. Failures are reported as
// warnings and never fail the request.
func (s *classificationService) bookkeep(ctx context.Context, requestID string, record *models.PredictionRecord) []string {
	var warnings []string
	fail := func(stage, warning string, err error) {
		logger.WithError(err).WithFields(logrus.Fields{
			"request_id":    requestID,
			"prediction_id": record.ID,
			"stage":         stage,
		}).Warn(warning)
		warnings = append(warnings, warning)
		s.notify(ctx, observer.PredictionEvent{
			EventType:    observer.BookkeepingFailed,
			RequestID:    requestID,
			Source:       record.Source,
			Stage:        stage,
			ErrorMessage: err.Error(),
		})
	}

	if _, err := s.deps.Accumulator.Record(ctx, record.Predicted, record.SyntheticTruth); err != nil {
		fail("confusion_matrix", "confusion matrix was not updated", err)
	} else {
		s.publishArtifacts()
	}

	if s.deps.History != nil {
		if err := s.deps.History.SavePrediction(ctx, record); err != nil {
			fail("history", "prediction was not saved to history", err)
		}
	}
	return warnings
}

// publishArtifacts queues an upload of the current store and report. Jobs
// run on a single worker so uploads land in order. A full queue drops the
// upload rather than holding up the request.
func (s *classificationService) publishArtifacts() {
	if s.deps.Publisher == nil || s.deps.Jobs == nil {
		return
	}
	storePath := s.deps.Accumulator.Path()
	reportPath := s.deps.Accumulator.ReportPath()

	queued := s.deps.Jobs.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		for _, artifact := range []struct {
			path, contentType string
		}{
			{storePath, "application/octet-stream"},
			{reportPath, "image/png"},
		} {
			data, err := os.ReadFile(artifact.path)
			if err != nil {
				logger.WithError(err).WithField("path", artifact.path).Warn("Artifact not readable for publishing")
				continue
			}
			if err := s.deps.Publisher.Publish(ctx, filepath.Base(artifact.path), artifact.contentType, data); err != nil {
				logger.WithError(err).WithField("path", artifact.path).Warn("Failed to publish artifact")
				s.notify(ctx, observer.PredictionEvent{
					EventType:    observer.BookkeepingFailed,
					Stage:        "publish",
					ErrorMessage: err.Error(),
				})
			}
		}
	})
	if !queued {
		logger.WithField("path", storePath).Warn("Artifact publishing skipped: job queue full or closed")
	}
}

func (s *classificationService) ConfusionMatrix(ctx context.Context) (*confusion.Matrix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := s.deps.Accumulator.Snapshot()
	if err != nil {
		return nil, apperrors.NewStorageError("Failed to load confusion matrix", err)
	}
	return m, nil
}

func (s *classificationService) ConfusionMatrixReport(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := s.deps.Accumulator.EnsureReport()
	if err != nil {
		return "", apperrors.NewStorageError("Failed to render confusion matrix", err)
	}
	return path, nil
}

func (s *classificationService) ResetConfusionMatrix(ctx context.Context) error {
	if err := s.deps.Accumulator.Reset(ctx); err != nil {
		return apperrors.NewStorageError("Failed to reset confusion matrix", err)
	}
	logger.Info("Confusion matrix reset")
	s.publishArtifacts()
	return nil
}

func (s *classificationService) RebuildConfusionMatrix(ctx context.Context) (*confusion.Matrix, error) {
	if s.deps.History == nil {
		return nil, apperrors.NewInternalError("Prediction history is not configured", nil)
	}
	tally, err := s.deps.History.TallyPairs(ctx)
	if err != nil {
		return nil, apperrors.NewStorageError("Failed to read prediction history", err)
	}

	counts := make([][]uint64, len(tally))
	for i := range tally {
		counts[i] = tally[i][:]
	}
	m, err := confusion.FromCounts(counts)
	if err != nil {
		return nil, apperrors.NewInternalError("Invalid tally from prediction history", err)
	}
	if err := s.deps.Accumulator.Replace(ctx, m); err != nil {
		return nil, apperrors.NewStorageError("Failed to store rebuilt confusion matrix", err)
	}

	logger.WithField("total", m.Total()).Info("Confusion matrix rebuilt from history")
	s.publishArtifacts()
	return m, nil
}

func (s *classificationService) RecentPredictions(ctx context.Context, limit int) ([]*models.PredictionRecord, error) {
	if s.deps.History == nil {
		return []*models.PredictionRecord{}, nil
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > repository.MaxListLimit {
		limit = repository.MaxListLimit
	}
	records, err := s.deps.History.ListPredictions(ctx, limit)
	if err != nil {
		return nil, apperrors.NewStorageError("Failed to list predictions", err)
	}
	return records, nil
}

func (s *classificationService) GetPrediction(ctx context.Context, id string) (*models.PredictionRecord, error) {
	if s.deps.History == nil {
		return nil, apperrors.NewNotFoundError("Prediction history is not configured", nil)
	}
	record, err := s.deps.History.GetPrediction(ctx, id)
	if errors.Is(err, repository.ErrPredictionNotFound) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("Prediction %s not found", id), err)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("Failed to load prediction", err)
	}
	return record, nil
}

func (s *classificationService) notify(ctx context.Context, event observer.PredictionEvent) {
	if s.deps.Events == nil {
		return
	}
	s.deps.Events.NotifyObservers(ctx, event)
}
