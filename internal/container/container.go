package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go-ultrasound-classifier/internal/classifier"
	"go-ultrasound-classifier/internal/config"
	"go-ultrasound-classifier/internal/confusion"
	"go-ultrasound-classifier/internal/logger"
	"go-ultrasound-classifier/internal/observer"
	"go-ultrasound-classifier/internal/oracle"
	"go-ultrasound-classifier/internal/repository"
	"go-ultrasound-classifier/internal/service"
	"go-ultrasound-classifier/internal/storage"
	"go-ultrasound-classifier/internal/transport"
	"go-ultrasound-classifier/internal/worker"
	"go-ultrasound-classifier/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config     *config.Config
	classifier classifier.Classifier
	history    repository.PredictionRepository
	jobs       *worker.Pool
	service    service.ClassificationService
	handler    http.Handler
}

// NewContainer builds the dependency graph. The model must load; everything
// else degrades to a warning.
func NewContainer(cfg *config.Config) (*Container, error) {
	model, err := classifier.NewONNXClassifier(cfg.ModelPath, cfg.ModelMetadataPath, cfg.OnnxRuntimeLibPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	return newContainer(cfg, model)
}

func newContainer(cfg *config.Config, model classifier.Classifier) (*Container, error) {
	synthetic, err := oracle.NewRandomizedOracle(cfg.OracleAgreementOdds)
	if err != nil {
		model.Close()
		return nil, err
	}

	var history repository.PredictionRepository
	if cfg.HistoryDBPath != "" {
		repo, err := repository.NewSQLiteRepository(cfg.HistoryDBPath)
		if err != nil {
			logger.WithError(err).WithField("path", cfg.HistoryDBPath).
				Warn("Prediction history disabled")
		} else {
			history = repo
		}
	}

	var publisher storage.ArtifactPublisher = storage.NopPublisher{}
	if cfg.PublishingEnabled() {
		azure, err := newAzurePublisher(cfg)
		if err != nil {
			logger.WithError(err).Warn("Artifact publishing disabled")
		} else {
			publisher = azure
		}
	}

	jobs := worker.NewPool(1, 16)
	jobs.Start()

	metrics := observer.NewMetricsObserver()
	events := observer.NewEventPublisher()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(metrics)

	svc, err := service.NewClassificationService(service.Dependencies{
		Classifier: model,
		Grayscale: validation.NewGrayscaleValidatorWithThresholds(validation.GrayscaleThresholds{
			ChannelThreshold: cfg.GrayscaleThreshold,
			AcceptanceRatio:  cfg.GrayscaleRatio,
		}),
		URLValidator: validation.NewURLValidator(),
		Fetcher:      storage.NewHTTPImageFetcher(cfg.ImageFetchTimeout),
		Oracle:       synthetic,
		Accumulator:  confusion.NewAccumulator(cfg.ConfusionMatrixPath),
		History:      history,
		Publisher:    publisher,
		Jobs:         jobs,
		Events:       events,
	})
	if err != nil {
		jobs.Close()
		model.Close()
		if history != nil {
			history.Close()
		}
		return nil, err
	}

	return &Container{
		config:     cfg,
		classifier: model,
		history:    history,
		jobs:       jobs,
		service:    svc,
		handler:    transport.NewHandler(svc, cfg, metrics.Handler()),
	}, nil
}

func newAzurePublisher(cfg *config.Config) (*storage.AzurePublisher, error) {
	publisher, err := storage.NewAzurePublisher(cfg.AzureAccount, cfg.AzureKey, cfg.AzureContainer)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := publisher.EnsureContainer(ctx); err != nil {
		return nil, err
	}
	return publisher, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Service returns the classification service
func (c *Container) Service() service.ClassificationService {
	return c.service
}

// Close drains pending publish jobs, then releases the model and the
// history database.
func (c *Container) Close() error {
	c.jobs.Close()

	var errs []error
	if err := c.classifier.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close classifier: %w", err))
	}
	if c.history != nil {
		if err := c.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	return errors.Join(errs...)
}
