package observer

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// PredictionEvent describes the outcome of one classification request
type PredictionEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	RequestID      string                 `json:"request_id"`
	Source         string                 `json:"source"`
	Label          string                 `json:"label,omitempty"`
	Confidence     float32                `json:"confidence,omitempty"`
	Stage          string                 `json:"stage,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of prediction event
type EventType string

const (
	// PredictionCompleted when the model returned a label
	PredictionCompleted EventType = "prediction_completed"
	// ImageRejected when the grayscale gate refused the upload
	ImageRejected EventType = "image_rejected"
	// InvalidUpload when the upload was missing or could not be decoded
	InvalidUpload EventType = "invalid_upload"
	// InferenceFailed when the model run errored
	InferenceFailed EventType = "inference_failed"
	// BookkeepingFailed when the matrix, history or publisher step errored
	BookkeepingFailed EventType = "bookkeeping_failed"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event PredictionEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event PredictionEvent)
}

// LoggingObserver logs prediction events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles prediction events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event PredictionEvent) {
	fields := logrus.Fields{
		"event_type":         event.EventType,
		"request_id":         event.RequestID,
		"source":             event.Source,
		"processing_time_ms": event.ProcessingTime.Milliseconds(),
	}
	if event.Label != "" {
		fields["label"] = event.Label
		fields["confidence"] = event.Confidence
	}
	if event.Stage != "" {
		fields["stage"] = event.Stage
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case PredictionCompleted:
		entry.Info("Prediction completed")
	case ImageRejected:
		entry.Info("Image rejected by grayscale check")
	case InvalidUpload:
		entry.Warn("Invalid upload")
	case InferenceFailed:
		entry.Error("Inference failed")
	case BookkeepingFailed:
		entry.Warn("Bookkeeping step failed")
	default:
		entry.Info("Prediction event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver exports prediction counters to Prometheus
type MetricsObserver struct {
	registry    *prometheus.Registry
	predictions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetricsObserver registers its collectors on a private registry
func NewMetricsObserver() *MetricsObserver {
	o := &MetricsObserver{
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ultrasound_predictions_total",
			Help: "Classified images by predicted label",
		}, []string{"label"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ultrasound_rejections_total",
			Help: "Requests answered with Invalid, by reason",
		}, []string{"reason"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ultrasound_failures_total",
			Help: "Failed inference runs and bookkeeping steps",
		}, []string{"stage"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ultrasound_request_duration_seconds",
			Help:    "Time spent handling a prediction request",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	o.registry.MustRegister(o.predictions, o.rejections, o.failures, o.duration)
	return o
}

// OnEvent handles prediction events by updating counters
func (o *MetricsObserver) OnEvent(ctx context.Context, event PredictionEvent) {
	switch event.EventType {
	case PredictionCompleted:
		o.predictions.WithLabelValues(event.Label).Inc()
	case ImageRejected:
		o.rejections.WithLabelValues("not_grayscale").Inc()
	case InvalidUpload:
		o.rejections.WithLabelValues("invalid_upload").Inc()
	case InferenceFailed:
		o.failures.WithLabelValues("inference").Inc()
	case BookkeepingFailed:
		o.failures.WithLabelValues(event.Stage).Inc()
		// the request itself already reported its duration
		return
	}
	o.duration.WithLabelValues(string(event.EventType)).Observe(event.ProcessingTime.Seconds())
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// Handler serves the registry in the Prometheus exposition format
func (o *MetricsObserver) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

// Registry exposes the collectors, e.g. for tests
func (o *MetricsObserver) Registry() *prometheus.Registry {
	return o.registry
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers the event to every observer in subscription
// order. A panicking observer is logged and skipped.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event PredictionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, obs := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logrus.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(ctx, event)
		}()
	}
}
