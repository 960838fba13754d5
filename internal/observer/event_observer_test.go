package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
)

type recordingObserver struct {
	name   string
	events []PredictionEvent
}

func (o *recordingObserver) OnEvent(ctx context.Context, event PredictionEvent) {
	o.events = append(o.events, event)
}

func (o *recordingObserver) GetObserverName() string { return o.name }

type panickingObserver struct{}

func (panickingObserver) OnEvent(context.Context, PredictionEvent) { panic("boom") }
func (panickingObserver) GetObserverName() string                  { return "panicking" }

func TestEventPublisher_SubscribeNotifyUnsubscribe(t *testing.T) {
	publisher := NewEventPublisher()
	first := &recordingObserver{name: "first"}
	second := &recordingObserver{name: "second"}

	publisher.Subscribe(panickingObserver{})
	publisher.Subscribe(first)
	publisher.Subscribe(second)

	publisher.NotifyObservers(context.Background(), PredictionEvent{EventType: PredictionCompleted, Label: "Healthy"})
	if len(first.events) != 1 || len(second.events) != 1 {
		t.Fatalf("Expected both observers notified despite panic, got %d/%d", len(first.events), len(second.events))
	}
	if first.events[0].Timestamp.IsZero() {
		t.Error("Expected timestamp to be filled in")
	}

	publisher.Unsubscribe(first)
	publisher.NotifyObservers(context.Background(), PredictionEvent{EventType: ImageRejected})
	if len(first.events) != 1 {
		t.Error("Unsubscribed observer must not receive events")
	}
	if len(second.events) != 2 {
		t.Errorf("Expected second observer to have 2 events, got %d", len(second.events))
	}
}

func TestLoggingObserver(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	obs := NewLoggingObserver(log)
	obs.OnEvent(context.Background(), PredictionEvent{
		EventType:      PredictionCompleted,
		RequestID:      "req-1",
		Label:          "Infected",
		Confidence:     0.9,
		ProcessingTime: 15 * time.Millisecond,
	})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q", buf.String())
	}
	if entry["label"] != "Infected" || entry["request_id"] != "req-1" {
		t.Errorf("Unexpected log fields %v", entry)
	}
	if entry["msg"] != "Prediction completed" {
		t.Errorf("Unexpected message %v", entry["msg"])
	}
}

func TestMetricsObserver(t *testing.T) {
	obs := NewMetricsObserver()
	ctx := context.Background()

	obs.OnEvent(ctx, PredictionEvent{EventType: PredictionCompleted, Label: "Infected"})
	obs.OnEvent(ctx, PredictionEvent{EventType: PredictionCompleted, Label: "Infected"})
	obs.OnEvent(ctx, PredictionEvent{EventType: PredictionCompleted, Label: "Healthy"})
	obs.OnEvent(ctx, PredictionEvent{EventType: ImageRejected})
	obs.OnEvent(ctx, PredictionEvent{EventType: BookkeepingFailed, Stage: "confusion_matrix"})

	if got := testutil.ToFloat64(obs.predictions.WithLabelValues("Infected")); got != 2 {
		t.Errorf("Expected 2 Infected predictions, got %v", got)
	}
	if got := testutil.ToFloat64(obs.rejections.WithLabelValues("not_grayscale")); got != 1 {
		t.Errorf("Expected 1 rejection, got %v", got)
	}
	if got := testutil.ToFloat64(obs.failures.WithLabelValues("confusion_matrix")); got != 1 {
		t.Errorf("Expected 1 bookkeeping failure, got %v", got)
	}

	rec := httptest.NewRecorder()
	obs.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "ultrasound_predictions_total") {
		t.Error("Expected metrics exposition to include prediction counter")
	}
}
