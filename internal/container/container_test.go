package container

import (
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go-ultrasound-classifier/internal/config"
	"go-ultrasound-classifier/pkg/models"

	"github.com/gin-gonic/gin"
)

type stubClassifier struct {
	closed bool
}

func (s *stubClassifier) Classify(ctx context.Context, img image.Image) (models.Prediction, error) {
	return models.Prediction{Label: models.Healthy, Confidence: 1, Probabilities: [2]float32{1, 0}}, nil
}

func (s *stubClassifier) Close() error {
	s.closed = true
	return nil
}

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Host:                "127.0.0.1",
		Port:                "5000",
		RequestTimeout:      5 * time.Second,
		ImageFetchTimeout:   time.Second,
		MaxRequestBodySize:  1 << 20,
		ConfusionMatrixPath: filepath.Join(dir, "confusion_matrix.bin"),
		HistoryDBPath:       filepath.Join(dir, "predictions.db"),
		GrayscaleThreshold:  10,
		GrayscaleRatio:      0.5,
		OracleAgreementOdds: 0.75,
		CORSAllowedOrigins:  []string{"*"},
	}
}

func TestNewContainer_WiresHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	model := &stubClassifier{}

	c, err := newContainer(testConfig(t), model)
	if err != nil {
		t.Fatalf("newContainer failed: %v", err)
	}
	if c.history == nil {
		t.Error("Expected SQLite history to be wired")
	}

	for _, path := range []string{"/health", "/api/confusion-matrix", "/api/predictions", "/metrics"} {
		rec := httptest.NewRecorder()
		c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, rec.Code)
		}
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if !model.closed {
		t.Error("Expected classifier to be closed")
	}
}

func TestNewContainer_InvalidOdds(t *testing.T) {
	cfg := testConfig(t)
	cfg.OracleAgreementOdds = 2
	model := &stubClassifier{}

	if _, err := newContainer(cfg, model); err == nil {
		t.Error("Expected error for odds outside [0, 1]")
	}
	if !model.closed {
		t.Error("Expected classifier to be released on failure")
	}
}
