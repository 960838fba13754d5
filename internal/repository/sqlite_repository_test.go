package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go-ultrasound-classifier/pkg/models"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "history", "predictions.db"))
	if err != nil {
		t.Fatalf("Failed to open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository_SaveAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	record := &models.PredictionRecord{
		Filename:       "scan.png",
		Predicted:      models.Infected,
		Confidence:     0.9,
		SyntheticTruth: models.Healthy,
	}
	if err := repo.SavePrediction(ctx, record); err != nil {
		t.Fatalf("SavePrediction failed: %v", err)
	}
	if record.ID == "" {
		t.Fatal("Expected an id to be assigned")
	}
	if record.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be assigned")
	}
	if record.Source != models.SourceUpload {
		t.Errorf("Expected default source upload, got %s", record.Source)
	}

	got, err := repo.GetPrediction(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetPrediction failed: %v", err)
	}
	if got.Predicted != models.Infected || got.SyntheticTruth != models.Healthy {
		t.Errorf("Unexpected labels %s/%s", got.Predicted, got.SyntheticTruth)
	}
	if got.Filename != "scan.png" || got.Confidence != 0.9 {
		t.Errorf("Unexpected record %+v", got)
	}
	if !got.CreatedAt.Equal(record.CreatedAt) {
		t.Errorf("Expected CreatedAt %v, got %v", record.CreatedAt, got.CreatedAt)
	}
}

func TestSQLiteRepository_GetMissing(t *testing.T) {
	repo := newTestRepository(t)
	if _, err := repo.GetPrediction(context.Background(), "nope"); !errors.Is(err, ErrPredictionNotFound) {
		t.Errorf("Expected ErrPredictionNotFound, got %v", err)
	}
}

func TestSQLiteRepository_InvalidRecord(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.SavePrediction(ctx, nil); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord for nil, got %v", err)
	}
	bad := &models.PredictionRecord{Predicted: models.Label(7)}
	if err := repo.SavePrediction(ctx, bad); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord for bad label, got %v", err)
	}
}

func TestSQLiteRepository_ListAndTally(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pairs := []struct{ predicted, truth models.Label }{
		{models.Healthy, models.Healthy},
		{models.Healthy, models.Healthy},
		{models.Healthy, models.Infected},
		{models.Infected, models.Infected},
		{models.Infected, models.Healthy},
		{models.Infected, models.Infected},
		{models.Infected, models.Infected},
	}
	for i, p := range pairs {
		err := repo.SavePrediction(ctx, &models.PredictionRecord{
			Predicted:      p.predicted,
			SyntheticTruth: p.truth,
			Confidence:     0.8,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("SavePrediction %d failed: %v", i, err)
		}
	}

	recent, err := repo.ListPredictions(ctx, 3)
	if err != nil {
		t.Fatalf("ListPredictions failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(recent))
	}
	if !recent[0].CreatedAt.Equal(base.Add(6 * time.Minute)) {
		t.Errorf("Expected newest record first, got %v", recent[0].CreatedAt)
	}

	all, err := repo.ListPredictions(ctx, 0)
	if err != nil {
		t.Fatalf("ListPredictions failed: %v", err)
	}
	if len(all) != len(pairs) {
		t.Errorf("Expected %d records, got %d", len(pairs), len(all))
	}

	tally, err := repo.TallyPairs(ctx)
	if err != nil {
		t.Fatalf("TallyPairs failed: %v", err)
	}
	want := [2][2]uint64{{2, 1}, {1, 3}}
	if tally != want {
		t.Errorf("Expected tally %v, got %v", want, tally)
	}
}

func TestSQLiteRepository_ListOrdersWithinASecond(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	second := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stamps := []time.Time{
		second.Add(-500 * time.Millisecond),
		second,
		second.Add(250 * time.Millisecond),
		second.Add(time.Second),
	}
	for i, at := range stamps {
		err := repo.SavePrediction(ctx, &models.PredictionRecord{
			Predicted:      models.Healthy,
			SyntheticTruth: models.Healthy,
			CreatedAt:      at,
		})
		if err != nil {
			t.Fatalf("SavePrediction %d failed: %v", i, err)
		}
	}

	got, err := repo.ListPredictions(ctx, 0)
	if err != nil {
		t.Fatalf("ListPredictions failed: %v", err)
	}
	if len(got) != len(stamps) {
		t.Fatalf("Expected %d records, got %d", len(stamps), len(got))
	}
	for i, rec := range got {
		want := stamps[len(stamps)-1-i]
		if !rec.CreatedAt.Equal(want) {
			t.Errorf("Position %d: expected %v, got %v", i, want, rec.CreatedAt)
		}
	}
}
