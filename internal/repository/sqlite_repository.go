package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go-ultrasound-classifier/internal/logger"
	"go-ultrasound-classifier/pkg/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// MaxListLimit bounds ListPredictions.
const MaxListLimit = 500

// created_at is unix nanoseconds.
const schema = `
CREATE TABLE IF NOT EXISTS predictions (
	id TEXT PRIMARY KEY,
	filename TEXT,
	source TEXT NOT NULL,
	predicted INTEGER NOT NULL,
	confidence REAL NOT NULL,
	synthetic_truth INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);`

// SQLiteRepository stores prediction history in a SQLite file.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies the schema. Use ":memory:" for an in-process database.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// one connection keeps ":memory:" databases shared and writes serialised
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.WithField("path", dbPath).Debug("Prediction history ready")
	return &SQLiteRepository{db: db}, nil
}

// SavePrediction fills in ID and CreatedAt when they are empty.
func (r *SQLiteRepository) SavePrediction(ctx context.Context, record *models.PredictionRecord) error {
	if record == nil || !record.Predicted.Valid() || !record.SyntheticTruth.Valid() {
		return ErrInvalidRecord
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.Source == "" {
		record.Source = models.SourceUpload
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO predictions (id, filename, source, predicted, confidence, synthetic_truth, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Filename, record.Source,
		record.Predicted.Index(), float64(record.Confidence), record.SyntheticTruth.Index(),
		record.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert prediction %s: %w", record.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetPrediction(ctx context.Context, id string) (*models.PredictionRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, filename, source, predicted, confidence, synthetic_truth, created_at
		 FROM predictions WHERE id = ?`, id)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPredictionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get prediction %s: %w", id, err)
	}
	return record, nil
}

func (r *SQLiteRepository) ListPredictions(ctx context.Context, limit int) ([]*models.PredictionRecord, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, filename, source, predicted, confidence, synthetic_truth, created_at
		 FROM predictions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	var out []*models.PredictionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) TallyPairs(ctx context.Context) ([models.NumLabels][models.NumLabels]uint64, error) {
	var tally [models.NumLabels][models.NumLabels]uint64

	rows, err := r.db.QueryContext(ctx,
		`SELECT predicted, synthetic_truth, COUNT(*) FROM predictions GROUP BY predicted, synthetic_truth`)
	if err != nil {
		return tally, fmt.Errorf("tally predictions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var predicted, truth int
		var count uint64
		if err := rows.Scan(&predicted, &truth, &count); err != nil {
			return tally, err
		}
		if predicted < 0 || predicted >= models.NumLabels || truth < 0 || truth >= models.NumLabels {
			logger.WithField("pair", []int{predicted, truth}).Warn("Skipping out-of-range label pair in history")
			continue
		}
		tally[predicted][truth] = count
	}
	return tally, rows.Err()
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.PredictionRecord, error) {
	var (
		record           models.PredictionRecord
		filename         sql.NullString
		predicted, truth int
		confidence       float64
		createdAt        int64
	)
	if err := row.Scan(&record.ID, &filename, &record.Source, &predicted, &confidence, &truth, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if record.Predicted, err = models.LabelFromIndex(predicted); err != nil {
		return nil, err
	}
	if record.SyntheticTruth, err = models.LabelFromIndex(truth); err != nil {
		return nil, err
	}
	record.CreatedAt = time.Unix(0, createdAt).UTC()
	record.Filename = filename.String
	record.Confidence = float32(confidence)
	return &record, nil
}
