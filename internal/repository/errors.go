package repository

import "errors"

var (
	// ErrPredictionNotFound indicates no record has the requested id
	ErrPredictionNotFound = errors.New("prediction not found")

	// ErrInvalidRecord indicates a record failed validation before insert
	ErrInvalidRecord = errors.New("invalid prediction record")
)
