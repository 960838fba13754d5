// Package oracle generates synthetic "true" labels for the demo confusion
// matrix. Nothing here is ground truth: the values are random and only echo
// the classifier's own verdict with a configured probability.
package oracle

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go-ultrasound-classifier/pkg/models"
)

// DefaultAgreementOdds is the probability that the synthetic truth matches
// the prediction.
const DefaultAgreementOdds = 0.75

// SyntheticOracle produces a stand-in truth label for a prediction. Results
// must never be reported as real accuracy.
type SyntheticOracle interface {
	SyntheticTruth(predicted models.Label) models.Label
}

// RandomizedOracle agrees with the prediction with probability odds and
// otherwise returns the other label.
type RandomizedOracle struct {
	mu   sync.Mutex
	rng  *rand.Rand
	odds float64
}

// NewRandomizedOracle seeds from the clock.
func NewRandomizedOracle(odds float64) (*RandomizedOracle, error) {
	return NewRandomizedOracleWithSource(odds, rand.NewSource(time.Now().UnixNano()))
}

// NewRandomizedOracleWithSource uses src, which lets tests fix the sequence.
func NewRandomizedOracleWithSource(odds float64, src rand.Source) (*RandomizedOracle, error) {
	if !(odds >= 0 && odds <= 1) {
		return nil, fmt.Errorf("agreement odds must be within [0, 1], got %g", odds)
	}
	if src == nil {
		return nil, fmt.Errorf("random source is required")
	}
	return &RandomizedOracle{rng: rand.New(src), odds: odds}, nil
}

// Odds returns the configured agreement probability.
func (o *RandomizedOracle) Odds() float64 {
	return o.odds
}

func (o *RandomizedOracle) SyntheticTruth(predicted models.Label) models.Label {
	o.mu.Lock()
	draw := o.rng.Float64()
	o.mu.Unlock()

	if draw < o.odds {
		return predicted
	}
	return predicted.Other()
}
