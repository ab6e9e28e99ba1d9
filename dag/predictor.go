package dag

import (
	"time"

	"dagledger/models"
)

// ConflictPredictor estimates the probability that a transaction will
// end up in a conflict, feeding the priority score. Pluggable so a real
// model can replace the heuristic.
type ConflictPredictor interface {
	PredictConflict(tx *models.Transaction) float64
}

// HeuristicPredictor dampens a base rate by fee and age: higher fees and
// fresher transactions conflict less often.
type HeuristicPredictor struct {
	BaseProbability float64
}

func (p HeuristicPredictor) PredictConflict(tx *models.Transaction) float64 {
	base := p.BaseProbability
	if base == 0 {
		base = 0.1
	}
	feeFactor := 1.0 / (float64(tx.Fee) + 1.0)
	age := time.Since(tx.Timestamp).Seconds()
	if age < 0 {
		age = 0
	}
	ageFactor := 1.0 / (age + 1.0)
	return base * feeFactor * ageFactor
}
