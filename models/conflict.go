package models

import (
	"time"

	"github.com/google/uuid"
)

// ConflictType classifies a detected inconsistency blocking confirmation.
type ConflictType string

const (
	ConflictDoubleSpend       ConflictType = "double_spend"
	ConflictInvalidParent     ConflictType = "invalid_parent"
	ConflictInsufficientStake ConflictType = "insufficient_stake"
	ConflictInvalidProof      ConflictType = "invalid_proof"
)

// Conflict is scoped to a round but carried forward to the next one if
// unresolved; it is never silently dropped.
type Conflict struct {
	TransactionIDs []uuid.UUID  `json:"transaction_ids"`
	Type           ConflictType `json:"type"`
	DetectedAt     time.Time    `json:"detected_at"`
	Resolved       bool         `json:"resolved"`
}

// NewConflict deduplicates the candidate set while preserving order.
func NewConflict(conflictType ConflictType, ids ...uuid.UUID) *Conflict {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	unique := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return &Conflict{
		TransactionIDs: unique,
		Type:           conflictType,
		DetectedAt:     time.Now().UTC(),
	}
}
