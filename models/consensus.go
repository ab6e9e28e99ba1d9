package models

import (
	"time"

	"github.com/google/uuid"
)

// ValidatorStake is a registered validator's membership record. Created
// on registration and mutated only by the round coordinator after a
// successful per-transaction validation.
type ValidatorStake struct {
	PublicKey       string    `json:"public_key"`
	StakeAmount     uint64    `json:"stake_amount"`
	LastValidation  time.Time `json:"last_validation"`
	ValidationCount uint64    `json:"validation_count"`
}

// ConsensusPhase is a stage of the round state machine.
type ConsensusPhase string

const (
	PhasePrePrepare ConsensusPhase = "pre_prepare"
	PhasePrepare    ConsensusPhase = "prepare"
	PhaseCommit     ConsensusPhase = "commit"
	PhaseFinalize   ConsensusPhase = "finalize"
)

// RoundMetrics is written only by the coordinator at Finalize.
type RoundMetrics struct {
	TransactionsProcessed int           `json:"transactions_processed"`
	Duration              time.Duration `json:"duration"`
	TPS                   float64       `json:"tps"`
	ConflictsResolved     int           `json:"conflicts_resolved"`
}

// ConsensusRoundData is the persistable summary of a finished round,
// archived through the storage collaborator at Finalize.
type ConsensusRoundData struct {
	RoundNumber uint64       `json:"round_number"`
	StartTime   time.Time    `json:"start_time"`
	EndTime     time.Time    `json:"end_time"`
	Algorithm   string       `json:"algorithm"`
	Validators  []string     `json:"validators"`
	Conflicts   []Conflict   `json:"conflicts"`
	Metrics     RoundMetrics `json:"metrics"`
}

// BatchStatus is the per-batch validation outcome.
type BatchStatus string

const (
	BatchSuccess BatchStatus = "success"
	BatchPartial BatchStatus = "partial"
	BatchFailed  BatchStatus = "failed"
)

// TransactionBatch is a bounded, priority-ordered slice of pending
// transactions assigned to exactly one worker. Ephemeral, never
// persisted individually.
type TransactionBatch struct {
	ID           uuid.UUID      `json:"id"`
	Transactions []*Transaction `json:"transactions"`
	CreatedAt    time.Time      `json:"created_at"`
	Priority     float64        `json:"priority"`
}

// ValidationResult is produced by exactly one worker per batch.
type ValidationResult struct {
	BatchID      uuid.UUID     `json:"batch_id"`
	Status       BatchStatus   `json:"status"`
	ValidatedIDs []uuid.UUID   `json:"validated_ids"`
	Elapsed      time.Duration `json:"elapsed"`
	WorkerID     int           `json:"worker_id"`
}
