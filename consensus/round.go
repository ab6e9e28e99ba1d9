package consensus

import (
	"time"

	"github.com/pkg/errors"

	"dagledger/errs"
	"dagledger/models"
)

// Algorithm tags the consensus variant chosen at round start. Only the
// PrePrepare->Prepare->Commit->Finalize sequence has concrete semantics;
// the variants are recorded on the round and select the same path.
type Algorithm string

const (
	AlgorithmHotStuff Algorithm = "hotstuff"
	AlgorithmBFT      Algorithm = "bft"
	AlgorithmHybrid   Algorithm = "hybrid"
	AlgorithmAdaptive Algorithm = "adaptive"
)

// ParseAlgorithm maps a config tag to an Algorithm, defaulting to hybrid.
func ParseAlgorithm(tag string) Algorithm {
	switch Algorithm(tag) {
	case AlgorithmHotStuff, AlgorithmBFT, AlgorithmHybrid, AlgorithmAdaptive:
		return Algorithm(tag)
	default:
		return AlgorithmHybrid
	}
}

// phaseOrder drives the state machine; each phase may only advance to
// its immediate successor.
var phaseOrder = map[models.ConsensusPhase]models.ConsensusPhase{
	models.PhasePrePrepare: models.PhasePrepare,
	models.PhasePrepare:    models.PhaseCommit,
	models.PhaseCommit:     models.PhaseFinalize,
}

// Round is the explicitly owned state-machine value for one consensus
// round. The coordinator is its sole writer.
type Round struct {
	Number     uint64
	StartTime  time.Time
	EndTime    time.Time
	Phase      models.ConsensusPhase
	Algorithm  Algorithm
	Validators []string
	Batches    []*models.TransactionBatch
	Conflicts  []*models.Conflict
	Metrics    models.RoundMetrics
}

func newRound(number uint64, duration time.Duration, algorithm Algorithm, validators []string, carried []*models.Conflict) *Round {
	now := time.Now()
	return &Round{
		Number:     number,
		StartTime:  now,
		EndTime:    now.Add(duration),
		Phase:      models.PhasePrePrepare,
		Algorithm:  algorithm,
		Validators: validators,
		Conflicts:  carried,
	}
}

// Ended reports whether the round window [start, end) has closed.
func (r *Round) Ended(now time.Time) bool {
	return !now.Before(r.EndTime)
}

// advance moves the round to the next phase, rejecting skips and
// regressions.
func (r *Round) advance(next models.ConsensusPhase) error {
	if phaseOrder[r.Phase] != next {
		return errors.Wrapf(errs.ErrConsensus,
			"illegal phase transition %s -> %s in round %d", r.Phase, next, r.Number)
	}
	r.Phase = next
	return nil
}

// Data builds the persistable summary of the round.
func (r *Round) Data() *models.ConsensusRoundData {
	conflicts := make([]models.Conflict, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		conflicts = append(conflicts, *c)
	}
	validators := make([]string, len(r.Validators))
	copy(validators, r.Validators)
	return &models.ConsensusRoundData{
		RoundNumber: r.Number,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Algorithm:   string(r.Algorithm),
		Validators:  validators,
		Conflicts:   conflicts,
		Metrics:     r.Metrics,
	}
}
