package consensus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dagledger/crypto"
	"dagledger/dag"
	"dagledger/errs"
	"dagledger/logger"
	"dagledger/models"
	"dagledger/repository"
)

// Config tunes rounds, batching and conflict resolution.
type Config struct {
	Algorithm       Algorithm
	MinStake        uint64
	RoundDuration   time.Duration
	BatchSize       int
	ParallelWorkers int
	FPCRounds       int
	FPCThreshold    float64

	// Accepted and logged; inert until a matching capability
	// collaborator exists.
	EnableGPU         bool
	EnableQuantumSafe bool
}

func DefaultConfig() Config {
	return Config{
		Algorithm:       AlgorithmHybrid,
		MinStake:        1000,
		RoundDuration:   5 * time.Second,
		BatchSize:       1000,
		ParallelWorkers: 8,
		FPCRounds:       10,
		FPCThreshold:    0.67,
	}
}

// Stats summarizes consensus-wide state for the stats surface.
type Stats struct {
	TotalValidators  int     `json:"total_validators"`
	TotalStake       uint64  `json:"total_stake"`
	CurrentRound     *uint64 `json:"current_round,omitempty"`
	TotalRounds      uint64  `json:"total_rounds"`
	ActiveValidators int     `json:"active_validators"`
}

// PerformanceMetrics aggregates throughput across rounds. Guarded by its
// own lock, independent of round state.
type PerformanceMetrics struct {
	TotalTransactions uint64        `json:"total_transactions"`
	CurrentTPS        float64       `json:"current_tps"`
	PeakTPS           float64       `json:"peak_tps"`
	LastRoundDuration time.Duration `json:"last_round_duration"`
}

// Coordinator drives the round state machine: it owns the single active
// round, partitions the pending queue into batches, fans them to the
// worker pool, aggregates results, settles conflicts and archives the
// round summary. It is the sole writer of round phase and metrics.
type Coordinator struct {
	store    *dag.Store
	detector *dag.Detector
	registry *Registry
	resolver *Resolver
	repo     repository.LedgerRepositoryInterface
	verifier crypto.Verifier
	proofs   crypto.ProofVerifier
	pool     *workerPool
	cfg      Config

	roundMu sync.RWMutex
	current *Round
	counter uint64
	carried []*models.Conflict

	metricsMu sync.RWMutex
	metrics   PerformanceMetrics
}

// NewCoordinator wires the consensus engine. A nil strategy selects the
// default coin-flip voting draw.
func NewCoordinator(
	store *dag.Store,
	registry *Registry,
	repo repository.LedgerRepositoryInterface,
	verifier crypto.Verifier,
	proofs crypto.ProofVerifier,
	strategy VoteStrategy,
	cfg Config,
) *Coordinator {
	if strategy == nil {
		strategy = NewCoinFlip()
	}
	c := &Coordinator{
		store:    store,
		detector: dag.NewDetector(store),
		registry: registry,
		resolver: NewResolver(store, strategy, cfg.FPCRounds, cfg.FPCThreshold),
		repo:     repo,
		verifier: verifier,
		proofs:   proofs,
		cfg:      cfg,
	}
	c.pool = newWorkerPool(cfg.ParallelWorkers, c.validateTransaction)
	if cfg.EnableGPU || cfg.EnableQuantumSafe {
		logger.Logger.Info("optional acceleration flags set without a capability collaborator",
			zap.Bool("gpu", cfg.EnableGPU), zap.Bool("quantum_safe", cfg.EnableQuantumSafe))
	}
	return c
}

// Registry exposes the validator table for the HTTP surface.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// validateTransaction is the per-transaction worker check: readiness,
// signature, privacy proof, and a final conflict sweep. Read-only.
func (c *Coordinator) validateTransaction(tx *models.Transaction) bool {
	if !tx.ReadyForValidation() {
		return false
	}
	payload, err := tx.SigningPayload()
	if err != nil {
		logger.Logger.Error("signing payload failed",
			zap.String("tx_id", tx.ID.String()), zap.Error(err))
		return false
	}
	if err := c.verifier.Verify(tx.Sender, crypto.Hash(payload), tx.Signature); err != nil {
		return false
	}
	// A failed proof means "not ready for validation", not a hard error.
	if !c.proofs.VerifyProof(tx, tx.Proof) {
		return false
	}
	return c.detector.Detect(tx) == nil
}

// StartRound opens a new round. Exactly one round may be active: calling
// it while one is running is a Consensus error; after the previous
// window closed it succeeds and increments the counter by one. Conflicts
// left unresolved by earlier rounds are attached to the new round.
func (c *Coordinator) StartRound() (*Round, error) {
	c.roundMu.Lock()
	defer c.roundMu.Unlock()

	now := time.Now()
	if c.current != nil {
		if !c.current.Ended(now) {
			return nil, errors.Wrapf(errs.ErrConsensus,
				"round %d is still active", c.current.Number)
		}
		// Abandoned round: its conflicts carry forward, never dropped.
		for _, conflict := range c.current.Conflicts {
			if !conflict.Resolved {
				c.carried = append(c.carried, conflict)
			}
		}
	}

	c.counter++
	carried := c.carried
	c.carried = nil
	c.current = newRound(c.counter, c.cfg.RoundDuration, c.cfg.Algorithm, c.registry.Keys(), carried)

	logger.Logger.Info("consensus round started",
		zap.Uint64("round", c.counter),
		zap.String("algorithm", string(c.cfg.Algorithm)),
		zap.Int("validators", len(c.current.Validators)),
		zap.Int("carried_conflicts", len(carried)))
	return c.current, nil
}

// RegisterConflict attaches a detected conflict to the active round, or
// holds it for the next round when none is active.
func (c *Coordinator) RegisterConflict(conflict *models.Conflict) {
	c.roundMu.Lock()
	defer c.roundMu.Unlock()
	if c.current != nil && !c.current.Ended(time.Now()) {
		c.current.Conflicts = append(c.current.Conflicts, conflict)
		return
	}
	c.carried = append(c.carried, conflict)
}

func (c *Coordinator) activeRound() (*Round, error) {
	c.roundMu.RLock()
	defer c.roundMu.RUnlock()
	if c.current == nil {
		return nil, errors.Wrap(errs.ErrConsensus, "no active consensus round")
	}
	if c.current.Ended(time.Now()) {
		return nil, errors.Wrap(errs.ErrConsensus, "consensus round has ended")
	}
	return c.current, nil
}

func (c *Coordinator) advance(round *Round, next models.ConsensusPhase) error {
	c.roundMu.Lock()
	defer c.roundMu.Unlock()
	return round.advance(next)
}

// ValidateTransactions is the sequential validation path: it walks the
// current tips and validates each in place. Called after the round
// window closed it is a Consensus error and mutates nothing.
func (c *Coordinator) ValidateTransactions() (int, error) {
	if _, err := c.activeRound(); err != nil {
		return 0, err
	}

	count := 0
	for _, id := range c.store.Tips() {
		tx, err := c.store.Get(id)
		if err != nil {
			continue
		}
		if !c.validateTransaction(tx) {
			continue
		}
		if c.store.TransitionStatus(id, models.StatusPending, models.StatusValidated) {
			c.registry.RecordValidation(tx.Sender)
			count++
		}
	}
	return count, nil
}

// ExecuteRound drives the active round through its phases: PrePrepare
// partitions the pending queue into batches, Prepare/Commit dispatch
// them to the worker pool, Finalize writes statuses back, resolves
// conflicts, computes metrics and archives the round. The deadline is
// checked at entry only; dispatched batches run to completion, and
// transactions not drained stay pending for the next round.
func (c *Coordinator) ExecuteRound() (*models.ConsensusRoundData, error) {
	round, err := c.activeRound()
	if err != nil {
		return nil, err
	}
	start := time.Now()

	// PrePrepare. Pending queue is read before any round-state lock is
	// taken; DAG store locks always come first.
	pending := c.store.PendingTransactions()
	batches := partitionBatches(pending, c.cfg.BatchSize)
	c.roundMu.Lock()
	round.Batches = batches
	c.roundMu.Unlock()

	if err := c.advance(round, models.PhasePrepare); err != nil {
		return nil, err
	}
	results := c.pool.Run(batches)
	if err := c.advance(round, models.PhaseCommit); err != nil {
		return nil, err
	}

	if err := c.advance(round, models.PhaseFinalize); err != nil {
		return nil, err
	}
	processed := 0
	for _, res := range results {
		for _, id := range res.ValidatedIDs {
			if !c.store.TransitionStatus(id, models.StatusPending, models.StatusValidated) {
				continue
			}
			processed++
			if tx, err := c.store.Get(id); err == nil {
				c.registry.RecordValidation(tx.Sender)
			}
		}
	}

	c.roundMu.RLock()
	conflicts := round.Conflicts
	c.roundMu.RUnlock()
	resolved := c.resolver.ResolveAll(conflicts)

	duration := time.Since(start)
	tps := 0.0
	if duration > 0 {
		tps = float64(processed) / duration.Seconds()
	}

	c.roundMu.Lock()
	round.Metrics = models.RoundMetrics{
		TransactionsProcessed: processed,
		Duration:              duration,
		TPS:                   tps,
		ConflictsResolved:     resolved,
	}
	// If a new round already started it adopted this round's unresolved
	// conflicts; only carry them here while we still own the slot.
	if c.current == round {
		for _, conflict := range round.Conflicts {
			if !conflict.Resolved {
				c.carried = append(c.carried, conflict)
			}
		}
		c.current = nil
	}
	data := round.Data()
	c.roundMu.Unlock()

	if err := c.repo.StoreConsensusRound(data); err != nil {
		return nil, errors.Wrapf(errs.ErrStorage, "archiving round %d: %v", data.RoundNumber, err)
	}

	c.metricsMu.Lock()
	c.metrics.TotalTransactions += uint64(processed)
	c.metrics.CurrentTPS = tps
	if tps > c.metrics.PeakTPS {
		c.metrics.PeakTPS = tps
	}
	c.metrics.LastRoundDuration = duration
	c.metricsMu.Unlock()

	logger.Logger.Info("consensus round finalized",
		zap.Uint64("round", data.RoundNumber),
		zap.Int("processed", processed),
		zap.Int("conflicts_resolved", resolved),
		zap.Duration("duration", duration))
	return data, nil
}

// partitionBatches splits the priority-ordered pending queue into
// fixed-size batches (the final one may be smaller), each carrying the
// mean fee of its transactions as priority.
func partitionBatches(pending []*models.Transaction, size int) []*models.TransactionBatch {
	if size < 1 {
		size = 1
	}
	var batches []*models.TransactionBatch
	for start := 0; start < len(pending); start += size {
		end := start + size
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]
		batches = append(batches, &models.TransactionBatch{
			ID:           uuid.New(),
			Transactions: chunk,
			CreatedAt:    time.Now(),
			Priority:     meanFee(chunk),
		})
	}
	return batches
}

func meanFee(txs []*models.Transaction) float64 {
	if len(txs) == 0 {
		return 0
	}
	var sum uint64
	for _, tx := range txs {
		sum += tx.Fee
	}
	return float64(sum) / float64(len(txs))
}

// RunRounds ticks the round lifecycle until the context is cancelled. A
// failed start or execution is logged and the scheduler proceeds to the
// next tick.
func (c *Coordinator) RunRounds(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			round, err := c.StartRound()
			if err != nil {
				logger.Logger.Warn("round start skipped", zap.Error(err))
				continue
			}
			if _, err := c.ExecuteRound(); err != nil {
				logger.Logger.Error("round execution failed",
					zap.Uint64("round", round.Number), zap.Error(err))
			}
		}
	}
}

// Stats reports consensus-wide counters.
func (c *Coordinator) Stats() Stats {
	c.roundMu.RLock()
	defer c.roundMu.RUnlock()
	stats := Stats{
		TotalValidators: c.registry.Count(),
		TotalStake:      c.registry.TotalStake(),
		TotalRounds:     c.counter,
	}
	if c.current != nil {
		number := c.current.Number
		stats.CurrentRound = &number
		stats.ActiveValidators = len(c.current.Validators)
	}
	return stats
}

// Metrics returns a copy of the performance counters.
func (c *Coordinator) Metrics() PerformanceMetrics {
	c.metricsMu.RLock()
	defer c.metricsMu.RUnlock()
	return c.metrics
}
