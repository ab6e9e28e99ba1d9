package dag

import (
	"bytes"
	"math"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dagledger/errs"
	"dagledger/logger"
	"dagledger/models"
)

// Config tunes the graph store and tip selection.
type Config struct {
	MaxTips           int
	TipShards         int
	FeeWeight         float64
	ConflictWeight    float64
	RecencyWeight     float64
	AmountWeight      float64
	PredictiveCaching bool
}

// DefaultConfig mirrors the config package defaults for direct embedding.
func DefaultConfig() Config {
	return Config{
		MaxTips:           10000,
		TipShards:         8,
		FeeWeight:         10.0,
		ConflictWeight:    100.0,
		RecencyWeight:     50.0,
		AmountWeight:      20.0,
		PredictiveCaching: true,
	}
}

// node wraps a transaction with its graph bookkeeping. Nodes are owned
// exclusively by the Store; accessors hand out copies.
type node struct {
	tx          *models.Transaction
	children    map[uuid.UUID]struct{}
	weight      uint64
	priority    float64
	validatedAt *time.Time
}

// Statistics is a point-in-time census of the ledger.
type Statistics struct {
	TotalTransactions     int `json:"total_transactions"`
	PendingTransactions   int `json:"pending_transactions"`
	ValidatedTransactions int `json:"validated_transactions"`
	ConfirmedTransactions int `json:"confirmed_transactions"`
	TipsCount             int `json:"tips_count"`
}

// Store is the concurrent DAG of transaction nodes with a
// priority-ordered pending queue and a recomputed tip cache.
type Store struct {
	mu        sync.RWMutex
	nodes     map[uuid.UUID]*node
	pending   []uuid.UUID // descending priority order
	validated mapset.Set
	confirmed mapset.Set
	tipCache  []uuid.UUID
	cfg       Config
	predictor ConflictPredictor
}

// NewStore builds an empty store. A nil predictor disables the
// conflict-probability term of the priority score.
func NewStore(cfg Config, predictor ConflictPredictor) *Store {
	if cfg.TipShards < 1 {
		cfg.TipShards = 1
	}
	return &Store{
		nodes:     make(map[uuid.UUID]*node),
		validated: mapset.NewSet(),
		confirmed: mapset.NewSet(),
		cfg:       cfg,
		predictor: predictor,
	}
}

// priorityScore combines fee, predicted conflict probability, recency
// and amount with the configured weights.
func (s *Store) priorityScore(tx *models.Transaction) float64 {
	conflictProb := 0.0
	if s.cfg.PredictiveCaching && s.predictor != nil {
		conflictProb = s.predictor.PredictConflict(tx)
	}

	age := time.Since(tx.Timestamp).Seconds()
	if age < 0 {
		age = 0
	}
	recency := 1.0 / (age + 1.0)

	return s.cfg.FeeWeight*float64(tx.Fee) +
		s.cfg.ConflictWeight*(1.0-conflictProb) +
		s.cfg.RecencyWeight*recency +
		s.cfg.AmountWeight*math.Log10(float64(tx.Amount))
}

// Insert validates the transaction structurally, stores it, places it in
// the pending queue preserving descending-priority order, and registers
// back-references on any parents that already exist.
func (s *Store) Insert(tx *models.Transaction) error {
	if err := tx.ValidateStructure(); err != nil {
		return err
	}

	score := s.priorityScore(tx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[tx.ID]; ok {
		return errors.Wrapf(errs.ErrInvalidDAG, "node %s already exists", tx.ID)
	}

	n := &node{
		tx:       tx,
		children: make(map[uuid.UUID]struct{}),
		priority: score,
	}
	s.nodes[tx.ID] = n

	// First position whose score is lower; append if none found.
	pos := len(s.pending)
	for i, pid := range s.pending {
		if s.nodes[pid].priority < score {
			pos = i
			break
		}
	}
	s.pending = append(s.pending, uuid.Nil)
	copy(s.pending[pos+1:], s.pending[pos:])
	s.pending[pos] = tx.ID

	for _, pid := range tx.Parents() {
		parent, ok := s.nodes[pid]
		if !ok {
			// The detector reports this as an InvalidParent conflict;
			// insertion itself proceeds.
			logger.Logger.Warn("parent missing during insert",
				zap.String("node_id", tx.ID.String()),
				zap.String("parent_id", pid.String()))
			continue
		}
		parent.children[tx.ID] = struct{}{}
		parent.weight++
	}

	return nil
}

// Get returns a copy of the transaction; ErrNodeNotFound for unknown ids.
func (s *Store) Get(id uuid.UUID) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, errors.Wrapf(errs.ErrNodeNotFound, "%s", id)
	}
	tx := *n.tx
	return &tx, nil
}

// Has reports whether the node exists.
func (s *Store) Has(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[id]
	return ok
}

// ChildrenOf returns the ids of nodes referencing id as a parent.
func (s *Store) ChildrenOf(id uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, errors.Wrapf(errs.ErrNodeNotFound, "%s", id)
	}
	children := make([]uuid.UUID, 0, len(n.children))
	for cid := range n.children {
		children = append(children, cid)
	}
	sort.Slice(children, func(i, j int) bool {
		return bytes.Compare(children[i][:], children[j][:]) < 0
	})
	return children, nil
}

// WeightOf returns a node's approval weight, bumped once per child
// inserted on top of it.
func (s *Store) WeightOf(id uuid.UUID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return 0, errors.Wrapf(errs.ErrNodeNotFound, "%s", id)
	}
	return n.weight, nil
}

// PendingTransactions snapshots the pending queue, highest priority
// first, as transaction copies.
func (s *Store) PendingTransactions() []*models.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Transaction, 0, len(s.pending))
	for _, id := range s.pending {
		tx := *s.nodes[id].tx
		out = append(out, &tx)
	}
	return out
}

// allowedTransitions encodes the one-way status lattice. Pending may be
// confirmed directly by the conflict resolver.
var allowedTransitions = map[models.TransactionStatus]map[models.TransactionStatus]bool{
	models.StatusPending: {
		models.StatusValidated: true,
		models.StatusConfirmed: true,
		models.StatusRejected:  true,
	},
	models.StatusValidated: {
		models.StatusConfirmed: true,
		models.StatusRejected:  true,
	},
}

// TransitionStatus atomically moves a transaction from one status to
// another. It returns false when the node is unknown, the current status
// differs from the expected one, or the transition is not allowed.
// Overlapping resolver invocations on the same conflict therefore cannot
// both win.
func (s *Store) TransitionStatus(id uuid.UUID, from, to models.TransactionStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(id, from, to)
}

func (s *Store) transitionLocked(id uuid.UUID, from, to models.TransactionStatus) bool {
	n, ok := s.nodes[id]
	if !ok || n.tx.Status != from || !allowedTransitions[from][to] {
		return false
	}
	n.tx.Status = to

	switch to {
	case models.StatusValidated:
		now := time.Now()
		n.validatedAt = &now
		s.validated.Add(id)
		s.removePendingLocked(id)
	case models.StatusConfirmed:
		s.confirmed.Add(id)
		s.validated.Remove(id)
		s.removePendingLocked(id)
	case models.StatusRejected:
		s.validated.Remove(id)
		s.removePendingLocked(id)
	}
	return true
}

func (s *Store) removePendingLocked(id uuid.UUID) {
	for i, pid := range s.pending {
		if pid == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// Confirm marks a transaction Confirmed. Confirming an already-Confirmed
// transaction is a no-op; confirming a Rejected one is an integrity
// violation.
func (s *Store) Confirm(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return errors.Wrapf(errs.ErrNodeNotFound, "%s", id)
	}
	switch n.tx.Status {
	case models.StatusConfirmed:
		return nil
	case models.StatusRejected:
		return errors.Wrapf(errs.ErrInvalidDAG, "cannot confirm rejected transaction %s", id)
	default:
		s.transitionLocked(id, n.tx.Status, models.StatusConfirmed)
		return nil
	}
}

// Reject marks a transaction Rejected. Rejection is terminal and
// idempotent; rejecting a Confirmed transaction is an integrity
// violation.
func (s *Store) Reject(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return errors.Wrapf(errs.ErrNodeNotFound, "%s", id)
	}
	switch n.tx.Status {
	case models.StatusRejected:
		return nil
	case models.StatusConfirmed:
		return errors.Wrapf(errs.ErrInvalidDAG, "cannot reject confirmed transaction %s", id)
	default:
		s.transitionLocked(id, n.tx.Status, models.StatusRejected)
		return nil
	}
}

type tipEntry struct {
	id       uuid.UUID
	priority float64
}

// Tips recomputes the tip set: nodes that are not Confirmed and whose
// children are empty or all Confirmed. Shards are scanned in parallel
// and merged into one priority-then-id ordered result, truncated to
// MaxTips with the lowest-priority entries dropped first. The result
// also refreshes the tip cache.
func (s *Store) Tips() []uuid.UUID {
	s.mu.RLock()

	ids := make([]uuid.UUID, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}

	shards := s.cfg.TipShards
	partial := make([][]tipEntry, shards)
	var wg sync.WaitGroup
	for w := 0; w < shards; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			var local []tipEntry
			for i := w; i < len(ids); i += shards {
				n := s.nodes[ids[i]]
				if s.isTipLocked(n) {
					local = append(local, tipEntry{id: ids[i], priority: n.priority})
				}
			}
			partial[w] = local
		}(w)
	}
	wg.Wait()
	s.mu.RUnlock()

	var merged []tipEntry
	for _, local := range partial {
		merged = append(merged, local...)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].priority != merged[j].priority {
			return merged[i].priority > merged[j].priority
		}
		return bytes.Compare(merged[i].id[:], merged[j].id[:]) < 0
	})
	if len(merged) > s.cfg.MaxTips {
		merged = merged[:s.cfg.MaxTips]
	}

	tips := make([]uuid.UUID, len(merged))
	for i, e := range merged {
		tips[i] = e.id
	}

	s.mu.Lock()
	s.tipCache = tips
	s.mu.Unlock()

	return tips
}

func (s *Store) isTipLocked(n *node) bool {
	if n.tx.Status == models.StatusConfirmed {
		return false
	}
	for cid := range n.children {
		child, ok := s.nodes[cid]
		if !ok || child.tx.Status != models.StatusConfirmed {
			return false
		}
	}
	return true
}

// CachedTips returns the tip cache from the last recomputation.
func (s *Store) CachedTips() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uuid.UUID, len(s.tipCache))
	copy(out, s.tipCache)
	return out
}

// Statuses snapshots every transaction's status, used for pre/post state
// comparisons.
func (s *Store) Statuses() map[uuid.UUID]models.TransactionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]models.TransactionStatus, len(s.nodes))
	for id, n := range s.nodes {
		out[id] = n.tx.Status
	}
	return out
}

// Statistics reports the ledger census. Tip count reflects the cache.
func (s *Store) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Statistics{
		TotalTransactions:     len(s.nodes),
		PendingTransactions:   len(s.pending),
		ValidatedTransactions: s.validated.Cardinality(),
		ConfirmedTransactions: s.confirmed.Cardinality(),
		TipsCount:             len(s.tipCache),
	}
}
