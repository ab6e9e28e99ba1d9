package consensus

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dagledger/dag"
	"dagledger/errs"
	"dagledger/logger"
	"dagledger/models"
)

// VoteStrategy draws a single binary vote for a conflict candidate. The
// default coin flip is a placeholder draw; a stake-weighted or
// quorum-query implementation can replace it without touching the
// resolver's control flow.
type VoteStrategy interface {
	Vote(candidate uuid.UUID) bool
}

// CoinFlip votes uniformly at random.
type CoinFlip struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewCoinFlip() *CoinFlip {
	var seed [8]byte
	if _, err := crand.Read(seed[:]); err != nil {
		// crypto/rand failing leaves only the zero seed; voting stays
		// functional, just predictable.
		logger.Logger.Warn("coin flip seeding failed", zap.Error(err))
	}
	return &CoinFlip{rnd: rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(seed[:]))))}
}

func (c *CoinFlip) Vote(uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rnd.Intn(2) == 1
}

// Resolver settles conflicts with FPC-style iterative voting. It
// operates only on unresolved conflicts attached to the active round.
type Resolver struct {
	store     *dag.Store
	strategy  VoteStrategy
	rounds    int
	threshold float64
}

func NewResolver(store *dag.Store, strategy VoteStrategy, rounds int, threshold float64) *Resolver {
	if rounds < 1 {
		rounds = 1
	}
	return &Resolver{store: store, strategy: strategy, rounds: rounds, threshold: threshold}
}

// Resolve runs the configured voting rounds over the conflict's
// candidates. A candidate whose vote share reaches the threshold wins:
// it is confirmed (idempotently) and every other candidate is rejected.
// Without a winner the conflict stays unresolved for a later round.
// Re-resolving a resolved conflict is an error.
func (r *Resolver) Resolve(conflict *models.Conflict) (bool, error) {
	if conflict.Resolved {
		return false, errors.Wrap(errs.ErrConflictResolution, "conflict already resolved")
	}

	votes := make(map[uuid.UUID]int, len(conflict.TransactionIDs))
	for i := 0; i < r.rounds; i++ {
		for _, id := range conflict.TransactionIDs {
			if r.strategy.Vote(id) {
				votes[id]++
			}
		}
	}

	winner := uuid.Nil
	for _, id := range conflict.TransactionIDs {
		if float64(votes[id])/float64(r.rounds) >= r.threshold {
			winner = id
			break
		}
	}
	if winner == uuid.Nil {
		return false, nil
	}

	// Winner first: if its confirmation fails the conflict must stay
	// unresolved with no candidate rejected.
	if err := r.store.Confirm(winner); err != nil {
		return false, errors.Wrap(errs.ErrConflictResolution, err.Error())
	}
	for _, id := range conflict.TransactionIDs {
		if id == winner {
			continue
		}
		if err := r.store.Reject(id); err != nil {
			return false, errors.Wrap(errs.ErrConflictResolution, err.Error())
		}
	}

	conflict.Resolved = true
	logger.Logger.Info("conflict resolved",
		zap.String("type", string(conflict.Type)),
		zap.String("winner", winner.String()),
		zap.Int("candidates", len(conflict.TransactionIDs)))
	return true, nil
}

// ResolveAll attempts every unresolved conflict and returns how many
// were settled. Individual failures are logged, not fatal.
func (r *Resolver) ResolveAll(conflicts []*models.Conflict) int {
	resolved := 0
	for _, c := range conflicts {
		if c.Resolved {
			continue
		}
		ok, err := r.Resolve(c)
		if err != nil {
			logger.Logger.Error("conflict resolution failed", zap.Error(err))
			continue
		}
		if ok {
			resolved++
		}
	}
	return resolved
}
