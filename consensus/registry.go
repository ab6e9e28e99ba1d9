package consensus

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dagledger/errs"
	"dagledger/logger"
	"dagledger/models"
)

// Registry is the stake-weighted validator membership table. Reads do
// not block concurrent reads; writes serialize against everything. The
// core never removes validators; external governance handles that.
type Registry struct {
	mu         sync.RWMutex
	validators map[string]*models.ValidatorStake
	minStake   uint64
}

func NewRegistry(minStake uint64) *Registry {
	return &Registry{
		validators: make(map[string]*models.ValidatorStake),
		minStake:   minStake,
	}
}

// Register inserts or updates a validator. Stakes below the minimum are
// rejected and no entry is created.
func (r *Registry) Register(publicKey string, stake uint64) error {
	if stake < r.minStake {
		return errors.Wrapf(errs.ErrInsufficientStake,
			"stake %d is below minimum %d", stake, r.minStake)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[publicKey] = &models.ValidatorStake{
		PublicKey:   publicKey,
		StakeAmount: stake,
	}
	logger.Logger.Info("validator registered",
		zap.String("public_key", publicKey), zap.Uint64("stake", stake))
	return nil
}

// Get returns a copy of the validator record, or nil when unregistered.
func (r *Registry) Get(publicKey string) *models.ValidatorStake {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.validators[publicKey]
	if !ok {
		return nil
	}
	copied := *v
	return &copied
}

// RecordValidation bumps the sender's validation count and refreshes its
// last-validation time. Unregistered senders are ignored.
func (r *Registry) RecordValidation(publicKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.validators[publicKey]; ok {
		v.ValidationCount++
		v.LastValidation = time.Now().UTC()
	}
}

// Keys returns the registered public keys in stable order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.validators))
	for k := range r.validators {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Count returns the number of registered validators.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.validators)
}

// TotalStake sums all registered stake.
func (r *Registry) TotalStake() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total uint64
	for _, v := range r.validators {
		total += v.StakeAmount
	}
	return total
}
