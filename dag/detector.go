package dag

import (
	"dagledger/models"
)

// Detector performs stateless conflict checks against the store. Detect
// never mutates; disposition is the caller's decision.
type Detector struct {
	store *Store
}

func NewDetector(store *Store) *Detector {
	return &Detector{store: store}
}

// Detect reports a conflict for the transaction, or nil:
// an id collision with an existing non-pending transaction is a double
// spend; a declared parent that does not resolve to an existing node is
// an invalid parent (conflict set holds only the transaction itself).
func (d *Detector) Detect(tx *models.Transaction) *models.Conflict {
	if existing, err := d.store.Get(tx.ID); err == nil {
		if existing.Status != models.StatusPending {
			return models.NewConflict(models.ConflictDoubleSpend, tx.ID)
		}
	}

	for _, pid := range tx.Parents() {
		if !d.store.Has(pid) {
			return models.NewConflict(models.ConflictInvalidParent, tx.ID)
		}
	}

	return nil
}
