package errs

import "github.com/pkg/errors"

// Sentinel errors for the ledger core. Callers classify with errors.Is;
// context is attached at the failure site with errors.Wrap/Wrapf so the
// sentinel stays matchable through the chain.
var (
	// ErrTransactionValidation covers malformed transaction structure.
	ErrTransactionValidation = errors.New("transaction validation failed")

	// ErrConsensus covers illegal round-lifecycle calls: starting a round
	// while one is active, or validating after the round window closed.
	ErrConsensus = errors.New("consensus error")

	// ErrInsufficientStake is returned when a validator registers below
	// the configured minimum.
	ErrInsufficientStake = errors.New("insufficient stake")

	// ErrInvalidDAG covers referential-integrity violations in the graph.
	ErrInvalidDAG = errors.New("invalid DAG structure")

	// ErrNodeNotFound is returned by graph accessors for unknown ids.
	ErrNodeNotFound = errors.New("node not found")

	// ErrConflictResolution is returned when re-resolving an already
	// resolved conflict.
	ErrConflictResolution = errors.New("conflict resolution failed")

	// ErrStorage wraps storage collaborator failures.
	ErrStorage = errors.New("storage error")

	// ErrCrypto wraps signature and key failures.
	ErrCrypto = errors.New("cryptographic error")

	// ErrSerialization wraps codec failures.
	ErrSerialization = errors.New("serialization error")
)
