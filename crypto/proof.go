package crypto

import "dagledger/models"

// ProofVerifier checks a transaction's opaque privacy proof. A failed
// verification means the transaction is not ready for validation, never
// a hard error.
type ProofVerifier interface {
	VerifyProof(tx *models.Transaction, proof []byte) bool
}

// AcceptProofs accepts any non-empty proof. It stands in until a real
// proof system collaborator is supplied.
type AcceptProofs struct{}

func (AcceptProofs) VerifyProof(_ *models.Transaction, proof []byte) bool {
	return len(proof) > 0
}
