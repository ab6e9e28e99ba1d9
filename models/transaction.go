package models

import (
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"dagledger/errs"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TransactionStatus tracks a transaction through the ledger. Transitions
// are one-way: Pending -> {Validated|Rejected|Confirmed}, Validated ->
// {Confirmed|Rejected}. The DAG store enforces this.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusValidated TransactionStatus = "validated"
	StatusConfirmed TransactionStatus = "confirmed"
	StatusRejected  TransactionStatus = "rejected"
)

// Transaction is a node payload in the DAG ledger. Parent1/Parent2 are
// the DAG edges; signature and proof bytes are opaque to the core until
// the crypto and proof collaborators check them.
type Transaction struct {
	ID        uuid.UUID           `json:"id"`
	Timestamp time.Time           `json:"timestamp"`
	Sender    string              `json:"sender"`
	Recipient string              `json:"recipient"`
	Amount    uint64              `json:"amount"`
	Fee       uint64              `json:"fee"`
	Parent1   *uuid.UUID          `json:"parent1,omitempty"`
	Parent2   *uuid.UUID          `json:"parent2,omitempty"`
	Status    TransactionStatus   `json:"status"`
	Signature []byte              `json:"signature,omitempty"`
	Proof     []byte              `json:"proof,omitempty"`
	Metadata  jsoniter.RawMessage `json:"metadata,omitempty"`
}

// NewTransaction builds a pending transaction with a fresh id.
func NewTransaction(sender, recipient string, amount, fee uint64, parent1, parent2 *uuid.UUID) *Transaction {
	return &Transaction{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Fee:       fee,
		Parent1:   parent1,
		Parent2:   parent2,
		Status:    StatusPending,
	}
}

// SigningPayload serializes every field that the signature covers, i.e.
// everything except the signature and proof bytes themselves.
func (t *Transaction) SigningPayload() ([]byte, error) {
	payload := struct {
		ID        uuid.UUID           `json:"id"`
		Timestamp time.Time           `json:"timestamp"`
		Sender    string              `json:"sender"`
		Recipient string              `json:"recipient"`
		Amount    uint64              `json:"amount"`
		Fee       uint64              `json:"fee"`
		Parent1   *uuid.UUID          `json:"parent1"`
		Parent2   *uuid.UUID          `json:"parent2"`
		Metadata  jsoniter.RawMessage `json:"metadata"`
	}{t.ID, t.Timestamp, t.Sender, t.Recipient, t.Amount, t.Fee, t.Parent1, t.Parent2, t.Metadata}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(errs.ErrSerialization, err.Error())
	}
	return data, nil
}

// ValidateStructure rejects malformed transactions before they touch
// graph state.
func (t *Transaction) ValidateStructure() error {
	if t.Amount == 0 {
		return errors.Wrap(errs.ErrTransactionValidation, "amount cannot be zero")
	}
	if t.Fee == 0 {
		return errors.Wrap(errs.ErrTransactionValidation, "fee cannot be zero")
	}
	if t.Sender == t.Recipient {
		return errors.Wrap(errs.ErrTransactionValidation, "sender and recipient cannot be the same")
	}
	return nil
}

// ReadyForValidation reports whether a worker may attempt validation:
// still pending, signed, and carrying a proof.
func (t *Transaction) ReadyForValidation() bool {
	return t.Status == StatusPending && len(t.Signature) > 0 && len(t.Proof) > 0
}

// Parents returns the declared parent ids, skipping absent slots.
func (t *Transaction) Parents() []uuid.UUID {
	var parents []uuid.UUID
	if t.Parent1 != nil {
		parents = append(parents, *t.Parent1)
	}
	if t.Parent2 != nil {
		parents = append(parents, *t.Parent2)
	}
	return parents
}
