package consensus_test

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"dagledger/consensus"
	"dagledger/crypto"
	"dagledger/dag"
	"dagledger/db"
	"dagledger/errs"
	"dagledger/models"
	"dagledger/repository"
)

type engine struct {
	store       *dag.Store
	coordinator *consensus.Coordinator
	repo        *repository.LedgerRepository
	keys        *crypto.KeyPair
}

func newEngine(t *testing.T, mutate func(cfg *consensus.Config), strategy consensus.VoteStrategy) *engine {
	t.Helper()

	ldb, err := db.NewMemoryDB()
	if err != nil {
		t.Fatalf("memory db: %v", err)
	}
	t.Cleanup(func() { ldb.Close() })

	keys, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("key pair: %v", err)
	}

	dagCfg := dag.DefaultConfig()
	dagCfg.PredictiveCaching = false
	store := dag.NewStore(dagCfg, nil)

	cfg := consensus.DefaultConfig()
	cfg.RoundDuration = time.Minute
	cfg.ParallelWorkers = 2
	if mutate != nil {
		mutate(&cfg)
	}

	registry := consensus.NewRegistry(1000)
	repo := repository.NewLedgerRepository(ldb)
	coordinator := consensus.NewCoordinator(store, registry, repo,
		crypto.Ed25519Verifier{}, crypto.AcceptProofs{}, strategy, cfg)
	return &engine{store: store, coordinator: coordinator, repo: repo, keys: keys}
}

// signedTx builds a transaction that passes the full validation check:
// signed over its payload hash and carrying a non-empty proof.
func (e *engine) signedTx(t *testing.T, fee uint64) *models.Transaction {
	t.Helper()
	tx := models.NewTransaction(e.keys.PublicKey(), "bob", 1000, fee, nil, nil)
	payload, err := tx.SigningPayload()
	if err != nil {
		t.Fatalf("signing payload: %v", err)
	}
	tx.Signature = e.keys.Sign(crypto.Hash(payload))
	tx.Proof = []byte{0x01}
	return tx
}

func (e *engine) insert(t *testing.T, tx *models.Transaction) {
	t.Helper()
	if err := e.store.Insert(tx); err != nil {
		t.Fatalf("inserting %s: %v", tx.ID, err)
	}
}

func TestStartRoundWhileActive(t *testing.T) {
	e := newEngine(t, nil, nil)

	round, err := e.coordinator.StartRound()
	if err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if round.Number != 1 {
		t.Fatalf("expected round 1, got %d", round.Number)
	}

	if _, err := e.coordinator.StartRound(); !errors.Is(err, errs.ErrConsensus) {
		t.Fatalf("expected ErrConsensus for overlapping round, got %v", err)
	}
}

func TestStartRoundAfterWindowCloses(t *testing.T) {
	e := newEngine(t, func(cfg *consensus.Config) { cfg.RoundDuration = 0 }, nil)

	first, err := e.coordinator.StartRound()
	if err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	second, err := e.coordinator.StartRound()
	if err != nil {
		t.Fatalf("StartRound after window closed: %v", err)
	}
	if second.Number != first.Number+1 {
		t.Fatalf("expected round numbers to increment by one: %d then %d",
			first.Number, second.Number)
	}
}

func TestValidateTransactionsAfterWindowCloses(t *testing.T) {
	e := newEngine(t, func(cfg *consensus.Config) { cfg.RoundDuration = 0 }, nil)
	e.insert(t, e.signedTx(t, 10))

	if _, err := e.coordinator.StartRound(); err != nil {
		t.Fatalf("StartRound: %v", err)
	}

	before := e.store.Statuses()
	count, err := e.coordinator.ValidateTransactions()
	if !errors.Is(err, errs.ErrConsensus) {
		t.Fatalf("expected ErrConsensus after the window closed, got %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no validations, got %d", count)
	}
	if !reflect.DeepEqual(before, e.store.Statuses()) {
		t.Fatalf("late validation must not change any status")
	}
}

func TestValidateTransactions(t *testing.T) {
	e := newEngine(t, nil, nil)
	if err := e.coordinator.Registry().Register(e.keys.PublicKey(), 2000); err != nil {
		t.Fatalf("Register: %v", err)
	}

	a := e.signedTx(t, 10)
	b := e.signedTx(t, 20)
	unsigned := models.NewTransaction(e.keys.PublicKey(), "bob", 1000, 30, nil, nil)
	e.insert(t, a)
	e.insert(t, b)
	e.insert(t, unsigned)

	if _, err := e.coordinator.StartRound(); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	count, err := e.coordinator.ValidateTransactions()
	if err != nil {
		t.Fatalf("ValidateTransactions: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 validations, got %d", count)
	}

	statuses := e.store.Statuses()
	if statuses[a.ID] != models.StatusValidated || statuses[b.ID] != models.StatusValidated {
		t.Fatalf("signed tips should be validated: %v", statuses)
	}
	if statuses[unsigned.ID] != models.StatusPending {
		t.Fatalf("unsigned transaction must stay pending, got %s", statuses[unsigned.ID])
	}
	if got := e.coordinator.Registry().Get(e.keys.PublicKey()).ValidationCount; got != 2 {
		t.Fatalf("expected validation count 2, got %d", got)
	}
}

func TestExecuteRoundWithoutActiveRound(t *testing.T) {
	e := newEngine(t, nil, nil)
	if _, err := e.coordinator.ExecuteRound(); !errors.Is(err, errs.ErrConsensus) {
		t.Fatalf("expected ErrConsensus, got %v", err)
	}
}

func TestExecuteRound(t *testing.T) {
	e := newEngine(t, func(cfg *consensus.Config) { cfg.BatchSize = 2 }, nil)
	if err := e.coordinator.Registry().Register(e.keys.PublicKey(), 2000); err != nil {
		t.Fatalf("Register: %v", err)
	}

	signed := []*models.Transaction{
		e.signedTx(t, 10), e.signedTx(t, 20), e.signedTx(t, 30),
	}
	for _, tx := range signed {
		e.insert(t, tx)
	}
	unsigned := models.NewTransaction(e.keys.PublicKey(), "bob", 1000, 40, nil, nil)
	e.insert(t, unsigned)

	if _, err := e.coordinator.StartRound(); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	data, err := e.coordinator.ExecuteRound()
	if err != nil {
		t.Fatalf("ExecuteRound: %v", err)
	}

	if data.RoundNumber != 1 {
		t.Fatalf("expected round 1, got %d", data.RoundNumber)
	}
	if data.Metrics.TransactionsProcessed != 3 {
		t.Fatalf("expected 3 processed, got %d", data.Metrics.TransactionsProcessed)
	}

	statuses := e.store.Statuses()
	for _, tx := range signed {
		if statuses[tx.ID] != models.StatusValidated {
			t.Fatalf("signed transaction %s not validated: %s", tx.ID, statuses[tx.ID])
		}
	}
	if statuses[unsigned.ID] != models.StatusPending {
		t.Fatalf("unsigned transaction must stay pending for the next round")
	}

	archived, err := e.repo.GetConsensusRound(1)
	if err != nil {
		t.Fatalf("GetConsensusRound: %v", err)
	}
	if archived == nil || archived.RoundNumber != 1 {
		t.Fatalf("round 1 not archived: %+v", archived)
	}
	if len(archived.Validators) != 1 || archived.Validators[0] != e.keys.PublicKey() {
		t.Fatalf("archived validators %v, want the registered key", archived.Validators)
	}

	stats := e.coordinator.Stats()
	if stats.CurrentRound != nil {
		t.Fatalf("finalized round must release the active slot")
	}
	if stats.TotalRounds != 1 {
		t.Fatalf("expected 1 total round, got %d", stats.TotalRounds)
	}
	metrics := e.coordinator.Metrics()
	if metrics.TotalTransactions != 3 {
		t.Fatalf("expected running total 3, got %d", metrics.TotalTransactions)
	}

	// The slot is free again; execution requires a fresh round.
	if _, err := e.coordinator.ExecuteRound(); !errors.Is(err, errs.ErrConsensus) {
		t.Fatalf("expected ErrConsensus after finalize, got %v", err)
	}
}

func TestExecuteRoundResolvesConflicts(t *testing.T) {
	strategy := voteFor{}
	e := newEngine(t, nil, strategy)

	a := e.signedTx(t, 10)
	b := e.signedTx(t, 20)
	e.insert(t, a)
	e.insert(t, b)
	strategy[a.ID] = true

	if _, err := e.coordinator.StartRound(); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	e.coordinator.RegisterConflict(models.NewConflict(models.ConflictDoubleSpend, a.ID, b.ID))

	data, err := e.coordinator.ExecuteRound()
	if err != nil {
		t.Fatalf("ExecuteRound: %v", err)
	}
	if data.Metrics.ConflictsResolved != 1 {
		t.Fatalf("expected 1 resolved conflict, got %d", data.Metrics.ConflictsResolved)
	}

	statuses := e.store.Statuses()
	if statuses[a.ID] != models.StatusConfirmed {
		t.Fatalf("winner %s should be confirmed, got %s", a.ID, statuses[a.ID])
	}
	if statuses[b.ID] != models.StatusRejected {
		t.Fatalf("loser %s should be rejected, got %s", b.ID, statuses[b.ID])
	}
	if len(data.Conflicts) != 1 || !data.Conflicts[0].Resolved {
		t.Fatalf("archived round should carry the resolved conflict: %+v", data.Conflicts)
	}
}

func TestUnresolvedConflictsCarryForward(t *testing.T) {
	e := newEngine(t, nil, voteNone{})

	a := e.signedTx(t, 10)
	b := e.signedTx(t, 20)
	e.insert(t, a)
	e.insert(t, b)

	if _, err := e.coordinator.StartRound(); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	e.coordinator.RegisterConflict(models.NewConflict(models.ConflictDoubleSpend, a.ID, b.ID))
	if _, err := e.coordinator.ExecuteRound(); err != nil {
		t.Fatalf("ExecuteRound: %v", err)
	}

	next, err := e.coordinator.StartRound()
	if err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if len(next.Conflicts) != 1 {
		t.Fatalf("unresolved conflict must carry into the next round, got %d", len(next.Conflicts))
	}
}

func TestRegisterConflictWithoutRound(t *testing.T) {
	e := newEngine(t, nil, nil)

	e.coordinator.RegisterConflict(models.NewConflict(models.ConflictInvalidParent, e.signedTx(t, 10).ID))

	round, err := e.coordinator.StartRound()
	if err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if len(round.Conflicts) != 1 {
		t.Fatalf("buffered conflict must attach to the next round, got %d", len(round.Conflicts))
	}
}
