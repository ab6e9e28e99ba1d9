package repository_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"dagledger/db"
	"dagledger/models"
	"dagledger/repository"
)

func testRepo(t *testing.T) *repository.LedgerRepository {
	t.Helper()
	ldb, err := db.NewMemoryDB()
	if err != nil {
		t.Fatalf("memory db: %v", err)
	}
	t.Cleanup(func() { ldb.Close() })
	return repository.NewLedgerRepository(ldb)
}

func TestTransactionRoundTrip(t *testing.T) {
	repo := testRepo(t)

	parent := uuid.New()
	tx := models.NewTransaction("alice", "bob", 1000, 10, &parent, nil)
	tx.Signature = []byte{0x01, 0x02}

	if err := repo.StoreTransaction(tx); err != nil {
		t.Fatalf("StoreTransaction: %v", err)
	}
	got, err := repo.GetTransaction(tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got == nil {
		t.Fatalf("stored transaction not found")
	}
	if got.ID != tx.ID || got.Sender != tx.Sender || got.Amount != tx.Amount || got.Fee != tx.Fee {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, tx)
	}
	if got.Parent1 == nil || *got.Parent1 != parent {
		t.Fatalf("parent reference lost in round trip")
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	repo := testRepo(t)

	got, err := repo.GetTransaction(uuid.New())
	if err != nil {
		t.Fatalf("missing transaction must not error, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for a missing transaction, got %+v", got)
	}
}

func TestConsensusRoundRoundTrip(t *testing.T) {
	repo := testRepo(t)

	data := &models.ConsensusRoundData{
		RoundNumber: 7,
		StartTime:   time.Now().UTC().Truncate(time.Millisecond),
		EndTime:     time.Now().UTC().Add(5 * time.Second).Truncate(time.Millisecond),
		Algorithm:   "hybrid",
		Validators:  []string{"alice", "bob"},
		Conflicts: []models.Conflict{
			*models.NewConflict(models.ConflictDoubleSpend, uuid.New(), uuid.New()),
		},
		Metrics: models.RoundMetrics{
			TransactionsProcessed: 42,
			Duration:              120 * time.Millisecond,
			TPS:                   350,
			ConflictsResolved:     1,
		},
	}
	if err := repo.StoreConsensusRound(data); err != nil {
		t.Fatalf("StoreConsensusRound: %v", err)
	}

	got, err := repo.GetConsensusRound(7)
	if err != nil {
		t.Fatalf("GetConsensusRound: %v", err)
	}
	if got == nil {
		t.Fatalf("stored round not found")
	}
	if got.RoundNumber != 7 || got.Algorithm != "hybrid" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Validators) != 2 || got.Validators[0] != "alice" {
		t.Fatalf("validators lost in round trip: %v", got.Validators)
	}
	if len(got.Conflicts) != 1 || len(got.Conflicts[0].TransactionIDs) != 2 {
		t.Fatalf("conflicts lost in round trip: %+v", got.Conflicts)
	}
	if got.Metrics.TransactionsProcessed != 42 || got.Metrics.ConflictsResolved != 1 {
		t.Fatalf("metrics lost in round trip: %+v", got.Metrics)
	}
}

func TestGetConsensusRoundNotFound(t *testing.T) {
	repo := testRepo(t)

	got, err := repo.GetConsensusRound(99)
	if err != nil {
		t.Fatalf("missing round must not error, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for a missing round, got %+v", got)
	}
}

func TestLatestConsensusRound(t *testing.T) {
	repo := testRepo(t)

	latest, err := repo.LatestConsensusRound()
	if err != nil {
		t.Fatalf("LatestConsensusRound on empty store: %v", err)
	}
	if latest != nil {
		t.Fatalf("expected nil latest round on empty store")
	}

	for _, number := range []uint64{1, 2, 3} {
		if err := repo.StoreConsensusRound(&models.ConsensusRoundData{RoundNumber: number}); err != nil {
			t.Fatalf("StoreConsensusRound %d: %v", number, err)
		}
	}
	latest, err = repo.LatestConsensusRound()
	if err != nil {
		t.Fatalf("LatestConsensusRound: %v", err)
	}
	if latest == nil || latest.RoundNumber != 3 {
		t.Fatalf("expected round 3 as latest, got %+v", latest)
	}
}

func TestValidatorStakeRoundTrip(t *testing.T) {
	repo := testRepo(t)

	stake := &models.ValidatorStake{
		PublicKey:       "validator-1",
		StakeAmount:     2000,
		ValidationCount: 5,
		LastValidation:  time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := repo.StoreValidatorStake(stake); err != nil {
		t.Fatalf("StoreValidatorStake: %v", err)
	}

	got, err := repo.GetValidatorStake("validator-1")
	if err != nil {
		t.Fatalf("GetValidatorStake: %v", err)
	}
	if got == nil {
		t.Fatalf("stored stake not found")
	}
	if got.StakeAmount != 2000 || got.ValidationCount != 5 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	missing, err := repo.GetValidatorStake("unknown")
	if err != nil {
		t.Fatalf("missing stake must not error, got %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for a missing stake, got %+v", missing)
	}
}
