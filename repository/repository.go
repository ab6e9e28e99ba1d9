package repository

import (
	"encoding/binary"

	"github.com/DataDog/zstd"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"dagledger/db"
	"dagledger/errs"
	"dagledger/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LedgerRepositoryInterface defines the persistence operations the core
// depends on. It abstracts the storage layer from the business logic.
// "Not found" surfaces as a nil result, never as an error.
type LedgerRepositoryInterface interface {
	StoreTransaction(tx *models.Transaction) error
	GetTransaction(id uuid.UUID) (*models.Transaction, error)
	StoreConsensusRound(data *models.ConsensusRoundData) error
	GetConsensusRound(number uint64) (*models.ConsensusRoundData, error)
	LatestConsensusRound() (*models.ConsensusRoundData, error)
	StoreValidatorStake(stake *models.ValidatorStake) error
	GetValidatorStake(publicKey string) (*models.ValidatorStake, error)
}

const (
	txPrefix    = "tx:"
	roundPrefix = "round:"
	stakePrefix = "stake:"
	latestKey   = "meta:latest_round"
)

// LedgerRepository implements the LedgerRepositoryInterface using
// LevelDB as the storage backend. Round archives are zstd-compressed;
// they are written once per round and read rarely.
type LedgerRepository struct {
	db *db.LevelDB
}

// NewLedgerRepository creates and returns a new LedgerRepository instance
func NewLedgerRepository(db *db.LevelDB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func txKey(id uuid.UUID) []byte {
	return append([]byte(txPrefix), id[:]...)
}

func roundKey(number uint64) []byte {
	key := make([]byte, len(roundPrefix)+8)
	copy(key, roundPrefix)
	binary.BigEndian.PutUint64(key[len(roundPrefix):], number)
	return key
}

// StoreTransaction persists a transaction keyed by its id
func (r *LedgerRepository) StoreTransaction(tx *models.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return errors.Wrap(errs.ErrSerialization, err.Error())
	}
	if err := r.db.Put(txKey(tx.ID), data); err != nil {
		return errors.Wrap(errs.ErrStorage, err.Error())
	}
	return nil
}

// GetTransaction retrieves a transaction by id; nil when absent
func (r *LedgerRepository) GetTransaction(id uuid.UUID) (*models.Transaction, error) {
	data, err := r.db.Get(txKey(id))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errs.ErrStorage, err.Error())
	}
	var tx models.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, errors.Wrap(errs.ErrSerialization, err.Error())
	}
	return &tx, nil
}

// StoreConsensusRound archives a finished round summary, compressed,
// and advances the latest-round pointer
func (r *LedgerRepository) StoreConsensusRound(data *models.ConsensusRoundData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(errs.ErrSerialization, err.Error())
	}
	compressed, err := zstd.Compress(nil, raw)
	if err != nil {
		return errors.Wrap(errs.ErrSerialization, err.Error())
	}
	if err := r.db.Put(roundKey(data.RoundNumber), compressed); err != nil {
		return errors.Wrap(errs.ErrStorage, err.Error())
	}

	latest := make([]byte, 8)
	binary.BigEndian.PutUint64(latest, data.RoundNumber)
	if err := r.db.Put([]byte(latestKey), latest); err != nil {
		return errors.Wrap(errs.ErrStorage, err.Error())
	}
	return nil
}

// GetConsensusRound retrieves an archived round by number; nil when absent
func (r *LedgerRepository) GetConsensusRound(number uint64) (*models.ConsensusRoundData, error) {
	compressed, err := r.db.Get(roundKey(number))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errs.ErrStorage, err.Error())
	}
	raw, err := zstd.Decompress(nil, compressed)
	if err != nil {
		return nil, errors.Wrap(errs.ErrSerialization, err.Error())
	}
	var data models.ConsensusRoundData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errors.Wrap(errs.ErrSerialization, err.Error())
	}
	return &data, nil
}

// LatestConsensusRound follows the latest-round pointer; nil before the
// first round finalizes
func (r *LedgerRepository) LatestConsensusRound() (*models.ConsensusRoundData, error) {
	latest, err := r.db.Get([]byte(latestKey))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errs.ErrStorage, err.Error())
	}
	return r.GetConsensusRound(binary.BigEndian.Uint64(latest))
}

// StoreValidatorStake persists a validator record keyed by public key
func (r *LedgerRepository) StoreValidatorStake(stake *models.ValidatorStake) error {
	data, err := json.Marshal(stake)
	if err != nil {
		return errors.Wrap(errs.ErrSerialization, err.Error())
	}
	if err := r.db.Put([]byte(stakePrefix+stake.PublicKey), data); err != nil {
		return errors.Wrap(errs.ErrStorage, err.Error())
	}
	return nil
}

// GetValidatorStake retrieves a validator record; nil when absent
func (r *LedgerRepository) GetValidatorStake(publicKey string) (*models.ValidatorStake, error) {
	data, err := r.db.Get([]byte(stakePrefix + publicKey))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errs.ErrStorage, err.Error())
	}
	var stake models.ValidatorStake
	if err := json.Unmarshal(data, &stake); err != nil {
		return nil, errors.Wrap(errs.ErrSerialization, err.Error())
	}
	return &stake, nil
}
