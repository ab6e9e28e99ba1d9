package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dagledger/consensus"
	"dagledger/dag"
	"dagledger/errs"
	"dagledger/logger"
	"dagledger/models"
	"dagledger/network"
	"dagledger/repository"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handler contains the HTTP handlers for the ledger API endpoints
type Handler struct {
	Store       *dag.Store
	Detector    *dag.Detector
	Coordinator *consensus.Coordinator
	Repo        repository.LedgerRepositoryInterface
	Broadcaster network.Broadcaster
}

// NewHandler creates and returns a new Handler instance
func NewHandler(store *dag.Store, coordinator *consensus.Coordinator, repo repository.LedgerRepositoryInterface, broadcaster network.Broadcaster) *Handler {
	return &Handler{
		Store:       store,
		Detector:    dag.NewDetector(store),
		Coordinator: coordinator,
		Repo:        repo,
		Broadcaster: broadcaster,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrTransactionValidation),
		errors.Is(err, errs.ErrInsufficientStake):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrNodeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrConsensus),
		errors.Is(err, errs.ErrInvalidDAG):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// SubmitTransaction handles POST requests to insert new transactions
// into the DAG. Detected conflicts are registered with the coordinator
// for resolution; the transaction is still accepted.
func (h *Handler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var tx models.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		logger.Logger.Error("Failed to decode transaction", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
		return
	}
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.Status == "" {
		tx.Status = models.StatusPending
	}

	conflict := h.Detector.Detect(&tx)

	if err := h.Store.Insert(&tx); err != nil {
		logger.Logger.Error("Failed to insert transaction", zap.Error(err))
		writeError(w, err)
		return
	}
	if conflict != nil {
		h.Coordinator.RegisterConflict(conflict)
		logger.Logger.Warn("conflict detected at insertion",
			zap.String("tx_id", tx.ID.String()),
			zap.String("type", string(conflict.Type)))
	}

	if err := h.Repo.StoreTransaction(&tx); err != nil {
		logger.Logger.Error("Failed to persist transaction", zap.Error(err))
		writeError(w, err)
		return
	}
	if err := h.Broadcaster.BroadcastTransaction(&tx); err != nil {
		logger.Logger.Warn("broadcast failed", zap.String("tx_id", tx.ID.String()), zap.Error(err))
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":     "Transaction accepted",
		"transaction": tx,
		"conflict":    conflict,
	})
}

// GetTransaction handles GET requests for a single transaction by id
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid transaction id"})
		return
	}
	tx, err := h.Store.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// GetTips handles GET requests for the current tip set
func (h *Handler) GetTips(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"tips": h.Store.Tips()})
}

// RegisterValidator handles POST requests to register validator stake
func (h *Handler) RegisterValidator(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PublicKey string `json:"public_key"`
		Stake     uint64 `json:"stake"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
		return
	}

	if err := h.Coordinator.Registry().Register(req.PublicKey, req.Stake); err != nil {
		logger.Logger.Error("Failed to register validator", zap.Error(err))
		writeError(w, err)
		return
	}
	if err := h.Repo.StoreValidatorStake(h.Coordinator.Registry().Get(req.PublicKey)); err != nil {
		logger.Logger.Error("Failed to persist validator stake", zap.Error(err))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"message": "Validator registered"})
}

// StartRound handles POST requests to open a consensus round
func (h *Handler) StartRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.Coordinator.StartRound()
	if err != nil {
		logger.Logger.Error("Failed to start round", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"round_number": round.Number,
		"start_time":   round.StartTime,
		"end_time":     round.EndTime,
	})
}

// ExecuteRound handles POST requests to drive the active round to
// Finalize
func (h *Handler) ExecuteRound(w http.ResponseWriter, r *http.Request) {
	data, err := h.Coordinator.ExecuteRound()
	if err != nil {
		logger.Logger.Error("Failed to execute round", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// GetRound handles GET requests for an archived round summary
func (h *Handler) GetRound(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.ParseUint(mux.Vars(r)["number"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid round number"})
		return
	}
	data, err := h.Repo.GetConsensusRound(number)
	if err != nil {
		writeError(w, err)
		return
	}
	if data == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Round not found"})
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// GetStats handles GET requests for ledger and consensus statistics
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ledger":      h.Store.Statistics(),
		"consensus":   h.Coordinator.Stats(),
		"performance": h.Coordinator.Metrics(),
	})
}
