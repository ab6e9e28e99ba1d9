package routers

import (
	"github.com/gorilla/mux"

	"dagledger/handlers"
)

// RegisterRoutes sets up all the HTTP routes for the ledger
func RegisterRoutes(r *mux.Router, h *handlers.Handler) {

	// Accepts a new transaction into the DAG
	r.HandleFunc("/transactions", h.SubmitTransaction).Methods("POST")

	// Retrieves a single transaction by id
	r.HandleFunc("/transactions/{id}", h.GetTransaction).Methods("GET")

	// Retrieves the recomputed tip set for attachment and scheduling
	r.HandleFunc("/tips", h.GetTips).Methods("GET")

	// Registers validator stake
	r.HandleFunc("/validators", h.RegisterValidator).Methods("POST")

	// Opens a consensus round
	r.HandleFunc("/consensus/rounds", h.StartRound).Methods("POST")

	// Drives the active round through its phases
	r.HandleFunc("/consensus/rounds/execute", h.ExecuteRound).Methods("POST")

	// Retrieves an archived round summary
	r.HandleFunc("/consensus/rounds/{number}", h.GetRound).Methods("GET")

	// Ledger and consensus statistics
	r.HandleFunc("/stats", h.GetStats).Methods("GET")
}
