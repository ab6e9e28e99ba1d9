package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"dagledger/config"
	"dagledger/consensus"
	"dagledger/crypto"
	"dagledger/dag"
	"dagledger/db"
	"dagledger/handlers"
	"dagledger/logger"
	"dagledger/models"
	"dagledger/network"
	"dagledger/repository"
	"dagledger/routers"
)

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: dagledger <command> [flags]

Commands:
  start             Run the ledger node
  generate-keys     Generate a validator key pair
  show-stats        Print the latest archived round
  test-performance  Benchmark a full consensus round in memory`)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "start":
		runStart(os.Args[2:])
	case "generate-keys":
		runGenerateKeys()
	case "show-stats":
		runShowStats(os.Args[2:])
	case "test-performance":
		runTestPerformance(os.Args[2:])
	default:
		usage()
	}
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		// Missing config file means defaults.
		cfg, _, err := config.Load("")
		return cfg, err
	}
	cfg, _, err := config.Load(path)
	return cfg, err
}

func dagConfig(cfg *config.Config) dag.Config {
	return dag.Config{
		MaxTips:           cfg.DAG.MaxTips,
		TipShards:         cfg.DAG.TipShards,
		FeeWeight:         cfg.DAG.FeeWeight,
		ConflictWeight:    cfg.DAG.ConflictWeight,
		RecencyWeight:     cfg.DAG.RecencyWeight,
		AmountWeight:      cfg.DAG.AmountWeight,
		PredictiveCaching: cfg.DAG.PredictiveCaching,
	}
}

func consensusConfig(cfg *config.Config) consensus.Config {
	return consensus.Config{
		Algorithm:         consensus.ParseAlgorithm(cfg.Consensus.Algorithm),
		MinStake:          cfg.Consensus.MinStake,
		RoundDuration:     cfg.Consensus.RoundDuration,
		BatchSize:         cfg.Consensus.BatchSize,
		ParallelWorkers:   cfg.Consensus.ParallelWorkers,
		FPCRounds:         cfg.Consensus.FPCRounds,
		FPCThreshold:      cfg.Consensus.FPCThreshold,
		EnableGPU:         cfg.Consensus.EnableGPU,
		EnableQuantumSafe: cfg.Consensus.EnableQuantumSafe,
	}
}

func runStart(args []string) {
	fs := pflag.NewFlagSet("start", pflag.ExitOnError)
	configPath := fs.String("config", "config/config.yaml", "config file path")
	dataDir := fs.String("data-dir", "", "LevelDB data directory")
	port := fs.Int("port", 0, "HTTP listen port")
	workers := fs.Int("workers", 0, "parallel validation workers")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Config file error:", err)
		os.Exit(1)
	}
	if fs.Changed("data-dir") {
		cfg.LevelDB.Path = *dataDir
	}
	if fs.Changed("port") {
		cfg.Server.Port = *port
	}
	if fs.Changed("workers") {
		cfg.Consensus.ParallelWorkers = *workers
	}

	if err := logger.InitLogger(cfg.Log.AppLogFile, cfg.Log.Level); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		os.Exit(1)
	}

	logger.Logger.Info("Starting DAG ledger node...")

	ldb, err := db.NewLevelDB(cfg.LevelDB.Path)
	if err != nil {
		logger.Logger.Fatal("Failed to open leveldb", zap.Error(err))
	}
	defer ldb.Close()

	repo := repository.NewLedgerRepository(ldb)
	store := dag.NewStore(dagConfig(cfg), dag.HeuristicPredictor{})
	registry := consensus.NewRegistry(cfg.Consensus.MinStake)
	coordinator := consensus.NewCoordinator(
		store, registry, repo,
		crypto.Ed25519Verifier{}, crypto.AcceptProofs{},
		nil, consensusConfig(cfg))

	h := handlers.NewHandler(store, coordinator, repo, network.NopBroadcaster{})
	r := mux.NewRouter()
	routers.RegisterRoutes(r, h)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go coordinator.RunRounds(ctx, cfg.Consensus.RoundInterval)

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Logger.Info("Server stopped", zap.Error(err))
		}
	}()

	logger.Logger.Info("Server running on port", zap.Int("port", cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Logger.Info("Shutdown signal received, exiting...")
	cancel()
	srv.Close()
}

func runGenerateKeys() {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Key generation failed:", err)
		os.Exit(1)
	}
	fmt.Println("public key:", kp.PublicKey())
	fmt.Println("secret seed:", kp.SeedHex())
}

func runShowStats(args []string) {
	fs := pflag.NewFlagSet("show-stats", pflag.ExitOnError)
	configPath := fs.String("config", "config/config.yaml", "config file path")
	dataDir := fs.String("data-dir", "", "LevelDB data directory")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Config file error:", err)
		os.Exit(1)
	}
	if fs.Changed("data-dir") {
		cfg.LevelDB.Path = *dataDir
	}

	ldb, err := db.NewLevelDB(cfg.LevelDB.Path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to open leveldb:", err)
		os.Exit(1)
	}
	defer ldb.Close()

	repo := repository.NewLedgerRepository(ldb)
	round, err := repo.LatestConsensusRound()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to read rounds:", err)
		os.Exit(1)
	}
	if round == nil {
		fmt.Println("no rounds archived yet")
		return
	}
	fmt.Printf("round %d (%s)\n", round.RoundNumber, round.Algorithm)
	fmt.Printf("  validators:         %d\n", len(round.Validators))
	fmt.Printf("  processed:          %d\n", round.Metrics.TransactionsProcessed)
	fmt.Printf("  tps:                %.1f\n", round.Metrics.TPS)
	fmt.Printf("  conflicts resolved: %d\n", round.Metrics.ConflictsResolved)
}

func runTestPerformance(args []string) {
	fs := pflag.NewFlagSet("test-performance", pflag.ExitOnError)
	count := fs.Int("count", 5000, "transactions to benchmark")
	workers := fs.Int("workers", 8, "parallel validation workers")
	fs.Parse(args)

	ldb, err := db.NewMemoryDB()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to open in-memory db:", err)
		os.Exit(1)
	}
	defer ldb.Close()

	repo := repository.NewLedgerRepository(ldb)
	store := dag.NewStore(dag.DefaultConfig(), dag.HeuristicPredictor{})
	registry := consensus.NewRegistry(1000)

	ccfg := consensus.DefaultConfig()
	ccfg.RoundDuration = time.Minute
	ccfg.ParallelWorkers = *workers
	coordinator := consensus.NewCoordinator(
		store, registry, repo,
		crypto.Ed25519Verifier{}, crypto.AcceptProofs{},
		nil, ccfg)

	sender, err := crypto.GenerateKeyPair()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Key generation failed:", err)
		os.Exit(1)
	}
	recipient, _ := crypto.GenerateKeyPair()
	registry.Register(sender.PublicKey(), 2000)

	var prev *uuid.UUID
	for i := 0; i < *count; i++ {
		tx := models.NewTransaction(sender.PublicKey(), recipient.PublicKey(),
			uint64(100+i), uint64(1+i%10), prev, nil)
		payload, err := tx.SigningPayload()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Payload error:", err)
			os.Exit(1)
		}
		tx.Signature = sender.Sign(crypto.Hash(payload))
		tx.Proof = []byte{0x01}
		if err := store.Insert(tx); err != nil {
			fmt.Fprintln(os.Stderr, "Insert error:", err)
			os.Exit(1)
		}
		id := tx.ID
		prev = &id
	}

	if _, err := coordinator.StartRound(); err != nil {
		fmt.Fprintln(os.Stderr, "Round start failed:", err)
		os.Exit(1)
	}
	data, err := coordinator.ExecuteRound()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Round failed:", err)
		os.Exit(1)
	}

	fmt.Printf("processed %d transactions in %s (%.1f tps, %d workers)\n",
		data.Metrics.TransactionsProcessed, data.Metrics.Duration,
		data.Metrics.TPS, *workers)
}
