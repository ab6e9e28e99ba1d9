package config

import (
	"time"

	"github.com/spf13/viper"
)

// DAGConfig tunes the graph store and tip selection.
type DAGConfig struct {
	MaxTips          int     `mapstructure:"max_tips"`
	TipShards        int     `mapstructure:"tip_shards"`
	FeeWeight        float64 `mapstructure:"fee_weight"`
	ConflictWeight   float64 `mapstructure:"conflict_weight"`
	RecencyWeight    float64 `mapstructure:"recency_weight"`
	AmountWeight     float64 `mapstructure:"amount_weight"`
	PredictiveCaching bool    `mapstructure:"predictive_caching"`
}

// ConsensusConfig tunes rounds, batching and conflict resolution.
type ConsensusConfig struct {
	Algorithm       string        `mapstructure:"algorithm"`
	MinStake        uint64        `mapstructure:"min_stake"`
	RoundDuration   time.Duration `mapstructure:"round_duration"`
	RoundInterval   time.Duration `mapstructure:"round_interval"`
	BatchSize       int           `mapstructure:"batch_size"`
	ParallelWorkers int           `mapstructure:"parallel_workers"`
	FPCRounds       int           `mapstructure:"fpc_rounds"`
	FPCThreshold    float64       `mapstructure:"fpc_threshold"`

	// Parsed and logged, otherwise inert until the matching capability
	// collaborator exists.
	EnableGPU         bool `mapstructure:"enable_gpu"`
	EnableQuantumSafe bool `mapstructure:"enable_quantum_safe"`
}

// Config is the full node configuration.
type Config struct {
	Server struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	Log struct {
		AppLogFile string `mapstructure:"app_log_file"`
		Level      string `mapstructure:"level"`
	} `mapstructure:"log"`
	LevelDB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"leveldb"`
	DAG       DAGConfig       `mapstructure:"dag"`
	Consensus ConsensusConfig `mapstructure:"consensus"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.app_log_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("leveldb.path", "data/ledger")

	v.SetDefault("dag.max_tips", 10000)
	v.SetDefault("dag.tip_shards", 8)
	v.SetDefault("dag.fee_weight", 10.0)
	v.SetDefault("dag.conflict_weight", 100.0)
	v.SetDefault("dag.recency_weight", 50.0)
	v.SetDefault("dag.amount_weight", 20.0)
	v.SetDefault("dag.predictive_caching", true)

	v.SetDefault("consensus.algorithm", "hybrid")
	v.SetDefault("consensus.min_stake", 1000)
	v.SetDefault("consensus.round_duration", 5*time.Second)
	v.SetDefault("consensus.round_interval", 6*time.Second)
	v.SetDefault("consensus.batch_size", 1000)
	v.SetDefault("consensus.parallel_workers", 8)
	v.SetDefault("consensus.fpc_rounds", 10)
	v.SetDefault("consensus.fpc_threshold", 0.67)
	v.SetDefault("consensus.enable_gpu", false)
	v.SetDefault("consensus.enable_quantum_safe", false)
}

// Load reads the config file at path (optional; defaults apply when the
// file is absent) and unmarshals it. The returned viper instance backs
// flag binding in cmd.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, err
	}
	return &cfg, v, nil
}
