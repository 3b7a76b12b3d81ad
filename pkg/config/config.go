package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for every tunable. Flag values override file values, file values
// override these.
const (
	DefaultListenAddr     = ":8080"
	DefaultCoordinatorURL = "http://127.0.0.1:8080"
	DefaultDataDir        = "/var/lib/chorus"

	DefaultPollInterval         = 10 * time.Second
	DefaultDistributionInterval = 3 * time.Minute
	DefaultAssignmentTimeout    = 30 * time.Minute
	DefaultConsensusWindow      = 5 * time.Minute
	DefaultAuditIntervalBlocks  = 100
	DefaultMinConsensusAuditors = 2
	DefaultMaxTopWorkers        = 10
	DefaultMaxRedistribute      = 3
	DefaultMaxConcurrentTasks   = 4
	DefaultMaxInputBytes        = 100 << 20 // 100 MiB
)

// Config is the on-disk configuration shared by all three processes. Each
// process reads the sections it needs.
type Config struct {
	ListenAddr     string `yaml:"listen_addr"`
	CoordinatorURL string `yaml:"coordinator_url"`
	DataDir        string `yaml:"data_dir"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	PollInterval         time.Duration `yaml:"poll_interval"`
	DistributionInterval time.Duration `yaml:"distribution_interval"`
	AssignmentTimeout    time.Duration `yaml:"assignment_timeout"`
	ConsensusWindow      time.Duration `yaml:"consensus_window"`
	AuditIntervalBlocks  uint64        `yaml:"audit_interval_blocks"`
	MinConsensusAuditors int           `yaml:"min_consensus_auditors"`
	MaxTopWorkers        int           `yaml:"max_top_workers"`
	MaxRedistribute      int           `yaml:"max_redistribute"`
	MaxConcurrentTasks   int           `yaml:"max_concurrent_tasks"`
	MaxInputBytes        int64         `yaml:"max_input_bytes"`

	SubstrateURL string `yaml:"substrate_url"`

	// Per-kind inference backend endpoints, e.g.
	//   executors:
	//     transcription: http://127.0.0.1:9001
	Executors map[string]string `yaml:"executors"`
}

// Default returns a Config populated with every default value.
func Default() *Config {
	return &Config{
		ListenAddr:           DefaultListenAddr,
		CoordinatorURL:       DefaultCoordinatorURL,
		DataDir:              DefaultDataDir,
		LogLevel:             "info",
		PollInterval:         DefaultPollInterval,
		DistributionInterval: DefaultDistributionInterval,
		AssignmentTimeout:    DefaultAssignmentTimeout,
		ConsensusWindow:      DefaultConsensusWindow,
		AuditIntervalBlocks:  DefaultAuditIntervalBlocks,
		MinConsensusAuditors: DefaultMinConsensusAuditors,
		MaxTopWorkers:        DefaultMaxTopWorkers,
		MaxRedistribute:      DefaultMaxRedistribute,
		MaxConcurrentTasks:   DefaultMaxConcurrentTasks,
		MaxInputBytes:        DefaultMaxInputBytes,
	}
}

// Load reads path (if non-empty) over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.MinConsensusAuditors < 1 {
		return fmt.Errorf("min_consensus_auditors must be >= 1, got %d", c.MinConsensusAuditors)
	}
	if c.MaxTopWorkers < 1 {
		return fmt.Errorf("max_top_workers must be >= 1, got %d", c.MaxTopWorkers)
	}
	if c.MaxConcurrentTasks < 1 {
		return fmt.Errorf("max_concurrent_tasks must be >= 1, got %d", c.MaxConcurrentTasks)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.DistributionInterval <= 0 {
		return fmt.Errorf("distribution_interval must be positive, got %s", c.DistributionInterval)
	}
	if c.ConsensusWindow <= 0 {
		return fmt.Errorf("consensus_window must be positive, got %s", c.ConsensusWindow)
	}
	if c.AuditIntervalBlocks == 0 {
		return fmt.Errorf("audit_interval_blocks must be >= 1")
	}
	return nil
}
