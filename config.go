package toolweave

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunable knobs of the broker.
type Config struct {
	// Similarity threshold above which a non-direct pair is classified as
	// a translatable edge.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// Number of workers classifying candidate pairs during addTool and
	// rebuild.
	ClassifyWorkers int `yaml:"classify_workers"`

	// Retry configuration for transient tool invocation failures.
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Per-step invocation timeout.
	StepTimeout time.Duration `yaml:"step_timeout"`

	// Event bus configuration.
	EnableEventBus      bool `yaml:"enable_event_bus"`
	EventBusBufferSize  int  `yaml:"event_bus_buffer_size"`
	EventBusWorkerCount int  `yaml:"event_bus_worker_count"`

	// TTL for cached proposer results and compiled translation mappings.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.75,
		ClassifyWorkers:     4,
		MaxRetries:          2,
		RetryDelay:          time.Millisecond * 500,
		StepTimeout:         time.Second * 30,
		EnableEventBus:      true,
		EventBusBufferSize:  100,
		EventBusWorkerCount: 5,
		CacheTTL:            time.Minute * 10,
	}
}

// ServerSpec describes one tool server to connect to at startup.
type ServerSpec struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// FileConfig is the on-disk YAML configuration consumed by the cmd binary:
// broker knobs plus the tool servers to register and the history database
// location.
type FileConfig struct {
	Broker      Config       `yaml:"broker"`
	Servers     []ServerSpec `yaml:"servers"`
	HistoryPath string       `yaml:"history_path"`
}

// LoadFileConfig reads and validates a YAML configuration file. Broker
// fields left at zero are filled from DefaultConfig.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigurationError(fmt.Sprintf("failed to read config file %s", path), err)
	}

	cfg := &FileConfig{Broker: DefaultConfig()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, NewConfigurationError(fmt.Sprintf("failed to parse config file %s", path), err)
	}

	defaults := DefaultConfig()
	if cfg.Broker.SimilarityThreshold <= 0 || cfg.Broker.SimilarityThreshold > 1 {
		cfg.Broker.SimilarityThreshold = defaults.SimilarityThreshold
	}
	if cfg.Broker.ClassifyWorkers <= 0 {
		cfg.Broker.ClassifyWorkers = defaults.ClassifyWorkers
	}
	if cfg.Broker.MaxRetries < 0 {
		cfg.Broker.MaxRetries = defaults.MaxRetries
	}
	if cfg.Broker.RetryDelay <= 0 {
		cfg.Broker.RetryDelay = defaults.RetryDelay
	}
	if cfg.Broker.StepTimeout <= 0 {
		cfg.Broker.StepTimeout = defaults.StepTimeout
	}

	for i, server := range cfg.Servers {
		if server.Name == "" {
			return nil, NewConfigurationError(fmt.Sprintf("server entry %d is missing a name", i), nil)
		}
		if server.Command == "" {
			return nil, NewConfigurationError(fmt.Sprintf("server '%s' is missing a command", server.Name), nil)
		}
	}

	return cfg, nil
}
