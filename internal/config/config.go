// Package config loads and validates the structured configuration that
// wires together every other package: durable store connection, pool
// sizing, cache policy, capacity/eviction policy, reward weights, sandbox
// limits, and audit settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DurableConfig configures the durable SQL-backed store. URL and
// AuthToken are never read from the config file — only from environment
// variables — per the credentials-from-environment rule.
type DurableConfig struct {
	Path           string `yaml:"path" json:"path"`
	URL            string `yaml:"-" json:"-"`
	AuthToken      string `yaml:"-" json:"-"`
	RequireTLS     bool   `yaml:"require_tls" json:"require_tls"`
	MigrationsDir  string `yaml:"migrations_dir" json:"migrations_dir"`
}

// PoolConfig configures the connection pool's sizing and health checking.
type PoolConfig struct {
	MinSize             int           `yaml:"min_size" json:"min_size"`
	MaxSize             int           `yaml:"max_size" json:"max_size"`
	IdleTimeout         time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	ConnectionTimeout   time.Duration `yaml:"connection_timeout" json:"connection_timeout"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
	HealthCheckTimeout  time.Duration `yaml:"health_check_timeout" json:"health_check_timeout"`

	// Adaptive sizing parameters.
	ScaleInterval  time.Duration `yaml:"scale_interval" json:"scale_interval"`
	MaxQueueLength int           `yaml:"max_queue_length" json:"max_queue_length"`
	MaxWaitTime    time.Duration `yaml:"max_wait_time" json:"max_wait_time"`
	MinWaitTime    time.Duration `yaml:"min_wait_time" json:"min_wait_time"`
}

// CacheEntityConfig configures one entity type's slice of the embedded
// cache: whether it's enabled, its maximum entry count, and its base TTL
// before the adaptive multiplier is applied.
type CacheEntityConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	MaxSize int           `yaml:"max_size" json:"max_size"`
	BaseTTL time.Duration `yaml:"base_ttl" json:"base_ttl"`
}

// CacheConfig configures the embedded hot-path cache across entity types.
type CacheConfig struct {
	Episodes     CacheEntityConfig `yaml:"episodes" json:"episodes"`
	Patterns     CacheEntityConfig `yaml:"patterns" json:"patterns"`
	Heuristics   CacheEntityConfig `yaml:"heuristics" json:"heuristics"`
	QueryResults CacheEntityConfig `yaml:"query_results" json:"query_results"`
	Embeddings   CacheEntityConfig `yaml:"embeddings" json:"embeddings"`
	HotThreshold int               `yaml:"hot_threshold" json:"hot_threshold"`
	ColdThreshold int              `yaml:"cold_threshold" json:"cold_threshold"`
}

// EvictionPolicy selects the capacity manager's victim-choosing strategy.
type EvictionPolicy string

const (
	EvictionLRU               EvictionPolicy = "lru"
	EvictionRelevanceWeighted EvictionPolicy = "relevance_weighted"
)

// CapacityConfig configures the capacity manager / GENESIS.
type CapacityConfig struct {
	MaxEpisodes int            `yaml:"max_episodes" json:"max_episodes"`
	Policy      EvictionPolicy `yaml:"policy" json:"policy"`

	// RecencyWeight, RewardWeight, and AccessWeight are the α/β/γ terms of
	// the RelevanceWeighted victim score. Ignored under EvictionLRU.
	RecencyWeight float64 `yaml:"recency_weight" json:"recency_weight"`
	RewardWeight  float64 `yaml:"reward_weight" json:"reward_weight"`
	AccessWeight  float64 `yaml:"access_weight" json:"access_weight"`

	// EvictionBatchSize bounds how many episodes a single capacity-check
	// pass evicts, keeping each pass within the performance envelope.
	EvictionBatchSize int `yaml:"eviction_batch_size" json:"eviction_batch_size"`

	// MaxKeySteps bounds the number of steps a summary cites (the "small
	// K" of the key_steps selection).
	MaxKeySteps int `yaml:"max_key_steps" json:"max_key_steps"`
}

// RewardWeightsConfig mirrors memcore.RewardWeights so config loading
// doesn't need to import memcore just for this one struct's yaml tags.
type RewardWeightsConfig struct {
	Correctness float64 `yaml:"correctness" json:"correctness"`
	Efficiency  float64 `yaml:"efficiency" json:"efficiency"`
	Robustness  float64 `yaml:"robustness" json:"robustness"`
	Clarity     float64 `yaml:"clarity" json:"clarity"`
}

// SandboxConfig configures the code-execution sandbox's resource and
// input limits.
type SandboxConfig struct {
	MaxCodeBytes      int           `yaml:"max_code_bytes" json:"max_code_bytes"`
	MaxExecutionTime  time.Duration `yaml:"max_execution_time" json:"max_execution_time"`
	MaxMemoryBytes    int64         `yaml:"max_memory_bytes" json:"max_memory_bytes"`
	MaxCPUPercent     int           `yaml:"max_cpu_percent" json:"max_cpu_percent"`
	Interpreter       string        `yaml:"interpreter" json:"interpreter"`
	AllowedPaths      []string      `yaml:"allowed_paths" json:"allowed_paths"`
	BlockNetwork      bool          `yaml:"block_network" json:"block_network"`
	DenyDangerousAPIs bool          `yaml:"deny_dangerous_apis" json:"deny_dangerous_apis"`
	MaxOutputBytes    int           `yaml:"max_output_bytes" json:"max_output_bytes"`
}

// PatternConfig configures the pattern extraction and clustering
// pipeline's thresholds and decay behavior.
type PatternConfig struct {
	MinSupportCount    int     `yaml:"min_support_count" json:"min_support_count"`
	MinSupportFraction float64 `yaml:"min_support_fraction" json:"min_support_fraction"`
	DecisionSuccessRateThreshold float64 `yaml:"decision_success_rate_threshold" json:"decision_success_rate_threshold"`
	QualityWeight      float64 `yaml:"quality_weight" json:"quality_weight"`
	DecayFactor        float64 `yaml:"decay_factor" json:"decay_factor"`
	ConfidenceFloor    float64 `yaml:"confidence_floor" json:"confidence_floor"`
	RetentionWindow    time.Duration `yaml:"retention_window" json:"retention_window"`
	ClusterTagJaccardThreshold float64 `yaml:"cluster_tag_jaccard_threshold" json:"cluster_tag_jaccard_threshold"`
	ClusterEmbeddingSimilarityThreshold float64 `yaml:"cluster_embedding_similarity_threshold" json:"cluster_embedding_similarity_threshold"`
}

// RetrievalConfig configures the spatiotemporal retrieval engine's
// search breadth and relevance/diversity trade-off.
type RetrievalConfig struct {
	MaxClustersToSearch int     `yaml:"max_clusters_to_search" json:"max_clusters_to_search"`
	TemporalBiasWeight  float64 `yaml:"temporal_bias_weight" json:"temporal_bias_weight"`
	Lambda              float64 `yaml:"lambda" json:"lambda"`
	DiversifyByDefault  bool    `yaml:"diversify_by_default" json:"diversify_by_default"`
}

// AuditConfig configures structured audit event emission, with an
// optional NATS fan-out alongside the always-on log sink.
type AuditConfig struct {
	NATSEnabled bool   `yaml:"nats_enabled" json:"nats_enabled"`
	NATSURL     string `yaml:"nats_url" json:"nats_url"`
	Subject     string `yaml:"subject" json:"subject"`
}

// ServerConfig configures the orchestrator's listening surface.
type ServerConfig struct {
	Port int `yaml:"port" json:"port"`

	// EmbeddedNATSPort, when non-zero and Audit.NATSEnabled is set with
	// no external Audit.NATSURL configured, tells the entrypoint to
	// start an in-process NATS broker on this port for the audit
	// recorder to publish to, rather than requiring an external
	// cluster for local/dev use.
	EmbeddedNATSPort int `yaml:"embedded_nats_port" json:"embedded_nats_port"`
}

// Config is the root configuration for the memory service.
type Config struct {
	Server   ServerConfig        `yaml:"server" json:"server"`
	Durable  DurableConfig       `yaml:"durable" json:"durable"`
	Pool     PoolConfig          `yaml:"pool" json:"pool"`
	Cache    CacheConfig         `yaml:"cache" json:"cache"`
	Capacity CapacityConfig      `yaml:"capacity" json:"capacity"`
	Reward   RewardWeightsConfig `yaml:"reward" json:"reward"`
	Pattern   PatternConfig       `yaml:"pattern" json:"pattern"`
	Retrieval RetrievalConfig     `yaml:"retrieval" json:"retrieval"`
	Sandbox  SandboxConfig       `yaml:"sandbox" json:"sandbox"`
	Audit    AuditConfig         `yaml:"audit" json:"audit"`
}

// DefaultConfig returns sensible defaults for every section, matching the
// spec's documented defaults where it names one.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 7070, EmbeddedNATSPort: 4222},
		Durable: DurableConfig{
			Path:       "memory.db",
			RequireTLS: false,
		},
		Pool: PoolConfig{
			MinSize:             2,
			MaxSize:             16,
			IdleTimeout:         5 * time.Minute,
			ConnectionTimeout:   3 * time.Second,
			HealthCheckInterval: 30 * time.Second,
			HealthCheckTimeout:  2 * time.Second,
			ScaleInterval:       15 * time.Second,
			MaxQueueLength:      10,
			MaxWaitTime:         500 * time.Millisecond,
			MinWaitTime:         50 * time.Millisecond,
		},
		Cache: CacheConfig{
			Episodes:     CacheEntityConfig{Enabled: true, MaxSize: 2000, BaseTTL: 10 * time.Minute},
			Patterns:     CacheEntityConfig{Enabled: true, MaxSize: 500, BaseTTL: 30 * time.Minute},
			Heuristics:   CacheEntityConfig{Enabled: true, MaxSize: 200, BaseTTL: 30 * time.Minute},
			QueryResults: CacheEntityConfig{Enabled: true, MaxSize: 1000, BaseTTL: 2 * time.Minute},
			Embeddings:   CacheEntityConfig{Enabled: true, MaxSize: 5000, BaseTTL: time.Hour},
			HotThreshold:  10,
			ColdThreshold: 1,
		},
		Capacity: CapacityConfig{
			MaxEpisodes:       10000,
			Policy:            EvictionRelevanceWeighted,
			RecencyWeight:     0.4,
			RewardWeight:      0.35,
			AccessWeight:      0.25,
			EvictionBatchSize: 50,
			MaxKeySteps:       5,
		},
		Reward: RewardWeightsConfig{
			Correctness: 0.4,
			Efficiency:  0.2,
			Robustness:  0.2,
			Clarity:     0.2,
		},
		Pattern: PatternConfig{
			MinSupportCount:              2,
			MinSupportFraction:           0.3,
			DecisionSuccessRateThreshold: 0.7,
			QualityWeight:                1.0,
			DecayFactor:                  0.9,
			ConfidenceFloor:              0.05,
			RetentionWindow:              30 * 24 * time.Hour,
			ClusterTagJaccardThreshold:         0.5,
			ClusterEmbeddingSimilarityThreshold: 0.8,
		},
		Retrieval: RetrievalConfig{
			MaxClustersToSearch: 8,
			TemporalBiasWeight:  0.2,
			Lambda:              0.7,
			DiversifyByDefault:  true,
		},
		Sandbox: SandboxConfig{
			MaxCodeBytes:      64 * 1024,
			MaxExecutionTime:  5 * time.Second,
			MaxMemoryBytes:    128 * 1024 * 1024,
			MaxCPUPercent:     100,
			Interpreter:       "python3",
			AllowedPaths:      nil,
			BlockNetwork:      true,
			DenyDangerousAPIs: true,
			MaxOutputBytes:    1 * 1024 * 1024,
		},
		Audit: AuditConfig{
			NATSEnabled: false,
			Subject:     "memory.audit",
		},
	}
}

// LoadConfig loads YAML configuration from path, overlays credentials
// from environment variables, validates the result, and returns it.
// Credentials are never read from the file itself.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MEMORY_DB_URL"); v != "" {
		cfg.Durable.URL = v
	}
	if v := os.Getenv("MEMORY_DB_AUTH_TOKEN"); v != "" {
		cfg.Durable.AuthToken = v
	}
	if v := os.Getenv("MEMORY_NATS_URL"); v != "" {
		cfg.Audit.NATSURL = v
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Durable.Path == "" && c.Durable.URL == "" {
		return fmt.Errorf("durable.path or MEMORY_DB_URL is required")
	}
	if c.Pool.MinSize < 0 {
		return fmt.Errorf("pool.min_size must be >= 0")
	}
	if c.Pool.MaxSize <= 0 {
		return fmt.Errorf("pool.max_size must be > 0")
	}
	if c.Pool.MinSize > c.Pool.MaxSize {
		return fmt.Errorf("pool.min_size (%d) must be <= pool.max_size (%d)", c.Pool.MinSize, c.Pool.MaxSize)
	}
	if c.Capacity.MaxEpisodes <= 0 {
		return fmt.Errorf("capacity.max_episodes must be > 0")
	}
	switch c.Capacity.Policy {
	case EvictionLRU, EvictionRelevanceWeighted:
	default:
		return fmt.Errorf("capacity.policy must be %q or %q, got %q", EvictionLRU, EvictionRelevanceWeighted, c.Capacity.Policy)
	}
	if c.Capacity.Policy == EvictionRelevanceWeighted {
		wsum := c.Capacity.RecencyWeight + c.Capacity.RewardWeight + c.Capacity.AccessWeight
		if wsum <= 0 {
			return fmt.Errorf("capacity relevance-weighted victim weights must sum to a positive value, got %v", wsum)
		}
	}
	if c.Capacity.EvictionBatchSize <= 0 {
		return fmt.Errorf("capacity.eviction_batch_size must be > 0")
	}
	if c.Capacity.MaxKeySteps <= 0 {
		return fmt.Errorf("capacity.max_key_steps must be > 0")
	}
	sum := c.Reward.Correctness + c.Reward.Efficiency + c.Reward.Robustness + c.Reward.Clarity
	if sum <= 0 {
		return fmt.Errorf("reward weights must sum to a positive value, got %v", sum)
	}
	if c.Pattern.MinSupportCount <= 0 {
		return fmt.Errorf("pattern.min_support_count must be > 0")
	}
	if c.Pattern.MinSupportFraction <= 0 || c.Pattern.MinSupportFraction > 1 {
		return fmt.Errorf("pattern.min_support_fraction must be in (0,1]")
	}
	if c.Pattern.DecayFactor <= 0 || c.Pattern.DecayFactor > 1 {
		return fmt.Errorf("pattern.decay_factor must be in (0,1]")
	}
	if c.Retrieval.MaxClustersToSearch <= 0 {
		return fmt.Errorf("retrieval.max_clusters_to_search must be > 0")
	}
	if c.Retrieval.Lambda < 0 || c.Retrieval.Lambda > 1 {
		return fmt.Errorf("retrieval.lambda must be in [0,1]")
	}
	if c.Sandbox.MaxCodeBytes <= 0 {
		return fmt.Errorf("sandbox.max_code_bytes must be > 0")
	}
	if c.Sandbox.MaxExecutionTime <= 0 {
		return fmt.Errorf("sandbox.max_execution_time must be > 0")
	}
	if c.Sandbox.MaxOutputBytes <= 0 {
		return fmt.Errorf("sandbox.max_output_bytes must be > 0")
	}
	if c.Audit.NATSEnabled && c.Audit.NATSURL == "" {
		return fmt.Errorf("audit.nats_url is required when audit.nats_enabled is true")
	}
	return nil
}
