package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lazypower/tiermem/internal/memory"
)

// Config holds all tiermem configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Memory      MemoryConfig      `yaml:"memory"`
	Eviction    EvictionConfig    `yaml:"eviction"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // empty means ~/.tiermem/tiermem.db
}

type EmbeddingConfig struct {
	Provider  string   `yaml:"provider"` // "hash", "tfidf", "ollama", "openai"
	Model     string   `yaml:"model"`    // empty uses the provider default
	URL       string   `yaml:"url"`      // empty uses the provider default
	APIKey    string   `yaml:"api_key"`
	CacheSize int64    `yaml:"cache_size"` // cached vectors, 0 disables the cache
	Corpus    []string `yaml:"corpus"`     // tfidf seed documents
}

// PerTier holds one value per tier.
type PerTier[T any] struct {
	Working   T `yaml:"working"`
	ShortTerm T `yaml:"short_term"`
	LongTerm  T `yaml:"long_term"`
	Permanent T `yaml:"permanent"`
}

// For returns the value configured for tier.
func (p PerTier[T]) For(tier memory.Tier) T {
	switch tier {
	case memory.ShortTerm:
		return p.ShortTerm
	case memory.LongTerm:
		return p.LongTerm
	case memory.Permanent:
		return p.Permanent
	default:
		return p.Working
	}
}

// Thresholds are the strengths at which a trace earns a tier.
type Thresholds struct {
	ShortTerm float64 `yaml:"short_term"`
	LongTerm  float64 `yaml:"long_term"`
	Permanent float64 `yaml:"permanent"`
}

// Earned maps a strength to the tier it justifies.
func (t Thresholds) Earned(strength float64) memory.Tier {
	switch {
	case strength >= t.Permanent:
		return memory.Permanent
	case strength >= t.LongTerm:
		return memory.LongTerm
	case strength >= t.ShortTerm:
		return memory.ShortTerm
	default:
		return memory.Working
	}
}

type MemoryConfig struct {
	Dimensions           int              `yaml:"dimensions"`
	InitialStrength      float64          `yaml:"initial_strength"`
	DecayRate            float64          `yaml:"decay_rate"` // strength points per day in working
	HardFloor            float64          `yaml:"hard_floor"`
	Thresholds           Thresholds       `yaml:"thresholds"`
	DecayMultiplier      PerTier[float64] `yaml:"decay_multiplier"`
	AssociationThreshold float64          `yaml:"association_threshold"`
	CandidateThreshold   float64          `yaml:"candidate_threshold"`
	ResultLimit          int              `yaml:"result_limit"`
	StrengthenFactor     float64          `yaml:"strengthen_factor"`
	Capacity             PerTier[int]     `yaml:"capacity"`
	TotalCapacity        int              `yaml:"total_capacity"`
}

// Weights combine the eviction score terms.
type Weights struct {
	Strength   float64 `yaml:"strength"`
	Recency    float64 `yaml:"recency"`
	Frequency  float64 `yaml:"frequency"`
	Emotional  float64 `yaml:"emotional"`
	Contextual float64 `yaml:"contextual"`
}

const weightTolerance = 1e-6

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Strength + w.Recency + w.Frequency + w.Emotional + w.Contextual
}

// PolicyName normalizes a configured eviction policy name. Matching is
// case-insensitive and strength_based is accepted for strength.
func PolicyName(s string) (string, error) {
	switch p := strings.ToLower(strings.TrimSpace(s)); p {
	case "lru", "lfu", "strength", "hybrid", "adaptive":
		return p, nil
	case "strength_based", "strength-based":
		return "strength", nil
	}
	return "", fmt.Errorf("unknown eviction policy %q", s)
}

type EvictionConfig struct {
	Policy              string        `yaml:"policy"` // lru, lfu, strength, hybrid, adaptive
	Weights             Weights       `yaml:"weights"`
	ProtectionThreshold float64       `yaml:"protection_threshold"`
	RecentWindow        time.Duration `yaml:"recent_window"`
	ValenceThreshold    float64       `yaml:"valence_threshold"`
	FrequencyThreshold  int           `yaml:"frequency_threshold"`
	TrendWindow         int           `yaml:"trend_window"`
}

type MaintenanceConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			CacheSize: 4096,
		},
		Memory: MemoryConfig{
			Dimensions:      300,
			InitialStrength: 50,
			DecayRate:       1,
			HardFloor:       5,
			Thresholds:      Thresholds{ShortTerm: 30, LongTerm: 70, Permanent: 90},
			DecayMultiplier: PerTier[float64]{
				Working: 1, ShortTerm: 1, LongTerm: 0.1, Permanent: 0.01,
			},
			AssociationThreshold: 0.5,
			CandidateThreshold:   0.3,
			ResultLimit:          20,
			StrengthenFactor:     1.05,
			Capacity: PerTier[int]{
				Working: 7, ShortTerm: 50, LongTerm: 500, Permanent: 5000,
			},
			TotalCapacity: 10000,
		},
		Eviction: EvictionConfig{
			Policy: "hybrid",
			Weights: Weights{
				Strength: 0.4, Recency: 0.3, Frequency: 0.2, Emotional: 0.05, Contextual: 0.05,
			},
			ProtectionThreshold: 90,
			RecentWindow:        24 * time.Hour,
			ValenceThreshold:    0.7,
			FrequencyThreshold:  10,
			TrendWindow:         5,
		},
		Maintenance: MaintenanceConfig{
			Interval: 5 * time.Minute,
		},
	}
}

// Load reads a YAML file over the defaults. A missing file yields the
// defaults. Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TIERMEM_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Embedding.APIKey == "" {
		c.Embedding.APIKey = v
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	m := c.Memory
	if m.Dimensions <= 0 {
		return fmt.Errorf("memory.dimensions must be positive, got %d", m.Dimensions)
	}
	th := m.Thresholds
	if !(0 < th.ShortTerm && th.ShortTerm < th.LongTerm && th.LongTerm < th.Permanent && th.Permanent <= 100) {
		return fmt.Errorf("memory.thresholds must be strictly increasing within (0,100], got %v/%v/%v",
			th.ShortTerm, th.LongTerm, th.Permanent)
	}
	if m.HardFloor < 0 || m.HardFloor >= th.ShortTerm {
		return fmt.Errorf("memory.hard_floor %v must be below the short-term threshold", m.HardFloor)
	}
	if m.InitialStrength < 0 || m.InitialStrength > 100 {
		return fmt.Errorf("memory.initial_strength %v out of range", m.InitialStrength)
	}
	if m.DecayRate < 0 {
		return fmt.Errorf("memory.decay_rate must not be negative")
	}
	for _, tier := range memory.Tiers {
		if m.DecayMultiplier.For(tier) <= 0 {
			return fmt.Errorf("memory.decay_multiplier.%s must be positive", tier)
		}
		if m.Capacity.For(tier) <= 0 {
			return fmt.Errorf("memory.capacity.%s must be positive", tier)
		}
	}
	if m.TotalCapacity <= 0 {
		return fmt.Errorf("memory.total_capacity must be positive")
	}

	w := c.Eviction.Weights
	for name, v := range map[string]float64{
		"strength": w.Strength, "recency": w.Recency, "frequency": w.Frequency,
		"emotional": w.Emotional, "contextual": w.Contextual,
	} {
		if v < 0 {
			return fmt.Errorf("eviction.weights.%s must not be negative", name)
		}
	}
	if w.Sum() <= 0 {
		return fmt.Errorf("eviction.weights must not all be zero")
	}
	if math.Abs(w.Sum()-1) > weightTolerance {
		return fmt.Errorf("eviction.weights must sum to 1, got %v", w.Sum())
	}
	if _, err := PolicyName(c.Eviction.Policy); err != nil {
		return fmt.Errorf("eviction.policy: %w", err)
	}
	if c.Maintenance.Interval <= 0 {
		return fmt.Errorf("maintenance.interval must be positive")
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// DefaultPath returns ~/.tiermem/config.yaml, or TIERMEM_CONFIG when set.
func DefaultPath() string {
	if v := os.Getenv("TIERMEM_CONFIG"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".tiermem", "config.yaml")
}
