// Package eviction decides which traces leave a tier when it runs over
// capacity. It scores traces, applies protection rules and nominates
// victims; removing them is left to the caller.
package eviction

import (
	"math"
	"time"

	"github.com/lazypower/tiermem/internal/config"
	"github.com/lazypower/tiermem/internal/memory"
)

// Policy selects how traces are ranked for eviction.
type Policy string

const (
	LRU      Policy = "lru"
	LFU      Policy = "lfu"
	Strength Policy = "strength"
	Hybrid   Policy = "hybrid"
	Adaptive Policy = "adaptive"
)

// ParsePolicy maps a configured name to a Policy.
func ParsePolicy(s string) (Policy, error) {
	name, err := config.PolicyName(s)
	if err != nil {
		return "", err
	}
	return Policy(name), nil
}

// Reason records why a trace was removed.
type Reason string

const (
	LowStrength    Reason = "low_strength"
	LowFrequency   Reason = "low_frequency"
	OldAccess      Reason = "old_access"
	CapacityLimit  Reason = "capacity_limit"
	DecayThreshold Reason = "decay_threshold"
)

// Reasons lists every reason, for stats output.
var Reasons = []Reason{LowStrength, LowFrequency, OldAccess, CapacityLimit, DecayThreshold}

// recencyHorizon is the age at which the recency term saturates.
const recencyHorizon = 7 * 24 * time.Hour

// Terms are the normalized score inputs for one trace. Each lies in [0,1]
// and higher means more evictable.
type Terms struct {
	Strength   float64 `json:"strength"`
	Recency    float64 `json:"recency"`
	Frequency  float64 `json:"frequency"`
	Emotional  float64 `json:"emotional"`
	Contextual float64 `json:"contextual"`
}

// TermsFor computes the score inputs of t at now.
func TermsFor(t *memory.Trace, now time.Time) Terms {
	var terms Terms
	terms.Strength = (memory.MaxStrength - memory.ClampStrength(t.Strength)) / memory.MaxStrength

	if elapsed := now.Sub(t.LastAccessed); elapsed > 0 {
		terms.Recency = math.Min(float64(elapsed)/float64(recencyHorizon), 1)
	}

	f := t.Frequency
	if f < 1 {
		f = 1
	}
	terms.Frequency = math.Max(0, 1-math.Log(float64(f))/10)

	if t.EmotionalValence < 0 {
		terms.Emotional = math.Min(-t.EmotionalValence, 1)
	}
	if len(t.Tags) == 0 {
		terms.Contextual = 1
	}
	return terms
}
