// Package memory holds the trace model and the canonical trace store.
//
// Every tier is a view over one map keyed by trace id; a trace's Tier field
// decides which view it belongs to. The store also owns the per-tier LRU and
// LFU indices for the working and short-term tiers and keeps them in step with
// tier membership.
package memory

import (
	"sort"
	"strings"
	"time"
)

// Strength bounds.
const (
	MinStrength = 0.0
	MaxStrength = 100.0
)

// historyCap bounds the strength samples kept per trace.
const historyCap = 16

// Trace is one stored memory.
type Trace struct {
	ID               string             `json:"id"`
	Content          any                `json:"content"`
	Vector           []float64          `json:"vector,omitempty"`
	Strength         float64            `json:"strength"`
	Frequency        int                `json:"frequency"`
	EmotionalValence float64            `json:"emotional_valence"`
	Tags             []string           `json:"tags,omitempty"`
	Tier             Tier               `json:"tier"`
	DecayRate        float64            `json:"decay_rate"`
	Associations     map[string]float64 `json:"associations,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	LastAccessed     time.Time          `json:"last_accessed"`
	AccessCount      int                `json:"access_count"`

	TierEnteredAt time.Time `json:"tier_entered_at"`
	DecayedAt     time.Time `json:"decayed_at"`
	History       []float64 `json:"history,omitempty"`
}

// SetStrength clamps v into [0,100] and records the new value in the
// history when it changed.
func (t *Trace) SetStrength(v float64) {
	v = ClampStrength(v)
	if v == t.Strength && len(t.History) > 0 {
		return
	}
	t.Strength = v
	t.History = append(t.History, v)
	if len(t.History) > historyCap {
		t.History = t.History[len(t.History)-historyCap:]
	}
}

// Declining reports whether the last n strength samples are monotonically
// decreasing: no sample rises and the last is below the first. Fewer than n
// samples never count as a decline.
func (t *Trace) Declining(n int) bool {
	if n < 2 || len(t.History) < n {
		return false
	}
	tail := t.History[len(t.History)-n:]
	for i := 1; i < len(tail); i++ {
		if tail[i] > tail[i-1] {
			return false
		}
	}
	return tail[n-1] < tail[0]
}

// HasTag reports whether the trace carries tag.
func (t *Trace) HasTag(tag string) bool {
	i := sort.SearchStrings(t.Tags, tag)
	return i < len(t.Tags) && t.Tags[i] == tag
}

// Clone returns a deep copy safe to hand outside the store.
// Content is shared; the store never inspects or mutates it.
func (t *Trace) Clone() Trace {
	c := *t
	c.Vector = append([]float64(nil), t.Vector...)
	c.Tags = append([]string(nil), t.Tags...)
	c.History = append([]float64(nil), t.History...)
	if t.Associations != nil {
		c.Associations = make(map[string]float64, len(t.Associations))
		for k, v := range t.Associations {
			c.Associations[k] = v
		}
	}
	return c
}

// ClampStrength bounds v to [MinStrength, MaxStrength].
func ClampStrength(v float64) float64 {
	if v < MinStrength || v != v {
		return MinStrength
	}
	if v > MaxStrength {
		return MaxStrength
	}
	return v
}

// ClampValence bounds v to [-1, 1].
func ClampValence(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	if v != v {
		return 0
	}
	return v
}

// NormalizeTags trims, drops empties, removes duplicates and sorts.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
