package eviction

import "time"

// Record is one entry of the eviction log.
type Record struct {
	TraceID  string    `json:"trace_id"`
	Tier     string    `json:"tier"`
	Reason   Reason    `json:"reason"`
	Strength float64   `json:"strength"`
	At       time.Time `json:"at"`
}
