package eviction

import (
	"fmt"
	"strings"
)

// Pressure is an external signal that raises the eviction target above
// plain overflow.
type Pressure int

const (
	PressureNone Pressure = iota
	PressureLow
	PressureMedium
	PressureHigh
	PressureCritical
)

var pressureNames = []string{"none", "low", "medium", "high", "critical"}

func (p Pressure) String() string {
	if p < 0 || int(p) >= len(pressureNames) {
		return fmt.Sprintf("pressure(%d)", int(p))
	}
	return pressureNames[p]
}

// ParsePressure maps a name to a Pressure level.
func ParsePressure(s string) (Pressure, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range pressureNames {
		if name == s {
			return Pressure(i), nil
		}
	}
	return PressureNone, fmt.Errorf("unknown pressure level %q", s)
}

// Target returns how many traces to evict from a tier holding size traces
// with the given capacity. Without pressure it is the overflow; with
// pressure it is the larger of the overflow and the pressure-scaled count.
// A tier within capacity yields zero at any pressure.
func Target(size, capacity int, p Pressure) int {
	if size <= 0 || size <= capacity {
		return 0
	}
	target := size - capacity

	var scaled int
	switch p {
	case PressureCritical:
		scaled = percentOf(size, 30)
	case PressureHigh:
		scaled = percentOf(size, 20)
	case PressureMedium:
		scaled = percentOf(size, 10)
	case PressureLow:
		scaled = size - capacity*80/100
	}
	return min(max(target, scaled), size)
}

// percentOf rounds up so a non-empty tier under pressure always yields one.
func percentOf(size, pct int) int {
	return (size*pct + 99) / 100
}
