package memory

import "fmt"

// Tier is a consolidation state. Tiers are ordered from least to most durable.
type Tier int

const (
	Working Tier = iota
	ShortTerm
	LongTerm
	Permanent
)

// Tiers lists every tier in promotion order.
var Tiers = []Tier{Working, ShortTerm, LongTerm, Permanent}

var tierNames = map[Tier]string{
	Working:   "working",
	ShortTerm: "short_term",
	LongTerm:  "long_term",
	Permanent: "permanent",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Indexed reports whether the tier keeps LRU/LFU indices.
func (t Tier) Indexed() bool {
	return t == Working || t == ShortTerm
}

// Next returns the tier one step more durable, or t itself at the top.
func (t Tier) Next() Tier {
	if t >= Permanent {
		return Permanent
	}
	return t + 1
}

// ParseTier maps a tier name back to its value.
func ParseTier(s string) (Tier, error) {
	for t, name := range tierNames {
		if name == s {
			return t, nil
		}
	}
	switch s {
	case "short-term":
		return ShortTerm, nil
	case "long-term":
		return LongTerm, nil
	}
	return Working, fmt.Errorf("unknown tier %q", s)
}

// MarshalText lets tiers appear by name in JSON and YAML.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a tier name.
func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
