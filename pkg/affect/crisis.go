package affect

import "fmt"

// CrisisLevel is the discrete risk tier of a turn or a session. Levels are
// totally ordered: a higher value is always at least as severe.
type CrisisLevel int

const (
	CrisisNone CrisisLevel = iota
	CrisisLow
	CrisisMedium
	CrisisHigh
	CrisisCritical
)

var crisisNames = [...]string{"none", "low", "medium", "high", "critical"}

// String returns the lower-case name of the level.
func (l CrisisLevel) String() string {
	if l < CrisisNone || l > CrisisCritical {
		return "unknown"
	}
	return crisisNames[l]
}

// IsValid reports whether l is one of the declared levels.
func (l CrisisLevel) IsValid() bool {
	return l >= CrisisNone && l <= CrisisCritical
}

// ParseCrisisLevel converts a level name back into a [CrisisLevel].
func ParseCrisisLevel(s string) (CrisisLevel, error) {
	for i, name := range crisisNames {
		if name == s {
			return CrisisLevel(i), nil
		}
	}
	return CrisisNone, fmt.Errorf("affect: unknown crisis level %q", s)
}

// MarshalText implements [encoding.TextMarshaler] so levels serialise as names.
func (l CrisisLevel) MarshalText() ([]byte, error) {
	if !l.IsValid() {
		return nil, fmt.Errorf("affect: invalid crisis level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (l *CrisisLevel) UnmarshalText(b []byte) error {
	v, err := ParseCrisisLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// MaxLevel returns the more severe of a and b.
func MaxLevel(a, b CrisisLevel) CrisisLevel {
	if a > b {
		return a
	}
	return b
}
