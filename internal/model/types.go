package model

import "strings"

// NoneValue marks a measured value lost to corrupted telemetry.
const NoneValue = "none"

// NotKnown is the owner and description of a signal whose metadata could not be resolved.
const NotKnown = "Not Known"

// BareNominalComment is attached to a record first seen on a NOMINAL line.
const BareNominalComment = "return to nominal is observed before violation"

type Level int

const (
	LevelNominal Level = iota
	LevelCaution
	LevelWarning
	LevelOutOfState
)

func (l Level) String() string {
	switch l {
	case LevelNominal:
		return "nominal"
	case LevelCaution:
		return "caution"
	case LevelWarning:
		return "warning"
	case LevelOutOfState:
		return "out_of_state"
	}
	return "unknown"
}

// Rank orders the numeric levels. OUT-OF-STATE has no rank.
func (l Level) Rank() (int, bool) {
	switch l {
	case LevelNominal:
		return 0, true
	case LevelCaution:
		return 1, true
	case LevelWarning:
		return 2, true
	}
	return 0, false
}

// Outranks reports whether l is strictly more severe than other. Levels
// without a rank never outrank and are never outranked.
func (l Level) Outranks(other Level) bool {
	a, ok := l.Rank()
	if !ok {
		return false
	}
	b, ok := other.Rank()
	if !ok {
		return false
	}
	return a > b
}

// Numeric reports whether the level belongs to a threshold crossing.
func (l Level) Numeric() bool {
	return l == LevelCaution || l == LevelWarning
}

// Status is a status token as written in the log together with its level.
// Raw keeps suffixes such as WARNING-HIGH.
type Status struct {
	Level Level
	Raw   string
}

func (s Status) String() string {
	return s.Raw
}

func (s Status) IsZero() bool {
	return s.Raw == ""
}

// ParseStatus classifies a status token. WARNING is matched before CAUTION.
func ParseStatus(token string) (Status, bool) {
	switch {
	case token == "NOMINAL":
		return Status{Level: LevelNominal, Raw: token}, true
	case strings.Contains(token, "WARNING"):
		return Status{Level: LevelWarning, Raw: token}, true
	case strings.Contains(token, "CAUTION"):
		return Status{Level: LevelCaution, Raw: token}, true
	case strings.HasPrefix(token, "OUT-OF-STATE"):
		return Status{Level: LevelOutOfState, Raw: token}, true
	}
	return Status{}, false
}

type LogLine struct {
	Timestamp string `json:"timestamp"`
	SignalID  string `json:"signal_id"`
	Status    Status `json:"-"`
	Value     string `json:"value"`
	Operator  string `json:"operator"`
	Limit     string `json:"limit"`
	Raw       string `json:"raw,omitempty"`
	Source    string `json:"source,omitempty"`
}

// HasValue is false for lines whose measured value was lost.
func (l LogLine) HasValue() bool {
	return l.Value != NoneValue
}

type Metadata struct {
	Owner       string `json:"owner" yaml:"owner"`
	Description string `json:"description" yaml:"description"`
}

func UnknownMetadata() Metadata {
	return Metadata{Owner: NotKnown, Description: NotKnown}
}
