package model

import (
	"slices"
	"sort"
)

type Phase int

const (
	PhaseAwaitingFirstEvent Phase = iota
	PhaseActiveViolation
	PhaseNominal
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingFirstEvent:
		return "awaiting_first_event"
	case PhaseActiveViolation:
		return "active_violation"
	case PhaseNominal:
		return "nominal"
	}
	return "unknown"
}

func ParsePhase(s string) Phase {
	switch s {
	case "active_violation":
		return PhaseActiveViolation
	case "nominal":
		return PhaseNominal
	}
	return PhaseAwaitingFirstEvent
}

// Violation is either *NumericViolation or *StateViolation.
type Violation interface {
	Kind() string
	clone() Violation
}

type NumericViolation struct {
	Initial float64
	Min     float64
	Max     float64
	Limit   float64
}

func (*NumericViolation) Kind() string { return "numeric" }

func (n *NumericViolation) clone() Violation {
	c := *n
	return &c
}

// Observe widens the extrema to include v.
func (n *NumericViolation) Observe(v float64) {
	if v > n.Max {
		n.Max = v
	}
	if v < n.Min {
		n.Min = v
	}
}

type StateViolation struct {
	Initial string
	Limit   string
	Log     []string
}

func (*StateViolation) Kind() string { return "state" }

func (s *StateViolation) clone() Violation {
	c := *s
	c.Log = slices.Clone(s.Log)
	return &c
}

type ViolationRecord struct {
	Owner          string
	Description    string
	Phase          Phase
	FirstViolation string
	EndTime        string
	Toggles        int
	WorstSeverity  Status
	Comment        string
	Violation      Violation
}

// Opened reports whether a violation has ever been recorded.
func (r *ViolationRecord) Opened() bool {
	return r.FirstViolation != ""
}

func (r *ViolationRecord) Numeric() (*NumericViolation, bool) {
	n, ok := r.Violation.(*NumericViolation)
	return n, ok
}

func (r *ViolationRecord) State() (*StateViolation, bool) {
	s, ok := r.Violation.(*StateViolation)
	return s, ok
}

func (r *ViolationRecord) Clone() *ViolationRecord {
	c := *r
	if r.Violation != nil {
		c.Violation = r.Violation.clone()
	}
	return &c
}

// Result maps signal identifiers to their violation records.
type Result map[string]*ViolationRecord

func (r Result) SignalIDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r Result) Clone() Result {
	out := make(Result, len(r))
	for id, rec := range r {
		out[id] = rec.Clone()
	}
	return out
}

// Row is the flat, serializable form of a record.
type Row struct {
	SignalID       string   `json:"signal_id" yaml:"signal_id" msgpack:"signal_id"`
	Owner          string   `json:"owner" yaml:"owner" msgpack:"owner"`
	Description    string   `json:"description" yaml:"description" msgpack:"description"`
	Phase          string   `json:"phase" yaml:"phase" msgpack:"phase"`
	Kind           string   `json:"kind,omitempty" yaml:"kind,omitempty" msgpack:"kind,omitempty"`
	FirstViolation string   `json:"first_violation,omitempty" yaml:"first_violation,omitempty" msgpack:"first_violation,omitempty"`
	EndTime        string   `json:"end_time,omitempty" yaml:"end_time,omitempty" msgpack:"end_time,omitempty"`
	Toggles        int      `json:"toggles" yaml:"toggles" msgpack:"toggles"`
	WorstSeverity  string   `json:"worst_severity,omitempty" yaml:"worst_severity,omitempty" msgpack:"worst_severity,omitempty"`
	Comment        string   `json:"comment,omitempty" yaml:"comment,omitempty" msgpack:"comment,omitempty"`
	InitialValue   *float64 `json:"initial_value,omitempty" yaml:"initial_value,omitempty" msgpack:"initial_value,omitempty"`
	MinValue       *float64 `json:"min_value,omitempty" yaml:"min_value,omitempty" msgpack:"min_value,omitempty"`
	MaxValue       *float64 `json:"max_value,omitempty" yaml:"max_value,omitempty" msgpack:"max_value,omitempty"`
	Limit          *float64 `json:"limit,omitempty" yaml:"limit,omitempty" msgpack:"limit,omitempty"`
	InitialState   string   `json:"initial_state,omitempty" yaml:"initial_state,omitempty" msgpack:"initial_state,omitempty"`
	LimitState     string   `json:"limit_state,omitempty" yaml:"limit_state,omitempty" msgpack:"limit_state,omitempty"`
	StateLog       []string `json:"state_log,omitempty" yaml:"state_log,omitempty" msgpack:"state_log,omitempty"`
}

func (r *ViolationRecord) Row(signalID string) Row {
	row := Row{
		SignalID:       signalID,
		Owner:          r.Owner,
		Description:    r.Description,
		Phase:          r.Phase.String(),
		FirstViolation: r.FirstViolation,
		EndTime:        r.EndTime,
		Toggles:        r.Toggles,
		WorstSeverity:  r.WorstSeverity.Raw,
		Comment:        r.Comment,
	}
	switch v := r.Violation.(type) {
	case *NumericViolation:
		row.Kind = v.Kind()
		row.InitialValue = ptr(v.Initial)
		row.MinValue = ptr(v.Min)
		row.MaxValue = ptr(v.Max)
		row.Limit = ptr(v.Limit)
	case *StateViolation:
		row.Kind = v.Kind()
		row.InitialState = v.Initial
		row.LimitState = v.Limit
		row.StateLog = slices.Clone(v.Log)
	}
	return row
}

// Record rebuilds a record from its flat form.
func (row Row) Record() *ViolationRecord {
	rec := &ViolationRecord{
		Owner:          row.Owner,
		Description:    row.Description,
		Phase:          ParsePhase(row.Phase),
		FirstViolation: row.FirstViolation,
		EndTime:        row.EndTime,
		Toggles:        row.Toggles,
		Comment:        row.Comment,
	}
	if row.WorstSeverity != "" {
		if st, ok := ParseStatus(row.WorstSeverity); ok {
			rec.WorstSeverity = st
		} else {
			rec.WorstSeverity = Status{Raw: row.WorstSeverity}
		}
	}
	switch row.Kind {
	case "numeric":
		rec.Violation = &NumericViolation{
			Initial: deref(row.InitialValue),
			Min:     deref(row.MinValue),
			Max:     deref(row.MaxValue),
			Limit:   deref(row.Limit),
		}
	case "state":
		rec.Violation = &StateViolation{
			Initial: row.InitialState,
			Limit:   row.LimitState,
			Log:     slices.Clone(row.StateLog),
		}
	}
	return rec
}

// Rows flattens a result ordered by signal id.
func (r Result) Rows() []Row {
	ids := r.SignalIDs()
	rows := make([]Row, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, r[id].Row(id))
	}
	return rows
}

func ptr(v float64) *float64 {
	return &v
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
