package model

import "time"

type Stats struct {
	Lines     int `json:"lines" yaml:"lines" msgpack:"lines"`
	Applied   int `json:"applied" yaml:"applied" msgpack:"applied"`
	Skipped   int `json:"skipped" yaml:"skipped" msgpack:"skipped"`
	Malformed int `json:"malformed" yaml:"malformed" msgpack:"malformed"`
	Filtered  int `json:"filtered" yaml:"filtered" msgpack:"filtered"`
	Signals   int `json:"signals" yaml:"signals" msgpack:"signals"`
}

// Run is one completed aggregation pass.
type Run struct {
	ID         string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Stats      Stats
	Result     Result
}

// Reject is a line that contributed nothing to any record.
type Reject struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
	Kind      string    `json:"kind"`
	Reason    string    `json:"reason"`
	Raw       string    `json:"raw"`
}

const (
	RejectSkipped   = "skipped"
	RejectMalformed = "malformed"
)
