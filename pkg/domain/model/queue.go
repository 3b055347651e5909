package model

import "time"

// ScoreInfinity is an upper bound later than any real score. RangeByScore with it returns every entry.
var ScoreInfinity = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// QueueEntry is an acknowledgement check waiting in the retry queue.
// Score is the last time the check was run and decides when it is due again.
type QueueEntry struct {
	Ref   MessageRef
	Score time.Time
}

// EvaluateResult is the outcome of one acknowledgement evaluation
type EvaluateResult struct {
	Ref         MessageRef `json:"ref"`
	IsComplete  bool       `json:"is_complete"`
	NotFound    bool       `json:"not_found"`
	Outstanding []string   `json:"outstanding"`
	Reminded    int        `json:"reminded"`

	UnresolvedGroups []string `json:"unresolved_groups,omitempty"`
}

// SweepResult groups the references handled by one sweep
type SweepResult struct {
	SweepID    string       `json:"sweep_id"`
	StartedAt  time.Time    `json:"started_at"`
	Complete   []MessageRef `json:"complete"`
	Incomplete []MessageRef `json:"incomplete"`
	Failed     []MessageRef `json:"failed"`
	Expired    []MessageRef `json:"expired"`
}
