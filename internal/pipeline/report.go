package pipeline

import "time"

// Phase names a pass type.
type Phase string

const (
	PhasePrefetch Phase = "prefetch"
	PhaseBetting  Phase = "betting"
)

// PassReport summarizes one pass. Dry-run passes are flagged so their
// outcomes are never confused with live ones.
type PassReport struct {
	Phase      Phase         `json:"phase"`
	DryRun     bool          `json:"dry_run"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Events     []EventReport `json:"events"`
	Error      string        `json:"error,omitempty"`
}

// EventReport is the outcome for one event within a pass.
type EventReport struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name,omitempty"`
	Markets    int            `json:"markets"`
	Categories map[string]int `json:"categories,omitempty"`
	Skipped    int            `json:"skipped_selections,omitempty"`
	Matched    int            `json:"matched"`
	Placed     int            `json:"placed"`
	Failed     int            `json:"failed"`
	DryRun     int            `json:"dry_run"`
	Duplicates int            `json:"duplicates,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
}

// HasErrors reports whether the event hit any error.
func (r EventReport) HasErrors() bool { return len(r.Errors) > 0 }

// Totals sums per-event counters.
func (p PassReport) Totals() EventReport {
	var t EventReport
	for _, e := range p.Events {
		t.Markets += e.Markets
		t.Skipped += e.Skipped
		t.Matched += e.Matched
		t.Placed += e.Placed
		t.Failed += e.Failed
		t.DryRun += e.DryRun
		t.Duplicates += e.Duplicates
		t.Errors = append(t.Errors, e.Errors...)
	}
	return t
}
