package orchestrator

import "time"

// Sweep names.
const (
	SweepPhone    = "phone"
	SweepOutreach = "outreach"
	SweepFollowUp = "follow_up"
)

// SweepReport counts the items of one sweep.
type SweepReport struct {
	Name      string `json:"name"`
	Processed int    `json:"processed"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Disabled  bool   `json:"disabled,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Stopped    bool          `json:"stopped"`
	Error      string        `json:"error,omitempty"`
	Sweeps     []SweepReport `json:"sweeps"`
}

func (r *CycleReport) clone() *CycleReport {
	if r == nil {
		return nil
	}
	out := *r
	out.Sweeps = append([]SweepReport(nil), r.Sweeps...)
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		out.FinishedAt = &t
	}
	return &out
}

// itemResult classifies how a single sweep item ended.
type itemResult int

const (
	itemSucceeded itemResult = iota
	itemFailed
	itemSkipped
)

func (s *SweepReport) count(r itemResult) {
	s.Processed++
	switch r {
	case itemSucceeded:
		s.Succeeded++
	case itemFailed:
		s.Failed++
	case itemSkipped:
		s.Skipped++
	}
}
