package models

import (
	"time"

	"github.com/google/uuid"
)

// SearchRun is one recorded discovery run.
type SearchRun struct {
	ID               uuid.UUID `json:"id"`
	Keyword          string    `json:"keyword"`
	Type             string    `json:"type"`
	Region           string    `json:"region"`
	StartedAt        time.Time `json:"started_at"`
	DurationMS       int64     `json:"duration_ms"`
	ResultCount      int       `json:"result_count"`
	PlaceholderCount int       `json:"placeholder_count"`
	RenderUsed       bool      `json:"render_used"`
	Blocked          int       `json:"blocked"`
	Timeouts         int       `json:"timeouts"`
	Errors           int       `json:"errors"`
}

// SourceOutcome is the stored result of fetching one source during a run.
type SourceOutcome struct {
	RunID       uuid.UUID `json:"run_id"`
	Position    int       `json:"position"`
	SourceID    string    `json:"source_id"`
	SourceName  string    `json:"source_name"`
	URL         string    `json:"url"`
	Outcome     string    `json:"outcome"`
	StatusCode  *int      `json:"status_code,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	RecordCount int       `json:"record_count"`
}
