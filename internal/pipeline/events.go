package pipeline

import "time"

const (
	EventNormalized = "video.normalized"
	EventFailed     = "video.failed"
)

// Event is emitted once per run, after the artifact has been placed or the
// run has failed.
type Event struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	Type        string    `json:"type"`
	Source      string    `json:"source"`
	Strategy    string    `json:"strategy,omitempty"`
	Attempts    int       `json:"attempts"`
	Destination string    `json:"destination,omitempty"`
	Locator     string    `json:"locator,omitempty"`
	SizeBytes   int64     `json:"size_bytes,omitempty"`
	Checksum    string    `json:"checksum,omitempty"`
	Error       string    `json:"error,omitempty"`
	Skippable   bool      `json:"skippable,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
