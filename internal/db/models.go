package db

import (
	"time"
)

// EventRecord is one journal row.
type EventRecord struct {
	ID           int64     `json:"id"`
	Kind         string    `json:"kind"`
	OccurredAt   time.Time `json:"occurred_at"`
	JobID        *int      `json:"job_id,omitempty"`
	Printer      string    `json:"printer,omitempty"`
	Status       string    `json:"status,omitempty"`
	ExitStatus   *int      `json:"exit_status,omitempty"`
	ProcessGroup *int      `json:"process_group,omitempty"`
	DetailJSON   string    `json:"detail_json"`
}

type EventFilter struct {
	JobID *int
	Kind  string
	Limit int
}
