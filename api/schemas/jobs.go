package schemas

import (
	"strings"
	"time"
)

// JobStatus is the client-side view of a remote run's lifecycle.
type JobStatus string

const (
	JobQueued    JobStatus = "QUEUED"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
)

// Rank orders statuses so that transitions can be checked for monotonicity.
func (s JobStatus) Rank() int {
	switch s {
	case JobQueued:
		return 0
	case JobRunning:
		return 1
	case JobSucceeded, JobFailed:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// ParseRemoteStatus maps the execution service's wire statuses onto JobStatus.
func ParseRemoteStatus(raw string) JobStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "READY", "QUEUED":
		return JobQueued
	case "RUNNING", "TIMING-OUT", "ABORTING":
		return JobRunning
	case "SUCCEEDED":
		return JobSucceeded
	case "FAILED", "ABORTED", "TIMED-OUT":
		return JobFailed
	default:
		return JobQueued
	}
}

// JobRecord describes one remotely executed run.
type JobRecord struct {
	ID             string     `json:"id"`
	Status         JobStatus  `json:"status"`
	RemoteStatus   string     `json:"remote_status,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	OutputStoreRef string     `json:"output_store_ref,omitempty"`
}
