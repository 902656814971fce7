package model

import "time"

// JobStatus is the state of a scheduled job execution.
type JobStatus string

const (
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
	// JobStatusInterrupted marks a run found still "running" on boot,
	// i.e. the previous process died mid-execution.
	JobStatusInterrupted JobStatus = "interrupted"
)

// JobRun is the audit row for one scheduled job execution.
type JobRun struct {
	ID         string     `json:"id"` // uuid
	Job        string     `json:"job"`
	Status     JobStatus  `json:"status"`
	Detail     string     `json:"detail,omitempty"` // JSON outcome (counts, last error)
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// CampaignOutcome summarizes one campaign run; persisted as JobRun detail.
type CampaignOutcome struct {
	Channel   Channel `json:"channel"`
	Sent      int     `json:"sent"`
	Failed    int     `json:"failed"`
	Skipped   int     `json:"skipped"`
	LastError string  `json:"last_error,omitempty"`
}
