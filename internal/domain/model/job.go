package model

import "time"

// JobStatus is the lifecycle state of a Job.
type JobStatus string

// Job states. Transitions are queued -> processing -> completed|failed.
const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobErrUnknownCreator marks a job that failed because the creator does not
// exist upstream.
const JobErrUnknownCreator = "unknown_creator"

// Well-known job priorities. Higher runs first.
const (
	PriorityBatch       = 0
	PriorityCast        = 5
	PriorityInteractive = 10
)

// Job is one score computation request for one creator.
type Job struct {
	ID         string        `json:"id"`
	CreatorID  int64         `json:"fid"`
	Priority   int           `json:"priority"`
	Status     JobStatus     `json:"status"`
	Attempts   int           `json:"attempts"`
	CreatedAt  time.Time     `json:"createdAt"`
	StartedAt  *time.Time    `json:"startedAt,omitempty"`
	FinishedAt *time.Time    `json:"finishedAt,omitempty"`
	Result     *CreatorScore `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
	ErrorCode  string        `json:"errorCode,omitempty"`
}
