package model

import "time"

// JobStatus is the tri-state result of an execution job
type JobStatus int

const (
	JobPending JobStatus = iota
	JobSucceeded
	JobFailed
)

func (s JobStatus) String() string {
	switch s {
	case JobSucceeded:
		return "succeeded"
	case JobFailed:
		return "failed"
	default:
		return "pending"
	}
}

// ExecutionLog represents a server-side execution job of a provisioning or deploy action
type ExecutionLog struct {
	Slug          string     `json:"slug"`
	Action        string     `json:"action"`
	IsSuccess     *bool      `json:"is_success"`
	Component     string     `json:"component"`
	ComponentSlug string     `json:"component_slug"`
	EndedAt       *time.Time `json:"ended_at"`
}

// Status derives the job status from IsSuccess. A job with EndedAt set but no
// IsSuccess is still pending.
func (x *ExecutionLog) Status() JobStatus {
	if x.IsSuccess == nil {
		return JobPending
	}
	if *x.IsSuccess {
		return JobSucceeded
	}
	return JobFailed
}
