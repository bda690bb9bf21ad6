package queue

import (
	"encoding/json"
	"time"

	"autoapply/internal/core/jobs"
)

type Operation string

const (
	OpSearch     Operation = "search"
	OpApply      Operation = "apply"
	OpJobDetails Operation = "job_details"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// TaskParams carries the operation-specific input. Exactly one group is
// set depending on the operation.
type TaskParams struct {
	Search      *jobs.SearchParams `json:"search,omitempty"`
	JobURL      string             `json:"job_url,omitempty"`
	Job         *jobs.ScrapedJob   `json:"job,omitempty"`
	Credentials *jobs.Credentials  `json:"credentials,omitempty"`
}

// Task is the persisted record of one queued scrape operation. Attempts
// counts executions that actually started; it never exceeds MaxAttempts.
type Task struct {
	ID          string          `json:"id"`
	Platform    jobs.Platform   `json:"platform"`
	Operation   Operation       `json:"operation"`
	Params      TaskParams      `json:"params"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// taskPayload is the asynq message body; the record itself lives in Redis
// so retries always see the latest attempt count.
type taskPayload struct {
	TaskID string `json:"task_id"`
}
