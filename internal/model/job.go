package model

import (
	"encoding/json"
	"math"
	"time"
)

// JobStatus is the lifecycle state of a render job.
type JobStatus string

const (
	JobStatusSubmitted  JobStatus = "submitted"
	JobStatusProcessing JobStatus = "processing"
	JobStatusRetrying   JobStatus = "retrying"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusSubmitted, JobStatusProcessing, JobStatusRetrying, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// JobOutput describes the delivered artifact. Every field stays null until
// the job completes, and all of them are always serialized.
type JobOutput struct {
	URL          *string    `json:"url"`
	URLExpiresAt *time.Time `json:"urlExpiresAt"`
	StorageURI   *string    `json:"storageUri"`
	Duration     *float64   `json:"duration"`
	Size         *int64     `json:"size"`
}

// Job is the persisted job record.
type Job struct {
	JobID          string          `json:"jobId"`
	Status         JobStatus       `json:"status"`
	SubmittedAt    time.Time       `json:"submittedAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
	ProcessingTime *float64        `json:"processingTime,omitempty"`
	Output         JobOutput       `json:"output"`
	Error          *string         `json:"error,omitempty"`
	JobInfo        json.RawMessage `json:"jobInfo,omitempty"`
	TTL            time.Time       `json:"-"` // storage expiry, never exposed
}

// JobUpdate is a keyed set of field changes. Nil fields are left untouched.
// A non-nil Error pointing at "" clears the stored error.
type JobUpdate struct {
	Status         JobStatus
	UpdatedAt      time.Time
	CompletedAt    *time.Time
	ProcessingTime *float64
	Output         *JobOutput
	Error          *string
}

// Apply merges the update into a copy of j.
func (j Job) Apply(u JobUpdate) Job {
	if u.Status != "" {
		j.Status = u.Status
	}
	if !u.UpdatedAt.IsZero() {
		j.UpdatedAt = u.UpdatedAt
	}
	if u.CompletedAt != nil {
		j.CompletedAt = u.CompletedAt
	}
	if u.ProcessingTime != nil {
		j.ProcessingTime = u.ProcessingTime
	}
	if u.Output != nil {
		j.Output = *u.Output
	}
	if u.Error != nil {
		if *u.Error == "" {
			j.Error = nil
		} else {
			msg := *u.Error
			j.Error = &msg
		}
	}
	return j
}

// RenderTaskPayload is the queue message body.
type RenderTaskPayload struct {
	JobID   string          `json:"jobId"`
	JobSpec json.RawMessage `json:"jobSpec"`
}

// SubmitJobRequest is the body of POST /api/jobs.
type SubmitJobRequest struct {
	JobSpec json.RawMessage `json:"jobSpec"`
	JobInfo json.RawMessage `json:"jobInfo,omitempty"`
}

type SubmitJobResponse struct {
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
}

// WebhookPayload is sent to the caller's webhook on terminal transitions.
type WebhookPayload struct {
	JobID          string          `json:"jobId"`
	Status         JobStatus       `json:"status"`
	Timestamp      time.Time       `json:"timestamp"`
	ProcessingTime *float64        `json:"processingTime"`
	Output         JobOutput       `json:"output"`
	Error          *string         `json:"error,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// ProcessingSeconds converts an elapsed duration into seconds rounded to two
// decimals.
func ProcessingSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
