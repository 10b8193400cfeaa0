package jobstore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ossamaweb/auto-vid/internal/model"
)

// Hash field names of a job record.
const (
	fieldJobID          = "jobId"
	fieldStatus         = "status"
	fieldSubmittedAt    = "submittedAt"
	fieldUpdatedAt      = "updatedAt"
	fieldCompletedAt    = "completedAt"
	fieldProcessingTime = "processingTime"
	fieldURL            = "output.url"
	fieldURLExpiresAt   = "output.urlExpiresAt"
	fieldStorageURI     = "output.storageUri"
	fieldDuration       = "output.duration"
	fieldSize           = "output.size"
	fieldError          = "error"
	fieldJobInfo        = "jobInfo"
	fieldTTL            = "ttl"
)

// formatFloat writes the shortest decimal that parses back to the same
// float64, so stored numbers round-trip exactly.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func encodeJob(job *model.Job) map[string]string {
	fields := map[string]string{
		fieldJobID:       job.JobID,
		fieldStatus:      string(job.Status),
		fieldSubmittedAt: formatTime(job.SubmittedAt),
		fieldUpdatedAt:   formatTime(job.UpdatedAt),
	}
	if !job.TTL.IsZero() {
		fields[fieldTTL] = strconv.FormatInt(job.TTL.Unix(), 10)
	}
	if len(job.JobInfo) > 0 {
		fields[fieldJobInfo] = string(job.JobInfo)
	}
	set, _ := encodeUpdate(model.JobUpdate{
		CompletedAt:    job.CompletedAt,
		ProcessingTime: job.ProcessingTime,
		Output:         &job.Output,
		Error:          job.Error,
	})
	for k, v := range set {
		fields[k] = v
	}
	return fields
}

// encodeUpdate splits an update into fields to write and fields to remove.
func encodeUpdate(u model.JobUpdate) (set map[string]string, del []string) {
	set = map[string]string{}
	if u.Status != "" {
		set[fieldStatus] = string(u.Status)
	}
	if !u.UpdatedAt.IsZero() {
		set[fieldUpdatedAt] = formatTime(u.UpdatedAt)
	}
	if u.CompletedAt != nil {
		set[fieldCompletedAt] = formatTime(*u.CompletedAt)
	}
	if u.ProcessingTime != nil {
		set[fieldProcessingTime] = formatFloat(*u.ProcessingTime)
	}
	if u.Error != nil {
		if *u.Error == "" {
			del = append(del, fieldError)
		} else {
			set[fieldError] = *u.Error
		}
	}
	if o := u.Output; o != nil {
		if o.URL != nil {
			set[fieldURL] = *o.URL
		}
		if o.URLExpiresAt != nil {
			set[fieldURLExpiresAt] = formatTime(*o.URLExpiresAt)
		}
		if o.StorageURI != nil {
			set[fieldStorageURI] = *o.StorageURI
		}
		if o.Duration != nil {
			set[fieldDuration] = formatFloat(*o.Duration)
		}
		if o.Size != nil {
			set[fieldSize] = strconv.FormatInt(*o.Size, 10)
		}
	}
	return set, del
}

func decodeJob(fields map[string]string) (*model.Job, error) {
	job := &model.Job{
		JobID:  fields[fieldJobID],
		Status: model.JobStatus(fields[fieldStatus]),
	}
	var err error
	if job.SubmittedAt, err = parseTime(fields, fieldSubmittedAt); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = parseTime(fields, fieldUpdatedAt); err != nil {
		return nil, err
	}
	if job.CompletedAt, err = parseTimePtr(fields, fieldCompletedAt); err != nil {
		return nil, err
	}
	if job.ProcessingTime, err = parseFloatPtr(fields, fieldProcessingTime); err != nil {
		return nil, err
	}
	if v, ok := fields[fieldURL]; ok {
		job.Output.URL = &v
	}
	if job.Output.URLExpiresAt, err = parseTimePtr(fields, fieldURLExpiresAt); err != nil {
		return nil, err
	}
	if v, ok := fields[fieldStorageURI]; ok {
		job.Output.StorageURI = &v
	}
	if job.Output.Duration, err = parseFloatPtr(fields, fieldDuration); err != nil {
		return nil, err
	}
	if v, ok := fields[fieldSize]; ok {
		size, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", fieldSize, err)
		}
		job.Output.Size = &size
	}
	if v, ok := fields[fieldError]; ok {
		job.Error = &v
	}
	if v, ok := fields[fieldJobInfo]; ok {
		job.JobInfo = []byte(v)
	}
	if v, ok := fields[fieldTTL]; ok {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", fieldTTL, err)
		}
		job.TTL = time.Unix(sec, 0).UTC()
	}
	return job, nil
}

func parseTime(fields map[string]string, key string) (time.Time, error) {
	v, ok := fields[key]
	if !ok {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return t, nil
}

func parseTimePtr(fields map[string]string, key string) (*time.Time, error) {
	if _, ok := fields[key]; !ok {
		return nil, nil
	}
	t, err := parseTime(fields, key)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseFloatPtr(fields map[string]string, key string) (*float64, error) {
	v, ok := fields[key]
	if !ok {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return &f, nil
}
