package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/ossamaweb/auto-vid/internal/config"
	"github.com/ossamaweb/auto-vid/internal/jobspec"
	"github.com/ossamaweb/auto-vid/internal/jobstore"
	"github.com/ossamaweb/auto-vid/internal/model"
)

const TaskTypeRender = "video:render"

// Enqueuer is the part of asynq.Client the job service needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// JobService owns the job record: intake creates it, the worker moves it
// through its states.
type JobService struct {
	store  jobstore.Store
	queue  Enqueuer
	parser *jobspec.Parser
	cfg    config.QueueConfig
	ttl    time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

func NewJobService(store jobstore.Store, queue Enqueuer, parser *jobspec.Parser, queueCfg config.QueueConfig, ttl time.Duration, log zerolog.Logger) *JobService {
	return &JobService{
		store:  store,
		queue:  queue,
		parser: parser,
		cfg:    queueCfg,
		ttl:    ttl,
		now:    time.Now,
		log:    log.With().Str("component", "jobs").Logger(),
	}
}

// Submit validates the job spec, records the job and queues it. An invalid spec
// is rejected before any record exists.
func (s *JobService) Submit(ctx context.Context, req *model.SubmitJobRequest) (*model.SubmitJobResponse, error) {
	spec, err := s.parser.Parse(req.JobSpec)
	if err != nil {
		return nil, err
	}

	jobInfo := req.JobInfo
	if len(jobInfo) == 0 && spec.Metadata != nil {
		if jobInfo, err = json.Marshal(spec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	now := s.now().UTC()
	job := &model.Job{
		JobID:       uuid.New().String(),
		Status:      model.JobStatusSubmitted,
		SubmittedAt: now,
		UpdatedAt:   now,
		JobInfo:     jobInfo,
	}
	if s.ttl > 0 {
		job.TTL = now.Add(s.ttl)
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	payload, err := json.Marshal(model.RenderTaskPayload{JobID: job.JobID, JobSpec: req.JobSpec})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	_, err = s.queue.EnqueueContext(ctx, asynq.NewTask(TaskTypeRender, payload),
		asynq.Queue(s.cfg.Name),
		asynq.MaxRetry(s.cfg.MaxRetry),
		asynq.TaskID(job.JobID),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		s.log.Error().Err(err).Str("job_id", job.JobID).Msg("enqueue failed")
		msg := "failed to enqueue job"
		if uerr := s.store.Update(ctx, job.JobID, model.JobUpdate{
			Status:      model.JobStatusFailed,
			UpdatedAt:   s.now().UTC(),
			CompletedAt: &now,
			Error:       &msg,
		}); uerr != nil {
			s.log.Error().Err(uerr).Str("job_id", job.JobID).Msg("failed to record enqueue failure")
		}
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.log.Info().Str("job_id", job.JobID).Msg("job submitted")
	return &model.SubmitJobResponse{
		JobID:   job.JobID,
		Status:  job.Status,
		Message: "Job submitted successfully",
	}, nil
}

// Get returns the job record or jobstore.ErrJobNotFound.
func (s *JobService) Get(ctx context.Context, jobID string) (*model.Job, error) {
	return s.store.Get(ctx, jobID)
}

// MarkProcessing starts a fresh attempt and clears any error left by a
// previous one.
func (s *JobService) MarkProcessing(ctx context.Context, jobID string) error {
	cleared := ""
	return s.store.Update(ctx, jobID, model.JobUpdate{
		Status:    model.JobStatusProcessing,
		UpdatedAt: s.now().UTC(),
		Error:     &cleared,
	})
}

func (s *JobService) MarkRetrying(ctx context.Context, jobID string, cause error) error {
	msg := cause.Error()
	return s.store.Update(ctx, jobID, model.JobUpdate{
		Status:    model.JobStatusRetrying,
		UpdatedAt: s.now().UTC(),
		Error:     &msg,
	})
}

// MarkFailed records a terminal failure and returns the update written.
func (s *JobService) MarkFailed(ctx context.Context, jobID string, cause error, elapsed time.Duration) (model.JobUpdate, error) {
	now := s.now().UTC()
	msg := cause.Error()
	seconds := model.ProcessingSeconds(elapsed)
	u := model.JobUpdate{
		Status:         model.JobStatusFailed,
		UpdatedAt:      now,
		CompletedAt:    &now,
		ProcessingTime: &seconds,
		Error:          &msg,
	}
	return u, s.store.Update(ctx, jobID, u)
}

// MarkCompleted records the delivered output and returns the update written.
func (s *JobService) MarkCompleted(ctx context.Context, jobID string, out model.JobOutput, elapsed time.Duration) (model.JobUpdate, error) {
	now := s.now().UTC()
	cleared := ""
	seconds := model.ProcessingSeconds(elapsed)
	u := model.JobUpdate{
		Status:         model.JobStatusCompleted,
		UpdatedAt:      now,
		CompletedAt:    &now,
		ProcessingTime: &seconds,
		Output:         &out,
		Error:          &cleared,
	}
	return u, s.store.Update(ctx, jobID, u)
}
