package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/ossamaweb/auto-vid/internal/apperr"
	"github.com/ossamaweb/auto-vid/internal/jobspec"
	"github.com/ossamaweb/auto-vid/internal/jobstore"
	"github.com/ossamaweb/auto-vid/internal/logging"
	"github.com/ossamaweb/auto-vid/internal/metrics"
	"github.com/ossamaweb/auto-vid/internal/model"
	"github.com/ossamaweb/auto-vid/internal/service"
)

// Pipeline renders and delivers one validated job inside workDir.
type Pipeline interface {
	Run(ctx context.Context, spec *jobspec.JobSpec, workDir string) (*model.JobOutput, error)
}

// RenderWorker drives a job through its states for one delivery of the
// queue message. A returned error asks asynq to redeliver; errors wrapping
// asynq.SkipRetry end the task.
type RenderWorker struct {
	jobs     *service.JobService
	parser   *jobspec.Parser
	pipeline Pipeline
	notifier service.Notifier
	workRoot string
	now      func() time.Time
	log      zerolog.Logger
}

func NewRenderWorker(jobs *service.JobService, parser *jobspec.Parser, pipeline Pipeline, notifier service.Notifier, workRoot string, log zerolog.Logger) *RenderWorker {
	return &RenderWorker{
		jobs:     jobs,
		parser:   parser,
		pipeline: pipeline,
		notifier: notifier,
		workRoot: workRoot,
		now:      time.Now,
		log:      log.With().Str("component", "render_worker").Logger(),
	}
}

// ProcessTask handles a video:render task.
func (w *RenderWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.RenderTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.JobID == "" {
		w.log.Error().Err(err).Msg("malformed task payload")
		return fmt.Errorf("malformed task payload: %w", asynq.SkipRetry)
	}
	return w.Process(ctx, payload)
}

func (w *RenderWorker) Process(ctx context.Context, p model.RenderTaskPayload) error {
	started := w.now()
	log := logging.ForJob(w.log, p.JobID)
	ctx = log.WithContext(ctx)

	workDir := filepath.Join(w.workRoot, p.JobID)
	// Registered first so it runs after everything else on every path.
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warn().Err(err).Str("dir", workDir).Msg("failed to remove work dir")
		}
	}()

	spec, err := w.parser.Parse(p.JobSpec)
	if err != nil {
		log.Warn().Err(err).Msg("job spec rejected")
		return w.fail(ctx, log, p.JobID, jobspec.ExtractWebhook(p.JobSpec), err, started)
	}

	if err := w.jobs.MarkProcessing(ctx, p.JobID); err != nil {
		if errors.Is(err, jobstore.ErrJobNotFound) {
			log.Warn().Msg("job record is gone, dropping task")
			return fmt.Errorf("job %s not found: %w", p.JobID, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	log.Info().Msg("job processing")

	// A redelivered job starts from scratch.
	if err := os.RemoveAll(workDir); err != nil {
		return fmt.Errorf("failed to reset work dir: %w", err)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}

	output, err := w.pipeline.Run(ctx, spec, workDir)
	if err != nil {
		if apperr.IsTransient(err) {
			return w.retry(ctx, log, p.JobID, err)
		}
		return w.fail(ctx, log, p.JobID, spec.Webhook(), err, started)
	}

	elapsed := w.now().Sub(started)
	u, err := w.jobs.MarkCompleted(ctx, p.JobID, *output, elapsed)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	metrics.JobFinished(string(model.JobStatusCompleted))
	log.Info().Float64("processing_time", *u.ProcessingTime).Msg("job completed")

	w.notifier.Notify(ctx, spec.Webhook(), model.WebhookPayload{
		JobID:          p.JobID,
		Status:         model.JobStatusCompleted,
		Timestamp:      u.UpdatedAt,
		ProcessingTime: u.ProcessingTime,
		Output:         *output,
	})
	return nil
}

// retry records the transient failure and hands the message back to the
// queue.
func (w *RenderWorker) retry(ctx context.Context, log zerolog.Logger, jobID string, cause error) error {
	log.Warn().Err(cause).Msg("transient failure, job will be redelivered")
	if err := w.jobs.MarkRetrying(ctx, jobID, cause); err != nil {
		log.Error().Err(err).Msg("failed to mark job retrying")
	}
	metrics.JobFinished(string(model.JobStatusRetrying))
	return fmt.Errorf("job %s: %w", jobID, cause)
}

// fail records a permanent failure, notifies the caller and stops redelivery.
func (w *RenderWorker) fail(ctx context.Context, log zerolog.Logger, jobID string, wh *jobspec.Webhook, cause error, started time.Time) error {
	log.Error().Err(cause).Str("kind", apperr.KindOf(cause).String()).Msg("job failed")
	u, err := w.jobs.MarkFailed(ctx, jobID, cause, w.now().Sub(started))
	if err != nil && !errors.Is(err, jobstore.ErrJobNotFound) {
		// The record must reflect the failure; let the queue try again.
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	metrics.JobFinished(string(model.JobStatusFailed))

	if u.UpdatedAt.IsZero() {
		msg := cause.Error()
		u.UpdatedAt, u.Error = w.now().UTC(), &msg
	}
	w.notifier.Notify(ctx, wh, model.WebhookPayload{
		JobID:          jobID,
		Status:         model.JobStatusFailed,
		Timestamp:      u.UpdatedAt,
		ProcessingTime: u.ProcessingTime,
		Error:          u.Error,
	})
	return fmt.Errorf("job %s: %v: %w", jobID, cause, asynq.SkipRetry)
}
