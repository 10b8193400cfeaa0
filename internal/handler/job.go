package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/ossamaweb/auto-vid/internal/apperr"
	"github.com/ossamaweb/auto-vid/internal/jobspec"
	"github.com/ossamaweb/auto-vid/internal/jobstore"
	"github.com/ossamaweb/auto-vid/internal/model"
	"github.com/ossamaweb/auto-vid/pkg/response"
)

// JobSubmitter is the part of service.JobService the API needs.
type JobSubmitter interface {
	Submit(ctx context.Context, req *model.SubmitJobRequest) (*model.SubmitJobResponse, error)
	Get(ctx context.Context, jobID string) (*model.Job, error)
}

type JobHandler struct {
	service JobSubmitter
	log     zerolog.Logger
}

func NewJobHandler(svc JobSubmitter, log zerolog.Logger) *JobHandler {
	return &JobHandler{
		service: svc,
		log:     log.With().Str("component", "api").Logger(),
	}
}

// Submit handles POST /api/jobs
// @Summary      Submit render job
// @Accept       json
// @Produce      json
// @Param        request body model.SubmitJobRequest true "Job spec and optional job info"
// @Success      202 {object} model.SubmitJobResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/jobs [post]
func (h *JobHandler) Submit(c *fiber.Ctx) error {
	var req model.SubmitJobRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return response.ValidationError(c, "Invalid request body", []string{err.Error()})
	}
	if len(req.JobSpec) == 0 || string(req.JobSpec) == "null" {
		return response.ValidationError(c, "Validation failed", []string{"jobSpec: is required"})
	}

	result, err := h.service.Submit(c.UserContext(), &req)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindValidation {
			var details []string
			if issues, ok := jobspec.IssuesOf(err); ok {
				for _, issue := range issues {
					details = append(details, issue.String())
				}
			}
			return response.ValidationError(c, "Validation failed", details)
		}
		h.log.Error().Err(err).Msg("submit failed")
		return response.ServiceError(c, "Failed to submit job")
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/jobs/:jobId
// @Summary      Get render job
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.Job
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/jobs/{jobId} [get]
func (h *JobHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.Get(c.UserContext(), jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrJobNotFound) {
			return response.NotFound(c, fmt.Sprintf("Job %s not found", jobID))
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("status lookup failed")
		return response.ServiceError(c, "Failed to read job")
	}

	return response.OK(c, job)
}
