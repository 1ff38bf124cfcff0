package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/api/dto"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/pipeline"
)

// ProcessingHandler handles content processing requests
type ProcessingHandler struct {
	logger *slog.Logger
	jobs   JobService
}

// NewProcessingHandler creates a new ProcessingHandler instance
func NewProcessingHandler(deps *Dependencies) *ProcessingHandler {
	return &ProcessingHandler{
		logger: deps.Logger,
		jobs:   deps.Jobs,
	}
}

// CreateProcessing handles POST /api/v1/processing
// Submits uploaded content to the processing pipeline
func (h *ProcessingHandler) CreateProcessing(c *gin.Context) {
	log := requestLogger(c, h.logger)

	var req dto.CreateProcessingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debug("Invalid request body", slog.String("error", err.Error()))
		badRequest(c, "invalid request body")
		return
	}

	job, err := h.jobs.Submit(c.Request.Context(), Identity(c), req.JobType, req.Submission())
	if err != nil {
		respondError(c, log, err)
		return
	}

	log.Info("Processing job accepted",
		slog.String("job_id", job.ID),
		slog.String("status", string(job.Status)),
	)

	c.JSON(http.StatusAccepted, dto.CreateProcessingResponse{
		ProcessingID: job.ID,
		Status:       job.Status,
	})
}

// GetStatus handles GET /api/v1/processing/:id/status
func (h *ProcessingHandler) GetStatus(c *gin.Context) {
	log := requestLogger(c, h.logger)

	jobID := c.Param("id")
	if _, err := uuid.Parse(jobID); err != nil {
		badRequest(c, "processing id must be a valid UUID")
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), jobID, Identity(c))
	if err != nil {
		respondError(c, log.With(slog.String("job_id", jobID)), err)
		return
	}

	c.JSON(http.StatusOK, pipeline.Project(job))
}

// ListProcessing handles GET /api/v1/processing
// Lists the caller's jobs newest first with cursor pagination
func (h *ProcessingHandler) ListProcessing(c *gin.Context) {
	log := requestLogger(c, h.logger)

	var req dto.ListProcessingRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	cursor, err := decodeJobCursor(req.Cursor)
	if err != nil {
		log.Debug("Invalid cursor", slog.String("error", err.Error()))
		badRequest(c, "invalid cursor")
		return
	}

	jobs, err := h.jobs.List(c.Request.Context(), Identity(c))
	if err != nil {
		respondError(c, log, err)
		return
	}

	page, next := paginate(jobs, cursor, req.PageSize)

	c.JSON(http.StatusOK, dto.ListProcessingResponse{
		Jobs:       pipeline.ProjectAll(page),
		NextCursor: next,
	})
}
