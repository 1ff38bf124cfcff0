package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/interaction"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/shared/logger"
)

// IdentityKey is the gin context key holding the caller's normalized wallet address
const IdentityKey = "identity"

// JobService submits and reads processing jobs
type JobService interface {
	Submit(ctx context.Context, owner, jobType string, input domain.Submission) (*domain.Job, error)
	Get(ctx context.Context, jobID, identity string) (*domain.Job, error)
	List(ctx context.Context, identity string) ([]*domain.Job, error)
}

// InteractionService counts engagement on content
type InteractionService interface {
	Toggle(ctx context.Context, contentID, actorID string) (interaction.ToggleResult, error)
	Increment(ctx context.Context, contentID string, kind domain.InteractionKind, actorID, detail string) (int64, error)
	RecordViewOnce(ctx context.Context, contentID, viewerID string) (interaction.ViewResult, error)
	Stats(ctx context.Context, contentID, actorID string) (interaction.Stats, error)
	Events(ctx context.Context, contentID string, limit int) ([]domain.InteractionEvent, error)
}

// ContentService reads published content items
type ContentService interface {
	Get(ctx context.Context, id string) (*domain.Content, error)
	ListByOwner(ctx context.Context, owner string) ([]domain.Content, error)
}

// HealthCheck reports whether a backing service is reachable
type HealthCheck func(ctx context.Context) error

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	ServiceName  string
	Jobs         JobService
	Interactions InteractionService
	Catalog      ContentService
	HealthChecks map[string]HealthCheck
}

// Identity returns the caller's wallet address, or "" for anonymous requests
func Identity(c *gin.Context) string {
	return c.GetString(IdentityKey)
}

func requestLogger(c *gin.Context, fallback *slog.Logger) *slog.Logger {
	return logger.FromContext(c.Request.Context(), fallback)
}

type errorResponse struct {
	Error string `json:"error"`
}

// respondError maps a domain error to its HTTP status. Only invalid input carries its
// detail to the client; everything else is logged.
func respondError(c *gin.Context, log *slog.Logger, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		status, message = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		status, message = http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		status, message = http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrConflict):
		status, message = http.StatusConflict, "concurrent modification, retry the request"
	}

	if status >= http.StatusInternalServerError {
		log.Error("Request failed", slog.String("error", err.Error()))
	} else {
		log.Debug("Request rejected", slog.Int("status", status), slog.String("error", err.Error()))
	}

	c.AbortWithStatusJSON(status, errorResponse{Error: message})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: message})
}
