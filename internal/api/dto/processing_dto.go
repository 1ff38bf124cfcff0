package dto

import (
	"time"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/pipeline"
)

// CreateProcessingRequest is the body of POST /processing
type CreateProcessingRequest struct {
	JobType     string   `json:"jobType"`
	Title       string   `json:"title" binding:"required"`
	Description string   `json:"description"`
	ContentType string   `json:"contentType" binding:"required"`
	SizeBytes   int64    `json:"sizeBytes" binding:"required,gt=0"`
	SourceURI   string   `json:"sourceUri" binding:"required"`
	Tags        []string `json:"tags"`
	License     string   `json:"license"`
}

// Submission converts the request into the pipeline input
func (r *CreateProcessingRequest) Submission() domain.Submission {
	return domain.Submission{
		Title:       r.Title,
		Description: r.Description,
		ContentType: r.ContentType,
		SizeBytes:   r.SizeBytes,
		SourceURI:   r.SourceURI,
		Tags:        r.Tags,
		License:     r.License,
	}
}

type CreateProcessingResponse struct {
	ProcessingID string           `json:"processingId"`
	Status       domain.JobStatus `json:"status"`
}

type ListProcessingRequest struct {
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListProcessingResponse struct {
	Jobs       []pipeline.StatusView `json:"jobs"`
	NextCursor string                `json:"nextCursor,omitempty"`
}

// ContentDTO is a published content item
type ContentDTO struct {
	ID              string    `json:"id"`
	Owner           string    `json:"owner"`
	Title           string    `json:"title"`
	ContentURI      string    `json:"contentUri"`
	TokenID         string    `json:"tokenId"`
	TransactionHash string    `json:"transactionHash"`
	CreatedAt       time.Time `json:"createdAt"`
}

func NewContentDTO(c *domain.Content) ContentDTO {
	return ContentDTO{
		ID:              c.ID,
		Owner:           c.Owner,
		Title:           c.Title,
		ContentURI:      c.ContentURI,
		TokenID:         c.TokenID,
		TransactionHash: c.TxHash,
		CreatedAt:       c.CreatedAt,
	}
}
