package dto

import (
	"time"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/interaction"
)

type LikeResponse struct {
	Liked bool  `json:"liked"`
	Likes int64 `json:"likes"`
}

// ViewRequest is the optional body of POST /content/:id/view
type ViewRequest struct {
	SessionID string `json:"session_id"`
}

type ViewResponse struct {
	Counted bool  `json:"counted"`
	Views   int64 `json:"views"`
}

type ShareRequest struct {
	Platform string `json:"platform" binding:"required"`
}

type ShareResponse struct {
	Shares int64 `json:"shares"`
}

type TipRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

type TipResponse struct {
	Tips int64 `json:"tips"`
}

type StatsResponse struct {
	ContentID string `json:"contentId"`
	Views     int64  `json:"views"`
	Likes     int64  `json:"likes"`
	Shares    int64  `json:"shares"`
	Tips      int64  `json:"tips"`
	Liked     bool   `json:"liked"`
}

func NewStatsResponse(s interaction.Stats) StatsResponse {
	return StatsResponse{
		ContentID: s.ContentID,
		Views:     s.Views,
		Likes:     s.Likes,
		Shares:    s.Shares,
		Tips:      s.Tips,
		Liked:     s.Liked,
	}
}

type EventDTO struct {
	Kind      domain.InteractionKind `json:"kind"`
	Actor     string                 `json:"actor,omitempty"`
	Detail    string                 `json:"detail,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

type EventsResponse struct {
	ContentID string     `json:"contentId"`
	Events    []EventDTO `json:"events"`
}
