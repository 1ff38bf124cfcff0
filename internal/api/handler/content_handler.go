package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/api/dto"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
)

// SessionHeader carries the anonymous viewer session
const SessionHeader = "X-Session-Id"

// ContentHandler handles published content and its interactions
type ContentHandler struct {
	logger       *slog.Logger
	interactions InteractionService
	catalog      ContentService
}

// NewContentHandler creates a new ContentHandler instance
func NewContentHandler(deps *Dependencies) *ContentHandler {
	return &ContentHandler{
		logger:       deps.Logger,
		interactions: deps.Interactions,
		catalog:      deps.Catalog,
	}
}

func (h *ContentHandler) contentLogger(c *gin.Context) *slog.Logger {
	return requestLogger(c, h.logger).With(slog.String("content_id", c.Param("id")))
}

// GetContent handles GET /api/v1/content/:id
func (h *ContentHandler) GetContent(c *gin.Context) {
	item, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.contentLogger(c), err)
		return
	}

	c.JSON(http.StatusOK, dto.NewContentDTO(item))
}

// ListMine handles GET /api/v1/content
// Lists the caller's published content newest first
func (h *ContentHandler) ListMine(c *gin.Context) {
	items, err := h.catalog.ListByOwner(c.Request.Context(), Identity(c))
	if err != nil {
		respondError(c, requestLogger(c, h.logger), err)
		return
	}

	out := make([]dto.ContentDTO, 0, len(items))
	for i := range items {
		out = append(out, dto.NewContentDTO(&items[i]))
	}
	c.JSON(http.StatusOK, gin.H{"content": out})
}

// Like handles POST /api/v1/content/:id/like
func (h *ContentHandler) Like(c *gin.Context) {
	res, err := h.interactions.Toggle(c.Request.Context(), c.Param("id"), Identity(c))
	if err != nil {
		respondError(c, h.contentLogger(c), err)
		return
	}

	c.JSON(http.StatusOK, dto.LikeResponse{Liked: res.Active, Likes: res.Count})
}

// View handles POST /api/v1/content/:id/view
// The viewer is the caller's wallet, or an anonymous session from the header or body
func (h *ContentHandler) View(c *gin.Context) {
	viewer := Identity(c)
	if viewer == "" {
		session := strings.TrimSpace(c.GetHeader(SessionHeader))
		if session == "" {
			var req dto.ViewRequest
			if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
				badRequest(c, "invalid request body")
				return
			}
			session = strings.TrimSpace(req.SessionID)
		}
		if session == "" {
			badRequest(c, "wallet address or session id is required")
			return
		}
		viewer = domain.AnonymousViewer(session)
	}

	res, err := h.interactions.RecordViewOnce(c.Request.Context(), c.Param("id"), viewer)
	if err != nil {
		respondError(c, h.contentLogger(c), err)
		return
	}

	c.JSON(http.StatusOK, dto.ViewResponse{Counted: res.Counted, Views: res.Count})
}

// Share handles POST /api/v1/content/:id/share
func (h *ContentHandler) Share(c *gin.Context) {
	var req dto.ShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "platform is required")
		return
	}

	platform := strings.ToLower(strings.TrimSpace(req.Platform))
	if platform == "" {
		badRequest(c, "platform is required")
		return
	}

	shares, err := h.interactions.Increment(c.Request.Context(), c.Param("id"), domain.InteractionShare, Identity(c), platform)
	if err != nil {
		respondError(c, h.contentLogger(c), err)
		return
	}

	c.JSON(http.StatusOK, dto.ShareResponse{Shares: shares})
}

// Tip handles POST /api/v1/content/:id/tip
func (h *ContentHandler) Tip(c *gin.Context) {
	var req dto.TipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "a positive amount is required")
		return
	}

	amount := strconv.FormatFloat(req.Amount, 'f', -1, 64)
	tips, err := h.interactions.Increment(c.Request.Context(), c.Param("id"), domain.InteractionTip, Identity(c), amount)
	if err != nil {
		respondError(c, h.contentLogger(c), err)
		return
	}

	c.JSON(http.StatusOK, dto.TipResponse{Tips: tips})
}

// Stats handles GET /api/v1/content/:id/stats
func (h *ContentHandler) Stats(c *gin.Context) {
	stats, err := h.interactions.Stats(c.Request.Context(), c.Param("id"), Identity(c))
	if err != nil {
		respondError(c, h.contentLogger(c), err)
		return
	}

	c.JSON(http.StatusOK, dto.NewStatsResponse(stats))
}

// Events handles GET /api/v1/content/:id/events?limit=N
// Returns the newest entries of the share and tip log
func (h *ContentHandler) Events(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := h.interactions.Events(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, h.contentLogger(c), err)
		return
	}

	resp := dto.EventsResponse{ContentID: c.Param("id"), Events: make([]dto.EventDTO, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, dto.EventDTO{
			Kind:      e.Kind,
			Actor:     e.ActorID,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}
