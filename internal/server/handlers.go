package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/choiwjun/blogflow/internal/models"
	"github.com/choiwjun/blogflow/internal/service"
)

type createPostRequest struct {
	UserID      string     `json:"user_id" binding:"required"`
	BlogID      string     `json:"blog_id" binding:"required"`
	KeywordID   string     `json:"keyword_id"`
	Title       string     `json:"title" binding:"required"`
	Content     string     `json:"content" binding:"required"`
	Category    string     `json:"category"`
	Tags        []string   `json:"tags"`
	Visibility  string     `json:"visibility"`
	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

func (s *Server) handleCreatePost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := models.PostStatus(req.Status)
	if req.Status == "" {
		status = models.StatusDraft
	}

	post, err := s.Orchestrator.CreatePost(c.Request.Context(), service.CreatePostInput{
		UserID:      req.UserID,
		BlogID:      req.BlogID,
		KeywordID:   req.KeywordID,
		Title:       req.Title,
		Content:     req.Content,
		Category:    req.Category,
		Tags:        req.Tags,
		Visibility:  req.Visibility,
		Status:      status,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"post": post})
}

func (s *Server) handleGetPost(c *gin.Context) {
	post, err := s.Orchestrator.GetPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"post": post})
}

func (s *Server) handlePublishPost(c *gin.Context) {
	result, err := s.Orchestrator.PublishPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (s *Server) handleRetryPost(c *gin.Context) {
	requesterID := c.GetHeader("X-User-ID")
	if requesterID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header is required"})
		return
	}

	result, err := s.Orchestrator.RetryPost(c.Request.Context(), c.Param("id"), requesterID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (s *Server) handleListCategories(c *gin.Context) {
	result, err := s.Orchestrator.ListCategories(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleListPlatforms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"platforms": s.Orchestrator.Platforms()})
}

func (s *Server) handleSchedulerRun(c *gin.Context) {
	summary, err := s.Orchestrator.ProcessDue(c.Request.Context())
	if err != nil {
		s.Logger.Error("Scheduler run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scheduler run failed"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPostNotFound), errors.Is(err, service.ErrBlogNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPublishInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrEmptyTitle),
		errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrScheduleInPast),
		errors.Is(err, service.ErrMissingSchedule):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		s.Logger.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
