package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Awaisee01/fund-sub001/internal/models"
	"github.com/Awaisee01/fund-sub001/internal/repository"
	"github.com/Awaisee01/fund-sub001/internal/service"
)

type startSessionRequest struct {
	VisitorID   string             `json:"visitorId"`
	SessionID   string             `json:"sessionId"`
	LandingPage string             `json:"landingPage"`
	Attribution models.Attribution `json:"attribution"`
}

type sessionResponse struct {
	ID             string    `json:"id"`
	VisitorID      string    `json:"visitorId"`
	StartedAt      time.Time `json:"startedAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	PagesVisited   int       `json:"pagesVisited"`
	Converted      bool      `json:"converted"`
}

func (h HandlerSet) StartSession(c *gin.Context) {
	var req startSessionRequest
	// navigator.sendBeacon may post an empty body.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
			return
		}
	}
	if req.Attribution.UserAgent == "" {
		req.Attribution.UserAgent = c.GetHeader("User-Agent")
	}

	result, err := h.sessions.Start(c.Request.Context(), service.StartSessionInput{
		VisitorID:   req.VisitorID,
		SessionID:   req.SessionID,
		LandingPage: req.LandingPage,
		Attribution: req.Attribution,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("start visitor session failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session_failed"})
		return
	}

	s := result.Session
	c.JSON(http.StatusOK, gin.H{
		"session": sessionResponse{
			ID:             s.ID,
			VisitorID:      s.VisitorID,
			StartedAt:      s.StartedAt,
			LastActivityAt: s.LastActivityAt,
			PagesVisited:   s.PagesVisited,
			Converted:      s.Converted,
		},
		"resumed": result.Resumed,
	})
}

func (h HandlerSet) Heartbeat(c *gin.Context) {
	h.sessionAction(c, h.sessions.Heartbeat)
}

func (h HandlerSet) PageView(c *gin.Context) {
	h.sessionAction(c, h.sessions.PageView)
}

func (h HandlerSet) EndSession(c *gin.Context) {
	h.sessionAction(c, h.sessions.End)
}

func (h HandlerSet) sessionAction(c *gin.Context, action func(ctx context.Context, id string) error) {
	err := action(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, service.ErrSessionExpired):
		c.JSON(http.StatusGone, gin.H{"error": "session_expired"})
	case errors.Is(err, repository.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
	default:
		h.log.Error().Err(err).Str("session_id", c.Param("id")).Msg("visitor session update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session_failed"})
	}
}
