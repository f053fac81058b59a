package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Awaisee01/fund-sub001/internal/models"
	"github.com/Awaisee01/fund-sub001/internal/ratelimit"
	"github.com/Awaisee01/fund-sub001/internal/repository"
	"github.com/Awaisee01/fund-sub001/internal/service"
	"github.com/Awaisee01/fund-sub001/internal/validation"
)

type submitLeadRequest struct {
	Name        string             `json:"name"`
	Email       string             `json:"email"`
	Phone       string             `json:"phone"`
	Postcode    string             `json:"postcode"`
	Address     string             `json:"address"`
	ServiceType string             `json:"serviceType"`
	FormData    map[string]any     `json:"formData"`
	Attribution models.Attribution `json:"attribution"`
	VisitorID   string             `json:"visitorId"`
	SessionID   string             `json:"sessionId"`
	FormKey     string             `json:"formKey"`
	EventID     string             `json:"eventId"`
	SourceURL   string             `json:"sourceUrl"`
	FBP         string             `json:"fbp"`
	FBC         string             `json:"fbc"`
}

type leadResponse struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Email           *string            `json:"email,omitempty"`
	Phone           *string            `json:"phone,omitempty"`
	Postcode        *string            `json:"postcode,omitempty"`
	Address         *string            `json:"address,omitempty"`
	ServiceType     string             `json:"serviceType"`
	FormData        map[string]any     `json:"formData,omitempty"`
	Attribution     models.Attribution `json:"attribution"`
	VisitorID       *string            `json:"visitorId,omitempty"`
	SessionID       *string            `json:"sessionId,omitempty"`
	TrackingEventID *string            `json:"trackingEventId,omitempty"`
	Status          string             `json:"status"`
	AdminNotes      *string            `json:"adminNotes,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	ContactedAt     *time.Time         `json:"contactedAt,omitempty"`
	ConvertedAt     *time.Time         `json:"convertedAt,omitempty"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

func toLeadResponse(l models.Lead) leadResponse {
	return leadResponse{
		ID:              l.ID,
		Name:            l.Name,
		Email:           l.Email,
		Phone:           l.Phone,
		Postcode:        l.Postcode,
		Address:         l.Address,
		ServiceType:     string(l.ServiceType),
		FormData:        l.FormData,
		Attribution:     l.Attribution,
		VisitorID:       l.VisitorID,
		SessionID:       l.SessionID,
		TrackingEventID: l.TrackingEventID,
		Status:          string(l.Status),
		AdminNotes:      l.AdminNotes,
		CreatedAt:       l.CreatedAt,
		ContactedAt:     l.ContactedAt,
		ConvertedAt:     l.ConvertedAt,
		UpdatedAt:       l.UpdatedAt,
	}
}

func (h HandlerSet) SubmitLead(c *gin.Context) {
	var req submitLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}

	attribution := req.Attribution
	if attribution.UserAgent == "" {
		attribution.UserAgent = c.GetHeader("User-Agent")
	}
	if attribution.Referrer == "" {
		attribution.Referrer = c.GetHeader("Referer")
	}

	result, err := h.leads.Submit(c.Request.Context(), service.SubmitInput{
		Submission: validation.Submission{
			Name:        req.Name,
			Email:       req.Email,
			Phone:       req.Phone,
			Postcode:    req.Postcode,
			Address:     req.Address,
			ServiceType: req.ServiceType,
			FormData:    req.FormData,
			Attribution: attribution,
		},
		VisitorID: req.VisitorID,
		SessionID: req.SessionID,
		RateKey:   ratelimit.KeyFor(h.cfg.RateLimit.KeyStrategy, h.cfg.RateLimit.StaticKey)(c),
		FormKey:   req.FormKey,
		EventID:   req.EventID,
		ClientIP:  c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
		SourceURL: req.SourceURL,
		FBP:       req.FBP,
		FBC:       req.FBC,
	})
	if err != nil {
		h.submitError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"lead":  toLeadResponse(result.Lead),
		"pixel": result.Pixel,
	})
}

func (h HandlerSet) submitError(c *gin.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation_failed", "fields": verr.Fields})
	case errors.Is(err, validation.ErrUnknownServiceType):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation_failed", "fields": []validation.FieldError{
			{Field: "serviceType", Message: "service type is not recognised"},
		}})
	case errors.Is(err, ratelimit.ErrTooSoon):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too_soon"})
	case errors.Is(err, ratelimit.ErrTooManyAttempts):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too_many_attempts"})
	case errors.Is(err, ratelimit.ErrRateLimited):
		retryAfter := strconv.Itoa(int(math.Ceil(h.cfg.RateLimit.Window.Seconds())))
		c.Header("Retry-After", retryAfter)
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too_many_requests", "retryAfter": retryAfter})
	case repository.IsUnavailable(err):
		h.log.Error().Err(err).Msg("lead store unavailable")
		c.Header("Retry-After", "30")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
	default:
		h.log.Error().Err(err).Msg("lead submission failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "submission_failed"})
	}
}
