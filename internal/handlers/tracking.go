package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Awaisee01/fund-sub001/internal/models"
	"github.com/Awaisee01/fund-sub001/internal/notify"
	"github.com/Awaisee01/fund-sub001/internal/tracking"
)

type relayUser struct {
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Postcode   string `json:"postcode"`
	City       string `json:"city"`
	Country    string `json:"country"`
	ExternalID string `json:"externalId"`
}

type relayEventRequest struct {
	EventName   string             `json:"eventName" binding:"required"`
	EventID     string             `json:"eventId"`
	User        relayUser          `json:"user"`
	CustomData  map[string]any     `json:"customData"`
	SourceURL   string             `json:"sourceUrl"`
	FBP         string             `json:"fbp"`
	FBC         string             `json:"fbc"`
	Attribution models.Attribution `json:"attribution"`
}

// RelayEvent forwards a browser event to the conversions API server-side.
// Raw PII in the body is hashed before it leaves the process.
func (h HandlerSet) RelayEvent(c *gin.Context) {
	var req relayEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}

	ack, err := h.relay.Relay(c.Request.Context(), tracking.RelayRequest{
		EventName:  req.EventName,
		User:       tracking.UserData(req.User),
		CustomData: req.CustomData,
		Meta: tracking.Meta{
			EventID:     req.EventID,
			SourceURL:   req.SourceURL,
			ClientIP:    c.ClientIP(),
			UserAgent:   c.GetHeader("User-Agent"),
			FBP:         req.FBP,
			FBC:         req.FBC,
			Attribution: req.Attribution,
		},
	})
	if err != nil {
		var apiErr *tracking.APIError
		switch {
		case errors.Is(err, tracking.ErrMissingEventName):
			c.JSON(http.StatusBadRequest, gin.H{"error": "event_name_required"})
		case errors.Is(err, tracking.ErrNotConfigured):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tracking_disabled"})
		case errors.As(err, &apiErr):
			h.log.Warn().Err(err).Str("fbtrace_id", apiErr.FBTraceID).Msg("conversions api rejected event")
			c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_rejected", "message": apiErr.Message})
		default:
			h.log.Error().Err(err).Str("event", req.EventName).Msg("conversions relay failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "relay_failed"})
		}
		return
	}

	c.JSON(http.StatusOK, ack)
}

// RelayNotify sends the operator email for a lead submitted elsewhere. The
// route sits behind the signed-request middleware.
func (h HandlerSet) RelayNotify(c *gin.Context) {
	var summary notify.LeadSummary
	if err := c.ShouldBindJSON(&summary); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}

	if err := h.mailer.SendLeadNotification(c.Request.Context(), summary); err != nil {
		if errors.Is(err, notify.ErrNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "email_disabled"})
			return
		}
		h.log.Error().Err(err).Str("lead_id", summary.LeadID).Msg("relay notification failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "email_failed"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}
