package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Awaisee01/fund-sub001/internal/middleware"
	"github.com/Awaisee01/fund-sub001/internal/models"
	"github.com/Awaisee01/fund-sub001/internal/repository"
	"github.com/Awaisee01/fund-sub001/internal/service"
)

const dateLayout = "2006-01-02"

var errBadFilter = errors.New("invalid filter")

func (h HandlerSet) ListLeads(c *gin.Context) {
	filter, err := leadFilterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_filter"})
		return
	}

	limit := 50
	offset := 0
	if perPage := c.Query("perPage"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	page := 1
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 1 {
			page = v
			offset = (v - 1) * limit
		}
	}
	filter.Limit = limit
	filter.Offset = offset

	result, err := h.adminLeads.List(c.Request.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("list leads failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	items := make([]leadResponse, 0, len(result.Leads))
	for _, lead := range result.Leads {
		items = append(items, toLeadResponse(lead))
	}

	c.JSON(http.StatusOK, gin.H{
		"items":   items,
		"total":   result.Total,
		"page":    page,
		"perPage": limit,
	})
}

func (h HandlerSet) LeadStats(c *gin.Context) {
	stats, err := h.adminLeads.Stats(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("lead stats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":         stats.Total,
		"byStatus":      stats.ByStatus,
		"byServiceType": stats.ByServiceType,
	})
}

func (h HandlerSet) UpdateLead(c *gin.Context) {
	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}

	lead, err := h.adminLeads.Update(c.Request.Context(), actorFrom(c), c.Param("id"), fields)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFieldNotAllowed):
			c.JSON(http.StatusBadRequest, gin.H{"error": "field_not_allowed", "message": err.Error()})
		case errors.Is(err, service.ErrNoFields):
			c.JSON(http.StatusBadRequest, gin.H{"error": "no_fields"})
		case errors.Is(err, service.ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
		case errors.Is(err, service.ErrInvalidFieldType):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_field", "message": err.Error()})
		case errors.Is(err, repository.ErrLeadNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "lead_not_found"})
		default:
			h.log.Error().Err(err).Str("lead_id", c.Param("id")).Msg("update lead failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"lead": toLeadResponse(lead)})
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids" binding:"required,min=1,max=500"`
}

func (h HandlerSet) BulkDeleteLeads(c *gin.Context) {
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}

	deleted, err := h.adminLeads.BulkDelete(c.Request.Context(), actorFrom(c), req.IDs)
	if err != nil {
		if errors.Is(err, service.ErrNoIDs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no_ids"})
			return
		}
		h.log.Error().Err(err).Msg("bulk delete failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

type exportRequest struct {
	Status      string `json:"status"`
	ServiceType string `json:"serviceType"`
	Search      string `json:"search"`
	From        string `json:"from"`
	To          string `json:"to"`
}

func (h HandlerSet) ExportLeads(c *gin.Context) {
	var req exportRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
			return
		}
	}

	filter, err := buildFilter(req.Status, req.ServiceType, req.Search, req.From, req.To)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_filter"})
		return
	}

	result, err := h.adminLeads.Export(c.Request.Context(), actorFrom(c), filter)
	if err != nil {
		if errors.Is(err, service.ErrExportDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "export_disabled"})
			return
		}
		h.log.Error().Err(err).Msg("lead export failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"key":       result.Key,
		"url":       result.URL,
		"count":     result.Count,
		"expiresAt": result.ExpiresAt,
	})
}

func actorFrom(c *gin.Context) service.Actor {
	admin, _ := middleware.CurrentAdmin(c)
	return service.Actor{AdminID: admin.ID, Email: admin.Email, Client: middleware.ClientInfo(c)}
}

func leadFilterFromQuery(c *gin.Context) (models.LeadFilter, error) {
	return buildFilter(c.Query("status"), c.Query("serviceType"), c.Query("search"), c.Query("from"), c.Query("to"))
}

// buildFilter validates the enum values and parses from/to as either a
// date or an RFC3339 timestamp. A bare "to" date includes the whole day.
func buildFilter(status, serviceType, search, from, to string) (models.LeadFilter, error) {
	filter := models.LeadFilter{Search: search}

	if status != "" {
		filter.Status = models.LeadStatus(status)
		if !filter.Status.Valid() {
			return filter, errBadFilter
		}
	}
	if serviceType != "" {
		filter.ServiceType = models.ServiceType(serviceType)
		if !filter.ServiceType.Valid() {
			return filter, errBadFilter
		}
	}

	if from != "" {
		t, _, err := parseBound(from)
		if err != nil {
			return filter, err
		}
		filter.From = &t
	}
	if to != "" {
		t, dateOnly, err := parseBound(to)
		if err != nil {
			return filter, err
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		filter.To = &t
	}
	return filter, nil
}

func parseBound(v string) (time.Time, bool, error) {
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, errBadFilter
	}
	return t, false, nil
}
