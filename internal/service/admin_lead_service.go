package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Awaisee01/fund-sub001/internal/ids"
	"github.com/Awaisee01/fund-sub001/internal/models"
	"github.com/Awaisee01/fund-sub001/internal/validation"
)

var (
	ErrFieldNotAllowed  = errors.New("field cannot be updated")
	ErrNoFields         = errors.New("no fields to update")
	ErrInvalidStatus    = errors.New("invalid lead status")
	ErrInvalidFieldType = errors.New("invalid field value")
	ErrNoIDs            = errors.New("no lead ids given")
	ErrExportDisabled   = errors.New("lead export not configured")
)

const (
	FieldStatus     = "status"
	FieldAdminNotes = "admin_notes"

	maxListLimit    = 200
	exportPageSize  = 500
	maxAdminNoteLen = 5000
)

// updatableFields is the allow-list for admin edits.
var updatableFields = map[string]bool{
	FieldStatus:     true,
	FieldAdminNotes: true,
}

// Actor is the authenticated admin performing an operation.
type Actor struct {
	AdminID string
	Email   string
	Client  ClientInfo
}

type AdminLeadService struct {
	leads      LeadStore
	audit      AuditStore
	exports    ExportStore
	presignTTL time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

func NewAdminLeadService(leads LeadStore, audit AuditStore, exports ExportStore, presignTTL time.Duration, log zerolog.Logger) *AdminLeadService {
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	return &AdminLeadService{
		leads:      leads,
		audit:      audit,
		exports:    exports,
		presignTTL: presignTTL,
		log:        log,
		now:        time.Now,
	}
}

func (s *AdminLeadService) WithClock(now func() time.Time) *AdminLeadService {
	s.now = now
	return s
}

type LeadPage struct {
	Leads []models.Lead
	Total int64
}

func (s *AdminLeadService) List(ctx context.Context, filter models.LeadFilter) (LeadPage, error) {
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	leads, err := s.leads.List(ctx, filter)
	if err != nil {
		return LeadPage{}, err
	}
	total, err := s.leads.Count(ctx, filter)
	if err != nil {
		return LeadPage{}, err
	}
	if leads == nil {
		leads = []models.Lead{}
	}
	return LeadPage{Leads: leads, Total: total}, nil
}

func (s *AdminLeadService) Stats(ctx context.Context) (models.LeadStats, error) {
	return s.leads.Stats(ctx)
}

// Update applies allow-listed fields to one lead. Any other key rejects the
// whole update. Concurrent edits are last-write-wins.
func (s *AdminLeadService) Update(ctx context.Context, actor Actor, id string, fields map[string]any) (models.Lead, error) {
	if len(fields) == 0 {
		return models.Lead{}, ErrNoFields
	}
	for key := range fields {
		if !updatableFields[key] {
			return models.Lead{}, fmt.Errorf("%w: %s", ErrFieldNotAllowed, key)
		}
	}

	lead, err := s.leads.GetByID(ctx, id)
	if err != nil {
		return models.Lead{}, err
	}
	previous := lead.Status

	if raw, ok := fields[FieldStatus]; ok {
		str, ok := raw.(string)
		status := models.LeadStatus(str)
		if !ok || !status.Valid() {
			return models.Lead{}, ErrInvalidStatus
		}
		lead.ApplyStatus(status, s.now())
	}

	if raw, ok := fields[FieldAdminNotes]; ok {
		switch v := raw.(type) {
		case nil:
			lead.AdminNotes = nil
		case string:
			notes := validation.Sanitize(v)
			if len(notes) > maxAdminNoteLen {
				return models.Lead{}, fmt.Errorf("%w: %s", ErrInvalidFieldType, FieldAdminNotes)
			}
			lead.AdminNotes = optional(notes)
		default:
			return models.Lead{}, fmt.Errorf("%w: %s", ErrInvalidFieldType, FieldAdminNotes)
		}
	}

	if err := s.leads.Update(ctx, &lead); err != nil {
		return models.Lead{}, err
	}

	changed := make([]string, 0, len(fields))
	for key := range fields {
		changed = append(changed, key)
	}
	sort.Strings(changed)
	s.record(ctx, actor, models.AuditLeadUpdated, map[string]any{
		"lead_id":         lead.ID,
		"fields":          changed,
		"previous_status": string(previous),
		"status":          string(lead.Status),
	})
	return lead, nil
}

// BulkDelete removes the given leads and returns how many rows went.
func (s *AdminLeadService) BulkDelete(ctx context.Context, actor Actor, leadIDs []string) (int64, error) {
	unique := make([]string, 0, len(leadIDs))
	seen := make(map[string]bool, len(leadIDs))
	for _, id := range leadIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return 0, ErrNoIDs
	}

	deleted, err := s.leads.DeleteMany(ctx, unique)
	if err != nil {
		return 0, err
	}
	s.record(ctx, actor, models.AuditLeadsBulkDeleted, map[string]any{
		"lead_ids": unique,
		"count":    deleted,
	})
	return deleted, nil
}

type ExportResult struct {
	Key       string
	URL       string
	Count     int
	ExpiresAt time.Time
}

var exportHeader = []string{
	"id", "created_at", "status", "service_type", "name", "email", "phone", "postcode", "address",
	"utm_source", "utm_medium", "utm_campaign", "referrer", "contacted_at", "converted_at", "admin_notes",
}

// Export writes every lead matching filter to a CSV in the export bucket and
// returns a time-limited download link.
func (s *AdminLeadService) Export(ctx context.Context, actor Actor, filter models.LeadFilter) (ExportResult, error) {
	if s.exports == nil {
		return ExportResult{}, ErrExportDisabled
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return ExportResult{}, err
	}

	count := 0
	filter.Limit = exportPageSize
	for filter.Offset = 0; ; filter.Offset += exportPageSize {
		page, err := s.leads.List(ctx, filter)
		if err != nil {
			return ExportResult{}, err
		}
		for _, lead := range page {
			if err := w.Write(exportRow(lead)); err != nil {
				return ExportResult{}, err
			}
		}
		count += len(page)
		if len(page) < exportPageSize {
			break
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return ExportResult{}, fmt.Errorf("write csv: %w", err)
	}

	now := s.now()
	key := fmt.Sprintf("exports/leads-%s-%s.csv", now.UTC().Format("20060102-150405"), ids.New())
	if err := s.exports.PutObject(ctx, key, "text/csv", buf.Bytes()); err != nil {
		return ExportResult{}, err
	}
	url, err := s.exports.PresignGet(ctx, key, s.presignTTL)
	if err != nil {
		return ExportResult{}, err
	}

	s.record(ctx, actor, models.AuditLeadsExported, map[string]any{
		"key":          key,
		"count":        count,
		"status":       string(filter.Status),
		"service_type": string(filter.ServiceType),
		"search":       filter.Search,
	})
	return ExportResult{Key: key, URL: url, Count: count, ExpiresAt: now.Add(s.presignTTL)}, nil
}

func exportRow(l models.Lead) []string {
	return []string{
		l.ID,
		l.CreatedAt.UTC().Format(time.RFC3339),
		string(l.Status),
		string(l.ServiceType),
		csvSafe(l.Name),
		csvSafe(deref(l.Email)),
		csvSafe(deref(l.Phone)),
		csvSafe(deref(l.Postcode)),
		csvSafe(deref(l.Address)),
		csvSafe(l.Attribution.UTMSource),
		csvSafe(l.Attribution.UTMMedium),
		csvSafe(l.Attribution.UTMCampaign),
		csvSafe(l.Attribution.Referrer),
		formatStamp(l.ContactedAt),
		formatStamp(l.ConvertedAt),
		csvSafe(deref(l.AdminNotes)),
	}
}

// csvSafe neutralises values a spreadsheet would evaluate as a formula.
func csvSafe(v string) string {
	if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
		return "'" + v
	}
	return v
}

func formatStamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *AdminLeadService) record(ctx context.Context, actor Actor, action string, metadata map[string]any) {
	var adminID *string
	if actor.AdminID != "" {
		id := actor.AdminID
		adminID = &id
	}
	appendAudit(ctx, s.audit, s.log, models.AuditEntry{
		ID:        ids.New(),
		AdminID:   adminID,
		Email:     actor.Email,
		Action:    action,
		Metadata:  metadata,
		IPAddress: actor.Client.IPAddress,
	})
}
