package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Awaisee01/fund-sub001/internal/models"
	"github.com/Awaisee01/fund-sub001/internal/repository"
)

var actor = Actor{AdminID: "admin-1", Email: "ops@example.com", Client: ClientInfo{IPAddress: "198.51.100.7"}}

func seedLead(store *memLeadStore, id string) {
	email := id + "@example.com"
	store.leads[id] = models.Lead{
		ID:          id,
		Name:        "Lead " + id,
		Email:       &email,
		ServiceType: models.ServiceSolar,
		Status:      models.LeadStatusNew,
		CreatedAt:   time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC),
	}
}

func newAdminLeadFixture(exports ExportStore) (*clock, *memLeadStore, *memAudit, *AdminLeadService) {
	clk := newClock()
	leads := newMemLeadStore()
	audit := &memAudit{}
	svc := NewAdminLeadService(leads, audit, exports, 15*time.Minute, zerolog.Nop()).WithClock(clk.now)
	return clk, leads, audit, svc
}

func TestUpdateStampsContactedOnce(t *testing.T) {
	clk, leads, audit, svc := newAdminLeadFixture(nil)
	seedLead(leads, "l1")
	ctx := context.Background()

	first := clk.now()
	lead, err := svc.Update(ctx, actor, "l1", map[string]any{"status": "contacted"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if lead.ContactedAt == nil || !lead.ContactedAt.Equal(first) {
		t.Fatalf("contacted_at not stamped: %v", lead.ContactedAt)
	}

	clk.advance(time.Hour)
	if _, err := svc.Update(ctx, actor, "l1", map[string]any{"status": "qualified"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	clk.advance(time.Hour)
	lead, err = svc.Update(ctx, actor, "l1", map[string]any{"status": "contacted"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !lead.ContactedAt.Equal(first) {
		t.Fatalf("contacted_at re-stamped: got %v want %v", lead.ContactedAt, first)
	}

	clk.advance(time.Hour)
	lead, _ = svc.Update(ctx, actor, "l1", map[string]any{"status": "converted"})
	if lead.ConvertedAt == nil || !lead.ConvertedAt.Equal(clk.now()) {
		t.Fatalf("converted_at not stamped")
	}
	if len(audit.entries) != 4 || audit.entries[0].Action != models.AuditLeadUpdated {
		t.Fatalf("expected 4 lead_updated entries, got %v", audit.actions())
	}
}

func TestUpdateRejectsFieldsOutsideAllowList(t *testing.T) {
	_, leads, audit, svc := newAdminLeadFixture(nil)
	seedLead(leads, "l1")

	_, err := svc.Update(context.Background(), actor, "l1", map[string]any{"status": "contacted", "email": "x@y.z"})
	if !errors.Is(err, ErrFieldNotAllowed) {
		t.Fatalf("expected ErrFieldNotAllowed, got %v", err)
	}
	if leads.updates != 0 || leads.leads["l1"].Status != models.LeadStatusNew {
		t.Fatalf("lead must not change")
	}
	if len(audit.entries) != 0 {
		t.Fatalf("nothing should be audited")
	}
}

func TestUpdateValidation(t *testing.T) {
	_, leads, _, svc := newAdminLeadFixture(nil)
	seedLead(leads, "l1")
	ctx := context.Background()

	if _, err := svc.Update(ctx, actor, "l1", map[string]any{"status": "archived"}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := svc.Update(ctx, actor, "l1", map[string]any{"admin_notes": 42}); !errors.Is(err, ErrInvalidFieldType) {
		t.Fatalf("expected ErrInvalidFieldType, got %v", err)
	}
	if _, err := svc.Update(ctx, actor, "l1", map[string]any{}); !errors.Is(err, ErrNoFields) {
		t.Fatalf("expected ErrNoFields, got %v", err)
	}
	if _, err := svc.Update(ctx, actor, "missing", map[string]any{"status": "lost"}); !errors.Is(err, repository.ErrLeadNotFound) {
		t.Fatalf("expected ErrLeadNotFound, got %v", err)
	}
}

func TestUpdateNotes(t *testing.T) {
	_, leads, _, svc := newAdminLeadFixture(nil)
	seedLead(leads, "l1")
	ctx := context.Background()

	lead, err := svc.Update(ctx, actor, "l1", map[string]any{"admin_notes": "<b>Call</b> after 5pm"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if lead.AdminNotes == nil || *lead.AdminNotes != "Call after 5pm" {
		t.Fatalf("notes = %v", lead.AdminNotes)
	}

	lead, _ = svc.Update(ctx, actor, "l1", map[string]any{"admin_notes": nil})
	if lead.AdminNotes != nil {
		t.Fatalf("notes should be cleared")
	}
}

func TestBulkDelete(t *testing.T) {
	_, leads, audit, svc := newAdminLeadFixture(nil)
	seedLead(leads, "l1")
	seedLead(leads, "l2")
	seedLead(leads, "l3")

	n, err := svc.BulkDelete(context.Background(), actor, []string{"l1", "l2", "l1", " ", "missing"})
	if err != nil {
		t.Fatalf("BulkDelete: %v", err)
	}
	if n != 2 || len(leads.leads) != 1 {
		t.Fatalf("expected 2 deleted, got %d (remaining %d)", n, len(leads.leads))
	}

	entry := audit.entries[0]
	if entry.Action != models.AuditLeadsBulkDeleted || entry.Metadata["count"] != int64(2) {
		t.Fatalf("unexpected audit entry %+v", entry)
	}
	if ids := entry.Metadata["lead_ids"].([]string); len(ids) != 3 {
		t.Fatalf("audit should list requested ids, got %v", ids)
	}
	if entry.AdminID == nil || *entry.AdminID != "admin-1" {
		t.Fatalf("audit not keyed by admin")
	}

	if _, err := svc.BulkDelete(context.Background(), actor, nil); !errors.Is(err, ErrNoIDs) {
		t.Fatalf("expected ErrNoIDs, got %v", err)
	}
}

func TestListClampsLimit(t *testing.T) {
	_, leads, _, svc := newAdminLeadFixture(nil)
	seedLead(leads, "l1")

	page, err := svc.List(context.Background(), models.LeadFilter{Limit: 10000, Offset: -3})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 1 || len(page.Leads) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
	if f := leads.lastFilters[0]; f.Limit != 50 || f.Offset != 0 {
		t.Fatalf("filter not clamped: %+v", f)
	}
}

func TestExportWritesCSVAndPresigns(t *testing.T) {
	store := newMemExportStore()
	_, leads, audit, svc := newAdminLeadFixture(store)
	for i := 0; i < 3; i++ {
		seedLead(leads, fmt.Sprintf("l%d", i))
	}
	phone := "=HYPERLINK(\"x\")"
	l := leads.leads["l0"]
	l.Phone = &phone
	leads.leads["l0"] = l

	res, err := svc.Export(context.Background(), actor, models.LeadFilter{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Count != 3 || !strings.HasPrefix(res.Key, "exports/leads-20240501-100000-") {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(res.URL, res.Key) {
		t.Fatalf("url does not reference key: %s", res.URL)
	}
	if store.types[res.Key] != "text/csv" {
		t.Fatalf("content type = %q", store.types[res.Key])
	}

	rows, err := csv.NewReader(strings.NewReader(string(store.objects[res.Key]))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 4 || rows[0][0] != "id" {
		t.Fatalf("unexpected csv rows %v", rows)
	}
	if rows[1][6] != "'"+phone {
		t.Fatalf("formula not neutralised: %q", rows[1][6])
	}
	if !audit.has(models.AuditLeadsExported) {
		t.Fatalf("missing export audit")
	}
}

func TestExportDisabled(t *testing.T) {
	_, _, _, svc := newAdminLeadFixture(nil)
	if _, err := svc.Export(context.Background(), actor, models.LeadFilter{}); !errors.Is(err, ErrExportDisabled) {
		t.Fatalf("expected ErrExportDisabled, got %v", err)
	}
}
