package service

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Awaisee01/fund-sub001/internal/models"
	"github.com/Awaisee01/fund-sub001/internal/repository"
	"github.com/Awaisee01/fund-sub001/internal/tracking"
)

type clock struct{ t time.Time }

func newClock() *clock                   { return &clock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)} }
func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type memLeadStore struct {
	mu          sync.Mutex
	leads       map[string]models.Lead
	createErr   error
	creates     int
	updates     int
	lastFilters []models.LeadFilter
}

func newMemLeadStore() *memLeadStore {
	return &memLeadStore{leads: map[string]models.Lead{}}
}

func (m *memLeadStore) Create(_ context.Context, lead *models.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	lead.CreatedAt = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	lead.UpdatedAt = lead.CreatedAt
	m.leads[lead.ID] = *lead
	return nil
}

func (m *memLeadStore) GetByID(_ context.Context, id string) (models.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[id]
	if !ok {
		return models.Lead{}, repository.ErrLeadNotFound
	}
	return lead, nil
}

func (m *memLeadStore) Update(_ context.Context, lead *models.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.leads[lead.ID]; !ok {
		return repository.ErrLeadNotFound
	}
	m.updates++
	m.leads[lead.ID] = *lead
	return nil
}

func (m *memLeadStore) sorted() []models.Lead {
	out := make([]models.Lead, 0, len(m.leads))
	for _, l := range m.leads {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memLeadStore) List(_ context.Context, filter models.LeadFilter) ([]models.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilters = append(m.lastFilters, filter)
	all := m.sorted()
	if filter.Offset >= len(all) {
		return nil, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[filter.Offset:end], nil
}

func (m *memLeadStore) Count(_ context.Context, _ models.LeadFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.leads)), nil
}

func (m *memLeadStore) DeleteMany(_ context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := m.leads[id]; ok {
			delete(m.leads, id)
			n++
		}
	}
	return n, nil
}

func (m *memLeadStore) Stats(_ context.Context) (models.LeadStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := models.LeadStats{ByStatus: map[models.LeadStatus]int64{}, ByServiceType: map[models.ServiceType]int64{}}
	for _, l := range m.leads {
		stats.Total++
		stats.ByStatus[l.Status]++
		stats.ByServiceType[l.ServiceType]++
	}
	return stats, nil
}

type memVisitorStore struct {
	sessions  map[string]models.VisitorSession
	converted []string
	// onCreate runs before the insert, standing in for a concurrent writer.
	onCreate func()
}

func newMemVisitorStore() *memVisitorStore {
	return &memVisitorStore{sessions: map[string]models.VisitorSession{}}
}

// Create enforces one open session per visitor like the partial unique index.
func (m *memVisitorStore) Create(_ context.Context, s *models.VisitorSession) error {
	if m.onCreate != nil {
		m.onCreate()
	}
	for _, existing := range m.sessions {
		if existing.VisitorID == s.VisitorID && existing.EndedAt == nil {
			return &repository.DatabaseError{Kind: repository.KindConstraint, Op: "insert visitor session", Err: errors.New("duplicate key")}
		}
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *memVisitorStore) GetByID(_ context.Context, id string) (models.VisitorSession, error) {
	s, ok := m.sessions[id]
	if !ok {
		return models.VisitorSession{}, repository.ErrSessionNotFound
	}
	return s, nil
}

func (m *memVisitorStore) FindOpenByVisitor(_ context.Context, visitorID string) (models.VisitorSession, error) {
	for _, s := range m.sessions {
		if s.VisitorID == visitorID && s.EndedAt == nil {
			return s, nil
		}
	}
	return models.VisitorSession{}, repository.ErrSessionNotFound
}

func (m *memVisitorStore) Touch(_ context.Context, id string, at time.Time) error {
	s, ok := m.sessions[id]
	if !ok || s.EndedAt != nil {
		return repository.ErrSessionNotFound
	}
	s.LastActivityAt = at
	m.sessions[id] = s
	return nil
}

func (m *memVisitorStore) IncrementPages(_ context.Context, id string, at time.Time) error {
	s, ok := m.sessions[id]
	if !ok || s.EndedAt != nil {
		return repository.ErrSessionNotFound
	}
	s.PagesVisited++
	s.LastActivityAt = at
	m.sessions[id] = s
	return nil
}

func (m *memVisitorStore) End(_ context.Context, id string, at time.Time) error {
	s, ok := m.sessions[id]
	if ok && s.EndedAt == nil {
		s.EndedAt = &at
		m.sessions[id] = s
	}
	return nil
}

func (m *memVisitorStore) MarkConverted(_ context.Context, id string) error {
	s, ok := m.sessions[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	s.Converted = true
	m.sessions[id] = s
	m.converted = append(m.converted, id)
	return nil
}

func (m *memVisitorStore) EndIdle(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, s := range m.sessions {
		if s.EndedAt == nil && s.LastActivityAt.Before(cutoff) {
			ended := s.LastActivityAt
			s.EndedAt = &ended
			m.sessions[id] = s
			n++
		}
	}
	return n, nil
}

type memAdminStore struct {
	admins    map[string]models.AdminUser
	createErr error
}

func newMemAdminStore(admins ...models.AdminUser) *memAdminStore {
	m := &memAdminStore{admins: map[string]models.AdminUser{}}
	for _, a := range admins {
		m.admins[a.ID] = a
	}
	return m
}

func (m *memAdminStore) Create(_ context.Context, a models.AdminUser) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.admins[a.ID] = a
	return nil
}

func (m *memAdminStore) FindByEmail(_ context.Context, email string) (models.AdminUser, error) {
	for _, a := range m.admins {
		if a.Email == email {
			return a, nil
		}
	}
	return models.AdminUser{}, repository.ErrAdminNotFound
}

func (m *memAdminStore) GetByID(_ context.Context, id string) (models.AdminUser, error) {
	a, ok := m.admins[id]
	if !ok {
		return models.AdminUser{}, repository.ErrAdminNotFound
	}
	return a, nil
}

func (m *memAdminStore) mutate(id string, fn func(*models.AdminUser)) error {
	a, ok := m.admins[id]
	if !ok {
		return repository.ErrAdminNotFound
	}
	fn(&a)
	m.admins[id] = a
	return nil
}

func (m *memAdminStore) SetTOTPSecret(_ context.Context, id, secret string) error {
	return m.mutate(id, func(a *models.AdminUser) { a.TOTPSecret = &secret; a.TOTPVerified = false })
}

func (m *memAdminStore) MarkTOTPVerified(_ context.Context, id string) error {
	return m.mutate(id, func(a *models.AdminUser) { a.TOTPVerified = true })
}

func (m *memAdminStore) RecordLogin(_ context.Context, id string) error {
	return m.mutate(id, func(a *models.AdminUser) { now := time.Now(); a.LastLoginAt = &now })
}

func (m *memAdminStore) UpdatePassword(_ context.Context, id string, hash []byte) error {
	return m.mutate(id, func(a *models.AdminUser) { a.PasswordHash = hash; a.TOTPSecret = nil; a.TOTPVerified = false })
}

func (m *memAdminStore) SetActive(_ context.Context, id string, active bool) error {
	return m.mutate(id, func(a *models.AdminUser) { a.Active = active })
}

type memSessionStore struct {
	sessions map[string]models.AdminSession
	touches  int
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: map[string]models.AdminSession{}}
}

func (m *memSessionStore) Create(_ context.Context, s models.AdminSession) error {
	m.sessions[s.ID] = s
	return nil
}

func (m *memSessionStore) FindByTokenHash(_ context.Context, hash []byte) (models.AdminSession, error) {
	for _, s := range m.sessions {
		if bytes.Equal(s.TokenHash, hash) {
			return s, nil
		}
	}
	return models.AdminSession{}, repository.ErrSessionNotFound
}

func (m *memSessionStore) DeleteByID(_ context.Context, id string) error {
	if _, ok := m.sessions[id]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *memSessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, s := range m.sessions {
		if !s.ExpiresAt.After(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *memSessionStore) Touch(_ context.Context, id, _, _ string) error {
	m.touches++
	return nil
}

type memAudit struct {
	entries []models.AuditEntry
}

func (m *memAudit) Append(_ context.Context, e models.AuditEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memAudit) actions() []string {
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

func (m *memAudit) has(action string) bool {
	for _, e := range m.entries {
		if e.Action == action {
			return true
		}
	}
	return false
}

type trackCall struct {
	name   string
	user   tracking.UserData
	custom map[string]any
	meta   tracking.Meta
}

type fakeTracker struct {
	calls []trackCall
}

func (f *fakeTracker) TrackEvent(_ context.Context, name string, user tracking.UserData, custom map[string]any, meta tracking.Meta) tracking.PixelEvent {
	f.calls = append(f.calls, trackCall{name: name, user: user, custom: custom, meta: meta})
	return tracking.PixelEvent{Name: name, EventID: meta.EventID, CustomData: custom}
}

type fakeNotifier struct {
	leads []models.Lead
}

func (f *fakeNotifier) Notify(_ context.Context, lead models.Lead) {
	f.leads = append(f.leads, lead)
}

type memExportStore struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemExportStore() *memExportStore {
	return &memExportStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memExportStore) PutObject(_ context.Context, key, contentType string, data []byte) error {
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memExportStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://storage.example.com/" + key + "?sig=abc", nil
}
