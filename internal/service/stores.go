package service

import (
	"context"
	"time"

	"github.com/Awaisee01/fund-sub001/internal/models"
	"github.com/Awaisee01/fund-sub001/internal/tracking"
)

// The interfaces below are the slices of the repositories each service
// needs. *repository.XRepository values satisfy them.

type LeadStore interface {
	Create(ctx context.Context, lead *models.Lead) error
	GetByID(ctx context.Context, id string) (models.Lead, error)
	Update(ctx context.Context, lead *models.Lead) error
	List(ctx context.Context, filter models.LeadFilter) ([]models.Lead, error)
	Count(ctx context.Context, filter models.LeadFilter) (int64, error)
	DeleteMany(ctx context.Context, ids []string) (int64, error)
	Stats(ctx context.Context) (models.LeadStats, error)
}

type VisitorSessionStore interface {
	Create(ctx context.Context, session *models.VisitorSession) error
	GetByID(ctx context.Context, id string) (models.VisitorSession, error)
	FindOpenByVisitor(ctx context.Context, visitorID string) (models.VisitorSession, error)
	Touch(ctx context.Context, id string, at time.Time) error
	IncrementPages(ctx context.Context, id string, at time.Time) error
	End(ctx context.Context, id string, at time.Time) error
	MarkConverted(ctx context.Context, id string) error
	EndIdle(ctx context.Context, cutoff time.Time) (int64, error)
}

type AdminStore interface {
	Create(ctx context.Context, admin models.AdminUser) error
	FindByEmail(ctx context.Context, email string) (models.AdminUser, error)
	GetByID(ctx context.Context, id string) (models.AdminUser, error)
	SetTOTPSecret(ctx context.Context, id string, secret string) error
	MarkTOTPVerified(ctx context.Context, id string) error
	RecordLogin(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id string, passwordHash []byte) error
	SetActive(ctx context.Context, id string, active bool) error
}

type AdminSessionStore interface {
	Create(ctx context.Context, session models.AdminSession) error
	FindByTokenHash(ctx context.Context, tokenHash []byte) (models.AdminSession, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Touch(ctx context.Context, sessionID string, ip string, userAgent string) error
}

type AuditStore interface {
	Append(ctx context.Context, entry models.AuditEntry) error
}

type EventTracker interface {
	TrackEvent(ctx context.Context, name string, user tracking.UserData, customData map[string]any, meta tracking.Meta) tracking.PixelEvent
}

type LeadNotifier interface {
	Notify(ctx context.Context, lead models.Lead)
}

type ExportStore interface {
	PutObject(ctx context.Context, key, contentType string, data []byte) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
