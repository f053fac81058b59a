package models

import "time"

type AdminUser struct {
	ID           string
	Email        string
	PasswordHash []byte
	TOTPSecret   *string
	TOTPVerified bool
	Active       bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type AdminSession struct {
	ID         string
	AdminID    string
	TokenHash  []byte
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
}

type AuditEntry struct {
	ID        string
	AdminID   *string
	Email     string
	Action    string
	Metadata  map[string]any
	IPAddress string
	CreatedAt time.Time
}

const (
	AuditLoginFailed        = "login_failed"
	AuditLoginPasswordOK    = "login_password_verified"
	AuditTOTPFailed         = "totp_verification_failed"
	AuditTOTPSetupCompleted = "totp_setup_completed"
	AuditLoginSuccess       = "login_success"
	AuditLogout             = "logout"
	AuditLeadUpdated        = "lead_updated"
	AuditLeadsBulkDeleted   = "leads_bulk_deleted"
	AuditLeadsExported      = "leads_exported"
	AuditAdminCreated       = "admin_created"
	AuditAdminPasswordReset = "admin_password_reset"
	AuditAdminDeactivated   = "admin_deactivated"
)
