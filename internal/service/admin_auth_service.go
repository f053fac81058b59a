package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Awaisee01/fund-sub001/internal/config"
	"github.com/Awaisee01/fund-sub001/internal/ids"
	"github.com/Awaisee01/fund-sub001/internal/models"
	"github.com/Awaisee01/fund-sub001/internal/ratelimit"
	"github.com/Awaisee01/fund-sub001/internal/repository"
	"github.com/Awaisee01/fund-sub001/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidCode        = errors.New("invalid verification code")
	ErrInvalidSession     = errors.New("invalid or expired session")
	ErrAdminExists        = errors.New("admin already exists")
	ErrWeakPassword       = errors.New("password must be at least 12 characters")
	ErrTooManyCodes       = errors.New("too many verification attempts")
)

const (
	DefaultAdminSessionTTL = 4 * time.Hour
	sessionTokenBytes      = 32
	minPasswordLength      = 12
)

// ClientInfo is where an admin request came from, recorded on sessions and
// audit entries.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// AdminAuthService drives admin login: password, then TOTP, then an opaque
// session token stored only as a hash.
type AdminAuthService struct {
	admins   AdminStore
	sessions AdminSessionStore
	audit    AuditStore
	cfg      config.SecurityConfig
	log      zerolog.Logger
	now      func() time.Time
	// codes caps second-factor attempts per admin.
	codes ratelimit.Limiter
}

func NewAdminAuthService(
	admins AdminStore,
	sessions AdminSessionStore,
	audit AuditStore,
	cfg config.SecurityConfig,
	log zerolog.Logger,
) *AdminAuthService {
	if cfg.AdminSessionTTL <= 0 {
		cfg.AdminSessionTTL = DefaultAdminSessionTTL
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	return &AdminAuthService{
		admins:   admins,
		sessions: sessions,
		audit:    audit,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// WithCodeLimiter bounds how many codes an admin may try within the
// limiter's window, whichever challenge they arrive with.
func (s *AdminAuthService) WithCodeLimiter(l ratelimit.Limiter) *AdminAuthService {
	s.codes = l
	return s
}

func (s *AdminAuthService) WithClock(now func() time.Time) *AdminAuthService {
	s.now = now
	return s
}

type LoginResult struct {
	ChallengeToken  string
	SetupRequired   bool
	ProvisioningURI string
	TOTPSecret      string
}

// Login checks the password and, on success, issues a short-lived challenge
// for the TOTP step. Every failure looks the same to the caller.
func (s *AdminAuthService) Login(ctx context.Context, email, password string, client ClientInfo) (LoginResult, error) {
	email = normalizeEmail(email)

	admin, err := s.admins.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrAdminNotFound) {
			security.BurnPasswordCheck(password)
			s.record(ctx, nil, email, models.AuditLoginFailed, client, map[string]any{"reason": "unknown_email"})
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	ok, err := security.VerifyPassword(password, admin.PasswordHash)
	if err != nil || !ok {
		s.record(ctx, &admin.ID, email, models.AuditLoginFailed, client, map[string]any{"reason": "bad_password"})
		return LoginResult{}, ErrInvalidCredentials
	}
	if !admin.Active {
		s.record(ctx, &admin.ID, email, models.AuditLoginFailed, client, map[string]any{"reason": "inactive"})
		return LoginResult{}, ErrInvalidCredentials
	}

	var result LoginResult
	if admin.TOTPSecret == nil || !admin.TOTPVerified {
		key, err := security.GenerateTOTPSecret(s.cfg.TOTPIssuer, admin.Email)
		if err != nil {
			return LoginResult{}, err
		}
		if err := s.admins.SetTOTPSecret(ctx, admin.ID, key.Secret); err != nil {
			return LoginResult{}, err
		}
		result.SetupRequired = true
		result.ProvisioningURI = key.URL
		result.TOTPSecret = key.Secret
	}

	token, err := security.GenerateChallengeToken(s.cfg.ChallengeSecret, admin.ID, admin.Email, s.cfg.ChallengeTTL, s.now())
	if err != nil {
		return LoginResult{}, err
	}
	result.ChallengeToken = token

	s.record(ctx, &admin.ID, email, models.AuditLoginPasswordOK, client, map[string]any{"setup_required": result.SetupRequired})
	return result, nil
}

type VerifyInput struct {
	ChallengeToken string
	Email          string
	Code           string
	IsSetup        bool
	Client         ClientInfo
}

type SessionResult struct {
	Token     string
	ExpiresAt time.Time
	Admin     models.AdminUser
}

// VerifySecondFactor completes login. Nothing is issued unless the challenge
// and the code both check out.
func (s *AdminAuthService) VerifySecondFactor(ctx context.Context, input VerifyInput) (SessionResult, error) {
	email := normalizeEmail(input.Email)
	now := s.now()

	claims, err := security.ParseChallengeToken(input.ChallengeToken, s.cfg.ChallengeSecret, now)
	if err != nil || claims.Email != email {
		s.record(ctx, nil, email, models.AuditTOTPFailed, input.Client, map[string]any{"reason": "invalid_challenge"})
		return SessionResult{}, ErrInvalidCode
	}

	admin, err := s.admins.GetByID(ctx, claims.AdminID)
	if err != nil {
		if errors.Is(err, repository.ErrAdminNotFound) {
			s.record(ctx, nil, email, models.AuditTOTPFailed, input.Client, map[string]any{"reason": "unknown_admin"})
			return SessionResult{}, ErrInvalidCode
		}
		return SessionResult{}, err
	}

	fail := func(reason string) (SessionResult, error) {
		s.record(ctx, &admin.ID, email, models.AuditTOTPFailed, input.Client, map[string]any{"reason": reason, "is_setup": input.IsSetup})
		return SessionResult{}, ErrInvalidCode
	}

	if s.codes != nil {
		// Fails closed: an unreachable limiter must not reopen brute force.
		allowed, err := s.codes.Allow(ctx, "totp:"+admin.ID)
		if err != nil {
			return SessionResult{}, fmt.Errorf("check code attempts: %w", err)
		}
		if !allowed {
			s.record(ctx, &admin.ID, email, models.AuditTOTPFailed, input.Client, map[string]any{"reason": "too_many_attempts"})
			return SessionResult{}, ErrTooManyCodes
		}
	}

	if !admin.Active {
		return fail("inactive")
	}
	if admin.TOTPSecret == nil {
		return fail("no_secret")
	}
	if !admin.TOTPVerified && !input.IsSetup {
		return fail("setup_incomplete")
	}
	if !security.ValidateTOTP(input.Code, *admin.TOTPSecret, now, s.cfg.TOTPSkew) {
		return fail("bad_code")
	}

	if !admin.TOTPVerified {
		if err := s.admins.MarkTOTPVerified(ctx, admin.ID); err != nil {
			return SessionResult{}, err
		}
		admin.TOTPVerified = true
		s.record(ctx, &admin.ID, email, models.AuditTOTPSetupCompleted, input.Client, nil)
	}

	token, hash, err := security.GenerateSessionToken(sessionTokenBytes)
	if err != nil {
		return SessionResult{}, err
	}
	session := models.AdminSession{
		ID:        ids.New(),
		AdminID:   admin.ID,
		TokenHash: hash,
		IPAddress: input.Client.IPAddress,
		UserAgent: input.Client.UserAgent,
		ExpiresAt: now.Add(s.cfg.AdminSessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return SessionResult{}, err
	}

	if err := s.admins.RecordLogin(ctx, admin.ID); err != nil {
		s.log.Warn().Err(err).Str("admin_id", admin.ID).Msg("record login failed")
	}
	s.record(ctx, &admin.ID, email, models.AuditLoginSuccess, input.Client, map[string]any{"session_id": session.ID})

	return SessionResult{Token: token, ExpiresAt: session.ExpiresAt, Admin: admin}, nil
}

// ValidateSession resolves a bearer token to its admin. Unknown, expired and
// inactive all yield ErrInvalidSession.
func (s *AdminAuthService) ValidateSession(ctx context.Context, token string, client ClientInfo) (models.AdminUser, models.AdminSession, error) {
	if token == "" {
		return models.AdminUser{}, models.AdminSession{}, ErrInvalidSession
	}

	session, err := s.sessions.FindByTokenHash(ctx, security.HashSessionToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return models.AdminUser{}, models.AdminSession{}, ErrInvalidSession
		}
		return models.AdminUser{}, models.AdminSession{}, err
	}

	if !s.now().Before(session.ExpiresAt) {
		if err := s.sessions.DeleteByID(ctx, session.ID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
			s.log.Warn().Err(err).Str("session_id", session.ID).Msg("delete expired admin session failed")
		}
		return models.AdminUser{}, models.AdminSession{}, ErrInvalidSession
	}

	admin, err := s.admins.GetByID(ctx, session.AdminID)
	if err != nil {
		if errors.Is(err, repository.ErrAdminNotFound) {
			return models.AdminUser{}, models.AdminSession{}, ErrInvalidSession
		}
		return models.AdminUser{}, models.AdminSession{}, err
	}
	if !admin.Active {
		return models.AdminUser{}, models.AdminSession{}, ErrInvalidSession
	}

	if err := s.sessions.Touch(ctx, session.ID, client.IPAddress, client.UserAgent); err != nil {
		s.log.Warn().Err(err).Str("session_id", session.ID).Msg("touch admin session failed")
	}
	return admin, session, nil
}

func (s *AdminAuthService) Logout(ctx context.Context, token string, client ClientInfo) error {
	admin, session, err := s.ValidateSession(ctx, token, client)
	if err != nil {
		return err
	}
	if err := s.sessions.DeleteByID(ctx, session.ID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return err
	}
	s.record(ctx, &admin.ID, admin.Email, models.AuditLogout, client, map[string]any{"session_id": session.ID})
	return nil
}

func (s *AdminAuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	removed, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.log.Info().Int64("removed", removed).Msg("expired admin sessions purged")
	}
	return removed, nil
}

// CreateAdmin provisions a principal. TOTP is enrolled on first login.
func (s *AdminAuthService) CreateAdmin(ctx context.Context, email, password string) (models.AdminUser, error) {
	email = normalizeEmail(email)
	if email == "" {
		return models.AdminUser{}, fmt.Errorf("email required")
	}
	if len(password) < minPasswordLength {
		return models.AdminUser{}, ErrWeakPassword
	}

	if _, err := s.admins.FindByEmail(ctx, email); err == nil {
		return models.AdminUser{}, ErrAdminExists
	} else if !errors.Is(err, repository.ErrAdminNotFound) {
		return models.AdminUser{}, err
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return models.AdminUser{}, err
	}
	admin := models.AdminUser{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.admins.Create(ctx, admin); err != nil {
		if repository.IsConstraint(err) {
			return models.AdminUser{}, ErrAdminExists
		}
		return models.AdminUser{}, err
	}
	s.record(ctx, &admin.ID, email, models.AuditAdminCreated, ClientInfo{}, nil)
	return admin, nil
}

// ResetPassword replaces the password and clears the TOTP enrolment so the
// admin sets up a fresh authenticator on next login.
func (s *AdminAuthService) ResetPassword(ctx context.Context, email, password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	admin, err := s.admins.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.admins.UpdatePassword(ctx, admin.ID, hash); err != nil {
		return err
	}
	s.record(ctx, &admin.ID, admin.Email, models.AuditAdminPasswordReset, ClientInfo{}, nil)
	return nil
}

func (s *AdminAuthService) Deactivate(ctx context.Context, email string) error {
	admin, err := s.admins.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}
	if err := s.admins.SetActive(ctx, admin.ID, false); err != nil {
		return err
	}
	s.record(ctx, &admin.ID, admin.Email, models.AuditAdminDeactivated, ClientInfo{}, nil)
	return nil
}

// record appends an audit entry. Audit failures are logged, never returned.
func (s *AdminAuthService) record(ctx context.Context, adminID *string, email, action string, client ClientInfo, metadata map[string]any) {
	appendAudit(ctx, s.audit, s.log, models.AuditEntry{
		ID:        ids.New(),
		AdminID:   adminID,
		Email:     email,
		Action:    action,
		Metadata:  metadata,
		IPAddress: client.IPAddress,
	})
}

func appendAudit(ctx context.Context, store AuditStore, log zerolog.Logger, entry models.AuditEntry) {
	if err := store.Append(ctx, entry); err != nil {
		log.Error().Err(err).Str("action", entry.Action).Str("email", entry.Email).Msg("audit append failed")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
