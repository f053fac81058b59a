package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Awaisee01/fund-sub001/internal/config"
	"github.com/Awaisee01/fund-sub001/internal/middleware"
	"github.com/Awaisee01/fund-sub001/internal/models"
	"github.com/Awaisee01/fund-sub001/internal/notify"
	"github.com/Awaisee01/fund-sub001/internal/ratelimit"
	"github.com/Awaisee01/fund-sub001/internal/service"
	"github.com/Awaisee01/fund-sub001/internal/tracking"
)

type LeadSubmitter interface {
	Submit(ctx context.Context, input service.SubmitInput) (service.SubmitResult, error)
}

type VisitorSessions interface {
	Start(ctx context.Context, input service.StartSessionInput) (service.StartSessionResult, error)
	Heartbeat(ctx context.Context, id string) error
	PageView(ctx context.Context, id string) error
	End(ctx context.Context, id string) error
}

type AdminAuthenticator interface {
	middleware.SessionValidator
	Login(ctx context.Context, email, password string, client service.ClientInfo) (service.LoginResult, error)
	VerifySecondFactor(ctx context.Context, input service.VerifyInput) (service.SessionResult, error)
	Logout(ctx context.Context, token string, client service.ClientInfo) error
}

type AdminLeads interface {
	List(ctx context.Context, filter models.LeadFilter) (service.LeadPage, error)
	Stats(ctx context.Context) (models.LeadStats, error)
	Update(ctx context.Context, actor service.Actor, id string, fields map[string]any) (models.Lead, error)
	BulkDelete(ctx context.Context, actor service.Actor, ids []string) (int64, error)
	Export(ctx context.Context, actor service.Actor, filter models.LeadFilter) (service.ExportResult, error)
}

type ConversionRelay interface {
	Relay(ctx context.Context, req tracking.RelayRequest) (tracking.Ack, error)
}

type LeadMailer interface {
	SendLeadNotification(ctx context.Context, summary notify.LeadSummary) error
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps is everything the HTTP surface talks to. cmd/api builds it from the
// concrete services; tests pass fakes.
type Deps struct {
	Leads        LeadSubmitter
	Sessions     VisitorSessions
	AdminAuth    AdminAuthenticator
	AdminLeads   AdminLeads
	Relay        ConversionRelay
	Mailer       LeadMailer
	RelayLimiter ratelimit.Limiter
	AuthLimiter  ratelimit.Limiter
	Nonces       middleware.NonceStore
	Database     HealthCheck
	Cache        HealthCheck
}

type HandlerSet struct {
	log          zerolog.Logger
	cfg          *config.AppConfig
	leads        LeadSubmitter
	sessions     VisitorSessions
	adminAuth    AdminAuthenticator
	adminLeads   AdminLeads
	relay        ConversionRelay
	mailer       LeadMailer
	relayLimiter ratelimit.Limiter
	authLimiter  ratelimit.Limiter
	nonces       middleware.NonceStore
	database     HealthCheck
	cache        HealthCheck
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, deps Deps) HandlerSet {
	return HandlerSet{
		log:          log,
		cfg:          cfg,
		leads:        deps.Leads,
		sessions:     deps.Sessions,
		adminAuth:    deps.AdminAuth,
		adminLeads:   deps.AdminLeads,
		relay:        deps.Relay,
		mailer:       deps.Mailer,
		relayLimiter: deps.RelayLimiter,
		authLimiter:  deps.AuthLimiter,
		nonces:       deps.Nonces,
		database:     deps.Database,
		cache:        deps.Cache,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		v1.POST("/leads", h.SubmitLead)

		sessions := v1.Group("/sessions")
		sessions.POST("", h.StartSession)
		sessions.POST("/:id/heartbeat", h.Heartbeat)
		sessions.POST("/:id/pageview", h.PageView)
		sessions.POST("/:id/end", h.EndSession)

		trackingGroup := v1.Group("/tracking")
		if h.relayLimiter != nil {
			// Relay calls are per browser, so they are bucketed by IP whatever
			// the form limiter does.
			trackingGroup.Use(ratelimit.RateLimit(h.relayLimiter, ratelimit.KeyFor(ratelimit.StrategyIP, ""), h.log))
		}
		trackingGroup.POST("/events", h.RelayEvent)

		relay := v1.Group("/relay")
		relay.Use(middleware.Signature(h.cfg.Security, h.nonces))
		relay.POST("/notify", h.RelayNotify)

		auth := v1.Group("/admin/auth")
		if h.authLimiter != nil {
			auth.Use(ratelimit.RateLimit(h.authLimiter, ratelimit.KeyFor(ratelimit.StrategyIP, ""), h.log))
		}
		auth.POST("/login", h.AdminLogin)
		auth.POST("/verify", h.AdminVerify)

		authed := v1.Group("/admin/auth")
		authed.Use(middleware.AdminAuth(h.adminAuth))
		authed.GET("/session", h.AdminSession)
		authed.POST("/logout", h.AdminLogout)

		admin := v1.Group("/admin/leads")
		admin.Use(middleware.AdminAuth(h.adminAuth))
		admin.GET("", h.ListLeads)
		admin.GET("/stats", h.LeadStats)
		admin.PATCH("/:id", h.UpdateLead)
		admin.POST("/bulk-delete", h.BulkDeleteLeads)
		admin.POST("/export", h.ExportLeads)
	}
}
