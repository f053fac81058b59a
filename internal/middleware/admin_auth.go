package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Awaisee01/fund-sub001/internal/models"
	"github.com/Awaisee01/fund-sub001/internal/service"
)

const (
	ctxAccessToken  = "access_token"
	ctxCurrentAdmin = "current_admin"
	ctxAdminSession = "admin_session"
)

type SessionValidator interface {
	ValidateSession(ctx context.Context, token string, client service.ClientInfo) (models.AdminUser, models.AdminSession, error)
}

// AdminAuth resolves the bearer token to an admin before the handler runs.
// Every rejection is the same 401 so callers cannot tell why.
func AdminAuth(validator SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

		admin, session, err := validator.ValidateSession(c.Request.Context(), token, ClientInfo(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(ctxAccessToken, token)
		c.Set(ctxCurrentAdmin, admin)
		c.Set(ctxAdminSession, session)

		c.Next()
	}
}

func ClientInfo(c *gin.Context) service.ClientInfo {
	return service.ClientInfo{IPAddress: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

func CurrentAdmin(c *gin.Context) (models.AdminUser, bool) {
	v, ok := c.Get(ctxCurrentAdmin)
	if !ok {
		return models.AdminUser{}, false
	}
	admin, ok := v.(models.AdminUser)
	return admin, ok
}

func CurrentSession(c *gin.Context) (models.AdminSession, bool) {
	v, ok := c.Get(ctxAdminSession)
	if !ok {
		return models.AdminSession{}, false
	}
	session, ok := v.(models.AdminSession)
	return session, ok
}

func AccessToken(c *gin.Context) string {
	return c.GetString(ctxAccessToken)
}
