package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Awaisee01/fund-sub001/internal/middleware"
	"github.com/Awaisee01/fund-sub001/internal/models"
	"github.com/Awaisee01/fund-sub001/internal/service"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	ChallengeToken  string `json:"challengeToken"`
	SetupRequired   bool   `json:"setupRequired"`
	ProvisioningURI string `json:"provisioningUri,omitempty"`
	TOTPSecret      string `json:"totpSecret,omitempty"`
}

type verifyRequest struct {
	ChallengeToken string `json:"challengeToken" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	Code           string `json:"code" binding:"required,len=6,numeric"`
	IsSetup        bool   `json:"isSetup"`
}

type adminResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

func toAdminResponse(a models.AdminUser) adminResponse {
	return adminResponse{ID: a.ID, Email: a.Email, LastLoginAt: a.LastLoginAt}
}

func (h HandlerSet) AdminLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}

	result, err := h.adminAuth.Login(c.Request.Context(), req.Email, req.Password, middleware.ClientInfo(c))
	if err != nil {
		if !errors.Is(err, service.ErrInvalidCredentials) {
			h.log.Error().Err(err).Msg("admin login failed")
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		ChallengeToken:  result.ChallengeToken,
		SetupRequired:   result.SetupRequired,
		ProvisioningURI: result.ProvisioningURI,
		TOTPSecret:      result.TOTPSecret,
	})
}

func (h HandlerSet) AdminVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}

	result, err := h.adminAuth.VerifySecondFactor(c.Request.Context(), service.VerifyInput{
		ChallengeToken: req.ChallengeToken,
		Email:          req.Email,
		Code:           req.Code,
		IsSetup:        req.IsSetup,
		Client:         middleware.ClientInfo(c),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTooManyCodes):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too_many_attempts"})
			return
		case !errors.Is(err, service.ErrInvalidCode):
			h.log.Error().Err(err).Msg("admin second factor failed")
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_code"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     result.Token,
		"expiresAt": result.ExpiresAt,
		"admin":     toAdminResponse(result.Admin),
	})
}

func (h HandlerSet) AdminSession(c *gin.Context) {
	admin, ok := middleware.CurrentAdmin(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	session, _ := middleware.CurrentSession(c)

	c.JSON(http.StatusOK, gin.H{
		"admin":     toAdminResponse(admin),
		"expiresAt": session.ExpiresAt,
	})
}

func (h HandlerSet) AdminLogout(c *gin.Context) {
	if err := h.adminAuth.Logout(c.Request.Context(), middleware.AccessToken(c), middleware.ClientInfo(c)); err != nil {
		if !errors.Is(err, service.ErrInvalidSession) {
			h.log.Error().Err(err).Msg("admin logout failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "logout_failed"})
			return
		}
	}
	c.Status(http.StatusNoContent)
}
