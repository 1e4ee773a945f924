package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pulsetrail/api/config"
	"pulsetrail/api/logging"
	"pulsetrail/api/middleware"
	"pulsetrail/api/models"
	"pulsetrail/api/utils"
)

type AuthHandlers struct {
	cfg       config.AuthConfig
	jwtSecret []byte
	secure    bool
}

// NewAuthHandlers builds the operator login handlers. secure marks the
// session cookie as HTTPS only.
func NewAuthHandlers(cfg config.AuthConfig, secure bool) *AuthHandlers {
	return &AuthHandlers{cfg: cfg, jwtSecret: []byte(cfg.JWTSecret), secure: secure}
}

// Login exchanges the operator secret for a short-lived session token.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	// A session token cannot be used to mint another one.
	switch middleware.Authenticate(h.cfg, nil, req.Token) {
	case "token", "token_hash":
	default:
		logging.Warn().Str("client_ip", c.ClientIP()).Msg("operator login failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	token, expiresAt, err := utils.GenerateJWT(h.jwtSecret, h.cfg.JWTTTL)
	if err != nil {
		logging.Error().Err(err).Msg("failed to generate session token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate authentication token"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		middleware.SessionCookie,
		token,
		int(h.cfg.JWTTTL.Seconds()),
		"/",
		"",
		h.secure,
		true,
	)

	logging.Info().Str("client_ip", c.ClientIP()).Time("expires_at", expiresAt).Msg("operator logged in")
	c.JSON(http.StatusOK, models.LoginResponse{
		Message:   "Login successful",
		Token:     token,
		ExpiresAt: expiresAt.Unix(),
	})
}

func (h *AuthHandlers) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.secure, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}
