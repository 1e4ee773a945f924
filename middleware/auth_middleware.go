package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"pulsetrail/api/config"
	"pulsetrail/api/logging"
	"pulsetrail/api/metrics"
	"pulsetrail/api/utils"
)

// SessionCookie holds the operator JWT issued by the login endpoint.
const SessionCookie = "analytics_session"

// AuthMethodKey is the gin context key naming how the operator was authenticated.
const AuthMethodKey = "auth_method"

// OperatorAuth admits requests that present the operator secret, a value
// matching its bcrypt hash, or a session JWT. The credential is read from the
// Authorization bearer header first and the session cookie second.
func OperatorAuth(cfg config.AuthConfig) gin.HandlerFunc {
	jwtSecret := []byte(cfg.JWTSecret)

	return func(c *gin.Context) {
		token, ok := utils.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
				token, ok = cookie, true
			}
		}
		if !ok {
			reject(c, "no credential provided")
			return
		}

		method := Authenticate(cfg, jwtSecret, token)
		if method == "" {
			reject(c, "invalid credential")
			return
		}

		c.Set(AuthMethodKey, method)
		c.Next()
	}
}

// Authenticate returns the method that accepted token, or "" when none did.
func Authenticate(cfg config.AuthConfig, jwtSecret []byte, token string) string {
	if cfg.AdminToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(cfg.AdminToken)) == 1 {
		return "token"
	}
	if cfg.AdminTokenHash != "" && bcrypt.CompareHashAndPassword([]byte(cfg.AdminTokenHash), []byte(token)) == nil {
		return "token_hash"
	}
	if len(jwtSecret) > 0 {
		if _, err := utils.ValidateJWT(jwtSecret, token); err == nil {
			return "session"
		}
	}
	return ""
}

func reject(c *gin.Context, reason string) {
	metrics.AuthFailures.Inc()
	logging.Warn().
		Str("path", c.Request.URL.Path).
		Str("client_ip", c.ClientIP()).
		Str("reason", reason).
		Msg("operator authentication failed")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
}
