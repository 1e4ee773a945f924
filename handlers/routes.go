package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pulsetrail/api/config"
	"pulsetrail/api/logging"
	"pulsetrail/api/middleware"
	"pulsetrail/api/store"
	"pulsetrail/api/stream"
)

type Dependencies struct {
	Config  *config.Config
	Store   store.EventStore
	Feed    *stream.Feed
	Limiter *middleware.RateLimiter
	// LoginLimiter guards operator login. Nil builds one from Config.Auth.
	LoginLimiter *middleware.RateLimiter
}

// NewRouter wires every route of the API.
func NewRouter(d Dependencies) *gin.Engine {
	cfg := d.Config

	r := gin.New()
	// ClientIP honours X-Forwarded-For only from these proxies.
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logging.Error().Err(err).Strs("trusted_proxies", cfg.Server.TrustedProxies).Msg("invalid trusted proxies, trusting none")
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(logging.GinLogger())
	r.Use(middleware.Metrics())
	r.Use(middleware.CORSMiddleware(cfg.Server.FrontendOrigin))

	loginLimiter := d.LoginLimiter
	if loginLimiter == nil {
		loginLimiter = middleware.NewRateLimiter(cfg.Auth.LoginRatePerSecond, cfg.Auth.LoginBurst).WithScope("login")
	}

	trackHandlers := NewTrackHandlers(d.Store, d.Feed, cfg.Track)
	adminHandlers := NewAdminHandlers(d.Store, d.Feed, cfg.Server.QueryTimeout)
	authHandlers := NewAuthHandlers(cfg.Auth, cfg.Server.GinMode == gin.ReleaseMode)

	r.GET("/health", HealthCheck(d.Store))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/analytics")
	{
		api.POST("/track", d.Limiter.Middleware(), trackHandlers.TrackEvent)
		api.POST("/login", loginLimiter.Middleware(), authHandlers.Login)
		api.POST("/logout", authHandlers.Logout)

		admin := api.Group("/")
		admin.Use(middleware.OperatorAuth(cfg.Auth))
		{
			admin.GET("/data", adminHandlers.GetData)
			admin.DELETE("/delete", adminHandlers.DeleteEvent)
			admin.DELETE("/clear", adminHandlers.ClearEvents)
		}
	}

	return r
}
