package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(Metrics())

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/api/institutions", h.Institutions)

	r.GET("/api/auth/google/login", h.GoogleLogin)
	r.GET("/api/auth/google/callback", h.GoogleCallback)

	authed := r.Group("/", JWTAuth(h.JWTSecret))
	{
		authed.POST("/api/auth/institution", h.InstitutionSignIn)
		authed.POST("/api/auth/refresh", h.Refresh)
		authed.POST("/api/auth/signout", h.SignOut)
		authed.GET("/api/auth/me", h.Me)

		authed.GET("/api/sync/status/:jobID", h.SyncStatus)
		authed.POST("/api/sync", RequireDualStage(), h.TriggerSync)
	}

	return r
}
