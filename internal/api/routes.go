package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/jroosing/hydrarpz/internal/api/handlers"
	"github.com/jroosing/hydrarpz/internal/api/middleware"
	"github.com/jroosing/hydrarpz/internal/config"

	_ "github.com/jroosing/hydrarpz/internal/api/docs" // swagger docs
)

// HealthPath stays reachable without an API key.
const HealthPath = "/api/v1/health"

func RegisterRoutes(r *gin.Engine, h *handlers.Handler, cfg *config.Config) {
	// Swagger UI at /swagger/*
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")

	if cfg != nil {
		api.Use(middleware.RateLimit(middleware.NewRateLimiter(RateLimitSettings(cfg.API.RateLimit))))
	}

	// Optional API key protection.
	if cfg != nil && cfg.API.APIKey != "" {
		api.Use(middleware.RequireAPIKey(cfg.API.APIKey, HealthPath))
	}

	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)

	api.GET("/zones", h.ListZones)
	api.GET("/zones/:name", h.GetZone)
	api.DELETE("/zones/:name", h.RemoveZone)
	api.POST("/zones/:name/triggers", h.AddTrigger)
	api.PUT("/zones/:name/triggers", h.ReplaceTriggers)
	api.DELETE("/zones/:name/triggers", h.DeleteTrigger)
	api.POST("/zones/:name/reload", h.ReloadZone)

	api.GET("/lookup/address", h.LookupAddress)
	api.GET("/lookup/name", h.LookupName)
	api.GET("/skip-recurse", h.SkipRecurse)
}

// RateLimitSettings converts the configured API rate limits.
func RateLimitSettings(rl config.RateLimitConfig) middleware.RateLimitSettings {
	return middleware.RateLimitSettings{
		MaxEntries:  rl.MaxEntries,
		GlobalQPS:   rl.GlobalQPS,
		GlobalBurst: rl.GlobalBurst,
		PrefixQPS:   rl.PrefixQPS,
		PrefixBurst: rl.PrefixBurst,
		IPQPS:       rl.IPQPS,
		IPBurst:     rl.IPBurst,
	}
}
